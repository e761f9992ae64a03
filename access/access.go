// Package access holds the owner identity and the admin/validator role
// sets used to gate privileged operations. Every privileged entry
// point declares the level it requires; membership is checked inside
// the same transaction that performs the guarded writes.
package access

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"greensteps/events"
	"greensteps/storage"
)

// Level is the capability a privileged operation requires.
type Level int

const (
	Owner Level = iota
	OwnerOrAdmin
	OwnerOrAdminOrValidator
)

// Role names accepted by Grant/Revoke.
const (
	RoleAdmin     = "admin"
	RoleValidator = "validator"
)

var (
	ErrNotAuthorized = errors.New("caller is not authorized")
	ErrUnknownRole   = errors.New("unknown role")
)

const ownerKey = "owner"

// Member marker value; only key presence matters.
var memberMark = []byte{0x01}

type Registry struct {
	storage *storage.Storage
	events  *events.Log
}

func NewRegistry(s *storage.Storage, ev *events.Log) *Registry {
	return &Registry{
		storage: s,
		events:  ev,
	}
}

// Bootstrap installs ownerID as the owner if none is recorded yet, and
// returns whoever owns the registry afterwards. An existing owner is
// never overwritten by a restart with a different flag value.
func (r *Registry) Bootstrap(ownerID string) (string, error) {

	var owner string

	err := r.storage.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storage.ACCESS_BUCKET))

		if existing := b.Get([]byte(ownerKey)); existing != nil {
			owner = string(existing)
			return nil
		}

		if ownerID == "" {
			return errors.New("No owner recorded and no -owner flag given")
		}

		owner = ownerID

		return b.Put([]byte(ownerKey), []byte(ownerID))
	})

	return owner, err
}

// Owner returns the current owner identity.
func (r *Registry) Owner() (string, error) {

	var owner string

	err := r.storage.View(func(tx *bolt.Tx) error {
		owner = string(tx.Bucket([]byte(storage.ACCESS_BUCKET)).Get([]byte(ownerKey)))
		return nil
	})

	return owner, err
}

// RequireInTx rejects the caller with ErrNotAuthorized unless it holds
// the required level. Owner satisfies every level, admins satisfy
// OwnerOrAdmin and below, validators only the lowest.
func (r *Registry) RequireInTx(tx *bolt.Tx, caller string, level Level) error {

	if caller == "" {
		return ErrNotAuthorized
	}

	b := tx.Bucket([]byte(storage.ACCESS_BUCKET))

	if string(b.Get([]byte(ownerKey))) == caller {
		return nil
	}

	if level <= Owner {
		return ErrNotAuthorized
	}

	if b.Bucket([]byte(storage.ADMINS_BUCKET)).Get([]byte(caller)) != nil {
		return nil
	}

	if level <= OwnerOrAdmin {
		return ErrNotAuthorized
	}

	if b.Bucket([]byte(storage.VALIDATORS_BUCKET)).Get([]byte(caller)) != nil {
		return nil
	}

	return ErrNotAuthorized
}

// Require is the read-only wrapper around RequireInTx.
func (r *Registry) Require(caller string, level Level) error {

	var checkErr error

	err := r.storage.View(func(tx *bolt.Tx) error {
		checkErr = r.RequireInTx(tx, caller, level)
		return nil
	})
	if err != nil {
		return err
	}

	return checkErr
}

func roleBucket(role string) (string, error) {
	switch role {
	case RoleAdmin:
		return storage.ADMINS_BUCKET, nil
	case RoleValidator:
		return storage.VALIDATORS_BUCKET, nil
	}

	return "", ErrUnknownRole
}

// Grant adds id to the given role set. Granting an existing member is
// a no-op, not an error, and emits nothing.
func (r *Registry) Grant(caller, role, id string) error {

	bucketName, err := roleBucket(role)
	if err != nil {
		return err
	}

	return r.storage.Update(func(tx *bolt.Tx) error {

		if err := r.RequireInTx(tx, caller, OwnerOrAdmin); err != nil {
			return err
		}

		b := tx.Bucket([]byte(storage.ACCESS_BUCKET)).Bucket([]byte(bucketName))

		if b.Get([]byte(id)) != nil {
			// Already a member
			return nil
		}

		if err := b.Put([]byte(id), memberMark); err != nil {
			return err
		}

		_, err := r.events.AppendInTx(tx, events.KindRoleGranted, time.Now().Unix(), events.RoleGranted{
			Role: role,
			ID:   id,
		})

		return err
	})
}

// Revoke removes id from the given role set. Revoking a non-member is
// a no-op.
func (r *Registry) Revoke(caller, role, id string) error {

	bucketName, err := roleBucket(role)
	if err != nil {
		return err
	}

	return r.storage.Update(func(tx *bolt.Tx) error {

		if err := r.RequireInTx(tx, caller, OwnerOrAdmin); err != nil {
			return err
		}

		b := tx.Bucket([]byte(storage.ACCESS_BUCKET)).Bucket([]byte(bucketName))

		if b.Get([]byte(id)) == nil {
			// Not a member
			return nil
		}

		if err := b.Delete([]byte(id)); err != nil {
			return err
		}

		_, err := r.events.AppendInTx(tx, events.KindRoleRevoked, time.Now().Unix(), events.RoleRevoked{
			Role: role,
			ID:   id,
		})

		return err
	})
}

// TransferOwnership hands the owner singleton to newOwner. Owner only.
func (r *Registry) TransferOwnership(caller, newOwner string) error {

	if newOwner == "" {
		return errors.New("New owner identity cannot be empty")
	}

	err := r.storage.Update(func(tx *bolt.Tx) error {

		if err := r.RequireInTx(tx, caller, Owner); err != nil {
			return err
		}

		b := tx.Bucket([]byte(storage.ACCESS_BUCKET))

		if err := b.Put([]byte(ownerKey), []byte(newOwner)); err != nil {
			return err
		}

		_, err := r.events.AppendInTx(tx, events.KindOwnershipTransferred, time.Now().Unix(), events.OwnershipTransferred{
			From: caller,
			To:   newOwner,
		})

		return err
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"From": caller, "To": newOwner,
	}).Info("Ownership transferred")

	return nil
}

// Members lists the identities currently holding the given role.
func (r *Registry) Members(role string) ([]string, error) {

	bucketName, err := roleBucket(role)
	if err != nil {
		return nil, err
	}

	var members []string

	err = r.storage.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(storage.ACCESS_BUCKET)).Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			members = append(members, string(k))
			return nil
		})
	})

	return members, err
}
