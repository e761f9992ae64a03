package storage

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	DATABASE_FILE = "greensteps.db"

	ACCESS_BUCKET   = "access"
	RATES_BUCKET    = "rates"
	RECORDS_BUCKET  = "records"
	TOTALS_BUCKET   = "totals"
	BALANCES_BUCKET = "balances"
	STAKES_BUCKET   = "stakes"
	EVENTS_BUCKET   = "events"
	CONFIG_BUCKET   = "config"

	// Nested under ACCESS_BUCKET
	ADMINS_BUCKET     = "admins"
	VALIDATORS_BUCKET = "validators"

	// Nested under CONFIG_BUCKET
	NOTIFICATIONS_BUCKET = "notifications"
)

type Storage struct {
	db *bolt.DB
}

// InitStorage opens, or creates, the database file under dataDir and
// makes sure every top-level bucket exists.
func InitStorage(dataDir string) (*Storage, error) {

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, errors.Wrap(err, "Cannot create data dir")
	}

	dbFile := filepath.Join(dataDir, DATABASE_FILE)

	db, err := bolt.Open(dbFile, 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Cannot open DB file")
	}

	err = db.Update(func(tx *bolt.Tx) error {

		for _, bucket := range []string{
			ACCESS_BUCKET, RATES_BUCKET, RECORDS_BUCKET, TOTALS_BUCKET,
			BALANCES_BUCKET, STAKES_BUCKET, EVENTS_BUCKET, CONFIG_BUCKET,
		} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return errors.Wrapf(err, "Cannot create %s bucket", bucket)
			}
		}

		// Role sets live under the access bucket
		accessBucket := tx.Bucket([]byte(ACCESS_BUCKET))
		for _, bucket := range []string{ADMINS_BUCKET, VALIDATORS_BUCKET} {
			if _, err := accessBucket.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return errors.Wrapf(err, "Cannot create %s bucket", bucket)
			}
		}

		if _, err := tx.Bucket([]byte(CONFIG_BUCKET)).CreateBucketIfNotExists([]byte(NOTIFICATIONS_BUCKET)); err != nil {
			return errors.Wrap(err, "Cannot create notifications bucket")
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithField("File", dbFile).Debug("Database opened")

	return &Storage{db: db}, nil
}

func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.WithError(err).Error("Error closing database")
		return
	}
	log.Info("Database closed")
}

// View executes a read-only closure against the DB.
func (s *Storage) View(fn func(*bolt.Tx) error) error {
	return s.db.View(fn)
}

// Update executes a read-write closure against the DB. Bolt serializes
// writers, so every state transition performed inside a single Update
// commits atomically or not at all.
func (s *Storage) Update(fn func(*bolt.Tx) error) error {
	return s.db.Update(fn)
}

// Itob returns an 8-byte big endian representation of v.
func Itob(v int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// Btoi converts 8 big endian bytes back to an int.
func Btoi(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}
