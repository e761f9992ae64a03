// Package balance is the fungible balance store shared by the reward
// ledger and the staking engine. Balances are mutated only through
// CreditInTx/DebitInTx inside a caller-owned transaction; there is no
// transfer or approval surface here.
package balance

import (
	"encoding/binary"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"greensteps/amount"
	"greensteps/storage"
)

var (
	ErrZeroAmount          = errors.New("amount must be greater than 0")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

type Store struct {
	storage *storage.Storage
}

func NewStore(s *storage.Storage) *Store {
	return &Store{storage: s}
}

// Get returns the balance for user, zero when the user is unknown.
func (s *Store) Get(user string) (amount.Amount, error) {

	var bal amount.Amount

	err := s.storage.View(func(tx *bolt.Tx) error {
		bal = getInTx(tx, user)
		return nil
	})

	return bal, err
}

// CreditInTx adds amt to the user's balance.
func (s *Store) CreditInTx(tx *bolt.Tx, user string, amt amount.Amount) error {

	if amt <= 0 {
		return ErrZeroAmount
	}

	return putInTx(tx, user, getInTx(tx, user).Add(amt))
}

// DebitInTx removes amt from the user's balance, rejecting overdrafts
// before any write.
func (s *Store) DebitInTx(tx *bolt.Tx, user string, amt amount.Amount) error {

	if amt <= 0 {
		return ErrZeroAmount
	}

	bal := getInTx(tx, user)
	if bal < amt {
		return ErrInsufficientBalance
	}

	return putInTx(tx, user, bal.Sub(amt))
}

func getInTx(tx *bolt.Tx, user string) amount.Amount {

	raw := tx.Bucket([]byte(storage.BALANCES_BUCKET)).Get([]byte(user))
	if raw == nil {
		return 0
	}

	return amount.FromRaw(int64(binary.BigEndian.Uint64(raw)))
}

func putInTx(tx *bolt.Tx, user string, bal amount.Amount) error {

	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(bal.Raw()))

	return tx.Bucket([]byte(storage.BALANCES_BUCKET)).Put([]byte(user), b)
}
