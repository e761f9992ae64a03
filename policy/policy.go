// Package policy holds the three exchange rates used to derive carbon
// credits and reward tokens from submitted steps.
package policy

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"greensteps/access"
	"greensteps/events"
	"greensteps/storage"
)

// Defaults match the originally deployed conversion schedule.
const (
	DefaultStepsPerToken        = 1000
	DefaultStepsPerCarbonCredit = 10000
	DefaultCarbonCreditValue    = 100
)

// Rate keys within the rates bucket. Also surfaced as the Name field
// of rate_changed events.
const (
	KeyStepsPerToken        = "steps_per_token"
	KeyStepsPerCarbonCredit = "steps_per_carbon_credit"
	KeyCarbonCreditValue    = "carbon_credit_value"
)

var ErrInvalidRate = errors.New("rate must be greater than 0")

// Rates is a snapshot of the conversion schedule. All three values are
// strictly positive at all times.
type Rates struct {
	StepsPerToken        uint64 `json:"steps_per_token"`
	StepsPerCarbonCredit uint64 `json:"steps_per_carbon_credit"`
	CarbonCreditValue    uint64 `json:"carbon_credit_value"`
}

type Policy struct {
	storage *storage.Storage
	access  *access.Registry
	events  *events.Log
}

func NewPolicy(s *storage.Storage, reg *access.Registry, ev *events.Log) *Policy {
	return &Policy{
		storage: s,
		access:  reg,
		events:  ev,
	}
}

// Bootstrap installs the default rates for any key not yet present.
// Existing values survive restarts untouched.
func (p *Policy) Bootstrap() error {

	defaults := map[string]uint64{
		KeyStepsPerToken:        DefaultStepsPerToken,
		KeyStepsPerCarbonCredit: DefaultStepsPerCarbonCredit,
		KeyCarbonCreditValue:    DefaultCarbonCreditValue,
	}

	return p.storage.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storage.RATES_BUCKET))

		for key, value := range defaults {
			if b.Get([]byte(key)) != nil {
				continue
			}
			if err := b.Put([]byte(key), utob(value)); err != nil {
				return errors.Wrapf(err, "Cannot store default %s", key)
			}
		}

		return nil
	})
}

// RatesInTx reads the current schedule inside a caller-owned
// transaction so a submission computes against a single snapshot.
func (p *Policy) RatesInTx(tx *bolt.Tx) (Rates, error) {

	b := tx.Bucket([]byte(storage.RATES_BUCKET))

	rates := Rates{
		StepsPerToken:        btou(b.Get([]byte(KeyStepsPerToken))),
		StepsPerCarbonCredit: btou(b.Get([]byte(KeyStepsPerCarbonCredit))),
		CarbonCreditValue:    btou(b.Get([]byte(KeyCarbonCreditValue))),
	}

	if rates.StepsPerToken == 0 || rates.StepsPerCarbonCredit == 0 || rates.CarbonCreditValue == 0 {
		return rates, errors.New("Conversion rates missing from DB")
	}

	return rates, nil
}

// Rates returns the current conversion schedule.
func (p *Policy) Rates() (Rates, error) {

	var rates Rates

	err := p.storage.View(func(tx *bolt.Tx) error {
		var err error
		rates, err = p.RatesInTx(tx)
		return err
	})

	return rates, err
}

func (p *Policy) UpdateStepsPerToken(caller string, rate uint64) error {
	return p.update(caller, KeyStepsPerToken, rate)
}

func (p *Policy) UpdateStepsPerCarbonCredit(caller string, rate uint64) error {
	return p.update(caller, KeyStepsPerCarbonCredit, rate)
}

func (p *Policy) UpdateCarbonCreditValue(caller string, value uint64) error {
	return p.update(caller, KeyCarbonCreditValue, value)
}

// update replaces one stored rate. Owner or admin only; zero rejected
// before any write. Already-written records are never recomputed; the
// new rate applies to future submissions only.
func (p *Policy) update(caller, key string, value uint64) error {

	if value == 0 {
		return ErrInvalidRate
	}

	err := p.storage.Update(func(tx *bolt.Tx) error {

		if err := p.access.RequireInTx(tx, caller, access.OwnerOrAdmin); err != nil {
			return err
		}

		if err := tx.Bucket([]byte(storage.RATES_BUCKET)).Put([]byte(key), utob(value)); err != nil {
			return err
		}

		_, err := p.events.AppendInTx(tx, events.KindRateChanged, time.Now().Unix(), events.RateChanged{
			Name:  key,
			Value: value,
		})

		return err
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"Rate": key, "Value": value,
	}).Info("Conversion rate updated")

	return nil
}

func utob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btou(b []byte) uint64 {
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
