// Package staking manages time-locked stake positions on top of the
// balance store. Per user the state machine is NoPosition -> Active ->
// claimed or cancelled, both terminal and immediately reopenable.
package staking

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"greensteps/amount"
	"greensteps/balance"
	"greensteps/events"
	"greensteps/storage"
)

// Fixed staking policy. The early-exit penalty is forfeited, not paid
// to anyone.
const (
	MinStakeTokens   = 100
	LockPeriod       = 30 * 24 * time.Hour
	BonusRatePct     = 5
	EarlyPenaltyPct  = 2
	RefundPctOnEarly = 100 - EarlyPenaltyPct
)

var (
	ErrBelowMinimumStake = errors.New("stake is below the minimum of 100 tokens")
	ErrPositionExists    = errors.New("an active stake position already exists")
	ErrNoActivePosition  = errors.New("no active stake position")
	ErrNotMatured        = errors.New("stake position has not matured")
)

// Position is one user's time-locked stake. Amount is zeroed when the
// position reaches a terminal state.
type Position struct {
	Amount      amount.Amount `json:"amount"`
	StartTime   int64         `json:"start_time"`
	EndTime     int64         `json:"end_time"`
	BonusEarned amount.Amount `json:"bonus_earned"`
	Active      bool          `json:"active"`
}

type Engine struct {
	storage  *storage.Storage
	balances *balance.Store
	events   *events.Log
	now      func() time.Time
}

func NewEngine(s *storage.Storage, bal *balance.Store, ev *events.Log) *Engine {
	return &Engine{
		storage:  s,
		balances: bal,
		events:   ev,
		now:      time.Now,
	}
}

// SetClock replaces the engine's time source. Used by tests to step
// past the lock period.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Stake locks amt of the caller's tokens for the lock period. The
// maturity bonus is fixed at stake time.
func (e *Engine) Stake(caller string, amt amount.Amount) error {

	if amt < amount.New(MinStakeTokens) {
		return ErrBelowMinimumStake
	}

	now := e.now().Unix()

	position := Position{
		Amount:      amt,
		StartTime:   now,
		EndTime:     now + int64(LockPeriod/time.Second),
		BonusEarned: amt.Percent(BonusRatePct),
		Active:      true,
	}

	err := e.storage.Update(func(tx *bolt.Tx) error {

		b := tx.Bucket([]byte(storage.STAKES_BUCKET))

		if existing, err := positionInTx(b, caller); err != nil {
			return err
		} else if existing.Active {
			return ErrPositionExists
		}

		if err := e.balances.DebitInTx(tx, caller, amt); err != nil {
			return err
		}

		if err := putPositionInTx(b, caller, position); err != nil {
			return err
		}

		_, err := e.events.AppendInTx(tx, events.KindTokensStaked, now, events.TokensStaked{
			User:        caller,
			Amount:      amt,
			StartTime:   position.StartTime,
			EndTime:     position.EndTime,
			BonusEarned: position.BonusEarned,
		})

		return err
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"User": caller, "Amount": amt, "Bonus": position.BonusEarned,
		"EndTime": position.EndTime,
	}).Info("Tokens staked")

	return nil
}

// ClaimRewards pays out principal plus bonus for a matured position
// and closes it.
func (e *Engine) ClaimRewards(caller string) (amount.Amount, error) {

	now := e.now().Unix()

	var payout amount.Amount

	err := e.storage.Update(func(tx *bolt.Tx) error {

		b := tx.Bucket([]byte(storage.STAKES_BUCKET))

		position, err := positionInTx(b, caller)
		if err != nil {
			return err
		}

		if !position.Active {
			return ErrNoActivePosition
		}

		if now < position.EndTime {
			return ErrNotMatured
		}

		payout = position.Amount.Add(position.BonusEarned)

		if err := e.balances.CreditInTx(tx, caller, payout); err != nil {
			return err
		}

		staked := position.Amount
		position.Active = false
		position.Amount = 0

		if err := putPositionInTx(b, caller, position); err != nil {
			return err
		}

		_, err = e.events.AppendInTx(tx, events.KindStakeClaimed, now, events.StakeClaimed{
			User:        caller,
			Amount:      staked,
			BonusEarned: position.BonusEarned,
		})

		return err
	})
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"User": caller, "Payout": payout,
	}).Info("Stake claimed")

	return payout, nil
}

// Cancel exits the position at any time. Before maturity 2% of the
// principal is forfeited; at or after maturity the principal comes
// back in full but without the bonus.
func (e *Engine) Cancel(caller string) (amount.Amount, error) {

	now := e.now().Unix()

	var refund amount.Amount

	err := e.storage.Update(func(tx *bolt.Tx) error {

		b := tx.Bucket([]byte(storage.STAKES_BUCKET))

		position, err := positionInTx(b, caller)
		if err != nil {
			return err
		}

		if !position.Active {
			return ErrNoActivePosition
		}

		early := now < position.EndTime

		refund = position.Amount
		if early {
			refund = position.Amount.Percent(RefundPctOnEarly)
		}

		if err := e.balances.CreditInTx(tx, caller, refund); err != nil {
			return err
		}

		staked := position.Amount
		position.Active = false
		position.Amount = 0

		if err := putPositionInTx(b, caller, position); err != nil {
			return err
		}

		_, err = e.events.AppendInTx(tx, events.KindStakeCancelled, now, events.StakeCancelled{
			User:     caller,
			Amount:   staked,
			Refunded: refund,
			Early:    early,
		})

		return err
	})
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"User": caller, "Refund": refund,
	}).Info("Stake cancelled")

	return refund, nil
}

// PositionOf returns the user's stored position, a zero position when
// the user never staked.
func (e *Engine) PositionOf(user string) (Position, error) {

	var position Position

	err := e.storage.View(func(tx *bolt.Tx) error {
		var err error
		position, err = positionInTx(tx.Bucket([]byte(storage.STAKES_BUCKET)), user)
		return err
	})

	return position, err
}

func positionInTx(b *bolt.Bucket, user string) (Position, error) {

	var position Position

	positionBytes := b.Get([]byte(user))
	if positionBytes == nil {
		return position, nil
	}

	if err := json.Unmarshal(positionBytes, &position); err != nil {
		return position, errors.Wrap(err, "Unable to parse stake position")
	}

	return position, nil
}

func putPositionInTx(b *bolt.Bucket, user string, position Position) error {

	positionBytes, err := json.Marshal(position)
	if err != nil {
		return errors.Wrap(err, "Unable to marshal stake position")
	}

	return b.Put([]byte(user), positionBytes)
}
