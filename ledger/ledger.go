// Package ledger keeps the per-(user, week) record of submitted steps
// and the rewards derived from them. It is the only writer of weekly
// records and running totals.
package ledger

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"greensteps/access"
	"greensteps/amount"
	"greensteps/balance"
	"greensteps/events"
	"greensteps/policy"
	"greensteps/storage"
)

var (
	ErrZeroSteps        = errors.New("steps must be greater than 0")
	ErrAlreadySubmitted = errors.New("steps already submitted for this week")
	ErrNoSubmission     = errors.New("no steps submitted for this week")
	ErrAlreadyClaimed   = errors.New("rewards already claimed for this week")
	ErrRewardOverflow   = errors.New("reward computation overflows")
)

// WeeklyRecord is one week's submission for one user. Steps and the
// derived quantities are written once at submission time and never
// recomputed, even if the conversion rates change afterwards. Claimed
// flips exactly once, false to true.
type WeeklyRecord struct {
	Steps         uint64        `json:"steps"`
	CarbonCredits amount.Amount `json:"carbon_credits"`
	TokensEarned  amount.Amount `json:"tokens_earned"`
	Claimed       bool          `json:"claimed"`
}

// UserTotals are the running sums across all of a user's weekly
// records, maintained in the same transaction that creates each
// record.
type UserTotals struct {
	TotalSteps         uint64        `json:"total_steps"`
	TotalCarbonCredits amount.Amount `json:"total_carbon_credits"`
	TotalTokensEarned  amount.Amount `json:"total_tokens_earned"`
}

type Ledger struct {
	storage  *storage.Storage
	access   *access.Registry
	policy   *policy.Policy
	balances *balance.Store
	events   *events.Log
}

func NewLedger(s *storage.Storage, reg *access.Registry, pol *policy.Policy, bal *balance.Store, ev *events.Log) *Ledger {
	return &Ledger{
		storage:  s,
		access:   reg,
		policy:   pol,
		balances: bal,
		events:   ev,
	}
}

// SubmitSteps records a week of activity for user and derives carbon
// credits and token rewards from the current conversion schedule:
//
//	carbonCredits = steps*100 / stepsPerCarbonCredit
//	tokensEarned  = steps*100 / stepsPerToken + carbonCredits*carbonCreditValue
//
// Quantities are raw hundredths; division truncates. The record, the
// totals update and the submission event commit in one transaction.
func (l *Ledger) SubmitSteps(caller, user string, steps uint64, week int) error {

	if steps == 0 {
		return ErrZeroSteps
	}

	if user == "" {
		return errors.New("user identity cannot be empty")
	}

	if week < 0 {
		return errors.New("week number cannot be negative")
	}

	var record WeeklyRecord

	err := l.storage.Update(func(tx *bolt.Tx) error {

		if err := l.access.RequireInTx(tx, caller, access.OwnerOrAdminOrValidator); err != nil {
			return err
		}

		userBucket, err := tx.Bucket([]byte(storage.RECORDS_BUCKET)).CreateBucketIfNotExists([]byte(user))
		if err != nil {
			return errors.Wrap(err, "Unable to create user records bucket")
		}

		weekKey := storage.Itob(week)

		if userBucket.Get(weekKey) != nil {
			return ErrAlreadySubmitted
		}

		rates, err := l.policy.RatesInTx(tx)
		if err != nil {
			return err
		}

		carbonCredits, tokensEarned, err := computeRewards(steps, rates)
		if err != nil {
			return err
		}

		record = WeeklyRecord{
			Steps:         steps,
			CarbonCredits: carbonCredits,
			TokensEarned:  tokensEarned,
		}

		recordBytes, err := json.Marshal(record)
		if err != nil {
			return errors.Wrap(err, "Unable to marshal weekly record")
		}

		if err := userBucket.Put(weekKey, recordBytes); err != nil {
			return err
		}

		if err := addTotalsInTx(tx, user, record); err != nil {
			return err
		}

		_, err = l.events.AppendInTx(tx, events.KindStepsSubmitted, time.Now().Unix(), events.StepsSubmitted{
			User:          user,
			Steps:         steps,
			CarbonCredits: carbonCredits,
			TokensEarned:  tokensEarned,
			Week:          week,
		})

		return err
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"User": user, "Week": week, "Steps": steps,
		"CarbonCredits": record.CarbonCredits, "TokensEarned": record.TokensEarned,
	}).Info("Steps submitted")

	return nil
}

// ClaimWeeklyRewards credits the caller's balance with the tokens
// earned in the given week. The Claimed flag is the sole exactly-once
// guard; a second claim fails and leaves the balance untouched.
func (l *Ledger) ClaimWeeklyRewards(caller string, week int) (WeeklyRecord, error) {

	var record WeeklyRecord

	err := l.storage.Update(func(tx *bolt.Tx) error {

		userBucket := tx.Bucket([]byte(storage.RECORDS_BUCKET)).Bucket([]byte(caller))
		if userBucket == nil {
			return ErrNoSubmission
		}

		weekKey := storage.Itob(week)

		recordBytes := userBucket.Get(weekKey)
		if recordBytes == nil {
			return ErrNoSubmission
		}

		if err := json.Unmarshal(recordBytes, &record); err != nil {
			return errors.Wrap(err, "Unable to parse weekly record")
		}

		if record.Claimed {
			return ErrAlreadyClaimed
		}

		record.Claimed = true

		updatedBytes, err := json.Marshal(record)
		if err != nil {
			return errors.Wrap(err, "Unable to marshal weekly record")
		}

		if err := userBucket.Put(weekKey, updatedBytes); err != nil {
			return err
		}

		// A very small submission can truncate to zero tokens; the
		// claim still succeeds, there is just nothing to credit.
		if !record.TokensEarned.IsZero() {
			if err := l.balances.CreditInTx(tx, caller, record.TokensEarned); err != nil {
				return err
			}
		}

		_, err = l.events.AppendInTx(tx, events.KindWeeklyRewardsClaimed, time.Now().Unix(), events.WeeklyRewardsClaimed{
			User:          caller,
			CarbonCredits: record.CarbonCredits,
			TokensEarned:  record.TokensEarned,
			Week:          week,
		})

		return err
	})
	if err != nil {
		return WeeklyRecord{}, err
	}

	log.WithFields(log.Fields{
		"User": caller, "Week": week, "TokensEarned": record.TokensEarned,
	}).Info("Weekly rewards claimed")

	return record, nil
}

// WeeklyStats returns the record for (user, week), a zero record when
// none exists.
func (l *Ledger) WeeklyStats(user string, week int) (WeeklyRecord, error) {

	var record WeeklyRecord

	err := l.storage.View(func(tx *bolt.Tx) error {

		userBucket := tx.Bucket([]byte(storage.RECORDS_BUCKET)).Bucket([]byte(user))
		if userBucket == nil {
			return nil
		}

		recordBytes := userBucket.Get(storage.Itob(week))
		if recordBytes == nil {
			return nil
		}

		return json.Unmarshal(recordBytes, &record)
	})

	return record, err
}

// WeekEntry is one row of a user's submission history.
type WeekEntry struct {
	Week int `json:"week"`
	WeeklyRecord
}

// UserHistory returns every stored week for user in ascending week
// order, empty for an unknown user.
func (l *Ledger) UserHistory(user string) ([]WeekEntry, error) {

	history := []WeekEntry{}

	err := l.storage.View(func(tx *bolt.Tx) error {

		userBucket := tx.Bucket([]byte(storage.RECORDS_BUCKET)).Bucket([]byte(user))
		if userBucket == nil {
			return nil
		}

		// Big endian week keys iterate in ascending order
		return userBucket.ForEach(func(k, v []byte) error {
			var record WeeklyRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return errors.Wrap(err, "Unable to parse weekly record")
			}

			history = append(history, WeekEntry{Week: storage.Btoi(k), WeeklyRecord: record})

			return nil
		})
	})

	return history, err
}

// UserStats returns the running totals for user, zeroes when unknown.
func (l *Ledger) UserStats(user string) (UserTotals, error) {

	var totals UserTotals

	err := l.storage.View(func(tx *bolt.Tx) error {

		totalsBytes := tx.Bucket([]byte(storage.TOTALS_BUCKET)).Get([]byte(user))
		if totalsBytes == nil {
			return nil
		}

		return json.Unmarshal(totalsBytes, &totals)
	})

	return totals, err
}

// computeRewards derives the scaled quantities for a submission from
// the current schedule. Every intermediate must fit a non-negative
// int64; anything larger fails with ErrRewardOverflow, so a record
// holds exact values or is not written at all.
func computeRewards(steps uint64, rates policy.Rates) (amount.Amount, amount.Amount, error) {

	if steps > math.MaxInt64/amount.Scale {
		return 0, 0, ErrRewardOverflow
	}

	scaled := steps * amount.Scale
	carbon := scaled / rates.StepsPerCarbonCredit
	base := scaled / rates.StepsPerToken

	if carbon > 0 && rates.CarbonCreditValue > math.MaxInt64/carbon {
		return 0, 0, ErrRewardOverflow
	}
	bonus := carbon * rates.CarbonCreditValue

	if base > math.MaxInt64-bonus {
		return 0, 0, ErrRewardOverflow
	}

	return amount.FromRaw(int64(carbon)), amount.FromRaw(int64(base + bonus)), nil
}

func addTotalsInTx(tx *bolt.Tx, user string, record WeeklyRecord) error {

	b := tx.Bucket([]byte(storage.TOTALS_BUCKET))

	var totals UserTotals

	if totalsBytes := b.Get([]byte(user)); totalsBytes != nil {
		if err := json.Unmarshal(totalsBytes, &totals); err != nil {
			return errors.Wrap(err, "Unable to parse user totals")
		}
	}

	totals.TotalSteps += record.Steps
	totals.TotalCarbonCredits = totals.TotalCarbonCredits.Add(record.CarbonCredits)
	totals.TotalTokensEarned = totals.TotalTokensEarned.Add(record.TokensEarned)

	totalsBytes, err := json.Marshal(totals)
	if err != nil {
		return errors.Wrap(err, "Unable to marshal user totals")
	}

	return b.Put([]byte(user), totalsBytes)
}
