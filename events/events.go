package events

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"greensteps/storage"
	"greensteps/util"
)

// Event kinds, as stored in the log and surfaced to pollers. Keep
// these stable because off-chain indexers key on them.
const (
	KindStepsSubmitted       = "steps_submitted"
	KindWeeklyRewardsClaimed = "weekly_rewards_claimed"
	KindRateChanged          = "rate_changed"
	KindRoleGranted          = "role_granted"
	KindRoleRevoked          = "role_revoked"
	KindOwnershipTransferred = "ownership_transferred"
	KindTokensStaked         = "tokens_staked"
	KindStakeClaimed         = "stake_claimed"
	KindStakeCancelled       = "stake_cancelled"
)

// Event is a single entry of the append-only log. Seq is assigned from
// the bucket sequence at append time and increases without gaps. The
// digest is blake2b-256 of the raw Data payload, letting an indexer
// verify the payload it received against a later read.
type Event struct {
	Seq    uint64          `json:"seq"`
	Kind   string          `json:"kind"`
	At     int64           `json:"at"`
	Digest string          `json:"digest"`
	Data   json.RawMessage `json:"data"`
}

// Log is the ledger's only cross-component notification channel. The
// UI layer polls it; nothing in the core ever reads it back.
type Log struct {
	storage *storage.Storage
}

func NewLog(s *storage.Storage) *Log {
	return &Log{storage: s}
}

// AppendInTx writes one event inside a caller-owned transaction, so an
// event commits if and only if the state transition it describes does.
func (l *Log) AppendInTx(tx *bolt.Tx, kind string, at int64, payload interface{}) (uint64, error) {

	b := tx.Bucket([]byte(storage.EVENTS_BUCKET))
	if b == nil {
		return 0, errors.New("Unable to locate events bucket")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, errors.Wrap(err, "Unable to marshal event payload")
	}

	digest, err := util.Digest(data)
	if err != nil {
		return 0, err
	}

	seq, err := b.NextSequence()
	if err != nil {
		return 0, errors.Wrap(err, "Unable to advance event sequence")
	}

	event := Event{
		Seq:    seq,
		Kind:   kind,
		At:     at,
		Digest: digest,
		Data:   data,
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return 0, errors.Wrap(err, "Unable to marshal event")
	}

	return seq, b.Put(storage.Itob(int(seq)), eventBytes)
}

// Head returns the sequence number of the most recent event, 0 when
// the log is empty.
func (l *Log) Head() (uint64, error) {

	var head uint64

	err := l.storage.View(func(tx *bolt.Tx) error {
		head = tx.Bucket([]byte(storage.EVENTS_BUCKET)).Sequence()
		return nil
	})

	return head, err
}

// Since returns up to limit events with Seq > since, in order.
func (l *Log) Since(since uint64, limit int) ([]Event, error) {

	if limit <= 0 {
		limit = 100
	}

	events := make([]Event, 0, limit)

	// No sequence can follow the maximum cursor; since+1 would wrap
	if since == math.MaxUint64 {
		return events, nil
	}

	err := l.storage.View(func(tx *bolt.Tx) error {

		c := tx.Bucket([]byte(storage.EVENTS_BUCKET)).Cursor()

		for k, v := c.Seek(storage.Itob(int(since + 1))); k != nil && len(events) < limit; k, v = c.Next() {
			var event Event
			if err := json.Unmarshal(v, &event); err != nil {
				return errors.Wrap(err, "Unable to parse event record")
			}
			events = append(events, event)
		}

		return nil
	})

	return events, err
}
