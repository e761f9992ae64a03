package staking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"greensteps/amount"
	"greensteps/balance"
	"greensteps/events"
	"greensteps/storage"
)

const staker = "gs1alice"

type testEnv struct {
	storage  *storage.Storage
	balances *balance.Store
	engine   *Engine
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {

	db, err := storage.InitStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	balances := balance.NewStore(db)
	engine := NewEngine(db, balances, events.NewLog(db))

	env := &testEnv{
		storage:  db,
		balances: balances,
		engine:   engine,
		now:      time.Unix(1700000000, 0),
	}

	engine.SetClock(func() time.Time { return env.now })

	return env
}

// fund credits the staker outside the engine, standing in for claimed
// weekly rewards.
func (env *testEnv) fund(t *testing.T, amt amount.Amount) {
	err := env.storage.Update(func(tx *bolt.Tx) error {
		return env.balances.CreditInTx(tx, staker, amt)
	})
	require.NoError(t, err)
}

func (env *testEnv) advance(d time.Duration) {
	env.now = env.now.Add(d)
}

func (env *testEnv) balanceOf(t *testing.T) amount.Amount {
	bal, err := env.balances.Get(staker)
	require.NoError(t, err)
	return bal
}

func TestStakeBelowMinimum(t *testing.T) {

	env := newTestEnv(t)
	env.fund(t, amount.New(200))

	err := env.engine.Stake(staker, amount.New(50))
	assert.Equal(t, ErrBelowMinimumStake, err)

	err = env.engine.Stake(staker, amount.FromRaw(amount.New(100).Raw()-1))
	assert.Equal(t, ErrBelowMinimumStake, err)

	assert.Equal(t, amount.New(200), env.balanceOf(t))
}

func TestStakeDebitsAndRecordsPosition(t *testing.T) {

	env := newTestEnv(t)
	env.fund(t, amount.New(150))

	require.NoError(t, env.engine.Stake(staker, amount.New(100)))

	assert.Equal(t, amount.New(50), env.balanceOf(t))

	position, err := env.engine.PositionOf(staker)
	require.NoError(t, err)
	assert.True(t, position.Active)
	assert.Equal(t, amount.New(100), position.Amount)
	assert.Equal(t, amount.New(5), position.BonusEarned)
	assert.Equal(t, env.now.Unix(), position.StartTime)
	assert.Equal(t, env.now.Add(LockPeriod).Unix(), position.EndTime)
}

func TestStakeRequiresBalance(t *testing.T) {

	env := newTestEnv(t)
	env.fund(t, amount.New(99))

	err := env.engine.Stake(staker, amount.New(100))
	assert.Equal(t, balance.ErrInsufficientBalance, err)
	assert.Equal(t, amount.New(99), env.balanceOf(t))
}

func TestSecondStakeRejectedWhileActive(t *testing.T) {

	env := newTestEnv(t)
	env.fund(t, amount.New(300))

	require.NoError(t, env.engine.Stake(staker, amount.New(100)))

	err := env.engine.Stake(staker, amount.New(100))
	assert.Equal(t, ErrPositionExists, err)
	assert.Equal(t, amount.New(200), env.balanceOf(t))
}

func TestClaimBeforeMaturity(t *testing.T) {

	env := newTestEnv(t)
	env.fund(t, amount.New(100))
	require.NoError(t, env.engine.Stake(staker, amount.New(100)))

	env.advance(LockPeriod - time.Hour)

	_, err := env.engine.ClaimRewards(staker)
	assert.Equal(t, ErrNotMatured, err)
	assert.Equal(t, amount.New(0), env.balanceOf(t))
}

func TestClaimAfterMaturity(t *testing.T) {

	env := newTestEnv(t)
	env.fund(t, amount.New(100))
	require.NoError(t, env.engine.Stake(staker, amount.New(100)))

	env.advance(LockPeriod)

	payout, err := env.engine.ClaimRewards(staker)
	require.NoError(t, err)
	assert.Equal(t, amount.New(105), payout)
	assert.Equal(t, amount.New(105), env.balanceOf(t))

	// Terminal: position is closed and zeroed
	position, err := env.engine.PositionOf(staker)
	require.NoError(t, err)
	assert.False(t, position.Active)
	assert.Equal(t, amount.New(0), position.Amount)

	_, err = env.engine.ClaimRewards(staker)
	assert.Equal(t, ErrNoActivePosition, err)
}

func TestCancelBeforeMaturityForfeitsPenalty(t *testing.T) {

	env := newTestEnv(t)
	env.fund(t, amount.New(100))
	require.NoError(t, env.engine.Stake(staker, amount.New(100)))

	env.advance(24 * time.Hour)

	refund, err := env.engine.Cancel(staker)
	require.NoError(t, err)
	assert.Equal(t, amount.New(98), refund)
	assert.Equal(t, amount.New(98), env.balanceOf(t))

	position, err := env.engine.PositionOf(staker)
	require.NoError(t, err)
	assert.False(t, position.Active)
}

func TestCancelAfterMaturityReturnsPrincipalWithoutBonus(t *testing.T) {

	env := newTestEnv(t)
	env.fund(t, amount.New(100))
	require.NoError(t, env.engine.Stake(staker, amount.New(100)))

	env.advance(LockPeriod + time.Hour)

	refund, err := env.engine.Cancel(staker)
	require.NoError(t, err)
	assert.Equal(t, amount.New(100), refund)
	assert.Equal(t, amount.New(100), env.balanceOf(t))
}

func TestNoActivePosition(t *testing.T) {

	env := newTestEnv(t)

	_, err := env.engine.ClaimRewards(staker)
	assert.Equal(t, ErrNoActivePosition, err)

	_, err = env.engine.Cancel(staker)
	assert.Equal(t, ErrNoActivePosition, err)
}

func TestRestakeAfterTerminalState(t *testing.T) {

	env := newTestEnv(t)
	env.fund(t, amount.New(100))
	require.NoError(t, env.engine.Stake(staker, amount.New(100)))

	env.advance(LockPeriod)

	_, err := env.engine.ClaimRewards(staker)
	require.NoError(t, err)

	// A new stake may open immediately after the old one closes
	require.NoError(t, env.engine.Stake(staker, amount.New(105)))

	position, err := env.engine.PositionOf(staker)
	require.NoError(t, err)
	assert.True(t, position.Active)
	assert.Equal(t, amount.New(105), position.Amount)
	assert.Equal(t, amount.FromRaw(525), position.BonusEarned)
}

func TestStakingEmitsEvents(t *testing.T) {

	env := newTestEnv(t)
	eventLog := events.NewLog(env.storage)

	env.fund(t, amount.New(200))
	require.NoError(t, env.engine.Stake(staker, amount.New(100)))

	env.advance(time.Hour)
	_, err := env.engine.Cancel(staker)
	require.NoError(t, err)

	page, err := eventLog.Since(0, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, events.KindTokensStaked, page[0].Kind)
	assert.Equal(t, events.KindStakeCancelled, page[1].Kind)
}
