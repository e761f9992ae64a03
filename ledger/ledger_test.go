package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greensteps/access"
	"greensteps/amount"
	"greensteps/balance"
	"greensteps/events"
	"greensteps/policy"
	"greensteps/storage"
)

const (
	owner     = "gs1owner"
	validator = "gs1validator"
	user1     = "gs1alice"
	user2     = "gs1bob"
)

type testEnv struct {
	storage  *storage.Storage
	registry *access.Registry
	policy   *policy.Policy
	balances *balance.Store
	events   *events.Log
	ledger   *Ledger
}

func newTestEnv(t *testing.T, dataDir string) *testEnv {

	db, err := storage.InitStorage(dataDir)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	eventLog := events.NewLog(db)
	registry := access.NewRegistry(db, eventLog)

	_, err = registry.Bootstrap(owner)
	require.NoError(t, err)
	require.NoError(t, registry.Grant(owner, access.RoleValidator, validator))

	pol := policy.NewPolicy(db, registry, eventLog)
	require.NoError(t, pol.Bootstrap())

	balances := balance.NewStore(db)

	return &testEnv{
		storage:  db,
		registry: registry,
		policy:   pol,
		balances: balances,
		events:   eventLog,
		ledger:   NewLedger(db, registry, pol, balances, eventLog),
	}
}

func TestSubmitStepsComputesRewards(t *testing.T) {

	env := newTestEnv(t, t.TempDir())

	require.NoError(t, env.ledger.SubmitSteps(validator, user1, 10000, 1))

	record, err := env.ledger.WeeklyStats(user1, 1)
	require.NoError(t, err)

	assert.Equal(t, uint64(10000), record.Steps)
	assert.Equal(t, amount.FromRaw(100), record.CarbonCredits)
	assert.Equal(t, amount.FromRaw(11000), record.TokensEarned)
	assert.False(t, record.Claimed)
}

func TestSubmitStepsFormulaExact(t *testing.T) {

	env := newTestEnv(t, t.TempDir())

	// Truncating division on both terms; no rounding anywhere
	cases := []struct {
		steps  uint64
		carbon int64
		tokens int64
	}{
		{10000, 100, 11000},
		{15000, 150, 16500},
		{999, 9, 999*100/1000 + 9*100},
		{1, 0, 0},
		{12345, 123, 12345*100/1000 + 123*100},
	}

	for week, tc := range cases {
		require.NoError(t, env.ledger.SubmitSteps(validator, user1, tc.steps, week+1))

		record, err := env.ledger.WeeklyStats(user1, week+1)
		require.NoError(t, err)

		assert.Equal(t, amount.FromRaw(tc.carbon), record.CarbonCredits, "steps=%d", tc.steps)
		assert.Equal(t, amount.FromRaw(tc.tokens), record.TokensEarned, "steps=%d", tc.steps)
	}
}

func TestSubmitStepsRejectsOverflow(t *testing.T) {

	env := newTestEnv(t, t.TempDir())

	// 2e17 steps scale past int64; without the guard this would store
	// silently wrong quantities
	err := env.ledger.SubmitSteps(validator, user1, 200000000000000000, 1)
	assert.Equal(t, ErrRewardOverflow, err)

	record, err := env.ledger.WeeklyStats(user1, 1)
	require.NoError(t, err)
	assert.Equal(t, WeeklyRecord{}, record)

	totals, err := env.ledger.UserStats(user1)
	require.NoError(t, err)
	assert.Equal(t, UserTotals{}, totals)

	// A huge conversion value overflows the bonus term even for a
	// modest submission
	require.NoError(t, env.policy.UpdateCarbonCreditValue(owner, math.MaxUint64))
	err = env.ledger.SubmitSteps(validator, user1, 10000, 1)
	assert.Equal(t, ErrRewardOverflow, err)
}

func TestSubmitStepsLargestRepresentable(t *testing.T) {

	env := newTestEnv(t, t.TempDir())

	steps := uint64(math.MaxInt64 / amount.Scale)
	require.NoError(t, env.ledger.SubmitSteps(validator, user1, steps, 1))

	record, err := env.ledger.WeeklyStats(user1, 1)
	require.NoError(t, err)

	scaled := steps * amount.Scale
	assert.Equal(t, amount.FromRaw(int64(scaled/10000)), record.CarbonCredits)
	assert.Equal(t, amount.FromRaw(int64(scaled/1000+scaled/10000*100)), record.TokensEarned)

	// One more step crosses the representable bound
	err = env.ledger.SubmitSteps(validator, user1, steps+1, 2)
	assert.Equal(t, ErrRewardOverflow, err)
}

func TestSubmitStepsDuplicateWeek(t *testing.T) {

	env := newTestEnv(t, t.TempDir())

	require.NoError(t, env.ledger.SubmitSteps(validator, user1, 10000, 1))

	err := env.ledger.SubmitSteps(validator, user1, 20000, 1)
	assert.Equal(t, ErrAlreadySubmitted, err)

	// First record untouched
	record, err := env.ledger.WeeklyStats(user1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(10000), record.Steps)

	// Same week for another user is independent
	require.NoError(t, env.ledger.SubmitSteps(validator, user2, 20000, 1))
}

func TestSubmitStepsValidation(t *testing.T) {

	env := newTestEnv(t, t.TempDir())

	assert.Equal(t, ErrZeroSteps, env.ledger.SubmitSteps(validator, user1, 0, 1))
	assert.Error(t, env.ledger.SubmitSteps(validator, "", 100, 1))
	assert.Error(t, env.ledger.SubmitSteps(validator, user1, 100, -1))
}

func TestSubmitStepsRequiresValidator(t *testing.T) {

	env := newTestEnv(t, t.TempDir())

	err := env.ledger.SubmitSteps(user1, user1, 10000, 1)
	assert.Equal(t, access.ErrNotAuthorized, err)

	// Owner and admin also hold submission rights
	require.NoError(t, env.registry.Grant(owner, access.RoleAdmin, "gs1admin"))
	assert.NoError(t, env.ledger.SubmitSteps(owner, user1, 10000, 1))
	assert.NoError(t, env.ledger.SubmitSteps("gs1admin", user1, 10000, 2))
}

func TestClaimWeeklyRewards(t *testing.T) {

	env := newTestEnv(t, t.TempDir())

	require.NoError(t, env.ledger.SubmitSteps(validator, user1, 10000, 1))

	record, err := env.ledger.ClaimWeeklyRewards(user1, 1)
	require.NoError(t, err)
	assert.True(t, record.Claimed)

	bal, err := env.balances.Get(user1)
	require.NoError(t, err)
	assert.Equal(t, amount.FromRaw(11000), bal)

	// Second claim fails and leaves the balance unchanged
	_, err = env.ledger.ClaimWeeklyRewards(user1, 1)
	assert.Equal(t, ErrAlreadyClaimed, err)

	bal, err = env.balances.Get(user1)
	require.NoError(t, err)
	assert.Equal(t, amount.FromRaw(11000), bal)
}

func TestClaimWithoutSubmission(t *testing.T) {

	env := newTestEnv(t, t.TempDir())

	_, err := env.ledger.ClaimWeeklyRewards(user1, 1)
	assert.Equal(t, ErrNoSubmission, err)

	// A submission for another week does not help
	require.NoError(t, env.ledger.SubmitSteps(validator, user1, 10000, 1))
	_, err = env.ledger.ClaimWeeklyRewards(user1, 2)
	assert.Equal(t, ErrNoSubmission, err)
}

func TestUserTotalsAccumulate(t *testing.T) {

	env := newTestEnv(t, t.TempDir())

	require.NoError(t, env.ledger.SubmitSteps(validator, user1, 10000, 1))
	require.NoError(t, env.ledger.SubmitSteps(validator, user2, 10000, 1))
	require.NoError(t, env.ledger.SubmitSteps(validator, user1, 15000, 2))

	totals, err := env.ledger.UserStats(user1)
	require.NoError(t, err)
	assert.Equal(t, uint64(25000), totals.TotalSteps)
	assert.Equal(t, amount.FromRaw(100+150), totals.TotalCarbonCredits)
	assert.Equal(t, amount.FromRaw(11000+16500), totals.TotalTokensEarned)

	totals, err = env.ledger.UserStats(user2)
	require.NoError(t, err)
	assert.Equal(t, uint64(10000), totals.TotalSteps)

	// Totals equal the sum of the stored records
	var steps uint64
	carbon := amount.FromRaw(0)
	tokens := amount.FromRaw(0)
	for _, week := range []int{1, 2} {
		record, err := env.ledger.WeeklyStats(user1, week)
		require.NoError(t, err)
		steps += record.Steps
		carbon = carbon.Add(record.CarbonCredits)
		tokens = tokens.Add(record.TokensEarned)
	}

	totals, err = env.ledger.UserStats(user1)
	require.NoError(t, err)
	assert.Equal(t, steps, totals.TotalSteps)
	assert.Equal(t, carbon, totals.TotalCarbonCredits)
	assert.Equal(t, tokens, totals.TotalTokensEarned)
}

func TestUserHistory(t *testing.T) {

	env := newTestEnv(t, t.TempDir())

	require.NoError(t, env.ledger.SubmitSteps(validator, user1, 10000, 3))
	require.NoError(t, env.ledger.SubmitSteps(validator, user1, 15000, 1))
	require.NoError(t, env.ledger.SubmitSteps(validator, user1, 20000, 2))

	history, err := env.ledger.UserHistory(user1)
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Ascending week order regardless of submission order
	assert.Equal(t, 1, history[0].Week)
	assert.Equal(t, uint64(15000), history[0].Steps)
	assert.Equal(t, 2, history[1].Week)
	assert.Equal(t, uint64(20000), history[1].Steps)
	assert.Equal(t, 3, history[2].Week)

	history, err = env.ledger.UserHistory("gs1nobody")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStatsUnknownKeysAreZero(t *testing.T) {

	env := newTestEnv(t, t.TempDir())

	record, err := env.ledger.WeeklyStats("gs1nobody", 9)
	require.NoError(t, err)
	assert.Equal(t, WeeklyRecord{}, record)

	totals, err := env.ledger.UserStats("gs1nobody")
	require.NoError(t, err)
	assert.Equal(t, UserTotals{}, totals)
}

func TestRateChangeAppliesToFutureSubmissionsOnly(t *testing.T) {

	env := newTestEnv(t, t.TempDir())

	require.NoError(t, env.ledger.SubmitSteps(validator, user1, 10000, 1))
	require.NoError(t, env.policy.UpdateStepsPerToken(owner, 2000))
	require.NoError(t, env.ledger.SubmitSteps(validator, user1, 10000, 2))

	before, err := env.ledger.WeeklyStats(user1, 1)
	require.NoError(t, err)
	assert.Equal(t, amount.FromRaw(11000), before.TokensEarned)

	after, err := env.ledger.WeeklyStats(user1, 2)
	require.NoError(t, err)
	assert.Equal(t, amount.FromRaw(10000*100/2000+100*100), after.TokensEarned)
}

func TestSubmissionAndClaimEmitEvents(t *testing.T) {

	env := newTestEnv(t, t.TempDir())

	head, err := env.events.Head()
	require.NoError(t, err)

	require.NoError(t, env.ledger.SubmitSteps(validator, user1, 10000, 1))
	_, err = env.ledger.ClaimWeeklyRewards(user1, 1)
	require.NoError(t, err)

	page, err := env.events.Since(head, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, events.KindStepsSubmitted, page[0].Kind)
	assert.Equal(t, events.KindWeeklyRewardsClaimed, page[1].Kind)
}

func TestStateSurvivesRestart(t *testing.T) {

	dataDir := t.TempDir()

	db, err := storage.InitStorage(dataDir)
	require.NoError(t, err)

	eventLog := events.NewLog(db)
	registry := access.NewRegistry(db, eventLog)
	_, err = registry.Bootstrap(owner)
	require.NoError(t, err)
	require.NoError(t, registry.Grant(owner, access.RoleValidator, validator))

	pol := policy.NewPolicy(db, registry, eventLog)
	require.NoError(t, pol.Bootstrap())

	balances := balance.NewStore(db)
	led := NewLedger(db, registry, pol, balances, eventLog)

	require.NoError(t, led.SubmitSteps(validator, user1, 10000, 1))
	_, err = led.ClaimWeeklyRewards(user1, 1)
	require.NoError(t, err)

	db.Close()

	// Reopen the same DB; every read must come back identical
	env := newTestEnv(t, dataDir)

	record, err := env.ledger.WeeklyStats(user1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(10000), record.Steps)
	assert.True(t, record.Claimed)

	bal, err := env.balances.Get(user1)
	require.NoError(t, err)
	assert.Equal(t, amount.FromRaw(11000), bal)

	_, err = env.ledger.ClaimWeeklyRewards(user1, 1)
	assert.Equal(t, ErrAlreadyClaimed, err)

	err = env.ledger.SubmitSteps(validator, user1, 10000, 1)
	assert.Equal(t, ErrAlreadySubmitted, err)
}
