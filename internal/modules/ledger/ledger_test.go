package ledger_test

import (
	"sync"
	"testing"
	"time"

	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/harness"
	"github.com/reusedev/gen-hub/internal/modules/ledger"
	"github.com/reusedev/gen-hub/internal/modules/model"
	"github.com/stretchr/testify/require"
)

func newLedger() (*ledger.Ledger, *harness.MemoryCostStore) {
	store := harness.NewMemoryCostStore()
	return ledger.New(store), store
}

func TestCheckAffordabilityUnlimited(t *testing.T) {
	l, _ := newLedger()
	allowed, reason, err := l.CheckAffordability("alice", 100)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Empty(t, reason)
}

func TestDailyLimitExceeded(t *testing.T) {
	l, store := newLedger()
	require.NoError(t, store.SaveLimits(&model.SpendingLimits{UserId: "alice", DailyLimit: 5}))
	_, err := l.RecordEstimate("alice", "gen-1", "sd-turbo-v2", "genapi", 4.8)
	require.NoError(t, err)

	allowed, reason, err := l.CheckAffordability("alice", 0.3)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Contains(t, reason, "daily limit of $5.00")
	require.Contains(t, reason, "already spent $4.80")

	allowed, _, err = l.CheckAffordability("alice", 0.2)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestSpendOutsideDailyWindowIgnored(t *testing.T) {
	l, store := newLedger()
	require.NoError(t, store.SaveLimits(&model.SpendingLimits{UserId: "alice", DailyLimit: 5}))
	require.NoError(t, store.Create(&model.CostRecord{
		Id:            "old-1",
		UserId:        "alice",
		GenerationId:  "gen-old",
		EstimatedCost: 4.8,
		BillingStatus: consts.BillingStatusConfirmed.String(),
		CreatedAt:     time.Now().Add(-48 * time.Hour),
	}))

	allowed, _, err := l.CheckAffordability("alice", 4)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestMonthlyLimitCoversOlderSpend(t *testing.T) {
	l, store := newLedger()
	require.NoError(t, store.SaveLimits(&model.SpendingLimits{UserId: "alice", MonthlyLimit: 10}))
	require.NoError(t, store.Create(&model.CostRecord{
		Id:            "old-1",
		UserId:        "alice",
		GenerationId:  "gen-old",
		EstimatedCost: 9.5,
		BillingStatus: consts.BillingStatusConfirmed.String(),
		CreatedAt:     time.Now().Add(-time.Hour),
	}))

	allowed, reason, err := l.CheckAffordability("alice", 1)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Contains(t, reason, "monthly")
}

func TestRecordEstimateDuplicate(t *testing.T) {
	l, _ := newLedger()
	_, err := l.RecordEstimate("alice", "gen-1", "sd-turbo-v2", "genapi", 0.04)
	require.NoError(t, err)
	_, err = l.RecordEstimate("alice", "gen-1", "sd-turbo-v2", "genapi", 0.04)
	require.ErrorIs(t, err, ledger.ErrDuplicateRecord)
}

func TestConfirmActualOnce(t *testing.T) {
	l, store := newLedger()
	id, err := l.RecordEstimate("alice", "gen-1", "sd-turbo-v2", "genapi", 0.04)
	require.NoError(t, err)

	require.NoError(t, l.ConfirmActual(id, 0.05))
	rec, err := store.ById(id)
	require.NoError(t, err)
	require.Equal(t, consts.BillingStatusConfirmed.String(), rec.BillingStatus)
	require.True(t, rec.ActualCost.Valid)
	require.InDelta(t, 0.05, rec.ActualCost.Float64, 1e-9)
	require.InDelta(t, 0.05, rec.Amount(), 1e-9)

	require.ErrorIs(t, l.ConfirmActual(id, 0.06), ledger.ErrAlreadyConfirmed)
	require.ErrorIs(t, l.MarkFailed(id), ledger.ErrAlreadyConfirmed)
}

func TestMarkFailedReleasesSpend(t *testing.T) {
	l, store := newLedger()
	require.NoError(t, store.SaveLimits(&model.SpendingLimits{UserId: "alice", DailyLimit: 1}))
	id, err := l.RecordEstimate("alice", "gen-1", "sd-turbo-v2", "genapi", 0.9)
	require.NoError(t, err)

	allowed, _, err := l.CheckAffordability("alice", 0.5)
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, l.MarkFailed(id))
	allowed, _, err = l.CheckAffordability("alice", 0.5)
	require.NoError(t, err)
	require.True(t, allowed)

	require.ErrorIs(t, l.MarkFailed(id), ledger.ErrNotPending)
}

func TestConcurrentSettleHasOneWinner(t *testing.T) {
	l, store := newLedger()
	id, err := l.RecordEstimate("alice", "gen-1", "sd-turbo-v2", "genapi", 0.04)
	require.NoError(t, err)

	errs := make(chan error, 2)
	go func() { errs <- l.ConfirmActual(id, 0.05) }()
	go func() { errs <- l.MarkFailed(id) }()

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures++
		}
	}
	require.Equal(t, 1, failures)

	rec, err := store.ById(id)
	require.NoError(t, err)
	require.NotEqual(t, consts.BillingStatusPending.String(), rec.BillingStatus)
}

func TestCheckAndReserveRejectsWithoutRecord(t *testing.T) {
	l, store := newLedger()
	require.NoError(t, store.SaveLimits(&model.SpendingLimits{UserId: "alice", DailyLimit: 0.01}))

	recordId, allowed, reason, err := l.CheckAndReserve("alice", "gen-1", "sd-turbo-v2", "genapi", 0.04)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Empty(t, recordId)
	require.Contains(t, reason, "daily")
	require.Zero(t, store.RecordCount("alice"))
}

func TestCheckAndReserveSerializesPerUser(t *testing.T) {
	l, store := newLedger()
	require.NoError(t, store.SaveLimits(&model.SpendingLimits{UserId: "alice", DailyLimit: 1}))

	type outcome struct {
		allowed bool
		err     error
	}
	results := make(chan outcome, 2)
	wg := &sync.WaitGroup{}
	for _, genId := range []string{"gen-1", "gen-2"} {
		wg.Add(1)
		go func(genId string) {
			defer wg.Done()
			_, allowed, _, err := l.CheckAndReserve("alice", genId, "sd-turbo-v2", "genapi", 0.6)
			results <- outcome{allowed: allowed, err: err}
		}(genId)
	}
	wg.Wait()
	close(results)

	var allowedCount int
	for r := range results {
		require.NoError(t, r.err)
		if r.allowed {
			allowedCount++
		}
	}
	require.Equal(t, 1, allowedCount)
	require.Equal(t, 1, store.RecordCount("alice"))
}
