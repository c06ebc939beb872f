package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/logs"
	"github.com/reusedev/gen-hub/internal/modules/model"
)

var (
	ErrDuplicateRecord  = errors.New("cost record already exists for generation")
	ErrAlreadyConfirmed = errors.New("cost record already confirmed")
	ErrNotPending       = errors.New("cost record is not pending")
)

// Store is the ledger's persistence contract. Production wiring uses the
// gorm-backed dao.CostStore; the self-check harness injects a fake.
type Store interface {
	Create(rec *model.CostRecord) error
	ById(id string) (*model.CostRecord, error)
	ByGenerationId(generationId string) (*model.CostRecord, error)
	Update(rec *model.CostRecord) error
	SumSince(userId string, since time.Time) (float64, error)
	Limits(userId string) (*model.SpendingLimits, error)
	SaveLimits(limits *model.SpendingLimits) error
}

// Ledger enforces per-user spend ceilings and keeps the append-only cost
// record trail. The check-then-reserve path is serialized per user so two
// concurrent requests cannot both pass the gate against a stale total.
type Ledger struct {
	store Store
	now   func() time.Time

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

func New(store Store) *Ledger {
	return &Ledger{
		store:     store,
		now:       time.Now,
		userLocks: make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) userLock(userId string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.userLocks[userId]
	if !ok {
		lock = &sync.Mutex{}
		l.userLocks[userId] = lock
	}
	return lock
}

// CheckAffordability reports whether a generation with the given estimate
// fits under the user's ceilings. Read-only; ceilings are checked daily,
// weekly, monthly, first violation wins.
func (l *Ledger) CheckAffordability(userId string, estimatedCost float64) (bool, string, error) {
	limits, err := l.store.Limits(userId)
	if err != nil {
		return false, "", err
	}
	now := l.now()

	type window struct {
		name  string
		limit float64
		since time.Time
	}
	windows := []window{
		{"daily", limits.DailyLimit, dayStart(now)},
		{"weekly", limits.WeeklyLimit, weekStart(now)},
		{"monthly", limits.MonthlyLimit, monthStart(now)},
	}
	for _, w := range windows {
		if w.limit <= 0 {
			continue
		}
		spent, err := l.store.SumSince(userId, w.since)
		if err != nil {
			return false, "", err
		}
		if spent+estimatedCost > w.limit {
			reason := fmt.Sprintf("estimated cost $%.2f would exceed your %s limit of $%.2f (already spent $%.2f)",
				estimatedCost, w.name, w.limit, spent)
			return false, reason, nil
		}
	}
	return true, "", nil
}

// RecordEstimate writes the pending ledger entry for a generation. A second
// call for the same generation id fails with ErrDuplicateRecord.
func (l *Ledger) RecordEstimate(userId, generationId, modelId, provider string, estimatedCost float64) (string, error) {
	lock := l.userLock(userId)
	lock.Lock()
	defer lock.Unlock()
	return l.recordEstimateLocked(userId, generationId, modelId, provider, estimatedCost)
}

func (l *Ledger) recordEstimateLocked(userId, generationId, modelId, provider string, estimatedCost float64) (string, error) {
	existing, err := l.store.ByGenerationId(generationId)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", ErrDuplicateRecord
	}
	rec := &model.CostRecord{
		Id:            uuid.NewString(),
		UserId:        userId,
		GenerationId:  generationId,
		EstimatedCost: estimatedCost,
		Model:         modelId,
		Provider:      provider,
		BillingStatus: consts.BillingStatusPending.String(),
		CreatedAt:     l.now(),
		UpdatedAt:     l.now(),
	}
	if err := l.store.Create(rec); err != nil {
		return "", err
	}
	logs.Logger.Info().
		Str("user_id", userId).
		Str("generation_id", generationId).
		Str("cost_record_id", rec.Id).
		Float64("estimated_cost", estimatedCost).
		Msg("cost estimate recorded")
	return rec.Id, nil
}

// CheckAndReserve runs the affordability check and the estimate write as one
// atomic step under the user's lock. On a limit violation no record is
// created and the human-readable reason is returned.
func (l *Ledger) CheckAndReserve(userId, generationId, modelId, provider string, estimatedCost float64) (recordId string, allowed bool, reason string, err error) {
	lock := l.userLock(userId)
	lock.Lock()
	defer lock.Unlock()

	allowed, reason, err = l.CheckAffordability(userId, estimatedCost)
	if err != nil || !allowed {
		return "", allowed, reason, err
	}
	recordId, err = l.recordEstimateLocked(userId, generationId, modelId, provider, estimatedCost)
	if err != nil {
		return "", false, "", err
	}
	return recordId, true, "", nil
}

// ConfirmActual reconciles the record to the provider-reported cost.
// pending -> confirmed, exactly once. Settlement takes the same per-user
// lock as the check-and-reserve path, so concurrent settlers cannot both
// pass the status check.
func (l *Ledger) ConfirmActual(recordId string, actualCost float64) error {
	rec, err := l.store.ById(recordId)
	if err != nil {
		return err
	}
	lock := l.userLock(rec.UserId)
	lock.Lock()
	defer lock.Unlock()
	rec, err = l.store.ById(recordId)
	if err != nil {
		return err
	}
	if rec.BillingStatus == consts.BillingStatusConfirmed.String() {
		return ErrAlreadyConfirmed
	}
	if rec.BillingStatus != consts.BillingStatusPending.String() {
		return ErrNotPending
	}
	rec.ActualCost = sql.NullFloat64{Float64: actualCost, Valid: true}
	rec.BillingStatus = consts.BillingStatusConfirmed.String()
	rec.UpdatedAt = l.now()
	if err := l.store.Update(rec); err != nil {
		return err
	}
	logs.Logger.Info().
		Str("cost_record_id", recordId).
		Float64("actual_cost", actualCost).
		Msg("cost confirmed")
	return nil
}

// MarkFailed voids a pending estimate after a provider failure. Failed
// records no longer count toward spending totals. Settles under the
// per-user lock like ConfirmActual.
func (l *Ledger) MarkFailed(recordId string) error {
	rec, err := l.store.ById(recordId)
	if err != nil {
		return err
	}
	lock := l.userLock(rec.UserId)
	lock.Lock()
	defer lock.Unlock()
	rec, err = l.store.ById(recordId)
	if err != nil {
		return err
	}
	if rec.BillingStatus == consts.BillingStatusConfirmed.String() {
		return ErrAlreadyConfirmed
	}
	if rec.BillingStatus != consts.BillingStatusPending.String() {
		return ErrNotPending
	}
	rec.BillingStatus = consts.BillingStatusFailed.String()
	rec.UpdatedAt = l.now()
	return l.store.Update(rec)
}

func (l *Ledger) Limits(userId string) (*model.SpendingLimits, error) {
	return l.store.Limits(userId)
}

func (l *Ledger) SaveLimits(limits *model.SpendingLimits) error {
	limits.UpdatedAt = l.now()
	return l.store.SaveLimits(limits)
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// weekStart is Monday 00:00 in the server's location.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return dayStart(t).AddDate(0, 0, -offset)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
