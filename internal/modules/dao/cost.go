package dao

import (
	"time"

	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CostStore is the gorm-backed ledger storage. The ledger package consumes
// it through an interface so the self-check harness can swap in a fake.
type CostStore struct {
	db *gorm.DB
}

func NewCostStore(db *gorm.DB) *CostStore {
	return &CostStore{db: db}
}

func (s *CostStore) Create(rec *model.CostRecord) error {
	return s.db.Model(&model.CostRecord{}).Create(rec).Error
}

func (s *CostStore) ById(id string) (*model.CostRecord, error) {
	var rec model.CostRecord
	err := s.db.Model(&model.CostRecord{}).Where("id = ?", id).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *CostStore) ByGenerationId(generationId string) (*model.CostRecord, error) {
	var rec model.CostRecord
	err := s.db.Model(&model.CostRecord{}).Where("generation_id = ?", generationId).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *CostStore) Update(rec *model.CostRecord) error {
	return s.db.Model(&model.CostRecord{}).Where("id = ?", rec.Id).Updates(rec).Error
}

// SumSince totals a user's spend from `since` on. Failed records are
// excluded; confirmed records count at actual cost, pending at estimate.
func (s *CostStore) SumSince(userId string, since time.Time) (float64, error) {
	var total float64
	err := s.db.Model(&model.CostRecord{}).
		Select("COALESCE(SUM(COALESCE(actual_cost, estimated_cost)), 0)").
		Where("user_id = ? AND billing_status <> ? AND created_at >= ?",
			userId, consts.BillingStatusFailed.String(), since).
		Scan(&total).Error
	return total, err
}

func (s *CostStore) Limits(userId string) (*model.SpendingLimits, error) {
	var limits model.SpendingLimits
	err := s.db.Model(&model.SpendingLimits{}).Where("user_id = ?", userId).First(&limits).Error
	if err == gorm.ErrRecordNotFound {
		return &model.SpendingLimits{UserId: userId}, nil
	}
	if err != nil {
		return nil, err
	}
	return &limits, nil
}

func (s *CostStore) SaveLimits(limits *model.SpendingLimits) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"daily_limit", "weekly_limit", "monthly_limit", "updated_at"}),
	}).Create(limits).Error
}
