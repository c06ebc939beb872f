package model

import (
	"database/sql"
	"time"

	"github.com/reusedev/gen-hub/internal/consts"
)

// CostRecord is one ledger entry. Rows are append-only: status moves
// pending -> confirmed | failed and actual cost is written exactly once.
type CostRecord struct {
	Id            string          `json:"id" gorm:"primaryKey;type:varchar(50)"`
	UserId        string          `json:"user_id" gorm:"column:user_id;type:varchar(50);index"`
	GenerationId  string          `json:"generation_id" gorm:"column:generation_id;type:varchar(50);uniqueIndex"`
	EstimatedCost float64         `json:"estimated_cost" gorm:"column:estimated_cost;type:decimal(10,4)"`
	ActualCost    sql.NullFloat64 `json:"actual_cost" gorm:"column:actual_cost;type:decimal(10,4)"`
	Model         string          `json:"model" gorm:"column:model;type:varchar(50)"`
	Provider      string          `json:"provider" gorm:"column:provider;type:varchar(50)"`
	BillingStatus string          `json:"billing_status" gorm:"column:billing_status;type:enum('pending', 'confirmed', 'failed')"`
	CreatedAt     time.Time       `json:"created_at" gorm:"column:created_at;type:datetime;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"column:updated_at;type:datetime;not null;default:CURRENT_TIMESTAMP"`
}

func (*CostRecord) TableName() string {
	return "cost_record"
}

// CountsTowardSpend reports whether the record participates in period
// totals. Pending estimates count from the moment they are recorded.
func (c *CostRecord) CountsTowardSpend() bool {
	return c.BillingStatus != consts.BillingStatusFailed.String()
}

// Amount is the actual cost when confirmed, otherwise the estimate.
func (c *CostRecord) Amount() float64 {
	if c.ActualCost.Valid {
		return c.ActualCost.Float64
	}
	return c.EstimatedCost
}

// SpendingLimits holds a user's spend ceilings. Zero means unlimited.
type SpendingLimits struct {
	Id           int       `json:"id" gorm:"primaryKey"`
	UserId       string    `json:"user_id" gorm:"column:user_id;type:varchar(50);uniqueIndex"`
	DailyLimit   float64   `json:"daily_limit" gorm:"column:daily_limit;type:decimal(10,4)"`
	WeeklyLimit  float64   `json:"weekly_limit" gorm:"column:weekly_limit;type:decimal(10,4)"`
	MonthlyLimit float64   `json:"monthly_limit" gorm:"column:monthly_limit;type:decimal(10,4)"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at;type:datetime;not null;default:CURRENT_TIMESTAMP"`
}

func (*SpendingLimits) TableName() string {
	return "spending_limits"
}
