package models

import "time"

// Budget periods.
const (
	// BudgetPeriodDaily resets at local midnight.
	BudgetPeriodDaily = "daily"
	// BudgetPeriodWeekly resets at the local week start.
	BudgetPeriodWeekly = "weekly"
	// BudgetPeriodMonthly resets on the 1st of the local month.
	BudgetPeriodMonthly = "monthly"
)

// BudgetConfig holds a spending ceiling and alert state for one period.
type BudgetConfig struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Period string `gorm:"type:varchar(16);not null;uniqueIndex"` // daily/weekly/monthly.

	Limit float64 `gorm:"type:decimal(20,10);not null;default:0"` // Budget ceiling (USD); 0 disables.

	AlertAt80  bool `gorm:"not null"` // Alert when 80% consumed.
	AlertAt100 bool `gorm:"not null"` // Alert when 100% consumed.

	// LastAlertThreshold is the highest threshold already alerted for the
	// current period (0, 80 or 100). It only increases until Reset.
	LastAlertThreshold int        `gorm:"not null;default:0"` // Highest alerted threshold.
	LastAlertAt        *time.Time // Last alert time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
