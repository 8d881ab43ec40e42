package db

import (
	"errors"
	"fmt"

	"github.com/lumenlabs/llm-gateway/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations and seeds default rows.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Admin{},
		&models.APIKey{},
		&models.Provider{},
		&models.Model{},
		&models.FeatureMapping{},
		&models.Usage{},
		&models.UsageMonthly{},
		&models.BudgetConfig{},
		&models.ModelPrice{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errSeed := ensureBudgetRows(conn); errSeed != nil {
		return errSeed
	}
	return nil
}

// ensureBudgetRows seeds one disabled budget row per period so status and
// alert state always have a home.
func ensureBudgetRows(conn *gorm.DB) error {
	periods := []string{
		models.BudgetPeriodDaily,
		models.BudgetPeriodWeekly,
		models.BudgetPeriodMonthly,
	}
	for _, period := range periods {
		var row models.BudgetConfig
		errFind := conn.Where("period = ?", period).Take(&row).Error
		if errFind == nil {
			continue
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("db: load budget row: %w", errFind)
		}
		seed := models.BudgetConfig{Period: period, AlertAt80: true, AlertAt100: true}
		if errCreate := conn.Create(&seed).Error; errCreate != nil {
			return fmt.Errorf("db: seed budget row: %w", errCreate)
		}
	}
	return nil
}
