package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/bursar/internal/domain/model"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	err := db.AutoMigrate(
		&model.Purchase{},
		&model.LineItem{},
		&model.Payment{},
		&model.Authorization{},
		&model.PendingPayment{},
		&model.PaymentFailure{},
		&model.CreditCard{},
		&model.RecurringCharge{},
		&model.WebhookEvent{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	if db.Dialector.Name() == "postgres" {
		if err := createCustomIndexes(db); err != nil {
			logger.Error("Failed to create custom indexes", zap.Error(err))
			return err
		}
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomIndexes creates partial indexes that GORM doesn't handle automatically
func createCustomIndexes(db *gorm.DB) error {
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_authorizations_open ON authorizations (purchase_id, method) WHERE complete = false`).Error; err != nil {
		return err
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_webhook_events_unprocessed ON webhook_events (created_at) WHERE status IN ('pending', 'failed')`).Error; err != nil {
		return err
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_recurring_charges_due ON recurring_charges (next_charge_at) WHERE status = 'active'`).Error; err != nil {
		return err
	}

	return nil
}
