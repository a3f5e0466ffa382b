package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/bursar/internal/adapter/repository"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
)

// Repositories holds all repository instances
type Repositories struct {
	Ledger     domainRepo.LedgerRepository
	CreditCard domainRepo.CreditCardRepository
	Recurring  domainRepo.RecurringRepository
	Webhook    domainRepo.WebhookRepository
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Ledger:     repository.NewLedgerRepository(db, logger),
		CreditCard: repository.NewCreditCardRepository(db, logger),
		Recurring:  repository.NewRecurringRepository(db, logger),
		Webhook:    repository.NewWebhookRepository(db, logger),
	}
}
