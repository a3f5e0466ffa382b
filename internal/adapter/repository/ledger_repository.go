package repository

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/ledger"
	"github.com/wekeepgrowing/bursar/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ledgerRepository implements the LedgerRepository interface
type ledgerRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewLedgerRepository creates a new ledger repository instance
func NewLedgerRepository(db *gorm.DB, logger *zap.Logger) domainRepo.LedgerRepository {
	return &ledgerRepository{
		db:     db,
		logger: logger,
	}
}

// CreatePurchase stores a purchase and its line items
func (r *ledgerRepository) CreatePurchase(ctx context.Context, purchase *model.Purchase) error {
	if err := r.db.WithContext(ctx).Create(purchase).Error; err != nil {
		r.logger.Error("Failed to create purchase",
			zap.String("order_no", purchase.OrderNo),
			zap.Error(err))
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	return nil
}

// GetPurchase loads a purchase with every child collection
func (r *ledgerRepository) GetPurchase(ctx context.Context, id int64) (*model.Purchase, error) {
	return r.findPurchase(ctx, "id = ?", id)
}

// GetPurchaseByOrderNo loads a purchase by its order number
func (r *ledgerRepository) GetPurchaseByOrderNo(ctx context.Context, orderNo string) (*model.Purchase, error) {
	return r.findPurchase(ctx, "order_no = ?", orderNo)
}

func (r *ledgerRepository) findPurchase(ctx context.Context, query string, arg interface{}) (*model.Purchase, error) {
	var purchase model.Purchase

	err := r.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("ordering ASC, id ASC") }).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Authorizations", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("PendingPayments").
		Preload("Failures", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where(query, arg).
		First(&purchase).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get purchase",
			zap.Any("key", arg),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}

	return &purchase, nil
}

// GetAuthorization retrieves an authorization by ID
func (r *ledgerRepository) GetAuthorization(ctx context.Context, id int64) (*model.Authorization, error) {
	var auth model.Authorization

	err := r.db.WithContext(ctx).First(&auth, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get authorization: %w", err)
	}

	return &auth, nil
}

// FindIncompleteAuthorizations lists open authorizations for a gateway
func (r *ledgerRepository) FindIncompleteAuthorizations(ctx context.Context, purchaseID int64, key string) ([]*model.Authorization, error) {
	var auths []*model.Authorization

	err := r.db.WithContext(ctx).
		Where("purchase_id = ? AND method = ? AND complete = ?", purchaseID, key, false).
		Order("id ASC").
		Find(&auths).Error
	if err != nil {
		r.logger.Error("Failed to find incomplete authorizations",
			zap.Int64("purchase_id", purchaseID),
			zap.String("gateway", key),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find incomplete authorizations: %w", err)
	}

	return auths, nil
}

// WithPurchaseLock locks the purchase row and runs fn in the same transaction
func (r *ledgerRepository) WithPurchaseLock(ctx context.Context, purchaseID int64, fn func(tx domainRepo.LedgerTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var purchase model.Purchase

		err := lockForUpdate(tx).First(&purchase, purchaseID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainErrors.NewValidationError(purchaseID, "", domainErrors.ErrPurchaseNotFound)
			}
			r.logger.Error("Failed to lock purchase",
				zap.Int64("purchase_id", purchaseID),
				zap.Error(err))
			return fmt.Errorf("failed to lock purchase: %w", err)
		}

		return fn(&ledgerTx{tx: tx, purchase: &purchase})
	})
}

// lockForUpdate adds FOR UPDATE where the dialect has row locks. sqlite
// serializes writers on its own.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// ledgerTx implements LedgerTx on an open gorm transaction
type ledgerTx struct {
	tx       *gorm.DB
	purchase *model.Purchase
}

func (t *ledgerTx) Purchase() *model.Purchase {
	return t.purchase
}

func (t *ledgerTx) Balances() (ledger.Balances, error) {
	var payments []model.Payment
	if err := t.tx.Where("purchase_id = ?", t.purchase.ID).Find(&payments).Error; err != nil {
		return ledger.Balances{}, fmt.Errorf("failed to load payments: %w", err)
	}

	var auths []model.Authorization
	if err := t.tx.Where("purchase_id = ?", t.purchase.ID).Find(&auths).Error; err != nil {
		return ledger.Balances{}, fmt.Errorf("failed to load authorizations: %w", err)
	}

	return ledger.Compute(t.purchase.Total, payments, auths), nil
}

func (t *ledgerTx) FindPending(key string) (*model.PendingPayment, error) {
	var pending model.PendingPayment

	err := t.tx.Where("purchase_id = ? AND method = ?", t.purchase.ID, key).First(&pending).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find pending payment: %w", err)
	}

	return &pending, nil
}

func (t *ledgerTx) ListPending() ([]*model.PendingPayment, error) {
	var pendings []*model.PendingPayment

	if err := t.tx.Where("purchase_id = ?", t.purchase.ID).Order("id ASC").Find(&pendings).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}

	return pendings, nil
}

func (t *ledgerTx) CreatePending(p *model.PendingPayment) error {
	if err := t.tx.Create(p).Error; err != nil {
		return fmt.Errorf("failed to create pending payment: %w", err)
	}
	return nil
}

func (t *ledgerTx) DeletePending(p *model.PendingPayment) error {
	if err := t.tx.Delete(p).Error; err != nil {
		return fmt.Errorf("failed to delete pending payment: %w", err)
	}
	return nil
}

func (t *ledgerTx) GetPayment(id int64) (*model.Payment, error) {
	var payment model.Payment

	err := t.tx.Where("purchase_id = ?", t.purchase.ID).First(&payment, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return &payment, nil
}

func (t *ledgerTx) CreatePayment(p *model.Payment) error {
	if err := t.tx.Create(p).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (t *ledgerTx) SavePayment(p *model.Payment) error {
	if err := t.tx.Save(p).Error; err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (t *ledgerTx) DeletePayment(p *model.Payment) error {
	if err := t.tx.Delete(p).Error; err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return nil
}

func (t *ledgerTx) PaymentExists(transactionID string) (bool, error) {
	payment, err := t.FindPaymentByTransaction(transactionID)
	if err != nil {
		return false, err
	}
	return payment != nil, nil
}

func (t *ledgerTx) FindPaymentByTransaction(transactionID string) (*model.Payment, error) {
	var payment model.Payment

	err := t.tx.
		Where("purchase_id = ? AND transaction_id = ? AND transaction_id <> ?", t.purchase.ID, transactionID, model.LinkedTransactionID).
		Order("id").
		Take(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find payment by transaction id: %w", err)
	}

	return &payment, nil
}

func (t *ledgerTx) GetAuthorization(id int64) (*model.Authorization, error) {
	var auth model.Authorization

	err := t.tx.First(&auth, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get authorization: %w", err)
	}

	return &auth, nil
}

func (t *ledgerTx) FindIncompleteAuthorizationByTransaction(transactionID string) (*model.Authorization, error) {
	var auth model.Authorization

	err := t.tx.
		Where("purchase_id = ? AND transaction_id = ? AND complete = ?", t.purchase.ID, transactionID, false).
		Order("id ASC").
		First(&auth).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find authorization by transaction id: %w", err)
	}

	return &auth, nil
}

func (t *ledgerTx) CreateAuthorization(a *model.Authorization) error {
	if err := t.tx.Create(a).Error; err != nil {
		return fmt.Errorf("failed to create authorization: %w", err)
	}
	return nil
}

func (t *ledgerTx) SaveAuthorization(a *model.Authorization) error {
	if err := t.tx.Save(a).Error; err != nil {
		return fmt.Errorf("failed to save authorization: %w", err)
	}
	return nil
}

func (t *ledgerTx) CreateFailure(f *model.PaymentFailure) error {
	if err := t.tx.Create(f).Error; err != nil {
		return fmt.Errorf("failed to create payment failure: %w", err)
	}
	return nil
}
