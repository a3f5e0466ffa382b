package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/ledger"
	"github.com/wekeepgrowing/bursar/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
)

type LineItemInput struct {
	SKU         string
	Name        string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
}

// CreatePurchaseInput describes a new purchase. SubTotal is used only when
// there are no line items.
type CreatePurchaseInput struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Shipping     model.Address
	Billing      model.Address
	Currency     string
	SubTotal     decimal.Decimal
	Tax          decimal.Decimal
	ShippingCost decimal.Decimal
	LineItems    []LineItemInput
}

// PurchaseView is a purchase with its derived balances.
type PurchaseView struct {
	Purchase *model.Purchase `json:"purchase"`
	Balances ledger.Balances `json:"balances"`
}

type PurchaseService struct {
	repo     domainRepo.LedgerRepository
	currency string
	logger   *zap.Logger
	now      func() time.Time
}

func NewPurchaseService(repo domainRepo.LedgerRepository, currency string, logger *zap.Logger) *PurchaseService {
	return &PurchaseService{
		repo:     repo,
		currency: strings.ToUpper(currency),
		logger:   logger,
		now:      time.Now,
	}
}

// Create stores a purchase with recalculated totals and a generated order
// number.
func (s *PurchaseService) Create(ctx context.Context, in CreatePurchaseInput) (*PurchaseView, error) {
	purchase := &model.Purchase{
		OrderNo:      uuid.NewString(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		Phone:        in.Phone,
		Shipping:     in.Shipping,
		Billing:      in.Billing,
		SubTotal:     in.SubTotal,
		Tax:          in.Tax,
		ShippingCost: in.ShippingCost,
		Currency:     strings.ToUpper(in.Currency),
		TimeStamp:    s.now().UTC(),
	}
	if purchase.Currency == "" {
		purchase.Currency = s.currency
	}

	for i, li := range in.LineItems {
		purchase.LineItems = append(purchase.LineItems, model.LineItem{
			Ordering:    i,
			SKU:         li.SKU,
			Name:        li.Name,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Discount:    li.Discount,
			Tax:         li.Tax,
		})
	}
	purchase.Recalc()

	if err := validatePurchase(purchase); err != nil {
		return nil, domainErrors.NewValidationError(0, "", err)
	}

	if err := s.repo.CreatePurchase(ctx, purchase); err != nil {
		return nil, err
	}

	s.logger.Info("Purchase created",
		zap.Int64("purchase_id", purchase.ID),
		zap.String("order_no", purchase.OrderNo),
		zap.String("total", purchase.Total.StringFixed(2)),
		zap.String("currency", purchase.Currency))

	return &PurchaseView{Purchase: purchase, Balances: ledger.ForPurchase(purchase)}, nil
}

// Get loads a purchase with its balances.
func (s *PurchaseService) Get(ctx context.Context, id int64) (*PurchaseView, error) {
	purchase, err := s.repo.GetPurchase(ctx, id)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, domainErrors.NewValidationError(id, "", domainErrors.ErrPurchaseNotFound)
	}
	return &PurchaseView{Purchase: purchase, Balances: ledger.ForPurchase(purchase)}, nil
}

// CycleOrderNo is the order number of a recurring cycle's purchase.
func CycleOrderNo(template *model.Purchase, cycle int) string {
	return fmt.Sprintf("%s-R%d", template.OrderNo, cycle)
}

// EnsureCyclePurchase returns the purchase billing one recurring cycle,
// creating it from the template when it does not exist yet.
func (s *PurchaseService) EnsureCyclePurchase(ctx context.Context, template *model.Purchase, cycle int, amount decimal.Decimal) (*model.Purchase, error) {
	orderNo := CycleOrderNo(template, cycle)

	existing, err := s.repo.GetPurchaseByOrderNo(ctx, orderNo)
	if err != nil || existing != nil {
		return existing, err
	}

	purchase := &model.Purchase{
		OrderNo:   orderNo,
		FirstName: template.FirstName,
		LastName:  template.LastName,
		Email:     template.Email,
		Phone:     template.Phone,
		Shipping:  template.Shipping,
		Billing:   template.Billing,
		SubTotal:  amount,
		Currency:  template.Currency,
		TimeStamp: s.now().UTC(),
	}
	purchase.Recalc()

	if err := s.repo.CreatePurchase(ctx, purchase); err != nil {
		return nil, err
	}

	s.logger.Info("Cycle purchase created",
		zap.Int64("template_purchase_id", template.ID),
		zap.Int64("purchase_id", purchase.ID),
		zap.Int("cycle", cycle))

	return purchase, nil
}

func validatePurchase(p *model.Purchase) error {
	if len(p.Currency) != 3 {
		return fmt.Errorf("currency %q is not an ISO code", p.Currency)
	}
	for _, li := range p.LineItems {
		if li.Name == "" {
			return errors.New("line item name is required")
		}
		if !li.Quantity.IsPositive() || li.UnitPrice.IsNegative() {
			return fmt.Errorf("line item %q has an invalid quantity or price", li.Name)
		}
	}
	if p.Total.IsNegative() {
		return errors.New("total cannot be negative")
	}
	return nil
}
