package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/bursar/internal/domain/model"
	"github.com/wekeepgrowing/bursar/internal/usecase"
)

// PurchaseHandler serves the storefront facing purchase endpoints
type PurchaseHandler struct {
	purchases *usecase.PurchaseService
	registry  *usecase.ProcessorRegistry
	cards     *usecase.CardVault
	logger    *zap.Logger
}

func NewPurchaseHandler(
	purchases *usecase.PurchaseService,
	registry *usecase.ProcessorRegistry,
	cards *usecase.CardVault,
	logger *zap.Logger,
) *PurchaseHandler {
	return &PurchaseHandler{
		purchases: purchases,
		registry:  registry,
		cards:     cards,
		logger:    logger,
	}
}

type LineItemRequest struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
}

type CreatePurchaseRequest struct {
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	Email        string            `json:"email" validate:"required,email"`
	Phone        string            `json:"phone"`
	Shipping     model.Address     `json:"shipping"`
	Billing      model.Address     `json:"billing"`
	Currency     string            `json:"currency" validate:"omitempty,len=3"`
	SubTotal     decimal.Decimal   `json:"sub_total"`
	Tax          decimal.Decimal   `json:"tax"`
	ShippingCost decimal.Decimal   `json:"shipping_cost"`
	LineItems    []LineItemRequest `json:"line_items" validate:"dive"`
}

// CreatePurchase handles POST /api/v1/purchases
func (h *PurchaseHandler) CreatePurchase(c echo.Context) error {
	var req CreatePurchaseRequest
	if ok, err := bindAndValidate(c, h.logger, &req); !ok {
		return err
	}

	in := usecase.CreatePurchaseInput{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Phone:        req.Phone,
		Shipping:     req.Shipping,
		Billing:      req.Billing,
		Currency:     req.Currency,
		SubTotal:     req.SubTotal,
		Tax:          req.Tax,
		ShippingCost: req.ShippingCost,
	}
	for _, li := range req.LineItems {
		in.LineItems = append(in.LineItems, usecase.LineItemInput(li))
	}

	view, err := h.purchases.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

// GetPurchase handles GET /api/v1/purchases/:id
func (h *PurchaseHandler) GetPurchase(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	view, err := h.purchases.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

type PendingRequest struct {
	Gateway string              `json:"gateway" validate:"required"`
	Amount  decimal.NullDecimal `json:"amount"`
}

// CreatePending handles POST /api/v1/purchases/:id/pending
func (h *PurchaseHandler) CreatePending(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req PendingRequest
	if ok, err := bindAndValidate(c, h.logger, &req); !ok {
		return err
	}

	proc, err := h.registry.Get(req.Gateway)
	if err != nil {
		return err
	}

	pending, err := proc.CreatePendingPayment(c.Request().Context(), id, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, pending)
}

type ProcessRequest struct {
	Gateway string `json:"gateway" validate:"required"`
}

// Process handles POST /api/v1/purchases/:id/process
func (h *PurchaseHandler) Process(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req ProcessRequest
	if ok, err := bindAndValidate(c, h.logger, &req); !ok {
		return err
	}

	proc, err := h.registry.Get(req.Gateway)
	if err != nil {
		return err
	}

	res, err := proc.Process(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return respondResult(c, res)
}

type StoreCardRequest struct {
	Gateway     string `json:"gateway" validate:"required"`
	Token       string `json:"token" validate:"required"`
	LastFour    string `json:"last_four" validate:"required,len=4,numeric"`
	CardType    string `json:"card_type"`
	ExpireMonth int    `json:"expire_month" validate:"omitempty,min=1,max=12"`
	ExpireYear  int    `json:"expire_year" validate:"omitempty,min=2000"`
}

// StoreCard handles POST /api/v1/purchases/:id/cards
func (h *PurchaseHandler) StoreCard(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req StoreCardRequest
	if ok, err := bindAndValidate(c, h.logger, &req); !ok {
		return err
	}

	if _, err := h.registry.Get(req.Gateway); err != nil {
		return err
	}

	card, err := h.cards.StoreCard(c.Request().Context(), usecase.StoreCardInput{
		PurchaseID:  id,
		Gateway:     req.Gateway,
		Token:       req.Token,
		LastFour:    req.LastFour,
		CardType:    req.CardType,
		ExpireMonth: req.ExpireMonth,
		ExpireYear:  req.ExpireYear,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, card)
}
