package usecase

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	domainErrors "github.com/wekeepgrowing/bursar/internal/domain/errors"
	"github.com/wekeepgrowing/bursar/internal/domain/gateway"
	"github.com/wekeepgrowing/bursar/internal/domain/model"
	domainRepo "github.com/wekeepgrowing/bursar/internal/domain/repository"
	"github.com/wekeepgrowing/bursar/internal/infrastructure/crypto"
)

var lastFourPattern = regexp.MustCompile(`^[0-9]{4}$`)

// StoreCardInput is a gateway card token with its display details.
type StoreCardInput struct {
	PurchaseID  int64
	Gateway     string
	Token       string
	LastFour    string
	CardType    string
	ExpireMonth int
	ExpireYear  int
}

// CardVault keeps gateway card tokens sealed and hands them to processors.
type CardVault struct {
	repo   domainRepo.CreditCardRepository
	ledger domainRepo.LedgerRepository
	cipher crypto.Cipher
	logger *zap.Logger
}

func NewCardVault(
	repo domainRepo.CreditCardRepository,
	ledger domainRepo.LedgerRepository,
	cipher crypto.Cipher,
	logger *zap.Logger,
) *CardVault {
	return &CardVault{
		repo:   repo,
		ledger: ledger,
		cipher: cipher,
		logger: logger,
	}
}

// StoreCard seals the token and attaches the card to the purchase. The
// newest card of a purchase is the one charged.
func (v *CardVault) StoreCard(ctx context.Context, in StoreCardInput) (*model.CreditCard, error) {
	if in.Token == "" || !lastFourPattern.MatchString(in.LastFour) {
		return nil, domainErrors.NewValidationError(in.PurchaseID, in.Gateway, fmt.Errorf("card token and last four digits are required"))
	}

	purchase, err := v.ledger.GetPurchase(ctx, in.PurchaseID)
	if err != nil {
		return nil, err
	}
	if purchase == nil {
		return nil, domainErrors.NewValidationError(in.PurchaseID, in.Gateway, domainErrors.ErrPurchaseNotFound)
	}

	sealed, nonce, err := v.cipher.Seal(in.Token, cardContext(in.PurchaseID, in.Gateway))
	if err != nil {
		v.logger.Error("Failed to seal card token",
			zap.Int64("purchase_id", in.PurchaseID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to seal card token: %w", err)
	}

	card := &model.CreditCard{
		PurchaseID:     in.PurchaseID,
		Gateway:        in.Gateway,
		CardType:       in.CardType,
		LastFour:       in.LastFour,
		ExpireMonth:    in.ExpireMonth,
		ExpireYear:     in.ExpireYear,
		EncryptedToken: sealed,
		EncryptionIV:   nonce,
	}
	if err := v.repo.Create(ctx, card); err != nil {
		return nil, err
	}

	v.logger.Info("Card stored",
		zap.Int64("purchase_id", in.PurchaseID),
		zap.String("gateway", in.Gateway),
		zap.String("last_four", in.LastFour))

	return card, nil
}

// CardForPurchase opens the newest card of a purchase. It returns nil when
// there is none.
func (v *CardVault) CardForPurchase(ctx context.Context, purchaseID int64) (*gateway.Card, error) {
	card, err := v.repo.GetLatestByPurchase(ctx, purchaseID)
	if err != nil || card == nil {
		return nil, err
	}

	token, err := v.cipher.Open(card.EncryptedToken, card.EncryptionIV, cardContext(card.PurchaseID, card.Gateway))
	if err != nil {
		v.logger.Error("Failed to open card token",
			zap.Int64("purchase_id", purchaseID),
			zap.Int64("card_id", card.ID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to open card token: %w", err)
	}

	return &gateway.Card{
		Token:       token,
		LastFour:    card.LastFour,
		CardType:    card.CardType,
		ExpireMonth: card.ExpireMonth,
		ExpireYear:  card.ExpireYear,
	}, nil
}

// CopyCard reseals the newest card of one purchase onto another. It
// reports false when the source has no card.
func (v *CardVault) CopyCard(ctx context.Context, fromPurchaseID, toPurchaseID int64) (bool, error) {
	src, err := v.repo.GetLatestByPurchase(ctx, fromPurchaseID)
	if err != nil || src == nil {
		return false, err
	}

	card, err := v.CardForPurchase(ctx, fromPurchaseID)
	if err != nil {
		return false, err
	}

	_, err = v.StoreCard(ctx, StoreCardInput{
		PurchaseID:  toPurchaseID,
		Gateway:     src.Gateway,
		Token:       card.Token,
		LastFour:    card.LastFour,
		CardType:    card.CardType,
		ExpireMonth: card.ExpireMonth,
		ExpireYear:  card.ExpireYear,
	})
	return err == nil, err
}

func cardContext(purchaseID int64, gatewayKey string) string {
	return fmt.Sprintf("card:%s:%d", gatewayKey, purchaseID)
}
