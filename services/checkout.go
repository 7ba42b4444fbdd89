package services

import (
	"context"
	"fmt"
	"math"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"go.uber.org/zap"

	appConfig "github.com/echelonmarket/echelon-api/config"
)

// CheckoutInput describes the order a payment session is created for.
type CheckoutInput struct {
	OrderID       uint
	OrderType     string
	ProductName   string
	Quantity      int
	Total         float64
	CustomerEmail string
}

// CheckoutSession is the created payment session the buyer completes.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutService creates payment sessions at order placement.
type CheckoutService interface {
	CreateSession(ctx context.Context, input CheckoutInput) (*CheckoutSession, error)
}

// StripeCheckout creates Stripe Checkout sessions.
type StripeCheckout struct {
	successURL string
	cancelURL  string
	logger     *zap.Logger
}

// NewStripeCheckout configures the Stripe client and returns the
// checkout service.
func NewStripeCheckout(cfg *appConfig.Config, logger *zap.Logger) *StripeCheckout {
	stripe.Key = cfg.StripeSecretKey
	return &StripeCheckout{
		successURL: cfg.CheckoutSuccessURL,
		cancelURL:  cfg.CheckoutCancelURL,
		logger:     logger,
	}
}

func (s *StripeCheckout) CreateSession(ctx context.Context, input CheckoutInput) (*CheckoutSession, error) {
	s.logger.Debug("creating checkout session",
		zap.Uint("order_id", input.OrderID),
		zap.String("order_type", input.OrderType),
		zap.Float64("total", input.Total))

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.successURL),
		CancelURL:  stripe.String(s.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(string(stripe.CurrencyUSD)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(input.ProductName),
					},
					UnitAmount: stripe.Int64(toCents(input.Total)),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if input.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(input.CustomerEmail)
	}
	params.AddMetadata("order_id", fmt.Sprintf("%d", input.OrderID))
	params.AddMetadata("order_type", input.OrderType)

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// toCents converts a price to the smallest currency unit.
func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

var checkoutInstance CheckoutService

// InitCheckout builds the global checkout service. Without a Stripe
// key, payment is skipped and orders are placed without a session.
func InitCheckout(cfg *appConfig.Config, logger *zap.Logger) CheckoutService {
	if cfg.StripeSecretKey == "" {
		checkoutInstance = nil
		return nil
	}
	checkoutInstance = NewStripeCheckout(cfg, logger)
	return checkoutInstance
}

// GetCheckoutService returns the initialized checkout service, or nil
// when payment is not configured.
func GetCheckoutService() CheckoutService {
	return checkoutInstance
}

// SetCheckoutService sets the checkout service instance (primarily for testing)
func SetCheckoutService(s CheckoutService) {
	checkoutInstance = s
}
