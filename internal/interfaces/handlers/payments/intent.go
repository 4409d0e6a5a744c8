package payments

import (
	"math"

	"nestfind-backend/internal/application/commission"
	txsvc "nestfind-backend/internal/application/transactions"
	"nestfind-backend/internal/domain"
	"nestfind-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

// PaymentIntentCreator abstracts Stripe PaymentIntent creation for testability.
type PaymentIntentCreator interface {
	Create(amountPaise int64, currency string, metadata map[string]string) (*PaymentIntentResult, error)
}

type PaymentIntentResult struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// RealStripeCreator uses the Stripe Go SDK to create PaymentIntents.
type RealStripeCreator struct {
	SecretKey string
}

func (r *RealStripeCreator) Create(amountPaise int64, currency string, metadata map[string]string) (*PaymentIntentResult, error) {
	if r.SecretKey == "" {
		return nil, fiber.NewError(501, "Stripe integration pending")
	}
	stripe.Key = r.SecretKey
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountPaise),
		Currency: stripe.String(currency),
		Metadata: metadata,
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	return &PaymentIntentResult{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

type IntentHandler struct {
	Transactions *txsvc.Service
	Creator      PaymentIntentCreator
}

// CreateSellerIntent POST /api/v1/payments/create-seller-intent — creates the
// PaymentIntent for the seller's platform fee. The transaction id travels in
// the intent metadata so the success webhook can close the loop.
func (h *IntentHandler) CreateSellerIntent(c *fiber.Ctx) error {
	var body struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	txID, err := uuid.Parse(body.TransactionID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for transaction_id", 400, nil)
	}
	if h.Creator == nil {
		return response.Error(c, "Stripe not configured", 500, nil)
	}

	t, err := h.Transactions.Get(c.Context(), txID)
	if err != nil {
		return response.FromError(c, err)
	}
	if t.Status != domain.TxAllVerified {
		return response.FromError(c, &domain.InvalidStateError{Action: "create seller payment intent", From: t.Status})
	}

	split := commission.Compute(t.TotalPrice, t.AgentID != nil && t.BuyerAgentID != nil)
	amountPaise := int64(math.Round(split.PlatformSellerFee * 100))

	pi, err := h.Creator.Create(amountPaise, "inr", map[string]string{
		"transaction_id": t.TxID.String(),
		"seller_id":      t.SellerID.String(),
	})
	if err != nil {
		code := 500
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}
		return response.Error(c, err.Error(), code, nil)
	}

	return response.Success(c, "Payment intent created", fiber.Map{
		"payment_intent_id": pi.ID,
		"client_secret":     pi.ClientSecret,
		"amount_paise":      amountPaise,
	}, nil)
}
