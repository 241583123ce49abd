// internal/provider/stripe.go
package provider

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/refund"

	"github.com/hanbitmall/mall-backend/internal/config"
	"github.com/hanbitmall/mall-backend/internal/models"
)

type StripeGateway struct {
	config *config.Config
}

func NewStripeGateway(cfg *config.Config) *StripeGateway {
	// Initialize Stripe
	stripe.Key = cfg.Payment.StripeSecretKey

	return &StripeGateway{config: cfg}
}

func (g *StripeGateway) Name() models.PaymentProvider {
	return models.PaymentProviderStripe
}

func (g *StripeGateway) Confirm(ctx context.Context, providerKey, orderNumber string, amount decimal.Decimal) (*Result, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(providerKey, params)
	if err != nil {
		return nil, stripeErr("failed to get payment intent", err)
	}

	if pi.Amount != toMinorUnits(amount) {
		return nil, wrapErr("amount_mismatch", "provider amount does not match the payment stub", nil)
	}

	return resultFromIntent(pi), nil
}

func (g *StripeGateway) Cancel(ctx context.Context, providerKey string, amount decimal.Decimal, reason string) (*Result, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(providerKey),
		Amount:        stripe.Int64(toMinorUnits(amount)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		return nil, stripeErr("failed to refund payment intent", err)
	}

	return &Result{
		ProviderKey:    providerKey,
		Status:         models.PaymentStatusCanceled,
		TransactionKey: r.ID,
		Raw: map[string]interface{}{
			"refund_id": r.ID,
			"status":    string(r.Status),
			"reason":    reason,
		},
	}, nil
}

func (g *StripeGateway) Retrieve(ctx context.Context, providerKey string) (*Result, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(providerKey, params)
	if err != nil {
		return nil, stripeErr("failed to get payment intent", err)
	}

	return resultFromIntent(pi), nil
}

func resultFromIntent(pi *stripe.PaymentIntent) *Result {
	res := &Result{
		ProviderKey:    pi.ID,
		Status:         normalizeIntentStatus(pi.Status),
		TransactionKey: pi.ID,
		Raw: map[string]interface{}{
			"payment_intent_id": pi.ID,
			"status":            string(pi.Status),
			"amount":            pi.Amount,
			"currency":          string(pi.Currency),
		},
	}
	if pi.LatestCharge != nil {
		res.TransactionKey = pi.LatestCharge.ID
		res.ReceiptURL = pi.LatestCharge.ReceiptURL
		if pi.LatestCharge.PaymentMethodDetails != nil {
			res.Method = string(pi.LatestCharge.PaymentMethodDetails.Type)
		}
	}
	return res
}

func normalizeIntentStatus(status stripe.PaymentIntentStatus) models.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentStatusPaid
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation:
		return models.PaymentStatusInProgress
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusRequiresCapture:
		return models.PaymentStatusWaitingForDeposit
	case stripe.PaymentIntentStatusCanceled:
		return models.PaymentStatusCanceled
	default:
		return models.PaymentStatusFailed
	}
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}

func stripeErr(message string, err error) *Error {
	if serr, ok := err.(*stripe.Error); ok {
		return wrapErr(string(serr.Code), serr.Msg, err)
	}
	return wrapErr("", message, err)
}
