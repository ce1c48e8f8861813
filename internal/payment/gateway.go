package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vacuum-rental-backend/internal/model"
)

// Gateway applies the per-method resolution over the external provider. The
// method set is closed: pix and credit_card settle through the provider,
// admin_credit settles locally and never leaves the process.
type Gateway struct {
	provider Provider
}

// NewGateway wraps a provider with method dispatch.
func NewGateway(provider Provider) *Gateway {
	return &Gateway{provider: provider}
}

// CreatePayment opens a payment attempt and returns the external payment
// identifier later referenced by webhooks.
func (g *Gateway) CreatePayment(ctx context.Context, userID string, amountCents int64, method model.PaymentMethod) (string, error) {
	switch method {
	case model.MethodPix, model.MethodCreditCard:
		return g.provider.CreatePayment(ctx, userID, amountCents, method)
	case model.MethodAdminCredit:
		// Operator-granted credit has no gateway counterpart; the id is
		// minted locally so the transaction still has a unique key.
		return "admin-" + uuid.NewString(), nil
	}
	return "", fmt.Errorf("unsupported payment method %q", method)
}

// ResolveStatus fetches the authoritative settlement status for a
// transaction, per method variant.
func (g *Gateway) ResolveStatus(ctx context.Context, txn *model.Transaction) (model.TransactionStatus, error) {
	switch txn.Method {
	case model.MethodPix, model.MethodCreditCard:
		return g.provider.GetPaymentStatus(ctx, txn.ExternalPaymentID)
	case model.MethodAdminCredit:
		return model.TransactionApproved, nil
	}
	return "", fmt.Errorf("unsupported payment method %q", txn.Method)
}

// LookupStatus asks the provider about a payment id with no local record.
func (g *Gateway) LookupStatus(ctx context.Context, externalID string) (model.TransactionStatus, error) {
	return g.provider.GetPaymentStatus(ctx, externalID)
}
