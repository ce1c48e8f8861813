package model

import "time"

// PaymentMethod is a closed set of ways a transaction can be settled.
type PaymentMethod string

const (
	MethodPix         PaymentMethod = "pix"
	MethodCreditCard  PaymentMethod = "credit_card"
	MethodAdminCredit PaymentMethod = "admin_credit"
)

// TransactionStatus is the settlement state of a payment attempt.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionApproved  TransactionStatus = "approved"
	TransactionRejected  TransactionStatus = "rejected"
	TransactionCancelled TransactionStatus = "cancelled"
)

// Terminal reports whether the status admits no further mutation.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionApproved || s == TransactionRejected || s == TransactionCancelled
}

// Transaction records one payment attempt. ExternalPaymentID is assigned by
// the payment provider and is the idempotency key for webhook processing:
// every mutation keyed by it happens at most once. Amounts are integer cents
// to keep the arithmetic exact.
type Transaction struct {
	ID                string            `gorm:"primaryKey;size:36" json:"id"`
	UserID            string            `gorm:"size:36;not null;index" json:"userId"`
	ExternalPaymentID string            `gorm:"uniqueIndex;size:64;not null" json:"externalPaymentId"`
	AmountCents       int64             `gorm:"not null" json:"amountCents"`
	Method            PaymentMethod     `gorm:"size:16;not null" json:"method"`
	Status            TransactionStatus `gorm:"size:16;not null;index" json:"status"`
	SessionID         *string           `gorm:"size:36;index" json:"sessionId"`
	CreatedAt         time.Time         `json:"createdAt"`
}
