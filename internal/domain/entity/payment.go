package entity

import (
	"strings"
	"time"
)

// TransactionStatus is a gateway status normalized to what reconciliation acts on
type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "PENDING"
	TransactionSuccess  TransactionStatus = "SUCCESS"
	TransactionFailed   TransactionStatus = "FAILED"
	TransactionCanceled TransactionStatus = "CANCELED"
	TransactionUnknown  TransactionStatus = "UNKNOWN"
)

// MinTransactionAmount is the smallest chargeable amount in minor units
const MinTransactionAmount int64 = 1000

// NormalizeTransactionStatus maps raw gateway strings case-insensitively
func NormalizeTransactionStatus(raw string) TransactionStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "SUCCESSFUL", "COMPLETED", "PAID":
		return TransactionSuccess
	case "FAILED", "FAILURE", "ERROR":
		return TransactionFailed
	case "CANCELED", "CANCELLED":
		return TransactionCanceled
	case "PENDING", "PROCESSING", "CREATED", "":
		return TransactionPending
	}
	return TransactionUnknown
}

// Transaction is a payment gateway transaction
type Transaction struct {
	TransactionID string
	InvoiceID     string
	Amount        int64
	Status        string
	GatewaySlug   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NormalizedStatus returns the reconciliation view of the raw gateway status
func (t *Transaction) NormalizedStatus() TransactionStatus {
	return NormalizeTransactionStatus(t.Status)
}

// TransactionRequest is sent to the gateway to open a transaction
type TransactionRequest struct {
	InvoiceID    string
	Amount       int64
	MobileNumber string
	Email        string
	CallbackURL  string
	Description  string
}

// PaymentLink is where a renter completes payment
type PaymentLink struct {
	PaymentURL    string
	TransactionID string
	GatewaySlug   string
}
