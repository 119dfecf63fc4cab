package entity

import "time"

// Audit actions
const (
	AuditCreate            = "create"
	AuditConfirm           = "confirm"
	AuditPaymentConfirm    = "payment_confirm"
	AuditStart             = "start"
	AuditComplete          = "complete"
	AuditCancel            = "cancel"
	AuditReject            = "reject"
	AuditExpire            = "expire"
	AuditAutoComplete      = "auto_complete"
	AuditCorrectCompletion = "correct_completion"
	AuditTransactionLinked = "transaction_linked"
)

// Actors that are not end users
const (
	ActorSystem     = "system"
	ActorReconciler = "expiry-reconciler"
	ActorPayment    = "payment-reconciliation"
)

// AuditRecord is an append-only trail entry for a booking change
type AuditRecord struct {
	ID            string            `bson:"_id,omitempty" json:"id"`
	BookingID     uint              `bson:"bookingId" json:"bookingId"`
	BookingNumber string            `bson:"bookingNumber" json:"bookingNumber"`
	Action        string            `bson:"action" json:"action"`
	FromStatus    BookingStatus     `bson:"fromStatus,omitempty" json:"fromStatus,omitempty"`
	ToStatus      BookingStatus     `bson:"toStatus" json:"toStatus"`
	Actor         string            `bson:"actor" json:"actor"`
	Reason        string            `bson:"reason,omitempty" json:"reason,omitempty"`
	Version       int64             `bson:"version" json:"version"`
	Metadata      map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	At            time.Time         `bson:"at" json:"at"`
}
