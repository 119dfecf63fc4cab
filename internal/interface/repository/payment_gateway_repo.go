package repository

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"booking-engine/internal/domain/entity"
	"booking-engine/internal/domain/repository"
	"booking-engine/pkg/logger"
	"booking-engine/pkg/utils"
)

// HTTPPaymentGatewayRepository talks to the internal payment gateway
type HTTPPaymentGatewayRepository struct {
	logger      logger.Logger
	baseURL     string
	gatewaySlug string
	client      *http.Client
}

// NewHTTPPaymentGatewayRepository creates a payment gateway repository
func NewHTTPPaymentGatewayRepository(baseURL, gatewaySlug string, client *http.Client, logger logger.Logger) repository.PaymentGatewayRepository {
	if gatewaySlug == "" {
		gatewaySlug = "sandbox"
	}
	return &HTTPPaymentGatewayRepository{
		logger:      logger,
		baseURL:     strings.TrimRight(baseURL, "/"),
		gatewaySlug: gatewaySlug,
		client:      client,
	}
}

type gatewayTransactionRequest struct {
	InvoiceID    string `json:"invoiceId"`
	Amount       int64  `json:"amount"`
	MobileNumber string `json:"mobileNumber,omitempty"`
	Email        string `json:"email,omitempty"`
	CallbackURL  string `json:"callbackUrl"`
	Description  string `json:"description,omitempty"`
}

type gatewayTransaction struct {
	TransactionID string `json:"transactionId"`
	InvoiceID     string `json:"invoiceId"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	GatewaySlug   string `json:"gatewaySlug"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

type gatewayPaymentLink struct {
	PaymentURL    string `json:"paymentUrl"`
	TransactionID string `json:"transactionId"`
	GatewaySlug   string `json:"gatewaySlug"`
}

// CreateTransaction opens a new transaction for an invoice
func (r *HTTPPaymentGatewayRepository) CreateTransaction(ctx context.Context, req entity.TransactionRequest) (*entity.Transaction, error) {
	r.logger.Info("Creating payment transaction", "invoiceID", req.InvoiceID, "amount", req.Amount)

	var resp gatewayTransaction
	err := doJSON(ctx, r.client, "payment gateway", http.MethodPost, r.baseURL+"/new", gatewayTransactionRequest{
		InvoiceID:    req.InvoiceID,
		Amount:       req.Amount,
		MobileNumber: req.MobileNumber,
		Email:        req.Email,
		CallbackURL:  req.CallbackURL,
		Description:  req.Description,
	}, &resp, "", "")
	if err != nil {
		return nil, fmt.Errorf("failed to create payment transaction: %w", err)
	}

	r.logger.Info("Payment transaction created",
		"transactionID", resp.TransactionID,
		"invoiceID", resp.InvoiceID,
		"status", resp.Status)
	return resp.toEntity(), nil
}

// PaymentLink returns the payment page for a transaction
func (r *HTTPPaymentGatewayRepository) PaymentLink(ctx context.Context, transactionID string) (*entity.PaymentLink, error) {
	endpoint := fmt.Sprintf("%s/pay/%s?gateway=%s", r.baseURL, url.PathEscape(transactionID), url.QueryEscape(r.gatewaySlug))

	var resp gatewayPaymentLink
	if err := doJSON(ctx, r.client, "payment gateway", http.MethodPost, endpoint, nil, &resp, "transaction", transactionID); err != nil {
		return nil, fmt.Errorf("failed to get payment link: %w", err)
	}
	if resp.TransactionID == "" {
		resp.TransactionID = transactionID
	}
	return &entity.PaymentLink{
		PaymentURL:    resp.PaymentURL,
		TransactionID: resp.TransactionID,
		GatewaySlug:   resp.GatewaySlug,
	}, nil
}

// Inquire returns the gateway's current view of a transaction
func (r *HTTPPaymentGatewayRepository) Inquire(ctx context.Context, transactionID string) (*entity.Transaction, error) {
	endpoint := fmt.Sprintf("%s/inquiry/%s", r.baseURL, url.PathEscape(transactionID))

	var resp gatewayTransaction
	if err := doJSON(ctx, r.client, "payment gateway", http.MethodGet, endpoint, nil, &resp, "transaction", transactionID); err != nil {
		return nil, fmt.Errorf("failed to inquire transaction: %w", err)
	}
	if resp.TransactionID == "" {
		resp.TransactionID = transactionID
	}

	r.logger.Info("Transaction inquiry successful",
		"transactionID", resp.TransactionID,
		"status", resp.Status)
	return resp.toEntity(), nil
}

func (t gatewayTransaction) toEntity() *entity.Transaction {
	return &entity.Transaction{
		TransactionID: t.TransactionID,
		InvoiceID:     t.InvoiceID,
		Amount:        t.Amount,
		Status:        t.Status,
		GatewaySlug:   t.GatewaySlug,
		CreatedAt:     parseGatewayTime(t.CreatedAt),
		UpdatedAt:     parseGatewayTime(t.UpdatedAt),
	}
}

// parseGatewayTime returns the zero time for missing or unparsable values
func parseGatewayTime(s string) time.Time {
	t, err := utils.ParseDateTime(s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
