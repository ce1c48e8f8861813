package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"vacuum-rental-backend/config"
	"vacuum-rental-backend/internal/model"
)

// Provider is the external payment gateway, reduced to the two reads/writes
// this engine needs: opening a payment and fetching its authoritative status.
type Provider interface {
	CreatePayment(ctx context.Context, userID string, amountCents int64, method model.PaymentMethod) (string, error)
	GetPaymentStatus(ctx context.Context, externalID string) (model.TransactionStatus, error)
}

// HTTPProvider talks to the gateway's REST API with a bounded timeout and
// retry-on-transient-failure.
type HTTPProvider struct {
	baseURL  string
	token    string
	client   *http.Client
	attempts int
	backoff  time.Duration
}

// NewHTTPProvider builds a provider client from configuration.
func NewHTTPProvider(cfg *config.PaymentConfig) *HTTPProvider {
	return &HTTPProvider{
		baseURL:  cfg.BaseURL,
		token:    cfg.APIToken,
		client:   &http.Client{Timeout: cfg.Timeout},
		attempts: cfg.RetryAttempts,
		backoff:  cfg.RetryBackoff,
	}
}

type createPaymentRequest struct {
	UserID      string `json:"user_id"`
	AmountCents int64  `json:"amount"`
	Method      string `json:"method"`
}

type paymentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreatePayment opens a payment attempt at the gateway and returns the
// provider-assigned payment identifier.
func (p *HTTPProvider) CreatePayment(ctx context.Context, userID string, amountCents int64, method model.PaymentMethod) (string, error) {
	body, err := json.Marshal(createPaymentRequest{
		UserID:      userID,
		AmountCents: amountCents,
		Method:      string(method),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment request: %w", err)
	}

	var resp paymentResponse
	err = p.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/payments", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("provider returned empty payment id")
	}
	return resp.ID, nil
}

// GetPaymentStatus fetches the authoritative status for a payment.
func (p *HTTPProvider) GetPaymentStatus(ctx context.Context, externalID string) (model.TransactionStatus, error) {
	var resp paymentResponse
	err := p.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/payments/"+externalID, nil)
	}, &resp)
	if err != nil {
		return "", err
	}

	switch model.TransactionStatus(resp.Status) {
	case model.TransactionPending, model.TransactionApproved,
		model.TransactionRejected, model.TransactionCancelled:
		return model.TransactionStatus(resp.Status), nil
	}
	return "", fmt.Errorf("provider returned unrecognized status %q for payment %s", resp.Status, externalID)
}

// doWithRetry issues the request up to the configured attempt count, backing
// off between attempts. Network errors and 5xx responses are retried; 404 is
// an unknown payment; other 4xx are final.
func (p *HTTPProvider) doWithRetry(ctx context.Context, newReq func() (*http.Request, error), out any) error {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff * time.Duration(attempt-1)):
			}
		}

		req, err := newReq()
		if err != nil {
			return err
		}
		if p.token != "" {
			req.Header.Set("Authorization", "Bearer "+p.token)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = err
			log.Printf("payment provider: attempt %d/%d failed: %v", attempt, p.attempts, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: provider has no payment for this id", ErrUnknownPayment)
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("provider returned %d", resp.StatusCode)
			log.Printf("payment provider: attempt %d/%d got status %d", attempt, p.attempts, resp.StatusCode)
			continue
		case resp.StatusCode >= 400:
			return fmt.Errorf("provider rejected request with %d: %s", resp.StatusCode, body)
		}

		if readErr != nil {
			lastErr = readErr
			continue
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransientProvider, lastErr)
}
