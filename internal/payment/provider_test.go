package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vacuum-rental-backend/config"
	"vacuum-rental-backend/internal/model"
)

func newProvider(t *testing.T, serverURL string) *HTTPProvider {
	t.Helper()
	return NewHTTPProvider(&config.PaymentConfig{
		BaseURL:       serverURL,
		APIToken:      "test-token",
		Timeout:       2 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	})
}

func TestGetPaymentStatusRetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "ext-1", "status": "approved"})
	}))
	defer server.Close()

	status, err := newProvider(t, server.URL).GetPaymentStatus(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionApproved, status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetPaymentStatusGivesUpAfterBoundedAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newProvider(t, server.URL).GetPaymentStatus(context.Background(), "ext-1")
	assert.ErrorIs(t, err, ErrTransientProvider)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetPaymentStatusUnknownPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newProvider(t, server.URL).GetPaymentStatus(context.Background(), "ext-gone")
	assert.ErrorIs(t, err, ErrUnknownPayment)
}

func TestGetPaymentStatusRejectsUnrecognizedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "ext-1", "status": "weird"})
	}))
	defer server.Close()

	_, err := newProvider(t, server.URL).GetPaymentStatus(context.Background(), "ext-1")
	assert.Error(t, err)
}

func TestCreatePayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "u1", req["user_id"])
		assert.Equal(t, float64(1000), req["amount"])
		assert.Equal(t, "pix", req["method"])

		json.NewEncoder(w).Encode(map[string]string{"id": "ext-99", "status": "pending"})
	}))
	defer server.Close()

	id, err := newProvider(t, server.URL).CreatePayment(context.Background(), "u1", 1000, model.MethodPix)
	require.NoError(t, err)
	assert.Equal(t, "ext-99", id)
}
