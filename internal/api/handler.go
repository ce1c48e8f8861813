package api

import (
	"vacuum-rental-backend/internal/payment"
	"vacuum-rental-backend/internal/realtime"
	"vacuum-rental-backend/internal/session"
	"vacuum-rental-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	sessions *session.Manager
	payments *payment.ConfirmationHandler
	hub      *realtime.Hub
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, sessions *session.Manager, payments *payment.ConfirmationHandler, hub *realtime.Hub) *Handler {
	return &Handler{
		store:    s,
		sessions: sessions,
		payments: payments,
		hub:      hub,
	}
}
