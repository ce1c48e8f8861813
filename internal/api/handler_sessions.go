package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vacuum-rental-backend/internal/model"
	"vacuum-rental-backend/internal/session"
)

type startSessionRequest struct {
	MachineID       string `json:"machine_id" binding:"required"`
	UserID          string `json:"user_id" binding:"required"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,gt=0"`
	Method          string `json:"method" binding:"required,oneof=pix credit_card admin_credit"`
}

// StartSession handles POST /api/sessions. It creates a pending session and
// its pending transaction; activation happens when the payment confirms.
func (h *Handler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, txn, err := h.sessions.StartSession(c.Request.Context(),
		req.MachineID, req.UserID, req.DurationMinutes, model.PaymentMethod(req.Method))
	switch {
	case errors.Is(err, session.ErrMachineUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "machine or user not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session":     sess,
		"transaction": txn,
	})
}

// GetSession handles GET /api/sessions/:id.
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.store.GetSession(c.Request.Context(), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess)
}

type stopSessionRequest struct {
	Reason string `json:"reason" binding:"omitempty,oneof=user_requested cancelled"`
}

// StopSession handles POST /api/sessions/:id/stop. Idempotent: stopping an
// already-terminal session returns its existing terminal state.
func (h *Handler) StopSession(c *gin.Context) {
	// The body is optional; the reason defaults to user_requested.
	var req stopSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reason := session.ReasonUserRequested
	if req.Reason != "" {
		reason = session.StopReason(req.Reason)
	}

	sess, err := h.sessions.StopSession(c.Request.Context(), c.Param("id"), reason)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	case errors.Is(err, session.ErrSessionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess)
}
