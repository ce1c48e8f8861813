package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// webhookPayload is the provider-defined notification shape: an event type
// plus the payment identifier it refers to.
type webhookPayload struct {
	Type string `json:"type" binding:"required"`
	Data struct {
		ID string `json:"id" binding:"required"`
	} `json:"data" binding:"required"`
}

// PaymentWebhook handles POST /webhooks/payment. Once the payload is
// syntactically valid the response is 200 regardless of business outcome;
// anything else triggers gateway redelivery storms. Failures are logged and
// left to later deliveries or the sweeper.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.payments.Process(c.Request.Context(), payload.Data.ID); err != nil {
		log.Printf("webhook: %s for payment %s not applied: %v", payload.Type, payload.Data.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
