package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/soundhaven/soundhaven/internal/payment/domain"
)

const maxWebhookBody = 1 << 20

// handleWebhook accepts one provider delivery. Duplicates get a 200 so the
// provider stops retrying; verification and payload failures get a 4xx; a
// storage failure gets a 5xx and the provider redelivers.
func (s *Server) handleWebhook(c *gin.Context) {
	provider := c.Param("provider")

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPayload)
		return
	}

	err = s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getWebhookEvent reads one idempotency ledger row, the record operators
// reconcile against provider dashboards when a delivery is disputed.
func (s *Server) getWebhookEvent(c *gin.Context) {
	provider := c.Param("provider")
	eventID := c.Param("event_id")

	event, err := s.events.Find(c.Request.Context(), s.db, provider, eventID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if event == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"event": event})
}
