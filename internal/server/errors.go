package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/soundhaven/soundhaven/internal/payment/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	case errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrUnknownItemType),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case errors.Is(err, paymentdomain.ErrMissingTransactionID):
		return http.StatusBadRequest, errorPayload{
			Type:    "missing_transaction_id",
			Message: "event carries no transaction reference",
		}
	case errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, paymentdomain.ErrInvalidProvider):
		return http.StatusNotFound, errorPayload{
			Type:    "provider_not_found",
			Message: "unknown payment provider",
		}
	case errors.Is(err, paymentdomain.ErrTransactionNotFound),
		errors.Is(err, ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrNotRefundable):
		return http.StatusConflict, errorPayload{
			Type:    "not_refundable",
			Message: "transaction is not in a refundable state",
		}
	case errors.Is(err, paymentdomain.ErrGatewayError):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment provider request failed",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
