package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"waste-portal/internal/backend"
	"waste-portal/internal/dashboard"
	"waste-portal/internal/form"
	"waste-portal/internal/validate"
)

// respondError maps an operation error to its status and the message the
// user sees. The cause is always logged.
func respondError(c *gin.Context, err error) {
	status, body := classify(err)
	_ = c.Error(err)

	attrs := []any{"path", c.FullPath(), "status", status, "error", err}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", attrs...)
	} else {
		slog.DebugContext(c.Request.Context(), "request rejected", attrs...)
	}
	c.JSON(status, body)
}

func classify(err error) (int, gin.H) {
	var (
		ve *validate.Error
		re *form.RejectError
		fe *form.Error
		de *dashboard.Error
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, gin.H{"error": ve.Reason, "field": ve.Field}
	case errors.As(err, &re):
		return http.StatusUnprocessableEntity, gin.H{"error": re.Message, "field": re.Field}
	case errors.Is(err, form.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, gin.H{"error": form.MsgPayloadTooLarge}
	case errors.Is(err, dashboard.ErrDuplicatePayment),
		errors.Is(err, form.ErrSubmitInProgress),
		errors.Is(err, form.ErrNotLoaded),
		errors.Is(err, form.ErrSuperseded):
		return http.StatusConflict, gin.H{"error": err.Error()}
	case errors.Is(err, dashboard.ErrUserRequired), errors.Is(err, dashboard.ErrNegativeFee):
		return http.StatusUnprocessableEntity, gin.H{"error": err.Error()}
	case errors.Is(err, dashboard.ErrPaymentNotFound):
		return http.StatusNotFound, gin.H{"error": err.Error()}
	case errors.Is(err, backend.ErrInvalidID):
		return http.StatusBadRequest, gin.H{"error": "invalid id"}
	case errors.As(err, &fe):
		return http.StatusBadGateway, gin.H{"error": fe.Message}
	case errors.As(err, &de):
		return http.StatusBadGateway, gin.H{"error": de.Message}
	case errors.Is(err, dashboard.ErrClosed), errors.Is(err, form.ErrClosed):
		return http.StatusServiceUnavailable, gin.H{"error": "session expired, please reload"}
	}
	return http.StatusInternalServerError, gin.H{"error": "internal server error"}
}
