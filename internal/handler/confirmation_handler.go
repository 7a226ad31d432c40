package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kerane/projectdesk-api/internal/models"
)

type confirmationWorkflow interface {
	Consume(ctx context.Context, token string) (models.ConsumeResult, error)
	Execute(ctx context.Context, payload models.ConfirmationPayload) bool
}

type consumeRecorder interface {
	RecordTokenConsume(result string)
}

// ConfirmationHandler serves the email confirmation landing endpoint. It is
// public: the token itself is the credential.
type ConfirmationHandler struct {
	confirmations confirmationWorkflow
	metrics       consumeRecorder
	frontendURL   string
	logger        *zap.Logger
}

// NewConfirmationHandler constructs ConfirmationHandler.
func NewConfirmationHandler(confirmations confirmationWorkflow, metrics consumeRecorder, frontendURL string, logger *zap.Logger) *ConfirmationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationHandler{confirmations: confirmations, metrics: metrics, frontendURL: frontendURL, logger: logger}
}

// Confirm godoc
// @Summary Confirm an action by token
// @Description Consumes a single-use confirmation token, executes the confirmed action and redirects to the frontend with the outcome.
// @Tags Confirmation
// @Param token query string true "Confirmation token"
// @Success 302
// @Router /confirm-email [get]
func (h *ConfirmationHandler) Confirm(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		h.redirect(c, "missing_token")
		return
	}

	result, err := h.confirmations.Consume(c.Request.Context(), token)
	if err != nil {
		h.logger.Error("token consumption failed", zap.Error(err))
		h.recordConsume("error")
		h.redirect(c, "error")
		return
	}
	if !result.Success {
		h.recordConsume(strings.ToLower(string(result.Reason)))
		h.redirect(c, strings.ToLower(string(result.Reason)))
		return
	}
	h.recordConsume("success")

	if !h.confirmations.Execute(c.Request.Context(), *result.Payload) {
		h.redirect(c, "action_failed")
		return
	}
	h.redirectSuccess(c, result.Payload.Type)
}

func (h *ConfirmationHandler) redirect(c *gin.Context, reason string) {
	c.Redirect(http.StatusFound, fmt.Sprintf("%s/confirmation?status=failed&reason=%s", h.frontendURL, reason))
}

func (h *ConfirmationHandler) redirectSuccess(c *gin.Context, confirmType models.ConfirmationType) {
	c.Redirect(http.StatusFound, fmt.Sprintf("%s/confirmation?status=success&type=%s", h.frontendURL, confirmType))
}

func (h *ConfirmationHandler) recordConsume(result string) {
	if h.metrics != nil {
		h.metrics.RecordTokenConsume(result)
	}
}
