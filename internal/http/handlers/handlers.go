package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/propertyline/triage/internal/conversation"
	"github.com/propertyline/triage/internal/db"
	"github.com/propertyline/triage/internal/dispatch"
	"github.com/propertyline/triage/internal/escalation"
	"github.com/propertyline/triage/internal/models"
)

type Handler struct {
	Repo      db.Repository
	Agent     *conversation.Agent
	Engine    *dispatch.Engine
	Sweeper   *escalation.Sweeper
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Repo.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeDomainError maps service errors onto the error envelope.
func (h *Handler) writeDomainError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", message, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", message, err.Error())
	case errors.Is(err, models.ErrSessionClosed):
		writeError(c, http.StatusConflict, "SESSION_CLOSED", message, err.Error())
	case errors.Is(err, models.ErrInvalidTransition):
		writeError(c, http.StatusConflict, "INVALID_STATE", message, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(c, http.StatusGatewayTimeout, "TIMEOUT", message, err.Error())
	default:
		h.Logger.Error().Err(err).Str("path", c.FullPath()).Msg(message)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, err.Error())
	}
}
