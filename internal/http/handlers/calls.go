package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/propertyline/triage/internal/conversation"
	"github.com/propertyline/triage/internal/models"
)

type StartCallRequest struct {
	CallID string `json:"call_id"`
	Phone  string `json:"phone" validate:"required"`
}

type UtteranceRequest struct {
	Text string `json:"text"`
}

// @Summary Start a call
// @Tags calls
// @Accept json
// @Produce json
// @Param body body StartCallRequest true "caller"
// @Success 201 {object} conversation.TurnResult
// @Router /api/calls [post]
func (h *Handler) StartCall(c *gin.Context) {
	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	res, err := h.Agent.Start(c.Request.Context(), req.CallID, req.Phone)
	if err != nil {
		h.writeDomainError(c, "Failed to start call", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// @Summary Send a tenant utterance
// @Description An empty utterance returns 400 with the re-prompt text in details.
// @Tags calls
// @Accept json
// @Produce json
// @Param id path string true "Call ID"
// @Param body body UtteranceRequest true "utterance"
// @Success 200 {object} conversation.TurnResult
// @Failure 400 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/calls/{id}/utterances [post]
func (h *Handler) Utterance(c *gin.Context) {
	var req UtteranceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	res, err := h.Agent.HandleUtterance(c.Request.Context(), c.Param("id"), req.Text)
	if errors.Is(err, models.ErrValidation) {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Utterance is empty", gin.H{"reprompt": conversation.RepromptMessage})
		return
	}
	if err != nil {
		h.writeDomainError(c, "Failed to process utterance", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Hang up a call
// @Tags calls
// @Produce json
// @Param id path string true "Call ID"
// @Success 200 {object} map[string]any
// @Router /api/calls/{id}/hangup [post]
func (h *Handler) Hangup(c *gin.Context) {
	if err := h.Agent.Hangup(c.Request.Context(), c.Param("id")); err != nil {
		h.writeDomainError(c, "Failed to hang up", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Call details
// @Tags calls
// @Produce json
// @Param id path string true "Call ID"
// @Success 200 {object} models.CallSession
// @Router /api/calls/{id} [get]
func (h *Handler) CallDetails(c *gin.Context) {
	call, err := h.Repo.GetCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeDomainError(c, "Call not found", err)
		return
	}
	c.JSON(http.StatusOK, call)
}
