package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/propertyline/triage/internal/db"
	"github.com/propertyline/triage/internal/models"
)

type BatchDispatchRequest struct {
	TicketIDs []string `json:"ticket_ids" validate:"required,min=1,dive,required"`
}

const maxPageSize = 200

type StatusRequest struct {
	Status models.TicketStatus `json:"status" validate:"required,oneof=IN_PROGRESS COMPLETED CANCELLED"`
}

func (h *Handler) TicketsList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > maxPageSize {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	f := db.TicketFilter{
		Status:   models.TicketStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		Category: models.Category(strings.ToLower(strings.TrimSpace(c.Query("category")))),
		Limit:    limit,
		Offset:   offset,
	}
	if raw := c.Query("urgency"); raw != "" {
		u, err := models.ParseUrgency(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown urgency", err.Error())
			return
		}
		f.Urgency = &u
	}

	items, err := h.Repo.ListTickets(c.Request.Context(), f)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list tickets", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "limit": limit, "offset": offset})
}

func (h *Handler) TicketDetails(c *gin.Context) {
	ctx := c.Request.Context()
	ticket, err := h.Repo.GetTicket(ctx, c.Param("id"))
	if err != nil {
		h.writeDomainError(c, "Ticket not found", err)
		return
	}
	notifications, err := h.Repo.ListNotifications(ctx, ticket.ID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load notifications", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ticket":        ticket,
		"reference":     ticket.ReferenceNumber(),
		"notifications": notifications,
	})
}

// @Summary Dispatch a ticket
// @Tags dispatch
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} dispatch.Result
// @Failure 409 {object} map[string]any
// @Router /api/tickets/{id}/dispatch [post]
func (h *Handler) Dispatch(c *gin.Context) {
	res, err := h.Engine.Dispatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeDomainError(c, "Dispatch failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Dispatch several tickets
// @Tags dispatch
// @Accept json
// @Produce json
// @Param body body BatchDispatchRequest true "tickets"
// @Success 200 {object} map[string]any
// @Router /api/dispatch/batch [post]
func (h *Handler) BatchDispatch(c *gin.Context) {
	var req BatchDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	items, err := h.Engine.BatchDispatch(c.Request.Context(), req.TicketIDs)
	if err != nil {
		h.writeDomainError(c, "Batch dispatch failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	t, err := h.Engine.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.writeDomainError(c, "Status update failed", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// @Summary Escalation check
// @Tags escalation
// @Produce json
// @Param id path string true "Ticket ID"
// @Success 200 {object} map[string]any
// @Router /api/tickets/{id}/escalation [get]
func (h *Handler) EscalationCheck(c *gin.Context) {
	esc, err := h.Sweeper.Check(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeDomainError(c, "Escalation check failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ticket_id": esc.TicketID,
		"escalate":  len(esc.Reasons) > 0,
		"reasons":   esc.Reasons,
	})
}

func (h *Handler) EscalationSweep(c *gin.Context) {
	items, err := h.Sweeper.SweepOnce(c.Request.Context())
	if err != nil {
		h.writeDomainError(c, "Escalation sweep failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}
