package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/propertyline/triage/internal/models"
)

func (h *Handler) TechniciansList(c *gin.Context) {
	items, err := h.Repo.ListTechnicians(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list technicians", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// @Summary Create or update a technician
// @Tags technicians
// @Accept json
// @Produce json
// @Param id path string true "Technician ID"
// @Param body body models.Technician true "technician"
// @Success 200 {object} models.Technician
// @Router /api/technicians/{id} [put]
func (h *Handler) UpsertTechnician(c *gin.Context) {
	var t models.Technician
	if err := c.ShouldBindJSON(&t); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	t.ID = c.Param("id")
	if err := h.Validator.Struct(t); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	if err := h.Repo.UpsertTechnician(c.Request.Context(), t); err != nil {
		h.writeDomainError(c, "Failed to save technician", err)
		return
	}
	saved, err := h.Repo.GetTechnician(c.Request.Context(), t.ID)
	if err != nil {
		h.writeDomainError(c, "Failed to load technician", err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// @Summary Release a technician
// @Description Completes the technician's current ticket and returns them to the pool.
// @Tags technicians
// @Produce json
// @Param id path string true "Technician ID"
// @Success 200 {object} map[string]any
// @Router /api/technicians/{id}/release [post]
func (h *Handler) ReleaseTechnician(c *gin.Context) {
	completed, err := h.Engine.Release(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeDomainError(c, "Release failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "completed_ticket": completed})
}
