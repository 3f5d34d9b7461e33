package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assign-override-api/internal/middleware"
	"github.com/noah-isme/assign-override-api/internal/models"
	"github.com/noah-isme/assign-override-api/internal/service"
	appErrors "github.com/noah-isme/assign-override-api/pkg/errors"
	"github.com/noah-isme/assign-override-api/pkg/response"
)

type overrideService interface {
	EditFromRequest(assignmentID, overrideID string, req service.SaveOverrideRequest) (models.OverrideEdit, error)
	Get(ctx context.Context, id string) (*models.Override, error)
	List(ctx context.Context, assignmentID string) ([]models.Override, error)
	Save(ctx context.Context, edit models.OverrideEdit) (*models.Override, error)
	Duplicate(ctx context.Context, overrideID string, req service.DuplicateOverrideRequest) (*models.Override, error)
	Delete(ctx context.Context, overrideID string) error
	Reorder(ctx context.Context, assignmentID string, req service.ReorderOverridesRequest) ([]models.Override, error)
	EffectiveForUser(ctx context.Context, assignmentID, userID string) (*models.EffectiveSchedule, error)
}

// OverrideHandler exposes assignment override endpoints.
type OverrideHandler struct {
	service overrideService
}

// NewOverrideHandler constructs the handler.
func NewOverrideHandler(service overrideService) *OverrideHandler {
	return &OverrideHandler{service: service}
}

// List godoc
// @Summary List assignment overrides
// @Tags Overrides
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/overrides [get]
func (h *OverrideHandler) List(c *gin.Context) {
	overrides, err := h.service.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overrides)
}

// Get godoc
// @Summary Get override
// @Tags Overrides
// @Produce json
// @Param id path string true "Override ID"
// @Success 200 {object} response.Envelope
// @Router /overrides/{id} [get]
func (h *OverrideHandler) Get(c *gin.Context) {
	override, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, override)
}

// Create godoc
// @Summary Create a user or group override
// @Tags Overrides
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.SaveOverrideRequest true "Override payload"
// @Success 201 {object} response.Envelope
// @Router /assignments/{id}/overrides [post]
func (h *OverrideHandler) Create(c *gin.Context) {
	h.save(c, c.Param("id"), "", http.StatusCreated)
}

// Update godoc
// @Summary Update an override
// @Tags Overrides
// @Accept json
// @Produce json
// @Param id path string true "Override ID"
// @Param payload body service.SaveOverrideRequest true "Override payload"
// @Success 200 {object} response.Envelope
// @Router /overrides/{id} [put]
func (h *OverrideHandler) Update(c *gin.Context) {
	h.save(c, "", c.Param("id"), http.StatusOK)
}

func (h *OverrideHandler) save(c *gin.Context, assignmentID, overrideID string, status int) {
	var req service.SaveOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid override payload"))
		return
	}
	edit, err := h.service.EditFromRequest(assignmentID, overrideID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	override, err := h.service.Save(c.Request.Context(), edit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, status, override)
}

// Duplicate godoc
// @Summary Copy an override onto another subject
// @Tags Overrides
// @Accept json
// @Produce json
// @Param id path string true "Override ID"
// @Param payload body service.DuplicateOverrideRequest true "Target subject"
// @Success 201 {object} response.Envelope
// @Router /overrides/{id}/duplicate [post]
func (h *OverrideHandler) Duplicate(c *gin.Context) {
	var req service.DuplicateOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid duplicate payload"))
		return
	}
	override, err := h.service.Duplicate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, override)
}

// Delete godoc
// @Summary Delete an override
// @Tags Overrides
// @Param id path string true "Override ID"
// @Success 204
// @Router /overrides/{id} [delete]
func (h *OverrideHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reorder godoc
// @Summary Set group override priority
// @Tags Overrides
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body service.ReorderOverridesRequest true "Group override ids in priority order"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/overrides/reorder [post]
func (h *OverrideHandler) Reorder(c *gin.Context) {
	var req service.ReorderOverridesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid reorder payload"))
		return
	}
	overrides, err := h.service.Reorder(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overrides)
}

// Effective godoc
// @Summary Resolve the schedule that applies to a user
// @Description Users may read their own schedule; other users require the manage overrides capability.
// @Tags Overrides
// @Produce json
// @Param id path string true "Assignment ID"
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/overrides/effective/{userId} [get]
func (h *OverrideHandler) Effective(c *gin.Context) {
	claims := middleware.CurrentClaims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	userID := c.Param("userId")
	if userID != claims.UserID && !claims.Has(models.CapabilityManageOverrides) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	schedule, err := h.service.EffectiveForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule)
}
