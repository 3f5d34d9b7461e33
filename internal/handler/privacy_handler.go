package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assign-override-api/internal/middleware"
	"github.com/noah-isme/assign-override-api/internal/models"
	"github.com/noah-isme/assign-override-api/internal/service"
	appErrors "github.com/noah-isme/assign-override-api/pkg/errors"
	"github.com/noah-isme/assign-override-api/pkg/response"
)

type privacyRequestService interface {
	Create(ctx context.Context, req models.CreatePrivacyRequest, actorID string) (*models.PrivacyRequestStatusResponse, error)
	GetStatus(ctx context.Context, id string) (*models.PrivacyRequestStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.PrivacyDownload, error)
}

type privacyDiscoveryService interface {
	ContextsForUser(ctx context.Context, userID string) ([]string, error)
	UsersInContext(ctx context.Context, contextID string) ([]string, error)
}

// PrivacyHandler exposes personal data export and deletion endpoints.
type PrivacyHandler struct {
	requests  privacyRequestService
	discovery privacyDiscoveryService
}

// NewPrivacyHandler constructs the handler.
func NewPrivacyHandler(requests privacyRequestService, discovery privacyDiscoveryService) *PrivacyHandler {
	return &PrivacyHandler{requests: requests, discovery: discovery}
}

// CreateRequest godoc
// @Summary Queue a privacy deletion or export request
// @Tags Privacy
// @Accept json
// @Produce json
// @Param payload body models.CreatePrivacyRequest true "Privacy request"
// @Success 202 {object} response.Envelope
// @Router /privacy/requests [post]
func (h *PrivacyHandler) CreateRequest(c *gin.Context) {
	claims := middleware.CurrentClaims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.CreatePrivacyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid privacy request payload"))
		return
	}
	resp, err := h.requests.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// RequestStatus godoc
// @Summary Privacy request status
// @Tags Privacy
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /privacy/requests/{id} [get]
func (h *PrivacyHandler) RequestStatus(c *gin.Context) {
	resp, err := h.requests.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp)
}

// UserContexts godoc
// @Summary Contexts holding a user's assignment data
// @Tags Privacy
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /privacy/users/{userId}/contexts [get]
func (h *PrivacyHandler) UserContexts(c *gin.Context) {
	ids, err := h.discovery.ContextsForUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ids)
}

// ContextUsers godoc
// @Summary Users with data in an assignment context
// @Tags Privacy
// @Produce json
// @Param contextId path string true "Context ID"
// @Success 200 {object} response.Envelope
// @Router /privacy/contexts/{contextId}/users [get]
func (h *PrivacyHandler) ContextUsers(c *gin.Context) {
	ids, err := h.discovery.UsersInContext(c.Request.Context(), c.Param("contextId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ids)
}

// Download godoc
// @Summary Download an export bundle via signed token
// @Tags Privacy
// @Produce application/zip
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /privacy/exports/{token} [get]
func (h *PrivacyHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.requests.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck

	info, err := result.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), "application/zip", result.File, nil)
}
