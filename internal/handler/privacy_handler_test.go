package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assign-override-api/internal/middleware"
	"github.com/noah-isme/assign-override-api/internal/models"
	"github.com/noah-isme/assign-override-api/internal/service"
	appErrors "github.com/noah-isme/assign-override-api/pkg/errors"
)

type privacyServiceMock struct {
	created     models.CreatePrivacyRequest
	actor       string
	status      *models.PrivacyRequestStatusResponse
	download    *service.PrivacyDownload
	downloadErr error
}

func (m *privacyServiceMock) Create(ctx context.Context, req models.CreatePrivacyRequest, actorID string) (*models.PrivacyRequestStatusResponse, error) {
	m.created = req
	m.actor = actorID
	return &models.PrivacyRequestStatusResponse{ID: "r1", Type: req.Type, Status: models.PrivacyRequestStatusQueued}, nil
}

func (m *privacyServiceMock) GetStatus(ctx context.Context, id string) (*models.PrivacyRequestStatusResponse, error) {
	if m.status == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "privacy request not found")
	}
	return m.status, nil
}

func (m *privacyServiceMock) ResolveDownload(ctx context.Context, token string) (*service.PrivacyDownload, error) {
	return m.download, m.downloadErr
}

func (m *privacyServiceMock) ContextsForUser(ctx context.Context, userID string) ([]string, error) {
	return []string{"ctx-" + userID}, nil
}

func (m *privacyServiceMock) UsersInContext(ctx context.Context, contextID string) ([]string, error) {
	return []string{"u1", "u2"}, nil
}

func TestPrivacyHandlerCreateRequest(t *testing.T) {
	mockSvc := &privacyServiceMock{}
	handler := NewPrivacyHandler(mockSvc, mockSvc)

	c, w := newGinContext(http.MethodPost, "/privacy/requests", []byte(`{"type":"delete_users","context_id":"ctx-a","user_ids":["u1","u2"]}`))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "dpo"})

	handler.CreateRequest(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "dpo", mockSvc.actor)
	assert.Equal(t, models.PrivacyRequestDeleteUsers, mockSvc.created.Type)
	assert.Equal(t, []string{"u1", "u2"}, mockSvc.created.UserIDs)
}

func TestPrivacyHandlerCreateRequiresClaims(t *testing.T) {
	handler := NewPrivacyHandler(&privacyServiceMock{}, nil)

	c, w := newGinContext(http.MethodPost, "/privacy/requests", []byte(`{"type":"export"}`))
	handler.CreateRequest(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPrivacyHandlerStatus(t *testing.T) {
	mockSvc := &privacyServiceMock{}
	handler := NewPrivacyHandler(mockSvc, mockSvc)

	c, w := newGinContext(http.MethodGet, "/privacy/requests/r1", nil)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	handler.RequestStatus(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	mockSvc.status = &models.PrivacyRequestStatusResponse{ID: "r1", Status: models.PrivacyRequestStatusFinished, DownloadURL: "/api/v1/privacy/exports/tok"}
	c, w = newGinContext(http.MethodGet, "/privacy/requests/r1", nil)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	handler.RequestStatus(c)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data models.PrivacyRequestStatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "/api/v1/privacy/exports/tok", body.Data.DownloadURL)
}

func TestPrivacyHandlerDiscovery(t *testing.T) {
	mockSvc := &privacyServiceMock{}
	handler := NewPrivacyHandler(mockSvc, mockSvc)

	c, w := newGinContext(http.MethodGet, "/privacy/users/u1/contexts", nil)
	c.Params = gin.Params{{Key: "userId", Value: "u1"}}
	handler.UserContexts(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ctx-u1")

	c, w = newGinContext(http.MethodGet, "/privacy/contexts/ctx-a/users", nil)
	c.Params = gin.Params{{Key: "contextId", Value: "ctx-a"}}
	handler.ContextUsers(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "u2")
}

func TestPrivacyHandlerDownload(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "export*.zip")
	require.NoError(t, err)
	_, _ = file.WriteString("PK")
	_, _ = file.Seek(0, 0)

	mockSvc := &privacyServiceMock{download: &service.PrivacyDownload{File: file, Filename: "r1.zip", ExpiresAt: time.Now().Add(time.Hour)}}
	handler := NewPrivacyHandler(mockSvc, mockSvc)

	c, w := newGinContext(http.MethodGet, "/privacy/exports/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	handler.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PK", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "r1.zip")
}

func TestPrivacyHandlerDownloadForbidden(t *testing.T) {
	mockSvc := &privacyServiceMock{downloadErr: appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")}
	handler := NewPrivacyHandler(mockSvc, mockSvc)

	c, w := newGinContext(http.MethodGet, "/privacy/exports/bad", nil)
	c.Params = gin.Params{{Key: "token", Value: "bad"}}
	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
