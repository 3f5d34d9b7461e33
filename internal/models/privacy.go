package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"
)

// PrivacyRequestType selects the operation performed for a privacy request.
type PrivacyRequestType string

const (
	PrivacyRequestDeleteContext PrivacyRequestType = "delete_context"
	PrivacyRequestDeleteUser    PrivacyRequestType = "delete_user"
	PrivacyRequestDeleteUsers   PrivacyRequestType = "delete_users"
	PrivacyRequestExport        PrivacyRequestType = "export"
)

// PrivacyRequestStatus captures the lifecycle of a privacy request.
type PrivacyRequestStatus string

const (
	PrivacyRequestStatusQueued     PrivacyRequestStatus = "QUEUED"
	PrivacyRequestStatusProcessing PrivacyRequestStatus = "PROCESSING"
	PrivacyRequestStatusFinished   PrivacyRequestStatus = "FINISHED"
	PrivacyRequestStatusFailed     PrivacyRequestStatus = "FAILED"
)

// PrivacyRequest is a persisted deletion or export job.
type PrivacyRequest struct {
	ID          string               `db:"id" json:"id"`
	Type        PrivacyRequestType   `db:"type" json:"type"`
	ContextID   null.String          `db:"context_id" json:"context_id"`
	UserIDs     pq.StringArray       `db:"user_ids" json:"user_ids"`
	RequestedBy string               `db:"requested_by" json:"requested_by"`
	Status      PrivacyRequestStatus `db:"status" json:"status"`
	ResultPath  null.String          `db:"result_path" json:"-"`
	Error       null.String          `db:"error" json:"error"`
	Attempts    int                  `db:"attempts" json:"attempts"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time            `db:"updated_at" json:"updated_at"`
	FinishedAt  null.Time            `db:"finished_at" json:"finished_at"`
}

// CreatePrivacyRequest is the API payload for queuing a privacy request.
type CreatePrivacyRequest struct {
	Type      PrivacyRequestType `json:"type" validate:"required,oneof=delete_context delete_user delete_users export"`
	ContextID string             `json:"context_id"`
	UserIDs   []string           `json:"user_ids" validate:"dive,required"`
}

// PrivacyRequestStatusResponse reports progress and, for exports, the download link.
type PrivacyRequestStatusResponse struct {
	ID          string               `json:"id"`
	Type        PrivacyRequestType   `json:"type"`
	Status      PrivacyRequestStatus `json:"status"`
	Error       string               `json:"error,omitempty"`
	DownloadURL string               `json:"download_url,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	FinishedAt  *time.Time           `json:"finished_at,omitempty"`
}

// UserPreference is a per-user setting exported with personal data.
type UserPreference struct {
	UserID string `db:"user_id" json:"user_id"`
	Name   string `db:"name" json:"name"`
	Value  string `db:"value" json:"value"`
}

// AssignmentPreferenceNames lists the user preferences owned by this module.
var AssignmentPreferenceNames = []string{
	"assign_filter",
	"assign_markerfilter",
	"assign_workflowfilter",
	"assign_perpage",
	"assign_quickgrading",
	"assign_downloadasfolders",
}
