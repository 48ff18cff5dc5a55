package scan

import (
	"encoding/json"
	"net/http"
	"time"

	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
)

func encodeJSON(v any) ([]byte, string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// messageResponse is the success payload of control operations.
type messageResponse struct {
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

// Encode implements the web.Encoder interface.
func (mr messageResponse) Encode() ([]byte, string, error) { return encodeJSON(mr) }

// HTTPStatus implements the httpStatus interface to set the response status code.
func (mr messageResponse) HTTPStatus() int { return http.StatusAccepted }

// nonceResponse carries a freshly issued anti-forgery nonce.
type nonceResponse struct {
	Nonce string `json:"nonce"`
}

// Encode implements the web.Encoder interface.
func (nr nonceResponse) Encode() ([]byte, string, error) { return encodeJSON(nr) }

// progressResponse is the ScanRun snapshot exposed to pollers.
type progressResponse struct {
	RunID           string                `json:"run_id,omitempty"`
	Status          domain.RunStatus      `json:"status"`
	TotalPages      int                   `json:"total_pages"`
	ScannedPages    int                   `json:"scanned_pages"`
	CurrentTitle    string                `json:"current_page_title"`
	CurrentURL      string                `json:"current_url"`
	CurrentCategory domain.Category       `json:"current_category,omitempty"`
	CategoryState   domain.CategoryStates `json:"category_state"`
	Errors          []domain.RunError     `json:"errors"`
	StartedAt       *time.Time            `json:"started_at,omitempty"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
}

func toProgressResponse(s domain.RunSnapshot) progressResponse {
	resp := progressResponse{
		Status:          s.Status,
		TotalPages:      s.TargetsTotal,
		ScannedPages:    s.TargetsDone,
		CurrentTitle:    s.CurrentTargetLabel,
		CurrentURL:      s.CurrentTargetURI,
		CurrentCategory: s.CurrentCategory,
		CategoryState:   s.CategoryState,
		Errors:          s.Errors,
		CompletedAt:     s.CompletedAt,
	}
	if s.ID != uuid.Nil {
		resp.RunID = s.ID.String()
	}
	if !s.StartedAt.IsZero() {
		started := s.StartedAt
		resp.StartedAt = &started
	}
	if resp.CategoryState == nil {
		resp.CategoryState = domain.CategoryStates{}
	}
	if resp.Errors == nil {
		resp.Errors = []domain.RunError{}
	}
	return resp
}

// Encode implements the web.Encoder interface.
func (pr progressResponse) Encode() ([]byte, string, error) { return encodeJSON(pr) }

// scoresResponse lists the current snapshot of every category and profile.
type scoresResponse []domain.CategoryScoreSnapshot

// Encode implements the web.Encoder interface.
func (sr scoresResponse) Encode() ([]byte, string, error) { return encodeJSON([]domain.CategoryScoreSnapshot(sr)) }

// auditDataResponse lists the current audits of one category and profile.
type auditDataResponse domain.AuditData

// Encode implements the web.Encoder interface.
func (ar auditDataResponse) Encode() ([]byte, string, error) { return encodeJSON(domain.AuditData(ar)) }

// statisticsResponse summarises the audit log.
type statisticsResponse domain.ScanStatistics

// Encode implements the web.Encoder interface.
func (sr statisticsResponse) Encode() ([]byte, string, error) {
	return encodeJSON(domain.ScanStatistics(sr))
}

// rescanRequest is the payload of a single target rescan.
type rescanRequest struct {
	TargetURI string `json:"target_uri" validate:"required,url"`
}

// rescanResponse is the outcome of a single target rescan.
type rescanResponse struct {
	HTML      string    `json:"html"`
	Score     *float64  `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// Encode implements the web.Encoder interface.
func (rr rescanResponse) Encode() ([]byte, string, error) { return encodeJSON(rr) }

// auditQuery selects the audits of one category and profile.
type auditQuery struct {
	Category string `json:"category" validate:"required"`
	Profile  string `json:"profile" validate:"required,oneof=mobile desktop"`
}

// issuesQuery selects the current issues of a category.
type issuesQuery struct {
	Category  string `json:"category" validate:"required"`
	TargetURI string `json:"target_uri" validate:"omitempty,url"`
}

// htmlResponse carries a rendered fragment.
type htmlResponse struct {
	HTML string `json:"html"`
}

// Encode implements the web.Encoder interface.
func (hr htmlResponse) Encode() ([]byte, string, error) { return encodeJSON(hr) }
