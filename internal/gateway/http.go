package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/conformly/fieldsync/internal/domain"
)

// =============================================================================
// HTTPGateway Implementation
// =============================================================================

// defaultRequestTimeout caps a single remote call so a hung backend cannot
// wedge a sync sweep.
const defaultRequestTimeout = 30 * time.Second

// HTTPConfig holds configuration for the HTTP gateway.
type HTTPConfig struct {
	// BaseURL is the root of the remote API, e.g. "https://api.example.com".
	BaseURL string

	// APIKey is sent as a bearer token on every request.
	APIKey string

	// RequestTimeout caps each HTTP call. Defaults to 30 seconds.
	RequestTimeout time.Duration
}

// HTTPGateway implements Gateway against the backend's JSON API.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPGateway creates a gateway for the given backend.
func NewHTTPGateway(cfg HTTPConfig, logger *slog.Logger) (*HTTPGateway, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("gateway base URL is required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &HTTPGateway{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// =============================================================================
// Wire Types
// =============================================================================

// baseRecord is the payload establishing the base form record. The local ID
// travels with it so the backend can detect a retried submission.
type baseRecord struct {
	FormType         string    `json:"form_type"`
	ProjectID        string    `json:"project_id"`
	OrganizationID   string    `json:"organization_id,omitempty"`
	InspectorName    string    `json:"inspector_name"`
	InspectionDate   time.Time `json:"inspection_date"`
	InspectionStatus string    `json:"inspection_status"`
	Comments         string    `json:"comments,omitempty"`
	EvidenceFiles    []string  `json:"evidence_files,omitempty"`
	LocalID          string    `json:"local_id"`
}

// baseResponse is the backend's reply to a base-record write.
type baseResponse struct {
	ID string `json:"id"`
}

// typeRecord is the form-type-specific sub-write, keyed back to the base
// record.
type typeRecord struct {
	FormID        string              `json:"form_id"`
	Fields        map[string]any      `json:"fields"`
	Results       map[string]any      `json:"results,omitempty"`
	CompletionPct int                 `json:"completion_pct"`
	OverallStatus string              `json:"overall_status,omitempty"`
}

// =============================================================================
// Submit
// =============================================================================

// Submit pushes the base record, then the form-type-specific record.
func (g *HTTPGateway) Submit(ctx context.Context, form *domain.CapturedForm) (*SubmitResult, error) {
	var evidenceURLs []string
	for _, ev := range form.Evidence {
		if ev.Uploaded() {
			evidenceURLs = append(evidenceURLs, ev.URL)
		}
	}

	base := baseRecord{
		FormType:         string(form.FormType),
		ProjectID:        form.ProjectID,
		OrganizationID:   form.OrganizationID,
		InspectorName:    form.InspectorName,
		InspectionDate:   form.InspectionDate,
		InspectionStatus: string(form.InspectionStatus),
		Comments:         form.Comments,
		EvidenceFiles:    evidenceURLs,
		LocalID:          form.LocalID,
	}

	var baseResp baseResponse
	if err := g.post(ctx, "/api/v1/forms", base, &baseResp); err != nil {
		return nil, err
	}
	if baseResp.ID == "" {
		return nil, NewTransientError(fmt.Errorf("backend returned no record ID"))
	}

	sub := typeRecord{
		FormID:        baseResp.ID,
		Fields:        form.Fields,
		CompletionPct: form.CompletionPct,
		OverallStatus: string(form.OverallStatus),
	}
	if len(form.Results) > 0 {
		sub.Results = map[string]any{}
		for section, items := range form.Results {
			sub.Results[section] = items
		}
	}

	path := fmt.Sprintf("/api/v1/forms/%s/%s", baseResp.ID, form.FormType)
	if err := g.post(ctx, path, sub, nil); err != nil {
		return nil, err
	}

	g.logger.Debug("form submitted", "local_id", form.LocalID, "server_id", baseResp.ID)
	return &SubmitResult{ServerID: baseResp.ID}, nil
}

// post sends one JSON request and decodes the reply into out (if non-nil).
//
// Status classification: 2xx succeeds; 409 on the base write means the
// backend already holds this local ID and replies with the existing record,
// which also counts as success; 5xx and 429 are transient; any other 4xx is
// a rejection.
func (g *HTTPGateway) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		// Transport failures and client timeouts are retriable.
		return NewTransientError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300,
		resp.StatusCode == http.StatusConflict:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return NewTransientError(fmt.Errorf("decode response: %w", err))
		}
		return nil

	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests:
		return NewTransientError(fmt.Errorf("backend returned HTTP %d", resp.StatusCode))

	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RejectedError{
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(detail)),
		}
	}
}
