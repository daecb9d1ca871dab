package matching

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/mmtuentertainment/apmatch/pkg/httpclient"
	"github.com/mmtuentertainment/apmatch/pkg/models"
)

// Enhancement is only consulted inside the ambiguous confidence band
const (
	enhanceBandLow  = 50
	enhanceBandHigh = 95
)

// EnhanceRequest is the payload sent to the external confidence scorer
type EnhanceRequest struct {
	TenantID    string                       `json:"tenant_id"`
	InvoiceID   string                       `json:"invoice_id"`
	POID        string                       `json:"po_id"`
	ReceiptID   *string                      `json:"receipt_id,omitempty"`
	MatchType   models.MatchType             `json:"match_type"`
	Confidence  float64                      `json:"confidence"`
	FieldScores map[string]models.FieldScore `json:"field_scores"`
}

// EnhanceResponse is the scorer's reply
type EnhanceResponse struct {
	Confidence float64 `json:"confidence"`
}

// Enhancer re-scores an ambiguous match. Implementations must be best-effort:
// the engine treats any error as "no enhancement".
type Enhancer interface {
	Enhance(ctx context.Context, req EnhanceRequest) (float64, error)
}

// NoopEnhancer never enhances; used when no scoring service is configured
type NoopEnhancer struct{}

func (NoopEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (float64, error) {
	return req.Confidence, nil
}

// HTTPEnhancer calls an external ML scoring service over HTTP
type HTTPEnhancer struct {
	client *httpclient.Client
	url    string
	logger ectologger.Logger
}

// NewHTTPEnhancer creates a new HTTPEnhancer
func NewHTTPEnhancer(client *httpclient.Client, url string, logger ectologger.Logger) *HTTPEnhancer {
	return &HTTPEnhancer{
		client: client,
		url:    url,
		logger: logger,
	}
}

func (e *HTTPEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (float64, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal enhance request: %w", err)
	}

	resp, err := e.client.PostJSON(ctx, e.url, body, map[string]string{"X-Tenant-ID": req.TenantID})
	if err != nil {
		return 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("enhancement service returned status %d", resp.StatusCode)
	}

	var parsed EnhanceResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse enhance response: %w", err)
	}

	return parsed.Confidence, nil
}
