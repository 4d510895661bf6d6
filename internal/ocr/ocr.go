// Package ocr drives text recognition for uploaded documents.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"caseos/internal/caseerr"
	"caseos/internal/gst"
	"caseos/internal/store"
)

// Result is the recognized text and page count for one document.
type Result struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
}

// Engine is the external OCR collaborator. Timeouts and retries are the
// orchestrator's responsibility.
type Engine interface {
	Recognize(ctx context.Context, data []byte) (*Result, error)
}

// HTTPEngine posts document bytes to a remote OCR service.
type HTTPEngine struct {
	endpoint string
	client   *http.Client
}

// NewHTTPEngine builds the production OCR client.
func NewHTTPEngine(endpoint string, timeout time.Duration) *HTTPEngine {
	return &HTTPEngine{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an endpoint is set.
func (e *HTTPEngine) Configured() bool { return e.endpoint != "" }

// Recognize sends the raw bytes and decodes {text, pages}.
func (e *HTTPEngine) Recognize(ctx context.Context, data []byte) (*Result, error) {
	if !e.Configured() {
		return nil, caseerr.NewDependency("ocr", fmt.Errorf("endpoint not configured"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, caseerr.NewDependency("ocr", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, caseerr.NewDependency("ocr", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, caseerr.NewDependency("ocr", err)
	}
	return &result, nil
}

// ShouldSkip applies the skip heuristics to a filename-first classification.
// Bank statements go to the statement parser directly, GST returns with a
// valid GSTIN in the filename carry everything the pipeline needs, and
// photo images rarely OCR to anything useful.
func ShouldSkip(kind store.DocumentKind, filename string) bool {
	lower := strings.ToLower(filename)
	isPhoto := strings.Contains(lower, "photo") &&
		(strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg") || strings.HasSuffix(lower, ".png"))

	switch kind {
	case store.DocBankStatement:
		return true
	case store.DocGSTReturns:
		return gst.FindGSTIN(filename) != ""
	}
	return isPhoto
}
