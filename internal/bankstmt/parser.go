// Package bankstmt parses bank statements and computes cash-flow metrics.
package bankstmt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"caseos/internal/caseerr"
)

// RawTransaction is the wire shape both parser modes emit. Dates arrive as
// epoch milliseconds or dd/mm/yyyy strings; amounts may be strings with commas.
type RawTransaction struct {
	TransactionDate json.RawMessage `json:"transactionDate"`
	ValueDate       json.RawMessage `json:"valueDate"`
	Narration       string          `json:"narration"`
	ChequeRefNo     string          `json:"chequeRefNo"`
	WithdrawalAmt   json.RawMessage `json:"withdrawalAmt"`
	DepositAmt      json.RawMessage `json:"depositAmt"`
	ClosingBalance  json.RawMessage `json:"closingBalance"`
}

// RawStatement is one parsed statement from the remote service.
type RawStatement struct {
	Bank          string           `json:"bank"`
	AccountNumber string           `json:"accountNumber"`
	BasicInfo     map[string]any   `json:"basicInfo"`
	CAMData       map[string]any   `json:"camAnalysisData"`
	GrandTotal    map[string]any   `json:"grandTotal"`
	Transactions  []RawTransaction `json:"transactions"`
}

// ParsePayload is the top-level remote response.
type ParsePayload struct {
	Statements        []RawStatement `json:"statements"`
	TotalInputFiles   int            `json:"totalInputFiles"`
	TotalTransactions int            `json:"totalTransactions"`
}

// Parser turns statement PDFs into transactions.
type Parser interface {
	Parse(ctx context.Context, pdfs [][]byte) (*ParsePayload, error)
}

// RemoteParser calls the hosted statement-parsing service.
type RemoteParser struct {
	endpoint string
	client   *http.Client
}

// NewRemoteParser builds the production parser client.
func NewRemoteParser(endpoint string, timeout time.Duration) *RemoteParser {
	return &RemoteParser{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an endpoint is set.
func (p *RemoteParser) Configured() bool { return p.endpoint != "" }

// Parse uploads the PDFs as multipart form files and decodes the payload.
func (p *RemoteParser) Parse(ctx context.Context, pdfs [][]byte) (*ParsePayload, error) {
	if !p.Configured() {
		return nil, caseerr.NewDependency("bank_parser", fmt.Errorf("endpoint not configured"))
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for i, pdf := range pdfs {
		part, err := writer.CreateFormFile("files", fmt.Sprintf("statement-%d.pdf", i+1))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(pdf); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, caseerr.NewDependency("bank_parser", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, caseerr.NewDependency("bank_parser", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var payload ParsePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, caseerr.NewDependency("bank_parser", err)
	}
	return &payload, nil
}

// Transaction is the normalized analyzer schema.
type Transaction struct {
	Date           time.Time
	ValueDate      time.Time
	Narration      string
	ChequeRefNo    string
	WithdrawalAmt  float64
	DepositAmt     float64
	ClosingBalance *float64
}

// Normalize converts raw parser rows into analyzer transactions, dropping
// rows without a usable date.
func Normalize(raw []RawTransaction) []Transaction {
	out := make([]Transaction, 0, len(raw))
	for _, r := range raw {
		date, ok := coerceDate(r.TransactionDate)
		if !ok {
			date, ok = coerceDate(r.ValueDate)
			if !ok {
				continue
			}
		}
		valueDate, vok := coerceDate(r.ValueDate)
		if !vok {
			valueDate = date
		}

		out = append(out, Transaction{
			Date:           date,
			ValueDate:      valueDate,
			Narration:      strings.TrimSpace(r.Narration),
			ChequeRefNo:    strings.TrimSpace(r.ChequeRefNo),
			WithdrawalAmt:  coerceFloat(r.WithdrawalAmt),
			DepositAmt:     coerceFloat(r.DepositAmt),
			ClosingBalance: coerceOptionalFloat(r.ClosingBalance),
		})
	}
	return out
}

var dateFormats = []string{
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
	"2006/01/02",
	"2 Jan 2006",
	"2 January 2006",
}

func coerceDate(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		if num <= 0 {
			return time.Time{}, false
		}
		// The remote parser uses epoch milliseconds.
		if num > 10_000_000_000 {
			num /= 1000.0
		}
		return time.Unix(int64(num), 0).UTC(), true
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return time.Time{}, false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseFloat(text, 64); err == nil {
		return coerceDate(json.RawMessage(strconv.FormatFloat(n, 'f', -1, 64)))
	}

	for _, format := range dateFormats {
		if t, err := time.Parse(format, text); err == nil {
			return t.UTC(), true
		}
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func coerceFloat(raw json.RawMessage) float64 {
	if v := coerceOptionalFloat(raw); v != nil {
		return *v
	}
	return 0
}

func coerceOptionalFloat(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return &num
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, ",", ""))
	if text == "" {
		return nil
	}
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	return &n
}
