// Package quickscan runs a synchronous eligibility pre-check from borrower
// descriptors alone, without documents or a case.
package quickscan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"caseos/internal/eligibility"
	"caseos/internal/store"
)

// Input is the descriptor set an operator can supply up front.
type Input struct {
	BorrowerName         string   `json:"borrower_name"`
	EntityType           string   `json:"entity_type"`
	Pincode              string   `json:"pincode"`
	CIBILScore           *int     `json:"cibil_score"`
	BusinessVintageYears *float64 `json:"business_vintage_years"`
	AnnualTurnoverLakhs  *float64 `json:"annual_turnover_lakhs"`
	ProgramType          string   `json:"program_type"`
}

// Scanner runs the shared eligibility engine over descriptor-only vectors.
type Scanner struct {
	store  *store.Store
	engine *eligibility.Engine
	logger *zap.Logger
}

// NewScanner builds a Scanner.
func NewScanner(st *store.Store, engine *eligibility.Engine, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{store: st, engine: engine, logger: logger}
}

// Scan builds a minimal feature vector, scores it against the knowledge base,
// and persists the outcome as a quick_scans row.
func (s *Scanner) Scan(ctx context.Context, userID *string, in Input) (*eligibility.Response, error) {
	vector := s.toVector(in)

	var programFilter *store.ProgramType
	if in.ProgramType != "" {
		pt := store.ProgramType(in.ProgramType)
		if !pt.Valid() {
			return nil, fmt.Errorf("invalid program type %q", in.ProgramType)
		}
		programFilter = &pt
	}

	products, err := s.store.ActiveProducts(ctx, programFilter)
	if err != nil {
		return nil, err
	}

	resp, err := s.engine.Score(ctx, vector, products)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quick scan result: %w", err)
	}

	scan := &store.QuickScan{
		UserID:      userID,
		ResultData:  payload,
		LendersPass: resp.LendersPassed,
	}
	if in.BorrowerName != "" {
		scan.BorrowerName = &in.BorrowerName
	}
	if in.Pincode != "" {
		scan.Pincode = &in.Pincode
	}

	if err := s.store.InsertQuickScan(ctx, scan); err != nil {
		// The scan result is still useful when persistence fails.
		s.logger.Warn("failed to persist quick scan", zap.Error(err))
	}

	return resp, nil
}

func (s *Scanner) toVector(in Input) *store.BorrowerFeatures {
	vector := &store.BorrowerFeatures{UpdatedAt: time.Now()}

	filled := 0
	if in.BorrowerName != "" {
		vector.FullName = &in.BorrowerName
		filled++
	}
	if in.EntityType != "" {
		vector.EntityType = &in.EntityType
		filled++
	}
	if in.Pincode != "" {
		vector.Pincode = &in.Pincode
		filled++
	}
	if in.CIBILScore != nil {
		vector.CIBILScore = in.CIBILScore
		filled++
	}
	if in.BusinessVintageYears != nil {
		vector.BusinessVintageYears = in.BusinessVintageYears
		filled++
	}
	if in.AnnualTurnoverLakhs != nil {
		vector.AnnualTurnover = in.AnnualTurnoverLakhs
		filled++
	}

	vector.FeatureCompleteness = float64(filled) / 21 * 100
	return vector
}
