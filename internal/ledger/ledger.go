// Package ledger is the case-level service surface: case CRUD and the
// operator-triggered pipeline stages (feature assembly, eligibility scoring,
// report generation).
package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"caseos/internal/caseerr"
	"caseos/internal/checklist"
	"caseos/internal/eligibility"
	"caseos/internal/features"
	"caseos/internal/report"
	"caseos/internal/storage"
	"caseos/internal/store"
)

// Service wires the store, file storage, and downstream engines.
type Service struct {
	store     *store.Store
	files     storage.Store
	assembler *features.Assembler
	engine    *eligibility.Engine
	strategy  *report.StrategyGenerator
	logger    *zap.Logger
}

// NewService builds the ledger service.
func NewService(
	st *store.Store,
	files storage.Store,
	assembler *features.Assembler,
	engine *eligibility.Engine,
	strategy *report.StrategyGenerator,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     st,
		files:     files,
		assembler: assembler,
		engine:    engine,
		strategy:  strategy,
		logger:    logger,
	}
}

// CreateCase allocates a new case for an operator.
func (s *Service) CreateCase(ctx context.Context, userID string, orgID *string, data store.CaseCreate) (*store.Case, error) {
	if data.ProgramType != nil && !data.ProgramType.Valid() {
		return nil, caseerr.NewValidation("program_type", "unknown program type %q", *data.ProgramType)
	}
	return s.store.CreateCase(ctx, userID, orgID, data)
}

// GetCase fetches a case scoped to its owner; admins pass their org id to
// widen the scope.
func (s *Service) GetCase(ctx context.Context, caseID, userID string, orgID *string) (*store.Case, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		if orgID == nil || c.OrganizationID == nil || *c.OrganizationID != *orgID {
			return nil, caseerr.ErrNotFound
		}
	}
	return c, nil
}

// DeleteCase hard-deletes the case and best-effort cleans its stored files.
// Storage failures are logged, never rolled back.
func (s *Service) DeleteCase(ctx context.Context, caseID string) error {
	keys, err := s.store.DeleteCase(ctx, caseID)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.files.Delete(key); err != nil {
			s.logger.Warn("failed to delete stored file",
				zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// Checklist builds the current document checklist and refreshes the stored
// completeness score.
func (s *Service) Checklist(ctx context.Context, caseID string) (*checklist.Checklist, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.ListDocuments(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	cl := checklist.Build(c, docs)
	if err := s.store.SetCompletenessScore(ctx, caseID, cl.CompletenessScore); err != nil {
		return nil, err
	}
	return cl, nil
}

// ExtractFeatures assembles and persists the borrower feature vector.
// Returns a conflict while document jobs are still queued or processing.
func (s *Service) ExtractFeatures(ctx context.Context, caseID string) (*store.BorrowerFeatures, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	jobs, err := s.store.CountJobs(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if jobs.Queued > 0 || jobs.Processing > 0 {
		return nil, caseerr.NewConflict("%d document jobs still pending for %s", jobs.Queued+jobs.Processing, caseID)
	}

	extracted, err := s.store.ListExtractedFields(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	vector := s.assembler.Assemble(c, extracted)
	if err := s.store.UpsertBorrowerFeatures(ctx, vector); err != nil {
		return nil, err
	}
	if err := s.store.SetCaseStatus(ctx, caseID, store.CaseFeaturesExtracted); err != nil {
		return nil, err
	}

	s.logger.Info("feature vector assembled",
		zap.String("case_id", caseID),
		zap.Float64("completeness", vector.FeatureCompleteness))
	return vector, nil
}

// ScoreEligibility runs the eligibility engine over the knowledge base and
// persists the replace-and-insert result set.
func (s *Service) ScoreEligibility(ctx context.Context, caseID string) (*eligibility.Response, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	vector, err := s.store.GetBorrowerFeatures(ctx, c.ID)
	if err != nil {
		return nil, caseerr.NewConflict("features not extracted for %s", caseID)
	}

	products, err := s.store.ActiveProducts(ctx, c.ProgramType)
	if err != nil {
		return nil, err
	}

	resp, err := s.engine.Score(ctx, vector, products)
	if err != nil {
		return nil, err
	}
	resp.CaseID = caseID

	rows, err := resp.ToRows()
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceEligibilityResults(ctx, c.ID, rows); err != nil {
		return nil, err
	}
	if err := s.store.SetCaseStatus(ctx, caseID, store.CaseEligibilityScored); err != nil {
		return nil, err
	}

	return resp, nil
}

// LoadEligibility reloads persisted results, recomputing the advisory blocks.
func (s *Service) LoadEligibility(ctx context.Context, caseID string) (*eligibility.Response, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListEligibilityResults(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, caseerr.ErrNotFound
	}

	vector, err := s.store.GetBorrowerFeatures(ctx, c.ID)
	if err != nil {
		vector = nil
	}

	resp := s.engine.FromRows(vector, rows)
	resp.CaseID = caseID
	return resp, nil
}

// GenerateReport composes the report artifact, renders the PDF, and stores
// both.
func (s *Service) GenerateReport(ctx context.Context, caseID string) (*report.CaseReportData, *store.CaseReport, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}

	vector, err := s.store.GetBorrowerFeatures(ctx, c.ID)
	if err != nil {
		return nil, nil, caseerr.NewConflict("features not extracted for %s", caseID)
	}

	elig, err := s.LoadEligibility(ctx, caseID)
	if err != nil {
		return nil, nil, caseerr.NewConflict("eligibility not scored for %s", caseID)
	}

	docs, err := s.store.ListDocuments(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	cl := checklist.Build(c, docs)

	specialNotes := s.topLenderNotes(ctx, elig)
	strategy := s.strategy.Generate(ctx, vector, elig.Results, specialNotes)

	data := report.Assemble(caseID, vector, cl, elig.Results, strategy)

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize report: %w", err)
	}

	var pdfKey *string
	pdfBytes, err := report.RenderPDF(data)
	if err != nil {
		s.logger.Warn("PDF rendering failed", zap.Error(err))
	} else {
		key := fmt.Sprintf("%s/report-%s.pdf", caseID, uuid.NewString())
		if putErr := s.files.Put(key, pdfBytes); putErr != nil {
			s.logger.Warn("failed to store report PDF", zap.Error(putErr))
		} else {
			pdfKey = &key
		}
	}

	saved, err := s.store.InsertCaseReport(ctx, c.ID, payload, pdfKey)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.SetCaseStatus(ctx, caseID, store.CaseReportGenerated); err != nil {
		return nil, nil, err
	}

	return data, saved, nil
}

// LatestReport loads the newest stored report artifact.
func (s *Service) LatestReport(ctx context.Context, caseID string) (*report.CaseReportData, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	saved, err := s.store.LatestCaseReport(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, caseerr.ErrNotFound
	}
	var data report.CaseReportData
	if err := json.Unmarshal(saved.ReportData, &data); err != nil {
		return nil, fmt.Errorf("failed to decode stored report: %w", err)
	}
	return &data, nil
}

// topLenderNotes loads the top-ranked lender's verification requirements.
func (s *Service) topLenderNotes(ctx context.Context, elig *eligibility.Response) string {
	for _, r := range elig.Results {
		if r.Status != store.FilterPass {
			continue
		}
		lender, err := s.store.GetLenderByName(ctx, r.LenderName)
		if err != nil {
			return ""
		}
		products, err := s.store.GetLenderProducts(ctx, lender.ID)
		if err != nil {
			return ""
		}
		for i := range products {
			if products[i].ProductName == r.ProductName {
				return report.SpecialRequirements(&products[i])
			}
		}
		return ""
	}
	return ""
}

// Status summarizes the case state with job counts for the status surface.
type Status struct {
	Case *store.Case     `json:"case"`
	Jobs store.JobCounts `json:"jobs"`
}

// Status returns the case with its per-status job counts.
func (s *Service) Status(ctx context.Context, caseID string) (*Status, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	jobs, err := s.store.CountJobs(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &Status{Case: c, Jobs: jobs}, nil
}
