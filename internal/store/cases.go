package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"caseos/internal/caseerr"
)

// caseColumns is the select list shared by all case queries.
const caseColumns = `id, case_id, user_id, organization_id, status, program_type,
	borrower_name, entity_type, industry_type, pincode, business_vintage_years,
	loan_amount_requested, cibil_score_manual, monthly_turnover_manual,
	gstin, gst_data, completeness_score, created_at, updated_at`

// CaseCreate carries the optional initial descriptors for a new case.
type CaseCreate struct {
	BorrowerName        *string
	EntityType          *string
	ProgramType         *ProgramType
	IndustryType        *string
	Pincode             *string
	LoanAmountRequested *float64
}

// CreateCase allocates a CASE-YYYYMMDD-NNNN id and inserts the case row.
// Concurrent creators serialize through the unique constraint on case_id;
// on conflict the counter is re-read and the insert retried.
func (s *Store) CreateCase(ctx context.Context, userID string, orgID *string, data CaseCreate) (*Case, error) {
	const maxRetries = 5

	for attempt := 0; attempt < maxRetries; attempt++ {
		caseID, err := s.nextCaseID(ctx)
		if err != nil {
			return nil, err
		}

		var c Case
		err = s.db.GetContext(ctx, &c, `
			INSERT INTO cases (case_id, user_id, organization_id, status, program_type,
				borrower_name, entity_type, industry_type, pincode, loan_amount_requested)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING `+caseColumns,
			caseID, userID, orgID, CaseCreated, data.ProgramType,
			data.BorrowerName, data.EntityType, data.IndustryType, data.Pincode,
			data.LoanAmountRequested)
		if err == nil {
			return &c, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return nil, fmt.Errorf("failed to create case: %w", err)
	}

	return nil, fmt.Errorf("failed to allocate case id after %d attempts", maxRetries)
}

// nextCaseID computes today's next CASE-YYYYMMDD-NNNN sequence, UTC-dated.
func (s *Store) nextCaseID(ctx context.Context) (string, error) {
	prefix := "CASE-" + time.Now().UTC().Format("20060102") + "-"

	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM cases WHERE case_id LIKE $1`, prefix+"%")
	if err != nil {
		return "", fmt.Errorf("failed to count cases for id generation: %w", err)
	}

	return fmt.Sprintf("%s%04d", prefix, count+1), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// GetCase fetches a case by its human-readable case id.
func (s *Store) GetCase(ctx context.Context, caseID string) (*Case, error) {
	var c Case
	err := s.db.GetContext(ctx, &c,
		`SELECT `+caseColumns+` FROM cases WHERE case_id = $1`, caseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caseerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case %s: %w", caseID, err)
	}
	return &c, nil
}

// GetCaseByUUID fetches a case by its internal row id.
func (s *Store) GetCaseByUUID(ctx context.Context, id string) (*Case, error) {
	var c Case
	err := s.db.GetContext(ctx, &c,
		`SELECT `+caseColumns+` FROM cases WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caseerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case %s: %w", id, err)
	}
	return &c, nil
}

// ListCases returns cases owned by a user, newest first.
func (s *Store) ListCases(ctx context.Context, userID string, limit int) ([]Case, error) {
	if limit <= 0 {
		limit = 50
	}
	var cases []Case
	err := s.db.SelectContext(ctx, &cases,
		`SELECT `+caseColumns+` FROM cases WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	return cases, nil
}

// ListCasesByOrg returns all cases for an organization (admin scope).
func (s *Store) ListCasesByOrg(ctx context.Context, orgID string, limit int) ([]Case, error) {
	if limit <= 0 {
		limit = 50
	}
	var cases []Case
	err := s.db.SelectContext(ctx, &cases,
		`SELECT `+caseColumns+` FROM cases WHERE organization_id = $1
		 ORDER BY created_at DESC LIMIT $2`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases by org: %w", err)
	}
	return cases, nil
}

// CaseUpdate carries partial manual overrides for a case. Nil means unchanged.
type CaseUpdate struct {
	BorrowerName         *string
	EntityType           *string
	ProgramType          *ProgramType
	IndustryType         *string
	Pincode              *string
	BusinessVintageYears *float64
	LoanAmountRequested  *float64
	CIBILScoreManual     *int
	MonthlyTurnoverMan   *float64
}

// UpdateCase applies the non-nil fields of upd to the case row.
func (s *Store) UpdateCase(ctx context.Context, caseID string, upd CaseUpdate) (*Case, error) {
	var c Case
	err := s.db.GetContext(ctx, &c, `
		UPDATE cases SET
			borrower_name = COALESCE($2, borrower_name),
			entity_type = COALESCE($3, entity_type),
			program_type = COALESCE($4, program_type),
			industry_type = COALESCE($5, industry_type),
			pincode = COALESCE($6, pincode),
			business_vintage_years = COALESCE($7, business_vintage_years),
			loan_amount_requested = COALESCE($8, loan_amount_requested),
			cibil_score_manual = COALESCE($9, cibil_score_manual),
			monthly_turnover_manual = COALESCE($10, monthly_turnover_manual),
			updated_at = NOW()
		WHERE case_id = $1
		RETURNING `+caseColumns,
		caseID, upd.BorrowerName, upd.EntityType, upd.ProgramType, upd.IndustryType,
		upd.Pincode, upd.BusinessVintageYears, upd.LoanAmountRequested,
		upd.CIBILScoreManual, upd.MonthlyTurnoverMan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caseerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update case %s: %w", caseID, err)
	}
	return &c, nil
}

// SetCaseStatus transitions the case status.
func (s *Store) SetCaseStatus(ctx context.Context, caseID string, status CaseStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cases SET status = $2, updated_at = NOW() WHERE case_id = $1`,
		caseID, status)
	if err != nil {
		return fmt.Errorf("failed to set case status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return caseerr.ErrNotFound
	}
	return nil
}

// SetCompletenessScore records the checklist completeness on the case row.
func (s *Store) SetCompletenessScore(ctx context.Context, caseID string, score float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE cases SET completeness_score = $2, updated_at = NOW() WHERE case_id = $1`,
		caseID, score)
	if err != nil {
		return fmt.Errorf("failed to set completeness score: %w", err)
	}
	return nil
}

// CacheGSTData stores the GSTIN and the GST authority response on the case,
// but only when no response is cached yet. Returns true when the write won,
// which keeps the authority call idempotent per (case, gstin).
func (s *Store) CacheGSTData(ctx context.Context, caseID, gstin string, payload []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cases SET gstin = $2, gst_data = $3, updated_at = NOW()
		WHERE case_id = $1 AND (gst_data IS NULL OR gstin IS DISTINCT FROM $2)`,
		caseID, gstin, payload)
	if err != nil {
		return false, fmt.Errorf("failed to cache GST data: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ApplyGSTDescriptors overwrites borrower descriptors from GST authority data.
// GST-sourced values take precedence over manual entries.
func (s *Store) ApplyGSTDescriptors(ctx context.Context, caseID string, name, entityType, industry, pincode *string, vintageYears *float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cases SET
			borrower_name = COALESCE($2, borrower_name),
			entity_type = COALESCE($3, entity_type),
			industry_type = COALESCE($4, industry_type),
			pincode = COALESCE($5, pincode),
			business_vintage_years = COALESCE($6, business_vintage_years),
			updated_at = NOW()
		WHERE case_id = $1`,
		caseID, name, entityType, industry, pincode, vintageYears)
	if err != nil {
		return fmt.Errorf("failed to apply GST descriptors: %w", err)
	}
	return nil
}

// DeleteCase hard-deletes a case; dependent rows cascade.
// Returns the storage keys of its documents so the caller can clean up files.
func (s *Store) DeleteCase(ctx context.Context, caseID string) ([]string, error) {
	c, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	var keys []string
	if err := s.db.SelectContext(ctx, &keys,
		`SELECT storage_key FROM documents WHERE case_id = $1`, c.ID); err != nil {
		return nil, fmt.Errorf("failed to list storage keys: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cases WHERE case_id = $1`, caseID); err != nil {
		return nil, fmt.Errorf("failed to delete case %s: %w", caseID, err)
	}

	return keys, nil
}
