package store

import (
	"context"
	"fmt"
)

// ReplaceEligibilityResults deletes prior rows for the case and bulk-inserts
// the new ones inside one transaction.
func (s *Store) ReplaceEligibilityResults(ctx context.Context, caseUUID string, rows []EligibilityRow) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM eligibility_results WHERE case_id = $1`, caseUUID); err != nil {
		return fmt.Errorf("failed to delete prior eligibility rows: %w", err)
	}

	for _, r := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO eligibility_results (case_id, lender_product_id,
				hard_filter_status, hard_filter_details, eligibility_score,
				approval_probability, expected_ticket_min, expected_ticket_max,
				confidence, missing_for_improvement, rank)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			caseUUID, r.LenderProductID, r.HardFilterStatus, r.HardFilterDetails,
			r.EligibilityScore, r.ApprovalProb, r.ExpectedTicketMin, r.ExpectedTicketMax,
			r.Confidence, r.MissingForImprove, r.Rank)
		if err != nil {
			return fmt.Errorf("failed to insert eligibility row for %s: %w", r.LenderProductID, err)
		}
	}

	return tx.Commit()
}

// ListEligibilityResults loads persisted rows joined with lender and product
// names, ranked rows first.
func (s *Store) ListEligibilityResults(ctx context.Context, caseUUID string) ([]EligibilityRow, error) {
	var rows []EligibilityRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT er.id, er.case_id, er.lender_product_id,
			er.hard_filter_status, er.hard_filter_details, er.eligibility_score,
			er.approval_probability, er.expected_ticket_min, er.expected_ticket_max,
			er.confidence, er.missing_for_improvement, er.rank, er.created_at,
			l.lender_name, lp.product_name
		FROM eligibility_results er
		INNER JOIN lender_products lp ON er.lender_product_id = lp.id
		INNER JOIN lenders l ON lp.lender_id = l.id
		WHERE er.case_id = $1
		ORDER BY er.rank NULLS LAST, er.eligibility_score DESC NULLS LAST`, caseUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligibility results: %w", err)
	}
	return rows, nil
}

// InsertCaseReport stores one generated report version.
func (s *Store) InsertCaseReport(ctx context.Context, caseUUID string, reportData []byte, pdfKey *string) (*CaseReport, error) {
	var r CaseReport
	err := s.db.GetContext(ctx, &r, `
		INSERT INTO case_reports (case_id, report_data, pdf_storage_key)
		VALUES ($1, $2, $3)
		RETURNING id, case_id, report_data, pdf_storage_key, created_at`,
		caseUUID, reportData, pdfKey)
	if err != nil {
		return nil, fmt.Errorf("failed to insert case report: %w", err)
	}
	return &r, nil
}

// LatestCaseReport returns the most recent report version for a case, or nil.
func (s *Store) LatestCaseReport(ctx context.Context, caseUUID string) (*CaseReport, error) {
	var reports []CaseReport
	err := s.db.SelectContext(ctx, &reports, `
		SELECT id, case_id, report_data, pdf_storage_key, created_at
		FROM case_reports WHERE case_id = $1
		ORDER BY created_at DESC LIMIT 1`, caseUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case report: %w", err)
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return &reports[0], nil
}

// InsertQuickScan persists a synchronous pre-check outcome.
func (s *Store) InsertQuickScan(ctx context.Context, scan *QuickScan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quick_scans (user_id, borrower_name, pincode, result_data, lenders_passed)
		VALUES ($1, $2, $3, $4, $5)`,
		scan.UserID, scan.BorrowerName, scan.Pincode, scan.ResultData, scan.LendersPass)
	if err != nil {
		return fmt.Errorf("failed to insert quick scan: %w", err)
	}
	return nil
}
