package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const documentColumns = `id, case_id, original_filename, storage_key, size_bytes,
	mime_type, file_hash, doc_type, classification_confidence, ocr_text, status,
	created_at, updated_at`

// InsertDocument persists a new document row. Returns (nil, false, nil) when a
// document with the same content hash already exists in the case (dedup).
func (s *Store) InsertDocument(ctx context.Context, d *Document) (*Document, bool, error) {
	var out Document
	err := s.db.GetContext(ctx, &out, `
		INSERT INTO documents (case_id, original_filename, storage_key, size_bytes,
			mime_type, file_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (case_id, file_hash) DO NOTHING
		RETURNING `+documentColumns,
		d.CaseID, d.OriginalFilename, d.StorageKey, d.SizeBytes,
		d.MimeType, d.FileHash, DocStatusUploaded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert document: %w", err)
	}
	return &out, true, nil
}

// GetDocument fetches a document by id.
func (s *Store) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	var d Document
	err := s.db.GetContext(ctx, &d,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, documentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", documentID, sql.ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", documentID, err)
	}
	return &d, nil
}

// ListDocuments returns all documents of a case (by internal case UUID).
func (s *Store) ListDocuments(ctx context.Context, caseUUID string) ([]Document, error) {
	var docs []Document
	err := s.db.SelectContext(ctx, &docs,
		`SELECT `+documentColumns+` FROM documents WHERE case_id = $1 ORDER BY created_at`, caseUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// SetDocumentClassification records a classification outcome.
func (s *Store) SetDocumentClassification(ctx context.Context, documentID string, kind DocumentKind, confidence float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET doc_type = $2, classification_confidence = $3,
			status = $4, updated_at = NOW()
		WHERE id = $1`,
		documentID, kind, confidence, DocStatusClassified)
	if err != nil {
		return fmt.Errorf("failed to set classification: %w", err)
	}
	return nil
}

// SetDocumentOCRText stores the extracted text and marks OCR complete.
func (s *Store) SetDocumentOCRText(ctx context.Context, documentID, text string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE documents SET ocr_text = $2, status = $3, updated_at = NOW()
		WHERE id = $1`,
		documentID, text, DocStatusOCRComplete)
	if err != nil {
		return fmt.Errorf("failed to set OCR text: %w", err)
	}
	return nil
}

// SetDocumentStatus updates only the lifecycle status.
func (s *Store) SetDocumentStatus(ctx context.Context, documentID string, status DocumentStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = $2, updated_at = NOW() WHERE id = $1`,
		documentID, status)
	if err != nil {
		return fmt.Errorf("failed to set document status: %w", err)
	}
	return nil
}

// InsertExtractedFields appends evidence rows for a case. History is
// append-only; rows are never updated in place.
func (s *Store) InsertExtractedFields(ctx context.Context, caseUUID string, documentID *string, fields []ExtractedField) error {
	for _, f := range fields {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO extracted_fields (case_id, document_id, field_name, field_value, confidence, source)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			caseUUID, documentID, f.FieldName, f.FieldValue, f.Confidence, f.Source)
		if err != nil {
			return fmt.Errorf("failed to insert extracted field %s: %w", f.FieldName, err)
		}
	}
	return nil
}

// ListExtractedFields returns all evidence rows for a case, newest first so
// readers can take the latest row per field name.
func (s *Store) ListExtractedFields(ctx context.Context, caseUUID string) ([]ExtractedField, error) {
	var fields []ExtractedField
	err := s.db.SelectContext(ctx, &fields, `
		SELECT id, case_id, document_id, field_name, field_value, confidence, source, created_at
		FROM extracted_fields WHERE case_id = $1
		ORDER BY created_at DESC, confidence DESC`, caseUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to list extracted fields: %w", err)
	}
	return fields, nil
}

// UpsertBorrowerFeatures persists the assembled vector, one row per case.
func (s *Store) UpsertBorrowerFeatures(ctx context.Context, f *BorrowerFeatures) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO borrower_features (case_id, full_name, pan_number, aadhaar_number, dob,
			entity_type, business_vintage_years, gstin, industry_type, pincode,
			annual_turnover, avg_monthly_balance, monthly_credit_avg, monthly_turnover,
			emi_outflow_monthly, bounce_count_12m, cash_deposit_ratio, itr_total_income,
			cibil_score, active_loan_count, overdue_count, enquiry_count_6m,
			feature_completeness, updated_at)
		VALUES (:case_id, :full_name, :pan_number, :aadhaar_number, :dob,
			:entity_type, :business_vintage_years, :gstin, :industry_type, :pincode,
			:annual_turnover, :avg_monthly_balance, :monthly_credit_avg, :monthly_turnover,
			:emi_outflow_monthly, :bounce_count_12m, :cash_deposit_ratio, :itr_total_income,
			:cibil_score, :active_loan_count, :overdue_count, :enquiry_count_6m,
			:feature_completeness, NOW())
		ON CONFLICT (case_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			pan_number = EXCLUDED.pan_number,
			aadhaar_number = EXCLUDED.aadhaar_number,
			dob = EXCLUDED.dob,
			entity_type = EXCLUDED.entity_type,
			business_vintage_years = EXCLUDED.business_vintage_years,
			gstin = EXCLUDED.gstin,
			industry_type = EXCLUDED.industry_type,
			pincode = EXCLUDED.pincode,
			annual_turnover = EXCLUDED.annual_turnover,
			avg_monthly_balance = EXCLUDED.avg_monthly_balance,
			monthly_credit_avg = EXCLUDED.monthly_credit_avg,
			monthly_turnover = EXCLUDED.monthly_turnover,
			emi_outflow_monthly = EXCLUDED.emi_outflow_monthly,
			bounce_count_12m = EXCLUDED.bounce_count_12m,
			cash_deposit_ratio = EXCLUDED.cash_deposit_ratio,
			itr_total_income = EXCLUDED.itr_total_income,
			cibil_score = EXCLUDED.cibil_score,
			active_loan_count = EXCLUDED.active_loan_count,
			overdue_count = EXCLUDED.overdue_count,
			enquiry_count_6m = EXCLUDED.enquiry_count_6m,
			feature_completeness = EXCLUDED.feature_completeness,
			updated_at = NOW()`, f)
	if err != nil {
		return fmt.Errorf("failed to upsert borrower features: %w", err)
	}
	return nil
}

// GetBorrowerFeatures fetches the feature vector for a case UUID.
func (s *Store) GetBorrowerFeatures(ctx context.Context, caseUUID string) (*BorrowerFeatures, error) {
	var f BorrowerFeatures
	err := s.db.GetContext(ctx, &f, `
		SELECT case_id, full_name, pan_number, aadhaar_number, dob,
			entity_type, business_vintage_years, gstin, industry_type, pincode,
			annual_turnover, avg_monthly_balance, monthly_credit_avg, monthly_turnover,
			emi_outflow_monthly, bounce_count_12m, cash_deposit_ratio, itr_total_income,
			cibil_score, active_loan_count, overdue_count, enquiry_count_6m,
			feature_completeness, updated_at
		FROM borrower_features WHERE case_id = $1`, caseUUID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New("borrower features not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get borrower features: %w", err)
	}
	return &f, nil
}
