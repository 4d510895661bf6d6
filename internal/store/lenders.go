package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"caseos/internal/caseerr"
)

const productColumns = `id, lender_id, product_name, program_type, policy_available,
	min_vintage_years, min_cibil_score, min_turnover_annual, max_ticket_size, min_abb,
	abb_to_emi_ratio, eligible_entity_types, age_min, age_max,
	no_30plus_dpd_months, no_60plus_dpd_months, no_90plus_dpd_months,
	max_enquiries_rule, emi_bounce_rule, banking_months_required,
	ownership_proof_required, gst_required, kyc_documents,
	tele_pd_required, video_kyc_required, fi_required,
	interest_rate_range, processing_fee_pct, expected_tat_days,
	tenor_min_months, tenor_max_months, created_at, updated_at`

// GetOrCreateLender returns the lender id, creating the row when absent.
func (s *Store) GetOrCreateLender(ctx context.Context, name, code string) (string, bool, error) {
	var id string
	err := s.db.GetContext(ctx, &id,
		`SELECT id FROM lenders WHERE lender_name = $1`, name)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("failed to look up lender %s: %w", name, err)
	}

	err = s.db.GetContext(ctx, &id, `
		INSERT INTO lenders (lender_name, lender_code, is_active)
		VALUES ($1, $2, TRUE)
		RETURNING id`, name, code)
	if err != nil {
		return "", false, fmt.Errorf("failed to create lender %s: %w", name, err)
	}
	return id, true, nil
}

// LenderSummary is a lender row with its product and pincode counts.
type LenderSummary struct {
	Lender
	ProductCount int `db:"product_count"`
	PincodeCount int `db:"pincode_count"`
}

// ListLenders returns all lenders with counts, ordered by name.
func (s *Store) ListLenders(ctx context.Context) ([]LenderSummary, error) {
	var lenders []LenderSummary
	err := s.db.SelectContext(ctx, &lenders, `
		SELECT l.id, l.lender_name, l.lender_code, l.is_active, l.created_at,
			(SELECT COUNT(*) FROM lender_products lp WHERE lp.lender_id = l.id) AS product_count,
			(SELECT COUNT(*) FROM lender_pincodes pc WHERE pc.lender_id = l.id) AS pincode_count
		FROM lenders l ORDER BY l.lender_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list lenders: %w", err)
	}
	return lenders, nil
}

// GetLenderByName fetches one lender row.
func (s *Store) GetLenderByName(ctx context.Context, name string) (*Lender, error) {
	var l Lender
	err := s.db.GetContext(ctx, &l, `
		SELECT id, lender_name, lender_code, is_active, created_at
		FROM lenders WHERE LOWER(lender_name) = LOWER($1)`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caseerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lender %s: %w", name, err)
	}
	return &l, nil
}

// GetLenderProducts returns the products of one lender.
func (s *Store) GetLenderProducts(ctx context.Context, lenderID string) ([]LenderProduct, error) {
	var products []LenderProduct
	err := s.db.SelectContext(ctx, &products,
		`SELECT `+productColumns+` FROM lender_products WHERE lender_id = $1 ORDER BY product_name`,
		lenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lender products: %w", err)
	}
	return products, nil
}

// UpsertLenderProduct inserts or updates a policy row. Returns true on insert.
func (s *Store) UpsertLenderProduct(ctx context.Context, p *LenderProduct) (bool, error) {
	var inserted bool
	err := s.db.GetContext(ctx, &inserted, `
		INSERT INTO lender_products (lender_id, product_name, program_type, policy_available,
			min_vintage_years, min_cibil_score, min_turnover_annual, max_ticket_size, min_abb,
			abb_to_emi_ratio, eligible_entity_types, age_min, age_max,
			no_30plus_dpd_months, no_60plus_dpd_months, no_90plus_dpd_months,
			max_enquiries_rule, emi_bounce_rule, banking_months_required,
			ownership_proof_required, gst_required, kyc_documents,
			tele_pd_required, video_kyc_required, fi_required,
			interest_rate_range, processing_fee_pct, expected_tat_days,
			tenor_min_months, tenor_max_months)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)
		ON CONFLICT (lender_id, product_name) DO UPDATE SET
			program_type = EXCLUDED.program_type,
			policy_available = EXCLUDED.policy_available,
			min_vintage_years = EXCLUDED.min_vintage_years,
			min_cibil_score = EXCLUDED.min_cibil_score,
			min_turnover_annual = EXCLUDED.min_turnover_annual,
			max_ticket_size = EXCLUDED.max_ticket_size,
			min_abb = EXCLUDED.min_abb,
			abb_to_emi_ratio = EXCLUDED.abb_to_emi_ratio,
			eligible_entity_types = EXCLUDED.eligible_entity_types,
			age_min = EXCLUDED.age_min,
			age_max = EXCLUDED.age_max,
			no_30plus_dpd_months = EXCLUDED.no_30plus_dpd_months,
			no_60plus_dpd_months = EXCLUDED.no_60plus_dpd_months,
			no_90plus_dpd_months = EXCLUDED.no_90plus_dpd_months,
			max_enquiries_rule = EXCLUDED.max_enquiries_rule,
			emi_bounce_rule = EXCLUDED.emi_bounce_rule,
			banking_months_required = EXCLUDED.banking_months_required,
			ownership_proof_required = EXCLUDED.ownership_proof_required,
			gst_required = EXCLUDED.gst_required,
			kyc_documents = EXCLUDED.kyc_documents,
			tele_pd_required = EXCLUDED.tele_pd_required,
			video_kyc_required = EXCLUDED.video_kyc_required,
			fi_required = EXCLUDED.fi_required,
			interest_rate_range = EXCLUDED.interest_rate_range,
			processing_fee_pct = EXCLUDED.processing_fee_pct,
			expected_tat_days = EXCLUDED.expected_tat_days,
			tenor_min_months = EXCLUDED.tenor_min_months,
			tenor_max_months = EXCLUDED.tenor_max_months,
			updated_at = NOW()
		RETURNING (xmax = 0)`,
		p.LenderID, p.ProductName, p.ProgramType, p.PolicyAvailable,
		p.MinVintageYears, p.MinCIBILScore, p.MinTurnoverAnnual, p.MaxTicketSize, p.MinABB,
		p.ABBToEMIRatio, p.EligibleEntityTypes, p.AgeMin, p.AgeMax,
		p.No30PlusDPDMonths, p.No60PlusDPDMonths, p.No90PlusDPDMonths,
		p.MaxEnquiriesRule, p.EMIBounceRule, p.BankingMonthsReq,
		p.OwnershipProofReq, p.GSTRequired, p.KYCDocuments,
		p.TelePDRequired, p.VideoKYCRequired, p.FIRequired,
		p.InterestRateRange, p.ProcessingFeePct, p.ExpectedTATDays,
		p.TenorMinMonths, p.TenorMaxMonths)
	if err != nil {
		return false, fmt.Errorf("failed to upsert product %s: %w", p.ProductName, err)
	}
	return inserted, nil
}

// UpsertPincode records one (lender, pincode) pair. Returns true on insert.
func (s *Store) UpsertPincode(ctx context.Context, lenderID, columnName, pincode string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO lender_pincodes (lender_id, lender_column_name, pincode)
		VALUES ($1, $2, $3)
		ON CONFLICT (lender_id, pincode) DO NOTHING`,
		lenderID, columnName, pincode)
	if err != nil {
		return false, fmt.Errorf("failed to upsert pincode %s: %w", pincode, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ActiveProducts returns every policy-scored product of active lenders,
// optionally filtered by program type.
func (s *Store) ActiveProducts(ctx context.Context, programType *ProgramType) ([]ProductRule, error) {
	query := `
		SELECT lp.id, lp.lender_id, lp.product_name, lp.program_type, lp.policy_available,
			lp.min_vintage_years, lp.min_cibil_score, lp.min_turnover_annual, lp.max_ticket_size,
			lp.min_abb, lp.abb_to_emi_ratio, lp.eligible_entity_types, lp.age_min, lp.age_max,
			lp.no_30plus_dpd_months, lp.no_60plus_dpd_months, lp.no_90plus_dpd_months,
			lp.max_enquiries_rule, lp.emi_bounce_rule, lp.banking_months_required,
			lp.ownership_proof_required, lp.gst_required, lp.kyc_documents,
			lp.tele_pd_required, lp.video_kyc_required, lp.fi_required,
			lp.interest_rate_range, lp.processing_fee_pct, lp.expected_tat_days,
			lp.tenor_min_months, lp.tenor_max_months, lp.created_at, lp.updated_at,
			l.lender_name
		FROM lender_products lp
		INNER JOIN lenders l ON lp.lender_id = l.id
		WHERE l.is_active = TRUE`

	var rules []ProductRule
	var err error
	if programType != nil {
		err = s.db.SelectContext(ctx, &rules, query+` AND lp.program_type = $1 ORDER BY l.lender_name, lp.product_name`, *programType)
	} else {
		err = s.db.SelectContext(ctx, &rules, query+` ORDER BY l.lender_name, lp.product_name`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active products: %w", err)
	}
	return rules, nil
}

// PincodeServiceable reports whether a lender covers a pincode.
func (s *Store) PincodeServiceable(ctx context.Context, lenderID, pincode string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM lender_pincodes
		WHERE lender_id = $1 AND pincode = $2`, lenderID, pincode)
	if err != nil {
		return false, fmt.Errorf("failed to check pincode coverage: %w", err)
	}
	return count > 0, nil
}

// PincodeSet returns all pincodes served by a lender.
func (s *Store) PincodeSet(ctx context.Context, lenderID string) (map[string]struct{}, error) {
	var pincodes []string
	err := s.db.SelectContext(ctx, &pincodes,
		`SELECT pincode FROM lender_pincodes WHERE lender_id = $1`, lenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pincode set: %w", err)
	}
	set := make(map[string]struct{}, len(pincodes))
	for _, p := range pincodes {
		set[p] = struct{}{}
	}
	return set, nil
}

// FindLendersByPincode lists lender names covering a pincode.
func (s *Store) FindLendersByPincode(ctx context.Context, pincode string) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names, `
		SELECT DISTINCT l.lender_name
		FROM lender_pincodes pc
		INNER JOIN lenders l ON pc.lender_id = l.id
		WHERE pc.pincode = $1
		ORDER BY l.lender_name`, pincode)
	if err != nil {
		return nil, fmt.Errorf("failed to find lenders by pincode: %w", err)
	}
	return names, nil
}
