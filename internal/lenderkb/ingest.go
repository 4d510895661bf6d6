package lenderkb

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"caseos/internal/store"
)

// Ingestor loads policy and pincode CSVs into the knowledge base. Ingestion
// is expected to run offline; readers never block on it.
type Ingestor struct {
	store  *store.Store
	logger *zap.Logger
}

// NewIngestor builds an Ingestor.
func NewIngestor(st *store.Store, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{store: st, logger: logger}
}

// PolicyStats summarizes one policy-CSV ingestion run.
type PolicyStats struct {
	RowsProcessed   int
	LendersCreated  int
	ProductsCreated int
	ProductsUpdated int
	Errors          int
}

// IngestPolicyCSV reads the lender policy table (one row per lender×product)
// and upserts lenders and products.
func (ing *Ingestor) IngestPolicyCSV(ctx context.Context, r io.Reader) (PolicyStats, error) {
	var stats PolicyStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return stats, fmt.Errorf("failed to read policy CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.Errors++
			ing.logger.Warn("bad policy CSV record", zap.Error(err))
			continue
		}
		stats.RowsProcessed++

		row := map[string]string{}
		for i, cell := range record {
			if i < len(header) {
				row[header[i]] = strings.TrimSpace(cell)
			}
		}

		lenderName := row["Lender"]
		if lenderName == "" {
			stats.Errors++
			continue
		}
		lenderName = normalizeLenderName(lenderName)

		code := strings.ReplaceAll(strings.ToUpper(lenderName), " ", "_")
		if len(code) > 20 {
			code = code[:20]
		}

		lenderID, created, err := ing.store.GetOrCreateLender(ctx, lenderName, code)
		if err != nil {
			stats.Errors++
			ing.logger.Error("failed to upsert lender", zap.String("lender", lenderName), zap.Error(err))
			continue
		}
		if created {
			stats.LendersCreated++
		}

		product := parsePolicyRow(row, lenderID)
		inserted, err := ing.store.UpsertLenderProduct(ctx, product)
		if err != nil {
			stats.Errors++
			ing.logger.Error("failed to upsert product",
				zap.String("lender", lenderName),
				zap.String("product", product.ProductName),
				zap.Error(err))
			continue
		}
		if inserted {
			stats.ProductsCreated++
		} else {
			stats.ProductsUpdated++
		}
	}

	return stats, nil
}

func parsePolicyRow(row map[string]string, lenderID string) *store.LenderProduct {
	productName := row["Product Program"]
	if productName == "" {
		productName = "BL"
	}

	p := &store.LenderProduct{
		LenderID:        lenderID,
		ProductName:     productName,
		ProgramType:     inferProgramType(productName),
		PolicyAvailable: policyAvailable(row),
	}

	p.MinVintageYears = parseFloatValue(row["Min. Vintage"])
	p.MinCIBILScore = parseIntegerValue(row["Min. Score"])
	p.MinTurnoverAnnual = parseFloatValue(row["Min. Turnover"])
	p.MaxTicketSize = parseFloatValue(row["Max Ticket size"])

	// ABB cells mix a number with ratio text ("25L or 10% of EMI").
	if abb := row["ABB"]; !isEmptyCell(abb) {
		lower := strings.ToLower(abb)
		if strings.Contains(lower, "or") || strings.Contains(lower, "ratio") {
			parts := strings.SplitN(abb, "or", 2)
			p.MinABB = parseFloatValue(parts[0])
			if len(parts) == 2 {
				ratio := strings.TrimSpace(parts[1])
				p.ABBToEMIRatio = &ratio
			}
		} else {
			p.MinABB = parseFloatValue(abb)
		}
	}

	p.EligibleEntityTypes = parseEntityTypes(row["Entity"])
	p.AgeMin, p.AgeMax = parseAgeRange(row["Age"])

	p.No30PlusDPDMonths = parseMonths(row["No 30+"])
	p.No60PlusDPDMonths = parseMonths(row["60+"])
	p.No90PlusDPDMonths = parseMonths(row["90+"])

	if v := row["Enquiries"]; v != "" {
		p.MaxEnquiriesRule = &v
	}
	if v := row["EMI bounce"]; v != "" {
		p.EMIBounceRule = &v
	}

	p.BankingMonthsReq = parseMonths(row["Banking Statement"])
	p.OwnershipProofReq = parseBoolean(row["Ownership Proof"])
	p.GSTRequired = parseBoolean(row["GST"])
	if v := row["KYC Doc"]; v != "" {
		p.KYCDocuments = &v
	}

	p.TelePDRequired = parseBoolean(row["Tele PD"])
	p.VideoKYCRequired = parseBoolean(row["Video KYC"])
	p.FIRequired = parseBoolean(row["FI"])

	p.TenorMinMonths = parseIntegerValue(row["Tenor Min"])
	p.TenorMaxMonths = parseIntegerValue(row["Tenor Max"])

	return p
}

// PincodeStats summarizes one pincode-CSV ingestion run.
type PincodeStats struct {
	LendersMapped     int
	PincodesCreated   int
	SkippedNonNumeric int
	Errors            int
}

// IngestPincodeCSV reads the column-wise coverage table: each header names a
// lender, each cell holds a six-digit pincode.
func (ing *Ingestor) IngestPincodeCSV(ctx context.Context, r io.Reader) (PincodeStats, error) {
	var stats PincodeStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return stats, fmt.Errorf("failed to read pincode CSV header: %w", err)
	}

	// Column index → pincodes.
	pincodesByColumn := make([][]string, len(header))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.Errors++
			continue
		}
		for i, cell := range record {
			if i >= len(header) {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if !validPincode(cell) {
				stats.SkippedNonNumeric++
				continue
			}
			pincodesByColumn[i] = append(pincodesByColumn[i], cell)
		}
	}

	lenders, err := ing.store.ListLenders(ctx)
	if err != nil {
		return stats, err
	}

	for i, column := range header {
		column = strings.TrimSpace(column)
		if column == "" || len(pincodesByColumn[i]) == 0 {
			continue
		}

		normalized := strings.ToUpper(normalizeLenderName(column))
		var lenderID string
		for _, l := range lenders {
			name := strings.ToUpper(l.LenderName)
			if strings.Contains(name, normalized) || strings.Contains(normalized, name) {
				lenderID = l.ID
				break
			}
		}
		if lenderID == "" {
			stats.Errors++
			ing.logger.Warn("no matching lender for pincode column", zap.String("column", column))
			continue
		}
		stats.LendersMapped++

		for _, pincode := range pincodesByColumn[i] {
			inserted, err := ing.store.UpsertPincode(ctx, lenderID, column, pincode)
			if err != nil {
				stats.Errors++
				continue
			}
			if inserted {
				stats.PincodesCreated++
			}
		}
	}

	return stats, nil
}
