package store

import (
	"time"

	"github.com/lib/pq"
)

// CaseStatus tracks a case through the pipeline.
type CaseStatus string

const (
	CaseCreated           CaseStatus = "created"
	CaseProcessing        CaseStatus = "processing"
	CaseFeaturesExtracted CaseStatus = "features_extracted"
	CaseEligibilityScored CaseStatus = "eligibility_scored"
	CaseReportGenerated   CaseStatus = "report_generated"
	CaseFailed            CaseStatus = "failed"
)

// ProgramType determines the required-document set for a case.
type ProgramType string

const (
	ProgramBanking ProgramType = "banking"
	ProgramIncome  ProgramType = "income"
	ProgramHybrid  ProgramType = "hybrid"
)

// Valid reports whether p is a known program type.
func (p ProgramType) Valid() bool {
	switch p {
	case ProgramBanking, ProgramIncome, ProgramHybrid:
		return true
	}
	return false
}

// DocumentKind is the closed set of classifiable document types.
type DocumentKind string

const (
	DocAadhaar             DocumentKind = "aadhaar"
	DocPANPersonal         DocumentKind = "pan_personal"
	DocPANBusiness         DocumentKind = "pan_business"
	DocGSTCertificate      DocumentKind = "gst_certificate"
	DocGSTReturns          DocumentKind = "gst_returns"
	DocBankStatement       DocumentKind = "bank_statement"
	DocITR                 DocumentKind = "itr"
	DocFinancialStatements DocumentKind = "financial_statements"
	DocCIBILReport         DocumentKind = "cibil_report"
	DocUdyamShopLicense    DocumentKind = "udyam_shop_license"
	DocPropertyDocuments   DocumentKind = "property_documents"
	DocUnknown             DocumentKind = "unknown"
)

// DocumentStatus tracks a document's lifecycle.
type DocumentStatus string

const (
	DocStatusUploaded    DocumentStatus = "uploaded"
	DocStatusOCRComplete DocumentStatus = "ocr_complete"
	DocStatusClassified  DocumentStatus = "classified"
	DocStatusFailed      DocumentStatus = "failed"
)

// JobStatus tracks a document-processing job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// FilterStatus is the hard-filter outcome for a lender product.
type FilterStatus string

const (
	FilterPass FilterStatus = "pass"
	FilterFail FilterStatus = "fail"
)

// ApprovalProbability buckets a passing eligibility score.
type ApprovalProbability string

const (
	ProbabilityHigh   ApprovalProbability = "high"
	ProbabilityMedium ApprovalProbability = "medium"
	ProbabilityLow    ApprovalProbability = "low"
)

// FieldSource tags where an extracted field came from.
const (
	SourceExtraction   = "extraction"
	SourceBankAnalysis = "bank_analysis"
)

// Case is a loan application owned by an operator.
type Case struct {
	ID                   string       `db:"id"`
	CaseID               string       `db:"case_id"`
	UserID               string       `db:"user_id"`
	OrganizationID       *string      `db:"organization_id"`
	Status               CaseStatus   `db:"status"`
	ProgramType          *ProgramType `db:"program_type"`
	BorrowerName         *string      `db:"borrower_name"`
	EntityType           *string      `db:"entity_type"`
	IndustryType         *string      `db:"industry_type"`
	Pincode              *string      `db:"pincode"`
	BusinessVintageYears *float64     `db:"business_vintage_years"`
	LoanAmountRequested  *float64     `db:"loan_amount_requested"`
	CIBILScoreManual     *int         `db:"cibil_score_manual"`
	MonthlyTurnoverMan   *float64     `db:"monthly_turnover_manual"`
	GSTIN                *string      `db:"gstin"`
	GSTData              []byte       `db:"gst_data"`
	CompletenessScore    float64      `db:"completeness_score"`
	CreatedAt            time.Time    `db:"created_at"`
	UpdatedAt            time.Time    `db:"updated_at"`
}

// Document belongs to exactly one case.
type Document struct {
	ID                 string         `db:"id"`
	CaseID             string         `db:"case_id"`
	OriginalFilename   string         `db:"original_filename"`
	StorageKey         string         `db:"storage_key"`
	SizeBytes          int64          `db:"size_bytes"`
	MimeType           string         `db:"mime_type"`
	FileHash           string         `db:"file_hash"`
	DocType            *DocumentKind  `db:"doc_type"`
	ClassificationConf *float64       `db:"classification_confidence"`
	OCRText            *string        `db:"ocr_text"`
	Status             DocumentStatus `db:"status"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

// ProcessingJob owns the classification → OCR → extraction ordering for one document.
type ProcessingJob struct {
	ID          string     `db:"id"`
	CaseID      string     `db:"case_id"`
	DocumentID  string     `db:"document_id"`
	Status      JobStatus  `db:"status"`
	Attempts    int        `db:"attempts"`
	MaxAttempts int        `db:"max_attempts"`
	LastError   *string    `db:"last_error"`
	LeasedAt    *time.Time `db:"leased_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// ExtractedField is one append-only evidence row for a case.
type ExtractedField struct {
	ID         string    `db:"id"`
	CaseID     string    `db:"case_id"`
	DocumentID *string   `db:"document_id"`
	FieldName  string    `db:"field_name"`
	FieldValue string    `db:"field_value"`
	Confidence float64   `db:"confidence"`
	Source     string    `db:"source"`
	CreatedAt  time.Time `db:"created_at"`
}

// BorrowerFeatures is the canonical per-case feature vector. Exactly one row per case.
type BorrowerFeatures struct {
	CaseID string `db:"case_id"`

	// Identity
	FullName      *string    `db:"full_name"`
	PANNumber     *string    `db:"pan_number"`
	AadhaarNumber *string    `db:"aadhaar_number"`
	DOB           *time.Time `db:"dob"`

	// Business
	EntityType           *string  `db:"entity_type"`
	BusinessVintageYears *float64 `db:"business_vintage_years"`
	GSTIN                *string  `db:"gstin"`
	IndustryType         *string  `db:"industry_type"`
	Pincode              *string  `db:"pincode"`

	// Financial
	AnnualTurnover    *float64 `db:"annual_turnover"`
	AvgMonthlyBalance *float64 `db:"avg_monthly_balance"`
	MonthlyCreditAvg  *float64 `db:"monthly_credit_avg"`
	MonthlyTurnover   *float64 `db:"monthly_turnover"`
	EMIOutflowMonthly *float64 `db:"emi_outflow_monthly"`
	BounceCount12M    *int     `db:"bounce_count_12m"`
	CashDepositRatio  *float64 `db:"cash_deposit_ratio"`
	ITRTotalIncome    *float64 `db:"itr_total_income"`

	// Credit
	CIBILScore      *int `db:"cibil_score"`
	ActiveLoanCount *int `db:"active_loan_count"`
	OverdueCount    *int `db:"overdue_count"`
	EnquiryCount6M  *int `db:"enquiry_count_6m"`

	FeatureCompleteness float64   `db:"feature_completeness"`
	UpdatedAt           time.Time `db:"updated_at"`
}

// Lender is a lending institution in the knowledge base.
type Lender struct {
	ID         string    `db:"id"`
	LenderName string    `db:"lender_name"`
	LenderCode string    `db:"lender_code"`
	IsActive   bool      `db:"is_active"`
	CreatedAt  time.Time `db:"created_at"`
}

// LenderProduct holds the full policy row for one lender×product.
type LenderProduct struct {
	ID                  string         `db:"id"`
	LenderID            string         `db:"lender_id"`
	ProductName         string         `db:"product_name"`
	ProgramType         ProgramType    `db:"program_type"`
	PolicyAvailable     bool           `db:"policy_available"`
	MinVintageYears     *float64       `db:"min_vintage_years"`
	MinCIBILScore       *int           `db:"min_cibil_score"`
	MinTurnoverAnnual   *float64       `db:"min_turnover_annual"`
	MaxTicketSize       *float64       `db:"max_ticket_size"`
	MinABB              *float64       `db:"min_abb"`
	ABBToEMIRatio       *string        `db:"abb_to_emi_ratio"`
	EligibleEntityTypes pq.StringArray `db:"eligible_entity_types"`
	AgeMin              *int           `db:"age_min"`
	AgeMax              *int           `db:"age_max"`
	No30PlusDPDMonths   *int           `db:"no_30plus_dpd_months"`
	No60PlusDPDMonths   *int           `db:"no_60plus_dpd_months"`
	No90PlusDPDMonths   *int           `db:"no_90plus_dpd_months"`
	MaxEnquiriesRule    *string        `db:"max_enquiries_rule"`
	EMIBounceRule       *string        `db:"emi_bounce_rule"`
	BankingMonthsReq    *int           `db:"banking_months_required"`
	OwnershipProofReq   bool           `db:"ownership_proof_required"`
	GSTRequired         bool           `db:"gst_required"`
	KYCDocuments        *string        `db:"kyc_documents"`
	TelePDRequired      bool           `db:"tele_pd_required"`
	VideoKYCRequired    bool           `db:"video_kyc_required"`
	FIRequired          bool           `db:"fi_required"`
	InterestRateRange   *string        `db:"interest_rate_range"`
	ProcessingFeePct    *float64       `db:"processing_fee_pct"`
	ExpectedTATDays     *int           `db:"expected_tat_days"`
	TenorMinMonths      *int           `db:"tenor_min_months"`
	TenorMaxMonths      *int           `db:"tenor_max_months"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

// ProductRule is the scoring view of a lender product: the product row joined
// with its lender name.
type ProductRule struct {
	LenderProduct
	LenderName string `db:"lender_name"`
}

// EligibilityRow is one persisted (case, lender_product) scoring outcome.
type EligibilityRow struct {
	ID                string         `db:"id"`
	CaseID            string         `db:"case_id"`
	LenderProductID   string         `db:"lender_product_id"`
	LenderName        string         `db:"lender_name"`
	ProductName       string         `db:"product_name"`
	HardFilterStatus  FilterStatus   `db:"hard_filter_status"`
	HardFilterDetails []byte         `db:"hard_filter_details"`
	EligibilityScore  *float64       `db:"eligibility_score"`
	ApprovalProb      *string        `db:"approval_probability"`
	ExpectedTicketMin *float64       `db:"expected_ticket_min"`
	ExpectedTicketMax *float64       `db:"expected_ticket_max"`
	Confidence        float64        `db:"confidence"`
	MissingForImprove pq.StringArray `db:"missing_for_improvement"`
	Rank              *int           `db:"rank"`
	CreatedAt         time.Time      `db:"created_at"`
}

// CaseReport is one generated report version.
type CaseReport struct {
	ID         string    `db:"id"`
	CaseID     string    `db:"case_id"`
	ReportData []byte    `db:"report_data"`
	PDFKey     *string   `db:"pdf_storage_key"`
	CreatedAt  time.Time `db:"created_at"`
}

// QuickScan is a persisted synchronous pre-check outcome.
type QuickScan struct {
	ID           string    `db:"id"`
	UserID       *string   `db:"user_id"`
	BorrowerName *string   `db:"borrower_name"`
	Pincode      *string   `db:"pincode"`
	ResultData   []byte    `db:"result_data"`
	LendersPass  int       `db:"lenders_passed"`
	CreatedAt    time.Time `db:"created_at"`
}
