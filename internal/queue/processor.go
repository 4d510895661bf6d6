package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"caseos/internal/bankstmt"
	"caseos/internal/classify"
	"caseos/internal/extract"
	"caseos/internal/gst"
	"caseos/internal/ocr"
	"caseos/internal/storage"
	"caseos/internal/store"
)

// Processor runs the per-document pipeline: filename-first classification,
// OCR with skip heuristics, content reclassification, field extraction, bank
// statement analysis, and GST autofill. Errors are caught at stage boundaries
// so later stages still run with whatever data exists.
type Processor struct {
	store      *store.Store
	files      storage.Store
	classifier *classify.Classifier
	ocrEngine  ocr.Engine
	extractor  *extract.Extractor
	analyzer   *bankstmt.Analyzer
	authority  gst.Authority
	logger     *zap.Logger
}

// NewProcessor wires the pipeline stages. ocrEngine, analyzer, and authority
// may be nil; the matching stages become no-ops.
func NewProcessor(
	st *store.Store,
	files storage.Store,
	classifier *classify.Classifier,
	ocrEngine ocr.Engine,
	extractor *extract.Extractor,
	analyzer *bankstmt.Analyzer,
	authority gst.Authority,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:      st,
		files:      files,
		classifier: classifier,
		ocrEngine:  ocrEngine,
		extractor:  extractor,
		analyzer:   analyzer,
		authority:  authority,
		logger:     logger,
	}
}

// Process handles one document job end to end.
func (p *Processor) Process(ctx context.Context, job *store.ProcessingJob) error {
	doc, err := p.store.GetDocument(ctx, job.DocumentID)
	if err != nil {
		return err
	}
	c, err := p.store.GetCaseByUUID(ctx, job.CaseID)
	if err != nil {
		return err
	}

	log := p.logger.With(
		zap.String("case_id", c.CaseID),
		zap.String("document", doc.OriginalFilename))

	// Stage 1: filename-first classification.
	result := p.classifier.Classify("", doc.OriginalFilename)
	if result.Kind != store.DocUnknown {
		if err := p.store.SetDocumentClassification(ctx, doc.ID, result.Kind, result.Confidence); err != nil {
			return err
		}
		log.Info("classified from filename",
			zap.String("kind", string(result.Kind)),
			zap.Float64("confidence", result.Confidence))

		// GST docs may carry the GSTIN in the filename; no OCR needed then.
		if result.Kind == store.DocGSTCertificate || result.Kind == store.DocGSTReturns {
			if gstin := gst.FindGSTIN(doc.OriginalFilename); gstin != "" {
				p.fetchGSTData(ctx, c, gstin, log)
			}
		}
	}

	// Bank statements skip OCR and go straight to the analyzer.
	if result.Kind == store.DocBankStatement {
		p.analyzeStatement(ctx, c, doc, log)
		return nil
	}

	ocrText := ""
	if !ocr.ShouldSkip(result.Kind, doc.OriginalFilename) && p.ocrEngine != nil {
		ocrText = p.runOCR(ctx, doc, log)
	}

	// Stage 2: reclassify from content when OCR produced text; keep the
	// filename guess otherwise.
	if len(ocrText) > 3 {
		contentResult := p.classifier.Classify(ocrText, doc.OriginalFilename)
		if contentResult.Kind != store.DocUnknown {
			result = contentResult
			if err := p.store.SetDocumentClassification(ctx, doc.ID, result.Kind, result.Confidence); err != nil {
				return err
			}
			log.Info("classified from content",
				zap.String("kind", string(result.Kind)),
				zap.Float64("confidence", result.Confidence),
				zap.String("method", result.Method))
		}
	}

	if result.Kind == store.DocUnknown {
		// Nothing more to extract; the document stays in the case unclassified.
		return nil
	}

	// Stage 3: field extraction.
	if fields := p.extractor.Extract(ocrText, result.Kind); len(fields) > 0 {
		rows := make([]store.ExtractedField, 0, len(fields))
		for _, f := range fields {
			rows = append(rows, store.ExtractedField{
				FieldName:  f.Name,
				FieldValue: f.Value,
				Confidence: f.Confidence,
				Source:     f.Source,
			})
		}
		docID := doc.ID
		if err := p.store.InsertExtractedFields(ctx, c.ID, &docID, rows); err != nil {
			return err
		}
		log.Info("extracted fields", zap.Int("count", len(rows)))
	}

	// Stage 4: GST autofill from OCR text.
	if result.Kind == store.DocGSTCertificate || result.Kind == store.DocGSTReturns {
		if gstin := gst.FindGSTIN(ocrText); gstin != "" {
			p.fetchGSTData(ctx, c, gstin, log)
		}
	}

	return nil
}

func (p *Processor) runOCR(ctx context.Context, doc *store.Document, log *zap.Logger) string {
	data, err := p.files.Get(doc.StorageKey)
	if err != nil {
		log.Warn("failed to read stored file for OCR", zap.Error(err))
		return ""
	}

	result, err := p.ocrEngine.Recognize(ctx, data)
	if err != nil {
		// OCR failure leaves the document classified from filename only.
		log.Warn("OCR failed", zap.Error(err))
		return ""
	}

	if err := p.store.SetDocumentOCRText(ctx, doc.ID, result.Text); err != nil {
		log.Warn("failed to store OCR text", zap.Error(err))
	}
	return result.Text
}

func (p *Processor) analyzeStatement(ctx context.Context, c *store.Case, doc *store.Document, log *zap.Logger) {
	if p.analyzer == nil {
		return
	}

	// Metrics span the whole case: gather every statement PDF uploaded so
	// far, so a second statement re-runs the analysis over both.
	pdfs := [][]byte{}
	docs, err := p.store.ListDocuments(ctx, c.ID)
	if err != nil {
		log.Warn("failed to list case documents", zap.Error(err))
		docs = nil
	}
	for _, d := range docs {
		if d.ID == doc.ID {
			continue
		}
		if d.DocType == nil || *d.DocType != store.DocBankStatement {
			continue
		}
		data, err := p.files.Get(d.StorageKey)
		if err != nil {
			log.Warn("failed to read statement PDF", zap.String("key", d.StorageKey), zap.Error(err))
			continue
		}
		pdfs = append(pdfs, data)
	}

	data, err := p.files.Get(doc.StorageKey)
	if err != nil {
		log.Warn("failed to read statement PDF", zap.Error(err))
		return
	}
	pdfs = append(pdfs, data)

	res := p.analyzer.Analyze(ctx, pdfs)
	if res.TimedOut {
		log.Warn("bank statement analysis timed out")
		return
	}
	if res.TransactionCount == 0 {
		log.Warn("bank statement analysis produced no transactions", zap.String("source", res.Source))
		return
	}

	fields := StatementFields(res)
	docID := doc.ID
	if err := p.store.InsertExtractedFields(ctx, c.ID, &docID, fields); err != nil {
		log.Warn("failed to persist bank analysis fields", zap.Error(err))
		return
	}
	log.Info("bank statement analyzed",
		zap.Int("transactions", res.TransactionCount),
		zap.Float64("confidence", res.Confidence))
}

// StatementFields converts an analyzer result into bank_analysis evidence rows.
func StatementFields(res *bankstmt.Result) []store.ExtractedField {
	conf := res.Confidence
	var fields []store.ExtractedField

	addFloat := func(name string, v *float64) {
		if v == nil {
			return
		}
		fields = append(fields, store.ExtractedField{
			FieldName:  name,
			FieldValue: fmt.Sprintf("%g", *v),
			Confidence: conf,
			Source:     store.SourceBankAnalysis,
		})
	}

	addFloat("avg_monthly_balance", res.AvgMonthlyBalance)
	addFloat("monthly_credit_avg", res.MonthlyCreditAvg)
	// Bank credits define turnover for banking-program scoring.
	addFloat("monthly_turnover", res.MonthlyCreditAvg)
	if res.MonthlyCreditAvg != nil {
		annual := *res.MonthlyCreditAvg * 12 / 100000
		addFloat("annual_turnover", &annual)
	}
	addFloat("emi_outflow_monthly", res.EMIOutflowMonthly)
	addFloat("cash_deposit_ratio", res.CashDepositRatio)

	fields = append(fields, store.ExtractedField{
		FieldName:  "bounce_count_12m",
		FieldValue: fmt.Sprintf("%d", res.BounceCount12M),
		Confidence: conf,
		Source:     store.SourceBankAnalysis,
	})

	if summary, err := json.Marshal(res.MonthlySummaries); err == nil {
		fields = append(fields, store.ExtractedField{
			FieldName:  "bank_monthly_summary",
			FieldValue: string(summary),
			Confidence: conf,
			Source:     store.SourceBankAnalysis,
		})
	}
	if res.ParserSummary != nil {
		if summary, err := json.Marshal(res.ParserSummary); err == nil {
			fields = append(fields, store.ExtractedField{
				FieldName:  "bank_parser_summary",
				FieldValue: string(summary),
				Confidence: conf,
				Source:     store.SourceBankAnalysis,
			})
		}
	}

	return fields
}

func (p *Processor) fetchGSTData(ctx context.Context, c *store.Case, gstin string, log *zap.Logger) {
	if p.authority == nil {
		return
	}

	// Skip when this GSTIN is already cached for the case.
	if c.GSTIN != nil && *c.GSTIN == gstin && len(c.GSTData) > 0 {
		return
	}

	details, err := p.authority.FetchCompanyDetails(ctx, gstin)
	if err != nil {
		// Authority failure persists the GSTIN without borrower fields.
		log.Warn("GST authority call failed", zap.String("gstin", gstin), zap.Error(err))
		if _, cacheErr := p.store.CacheGSTData(ctx, c.CaseID, gstin, nil); cacheErr != nil {
			log.Warn("failed to persist GSTIN", zap.Error(cacheErr))
		}
		return
	}
	if details == nil {
		log.Info("GST authority has no record", zap.String("gstin", gstin))
		return
	}

	payload, err := json.Marshal(details)
	if err != nil {
		log.Warn("failed to encode GST payload", zap.Error(err))
		return
	}

	won, err := p.store.CacheGSTData(ctx, c.CaseID, gstin, payload)
	if err != nil {
		log.Warn("failed to cache GST data", zap.Error(err))
		return
	}
	if !won {
		return
	}

	var name, entityType, industry, pincode *string
	if details.BorrowerName != "" {
		name = &details.BorrowerName
	}
	if details.EntityType != "" {
		entityType = &details.EntityType
	}
	if details.IndustryType != "" {
		industry = &details.IndustryType
	}
	if details.Pincode != "" {
		pincode = &details.Pincode
	}

	if err := p.store.ApplyGSTDescriptors(ctx, c.CaseID, name, entityType, industry, pincode, details.BusinessVintageYears); err != nil {
		log.Warn("failed to apply GST descriptors", zap.Error(err))
		return
	}
	log.Info("case enriched from GST authority", zap.String("gstin", gstin))
}
