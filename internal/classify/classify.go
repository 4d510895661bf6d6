// Package classify identifies document kinds from filenames and OCR text.
//
// Three layers, applied in order with early exit on high confidence:
// filename patterns (0.90), an optional model score hook (accepted at 0.75),
// and keyword rules with per-kind thresholds.
package classify

import (
	"regexp"
	"strings"

	"caseos/internal/store"
)

// Result is a classification outcome with per-kind debug scores.
type Result struct {
	Kind       store.DocumentKind
	Confidence float64
	Method     string
	Scores     map[store.DocumentKind]float64
}

// ModelScorer is the optional ML hook. Implementations return the predicted
// kind with its probability, or ok=false when no model is loaded.
type ModelScorer interface {
	Score(text string) (kind store.DocumentKind, confidence float64, scores map[store.DocumentKind]float64, ok bool)
}

// Classifier applies the layered rules. The zero value is not usable; use New.
type Classifier struct {
	model ModelScorer
}

// New builds a Classifier. model may be nil when no trained model is available.
func New(model ModelScorer) *Classifier {
	return &Classifier{model: model}
}

var filenamePatterns = map[store.DocumentKind][]*regexp.Regexp{
	store.DocBankStatement: {
		regexp.MustCompile(`(?i)(account?_?statement|acct_?stat|bank_?stat|statement.*account)`),
		regexp.MustCompile(`(?i)(hdfc|icici|sbi|axis|kotak|pnb|bob|idbi).*statement`),
		regexp.MustCompile(`(?i)statement.*\d{4,}`),
	},
	store.DocGSTReturns: {
		regexp.MustCompile(`(?i)gstr[-_]?[139]b?`),
		regexp.MustCompile(`(?i)gst.*return`),
		regexp.MustCompile(`(?i)gstr`),
	},
	store.DocGSTCertificate: {
		regexp.MustCompile(`(?i)gst.*cert`),
		regexp.MustCompile(`(?i)gstin`),
		regexp.MustCompile(`(?i)gst.*registration`),
		regexp.MustCompile(`(?i)(^|[^a-z])gst([^a-z]|$)`),
	},
	store.DocUdyamShopLicense: {
		regexp.MustCompile(`(?i)udyam`),
		regexp.MustCompile(`(?i)msme.*cert`),
		regexp.MustCompile(`(?i)shop.*license`),
	},
	store.DocPANPersonal: {
		regexp.MustCompile(`(?i)pan.*card`),
		regexp.MustCompile(`(?i)permanent.*account`),
	},
	store.DocAadhaar: {
		regexp.MustCompile(`(?i)aa?dh?aa?r`),
		regexp.MustCompile(`(?i)uid`),
	},
	store.DocCIBILReport: {
		regexp.MustCompile(`(?i)cibil`),
		regexp.MustCompile(`(?i)credit.*report`),
		regexp.MustCompile(`(?i)transunion`),
	},
	store.DocITR: {
		regexp.MustCompile(`(?i)itr[-_]?\d`),
		regexp.MustCompile(`(?i)income.*tax.*return`),
	},
}

type keywordRule struct {
	keywords  []*regexp.Regexp
	threshold float64
}

var keywordRules = map[store.DocumentKind]keywordRule{
	store.DocAadhaar: {
		keywords: compileAll(
			`(?i)UIDAI`,
			`(?i)Unique\s+Identification`,
			`(?i)Aa?dh?aa?r`,
			`(?i)enrolment`,
			`आधार`,
			`(?i)Government\s+of\s+India`,
			`(?i)Date\s+of\s+Birth|DOB`,
			`(?i)Address.*PIN`,
			`\d{4}\s+\d{4}\s+\d{4}`,
			`(?i)male|female`,
		),
		threshold: 0.40,
	},
	store.DocPANPersonal: {
		keywords: compileAll(
			`(?i)Permanent\s+Account\s+Number`,
			`(?i)Income\s+Tax\s+Department`,
			`(?i)NSDL`,
			`[A-Z]{5}\d{4}[A-Z]`,
			`(?i)Father'?s\s+Name`,
			`(?i)Signature`,
			`(?i)Date\s+of\s+Birth`,
		),
		threshold: 0.40,
	},
	store.DocPANBusiness: {
		keywords: compileAll(
			`(?i)Permanent\s+Account\s+Number`,
			`(?i)Income\s+Tax\s+Department`,
			`(?i)NSDL`,
			`[A-Z]{5}\d{4}[A-Z]`,
			`(?i)(Pvt\.?\s+Ltd|Private\s+Limited|LLP|Partnership|Proprietorship)`,
			`(?i)(Company|Firm|Business|Enterprise)`,
		),
		threshold: 0.40,
	},
	store.DocGSTCertificate: {
		keywords: compileAll(
			`(?i)GSTIN`,
			`(?i)Goods\s+and\s+Services\s+Tax`,
			`(?i)Certificate\s+of\s+Registration`,
			`(?i)GST\s+Registration`,
			`(?i)Tax\s+Payer`,
			`\d{2}[A-Z]{5}\d{4}[A-Z]\dZ[A-Z\d]`,
			`(?i)Date\s+of\s+(Registration|Liability)`,
			`(?i)State\s+Code`,
		),
		threshold: 0.40,
	},
	store.DocGSTReturns: {
		keywords: compileAll(
			`(?i)GSTR[-\s]?[139]B?`,
			`(?i)taxable\s+value`,
			`(?i)CGST`,
			`(?i)SGST`,
			`(?i)IGST`,
			`(?i)Return\s+Period`,
			`(?i)Filing\s+Status`,
			`(?i)Tax\s+(Amount|Liability)`,
			`(?i)Input\s+Tax\s+Credit`,
			`(?i)Form\s+GSTR`,
		),
		threshold: 0.35,
	},
	store.DocBankStatement: {
		keywords: compileAll(
			`(?i)Opening\s+Balance`,
			`(?i)Closing\s+Balance`,
			`(?i)Statement\s+of\s+Account`,
			`(?i)Transaction`,
			`(?i)\b(debit|credit|dr\.?|cr\.?)\b`,
			`(?i)(HDFC|ICICI|SBI|State\s+Bank|Axis|Kotak|PNB|Bank\s+of|IDBI|YES\s+Bank)`,
			`(?i)Account\s+(Number|No\.?)`,
			`(?i)IFSC`,
			`(?i)Branch`,
			`(?i)\b(withdrawal|deposit)\b`,
			`(?i)Balance`,
		),
		threshold: 0.35,
	},
	store.DocITR: {
		keywords: compileAll(
			`(?i)Assessment\s+Year`,
			`(?i)Total\s+Income`,
			`(?i)ITR[-\s]?\d`,
			`(?i)Income\s+Tax\s+Return`,
			`(?i)Verification`,
			`(?i)Acknowledgement\s+Number`,
			`(?i)Tax\s+Payable`,
			`(?i)Gross\s+Total\s+Income`,
			`(?i)Deductions`,
			`(?i)PAN`,
			`(?i)Financial\s+Year`,
		),
		threshold: 0.40,
	},
	store.DocFinancialStatements: {
		keywords: compileAll(
			`(?i)Balance\s+Sheet`,
			`(?i)Profit\s+(and|&)\s+Loss`,
			`(?i)Schedule`,
			`(?i)Audit\s+Report`,
			`(?i)Auditor`,
			`(?i)\b(Assets|Liabilities)\b`,
			`(?i)Equity`,
			`(?i)\b(Revenue|Expenditure)\b`,
			`(?i)Financial\s+(Year|Statement)`,
			`(?i)Chartered\s+Accountant`,
		),
		threshold: 0.40,
	},
	store.DocCIBILReport: {
		keywords: compileAll(
			`(?i)TransUnion`,
			`(?i)Credit\s+Score`,
			`(?i)Credit\s+Information`,
			`(?i)CIBIL`,
			`(?i)Account\s+Summary`,
			`(?i)Enquir(y|ies)`,
			`(?i)Credit\s+History`,
			`(?i)Score\s+Factors`,
			`(?i)Bureau`,
		),
		threshold: 0.40,
	},
	store.DocUdyamShopLicense: {
		keywords: compileAll(
			`(?i)Udyam\s+Registration`,
			`(?i)MSME`,
			`(?i)Shop\s+(and|&)\s+Establishment`,
			`(?i)License`,
			`(?i)Micro,?\s+Small\s+(and|&)\s+Medium\s+Enterprise`,
			`(?i)Registration\s+(Number|Certificate)`,
			`(?i)Udyam`,
			`(?i)Ministry.*MSME`,
		),
		threshold: 0.40,
	},
	store.DocPropertyDocuments: {
		keywords: compileAll(
			`(?i)Sale\s+Deed`,
			`(?i)Registry`,
			`(?i)Property\s+Tax`,
			`(?i)Conveyance`,
			`(?i)Sub-Registrar`,
			`(?i)Plot\s+No`,
			`(?i)Survey\s+Number`,
			`(?i)Property\s+(No|Number)`,
			`(?i)Stamp\s+Duty`,
			`(?i)Registration\s+Fee`,
		),
		threshold: 0.40,
	},
}

var businessIndicators = regexp.MustCompile(`(?i)(Pvt\.?\s+Ltd|Private\s+Limited|LLP|Partnership|Proprietorship|Company|Firm)`)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Classify identifies the document kind from OCR text and filename.
func (c *Classifier) Classify(ocrText, filename string) Result {
	// Filename alone is the strongest signal.
	if filename != "" {
		if fr, ok := c.fromFilename(filename); ok && fr.Confidence >= 0.90 {
			return fr
		}
	}

	if len(strings.TrimSpace(ocrText)) < 10 {
		if filename != "" {
			if fr, ok := c.fromFilename(filename); ok && fr.Confidence >= 0.60 {
				return fr
			}
		}
		return Result{Kind: store.DocUnknown, Confidence: 0, Method: "empty_input"}
	}

	var mlResult *Result
	if c.model != nil {
		if kind, conf, scores, ok := c.model.Score(ocrText); ok {
			r := Result{Kind: kind, Confidence: conf, Method: "ml", Scores: scores}
			if conf >= 0.75 {
				return r
			}
			mlResult = &r
		}
	}

	keywordResult := c.fromKeywords(ocrText)

	if filename != "" {
		if fr, ok := c.fromFilename(filename); ok {
			if fr.Kind == keywordResult.Kind {
				combined := 0.6*fr.Confidence + 0.4*keywordResult.Confidence
				if combined > 0.95 {
					combined = 0.95
				}
				return Result{
					Kind:       keywordResult.Kind,
					Confidence: combined,
					Method:     "hybrid",
					Scores:     keywordResult.Scores,
				}
			}
			if fr.Confidence > keywordResult.Confidence+0.20 {
				return fr
			}
		}
	}

	if mlResult != nil && mlResult.Confidence > keywordResult.Confidence {
		return *mlResult
	}
	return keywordResult
}

func (c *Classifier) fromFilename(filename string) (Result, bool) {
	scores := make(map[store.DocumentKind]float64, len(filenamePatterns))
	for kind, patterns := range filenamePatterns {
		scores[kind] = 0
		for _, p := range patterns {
			if p.MatchString(filename) {
				scores[kind] = 0.90
				break
			}
		}
	}

	bestKind, bestScore := bestOf(scores)
	if bestKind != "" && bestScore >= 0.60 {
		return Result{Kind: bestKind, Confidence: bestScore, Method: "filename", Scores: scores}, true
	}
	return Result{}, false
}

func (c *Classifier) fromKeywords(ocrText string) Result {
	scores := make(map[store.DocumentKind]float64, len(keywordRules))
	for kind, rule := range keywordRules {
		matched := 0
		for _, kw := range rule.keywords {
			if kw.MatchString(ocrText) {
				matched++
			}
		}
		scores[kind] = float64(matched) / float64(len(rule.keywords))
	}

	// PAN disambiguation: corporate suffixes flip the score toward business PAN.
	if scores[store.DocPANPersonal] > 0 || scores[store.DocPANBusiness] > 0 {
		if businessIndicators.MatchString(ocrText) {
			scores[store.DocPANBusiness] = max(scores[store.DocPANBusiness], scores[store.DocPANPersonal]+0.1)
			scores[store.DocPANPersonal] = 0
		} else {
			scores[store.DocPANPersonal] = max(scores[store.DocPANPersonal], scores[store.DocPANBusiness]+0.1)
			scores[store.DocPANBusiness] = 0
		}
	}

	bestKind, bestScore := bestOf(scores)
	if bestKind != "" && bestScore >= keywordRules[bestKind].threshold {
		return Result{Kind: bestKind, Confidence: bestScore, Method: "keyword", Scores: scores}
	}
	return Result{Kind: store.DocUnknown, Confidence: bestScore, Method: "keyword", Scores: scores}
}

func bestOf(scores map[store.DocumentKind]float64) (store.DocumentKind, float64) {
	var bestKind store.DocumentKind
	bestScore := 0.0
	for kind, score := range scores {
		if score > bestScore {
			bestScore = score
			bestKind = kind
		}
	}
	return bestKind, bestScore
}
