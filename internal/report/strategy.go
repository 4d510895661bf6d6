package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"caseos/internal/eligibility"
	"caseos/internal/store"
)

// StrategyModel is the advisory LLM surface. Any error routes to the
// deterministic fallback; the system works completely without it.
type StrategyModel interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// StrategyGenerator produces the submission strategy text.
type StrategyGenerator struct {
	model   StrategyModel
	timeout time.Duration
	logger  *zap.Logger
}

// NewStrategyGenerator builds a generator. model may be nil (fallback only).
func NewStrategyGenerator(model StrategyModel, timeout time.Duration, logger *zap.Logger) *StrategyGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &StrategyGenerator{model: model, timeout: timeout, logger: logger}
}

// Generate tries the LLM under a tight timeout with zero retries, falling
// back to the deterministic bullet template on any failure.
func (g *StrategyGenerator) Generate(ctx context.Context, b *store.BorrowerFeatures, matches []eligibility.Result, specialNotes string) string {
	passed := passingMatches(matches)
	if len(passed) == 0 {
		return "No eligible lenders found. Address the rejection reasons before submission."
	}

	if g.model == nil {
		return fallbackStrategy(b, passed, specialNotes)
	}

	llmCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.model.Generate(llmCtx, strategySystemPrompt, strategyUserPrompt(b, passed, specialNotes))
	if err != nil || strings.TrimSpace(text) == "" {
		g.logger.Warn("strategy LLM unavailable, using fallback", zap.Error(err))
		return fallbackStrategy(b, passed, specialNotes)
	}
	return strings.TrimSpace(text)
}

const strategySystemPrompt = `You are a senior loan advisor at an Indian lending brokerage.
You write concise, decisive submission strategies for loan agents.
Write in narrative form. Name the primary lender and explain why it leads.
Describe the 2-3 alternative lenders as strategic fallbacks, not just options:
explain when and why to pivot to each one, as a decision tree in narrative form.
Do not invent lender terms that were not provided.`

func strategyUserPrompt(b *store.BorrowerFeatures, passed []eligibility.Result, specialNotes string) string {
	var sb strings.Builder

	creditProfile := "moderate"
	if b.CIBILScore != nil {
		if *b.CIBILScore >= 750 {
			creditProfile = "excellent"
		} else if *b.CIBILScore >= 700 {
			creditProfile = "good"
		}
	}

	top := passed[0]
	fmt.Fprintf(&sb, "Borrower credit profile: %s.\n", creditProfile)
	if b.AnnualTurnover != nil {
		fmt.Fprintf(&sb, "Annual turnover: ₹%gL.\n", *b.AnnualTurnover)
	}
	if b.BusinessVintageYears != nil {
		fmt.Fprintf(&sb, "Business vintage: %g years.\n", *b.BusinessVintageYears)
	}

	fmt.Fprintf(&sb, "\nTop-ranked lender: %s - %s (score %s, probability %s, ticket %s).\n",
		top.LenderName, top.ProductName, scoreText(top), probabilityText(top), ticketText(top))

	if specialNotes != "" {
		fmt.Fprintf(&sb, "Special requirements for the top lender: %s\n", specialNotes)
	}

	alternates := passed[1:]
	if len(alternates) > 5 {
		alternates = alternates[:5]
	}
	if len(alternates) > 0 {
		sb.WriteString("\nAlternate lenders:\n")
		for _, alt := range alternates {
			fmt.Fprintf(&sb, "- %s - %s (score %s, probability %s)\n",
				alt.LenderName, alt.ProductName, scoreText(alt), probabilityText(alt))
		}
	}

	sb.WriteString("\nWrite the submission strategy.")
	return sb.String()
}

// fallbackStrategy is the deterministic bullet-point template used whenever
// the LLM is unreachable or unconfigured.
func fallbackStrategy(b *store.BorrowerFeatures, passed []eligibility.Result, specialNotes string) string {
	top := passed[0]

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Primary Target:** %s - %s\n", top.LenderName, top.ProductName)
	fmt.Fprintf(&sb, "- Eligibility Score: %s\n", scoreText(top))
	fmt.Fprintf(&sb, "- Approval Probability: %s\n", probabilityText(top))
	fmt.Fprintf(&sb, "- Expected Ticket: %s\n", ticketText(top))

	if specialNotes != "" {
		fmt.Fprintf(&sb, "- **Note:** %s\n", specialNotes)
	}

	limit := len(passed)
	if limit > 5 {
		limit = 5
	}
	if limit > 1 {
		sb.WriteString("\n**Suggested Approach Order:**")
		for idx, lender := range passed[1:limit] {
			fmt.Fprintf(&sb, "\n%d. %s - %s (Score: %s, Probability: %s)",
				idx+2, lender.LenderName, lender.ProductName, scoreText(lender), probabilityText(lender))
		}
	}

	sb.WriteString("\n\n**General Strategy:**\n" +
		"- Submit to the primary target first for best chances\n" +
		"- Prepare all required documents before submission\n" +
		"- If rejected, address feedback before approaching backup lenders")

	return sb.String()
}

// SpecialRequirements renders verification requirements for a lender product.
func SpecialRequirements(p *store.LenderProduct) string {
	var notes []string
	if p.VideoKYCRequired {
		notes = append(notes, "Video KYC required")
	}
	if p.FIRequired {
		notes = append(notes, "Field investigation required")
	}
	if p.TelePDRequired {
		notes = append(notes, "Telephonic discussion required")
	}
	if p.GSTRequired {
		notes = append(notes, "GST registration mandatory")
	}
	return strings.Join(notes, "; ")
}

func passingMatches(matches []eligibility.Result) []eligibility.Result {
	var passed []eligibility.Result
	for _, m := range matches {
		if m.Status == store.FilterPass {
			passed = append(passed, m)
		}
	}
	return passed
}

func scoreText(r eligibility.Result) string {
	if r.Score == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.0f/100", *r.Score)
}

func probabilityText(r eligibility.Result) string {
	if r.Probability == nil {
		return "N/A"
	}
	return strings.ToUpper(string(*r.Probability))
}

func ticketText(r eligibility.Result) string {
	switch {
	case r.ExpectedTicketMin != nil && r.ExpectedTicketMax != nil:
		return fmt.Sprintf("₹%.1fL - ₹%.1fL", *r.ExpectedTicketMin, *r.ExpectedTicketMax)
	case r.ExpectedTicketMax != nil:
		return fmt.Sprintf("Up to ₹%.1fL", *r.ExpectedTicketMax)
	case r.ExpectedTicketMin != nil:
		return fmt.Sprintf("From ₹%.1fL", *r.ExpectedTicketMin)
	}
	return "Policy based"
}
