// Package lenderkb ingests lender policy and pincode coverage tables into the
// knowledge base and serves knowledge-base queries.
package lenderkb

import (
	"regexp"
	"strconv"
	"strings"

	"caseos/internal/store"
)

// lenderNameMap normalizes the free-text lender labels in policy CSVs.
var lenderNameMap = map[string]string{
	"GODREJ":        "Godrej",
	"LENDINGKART":   "Lendingkart",
	"FLEXILOANS":    "Flexiloans",
	"INDIFI":        "Indifi",
	"PROTIUM":       "Protium",
	"BAJAJ":         "Bajaj",
	"BAJAJ RURAL":   "Bajaj",
	"ARTHMATE":      "Arthmate",
	"POONAWALA":     "Poonawalla",
	"POONAWALLA":    "Poonawalla",
	"KREDIT BEE":    "KreditBee",
	"KREDITBEE":     "KreditBee",
	"AMBIT":         "Ambit",
	"TATA PL":       "Tata Capital",
	"TATA BL":       "Tata Capital",
	"TATA CAPITAL":  "Tata Capital",
	"INCRED":        "InCred",
	"FIBE":          "Fibe",
	"IIFL":          "IIFL",
	"CLIX CAPITAL":  "Clix Capital",
	"PAYSENSE":      "PaySense",
	"CREDIT SAISON": "Credit Saison",
	"LOAN TAP":      "LoanTap",
	"LOANTAP":       "LoanTap",
	"ABFL":          "ABFL",
	"L&T FINANCE":   "L&T Finance",
	"OLYV":          "Olyv",
	"USFB PL":       "Unity Small Finance Bank",
	"USFB BL":       "Unity Small Finance Bank",
	"MAS":           "MAS Financial",
	"TRUCAP":        "TruCap",
	"TECHFINO":      "Techfino",
	"NEOGROWTH":     "NeoGrowth",
	"UGRO":          "UGro",
	"FT CASH":       "FT Cash",
	"ICICI":         "ICICI",
	"CHOLAMANDALAM": "Cholamandalam",
}

var (
	comparatorPrefix = regexp.MustCompile(`^[><=]+`)
	firstNumber      = regexp.MustCompile(`[\d.]+`)
	firstInteger     = regexp.MustCompile(`\d+`)
	ageRange         = regexp.MustCompile(`(\d+)\s*[-to]+\s*(\d+)`)
	monthsPattern    = regexp.MustCompile(`(\d+)\s*(month|mon|m|yr|year)`)
	pincodePattern   = regexp.MustCompile(`^\d{6}$`)
)

func isEmptyCell(value string) bool {
	switch strings.TrimSpace(value) {
	case "", "NA", "N/A", "-", "nil":
		return true
	}
	return false
}

// parseFloatValue handles policy-table numerics: "30L" (lakhs), ">=25k"
// (thousands, converted to lakhs), comparison prefixes, and free text like
// "25L or 10% of EMI" (first numeric token wins).
func parseFloatValue(value string) *float64 {
	if isEmptyCell(value) {
		return nil
	}

	v := strings.ToUpper(strings.TrimSpace(value))
	v = comparatorPrefix.ReplaceAllString(v, "")

	if strings.Contains(v, "L") && !strings.Contains(v, "K") {
		v = strings.TrimSpace(strings.ReplaceAll(v, "L", ""))
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
		if m := firstNumber.FindString(v); m != "" {
			if f, err := strconv.ParseFloat(m, 64); err == nil {
				return &f
			}
		}
		return nil
	}

	if strings.Contains(v, "K") {
		v = strings.TrimSpace(strings.ReplaceAll(v, "K", ""))
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			lakhs := f / 100
			return &lakhs
		}
		if m := firstNumber.FindString(v); m != "" {
			if f, err := strconv.ParseFloat(m, 64); err == nil {
				lakhs := f / 100
				return &lakhs
			}
		}
		return nil
	}

	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return &f
	}

	if m := firstNumber.FindString(v); m != "" {
		if f, err := strconv.ParseFloat(m, 64); err == nil {
			return &f
		}
	}
	return nil
}

func parseIntegerValue(value string) *int {
	if isEmptyCell(value) {
		return nil
	}

	v := comparatorPrefix.ReplaceAllString(strings.TrimSpace(value), "")
	if m := firstInteger.FindString(v); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return &n
		}
	}
	return nil
}

func parseMonths(value string) *int {
	if isEmptyCell(value) {
		return nil
	}

	v := strings.ToLower(strings.TrimSpace(value))
	if m := monthsPattern.FindStringSubmatch(v); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		if m[2] == "yr" || m[2] == "year" {
			n *= 12
		}
		return &n
	}
	return parseIntegerValue(v)
}

func parseAgeRange(value string) (*int, *int) {
	if isEmptyCell(value) {
		return nil, nil
	}

	if m := ageRange.FindStringSubmatch(value); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		return &lo, &hi
	}

	if n := parseIntegerValue(value); n != nil {
		return n, n
	}
	return nil, nil
}

func parseEntityTypes(value string) []string {
	if isEmptyCell(value) {
		return nil
	}

	var entities []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		switch {
		case part == "":
			continue
		case strings.Contains(part, "pvt") || strings.Contains(part, "private"):
			entities = append(entities, "pvt_ltd")
		case strings.Contains(part, "llp"):
			entities = append(entities, "llp")
		case strings.Contains(part, "proprietor"):
			entities = append(entities, "proprietorship")
		case strings.Contains(part, "partner"):
			entities = append(entities, "partnership")
		case strings.Contains(part, "opc"):
			entities = append(entities, "opc")
		case strings.Contains(part, "trust"):
			entities = append(entities, "trust")
		case strings.Contains(part, "society"):
			entities = append(entities, "society")
		default:
			entities = append(entities, strings.ReplaceAll(part, " ", "_"))
		}
	}
	return entities
}

func parseBoolean(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "mandatory", "required", "true", "1", "y":
		return true
	}
	return false
}

// normalizeLenderName resolves aliases; unknown names are title-cased.
func normalizeLenderName(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if canonical, ok := lenderNameMap[upper]; ok {
		return canonical
	}
	return titleCase(upper)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// policyAvailable scans every cell for the "Policy not available" sentinel.
func policyAvailable(row map[string]string) bool {
	for _, value := range row {
		if strings.Contains(strings.ToLower(value), "policy not available") {
			return false
		}
	}
	return true
}

// inferProgramType derives the program from the product name.
func inferProgramType(productName string) store.ProgramType {
	lower := strings.ToLower(productName)
	switch {
	case strings.Contains(lower, "digital") || strings.Contains(lower, "banking"):
		return store.ProgramBanking
	case strings.Contains(lower, "income") || strings.Contains(lower, "itr"):
		return store.ProgramIncome
	}
	return store.ProgramHybrid
}

func validPincode(value string) bool {
	return pincodePattern.MatchString(strings.TrimSpace(value))
}
