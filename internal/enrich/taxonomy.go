package enrich

import (
	"math"
	"strconv"
	"strings"

	"github.com/skillscope/skillscope/internal/model"
)

// Industries is the fixed industry list postings are mapped onto.
var Industries = []string{
	"Technology", "Healthcare", "Finance", "Retail", "Manufacturing", "Education", "Government",
	"Consulting", "Transportation", "Energy", "Real Estate", "Media", "Food & Beverage", "Hospitality",
	"Construction", "Legal", "Non-profit",
}

const otherIndustry = "Other"

var industryKeywords = []struct {
	industry string
	keywords []string
}{
	{"Technology", []string{"tech", "software", "saas", "it ", "information technology", "internet", "telecom"}},
	{"Hospitality", []string{"hospitality", "hotel", "tourism", "travel"}},
	{"Healthcare", []string{"health", "medical", "pharma", "hospital", "biotech", "life science"}},
	{"Finance", []string{"financ", "bank", "insurance", "fintech", "investment", "accounting"}},
	{"Retail", []string{"retail", "e-commerce", "ecommerce", "consumer goods", "fashion"}},
	{"Manufacturing", []string{"manufactur", "industrial", "production", "automotive"}},
	{"Education", []string{"education", "university", "school", "academ", "edtech"}},
	{"Government", []string{"government", "public sector", "municipal", "ministry", "kommune"}},
	{"Consulting", []string{"consult", "advisory", "professional services"}},
	{"Transportation", []string{"transport", "logistic", "shipping", "aviation", "maritime"}},
	{"Energy", []string{"energy", "oil", "gas", "utilit", "renewable", "wind"}},
	{"Real Estate", []string{"real estate", "property", "properties"}},
	{"Media", []string{"media", "entertainment", "publishing", "advertising", "marketing agency"}},
	{"Food & Beverage", []string{"food", "beverage", "restaurant", "brewery"}},
	{"Construction", []string{"construction", "engineering & construction", "building"}},
	{"Legal", []string{"legal", "law firm", "law"}},
	{"Non-profit", []string{"non-profit", "nonprofit", "ngo", "charity", "foundation"}},
}

var unknownValues = map[string]struct{}{
	"": {}, "unknown": {}, "n/a": {}, "na": {}, "none": {}, "not specified": {}, "various": {}, "other": {},
}

// CanonicalIndustry maps free text onto Industries, or "Other".
func CanonicalIndustry(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if _, unknown := unknownValues[lower]; unknown {
		return otherIndustry
	}
	for _, industry := range Industries {
		if strings.EqualFold(industry, lower) {
			return industry
		}
	}
	padded := lower + " "
	for _, entry := range industryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(padded, kw) {
				return entry.industry
			}
		}
	}
	return otherIndustry
}

var sizeBuckets = []string{model.SizeStartup, model.SizeSmall, model.SizeMedium, model.SizeLarge, model.SizeEnterprise}

// SizeBucket maps a size label or an employee count onto a company size bucket.
func SizeBucket(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	for _, bucket := range sizeBuckets {
		if strings.Contains(lower, bucket) {
			return bucket
		}
	}
	switch {
	case strings.Contains(lower, "sme"), strings.Contains(lower, "mid"):
		return model.SizeMedium
	case strings.Contains(lower, "multinational"), strings.Contains(lower, "global corporation"):
		return model.SizeEnterprise
	}

	if n, ok := employeeCount(lower); ok {
		switch {
		case n < 10:
			return model.SizeStartup
		case n < 50:
			return model.SizeSmall
		case n < 250:
			return model.SizeMedium
		case n < 1000:
			return model.SizeLarge
		default:
			return model.SizeEnterprise
		}
	}
	return model.SizeUnknown
}

// employeeCount reads the first number of a size description; for ranges such
// as "50-200" the upper bound wins.
func employeeCount(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != '+' && r != 'k'
	})
	best := math.NaN()
	for _, f := range fields {
		f = strings.TrimRight(f, "+.")
		multiplier := 1.0
		if strings.HasSuffix(f, "k") {
			multiplier = 1000
			f = strings.TrimSuffix(f, "k")
		}
		if f == "" {
			continue
		}
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			continue
		}
		n *= multiplier
		if math.IsNaN(best) || n > best {
			best = n
		}
	}
	if math.IsNaN(best) {
		return 0, false
	}
	return best, true
}
