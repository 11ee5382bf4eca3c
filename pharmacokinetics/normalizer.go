package pharmacokinetics

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"golang.org/x/text/unicode/norm"
)

// NormalizeDoses keeps the entries with a parseable date and a finite positive
// amount, sorted by date. Entries sharing a date keep their input order.
// Invalid entries are dropped silently; an empty result is not an error.
func NormalizeDoses(raw []RawDose) []DoseEvent {
	doses := make([]DoseEvent, 0, len(raw))
	for _, r := range raw {
		dose, ok := ParseDose(r)
		if !ok {
			continue
		}
		doses = append(doses, dose)
	}

	slices.SortStableFunc(doses, func(a, b DoseEvent) int {
		return a.Date.Compare(b.Date)
	})

	return doses
}

// ParseDose converts one raw entry. The boolean is false when the entry is
// incomplete or malformed.
func ParseDose(r RawDose) (DoseEvent, bool) {
	dateStr := cleanField(r.Date)
	amountStr := cleanField(r.Amount)
	if dateStr == "" || amountStr == "" {
		return DoseEvent{}, false
	}

	date, err := civil.ParseDate(dateStr)
	if err != nil {
		return DoseEvent{}, false
	}

	amount, ok := parseAmount(amountStr)
	if !ok {
		return DoseEvent{}, false
	}

	return DoseEvent{Date: date, AmountMg: amount}, true
}

// cleanField folds compatibility characters (full-width digits, non-breaking
// spaces) and trims surrounding whitespace.
func cleanField(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

func parseAmount(s string) (float64, bool) {
	// "2,5" is accepted as a decimal comma
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > MaxAmountMg {
		return 0, false
	}
	return v, true
}
