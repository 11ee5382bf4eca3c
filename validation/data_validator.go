// Package validation checks user input for the dosecurve API before it is
// stored. Malformed dates and amounts are not rejected here: they are kept
// as typed and skipped by the simulator.
package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/giygas/dosecurve-api/interfaces"
	"github.com/giygas/dosecurve-api/pharmacokinetics"
)

// MaxFieldLength bounds each raw date or amount string
const MaxFieldLength = 32

var (
	ErrTooManyDoses    = errors.New("too many doses")
	ErrIndexOutOfRange = errors.New("dose index out of range")
	ErrSpanTooLong     = errors.New("doses span too many days")
)

// Dangerous patterns as strings (strings.Contains is cheaper than regex here)
var dangerousPatterns = []string{
	"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
	"' or ", "\" or ", "union select", "drop table", "--", "/*", "*/",
	"$(", "${", "../", "..\\",
	"{$ne:", "{$gt:", "{$where:",
}

// DataValidatorImpl implements the interfaces.DoseValidator interface
type DataValidatorImpl struct {
	maxDoses    int
	maxSpanDays int
}

var _ interfaces.DoseValidator = (*DataValidatorImpl)(nil)

// NewDataValidator creates a validator capping dose lists at maxDoses entries
// and maxSpanDays days between the first and last valid dose. A cap of zero
// disables that check.
func NewDataValidator(maxDoses, maxSpanDays int) *DataValidatorImpl {
	return &DataValidatorImpl{maxDoses: maxDoses, maxSpanDays: maxSpanDays}
}

// MaxDoses returns the configured cap
func (v *DataValidatorImpl) MaxDoses() int {
	return v.maxDoses
}

// ValidateProfileID parses a profile ID and returns it in canonical form
func (v *DataValidatorImpl) ValidateProfileID(input string) (string, error) {
	trimmedInput := strings.TrimSpace(input)
	if trimmedInput == "" {
		return "", fmt.Errorf("profile id cannot be empty")
	}

	// Reject if original input contained whitespace
	if len(input) != len(trimmedInput) {
		return "", fmt.Errorf("profile id contains invalid characters")
	}

	id, err := uuid.Parse(trimmedInput)
	if err != nil {
		return "", fmt.Errorf("profile id must be a UUID")
	}

	return id.String(), nil
}

// ValidateIndex parses a zero-based dose index and checks it against length
func (v *DataValidatorImpl) ValidateIndex(input string, length int) (int, error) {
	index, err := strconv.Atoi(input)
	if err != nil {
		return -1, fmt.Errorf("index must be a non-negative integer")
	}

	if index < 0 || index >= length {
		return -1, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, length)
	}

	return index, nil
}

// ValidateDoseList checks the list length, every entry and the span of the
// entries that would be simulated
func (v *DataValidatorImpl) ValidateDoseList(doses []pharmacokinetics.RawDose) error {
	if v.maxDoses > 0 && len(doses) > v.maxDoses {
		return fmt.Errorf("%w: %d entries, maximum is %d", ErrTooManyDoses, len(doses), v.maxDoses)
	}

	for i, d := range doses {
		if err := v.ValidateRawDose(d); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}

	return v.ValidateSpan(pharmacokinetics.NormalizeDoses(doses))
}

// ValidateSpan bounds the simulation window of normalized doses
func (v *DataValidatorImpl) ValidateSpan(doses []pharmacokinetics.DoseEvent) error {
	if v.maxSpanDays <= 0 || len(doses) < 2 {
		return nil
	}

	span := doses[len(doses)-1].Date.DaysSince(doses[0].Date)
	if span > v.maxSpanDays {
		return fmt.Errorf("%w: %d days between first and last dose, maximum is %d", ErrSpanTooLong, span, v.maxSpanDays)
	}
	return nil
}

// ValidateRawDose bounds the size and characters of one entry. Empty fields
// are allowed: a blank row is a valid placeholder.
func (v *DataValidatorImpl) ValidateRawDose(dose pharmacokinetics.RawDose) error {
	if err := validateField("date", dose.Date); err != nil {
		return err
	}
	return validateField("amount", dose.Amount)
}

func validateField(name, value string) error {
	if len(value) > MaxFieldLength {
		return fmt.Errorf("%s too long: maximum %d characters", name, MaxFieldLength)
	}

	if !utf8.ValidString(value) {
		return fmt.Errorf("%s is not valid UTF-8", name)
	}

	for _, r := range value {
		if unicode.IsControl(r) {
			return fmt.Errorf("%s contains control characters", name)
		}
	}

	lower := strings.ToLower(value)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%s contains potentially dangerous content", name)
		}
	}

	return nil
}
