// Package validation checks canonical mapping records and viewer input.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/giygas/ndc-unii/chunks"
	"github.com/giygas/ndc-unii/interfaces"
	"github.com/giygas/ndc-unii/rxnorm"
	"github.com/giygas/ndc-unii/rxnorm/entities"
)

// Pre-compiled patterns, reused for all validations
var (
	// Drug names use slashes, commas and percent signs ("Amlodipine / Benazepril", "0.05 %")
	inputRegex = regexp.MustCompile(`^[a-zA-Z0-9\s\-\.\+'/,%]+$`)

	// 11 digits plain or 5-4-2, or one of the 10 digit 4-4-2, 5-3-2 and 5-4-1 layouts
	standardNDC = regexp.MustCompile(`^(\d{11}|\d{5}-\d{4}-\d{2}|\d{4}-\d{4}-\d{2}|\d{5}-\d{3}-\d{2}|\d{5}-\d{4}-\d)$`)

	// Dangerous patterns as strings, strings.Contains is cheaper than regex for these
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"onclick=", "onmouseover=", "onfocus=", "onblur=", "onchange=", "onsubmit=",
		"eval(", "expression(", "url(", "import ", "@import", "binding(", "behavior(",
		// SQL injection patterns
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"update set", "--", "/*", "*/", "xp_", "sp_", "exec(", "execute(",
		// Command injection patterns
		"; ", "| ", "& ", "`", "$(", "${",
		// Path traversal patterns
		"../", "..\\", "%2e%2e", "file://",
		// NoSQL injection patterns
		"{$ne:", "{$gt:", "{$where:", "{$or:", "{$regex:", "{$expr:",
	}
)

// maxListedItems caps the sample lists of the quality report
const maxListedItems = 10

// DataValidatorImpl implements the interfaces.DataValidator interface
type DataValidatorImpl struct{}

// NewDataValidator creates a new data validator
func NewDataValidator() interfaces.DataValidator {
	return &DataValidatorImpl{}
}

// ValidateRecord checks the shape of a canonical mapping record
func (v *DataValidatorImpl) ValidateRecord(r *entities.Record) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}

	if strings.TrimSpace(r.Ndc) == "" {
		return fmt.Errorf("empty NDC for RxCUI %s", r.Rxcui)
	}

	if !isDigits(r.Rxcui) {
		return fmt.Errorf("invalid RxCUI %q for NDC %s", r.Rxcui, r.Ndc)
	}

	if strings.TrimSpace(r.Str) == "" {
		return fmt.Errorf("empty name for NDC %s", r.Ndc)
	}

	if !rxnorm.DrugTermTypes[r.Tty] {
		return fmt.Errorf("term type %q is not a drug term type for NDC %s", r.Tty, r.Ndc)
	}

	seen := make(map[string]bool, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		if !isDigits(ing.Rxcui) {
			return fmt.Errorf("invalid ingredient RxCUI %q for NDC %s", ing.Rxcui, r.Ndc)
		}
		if ing.Tty != "IN" && ing.Tty != "PIN" {
			return fmt.Errorf("ingredient %s of NDC %s has term type %q", ing.Rxcui, r.Ndc, ing.Tty)
		}
		if ing.Unii != nil && strings.TrimSpace(*ing.Unii) == "" {
			return fmt.Errorf("ingredient %s of NDC %s has an empty registry code", ing.Rxcui, r.Ndc)
		}
		if seen[ing.Rxcui] {
			return fmt.Errorf("ingredient %s listed twice for NDC %s", ing.Rxcui, r.Ndc)
		}
		seen[ing.Rxcui] = true
	}

	return nil
}

// ValidateDataIntegrity validates every record, in NDC order, and checks that
// each record is stored under its own NDC
func (v *DataValidatorImpl) ValidateDataIntegrity(records map[string]entities.Record) error {
	if len(records) == 0 {
		return fmt.Errorf("no records found")
	}

	for _, ndc := range sortedKeys(records) {
		rec := records[ndc]
		if rec.Ndc != ndc {
			return fmt.Errorf("record stored under %s carries NDC %s", ndc, rec.Ndc)
		}
		if err := v.ValidateRecord(&rec); err != nil {
			return fmt.Errorf("invalid record %s: %w", ndc, err)
		}
	}

	return nil
}

// ReportDataQuality counts records and ingredients missing data. The NDC and
// RxCUI lists are sorted and keep the first items only.
func (v *DataValidatorImpl) ReportDataQuality(records map[string]entities.Record) *interfaces.DataQualityReport {
	report := &interfaces.DataQualityReport{
		TotalRecords:    len(records),
		NonStandardNDCs: []string{},
		NameConflicts:   []string{},
	}

	names := make(map[string]string)
	conflicts := make(map[string]bool)

	for _, ndc := range sortedKeys(records) {
		rec := records[ndc]

		if len(rec.Ingredients) == 0 {
			report.RecordsWithoutIngredients++
		}

		if len(rec.UniiCodes()) == 0 {
			report.RecordsWithoutUNII++
		}

		for _, ing := range rec.Ingredients {
			if ing.Unii == nil {
				report.IngredientsWithoutUNII++
			}
		}

		if !standardNDC.MatchString(ndc) && len(report.NonStandardNDCs) < maxListedItems {
			report.NonStandardNDCs = append(report.NonStandardNDCs, ndc)
		}

		if name, ok := names[rec.Rxcui]; ok && name != rec.Str {
			conflicts[rec.Rxcui] = true
		}
		names[rec.Rxcui] = rec.Str
	}

	for rxcui := range conflicts {
		report.NameConflicts = append(report.NameConflicts, rxcui)
	}
	sort.Strings(report.NameConflicts)
	if len(report.NameConflicts) > maxListedItems {
		report.NameConflicts = report.NameConflicts[:maxListedItems]
	}

	return report
}

// ValidateInput validates search input with the same limits as the viewer
func (v *DataValidatorImpl) ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("input cannot be empty")
	}

	if len(input) < 3 {
		return fmt.Errorf("input too short: minimum 3 characters")
	}

	if len(input) > 50 {
		return fmt.Errorf("input too long: maximum 50 characters")
	}

	// Many short words make the scan expensive
	words := strings.Fields(input)
	if len(words) > 6 {
		return fmt.Errorf("search query too complex: maximum 6 words allowed")
	}

	lowerInput := strings.ToLower(input)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowerInput, pattern) {
			return fmt.Errorf("input contains potentially dangerous content")
		}
	}

	if !inputRegex.MatchString(input) {
		return fmt.Errorf("input contains invalid characters. Only letters, numbers, spaces, hyphens, apostrophes, periods, slashes, commas, percent and plus signs are allowed")
	}

	if v.hasExcessiveRepetition(input) {
		return fmt.Errorf("input contains excessive character repetition")
	}

	return nil
}

// ValidateNDC validates an NDC query: digits and dashes only, with 3 to 11
// digits. It returns the digits.
func (v *DataValidatorImpl) ValidateNDC(input string) (string, error) {
	trimmedInput := strings.TrimSpace(input)
	if trimmedInput == "" {
		return "", fmt.Errorf("input cannot be empty")
	}

	// Reject if original input contained whitespace (spaces, tabs, etc.)
	if len(input) != len(trimmedInput) {
		return "", fmt.Errorf("input contains invalid characters. Only digits and dashes are allowed")
	}

	for _, r := range trimmedInput {
		if (r < '0' || r > '9') && r != '-' {
			return "", fmt.Errorf("input contains invalid characters. Only digits and dashes are allowed")
		}
	}

	digits := chunks.Digits(trimmedInput)
	if len(digits) < 3 {
		return "", fmt.Errorf("NDC query needs at least 3 digits")
	}
	if len(digits) > 11 {
		return "", fmt.Errorf("NDC has at most 11 digits")
	}

	return digits, nil
}

// hasExcessiveRepetition checks for the same character repeated more than 10 times consecutively
func (v *DataValidatorImpl) hasExcessiveRepetition(input string) bool {
	for i := 0; i < len(input)-10; i++ {
		allSame := true
		for j := 1; j <= 10; j++ {
			if input[i] != input[i+j] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func sortedKeys(records map[string]entities.Record) []string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
