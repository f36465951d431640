package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/docufield/field-extractor/internal/domain"
)

// shortValueConfidenceCap bounds the confidence of one-character values,
// which are usually recognition noise.
const shortValueConfidenceCap = 0.5

// ValidateFields post-processes raw extraction output: values are trimmed,
// empty values force confidence to zero, and degenerate one-character
// values have their confidence capped. Pure and idempotent.
func ValidateFields(fields []domain.ExtractedField) []domain.ExtractedField {
	validated := make([]domain.ExtractedField, 0, len(fields))
	for _, field := range fields {
		value := strings.TrimSpace(field.Value)
		confidence := field.Confidence
		switch {
		case value == "":
			confidence = 0.0
		case utf8.RuneCountInString(value) < 2:
			if confidence > shortValueConfidenceCap {
				confidence = shortValueConfidenceCap
			}
		}

		field.Value = value
		field.Confidence = confidence
		validated = append(validated, field)
	}
	return validated
}
