package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/docufield/field-extractor/internal/domain"
)

// scalarConfidence is assumed when the capability answers with a bare
// value instead of a {value, confidence} record.
const scalarConfidence = 0.8

// fieldResult is the tagged union at the parse boundary: the capability may
// answer each field with a structured {value, confidence} record or a bare
// scalar. Both resolve into this single representation.
type fieldResult struct {
	Value      string
	Confidence float64
}

func (f *fieldResult) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var structured struct {
			Value      any      `json:"value"`
			Confidence *float64 `json:"confidence"`
		}
		if err := json.Unmarshal(data, &structured); err != nil {
			return err
		}
		f.Value = scalarToString(structured.Value)
		if structured.Confidence != nil {
			f.Confidence = *structured.Confidence
		} else {
			f.Confidence = scalarConfidence
		}
		return nil
	}

	var scalar any
	if err := json.Unmarshal(data, &scalar); err != nil {
		return err
	}
	f.Value = scalarToString(scalar)
	f.Confidence = scalarConfidence
	return nil
}

func scalarToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// parseFieldResponse decodes the model answer into ExtractedFields tagged
// with pageNumber. Requested fields come first in request order; any extra
// keys the model volunteered follow in sorted order.
func parseFieldResponse(content string, requestedFields []string, pageNumber int) ([]domain.ExtractedField, error) {
	cleaned := stripCodeFence(content)

	var results map[string]fieldResult
	if err := json.Unmarshal([]byte(cleaned), &results); err != nil {
		return nil, fmt.Errorf("decode field mapping: %w", err)
	}

	fields := make([]domain.ExtractedField, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, name := range requestedFields {
		if res, ok := results[name]; ok && !seen[name] {
			fields = append(fields, toExtractedField(name, res, pageNumber))
			seen[name] = true
		}
	}

	extras := make([]string, 0)
	for name := range results {
		if !seen[name] {
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	for _, name := range extras {
		fields = append(fields, toExtractedField(name, results[name], pageNumber))
	}

	return fields, nil
}

func toExtractedField(name string, res fieldResult, pageNumber int) domain.ExtractedField {
	confidence := res.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return domain.ExtractedField{
		FieldName:  name,
		Value:      res.Value,
		Confidence: confidence,
		PageNumber: pageNumber,
	}
}

// stripCodeFence removes a Markdown code fence wrapped around the JSON
// answer. Some models fence their output despite instructions not to.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		// Drop the language tag line (```json).
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
