package llm

import (
	"fmt"
	"strings"
)

const extractionSystemPrompt = "You are an expert OCR system that extracts specific fields from documents. Return only valid JSON with the extracted fields."

// buildExtractionPrompt creates the per-page extraction prompt listing the
// requested fields.
func buildExtractionPrompt(requestedFields []string) string {
	quoted := make([]string, len(requestedFields))
	for i, field := range requestedFields {
		quoted[i] = fmt.Sprintf("%q", field)
	}

	return fmt.Sprintf(`Analyze this document image and extract the following fields: %s

Instructions:
1. Look for the specified fields in the document
2. For each field, provide the extracted value and confidence level (0.0 to 1.0)
3. If a field is not found, set its value to empty string and confidence to 0.0
4. Handle multiple languages (English, Thai, Mandarin, Bahasa, Vietnamese, etc.)
5. For dates, use ISO format (YYYY-MM-DD) when possible
6. For amounts/numbers, extract the numerical value
7. For names, extract the full name as it appears

Return the results in this exact JSON format:
{
    "field_name": {
        "value": "extracted_value",
        "confidence": 0.95
    }
}

Example response:
{
    "invoice_number": {
        "value": "INV-2024-001",
        "confidence": 0.98
    },
    "date": {
        "value": "2024-01-15",
        "confidence": 0.95
    },
    "amount": {
        "value": "1,250.00",
        "confidence": 0.92
    }
}

Be precise and accurate in your extraction. If you're unsure about a field, set confidence lower.`, strings.Join(quoted, ", "))
}

const languageSystemPrompt = "You are a language detection expert. Return only the language code."

const languageUserPrompt = `Analyze this document image and identify the primary language used.
Return only the language code (e.g., 'en', 'th', 'zh', 'id', 'vi').
If multiple languages are present, return the most dominant one.`

// languageNames maps common language names returned by the model to codes.
var languageNames = map[string]string{
	"english":    "en",
	"thai":       "th",
	"mandarin":   "zh",
	"chinese":    "zh",
	"indonesian": "id",
	"bahasa":     "id",
	"vietnamese": "vi",
	"japanese":   "ja",
	"korean":     "ko",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"russian":    "ru",
	"arabic":     "ar",
}

// normalizeLanguage maps a model answer to a language code, passing through
// anything that already looks like a code.
func normalizeLanguage(answer string) string {
	code := strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(answer), `'".`)))
	if code == "" {
		return "en"
	}
	if mapped, ok := languageNames[code]; ok {
		return mapped
	}
	return code
}
