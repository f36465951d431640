package domain

import (
	"time"
)

// StatusCompleted is the processing status recorded on persisted documents.
// The pipeline writes whole records only, so a stored document is always
// complete with respect to the request that produced it.
const StatusCompleted = "completed"

// PageImage is a single rendered PDF page, held in memory as a lossless PNG.
type PageImage struct {
	PageNumber int
	PNG        []byte
	Width      int
	Height     int
}

// ExtractedField is one field/value/confidence triple produced by the
// extraction capability for a page.
type ExtractedField struct {
	FieldName   string    `json:"field_name"`
	Value       string    `json:"value"`
	Confidence  float64   `json:"confidence"`
	BoundingBox []float64 `json:"bounding_box,omitempty"`
	PageNumber  int       `json:"page_number"`
}

// PageRecord holds the extraction state of one document page. A placeholder
// page (no fields, no text, no timing) represents a page known to exist but
// not yet processed.
type PageRecord struct {
	PageNumber         int              `json:"page_number"`
	ExtractedFields    []ExtractedField `json:"extracted_fields"`
	PageImageReference string           `json:"page_image_reference,omitempty"`
	TextContent        *string          `json:"text_content,omitempty"`
	ProcessingTime     *float64         `json:"processing_time,omitempty"`
}

// IsPlaceholder reports whether the page has never been through extraction.
// Extracted pages always carry a processing time, so a degraded page (empty
// fields after an external-call failure) still counts as extracted.
func (p *PageRecord) IsPlaceholder() bool {
	return len(p.ExtractedFields) == 0 && p.TextContent == nil && p.ProcessingTime == nil
}

// NewPlaceholderPage returns a placeholder record for the given 1-based page
// number.
func NewPlaceholderPage(pageNumber int) PageRecord {
	return PageRecord{
		PageNumber:      pageNumber,
		ExtractedFields: []ExtractedField{},
	}
}

// DocumentRecord is the authoritative per-document extraction result. The
// pages slice is ordered and 1-based: pages[i].PageNumber == i+1 always.
type DocumentRecord struct {
	DocumentID          string       `json:"document_id"`
	Filename            string       `json:"filename"`
	TotalPages          int          `json:"total_pages"`
	KeyFields           []string     `json:"key_fields"`
	Pages               []PageRecord `json:"pages"`
	ProcessingStatus    string       `json:"processing_status"`
	CreatedAt           time.Time    `json:"created_at"`
	TotalProcessingTime *float64     `json:"total_processing_time,omitempty"`
}

// DocumentState is the aggregate extraction state of a document. It is
// derived from the pages on demand, never stored.
type DocumentState string

const (
	StatePlaceholder DocumentState = "placeholder"
	StatePartial     DocumentState = "partial"
	StateExtracted   DocumentState = "extracted"
)

// State derives the document-level state from its pages.
func (d *DocumentRecord) State() DocumentState {
	extracted := 0
	for i := range d.Pages {
		if !d.Pages[i].IsPlaceholder() {
			extracted++
		}
	}
	switch {
	case extracted == 0:
		return StatePlaceholder
	case extracted == len(d.Pages):
		return StateExtracted
	default:
		return StatePartial
	}
}

// Page returns the record for the given 1-based page number.
func (d *DocumentRecord) Page(pageNumber int) (*PageRecord, bool) {
	if pageNumber < 1 || pageNumber > len(d.Pages) {
		return nil, false
	}
	return &d.Pages[pageNumber-1], true
}
