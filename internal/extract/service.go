// Package extract orchestrates the per-page extraction pipeline: rendering,
// field extraction, validation, and store updates.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/docufield/field-extractor/internal/domain"
	"github.com/docufield/field-extractor/internal/observability"
)

// Renderer turns PDF pages into raster images.
type Renderer interface {
	PageCount(data []byte) (int, error)
	RenderPage(ctx context.Context, data []byte, pageIndex int) (*domain.PageImage, error)
	PageText(data []byte, pageIndex int) (string, error)
}

// ExtractionClient calls the external field-extraction capability. Both
// operations degrade on failure instead of returning errors.
type ExtractionClient interface {
	ExtractFields(ctx context.Context, image *domain.PageImage, requestedFields []string, pageNumber int) []domain.ExtractedField
	DetectLanguage(ctx context.Context, image *domain.PageImage) string
}

// DocumentStore persists per-document extraction results.
type DocumentStore interface {
	Create(ctx context.Context, rec *domain.DocumentRecord) error
	Get(ctx context.Context, documentID string) (*domain.DocumentRecord, error)
	UpdatePage(ctx context.Context, documentID string, pageNumber int, page domain.PageRecord) (*domain.DocumentRecord, error)
}

// Service composes renderer, extraction client, and store into the
// document processing pipeline.
type Service struct {
	renderer Renderer
	client   ExtractionClient
	store    DocumentStore
	logger   *observability.Logger
}

// NewService creates the pipeline orchestrator.
func NewService(renderer Renderer, client ExtractionClient, store DocumentStore, logger *observability.Logger) *Service {
	return &Service{
		renderer: renderer,
		client:   client,
		store:    store,
		logger:   logger.WithComponent("extract"),
	}
}

// ProcessDocument ingests a whole PDF under the given document id. With key
// fields, every page goes through render, extraction, and validation; with
// an empty field list the pages are stored as placeholders awaiting
// page-driven extraction. The assembled record is persisted via Create, so
// re-ingesting an existing document id fails with a conflict.
func (s *Service) ProcessDocument(ctx context.Context, documentID, filename string, pdfBytes []byte, keyFields []string) (*domain.DocumentRecord, error) {
	start := time.Now()
	logger := s.logger.WithDocument(documentID)

	pageCount, err := s.renderer.PageCount(pdfBytes)
	if err != nil {
		return nil, err
	}
	if pageCount == 0 {
		return nil, domain.ValidationError("PDF has no pages", nil)
	}

	logger.Info().
		Int("pages", pageCount).
		Strs("key_fields", keyFields).
		Msg("processing document")

	pages := make([]domain.PageRecord, 0, pageCount)
	for pageIndex := 0; pageIndex < pageCount; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageNumber := pageIndex + 1
		if len(keyFields) == 0 {
			page := domain.NewPlaceholderPage(pageNumber)
			page.PageImageReference = pageImageReference(documentID, pageNumber)
			pages = append(pages, page)
			continue
		}

		page, err := s.extractPage(ctx, documentID, pdfBytes, pageIndex, keyFields)
		if err != nil {
			return nil, err
		}
		if pageIndex == 0 {
			s.logPageLanguage(ctx, logger, pdfBytes, pageIndex)
		}
		pages = append(pages, *page)
	}

	total := time.Since(start).Seconds()
	rec := &domain.DocumentRecord{
		DocumentID:          documentID,
		Filename:            filename,
		TotalPages:          pageCount,
		KeyFields:           keyFields,
		Pages:               pages,
		ProcessingStatus:    domain.StatusCompleted,
		CreatedAt:           time.Now().UTC(),
		TotalProcessingTime: &total,
	}
	if rec.KeyFields == nil {
		rec.KeyFields = []string{}
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	logger.Info().
		Int("pages", pageCount).
		Float64("total_seconds", total).
		Str("state", string(rec.State())).
		Msg("document processed")
	return rec, nil
}

// ProcessPage extracts the requested fields from a single page and merges
// the result into the stored record, initializing or extending it with
// placeholders as needed. The page number is validated against the PDF
// before anything is rendered or written.
func (s *Service) ProcessPage(ctx context.Context, documentID string, pdfBytes []byte, pageNumber int, requestedFields []string) (*domain.PageRecord, error) {
	pageCount, err := s.renderer.PageCount(pdfBytes)
	if err != nil {
		return nil, err
	}
	if pageNumber < 1 || pageNumber > pageCount {
		return nil, domain.InvalidPageError(
			fmt.Sprintf("page number %d outside [1, %d]", pageNumber, pageCount), nil)
	}

	page, err := s.extractPage(ctx, documentID, pdfBytes, pageNumber-1, requestedFields)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.UpdatePage(ctx, documentID, pageNumber, *page)
	if err != nil {
		return nil, err
	}

	s.logger.WithDocument(documentID).Info().
		Int("page", pageNumber).
		Int("fields", len(page.ExtractedFields)).
		Str("state", string(rec.State())).
		Msg("page processed")

	stored, _ := rec.Page(pageNumber)
	return stored, nil
}

// GetDocument returns the stored record for a document id.
func (s *Service) GetDocument(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	return s.store.Get(ctx, documentID)
}

// GetPage returns one page of the stored record. Page numbers outside the
// stored range fail with an invalid-page error.
func (s *Service) GetPage(ctx context.Context, documentID string, pageNumber int) (*domain.PageRecord, error) {
	rec, err := s.store.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	page, ok := rec.Page(pageNumber)
	if !ok {
		return nil, domain.InvalidPageError(
			fmt.Sprintf("page number %d outside [1, %d]", pageNumber, rec.TotalPages), nil)
	}
	return page, nil
}

// extractPage runs render → extract → validate for one 0-based page index
// and assembles the PageRecord. Extraction failures have already degraded
// to an empty field set inside the client; render failures propagate.
func (s *Service) extractPage(ctx context.Context, documentID string, pdfBytes []byte, pageIndex int, requestedFields []string) (*domain.PageRecord, error) {
	start := time.Now()
	pageNumber := pageIndex + 1

	image, err := s.renderer.RenderPage(ctx, pdfBytes, pageIndex)
	if err != nil {
		return nil, err
	}

	fields := s.client.ExtractFields(ctx, image, requestedFields, pageNumber)
	fields = ValidateFields(fields)

	text, err := s.renderer.PageText(pdfBytes, pageIndex)
	if err != nil {
		s.logger.WithDocument(documentID).Warn().
			Int("page", pageNumber).
			Err(err).
			Msg("text extraction failed, continuing without text layer")
		text = ""
	}

	elapsed := time.Since(start).Seconds()
	return &domain.PageRecord{
		PageNumber:         pageNumber,
		ExtractedFields:    fields,
		PageImageReference: pageImageReference(documentID, pageNumber),
		TextContent:        &text,
		ProcessingTime:     &elapsed,
	}, nil
}

// logPageLanguage records the advisory language detection result for a
// document's first page.
func (s *Service) logPageLanguage(ctx context.Context, logger *observability.Logger, pdfBytes []byte, pageIndex int) {
	image, err := s.renderer.RenderPage(ctx, pdfBytes, pageIndex)
	if err != nil {
		return
	}
	logger.Info().
		Str("language", s.client.DetectLanguage(ctx, image)).
		Msg("detected document language")
}

// pageImageReference is the stable locator under which the preview server
// exposes a page of the original PDF.
func pageImageReference(documentID string, pageNumber int) string {
	return fmt.Sprintf("/uploads/%s.pdf#page=%d", documentID, pageNumber)
}
