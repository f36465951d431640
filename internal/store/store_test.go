package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docufield/field-extractor/internal/domain"
	"github.com/docufield/field-extractor/internal/observability"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "documents.db"), "WAL", observability.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func extractedPage(pageNumber int, value string) domain.PageRecord {
	elapsed := 0.5
	return domain.PageRecord{
		PageNumber: pageNumber,
		ExtractedFields: []domain.ExtractedField{
			{FieldName: "invoice_number", Value: value, Confidence: 0.9, PageNumber: pageNumber},
		},
		ProcessingTime: &elapsed,
	}
}

func TestCreateAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := &domain.DocumentRecord{
		DocumentID: "doc-1",
		Filename:   "invoice.pdf",
		KeyFields:  []string{"invoice_number"},
		Pages:      []domain.PageRecord{extractedPage(1, "INV-001")},
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.Create(ctx, rec))

	got, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", got.DocumentID)
	assert.Equal(t, "invoice.pdf", got.Filename)
	assert.Equal(t, 1, got.TotalPages)
	assert.Equal(t, domain.StatusCompleted, got.ProcessingStatus)
	require.Len(t, got.Pages, 1)
	assert.Equal(t, "INV-001", got.Pages[0].ExtractedFields[0].Value)
}

func TestCreate_DuplicateConflicts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := &domain.DocumentRecord{
		DocumentID: "doc-1",
		Filename:   "invoice.pdf",
		Pages:      []domain.PageRecord{domain.NewPlaceholderPage(1)},
	}
	require.NoError(t, s.Create(ctx, rec))

	err := s.Create(ctx, &domain.DocumentRecord{
		DocumentID: "doc-1",
		Filename:   "other.pdf",
		Pages:      []domain.PageRecord{domain.NewPlaceholderPage(1)},
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrorKindConflict))

	// Original record untouched.
	got, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "invoice.pdf", got.Filename)
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrorKindNotFound))
}

func TestUpdatePage_InitializesWithPlaceholders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.UpdatePage(ctx, "doc-1", 5, extractedPage(5, "INV-005"))
	require.NoError(t, err)

	assert.Equal(t, 5, rec.TotalPages)
	assert.Empty(t, rec.KeyFields)
	require.Len(t, rec.Pages, 5)
	for i := 0; i < 4; i++ {
		assert.True(t, rec.Pages[i].IsPlaceholder(), "page %d should be a placeholder", i+1)
		assert.Equal(t, i+1, rec.Pages[i].PageNumber)
	}
	assert.Equal(t, "INV-005", rec.Pages[4].ExtractedFields[0].Value)

	// The initialization is durable.
	got, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.TotalPages)
	assert.Equal(t, domain.StatePartial, got.State())
}

func TestUpdatePage_ExtendsShortRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &domain.DocumentRecord{
		DocumentID: "doc-1",
		Filename:   "scan.pdf",
		Pages:      []domain.PageRecord{domain.NewPlaceholderPage(1), domain.NewPlaceholderPage(2)},
	}))

	rec, err := s.UpdatePage(ctx, "doc-1", 4, extractedPage(4, "INV-004"))
	require.NoError(t, err)

	assert.Equal(t, 4, rec.TotalPages)
	assert.True(t, rec.Pages[2].IsPlaceholder())
	assert.Equal(t, 3, rec.Pages[2].PageNumber)
	assert.Equal(t, "INV-004", rec.Pages[3].ExtractedFields[0].Value)
	assert.Equal(t, "scan.pdf", rec.Filename)
}

func TestUpdatePage_ReplacesOnlyTargetPage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &domain.DocumentRecord{
		DocumentID: "doc-1",
		Filename:   "scan.pdf",
		Pages: []domain.PageRecord{
			extractedPage(1, "INV-001"),
			domain.NewPlaceholderPage(2),
			extractedPage(3, "INV-003"),
		},
	}))

	_, err := s.UpdatePage(ctx, "doc-1", 2, extractedPage(2, "INV-002"))
	require.NoError(t, err)

	got, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "INV-001", got.Pages[0].ExtractedFields[0].Value)
	assert.Equal(t, "INV-002", got.Pages[1].ExtractedFields[0].Value)
	assert.Equal(t, "INV-003", got.Pages[2].ExtractedFields[0].Value)
	assert.Equal(t, domain.StateExtracted, got.State())
}

func TestUpdatePage_ForcesPageNumberConsistency(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// A record whose own page_number disagrees with the slot is corrected.
	page := extractedPage(9, "INV-002")
	rec, err := s.UpdatePage(ctx, "doc-1", 2, page)
	require.NoError(t, err)

	for i := range rec.Pages {
		assert.Equal(t, i+1, rec.Pages[i].PageNumber)
	}
}

func TestUpdatePage_RejectsNonPositivePage(t *testing.T) {
	s := openTestStore(t)

	_, err := s.UpdatePage(context.Background(), "doc-1", 0, domain.NewPlaceholderPage(0))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrorKindInvalidPage))

	_, getErr := s.Get(context.Background(), "doc-1")
	assert.True(t, domain.IsKind(getErr, domain.ErrorKindNotFound))
}

func TestUpdatePage_ConcurrentUpdatesNoLostWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &domain.DocumentRecord{
		DocumentID: "doc-1",
		Filename:   "scan.pdf",
		Pages: []domain.PageRecord{
			domain.NewPlaceholderPage(1),
			domain.NewPlaceholderPage(2),
			domain.NewPlaceholderPage(3),
			domain.NewPlaceholderPage(4),
		},
	}))

	var wg sync.WaitGroup
	for page := 1; page <= 4; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			_, err := s.UpdatePage(ctx, "doc-1", page, extractedPage(page, "INV-00"+string(rune('0'+page))))
			assert.NoError(t, err)
		}(page)
	}
	wg.Wait()

	got, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, got.Pages, 4)
	for i, page := range got.Pages {
		require.Len(t, page.ExtractedFields, 1, "page %d lost its update", i+1)
		assert.Equal(t, i+1, page.ExtractedFields[0].PageNumber)
	}
	assert.Equal(t, domain.StateExtracted, got.State())
}
