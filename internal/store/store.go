// Package store persists one DocumentRecord per document identifier and
// supports incremental, per-page updates.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/docufield/field-extractor/internal/domain"
	"github.com/docufield/field-extractor/internal/observability"
)

// Store is the authoritative owner of on-disk DocumentRecords. Records are
// stored as JSON, one row per document id. Read-modify-write cycles on a
// document are serialized through a keyed lock table so concurrent page
// updates to the same document never lose each other's writes; different
// documents do not contend.
type Store struct {
	db     *sql.DB
	logger *observability.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	document_id TEXT PRIMARY KEY,
	record      TEXT NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
`

// Open opens (creating if needed) the document store at the given path.
// Use ":memory:" only in single-connection scenarios.
func Open(path, journalMode string, logger *observability.Logger) (*Store, error) {
	if journalMode == "" {
		journalMode = "WAL"
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=%s&_busy_timeout=5000", path, journalMode)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, domain.IOError("failed to open document store", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, domain.IOError("failed to initialize document store schema", err)
	}

	return &Store{
		db:     db,
		logger: logger.WithComponent("store"),
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// lockFor returns the mutex serializing writes to the given document id.
func (s *Store) lockFor(documentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[documentID] = lock
	}
	return lock
}

// Create persists a new DocumentRecord. It fails with a conflict error if a
// record for the document id already exists; existing records are never
// silently clobbered.
func (s *Store) Create(ctx context.Context, rec *domain.DocumentRecord) error {
	if rec.DocumentID == "" {
		return domain.ValidationError("document id must not be empty", nil)
	}
	normalize(rec)

	lock := s.lockFor(rec.DocumentID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.load(ctx, rec.DocumentID); err == nil {
		return domain.ConflictError(
			fmt.Sprintf("document %s already exists", rec.DocumentID), nil)
	} else if !domain.IsKind(err, domain.ErrorKindNotFound) {
		return err
	}

	if err := s.save(ctx, rec); err != nil {
		return err
	}

	s.logger.Info().
		Str("document_id", rec.DocumentID).
		Int("total_pages", rec.TotalPages).
		Str("state", string(rec.State())).
		Msg("document created")
	return nil
}

// Get returns the DocumentRecord for the given id, or a not-found error.
func (s *Store) Get(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	return s.load(ctx, documentID)
}

// UpdatePage replaces one page of a document. If no record exists yet, a
// record with placeholder pages 1..pageNumber-1 is initialized; an existing
// record shorter than pageNumber is extended with placeholders first. The
// whole read-modify-write runs under the document's lock.
func (s *Store) UpdatePage(ctx context.Context, documentID string, pageNumber int, page domain.PageRecord) (*domain.DocumentRecord, error) {
	if documentID == "" {
		return nil, domain.ValidationError("document id must not be empty", nil)
	}
	if pageNumber < 1 {
		return nil, domain.InvalidPageError(
			fmt.Sprintf("page number must be positive, got %d", pageNumber), nil)
	}

	lock := s.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.load(ctx, documentID)
	switch {
	case domain.IsKind(err, domain.ErrorKindNotFound):
		rec = &domain.DocumentRecord{
			DocumentID: documentID,
			Filename:   documentID + ".pdf",
			KeyFields:  []string{},
			Pages:      []domain.PageRecord{},
			CreatedAt:  time.Now().UTC(),
		}
	case err != nil:
		return nil, err
	}

	for len(rec.Pages) < pageNumber {
		rec.Pages = append(rec.Pages, domain.NewPlaceholderPage(len(rec.Pages)+1))
	}
	page.PageNumber = pageNumber
	rec.Pages[pageNumber-1] = page
	normalize(rec)

	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("document_id", documentID).
		Int("page", pageNumber).
		Str("state", string(rec.State())).
		Msg("page updated")
	return rec, nil
}

func (s *Store) load(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM documents WHERE document_id = ?`, documentID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError(fmt.Sprintf("document %s not found", documentID), nil)
	}
	if err != nil {
		return nil, domain.IOError("failed to read document record", err)
	}

	rec := &domain.DocumentRecord{}
	if err := json.Unmarshal([]byte(raw), rec); err != nil {
		return nil, domain.IOError("failed to decode document record", err)
	}
	return rec, nil
}

func (s *Store) save(ctx context.Context, rec *domain.DocumentRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return domain.IOError("failed to encode document record", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (document_id, record, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		rec.DocumentID, string(raw), time.Now().UTC(),
	)
	if err != nil {
		return domain.IOError("failed to write document record", err)
	}
	return nil
}

// normalize enforces the stored-record invariants: page numbers contiguous
// from 1, total_pages equal to the page count, status and timestamps set.
func normalize(rec *domain.DocumentRecord) {
	for i := range rec.Pages {
		rec.Pages[i].PageNumber = i + 1
		if rec.Pages[i].ExtractedFields == nil {
			rec.Pages[i].ExtractedFields = []domain.ExtractedField{}
		}
	}
	rec.TotalPages = len(rec.Pages)
	if rec.KeyFields == nil {
		rec.KeyFields = []string{}
	}
	if rec.ProcessingStatus == "" {
		rec.ProcessingStatus = domain.StatusCompleted
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}
