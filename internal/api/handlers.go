package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docufield/field-extractor/internal/domain"
	"github.com/docufield/field-extractor/internal/pdf"
)

// ExtractPageRequest is the body of a single-page extraction call.
type ExtractPageRequest struct {
	KeyFields []string `json:"key_fields"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// handleUpload accepts a multipart PDF upload plus a comma-separated
// key_fields form value. An empty field list stores placeholder pages for
// later page-driven extraction.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	if err := r.ParseMultipartForm(s.cfg.Upload.MaxFileSize); err != nil {
		s.writeError(w, http.StatusBadRequest, "file too large or malformed upload", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field", err)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		s.writeError(w, http.StatusBadRequest, "only PDF files are allowed", nil)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read upload", err)
		return
	}
	if err := pdf.CheckPDF(data); err != nil {
		s.writeError(w, http.StatusBadRequest, "only PDF files are allowed", err)
		return
	}

	keyFields := splitFields(r.FormValue("key_fields"))

	documentID := uuid.New().String()
	if err := s.saveUpload(documentID, data); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to store upload", err)
		return
	}

	rec, err := s.svc.ProcessDocument(r.Context(), documentID, header.Filename, data, keyFields)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleExtractPage runs single-page extraction against a previously
// uploaded document.
func (s *Server) handleExtractPage(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	pageNumber, err := strconv.Atoi(chi.URLParam(r, "pageNumber"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid page number", err)
		return
	}

	var req ExtractPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	data, err := s.readUpload(documentID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	page, err := s.svc.ProcessPage(r.Context(), documentID, data, pageNumber, req.KeyFields)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// handleGetDocument returns the stored DocumentRecord.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.GetDocument(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleGetPage returns one page of the stored record.
func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	pageNumber, err := strconv.Atoi(chi.URLParam(r, "pageNumber"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid page number", err)
		return
	}

	page, err := s.svc.GetPage(r.Context(), documentID, pageNumber)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) saveUpload(documentID string, data []byte) error {
	if err := os.MkdirAll(s.cfg.Upload.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.uploadPath(documentID), data, 0o644)
}

func (s *Server) readUpload(documentID string) ([]byte, error) {
	data, err := os.ReadFile(s.uploadPath(documentID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.NotFoundError("document "+documentID+" not found", err)
	}
	if err != nil {
		return nil, domain.IOError("failed to read stored document", err)
	}
	return data, nil
}

func (s *Server) uploadPath(documentID string) string {
	// The id is server-generated, but never trust it as a path component.
	return filepath.Join(s.cfg.Upload.Dir, filepath.Base(documentID)+".pdf")
}

func splitFields(raw string) []string {
	fields := make([]string, 0, 4)
	for _, field := range strings.Split(raw, ",") {
		if field = strings.TrimSpace(field); field != "" {
			fields = append(fields, field)
		}
	}
	return fields
}

// writeDomainError maps domain error kinds to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsKind(err, domain.ErrorKindInvalidPage),
		domain.IsKind(err, domain.ErrorKindValidation):
		status = http.StatusBadRequest
	case domain.IsKind(err, domain.ErrorKindNotFound):
		status = http.StatusNotFound
	case domain.IsKind(err, domain.ErrorKindConflict):
		status = http.StatusConflict
	}
	s.writeError(w, status, err.Error(), nil)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{
		Error:     message,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		resp.Detail = err.Error()
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error().Int("status", status).Str("error", message).Err(err).Msg("request failed")
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
