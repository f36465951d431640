package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docufield/field-extractor/internal/config"
	"github.com/docufield/field-extractor/internal/domain"
	"github.com/docufield/field-extractor/internal/extract"
	"github.com/docufield/field-extractor/internal/observability"
	"github.com/docufield/field-extractor/internal/store"
)

type stubRenderer struct {
	pages int
}

func (r *stubRenderer) PageCount(data []byte) (int, error) {
	return r.pages, nil
}

func (r *stubRenderer) RenderPage(ctx context.Context, data []byte, pageIndex int) (*domain.PageImage, error) {
	return &domain.PageImage{PageNumber: pageIndex + 1, PNG: []byte{0x89}, Width: 10, Height: 10}, nil
}

func (r *stubRenderer) PageText(data []byte, pageIndex int) (string, error) {
	return "", nil
}

type stubClient struct{}

func (stubClient) ExtractFields(ctx context.Context, image *domain.PageImage, requestedFields []string, pageNumber int) []domain.ExtractedField {
	fields := make([]domain.ExtractedField, 0, len(requestedFields))
	for _, name := range requestedFields {
		fields = append(fields, domain.ExtractedField{
			FieldName:  name,
			Value:      fmt.Sprintf("%s-p%d", name, pageNumber),
			Confidence: 0.9,
			PageNumber: pageNumber,
		})
	}
	return fields
}

func (stubClient) DetectLanguage(ctx context.Context, image *domain.PageImage) string {
	return "en"
}

func newTestServer(t *testing.T, pages int) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Upload.Dir = t.TempDir()

	st, err := store.Open(filepath.Join(t.TempDir(), "documents.db"), "WAL", observability.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := extract.NewService(&stubRenderer{pages: pages}, stubClient{}, st, observability.Nop())
	return NewServer(cfg, svc, observability.Nop())
}

func multipartUpload(t *testing.T, filename, keyFields string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("key_fields", keyFields))
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func uploadDocument(t *testing.T, router http.Handler, keyFields string) domain.DocumentRecord {
	t.Helper()
	body, contentType := multipartUpload(t, "invoice.pdf", keyFields, []byte("%PDF-1.4 test"))
	req := httptest.NewRequest(http.MethodPost, "/upload-pdf", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var rec domain.DocumentRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	return rec
}

func TestUploadExtractsDocument(t *testing.T) {
	router := newTestServer(t, 2).Router()

	rec := uploadDocument(t, router, "invoice_number, total")

	assert.NotEmpty(t, rec.DocumentID)
	assert.Equal(t, "invoice.pdf", rec.Filename)
	assert.Equal(t, 2, rec.TotalPages)
	assert.Equal(t, []string{"invoice_number", "total"}, rec.KeyFields)
	require.Len(t, rec.Pages, 2)
	assert.Len(t, rec.Pages[0].ExtractedFields, 2)
	assert.Equal(t, "/uploads/"+rec.DocumentID+".pdf#page=1", rec.Pages[0].PageImageReference)
}

func TestUploadWithoutFieldsStoresPlaceholders(t *testing.T) {
	router := newTestServer(t, 3).Router()

	rec := uploadDocument(t, router, "")

	assert.Empty(t, rec.KeyFields)
	require.Len(t, rec.Pages, 3)
	for _, page := range rec.Pages {
		assert.True(t, page.IsPlaceholder())
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	router := newTestServer(t, 1).Router()

	cases := []struct {
		name     string
		filename string
		content  []byte
	}{
		{"wrong extension", "notes.txt", []byte("%PDF-1.4")},
		{"wrong magic", "fake.pdf", []byte("GIF89a...")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, contentType := multipartUpload(t, tc.filename, "", tc.content)
			req := httptest.NewRequest(http.MethodPost, "/upload-pdf", body)
			req.Header.Set("Content-Type", contentType)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, "only PDF files are allowed", resp.Error)
			assert.False(t, resp.Timestamp.IsZero())
		})
	}
}

func TestGetDocument(t *testing.T) {
	router := newTestServer(t, 1).Router()
	rec := uploadDocument(t, router, "total")

	req := httptest.NewRequest(http.MethodGet, "/document/"+rec.DocumentID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got domain.DocumentRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, rec.DocumentID, got.DocumentID)
}

func TestGetDocument_Unknown(t *testing.T) {
	router := newTestServer(t, 1).Router()

	req := httptest.NewRequest(http.MethodGet, "/document/no-such-id", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetPage(t *testing.T) {
	router := newTestServer(t, 2).Router()
	rec := uploadDocument(t, router, "total")

	req := httptest.NewRequest(http.MethodGet, "/document/"+rec.DocumentID+"/page/2", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var page domain.PageRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, 2, page.PageNumber)

	// Out of range.
	req = httptest.NewRequest(http.MethodGet, "/document/"+rec.DocumentID+"/page/9", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Not a number.
	req = httptest.NewRequest(http.MethodGet, "/document/"+rec.DocumentID+"/page/two", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExtractPage(t *testing.T) {
	router := newTestServer(t, 3).Router()
	rec := uploadDocument(t, router, "")

	body, err := json.Marshal(ExtractPageRequest{KeyFields: []string{"invoice_number"}})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost,
		"/document/"+rec.DocumentID+"/page/2/extract", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var page domain.PageRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, 2, page.PageNumber)
	require.Len(t, page.ExtractedFields, 1)
	assert.Equal(t, "invoice_number-p2", page.ExtractedFields[0].Value)

	// The sibling pages stay placeholders.
	getReq := httptest.NewRequest(http.MethodGet, "/document/"+rec.DocumentID, nil)
	getRR := httptest.NewRecorder()
	router.ServeHTTP(getRR, getReq)
	var got domain.DocumentRecord
	require.NoError(t, json.Unmarshal(getRR.Body.Bytes(), &got))
	assert.True(t, got.Pages[0].IsPlaceholder())
	assert.False(t, got.Pages[1].IsPlaceholder())
	assert.True(t, got.Pages[2].IsPlaceholder())
}

func TestExtractPage_UnknownDocument(t *testing.T) {
	router := newTestServer(t, 1).Router()

	req := httptest.NewRequest(http.MethodPost,
		"/document/no-such-id/page/1/extract", bytes.NewReader([]byte(`{"key_fields":["total"]}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestExtractPage_OutOfRange(t *testing.T) {
	router := newTestServer(t, 2).Router()
	rec := uploadDocument(t, router, "")

	req := httptest.NewRequest(http.MethodPost,
		"/document/"+rec.DocumentID+"/page/5/extract", bytes.NewReader([]byte(`{"key_fields":["total"]}`)))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadsServed(t *testing.T) {
	router := newTestServer(t, 1).Router()
	rec := uploadDocument(t, router, "")

	req := httptest.NewRequest(http.MethodGet, "/uploads/"+rec.DocumentID+".pdf", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	data, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 test"), data)
}

func TestHealth(t *testing.T) {
	router := newTestServer(t, 1).Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "healthy")
}

func TestCORS(t *testing.T) {
	middleware := CORS([]string{"http://localhost:3000"})
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
