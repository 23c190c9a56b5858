package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docproof/internal/model"
	"docproof/internal/service"
	serviceMocks "docproof/internal/service/mocks"
)

// multipartUpload builds a multipart body with one file part (and optional
// extra form fields), returning the body and its content type header.
func multipartUpload(t *testing.T, filename, contentType string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)

	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterDocument(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		mSvc := new(serviceMocks.MockDocumentService)
		mSvc.On("Register", mock.Anything, mock.Anything, "report.pdf", "application/pdf", mock.Anything, "alice@example.com").
			Return(&model.Document{ID: "new-id", Owner: "alice@example.com", SerialNumber: "A1B2C3D4"}, nil)

		app := fiber.New()
		app.Post("/documents", RegisterDocument(mSvc))

		body, ct := multipartUpload(t, "report.pdf", "application/pdf", []byte("%PDF-1.4 body"), map[string]string{"owner": "alice@example.com"})
		req := httptest.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var doc model.Document
		json.NewDecoder(resp.Body).Decode(&doc)
		assert.Equal(t, "new-id", doc.ID)
		assert.Equal(t, "A1B2C3D4", doc.SerialNumber)
		mSvc.AssertExpectations(t)
	})

	t.Run("missing file", func(t *testing.T) {
		app := fiber.New()
		app.Post("/documents", RegisterDocument(new(serviceMocks.MockDocumentService)))

		req := httptest.NewRequest(http.MethodPost, "/documents", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing owner", func(t *testing.T) {
		app := fiber.New()
		app.Post("/documents", RegisterDocument(new(serviceMocks.MockDocumentService)))

		body, ct := multipartUpload(t, "report.pdf", "application/pdf", []byte("x"), nil)
		req := httptest.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "OWNER_REQUIRED", res.Error.Code)
	})

	t.Run("duplicate content", func(t *testing.T) {
		mSvc := new(serviceMocks.MockDocumentService)
		mSvc.On("Register", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, service.ErrContentConflict)

		app := fiber.New()
		app.Post("/documents", RegisterDocument(mSvc))

		body, ct := multipartUpload(t, "report.pdf", "application/pdf", []byte("dup"), map[string]string{"owner": "alice@example.com"})
		req := httptest.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "CONTENT_CONFLICT", res.Error.Code)
	})
}

func TestReplaceDocument(t *testing.T) {
	id := uuid.NewString()

	t.Run("ok", func(t *testing.T) {
		mSvc := new(serviceMocks.MockDocumentService)
		mSvc.On("ReplaceContent", mock.Anything, id, mock.Anything, "final.pdf", "application/pdf", mock.Anything).
			Return(&model.Document{ID: id, SerialNumber: "A1B2C3D4"}, nil)

		app := fiber.New()
		app.Put("/documents/:id", ReplaceDocument(mSvc))

		body, ct := multipartUpload(t, "final.pdf", "application/pdf", []byte("stamped"), nil)
		req := httptest.NewRequest(http.MethodPut, "/documents/"+id, body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mSvc.AssertExpectations(t)
	})

	t.Run("invalid id", func(t *testing.T) {
		app := fiber.New()
		app.Put("/documents/:id", ReplaceDocument(new(serviceMocks.MockDocumentService)))

		body, ct := multipartUpload(t, "final.pdf", "application/pdf", []byte("stamped"), nil)
		req := httptest.NewRequest(http.MethodPut, "/documents/not-a-uuid", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("not found", func(t *testing.T) {
		mSvc := new(serviceMocks.MockDocumentService)
		mSvc.On("ReplaceContent", mock.Anything, id, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, service.ErrNotFound)

		app := fiber.New()
		app.Put("/documents/:id", ReplaceDocument(mSvc))

		body, ct := multipartUpload(t, "final.pdf", "application/pdf", []byte("stamped"), nil)
		req := httptest.NewRequest(http.MethodPut, "/documents/"+id, body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestVerifyDocument(t *testing.T) {
	newApp := func(mSvc *serviceMocks.MockVerificationService) *fiber.App {
		app := fiber.New()
		app.Post("/documents/verify", VerifyDocument(mSvc))
		return app
	}

	post := func(t *testing.T, app *fiber.App, filename, contentType string, content []byte) *http.Response {
		body, ct := multipartUpload(t, filename, contentType, content, nil)
		req := httptest.NewRequest(http.MethodPost, "/documents/verify", body)
		req.Header.Set("Content-Type", ct)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	decodeVerdict := func(t *testing.T, resp *http.Response) service.Verdict {
		var v service.Verdict
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
		return v
	}

	t.Run("valid verdict returns 200", func(t *testing.T) {
		mSvc := new(serviceMocks.MockVerificationService)
		mSvc.On("Verify", mock.Anything, []byte("%PDF-1.4 body"), "application/pdf").
			Return(service.Verdict{Status: service.StatusValid, IsVerified: true, Message: "document verified"})

		resp := post(t, newApp(mSvc), "report.pdf", "application/pdf", []byte("%PDF-1.4 body"))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		v := decodeVerdict(t, resp)
		assert.Equal(t, service.StatusValid, v.Status)
		assert.True(t, v.IsVerified)
		mSvc.AssertExpectations(t)
	})

	t.Run("invalid verdict is still 200", func(t *testing.T) {
		mSvc := new(serviceMocks.MockVerificationService)
		mSvc.On("Verify", mock.Anything, mock.Anything, mock.Anything).
			Return(service.Verdict{Status: service.StatusInvalid, Message: "no matching record for this content"})

		resp := post(t, newApp(mSvc), "report.pdf", "application/pdf", []byte("tampered"))

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		v := decodeVerdict(t, resp)
		assert.Equal(t, service.StatusInvalid, v.Status)
		assert.False(t, v.IsVerified)
	})

	t.Run("error verdict returns 400", func(t *testing.T) {
		mSvc := new(serviceMocks.MockVerificationService)
		mSvc.On("Verify", mock.Anything, mock.Anything, "text/plain").
			Return(service.Verdict{Status: service.StatusError, Message: `unsupported content type "text/plain"`})

		resp := post(t, newApp(mSvc), "notes.txt", "text/plain", []byte("plain text"))

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		v := decodeVerdict(t, resp)
		assert.Equal(t, service.StatusError, v.Status)
		assert.Contains(t, v.Message, "unsupported")
	})

	t.Run("missing file returns 400 error verdict", func(t *testing.T) {
		app := newApp(new(serviceMocks.MockVerificationService))

		req := httptest.NewRequest(http.MethodPost, "/documents/verify", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		v := decodeVerdict(t, resp)
		assert.Equal(t, service.StatusError, v.Status)
	})
}

func TestGetDocument(t *testing.T) {
	id := uuid.NewString()

	t.Run("found", func(t *testing.T) {
		mSvc := new(serviceMocks.MockDocumentService)
		mSvc.On("Get", mock.Anything, id).Return(&model.Document{ID: id}, nil)

		app := fiber.New()
		app.Get("/documents/:id", GetDocument(mSvc))

		req := httptest.NewRequest(http.MethodGet, "/documents/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("invalid id", func(t *testing.T) {
		app := fiber.New()
		app.Get("/documents/:id", GetDocument(new(serviceMocks.MockDocumentService)))

		req := httptest.NewRequest(http.MethodGet, "/documents/nope", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("not found", func(t *testing.T) {
		mSvc := new(serviceMocks.MockDocumentService)
		mSvc.On("Get", mock.Anything, id).Return(nil, service.ErrNotFound)

		app := fiber.New()
		app.Get("/documents/:id", GetDocument(mSvc))

		req := httptest.NewRequest(http.MethodGet, "/documents/"+id, nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestDownloadDocument(t *testing.T) {
	id := uuid.NewString()

	mSvc := new(serviceMocks.MockDocumentService)
	mSvc.On("DownloadURL", mock.Anything, id, 15*time.Minute).
		Return("https://store.example/documents/a.pdf?sig=x", nil)

	app := fiber.New()
	app.Get("/documents/:id/download", DownloadDocument(mSvc))

	req := httptest.NewRequest(http.MethodGet, "/documents/"+id+"/download", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "a.pdf")
}

func TestListDocuments(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		mSvc := new(serviceMocks.MockDocumentService)
		mSvc.On("List", mock.Anything, 10, 0).
			Return(&service.DocumentListResult{Items: []model.Document{{ID: "1"}}, Total: 1}, nil)

		app := fiber.New()
		app.Get("/documents", ListDocuments(mSvc))

		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("invalid limit", func(t *testing.T) {
		app := fiber.New()
		app.Get("/documents", ListDocuments(new(serviceMocks.MockDocumentService)))

		req := httptest.NewRequest(http.MethodGet, "/documents?limit=abc", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestDeleteDocument(t *testing.T) {
	id := uuid.NewString()

	mSvc := new(serviceMocks.MockDocumentService)
	mSvc.On("Delete", mock.Anything, id).Return(nil)

	app := fiber.New()
	app.Delete("/documents/:id", DeleteDocument(mSvc))

	req := httptest.NewRequest(http.MethodDelete, "/documents/"+id, nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Get("/health", LivenessProbe())

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/non-existent", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		// Health endpoint only allows GET
		req := httptest.NewRequest(http.MethodPost, "/health", nil)
		resp, _ := app.Test(req)

		// Fiber returns 405 by default if route exists but method doesn't match
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		var res errorPayload
		json.NewDecoder(resp.Body).Decode(&res)
		assert.Equal(t, "METHOD_NOT_ALLOWED", res.Error.Code)
	})
}
