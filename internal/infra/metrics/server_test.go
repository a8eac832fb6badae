package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubPreview struct {
	body []byte
	err  error
}

func (s stubPreview) WriteJPEG(w io.Writer, _ int) error {
	if s.err != nil {
		return s.err
	}
	_, err := w.Write(s.body)
	return err
}

func TestRouter_Healthz(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	UploadsTotal.WithLabelValues("completed").Inc()

	rec := httptest.NewRecorder()
	NewRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "courtvision_uploads_total")
}

func TestRouter_Preview(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(stubPreview{body: []byte{0xFF, 0xD8}}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/latest.jpg", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	NewRouter(stubPreview{err: errors.New("empty")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/latest.jpg", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	NewRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/latest.jpg", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
