package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/domain"
)

func TestUploadFilesBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/uploads/batch", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(32<<20))

		assert.Equal(t, "sess-1", r.FormValue("session_id"))
		assert.Equal(t, "case-7", r.FormValue("case_id"))

		files := r.MultipartForm.File["files"]
		require.Len(t, files, 2)
		assert.Equal(t, "informe.pdf", files[0].Filename)
		assert.Equal(t, "acta.pdf", files[1].Filename)

		src, err := files[0].Open()
		require.NoError(t, err)
		defer src.Close()
		data, err := io.ReadAll(src)
		require.NoError(t, err)
		assert.Equal(t, []byte("pdf-bytes"), data)

		w.Write([]byte(`{"files":[{"gcs_uri":"gs://b/informe.pdf"},{"gcs_uri":"gs://b/acta.pdf"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	handles, err := c.UploadFilesBatch(context.Background(), []domain.FileRef{
		{Name: "informe.pdf", MimeType: "application/pdf", Data: []byte("pdf-bytes")},
		{Name: "acta.pdf", Data: []byte("otros-bytes")},
	}, "sess-1", "case-7")

	require.NoError(t, err)
	assert.Equal(t, []string{"gs://b/informe.pdf", "gs://b/acta.pdf"}, handles)
}

func TestUploadFilesBatchCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"files":[{"gcs_uri":"gs://b/solo-uno.pdf"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.UploadFilesBatch(context.Background(), []domain.FileRef{
		{Name: "a.pdf", Data: []byte("x")},
		{Name: "b.pdf", Data: []byte("y")},
	}, "sess-1", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 handles")
}

func TestUploadFileSingle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/uploads", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(32<<20))
		files := r.MultipartForm.File["files"]
		require.Len(t, files, 1)
		w.Write([]byte(`{"gcs_uri":"gs://b/uno.pdf"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	handle, err := c.UploadFileSingle(context.Background(), domain.FileRef{
		Name: "uno.pdf", Data: []byte("x"),
	}, "sess-1", "")

	require.NoError(t, err)
	assert.Equal(t, "gs://b/uno.pdf", handle)
}

func TestUploadFileSingleBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"code":500,"message":"bucket unavailable"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.UploadFileSingle(context.Background(), domain.FileRef{
		Name: "uno.pdf", Data: []byte("x"),
	}, "sess-1", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
}
