package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/backend"
	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/domain"
	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/service"
)

type fakeBackend struct {
	streamFn func(cb backend.StreamCallbacks, cancel <-chan struct{}) error
}

func (f *fakeBackend) CreateSession(ctx context.Context) (string, error) {
	return "sess-1", nil
}

func (f *fakeBackend) History(ctx context.Context, sessionID, userID string) ([]domain.HistoryEntry, error) {
	return nil, nil
}

func (f *fakeBackend) SessionMetadata(ctx context.Context, sessionID string) (*domain.SessionMetadata, error) {
	return nil, nil
}

func (f *fakeBackend) UploadFilesBatch(ctx context.Context, files []domain.FileRef, sessionID, caseID string) ([]string, error) {
	handles := make([]string, len(files))
	for i, file := range files {
		handles[i] = "gs://bucket/" + file.Name
	}
	return handles, nil
}

func (f *fakeBackend) UploadFileSingle(ctx context.Context, file domain.FileRef, sessionID, caseID string) (string, error) {
	return "gs://bucket/" + file.Name, nil
}

func (f *fakeBackend) StreamMessage(ctx context.Context, req backend.StreamRequest, cb backend.StreamCallbacks, cancel <-chan struct{}) error {
	if f.streamFn != nil {
		return f.streamFn(cb, cancel)
	}
	return nil
}

func newTestRouter(fb *fakeBackend) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(service.NewChatService(fb, zap.NewNop()), Limits{MaxFiles: 3, MaxFileSize: 1 << 20})
	h.RegisterRoutes(r.Group("/api/chat"))
	return r
}

func createSession(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/sessions", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.NotEmpty(t, snap.SessionID)
	return snap.SessionID
}

func sendForm(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestSendStreamEndpoint(t *testing.T) {
	fb := &fakeBackend{
		streamFn: func(cb backend.StreamCallbacks, cancel <-chan struct{}) error {
			cb.OnChunk("Hola")
			cb.OnChunk(" que tal")
			return nil
		},
	}
	r := newTestRouter(fb)
	sessionID := createSession(t, r)

	body, contentType := sendForm(t, map[string]string{"text": "Hola"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/sessions/"+sessionID+"/stream", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	raw := w.Body.String()
	assert.Contains(t, raw, "event: chunk")
	assert.Contains(t, raw, `"text":"Hola"`)
	assert.Contains(t, raw, "event: done")
	// Terminal frame closes the stream.
	assert.True(t, strings.Index(raw, "event: chunk") < strings.Index(raw, "event: done"))
}

func TestSendStreamRequiresText(t *testing.T) {
	r := newTestRouter(&fakeBackend{})
	sessionID := createSession(t, r)

	body, contentType := sendForm(t, map[string]string{"case_id": "case-1"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/sessions/"+sessionID+"/stream", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendStreamUnknownSession(t *testing.T) {
	r := newTestRouter(&fakeBackend{})

	body, contentType := sendForm(t, map[string]string{"text": "Hola"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/sessions/desconocida/stream", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendStreamConflictWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fb := &fakeBackend{
		streamFn: func(cb backend.StreamCallbacks, cancel <-chan struct{}) error {
			cb.OnChunk("primera respuesta")
			close(started)
			<-release
			return nil
		},
	}
	r := newTestRouter(fb)
	sessionID := createSession(t, r)

	body, contentType := sendForm(t, map[string]string{"text": "Hola"})
	first := httptest.NewRequest(http.MethodPost, "/api/chat/sessions/"+sessionID+"/stream", body)
	first.Header.Set("Content-Type", contentType)
	w1 := httptest.NewRecorder()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		r.ServeHTTP(w1, first)
	}()
	<-started

	// A second send while the first is live must be refused up front with
	// a conflict status, not with an empty event stream.
	body2, contentType2 := sendForm(t, map[string]string{"text": "Hola de nuevo"})
	second := httptest.NewRequest(http.MethodPost, "/api/chat/sessions/"+sessionID+"/stream", body2)
	second.Header.Set("Content-Type", contentType2)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, second)

	assert.Equal(t, http.StatusConflict, w2.Code)
	assert.NotContains(t, w2.Header().Get("Content-Type"), "text/event-stream")

	close(release)
	select {
	case <-firstDone:
	case <-time.After(2 * time.Second):
		t.Fatal("first stream did not settle")
	}
	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Contains(t, w1.Body.String(), "event: done")
}

func TestFeedbackEndpoint(t *testing.T) {
	fb := &fakeBackend{
		streamFn: func(cb backend.StreamCallbacks, cancel <-chan struct{}) error {
			cb.OnChunk("respuesta")
			return nil
		},
	}
	r := newTestRouter(fb)
	sessionID := createSession(t, r)

	body, contentType := sendForm(t, map[string]string{"text": "Hola"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/sessions/"+sessionID+"/stream", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Fetch the bot message id from the snapshot.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/chat/sessions/"+sessionID, nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Len(t, snap.Messages, 2)
	botID := snap.Messages[1].ID

	payload := bytes.NewBufferString(`{"action":"like"}`)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/chat/sessions/"+sessionID+"/messages/"+botID+"/feedback", payload)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	payload = bytes.NewBufferString(`{"action":"meh"}`)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/chat/sessions/"+sessionID+"/messages/"+botID+"/feedback", payload)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStopEndpoint(t *testing.T) {
	r := newTestRouter(&fakeBackend{})
	sessionID := createSession(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat/sessions/"+sessionID+"/stop", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/chat/sessions/otra/stop", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
