package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/backend"
	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/domain"
)

// fakeBackend scripts the remote assistant backend for engine tests.
type fakeBackend struct {
	mu sync.Mutex

	createID   string
	createErr  error
	history    []domain.HistoryEntry
	historyErr error
	meta       *domain.SessionMetadata
	metaErr    error

	batchFn  func(files []domain.FileRef) ([]string, error)
	singleFn func(f domain.FileRef) (string, error)
	streamFn func(ctx context.Context, req backend.StreamRequest, cb backend.StreamCallbacks, cancel <-chan struct{}) error

	singleCalls []string
	streamReqs  []backend.StreamRequest
}

func (f *fakeBackend) CreateSession(ctx context.Context) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	if f.createID == "" {
		return "sess-1", nil
	}
	return f.createID, nil
}

func (f *fakeBackend) History(ctx context.Context, sessionID, userID string) ([]domain.HistoryEntry, error) {
	return f.history, f.historyErr
}

func (f *fakeBackend) SessionMetadata(ctx context.Context, sessionID string) (*domain.SessionMetadata, error) {
	return f.meta, f.metaErr
}

func (f *fakeBackend) UploadFilesBatch(ctx context.Context, files []domain.FileRef, sessionID, caseID string) ([]string, error) {
	if f.batchFn != nil {
		return f.batchFn(files)
	}
	handles := make([]string, len(files))
	for i, file := range files {
		handles[i] = "gs://bucket/" + file.Name
	}
	return handles, nil
}

func (f *fakeBackend) UploadFileSingle(ctx context.Context, file domain.FileRef, sessionID, caseID string) (string, error) {
	f.mu.Lock()
	f.singleCalls = append(f.singleCalls, file.Name)
	f.mu.Unlock()
	if f.singleFn != nil {
		return f.singleFn(file)
	}
	return "gs://bucket/" + file.Name, nil
}

func (f *fakeBackend) StreamMessage(ctx context.Context, req backend.StreamRequest, cb backend.StreamCallbacks, cancel <-chan struct{}) error {
	f.mu.Lock()
	f.streamReqs = append(f.streamReqs, req)
	f.mu.Unlock()
	if f.streamFn != nil {
		return f.streamFn(ctx, req, cb, cancel)
	}
	return nil
}

func (f *fakeBackend) singleUploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.singleCalls...)
}

func (f *fakeBackend) lastStreamReq() (backend.StreamRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streamReqs) == 0 {
		return backend.StreamRequest{}, false
	}
	return f.streamReqs[len(f.streamReqs)-1], true
}

var errBoom = errors.New("boom")
