package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/domain"
)

// Uploader is the backend surface the resolver needs.
type Uploader interface {
	UploadFilesBatch(ctx context.Context, files []domain.FileRef, sessionID, caseID string) ([]string, error)
	UploadFileSingle(ctx context.Context, file domain.FileRef, sessionID, caseID string) (string, error)
}

// Resolver turns a mixed list of pending and already-resolved file refs
// into a fully resolved list. It tries one batch call first; if the batch
// itself fails it falls back to uploading the pending files one at a
// time, dropping only the individual files that still fail. Batch
// endpoints fail atomically on infrastructure errors unrelated to any
// single file, while the fallback isolates per-file problems.
type Resolver struct {
	uploader Uploader
	log      *zap.Logger
}

// NewResolver creates a resolver over the given upload transport.
func NewResolver(uploader Uploader, log *zap.Logger) *Resolver {
	return &Resolver{uploader: uploader, log: log}
}

// Resolve returns the resolved refs in their original relative order plus
// one UploadResult per dropped file. It returns domain.ErrAllUploadsFailed
// only when there were pending files and none of them resolved.
func (r *Resolver) Resolve(ctx context.Context, files []domain.FileRef, sessionID, caseID string) ([]domain.FileRef, []domain.UploadResult, error) {
	var pending []domain.FileRef
	for _, f := range files {
		if !f.Resolved() {
			pending = append(pending, f)
		}
	}
	if len(pending) == 0 {
		return files, nil, nil
	}

	handles := make([]string, len(pending))
	errs := make([]error, len(pending))

	batch, err := r.uploader.UploadFilesBatch(ctx, pending, sessionID, caseID)
	if err != nil {
		r.log.Warn("Batch upload failed, falling back to sequential uploads",
			zap.String("session_id", sessionID), zap.Int("files", len(pending)), zap.Error(err))
		r.sequential(ctx, pending, sessionID, caseID, handles, errs)
	} else {
		copy(handles, batch)
		// A successful batch can still hand back an empty handle for a
		// file the backend rejected; retry just that file individually.
		for i, h := range handles {
			if h == "" {
				handles[i], errs[i] = r.uploader.UploadFileSingle(ctx, pending[i], sessionID, caseID)
				if errs[i] == nil && handles[i] == "" {
					errs[i] = fmt.Errorf("file %s rejected by backend", pending[i].Name)
				}
			}
		}
	}

	resolved := make([]domain.FileRef, 0, len(files))
	var dropped []domain.UploadResult
	next := 0
	for _, f := range files {
		if f.Resolved() {
			resolved = append(resolved, f)
			continue
		}
		if handles[next] != "" {
			f.RemoteURI = handles[next]
			f.Data = nil
			resolved = append(resolved, f)
		} else {
			r.log.Warn("Dropping file from send after upload failure",
				zap.String("file", f.Name), zap.Error(errs[next]))
			dropped = append(dropped, domain.UploadResult{File: f, Err: errs[next]})
		}
		next++
	}

	if len(dropped) == len(pending) {
		return resolved, dropped, domain.ErrAllUploadsFailed
	}
	return resolved, dropped, nil
}

// sequential uploads each pending file in original order. A single
// failure drops that file only; the remaining uploads continue.
func (r *Resolver) sequential(ctx context.Context, pending []domain.FileRef, sessionID, caseID string, handles []string, errs []error) {
	for i, f := range pending {
		handle, err := r.uploader.UploadFileSingle(ctx, f, sessionID, caseID)
		if err != nil {
			errs[i] = err
			continue
		}
		handles[i] = handle
	}
}
