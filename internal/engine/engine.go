package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/backend"
	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/domain"
)

const maxTitleLen = 60

// Backend is the full remote surface the engine consumes.
type Backend interface {
	SessionAPI
	Uploader
	StreamMessage(ctx context.Context, req backend.StreamRequest, cb backend.StreamCallbacks, cancel <-chan struct{}) error
}

// Engine drives one conversation: session identity, the send pipeline
// (upload resolution, stream consumption, transcript mutation) and
// cancellation. All exported methods are safe for concurrent use; the
// per-send callback sequence runs on a single goroutine, so stream events
// apply in arrival order.
type Engine struct {
	backend    Backend
	sessions   *SessionManager
	resolver   *Resolver
	transcript *Transcript
	canceller  *Canceller
	log        *zap.Logger

	mu             sync.Mutex
	session        domain.Session
	isThinking     bool
	thinkingText   string
	isStreaming    bool
	loadingHistory bool
}

// New creates an engine with no session attached yet.
func New(b Backend, log *zap.Logger) *Engine {
	return &Engine{
		backend:    b,
		sessions:   NewSessionManager(b, log),
		resolver:   NewResolver(b, log),
		transcript: NewTranscript(),
		canceller:  NewCanceller(),
		log:        log,
	}
}

// StartNew creates a fresh session; the transcript starts empty.
func (e *Engine) StartNew(ctx context.Context) error {
	session, err := e.sessions.Create(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.session = session
	e.mu.Unlock()
	return nil
}

// Resume attaches the engine to an existing session. All transient state
// is cleared synchronously before the fetch starts so no stale entries
// from a previous session survive into the new one; the loading flag
// stays up until the fetch settles, success or failure.
func (e *Engine) Resume(ctx context.Context, sessionID, userID string) {
	e.canceller.Trigger()

	e.mu.Lock()
	e.session = domain.Session{ID: sessionID}
	e.isThinking = false
	e.thinkingText = ""
	e.isStreaming = false
	e.loadingHistory = true
	e.mu.Unlock()
	e.transcript.Clear()

	session, msgs := e.sessions.Resume(ctx, sessionID, userID)
	e.transcript.Replace(msgs)

	e.mu.Lock()
	e.session = session
	e.loadingHistory = false
	e.mu.Unlock()
}

// SessionID returns the active session id, empty when none is attached.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.ID
}

// Snapshot returns the state consumed by presentation layers.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.Lock()
	snap := domain.Snapshot{
		SessionID:        e.session.ID,
		SessionTitle:     e.session.Title,
		IsThinking:       e.isThinking,
		ThinkingText:     e.thinkingText,
		IsStreaming:      e.isStreaming,
		IsLoadingHistory: e.loadingHistory,
	}
	e.mu.Unlock()
	snap.Messages = e.transcript.Snapshot()
	return snap
}

// HandleLike toggles a like on the given message.
func (e *Engine) HandleLike(messageID string) bool {
	return e.transcript.ToggleFeedback(messageID, domain.FeedbackLike)
}

// HandleDislike toggles a dislike on the given message.
func (e *Engine) HandleDislike(messageID string) bool {
	return e.transcript.ToggleFeedback(messageID, domain.FeedbackDislike)
}

// StopGenerating triggers the live cancellation token. A no-op when no
// send is in flight.
func (e *Engine) StopGenerating() {
	e.canceller.Trigger()
}

// PendingSend is a reserved send slot. It is created by BeginSend and
// consumed exactly once by RunSend.
type PendingSend struct {
	req       domain.SendRequest
	token     *Token
	sessionID string
	title     string
}

// BeginSend validates the request and reserves the engine's single send
// slot. It is synchronous, so callers learn about a missing session or an
// in-flight send before any streaming transport is committed. A reserved
// slot must be handed to RunSend, which settles it.
func (e *Engine) BeginSend(req domain.SendRequest) (*PendingSend, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.ID == "" {
		e.log.Error("Send attempted without an active session")
		return nil, domain.ErrNoSession
	}
	if e.canceller.Busy() {
		return nil, domain.ErrSendInFlight
	}

	p := &PendingSend{
		req:       req,
		token:     e.canceller.Begin(),
		sessionID: e.session.ID,
	}
	// Lazy title: the first user message of an untitled conversation
	// names it. The candidate travels with the send but is committed only
	// once the exchange settles without an error.
	if e.session.Title == "" {
		p.title = truncateTitle(req.Text)
	}
	e.isThinking = true
	e.thinkingText = ""
	e.isStreaming = true
	return p, nil
}

// Send runs one full send: append the user entry, resolve files, open the
// stream and apply its events to the transcript. It blocks until the
// stream settles. Events are mirrored to sink (may be nil) for transport
// to the caller. Only one send may be in flight per engine.
func (e *Engine) Send(ctx context.Context, req domain.SendRequest, sink chan<- domain.StreamEvent) error {
	p, err := e.BeginSend(req)
	if err != nil {
		return err
	}
	return e.RunSend(ctx, p, sink)
}

// RunSend executes a send reserved by BeginSend and blocks until the
// stream settles.
func (e *Engine) RunSend(ctx context.Context, p *PendingSend, sink chan<- domain.StreamEvent) error {
	req, token := p.req, p.token

	// The user entry lands before any upload or stream work so callers
	// see the message as sent while uploads are still pending.
	userMsg := domain.Message{
		ID:        uuid.NewString(),
		Text:      req.Text,
		Sender:    domain.SenderUser,
		Timestamp: time.Now(),
		Files:     displayFiles(req.Files),
	}
	e.transcript.Append(userMsg)

	resolved, dropped, err := e.resolver.Resolve(ctx, req.Files, p.sessionID, req.CaseID)
	if err != nil {
		// Partial upload failure never fails a send; total failure is
		// its limit case, so the send proceeds text-only.
		e.log.Warn("Proceeding without attachments",
			zap.String("session_id", p.sessionID), zap.Error(err))
	}
	if len(dropped) > 0 {
		names := make([]string, len(dropped))
		for i, d := range dropped {
			names[i] = d.File.Name
		}
		e.transcript.Mutate(userMsg.ID, func(m *domain.Message) {
			m.DroppedFiles = names
		})
	}

	// The bot placeholder exists before the first event is processed so a
	// zero-chunk send still has an entry to mark as failed.
	botMsg := domain.Message{
		ID:          uuid.NewString(),
		Sender:      domain.SenderBot,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}
	e.transcript.Append(botMsg)

	handles := make([]string, len(resolved))
	for i, f := range resolved {
		handles[i] = f.RemoteURI
	}

	streamErr := e.backend.StreamMessage(ctx, backend.StreamRequest{
		Text:      req.Text,
		SessionID: p.sessionID,
		Context:   req.Context,
		Files:     handles,
		CaseID:    req.CaseID,
		UserID:    req.UserID,
		Title:     p.title,
	}, backend.StreamCallbacks{
		OnChunk: func(text string) {
			e.mu.Lock()
			e.isThinking = false
			e.thinkingText = ""
			e.mu.Unlock()
			e.transcript.AppendChunk(botMsg.ID, text)
			e.emit(ctx, sink, token, domain.StreamEvent{Type: domain.EventChunk, Text: text})
		},
		OnThought: func(status string) {
			e.mu.Lock()
			e.isThinking = true
			e.thinkingText = status
			e.mu.Unlock()
			e.emit(ctx, sink, token, domain.StreamEvent{Type: domain.EventThought, Text: status})
		},
		OnSuggestions: func(list []string) {
			e.transcript.SetSuggestions(botMsg.ID, list)
			e.emit(ctx, sink, token, domain.StreamEvent{Type: domain.EventSuggestions, Suggestions: list})
		},
	}, token.Done())

	return e.finish(ctx, sink, p, botMsg.ID, streamErr)
}

// finish runs the per-send cleanup exactly once and translates the
// terminal state: done, aborted (silent) or errored (visible entry).
func (e *Engine) finish(ctx context.Context, sink chan<- domain.StreamEvent, p *PendingSend, botID string, streamErr error) error {
	e.canceller.Settle(p.token)

	errored := streamErr != nil &&
		!errors.Is(streamErr, domain.ErrAborted) &&
		!errors.Is(streamErr, context.Canceled)

	e.mu.Lock()
	e.isThinking = false
	e.thinkingText = ""
	e.isStreaming = false
	// A failed exchange must not name the conversation, so the title
	// candidate commits only on a clean or user-aborted settle.
	if !errored && p.title != "" && e.session.Title == "" {
		e.session.Title = p.title
	}
	e.mu.Unlock()

	switch {
	case streamErr == nil:
		e.transcript.FinishStreaming(botID, false)
		e.emitFinal(ctx, sink, domain.StreamEvent{Type: domain.EventDone})
		return nil
	case errors.Is(streamErr, domain.ErrAborted) || errors.Is(streamErr, context.Canceled):
		// User-initiated stop: no error entry, flags cleared silently.
		e.transcript.FinishStreaming(botID, false)
		e.emitFinal(ctx, sink, domain.StreamEvent{Type: domain.EventAborted})
		return nil
	default:
		e.log.Error("Stream failed", zap.Error(streamErr))
		e.markErrored(botID)
		e.emitFinal(ctx, sink, domain.StreamEvent{Type: domain.EventError, Text: streamErr.Error()})
		return streamErr
	}
}

// markErrored surfaces a stream failure in the transcript. An empty
// placeholder becomes the error entry itself; a partially streamed reply
// keeps its text and a separate error entry is appended after it.
func (e *Engine) markErrored(botID string) {
	var partial bool
	e.transcript.Mutate(botID, func(m *domain.Message) {
		partial = m.Text != ""
		m.IsStreaming = false
		if !partial {
			m.Text = "Lo siento, ha ocurrido un error. Por favor, intenta de nuevo."
			m.IsError = true
		}
	})
	if partial {
		e.transcript.Append(domain.Message{
			ID:        uuid.NewString(),
			Text:      "Lo siento, ha ocurrido un error. Por favor, intenta de nuevo.",
			Sender:    domain.SenderBot,
			Timestamp: time.Now(),
			IsError:   true,
		})
	}
}

// emit mirrors an event to the caller's sink without ever wedging the
// send goroutine on a consumer that stopped reading.
func (e *Engine) emit(ctx context.Context, sink chan<- domain.StreamEvent, token *Token, ev domain.StreamEvent) {
	if sink == nil {
		return
	}
	select {
	case sink <- ev:
	case <-token.Done():
	case <-ctx.Done():
	}
}

// emitFinal delivers a terminal event. The triggered token must not
// suppress it: an aborted stream still owes its consumer the terminal
// frame.
func (e *Engine) emitFinal(ctx context.Context, sink chan<- domain.StreamEvent, ev domain.StreamEvent) {
	if sink == nil {
		return
	}
	select {
	case sink <- ev:
	case <-ctx.Done():
	}
}

func displayFiles(files []domain.FileRef) []domain.FileRef {
	if len(files) == 0 {
		return nil
	}
	out := make([]domain.FileRef, len(files))
	for i, f := range files {
		f.Data = nil
		out[i] = f
	}
	return out
}

func truncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= maxTitleLen {
		return text
	}
	return string(runes[:maxTitleLen])
}
