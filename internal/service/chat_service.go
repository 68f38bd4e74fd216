package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/domain"
	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/engine"
)

// ChatService owns one engine per live conversation and bridges the HTTP
// layer to them.
type ChatService struct {
	backend engine.Backend
	log     *zap.Logger

	mu      sync.Mutex
	engines map[string]*engine.Engine
}

// NewChatService creates a new chat service
func NewChatService(backend engine.Backend, log *zap.Logger) *ChatService {
	return &ChatService{
		backend: backend,
		log:     log,
		engines: make(map[string]*engine.Engine),
	}
}

// NewConversation creates a backend session and an engine bound to it.
func (s *ChatService) NewConversation(ctx context.Context) (domain.Snapshot, error) {
	eng := engine.New(s.backend, s.log)
	if err := eng.StartNew(ctx); err != nil {
		return domain.Snapshot{}, err
	}

	s.mu.Lock()
	s.engines[eng.SessionID()] = eng
	s.mu.Unlock()

	return eng.Snapshot(), nil
}

// Resume returns the engine for a session, building and resuming one if
// the session is not yet live in this process.
func (s *ChatService) Resume(ctx context.Context, sessionID, userID string) domain.Snapshot {
	s.mu.Lock()
	eng, ok := s.engines[sessionID]
	if !ok {
		eng = engine.New(s.backend, s.log)
		s.engines[sessionID] = eng
	}
	s.mu.Unlock()

	if !ok {
		eng.Resume(ctx, sessionID, userID)
	}
	return eng.Snapshot()
}

// SendStream runs a send against the session's engine, delivering stream
// events on the returned channel. The send slot is reserved before the
// channel is handed out, so a busy or sessionless engine rejects the call
// here instead of inside the stream. The channel closes when the send
// settles; the terminal event is always the last one delivered.
func (s *ChatService) SendStream(ctx context.Context, sessionID string, req domain.SendRequest) (<-chan domain.StreamEvent, error) {
	eng, err := s.engineFor(sessionID)
	if err != nil {
		return nil, err
	}

	pending, err := eng.BeginSend(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan domain.StreamEvent, 64)
	go func() {
		defer close(ch)
		if err := eng.RunSend(ctx, pending, ch); err != nil {
			s.log.Warn("Send settled with error",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}()
	return ch, nil
}

// Stop cancels the in-flight send of a session, if any.
func (s *ChatService) Stop(sessionID string) error {
	eng, err := s.engineFor(sessionID)
	if err != nil {
		return err
	}
	eng.StopGenerating()
	return nil
}

// Feedback toggles like/dislike on a message.
func (s *ChatService) Feedback(sessionID, messageID, action string) error {
	eng, err := s.engineFor(sessionID)
	if err != nil {
		return err
	}

	var found bool
	switch action {
	case domain.FeedbackLike:
		found = eng.HandleLike(messageID)
	case domain.FeedbackDislike:
		found = eng.HandleDislike(messageID)
	default:
		return domain.ErrInvalidRequest
	}
	if !found {
		return domain.ErrNotFound
	}
	return nil
}

// SnapshotOf returns the current state of a live session.
func (s *ChatService) SnapshotOf(sessionID string) (domain.Snapshot, error) {
	eng, err := s.engineFor(sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return eng.Snapshot(), nil
}

func (s *ChatService) engineFor(sessionID string) (*engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eng, ok := s.engines[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return eng, nil
}
