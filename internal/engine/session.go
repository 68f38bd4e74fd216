package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/domain"
)

// SessionAPI is the backend surface the session manager needs.
type SessionAPI interface {
	CreateSession(ctx context.Context) (string, error)
	History(ctx context.Context, sessionID, userID string) ([]domain.HistoryEntry, error)
	SessionMetadata(ctx context.Context, sessionID string) (*domain.SessionMetadata, error)
}

// SessionManager owns session identity: it creates new sessions and
// resumes existing ones, translating stored history into messages.
type SessionManager struct {
	backend SessionAPI
	log     *zap.Logger
}

// NewSessionManager creates a session manager over the given backend.
func NewSessionManager(backend SessionAPI, log *zap.Logger) *SessionManager {
	return &SessionManager{backend: backend, log: log}
}

// Create requests a fresh session from the backend.
func (m *SessionManager) Create(ctx context.Context) (domain.Session, error) {
	id, err := m.backend.CreateSession(ctx)
	if err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	m.log.Info("Created session", zap.String("session_id", id))
	return domain.Session{ID: id}, nil
}

// Resume loads history and metadata for an existing session, fetching
// both concurrently. Any fetch failure yields an empty transcript rather
// than an error: the conversation must stay usable without its history.
func (m *SessionManager) Resume(ctx context.Context, sessionID, userID string) (domain.Session, []domain.Message) {
	session := domain.Session{ID: sessionID}

	var (
		history []domain.HistoryEntry
		meta    *domain.SessionMetadata
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = m.backend.History(gctx, sessionID, userID)
		return err
	})
	g.Go(func() error {
		var err error
		meta, err = m.backend.SessionMetadata(gctx, sessionID)
		return err
	})

	if err := g.Wait(); err != nil {
		m.log.Warn("Resume fetch failed, starting with empty transcript",
			zap.String("session_id", sessionID), zap.Error(err))
		return session, nil
	}

	if meta != nil {
		session.Title = meta.Title
	}
	return session, historyToMessages(sessionID, history)
}

// historyToMessages translates stored records into transcript entries.
// History rows carry no unique id, so ids derive from session id + index.
func historyToMessages(sessionID string, history []domain.HistoryEntry) []domain.Message {
	if len(history) == 0 {
		return nil
	}
	msgs := make([]domain.Message, 0, len(history))
	for i, h := range history {
		sender := domain.SenderBot
		if h.Role == "user" {
			sender = domain.SenderUser
		}
		msgs = append(msgs, domain.Message{
			ID:        fmt.Sprintf("%s-%d", sessionID, i),
			Text:      h.Content,
			Sender:    sender,
			Timestamp: h.Timestamp,
		})
	}
	return msgs
}
