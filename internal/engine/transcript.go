package engine

import (
	"sync"

	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/domain"
)

// Transcript is the ordered, append-only message sequence of one session.
// Entries are never reordered or removed individually; only Clear (a full
// session switch) empties it. The single mutation path is Mutate, used for
// chunk appends, streaming flags, suggestions and feedback.
type Transcript struct {
	mu      sync.Mutex
	entries []domain.Message
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds a message at the end of the sequence.
func (t *Transcript) Append(msg domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, msg)
}

// Replace swaps in a whole sequence, used when loading history on resume.
func (t *Transcript) Replace(msgs []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append([]domain.Message(nil), msgs...)
}

// Mutate applies fn to the message with the given id. It reports whether
// the message was found.
func (t *Transcript) Mutate(id string, fn func(*domain.Message)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].ID == id {
			fn(&t.entries[i])
			return true
		}
	}
	return false
}

// AppendChunk appends a streamed text fragment to the message with the
// given id. Fragments are applied strictly in call order.
func (t *Transcript) AppendChunk(id, fragment string) bool {
	return t.Mutate(id, func(m *domain.Message) {
		m.Text += fragment
	})
}

// SetSuggestions replaces the message's suggestion list; last write wins.
func (t *Transcript) SetSuggestions(id string, list []string) bool {
	return t.Mutate(id, func(m *domain.Message) {
		m.Suggestions = append([]string(nil), list...)
	})
}

// FinishStreaming clears the streaming flag, optionally marking the entry
// as an error.
func (t *Transcript) FinishStreaming(id string, isError bool) bool {
	return t.Mutate(id, func(m *domain.Message) {
		m.IsStreaming = false
		if isError {
			m.IsError = true
		}
	})
}

// ToggleFeedback sets the message's feedback. Like and dislike are
// mutually exclusive; toggling the already-active value clears it.
func (t *Transcript) ToggleFeedback(id, feedback string) bool {
	return t.Mutate(id, func(m *domain.Message) {
		if m.Feedback == feedback {
			m.Feedback = ""
		} else {
			m.Feedback = feedback
		}
	})
}

// Clear empties the sequence. Only a full session switch calls this.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Snapshot returns a copy of the sequence safe for concurrent readers.
func (t *Transcript) Snapshot() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.entries))
	copy(out, t.entries)
	for i := range out {
		if out[i].Suggestions != nil {
			out[i].Suggestions = append([]string(nil), out[i].Suggestions...)
		}
	}
	return out
}
