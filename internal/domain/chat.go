package domain

import "time"

// Session identifies one conversation with the assistant backend.
// The ID is assigned by the backend and never changes; Title is filled
// lazily from the first user message or from session metadata on resume.
type Session struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// Sender values for a Message.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Feedback values for a Message.
const (
	FeedbackLike    = "like"
	FeedbackDislike = "dislike"
)

// Message is one transcript entry.
type Message struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	Sender       string    `json:"sender"` // user, bot
	Timestamp    time.Time `json:"timestamp"`
	Files        []FileRef `json:"files,omitempty"`
	IsStreaming  bool      `json:"is_streaming"`
	IsError      bool      `json:"is_error"`
	Feedback     string    `json:"feedback,omitempty"` // like, dislike or empty
	Suggestions  []string  `json:"suggestions,omitempty"`
	DroppedFiles []string  `json:"dropped_files,omitempty"`
}

// FileRef is either a pending local file (raw bytes, no remote URI) or a
// resolved remote reference (URI only). Sends must never carry a pending
// ref past the upload step.
type FileRef struct {
	Name      string `json:"name"`
	MimeType  string `json:"mime_type,omitempty"`
	Data      []byte `json:"-"`
	RemoteURI string `json:"remote_uri,omitempty"`
}

// Resolved reports whether the file already carries a remote handle.
func (f FileRef) Resolved() bool {
	return f.RemoteURI != ""
}

// UploadResult pairs an input file with its upload outcome, 1:1 per file.
type UploadResult struct {
	File FileRef
	Err  error
}

// HistoryEntry is one historical record as returned by the backend.
type HistoryEntry struct {
	Content   string    `json:"content"`
	Role      string    `json:"role"` // user, assistant
	Timestamp time.Time `json:"timestamp"`
}

// SessionMetadata is the backend's per-session metadata record.
type SessionMetadata struct {
	Title string `json:"title"`
}

// StreamEvent types.
const (
	EventChunk       = "chunk"
	EventThought     = "thought"
	EventSuggestions = "suggestions"
	EventDone        = "done"
	EventAborted     = "aborted"
	EventError       = "error"
)

// StreamEvent is one typed event of a streamed assistant response.
type StreamEvent struct {
	Type        string   `json:"type"` // chunk, thought, suggestions, done, aborted, error
	Text        string   `json:"text,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// SendRequest is a message send as accepted by the chat service.
type SendRequest struct {
	Text    string
	Files   []FileRef
	Context string
	CaseID  string
	UserID  string
}

// Snapshot is the engine state exposed to presentation consumers.
type Snapshot struct {
	Messages         []Message `json:"messages"`
	SessionID        string    `json:"session_id"`
	SessionTitle     string    `json:"session_title,omitempty"`
	IsThinking       bool      `json:"is_thinking"`
	ThinkingText     string    `json:"thinking_text,omitempty"`
	IsStreaming      bool      `json:"is_streaming"`
	IsLoadingHistory bool      `json:"is_loading_history"`
}
