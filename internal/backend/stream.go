package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/domain"
)

// StreamRequest carries everything the backend needs for one streamed reply.
type StreamRequest struct {
	Text      string   `json:"text"`
	SessionID string   `json:"session_id"`
	Context   string   `json:"context,omitempty"`
	Files     []string `json:"files,omitempty"`
	CaseID    string   `json:"case_id,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	Title     string   `json:"title,omitempty"`
}

// StreamCallbacks receive stream events in arrival order. All fields are
// optional; they are invoked from a single goroutine and never overlap.
type StreamCallbacks struct {
	OnChunk       func(text string)
	OnThought     func(status string)
	OnSuggestions func(list []string)
}

// streamPayload is the data frame of one SSE event.
type streamPayload struct {
	Text        string   `json:"text,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Message     string   `json:"message,omitempty"`
}

// StreamMessage opens the streaming chat call and dispatches events to
// the callbacks until the stream ends. It returns nil on normal
// completion, domain.ErrAborted when cancel fires, and the underlying
// error otherwise. Cancellation is cooperative: once cancel fires no
// further callback is invoked.
func (c *Client) StreamMessage(ctx context.Context, sr StreamRequest, cb StreamCallbacks, cancel <-chan struct{}) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	// Tear down the transport read when the caller's token fires.
	go func() {
		select {
		case <-cancel:
			stop()
		case <-ctx.Done():
		}
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/stream", sr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The shared client enforces a request timeout that would cut long
	// streams short, so streaming goes through a transport-only client.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	res, err := streamClient.Do(req)
	if err != nil {
		if aborted(cancel) {
			return domain.ErrAborted
		}
		return fmt.Errorf("open stream: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("open stream: status code %d", res.StatusCode)
	}

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	for scanner.Scan() {
		if aborted(cancel) {
			return domain.ErrAborted
		}

		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			done, err := c.dispatch(event, data, cb)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		case line == "":
			// frame boundary
		}
	}

	if err := scanner.Err(); err != nil {
		if aborted(cancel) {
			return domain.ErrAborted
		}
		return fmt.Errorf("read stream: %w", err)
	}

	// Stream closed without a done frame; treat EOF as completion.
	return nil
}

// dispatch routes one SSE frame. It reports done=true on the terminal frame.
func (c *Client) dispatch(event, data string, cb StreamCallbacks) (bool, error) {
	var payload streamPayload
	if data != "" && data != "[DONE]" {
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			c.log.Warn("Skipping malformed stream frame",
				zap.String("event", event), zap.Error(err))
			return false, nil
		}
	}

	switch event {
	case domain.EventChunk:
		if cb.OnChunk != nil {
			cb.OnChunk(payload.Text)
		}
	case domain.EventThought:
		if cb.OnThought != nil {
			cb.OnThought(payload.Text)
		}
	case domain.EventSuggestions:
		if cb.OnSuggestions != nil {
			cb.OnSuggestions(payload.Suggestions)
		}
	case domain.EventDone:
		return true, nil
	case domain.EventError:
		msg := payload.Message
		if msg == "" {
			msg = payload.Text
		}
		return true, fmt.Errorf("stream failed: %s", msg)
	default:
		c.log.Debug("Ignoring unknown stream event", zap.String("event", event))
	}
	return false, nil
}

func aborted(cancel <-chan struct{}) bool {
	if cancel == nil {
		return false
	}
	select {
	case <-cancel:
		return true
	default:
		return false
	}
}
