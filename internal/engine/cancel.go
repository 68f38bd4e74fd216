package engine

import "sync"

// Token represents one in-flight send. It is triggered at most once;
// a triggered token never fires again.
type Token struct {
	done chan struct{}
	once sync.Once
}

func newToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Done returns a channel closed when the token is triggered.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

func (t *Token) trigger() {
	t.once.Do(func() { close(t.done) })
}

// Canceller tracks at most one live cancellation token.
type Canceller struct {
	mu   sync.Mutex
	live *Token
}

// NewCanceller creates an empty controller.
func NewCanceller() *Canceller {
	return &Canceller{}
}

// Begin creates a fresh token, replacing any previous one. The replaced
// token is considered settled and can no longer be triggered through the
// controller.
func (c *Canceller) Begin() *Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live = newToken()
	return c.live
}

// Trigger signals the live token. A no-op when no send is in flight.
func (c *Canceller) Trigger() {
	c.mu.Lock()
	t := c.live
	c.mu.Unlock()
	if t != nil {
		t.trigger()
	}
}

// Settle discards the live token if it is still the given one. Settling
// an already-replaced token is a no-op.
func (c *Canceller) Settle(t *Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live == t {
		c.live = nil
	}
}

// IsLive reports whether the given token is still the controller's live one.
func (c *Canceller) IsLive(t *Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return t != nil && c.live == t
}

// Busy reports whether any send is in flight.
func (c *Canceller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live != nil
}
