package exchange

// State is where the current or most recent exchange stands.
type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingResponse
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends an exchange.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Status is what front-ends observe about the controller.
type Status struct {
	State State

	// Loading is true from the start of Send until its terminal transition.
	Loading bool

	// Error is the user-facing message of the last failure. Cleared when
	// the next Send starts.
	Error string

	// StreamingText accumulates the deltas of the running stream. It is
	// empty outside a stream.
	StreamingText string

	ConversationID string

	// Truncated marks a stream that ended without the terminal sentinel.
	// The exchange still counts as completed.
	Truncated bool
}

// Subscribe registers fn to receive the status after every change. fn runs
// on the goroutine that changed it. The returned func removes it.
func (c *Controller) Subscribe(fn func(Status)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subscribers, id)
		c.subMu.Unlock()
	}
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := c.status
	c.mu.Unlock()

	st.ConversationID = c.transcript.ConversationID()
	return st
}

// update applies fn to the status under the lock and notifies subscribers.
func (c *Controller) update(fn func(*Status)) {
	c.mu.Lock()
	fn(&c.status)
	c.mu.Unlock()

	c.notify()
}

func (c *Controller) notify() {
	c.subMu.Lock()
	if len(c.subscribers) == 0 {
		c.subMu.Unlock()
		return
	}
	fns := make([]func(Status), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	st := c.Status()
	for _, fn := range fns {
		fn(st)
	}
}
