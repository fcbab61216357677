// Package transcript owns the ordered message list of a single conversation
// and the conversation identifier the server assigns to it.
package transcript

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DeltaResult reports the outcome of ApplyDelta.
type DeltaResult int

const (
	// Applied means the message at the index now carries the extra text.
	Applied DeltaResult = iota
	// IndexStale means the index no longer addresses the open message,
	// typically because the transcript was reset mid-stream. It is
	// expected and never an error.
	IndexStale
)

func (r DeltaResult) String() string {
	if r == Applied {
		return "applied"
	}
	return "index_stale"
}

// Transcript is the ordered list of messages exchanged in one conversation.
//
// Only the exchange that owns a transcript mutates it. Everyone else reads
// through Snapshot or Subscribe, both of which hand out copies.
type Transcript struct {
	mu             sync.RWMutex
	messages       []Message
	conversationID string
	openID         string
	version        uint64

	subMu       sync.Mutex
	subscribers map[int]func(Snapshot)
	nextSub     int

	now   func() time.Time
	newID func() string
}

// Option configures a Transcript.
type Option func(*Transcript)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(t *Transcript) {
		t.now = now
	}
}

// WithIDGenerator overrides message id generation.
func WithIDGenerator(newID func() string) Option {
	return func(t *Transcript) {
		t.newID = newID
	}
}

// New creates an empty transcript.
func New(opts ...Option) *Transcript {
	t := &Transcript{
		messages:    make([]Message, 0),
		subscribers: make(map[int]func(Snapshot)),
		now:         time.Now,
		newID:       NewID,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AppendUser creates a user message with a fresh id and the current time,
// appends it and returns it.
func (t *Transcript) AppendUser(text string) Message {
	t.mu.Lock()
	msg := Message{
		ID:      t.uniqueIDLocked(""),
		Role:    RoleUser,
		Content: text,
		Created: t.now().Unix(),
	}
	t.messages = append(t.messages, msg)
	t.version++
	t.mu.Unlock()

	t.notify()
	return msg
}

// AppendAssistantPlaceholder appends an empty assistant message and
// returns its index. It becomes the open message until CloseOpen, Reset or
// a rollback removes it.
func (t *Transcript) AppendAssistantPlaceholder() int {
	t.mu.Lock()
	msg := Message{
		ID:      t.uniqueIDLocked(""),
		Role:    RoleAssistant,
		Created: t.now().Unix(),
	}
	t.messages = append(t.messages, msg)
	t.openID = msg.ID
	t.version++
	index := len(t.messages) - 1
	t.mu.Unlock()

	t.notify()
	return index
}

// AppendAssistant appends a complete assistant message. An empty or
// duplicate id is replaced with a fresh one and a zero Created with now.
func (t *Transcript) AppendAssistant(msg Message) Message {
	t.mu.Lock()
	msg.Role = RoleAssistant
	msg.ID = t.uniqueIDLocked(msg.ID)
	if msg.Created == 0 {
		msg.Created = t.now().Unix()
	}
	t.messages = append(t.messages, msg)
	t.version++
	t.mu.Unlock()

	t.notify()
	return msg
}

// ApplyDelta replaces the message at index with a copy whose content has
// text appended. The index must address the open message. With no open
// message, or any other index, the result is IndexStale and the
// transcript is left alone.
func (t *Transcript) ApplyDelta(index int, text string) DeltaResult {
	t.mu.Lock()
	if index < 0 || index >= len(t.messages) {
		t.mu.Unlock()
		log.Debug().Str("component", "transcript").Int("index", index).Msg("delta for stale index dropped")
		return IndexStale
	}
	old := t.messages[index]
	if t.openID == "" || old.ID != t.openID {
		t.mu.Unlock()
		log.Debug().Str("component", "transcript").Int("index", index).Msg("delta index no longer addresses open message")
		return IndexStale
	}
	t.messages[index] = old.withContent(old.Content + text)
	t.version++
	t.mu.Unlock()

	t.notify()
	return Applied
}

// CloseOpen marks the open assistant message as complete.
func (t *Transcript) CloseOpen() {
	t.mu.Lock()
	t.openID = ""
	t.mu.Unlock()
}

// OpenIndex returns the position of the open assistant message.
func (t *Transcript) OpenIndex() (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.openID == "" {
		return -1, false
	}
	i := t.indexOfLocked(t.openID)
	return i, i >= 0
}

// RemoveByID deletes the first message with the given id. Removing an
// absent id is a no-op.
func (t *Transcript) RemoveByID(id string) bool {
	t.mu.Lock()
	removed := t.removeLocked(id)
	if removed {
		t.version++
	}
	t.mu.Unlock()

	if removed {
		t.notify()
	}
	return removed
}

// RollbackFailedExchange undoes a failed exchange: the open assistant
// placeholder goes first, whatever it has received so far, then the user
// message with userID if still present. Closed assistant messages are
// never touched, even empty ones from earlier exchanges.
func (t *Transcript) RollbackFailedExchange(userID string) {
	t.mu.Lock()
	changed := false

	if t.openID != "" {
		if i := t.indexOfLocked(t.openID); i >= 0 {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			changed = true
		}
		t.openID = ""
	}

	if t.removeLocked(userID) {
		changed = true
	}
	if changed {
		t.version++
	}
	t.mu.Unlock()

	if changed {
		t.notify()
	}
}

// Reset clears all messages and the resolved conversation id.
func (t *Transcript) Reset() {
	t.mu.Lock()
	t.messages = make([]Message, 0)
	t.conversationID = ""
	t.openID = ""
	t.version++
	t.mu.Unlock()

	t.notify()
}

// Replace swaps the whole transcript for msgs and sets the conversation
// id. Used to seed a transcript from conversation history.
func (t *Transcript) Replace(conversationID string, msgs []Message) {
	t.mu.Lock()
	t.messages = make([]Message, 0, len(msgs))
	t.openID = ""
	for _, m := range msgs {
		m.ID = t.uniqueIDLocked(m.ID)
		t.messages = append(t.messages, m)
	}
	t.conversationID = conversationID
	t.version++
	t.mu.Unlock()

	t.notify()
}

// Snapshot returns a copy of the current messages.
func (t *Transcript) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Version increases on every mutation.
func (t *Transcript) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// ConversationID returns the resolved conversation id, or "" while unknown.
func (t *Transcript) ConversationID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conversationID
}

// ResolveConversationID sets the conversation id if none is set yet.
// It returns true only when this call set it; a resolved id never changes.
func (t *Transcript) ResolveConversationID(id string) bool {
	if id == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conversationID != "" {
		return false
	}
	t.conversationID = id
	return true
}

// Subscribe registers fn to receive a snapshot after every mutation. fn is
// called synchronously on the mutating goroutine and must not block for
// long. The returned func removes the subscription.
func (t *Transcript) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	t.subMu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subscribers[id] = fn
	t.subMu.Unlock()

	return func() {
		t.subMu.Lock()
		delete(t.subscribers, id)
		t.subMu.Unlock()
	}
}

func (t *Transcript) notify() {
	t.subMu.Lock()
	if len(t.subscribers) == 0 {
		t.subMu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		fns = append(fns, fn)
	}
	t.subMu.Unlock()

	snap := t.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

func (t *Transcript) snapshotLocked() Snapshot {
	out := make(Snapshot, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) indexOfLocked(id string) int {
	for i, m := range t.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (t *Transcript) removeLocked(id string) bool {
	i := t.indexOfLocked(id)
	if i < 0 {
		return false
	}
	t.messages = append(t.messages[:i], t.messages[i+1:]...)
	if id == t.openID {
		t.openID = ""
	}
	return true
}

// uniqueIDLocked returns id if it is non-empty and unused, otherwise a
// freshly generated one.
func (t *Transcript) uniqueIDLocked(id string) string {
	for id == "" || t.indexOfLocked(id) >= 0 {
		id = t.newID()
	}
	return id
}
