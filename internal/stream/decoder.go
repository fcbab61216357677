package stream

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const (
	// DataPrefix marks a frame that carries an event payload.
	DataPrefix = "data:"

	// DoneSentinel is the payload that ends a stream successfully.
	DoneSentinel = "[DONE]"
)

// EventKind classifies a decoded frame.
type EventKind int

const (
	// EventIgnored is a frame without a data payload (comments, keep-alives,
	// other SSE fields). It is not an error.
	EventIgnored EventKind = iota
	// EventData is a parsed payload. Delta and ConversationID may be empty.
	EventData
	// EventDone is the terminal control signal.
	EventDone
	// EventDecodeError is a data frame whose payload is not valid JSON.
	// Callers log it and keep reading.
	EventDecodeError
)

func (k EventKind) String() string {
	switch k {
	case EventIgnored:
		return "ignored"
	case EventData:
		return "data"
	case EventDone:
		return "done"
	case EventDecodeError:
		return "decode_error"
	default:
		return "unknown"
	}
}

// Event is the decoded form of one frame.
type Event struct {
	Kind           EventKind
	Delta          string
	ConversationID string
	Payload        string
	Err            error
}

// HasDelta reports whether the event contributes text.
func (e Event) HasDelta() bool {
	return e.Kind == EventData && e.Delta != ""
}

// Decode classifies a single frame. It never fails: malformed payloads come
// back as EventDecodeError so one corrupt frame cannot abort a stream.
func Decode(frame string) Event {
	if !strings.HasPrefix(frame, DataPrefix) {
		return Event{Kind: EventIgnored}
	}

	payload := strings.TrimSpace(frame[len(DataPrefix):])
	if payload == "" {
		return Event{Kind: EventIgnored}
	}
	if payload == DoneSentinel {
		return Event{Kind: EventDone, Payload: payload}
	}

	if !gjson.Valid(payload) {
		return Event{
			Kind:    EventDecodeError,
			Payload: payload,
			Err:     errors.Errorf("invalid event payload: %.64q", payload),
		}
	}

	parsed := gjson.Parse(payload)
	return Event{
		Kind:           EventData,
		Delta:          deltaOf(parsed),
		ConversationID: stringField(parsed, "conversation_id"),
		Payload:        payload,
	}
}

// deltaOf prefers the "delta" field and falls back to "content" only when
// "delta" is absent or null. An explicit empty delta stays empty.
func deltaOf(parsed gjson.Result) string {
	if d := parsed.Get("delta"); d.Exists() && d.Type != gjson.Null {
		return d.String()
	}
	if c := parsed.Get("content"); c.Exists() && c.Type != gjson.Null {
		return c.String()
	}
	return ""
}

func stringField(parsed gjson.Result, name string) string {
	v := parsed.Get(name)
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	return v.String()
}
