package exchange

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors.
var (
	// ErrNoBody means a streaming response arrived without a body.
	ErrNoBody = errors.New("response has no body")

	// ErrBusy is returned by Send while another exchange is in flight on
	// the same controller.
	ErrBusy = errors.New("an exchange is already in progress")
)

// fallbackMessage is shown when a failure carries no text of its own.
const fallbackMessage = "Failed to get response from AI"

// TransportError means the request never reached the server or the
// connection dropped while the response was being read.
type TransportError struct {
	Op  string // "throttle", "send" or "read"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a response the exchange cannot use: a non-success
// status, a missing body, or a frame the splitter refused. Err is set for
// the last two and is what the user gets to see.
type ProtocolError struct {
	Status int
	Body   string // leading part of the error body, if any
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("API error: %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("API error: %d", e.Status)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// userMessage turns a terminal failure into the text shown to the user.
func userMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		if pe.Err != nil {
			if msg := pe.Err.Error(); msg != "" {
				return msg
			}
		}
		return fmt.Sprintf("API error: %d", pe.Status)
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallbackMessage
}
