// Package exchange drives one request/response exchange at a time against
// the chat service and keeps a transcript consistent while the answer
// streams in.
package exchange

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/eachlabs/chatline/internal/credentials"
	"github.com/eachlabs/chatline/internal/history"
	"github.com/eachlabs/chatline/internal/stream"
	"github.com/eachlabs/chatline/internal/transcript"
)

const (
	// MaxResponseSize caps a non-streaming response body.
	MaxResponseSize = 10 * 1024 * 1024

	// maxErrorBody is how much of an error response is kept for logs.
	maxErrorBody = 4 * 1024
)

// Config is everything a Controller needs to reach the chat service.
type Config struct {
	BaseURL            string
	Model              string
	Temperature        float64
	MaxTokens          int
	ConversationScoped bool
	UserAgent          string

	// Timeout bounds the wait for response headers. Reading a stream is
	// not bounded by it. Zero disables it.
	Timeout time.Duration

	Credentials credentials.Provider
	HTTPClient  *http.Client
	Limiter     *rate.Limiter

	NewIdempotencyKey func() string
}

// HistoryLoader seeds a transcript from a stored conversation.
type HistoryLoader interface {
	Load(ctx context.Context, id string, t *transcript.Transcript) (*history.Conversation, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithHistory enables LoadConversation.
func WithHistory(loader HistoryLoader) Option {
	return func(c *Controller) {
		c.history = loader
	}
}

// Controller sends user messages and assembles the replies into its
// transcript. At most one exchange runs at a time.
type Controller struct {
	cfg        Config
	transcript *transcript.Transcript
	history    HistoryLoader
	httpClient *http.Client

	mu     sync.Mutex
	status Status

	subMu       sync.Mutex
	subscribers map[int]func(Status)
	nextSub     int
}

// New creates a controller over t. A nil t gets a fresh transcript.
func New(cfg Config, t *transcript.Transcript, opts ...Option) *Controller {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.NewIdempotencyKey == nil {
		cfg.NewIdempotencyKey = uuid.NewString
	}
	if t == nil {
		t = transcript.New()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Controller{
		cfg:         cfg,
		transcript:  t,
		httpClient:  httpClient,
		subscribers: make(map[int]func(Status)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewLimiter returns a limiter for rps requests per second, or nil when
// rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Transcript returns the transcript the controller writes to. Callers
// should only read from it.
func (c *Controller) Transcript() *transcript.Transcript {
	return c.transcript
}

// Send runs one exchange for text. It returns nil when the exchange
// completed, and the terminal error otherwise; in that case the transcript
// is back to what it was before the call and Status().Error holds the
// message to show.
func (c *Controller) Send(ctx context.Context, text string, streamRequested bool) (err error) {
	if !c.begin() {
		return ErrBusy
	}

	user := c.transcript.AppendUser(text)
	truncated := false

	defer func() {
		if err != nil {
			c.transcript.RollbackFailedExchange(user.ID)
			log.Error().
				Err(err).
				Str("component", "exchange").
				Str("conv_id", c.transcript.ConversationID()).
				Msg("exchange failed")
		} else {
			c.transcript.CloseOpen()
		}

		msg := userMessage(err)
		c.update(func(s *Status) {
			s.Loading = false
			s.StreamingText = ""
			s.Error = msg
			s.Truncated = truncated
			if err != nil {
				s.State = StateFailed
			} else {
				s.State = StateCompleted
			}
		})
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := c.do(ctx, cancel, streamRequested)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if streamRequested {
		truncated, err = c.consumeStream(resp.Body)
		return err
	}
	return c.consumeResponse(resp.Body)
}

// begin claims the controller for a new exchange.
func (c *Controller) begin() bool {
	c.mu.Lock()
	if c.status.Loading {
		c.mu.Unlock()
		return false
	}
	c.status = Status{State: StateSending, Loading: true}
	c.mu.Unlock()

	c.notify()
	return true
}

func (c *Controller) setState(state State) {
	c.update(func(s *Status) {
		s.State = state
	})
}

// do issues the request and returns a response that is ready to be
// consumed.
func (c *Controller) do(ctx context.Context, cancel context.CancelFunc, streamRequested bool) (*http.Response, error) {
	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: "throttle", Err: err}
		}
	}

	conversationID := c.transcript.ConversationID()
	req, err := c.newRequest(ctx, c.transcript.Snapshot(), conversationID, streamRequested)
	if err != nil {
		return nil, err
	}

	if !streamRequested {
		c.setState(StateAwaitingResponse)
	}

	// The timeout only covers the wait for headers; the body may take as
	// long as the stream runs.
	if c.cfg.Timeout > 0 {
		timer := time.AfterFunc(c.cfg.Timeout, cancel)
		defer timer.Stop()
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "send", Err: err}
	}

	log.Debug().
		Str("component", "exchange").
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Bool("stream", streamRequested).
		Dur("duration", time.Since(start)).
		Msg("response received")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &ProtocolError{Status: resp.StatusCode, Body: string(body)}
	}

	if streamRequested && missingBody(resp) {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, &ProtocolError{Status: resp.StatusCode, Err: ErrNoBody}
	}
	return resp, nil
}

func missingBody(resp *http.Response) bool {
	return resp.Body == nil || resp.Body == http.NoBody || resp.ContentLength == 0
}

// consumeStream reads frames until the sentinel or end of body. It reports
// whether the body ended without the sentinel.
func (c *Controller) consumeStream(body io.Reader) (truncated bool, err error) {
	index := c.transcript.AppendAssistantPlaceholder()
	c.setState(StateStreaming)

	frames := stream.NewFrameReader(body)
	var text strings.Builder
	for {
		frame, err := frames.Next()
		if err == io.EOF {
			log.Warn().
				Str("component", "exchange").
				Str("conv_id", c.transcript.ConversationID()).
				Msg("stream ended without terminal sentinel")
			return true, nil
		}
		if errors.Is(err, stream.ErrFrameTooLarge) {
			return false, &ProtocolError{Status: http.StatusOK, Err: err}
		}
		if err != nil {
			return false, &TransportError{Op: "read", Err: err}
		}

		ev := stream.Decode(frame)
		switch ev.Kind {
		case stream.EventDone:
			return false, nil
		case stream.EventDecodeError:
			log.Warn().Err(ev.Err).Str("component", "exchange").Msg("skipping malformed frame")
			continue
		case stream.EventIgnored:
			continue
		}

		c.resolveConversationID(ev.ConversationID)
		if !ev.HasDelta() {
			continue
		}

		if c.transcript.ApplyDelta(index, ev.Delta) == transcript.IndexStale {
			log.Debug().Str("component", "exchange").Int("index", index).Msg("placeholder gone, delta kept in streaming text only")
		}
		text.WriteString(ev.Delta)
		streamed := text.String()
		c.update(func(s *Status) {
			s.StreamingText = streamed
		})
	}
}

// consumeResponse parses a complete JSON reply and appends it.
func (c *Controller) consumeResponse(body io.Reader) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return &TransportError{Op: "read", Err: err}
	}
	if !gjson.ValidBytes(data) {
		return errors.New("response body is not valid JSON")
	}

	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return errors.New("response body is not a JSON object")
	}
	c.resolveConversationID(parsed.Get("conversation_id").String())

	c.transcript.AppendAssistant(transcript.Message{
		ID:      parsed.Get("id").String(),
		Content: parsed.Get("content").String(),
		Created: parsed.Get("created").Int(),
	})
	return nil
}

func (c *Controller) resolveConversationID(id string) {
	if !c.transcript.ResolveConversationID(id) {
		return
	}
	log.Info().Str("component", "exchange").Str("conv_id", id).Msg("conversation id resolved")
	c.notify()
}

// Clear empties the transcript, forgets the conversation id and clears
// the last error.
func (c *Controller) Clear() {
	c.transcript.Reset()
	c.update(func(s *Status) {
		s.Error = ""
	})
}

// Remove deletes the message with id from the transcript.
func (c *Controller) Remove(id string) bool {
	return c.transcript.RemoveByID(id)
}

// LoadConversation replaces the transcript with a stored conversation. On
// failure the transcript is untouched and Status().Error is set.
func (c *Controller) LoadConversation(ctx context.Context, id string) error {
	if c.history == nil {
		return errors.New("conversation history is not configured")
	}

	conv, err := c.history.Load(ctx, id, c.transcript)
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "Failed to load chat"
		}
		c.update(func(s *Status) {
			s.Error = msg
		})
		return errors.Wrapf(err, "failed to load conversation %s", id)
	}

	c.update(func(s *Status) {
		s.Error = ""
	})
	log.Debug().
		Str("component", "exchange").
		Str("conv_id", conv.ID).
		Int("messages", c.transcript.Len()).
		Msg("transcript seeded from history")
	return nil
}
