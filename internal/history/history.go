// Package history reads past conversations from the conversation-history
// service so a transcript can be seeded before a new exchange starts.
package history

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/eachlabs/chatline/internal/credentials"
	"github.com/eachlabs/chatline/internal/transcript"
)

// maxBodySize caps how much of a history response is read.
const maxBodySize = 10 * 1024 * 1024

// Conversation is one entry of the history service.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt string    `json:"created_at,omitempty"`
	UpdatedAt string    `json:"updated_at,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
}

// Message is a stored message as the history service returns it.
type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Updated returns the most recent timestamp of the conversation.
func (c Conversation) Updated() time.Time {
	if t := parseTime(c.UpdatedAt); !t.IsZero() {
		return t
	}
	return parseTime(c.CreatedAt)
}

// TranscriptMessages converts the stored messages into transcript
// messages, mapping created_at to unix seconds. Messages with a role the
// transcript does not know are dropped.
func (c Conversation) TranscriptMessages() []transcript.Message {
	out := make([]transcript.Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if !transcript.Role(m.Role).Valid() {
			log.Debug().Str("component", "history").Str("msg_id", m.ID).Str("role", m.Role).Msg("skipping message with unknown role")
			continue
		}
		var created int64
		if t := parseTime(m.CreatedAt); !t.IsZero() {
			created = t.Unix()
		}
		out = append(out, transcript.Message{
			ID:      m.ID,
			Role:    transcript.Role(m.Role),
			Content: m.Content,
			Created: created,
		})
	}
	return out
}

// StatusError is a non-success response from the history service.
type StatusError struct {
	Status int
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d for %s", e.Status, e.Path)
}

// Config holds history client settings.
type Config struct {
	BaseURL     string
	UserAgent   string
	Credentials credentials.Provider
	HTTPClient  *http.Client
	Limiter     *rate.Limiter
}

// Client talks to the conversation-history endpoints.
type Client struct {
	baseURL    string
	userAgent  string
	creds      credentials.Provider
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a history client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		creds:      cfg.Credentials,
		httpClient: httpClient,
		limiter:    cfg.Limiter,
	}
}

// List returns all conversations, most recently updated first. The service
// may answer with a bare array or a paginated {"results": [...]} object.
func (c *Client) List(ctx context.Context) ([]Conversation, error) {
	body, err := c.get(ctx, "/conversations/")
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	if parsed.IsObject() && parsed.Get("results").IsArray() {
		parsed = parsed.Get("results")
	}
	if !parsed.IsArray() {
		if parsed.Type == gjson.Null {
			return []Conversation{}, nil
		}
		return nil, errors.New("unexpected conversation list payload")
	}

	var convs []Conversation
	for _, item := range parsed.Array() {
		convs = append(convs, conversationFrom(item))
	}
	if convs == nil {
		convs = []Conversation{}
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].Updated().After(convs[j].Updated())
	})
	return convs, nil
}

// Get returns a single conversation with its messages.
func (c *Client) Get(ctx context.Context, id string) (*Conversation, error) {
	if id == "" {
		return nil, errors.New("conversation id is required")
	}

	body, err := c.get(ctx, "/conversations/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return nil, errors.New("unexpected conversation payload")
	}

	conv := conversationFrom(parsed)
	if conv.ID == "" {
		conv.ID = id
	}
	return &conv, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "request throttled")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if err := credentials.Attach(ctx, c.creds, req); err != nil {
		return nil, errors.Wrap(err, "failed to resolve credentials")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	log.Debug().
		Str("component", "history").
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("history request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, Path: path}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	if len(body) > 0 && !gjson.ValidBytes(body) {
		return nil, errors.New("history response is not valid JSON")
	}
	return body, nil
}

func conversationFrom(v gjson.Result) Conversation {
	conv := Conversation{
		ID:        v.Get("id").String(),
		Title:     v.Get("title").String(),
		CreatedAt: v.Get("created_at").String(),
		UpdatedAt: v.Get("updated_at").String(),
	}
	for _, m := range v.Get("messages").Array() {
		conv.Messages = append(conv.Messages, Message{
			ID:        m.Get("id").String(),
			Role:      m.Get("role").String(),
			Content:   m.Get("content").String(),
			CreatedAt: m.Get("created_at").String(),
		})
	}
	return conv
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Load fetches conversation id and replaces the contents of t with it.
// On error t is left untouched.
func (c *Client) Load(ctx context.Context, id string, t *transcript.Transcript) (*Conversation, error) {
	conv, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Replace(conv.ID, conv.TranscriptMessages())

	log.Info().
		Str("component", "history").
		Str("conv_id", conv.ID).
		Int("messages", len(conv.Messages)).
		Msg("conversation loaded")
	return conv, nil
}
