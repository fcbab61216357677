package exchange

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/tidwall/sjson"

	"github.com/eachlabs/chatline/internal/credentials"
	"github.com/eachlabs/chatline/internal/transcript"
)

// IdempotencyHeader carries the per-request idempotency key.
const IdempotencyHeader = "Idempotency-Key"

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bodyField struct {
	path  string
	value interface{}
}

func (c *Controller) endpoint(conversationID string) string {
	if c.cfg.ConversationScoped && conversationID != "" {
		return c.cfg.BaseURL + "/conversations/" + url.PathEscape(conversationID) + "/messages/"
	}
	return c.cfg.BaseURL + "/messages/"
}

// newRequest builds the POST for the current transcript. The snapshot
// already holds the user message of this exchange.
func (c *Controller) newRequest(ctx context.Context, snap transcript.Snapshot, conversationID string, stream bool) (*http.Request, error) {
	messages := make([]wireMessage, 0, len(snap))
	for _, m := range snap {
		messages = append(messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}

	data, err := encodeBody(c.cfg, messages, conversationID, stream)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(conversationID), bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set(IdempotencyHeader, c.cfg.NewIdempotencyKey())
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if err := credentials.Attach(ctx, c.cfg.Credentials, req); err != nil {
		return nil, errors.Wrap(err, "failed to resolve credentials")
	}
	return req, nil
}

// encodeBody builds the request JSON. conversation_id is left out until
// the server has assigned one.
func encodeBody(cfg Config, messages []wireMessage, conversationID string, stream bool) ([]byte, error) {
	fields := []bodyField{
		{"model", cfg.Model},
		{"messages", messages},
		{"temperature", cfg.Temperature},
		{"max_tokens", cfg.MaxTokens},
		{"stream", stream},
	}
	if conversationID != "" {
		fields = append(fields, bodyField{"conversation_id", conversationID})
	}

	data := []byte(`{}`)
	for _, f := range fields {
		var err error
		if data, err = sjson.SetBytes(data, f.path, f.value); err != nil {
			return nil, errors.Wrapf(err, "set %s", f.path)
		}
	}
	return data, nil
}
