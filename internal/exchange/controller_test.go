package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/eachlabs/chatline/internal/credentials"
	"github.com/eachlabs/chatline/internal/history"
	"github.com/eachlabs/chatline/internal/stream"
	"github.com/eachlabs/chatline/internal/transcript"
)

type capturedRequest struct {
	Path    string
	Header  http.Header
	Body    gjson.Result
	RawBody string
}

type testServer struct {
	*httptest.Server
	requests chan capturedRequest
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *testServer {
	t.Helper()
	ts := &testServer{requests: make(chan capturedRequest, 16)}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		ts.requests <- capturedRequest{
			Path:    r.URL.Path,
			Header:  r.Header.Clone(),
			Body:    gjson.ParseBytes(data),
			RawBody: string(data),
		}
		handler(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) lastRequest(t *testing.T) capturedRequest {
	t.Helper()
	select {
	case req := <-ts.requests:
		return req
	default:
		t.Fatal("no request captured")
		return capturedRequest{}
	}
}

// sse writes each frame followed by the delimiter and flushes after each.
func sse(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprint(w, f+"\n\n")
			flusher.Flush()
		}
	}
}

func newController(t *testing.T, ts *testServer, opts ...Option) *Controller {
	t.Helper()
	cfg := Config{
		BaseURL:     ts.URL + "/api/v1/",
		Model:       "openai:gpt-4o-mini",
		Temperature: 0.3,
		MaxTokens:   2000,
		UserAgent:   "chatline-test",
		Credentials: credentials.Static{APIKey: "key-1"},
		HTTPClient:  ts.Client(),
	}
	clock := func() time.Time { return time.Unix(1700000000, 0) }
	return New(cfg, transcript.New(transcript.WithClock(clock)), opts...)
}

func contents(snap transcript.Snapshot) []string {
	out := make([]string, 0, len(snap))
	for _, m := range snap {
		out = append(out, string(m.Role)+":"+m.Content)
	}
	return out
}

func TestSend_Streaming(t *testing.T) {
	ts := newTestServer(t, sse(
		`data: {"delta":"Hi"}`,
		`data: {"delta":" there"}`,
		`data: [DONE]`,
	))
	c := newController(t, ts)

	require.NoError(t, c.Send(context.Background(), "Hello", true))

	snap := c.Transcript().Snapshot()
	assert.Equal(t, []string{"user:Hello", "assistant:Hi there"}, contents(snap))
	assert.NotEqual(t, snap[0].ID, snap[1].ID)

	st := c.Status()
	assert.Equal(t, StateCompleted, st.State)
	assert.False(t, st.Loading)
	assert.Empty(t, st.StreamingText)
	assert.Empty(t, st.Error)
	assert.False(t, st.Truncated)

	_, open := c.Transcript().OpenIndex()
	assert.False(t, open)

	req := ts.lastRequest(t)
	assert.Equal(t, "/api/v1/messages/", req.Path)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "text/event-stream", req.Header.Get("Accept"))
	assert.Equal(t, "key-1", req.Header.Get("X-API-Key"))
	assert.Equal(t, "chatline-test", req.Header.Get("User-Agent"))
	assert.NotEmpty(t, req.Header.Get(IdempotencyHeader))

	assert.Equal(t, "openai:gpt-4o-mini", req.Body.Get("model").String())
	assert.Equal(t, 0.3, req.Body.Get("temperature").Float())
	assert.Equal(t, int64(2000), req.Body.Get("max_tokens").Int())
	assert.True(t, req.Body.Get("stream").Bool())
	assert.False(t, req.Body.Get("conversation_id").Exists())
	assert.JSONEq(t, `[{"role":"user","content":"Hello"}]`, req.Body.Get("messages").Raw)
}

func TestSend_NonStreaming(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"m1","content":"Hi","created":1000}`))
	})
	c := newController(t, ts)

	require.NoError(t, c.Send(context.Background(), "Hello", false))

	snap := c.Transcript().Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, transcript.RoleUser, snap[0].Role)
	assert.Equal(t, "Hello", snap[0].Content)
	assert.Equal(t, transcript.Message{ID: "m1", Role: transcript.RoleAssistant, Content: "Hi", Created: 1000}, snap[1])

	req := ts.lastRequest(t)
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.False(t, req.Body.Get("stream").Bool())
	assert.Equal(t, StateCompleted, c.Status().State)
}

func TestSend_NonStreamingDefaults(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":"Hi","conversation_id":"c-1"}`))
	})
	c := newController(t, ts)

	require.NoError(t, c.Send(context.Background(), "Hello", false))

	last, ok := c.Transcript().Snapshot().Last()
	require.True(t, ok)
	assert.NotEmpty(t, last.ID)
	assert.Equal(t, int64(1700000000), last.Created)
	assert.Equal(t, "c-1", c.Transcript().ConversationID())
	assert.Equal(t, "c-1", c.Status().ConversationID)
}

func TestSend_NonStreamingInvalidBody(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	})
	c := newController(t, ts)

	err := c.Send(context.Background(), "Hello", false)
	require.Error(t, err)
	assert.Empty(t, c.Transcript().Snapshot())
	assert.Equal(t, StateFailed, c.Status().State)
	assert.Equal(t, err.Error(), c.Status().Error)
}

func TestSend_NonStreamingNonObjectBody(t *testing.T) {
	for _, body := range []string{`null`, `"text"`, `[]`, `42`} {
		t.Run(body, func(t *testing.T) {
			ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			})
			c := newController(t, ts)
			c.Transcript().AppendUser("earlier")
			before := c.Transcript().Snapshot()

			err := c.Send(context.Background(), "Hello", false)
			require.Error(t, err)
			assert.Equal(t, before, c.Transcript().Snapshot())
			assert.Equal(t, StateFailed, c.Status().State)
			assert.Equal(t, "response body is not a JSON object", c.Status().Error)
		})
	}
}

func TestSend_ServerErrorRollsBack(t *testing.T) {
	for _, streamRequested := range []bool{true, false} {
		t.Run(fmt.Sprintf("stream=%v", streamRequested), func(t *testing.T) {
			ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"detail":"boom"}`, http.StatusInternalServerError)
			})
			c := newController(t, ts)
			c.Transcript().AppendUser("earlier")
			c.Transcript().AppendAssistant(transcript.Message{ID: "a0", Content: "reply"})
			before := c.Transcript().Snapshot()

			err := c.Send(context.Background(), "hi", streamRequested)
			require.Error(t, err)

			var pe *ProtocolError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, http.StatusInternalServerError, pe.Status)
			assert.Contains(t, pe.Body, "boom")

			assert.Equal(t, before, c.Transcript().Snapshot())

			st := c.Status()
			assert.Equal(t, StateFailed, st.State)
			assert.Equal(t, "API error: 500", st.Error)
			assert.False(t, st.Loading)
			assert.Empty(t, st.StreamingText)
		})
	}
}

func TestSend_TransportErrorRollsBack(t *testing.T) {
	ts := newTestServer(t, sse(`data: [DONE]`))
	c := newController(t, ts)
	ts.Close()

	err := c.Send(context.Background(), "hi", true)
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "send", te.Op)

	assert.Empty(t, c.Transcript().Snapshot())
	st := c.Status()
	assert.NotEmpty(t, st.Error)
	assert.False(t, st.Loading)
}

func TestSend_MissingBody(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c := newController(t, ts)

	err := c.Send(context.Background(), "hi", true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoBody))
	assert.Empty(t, c.Transcript().Snapshot())
	assert.Equal(t, "response has no body", c.Status().Error)
}

func TestSend_OversizedFrameFails(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"delta\":\"ok\"}\n\n")
		fmt.Fprint(w, "data: "+strings.Repeat("x", stream.MaxFrameSize+1))
	})
	c := newController(t, ts)

	err := c.Send(context.Background(), "hi", true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, stream.ErrFrameTooLarge))

	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusOK, pe.Status)

	st := c.Status()
	assert.Equal(t, stream.ErrFrameTooLarge.Error(), st.Error)
	assert.NotContains(t, st.Error, "API error")
	assert.Equal(t, StateFailed, st.State)
	assert.Empty(t, c.Transcript().Snapshot())
}

func TestSend_DroppedMidStreamRollsBack(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"delta\":\"partial\"}\n\n")
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	})
	c := newController(t, ts)
	c.Transcript().AppendUser("earlier")
	before := c.Transcript().Snapshot()

	err := c.Send(context.Background(), "hi", true)
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "read", te.Op)

	assert.Equal(t, before, c.Transcript().Snapshot())
	assert.Empty(t, c.Status().StreamingText)
}

func TestSend_MalformedFrameTolerance(t *testing.T) {
	valid := []string{
		`data: {"delta":"one"}`,
		`data: {"delta":" two"}`,
		`data: {"delta":" three"}`,
	}
	run := func(frames []string) string {
		ts := newTestServer(t, sse(append(frames, `data: [DONE]`)...))
		c := newController(t, ts)
		require.NoError(t, c.Send(context.Background(), "go", true))
		last, _ := c.Transcript().Snapshot().Last()
		return last.Content
	}

	clean := run(valid)
	withBad := run([]string{valid[0], `data: {"delta":`, valid[1], valid[2]})

	assert.Equal(t, "one two three", clean)
	assert.Equal(t, clean, withBad)
}

func TestSend_IgnoresNonDataFrames(t *testing.T) {
	ts := newTestServer(t, sse(
		`: keep-alive`,
		`event: ping`,
		`data: {"content":"fallback"}`,
		`data: {"delta":"","content":"skipped"}`,
		`data: {"other":1}`,
		`data: [DONE]`,
		`data: {"delta":"after done"}`,
	))
	c := newController(t, ts)

	require.NoError(t, c.Send(context.Background(), "go", true))
	last, _ := c.Transcript().Snapshot().Last()
	assert.Equal(t, "fallback", last.Content)
}

func TestSend_ConversationIDMonotonic(t *testing.T) {
	ts := newTestServer(t, sse(
		`data: {"conversation_id":"abc","delta":"a"}`,
		`data: {"conversation_id":"xyz","delta":"b"}`,
		`data: [DONE]`,
	))
	c := newController(t, ts)

	require.NoError(t, c.Send(context.Background(), "first", true))
	assert.Equal(t, "abc", c.Transcript().ConversationID())
	ts.lastRequest(t)

	require.NoError(t, c.Send(context.Background(), "second", true))
	assert.Equal(t, "abc", c.Transcript().ConversationID())

	req := ts.lastRequest(t)
	assert.Equal(t, "abc", req.Body.Get("conversation_id").String())
	assert.Equal(t, "/api/v1/messages/", req.Path)
	assert.Len(t, req.Body.Get("messages").Array(), 3)
}

func TestSend_ConversationScoped(t *testing.T) {
	ts := newTestServer(t, sse(`data: [DONE]`))
	c := newController(t, ts)
	c.cfg.ConversationScoped = true

	require.NoError(t, c.Send(context.Background(), "first", true))
	assert.Equal(t, "/api/v1/messages/", ts.lastRequest(t).Path)

	c.Transcript().ResolveConversationID("conv 1")
	require.NoError(t, c.Send(context.Background(), "second", true))
	assert.Equal(t, "/api/v1/conversations/conv 1/messages/", ts.lastRequest(t).Path)
}

func TestSend_EndWithoutDoneCompletes(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"delta\":\"Hi\"}\n\ndata: {\"delta\":\" tail\"}")
	})
	c := newController(t, ts)

	require.NoError(t, c.Send(context.Background(), "Hello", true))
	assert.Equal(t, []string{"user:Hello", "assistant:Hi"}, contents(c.Transcript().Snapshot()))

	st := c.Status()
	assert.Equal(t, StateCompleted, st.State)
	assert.True(t, st.Truncated)
}

func TestSend_OneByteChunks(t *testing.T) {
	body := "data: {\"delta\":\"héllo\"}\n\ndata: {\"delta\":\" wörld\"}\n\ndata: [DONE]\n\n"
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < len(body); i++ {
			w.Write([]byte{body[i]})
			flusher.Flush()
		}
	})
	c := newController(t, ts)

	require.NoError(t, c.Send(context.Background(), "Hello", true))
	last, _ := c.Transcript().Snapshot().Last()
	assert.Equal(t, "héllo wörld", last.Content)
}

func TestSend_IdempotencyKeyPerRequest(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":"ok"}`))
	})
	c := newController(t, ts)

	require.NoError(t, c.Send(context.Background(), "one", false))
	first := ts.lastRequest(t).Header.Get(IdempotencyHeader)
	require.NoError(t, c.Send(context.Background(), "two", false))
	second := ts.lastRequest(t).Header.Get(IdempotencyHeader)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestSend_StatusUpdates(t *testing.T) {
	ts := newTestServer(t, sse(
		`data: {"delta":"Hi"}`,
		`data: {"delta":" there"}`,
		`data: [DONE]`,
	))
	c := newController(t, ts)

	var (
		mu     sync.Mutex
		seen   []Status
		states []State
	)
	unsubscribe := c.Subscribe(func(s Status) {
		mu.Lock()
		seen = append(seen, s)
		states = append(states, s.State)
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, c.Send(context.Background(), "Hello", true))

	mu.Lock()
	defer mu.Unlock()

	require.NotEmpty(t, seen)
	assert.True(t, seen[0].Loading)
	assert.Equal(t, StateSending, seen[0].State)
	assert.Contains(t, states, StateStreaming)

	var streamed []string
	for _, s := range seen {
		if s.StreamingText != "" {
			assert.True(t, s.Loading)
			streamed = append(streamed, s.StreamingText)
		}
	}
	assert.Equal(t, []string{"Hi", "Hi there"}, streamed)

	final := seen[len(seen)-1]
	assert.False(t, final.Loading)
	assert.Empty(t, final.StreamingText)
	assert.Equal(t, StateCompleted, final.State)
}

func TestSend_ErrorClearedOnNextSend(t *testing.T) {
	fail := true
	var mu sync.Mutex
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			fail = false
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"content":"ok"}`))
	})
	c := newController(t, ts)

	require.Error(t, c.Send(context.Background(), "one", false))
	assert.Equal(t, "API error: 502", c.Status().Error)

	require.NoError(t, c.Send(context.Background(), "two", false))
	assert.Empty(t, c.Status().Error)
	assert.Equal(t, []string{"user:two", "assistant:ok"}, contents(c.Transcript().Snapshot()))
}

func TestSend_Busy(t *testing.T) {
	release := make(chan struct{})
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"content":"ok"}`))
	})
	c := newController(t, ts)

	sending := make(chan struct{}, 1)
	c.Subscribe(func(s Status) {
		if s.State == StateAwaitingResponse {
			select {
			case sending <- struct{}{}:
			default:
			}
		}
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Send(context.Background(), "first", false)
	}()
	<-sending

	err := c.Send(context.Background(), "second", false)
	assert.True(t, errors.Is(err, ErrBusy))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"user:first", "assistant:ok"}, contents(c.Transcript().Snapshot()))
}

func TestSend_HeaderTimeout(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c := newController(t, ts)
	c.cfg.Timeout = 20 * time.Millisecond

	err := c.Send(context.Background(), "hi", true)
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Empty(t, c.Transcript().Snapshot())
}

func TestSend_StreamOutlivesHeaderTimeout(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"delta\":\"slow\"}\n\n")
		flusher.Flush()
		time.Sleep(60 * time.Millisecond)
		fmt.Fprint(w, "data: {\"delta\":\" stream\"}\n\ndata: [DONE]\n\n")
	})
	c := newController(t, ts)
	c.cfg.Timeout = 20 * time.Millisecond

	require.NoError(t, c.Send(context.Background(), "hi", true))
	last, _ := c.Transcript().Snapshot().Last()
	assert.Equal(t, "slow stream", last.Content)
}

func TestSend_ResetMidStream(t *testing.T) {
	step := make(chan struct{})
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"delta\":\"one\"}\n\n")
		flusher.Flush()
		<-step
		fmt.Fprint(w, "data: {\"delta\":\" two\"}\n\ndata: [DONE]\n\n")
	})
	c := newController(t, ts)

	var once sync.Once
	c.Subscribe(func(s Status) {
		if s.StreamingText == "one" {
			once.Do(func() {
				c.Transcript().Reset()
				close(step)
			})
		}
	})

	require.NoError(t, c.Send(context.Background(), "hi", true))
	assert.Empty(t, c.Transcript().Snapshot())
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	assert.Nil(t, NewLimiter(-1))

	l := NewLimiter(0.5)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())
	assert.Equal(t, 4, NewLimiter(4).Burst())
}

func TestSend_Throttled(t *testing.T) {
	ts := newTestServer(t, sse(`data: [DONE]`))
	c := newController(t, ts)
	c.cfg.Limiter = NewLimiter(0.001)

	require.NoError(t, c.Send(context.Background(), "one", true))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Send(ctx, "two", true)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "throttle", te.Op)
	assert.Equal(t, []string{"user:one", "assistant:"}, contents(c.Transcript().Snapshot()))
}

type fakeLoader struct {
	conv *history.Conversation
	err  error
}

func (f *fakeLoader) Load(ctx context.Context, id string, t *transcript.Transcript) (*history.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	t.Replace(id, f.conv.TranscriptMessages())
	return f.conv, nil
}

func TestLoadConversation(t *testing.T) {
	loader := &fakeLoader{conv: &history.Conversation{
		ID: "c-9",
		Messages: []history.Message{
			{ID: "u1", Role: "user", Content: "old question"},
			{ID: "a1", Role: "assistant", Content: "old answer"},
		},
	}}
	ts := newTestServer(t, sse(`data: [DONE]`))
	c := newController(t, ts, WithHistory(loader))

	require.NoError(t, c.LoadConversation(context.Background(), "c-9"))
	assert.Equal(t, "c-9", c.Status().ConversationID)
	assert.Equal(t, []string{"user:old question", "assistant:old answer"}, contents(c.Transcript().Snapshot()))

	require.NoError(t, c.Send(context.Background(), "new", true))
	req := ts.lastRequest(t)
	assert.Equal(t, "c-9", req.Body.Get("conversation_id").String())
	assert.Len(t, req.Body.Get("messages").Array(), 3)
}

func TestLoadConversation_Error(t *testing.T) {
	loader := &fakeLoader{err: &history.StatusError{Status: http.StatusNotFound, Path: "/conversations/x"}}
	ts := newTestServer(t, sse(`data: [DONE]`))
	c := newController(t, ts, WithHistory(loader))
	c.Transcript().AppendUser("kept")

	require.Error(t, c.LoadConversation(context.Background(), "x"))
	assert.Equal(t, "API error: 404 for /conversations/x", c.Status().Error)
	assert.Equal(t, []string{"user:kept"}, contents(c.Transcript().Snapshot()))
}

func TestLoadConversation_NotConfigured(t *testing.T) {
	ts := newTestServer(t, sse(`data: [DONE]`))
	c := newController(t, ts)
	assert.Error(t, c.LoadConversation(context.Background(), "x"))
}

func TestClearAndRemove(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	c := newController(t, ts)
	u := c.Transcript().AppendUser("a")
	c.Transcript().AppendUser("b")
	c.Transcript().ResolveConversationID("conv")

	assert.True(t, c.Remove(u.ID))
	assert.False(t, c.Remove(u.ID))
	assert.Equal(t, []string{"user:b"}, contents(c.Transcript().Snapshot()))

	require.Error(t, c.Send(context.Background(), "c", false))
	require.NotEmpty(t, c.Status().Error)

	c.Clear()
	st := c.Status()
	assert.Empty(t, st.Error)
	assert.Empty(t, st.ConversationID)
	assert.Empty(t, c.Transcript().Snapshot())
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "protocol", err: &ProtocolError{Status: 503, Body: "down"}, want: "API error: 503"},
		{name: "protocol no body", err: &ProtocolError{Status: 200, Err: ErrNoBody}, want: "response has no body"},
		{name: "frame too large", err: &ProtocolError{Status: 200, Err: stream.ErrFrameTooLarge}, want: stream.ErrFrameTooLarge.Error()},
		{name: "protocol empty reason", err: &ProtocolError{Status: 500, Err: emptyError{}}, want: "API error: 500"},
		{name: "wrapped protocol", err: errors.Wrap(&ProtocolError{Status: 401}, "send"), want: "API error: 401"},
		{name: "transport", err: &TransportError{Op: "send", Err: errors.New("connection refused")}, want: "send failed: connection refused"},
		{name: "empty", err: emptyError{}, want: fallbackMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, userMessage(tt.err))
		})
	}
}

type emptyError struct{}

func (emptyError) Error() string { return "" }

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_response", StateAwaitingResponse.String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateStreaming.Terminal())
	assert.True(t, strings.HasPrefix(State(99).String(), "unknown"))
}
