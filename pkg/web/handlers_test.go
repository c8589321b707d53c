package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cupogo/andvari/models/oid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liut/kaiwa/htdocs"
	"github.com/liut/kaiwa/pkg/models/convo"
	"github.com/liut/kaiwa/pkg/services/llm"
	"github.com/liut/kaiwa/pkg/services/tutor"
)

type stubGen struct {
	calls int
	last  llm.Request
	reply string
	err   error
	delay time.Duration
}

func (g *stubGen) Generate(ctx context.Context, req llm.Request) (string, error) {
	g.calls++
	g.last = req
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.reply, g.err
}

func (g *stubGen) GenerateStream(ctx context.Context, req llm.Request, fn func(string) error) (string, error) {
	text, err := g.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	for _, part := range strings.SplitAfter(text, " ") {
		if err := fn(part); err != nil {
			return "", err
		}
	}
	return text, nil
}

func newTestServer(t *testing.T, gen llm.Generator, opts tutor.Options, rc *redis.Client) *server {
	cfg := Config{
		Tutor:  tutor.New(gen, opts),
		Preset: &convo.Preset{},
	}
	if rc != nil {
		cfg.Redis = rc
	}
	return newServer(cfg)
}

func doJSON(t *testing.T, s *server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ar.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func makeHistory(n int) convo.Turns {
	var turns convo.Turns
	for i := 0; i < n; i++ {
		turns = append(turns, convo.UserTurn(fmt.Sprintf("t%d", i)))
	}
	return turns
}

func TestPostChat(t *testing.T) {
	gen := &stubGen{reply: "I'm fine, thanks! 💡 ヒント: good"}
	s := newTestServer(t, gen, tutor.Options{}, nil)

	rec, out := doJSON(t, s, http.MethodPost, "/api/chat", ChatRequest{
		History: makeHistory(14),
		Message: "How are you?",
		Level:   "eiken-pre2",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "I'm fine, thanks! 💡 ヒント: good", out["response"])
	assert.NotContains(t, out, "csid")

	require.Equal(t, 1, gen.calls)
	assert.Len(t, gen.last.History, tutor.DefaultHistoryLimit)
	assert.Equal(t, "t4", gen.last.History[0].Text())
	assert.Contains(t, gen.last.System, "Eiken Grade Pre-2")
}

func TestPostChatEmptyMessage(t *testing.T) {
	gen := &stubGen{reply: "x"}
	s := newTestServer(t, gen, tutor.Options{}, nil)

	rec, out := doJSON(t, s, http.MethodPost, "/api/chat", ChatRequest{Level: "eiken2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "message is required", out["error"])
	assert.Zero(t, gen.calls)
}

func TestPostChatBadJSON(t *testing.T) {
	gen := &stubGen{reply: "x"}
	s := newTestServer(t, gen, tutor.Options{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ar.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, gen.calls)
}

func TestChatMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &stubGen{}, tutor.Options{}, nil)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec, out := doJSON(t, s, method, "/api/chat", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.Equal(t, "Method Not Allowed", out["error"])
	}
}

func TestPostChatTimeout(t *testing.T) {
	gen := &stubGen{reply: "late", delay: time.Second}
	s := newTestServer(t, gen, tutor.Options{Timeout: 20 * time.Millisecond}, nil)

	rec, out := doJSON(t, s, http.MethodPost, "/api/chat", ChatRequest{Message: "hello"})
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, tutor.TimeoutMessage, out["error"])
}

func TestPostChatUpstreamError(t *testing.T) {
	gen := &stubGen{err: errors.New("API key not valid. Please pass a valid API key.")}
	s := newTestServer(t, gen, tutor.Options{}, nil)

	rec, out := doJSON(t, s, http.MethodPost, "/api/chat", ChatRequest{Message: "hello"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "API key not valid. Please pass a valid API key.", out["error"])
}

func TestPostChatNoModelClient(t *testing.T) {
	s := newServer(Config{Preset: &convo.Preset{}})
	if s.tutor != nil {
		t.Skip("API key configured in environment")
	}
	rec, out := doJSON(t, s, http.MethodPost, "/api/chat", ChatRequest{Message: "hello"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, llm.ErrNoAPIKey.Error(), out["error"])
}

func TestChatServerHistory(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()

	gen := &stubGen{reply: "Nice!"}
	s := newTestServer(t, gen, tutor.Options{}, rc)

	rec, out := doJSON(t, s, http.MethodPost, "/api/chat", ChatRequest{
		Message: "first", Level: "eiken2", ConversationID: oid.NewID(oid.OtEvent).String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	csid, _ := out["csid"].(string)
	require.NotEmpty(t, csid)

	rec, _ = doJSON(t, s, http.MethodPost, "/api/chat", ChatRequest{Message: "second", Level: "eiken2", ConversationID: csid})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, gen.last.History, 2)
	assert.Equal(t, "first", gen.last.History[0].Text())
	assert.Equal(t, "Nice!", gen.last.History[1].Text())

	rec, out = doJSON(t, s, http.MethodGet, "/api/history/"+csid+"?level=eiken2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, out["count"])

	rec, _ = doJSON(t, s, http.MethodDelete, "/api/history/"+csid+"?level=eiken2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, out = doJSON(t, s, http.MethodGet, "/api/history/"+csid+"?level=eiken2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, out["data"])
}

func TestChatWithoutConversationID(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rc.Close()

	gen := &stubGen{reply: "Nice!"}
	s := newTestServer(t, gen, tutor.Options{}, rc)

	for i := 0; i < 3; i++ {
		rec, out := doJSON(t, s, http.MethodPost, "/api/chat", ChatRequest{History: convo.Turns{}, Message: "hello"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, out["csid"])
	}
	rec, _ := doJSON(t, s, http.MethodPost, "/api/chat", ChatRequest{
		History: convo.Turns{convo.UserTurn("hello"), convo.ModelTurn("Nice!")},
		Message: "again",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, gen.last.History, 2)
	assert.Empty(t, mr.Keys())
}

func TestHistoryWithoutStore(t *testing.T) {
	s := newTestServer(t, &stubGen{}, tutor.Options{}, nil)
	rec, out := doJSON(t, s, http.MethodGet, "/api/history/abc", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, errNoHistoryStore.Error(), out["error"])
}

func TestPostChatSSE(t *testing.T) {
	gen := &stubGen{reply: "Hello there friend"}
	s := newTestServer(t, gen, tutor.Options{}, nil)

	body := strings.NewReader(`{"message":"hi","level":"eiken3"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/chat-sse", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ar.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	text := rec.Body.String()
	assert.Contains(t, text, `"delta":"Hello "`)
	assert.Contains(t, text, `"delta":"friend"`)
	assert.Contains(t, text, "data: [DONE]")
}

func TestLevelsAndWelcome(t *testing.T) {
	s := newTestServer(t, &stubGen{}, tutor.Options{}, nil)

	rec, out := doJSON(t, s, http.MethodGet, "/api/levels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	levels, _ := out["data"].([]any)
	assert.Len(t, levels, 3)

	rec, out = doJSON(t, s, http.MethodGet, "/api/welcome", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msg, _ := out["data"].(map[string]any)
	assert.NotEmpty(t, msg["content"])
}

func TestPing(t *testing.T) {
	s := newTestServer(t, &stubGen{}, tutor.Options{}, nil)
	rec := httptest.NewRecorder()
	s.ar.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "Pong\n", rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	s := newServer(Config{
		Tutor:     tutor.New(&stubGen{reply: "ok"}, tutor.Options{}),
		Preset:    &convo.Preset{},
		RateLimit: "2-M",
	})
	var codes []int
	for i := 0; i < 3; i++ {
		rec, _ := doJSON(t, s, http.MethodGet, "/api/levels", nil)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestDocHandler(t *testing.T) {
	s := newServer(Config{
		Tutor:      tutor.New(&stubGen{}, tutor.Options{}),
		Preset:     &convo.Preset{},
		DocHandler: http.FileServer(http.FS(htdocs.FS())),
	})
	rec := httptest.NewRecorder()
	s.ar.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="chat-window"`)

	rec = httptest.NewRecorder()
	s.ar.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// unknown api routes stay json
	rec2, out := doJSON(t, s, http.MethodGet, "/api/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec2.Code)
	assert.Equal(t, "Not Found", out["error"])
}
