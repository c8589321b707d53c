package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jpillora/eventsource"
	"github.com/marcsv/go-binder/binder"

	"github.com/liut/kaiwa/pkg/models/convo"
	"github.com/liut/kaiwa/pkg/services/stores"
	"github.com/liut/kaiwa/pkg/services/tutor"
)

const esDone = "[DONE]"

var errNoHistoryStore = errors.New("history store is not configured")

type ChatRequest struct {
	History        convo.Turns `json:"history"`
	Message        string      `json:"message"`
	Level          string      `json:"level"`
	ConversationID string      `json:"csid,omitempty"`
}

type ChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"csid,omitempty"`
}

type ChatDelta struct {
	Delta string `json:"delta,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *server) getLevels(w http.ResponseWriter, r *http.Request) {
	apiOk(w, r, convo.LevelOptions())
}

func (s *server) getWelcome(w http.ResponseWriter, r *http.Request) {
	apiOk(w, r, &convo.Message{Role: "ai", Content: s.preset.GetWelcome()})
}

// bindChat returns false when a failure was already written
func (s *server) bindChat(w http.ResponseWriter, r *http.Request) (param ChatRequest, ok bool) {
	if err := binder.BindBody(r, &param); err != nil {
		apiFail(w, r, http.StatusBadRequest, err)
		return
	}
	if len(strings.TrimSpace(param.Message)) == 0 {
		apiFail(w, r, http.StatusBadRequest, tutor.ErrEmptyMessage)
		return
	}
	if s.tutor == nil {
		logger().Infow("chat without model client", "err", s.tutErr)
		apiFail(w, r, http.StatusInternalServerError, s.tutErr)
		return
	}
	return param, true
}

// conversation opens the stored history of the csid the client chose,
// requests without csid stay stateless and touch no store.
func (s *server) conversation(ctx context.Context, param *ChatRequest) stores.Conversation {
	if s.rc == nil || len(param.ConversationID) == 0 {
		return nil
	}
	cs := stores.NewConversation(s.rc, param.ConversationID, convo.ParseLevel(param.Level))
	if len(param.History) == 0 {
		data, err := cs.ListHistory(ctx)
		if err == nil && len(data) > 0 {
			logger().Infow("found history", "csid", cs.GetID(), "size", len(data))
			param.History = data
		}
	}
	return cs
}

func (s *server) saveTurns(ctx context.Context, cs stores.Conversation, message, answer string) {
	if cs == nil || len(answer) == 0 {
		return
	}
	if err := cs.AddHistory(ctx, convo.UserTurn(message), convo.ModelTurn(answer)); err != nil {
		logger().Infow("save history fail", "csid", cs.GetID(), "err", err)
	}
}

func (s *server) postChat(w http.ResponseWriter, r *http.Request) {
	param, ok := s.bindChat(w, r)
	if !ok {
		return
	}
	cs := s.conversation(r.Context(), &param)

	logger().Infow("chat", "csid", param.ConversationID, "level", param.Level,
		"history", len(param.History), "ip", r.RemoteAddr)
	text, err := s.tutor.Reply(r.Context(), tutor.Input{
		History: param.History,
		Message: param.Message,
		Level:   param.Level,
	})
	if err != nil {
		chatFail(w, r, err)
		return
	}
	s.saveTurns(r.Context(), cs, param.Message, text)

	res := ChatResponse{Response: text}
	if cs != nil {
		res.ConversationID = cs.GetID()
	}
	render.JSON(w, r, &res)
}

func (s *server) postChatSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	param, ok := s.bindChat(w, r)
	if !ok {
		return
	}
	cs := s.conversation(r.Context(), &param)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if cs != nil {
		w.Header().Set("Conversation-ID", cs.GetID())
	}

	var idx int
	answer, err := s.tutor.ReplyStream(r.Context(), tutor.Input{
		History: param.History,
		Message: param.Message,
		Level:   param.Level,
	}, func(delta string) error {
		idx++
		if !writeEvent(w, strconv.Itoa(idx), &ChatDelta{Delta: delta}) {
			return io.ErrClosedPipe
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		logger().Infow("chat stream fail", "err", err)
		idx++
		_ = writeEvent(w, strconv.Itoa(idx), &ChatDelta{Error: failMessage(err)})
	} else {
		s.saveTurns(r.Context(), cs, param.Message, answer)
	}
	idx++
	_ = writeEvent(w, strconv.Itoa(idx), esDone)
	flusher.Flush()
	logger().Infow("chat stream done", "answer", len(answer))
}

func (s *server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.rc == nil {
		apiFail(w, r, http.StatusServiceUnavailable, errNoHistoryStore)
		return
	}
	cs := stores.NewConversation(s.rc, chi.URLParam(r, "cid"), convo.ParseLevel(r.URL.Query().Get("level")))
	data, err := cs.ListHistory(r.Context())
	if err != nil {
		apiFail(w, r, http.StatusInternalServerError, err)
		return
	}
	apiOk(w, r, data, len(data))
}

func (s *server) clearHistory(w http.ResponseWriter, r *http.Request) {
	if s.rc == nil {
		apiFail(w, r, http.StatusServiceUnavailable, errNoHistoryStore)
		return
	}
	cs := stores.NewConversation(s.rc, chi.URLParam(r, "cid"), convo.ParseLevel(r.URL.Query().Get("level")))
	if err := cs.ClearHistory(r.Context()); err != nil {
		apiFail(w, r, http.StatusInternalServerError, err)
		return
	}
	apiOk(w, r)
}

func failMessage(err error) string {
	if errors.Is(err, tutor.ErrTimeout) {
		return tutor.TimeoutMessage
	}
	return err.Error()
}

func chatFail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tutor.ErrEmptyMessage):
		apiFail(w, r, http.StatusBadRequest, err)
	case errors.Is(err, tutor.ErrTimeout):
		logger().Infow("chat timeout", "ip", r.RemoteAddr)
		apiFail(w, r, http.StatusGatewayTimeout, tutor.TimeoutMessage)
	default:
		logger().Infow("chat fail", "err", err)
		apiFail(w, r, http.StatusInternalServerError, err)
	}
}

// writeEvent write one event, caller flushes
func writeEvent(w io.Writer, id string, m any) bool {
	var b []byte
	var err error
	if s, ok := m.(string); ok {
		b = []byte(s)
	} else {
		b, err = json.Marshal(m)
		if err != nil {
			logger().Infow("json marshal fail", "m", m, "err", err)
			return false
		}
	}

	if err = eventsource.WriteEvent(w, eventsource.Event{
		ID:   id,
		Data: b,
	}); err != nil {
		logger().Infow("eventsource write fail", "err", err)
		return false
	}

	return true
}
