package tutor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liut/kaiwa/pkg/models/convo"
	"github.com/liut/kaiwa/pkg/services/llm"
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
	for _, r := range text {
		if err := fn(string(r)); err != nil {
			return "", err
		}
	}
	return text, nil
}

func makeHistory(n int) convo.Turns {
	var turns convo.Turns
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			turns = append(turns, convo.UserTurn(fmt.Sprintf("u%d", i)))
		} else {
			turns = append(turns, convo.ModelTurn(fmt.Sprintf("m%d", i)))
		}
	}
	return turns
}

func TestReplyCapsHistory(t *testing.T) {
	gen := &stubGen{reply: "Nice to meet you!"}
	tt := New(gen, Options{})

	text, err := tt.Reply(context.Background(), Input{History: makeHistory(15), Message: "hello", Level: "eiken2"})
	require.NoError(t, err)
	assert.Equal(t, "Nice to meet you!", text)
	assert.Equal(t, 1, gen.calls)
	require.Len(t, gen.last.History, DefaultHistoryLimit)
	assert.Equal(t, "m5", gen.last.History[0].Text())
	assert.Equal(t, "u14", gen.last.History[9].Text())
	assert.Contains(t, gen.last.System, "Eiken Grade 2")
	assert.Equal(t, "hello", gen.last.Message)
	assert.Equal(t, convo.DefaultGeneration(), gen.last.Generation)

	tt = New(gen, Options{HistoryLimit: 6})
	_, err = tt.Reply(context.Background(), Input{History: makeHistory(15), Message: "hello"})
	require.NoError(t, err)
	assert.Len(t, gen.last.History, 6)
}

func TestReplyUnknownLevel(t *testing.T) {
	gen := &stubGen{reply: "ok"}
	_, err := New(gen, Options{}).Reply(context.Background(), Input{Message: "hi", Level: "native"})
	require.NoError(t, err)
	assert.Contains(t, gen.last.System, "Eiken Grade 3")
}

func TestReplyEmptyMessage(t *testing.T) {
	gen := &stubGen{reply: "ok"}
	tt := New(gen, Options{})
	for _, msg := range []string{"", "   \n"} {
		_, err := tt.Reply(context.Background(), Input{Message: msg})
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	assert.Zero(t, gen.calls)
}

func TestReplyPriming(t *testing.T) {
	gen := &stubGen{reply: "ok"}
	tt := New(gen, Options{PromptMode: convo.PromptPriming, HistoryLimit: 6})
	_, err := tt.Reply(context.Background(), Input{History: makeHistory(8), Message: "hi", Level: "eiken-pre2"})
	require.NoError(t, err)

	assert.Empty(t, gen.last.System)
	require.Len(t, gen.last.History, 8)
	assert.Equal(t, convo.RoleUser, gen.last.History[0].Role)
	assert.Contains(t, gen.last.History[0].Text(), "Eiken Grade Pre-2")
	assert.True(t, gen.last.History[1].IsModel())
	assert.Equal(t, "u2", gen.last.History[2].Text())
}

func TestReplyTimeout(t *testing.T) {
	gen := &stubGen{reply: "late", delay: time.Second}
	tt := New(gen, Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := tt.Reply(context.Background(), Input{Message: "hi"})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestReplyUpstreamError(t *testing.T) {
	gen := &stubGen{err: errors.New("quota exceeded")}
	_, err := New(gen, Options{}).Reply(context.Background(), Input{Message: "hi"})
	require.Error(t, err)
	assert.Equal(t, "quota exceeded", err.Error())
}

func TestReplyStream(t *testing.T) {
	gen := &stubGen{reply: "abc"}
	var got string
	answer, err := New(gen, Options{}).ReplyStream(context.Background(), Input{Message: "hi"}, func(d string) error {
		got += d
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", answer)
	assert.Equal(t, "abc", got)

	_, err = New(gen, Options{}).ReplyStream(context.Background(), Input{}, nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}
