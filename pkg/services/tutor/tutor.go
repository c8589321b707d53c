package tutor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cupogo/andvari/utils/zlog"

	"github.com/liut/kaiwa/pkg/models/convo"
	"github.com/liut/kaiwa/pkg/services/llm"
)

const (
	DefaultHistoryLimit = 10
	DefaultTimeout      = 25 * time.Second

	// TimeoutMessage shown to the user instead of a platform timeout
	TimeoutMessage = "The AI is taking too long to respond. Please try again in a moment."
)

var (
	ErrEmptyMessage = errors.New("message is required")
	ErrTimeout      = errors.New("model call timed out")
)

// Input of one chat turn
type Input struct {
	History convo.Turns `json:"history"`
	Message string      `json:"message"`
	Level   string      `json:"level"`
}

// Options of a tutor, zero values mean defaults
type Options struct {
	HistoryLimit int
	Timeout      time.Duration
	PromptMode   string
	Preset       *convo.Preset
}

// Tutor assembles the prompt and calls the generator
type Tutor struct {
	gen  llm.Generator
	opts Options
}

func New(gen llm.Generator, opts Options) *Tutor {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if len(opts.PromptMode) == 0 && opts.Preset != nil {
		opts.PromptMode = opts.Preset.PromptMode
	}
	if opts.PromptMode != convo.PromptPriming {
		opts.PromptMode = convo.PromptSystem
	}
	return &Tutor{gen: gen, opts: opts}
}

// Prepare validates the input and builds the generator request
func (t *Tutor) Prepare(in Input) (req llm.Request, err error) {
	if len(strings.TrimSpace(in.Message)) == 0 {
		err = ErrEmptyMessage
		return
	}
	lv := convo.ParseLevel(in.Level)
	prompt := t.opts.Preset.Prompt(lv)
	history := in.History.Recent(t.opts.HistoryLimit)

	req.Message = in.Message
	req.Generation = t.opts.Preset.GetGeneration()
	if t.opts.PromptMode == convo.PromptPriming {
		req.History = append(convo.Turns{
			convo.UserTurn(prompt),
			convo.ModelTurn(t.opts.Preset.GetPrimingReply()),
		}, history...)
	} else {
		req.System = prompt
		req.History = history
	}
	return
}

type result struct {
	text string
	err  error
}

// Reply returns the generated text verbatim, or ErrTimeout once the limit passes
func (t *Tutor) Reply(ctx context.Context, in Input) (string, error) {
	req, err := t.Prepare(in)
	if err != nil {
		return "", err
	}
	logger().Infow("chat", "level", in.Level, "history", len(req.History), "message", in.Message)

	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		text, err := t.gen.Generate(ctx, req)
		ch <- result{text, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return res.text, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger().Infow("chat timeout", "after", t.opts.Timeout)
			return "", ErrTimeout
		}
		return "", ctx.Err()
	}
}

// ReplyStream like Reply but passes each delta to fn
func (t *Tutor) ReplyStream(ctx context.Context, in Input, fn func(delta string) error) (string, error) {
	req, err := t.Prepare(in)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, t.opts.Timeout)
	defer cancel()

	answer, err := t.gen.GenerateStream(ctx, req, fn)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return answer, ErrTimeout
	}
	return answer, err
}

func logger() zlog.Logger {
	return zlog.Get()
}
