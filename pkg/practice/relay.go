package practice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/liut/kaiwa/pkg/models/convo"
	"github.com/liut/kaiwa/pkg/services/llm"
	"github.com/liut/kaiwa/pkg/services/tutor"
)

// HTTPRelay posts to a completion relay endpoint such as /api/chat
type HTTPRelay struct {
	URL    string
	Client *http.Client
}

func NewHTTPRelay(url string) *HTTPRelay {
	return &HTTPRelay{URL: url, Client: &http.Client{Timeout: time.Minute}}
}

type relayReply struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (r *HTTPRelay) Chat(ctx context.Context, in tutor.Input) (string, error) {
	if in.History == nil {
		in.History = convo.Turns{}
	}
	body, err := json.Marshal(&in)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	cli := r.Client
	if cli == nil {
		cli = http.DefaultClient
	}
	resp, err := cli.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var rr relayReply
	if err = json.NewDecoder(resp.Body).Decode(&rr); err != nil && resp.StatusCode < 300 {
		return "", fmt.Errorf("decode relay reply: %w", err)
	}
	if resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusGatewayTimeout {
			return "", tutor.ErrTimeout
		}
		if len(rr.Error) == 0 {
			rr.Error = "An unknown server error occurred."
		}
		return "", errors.New(rr.Error)
	}
	return rr.Response, nil
}

// KeyFunc returns the client held api key
type KeyFunc func() string

// DirectRelay calls the model from the client with a key it stores itself
type DirectRelay struct {
	cfg   llm.Config
	opts  tutor.Options
	keyFn KeyFunc
	build func(cfg llm.Config) (llm.Generator, error)

	mu  sync.Mutex
	key string
	tut *tutor.Tutor
}

func NewDirectRelay(cfg llm.Config, opts tutor.Options, keyFn KeyFunc) *DirectRelay {
	return &DirectRelay{cfg: cfg, opts: opts, keyFn: keyFn, build: llm.New}
}

func (r *DirectRelay) getTutor() (*tutor.Tutor, error) {
	key := strings.TrimSpace(r.keyFn())
	if len(key) == 0 {
		return nil, llm.ErrNoAPIKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tut != nil && r.key == key {
		return r.tut, nil
	}
	cfg := r.cfg
	cfg.APIKey = key
	gen, err := r.build(cfg)
	if err != nil {
		return nil, err
	}
	r.key, r.tut = key, tutor.New(gen, r.opts)
	return r.tut, nil
}

func (r *DirectRelay) Chat(ctx context.Context, in tutor.Input) (string, error) {
	t, err := r.getTutor()
	if err != nil {
		return "", err
	}
	return t.Reply(ctx, in)
}
