package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	openaiTimeout  = time.Second * 30
	dftOpenAIModel = openai.GPT4oMini
)

type openaiGen struct {
	oc    *openai.Client
	model string
}

// NewOpenAI returns a generator backed by an OpenAI compatible API
func NewOpenAI(cfg Config) Generator {
	occ := openai.DefaultConfig(cfg.APIKey)
	if len(cfg.BaseURL) > 0 {
		occ.BaseURL = cfg.BaseURL
	}
	occ.HTTPClient = &http.Client{
		Timeout:   openaiTimeout,
		Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
	}
	model := cfg.Model
	if len(model) == 0 {
		model = dftOpenAIModel
	}
	return &openaiGen{oc: openai.NewClientWithConfig(occ), model: model}
}

func (g *openaiGen) request(req Request) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if len(req.System) > 0 {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, t := range req.History {
		role := openai.ChatMessageRoleUser
		if t.IsModel() {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Text()})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})

	// TopK has no counterpart here
	return openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: req.Generation.Temperature,
		TopP:        req.Generation.TopP,
		MaxTokens:   int(req.Generation.MaxOutputTokens),
	}
}

func (g *openaiGen) Generate(ctx context.Context, req Request) (string, error) {
	res, err := g.oc.CreateChatCompletion(ctx, g.request(req))
	if err != nil {
		logger().Infow("openai chat fail", "model", g.model, "err", err)
		return "", err
	}
	if len(res.Choices) == 0 || len(res.Choices[0].Message.Content) == 0 {
		return "", ErrNoContent
	}
	logger().Debugw("openai chat", "usage", &res.Usage, "finish", res.Choices[0].FinishReason)
	return res.Choices[0].Message.Content, nil
}

func (g *openaiGen) GenerateStream(ctx context.Context, req Request, fn func(delta string) error) (string, error) {
	ccr := g.request(req)
	ccr.Stream = true
	ccs, err := g.oc.CreateChatCompletionStream(ctx, ccr)
	if err != nil {
		logger().Infow("call chat stream fail", "err", err)
		return "", err
	}
	defer ccs.Close()

	var answer strings.Builder
	for {
		ccsr, err := ccs.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger().Infow("ccs recv fail", "err", err)
			return answer.String(), err
		}
		if len(ccsr.Choices) == 0 {
			continue
		}
		delta := ccsr.Choices[0].Delta.Content
		if len(delta) > 0 {
			answer.WriteString(delta)
			if err = fn(delta); err != nil {
				return answer.String(), err
			}
		}
		if len(ccsr.Choices[0].FinishReason) > 0 {
			break
		}
	}
	return answer.String(), nil
}
