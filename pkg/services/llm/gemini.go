package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/liut/kaiwa/pkg/models/convo"
)

const dftGeminiModel = "gemini-1.5-flash"

var geminiSafety = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockMediumAndAbove},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockMediumAndAbove},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockMediumAndAbove},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockMediumAndAbove},
}

type gemini struct {
	apiKey string
	model  string
	opts   []option.ClientOption
}

// NewGemini returns a generator backed by the Gemini API
func NewGemini(cfg Config, opts ...option.ClientOption) Generator {
	model := cfg.Model
	if len(model) == 0 {
		model = dftGeminiModel
	}
	return &gemini{apiKey: cfg.APIKey, model: model, opts: opts}
}

func (g *gemini) startChat(ctx context.Context, req Request) (*genai.Client, *genai.ChatSession, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(g.apiKey)}, g.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}
	gm := client.GenerativeModel(g.model)
	configure(gm, req)

	cs := gm.StartChat()
	cs.History = toGeminiContents(req.History)
	return client, cs, nil
}

// configure applies sampling, safety thresholds and the system instruction
func configure(gm *genai.GenerativeModel, req Request) {
	gm.SetTemperature(req.Generation.Temperature)
	gm.SetTopK(req.Generation.TopK)
	gm.SetTopP(req.Generation.TopP)
	gm.SetMaxOutputTokens(req.Generation.MaxOutputTokens)
	gm.SafetySettings = geminiSafety
	if len(req.System) > 0 {
		gm.SystemInstruction = &genai.Content{
			Role:  "system",
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
}

func (g *gemini) Generate(ctx context.Context, req Request) (string, error) {
	client, cs, err := g.startChat(ctx, req)
	if err != nil {
		return "", err
	}
	defer client.Close()

	res, err := cs.SendMessage(ctx, genai.Text(req.Message))
	if err != nil {
		logger().Infow("gemini send fail", "model", g.model, "err", err)
		return "", err
	}
	text := responseText(res)
	if len(text) == 0 {
		return "", ErrNoContent
	}
	return text, nil
}

func (g *gemini) GenerateStream(ctx context.Context, req Request, fn func(delta string) error) (string, error) {
	client, cs, err := g.startChat(ctx, req)
	if err != nil {
		return "", err
	}
	defer client.Close()

	var answer strings.Builder
	iter := cs.SendMessageStream(ctx, genai.Text(req.Message))
	for {
		res, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			logger().Infow("gemini stream fail", "model", g.model, "err", err)
			return answer.String(), err
		}
		delta := responseText(res)
		if len(delta) == 0 {
			continue
		}
		answer.WriteString(delta)
		if err = fn(delta); err != nil {
			return answer.String(), err
		}
	}
	return answer.String(), nil
}

func toGeminiContents(turns convo.Turns) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := convo.RoleUser
		if t.IsModel() {
			role = convo.RoleModel
		}
		c := &genai.Content{Role: role}
		for _, p := range t.Parts {
			c.Parts = append(c.Parts, genai.Text(p.Text))
		}
		out = append(out, c)
	}
	return out
}

func responseText(res *genai.GenerateContentResponse) string {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range res.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}
