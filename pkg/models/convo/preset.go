package convo

import "strings"

// prompt placement
const (
	PromptSystem  = "system"  // dedicated system instruction
	PromptPriming = "priming" // synthetic first user/model turn pair
)

// LevelPlaceholder is replaced by the level label in SystemPrompt
const LevelPlaceholder = "{{level}}"

const dftSystemPrompt = `You are a friendly and helpful English tutor. Your name is Gemini. Your student wants to practice conversational English at the {{level}} level. Your task is to respond to the student's message based on the following rules:
1. **Maintain the Persona**: Be encouraging and friendly.
2. **Adjust to the Level**: Use vocabulary, grammar, and topics appropriate for the specified Eiken level.
3. **Provide Corrections in Japanese**: If the student's message has grammatical errors or unnatural phrasing, gently correct it. First, provide a natural and encouraging English response. Then, in a new paragraph, add a "💡 ヒント:" section. The explanation in this section must be written entirely in Japanese. For example: "That's a great question! I'm doing well, thanks for asking. 💡 ヒント: 今の文章でも通じますが、「お元気ですか？」と尋ねる時は、'How are you doing?' のように言うと、より自然な表現になります。"
4. **Lead the Conversation**: Don't just answer. Ask follow-up questions to keep the conversation going.
5. **Keep it Conversational**: Your entire response, including tips, should feel like a natural part of the conversation. Don't be too formal.`

const (
	dftPrimingReply = "Great! I'm ready. Let's start our conversation."
	dftWelcome      = "Please select a level and click 'Start Conversation' to begin."
)

type Message struct {
	Role    string `json:"role,omitempty" yaml:"role,omitempty"`
	Content string `json:"content" yaml:"content"`
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
}

// Generation sampling parameters
type Generation struct {
	Temperature     float32 `json:"temperature" yaml:"temperature"`
	TopK            int32   `json:"topK" yaml:"topK"`
	TopP            float32 `json:"topP" yaml:"topP"`
	MaxOutputTokens int32   `json:"maxOutputTokens" yaml:"maxOutputTokens"`
}

// DefaultGeneration fixed sampling parameters of the tutor
func DefaultGeneration() Generation {
	return Generation{Temperature: 0.9, TopK: 1, TopP: 1, MaxOutputTokens: 2048}
}

type Preset struct {
	Welcome      *Message    `json:"welcome,omitempty" yaml:"welcome,omitempty"`
	SystemPrompt string      `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	PrimingReply string      `json:"primingReply,omitempty" yaml:"primingReply,omitempty"`
	PromptMode   string      `json:"promptMode,omitempty" yaml:"promptMode,omitempty"`
	Model        string      `json:"model,omitempty" yaml:"model,omitempty"`
	Generation   *Generation `json:"generation,omitempty" yaml:"generation,omitempty"`
}

// Prompt returns the instructional prompt for the level
func (p *Preset) Prompt(lv Level) string {
	tpl := dftSystemPrompt
	if p != nil && len(p.SystemPrompt) > 0 {
		tpl = p.SystemPrompt
	}
	return strings.ReplaceAll(tpl, LevelPlaceholder, ParseLevel(string(lv)).Label())
}

func (p *Preset) GetPrimingReply() string {
	if p != nil && len(p.PrimingReply) > 0 {
		return p.PrimingReply
	}
	return dftPrimingReply
}

func (p *Preset) GetWelcome() string {
	if p != nil && p.Welcome != nil && len(p.Welcome.Content) > 0 {
		return p.Welcome.Content
	}
	return dftWelcome
}

func (p *Preset) GetGeneration() Generation {
	if p != nil && p.Generation != nil {
		return *p.Generation
	}
	return DefaultGeneration()
}
