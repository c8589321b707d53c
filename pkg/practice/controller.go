package practice

import (
	"context"
	"errors"
	"strings"

	"github.com/cupogo/andvari/utils/zlog"
	"golang.org/x/text/language"

	"github.com/liut/kaiwa/pkg/models/convo"
	"github.com/liut/kaiwa/pkg/services/llm"
	"github.com/liut/kaiwa/pkg/services/tutor"
)

// State of the conversation loop
type State int

const (
	StateIdle State = iota
	StateListening
	StateAwaiting
	StateSpeaking
)

var stateNames = [...]string{"idle", "listening", "awaiting", "speaking"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// storage keys
const (
	KeyAPIKey        = "kaiwa-api-key"
	KeyHistoryPrefix = "kaiwa-history-"
)

// user facing texts
const (
	MsgThinking      = "<i>Thinking...</i>"
	MsgNoRecognition = "Speech recognition is not available here. Chrome is recommended, or type your messages instead."
	MsgNoSynthesis   = "Speech synthesis is not available here, replies will only be shown."
	MsgInvalidKey    = "Your API key seems to be invalid. Please set a valid key and try again."
	MsgNoKey         = "Please set your API key before starting the conversation."
	msgErrorPrefix   = "Sorry, an error occurred: "
)

var ErrNoRecognizer = errors.New("speech recognition is not available")

// Controller drives one practice session. It is not safe for concurrent use,
// all methods are expected to run on the driver's event loop.
type Controller struct {
	relay Relay
	tr    Transcript
	rec   Recognizer
	syn   Synthesizer
	store Storage

	lang    language.Tag
	limit   int
	welcome string

	level   convo.Level
	history convo.Turns
	active  bool
	state   State
}

type Option func(c *Controller)

func WithRecognizer(rec Recognizer) Option { return func(c *Controller) { c.rec = rec } }

func WithSynthesizer(syn Synthesizer) Option { return func(c *Controller) { c.syn = syn } }

func WithStorage(store Storage) Option { return func(c *Controller) { c.store = store } }

func WithLang(tag language.Tag) Option { return func(c *Controller) { c.lang = tag } }

// WithWelcome first message of every rendered transcript
func WithWelcome(text string) Option { return func(c *Controller) { c.welcome = text } }

func WithLevel(s string) Option { return func(c *Controller) { c.level = convo.ParseLevel(s) } }

// WithHistoryLimit turns sent with each call
func WithHistoryLimit(n int) Option { return func(c *Controller) { c.limit = n } }

func New(relay Relay, tr Transcript, opts ...Option) *Controller {
	c := &Controller{
		relay: relay,
		tr:    tr,
		lang:  language.AmericanEnglish,
		limit: tutor.DefaultHistoryLimit,
		level: convo.DefaultLevel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.welcome) == 0 {
		c.welcome = (*convo.Preset)(nil).GetWelcome()
	}
	return c
}

// Init renders the welcome message and reports missing capabilities
func (c *Controller) Init() error {
	c.history = c.loadHistory(c.level)
	c.render()
	if c.syn == nil {
		c.tr.Add(SenderAI, MsgNoSynthesis)
	}
	if c.rec == nil {
		c.tr.Add(SenderAI, MsgNoRecognition)
		return ErrNoRecognizer
	}
	return nil
}

func (c *Controller) State() State         { return c.state }
func (c *Controller) Active() bool         { return c.active }
func (c *Controller) Level() convo.Level   { return c.level }
func (c *Controller) History() convo.Turns { return append(convo.Turns(nil), c.history...) }

// Lang BCP 47 tag handed to the synthesizer
func (c *Controller) Lang() string { return c.lang.String() }

// Start begins listening and keeps resuming after each reply
func (c *Controller) Start() error {
	if c.rec == nil {
		return ErrNoRecognizer
	}
	c.active = true
	c.listen()
	return nil
}

// Stop ends the conversation, nothing resumes until Start
func (c *Controller) Stop() {
	c.active = false
	c.halt()
}

// Toggle flips the conversation active flag
func (c *Controller) Toggle() error {
	if c.active {
		c.Stop()
		return nil
	}
	return c.Start()
}

// SetLevel switches tier, the transcript is reset to the tier's stored history
func (c *Controller) SetLevel(s string) {
	c.active = false
	c.halt()
	c.level = convo.ParseLevel(s)
	c.history = c.loadHistory(c.level)
	c.render()
}

// Clear forgets the history of the current tier
func (c *Controller) Clear() {
	c.active = false
	c.halt()
	c.history = nil
	if c.store != nil {
		if err := c.store.Remove(historyKey(c.level)); err != nil {
			logger().Infow("remove history fail", "level", c.level, "err", err)
		}
	}
	c.render()
}

// Heard handles one finalized utterance
func (c *Controller) Heard(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}
	if c.rec != nil {
		c.rec.Stop()
	}
	c.state = StateAwaiting

	c.tr.Add(SenderUser, text)
	prior := c.history.Recent(c.limit)
	c.history = append(c.history, convo.UserTurn(text))

	thinking := c.tr.Add(SenderAI, MsgThinking)
	reply, err := c.relay.Chat(ctx, tutor.Input{
		History: prior,
		Message: text,
		Level:   c.level.String(),
	})
	c.tr.Remove(thinking)
	if err != nil {
		logger().Infow("chat fail", "level", c.level, "err", err)
		c.history = c.history[:len(c.history)-1]
		c.tr.Add(SenderAI, errorText(err))
		c.resume()
		return err
	}

	c.history = append(c.history, convo.ModelTurn(reply))
	c.saveHistory()

	html := convo.FormatHTML(reply)
	c.tr.Add(SenderAI, html)
	c.Speak(html)
	return nil
}

// Speak reads the reply part of a rendered message aloud, the hint is skipped
func (c *Controller) Speak(html string) {
	if c.rec != nil && c.active {
		c.rec.Stop()
	}
	text := convo.SpeechText(html)
	if c.syn == nil || len(text) == 0 {
		c.resume()
		return
	}
	if c.syn.Speaking() {
		c.syn.Cancel()
	}
	c.state = StateSpeaking
	c.syn.Speak(text, c.Lang(), func(err error) {
		if err != nil {
			logger().Infow("speech synthesis fail", "err", err)
		}
		c.resume()
	})
}

// SetAPIKey keeps the key for direct calls until ClearAPIKey
func (c *Controller) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if len(key) == 0 || c.store == nil {
		return llm.ErrNoAPIKey
	}
	return c.store.Set(KeyAPIKey, key)
}

func (c *Controller) APIKey() string {
	if c.store == nil {
		return ""
	}
	key, _ := c.store.Get(KeyAPIKey)
	return key
}

func (c *Controller) ClearAPIKey() error {
	if c.store == nil {
		return nil
	}
	return c.store.Remove(KeyAPIKey)
}

func (c *Controller) listen() {
	if !c.active || c.rec == nil {
		c.state = StateIdle
		return
	}
	if err := c.rec.Start(); err != nil {
		logger().Infow("recognition start fail", "err", err)
		c.state = StateIdle
		return
	}
	c.state = StateListening
}

func (c *Controller) resume() {
	c.listen()
}

func (c *Controller) halt() {
	if c.rec != nil {
		c.rec.Stop()
	}
	if c.syn != nil && c.syn.Speaking() {
		c.syn.Cancel()
	}
	c.state = StateIdle
}

// render rebuilds the transcript from history
func (c *Controller) render() {
	c.tr.Clear()
	c.tr.Add(SenderAI, c.welcome)
	for _, t := range c.history {
		if t.IsModel() {
			c.tr.Add(SenderAI, convo.FormatHTML(t.Text()))
		} else {
			c.tr.Add(SenderUser, t.Text())
		}
	}
}

func (c *Controller) loadHistory(lv convo.Level) convo.Turns {
	if c.store == nil {
		return nil
	}
	blob, ok := c.store.Get(historyKey(lv))
	if !ok {
		return nil
	}
	var turns convo.Turns
	if err := turns.UnmarshalBinary([]byte(blob)); err != nil {
		logger().Infow("bad stored history", "level", lv, "err", err)
		return nil
	}
	return turns
}

func (c *Controller) saveHistory() {
	if c.store == nil {
		return
	}
	b, err := c.history.MarshalBinary()
	if err == nil {
		err = c.store.Set(historyKey(c.level), string(b))
	}
	if err != nil {
		logger().Infow("save history fail", "level", c.level, "err", err)
	}
}

func historyKey(lv convo.Level) string {
	return KeyHistoryPrefix + lv.String()
}

// errorText user facing text of a relay failure
func errorText(err error) string {
	switch {
	case errors.Is(err, tutor.ErrTimeout):
		return tutor.TimeoutMessage
	case errors.Is(err, llm.ErrNoAPIKey):
		return MsgNoKey
	case IsInvalidKey(err):
		return MsgInvalidKey
	}
	return msgErrorPrefix + err.Error()
}

// IsInvalidKey matches the messages APIs use for a rejected key
func IsInvalidKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "API key not valid") ||
		strings.Contains(msg, "API_KEY_INVALID") ||
		strings.Contains(msg, "Incorrect API key")
}

func logger() zlog.Logger {
	return zlog.Get()
}
