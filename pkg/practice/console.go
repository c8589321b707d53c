package practice

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/liut/kaiwa/pkg/models/convo"
)

// clears the current terminal line
const eraseLine = "\r\033[K"

// ConsoleTranscript prints messages as plain text
type ConsoleTranscript struct {
	w       io.Writer
	next    int
	pending int // id of the thinking line still on screen
}

func NewConsoleTranscript(w io.Writer) *ConsoleTranscript {
	return &ConsoleTranscript{w: w}
}

func (t *ConsoleTranscript) Add(sender Sender, html string) int {
	t.next++
	t.erase()
	text := convo.PlainText(html)
	if sender == SenderUser {
		fmt.Fprintf(t.w, "you> %s\n", text)
	} else if html == MsgThinking {
		fmt.Fprintf(t.w, "ai > %s", text)
		t.pending = t.next
	} else {
		fmt.Fprintf(t.w, "ai > %s\n", text)
	}
	return t.next
}

// Remove erases the thinking line, printed lines stay
func (t *ConsoleTranscript) Remove(id int) {
	if id == t.pending {
		t.erase()
	}
}

func (t *ConsoleTranscript) erase() {
	if t.pending > 0 {
		fmt.Fprint(t.w, eraseLine)
		t.pending = 0
	}
}

func (t *ConsoleTranscript) Clear() {
	t.erase()
	fmt.Fprintln(t.w, "----")
}

// PromptRecognizer treats typed lines as finalized utterances, it only shows a prompt
type PromptRecognizer struct {
	w      io.Writer
	Prompt string
}

func NewPromptRecognizer(w io.Writer) *PromptRecognizer {
	return &PromptRecognizer{w: w, Prompt: "🎤 "}
}

func (r *PromptRecognizer) Start() error {
	_, err := fmt.Fprint(r.w, r.Prompt)
	return err
}

func (r *PromptRecognizer) Stop() {}

// CommandSynth speaks with an external command like `say` or `espeak`,
// printing the text when no command is set
type CommandSynth struct {
	Command string
	Args    []string
	w       io.Writer

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewCommandSynth(w io.Writer, command string, args ...string) *CommandSynth {
	return &CommandSynth{w: w, Command: command, Args: args}
}

// Speak blocks until playback ends, then calls done
func (s *CommandSynth) Speak(text, lang string, done func(err error)) {
	if len(s.Command) == 0 {
		_, err := fmt.Fprintf(s.w, "🔊 (%s) %s\n", lang, text)
		done(err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	args := append(append([]string(nil), s.Args...), text)
	err := exec.CommandContext(ctx, s.Command, args...).Run()

	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()
	cancel()
	done(err)
}

func (s *CommandSynth) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *CommandSynth) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// MemoryStorage keeps blobs for the life of the process
type MemoryStorage struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{m: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemoryStorage) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
