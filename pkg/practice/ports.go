package practice

import (
	"context"

	"github.com/liut/kaiwa/pkg/services/tutor"
)

// Sender of a transcript message
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Recognizer speech to text engine in continuous mode. Finalized utterances
// are handed to Controller.Heard by the driver.
type Recognizer interface {
	Start() error
	Stop()
}

// Synthesizer speaks text, done is called once playback ends or fails
type Synthesizer interface {
	Speak(text, lang string, done func(err error))
	Cancel()
	Speaking() bool
}

// Transcript renders chat messages, html is already formatted
type Transcript interface {
	Add(sender Sender, html string) (id int)
	Remove(id int)
	Clear()
}

// Relay forwards a chat turn to the model
type Relay interface {
	Chat(ctx context.Context, in tutor.Input) (string, error)
}

// Storage opaque client side key/value blobs
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}
