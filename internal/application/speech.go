package application

import (
	"context"
	"errors"
)

// ErrNoTranscriber is returned when audio arrives but no speech-to-text
// backend is configured.
var ErrNoTranscriber = errors.New("speech-to-text not configured")

type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// TextOnly rejects audio; used when every command arrives as text.
type TextOnly struct{}

func (TextOnly) Transcribe(context.Context, []byte) (string, error) {
	return "", ErrNoTranscriber
}
