//go:build !portaudio

package audio

import (
	"context"
	"errors"
	"log/slog"

	"voice-bridge/internal/application"
)

var errNoPortaudio = errors.New("microphone source not available: rebuild with -tags portaudio")

// MicrophoneSource is unavailable without the portaudio build tag.
type MicrophoneSource struct{}

func NewMicrophoneSource(application.AudioFormat, *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Start(context.Context) error {
	return errNoPortaudio
}

func (m *MicrophoneSource) Stop() error {
	return nil
}

func (m *MicrophoneSource) NextCommand(context.Context) ([]byte, error) {
	return nil, errNoPortaudio
}
