//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	"voice-bridge/internal/application"
)

const framesPerBuffer = 1024

// MicrophoneSource records one utterance at a time from the default input
// device, ending a clip after a second of silence or ten seconds total.
type MicrophoneSource struct {
	format application.AudioFormat
	logger *slog.Logger

	stream *portaudio.Stream
	frame  []int16
}

func NewMicrophoneSource(format application.AudioFormat, logger *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{format: format, logger: logger}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Start(_ context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	m.frame = make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(m.format.Channels, 0, float64(m.format.SampleRate), len(m.frame), m.frame)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting stream: %w", err)
	}

	m.stream = stream
	m.logger.Info("microphone started", "sample_rate", m.format.SampleRate)
	return nil
}

func (m *MicrophoneSource) Stop() error {
	if m.stream != nil {
		m.stream.Stop()
		m.stream.Close()
		m.stream = nil
	}
	return portaudio.Terminate()
}

func (m *MicrophoneSource) NextCommand(ctx context.Context) ([]byte, error) {
	rate := m.format.SampleRate
	detector := newSilenceDetector(rate)
	samples := make([]int16, 0, rate*5)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := m.stream.Read(); err != nil {
			return nil, fmt.Errorf("reading from stream: %w", err)
		}
		samples = append(samples, m.frame...)

		if detector.feed(m.frame) && len(samples) > rate {
			break
		}
		if len(samples) > rate*maxClipSeconds {
			break
		}
	}

	m.logger.Debug("captured utterance", "samples", len(samples))
	return encodeWAV(samples, m.format), nil
}
