package application

import "context"

// CommandSource yields raw commands: audio clips to transcribe, or text
// prefixed with domain.TextCommandPrefix.
type CommandSource interface {
	Start(ctx context.Context) error
	Stop() error
	NextCommand(ctx context.Context) ([]byte, error)
	Name() string
}

// AudioFormat describes PCM captured by local sources.
type AudioFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func DefaultAudioFormat() AudioFormat {
	return AudioFormat{SampleRate: 16000, Channels: 1, BitDepth: 16}
}

// BytesPerSecond is the PCM data rate for f.
func (f AudioFormat) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitDepth / 8
}
