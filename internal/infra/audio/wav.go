package audio

import (
	"bytes"
	"encoding/binary"

	"voice-bridge/internal/application"
)

const (
	maxClipSeconds   = 10
	silenceThreshold = 500
)

// silenceDetector reports when a full second of quiet frames has passed.
type silenceDetector struct {
	quiet int
	limit int
}

func newSilenceDetector(sampleRate int) *silenceDetector {
	return &silenceDetector{limit: sampleRate}
}

func (d *silenceDetector) feed(frame []int16) bool {
	for _, s := range frame {
		if s > silenceThreshold || s < -silenceThreshold {
			d.quiet = 0
			return false
		}
	}
	d.quiet += len(frame)
	return d.quiet > d.limit
}

// encodeWAV wraps 16-bit PCM samples in a RIFF header.
func encodeWAV(samples []int16, format application.AudioFormat) []byte {
	var buf bytes.Buffer

	blockAlign := format.Channels * format.BitDepth / 8
	dataSize := len(samples) * 2

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(format.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(format.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(format.BytesPerSecond()))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(format.BitDepth))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}
