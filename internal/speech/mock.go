package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"unicode/utf8"
)

// MockTranscriber returns canned text chosen by audio length.
type MockTranscriber struct{}

func (MockTranscriber) Name() string { return "mock" }

func (MockTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	switch n := len(audio); {
	case n == 0:
		return "", ErrEmptyAudio
	case n < 1000:
		return "I heard a very short clip.", nil
	case n < 5000:
		return "I heard a medium length clip.", nil
	case n < 10000:
		return "I heard a fairly long clip with plenty of speech.", nil
	default:
		return "I heard a long recording, maybe a whole conversation.", nil
	}
}

// MockSynthesizer produces silent 16 kHz mono WAV audio, 50ms per character.
type MockSynthesizer struct{}

func (MockSynthesizer) Name() string { return "mock" }

func (MockSynthesizer) Synthesize(ctx context.Context, text string, opts Options) (*Audio, error) {
	const sampleRate = 16000
	samples := utf8.RuneCountInString(text) * sampleRate / 20
	if samples == 0 {
		samples = sampleRate / 10
	}
	return &Audio{Data: silentWAV(sampleRate, samples), Format: "wav"}, nil
}

func silentWAV(sampleRate, samples int) []byte {
	dataLen := uint32(samples * 2)
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}

// DurationMS estimates the playback length of 16-bit mono PCM WAV data.
// It returns 0 for other formats.
func DurationMS(a *Audio) int {
	if a == nil || a.Format != "wav" || len(a.Data) < 44 {
		return 0
	}
	rate := binary.LittleEndian.Uint32(a.Data[24:28])
	if rate == 0 {
		return 0
	}
	samples := (len(a.Data) - 44) / 2
	return samples * 1000 / int(rate)
}
