package db

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// memBuffer is an in-memory io.WriteSeeker for the wav encoder, which
// seeks back to patch the RIFF header on close.
type memBuffer struct {
	buf []byte
	pos int64
}

func (m *memBuffer) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		newBuf := make([]byte, end)
		copy(newBuf, m.buf)
		m.buf = newBuf
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.pos + offset
	case io.SeekEnd:
		newPos = int64(len(m.buf)) + offset
	}
	if newPos < 0 {
		return 0, fmt.Errorf("negative position")
	}
	m.pos = newPos
	return newPos, nil
}

// buildWAV assembles PCM16LE mono 16 kHz frames into one WAV file.
func buildWAV(chunks [][]byte) ([]byte, error) {
	var pcmData bytes.Buffer
	for _, chunk := range chunks {
		pcmData.Write(chunk)
	}

	raw := pcmData.Bytes()
	samples := make([]int, len(raw)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(raw[2*i]) | int16(raw[2*i+1])<<8)
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  16000,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}

	wavBuf := &memBuffer{buf: make([]byte, 0)}
	enc := wav.NewEncoder(wavBuf, 16000, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav: %w", err)
	}

	return wavBuf.buf, nil
}
