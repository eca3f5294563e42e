package audio

import (
	"encoding/binary"
	"math"
)

const (
	// SampleRate is the capture rate expected by the speech backend.
	SampleRate = 16000
	// Channels is mono capture.
	Channels = 1
	// FrameSamples is the sample count of one 50 ms frame.
	FrameSamples = SampleRate / 20
	// FrameBytes is the PCM16 byte size of one frame.
	FrameBytes = FrameSamples * 2
)

// EncodePCM16 converts float32 samples to little-endian signed 16-bit PCM.
// Samples are clamped to [-1, 1] and scaled asymmetrically to cover the
// full int16 range.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

// DecodePCM16 converts little-endian PCM16 bytes back to float32 samples.
func DecodePCM16(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[2*i:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// BytesToFloat32 converts raw little-endian float32 capture bytes to samples.
func BytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
