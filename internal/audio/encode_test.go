package audio

import (
	"bytes"
	"testing"
)

func TestEncodePCM16(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		want    []byte
	}{
		{name: "boundary values", samples: []float32{1.0, -1.0, 0.0},
			want: []byte{0xFF, 0x7F, 0x00, 0x80, 0x00, 0x00}},
		{name: "clamped above", samples: []float32{2.5},
			want: []byte{0xFF, 0x7F}},
		{name: "clamped below", samples: []float32{-3.0},
			want: []byte{0x00, 0x80}},
		{name: "half scale", samples: []float32{0.5},
			want: []byte{0xFF, 0x3F}},
		{name: "empty", samples: nil, want: []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodePCM16(tt.samples)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodePCM16() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestDecodePCM16(t *testing.T) {
	got := DecodePCM16([]byte{0x00, 0x80, 0x00, 0x00})
	if len(got) != 2 {
		t.Fatalf("DecodePCM16() len = %d, want 2", len(got))
	}
	if got[0] != -1.0 {
		t.Errorf("got[0] = %f, want -1.0", got[0])
	}
	if got[1] != 0.0 {
		t.Errorf("got[1] = %f, want 0.0", got[1])
	}
}

func TestBytesToFloat32(t *testing.T) {
	data := []byte{
		0x00, 0x00, 0x80, 0x3F, // 1.0
		0x00, 0x00, 0x80, 0xBF, // -1.0
	}
	samples := BytesToFloat32(data, 2)
	if len(samples) != 2 {
		t.Fatalf("BytesToFloat32() len = %d, want 2", len(samples))
	}
	if samples[0] != 1.0 || samples[1] != -1.0 {
		t.Errorf("BytesToFloat32() = %v, want [1 -1]", samples)
	}
}

func TestBytesToFloat32Truncated(t *testing.T) {
	samples := BytesToFloat32([]byte{0x00, 0x00, 0x80}, 1)
	if len(samples) != 0 {
		t.Errorf("BytesToFloat32() len = %d, want 0", len(samples))
	}
}
