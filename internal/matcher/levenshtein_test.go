package matcher

import (
	"math"
	"testing"
)

func Test_editDistance(t *testing.T) {
	tests := []struct {
		a    string
		b    string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"fox", "fox", 0},
		{"fox", "box", 1},
		{"déjà", "deja", 2},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := editDistance(tt.a, tt.b); got != tt.want {
				t.Errorf("editDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func Test_wordSimilarity(t *testing.T) {
	tests := []struct {
		a    string
		b    string
		want float64
	}{
		{"fox", "fox", 1},
		{"", "", 1},
		{"fox", "box", 1 - 1.0/3},
		{"a", "xyz", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := wordSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("wordSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
