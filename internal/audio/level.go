package audio

import (
	"math"
	"sort"
)

const (
	rmsGain         = 2.0
	historySize     = 100
	historyMinimum  = 10
	normalizeGain   = 1.2
	smoothingFactor = 0.15
)

// FrameRMS computes the root-mean-square of a float sample block,
// amplified by a fixed gain and clamped to [0, 1].
func FrameRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return clamp01(math.Sqrt(sum/float64(len(samples))) * rmsGain)
}

// PercentileNormalizer rescales raw levels into a floating floor-ceiling
// range derived from the 10th and 90th percentile of recent history. It
// self-calibrates to ambient noise and microphone gain.
type PercentileNormalizer struct {
	history []float64
	floor   float64
	ceiling float64
}

func NewPercentileNormalizer() *PercentileNormalizer {
	res := &PercentileNormalizer{}
	res.Reset()
	return res
}

// Normalize records raw into history and maps it into the current
// floor-ceiling range. Raw values pass through until enough history exists.
func (n *PercentileNormalizer) Normalize(raw float64) float64 {
	n.history = append(n.history, raw)
	if len(n.history) > historySize {
		n.history = n.history[1:]
	}
	if len(n.history) < historyMinimum {
		return clamp01(raw)
	}
	sorted := make([]float64, len(n.history))
	copy(sorted, n.history)
	sort.Float64s(sorted)
	n.floor = sorted[percentileIndex(len(sorted), 0.10)]
	n.ceiling = sorted[percentileIndex(len(sorted), 0.90)]
	span := n.ceiling - n.floor
	if span <= 1e-9 {
		return clamp01(raw)
	}
	return clamp01((raw - n.floor) / span * normalizeGain)
}

// Reset drops the history and moves the floor back to infinity.
func (n *PercentileNormalizer) Reset() {
	n.history = n.history[:0]
	n.floor = math.Inf(1)
	n.ceiling = math.Inf(-1)
}

// EMASmoother applies an exponential moving average to remove visual jitter.
type EMASmoother struct {
	alpha float64
	value float64
}

func NewEMASmoother() *EMASmoother {
	return &EMASmoother{alpha: smoothingFactor}
}

func (s *EMASmoother) Smooth(v float64) float64 {
	s.value = s.alpha*v + (1-s.alpha)*s.value
	return s.value
}

func (s *EMASmoother) Reset() {
	s.value = 0
}

// LevelMeter chains the percentile normalizer and the EMA smoother into
// the per-frame loudness signal reported to the UI.
type LevelMeter struct {
	normalizer *PercentileNormalizer
	smoother   *EMASmoother
}

func NewLevelMeter() *LevelMeter {
	return &LevelMeter{normalizer: NewPercentileNormalizer(), smoother: NewEMASmoother()}
}

// Update computes the smoothed normalized level for one frame of samples.
func (m *LevelMeter) Update(samples []float32) float64 {
	return m.smoother.Smooth(m.normalizer.Normalize(FrameRMS(samples)))
}

// Reset returns the meter to its initial state.
func (m *LevelMeter) Reset() {
	m.normalizer.Reset()
	m.smoother.Reset()
}

func percentileIndex(n int, p float64) int {
	idx := int(math.Round(p * float64(n-1)))
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
