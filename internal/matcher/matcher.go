package matcher

import (
	"sync"
	"time"

	"github.com/speechscroll/prompterd/internal/utils"
)

const (
	minGrowthChars   = 3
	throttleInterval = 100 * time.Millisecond
	tailTokenCount   = 3
	minTailTokens    = 2
	backtrackWindow  = 2
	forwardLookahead = 30
	matchThreshold   = 0.6
	proximityWeight  = 0.1
)

// MatchState is the matcher's best estimate of the current reading
// position.
type MatchState struct {
	CurrentWordIndex int
	Confidence       float64
	IsActive         bool
}

// Matcher aligns a continuously growing transcript against a fixed
// reference script. It tolerates misheard words, fillers and punctuation
// differences by scoring a short transcript tail against a bounded window
// of script positions, so its per-call cost does not grow with the
// transcript.
type Matcher struct {
	mu            sync.Mutex
	tokens        []Token
	state         MatchState
	lastProcessed string
	lastAt        time.Time

	now func() time.Time
}

func New() *Matcher {
	return &Matcher{now: time.Now}
}

// SetScript tokenizes a new reference script and resets all match state.
func (m *Matcher) SetScript(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = TokenizeScript(text)
	m.resetLocked()
}

// Reset clears position, confidence and the active flag without
// retokenizing the script. Used when transcription restarts mid-session.
func (m *Matcher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Matcher) resetLocked() {
	m.state = MatchState{}
	m.lastProcessed = ""
	m.lastAt = time.Time{}
}

// State returns the current match state.
func (m *Matcher) State() MatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Tokens returns the tokenized script.
func (m *Matcher) Tokens() []Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens
}

// ProcessTranscript evaluates the transcript tail against the script and
// advances the match state when a confident enough alignment is found.
// Unchanged text, sub-3-character growth and calls within 100 ms of the
// previous one are skipped to bound the matching cost under bursty
// delivery.
func (m *Matcher) ProcessTranscript(text string) MatchState {
	defer utils.MeasureTime("match", time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tokens) == 0 {
		return m.state
	}
	if text == m.lastProcessed {
		return m.state
	}
	if len(text)-len(m.lastProcessed) < minGrowthChars {
		return m.state
	}
	now := m.now()
	if now.Sub(m.lastAt) < throttleInterval {
		return m.state
	}
	m.lastProcessed = text
	m.lastAt = now

	tail := normalizedTail(text)
	if len(tail) < minTailTokens {
		return m.state
	}

	cur := m.state.CurrentWordIndex
	windowSize := len(tail)
	from := cur - backtrackWindow
	if from < 0 {
		from = 0
	}
	to := len(m.tokens) - windowSize
	if limit := cur + forwardLookahead; limit < to {
		to = limit
	}

	bestRaw, bestAdjusted, bestStart := 0.0, 0.0, -1
	for i := from; i <= to; i++ {
		raw := m.windowScore(tail, i)
		dist := i - cur
		if dist < 0 {
			dist = -dist
		}
		adjusted := raw * (1 - float64(dist)/forwardLookahead*proximityWeight)
		if adjusted > bestAdjusted {
			bestRaw, bestAdjusted, bestStart = raw, adjusted, i
		}
	}

	if bestStart < 0 || bestAdjusted < matchThreshold {
		return m.state
	}
	newIndex := bestStart + windowSize - 1
	if newIndex < cur-1 {
		// A confident match far behind the current position is more
		// likely a repeated phrase than a real regression.
		return m.state
	}
	m.state = MatchState{CurrentWordIndex: newIndex, Confidence: bestRaw, IsActive: true}
	return m.state
}

func (m *Matcher) windowScore(tail []string, start int) float64 {
	var sum float64
	for j, w := range tail {
		sum += wordSimilarity(w, m.tokens[start+j].Normalized)
	}
	return sum / float64(len(tail))
}

// normalizedTail extracts and normalizes the last few transcript words,
// dropping tokens that normalize to nothing (pure punctuation).
func normalizedTail(text string) []string {
	fields := lastFields(text, tailTokenCount)
	res := fields[:0]
	for _, f := range fields {
		if w := NormalizeWord(f); w != "" {
			res = append(res, w)
		}
	}
	return res
}
