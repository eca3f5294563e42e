package transport

import (
	"sync"
	"time"
)

const latencyProbeCap = 10

// LatencyProbe correlates sent audio frames with delivered transcript
// updates. It pairs the oldest recorded send time with the next delivery,
// which makes the result a liveness indicator, not an exact per-utterance
// measurement.
type LatencyProbe struct {
	mu    sync.Mutex
	sends []time.Time
	now   func() time.Time
}

func NewLatencyProbe() *LatencyProbe {
	return &LatencyProbe{now: time.Now}
}

// RecordSend notes the send time of one audio frame. The oldest entry is
// evicted once the probe holds latencyProbeCap timestamps.
func (p *LatencyProbe) RecordSend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sends) >= latencyProbeCap {
		p.sends = p.sends[1:]
	}
	p.sends = append(p.sends, p.now())
}

// ObserveDelivery pops the oldest send time and returns the approximate
// round trip. Returns false if no send is recorded.
func (p *LatencyProbe) ObserveDelivery() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sends) == 0 {
		return 0, false
	}
	sent := p.sends[0]
	p.sends = p.sends[1:]
	return p.now().Sub(sent), true
}

// Reset drops all recorded send times.
func (p *LatencyProbe) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sends = p.sends[:0]
}
