package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/gen2brain/malgo"
)

// ErrDeviceUnavailable marks a missing or denied audio input device.
var ErrDeviceUnavailable = errors.New("audio input device unavailable")

// Monitor captures the default microphone at 16 kHz mono, slices the
// signal into fixed 50 ms PCM16 frames and reports a smoothed loudness
// level. Frames are forwarded downstream only while transmitting is on;
// level reporting continues regardless.
type Monitor struct {
	onFrame func(frame []byte)
	onLevel func(level float64)

	mu           sync.Mutex
	ctx          *malgo.AllocatedContext
	device       *malgo.Device
	queue        []byte
	meter        *LevelMeter
	monitoring   bool
	transmitting bool
}

// NewMonitor creates a monitor. Callbacks fire on the capture thread and
// must not block.
func NewMonitor(onFrame func([]byte), onLevel func(float64)) *Monitor {
	return &Monitor{onFrame: onFrame, onLevel: onLevel, meter: NewLevelMeter()}
}

// StartMonitoring acquires the default input device. Calling while
// already monitoring is a no-op.
func (m *Monitor) StartMonitoring() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.monitoring {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: init context: %v", ErrDeviceUnavailable, err)
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = Channels
	deviceCfg.SampleRate = SampleRate

	device, err := malgo.InitDevice(ctx.Context, deviceCfg, malgo.DeviceCallbacks{Data: m.onData})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: init device: %v", ErrDeviceUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("%w: start device: %v", ErrDeviceUnavailable, err)
	}

	m.ctx = ctx
	m.device = device
	m.queue = m.queue[:0]
	m.meter.Reset()
	m.monitoring = true
	goapp.Log.Info().Int("sampleRate", SampleRate).Msg("monitoring started")
	return nil
}

// StopMonitoring releases the device and resets all derived state. Safe
// to call when not monitoring. The device is released synchronously, no
// capture callback fires after return.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	device := m.device
	ctx := m.ctx
	m.device = nil
	m.ctx = nil
	m.queue = m.queue[:0]
	m.meter.Reset()
	m.monitoring = false
	m.mu.Unlock()

	// Uninit waits for the capture thread to drain, and that thread may be
	// sitting in push waiting for the mutex. Release the device unlocked;
	// any late callback sees monitoring off and does nothing.
	if device != nil {
		device.Uninit()
	}
	if ctx != nil {
		_ = ctx.Uninit()
		ctx.Free()
	}
	goapp.Log.Info().Msg("monitoring stopped")
}

// SetTransmitting toggles frame forwarding without touching the capture
// device or the level signal.
func (m *Monitor) SetTransmitting(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transmitting = on
}

// IsMonitoring reports whether the device is currently held.
func (m *Monitor) IsMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitoring
}

func (m *Monitor) onData(_, pSample []byte, frameCount uint32) {
	samples := BytesToFloat32(pSample, frameCount*Channels)
	frames, level, emitLevel := m.push(samples)
	for _, f := range frames {
		if m.onFrame != nil {
			m.onFrame(f)
		}
	}
	if emitLevel && m.onLevel != nil {
		m.onLevel(level)
	}
}

// push appends encoded samples to the rolling byte queue and slices off
// complete frames at exact sample boundaries. The input callback size and
// the 50 ms frame size are generally not multiples of one another.
func (m *Monitor) push(samples []float32) (frames [][]byte, level float64, emitLevel bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.monitoring {
		return nil, 0, false
	}
	m.queue = append(m.queue, EncodePCM16(samples)...)
	for len(m.queue) >= FrameBytes {
		frame := make([]byte, FrameBytes)
		copy(frame, m.queue[:FrameBytes])
		m.queue = m.queue[FrameBytes:]
		level = m.meter.Update(DecodePCM16(frame))
		emitLevel = true
		if m.transmitting {
			frames = append(frames, frame)
		}
	}
	return frames, level, emitLevel
}
