package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/speechscroll/prompterd/internal/domain"
	"github.com/speechscroll/prompterd/internal/matcher"
)

type fakeCapture struct {
	started      bool
	stopped      int
	transmitting bool
	startErr     error
}

func (f *fakeCapture) StartMonitoring() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeCapture) StopMonitoring() {
	f.started = false
	f.stopped++
}

func (f *fakeCapture) SetTransmitting(on bool) { f.transmitting = on }

type fakeLink struct {
	connected    bool
	disconnects  int
	frames       [][]byte
	credential   string
	transcript   string
	connectErr   error
}

func (f *fakeLink) Connect(_ context.Context, credential string) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.credential = credential
	return nil
}

func (f *fakeLink) Disconnect() {
	f.connected = false
	f.disconnects++
}

func (f *fakeLink) SendAudio(frame []byte) { f.frames = append(f.frames, frame) }

func (f *fakeLink) Transcript() string { return f.transcript }

type fakeStore struct {
	scripts map[string]*domain.Script
	audio   map[string][][]byte
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{scripts: map[string]*domain.Script{}, audio: map[string][][]byte{}}
}

func (f *fakeStore) SaveScript(_ context.Context, userID string, script *domain.Script) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.scripts[userID] = script
	return nil
}

func (f *fakeStore) GetScript(_ context.Context, userID string) (*domain.Script, error) {
	if s, ok := f.scripts[userID]; ok {
		return s, nil
	}
	return &domain.Script{}, nil
}

func (f *fakeStore) SaveAudio(_ context.Context, id string, chunks [][]byte) error {
	f.audio[id] = chunks
	return nil
}

type recordedEvents struct {
	matches     []matcher.MatchState
	levels      []float64
	states      []string
	latencies   []time.Duration
	transcripts []string
}

func (r *recordedEvents) OnMatch(st matcher.MatchState)    { r.matches = append(r.matches, st) }
func (r *recordedEvents) OnLevel(level float64)            { r.levels = append(r.levels, level) }
func (r *recordedEvents) OnStatus(state, msg string)       { r.states = append(r.states, state) }
func (r *recordedEvents) OnLatency(d time.Duration)        { r.latencies = append(r.latencies, d) }
func (r *recordedEvents) OnTranscript(text string)         { r.transcripts = append(r.transcripts, text) }

func newTestSession(cfg Config) (*Session, *fakeCapture, *fakeLink) {
	capture := &fakeCapture{}
	link := &fakeLink{}
	s := &Session{ID: "test", cfg: cfg, capture: capture, link: link, match: matcher.New()}
	return s, capture, link
}

func TestSession_FramesForwarded(t *testing.T) {
	events := &recordedEvents{}
	s, _, link := newTestSession(Config{Events: events})
	s.handleFrame([]byte{1, 2})
	s.handleFrame([]byte{3, 4})
	if len(link.frames) != 2 {
		t.Fatalf("expected 2 frames sent, got %d", len(link.frames))
	}
}

func TestSession_TranscriptDrivesMatcher(t *testing.T) {
	events := &recordedEvents{}
	s, _, _ := newTestSession(Config{Events: events})
	s.match.SetScript("the quick brown fox")

	s.handleTranscript("the quick")
	if len(events.transcripts) != 1 || events.transcripts[0] != "the quick" {
		t.Fatalf("transcript event failed: %v", events.transcripts)
	}
	if len(events.matches) != 1 {
		t.Fatalf("expected one match event, got %d", len(events.matches))
	}
	if !events.matches[0].IsActive || events.matches[0].CurrentWordIndex != 1 {
		t.Fatalf("unexpected match state: %+v", events.matches[0])
	}
}

func TestSession_LevelForwarded(t *testing.T) {
	events := &recordedEvents{}
	s, _, _ := newTestSession(Config{Events: events})
	s.handleLevel(0.42)
	if len(events.levels) != 1 || events.levels[0] != 0.42 {
		t.Fatalf("level event failed: %v", events.levels)
	}
}

func TestSession_SetScriptPersists(t *testing.T) {
	store := newFakeStore()
	s, _, _ := newTestSession(Config{UserID: "u1", Store: store, Events: &recordedEvents{}})
	if err := s.SetScript(context.Background(), "hello world"); err != nil {
		t.Fatalf("set script failed: %v", err)
	}
	saved, ok := store.scripts["u1"]
	if !ok || saved.Text != "hello world" {
		t.Fatalf("script not stored: %+v", saved)
	}
	if len(s.match.Tokens()) != 2 {
		t.Fatalf("matcher not updated, tokens: %d", len(s.match.Tokens()))
	}
}

func TestSession_SetScriptStoreError(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("redis down")
	s, _, _ := newTestSession(Config{UserID: "u1", Store: store, Events: &recordedEvents{}})
	err := s.SetScript(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "redis down") {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestSession_LoadScript(t *testing.T) {
	store := newFakeStore()
	store.scripts["u1"] = &domain.Script{ID: "s1", Text: "saved script text"}
	s, _, _ := newTestSession(Config{UserID: "u1", Store: store, Events: &recordedEvents{}})
	text, err := s.LoadScript(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if text != "saved script text" {
		t.Fatalf("unexpected text: %s", text)
	}
	if len(s.match.Tokens()) != 3 {
		t.Fatalf("matcher not updated, tokens: %d", len(s.match.Tokens()))
	}
}

func TestSession_LoadScriptEmpty(t *testing.T) {
	s, _, _ := newTestSession(Config{UserID: "u1", Store: newFakeStore(), Events: &recordedEvents{}})
	text, err := s.LoadScript(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
}

func TestSession_StartMonitoringResetsMatcher(t *testing.T) {
	s, capture, _ := newTestSession(Config{Events: &recordedEvents{}})
	s.match.SetScript("one two three")
	s.handleTranscript("one two")
	if s.MatchState().CurrentWordIndex != 1 {
		t.Fatalf("setup match failed: %+v", s.MatchState())
	}
	if err := s.StartMonitoring(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !capture.started {
		t.Fatalf("capture not started")
	}
	st := s.MatchState()
	if st.IsActive || st.CurrentWordIndex != 0 {
		t.Fatalf("matcher not reset: %+v", st)
	}
}

func TestSession_StartMonitoringError(t *testing.T) {
	s, capture, _ := newTestSession(Config{Events: &recordedEvents{}})
	capture.startErr = errors.New("device busy")
	if err := s.StartMonitoring(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSession_ArchiveLifecycle(t *testing.T) {
	store := newFakeStore()
	s, capture, _ := newTestSession(Config{UserID: "u1", Store: store, ArchiveAudio: true, Events: &recordedEvents{}})

	s.SetTransmitting(true)
	if !capture.transmitting {
		t.Fatalf("transmit not enabled")
	}
	s.handleFrame([]byte{1, 2})
	s.handleFrame([]byte{3, 4})
	s.SetTransmitting(false)

	if len(store.audio) != 1 {
		t.Fatalf("expected one archive, got %d", len(store.audio))
	}
	for id, chunks := range store.audio {
		if !strings.HasPrefix(id, "audio-u1-") {
			t.Fatalf("unexpected archive id: %s", id)
		}
		if len(chunks) != 2 {
			t.Fatalf("expected 2 chunks, got %d", len(chunks))
		}
	}
}

func TestSession_NoArchiveWhenDisabled(t *testing.T) {
	store := newFakeStore()
	s, _, _ := newTestSession(Config{UserID: "u1", Store: store, Events: &recordedEvents{}})
	s.SetTransmitting(true)
	s.handleFrame([]byte{1, 2})
	s.SetTransmitting(false)
	if len(store.audio) != 0 {
		t.Fatalf("expected no archives, got %d", len(store.audio))
	}
}

func TestSession_CloseTeardownOrder(t *testing.T) {
	s, capture, link := newTestSession(Config{Events: &recordedEvents{}})
	s.match.SetScript("one two")
	s.handleTranscript("one two")
	link.connected = true
	capture.started = true

	s.Close(context.Background())
	if capture.started {
		t.Fatalf("capture still running")
	}
	if link.connected || link.disconnects != 1 {
		t.Fatalf("link not disconnected")
	}
	if st := s.MatchState(); st.IsActive {
		t.Fatalf("matcher state not discarded: %+v", st)
	}
}

func TestSession_ConnectPassesCredential(t *testing.T) {
	s, _, link := newTestSession(Config{Events: &recordedEvents{}})
	if err := s.Connect(context.Background(), "secret-key"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if link.credential != "secret-key" {
		t.Fatalf("credential not passed through")
	}
}
