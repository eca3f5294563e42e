package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/oklog/ulid/v2"

	"github.com/speechscroll/prompterd/internal/audio"
	"github.com/speechscroll/prompterd/internal/domain"
	"github.com/speechscroll/prompterd/internal/matcher"
	"github.com/speechscroll/prompterd/internal/transport"
)

// Store persists scripts and archived session audio.
type Store interface {
	SaveScript(ctx context.Context, userID string, script *domain.Script) error
	GetScript(ctx context.Context, userID string) (*domain.Script, error)
	SaveAudio(ctx context.Context, id string, chunks [][]byte) error
}

// Capture is the microphone side of the pipeline.
type Capture interface {
	StartMonitoring() error
	StopMonitoring()
	SetTransmitting(on bool)
}

// SpeechLink is the transport side of the pipeline.
type SpeechLink interface {
	Connect(ctx context.Context, credential string) error
	Disconnect()
	SendAudio(frame []byte)
	Transcript() string
}

// Events receives everything the renderer consumes: match position,
// level, status, latency and the raw transcript.
type Events interface {
	OnMatch(st matcher.MatchState)
	OnLevel(level float64)
	OnStatus(state, msg string)
	OnLatency(d time.Duration)
	OnTranscript(text string)
}

// Config wires one session.
type Config struct {
	SpeechURL    string
	UserID       string
	Store        Store
	ArchiveAudio bool
	Events       Events
}

// Session owns one capture-transport-matcher pipeline and its teardown
// order: stop capture, disconnect transport, discard matcher state.
type Session struct {
	ID string

	cfg     Config
	capture Capture
	link    SpeechLink
	match   *matcher.Matcher

	mu        sync.Mutex
	archive   [][]byte
	archiveID string
}

// New creates a session for one renderer connection.
func New(cfg Config) *Session {
	s := &Session{ID: ulid.Make().String(), cfg: cfg, match: matcher.New()}

	client := transport.NewClient(cfg.SpeechURL)
	client.OnTranscript(s.handleTranscript)
	client.OnLatency(func(d time.Duration) { s.cfg.Events.OnLatency(d) })
	client.OnStatus(func(st transport.State, msg string) { s.cfg.Events.OnStatus(st.String(), msg) })
	s.link = client

	s.capture = audio.NewMonitor(s.handleFrame, s.handleLevel)

	goapp.Log.Info().Str("id", s.ID).Str("user", cfg.UserID).Msg("session created")
	return s
}

// SetScript installs a new reference script and persists it.
func (s *Session) SetScript(ctx context.Context, text string) error {
	s.match.SetScript(text)
	if s.cfg.Store == nil {
		return nil
	}
	script := &domain.Script{ID: ulid.Make().String(), Text: text}
	if err := s.cfg.Store.SaveScript(ctx, s.cfg.UserID, script); err != nil {
		return fmt.Errorf("save script: %w", err)
	}
	return nil
}

// LoadScript restores the user's stored script into the matcher. Returns
// the script text, empty when none is stored.
func (s *Session) LoadScript(ctx context.Context) (string, error) {
	if s.cfg.Store == nil {
		return "", nil
	}
	script, err := s.cfg.Store.GetScript(ctx, s.cfg.UserID)
	if err != nil {
		return "", fmt.Errorf("get script: %w", err)
	}
	if script.Text != "" {
		s.match.SetScript(script.Text)
	}
	return script.Text, nil
}

// Connect opens the speech session with the given credential.
func (s *Session) Connect(ctx context.Context, credential string) error {
	return s.link.Connect(ctx, credential)
}

// Disconnect closes the speech session.
func (s *Session) Disconnect() {
	s.link.Disconnect()
}

// StartMonitoring acquires the microphone and resets the reading
// position for a fresh run through the script.
func (s *Session) StartMonitoring() error {
	if err := s.capture.StartMonitoring(); err != nil {
		return err
	}
	s.match.Reset()
	return nil
}

// StopMonitoring releases the microphone and flushes any pending audio
// archive.
func (s *Session) StopMonitoring() {
	s.capture.StopMonitoring()
	s.flushArchive(context.Background())
}

// SetTransmitting toggles forwarding of captured frames to the backend.
// With archiving enabled, switching on begins a new archive and
// switching off stores it.
func (s *Session) SetTransmitting(on bool) {
	s.capture.SetTransmitting(on)
	if !s.cfg.ArchiveAudio {
		return
	}
	if on {
		s.mu.Lock()
		if s.archiveID == "" {
			s.archiveID = ulid.Make().String()
			s.archive = nil
		}
		s.mu.Unlock()
		return
	}
	s.flushArchive(context.Background())
}

// MatchState returns the matcher's current estimate.
func (s *Session) MatchState() matcher.MatchState {
	return s.match.State()
}

// Transcript returns the current reassembled transcript.
func (s *Session) Transcript() string {
	return s.link.Transcript()
}

// Close tears the session down: capture first so no frames chase a
// closing connection, then the transport, then the matcher state.
func (s *Session) Close(ctx context.Context) {
	s.capture.StopMonitoring()
	s.link.Disconnect()
	s.flushArchive(ctx)
	s.match.Reset()
	goapp.Log.Info().Str("id", s.ID).Msg("session closed")
}

func (s *Session) handleFrame(frame []byte) {
	s.link.SendAudio(frame)
	if !s.cfg.ArchiveAudio {
		return
	}
	s.mu.Lock()
	if s.archiveID != "" {
		s.archive = append(s.archive, frame)
	}
	s.mu.Unlock()
}

func (s *Session) handleLevel(level float64) {
	s.cfg.Events.OnLevel(level)
}

func (s *Session) handleTranscript(text string) {
	st := s.match.ProcessTranscript(text)
	s.cfg.Events.OnTranscript(text)
	s.cfg.Events.OnMatch(st)
}

func (s *Session) flushArchive(ctx context.Context) {
	s.mu.Lock()
	chunks := s.archive
	id := s.archiveID
	s.archive = nil
	s.archiveID = ""
	s.mu.Unlock()
	if id == "" || len(chunks) == 0 || s.cfg.Store == nil {
		return
	}
	key := fmt.Sprintf("audio-%s-%s", s.cfg.UserID, id)
	if err := s.cfg.Store.SaveAudio(ctx, key, chunks); err != nil {
		goapp.Log.Error().Err(err).Str("id", key).Msg("can't archive audio")
	}
}
