package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/gorilla/websocket"

	"github.com/speechscroll/prompterd/internal/api"
)

// State is the connection lifecycle of one speech session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	}
	return "unknown"
}

var (
	// ErrConnectionTimeout is returned when the session does not come up
	// within the handshake deadline.
	ErrConnectionTimeout = errors.New("connection timeout")
	// ErrAuthenticationFailed marks a credential rejected by the backend.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrConnectionFailed covers every other connection loss.
	ErrConnectionFailed = errors.New("connection failed")
)

const (
	sessionStartMsg = `{"event":"start","format":"pcm16le","rate":16000,"channels":1}`
	sessionStopMsg  = `{"event":"stop"}`

	dialTimeout = 10 * time.Second
)

// Client manages a single logical realtime session against the speech
// backend: it connects, streams audio frames, reassembles out-of-order
// turns into one growing transcript and reports status and latency.
//
// Observers fire outside the client's lock and may query the client, but
// a slow observer delays subsequent events.
type Client struct {
	backendURL string
	dialer     *websocket.Dialer
	timeout    time.Duration

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	attempt    chan struct{}
	attemptErr error
	gen        uint64
	readDone   chan struct{}
	reassembly *Reassembler

	writeMu sync.Mutex

	probe *LatencyProbe

	onTranscript func(text string)
	onLatency    func(d time.Duration)
	onStatus     func(state State, msg string)
}

// NewClient creates a client for the given backend websocket URL.
func NewClient(url string) *Client {
	goapp.Log.Info().Str("be url", url).Send()
	return &Client{
		backendURL: url,
		dialer:     websocket.DefaultDialer,
		timeout:    dialTimeout,
		state:      StateIdle,
		reassembly: NewReassembler(),
		probe:      NewLatencyProbe(),
	}
}

// OnTranscript registers the transcript observer. Last registration wins.
func (c *Client) OnTranscript(f func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTranscript = f
}

// OnLatency registers the latency observer. Last registration wins.
func (c *Client) OnLatency(f func(time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLatency = f
}

// OnStatus registers the status observer. Last registration wins.
func (c *Client) OnStatus(f func(State, string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStatus = f
}

// CurrentState returns the connection state.
func (c *Client) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns the current reassembled transcript.
func (c *Client) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reassembly.Transcript()
}

// Connect opens the session. Calling while connected is a no-op; calling
// while a connect is in flight waits on that attempt instead of racing a
// second socket. The credential is sent as a bearer header and never
// logged.
func (c *Client) Connect(ctx context.Context, credential string) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		ch := c.attempt
		c.mu.Unlock()
		<-ch
		c.mu.Lock()
		err := c.attemptErr
		c.mu.Unlock()
		return err
	}
	ch := make(chan struct{})
	c.attempt = ch
	gen := c.gen
	notify := c.setStateLocked(StateConnecting, "connecting")
	c.mu.Unlock()
	notify()

	conn, first, err := c.dial(ctx, credential)

	c.mu.Lock()
	if c.gen != gen {
		// Disconnect raced the dial. The session stays down, the late
		// socket is dropped.
		c.attemptErr = nil
		c.attempt = nil
		close(ch)
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		goapp.Log.Info().Msg("connect attempt superseded by disconnect")
		return nil
	}
	c.attemptErr = err
	c.attempt = nil
	if err != nil {
		notify = c.setStateLocked(StateError, err.Error())
	} else {
		c.conn = conn
		c.reassembly.Reset()
		c.probe.Reset()
		done := make(chan struct{})
		c.readDone = done
		notify = c.setStateLocked(StateConnected, "connected")
		go c.readLoop(conn, done)
	}
	close(ch)
	c.mu.Unlock()
	notify()
	if err == nil && first != nil {
		c.handleInbound(first)
	}
	return err
}

// dial performs the websocket handshake, sends the session start signal
// and waits for the backend's first message as the ready ack. If that
// first message is already transcript content it is returned for
// delivery.
func (c *Client) dial(ctx context.Context, credential string) (*websocket.Conn, []byte, error) {
	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	deadline, _ := dctx.Deadline()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+credential)

	conn, resp, err := c.dialer.DialContext(dctx, c.backendURL, header)
	if err != nil {
		if errors.Is(dctx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w: no session within %v", ErrConnectionTimeout, c.timeout)
		}
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, nil, fmt.Errorf("%w: backend refused credential", ErrAuthenticationFailed)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(sessionStartMsg)); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%w: send session start: %v", ErrConnectionFailed, err)
	}

	_ = conn.SetReadDeadline(deadline)
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, nil, classifyConnectErr(err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	if sm, derr := api.DecodeSpeech(msg); derr == nil {
		switch sm.Kind {
		case api.KindError:
			_ = conn.Close()
			if isAuthReason(sm.Reason) {
				return nil, nil, fmt.Errorf("%w: %s", ErrAuthenticationFailed, sm.Reason)
			}
			return nil, nil, fmt.Errorf("%w: %s", ErrConnectionFailed, sm.Reason)
		case api.KindTurn, api.KindFlat:
			return conn, msg, nil
		}
	}
	// Anything else is the backend's ready ack.
	return conn, nil, nil
}

// Disconnect sends a graceful termination signal if connected, closes the
// channel, clears turn-reassembly state and returns to idle. It always
// succeeds locally even when the remote is unreachable.
func (c *Client) Disconnect() {
	c.mu.Lock()
	// Invalidate any connect attempt still in flight so a delayed
	// handshake cannot resurrect the session after this call returns.
	c.gen++
	conn := c.conn
	done := c.readDone
	c.conn = nil
	c.readDone = nil
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(sessionStopMsg))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}

	c.mu.Lock()
	c.reassembly.Reset()
	c.probe.Reset()
	notify := c.setStateLocked(StateIdle, "disconnected")
	c.mu.Unlock()
	notify()
}

// SendAudio transmits one PCM16 frame. Frames are silently dropped when
// the session is not connected: for live captioning, stale audio is worse
// than missing audio.
func (c *Client) SendAudio(frame []byte) {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return
	}
	c.writeMu.Lock()
	err := conn.WriteMessage(websocket.BinaryMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		goapp.Log.Error().Err(err).Msg("send audio")
		return
	}
	c.probe.RecordSend()
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		mType, msg, err := conn.ReadMessage()
		if err != nil {
			c.finish(conn, err)
			return
		}
		if mType != websocket.TextMessage {
			continue
		}
		c.handleInbound(msg)
	}
}

func (c *Client) handleInbound(msg []byte) {
	sm, err := api.DecodeSpeech(msg)
	if err != nil {
		// Malformed messages are dropped, they do not tear the session down.
		goapp.Log.Warn().Err(err).Msg("dropping unparseable backend message")
		return
	}
	switch sm.Kind {
	case api.KindError:
		goapp.Log.Error().Str("reason", sm.Reason).Msg("backend error")
		c.mu.Lock()
		state := c.state
		cb := c.onStatus
		c.mu.Unlock()
		if cb != nil {
			cb(state, sm.Reason)
		}
	case api.KindTurn:
		c.mu.Lock()
		text, changed := c.reassembly.Add(sm.TurnOrder, sm.Text)
		c.mu.Unlock()
		if changed {
			c.deliver(text)
		}
	case api.KindFlat:
		c.mu.Lock()
		text, changed := c.reassembly.Replace(sm.Text)
		c.mu.Unlock()
		if changed {
			c.deliver(text)
		}
	}
}

func (c *Client) deliver(text string) {
	c.mu.Lock()
	cbT := c.onTranscript
	cbL := c.onLatency
	c.mu.Unlock()
	if cbT != nil {
		cbT(text)
	}
	if d, ok := c.probe.ObserveDelivery(); ok && cbL != nil {
		cbL(d)
	}
}

func (c *Client) finish(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Closed by Disconnect, state already handled there.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.readDone = nil
	var notify func()
	if isCleanClose(err) {
		notify = c.setStateLocked(StateIdle, "connection closed")
	} else {
		cerr := classifyConnectErr(err)
		goapp.Log.Error().Err(cerr).Msg("connection lost")
		notify = c.setStateLocked(StateError, cerr.Error())
	}
	c.mu.Unlock()
	notify()
	_ = conn.Close()
}

// setStateLocked updates the state under c.mu and returns the observer
// notification to run once the lock is released. Writing to a slow
// renderer from under the lock would stall SendAudio.
func (c *Client) setStateLocked(state State, msg string) func() {
	c.state = state
	goapp.Log.Info().Str("state", state.String()).Str("msg", msg).Msg("connection state")
	cb := c.onStatus
	if cb == nil {
		return func() {}
	}
	return func() { cb(state, msg) }
}

func isCleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed)
}

// classifyConnectErr maps a websocket failure onto the error taxonomy. A
// close reason carrying an authorization-denied indicator is the backend's
// way of rejecting the credential.
func classifyConnectErr(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if isAuthReason(ce.Text) {
			return fmt.Errorf("%w: %s", ErrAuthenticationFailed, ce.Text)
		}
		return fmt.Errorf("%w: close %d %s", ErrConnectionFailed, ce.Code, ce.Text)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrConnectionTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
}

func isAuthReason(reason string) bool {
	r := strings.ToLower(reason)
	return strings.Contains(r, "auth") || strings.Contains(r, "forbidden") ||
		strings.Contains(r, "credential")
}
