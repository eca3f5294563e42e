package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/gorilla/websocket"

	"github.com/speechscroll/prompterd/internal/api"
	"github.com/speechscroll/prompterd/internal/matcher"
	"github.com/speechscroll/prompterd/internal/session"
)

// PrompterHandler serves one renderer client per websocket connection,
// each backed by its own capture-transport-matcher session.
type PrompterHandler struct {
	timeOut      time.Duration
	speechURL    string
	store        session.Store
	archiveAudio bool
}

// NewPrompterHandler creates handler
func NewPrompterHandler(speechURL string, store session.Store, archiveAudio bool) *PrompterHandler {
	res := &PrompterHandler{}
	res.timeOut = time.Minute * 5
	res.speechURL = speechURL
	res.store = store
	res.archiveAudio = archiveAudio
	goapp.Log.Info().Str("speech url", speechURL).Send()
	return res
}

type user struct {
	ID string `json:"id"`
}

func extractUser(req *http.Request) (*user, error) {
	return extractUserTxt(req.URL.Query().Get("user"))
}

func extractUserTxt(txt string) (*user, error) {
	b, err := base64.StdEncoding.DecodeString(txt)
	if err != nil {
		return nil, fmt.Errorf("can't decode user data: %w", err)
	}
	res := &user{}
	if err := json.Unmarshal(b, res); err != nil {
		return nil, fmt.Errorf("can't unmarshal user data: %w", err)
	}
	if res.ID == "" {
		return nil, errors.New("no user ID")
	}
	return res, nil
}

// HandleConnection owns the renderer connection for its whole life: it
// builds the session, streams events out and dispatches commands in.
func (kp *PrompterHandler) HandleConnection(ctx context.Context, conn *websocket.Conn, req *http.Request) error {
	usr, err := extractUser(req)
	if err != nil {
		return fmt.Errorf("can't identify user: %w", err)
	}
	goapp.Log.Info().Str("user", usr.ID).Msg("renderer connected")
	defer conn.Close()

	events := &wsEvents{conn: conn}
	sess := session.New(session.Config{
		SpeechURL:    kp.speechURL,
		UserID:       usr.ID,
		Store:        kp.store,
		ArchiveAudio: kp.archiveAudio,
		Events:       events,
	})
	defer sess.Close(ctx)

	if text, err := sess.LoadScript(ctx); err != nil {
		goapp.Log.Error().Err(err).Msg("can't load script")
	} else if text != "" {
		events.send(&api.RendererEvent{Event: api.EventScript, Text: text})
	}

	for {
		mType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) ||
				errors.Is(err, net.ErrClosed) {
				goapp.Log.Info().Str("user", usr.ID).Msg("renderer disconnected")
				return nil
			}
			goapp.Log.Error().Err(err).Send()
			return nil
		}
		if mType != websocket.TextMessage {
			continue
		}
		var cmd api.RendererCommand
		if err := json.Unmarshal(msg, &cmd); err != nil {
			goapp.Log.Warn().Err(err).Msg("can't parse command")
			continue
		}
		kp.dispatch(ctx, sess, events, &cmd)
	}
}

func (kp *PrompterHandler) dispatch(ctx context.Context, sess *session.Session, events *wsEvents, cmd *api.RendererCommand) {
	goapp.Log.Debug().Str("cmd", cmd.Cmd).Msg("dispatch")
	switch cmd.Cmd {
	case api.CmdConnect:
		// dialing may take up to the connect timeout, keep reading
		// renderer commands meanwhile
		go func() {
			if err := sess.Connect(ctx, cmd.Credential); err != nil {
				goapp.Log.Error().Err(err).Msg("can't connect to speech backend")
			}
		}()
	case api.CmdDisconnect:
		sess.Disconnect()
	case api.CmdStart:
		if err := sess.StartMonitoring(); err != nil {
			goapp.Log.Error().Err(err).Msg("can't start monitoring")
			events.send(&api.RendererEvent{Event: api.EventStatus, State: "error", Message: err.Error()})
		}
	case api.CmdStop:
		sess.StopMonitoring()
	case api.CmdTransmit:
		sess.SetTransmitting(cmd.On)
	case api.CmdScript:
		if err := sess.SetScript(ctx, cmd.Text); err != nil {
			goapp.Log.Error().Err(err).Msg("can't save script")
			events.send(&api.RendererEvent{Event: api.EventStatus, State: "error", Message: err.Error()})
		}
	default:
		goapp.Log.Warn().Str("cmd", cmd.Cmd).Msg("unknown command")
	}
}

// wsEvents pushes session events to the renderer. Writes are serialized,
// events arrive from the capture, transport and command goroutines.
type wsEvents struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsEvents) send(ev *api.RendererEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteJSON(ev); err != nil {
		goapp.Log.Debug().Err(err).Msg("can't write event")
	}
}

func (w *wsEvents) OnMatch(st matcher.MatchState) {
	w.send(&api.RendererEvent{
		Event:      api.EventMatch,
		WordIndex:  st.CurrentWordIndex,
		Confidence: st.Confidence,
		Active:     st.IsActive,
	})
}

func (w *wsEvents) OnLevel(level float64) {
	w.send(&api.RendererEvent{Event: api.EventLevel, Level: level})
}

func (w *wsEvents) OnStatus(state, msg string) {
	w.send(&api.RendererEvent{Event: api.EventStatus, State: state, Message: msg})
}

func (w *wsEvents) OnLatency(d time.Duration) {
	w.send(&api.RendererEvent{Event: api.EventLatency, LatencyMS: d.Milliseconds()})
}

func (w *wsEvents) OnTranscript(text string) {
	w.send(&api.RendererEvent{Event: api.EventTranscript, Text: text})
}
