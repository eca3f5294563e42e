package api

import (
	"encoding/json"
	"fmt"
)

// MessageKind tags the variant of an inbound speech message.
type MessageKind int

const (
	// KindTurn is a transcript fragment carrying a turn-order number.
	KindTurn MessageKind = iota
	// KindFlat is a full incremental transcript with no turn numbering.
	KindFlat
	// KindError is an out-of-band error report from the backend.
	KindError
)

// SpeechMessage is one decoded inbound message from the speech backend.
type SpeechMessage struct {
	Kind      MessageKind
	TurnOrder uint64
	Text      string
	Reason    string
}

type speechEnvelope struct {
	TurnOrder  *uint64 `json:"turnOrder,omitempty"`
	Text       string  `json:"text,omitempty"`
	Transcript *string `json:"transcript,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// DecodeSpeech parses a raw backend message into its tagged variant.
func DecodeSpeech(data []byte) (*SpeechMessage, error) {
	var env speechEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode speech message: %w", err)
	}
	if env.Error != "" {
		return &SpeechMessage{Kind: KindError, Reason: env.Error}, nil
	}
	if env.TurnOrder != nil {
		return &SpeechMessage{Kind: KindTurn, TurnOrder: *env.TurnOrder, Text: env.Text}, nil
	}
	if env.Transcript != nil {
		return &SpeechMessage{Kind: KindFlat, Text: *env.Transcript}, nil
	}
	return nil, fmt.Errorf("speech message has neither turnOrder, transcript nor error")
}

const (
	EventMatch      = "match"
	EventLevel      = "level"
	EventStatus     = "status"
	EventLatency    = "latency"
	EventTranscript = "transcript"
	EventScript     = "script"
)

// RendererEvent is one outbound message to the renderer client.
type RendererEvent struct {
	Event      string  `json:"event"`
	WordIndex  int     `json:"wordIndex,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Active     bool    `json:"active,omitempty"`
	Level      float64 `json:"level,omitempty"`
	State      string  `json:"state,omitempty"`
	Message    string  `json:"message,omitempty"`
	LatencyMS  int64   `json:"latencyMs,omitempty"`
	Text       string  `json:"text,omitempty"`
}

const (
	CmdConnect    = "connect"
	CmdDisconnect = "disconnect"
	CmdStart      = "start"
	CmdStop       = "stop"
	CmdTransmit   = "transmit"
	CmdScript     = "script"
)

// RendererCommand is one inbound control message from the renderer client.
type RendererCommand struct {
	Cmd        string `json:"cmd"`
	Credential string `json:"credential,omitempty"`
	On         bool   `json:"on,omitempty"`
	Text       string `json:"text,omitempty"`
}
