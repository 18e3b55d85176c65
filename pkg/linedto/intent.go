package linedto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound intent names.
const (
	IntentJoinQueue = "join_queue"
	IntentMove      = "move"
	IntentPause     = "pause"
	IntentLeave     = "leave"
	IntentStats     = "stats"
)

// Envelope is the frame every client message arrives in.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Point struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type JoinQueueRequest struct {
	Name     string `json:"name"`
	Identity string `json:"identity,omitempty"`
}

type MoveRequest struct {
	From Point `json:"from"`
	To   Point `json:"to"`
}

type StatsRequest struct {
	Identity string `json:"identity"`
}

// Intent is a decoded client message. Exactly one payload pointer matches Type.
type Intent struct {
	Type      string
	JoinQueue *JoinQueueRequest
	Move      *MoveRequest
	Stats     *StatsRequest
}

// DecodeIntent parses one client frame. Errors are DomainError with CodeBadRequest.
func DecodeIntent(raw []byte) (Intent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Intent{}, badRequest("malformed frame: %v", err)
	}
	in := Intent{Type: strings.TrimSpace(env.Type)}
	switch in.Type {
	case IntentJoinQueue:
		in.JoinQueue = &JoinQueueRequest{}
		if err := decodeData(env.Data, in.JoinQueue); err != nil {
			return Intent{}, err
		}
	case IntentMove:
		in.Move = &MoveRequest{}
		if len(env.Data) == 0 {
			return Intent{}, badRequest("move requires from and to")
		}
		if err := decodeData(env.Data, in.Move); err != nil {
			return Intent{}, err
		}
	case IntentStats:
		in.Stats = &StatsRequest{}
		if err := decodeData(env.Data, in.Stats); err != nil {
			return Intent{}, err
		}
	case IntentPause, IntentLeave:
	default:
		return Intent{}, badRequest("unknown intent %q", env.Type)
	}
	return in, nil
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return badRequest("invalid data: %v", err)
	}
	return nil
}

func badRequest(format string, args ...any) DomainError {
	return DomainError{Code: CodeBadRequest, Message: fmt.Sprintf(format, args...)}
}
