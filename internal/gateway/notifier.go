package gateway

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/park285/linebox-server/internal/board"
	"github.com/park285/linebox-server/internal/msgcat"
	"github.com/park285/linebox-server/internal/obslog"
	"github.com/park285/linebox-server/internal/session"
	"github.com/park285/linebox-server/pkg/linedto"
)

// Broadcaster is the part of the transport hub the gateway needs.
type Broadcaster interface {
	Join(group, connID string)
	Leave(group, connID string)
	DropGroup(group string)
	Broadcast(group string, v any) error
	Send(connID string, v any) error
	Connected(connID string) bool
}

// Notifier turns session events into wire messages for the session's group.
type Notifier struct {
	out Broadcaster
	cat *msgcat.Catalog
}

func NewNotifier(out Broadcaster, cat *msgcat.Catalog) *Notifier {
	return &Notifier{out: out, cat: cat}
}

func (n *Notifier) Publish(sessionID string, ev session.Event) {
	if ev.Kind == session.EventSessionStarted && ev.State != nil {
		n.sendStarted(sessionID, *ev.State)
		return
	}
	msg := linedto.Message{Type: string(ev.Kind), SessionID: sessionID}
	switch ev.Kind {
	case session.EventStateChanged:
		msg.Data = linedto.StateChanged{State: toState(ev.State), Reason: ev.Reason, Notice: n.stateNotice(ev.Reason)}
	case session.EventTimerTick:
		msg.Data = linedto.TimerTick{SecondsLeft: ev.SecondsLeft}
	case session.EventForcedMove:
		var mv linedto.Line
		if ev.Move != nil {
			mv = toLine(*ev.Move)
		}
		msg.Data = linedto.ForcedMove{
			Move:   mv,
			Reason: ev.Reason,
			Notice: n.cat.Text("event.forced_move", map[string]any{"Player": mv.Player}),
		}
	case session.EventPlayerLeft:
		var p linedto.Player
		if ev.Player != nil {
			p = linedto.Player{Number: ev.Player.Number, Name: ev.Player.Name}
		}
		msg.Data = linedto.PlayerLeft{
			Player: p,
			State:  toState(ev.State),
			Notice: n.cat.Text("event.player_left", map[string]any{"Name": p.Name}),
		}
	case session.EventGameOver:
		st := toState(ev.State)
		msg.Data = linedto.GameOver{Winner: st.Winner, Reason: ev.Reason, State: st, Notice: n.gameOverNotice(st, ev.Reason)}
	default:
		obslog.L().Warn("notify_unknown_event", zap.String("session_id", sessionID), zap.String("kind", string(ev.Kind)))
		return
	}
	if err := n.out.Broadcast(sessionID, msg); err != nil {
		obslog.L().Error("notify_broadcast_failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// sendStarted addresses each player separately so the frame can say which slot they hold.
func (n *Notifier) sendStarted(sessionID string, st session.State) {
	data := map[string]any{"Player1": "", "Player2": ""}
	for _, p := range st.Players {
		data["Player"+strconv.Itoa(p.Number)] = p.Name
	}
	notice := n.cat.Text("event.session_started", data)
	for _, p := range st.Players {
		msg := linedto.Message{
			Type:      linedto.EventSessionStarted,
			SessionID: sessionID,
			Data:      linedto.SessionStarted{You: p.Number, State: toState(&st), Notice: notice},
		}
		if err := n.out.Send(p.ConnID, msg); err != nil {
			obslog.L().Debug("notify_send_failed", zap.String("session_id", sessionID), zap.String("conn_id", p.ConnID), zap.Error(err))
		}
	}
}

func (n *Notifier) stateNotice(reason string) string {
	switch reason {
	case "paused":
		return n.cat.Text("event.paused", nil)
	case "resumed":
		return n.cat.Text("event.resumed", nil)
	}
	return ""
}

func (n *Notifier) gameOverNotice(st linedto.SessionState, reason string) string {
	data := map[string]any{"Winner": st.Winner, "Score1": st.Score[0], "Score2": st.Score[1]}
	switch {
	case reason == session.ReasonAbandoned:
		return n.cat.Text("event.game_over_abandoned", nil)
	case st.Winner == 0:
		return n.cat.Text("event.game_over_draw", data)
	default:
		return n.cat.Text("event.game_over_winner", data)
	}
}

func toState(st *session.State) linedto.SessionState {
	if st == nil {
		return linedto.SessionState{}
	}
	out := linedto.SessionState{
		SessionID: st.ID,
		GridSize:  st.GridSize,
		Status:    string(st.Status),
		Players:   make([]linedto.Player, 0, len(st.Players)),
		Lines:     make([]linedto.Line, 0, len(st.Lines)),
		Regions:   make([]linedto.Region, 0, len(st.Regions)),
		Score:     st.Score,
		Winner:    st.Winner,
		Turn:      st.Turn,
		TimeLeft:  st.TimeLeft,
		Paused:    st.Paused,
		StartedAt: st.StartedAt,
	}
	for _, p := range st.Players {
		out.Players = append(out.Players, linedto.Player{Number: p.Number, Name: p.Name})
	}
	for _, l := range st.Lines {
		out.Lines = append(out.Lines, toLine(l))
	}
	for _, r := range st.Regions {
		out.Regions = append(out.Regions, linedto.Region{ID: r.ID, Row: r.Row, Col: r.Col, Owner: r.Owner})
	}
	return out
}

func toLine(l board.Line) linedto.Line {
	return linedto.Line{
		From:   linedto.Point{Row: l.From.Row, Col: l.From.Col},
		To:     linedto.Point{Row: l.To.Row, Col: l.To.Col},
		Player: l.Player,
	}
}
