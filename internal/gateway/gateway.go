package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/linebox-server/internal/board"
	"github.com/park285/linebox-server/internal/matchmaking"
	"github.com/park285/linebox-server/internal/msgcat"
	"github.com/park285/linebox-server/internal/obslog"
	"github.com/park285/linebox-server/internal/persist"
	"github.com/park285/linebox-server/internal/registry"
	"github.com/park285/linebox-server/internal/session"
	"github.com/park285/linebox-server/pkg/linedto"
)

const storeTimeout = 3 * time.Second

// Gateway routes client intents to the queue, registry and sessions.
type Gateway struct {
	reg     *registry.Registry
	queue   *matchmaking.Queue
	out     Broadcaster
	players persist.PlayerStore
	cat     *msgcat.Catalog
}

func New(reg *registry.Registry, queue *matchmaking.Queue, out Broadcaster, players persist.PlayerStore, cat *msgcat.Catalog) *Gateway {
	g := &Gateway{reg: reg, queue: queue, out: out, players: players, cat: cat}
	reg.OnEvict(g.onEvict)
	return g
}

func (g *Gateway) OnIntent(connID string, in linedto.Intent) {
	var err error
	switch in.Type {
	case linedto.IntentJoinQueue:
		err = g.joinQueue(connID, in.JoinQueue)
	case linedto.IntentMove:
		err = g.move(connID, in.Move)
	case linedto.IntentPause:
		err = g.pause(connID)
	case linedto.IntentLeave:
		g.leave(connID)
	case linedto.IntentStats:
		err = g.stats(connID, in.Stats)
	default:
		err = linedto.DomainError{Code: linedto.CodeBadRequest}
	}
	if err != nil {
		g.replyError(connID, in.Type, err)
	}
}

func (g *Gateway) OnDisconnect(connID string) {
	g.leave(connID)
}

func (g *Gateway) joinQueue(connID string, req *linedto.JoinQueueRequest) error {
	if req == nil {
		req = &linedto.JoinQueueRequest{}
	}
	if s := g.reg.FindByConn(connID); s != nil && s.Status() == session.StatusEnded {
		g.leaveSession(connID, s)
	}

	w := matchmaking.Waiting{ConnID: connID, Name: strings.TrimSpace(req.Name)}
	if key := strings.TrimSpace(req.Identity); key != "" && g.players != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		p, err := g.players.FindOrCreatePlayer(ctx, key, w.Name)
		cancel()
		if err != nil {
			return err
		}
		w.PlayerID = p.ID
		if w.Name == "" {
			w.Name = p.Name
		}
	}

	pair, err := g.queue.Join(w)
	if err != nil {
		return err
	}
	if pair == nil {
		pos := g.queue.Position(connID)
		return g.out.Send(connID, linedto.Message{
			Type: linedto.EventQueued,
			Data: linedto.Queued{Position: pos, Notice: g.cat.Text("event.queued", map[string]any{"Position": pos})},
		})
	}
	g.startSession(pair)
	return nil
}

func (g *Gateway) startSession(p *matchmaking.Pair) {
	s := g.reg.Create()
	g.out.Join(s.ID(), p.First.ConnID)
	g.out.Join(s.ID(), p.Second.ConnID)
	for i, w := range []matchmaking.Waiting{p.First, p.Second} {
		slot := session.PlayerSlot{Number: i + 1, Name: w.Name, PlayerID: w.PlayerID, ConnID: w.ConnID}
		if _, err := s.Bind(slot); err != nil {
			obslog.L().Error("gateway_bind_failed", zap.String("session_id", s.ID()), zap.String("conn_id", w.ConnID), zap.Error(err))
		}
	}
	// A player who disconnected while being paired never reaches OnDisconnect with a bound slot.
	for _, w := range []matchmaking.Waiting{p.First, p.Second} {
		if !g.out.Connected(w.ConnID) {
			g.leaveSession(w.ConnID, s)
		}
	}
}

func (g *Gateway) sessionOf(connID string) (*session.Session, int, error) {
	s := g.reg.FindByConn(connID)
	if s == nil {
		return nil, 0, registry.ErrNotFound
	}
	player, ok := s.PlayerNumber(connID)
	if !ok {
		return nil, 0, session.ErrNotAMember
	}
	return s, player, nil
}

func (g *Gateway) move(connID string, req *linedto.MoveRequest) error {
	if req == nil {
		return linedto.DomainError{Code: linedto.CodeBadRequest}
	}
	s, player, err := g.sessionOf(connID)
	if err != nil {
		return err
	}
	return s.SubmitMove(player, board.Line{
		From: board.Coord{Row: req.From.Row, Col: req.From.Col},
		To:   board.Coord{Row: req.To.Row, Col: req.To.Col},
	})
}

func (g *Gateway) pause(connID string) error {
	s, player, err := g.sessionOf(connID)
	if err != nil {
		return err
	}
	_, err = s.TogglePause(player)
	return err
}

func (g *Gateway) leave(connID string) {
	if g.queue.Remove(connID) {
		return
	}
	if s := g.reg.FindByConn(connID); s != nil {
		g.leaveSession(connID, s)
	}
}

// leaveSession unbinds connID and drops the session once nobody is left in it.
func (g *Gateway) leaveSession(connID string, s *session.Session) {
	if _, err := s.Depart(connID); err != nil && !errors.Is(err, session.ErrNotAMember) {
		obslog.L().Warn("gateway_depart_failed", zap.String("session_id", s.ID()), zap.Error(err))
	}
	g.out.Leave(s.ID(), connID)
	if s.PlayerCount() == 0 {
		g.reg.Delete(s.ID())
		g.out.DropGroup(s.ID())
	}
}

func (g *Gateway) stats(connID string, req *linedto.StatsRequest) error {
	if req == nil || strings.TrimSpace(req.Identity) == "" {
		return persist.ErrInvalidKey
	}
	if g.players == nil {
		return persist.ErrPlayerNotFound
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	p, err := g.players.FindPlayer(ctx, req.Identity)
	if err != nil {
		return err
	}
	return g.out.Send(connID, linedto.Message{Type: linedto.EventStats, Data: linedto.Stats{
		Identity:     p.Key,
		Name:         p.Name,
		Played:       p.Stats.Played,
		Wins:         p.Stats.Wins,
		Losses:       p.Stats.Losses,
		Draws:        p.Stats.Draws,
		ScoreFor:     p.Stats.ScoreFor,
		ScoreAgainst: p.Stats.ScoreAgainst,
	}})
}

func (g *Gateway) onEvict(id string, _ session.State) {
	g.out.DropGroup(id)
}

func (g *Gateway) replyError(connID, intent string, err error) {
	code := ErrorCode(err)
	lvl := obslog.L().Debug
	if code == linedto.CodeInternal {
		lvl = obslog.L().Error
	}
	lvl("gateway_intent_rejected",
		zap.String("conn_id", connID),
		zap.String("intent", intent),
		zap.String("code", code),
		zap.Error(err),
	)
	de := linedto.DomainError{Code: code, Message: g.cat.Text("error."+code, nil)}
	if code == linedto.CodeInternal {
		de.Retryable = true
	}
	msg := linedto.Message{Type: linedto.EventError, Data: de}
	if s := g.reg.FindByConn(connID); s != nil {
		msg.SessionID = s.ID()
	}
	_ = g.out.Send(connID, msg)
}
