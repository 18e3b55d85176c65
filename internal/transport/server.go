package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/linebox-server/internal/obslog"
	"github.com/park285/linebox-server/pkg/linedto"
)

// Handler receives decoded client intents. Calls for one connection never overlap.
type Handler interface {
	OnIntent(connID string, in linedto.Intent)
	OnDisconnect(connID string)
}

type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 4096
	}
	return o
}

// Server upgrades HTTP requests to websockets and pumps frames between clients and a Handler.
type Server struct {
	hub     *Hub
	handler Handler
	opts    Options

	wg sync.WaitGroup
}

func NewServer(hub *Hub, handler Handler, opts Options) *Server {
	return &Server{hub: hub, handler: handler, opts: opts.withDefaults()}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.opts.AllowedOrigins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	ws.SetReadLimit(s.opts.ReadLimit)

	c := newConn(uuid.NewString(), s.opts.SendBuffer)
	s.hub.register(c)
	obslog.L().Info("ws_connected", zap.String("conn_id", c.id), zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(context.Background())
	s.wg.Add(3)
	defer s.wg.Done()
	go s.writeLoop(ctx, cancel, ws, c)
	go s.pingLoop(ctx, cancel, ws, c)

	s.readLoop(ctx, ws, c)

	cancel()
	s.hub.unregister(c.id)
	s.handler.OnDisconnect(c.id)
	_ = ws.Close(websocket.StatusNormalClosure, "bye")
	obslog.L().Info("ws_disconnected", zap.String("conn_id", c.id))
}

// Wait blocks until every connection has finished, disconnect handling included, or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Server) readLoop(ctx context.Context, ws *websocket.Conn, c *conn) {
	for {
		typ, raw, err := ws.Read(ctx)
		if err != nil {
			if st := websocket.CloseStatus(err); st == -1 && !errors.Is(err, context.Canceled) {
				obslog.L().Debug("ws_read_error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		in, err := linedto.DecodeIntent(raw)
		if err != nil {
			var de linedto.DomainError
			if !errors.As(err, &de) {
				de = linedto.DomainError{Code: linedto.CodeBadRequest, Message: err.Error()}
			}
			_ = s.hub.Send(c.id, linedto.Message{Type: linedto.EventError, Data: de})
			continue
		}
		s.handler.OnIntent(c.id, in)
	}
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, c *conn) {
	defer s.wg.Done()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kicked:
			if c.kickCode == websocket.StatusGoingAway {
				s.flush(ctx, ws, c)
			}
			_ = ws.Close(c.kickCode, c.kickReason)
			return
		case raw, ok := <-c.send:
			if !ok {
				return
			}
			if !s.write(ctx, ws, c, raw) {
				return
			}
		}
	}
}

// flush writes whatever is already queued, e.g. the final game-over frames at shutdown.
func (s *Server) flush(ctx context.Context, ws *websocket.Conn, c *conn) {
	for {
		select {
		case raw, ok := <-c.send:
			if !ok || !s.write(ctx, ws, c, raw) {
				return
			}
		default:
			return
		}
	}
}

func (s *Server) write(ctx context.Context, ws *websocket.Conn, c *conn, raw []byte) bool {
	wctx, wcancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer wcancel()
	if err := ws.Write(wctx, websocket.MessageText, raw); err != nil {
		obslog.L().Debug("ws_write_error", zap.String("conn_id", c.id), zap.Error(err))
		return false
	}
	return true
}

func (s *Server) pingLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, c *conn) {
	defer s.wg.Done()
	t := time.NewTicker(s.opts.PingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, 3*time.Second)
			err := ws.Ping(pctx)
			pcancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				obslog.L().Info("ws_ping_timeout", zap.String("conn_id", c.id))
				cancel()
				return
			}
		}
	}
}
