package adminhttp

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/linebox-server/internal/obslog"
)

// Snapshot is the body of GET /stats.
type Snapshot struct {
	Sessions    int `json:"sessions"`
	Queued      int `json:"queued"`
	Connections int `json:"connections"`
}

// Server is the operational endpoint: liveness and live counters.
type Server struct {
	addr   string
	source func() Snapshot
	srv    *fasthttp.Server
}

func New(addr string, source func() Snapshot) *Server {
	s := &Server{addr: addr, source: source}
	s.srv = &fasthttp.Server{
		Handler:      s.Handle,
		Name:         "linebox-admin",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}
	switch string(ctx.Path()) {
	case "/healthz":
		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString("ok")
	case "/stats":
		body, err := json.Marshal(s.source())
		if err != nil {
			obslog.L().Error("admin_stats_encode", zap.Error(err))
			ctx.Error("internal error", fasthttp.StatusInternalServerError)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

func (s *Server) ListenAndServe() error {
	obslog.L().Info("admin_listen", zap.String("addr", s.addr))
	return s.srv.ListenAndServe(s.addr)
}

// Serve runs on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}
