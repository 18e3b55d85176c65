package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/linebox-server/internal/adminhttp"
	"github.com/park285/linebox-server/internal/config"
	"github.com/park285/linebox-server/internal/gateway"
	"github.com/park285/linebox-server/internal/matchmaking"
	"github.com/park285/linebox-server/internal/msgcat"
	"github.com/park285/linebox-server/internal/obslog"
	"github.com/park285/linebox-server/internal/persist"
	"github.com/park285/linebox-server/internal/registry"
	"github.com/park285/linebox-server/internal/session"
	"github.com/park285/linebox-server/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.LogOptions()); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("msgcat_init_failed", zap.Error(err))
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Fatal("store_init_failed", zap.Error(err))
	}
	defer closeStore()

	dispatcher := persist.NewDispatcher(store, cfg.DispatchBuffer)
	hub := transport.NewHub()
	reg := registry.New(session.Config{
		GridSize:    cfg.GridSize,
		TurnSeconds: cfg.TurnSeconds,
	}, cfg.IdleTimeout(), gateway.NewNotifier(hub, cat), dispatcher.Submit)
	queue := matchmaking.NewQueue(reg)
	gw := gateway.New(reg, queue, hub, store, cat)

	ws := transport.NewServer(hub, gw, transport.Options{AllowedOrigins: cfg.AllowedOrigins})
	mux := http.NewServeMux()
	mux.Handle("/ws", ws)
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	admin := adminhttp.New(cfg.AdminAddr, func() adminhttp.Snapshot {
		return adminhttp.Snapshot{Sessions: reg.Len(), Queued: queue.Len(), Connections: hub.Len()}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.Maintain(ctx, cfg.SweepInterval())

	go func() {
		logger.Info("ws_listen", zap.String("addr", cfg.ListenAddr), zap.Int("grid_size", cfg.GridSize), zap.Int("turn_seconds", cfg.TurnSeconds))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("ws_listen_failed", zap.Error(err))
		}
	}()
	go func() {
		if err := admin.ListenAndServe(); err != nil {
			logger.Error("admin_listen_failed", zap.Error(err))
		}
	}()

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown", zap.String("signal", sig.String()))

	cancel()
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	_ = httpSrv.Shutdown(sctx)
	reg.Stop()
	hub.CloseAll()
	if err := ws.Wait(sctx); err != nil {
		logger.Warn("ws_drain_timeout", zap.Error(err))
	}
	_ = admin.Shutdown(sctx)
	dispatcher.Close()
}

// openStore picks Redis for players and Postgres for games when configured,
// falling back to memory for whichever is missing.
func openStore(cfg *config.AppConfig) (persist.Store, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	mem := persist.NewMemoryStore()
	var players persist.PlayerStore = mem
	var games persist.GameStore = mem

	if cfg.RedisURL != "" {
		rdb, err := persist.DialRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		players = persist.NewRedisPlayers(rdb)
		obslog.L().Info("store_players", zap.String("backend", "redis"))
	} else {
		obslog.L().Warn("store_players", zap.String("backend", "memory"))
	}

	if cfg.DatabaseURL != "" {
		repo, err := persist.NewGameRepository(cfg.DatabaseURL)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = repo.Close() })
		games = repo
		obslog.L().Info("store_games", zap.String("backend", "postgres"))
	} else {
		obslog.L().Warn("store_games", zap.String("backend", "memory"))
	}
	return persist.NewService(players, games), closeAll, nil
}
