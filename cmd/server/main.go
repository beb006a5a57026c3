// Package main is the entry point for the optionsim binary-options trading
// simulator.  It wires together the price feed, position ledger, advisor, and
// local store, then starts the HTTP server alongside the WebSocket hub and
// background scheduler.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/velora/optionsim/internal/advisor"
	"github.com/velora/optionsim/internal/api"
	"github.com/velora/optionsim/internal/config"
	"github.com/velora/optionsim/internal/ledger"
	"github.com/velora/optionsim/internal/market"
	"github.com/velora/optionsim/internal/scheduler"
	"github.com/velora/optionsim/internal/store"
	"github.com/velora/optionsim/internal/ws"
)

func main() {
	// ── 1. Environment + logger ───────────────────────────────────────────────
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting optionsim server",
		"env", cfg.Server.Env, "port", cfg.Server.Port, "symbol", cfg.Trading.Symbol)

	// ── 2. Local store ────────────────────────────────────────────────────────
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("store open failed", "path", cfg.Store.Path, "err", err)
		os.Exit(1)
	}
	logger.Info("store opened", "path", cfg.Store.Path)

	// ── 3. Market feed + candle cache ─────────────────────────────────────────
	feed := market.NewClient(cfg)
	cache := market.NewCandleCache()

	// ── 4. Ledger ─────────────────────────────────────────────────────────────
	book := ledger.New(cfg, st)

	rec, err := st.LoadLedger(context.Background())
	if err != nil {
		logger.Error("ledger restore failed", "err", err)
		os.Exit(1)
	}
	if rec != nil {
		book.Restore(rec)
		logger.Info("ledger restored",
			"balance", rec.Balance,
			"open", len(rec.ActivePositions),
			"closed", len(rec.ClosedPositions))
	}

	// ── 5. Advisor ────────────────────────────────────────────────────────────
	adv := advisor.New(feed, cfg)

	// Seed the persisted provider record on first boot so the config endpoint
	// always has something to serve.
	pcfg, err := st.LoadAdvisorConfig(context.Background())
	if err != nil {
		logger.Error("advisor config load failed", "err", err)
		os.Exit(1)
	}
	if pcfg == nil {
		seed := advisor.DefaultConfig(cfg)
		if err := st.SaveAdvisorConfig(context.Background(), seed); err != nil {
			logger.Warn("advisor config seed failed", "err", err)
		}
	}

	// ── 6. WebSocket hub ──────────────────────────────────────────────────────
	hub := ws.NewHub(cfg.Server.AllowedOrigins)
	book.SetBroadcaster(hub)

	// ── 7. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go hub.Run()
	logger.Info("websocket hub started")

	// ── 8. Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.New(feed, book, cache, hub, cfg, logger)
	sched.Start(ctx)

	// ── 9. HTTP router ────────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		Ledger:  book,
		Feed:    feed,
		Cache:   cache,
		Advisor: adv,
		Store:   st,
		Hub:     hub,
		Cfg:     cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 10. Start server ──────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 11. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}

	if err = st.Close(); err != nil {
		logger.Error("store close error", "err", err)
	}
	logger.Info("server stopped cleanly")
}
