package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"tailscale.com/tsnet"

	"github.com/claude/eruna/internal/api"
	"github.com/claude/eruna/internal/config"
	"github.com/claude/eruna/internal/logging"
	erunamcp "github.com/claude/eruna/internal/mcp"
	"github.com/claude/eruna/internal/metrics"
	"github.com/claude/eruna/internal/server"
	"github.com/claude/eruna/internal/session"
	"github.com/claude/eruna/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	bootLog := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		bootLog.Error("eruna failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) (err error) {
	log, logCloser := logging.New(cfg.Log)
	defer func() { err = multierr.Append(err, logCloser.Close()) }()
	log.Info("eruna starting", "version", Version)

	ctx := context.Background()

	// Snapshot backend
	snaps, err := storage.Open(ctx, cfg.Store, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer func() { err = multierr.Append(err, snaps.Close()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewManager("eruna", "server", reg)

	client := api.NewClient(cfg.API.BaseURL, api.Options{
		Timeout:       cfg.API.Timeout,
		LookupCacheMB: cfg.API.LookupCacheMB,
		LookupTTL:     cfg.API.LookupTTL,
	}, log)

	store := session.NewStore(log)
	svc := session.NewService(store, snaps, client, session.NewReconciler(client, m, log), m, log)

	// Hydrate live sessions from the last run
	if _, err := svc.Restore(ctx); err != nil {
		log.Warn("some sessions could not be restored", "error", err)
	}

	srv := server.New(svc, client, m, reg, cfg.Auth.APIKey, log)

	// MCP over streamable HTTP, driving the same live sessions
	mcpSrv := erunamcp.New(erunamcp.NewLocal(svc, client), Version, log)
	srv.Mount("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv))

	// Start server on the tailnet or plain TCP
	var listener net.Listener

	if cfg.Tailscale.Enabled {
		tsServer := &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			return fmt.Errorf("tsnet start: %w", err)
		}
		defer func() { err = multierr.Append(err, tsServer.Close()) }()

		lc, err := tsServer.LocalClient()
		if err != nil {
			return fmt.Errorf("tsnet local client: %w", err)
		}
		srv.SetTailscale(lc)

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			return fmt.Errorf("tsnet listen: %w", err)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv, ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", "signal", sig)
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped", "live_sessions", len(svc.List()))
	return nil
}
