package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/claude/eruna/internal/api"
	"github.com/claude/eruna/internal/config"
	"github.com/claude/eruna/internal/logging"
	"github.com/claude/eruna/internal/metrics"
	"github.com/claude/eruna/internal/session"
	"github.com/claude/eruna/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Stats summarizes one retry run.
type Stats struct {
	Restored int
	Pending  int
	Deferred int
	Saved    int
	Failed   int
	Entries  int
}

// options controls one retry run.
type options struct {
	DryRun bool
	// MinAge skips sessions finished more recently than this, since the
	// server may still be saving them.
	MinAge time.Duration
	// From reads sessions from a dump file instead of the store backend.
	From string
	// Dump writes the loaded sessions to a file before anything is sent.
	Dump string
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "list sessions waiting to be saved but don't send them")
	minAge := flag.Duration("min-age", 10*time.Minute, "skip sessions finished more recently than this")
	from := flag.String("from", "", "read sessions from a dump file instead of the store backend")
	dump := flag.String("dump", "", "write the loaded sessions to this file before saving")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall time limit")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("eruna-retry", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, logCloser := logging.New(cfg.Log)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)

	opts := options{DryRun: *dryRun, MinAge: *minAge, From: *from, Dump: *dump}
	stats, err := run(ctx, cfg, opts, log)
	cancel()
	printStats(stats, *dryRun)
	if err = multierr.Append(err, logCloser.Close()); err != nil {
		log.Error("retry failed", "error", err)
		os.Exit(1)
	}
}

// run restores every snapshot and saves the completed sessions among them.
// Sessions that fail stay in the backend for the next run. The server guards
// against saving one session twice only within its own process, so sessions
// finished less than MinAge ago are left to it.
func run(ctx context.Context, cfg *config.Config, opts options, log *slog.Logger) (stats Stats, err error) {
	store := session.NewStore(log)
	var snaps storage.Backend
	if opts.From != "" {
		data, err := os.ReadFile(opts.From)
		if err != nil {
			return stats, fmt.Errorf("reading dump: %w", err)
		}
		if err := store.Hydrate(data); err != nil {
			return stats, fmt.Errorf("loading dump %s: %w", opts.From, err)
		}
		// the dump file itself is never rewritten
		snaps = storage.NewMemory()
	} else {
		snaps, err = storage.Open(ctx, cfg.Store, cfg.Database, log)
		if err != nil {
			return stats, fmt.Errorf("opening session store: %w", err)
		}
	}
	defer func() { err = multierr.Append(err, snaps.Close()) }()

	m := metrics.NewManager("eruna", "retry", prometheus.NewRegistry())
	client := api.NewClient(cfg.API.BaseURL, api.Options{
		Timeout:       cfg.API.Timeout,
		LookupCacheMB: cfg.API.LookupCacheMB,
		LookupTTL:     cfg.API.LookupTTL,
	}, log)
	svc := session.NewService(store, snaps, client, session.NewReconciler(client, m, log), m, log)

	if opts.From != "" {
		stats.Restored = store.Len()
	} else if stats.Restored, err = svc.Restore(ctx); err != nil {
		log.Warn("some sessions could not be restored", "error", err)
		err = nil
	}

	if opts.Dump != "" {
		data, err := store.Serialize()
		if err != nil {
			return stats, err
		}
		if err := os.WriteFile(opts.Dump, data, 0o600); err != nil {
			return stats, fmt.Errorf("writing dump: %w", err)
		}
		log.Info("sessions dumped", "path", opts.Dump, "count", stats.Restored)
	}

	cutoff := time.Now().Add(-opts.MinAge)
	var pending []*session.Session
	for _, s := range svc.Completed() {
		if s.EndedAt != nil && s.EndedAt.After(cutoff) {
			stats.Deferred++
			log.Info("session finished recently, leaving it to the server", "session_id", s.ID, "ended_at", s.EndedAt)
			continue
		}
		pending = append(pending, s)
	}
	stats.Pending = len(pending)
	if opts.DryRun {
		for _, s := range pending {
			log.Info("would save session", "session_id", s.ID, "routine_id", s.RoutineID, "sets", s.RecordedSets())
		}
		return stats, nil
	}

	var errs error
	for _, s := range pending {
		res, ferr := svc.Finish(ctx, s.ID)
		if ferr != nil {
			stats.Failed++
			errs = multierr.Append(errs, ferr)
			continue
		}
		stats.Saved++
		stats.Entries += res.Entries
		log.Info("session saved", "session_id", s.ID, "record_id", res.RecordID, "entries", res.Entries)
	}
	return stats, errs
}

func printStats(stats Stats, dryRun bool) {
	fmt.Println()
	fmt.Println("=== Retry Summary ===")
	fmt.Printf("  Sessions restored:  %d\n", stats.Restored)
	fmt.Printf("  Waiting to save:    %d\n", stats.Pending)
	fmt.Printf("  Finished recently:  %d\n", stats.Deferred)
	if dryRun {
		fmt.Println("  (dry run, nothing sent)")
		fmt.Println()
		return
	}
	fmt.Printf("  Saved:              %d\n", stats.Saved)
	fmt.Printf("  Failed:             %d\n", stats.Failed)
	fmt.Printf("  Entries written:    %d\n", stats.Entries)
	fmt.Println()
}
