package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tokenscope/internal/config"
	"tokenscope/internal/feed"
	"tokenscope/internal/metadata"
	"tokenscope/internal/observability"
	"tokenscope/internal/storage/memory"
)

func newFeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Stream newly created tokens",
		RunE:  runFeed,
	}

	cmd.Flags().String("feed-url", config.DefaultFeedURL, "token feed websocket URL")
	cmd.Flags().Duration("reconnect-delay", config.DefaultReconnectDelay, "delay before reconnecting (initial delay for exponential backoff)")
	cmd.Flags().String("backoff", config.BackoffFixed, "reconnect backoff (fixed, exponential)")
	cmd.Flags().Int("max-reconnects", 0, "give up after this many reconnect attempts, 0 retries forever")
	cmd.Flags().Duration("metadata-timeout", config.DefaultMetadataTimeout, "per-token metadata fetch timeout")
	cmd.Flags().String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")

	return cmd
}

func runFeed(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	cfg, logger := a.cfg, a.logger
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	fetcher := metadata.NewFetcher(
		metadata.WithTimeout(cfg.MetadataTimeout),
		metadata.WithCache(memory.NewImageCache(memory.DefaultImageCacheSize)),
		metadata.WithLogger(logger),
	)

	m := feed.NewManager(feed.Options{
		Dialer:   feed.NewWSDialer(cfg.FeedURL, nil),
		Enricher: fetcher,
		Policy:   reconnectPolicy(cfg),
		Logger:   logger,
	})

	logger.Info("feed start",
		zap.String("url", cfg.FeedURL),
		zap.String("backoff", cfg.Backoff),
		zap.Duration("reconnect_delay", cfg.ReconnectDelay),
		zap.Int("max_reconnects", cfg.MaxReconnects),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(ctx)
	}()

	r := newRenderer(cmd.OutOrStdout())
	for {
		select {
		case <-m.Updates():
			r.Render(m.View())
		case err := <-errCh:
			if errors.Is(err, context.Canceled) {
				logger.Info("feed stopped")
				return nil
			}
			return err
		}
	}
}

func reconnectPolicy(cfg config.Config) feed.Policy {
	if cfg.Backoff == config.BackoffExponential {
		p := feed.DefaultExponentialPolicy()
		p.InitialDelay = cfg.ReconnectDelay
		if p.MaxDelay < p.InitialDelay {
			p.MaxDelay = p.InitialDelay
		}
		p.MaxAttempts = cfg.MaxReconnects
		return p
	}
	return feed.FixedPolicy{Delay: cfg.ReconnectDelay, MaxAttempts: cfg.MaxReconnects}
}

func startMetricsServer(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics server start", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

// renderer prints status changes, new entries and resolved images as
// they appear in successive views.
type renderer struct {
	out        io.Writer
	lastStatus feed.Status
	started    bool
	seen       map[uint64]bool // generation -> image printed
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, seen: make(map[uint64]bool)}
}

func (r *renderer) Render(v feed.View) {
	if !r.started || v.Status != r.lastStatus {
		r.started = true
		r.lastStatus = v.Status
		if v.Status.Err != "" {
			fmt.Fprintf(r.out, "[%s] %s\n", v.Status.State, v.Status.Err)
		} else {
			fmt.Fprintf(r.out, "[%s]\n", v.Status.State)
		}
	}

	live := make(map[uint64]bool, len(v.Entries))
	// Oldest first so output reads in arrival order.
	for i := len(v.Entries) - 1; i >= 0; i-- {
		e := v.Entries[i]
		live[e.Generation] = true

		imagePrinted, known := r.seen[e.Generation]
		if !known {
			fmt.Fprintf(r.out, "+ %-10s %-24s %s\n", e.Symbol, e.Name, e.Mint)
		}
		if e.ImageURL != "" && !imagePrinted {
			fmt.Fprintf(r.out, "  %-10s image %s\n", e.Symbol, e.ImageURL)
			imagePrinted = true
		}
		r.seen[e.Generation] = imagePrinted
	}

	for gen := range r.seen {
		if !live[gen] {
			delete(r.seen, gen)
		}
	}
}
