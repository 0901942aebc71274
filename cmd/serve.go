package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MimeLyc/video-sub-translator/internal/config"
	"github.com/MimeLyc/video-sub-translator/internal/httpapi"
	"github.com/MimeLyc/video-sub-translator/internal/notify"
	"github.com/MimeLyc/video-sub-translator/internal/service"
	"github.com/MimeLyc/video-sub-translator/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run submitted jobs in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if err := ctx.startLogging(cfg); err != nil {
				return err
			}

			unlock, err := acquireLock(cfg)
			if err != nil {
				return err
			}
			defer unlock()

			reportPreflight(cfg)

			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			processor, err := p.threadedProcessor()
			if err != nil {
				return err
			}

			if cfg.Notify.AMQPURL != "" {
				notifier, err := notify.DialAMQP(cfg.Notify.AMQPURL, cfg.Notify.Exchange, cfg.Notify.RoutingKey)
				if err != nil {
					return err
				}
				defer notifier.Close()
				detach := notifier.Attach(processor.Commands())
				defer detach()
				log.Info("Publishing job results to exchange %s", cfg.Notify.Exchange)
			}

			live := p.settings.Config()
			cronEngine := cron.New()
			janitor := service.NewJanitor(
				cfg.Paths.TempDir,
				time.Duration(live.Janitor.MaxAgeHours)*time.Hour,
				live.Janitor.CronExpr,
				cronEngine,
				processor.Current,
			)

			srv := httpapi.NewServer(processor,
				httpapi.WithRuntimeSettingsStore(p.settings),
				httpapi.WithHistory(p.history),
				httpapi.WithEvents(p.events),
				httpapi.WithDeviceProber(p.prober),
			)

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runErr := runWithComponents(runCtx, cfg, janitor, cronEngine, srv)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := processor.Shutdown(shutdownCtx); err != nil {
				log.Warn("Active job did not stop in time: %v", err)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

// runWithComponents schedules the janitor, starts cron and serves HTTP
// until ctx is cancelled.
func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, engine cronEngine, srv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}

	engine.Start()
	defer func() {
		select {
		case <-engine.Stop().Done():
		case <-time.After(shutdownTimeout):
			log.Warn("Scheduled jobs still running at shutdown")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP API listening on %s", cfg.HTTP.Addr)
		err := srv.ListenAndServe(cfg.HTTP.Addr)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			if gctx.Err() == nil {
				return errors.New("http server stopped unexpectedly")
			}
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// acquireLock keeps a second serve or watch process off the same data dir.
func acquireLock(cfg *config.Config) (func(), error) {
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", cfg.LockPath(), err)
	}
	if !locked {
		return nil, fmt.Errorf("another vidsub instance is using %s", cfg.Paths.DataDir)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("Failed to release lock: %v", err)
		}
	}, nil
}
