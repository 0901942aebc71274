package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/video-sub-translator/internal/service"
	"github.com/MimeLyc/video-sub-translator/internal/watcher"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		dir     string
		lang    string
		svc     string
		backlog time.Duration
		useGPU  bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Process every video dropped into the inbox directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Watch.InboxDir
			}
			if dir == "" {
				return errors.New("no inbox directory: pass --dir or set watch.inbox_dir")
			}
			if !cmd.Flags().Changed("gpu") {
				useGPU = cfg.Watch.UseGPU
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

			processor, err := p.syncProcessor()
			if err != nil {
				return err
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

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := janitor.Schedule(runCtx); err != nil {
				return fmt.Errorf("schedule janitor: %w", err)
			}
			cronEngine.Start()
			defer cronEngine.Stop()

			submit := func(jobCtx context.Context, path string) error {
				handle, err := processor.ProcessVideo(jobCtx, service.Request{
					LocalPath:      path,
					TargetLanguage: lang,
					Service:        svc,
					UseGPU:         useGPU,
				})
				if err != nil {
					return err
				}
				result := <-handle.Done()
				if result.Kind == service.CommandError {
					return errors.New(result.Message)
				}
				return nil
			}

			var opts []watcher.Option
			if backlog > 0 {
				opts = append(opts, watcher.WithBacklogSince(time.Now().Add(-backlog)))
			}
			settle := time.Duration(cfg.Watch.SettleMillis) * time.Millisecond

			err = watcher.NewInbox(dir, settle, submit, opts...).Run(runCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Inbox directory (default from config)")
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Target language code (default from config)")
	cmd.Flags().StringVarP(&svc, "service", "s", "", "Translation service: DeepL or ChatGPT")
	cmd.Flags().DurationVar(&backlog, "backlog", 0, "Also process videos modified within this window before startup")
	cmd.Flags().BoolVar(&useGPU, "gpu", false, "Transcribe on the GPU (default from config)")

	return cmd
}
