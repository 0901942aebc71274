package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/video-sub-translator/internal/service"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var req service.Request

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run one video through the pipeline and wait for the result",
		Example: `  vidsub process --url https://example.com/talk.mp4 --lang FR
  vidsub process --file ./lecture.mkv --lang DE --service ChatGPT --gpu`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := ctx.startLogging(cfg); err != nil {
				return err
			}

			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			processor, err := p.syncProcessor()
			if err != nil {
				return err
			}
			unsubscribe := p.events.Subscribe(newProgressPrinter(cmd.ErrOrStderr()))
			defer unsubscribe()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			handle, err := processor.ProcessVideo(runCtx, req)
			if err != nil {
				return err
			}
			result, err := handle.Wait(context.Background())
			if err != nil {
				return err
			}
			return printCommand(cmd, result)
		},
	}

	cmd.Flags().StringVar(&req.SourceURL, "url", "", "Video URL to download")
	cmd.Flags().StringVar(&req.LocalPath, "file", "", "Local video file")
	cmd.Flags().StringVarP(&req.TargetLanguage, "lang", "l", "", "Target language code (default from config)")
	cmd.Flags().StringVarP(&req.Service, "service", "s", "", "Translation service: DeepL or ChatGPT")
	cmd.Flags().BoolVar(&req.UseGPU, "gpu", false, "Transcribe on the GPU when one fits the model")

	return cmd
}

func printCommand(cmd *cobra.Command, result service.Command) error {
	out := cmd.OutOrStdout()
	switch result.Kind {
	case service.CommandDone:
		fmt.Fprintf(out, "Job %s done: %s\n", result.JobID, result.VideoFolder)
		return nil
	case service.CommandCancelled:
		fmt.Fprintf(out, "Job %s cancelled\n", result.JobID)
		return context.Canceled
	default:
		return fmt.Errorf("job %s failed: %s", result.JobID, result.Message)
	}
}
