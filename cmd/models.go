package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/video-sub-translator/internal/transcribe"
	"github.com/MimeLyc/video-sub-translator/pkg/executor"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List Whisper model tiers and whether they fit this machine's GPU",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ctx.quietLogging(cfg)

			info := transcribe.NewNvidiaSMIProber(executor.New()).Probe(cmd.Context())
			current, _ := transcribe.ParseModelTier(cfg.Whisper.Model)

			out := cmd.OutOrStdout()
			if info.CUDA {
				fmt.Fprintf(out, "GPU: %s (%.1f GB)\n", info.GPUName, info.VRAMGB)
			} else {
				fmt.Fprintln(out, "GPU: none detected, transcription runs on CPU")
			}
			fmt.Fprintln(out, renderModels(current, info))
			return nil
		},
	}
}

func renderModels(current transcribe.ModelTier, info transcribe.DeviceInfo) string {
	rows := make([][]string, 0, len(transcribe.AllTiers()))
	for _, tier := range transcribe.AllTiers() {
		res := tier.Resources()
		device, _ := transcribe.SelectDevice(tier, true, info)
		name := tier.String()
		if tier == current {
			name += " *"
		}
		rows = append(rows, []string{
			name,
			fmt.Sprintf("%.0f", res.RAMGB),
			fmt.Sprintf("%.0f", res.VRAMGB),
			string(device),
		})
	}
	return renderTable(
		[]string{"Model", "RAM GB", "VRAM GB", "Device"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
	)
}
