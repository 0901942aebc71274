package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/video-sub-translator/internal/config"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the persisted runtime settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSettings(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSettings(store.GetRuntimeSettings()))
			return nil
		},
	}
	cmd.AddCommand(newSettingsSetCommand(ctx))
	return cmd
}

func newSettingsSetCommand(ctx *commandContext) *cobra.Command {
	var next config.RuntimeSettings

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update runtime settings; a running server reads them on its next start",
		RunE: func(cmd *cobra.Command, args []string) error {
			if next == (config.RuntimeSettings{}) {
				return fmt.Errorf("nothing to change")
			}
			store, err := openSettings(ctx)
			if err != nil {
				return err
			}
			updated, err := store.UpdateRuntimeSettings(next)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSettings(updated))
			return nil
		},
	}

	cmd.Flags().StringVar(&next.DeepLKey, "deepl-key", "", "DeepL API key")
	cmd.Flags().StringVar(&next.OpenAIKey, "openai-key", "", "OpenAI compatible API key")
	cmd.Flags().StringVar(&next.WhisperModel, "whisper-model", "", "Whisper model tier")
	cmd.Flags().StringVar(&next.DefaultLanguage, "lang", "", "Default target language")
	cmd.Flags().StringVar(&next.DefaultService, "service", "", "Default translation service")
	cmd.Flags().StringVar(&next.JanitorCron, "janitor-cron", "", "Workspace janitor schedule")
	return cmd
}

func openSettings(ctx *commandContext) (*config.RuntimeSettingsStore, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	ctx.quietLogging(cfg)
	return config.NewRuntimeSettingsStore(cfg.SettingsPath(), *cfg)
}

func renderSettings(s config.RuntimeSettings) string {
	s = s.Redacted()
	rows := [][]string{
		{"deepl_key", s.DeepLKey},
		{"openai_key", s.OpenAIKey},
		{"whisper_model", s.WhisperModel},
		{"default_language", s.DefaultLanguage},
		{"default_service", s.DefaultService},
		{"janitor_cron", s.JanitorCron},
	}
	return renderTable([]string{"Setting", "Value"}, rows, nil)
}
