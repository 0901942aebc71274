package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, external tools and API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ctx.quietLogging(cfg)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := runPreflight(cfg)
			rows := make([][]string, 0, len(results))
			failed := 0
			for _, r := range results {
				if r.kind() == statusError {
					failed++
				}
				rows = append(rows, []string{r.Name, statusLabel(r.kind(), colorize), r.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))

			if failed > 0 {
				return errors.New("some required checks failed")
			}
			return nil
		},
	}
}
