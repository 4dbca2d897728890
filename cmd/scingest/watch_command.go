package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scingest/internal/daemonrun"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the beamtime index and ingest new scans until interrupted",
		Long: "Ingests every scan listed in the index but missing from the ledger, then " +
			"keeps watching the index file. Exits non-zero when the index or ledger " +
			"cannot be read or the ledger cannot be written.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{})
		},
	}
}
