package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scingest/internal/catalog"
	"scingest/internal/config"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var writePath string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the catalog and print or store the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			client := catalog.NewFromConfig(cfg, catalog.WithLogger(ctx.commandLogger(cfg)))
			// a configured token file would short-circuit the login
			tokens := catalog.NewTokenSource(client, cfg.Catalog.Username, cfg.Catalog.CredentialFile, "")
			token, err := tokens.Token(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			target := strings.TrimSpace(writePath)
			if target == "" {
				fmt.Fprintln(out, token)
				return nil
			}
			expanded, err := config.ExpandPath(target)
			if err != nil {
				return fmt.Errorf("resolve token path: %w", err)
			}
			if err := catalog.WriteToken(expanded, token); err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote access token for %s to %s\n", cfg.Catalog.Username, expanded)
			return nil
		},
	}

	cmd.Flags().StringVarP(&writePath, "write", "w", "", "Store the token in this file (mode 0600) instead of printing it")
	return cmd
}
