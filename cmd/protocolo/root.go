package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "protocolo",
		Short:         "Operator CLI for the municipal protocol service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.envFileFlag, "env-file", "", "Dotenv file to load (default .env when present)")
	rootCmd.PersistentFlags().BoolVar(&ctx.jsonFlag, "json", false, "Print machine-readable JSON")

	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newSLACommand(ctx))
	rootCmd.AddCommand(newAuditCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))

	return rootCmd
}
