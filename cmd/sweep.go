package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired override tokens once",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), "sweep")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Ledger.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("override sweep complete", zap.Int("deleted", n))
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired override tokens\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
