package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/guardian-card/guardian-core/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "guardian",
	Short: "Real-time spend guardian decision core",
	Long:  "Scores card transactions for avoidability, authorizes charges against budget rules, geofences and override tokens, and detects restaurant dwell from location pings.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
