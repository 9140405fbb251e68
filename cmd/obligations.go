package main

import (
	"github.com/spf13/cobra"
)

var obligationsUser string

var obligationsCmd = &cobra.Command{
	Use:   "obligations",
	Short: "Show the obligations reserve and safe-to-spend for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), "obligations")
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Scorer.Obligations(cmd.Context(), obligationsUser)
		if err != nil {
			return err
		}
		return printJSON(cmd, summary)
	},
}

func init() {
	obligationsCmd.Flags().StringVar(&obligationsUser, "user", "", "user ID (required)")
	_ = obligationsCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(obligationsCmd)
}
