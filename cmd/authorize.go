package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/guardian-card/guardian-core/internal/model"
)

var (
	authUser        string
	authMerchant    string
	authAmountCents int64
	authCategory    string
)

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Authorize a single charge",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), "authorize")
		if err != nil {
			return err
		}
		defer env.Close()

		verdict, err := env.Authorize.Authorize(cmd.Context(), model.AuthorizeRequest{
			UserID:      authUser,
			AmountCents: authAmountCents,
			Merchant:    authMerchant,
			Category:    authCategory,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, verdict)
	},
}

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Pre-authorize one charge for a merchant and amount",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), "override")
		if err != nil {
			return err
		}
		defer env.Close()

		tok, err := env.Authorize.RequestOverride(cmd.Context(), model.OverrideRequest{
			UserID:      authUser,
			AmountCents: authAmountCents,
			Merchant:    authMerchant,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, tok)
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, c := range []*cobra.Command{authorizeCmd, overrideCmd} {
		c.Flags().StringVar(&authUser, "user", "", "user ID (required)")
		c.Flags().StringVar(&authMerchant, "merchant", "", "merchant name (required)")
		c.Flags().Int64Var(&authAmountCents, "amount-cents", 0, "charge amount in minor units (required)")
		_ = c.MarkFlagRequired("user")
		_ = c.MarkFlagRequired("merchant")
		_ = c.MarkFlagRequired("amount-cents")
		rootCmd.AddCommand(c)
	}
	authorizeCmd.Flags().StringVar(&authCategory, "category", "", "charge category for rule and geofence scoping")
}
