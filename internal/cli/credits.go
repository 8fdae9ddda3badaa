package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCreditsCmd inspects and grants round-entry credits through the authority API.
func NewCreditsCmd(configPath *string) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect or grant round-entry credits",
	}
	cmd.PersistentFlags().StringVar(&url, "authority", "", "authority base URL (overrides config)")

	var amount int
	grant := &cobra.Command{
		Use:   "grant <user>",
		Short: "Add purchased credits to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			balance, err := authorityClient(cfg, url).GrantCredits(cmd.Context(), args[0], amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now has %d credits\n", args[0], balance)
			return nil
		},
	}
	grant.Flags().IntVar(&amount, "amount", 1, "credits to add")

	balance := &cobra.Command{
		Use:   "balance <user>",
		Short: "Show a user's credit balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			n, err := authorityClient(cfg, url).GetCreditBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s has %d credits\n", args[0], n)
			return nil
		},
	}

	cmd.AddCommand(grant, balance)
	return cmd
}
