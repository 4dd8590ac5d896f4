package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"wager/internal/models"
	"wager/internal/money"
	"wager/internal/validator"
)

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountCreateCmd, accountListCmd, accountDeactivateCmd, accountAllowanceCmd)

	accountCreateCmd.Flags().Int("trust", 50, "Starting trust score")
	accountCreateCmd.Flags().Int64("allowance", 0, "Coins to grant after creation")
	accountListCmd.Flags().Int("limit", 50, "Accounts per page")
	accountListCmd.Flags().Int("offset", 0, "Accounts to skip")
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Provision and inspect accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create ACCOUNT_ID",
	Short: "Create an account with a zero balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := args[0]
		if err := validator.ValidateAccountID(accountID); err != nil {
			return err
		}
		trust, _ := cmd.Flags().GetInt("trust")
		if trust < 0 || trust > 100 {
			return fmt.Errorf("trust must be between 0 and 100")
		}
		allowance, _ := cmd.Flags().GetInt64("allowance")

		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.TxRunner.WithTx(cmd.Context(), func(tx *sqlx.Tx) error {
			return a.Accounts.Create(cmd.Context(), tx, models.Account{ID: accountID, TrustScore: trust})
		})
		if err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		if allowance > 0 {
			if _, err := a.Ledger.GrantAllowance(cmd.Context(), accountID, allowance); err != nil {
				return fmt.Errorf("grant allowance: %w", err)
			}
		}
		return printAccount(cmd, a.Ledger.Account, accountID)
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts as JSON lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		accounts, err := a.Accounts.ListAll(cmd.Context(), limit, offset)
		if err != nil {
			return err
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		for _, account := range accounts {
			if err := encoder.Encode(account); err != nil {
				return err
			}
		}
		return nil
	},
}

var accountDeactivateCmd = &cobra.Command{
	Use:   "deactivate ACCOUNT_ID",
	Short: "Stop an account from taking part in new activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.Accounts.Deactivate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("account %s not found or already inactive", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", args[0])
		return nil
	},
}

var accountAllowanceCmd = &cobra.Command{
	Use:   "allowance ACCOUNT_ID AMOUNT",
	Short: "Mint coins into an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := money.ParseCoins(args[1])
		if err != nil {
			return fmt.Errorf("amount %q: %w", args[1], err)
		}
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		balance, err := a.Ledger.GrantAllowance(cmd.Context(), args[0], amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s balance %d\n", args[0], balance)
		return nil
	},
}

func printAccount(cmd *cobra.Command, get func(context.Context, string) (models.Account, error), accountID string) error {
	account, err := get(cmd.Context(), accountID)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(account)
}
