package main

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"wager/internal/models"
	"wager/internal/store"
)

var inspectable = []string{
	string(models.RefProposition),
	string(models.RefContest),
	string(models.RefSteal),
	string(models.RefDebt),
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect TYPE ID",
	Short: "Show the transitions and ledger entries of one entity",
	Long: `Print the recorded transitions and every ledger entry that references the
entity. TYPE is one of proposition, contest, steal or debt.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType, entityID := args[0], args[1]
		if !slices.Contains(inspectable, entityType) {
			return fmt.Errorf("unknown type %q (want one of %v)", entityType, inspectable)
		}
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		transitions, err := a.Transitions.ListForEntity(cmd.Context(), entityType, entityID)
		if err != nil {
			return fmt.Errorf("list transitions: %w", err)
		}
		entries, err := a.Transactions.ListByRef(cmd.Context(), entityType, entityID)
		if err != nil {
			return fmt.Errorf("list ledger entries: %w", err)
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(struct {
			Transitions []store.Transition   `json:"transitions"`
			Entries     []models.Transaction `json:"entries"`
		}{transitions, entries})
	},
}
