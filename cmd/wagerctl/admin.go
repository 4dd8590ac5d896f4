package main

import (
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"wager/internal/store"
	"wager/internal/validator"
)

const cliActor = "wagerctl"

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminPromoteCmd, adminGrantCmd)
	adminPromoteCmd.Flags().Bool("super", false, "Make the admin a super admin")
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage admins and their roles",
	Long: `Manage admins directly against the database. Use this to bootstrap the
first super admin; later grants can go through the HTTP API.`,
}

var adminPromoteCmd = &cobra.Command{
	Use:   "promote ACCOUNT_ID",
	Short: "Make an account an admin",
	Long:  `Make an account an admin. The first admin is always a super admin.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := args[0]
		isSuper, _ := cmd.Flags().GetBool("super")
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		hasAny, err := a.Admin.HasAnyAdmin(cmd.Context())
		if err != nil {
			return err
		}
		if !hasAny && !isSuper {
			fmt.Fprintln(cmd.ErrOrStderr(), "no admins yet; promoting as super admin")
			isSuper = true
		}

		err = a.TxRunner.WithTx(cmd.Context(), func(tx *sqlx.Tx) error {
			if err := a.Admin.CreateAdmin(cmd.Context(), tx, accountID, isSuper, nil); err != nil {
				return err
			}
			return recordAdmin(cmd, a.Transitions, tx, accountID, "promoted", map[string]bool{"super": isSuper})
		})
		if err != nil {
			return fmt.Errorf("promote %s: %w", accountID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "promoted %s (super=%t)\n", accountID, isSuper)
		return nil
	},
}

var adminGrantCmd = &cobra.Command{
	Use:   "grant ACCOUNT_ID ROLE",
	Short: "Grant a role to an existing admin",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, role := args[0], args[1]
		if err := validator.ValidateRole(role, store.Roles); err != nil {
			return err
		}
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		isAdmin, _, err := a.Admin.IsAdmin(cmd.Context(), accountID)
		if err != nil {
			return err
		}
		if !isAdmin {
			return fmt.Errorf("%s is not an admin; promote it first", accountID)
		}
		err = a.TxRunner.WithTx(cmd.Context(), func(tx *sqlx.Tx) error {
			if err := a.Admin.GrantRole(cmd.Context(), tx, accountID, role); err != nil {
				return err
			}
			return recordAdmin(cmd, a.Transitions, tx, accountID, "role:"+role, map[string]string{"role": role})
		})
		if err != nil {
			return fmt.Errorf("grant %s to %s: %w", role, accountID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s\n", role, accountID)
		return nil
	},
}

func recordAdmin(cmd *cobra.Command, transitions *store.TransitionStore, tx store.Execer, accountID, transition string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = transitions.Record(cmd.Context(), tx, store.Transition{
		EntityType: "admin",
		EntityID:   accountID,
		Transition: transition,
		ActorID:    cliActor,
		Data:       string(raw),
	})
	return err
}
