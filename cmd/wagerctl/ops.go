package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"wager/internal/artifact"
	"wager/internal/auth"
	"wager/internal/config"
	"wager/internal/db"
	"wager/internal/logging"
	"wager/internal/migrate"
	"wager/internal/validator"
)

func init() {
	rootCmd.AddCommand(tokenCmd, reconcileCmd, migrateCmd, artifactCmd)
	artifactCmd.AddCommand(artifactPutCmd)

	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to TOKEN_TTL_MINUTES)")
	migrateCmd.Flags().String("dir", "migrations", "Directory holding *.sql migrations")
}

var tokenCmd = &cobra.Command{
	Use:   "token ACCOUNT_ID",
	Short: "Mint an API bearer token for an account",
	Long: `Mint a bearer token signed with JWT_SECRET. Accounts live in an upstream
identity system; this is for local testing and operator scripts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validator.ValidateAccountID(args[0]); err != nil {
			return err
		}
		cfg := config.Load()
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if ttl <= 0 {
			ttl = cfg.TokenTTL
		}
		token, err := auth.GenerateToken(cfg.JWTSecret, args[0], ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare stored balances with the ledger",
	Long:  `Print every account whose stored balance differs from the sum of its ledger entries. Exits non-zero when drift is found.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := open(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		drifts, err := a.Ledger.Reconcile(cmd.Context())
		if err != nil {
			return err
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		for _, drift := range drifts {
			if err := encoder.Encode(drift); err != nil {
				return err
			}
		}
		if len(drifts) > 0 {
			return fmt.Errorf("%d accounts drifted from the ledger", len(drifts))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ledger consistent")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQL migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		cfg := config.Load()
		logger := logging.New(os.Stderr, cfg.AppEnv, cfg.LogLevel)
		database, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close()

		applied, err := migrate.Up(cmd.Context(), database, dir, logger)
		if err != nil {
			return err
		}
		for _, name := range applied {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Manage stored proof artifacts",
}

var artifactPutCmd = &cobra.Command{
	Use:   "put STORAGE_PATH FILE",
	Short: "Upload a file into the artifact store",
	Long:  `Copy FILE into ARTIFACT_DIR under STORAGE_PATH. Existing artifacts are never overwritten.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := artifact.ParseRef(args[0])
		if err != nil {
			return err
		}
		if !ref.IsStoragePath() {
			return fmt.Errorf("%s is a URL, not a storage path", args[0])
		}
		cfg := config.Load()
		store, err := artifact.NewFileStore(cfg.ArtifactDir)
		if err != nil {
			return err
		}
		file, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer file.Close()

		started := time.Now()
		if err := store.Put(ref.Value, file); err != nil {
			return fmt.Errorf("put %s: %w", ref.Value, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s in %s\n", ref.Value, time.Since(started).Round(time.Millisecond))
		return nil
	},
}
