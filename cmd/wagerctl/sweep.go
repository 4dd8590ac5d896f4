package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().Bool("relay", true, "Relay outbox events after the sweep")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep [NAME|all]",
	Short: "Run a maintenance sweep once",
	Long: `Run one named sweep, or every sweep when NAME is "all" or omitted.
Sweeps are idempotent and safe to run next to a live server.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	name := "all"
	if len(args) == 1 {
		name = args[0]
	}
	out := cmd.OutOrStdout()
	if name == "all" {
		results, err := a.Sweeper.RunAll(cmd.Context())
		names := make([]string, 0, len(results))
		for sweep := range results {
			names = append(names, sweep)
		}
		sort.Strings(names)
		for _, sweep := range names {
			fmt.Fprintf(out, "%-28s %d\n", sweep, results[sweep])
		}
		if err != nil {
			return err
		}
	} else {
		count, err := a.Sweeper.Run(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("%w (known sweeps: %v)", err, a.Sweeper.Names())
		}
		fmt.Fprintf(out, "%-28s %d\n", name, count)
	}

	if relay, _ := cmd.Flags().GetBool("relay"); relay {
		return a.Relay.Run(cmd.Context())
	}
	return nil
}
