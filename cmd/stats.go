package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/payee-cli/internal/stats"
)

var statsHours int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent classification runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("stats"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		snap, err := stats.NewCollector(st).Collect(ctx, statsHours)
		if err != nil {
			return eris.Wrap(err, "collect stats")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsHours, "hours", stats.DefaultLookbackHours, "lookback window in hours")
	rootCmd.AddCommand(statsCmd)
}
