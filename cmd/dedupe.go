package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/payee-cli/internal/fetcher"
)

var (
	dedupeInput  string
	dedupeColumn int
	dedupeSheet  string
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Group duplicate payee names without classifying them",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("dedupe"); err != nil {
			return err
		}

		opts := inputOptions()
		if cmd.Flags().Changed("column") {
			opts.PayeeColumn = dedupeColumn
		}
		if dedupeSheet != "" {
			opts.SheetName = dedupeSheet
		}

		ds, err := fetcher.Load(ctx, dedupeInput, opts)
		if err != nil {
			return eris.Wrap(err, "load input")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		engine, err := newEngine()
		if err != nil {
			return err
		}

		groups, err := engine.DeduplicateNames(ctx, st, ds.Names())
		if err != nil {
			// Grouping still completed locally; report the store failure.
			zap.L().Warn("dedupe persistence incomplete", zap.Error(err))
		}

		duplicateCount := 0
		for _, members := range groups {
			duplicateCount += len(members) - 1
		}
		zap.L().Info("dedupe complete",
			zap.Int("names", len(ds.Names())),
			zap.Int("groups", len(groups)),
			zap.Int("duplicates", duplicateCount),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(groups)
	},
}

func init() {
	dedupeCmd.Flags().StringVar(&dedupeInput, "input", "", "input CSV/XLSX file path or URL (required)")
	dedupeCmd.Flags().IntVar(&dedupeColumn, "column", -1, "payee column index; auto-detected when unset")
	dedupeCmd.Flags().StringVar(&dedupeSheet, "sheet", "", "XLSX sheet name; first sheet when unset")
	_ = dedupeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(dedupeCmd)
}
