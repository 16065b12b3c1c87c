package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/payee-cli/internal/export"
	"github.com/sells-group/payee-cli/internal/fetcher"
)

var (
	exportJobID  string
	exportOutput string
	exportInput  string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored classifications for a job as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		job, err := st.GetBatchJob(ctx, exportJobID)
		if err != nil {
			return eris.Wrap(err, "get batch job")
		}
		if job == nil {
			return eris.Errorf("job not found: %s", exportJobID)
		}

		results, err := st.ListClassifications(ctx, exportJobID, exportLimit)
		if err != nil {
			return eris.Wrap(err, "list classifications")
		}

		out := os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return eris.Wrapf(err, "create output file %s", exportOutput)
			}
			defer f.Close()
			out = f
		}

		if exportInput != "" {
			ds, err := fetcher.Load(ctx, exportInput, inputOptions())
			if err != nil {
				return eris.Wrap(err, "load input")
			}
			m, err := newMatcher()
			if err != nil {
				return err
			}
			if err := export.WriteAligned(out, ds, results, m); err != nil {
				return eris.Wrap(err, "write aligned output")
			}
		} else if err := export.WriteResults(out, results); err != nil {
			return eris.Wrap(err, "write output")
		}

		zap.L().Info("export complete",
			zap.String("job_id", exportJobID),
			zap.String("status", string(job.Status)),
			zap.Int("rows", len(results)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportJobID, "job", "", "batch job ID (required)")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output CSV path; stdout when unset")
	exportCmd.Flags().StringVar(&exportInput, "input", "", "original input file; aligns result columns to its rows")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "maximum rows to export; 0 for all")
	_ = exportCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(exportCmd)
}
