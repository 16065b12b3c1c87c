package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/payee-cli/internal/export"
	"github.com/sells-group/payee-cli/internal/fetcher"
	"github.com/sells-group/payee-cli/internal/pipeline"
	"github.com/sells-group/payee-cli/internal/store"
)

var (
	classifyInput   string
	classifyOutput  string
	classifyAligned bool
	classifyBatch   bool
	classifyColumn  int
	classifySheet   string
	classifyNoStore bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify every payee name in a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("classify"); err != nil {
			return err
		}

		opts := inputOptions()
		if cmd.Flags().Changed("column") {
			opts.PayeeColumn = classifyColumn
		}
		if classifySheet != "" {
			opts.SheetName = classifySheet
		}

		ds, err := fetcher.Load(ctx, classifyInput, opts)
		if err != nil {
			return eris.Wrap(err, "load input")
		}
		zap.L().Info("input loaded",
			zap.String("source", ds.Source),
			zap.String("payee_column", ds.Headers[ds.PayeeColumn]),
			zap.Int("rows", len(ds.Records)),
		)

		p, st, err := buildPipeline(ctx, cmd)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close()
		}

		result, err := p.Run(ctx, ds)
		if err != nil && result == nil {
			return eris.Wrap(err, "pipeline run")
		}
		if err != nil {
			// Store failures leave the in-memory results intact.
			zap.L().Warn("persistence incomplete", zap.Error(err))
		}

		if classifyOutput != "" {
			if werr := writeOutput(ds, result); werr != nil {
				return werr
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(newRunSummary(result))
	},
}

type runSummary struct {
	JobID      string `json:"job_id,omitempty"`
	Total      int    `json:"total"`
	Classified int    `json:"classified"`
	Excluded   int    `json:"excluded"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed"`
}

func newRunSummary(result *pipeline.Result) runSummary {
	s := runSummary{
		Total:  len(result.Results),
		Failed: result.Failed,
	}
	if result.Job != nil {
		s.JobID = result.Job.ID
		// TotalNames is the input row count; Results omits failed names.
		s.Total = result.Job.TotalNames
		s.Classified = result.Job.Classified
		s.Excluded = result.Job.Excluded
		s.Duplicates = result.Job.Duplicates
	}
	return s
}

func buildPipeline(ctx context.Context, cmd *cobra.Command) (*pipeline.Pipeline, store.Store, error) {
	engine, err := newEngine()
	if err != nil {
		return nil, nil, err
	}

	var st store.Store
	if !classifyNoStore {
		st, err = initStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, nil, eris.Wrap(err, "migrate store")
		}
	}

	useBatch := cfg.Anthropic.UseBatchAPI
	if cmd.Flags().Changed("batch") {
		useBatch = classifyBatch
	}

	p := pipeline.New(engine, newClassifier(), st, pipeline.Options{
		Concurrency: cfg.Pipeline.Concurrency,
		UseBatchAPI: useBatch,
	})
	return p, st, nil
}

func writeOutput(ds *fetcher.Dataset, result *pipeline.Result) error {
	f, err := os.Create(classifyOutput)
	if err != nil {
		return eris.Wrapf(err, "create output file %s", classifyOutput)
	}
	defer f.Close()

	if classifyAligned {
		m, err := newMatcher()
		if err != nil {
			return err
		}
		if err := export.WriteAligned(f, ds, result.Results, m); err != nil {
			return eris.Wrap(err, "write aligned output")
		}
	} else if err := export.WriteResults(f, result.Results); err != nil {
		return eris.Wrap(err, "write output")
	}
	zap.L().Info("results written",
		zap.String("path", classifyOutput),
		zap.Bool("aligned", classifyAligned),
	)
	return nil
}

func init() {
	classifyCmd.Flags().StringVar(&classifyInput, "input", "", "input CSV/XLSX file path or URL (required)")
	classifyCmd.Flags().StringVar(&classifyOutput, "output", "", "output CSV path; omit to print only the summary")
	classifyCmd.Flags().BoolVar(&classifyAligned, "aligned", false, "append result columns to the original rows")
	classifyCmd.Flags().BoolVar(&classifyBatch, "batch", false, "use the Message Batches API")
	classifyCmd.Flags().IntVar(&classifyColumn, "column", -1, "payee column index; auto-detected when unset")
	classifyCmd.Flags().StringVar(&classifySheet, "sheet", "", "XLSX sheet name; first sheet when unset")
	classifyCmd.Flags().BoolVar(&classifyNoStore, "no-store", false, "skip persistence entirely")
	_ = classifyCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(classifyCmd)
}
