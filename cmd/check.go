package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/payee-cli/internal/exclusion"
	"github.com/sells-group/payee-cli/internal/model"
	"github.com/sells-group/payee-cli/internal/normalize"
	"github.com/sells-group/payee-cli/internal/similarity"
)

var checkCmd = &cobra.Command{
	Use:   "check NAME [NAME]",
	Short: "Inspect normalization and exclusion for a name, or similarity between two",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if len(args) == 2 {
			scores, err := similarity.CombinedWeighted(
				normalize.Name(args[0]).Normalized,
				normalize.Name(args[1]).Normalized,
				cfg.Similarity.Weights,
			)
			if err != nil {
				return err
			}
			return enc.Encode(struct {
				A      model.NormalizedName   `json:"a"`
				B      model.NormalizedName   `json:"b"`
				Scores model.SimilarityScores `json:"scores"`
			}{normalize.Name(args[0]), normalize.Name(args[1]), scores})
		}

		check := exclusion.Check(args[0])
		return enc.Encode(struct {
			Input           string               `json:"input"`
			Normalized      model.NormalizedName `json:"normalized"`
			Excluded        bool                 `json:"excluded"`
			MatchedKeywords []string             `json:"matched_keywords,omitempty"`
		}{args[0], normalize.Name(args[0]), check.IsExcluded, check.MatchedKeywords})
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
