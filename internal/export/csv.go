// Package export writes classification results back out as CSV, either as a
// standalone result file or merged into the original input columns.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/payee-cli/internal/fetcher"
	"github.com/sells-group/payee-cli/internal/match"
	"github.com/sells-group/payee-cli/internal/model"
)

// resultRecord is the fixed CSV layout for WriteResults.
type resultRecord struct {
	RowIndex        int     `csv:"row_index"`
	PayeeName       string  `csv:"payee_name"`
	Classification  string  `csv:"classification"`
	Confidence      float64 `csv:"confidence"`
	Reasoning       string  `csv:"reasoning"`
	ProcessingTier  string  `csv:"processing_tier"`
	MatchedKeywords string  `csv:"matched_keywords"`
}

// WriteResults writes classification results as a standalone CSV, one row per
// result in list order.
func WriteResults(w io.Writer, results []model.PayeeClassification) error {
	records := make([]resultRecord, len(results))
	for i, r := range results {
		records[i] = resultRecord{
			RowIndex:        r.RowIndex,
			PayeeName:       r.PayeeName,
			Classification:  r.Result.Classification,
			Confidence:      r.Result.Confidence,
			Reasoning:       r.Result.Reasoning,
			ProcessingTier:  r.Result.ProcessingTier,
			MatchedKeywords: strings.Join(r.Result.MatchedKeywords, "; "),
		}
	}

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.Encode(records); err != nil {
		return eris.Wrap(err, "export: encode results")
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush results")
}

// appendedColumns are added after the original input headers by WriteAligned.
var appendedColumns = []string{"Classification", "Confidence", "Reasoning", "Processing Tier"}

// WriteAligned writes the original input rows with classification columns
// appended. Each input row is paired with its result by row index when names
// still agree, falling back to the matcher otherwise. Rows with no matching
// result get empty classification cells.
func WriteAligned(w io.Writer, ds *fetcher.Dataset, results []model.PayeeClassification, m *match.Matcher) error {
	cw := csv.NewWriter(w)

	header := append(append([]string{}, ds.Headers...), appendedColumns...)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}

	for _, rec := range ds.Records {
		row := make([]string, 0, len(header))
		for _, h := range ds.Headers {
			row = append(row, rec.Fields[h])
		}

		if found := m.Find(results, rec.Name, rec.Index); found != nil {
			row = append(row,
				found.Result.Classification,
				strconv.FormatFloat(found.Result.Confidence, 'f', 1, 64),
				found.Result.Reasoning,
				found.Result.ProcessingTier,
			)
		} else {
			row = append(row, "", "", "", "")
		}

		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush aligned rows")
}
