// Package fetcher loads payee input files from disk or HTTP and exposes them
// as a uniform Dataset regardless of the on-disk format.
package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Record is one input row with its position in the source file.
type Record struct {
	Index  int
	Name   string
	Fields map[string]string
}

// Dataset is the parsed contents of a payee input file.
type Dataset struct {
	Source      string
	Headers     []string
	PayeeColumn int
	Records     []Record
}

// Names returns the payee names in row order.
func (d *Dataset) Names() []string {
	out := make([]string, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.Name
	}
	return out
}

// Rows returns the original field maps in row order.
func (d *Dataset) Rows() []map[string]string {
	out := make([]map[string]string, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.Fields
	}
	return out
}

// payeeColumnCandidates are matched against lowercased headers, most specific
// first.
var payeeColumnCandidates = []string{
	"payee name",
	"payee_name",
	"payee",
	"vendor name",
	"vendor",
	"supplier",
	"name",
}

// DetectPayeeColumn finds the column holding payee names. Exact header
// matches win over substring matches.
func DetectPayeeColumn(headers []string) (int, error) {
	lowered := make([]string, len(headers))
	for i, h := range headers {
		lowered[i] = strings.ToLower(strings.TrimSpace(h))
	}

	for _, candidate := range payeeColumnCandidates {
		for i, h := range lowered {
			if h == candidate {
				return i, nil
			}
		}
	}
	for _, candidate := range payeeColumnCandidates {
		for i, h := range lowered {
			if strings.Contains(h, candidate) {
				return i, nil
			}
		}
	}
	return 0, eris.Errorf("fetcher: no payee column among headers %v", headers)
}

// Load reads a payee input file. HTTP and HTTPS sources are downloaded to a
// temp file first; the format is chosen by file extension.
func Load(ctx context.Context, source string, opts Options) (*Dataset, error) {
	path := source
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		tmp, cleanup, err := downloadToTemp(ctx, source)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		path = tmp
	}

	var (
		ds  *Dataset
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		ds, err = ReadXLSX(path, opts)
	case ".csv", ".txt":
		ds, err = ReadCSV(path, opts)
	default:
		return nil, eris.Errorf("fetcher: unsupported input format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	ds.Source = source
	zap.L().Info("input loaded",
		zap.String("source", source),
		zap.Int("rows", len(ds.Records)),
		zap.String("payee_column", ds.Headers[ds.PayeeColumn]),
	)
	return ds, nil
}

func downloadToTemp(ctx context.Context, url string) (string, func(), error) {
	f, err := os.CreateTemp("", "payee-input-*"+filepath.Ext(url))
	if err != nil {
		return "", nil, eris.Wrap(err, "fetcher: create temp file")
	}
	f.Close()

	dl := NewDownloader(DownloaderOptions{})
	if _, err := dl.DownloadToFile(ctx, url, f.Name()); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

// buildDataset assembles a Dataset from a header row and data rows, detecting
// the payee column and dropping rows whose payee cell is blank.
func buildDataset(headers []string, rows [][]string, opts Options) (*Dataset, error) {
	if len(headers) == 0 {
		return nil, eris.New("fetcher: input has no header row")
	}

	col := opts.PayeeColumn
	if col < 0 {
		detected, err := DetectPayeeColumn(headers)
		if err != nil {
			return nil, err
		}
		col = detected
	}
	if col >= len(headers) {
		return nil, eris.Errorf("fetcher: payee column %d out of range for %d headers", col, len(headers))
	}

	ds := &Dataset{Headers: headers, PayeeColumn: col}
	for i, row := range rows {
		if col >= len(row) || strings.TrimSpace(row[col]) == "" {
			continue
		}
		fields := make(map[string]string, len(headers))
		for j, h := range headers {
			if j < len(row) {
				fields[h] = row[j]
			}
		}
		ds.Records = append(ds.Records, Record{
			Index:  i,
			Name:   strings.TrimSpace(row[col]),
			Fields: fields,
		})
	}
	return ds, nil
}

// Options configures input parsing.
type Options struct {
	// PayeeColumn forces the payee column index. Negative means auto-detect.
	PayeeColumn int
	// SheetName selects an XLSX sheet by name. Empty means the first sheet.
	SheetName string
}

// DefaultOptions returns Options with auto-detection enabled.
func DefaultOptions() Options {
	return Options{PayeeColumn: -1}
}
