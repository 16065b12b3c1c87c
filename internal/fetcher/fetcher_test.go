package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func TestDetectPayeeColumn(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    int
	}{
		{"exact payee", []string{"Date", "Payee", "Amount"}, 1},
		{"payee name", []string{"Payee Name", "Amount"}, 0},
		{"underscore", []string{"amount", "payee_name"}, 1},
		{"vendor", []string{"Date", "Vendor", "Total"}, 1},
		{"generic name", []string{"ID", "Name"}, 1},
		{"exact beats substring", []string{"Payee Address", "Payee"}, 1},
		{"substring fallback", []string{"Check No", "Paid To Vendor Acct"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectPayeeColumn(tt.headers)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DetectPayeeColumn([]string{"Date", "Amount", "Memo"})
	require.Error(t, err)
}

func TestParseCSV(t *testing.T) {
	input := strings.Join([]string{
		"Date,Payee,Amount",
		"2026-01-02,Acme LLC,120.00",
		"2026-01-03,,15.00",
		"2026-01-04,John Smith,42.50",
		"2026-01-05,   ,9.99",
	}, "\n")

	ds, err := parseCSV(strings.NewReader(input), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, ds.PayeeColumn)
	assert.Equal(t, []string{"Acme LLC", "John Smith"}, ds.Names())

	// Original row positions survive blank-row skipping.
	assert.Equal(t, 0, ds.Records[0].Index)
	assert.Equal(t, 2, ds.Records[1].Index)
	assert.Equal(t, "120.00", ds.Records[0].Fields["Amount"])
}

func TestParseCSVForcedColumn(t *testing.T) {
	input := "A,B\nfirst,second\n"

	ds, err := parseCSV(strings.NewReader(input), Options{PayeeColumn: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, ds.Names())
}

func TestParseCSVEmpty(t *testing.T) {
	_, err := parseCSV(strings.NewReader(""), DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty input")
}

func TestParseCSVShortRows(t *testing.T) {
	input := "Payee,Amount,Memo\nAcme LLC\n"

	ds, err := parseCSV(strings.NewReader(input), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, ds.Records, 1)
	assert.Equal(t, "Acme LLC", ds.Records[0].Name)
	assert.NotContains(t, ds.Records[0].Fields, "Amount")
}

func TestReadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payees.xlsx")
	writeTestXLSX(t, path, [][]string{
		{"Payee", "Amount"},
		{"Acme LLC", "120.00"},
		{"", "15.00"},
		{"John Smith", "42.50"},
	})

	ds, err := ReadXLSX(path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme LLC", "John Smith"}, ds.Names())
	assert.Equal(t, "42.50", ds.Records[1].Fields["Amount"])
}

func TestReadXLSXMissingSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payees.xlsx")
	writeTestXLSX(t, path, [][]string{{"Payee"}})

	_, err := ReadXLSX(path, Options{PayeeColumn: -1, SheetName: "Nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func writeTestXLSX(t *testing.T, path string, rows [][]string) {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, row := range rows {
		r := sheet.AddRow()
		for _, cell := range row {
			r.AddCell().SetString(cell)
		}
	}
	require.NoError(t, f.Save(path))
}

func TestLoadCSVFromHTTP(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("Payee,Amount\nAcme LLC,120.00\n"))
	}))
	defer srv.Close()

	ds, err := Load(context.Background(), srv.URL+"/payees.csv", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme LLC"}, ds.Names())
	assert.Equal(t, int32(2), calls.Load(), "first attempt retried after 500")
}

func TestLoadUnsupportedFormat(t *testing.T) {
	_, err := Load(context.Background(), "payees.parquet", DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported input format")
}
