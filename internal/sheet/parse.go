// Package sheet turns shipment exports (CSV, XLSX or JSON) into raw records
// ready for normalization.
package sheet

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/ignite/shipment-analytics/internal/datanorm"
	"github.com/xuri/excelize/v2"
)

// Supported file types.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

var (
	// ErrUnsupportedFormat is returned for files that are not CSV, XLSX or JSON.
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	// ErrEmpty is returned for files with no header or no data rows.
	ErrEmpty = errors.New("file is empty or could not be parsed")
)

const utf8BOM = "\ufeff"

// Result is a parsed file.
type Result struct {
	Format            string               `json:"fileType"`
	Headers           []string             `json:"headers"`
	Records           []datanorm.RawRecord `json:"-"`
	OriginalRows      int                  `json:"originalRows"`
	DuplicatesRemoved int                  `json:"duplicatesRemoved"`
}

// DetectFormat infers the file type from a name or URL path. A
// format=... query parameter wins over the extension, as used by
// spreadsheet export links.
func DetectFormat(name string) (string, error) {
	base := name
	if i := strings.IndexByte(name, '?'); i >= 0 {
		base = name[:i]
		if q, err := url.ParseQuery(name[i+1:]); err == nil && q.Get("format") != "" {
			base = "export." + q.Get("format")
		}
	}
	switch strings.ToLower(path.Ext(base)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// Parse decodes data in the given format and drops exact duplicate rows.
func Parse(format string, data []byte) (*Result, error) {
	var (
		headers []string
		records []datanorm.RawRecord
		err     error
	)
	switch format {
	case FormatCSV:
		headers, records, err = parseCSV(bytes.NewReader(data))
	case FormatXLSX:
		headers, records, err = parseXLSX(bytes.NewReader(data))
	case FormatJSON:
		headers, records, err = parseJSON(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}
	unique := Dedupe(records)
	return &Result{
		Format:            format,
		Headers:           headers,
		Records:           unique,
		OriginalRows:      len(records),
		DuplicatesRemoved: len(records) - len(unique),
	}, nil
}

// cleanHeaders trims names and fills blanks with ColumnN.
func cleanHeaders(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column%d", i+1)
		}
		out[i] = h
	}
	return out
}

// rowsToRecords zips data rows with headers. Short rows get nil for the
// missing cells; all-blank rows are skipped.
func rowsToRecords(headers []string, rows [][]string) []datanorm.RawRecord {
	out := make([]datanorm.RawRecord, 0, len(rows))
	for _, row := range rows {
		rec := make(datanorm.RawRecord, len(headers))
		blank := true
		for i, h := range headers {
			if i >= len(row) {
				rec[h] = nil
				continue
			}
			rec[h] = row[i]
			if strings.TrimSpace(row[i]) != "" {
				blank = false
			}
		}
		if !blank {
			out = append(out, rec)
		}
	}
	return out
}

func parseCSV(r io.Reader) ([]string, []datanorm.RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, ErrEmpty
	}
	headers := cleanHeaders(rows[0])
	return headers, rowsToRecords(headers, rows[1:]), nil
}

func parseXLSX(r io.Reader) ([]string, []datanorm.RawRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmpty
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, ErrEmpty
	}
	headers := cleanHeaders(rows[0])
	return headers, rowsToRecords(headers, rows[1:]), nil
}

// parseJSON accepts an array of flat objects. Numbers stay json.Number so
// the value parsers see the original text.
func parseJSON(data []byte) ([]string, []datanorm.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(data, []byte(utf8BOM))))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, nil, fmt.Errorf("decode json: %w", err)
	}

	seen := map[string]bool{}
	var headers []string
	out := make([]datanorm.RawRecord, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		rec := make(datanorm.RawRecord, len(row))
		for k, v := range row {
			switch t := v.(type) {
			case string, json.Number, nil:
				rec[k] = v
			case bool:
				rec[k] = strconv.FormatBool(t)
			default:
				// nested values are not part of the record schema
				b, _ := json.Marshal(v)
				rec[k] = string(b)
			}
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
		out = append(out, rec)
	}
	sort.Strings(headers)
	return headers, out, nil
}

// Dedupe drops rows identical to an earlier row, keeping order.
func Dedupe(records []datanorm.RawRecord) []datanorm.RawRecord {
	seen := make(map[string]struct{}, len(records))
	out := records[:0:0]
	for _, rec := range records {
		// map keys marshal sorted, so equal rows give equal keys
		key, err := json.Marshal(rec)
		if err != nil {
			out = append(out, rec)
			continue
		}
		if _, dup := seen[string(key)]; dup {
			continue
		}
		seen[string(key)] = struct{}{}
		out = append(out, rec)
	}
	return out
}
