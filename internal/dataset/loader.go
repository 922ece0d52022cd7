package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/surveykit/raking/schema"
)

// candidateDelimiters are tried in order when sniffing; ties go to the earlier one.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// Options controls how a respondent file is read.
type Options struct {
	Format    schema.InputFormat // empty = decide from the file extension
	Sheet     string             // xlsx only; empty = first sheet
	Delimiter rune               // csv only; 0 = sniff from the header line
}

// Load reads a respondent table from path.
func Load(path string, opts Options) (*Dataset, error) {
	format := opts.Format
	if format == "" {
		format = FormatFromPath(path)
	}
	switch format {
	case schema.XLSXInput:
		return LoadXLSX(path, opts.Sheet)
	case schema.CSVInput:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open csv: %w", err)
		}
		defer func() { _ = f.Close() }()
		return ReadCSV(f, filepath.Base(path), opts.Delimiter)
	default:
		return nil, fmt.Errorf("unsupported input format %q", format)
	}
}

// FormatFromPath guesses the input format from a file extension.
func FormatFromPath(path string) schema.InputFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return schema.XLSXInput
	default:
		return schema.CSVInput
	}
}

// ReadCSV parses delimited text. A byte order mark selects UTF-8 or UTF-16;
// without one the input is taken as UTF-8.
func ReadCSV(r io.Reader, name string, delim rune) (*Dataset, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	data, err := io.ReadAll(decoded)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if delim == 0 {
		delim = SniffDelimiter(data)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return New(name, nil, nil)
		}
		return nil, fmt.Errorf("read header of %s: %w", name, err)
	}
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return New(name, header, records)
}

// SniffDelimiter picks the candidate delimiter that splits the first line
// into the most fields, ignoring quoted sections. Defaults to a comma.
func SniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		line = data[:i]
	}

	counts := make(map[rune]int, len(candidateDelimiters))
	quoted := false
	for _, r := range string(line) {
		if r == '"' {
			quoted = !quoted
			continue
		}
		if !quoted {
			counts[r]++
		}
	}

	best, bestCount := ',', 0
	for _, c := range candidateDelimiters {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best
}

// LoadXLSX reads one sheet of an Excel workbook. The first row is the header.
func LoadXLSX(path, sheet string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return readWorkbook(f, filepath.Base(path), sheet)
}

// ReadXLSX reads one sheet of an Excel workbook from r.
func ReadXLSX(r io.Reader, name, sheet string) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	return readWorkbook(f, name, sheet)
}

func readWorkbook(f *excelize.File, name, sheet string) (*Dataset, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s has no sheets", name)
	}
	if sheet == "" {
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("could not read sheet %q of %s: %w", sheet, name, err)
	}
	if len(rows) == 0 {
		return New(name, nil, nil)
	}
	return New(name, rows[0], rows[1:])
}
