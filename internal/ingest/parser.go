// Package ingest implements the CSV import pipeline: parsing, row
// validation, duplicate detection, and the staging lifecycle through
// publish and archive.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Canonical field names used as keys in a parsed row's field map.
// They match the JSON attribute names of the event payload.
const (
	FieldTitle       = "title"
	FieldOfficialURL = "officialUrl"
	FieldUpdatedAt   = "updatedAt"
	FieldStartAt     = "startAt"
	FieldEndAt       = "endAt"
	FieldAreaName    = "areaName"
	FieldAreaSlug    = "areaSlug"
	FieldVenueName   = "venueName"
	FieldCategories  = "categories"
	FieldSummary     = "summary"
)

// coreFields are always present in a parsed row's field map, defaulting
// to empty string when the corresponding column is absent from the header.
var coreFields = []string{FieldTitle, FieldOfficialURL, FieldUpdatedAt, FieldStartAt, FieldAreaName}

// requiredColumns must all appear in the header for a file to be importable.
var requiredColumns = []string{FieldTitle, FieldOfficialURL, FieldUpdatedAt}

// headerAliases maps lowercased header cells to canonical field names.
// Both English and Japanese column names are recognized.
var headerAliases = map[string]string{
	"title":       FieldTitle,
	"タイトル":        FieldTitle,
	"officialurl": FieldOfficialURL,
	"公式url":       FieldOfficialURL,
	"updatedat":   FieldUpdatedAt,
	"更新日":         FieldUpdatedAt,
	"startat":     FieldStartAt,
	"開始日":         FieldStartAt,
	"endat":       FieldEndAt,
	"終了日":         FieldEndAt,
	"areaname":    FieldAreaName,
	"エリア":         FieldAreaName,
	"areaslug":    FieldAreaSlug,
	"venuename":   FieldVenueName,
	"会場":          FieldVenueName,
	"categories":  FieldCategories,
	"カテゴリ":        FieldCategories,
	"summary":     FieldSummary,
	"概要":          FieldSummary,
}

// Row is a single parsed data row from a CSV file.
type Row struct {
	// Line is the 1-based line number in the source file, counting the
	// header as line 1.
	Line int

	// Fields maps canonical field names to cleaned cell values. Core
	// fields are always present; optional fields only when their column
	// exists in the header.
	Fields map[string]string
}

// BadRow records a data row the CSV reader could not parse.
type BadRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ParseResult holds the outcome of parsing a CSV file.
type ParseResult struct {
	// Columns lists the canonical names of recognized columns, in file order.
	Columns []string

	// Rows holds all successfully parsed, non-empty data rows.
	Rows []Row

	// BadRows holds rows the reader rejected, with their line numbers.
	BadRows []BadRow

	// Truncated is true when the file had more data rows than the limit.
	Truncated bool
}

// HeaderError reports a header that is missing required columns.
// It is returned by Parse and maps to a failed batch, not a server error.
type HeaderError struct {
	Missing []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("header missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Parse reads CSV data and returns the parsed rows. maxRows caps the
// number of data rows returned; zero or negative means no cap.
//
// A file with no header or no data rows yields an empty result, not an
// error. A header missing any of the required columns yields a
// *HeaderError. Malformed data rows are collected in BadRows and never
// abort the parse.
func Parse(data []byte, maxRows int) (*ParseResult, error) {
	data = stripBOM(sanitizeUTF8(data))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		// Empty or unreadable first line: nothing to stage.
		return &ParseResult{}, nil
	}

	colIdx, columns := mapHeader(header)

	first, err := r.Read()
	if errors.Is(err, io.EOF) {
		// Header-only file: empty result by contract.
		return &ParseResult{Columns: columns}, nil
	}

	var missing []string
	for _, req := range requiredColumns {
		if _, ok := colIdx[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, &HeaderError{Missing: missing}
	}

	result := &ParseResult{Columns: columns}
	line := 1

	record, readErr := first, err
	for {
		line++

		if readErr != nil {
			result.BadRows = append(result.BadRows, BadRow{
				Line:   parseErrLine(readErr, line),
				Reason: rowErrReason(readErr),
			})
		} else if !isEmptyRow(record) {
			if maxRows > 0 && len(result.Rows) >= maxRows {
				result.Truncated = true
				break
			}
			result.Rows = append(result.Rows, Row{
				Line:   line,
				Fields: rowFields(record, colIdx),
			})
		}

		record, readErr = r.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
	}

	return result, nil
}

// mapHeader resolves header cells to canonical field names. Unrecognized
// columns are ignored. Returns the index map and the recognized canonical
// names in file order.
func mapHeader(header []string) (map[string]int, []string) {
	idx := make(map[string]int, len(header))
	var columns []string
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		canonical, ok := headerAliases[key]
		if !ok {
			continue
		}
		if _, dup := idx[canonical]; dup {
			continue // first occurrence wins
		}
		idx[canonical] = i
		columns = append(columns, canonical)
	}
	return idx, columns
}

// rowFields builds the field map for one record. Core fields default to
// empty string when the column is absent or the record is short.
func rowFields(record []string, colIdx map[string]int) map[string]string {
	fields := make(map[string]string, len(colIdx))
	for name, i := range colIdx {
		if i < len(record) {
			fields[name] = CleanCell(record[i])
		} else {
			fields[name] = ""
		}
	}
	for _, name := range coreFields {
		if _, ok := fields[name]; !ok {
			fields[name] = ""
		}
	}
	return fields
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	// Remove leading '='
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	// Remove any surrounding quotes
	s = strings.Trim(s, `"'`)

	return s
}

// SplitList splits a comma-joined multi-value cell (such as categories)
// into cleaned, non-empty parts.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = CleanCell(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseErrLine(err error, fallback int) int {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return perr.Line
	}
	return fallback
}

func rowErrReason(err error) string {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return perr.Err.Error()
	}
	return err.Error()
}
