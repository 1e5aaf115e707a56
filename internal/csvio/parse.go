// Package csvio parses uploaded text batches and renders export files.
package csvio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	CodeInvalidCSV      = "INVALID_CSV"
	CodeInvalidLabels   = "INVALID_LABELS"
	CodeInvalidEncoding = "INVALID_ENCODING"
	CodeBatchTooLarge   = "BATCH_TOO_LARGE"
)

// ValidationError is a structured client-input error. Row is 1-indexed
// counting the header line; 0 means the error is not tied to one row.
type ValidationError struct {
	Code    string
	Message string
	Row     int
}

func (e *ValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("%s (row %d): %s", e.Code, e.Row, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsValidationError unwraps err into a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Row is one parsed upload row. Source and TrueLabel are nil when the
// corresponding optional column is absent or empty.
type Row struct {
	Text      string
	Source    *string
	TrueLabel *int
}

type ParseResult struct {
	Rows        []Row
	SkippedRows []int
}

type ParseOptions struct {
	MaxBytes      int64
	MaxTextLength int
	MaxRows       int
}

var validLabels = map[int]struct{}{0: {}, 1: {}, 2: {}}

// Parse reads a CSV upload: required column "text", optional "source"/"src"
// and "label". Rows with blank text are skipped and recorded by row number;
// malformed labels abort with a row-numbered error.
func Parse(r io.Reader, opts ParseOptions) (*ParseResult, error) {
	limit := opts.MaxBytes
	if limit <= 0 {
		limit = 500 << 20
	}
	content, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload failed: %w", err)
	}
	if int64(len(content)) > limit {
		return nil, &ValidationError{
			Code:    CodeInvalidCSV,
			Message: fmt.Sprintf("file exceeds maximum size of %d bytes", limit),
		}
	}
	if len(content) == 0 {
		return nil, &ValidationError{Code: CodeInvalidCSV, Message: "csv file is empty"}
	}
	if !utf8.Valid(content) {
		return nil, &ValidationError{Code: CodeInvalidEncoding, Message: "file must be UTF-8 encoded"}
	}

	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = detectDelimiter(content)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, &ValidationError{Code: CodeInvalidCSV, Message: "csv file has no header row"}
	}

	textIdx, sourceIdx, labelIdx := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "text":
			textIdx = i
		case "source", "src":
			sourceIdx = i
		case "label":
			labelIdx = i
		}
	}
	if textIdx < 0 {
		return nil, &ValidationError{Code: CodeInvalidCSV, Message: "missing required column 'text'"}
	}

	result := &ParseResult{}
	rowNum := 1 // header
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			return nil, &ValidationError{
				Code:    CodeInvalidCSV,
				Message: fmt.Sprintf("malformed csv record: %v", err),
				Row:     rowNum,
			}
		}

		text := ""
		if textIdx < len(record) {
			text = record[textIdx]
		}
		if strings.TrimSpace(text) == "" {
			result.SkippedRows = append(result.SkippedRows, rowNum)
			continue
		}
		if opts.MaxTextLength > 0 && len([]rune(text)) > opts.MaxTextLength {
			return nil, &ValidationError{
				Code:    CodeInvalidCSV,
				Message: fmt.Sprintf("text exceeds maximum length of %d characters", opts.MaxTextLength),
				Row:     rowNum,
			}
		}

		row := Row{Text: text}

		if sourceIdx >= 0 && sourceIdx < len(record) {
			if src := strings.TrimSpace(record[sourceIdx]); src != "" {
				row.Source = &src
			}
		}

		if labelIdx >= 0 && labelIdx < len(record) {
			raw := strings.TrimSpace(record[labelIdx])
			if raw != "" {
				label, err := parseLabel(raw)
				if err != nil {
					return nil, &ValidationError{
						Code:    CodeInvalidLabels,
						Message: fmt.Sprintf("label must be one of {0, 1, 2}, got %q", raw),
						Row:     rowNum,
					}
				}
				row.TrueLabel = &label
			}
		}

		result.Rows = append(result.Rows, row)
		if opts.MaxRows > 0 && len(result.Rows) > opts.MaxRows {
			return nil, &ValidationError{
				Code:    CodeBatchTooLarge,
				Message: fmt.Sprintf("file holds more than %d rows", opts.MaxRows),
			}
		}
	}

	return result, nil
}

// parseLabel accepts integral floats ("1.0" -> 1) but rejects everything
// else outside {0, 1, 2}.
func parseLabel(raw string) (int, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("label %q is not an integer", raw)
	}
	label := int(f)
	if _, ok := validLabels[label]; !ok {
		return 0, fmt.Errorf("label %d out of range", label)
	}
	return label, nil
}

// detectDelimiter inspects the header line; semicolon-separated exports are
// common enough to sniff for.
func detectDelimiter(content []byte) rune {
	firstLine := content
	if idx := bytes.IndexByte(content, '\n'); idx >= 0 {
		firstLine = content[:idx]
	}
	if bytes.Count(firstLine, []byte{';'}) > bytes.Count(firstLine, []byte{','}) {
		return ';'
	}
	return ','
}
