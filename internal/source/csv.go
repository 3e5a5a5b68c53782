package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"sentrydeck/internal/classify"
)

// Row is one data record of a CSV export, keyed by lowercased header.
type Row struct {
	// Number is the 1-based position among data rows, header excluded.
	Number int
	Fields classify.RawRow
}

// Reader streams rows from one CSV export. Exports from different portals
// disagree on header casing and padding, so headers are trimmed and
// lowercased up front and short or long records are tolerated.
type Reader struct {
	cr      *csv.Reader
	headers []string
	number  int
}

// NewReader wraps r and consumes the header line.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	headers := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	return &Reader{cr: cr, headers: headers}, nil
}

// Headers returns the normalized column names.
func (r *Reader) Headers() []string {
	return r.headers
}

// Next returns the next non-empty row, or io.EOF when the file is done.
func (r *Reader) Next() (Row, error) {
	for {
		record, err := r.cr.Read()
		if err == io.EOF {
			return Row{}, io.EOF
		}
		if err != nil {
			return Row{}, fmt.Errorf("csv: read row: %w", err)
		}
		r.number++

		fields := make(classify.RawRow, len(r.headers))
		empty := true
		for i, value := range record {
			if i >= len(r.headers) {
				break
			}
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			fields[r.headers[i]] = value
			empty = false
		}
		if empty {
			continue
		}

		return Row{Number: r.number, Fields: fields}, nil
	}
}
