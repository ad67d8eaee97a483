// Package csvbars parses 1-minute bar exports (timestamp and close columns)
// into model.Bar values.
package csvbars

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/DC0618/nvda-rsi-20-65/internal/model"
)

// ErrNoColumns is returned when the header lacks a timestamp or close column.
var ErrNoColumns = errors.New("csvbars: header needs a timestamp and a close column")

var timeColumns = []string{"ts", "timestamp", "datetime", "time", "date"}

// offsetLayouts cover pandas' to_csv output for a tz-aware index.
var offsetLayouts = []string{
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05Z07:00",
}

// local layouts are interpreted in the reader's location.
var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

// Reader decodes bars from CSV with a header row.
type Reader struct {
	r        *csv.Reader
	loc      *time.Location
	tsCol    int
	closeCol int
	line     int

	// Skipped counts rows that could not be parsed.
	Skipped int
}

// NewReader reads the header and locates the columns. Naive timestamps are
// taken in loc.
func NewReader(r io.Reader, loc *time.Location) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csvbars: read header: %w", err)
	}
	br := &Reader{r: cr, loc: loc, tsCol: -1, closeCol: -1, line: 1}
	adjCol := -1
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "close":
			br.closeCol = i
		case "adj close":
			adjCol = i
		}
		for _, tc := range timeColumns {
			if name == tc && br.tsCol < 0 {
				br.tsCol = i
			}
		}
	}
	if br.closeCol < 0 {
		br.closeCol = adjCol
	}
	if br.tsCol < 0 || br.closeCol < 0 {
		return nil, ErrNoColumns
	}
	return br, nil
}

// Next returns the next parsable bar, or io.EOF.
func (br *Reader) Next() (model.Bar, error) {
	for {
		rec, err := br.r.Read()
		if err != nil {
			return model.Bar{}, err
		}
		br.line++
		if len(rec) <= br.tsCol || len(rec) <= br.closeCol {
			br.Skipped++
			continue
		}
		ts, err := br.parseTime(rec[br.tsCol])
		if err != nil {
			br.Skipped++
			continue
		}
		c, err := strconv.ParseFloat(strings.TrimSpace(rec[br.closeCol]), 64)
		if err != nil {
			br.Skipped++
			continue
		}
		return model.Bar{Time: ts, Close: c}, nil
	}
}

// ReadAll returns every parsable bar.
func (br *Reader) ReadAll() ([]model.Bar, error) {
	var out []model.Bar
	for {
		b, err := br.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("csvbars: line %d: %w", br.line+1, err)
		}
		out = append(out, b)
	}
}

// parseTime accepts RFC3339, a timestamp with a UTC offset, unix seconds
// or a naive local timestamp.
func (br *Reader) parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(br.loc), nil
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(br.loc), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).In(br.loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, br.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
