package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// ErrEmptyFile is returned when a CSV has no header row.
var ErrEmptyFile = errors.New("empty file: no header row")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Read parses a comma-separated file with a header row.
// A leading UTF-8 byte order mark is skipped and invalid UTF-8 bytes are
// replaced with '?'. Empty cells load as absent values; a record of only
// empty cells is kept as a row of absent values so row positions match the
// file. Empty lines are not records.
func Read(r io.Reader) (*Dataset, error) {
	cr := newCSVReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}
	header = trimHeader(header)

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		records = append(records, rec)
	}

	return FromRecords(header, records), nil
}

// ReadFile opens path and parses it with Read.
func ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ds, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ds, nil
}

// ReadHeader returns only the column names of a CSV.
func ReadHeader(r io.Reader) ([]string, error) {
	header, err := newCSVReader(r).Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}
	return trimHeader(header), nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(newSanitizedReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	return cr
}

func trimHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(h)
	}
	return out
}

// newSanitizedReader skips a UTF-8 BOM and then yields valid UTF-8 only.
func newSanitizedReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return &utf8Sanitizer{src: br}
}

// utf8Sanitizer decodes rune by rune and writes '?' for each invalid byte.
type utf8Sanitizer struct {
	src *bufio.Reader
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		r, size, err := s.src.ReadRune()
		if err != nil {
			if err == io.EOF && n > 0 {
				return n, nil
			}
			return n, err
		}

		if r == utf8.RuneError && size == 1 {
			p[n] = '?'
			n++
			continue
		}

		if n+size > len(p) {
			if n == 0 {
				p[0] = '?'
				return 1, nil
			}
			_ = s.src.UnreadRune()
			break
		}
		n += utf8.EncodeRune(p[n:], r)
	}
	return n, nil
}
