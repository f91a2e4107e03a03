package batch

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// ReadFile parses a batch CSV file into raw rows against the template's
// recognized columns.
func ReadFile(path string, template Template) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Read(f, template)
}

// Read parses tabular rows. The first line is the header; data rows number
// from 2. Unrecognized columns are silently ignored.
func Read(r io.Reader, template Template) ([]Row, error) {
	br := stripUTF8BOM(bufio.NewReader(r))

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	idx := recognizedIndex(header, template.Columns())
	if len(idx) == 0 {
		return nil, errors.Errorf("no recognized columns for %s template (expected any of: %s)",
			template, strings.Join(template.Columns(), ", "))
	}

	var rows []Row
	number := 1
	for {
		number++
		rec, err := cr.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrapf(err, "row %d", number)
		}
		if len(rec) == 0 {
			continue
		}
		values := make(map[string]string, len(idx))
		for col, i := range idx {
			if i < len(rec) {
				values[col] = rec[i]
			}
		}
		rows = append(rows, Row{Number: number, values: values})
	}
	return rows, nil
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

func readHeader(r *csv.Reader) ([]string, error) {
	h, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.New("missing header")
		}
		return nil, err
	}
	for i := range h {
		h[i] = strings.TrimSpace(h[i])
		if !utf8.ValidString(h[i]) {
			return nil, errors.New("invalid header encoding")
		}
	}
	return h, nil
}

// recognizedIndex maps recognized column names (case-insensitive) to their
// position in the header.
func recognizedIndex(header, recognized []string) map[string]int {
	m := make(map[string]int)
	for i, name := range header {
		for _, col := range recognized {
			if strings.EqualFold(name, col) {
				if _, ok := m[col]; !ok {
					m[col] = i
				}
			}
		}
	}
	return m
}

// WriteTemplate emits a blank CSV with the template's header row, ready for
// an operator to fill in.
func WriteTemplate(w io.Writer, template Template) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(template.Columns()); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
