package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/iota-uz/helpdesk-recon/pkg/batch"
	"github.com/iota-uz/helpdesk-recon/pkg/recon"
)

var outcomeHeader = []string{"Row", "Identity", "Status", "Before", "After", "Error"}

// WriteOutcomes renders one row per processed request.
func WriteOutcomes(w io.Writer, outcomes []recon.OutcomeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(outcomeHeader); err != nil {
		return err
	}
	for _, o := range outcomes {
		rec := []string{
			strconv.Itoa(o.RowNumber),
			o.Identity,
			string(o.Status),
			snapshotCell(o.Before),
			snapshotCell(o.After),
			o.Error,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRowErrors renders one row per invalid input row, errors joined with
// "; " so the operator sees every problem at once.
func WriteRowErrors(w io.Writer, invalid []batch.RowErrors) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Row", "Errors"}); err != nil {
		return err
	}
	for _, re := range invalid {
		if err := cw.Write([]string{strconv.Itoa(re.RowNumber), JoinErrors(re.Errors)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOutcomesFile writes the outcome report to a CSV file.
func WriteOutcomesFile(path string, outcomes []recon.OutcomeRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteOutcomes(f, outcomes); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func WriteRowErrorsFile(path string, invalid []batch.RowErrors) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteRowErrors(f, invalid); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// JoinErrors flattens a row's errors to "field: message; field: message".
func JoinErrors(errs []batch.ValidationError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}

// snapshotCell renders a before/after snapshot as compact JSON with stable
// key order, or empty for absent snapshots.
func snapshotCell(snapshot map[string]any) string {
	if len(snapshot) == 0 {
		return ""
	}
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, err := json.Marshal(snapshot[k])
		if err != nil {
			vb = []byte(`"?"`)
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}
