package batch

import "strings"

// Template identifies which batch input format a file follows.
type Template string

const (
	TemplateUpdate     Template = "update"
	TemplateDeactivate Template = "deactivate"
	TemplateMembership Template = "membership"
)

// Recognized column names per template. Unrecognized columns in an input
// file are ignored; a missing optional column means "no change requested".
const (
	ColEmail        = "Email"
	ColFirstName    = "First_Name"
	ColLastName     = "Last_Name"
	ColDepartment   = "Department"
	ColManagerEmail = "Manager_Email"
	ColReason       = "Reason"
	ColGroupName    = "Group_Name"
	ColAction       = "Action"
)

// Columns returns the template's recognized column names in file order.
func (t Template) Columns() []string {
	switch t {
	case TemplateDeactivate:
		return []string{ColEmail, ColReason}
	case TemplateMembership:
		return []string{ColEmail, ColGroupName, ColAction}
	default:
		return []string{ColEmail, ColFirstName, ColLastName, ColDepartment, ColManagerEmail}
	}
}

// Row is one raw data row. Number counts from 2: the header occupies row 1,
// matching what a spreadsheet shows the operator.
type Row struct {
	Number int
	values map[string]string
}

// Get returns the trimmed cell value for a recognized column. An empty cell
// and an absent column are equivalent: no change requested.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r.values[column])
}

// Has reports whether the row supplies a non-empty value for the column.
func (r Row) Has(column string) bool {
	return r.Get(column) != ""
}
