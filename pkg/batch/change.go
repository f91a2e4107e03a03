package batch

import (
	"github.com/iota-uz/helpdesk-recon/pkg/directory"
)

// Attribute names a ChangeRequest may carry. Reference fields hold resolved
// platform IDs once validation has proven them unique.
const (
	FieldFirstName  = "first_name"
	FieldLastName   = "last_name"
	FieldDepartment = "department_ref"
	FieldManager    = "manager_ref"
	FieldActive     = "active"
)

type Kind string

const (
	KindUpdate     Kind = "update"
	KindDeactivate Kind = "deactivate"
	KindMembership Kind = "membership"
)

type MembershipAction string

const (
	ActionAdd    MembershipAction = "add"
	ActionRemove MembershipAction = "remove"
)

// ChangeRequest is one validated row of desired mutation. Fields contains
// exactly the attributes present in the source row; an absent attribute is
// never touched (partial-update semantics).
type ChangeRequest struct {
	RowNumber int
	Kind      Kind
	Identity  directory.Identity
	Fields    map[string]any

	// Deactivation reason, informational only.
	Reason string

	// Membership target, resolved during validation.
	GroupID   int64
	GroupName string
	Action    MembershipAction
}

type ValidationError struct {
	RowNumber int
	Field     string
	Message   string
}

// RowErrors collects every validation failure for one rejected row. A row
// with at least one error is rejected wholesale; there is no partial-row
// apply.
type RowErrors struct {
	RowNumber int
	Errors    []ValidationError
}
