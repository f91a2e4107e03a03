package directory

// WorkspaceContext scopes one reconciliation pass to a single tenant
// workspace. Switching workspace invalidates the record cache.
type WorkspaceContext struct {
	WorkspaceID int64
	DryRun      bool
}

// UserRecord is the platform's view of a requester or agent. Mutations go
// through the reconciliation executor only; records are never held as
// write-back copies.
type UserRecord struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	DepartmentID *int64 `json:"department_id,omitempty"`
	ManagerID    *int64 `json:"manager_id,omitempty"`
	IsAgent      bool   `json:"is_agent"`
	Active       bool   `json:"active"`
}

// FullName returns "First Last" with either side optional.
func (u UserRecord) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// DepartmentRecord is read-only from this module's perspective. Names are
// not guaranteed unique within a workspace.
type DepartmentRecord struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

type GroupRecord struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	MemberUserIDs []int64 `json:"member_user_ids,omitempty"`
}

// HasMember reports whether userID is already in the group's member set.
func (g GroupRecord) HasMember(userID int64) bool {
	for _, id := range g.MemberUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
