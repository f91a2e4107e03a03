package helpdesk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/iota-uz/helpdesk-recon/pkg/directory"
)

const pageSize = 100

type requesterPayload struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	PrimaryEmail string `json:"primary_email"`
	DepartmentID *int64 `json:"department_id"`
	ManagerID    *int64 `json:"reporting_manager_id"`
	Active       bool   `json:"active"`
}

func (p requesterPayload) record() directory.UserRecord {
	return directory.UserRecord{
		ID:           p.ID,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Email:        p.PrimaryEmail,
		DepartmentID: p.DepartmentID,
		ManagerID:    p.ManagerID,
		IsAgent:      false,
		Active:       p.Active,
	}
}

type agentPayload struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	DepartmentID *int64 `json:"department_id"`
	ManagerID    *int64 `json:"reporting_manager_id"`
	Active       bool   `json:"active"`
}

func (p agentPayload) record() directory.UserRecord {
	return directory.UserRecord{
		ID:           p.ID,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Email:        p.Email,
		DepartmentID: p.DepartmentID,
		ManagerID:    p.ManagerID,
		IsAgent:      true,
		Active:       p.Active,
	}
}

type departmentPayload struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_department_id"`
}

type groupPayload struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Members []int64 `json:"members"`
}

func (c *Client) pagedQuery(extra url.Values, page int) url.Values {
	q := url.Values{}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("per_page", strconv.Itoa(pageSize))
	q.Set("page", strconv.Itoa(page))
	if c.workspaceID > 0 {
		q.Set("workspace_id", strconv.FormatInt(c.workspaceID, 10))
	}
	return q
}

// ListDepartments fetches every department in the workspace, following
// pagination until a short page.
func (c *Client) ListDepartments(ctx context.Context) ([]directory.DepartmentRecord, error) {
	var all []directory.DepartmentRecord
	for page := 1; ; page++ {
		var out struct {
			Departments []departmentPayload `json:"departments"`
		}
		if err := c.do(ctx, http.MethodGet, "/api/v2/departments", c.pagedQuery(nil, page), nil, &out); err != nil {
			return nil, err
		}
		for _, d := range out.Departments {
			all = append(all, directory.DepartmentRecord{ID: d.ID, Name: d.Name, ParentID: d.ParentID})
		}
		if len(out.Departments) < pageSize {
			return all, nil
		}
	}
}

func (c *Client) ListGroups(ctx context.Context) ([]directory.GroupRecord, error) {
	var all []directory.GroupRecord
	for page := 1; ; page++ {
		var out struct {
			Groups []groupPayload `json:"groups"`
		}
		if err := c.do(ctx, http.MethodGet, "/api/v2/groups", c.pagedQuery(nil, page), nil, &out); err != nil {
			return nil, err
		}
		for _, g := range out.Groups {
			all = append(all, directory.GroupRecord{ID: g.ID, Name: g.Name, MemberUserIDs: g.Members})
		}
		if len(out.Groups) < pageSize {
			return all, nil
		}
	}
}

// SearchUsersByEmail queries requesters and agents for an exact email. The
// platform filters server-side; zero or one match per endpoint is expected.
func (c *Client) SearchUsersByEmail(ctx context.Context, email string) ([]directory.UserRecord, error) {
	email = strings.TrimSpace(email)
	q := url.Values{}
	q.Set("email", email)

	var requesters struct {
		Requesters []requesterPayload `json:"requesters"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v2/requesters", c.pagedQuery(q, 1), nil, &requesters); err != nil {
		return nil, err
	}
	var agents struct {
		Agents []agentPayload `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v2/agents", c.pagedQuery(q, 1), nil, &agents); err != nil {
		return nil, err
	}

	users := make([]directory.UserRecord, 0, len(requesters.Requesters)+len(agents.Agents))
	for _, p := range requesters.Requesters {
		users = append(users, p.record())
	}
	for _, p := range agents.Agents {
		users = append(users, p.record())
	}
	return users, nil
}

// SearchUsersByName returns fuzzy-match candidates for a name query. It
// asks the platform to pre-filter with a query expression; some tenants
// reject query expressions, in which case it falls back to an unfiltered
// first page and lets the resolver narrow the result.
func (c *Client) SearchUsersByName(ctx context.Context, first, last string) ([]directory.UserRecord, error) {
	query := nameQuery(first, last)

	requesters, err := c.searchRequesters(ctx, query)
	if err != nil {
		return nil, err
	}
	agents, err := c.searchAgents(ctx, query)
	if err != nil {
		return nil, err
	}
	return append(requesters, agents...), nil
}

func nameQuery(first, last string) string {
	var parts []string
	if f := strings.TrimSpace(first); f != "" {
		parts = append(parts, fmt.Sprintf("~[first_name]:'%s'", f))
	}
	if l := strings.TrimSpace(last); l != "" {
		parts = append(parts, fmt.Sprintf("~[last_name]:'%s'", l))
	}
	return strings.Join(parts, " AND ")
}

func (c *Client) searchRequesters(ctx context.Context, query string) ([]directory.UserRecord, error) {
	q := url.Values{}
	if query != "" {
		q.Set("query", query)
	}
	var out struct {
		Requesters []requesterPayload `json:"requesters"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v2/requesters", c.pagedQuery(q, 1), nil, &out)
	if apiErr, ok := AsError(err); ok && apiErr.Kind == ErrValidation && query != "" {
		c.log.WithField("query", query).Debug("server rejected query expression, falling back to unfiltered page")
		err = c.do(ctx, http.MethodGet, "/api/v2/requesters", c.pagedQuery(nil, 1), nil, &out)
	}
	if err != nil {
		return nil, err
	}
	users := make([]directory.UserRecord, 0, len(out.Requesters))
	for _, p := range out.Requesters {
		users = append(users, p.record())
	}
	return users, nil
}

func (c *Client) searchAgents(ctx context.Context, query string) ([]directory.UserRecord, error) {
	q := url.Values{}
	if query != "" {
		q.Set("query", query)
	}
	var out struct {
		Agents []agentPayload `json:"agents"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v2/agents", c.pagedQuery(q, 1), nil, &out)
	if apiErr, ok := AsError(err); ok && apiErr.Kind == ErrValidation && query != "" {
		err = c.do(ctx, http.MethodGet, "/api/v2/agents", c.pagedQuery(nil, 1), nil, &out)
	}
	if err != nil {
		return nil, err
	}
	users := make([]directory.UserRecord, 0, len(out.Agents))
	for _, p := range out.Agents {
		users = append(users, p.record())
	}
	return users, nil
}

// UpdateUser applies a partial update carrying only the changed wire fields
// and returns the server's persisted representation.
func (c *Client) UpdateUser(ctx context.Context, user directory.UserRecord, fields map[string]any) (directory.UserRecord, error) {
	if user.IsAgent {
		var out struct {
			Agent agentPayload `json:"agent"`
		}
		path := fmt.Sprintf("/api/v2/agents/%d", user.ID)
		if err := c.do(ctx, http.MethodPut, path, nil, fields, &out); err != nil {
			return directory.UserRecord{}, err
		}
		return out.Agent.record(), nil
	}
	var out struct {
		Requester requesterPayload `json:"requester"`
	}
	path := fmt.Sprintf("/api/v2/requesters/%d", user.ID)
	if err := c.do(ctx, http.MethodPut, path, nil, fields, &out); err != nil {
		return directory.UserRecord{}, err
	}
	return out.Requester.record(), nil
}

// DeactivateUser marks the user inactive. The platform answers 204.
func (c *Client) DeactivateUser(ctx context.Context, user directory.UserRecord) error {
	return c.do(ctx, http.MethodDelete, UserPath(user), nil, nil, nil)
}

func (c *Client) ReactivateUser(ctx context.Context, user directory.UserRecord) (directory.UserRecord, error) {
	if user.IsAgent {
		var out struct {
			Agent agentPayload `json:"agent"`
		}
		if err := c.do(ctx, http.MethodPut, UserPath(user)+"/reactivate", nil, nil, &out); err != nil {
			return directory.UserRecord{}, err
		}
		return out.Agent.record(), nil
	}
	var out struct {
		Requester requesterPayload `json:"requester"`
	}
	if err := c.do(ctx, http.MethodPut, UserPath(user)+"/reactivate", nil, nil, &out); err != nil {
		return directory.UserRecord{}, err
	}
	return out.Requester.record(), nil
}

// AddGroupMember is idempotent per (group, user) pair on the platform side.
func (c *Client) AddGroupMember(ctx context.Context, user directory.UserRecord, groupID int64) error {
	payload := map[string]any{"group_ids": []int64{groupID}}
	return c.do(ctx, http.MethodPost, UserPath(user)+"/groups", nil, payload, nil)
}

func (c *Client) RemoveGroupMember(ctx context.Context, user directory.UserRecord, groupID int64) error {
	path := fmt.Sprintf("%s/groups/%d", UserPath(user), groupID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func UserPath(user directory.UserRecord) string {
	if user.IsAgent {
		return fmt.Sprintf("/api/v2/agents/%d", user.ID)
	}
	return fmt.Sprintf("/api/v2/requesters/%d", user.ID)
}
