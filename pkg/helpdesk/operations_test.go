package helpdesk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/helpdesk-recon/pkg/directory"
)

func TestListDepartments_Pagination(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/departments", r.URL.Path)
		require.Equal(t, "100", r.URL.Query().Get("per_page"))

		var departments []departmentPayload
		switch r.URL.Query().Get("page") {
		case "1":
			for i := 0; i < pageSize; i++ {
				departments = append(departments, departmentPayload{ID: int64(i + 1), Name: fmt.Sprintf("Dept %d", i+1)})
			}
		case "2":
			departments = []departmentPayload{{ID: 999, Name: "Last"}}
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"departments": departments})
	}))

	depts, err := client.ListDepartments(context.Background())
	require.NoError(t, err)
	assert.Len(t, depts, pageSize+1)
	assert.Equal(t, "Last", depts[pageSize].Name)
}

func TestSearchUsersByEmail_MergesRequestersAndAgents(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "jane@example.com", r.URL.Query().Get("email"))
		switch r.URL.Path {
		case "/api/v2/requesters":
			_ = json.NewEncoder(w).Encode(map[string]any{"requesters": []requesterPayload{
				{ID: 1, PrimaryEmail: "jane@example.com", Active: true},
			}})
		case "/api/v2/agents":
			_ = json.NewEncoder(w).Encode(map[string]any{"agents": []agentPayload{
				{ID: 2, Email: "jane@example.com", Active: true},
			}})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))

	users, err := client.SearchUsersByEmail(context.Background(), " jane@example.com ")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.False(t, users[0].IsAgent)
	assert.True(t, users[1].IsAgent)
}

func TestSearchUsersByName_QueryExpressionFallback(t *testing.T) {
	t.Parallel()

	var rejected int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") != "" {
			rejected++
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/api/v2/requesters":
			_ = json.NewEncoder(w).Encode(map[string]any{"requesters": []requesterPayload{
				{ID: 1, FirstName: "John", LastName: "Smith", PrimaryEmail: "john@example.com"},
			}})
		case "/api/v2/agents":
			_ = json.NewEncoder(w).Encode(map[string]any{"agents": []agentPayload{}})
		}
	}))

	users, err := client.SearchUsersByName(context.Background(), "John", "Smith")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "John", users[0].FirstName)
	assert.Equal(t, 2, rejected, "each endpoint rejects the query expression once")
}

func TestNameQuery(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "~[first_name]:'John' AND ~[last_name]:'Smith'", nameQuery("John", "Smith"))
	assert.Equal(t, "~[first_name]:'John'", nameQuery(" John ", ""))
	assert.Equal(t, "~[last_name]:'Smith'", nameQuery("", "Smith"))
	assert.Equal(t, "", nameQuery("", ""))
}

func TestUpdateUser_RoutesByUserType(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		var fields map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&fields))
		require.Equal(t, "Jane", fields["first_name"])

		switch r.URL.Path {
		case "/api/v2/requesters/7":
			_ = json.NewEncoder(w).Encode(map[string]any{"requester": requesterPayload{
				ID: 7, FirstName: "Jane", PrimaryEmail: "jane@example.com", Active: true,
			}})
		case "/api/v2/agents/8":
			_ = json.NewEncoder(w).Encode(map[string]any{"agent": agentPayload{
				ID: 8, FirstName: "Jane", Email: "jane.agent@example.com", Active: true,
			}})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))

	fields := map[string]any{"first_name": "Jane"}

	updated, err := client.UpdateUser(context.Background(), directory.UserRecord{ID: 7}, fields)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", updated.Email)
	assert.False(t, updated.IsAgent)

	updated, err = client.UpdateUser(context.Background(), directory.UserRecord{ID: 8, IsAgent: true}, fields)
	require.NoError(t, err)
	assert.Equal(t, "jane.agent@example.com", updated.Email)
	assert.True(t, updated.IsAgent)
}

func TestDeactivateUser(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	err := client.DeactivateUser(context.Background(), directory.UserRecord{ID: 7})
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/api/v2/requesters/7", gotPath)
}

func TestReactivateUser(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/v2/requesters/7/reactivate", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"requester": requesterPayload{
			ID: 7, PrimaryEmail: "back@example.com", Active: true,
		}})
	}))

	user, err := client.ReactivateUser(context.Background(), directory.UserRecord{ID: 7})
	require.NoError(t, err)
	assert.True(t, user.Active)
	assert.Equal(t, "back@example.com", user.Email)
}

func TestGroupMembershipCalls(t *testing.T) {
	t.Parallel()

	type call struct {
		method, path string
		body         map[string]any
	}
	var calls []call
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := call{method: r.Method, path: r.URL.Path}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&c.body)
		}
		calls = append(calls, c)
		w.WriteHeader(http.StatusOK)
	}))

	user := directory.UserRecord{ID: 7}
	require.NoError(t, client.AddGroupMember(context.Background(), user, 42))
	require.NoError(t, client.RemoveGroupMember(context.Background(), user, 42))

	require.Len(t, calls, 2)
	assert.Equal(t, http.MethodPost, calls[0].method)
	assert.Equal(t, "/api/v2/requesters/7/groups", calls[0].path)
	assert.Equal(t, []any{float64(42)}, calls[0].body["group_ids"])
	assert.Equal(t, http.MethodDelete, calls[1].method)
	assert.Equal(t, "/api/v2/requesters/7/groups/42", calls[1].path)
}

func TestUserPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/api/v2/requesters/3", UserPath(directory.UserRecord{ID: 3}))
	assert.Equal(t, "/api/v2/agents/3", UserPath(directory.UserRecord{ID: 3, IsAgent: true}))
}
