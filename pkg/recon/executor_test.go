package recon

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/helpdesk-recon/pkg/batch"
	"github.com/iota-uz/helpdesk-recon/pkg/directory"
	"github.com/iota-uz/helpdesk-recon/pkg/helpdesk"
)

// fakeGateway serves canned directory data and counts mutating calls.
type fakeGateway struct {
	users  []directory.UserRecord
	groups []directory.GroupRecord

	updateErr     error
	deactivateErr error

	updateCalls     int
	deactivateCalls int
	addCalls        int
	removeCalls     int
}

func (f *fakeGateway) SearchUsersByEmail(ctx context.Context, email string) ([]directory.UserRecord, error) {
	var out []directory.UserRecord
	for _, u := range f.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeGateway) SearchUsersByName(ctx context.Context, first, last string) ([]directory.UserRecord, error) {
	return f.users, nil
}

func (f *fakeGateway) UpdateUser(ctx context.Context, user directory.UserRecord, fields map[string]any) (directory.UserRecord, error) {
	f.updateCalls++
	if f.updateErr != nil {
		return directory.UserRecord{}, f.updateErr
	}
	updated := user
	if v, ok := fields["first_name"].(string); ok {
		updated.FirstName = v
	}
	if v, ok := fields["last_name"].(string); ok {
		updated.LastName = v
	}
	if v, ok := fields["department_id"].(int64); ok {
		updated.DepartmentID = &v
	}
	if v, ok := fields["reporting_manager_id"].(int64); ok {
		updated.ManagerID = &v
	}
	if v, ok := fields["active"].(bool); ok {
		updated.Active = v
	}
	return updated, nil
}

func (f *fakeGateway) DeactivateUser(ctx context.Context, user directory.UserRecord) error {
	f.deactivateCalls++
	return f.deactivateErr
}

func (f *fakeGateway) AddGroupMember(ctx context.Context, user directory.UserRecord, groupID int64) error {
	f.addCalls++
	return nil
}

func (f *fakeGateway) RemoveGroupMember(ctx context.Context, user directory.UserRecord, groupID int64) error {
	f.removeCalls++
	return nil
}

func (f *fakeGateway) mutationCalls() int {
	return f.updateCalls + f.deactivateCalls + f.addCalls + f.removeCalls
}

func (f *fakeGateway) ListDepartments(ctx context.Context) ([]directory.DepartmentRecord, error) {
	return nil, nil
}

func (f *fakeGateway) ListGroups(ctx context.Context) ([]directory.GroupRecord, error) {
	return f.groups, nil
}

func newTestExecutor(gw *fakeGateway) (*Executor, *helpdesk.AuditLog) {
	resolver := directory.NewResolver(directory.DefaultSimilarityThreshold)
	audit := helpdesk.NewAuditLog()
	return NewExecutor(gw, resolver, directory.NewCache(gw), audit, nil), audit
}

func updateRequest(row int, email string, fields map[string]any) batch.ChangeRequest {
	return batch.ChangeRequest{
		RowNumber: row,
		Kind:      batch.KindUpdate,
		Identity:  directory.EmailIdentity{Email: email},
		Fields:    fields,
	}
}

func TestExecute_DryRunNeverMutates(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		users: []directory.UserRecord{
			{ID: 1, FirstName: "Jon", Email: "jon@example.com", Active: true},
		},
		groups: []directory.GroupRecord{{ID: 42, Name: "Hardware"}},
	}
	exec, audit := newTestExecutor(gw)

	requests := []batch.ChangeRequest{
		updateRequest(2, "jon@example.com", map[string]any{batch.FieldFirstName: "John"}),
		{
			RowNumber: 3,
			Kind:      batch.KindDeactivate,
			Identity:  directory.EmailIdentity{Email: "jon@example.com"},
			Fields:    map[string]any{batch.FieldActive: false},
		},
		{
			RowNumber: 4,
			Kind:      batch.KindMembership,
			Identity:  directory.EmailIdentity{Email: "jon@example.com"},
			GroupID:   42,
			GroupName: "Hardware",
			Action:    batch.ActionAdd,
		},
	}

	outcomes, err := exec.Execute(context.Background(), requests, DryRun)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.Equal(t, StatusSimulated, o.Status, "row %d", o.RowNumber)
	}
	assert.Equal(t, 0, gw.mutationCalls(), "dry-run must not reach the gateway's mutating calls")

	// Each simulated mutation leaves a marked audit entry.
	entries := audit.Entries()
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.True(t, e.Simulated)
	}
}

func TestExecute_DryRunIsRepeatable(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{users: []directory.UserRecord{
		{ID: 1, FirstName: "Jon", Email: "jon@example.com", Active: true},
	}}
	exec, _ := newTestExecutor(gw)
	requests := []batch.ChangeRequest{
		updateRequest(2, "jon@example.com", map[string]any{batch.FieldFirstName: "John"}),
	}

	first, err := exec.Execute(context.Background(), requests, DryRun)
	require.NoError(t, err)
	second, err := exec.Execute(context.Background(), requests, DryRun)
	require.NoError(t, err)

	assert.Equal(t, first[0].Status, second[0].Status)
	assert.Equal(t, first[0].Before, second[0].Before)
	assert.Equal(t, first[0].After, second[0].After)
	assert.Equal(t, 0, gw.mutationCalls())
}

func TestExecute_UpdateAfterComesFromServer(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{users: []directory.UserRecord{
		{ID: 1, FirstName: "Jon", Email: "jon@example.com", Active: true},
	}}
	exec, _ := newTestExecutor(gw)

	outcomes, err := exec.Execute(context.Background(), []batch.ChangeRequest{
		updateRequest(2, "jon@example.com", map[string]any{batch.FieldFirstName: "John"}),
	}, Live)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	assert.Equal(t, StatusApplied, outcomes[0].Status)
	assert.Equal(t, map[string]any{batch.FieldFirstName: "Jon"}, outcomes[0].Before)
	assert.Equal(t, map[string]any{batch.FieldFirstName: "John"}, outcomes[0].After)
	assert.Equal(t, 1, gw.updateCalls)
}

func TestExecute_SkipsNoMatchAndAmbiguous(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{users: []directory.UserRecord{
		{ID: 1, FirstName: "John", LastName: "Smith", Email: "john.s@example.com", Active: true},
		{ID: 2, FirstName: "John", LastName: "Smith", Email: "john.s2@example.com", Active: true},
	}}
	exec, _ := newTestExecutor(gw)

	outcomes, err := exec.Execute(context.Background(), []batch.ChangeRequest{
		updateRequest(2, "ghost@example.com", map[string]any{batch.FieldFirstName: "X"}),
		{
			RowNumber: 3,
			Kind:      batch.KindUpdate,
			Identity:  directory.NameIdentity{First: "John", Last: "Smith"},
			Fields:    map[string]any{batch.FieldFirstName: "Jon"},
		},
	}, Live)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, StatusSkipped, outcomes[0].Status)
	assert.Equal(t, "no matching user", outcomes[0].Error)
	assert.Equal(t, StatusSkipped, outcomes[1].Status)
	assert.Contains(t, outcomes[1].Error, "ambiguous identity: 2 candidates")
	assert.Equal(t, 0, gw.mutationCalls())
}

func TestExecute_RowFailureDoesNotStopBatch(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		users: []directory.UserRecord{
			{ID: 1, Email: "a@example.com", Active: true},
			{ID: 2, Email: "b@example.com", Active: true},
			{ID: 3, Email: "c@example.com", Active: true},
		},
	}
	requests := []batch.ChangeRequest{
		updateRequest(2, "a@example.com", map[string]any{batch.FieldFirstName: "A"}),
		updateRequest(3, "b@example.com", map[string]any{batch.FieldFirstName: "B"}),
		updateRequest(4, "c@example.com", map[string]any{batch.FieldFirstName: "C"}),
	}

	// Fail only the middle row with a validation error from the platform.
	gwWrapped := &flakyGateway{fakeGateway: gw, failRow: 2}
	exec := NewExecutor(gwWrapped, directory.NewResolver(directory.DefaultSimilarityThreshold), directory.NewCache(gw), helpdesk.NewAuditLog(), nil)

	outcomes, err := exec.Execute(context.Background(), requests, Live)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusApplied, outcomes[0].Status)
	assert.Equal(t, StatusFailed, outcomes[1].Status)
	assert.Contains(t, outcomes[1].Error, "status=422")
	assert.Equal(t, StatusApplied, outcomes[2].Status)
}

// flakyGateway fails UpdateUser on the nth call (1-based counting).
type flakyGateway struct {
	*fakeGateway
	failRow int
	calls   int
}

func (f *flakyGateway) UpdateUser(ctx context.Context, user directory.UserRecord, fields map[string]any) (directory.UserRecord, error) {
	f.calls++
	if f.calls == f.failRow {
		return directory.UserRecord{}, &helpdesk.Error{Kind: helpdesk.ErrValidation, StatusCode: 422, Body: "rejected"}
	}
	return f.fakeGateway.UpdateUser(ctx, user, fields)
}

func TestExecute_AuthFailureAbortsBatch(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		users: []directory.UserRecord{
			{ID: 1, Email: "a@example.com", Active: true},
			{ID: 2, Email: "b@example.com", Active: true},
		},
		updateErr: &helpdesk.Error{Kind: helpdesk.ErrAuth, StatusCode: 401, Body: "invalid key"},
	}
	exec, _ := newTestExecutor(gw)

	outcomes, err := exec.Execute(context.Background(), []batch.ChangeRequest{
		updateRequest(2, "a@example.com", map[string]any{batch.FieldFirstName: "A"}),
		updateRequest(3, "b@example.com", map[string]any{batch.FieldFirstName: "B"}),
	}, Live)

	require.ErrorIs(t, err, ErrAuthFailed)
	// Partial outcomes survive the abort; the second row was never attempted.
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Equal(t, 1, gw.updateCalls)
}

func TestExecute_DeactivateSkipsAlreadyInactive(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{users: []directory.UserRecord{
		{ID: 1, Email: "gone@example.com", Active: false},
	}}
	exec, _ := newTestExecutor(gw)

	outcomes, err := exec.Execute(context.Background(), []batch.ChangeRequest{{
		RowNumber: 2,
		Kind:      batch.KindDeactivate,
		Identity:  directory.EmailIdentity{Email: "gone@example.com"},
		Fields:    map[string]any{batch.FieldActive: false},
	}}, Live)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusSkipped, outcomes[0].Status)
	assert.Equal(t, "already deactivated", outcomes[0].Error)
	assert.Equal(t, 0, gw.deactivateCalls)
}

func TestExecute_MembershipIdempotence(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		users: []directory.UserRecord{
			{ID: 7, Email: "in@example.com", Active: true},
			{ID: 8, Email: "out@example.com", Active: true},
		},
		groups: []directory.GroupRecord{{ID: 42, Name: "Hardware", MemberUserIDs: []int64{7}}},
	}
	exec, _ := newTestExecutor(gw)

	outcomes, err := exec.Execute(context.Background(), []batch.ChangeRequest{
		{
			RowNumber: 2, Kind: batch.KindMembership, Action: batch.ActionAdd,
			Identity: directory.EmailIdentity{Email: "in@example.com"}, GroupID: 42, GroupName: "Hardware",
		},
		{
			RowNumber: 3, Kind: batch.KindMembership, Action: batch.ActionRemove,
			Identity: directory.EmailIdentity{Email: "out@example.com"}, GroupID: 42, GroupName: "Hardware",
		},
	}, Live)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, StatusSkipped, outcomes[0].Status)
	assert.Equal(t, "already a member of Hardware", outcomes[0].Error)
	assert.Equal(t, StatusSkipped, outcomes[1].Status)
	assert.Equal(t, "not a member of Hardware", outcomes[1].Error)
	assert.Equal(t, 0, gw.mutationCalls())
}

func TestExecute_MembershipAppliesAndInvalidatesCache(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		users:  []directory.UserRecord{{ID: 8, Email: "new@example.com", Active: true}},
		groups: []directory.GroupRecord{{ID: 42, Name: "Hardware", MemberUserIDs: []int64{7}}},
	}
	resolver := directory.NewResolver(directory.DefaultSimilarityThreshold)
	cache := directory.NewCache(gw)
	exec := NewExecutor(gw, resolver, cache, helpdesk.NewAuditLog(), nil)

	// Warm the cache so invalidation is observable.
	_, err := cache.Groups(context.Background())
	require.NoError(t, err)

	outcomes, err := exec.Execute(context.Background(), []batch.ChangeRequest{{
		RowNumber: 2, Kind: batch.KindMembership, Action: batch.ActionAdd,
		Identity: directory.EmailIdentity{Email: "new@example.com"}, GroupID: 42, GroupName: "Hardware",
	}}, Live)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusApplied, outcomes[0].Status)
	assert.Equal(t, map[string]any{"member_of": "not in Hardware"}, outcomes[0].Before)
	assert.Equal(t, map[string]any{"member_of": "member of Hardware"}, outcomes[0].After)
	assert.Equal(t, 1, gw.addCalls)

	// The apply invalidated the cache: the next read refetches.
	gw.groups = []directory.GroupRecord{{ID: 42, Name: "Hardware", MemberUserIDs: []int64{7, 8}}}
	groups, err := cache.Groups(context.Background())
	require.NoError(t, err)
	assert.True(t, groups[0].HasMember(8))
}

func TestExecute_MembershipGroupDisappeared(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{
		users:  []directory.UserRecord{{ID: 8, Email: "a@example.com", Active: true}},
		groups: nil,
	}
	exec, _ := newTestExecutor(gw)

	outcomes, err := exec.Execute(context.Background(), []batch.ChangeRequest{{
		RowNumber: 2, Kind: batch.KindMembership, Action: batch.ActionAdd,
		Identity: directory.EmailIdentity{Email: "a@example.com"}, GroupID: 42, GroupName: "Hardware",
	}}, Live)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusSkipped, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Error, "group Hardware no longer exists")
}

func TestExecute_DeferredManagerResolution(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{users: []directory.UserRecord{
		{ID: 1, Email: "emp@example.com", Active: true},
		{ID: 99, Email: "boss@example.com", Active: true},
	}}
	exec, _ := newTestExecutor(gw)

	outcomes, err := exec.Execute(context.Background(), []batch.ChangeRequest{
		updateRequest(2, "emp@example.com", map[string]any{batch.FieldManager: "boss@example.com"}),
		updateRequest(3, "emp@example.com", map[string]any{batch.FieldManager: "ghost@example.com"}),
	}, Live)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, StatusApplied, outcomes[0].Status)
	assert.Equal(t, map[string]any{batch.FieldManager: int64(99)}, outcomes[0].After)

	assert.Equal(t, StatusSkipped, outcomes[1].Status)
	assert.Contains(t, outcomes[1].Error, "manager not found: ghost@example.com")
}

func TestExecute_ContextCancellationStopsBetweenRows(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{users: []directory.UserRecord{
		{ID: 1, Email: "a@example.com", Active: true},
	}}
	exec, _ := newTestExecutor(gw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, err := exec.Execute(ctx, []batch.ChangeRequest{
		updateRequest(2, "a@example.com", map[string]any{batch.FieldFirstName: "A"}),
	}, Live)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, outcomes)
	assert.Equal(t, 0, gw.mutationCalls())
}
