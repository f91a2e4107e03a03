package recon

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/helpdesk-recon/pkg/batch"
	"github.com/iota-uz/helpdesk-recon/pkg/directory"
	"github.com/iota-uz/helpdesk-recon/pkg/helpdesk"
)

// Mode selects between a non-mutating simulation and live execution. The
// two are mutually exclusive for one pass.
type Mode int

const (
	DryRun Mode = iota
	Live
)

func (m Mode) String() string {
	if m == Live {
		return "live"
	}
	return "dry-run"
}

// ErrAuthFailed aborts the remaining batch: invalid credentials fail the
// whole run, not the row.
var ErrAuthFailed = errors.New("authentication failed, aborting batch")

// Gateway is the slice of the API client the executor mutates through.
type Gateway interface {
	SearchUsersByEmail(ctx context.Context, email string) ([]directory.UserRecord, error)
	SearchUsersByName(ctx context.Context, first, last string) ([]directory.UserRecord, error)
	UpdateUser(ctx context.Context, user directory.UserRecord, fields map[string]any) (directory.UserRecord, error)
	DeactivateUser(ctx context.Context, user directory.UserRecord) error
	AddGroupMember(ctx context.Context, user directory.UserRecord, groupID int64) error
	RemoveGroupMember(ctx context.Context, user directory.UserRecord, groupID int64) error
}

// Executor applies validated change requests one record at a time, strictly
// in input order. Sequential processing is deliberate: audit ordering and
// rate-limit token consumption stay deterministic and reproducible from the
// same input file.
type Executor struct {
	gateway  Gateway
	resolver *directory.Resolver
	cache    *directory.Cache
	audit    *helpdesk.AuditLog
	log      *logrus.Entry
}

func NewExecutor(gateway Gateway, resolver *directory.Resolver, cache *directory.Cache, audit *helpdesk.AuditLog, logger *logrus.Logger) *Executor {
	if logger == nil {
		logger = logrus.New()
	}
	if audit == nil {
		audit = helpdesk.NewAuditLog()
	}
	return &Executor{
		gateway:  gateway,
		resolver: resolver,
		cache:    cache,
		audit:    audit,
		log:      logger.WithField("component", "recon"),
	}
}

// Execute processes every request and always returns the outcomes produced
// so far, even when the returned error is non-nil. Per-row gateway failures
// become Failed outcomes; only AUTH failures and batch-level cancellation
// cut the pass short, and both stop before the next request, never mid-row.
func (e *Executor) Execute(ctx context.Context, requests []batch.ChangeRequest, mode Mode) ([]OutcomeRecord, error) {
	outcomes := make([]OutcomeRecord, 0, len(requests))
	for _, req := range requests {
		select {
		case <-ctx.Done():
			return outcomes, ctx.Err()
		default:
		}

		outcome := e.executeOne(ctx, req, mode)
		outcomes = append(outcomes, outcome)
		e.log.WithFields(logrus.Fields{
			"row":      req.RowNumber,
			"identity": outcome.Identity,
			"status":   outcome.Status,
			"mode":     mode.String(),
		}).Info("request processed")

		if outcome.Status == StatusFailed {
			if apiErr, ok := helpdesk.AsError(outcome.apiError); ok && apiErr.Kind == helpdesk.ErrAuth {
				return outcomes, errors.Wrap(ErrAuthFailed, apiErr.Error())
			}
		}
	}
	return outcomes, nil
}

func (e *Executor) executeOne(ctx context.Context, req batch.ChangeRequest, mode Mode) OutcomeRecord {
	outcome := OutcomeRecord{
		RowNumber: req.RowNumber,
		Identity:  req.Identity.Summary(),
	}

	user, skip, apiErr := e.resolveTarget(ctx, req.Identity)
	if apiErr != nil {
		return failed(outcome, apiErr)
	}
	if skip != "" {
		outcome.Status = StatusSkipped
		outcome.Error = skip
		return outcome
	}

	switch req.Kind {
	case batch.KindDeactivate:
		return e.executeDeactivate(ctx, req, user, mode, outcome)
	case batch.KindMembership:
		return e.executeMembership(ctx, req, user, mode, outcome)
	default:
		return e.executeUpdate(ctx, req, user, mode, outcome)
	}
}

// resolveTarget runs a fresh, non-cached user query and applies the
// resolver. Batch mode never guesses: anything but a unique match skips the
// row.
func (e *Executor) resolveTarget(ctx context.Context, identity directory.Identity) (directory.UserRecord, string, error) {
	var candidates []directory.UserRecord
	var err error
	switch id := identity.(type) {
	case directory.EmailIdentity:
		candidates, err = e.gateway.SearchUsersByEmail(ctx, id.Email)
	case directory.NameIdentity:
		candidates, err = e.gateway.SearchUsersByName(ctx, id.First, id.Last)
	default:
		return directory.UserRecord{}, "no matching user", nil
	}
	if err != nil {
		return directory.UserRecord{}, "", err
	}

	switch res := e.resolver.ResolveUser(identity, candidates); res.Kind {
	case directory.UniqueMatch:
		return res.Match, "", nil
	case directory.AmbiguousMatch:
		return directory.UserRecord{}, fmt.Sprintf("ambiguous identity: %d candidates match", len(res.Candidates)), nil
	default:
		return directory.UserRecord{}, "no matching user", nil
	}
}

func (e *Executor) executeUpdate(ctx context.Context, req batch.ChangeRequest, user directory.UserRecord, mode Mode, outcome OutcomeRecord) OutcomeRecord {
	wire := make(map[string]any, len(req.Fields))
	before := make(map[string]any, len(req.Fields))
	after := make(map[string]any, len(req.Fields))

	for field, value := range req.Fields {
		switch field {
		case batch.FieldFirstName:
			before[field] = user.FirstName
			after[field] = value
			wire["first_name"] = value
		case batch.FieldLastName:
			before[field] = user.LastName
			after[field] = value
			wire["last_name"] = value
		case batch.FieldDepartment:
			before[field] = refValue(user.DepartmentID)
			after[field] = value
			wire["department_id"] = value
		case batch.FieldManager:
			managerID, skip, apiErr := e.managerID(ctx, value)
			if apiErr != nil {
				return failed(outcome, apiErr)
			}
			if skip != "" {
				outcome.Status = StatusSkipped
				outcome.Error = skip
				return outcome
			}
			before[field] = refValue(user.ManagerID)
			after[field] = managerID
			wire["reporting_manager_id"] = managerID
		case batch.FieldActive:
			before[field] = user.Active
			after[field] = value
			wire["active"] = value
		}
	}
	outcome.Before = before

	if mode == DryRun {
		e.audit.Record(http.MethodPut, helpdesk.UserPath(user), wire, true)
		outcome.Status = StatusSimulated
		outcome.After = after
		return outcome
	}

	updated, err := e.gateway.UpdateUser(ctx, user, wire)
	if err != nil {
		return failed(outcome, err)
	}
	// Never assume the write matched what the server persisted: the after
	// snapshot comes from the returned representation.
	persisted := make(map[string]any, len(req.Fields))
	for field := range req.Fields {
		switch field {
		case batch.FieldFirstName:
			persisted[field] = updated.FirstName
		case batch.FieldLastName:
			persisted[field] = updated.LastName
		case batch.FieldDepartment:
			persisted[field] = refValue(updated.DepartmentID)
		case batch.FieldManager:
			persisted[field] = refValue(updated.ManagerID)
		case batch.FieldActive:
			persisted[field] = updated.Active
		}
	}
	outcome.Status = StatusApplied
	outcome.After = persisted

	if _, ok := req.Fields[batch.FieldDepartment]; ok {
		e.cache.Invalidate()
	}
	return outcome
}

func (e *Executor) executeDeactivate(ctx context.Context, req batch.ChangeRequest, user directory.UserRecord, mode Mode, outcome OutcomeRecord) OutcomeRecord {
	outcome.Before = map[string]any{batch.FieldActive: user.Active}

	if !user.Active {
		outcome.Status = StatusSkipped
		outcome.Error = "already deactivated"
		return outcome
	}

	if mode == DryRun {
		e.audit.Record(http.MethodDelete, helpdesk.UserPath(user), nil, true)
		outcome.Status = StatusSimulated
		outcome.After = map[string]any{batch.FieldActive: false}
		return outcome
	}

	if err := e.gateway.DeactivateUser(ctx, user); err != nil {
		return failed(outcome, err)
	}
	// The platform confirms with an empty 204; the deactivated state is the
	// confirmed representation.
	outcome.Status = StatusApplied
	outcome.After = map[string]any{batch.FieldActive: false}
	return outcome
}

func (e *Executor) executeMembership(ctx context.Context, req batch.ChangeRequest, user directory.UserRecord, mode Mode, outcome OutcomeRecord) OutcomeRecord {
	groups, err := e.cache.Groups(ctx)
	if err != nil {
		return failed(outcome, err)
	}
	var group directory.GroupRecord
	found := false
	for _, g := range groups {
		if g.ID == req.GroupID {
			group = g
			found = true
			break
		}
	}
	if !found {
		outcome.Status = StatusSkipped
		outcome.Error = fmt.Sprintf("group %s no longer exists", req.GroupName)
		return outcome
	}

	isMember := group.HasMember(user.ID)
	outcome.Before = map[string]any{"member_of": memberLabel(group.Name, isMember)}

	// Membership edits are idempotent per (group, user, action); a no-op is
	// reported rather than re-applied.
	if req.Action == batch.ActionAdd && isMember {
		outcome.Status = StatusSkipped
		outcome.Error = fmt.Sprintf("already a member of %s", group.Name)
		return outcome
	}
	if req.Action == batch.ActionRemove && !isMember {
		outcome.Status = StatusSkipped
		outcome.Error = fmt.Sprintf("not a member of %s", group.Name)
		return outcome
	}

	wantMember := req.Action == batch.ActionAdd
	after := map[string]any{"member_of": memberLabel(group.Name, wantMember)}

	if mode == DryRun {
		method := http.MethodPost
		path := helpdesk.UserPath(user) + "/groups"
		if req.Action == batch.ActionRemove {
			method = http.MethodDelete
			path = fmt.Sprintf("%s/groups/%d", helpdesk.UserPath(user), group.ID)
		}
		e.audit.Record(method, path, map[string]any{"group_ids": []int64{group.ID}}, true)
		outcome.Status = StatusSimulated
		outcome.After = after
		return outcome
	}

	if wantMember {
		err = e.gateway.AddGroupMember(ctx, user, group.ID)
	} else {
		err = e.gateway.RemoveGroupMember(ctx, user, group.ID)
	}
	if err != nil {
		return failed(outcome, err)
	}
	outcome.Status = StatusApplied
	outcome.After = after

	// The cached member sets are stale now; the next resolution must see the
	// new membership.
	e.cache.Invalidate()
	return outcome
}

// managerID resolves a manager reference carried as an email (the validator
// defers the existence check when live lookups are disabled there).
func (e *Executor) managerID(ctx context.Context, value any) (int64, string, error) {
	switch v := value.(type) {
	case int64:
		return v, "", nil
	case string:
		candidates, err := e.gateway.SearchUsersByEmail(ctx, v)
		if err != nil {
			return 0, "", err
		}
		switch res := e.resolver.ResolveManager(v, candidates); res.Kind {
		case directory.UniqueMatch:
			return res.Match.ID, "", nil
		case directory.AmbiguousMatch:
			return 0, fmt.Sprintf("manager %s matches %d users", v, len(res.Candidates)), nil
		default:
			return 0, fmt.Sprintf("manager not found: %s", v), nil
		}
	default:
		return 0, fmt.Sprintf("unsupported manager reference %v", value), nil
	}
}

func refValue(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func memberLabel(group string, member bool) string {
	if member {
		return "member of " + group
	}
	return "not in " + group
}

func failed(outcome OutcomeRecord, err error) OutcomeRecord {
	outcome.Status = StatusFailed
	if apiErr, ok := helpdesk.AsError(err); ok {
		outcome.Error = apiErr.Error()
	} else {
		outcome.Error = err.Error()
	}
	outcome.apiError = err
	return outcome
}
