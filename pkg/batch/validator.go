package batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/helpdesk-recon/pkg/directory"
)

// identityRequiredMessage is the fixed error for rows that supply neither
// an email nor a full name.
const identityRequiredMessage = "Email or both First_Name and Last_Name are required"

var validate = validator.New()

// UserSearcher is the slice of the gateway the validator needs for the
// optional manager existence check.
type UserSearcher interface {
	SearchUsersByEmail(ctx context.Context, email string) ([]directory.UserRecord, error)
}

type ValidatorOptions struct {
	// CheckManagers enables the live manager existence lookup on top of the
	// syntax check.
	CheckManagers bool
	Logger        *logrus.Logger
}

// Validator splits a raw batch into valid ChangeRequests and per-row error
// collections. Each row is validated independently; errors accumulate per
// row and original row order is preserved on both sides. The validator
// never issues a mutating API call.
type Validator struct {
	resolver      *directory.Resolver
	cache         *directory.Cache
	users         UserSearcher
	checkManagers bool
	log           *logrus.Entry
}

func NewValidator(resolver *directory.Resolver, cache *directory.Cache, users UserSearcher, opts ValidatorOptions) *Validator {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &Validator{
		resolver:      resolver,
		cache:         cache,
		users:         users,
		checkManagers: opts.CheckManagers,
		log:           logger.WithField("component", "batch"),
	}
}

// Validate runs template-appropriate checks over every row. The returned
// error is infrastructural (reference data could not be fetched), never a
// row-level failure.
func (v *Validator) Validate(ctx context.Context, template Template, rows []Row) ([]ChangeRequest, []RowErrors, error) {
	var valid []ChangeRequest
	var invalid []RowErrors

	for _, row := range rows {
		var req ChangeRequest
		var rowErrs []ValidationError
		var err error

		switch template {
		case TemplateDeactivate:
			req, rowErrs = v.validateDeactivateRow(row)
		case TemplateMembership:
			req, rowErrs, err = v.validateMembershipRow(ctx, row)
		default:
			req, rowErrs, err = v.validateUpdateRow(ctx, row)
		}
		if err != nil {
			return nil, nil, err
		}

		if len(rowErrs) > 0 {
			invalid = append(invalid, RowErrors{RowNumber: row.Number, Errors: rowErrs})
			continue
		}
		valid = append(valid, req)
	}

	v.log.WithFields(logrus.Fields{
		"template": template,
		"rows":     len(rows),
		"valid":    len(valid),
		"invalid":  len(invalid),
	}).Info("batch validated")
	return valid, invalid, nil
}

func (v *Validator) validateUpdateRow(ctx context.Context, row Row) (ChangeRequest, []ValidationError, error) {
	var errs []ValidationError
	addErr := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{RowNumber: row.Number, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	hasEmail := row.Has(ColEmail)
	hasFullName := row.Has(ColFirstName) && row.Has(ColLastName)
	if !hasEmail && !hasFullName {
		addErr("identity", "%s", identityRequiredMessage)
	}

	// Field-level checks run for every present value regardless of identity
	// validity, so one row can accumulate several errors.
	if hasEmail {
		if !validEmail(row.Get(ColEmail)) {
			addErr(ColEmail, "invalid email format: %s", row.Get(ColEmail))
		}
	}

	fields := make(map[string]any)
	if hasEmail {
		// Email identifies the user; name columns become updates.
		if row.Has(ColFirstName) {
			fields[FieldFirstName] = row.Get(ColFirstName)
		}
		if row.Has(ColLastName) {
			fields[FieldLastName] = row.Get(ColLastName)
		}
	}

	if row.Has(ColDepartment) {
		deptID, derr := v.resolveDepartment(ctx, row.Get(ColDepartment))
		if derr != nil {
			if derr.infra != nil {
				return ChangeRequest{}, nil, derr.infra
			}
			addErr(ColDepartment, "%s", derr.message)
		} else {
			fields[FieldDepartment] = deptID
		}
	}

	if row.Has(ColManagerEmail) {
		managerEmail := row.Get(ColManagerEmail)
		if !validEmail(managerEmail) {
			addErr(ColManagerEmail, "invalid email format: %s", managerEmail)
		} else if v.checkManagers {
			managerID, merr := v.resolveManager(ctx, managerEmail)
			if merr != nil {
				if merr.infra != nil {
					return ChangeRequest{}, nil, merr.infra
				}
				addErr(ColManagerEmail, "%s", merr.message)
			} else {
				fields[FieldManager] = managerID
			}
		} else {
			fields[FieldManager] = managerEmail
		}
	}

	if len(errs) > 0 {
		return ChangeRequest{}, errs, nil
	}
	return ChangeRequest{
		RowNumber: row.Number,
		Kind:      KindUpdate,
		Identity:  rowIdentity(row),
		Fields:    fields,
	}, nil, nil
}

func (v *Validator) validateDeactivateRow(row Row) (ChangeRequest, []ValidationError) {
	var errs []ValidationError
	if !row.Has(ColEmail) {
		errs = append(errs, ValidationError{RowNumber: row.Number, Field: "identity", Message: identityRequiredMessage})
	} else if !validEmail(row.Get(ColEmail)) {
		errs = append(errs, ValidationError{RowNumber: row.Number, Field: ColEmail, Message: fmt.Sprintf("invalid email format: %s", row.Get(ColEmail))})
	}
	if len(errs) > 0 {
		return ChangeRequest{}, errs
	}
	return ChangeRequest{
		RowNumber: row.Number,
		Kind:      KindDeactivate,
		Identity:  directory.EmailIdentity{Email: row.Get(ColEmail)},
		Fields:    map[string]any{FieldActive: false},
		Reason:    row.Get(ColReason),
	}, nil
}

func (v *Validator) validateMembershipRow(ctx context.Context, row Row) (ChangeRequest, []ValidationError, error) {
	var errs []ValidationError
	addErr := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{RowNumber: row.Number, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !row.Has(ColEmail) {
		addErr("identity", "%s", identityRequiredMessage)
	} else if !validEmail(row.Get(ColEmail)) {
		addErr(ColEmail, "invalid email format: %s", row.Get(ColEmail))
	}

	action := MembershipAction(strings.ToLower(row.Get(ColAction)))
	if action != ActionAdd && action != ActionRemove {
		addErr(ColAction, "action must be add or remove, got %q", row.Get(ColAction))
	}

	var group directory.GroupRecord
	if !row.Has(ColGroupName) {
		addErr(ColGroupName, "group name is required")
	} else {
		groups, err := v.cache.Groups(ctx)
		if err != nil {
			return ChangeRequest{}, nil, err
		}
		switch res := v.resolver.ResolveGroup(row.Get(ColGroupName), groups); res.Kind {
		case directory.UniqueMatch:
			group = res.Match
		case directory.NoMatch:
			addErr(ColGroupName, "unknown group: %s", row.Get(ColGroupName))
		case directory.AmbiguousMatch:
			addErr(ColGroupName, "group %s matches %d groups", row.Get(ColGroupName), len(res.Candidates))
		}
	}

	if len(errs) > 0 {
		return ChangeRequest{}, errs, nil
	}
	return ChangeRequest{
		RowNumber: row.Number,
		Kind:      KindMembership,
		Identity:  directory.EmailIdentity{Email: row.Get(ColEmail)},
		Fields:    map[string]any{},
		GroupID:   group.ID,
		GroupName: group.Name,
		Action:    action,
	}, nil, nil
}

type resolveErr struct {
	message string
	infra   error
}

func (v *Validator) resolveDepartment(ctx context.Context, name string) (int64, *resolveErr) {
	departments, err := v.cache.Departments(ctx)
	if err != nil {
		return 0, &resolveErr{infra: err}
	}
	switch res := v.resolver.ResolveDepartment(name, departments); res.Kind {
	case directory.UniqueMatch:
		return res.Match.ID, nil
	case directory.AmbiguousMatch:
		return 0, &resolveErr{message: fmt.Sprintf("department %s matches %d departments", name, len(res.Candidates))}
	default:
		return 0, &resolveErr{message: fmt.Sprintf("unknown department: %s", name)}
	}
}

func (v *Validator) resolveManager(ctx context.Context, email string) (int64, *resolveErr) {
	candidates, err := v.users.SearchUsersByEmail(ctx, email)
	if err != nil {
		return 0, &resolveErr{infra: err}
	}
	switch res := v.resolver.ResolveManager(email, candidates); res.Kind {
	case directory.UniqueMatch:
		return res.Match.ID, nil
	case directory.AmbiguousMatch:
		return 0, &resolveErr{message: fmt.Sprintf("manager %s matches %d users", email, len(res.Candidates))}
	default:
		return 0, &resolveErr{message: fmt.Sprintf("manager not found: %s", email)}
	}
}

func rowIdentity(row Row) directory.Identity {
	if row.Has(ColEmail) {
		return directory.EmailIdentity{Email: row.Get(ColEmail)}
	}
	return directory.NameIdentity{First: row.Get(ColFirstName), Last: row.Get(ColLastName)}
}

func validEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}
