package rbac

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MertBaran/QA-API-sub001/pkg/apperrors"
	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

var assignmentTracer = otel.Tracer("qa/rbac/assignments")

// UserRoleStore implements UserRoleRepository. Every read evaluates
// effectiveness at call time; the sweep only tidies stored flags.
type UserRoleStore struct {
	assignments datasource.AssignmentSource
	roles       RoleRepository
	resolver    *Resolver
	scheme      ids.Scheme
	settings
}

// NewUserRoleStore creates an assignment store. scheme validates user ids
// before anything is written.
func NewUserRoleStore(assignments datasource.AssignmentSource, roles RoleRepository, resolver *Resolver, scheme ids.Scheme, opts ...Option) *UserRoleStore {
	return &UserRoleStore{
		assignments: assignments,
		roles:       roles,
		resolver:    resolver,
		scheme:      scheme,
		settings:    newSettings(opts),
	}
}

// AssignRoleToUser grants roleID to userID. It fails with a conflict while
// an effective assignment for the pair exists. Active rows for the pair
// that have already expired are deactivated first so the new row does not
// collide with them.
func (s *UserRoleStore) AssignRoleToUser(ctx context.Context, userID, roleID string, opts AssignOptions) (a model.Assignment, err error) {
	userID, roleID = s.scheme.Canonical(userID), s.scheme.Canonical(roleID)
	opts.AssignedBy = s.scheme.Canonical(opts.AssignedBy)
	ctx, span := assignmentTracer.Start(ctx, "AssignRoleToUser",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("role_id", roleID),
		),
	)
	defer func() {
		s.metrics.ObserveAssignment("assign", outcome(err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to assign role")
		}
		span.End()
	}()

	if !s.scheme.Valid(userID) {
		return model.Assignment{}, apperrors.InvalidID(model.FieldUserID, userID)
	}
	if opts.AssignedBy != "" && !s.scheme.Valid(opts.AssignedBy) {
		return model.Assignment{}, apperrors.InvalidID(model.FieldAssignedBy, opts.AssignedBy)
	}

	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		return model.Assignment{}, err
	}
	if !role.IsActive {
		return model.Assignment{}, apperrors.BusinessRule(apperrors.ErrRoleInactive, "role %q is inactive", role.Name)
	}

	now := s.now()
	if opts.ExpiresAt != nil && !opts.ExpiresAt.After(now) {
		return model.Assignment{}, apperrors.Validation("expiresAt must be in the future")
	}

	active, err := s.assignments.FindByFields(ctx, model.Fields{
		model.FieldUserID:   userID,
		model.FieldRoleID:   role.ID,
		model.FieldIsActive: true,
	})
	if err != nil {
		return model.Assignment{}, err
	}
	for _, existing := range active {
		if existing.IsEffective(now) {
			return model.Assignment{}, alreadyAssigned(role)
		}
		if _, err := s.assignments.UpdateByID(ctx, existing.ID, model.Fields{model.FieldIsActive: false}); err != nil && !datasource.IsNotFound(err) {
			return model.Assignment{}, err
		}
	}

	a, err = s.assignments.Create(ctx, model.Assignment{
		UserID:     userID,
		RoleID:     role.ID,
		AssignedAt: now,
		AssignedBy: opts.AssignedBy,
		ExpiresAt:  opts.ExpiresAt,
	})
	if err != nil {
		if datasource.IsDuplicate(err) {
			return model.Assignment{}, alreadyAssigned(role).WithCause(err)
		}
		return model.Assignment{}, err
	}
	s.invalidateUser(ctx, userID)

	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"role":    role.Name,
	}).Info("role assigned")
	return a, nil
}

func alreadyAssigned(role model.Role) *apperrors.Error {
	return apperrors.ErrRoleAlreadyAssigned.WithMessage("role %q is already assigned to the user", role.Name).
		WithContext("role_id", role.ID)
}

// AssignDefaultRole grants the default role, as done on registration.
func (s *UserRoleStore) AssignDefaultRole(ctx context.Context, userID string) (model.Assignment, error) {
	role, err := s.roles.GetDefaultRole(ctx)
	if err != nil {
		return model.Assignment{}, err
	}
	return s.AssignRoleToUser(ctx, userID, role.ID, AssignOptions{})
}

// RemoveRoleFromUser revokes the effective assignment of roleID. The row is
// kept with isActive=false.
func (s *UserRoleStore) RemoveRoleFromUser(ctx context.Context, userID, roleID string) (a model.Assignment, err error) {
	userID, roleID = s.scheme.Canonical(userID), s.scheme.Canonical(roleID)
	ctx, span := assignmentTracer.Start(ctx, "RemoveRoleFromUser",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("role_id", roleID),
		),
	)
	defer func() {
		s.metrics.ObserveAssignment("remove", outcome(err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to remove role")
		}
		span.End()
	}()

	current, found, err := s.effective(ctx, userID, roleID)
	if err != nil {
		return model.Assignment{}, err
	}
	if !found {
		return model.Assignment{}, apperrors.ErrRoleNotAssigned.
			WithMessage("role %s is not assigned to user %s", roleID, userID).
			WithCause(apperrors.NotFound("assignment", userID+"/"+roleID))
	}

	a, err = s.assignments.UpdateByID(ctx, current.ID, model.Fields{model.FieldIsActive: false})
	if err != nil {
		return model.Assignment{}, domainError(err, "assignment", current.ID)
	}
	s.invalidateUser(ctx, userID)
	return a, nil
}

// effective returns the effective assignment for the pair, if any.
func (s *UserRoleStore) effective(ctx context.Context, userID, roleID string) (model.Assignment, bool, error) {
	rows, err := s.assignments.FindByFields(ctx, model.Fields{
		model.FieldUserID:   userID,
		model.FieldRoleID:   roleID,
		model.FieldIsActive: true,
	})
	if err != nil {
		return model.Assignment{}, false, err
	}
	effective := model.EffectiveOnly(rows, s.now())
	if len(effective) == 0 {
		return model.Assignment{}, false, nil
	}
	return effective[0], true, nil
}

// GetUserRoles returns the user's effective assignments.
func (s *UserRoleStore) GetUserRoles(ctx context.Context, userID string) ([]model.Assignment, error) {
	rows, err := s.assignments.FindByField(ctx, model.FieldUserID, s.scheme.Canonical(userID))
	if err != nil {
		return nil, err
	}
	return model.EffectiveOnly(rows, s.now()), nil
}

// GetUserAssignments returns every assignment ever made to the user,
// including revoked and expired ones.
func (s *UserRoleStore) GetUserAssignments(ctx context.Context, userID string) ([]model.Assignment, error) {
	return s.assignments.FindByField(ctx, model.FieldUserID, s.scheme.Canonical(userID))
}

// GetRoleUsers returns the effective assignments of a role.
func (s *UserRoleStore) GetRoleUsers(ctx context.Context, roleID string) ([]model.Assignment, error) {
	rows, err := s.assignments.FindByField(ctx, model.FieldRoleID, s.scheme.Canonical(roleID))
	if err != nil {
		return nil, err
	}
	return model.EffectiveOnly(rows, s.now()), nil
}

func (s *UserRoleStore) HasRole(ctx context.Context, userID, roleID string) (bool, error) {
	return s.HasAllRoles(ctx, userID, []string{roleID})
}

// HasAnyRole is false for an empty list.
func (s *UserRoleStore) HasAnyRole(ctx context.Context, userID string, roleIDs []string) (bool, error) {
	held, err := s.heldRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, id := range roleIDs {
		if _, ok := held[s.scheme.Canonical(id)]; ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllRoles is true for an empty list.
func (s *UserRoleStore) HasAllRoles(ctx context.Context, userID string, roleIDs []string) (bool, error) {
	held, err := s.heldRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, id := range roleIDs {
		if _, ok := held[s.scheme.Canonical(id)]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *UserRoleStore) heldRoles(ctx context.Context, userID string) (map[string]struct{}, error) {
	effective, err := s.GetUserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	held := make(map[string]struct{}, len(effective))
	for _, a := range effective {
		held[a.RoleID] = struct{}{}
	}
	return held, nil
}

// DeactivateExpiredRoles flips every active assignment whose expiry has
// passed. Running it again deactivates nothing new.
func (s *UserRoleStore) DeactivateExpiredRoles(ctx context.Context) (n int64, err error) {
	ctx, span := assignmentTracer.Start(ctx, "DeactivateExpiredRoles")
	defer func() {
		s.metrics.ObserveSweep(n, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to deactivate expired roles")
		} else {
			span.SetAttributes(attribute.Int64("deactivated", n))
		}
		span.End()
	}()

	n, err = s.assignments.DeactivateExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidateUsers(ctx)
	}
	return n, nil
}

func (s *UserRoleStore) GetUserPermissions(ctx context.Context, userID string) ([]model.Permission, error) {
	return s.resolver.EffectivePermissions(ctx, userID)
}

// UserHasPermission reports whether the user holds the named permission.
func (s *UserRoleStore) UserHasPermission(ctx context.Context, userID, permission string) (bool, error) {
	return s.resolver.HasPermission(ctx, userID, permission)
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(apperrors.CategoryOf(err))
}
