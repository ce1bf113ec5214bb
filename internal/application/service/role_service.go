package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/apperr"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
	"github.com/garyjia/coop-approvals/internal/domain/policy"
	"github.com/garyjia/coop-approvals/pkg/utils"
)

// RoleInput is an administrative role definition
type RoleInput struct {
	Name          string              `json:"name" validate:"required,max=64"`
	ApprovalLevel int                 `json:"approvalLevel" validate:"min=0,max=5"`
	CanApprove    bool                `json:"canApprove"`
	ModuleAccess  []entity.Module     `json:"moduleAccess"`
	Permissions   []entity.Permission `json:"permissions" validate:"dive"`
}

// RoleService administers roles and resolves actors to role profiles.
// It is the IdentityProvider of the workflow engine.
type RoleService interface {
	port.IdentityProvider

	UpsertRole(ctx context.Context, actorID string, in RoleInput) (*entity.Role, error)
	GetRole(ctx context.Context, name string) (*entity.Role, error)
	AssignActor(ctx context.Context, actorID, targetActorID, roleName string) error
}

type roleServiceImpl struct {
	roleRepo port.RoleRepository
	validate *validator.Validate
	logger   port.Logger
}

// NewRoleService creates a new RoleService
func NewRoleService(roleRepo port.RoleRepository, validate *validator.Validate, logger port.Logger) RoleService {
	return &roleServiceImpl{roleRepo: roleRepo, validate: validate, logger: logger}
}

var manageRoles = policy.Action{Permission: entity.PermissionManageRoles, Module: entity.ModuleRoles}

func (s *roleServiceImpl) GetActorRoleProfile(ctx context.Context, actorID string) (entity.RoleApprovalProfile, error) {
	role, err := s.roleRepo.GetActorRole(ctx, actorID)
	if err != nil {
		return entity.RoleApprovalProfile{}, err
	}
	return role.Profile(actorID), nil
}

func (s *roleServiceImpl) authorize(ctx context.Context, op, actorID string) error {
	profile, err := s.GetActorRoleProfile(ctx, actorID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return apperr.Forbidden(op, "actor %s has no role", actorID)
		}
		return err
	}
	if d := policy.Evaluate(profile, manageRoles); !d.Allowed {
		return apperr.Forbidden(op, "%s", d.Reason)
	}
	return nil
}

// UpsertRole creates or replaces a role; CreatedAt survives replacement
func (s *roleServiceImpl) UpsertRole(ctx context.Context, actorID string, in RoleInput) (*entity.Role, error) {
	const op = "roles.Upsert"

	if err := s.authorize(ctx, op, actorID); err != nil {
		return nil, err
	}

	in.Name = strings.ToUpper(strings.TrimSpace(in.Name))
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Validation(op, "%s", utils.ValidationMessage(err))
	}
	for _, m := range in.ModuleAccess {
		if !m.Valid() {
			return nil, apperr.Validation(op, "unknown module %q", m)
		}
	}
	seen := make(map[string]bool, len(in.Permissions))
	for _, p := range in.Permissions {
		if seen[p.Name] {
			return nil, apperr.Validation(op, "permission %s listed twice", p.Name)
		}
		seen[p.Name] = true
	}

	now := time.Now().UTC()
	role := &entity.Role{
		Name:          in.Name,
		ApprovalLevel: in.ApprovalLevel,
		CanApprove:    in.CanApprove,
		ModuleAccess:  in.ModuleAccess,
		Permissions:   in.Permissions,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if role.ModuleAccess == nil {
		role.ModuleAccess = []entity.Module{}
	}
	if role.Permissions == nil {
		role.Permissions = []entity.Permission{}
	}

	existing, err := s.roleRepo.GetRole(ctx, in.Name)
	switch {
	case err == nil:
		role.CreatedAt = existing.CreatedAt
	case apperr.KindOf(err) != apperr.KindNotFound:
		return nil, err
	}

	if err := s.roleRepo.UpsertRole(ctx, role); err != nil {
		s.logger.Error("Failed to upsert role", "role", in.Name, "error", err)
		return nil, err
	}
	s.logger.Info("Role saved", "role", role.Name, "approval_level", role.ApprovalLevel, "actor_id", actorID)
	return role, nil
}

func (s *roleServiceImpl) GetRole(ctx context.Context, name string) (*entity.Role, error) {
	return s.roleRepo.GetRole(ctx, strings.ToUpper(strings.TrimSpace(name)))
}

func (s *roleServiceImpl) AssignActor(ctx context.Context, actorID, targetActorID, roleName string) error {
	const op = "roles.Assign"

	if err := s.authorize(ctx, op, actorID); err != nil {
		return err
	}
	targetActorID = strings.TrimSpace(targetActorID)
	if targetActorID == "" {
		return apperr.Validation(op, "actor id is required")
	}
	roleName = strings.ToUpper(strings.TrimSpace(roleName))
	if roleName == "" {
		return apperr.Validation(op, "role is required")
	}

	if err := s.roleRepo.AssignActor(ctx, targetActorID, roleName); err != nil {
		s.logger.Error("Failed to assign role", "target_actor_id", targetActorID, "role", roleName, "error", err)
		return err
	}
	s.logger.Info("Role assigned", "target_actor_id", targetActorID, "role", roleName, "actor_id", actorID)
	return nil
}
