package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/apperr"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
	"github.com/garyjia/coop-approvals/internal/infrastructure/persistence/sqlite"
)

// RoleRepository implements port.RoleRepository
type RoleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *sql.DB, logger *zap.Logger) *RoleRepository {
	return &RoleRepository{db: db, logger: logger}
}

// UpsertRole creates the role or replaces its attributes
func (r *RoleRepository) UpsertRole(ctx context.Context, role *entity.Role) error {
	modules, err := json.Marshal(role.ModuleAccess)
	if err != nil {
		return fmt.Errorf("failed to encode module access: %w", err)
	}
	perms, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to encode permissions: %w", err)
	}

	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO roles (name, approval_level, can_approve, module_access, permissions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			approval_level = excluded.approval_level,
			can_approve = excluded.can_approve,
			module_access = excluded.module_access,
			permissions = excluded.permissions,
			updated_at = excluded.updated_at
	`, role.Name, role.ApprovalLevel, role.CanApprove, string(modules), string(perms), role.CreatedAt, role.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to upsert role", zap.String("role", role.Name), zap.Error(err))
		return fmt.Errorf("failed to upsert role: %w", err)
	}
	return nil
}

// GetRole retrieves a role by name
func (r *RoleRepository) GetRole(ctx context.Context, name string) (*entity.Role, error) {
	row := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT name, approval_level, can_approve, module_access, permissions, created_at, updated_at
		FROM roles WHERE name = ?
	`, name)
	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("roles.GetRole", "role %s not found", name)
	}
	if err != nil {
		r.logger.Error("Failed to get role", zap.String("role", name), zap.Error(err))
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// AssignActor binds an actor to an existing role
func (r *RoleRepository) AssignActor(ctx context.Context, actorID, roleName string) error {
	if _, err := r.GetRole(ctx, roleName); err != nil {
		return err
	}
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO actors (id, role_name, created_at, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET role_name = excluded.role_name, updated_at = CURRENT_TIMESTAMP
	`, actorID, roleName)
	if err != nil {
		r.logger.Error("Failed to assign actor", zap.String("actor_id", actorID), zap.String("role", roleName), zap.Error(err))
		return fmt.Errorf("failed to assign actor: %w", err)
	}
	return nil
}

// GetActorRole returns the role an actor is assigned to
func (r *RoleRepository) GetActorRole(ctx context.Context, actorID string) (*entity.Role, error) {
	row := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT r.name, r.approval_level, r.can_approve, r.module_access, r.permissions, r.created_at, r.updated_at
		FROM actors a JOIN roles r ON r.name = a.role_name
		WHERE a.id = ?
	`, actorID)
	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("roles.GetActorRole", "actor %s has no role", actorID)
	}
	if err != nil {
		r.logger.Error("Failed to get actor role", zap.String("actor_id", actorID), zap.Error(err))
		return nil, fmt.Errorf("failed to get actor role: %w", err)
	}
	return role, nil
}

func scanRole(s scanner) (*entity.Role, error) {
	var (
		role    entity.Role
		modules string
		perms   string
	)
	if err := s.Scan(&role.Name, &role.ApprovalLevel, &role.CanApprove, &modules, &perms, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(modules), &role.ModuleAccess); err != nil {
		return nil, fmt.Errorf("failed to decode module access of %s: %w", role.Name, err)
	}
	if err := json.Unmarshal([]byte(perms), &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to decode permissions of %s: %w", role.Name, err)
	}
	return &role, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
