package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/apperr"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
	"github.com/garyjia/coop-approvals/internal/infrastructure/persistence/sqlite"
)

var accountsTable = statusTable{table: "member_accounts", stampColumn: "activated_at", stampOn: entity.AccountActive}

// AccountRepository implements port.AccountRepository
type AccountRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAccountRepository creates a new member account repository
func NewAccountRepository(db *sql.DB, logger *zap.Logger) *AccountRepository {
	return &AccountRepository{db: db, logger: logger}
}

func (r *AccountRepository) Create(ctx context.Context, a *entity.MemberAccount) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO member_accounts (id, member_id, full_name, email, phone, status, activated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.MemberID, a.FullName, a.Email, a.Phone, a.Status, a.ActivatedAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create member account", zap.String("id", a.ID), zap.Error(err))
		return fmt.Errorf("failed to create member account: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*entity.MemberAccount, error) {
	var (
		a           entity.MemberAccount
		activatedAt sql.NullTime
	)
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, member_id, full_name, email, phone, status, activated_at, created_at, updated_at
		FROM member_accounts WHERE id = ?
	`, id).Scan(&a.ID, &a.MemberID, &a.FullName, &a.Email, &a.Phone, &a.Status, &activatedAt, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("accounts.GetByID", "member account %s not found", id)
	}
	if err != nil {
		r.logger.Error("Failed to get member account", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get member account: %w", err)
	}
	a.ActivatedAt = nullTime(activatedAt)
	return &a, nil
}

func (r *AccountRepository) UpdateStatus(ctx context.Context, id string, expected, next entity.DomainStatus, at time.Time) error {
	return accountsTable.update(ctx, r.db, id, expected, next, at)
}

var _ port.AccountRepository = (*AccountRepository)(nil)
