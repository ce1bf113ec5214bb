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

var savingsWithdrawalsTable = statusTable{table: "savings_withdrawals", stampColumn: "processed_at", stampOn: entity.WithdrawalProcessed}

// SavingsRepository implements port.SavingsRepository
type SavingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSavingsRepository creates a new savings repository
func NewSavingsRepository(db *sql.DB, logger *zap.Logger) *SavingsRepository {
	return &SavingsRepository{db: db, logger: logger}
}

func (r *SavingsRepository) CreateAccount(ctx context.Context, acct *entity.SavingsAccount) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO savings_accounts (id, member_id, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, acct.ID, acct.MemberID, acct.Balance, acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create savings account", zap.String("id", acct.ID), zap.Error(err))
		return fmt.Errorf("failed to create savings account: %w", err)
	}
	return nil
}

func (r *SavingsRepository) GetAccount(ctx context.Context, id string) (*entity.SavingsAccount, error) {
	var acct entity.SavingsAccount
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, member_id, balance, created_at, updated_at FROM savings_accounts WHERE id = ?
	`, id).Scan(&acct.ID, &acct.MemberID, &acct.Balance, &acct.CreatedAt, &acct.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("savings.GetAccount", "savings account %s not found", id)
	}
	if err != nil {
		r.logger.Error("Failed to get savings account", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get savings account: %w", err)
	}
	return &acct, nil
}

// Debit subtracts amount only when the balance covers it
func (r *SavingsRepository) Debit(ctx context.Context, accountID string, amount int64, at time.Time) error {
	exec := sqlite.Conn(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE savings_accounts SET balance = balance - ?, updated_at = ?
		WHERE id = ? AND balance >= ?
	`, amount, at, accountID, amount)
	if err != nil {
		r.logger.Error("Failed to debit savings account", zap.String("id", accountID), zap.Error(err))
		return fmt.Errorf("failed to debit savings account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := r.GetAccount(ctx, accountID); err != nil {
		return err
	}
	return port.ErrInsufficientFunds
}

func (r *SavingsRepository) CreateWithdrawal(ctx context.Context, w *entity.SavingsWithdrawal) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO savings_withdrawals (id, account_id, amount, status, processed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.AccountID, w.Amount, w.Status, w.ProcessedAt, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create savings withdrawal", zap.String("id", w.ID), zap.Error(err))
		return fmt.Errorf("failed to create savings withdrawal: %w", err)
	}
	return nil
}

func (r *SavingsRepository) GetWithdrawal(ctx context.Context, id string) (*entity.SavingsWithdrawal, error) {
	var (
		w           entity.SavingsWithdrawal
		processedAt sql.NullTime
	)
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, account_id, amount, status, processed_at, created_at, updated_at
		FROM savings_withdrawals WHERE id = ?
	`, id).Scan(&w.ID, &w.AccountID, &w.Amount, &w.Status, &processedAt, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("savings.GetWithdrawal", "savings withdrawal %s not found", id)
	}
	if err != nil {
		r.logger.Error("Failed to get savings withdrawal", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get savings withdrawal: %w", err)
	}
	w.ProcessedAt = nullTime(processedAt)
	return &w, nil
}

func (r *SavingsRepository) UpdateWithdrawalStatus(ctx context.Context, id string, expected, next entity.DomainStatus, at time.Time) error {
	return savingsWithdrawalsTable.update(ctx, r.db, id, expected, next, at)
}

var _ port.SavingsRepository = (*SavingsRepository)(nil)
