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

var (
	plansTable           = statusTable{table: "personal_savings_plans", stampColumn: "activated_at", stampOn: entity.PlanActive}
	planWithdrawalsTable = statusTable{table: "personal_savings_withdrawals", stampColumn: "paid_at", stampOn: entity.PlanWithdrawalPaid}
)

// PersonalSavingsRepository implements port.PersonalSavingsRepository
type PersonalSavingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPersonalSavingsRepository creates a new personal savings repository
func NewPersonalSavingsRepository(db *sql.DB, logger *zap.Logger) *PersonalSavingsRepository {
	return &PersonalSavingsRepository{db: db, logger: logger}
}

func (r *PersonalSavingsRepository) CreatePlan(ctx context.Context, p *entity.PersonalSavingsPlan) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO personal_savings_plans (id, member_id, plan_name, target_amount, balance, status, activated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.MemberID, p.PlanName, p.TargetAmount, p.Balance, p.Status, p.ActivatedAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create savings plan", zap.String("id", p.ID), zap.Error(err))
		return fmt.Errorf("failed to create savings plan: %w", err)
	}
	return nil
}

func (r *PersonalSavingsRepository) GetPlan(ctx context.Context, id string) (*entity.PersonalSavingsPlan, error) {
	var (
		p           entity.PersonalSavingsPlan
		activatedAt sql.NullTime
	)
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, member_id, plan_name, target_amount, balance, status, activated_at, created_at, updated_at
		FROM personal_savings_plans WHERE id = ?
	`, id).Scan(&p.ID, &p.MemberID, &p.PlanName, &p.TargetAmount, &p.Balance, &p.Status, &activatedAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("personal_savings.GetPlan", "savings plan %s not found", id)
	}
	if err != nil {
		r.logger.Error("Failed to get savings plan", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get savings plan: %w", err)
	}
	p.ActivatedAt = nullTime(activatedAt)
	return &p, nil
}

func (r *PersonalSavingsRepository) UpdatePlanStatus(ctx context.Context, id string, expected, next entity.DomainStatus, at time.Time) error {
	return plansTable.update(ctx, r.db, id, expected, next, at)
}

// DebitPlan subtracts amount from an ACTIVE plan that can cover it
func (r *PersonalSavingsRepository) DebitPlan(ctx context.Context, planID string, amount int64, at time.Time) error {
	exec := sqlite.Conn(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE personal_savings_plans SET balance = balance - ?, updated_at = ?
		WHERE id = ? AND status = ? AND balance >= ?
	`, amount, at, planID, entity.PlanActive, amount)
	if err != nil {
		r.logger.Error("Failed to debit savings plan", zap.String("id", planID), zap.Error(err))
		return fmt.Errorf("failed to debit savings plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := r.GetPlan(ctx, planID); err != nil {
		return err
	}
	return port.ErrInsufficientFunds
}

func (r *PersonalSavingsRepository) CreateWithdrawal(ctx context.Context, w *entity.PersonalSavingsWithdrawal) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO personal_savings_withdrawals (id, plan_id, amount, status, paid_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.PlanID, w.Amount, w.Status, w.PaidAt, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create plan withdrawal", zap.String("id", w.ID), zap.Error(err))
		return fmt.Errorf("failed to create plan withdrawal: %w", err)
	}
	return nil
}

func (r *PersonalSavingsRepository) GetWithdrawal(ctx context.Context, id string) (*entity.PersonalSavingsWithdrawal, error) {
	var (
		w      entity.PersonalSavingsWithdrawal
		paidAt sql.NullTime
	)
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, plan_id, amount, status, paid_at, created_at, updated_at
		FROM personal_savings_withdrawals WHERE id = ?
	`, id).Scan(&w.ID, &w.PlanID, &w.Amount, &w.Status, &paidAt, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("personal_savings.GetWithdrawal", "plan withdrawal %s not found", id)
	}
	if err != nil {
		r.logger.Error("Failed to get plan withdrawal", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get plan withdrawal: %w", err)
	}
	w.PaidAt = nullTime(paidAt)
	return &w, nil
}

func (r *PersonalSavingsRepository) UpdateWithdrawalStatus(ctx context.Context, id string, expected, next entity.DomainStatus, at time.Time) error {
	return planWithdrawalsTable.update(ctx, r.db, id, expected, next, at)
}

var _ port.PersonalSavingsRepository = (*PersonalSavingsRepository)(nil)
