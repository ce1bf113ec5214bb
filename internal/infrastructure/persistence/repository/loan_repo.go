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

var loansTable = statusTable{table: "loans", stampColumn: "disbursed_at", stampOn: entity.LoanDisbursed}

// LoanRepository implements port.LoanRepository
type LoanRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *sql.DB, logger *zap.Logger) *LoanRepository {
	return &LoanRepository{db: db, logger: logger}
}

func (r *LoanRepository) Create(ctx context.Context, loan *entity.Loan) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO loans (id, member_id, amount, term_months, purpose, status, disbursed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, loan.ID, loan.MemberID, loan.Amount, loan.TermMonths, loan.Purpose, loan.Status, loan.DisbursedAt, loan.CreatedAt, loan.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create loan", zap.String("id", loan.ID), zap.Error(err))
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func (r *LoanRepository) GetByID(ctx context.Context, id string) (*entity.Loan, error) {
	var (
		loan        entity.Loan
		disbursedAt sql.NullTime
	)
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, member_id, amount, term_months, purpose, status, disbursed_at, created_at, updated_at
		FROM loans WHERE id = ?
	`, id).Scan(&loan.ID, &loan.MemberID, &loan.Amount, &loan.TermMonths, &loan.Purpose, &loan.Status, &disbursedAt, &loan.CreatedAt, &loan.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("loans.GetByID", "loan %s not found", id)
	}
	if err != nil {
		r.logger.Error("Failed to get loan", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	loan.DisbursedAt = nullTime(disbursedAt)
	return &loan, nil
}

func (r *LoanRepository) UpdateStatus(ctx context.Context, id string, expected, next entity.DomainStatus, at time.Time) error {
	return loansTable.update(ctx, r.db, id, expected, next, at)
}

var _ port.LoanRepository = (*LoanRepository)(nil)
