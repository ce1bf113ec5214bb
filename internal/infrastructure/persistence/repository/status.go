package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/coop-approvals/internal/domain/apperr"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
	"github.com/garyjia/coop-approvals/internal/infrastructure/persistence/sqlite"
)

// statusTable is the compare-and-swap write shared by every domain table.
// Moving to stampOn also records the time in stampColumn.
type statusTable struct {
	table       string
	stampColumn string
	stampOn     entity.DomainStatus
}

func (s statusTable) update(ctx context.Context, db *sql.DB, id string, expected, next entity.DomainStatus, at time.Time) error {
	op := s.table + ".UpdateStatus"
	exec := sqlite.Conn(ctx, db)

	var (
		res sql.Result
		err error
	)
	if s.stampColumn != "" && next == s.stampOn {
		query := fmt.Sprintf("UPDATE %s SET status = ?, updated_at = ?, %s = ? WHERE id = ? AND status = ?", s.table, s.stampColumn)
		res, err = exec.ExecContext(ctx, query, next, at, at, id, expected)
	} else {
		query := fmt.Sprintf("UPDATE %s SET status = ?, updated_at = ? WHERE id = ? AND status = ?", s.table)
		res, err = exec.ExecContext(ctx, query, next, at, id, expected)
	}
	if err != nil {
		return fmt.Errorf("failed to update %s status: %w", s.table, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	return missingOrStale(ctx, exec, op, s.table, id, fmt.Sprintf("%s %s is no longer %s", s.table, id, expected))
}

// missingOrStale turns a zero-row conditional write into NotFound or StaleState
func missingOrStale(ctx context.Context, exec sqlite.Executor, op, table, id, staleMsg string) error {
	var one int
	err := exec.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", table), id).Scan(&one)
	if err == sql.ErrNoRows {
		return apperr.NotFound(op, "%s %s not found", table, id)
	}
	if err != nil {
		return fmt.Errorf("failed to check %s existence: %w", table, err)
	}
	return apperr.StaleState(op, "%s", staleMsg)
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
