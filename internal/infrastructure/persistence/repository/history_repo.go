package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
	"github.com/garyjia/coop-approvals/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository. The table rejects
// UPDATE and DELETE via triggers.
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, logger: logger}
}

// Append inserts entry with the next sequence number of its request
func (r *HistoryRepository) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	exec := sqlite.Conn(ctx, r.db)

	_, err := exec.ExecContext(ctx, `
		INSERT INTO request_history (
			id, request_id, seq, from_status, to_status, action, actor_id,
			approval_level, notes, created_at
		)
		SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?, ?, ?
		FROM request_history WHERE request_id = ?
	`,
		entry.ID, entry.RequestID, entry.FromStatus, entry.ToStatus, entry.Action, entry.ActorID,
		entry.ApprovalLevel, entry.Notes, entry.Timestamp, entry.RequestID,
	)
	if err != nil {
		r.logger.Error("Failed to append history", zap.String("request_id", entry.RequestID), zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}

	if err := exec.QueryRowContext(ctx, "SELECT seq FROM request_history WHERE id = ?", entry.ID).Scan(&entry.Seq); err != nil {
		return fmt.Errorf("failed to read history sequence: %w", err)
	}
	return nil
}

// ListByRequestID returns a request's history oldest first
func (r *HistoryRepository) ListByRequestID(ctx context.Context, requestID string) ([]entity.HistoryEntry, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, request_id, seq, from_status, to_status, action, actor_id,
			approval_level, notes, created_at
		FROM request_history
		WHERE request_id = ?
		ORDER BY seq ASC
	`, requestID)
	if err != nil {
		r.logger.Error("Failed to list history", zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries := []entity.HistoryEntry{}
	for rows.Next() {
		var e entity.HistoryEntry
		if err := rows.Scan(
			&e.ID, &e.RequestID, &e.Seq, &e.FromStatus, &e.ToStatus, &e.Action, &e.ActorID,
			&e.ApprovalLevel, &e.Notes, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByRequestID returns the number of history entries of a request
func (r *HistoryRepository) CountByRequestID(ctx context.Context, requestID string) (int, error) {
	var n int
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, "SELECT COUNT(*) FROM request_history WHERE request_id = ?", requestID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
