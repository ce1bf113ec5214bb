package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/apperr"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
	"github.com/garyjia/coop-approvals/internal/infrastructure/persistence/sqlite"
)

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{db: db, logger: logger}
}

const requestColumns = `id, type, status, initiator_id, linked_module, linked_entity_id, content,
	priority, approval_steps, current_approval_level, version, created_at, updated_at`

var sortColumns = map[string]string{
	entity.SortByCreatedAt: "created_at",
	entity.SortByUpdatedAt: "updated_at",
	entity.SortByPriority:  "priority_rank",
	entity.SortByStatus:    "status",
	entity.SortByType:      "type",
}

// Create inserts a new request
func (r *RequestRepository) Create(ctx context.Context, req *entity.Request) error {
	steps, err := json.Marshal(req.ApprovalSteps)
	if err != nil {
		return fmt.Errorf("failed to encode approval steps: %w", err)
	}
	content := req.Content
	if len(content) == 0 {
		content = json.RawMessage("{}")
	}

	var module, entityID sql.NullString
	if req.IsDomainBacked() {
		module = sql.NullString{String: string(req.LinkedEntity.Module), Valid: true}
		entityID = sql.NullString{String: req.LinkedEntity.EntityID, Valid: true}
	}

	query := `
		INSERT INTO requests (
			id, type, status, initiator_id, linked_module, linked_entity_id, content,
			priority, priority_rank, approval_steps, current_approval_level, version,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		req.ID, req.Type, req.Status, req.InitiatorID, module, entityID, string(content),
		req.Priority, req.Priority.Rank(), string(steps), req.CurrentApprovalLevel, req.Version,
		req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if req.IsDomainBacked() && isLinkConflict(err) {
			return apperr.Validation("requests.Create", "%s record %s is already linked to another request",
				req.LinkedEntity.Module, req.LinkedEntity.EntityID)
		}
		r.logger.Error("Failed to create request", zap.String("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

// isLinkConflict reports a violation of the one-request-per-domain-record index
func isLinkConflict(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return false
	}
	return strings.Contains(sqliteErr.Error(), "linked_entity_id")
}

// GetByID retrieves a request by id
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.Request, error) {
	row := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, "SELECT "+requestColumns+" FROM requests WHERE id = ?", id)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("requests.GetByID", "request %s not found", id)
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// List returns one page of requests matching q and the total match count
func (r *RequestRepository) List(ctx context.Context, q entity.RequestQuery) ([]*entity.Request, int, error) {
	where, args := filterClause(q.RequestFilter)
	exec := sqlite.Conn(ctx, r.db)

	var total int
	if err := exec.QueryRowContext(ctx, "SELECT COUNT(*) FROM requests"+where, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count requests", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	col, ok := sortColumns[q.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		dir = "ASC"
	}

	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	query := fmt.Sprintf("SELECT %s FROM requests%s ORDER BY %s %s, id ASC LIMIT ? OFFSET ?", requestColumns, where, col, dir)
	rows, err := exec.QueryContext(ctx, query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	reqs, err := scanRequests(rows)
	if err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

// CompareAndSwapStatus writes update only while the stored status equals expected
func (r *RequestRepository) CompareAndSwapStatus(ctx context.Context, id string, expected entity.RequestStatus, update port.StatusUpdate) error {
	const op = "requests.CompareAndSwapStatus"

	steps, err := json.Marshal(update.ApprovalSteps)
	if err != nil {
		return fmt.Errorf("failed to encode approval steps: %w", err)
	}

	exec := sqlite.Conn(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE requests
		SET status = ?, approval_steps = ?, current_approval_level = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND status = ?
	`, update.Status, string(steps), update.CurrentApprovalLevel, update.UpdatedAt, id, expected)
	if err != nil {
		r.logger.Error("Failed to update request status", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update request status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	return missingOrStale(ctx, exec, op, "requests", id, fmt.Sprintf("request %s already moved from %s", id, expected))
}

// Delete removes a PENDING request that has no history
func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	exec := sqlite.Conn(ctx, r.db)
	res, err := exec.ExecContext(ctx, `
		DELETE FROM requests
		WHERE id = ? AND status = ?
		AND NOT EXISTS (SELECT 1 FROM request_history WHERE request_id = requests.id)
	`, id, entity.StatusPending)
	if err != nil {
		r.logger.Error("Failed to delete request", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete request: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	return missingOrStale(ctx, exec, "requests.Delete", "requests", id, fmt.Sprintf("request %s is no longer deletable", id))
}

// ListDomainBacked returns linked requests in statuses, least recently updated first
func (r *RequestRepository) ListDomainBacked(ctx context.Context, statuses []entity.RequestStatus, limit int) ([]*entity.Request, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]interface{}, 0, len(statuses)+1)
	for _, s := range statuses {
		args = append(args, s)
	}
	if limit < 1 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM requests
		WHERE linked_entity_id IS NOT NULL AND status IN (%s)
		ORDER BY updated_at ASC, id ASC LIMIT ?`, requestColumns, placeholders(len(statuses)))

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list domain-backed requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list domain-backed requests: %w", err)
	}
	defer rows.Close()
	return scanRequests(rows)
}

// CountByStatus counts matching requests per status
func (r *RequestRepository) CountByStatus(ctx context.Context, filter entity.RequestFilter) (map[entity.RequestStatus]int, error) {
	where, args := filterClause(filter)
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, "SELECT status, COUNT(*) FROM requests"+where+" GROUP BY status", args...)
	if err != nil {
		r.logger.Error("Failed to count requests by status", zap.Error(err))
		return nil, fmt.Errorf("failed to count requests by status: %w", err)
	}
	defer rows.Close()

	out := make(map[entity.RequestStatus]int)
	for rows.Next() {
		var (
			status entity.RequestStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

// CountByApprovalLevel counts open matching requests per current approval level
func (r *RequestRepository) CountByApprovalLevel(ctx context.Context, filter entity.RequestFilter) (map[int]int, error) {
	where, args := filterClause(filter)
	open := make([]string, len(entity.OpenStatuses))
	for i, s := range entity.OpenStatuses {
		open[i] = "?"
		args = append(args, s)
	}
	clause := " WHERE "
	if where != "" {
		clause = where + " AND "
	}

	query := "SELECT current_approval_level, COUNT(*) FROM requests" + clause +
		"status IN (" + strings.Join(open, ",") + ") GROUP BY current_approval_level"
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to count requests by level", zap.Error(err))
		return nil, fmt.Errorf("failed to count requests by level: %w", err)
	}
	defer rows.Close()

	out := make(map[int]int)
	for rows.Next() {
		var level, n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("failed to scan level count: %w", err)
		}
		out[level] = n
	}
	return out, rows.Err()
}

// filterClause builds a WHERE clause. The actor filter matches requests the
// actor initiated or acted on.
func filterClause(f entity.RequestFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, f.Type)
	}
	if len(f.Types) > 0 {
		conds = append(conds, "type IN ("+placeholders(len(f.Types))+")")
		for _, t := range f.Types {
			args = append(args, t)
		}
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.ActorID != "" {
		conds = append(conds, "(initiator_id = ? OR EXISTS (SELECT 1 FROM request_history h WHERE h.request_id = requests.id AND h.actor_id = ?))")
		args = append(args, f.ActorID, f.ActorID)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(s scanner) (*entity.Request, error) {
	var (
		req      entity.Request
		module   sql.NullString
		entityID sql.NullString
		content  string
		steps    string
	)
	err := s.Scan(
		&req.ID, &req.Type, &req.Status, &req.InitiatorID, &module, &entityID, &content,
		&req.Priority, &steps, &req.CurrentApprovalLevel, &req.Version, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Content = json.RawMessage(content)
	if err := json.Unmarshal([]byte(steps), &req.ApprovalSteps); err != nil {
		return nil, fmt.Errorf("failed to decode approval steps of %s: %w", req.ID, err)
	}
	if entityID.Valid {
		req.LinkedEntity = &entity.LinkedEntity{Module: entity.Module(module.String), EntityID: entityID.String}
	}
	return &req, nil
}

func scanRequests(rows *sql.Rows) ([]*entity.Request, error) {
	out := []*entity.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

var _ port.RequestRepository = (*RequestRepository)(nil)
