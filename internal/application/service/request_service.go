package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/garyjia/coop-approvals/internal/application/dispatcher"
	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/application/workflow"
	"github.com/garyjia/coop-approvals/internal/domain/apperr"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
	"github.com/garyjia/coop-approvals/internal/domain/event"
	"github.com/garyjia/coop-approvals/internal/domain/policy"
	"github.com/garyjia/coop-approvals/pkg/utils"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// CreateRequestInput is the payload of create-request
type CreateRequestInput struct {
	Type         entity.RequestType   `json:"type" validate:"required"`
	InitiatorID  string               `json:"initiatorId" validate:"required,max=128"`
	Content      json.RawMessage      `json:"content"`
	Priority     entity.Priority      `json:"priority" validate:"omitempty,oneof=NORMAL MEDIUM HIGH"`
	LinkedEntity *entity.LinkedEntity `json:"linkedEntity" validate:"omitempty"`
}

// ListRequestsInput is a filtered, paginated listing as callers send it
type ListRequestsInput struct {
	FilterInput
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
	SortBy    string `form:"sortBy"`
	SortOrder string `form:"sortOrder"`
}

// RequestPage is the flat list envelope: data plus meta, nothing nested
type RequestPage struct {
	Data []*entity.Request `json:"data"`
	Meta entity.PageMeta   `json:"meta"`
}

// PriorityThresholds derive a priority from a content "amount" when none is
// declared. A zero threshold is disabled.
type PriorityThresholds struct {
	High   int64
	Medium int64
}

// RequestService manages the request envelope around the workflow engine
type RequestService interface {
	Create(ctx context.Context, in CreateRequestInput) (*entity.Request, error)
	// Get returns the request with its history, reconciled against its domain record
	Get(ctx context.Context, id string) (*entity.Request, error)
	List(ctx context.Context, in ListRequestsInput) (*RequestPage, error)
	History(ctx context.Context, id string) ([]entity.HistoryEntry, error)
	Transition(ctx context.Context, cmd workflow.TransitionCommand) (*entity.Request, error)
	// Delete hard-removes a PENDING request nobody has acted on
	Delete(ctx context.Context, id, actorID string) error
}

// RequestServiceOption configures the request service
type RequestServiceOption func(*requestServiceImpl)

// WithPriorityThresholds enables amount-derived priorities
func WithPriorityThresholds(p PriorityThresholds) RequestServiceOption {
	return func(s *requestServiceImpl) {
		s.priority = p
	}
}

// WithMaxPageLimit caps the page size of listings
func WithMaxPageLimit(n int) RequestServiceOption {
	return func(s *requestServiceImpl) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithEventDispatcher emits request.created and request.deleted events
func WithEventDispatcher(d dispatcher.Dispatcher) RequestServiceOption {
	return func(s *requestServiceImpl) {
		s.dispatcher = d
	}
}

type requestServiceImpl struct {
	requestRepo port.RequestRepository
	historyRepo port.HistoryRepository
	txManager   port.TransactionManager
	adapters    port.AdapterRegistry
	engine      workflow.WorkflowEngine
	identity    port.IdentityProvider
	chains      workflow.Chains
	validate    *validator.Validate
	logger      port.Logger

	dispatcher dispatcher.Dispatcher
	priority   PriorityThresholds
	maxLimit   int
}

// NewRequestService creates a new RequestService
func NewRequestService(
	requestRepo port.RequestRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	adapters port.AdapterRegistry,
	engine workflow.WorkflowEngine,
	identity port.IdentityProvider,
	chains workflow.Chains,
	validate *validator.Validate,
	logger port.Logger,
	opts ...RequestServiceOption,
) RequestService {
	s := &requestServiceImpl{
		requestRepo: requestRepo,
		historyRepo: historyRepo,
		txManager:   txManager,
		adapters:    adapters,
		engine:      engine,
		identity:    identity,
		chains:      chains,
		validate:    validate,
		logger:      logger,
		maxLimit:    maxPageLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *requestServiceImpl) authorizeCreate(ctx context.Context, op string, in CreateRequestInput) error {
	profile, err := s.identity.GetActorRoleProfile(ctx, in.InitiatorID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Forbidden(op, "actor %s has no role", in.InitiatorID)
		}
		return fmt.Errorf("%s: resolve initiator: %w", op, err)
	}
	if d := policy.Evaluate(profile, policy.ForCreate(in.Type)); !d.Allowed {
		return apperr.Forbidden(op, "%s", d.Reason)
	}
	return nil
}

// Create opens the domain record, when the type has one and none was linked,
// in the same transaction as the request insert
func (s *requestServiceImpl) Create(ctx context.Context, in CreateRequestInput) (*entity.Request, error) {
	const op = "requests.Create"

	in.Type = entity.RequestType(strings.ToUpper(strings.TrimSpace(string(in.Type))))
	in.InitiatorID = strings.TrimSpace(in.InitiatorID)
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.Validation(op, "%s", utils.ValidationMessage(err))
	}
	if !in.Type.Valid() {
		return nil, apperr.Validation(op, "unknown request type %q", in.Type)
	}
	if err := s.authorizeCreate(ctx, op, in); err != nil {
		return nil, err
	}

	content := in.Content
	if len(content) == 0 {
		content = json.RawMessage("{}")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(content, &fields); err != nil {
		return nil, apperr.Validation(op, "content must be a JSON object")
	}

	adapter, backed := s.adapters.ForType(in.Type)
	if in.LinkedEntity != nil {
		if err := s.checkLinked(ctx, in.Type, adapter, backed, in.LinkedEntity); err != nil {
			return nil, err
		}
	}

	priority := in.Priority
	if priority == "" {
		priority = s.derivePriority(fields)
	}

	now := time.Now().UTC()
	req := &entity.Request{
		ID:                   uuid.NewString(),
		Type:                 in.Type,
		Status:               entity.StatusPending,
		InitiatorID:          in.InitiatorID,
		LinkedEntity:         in.LinkedEntity,
		Content:              content,
		Priority:             priority,
		ApprovalSteps:        s.chains.Steps(in.Type),
		CurrentApprovalLevel: 1,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if backed && req.LinkedEntity == nil {
			entityID, err := adapter.Open(txCtx, req.Type, content)
			if err != nil {
				return err
			}
			req.LinkedEntity = &entity.LinkedEntity{Module: adapter.Module(), EntityID: entityID}
		}
		return s.requestRepo.Create(txCtx, req)
	})
	if err != nil {
		s.logger.Error("Failed to create request", "error", err, "type", in.Type, "initiator_id", in.InitiatorID)
		return nil, err
	}

	s.logger.Info("Request created", "id", req.ID, "type", req.Type, "priority", req.Priority, "domain_backed", req.IsDomainBacked())

	payload := map[string]any{
		event.KeyRequestType: string(req.Type),
		event.KeyInitiatorID: req.InitiatorID,
		event.KeyActorID:     req.InitiatorID,
		event.KeyToStatus:    string(req.Status),
		event.KeyLevel:       req.CurrentApprovalLevel,
	}
	if step := req.CurrentStep(); step != nil {
		payload[event.KeyNextRole] = step.ApproverRole
	}
	s.emit(ctx, event.NewEvent(event.TypeRequestCreated, req.ID, payload))

	return req, nil
}

// checkLinked accepts an existing domain record only while it is still PENDING
func (s *requestServiceImpl) checkLinked(ctx context.Context, t entity.RequestType, adapter port.DomainAdapter, backed bool, le *entity.LinkedEntity) error {
	const op = "requests.Create"

	if !backed {
		return apperr.Validation(op, "request type %s has no domain record to link", t)
	}
	if le.Module != adapter.Module() {
		return apperr.Validation(op, "request type %s links %s records, not %s", t, adapter.Module(), le.Module)
	}
	st, err := adapter.StatusFor(ctx, t, le.EntityID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return apperr.Validation(op, "linked %s record %s does not exist", le.Module, le.EntityID)
		}
		return apperr.DomainSync(op, err, "cannot read linked %s record %s", le.Module, le.EntityID)
	}
	if !st.Mapped || st.Status != entity.StatusPending {
		return apperr.Validation(op, "linked %s record %s is %s, expected PENDING", le.Module, le.EntityID, st.Native)
	}
	return nil
}

func (s *requestServiceImpl) derivePriority(fields map[string]json.RawMessage) entity.Priority {
	raw, ok := fields["amount"]
	if !ok {
		return entity.PriorityNormal
	}
	var amount float64
	if err := json.Unmarshal(raw, &amount); err != nil {
		return entity.PriorityNormal
	}
	switch {
	case s.priority.High > 0 && amount >= float64(s.priority.High):
		return entity.PriorityHigh
	case s.priority.Medium > 0 && amount >= float64(s.priority.Medium):
		return entity.PriorityMedium
	default:
		return entity.PriorityNormal
	}
}

func (s *requestServiceImpl) Get(ctx context.Context, id string) (*entity.Request, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	req, err = s.engine.Reconcile(ctx, req)
	if err != nil {
		s.logger.Error("Failed to reconcile request", "error", err, "id", id)
		return nil, err
	}

	history, err := s.historyRepo.ListByRequestID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	req.History = history
	return req, nil
}

// List serves stored statuses; drift on domain-backed rows is healed by Get,
// by transitions and by the background reconciler.
func (s *requestServiceImpl) List(ctx context.Context, in ListRequestsInput) (*RequestPage, error) {
	const op = "requests.List"

	filter, err := normalizeFilter(op, s.adapters, in.FilterInput)
	if err != nil {
		return nil, err
	}

	// zero means unset
	if in.Page < 0 {
		return nil, apperr.Validation(op, "page must be 1 or more, got %d", in.Page)
	}
	page := in.Page
	if page == 0 {
		page = 1
	}
	limit := in.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	sortBy := strings.TrimSpace(in.SortBy)
	switch sortBy {
	case "", entity.SortByCreatedAt, entity.SortByUpdatedAt, entity.SortByPriority, entity.SortByStatus, entity.SortByType:
	default:
		return nil, apperr.Validation(op, "cannot sort by %q", in.SortBy)
	}
	sortOrder := strings.ToLower(strings.TrimSpace(in.SortOrder))
	if sortOrder != "" && sortOrder != "asc" && sortOrder != "desc" {
		return nil, apperr.Validation(op, "sort order must be asc or desc")
	}

	reqs, total, err := s.requestRepo.List(ctx, entity.RequestQuery{
		RequestFilter: filter,
		Page:          page,
		Limit:         limit,
		SortBy:        sortBy,
		SortOrder:     sortOrder,
	})
	if err != nil {
		s.logger.Error("Failed to list requests", "error", err)
		return nil, err
	}
	if reqs == nil {
		reqs = []*entity.Request{}
	}

	return &RequestPage{Data: reqs, Meta: entity.NewPageMeta(total, page, limit)}, nil
}

func (s *requestServiceImpl) History(ctx context.Context, id string) ([]entity.HistoryEntry, error) {
	if _, err := s.requestRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.historyRepo.ListByRequestID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if entries == nil {
		entries = []entity.HistoryEntry{}
	}
	return entries, nil
}

func (s *requestServiceImpl) Transition(ctx context.Context, cmd workflow.TransitionCommand) (*entity.Request, error) {
	return s.engine.Transition(ctx, cmd)
}

func (s *requestServiceImpl) Delete(ctx context.Context, id, actorID string) error {
	const op = "requests.Delete"

	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if req, err = s.engine.Reconcile(ctx, req); err != nil {
		return err
	}
	if actorID != req.InitiatorID {
		return apperr.Forbidden(op, "only the initiator may delete request %s", id)
	}
	if req.Status != entity.StatusPending {
		return apperr.InvalidTransition(op, "request %s is %s; only PENDING requests can be deleted", id, req.Status)
	}
	n, err := s.historyRepo.CountByRequestID(ctx, id)
	if err != nil {
		return fmt.Errorf("count history: %w", err)
	}
	if n > 0 {
		return apperr.InvalidTransition(op, "request %s has been acted on; cancel it instead", id)
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if req.IsDomainBacked() {
			adapter, ok := s.adapters.ForType(req.Type)
			if !ok {
				return apperr.DomainSync(op, nil, "no domain adapter for %s", req.Type)
			}
			_, err := adapter.ApplyTransition(txCtx, req.Type, port.TransitionCommand{
				EntityID: req.LinkedEntity.EntityID,
				From:     entity.StatusPending,
				Target:   entity.StatusCancelled,
				Actor:    entity.RoleApprovalProfile{ActorID: actorID},
				Notes:    "request deleted by initiator",
			})
			if err != nil {
				return err
			}
		}
		return s.requestRepo.Delete(txCtx, id)
	})
	if err != nil {
		s.logger.Error("Failed to delete request", "error", err, "id", id)
		return err
	}

	s.logger.Info("Request deleted", "id", id, "actor_id", actorID)
	s.emit(ctx, event.NewEvent(event.TypeRequestDeleted, id, map[string]any{
		event.KeyRequestType: string(req.Type),
		event.KeyInitiatorID: req.InitiatorID,
		event.KeyActorID:     actorID,
		event.KeyFromStatus:  string(req.Status),
	}))
	return nil
}

func (s *requestServiceImpl) emit(ctx context.Context, evt *event.Event) {
	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, evt)
	}
}
