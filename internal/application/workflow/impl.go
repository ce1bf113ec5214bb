package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/garyjia/coop-approvals/internal/application/dispatcher"
	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/apperr"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
	"github.com/garyjia/coop-approvals/internal/domain/event"
	"github.com/garyjia/coop-approvals/internal/domain/policy"
	domainwf "github.com/garyjia/coop-approvals/internal/domain/workflow"
)

const tracerName = "github.com/garyjia/coop-approvals/internal/application/workflow"

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	requestRepo port.RequestRepository
	historyRepo port.HistoryRepository
	txManager   port.TransactionManager
	adapters    port.AdapterRegistry
	identity    port.IdentityProvider

	dispatcher dispatcher.Dispatcher
	tracer     trace.Tracer
	logger     port.Logger
	now        func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithTracer overrides the tracer taken from the global provider
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *engineImpl) {
		e.tracer = t
	}
}

// WithLogger sets the engine logger
func WithLogger(l port.Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock sets the time source used for timestamps
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	requestRepo port.RequestRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	adapters port.AdapterRegistry,
	identity port.IdentityProvider,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		requestRepo: requestRepo,
		historyRepo: historyRepo,
		txManager:   txManager,
		adapters:    adapters,
		identity:    identity,
		logger:      nopLogger{},
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}

	return e
}

// Transition runs the guards in order: request exists and is open, the edge
// is legal, the actor is permitted, the domain record can follow. Nothing is
// written until all of them pass.
func (e *engineImpl) Transition(ctx context.Context, cmd TransitionCommand) (out *entity.Request, err error) {
	const op = "engine.Transition"

	ctx, span := e.tracer.Start(ctx, "approval."+string(cmd.Action), trace.WithAttributes(
		attribute.String("request.id", cmd.RequestID),
		attribute.String("request.action", string(cmd.Action)),
		attribute.String("actor.id", cmd.ActorID),
	))
	defer func() { endSpan(span, err) }()

	trigger, notes, err := e.validate(cmd)
	if err != nil {
		return nil, err
	}

	current, err := e.requestRepo.GetByID(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	current, err = e.Reconcile(ctx, current)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("request.type", string(current.Type)))

	if cmd.ExpectedStatus != "" && cmd.ExpectedStatus != current.Status {
		return nil, apperr.StaleState(op, "request %s is %s, caller expected %s", current.ID, current.Status, cmd.ExpectedStatus)
	}

	// (a) open request
	if current.Status.IsTerminal() {
		return nil, apperr.InvalidTransition(op, "request %s is already %s", current.ID, current.Status)
	}

	// (b) legal edge
	machine := BuildRequestStateMachine(domainwf.StateOf(current.Status))
	targetState, ok := machine.Target(trigger)
	if !ok {
		return nil, apperr.InvalidTransition(op, "cannot %s a request that is %s", cmd.Action, current.Status)
	}
	target := targetState.Status()

	// (c) policy
	profile, err := e.authorize(ctx, cmd, current)
	if err != nil {
		return nil, err
	}

	// (d) domain record can follow
	var adapter port.DomainAdapter
	domainCmd := port.TransitionCommand{From: current.Status, Target: target, Actor: profile, Notes: notes}
	if current.IsDomainBacked() {
		adapter, err = e.adapterFor(op, current)
		if err != nil {
			return nil, err
		}
		domainCmd.EntityID = current.LinkedEntity.EntityID
		if err := adapter.CanApply(ctx, current.Type, domainCmd); err != nil {
			return nil, err
		}
	}

	now := e.now()
	steps, level := advanceChain(current, cmd.Action, cmd.ActorID, now)
	var domainStatus entity.DomainStatus

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := machine.Fire(txCtx, trigger); err != nil {
			return apperr.Wrap(apperr.KindInvalidTransition, op, err, "state machine fire failed")
		}

		next := machine.State().Status()
		if adapter != nil {
			res, err := adapter.ApplyTransition(txCtx, current.Type, domainCmd)
			if err != nil {
				return err
			}
			// The domain record is authoritative for the stored status
			next, domainStatus = res.RequestStatus, res.DomainStatus
		}

		update := port.StatusUpdate{
			Status:               next,
			ApprovalSteps:        steps,
			CurrentApprovalLevel: level,
			UpdatedAt:            now,
		}
		if err := e.requestRepo.CompareAndSwapStatus(txCtx, current.ID, current.Status, update); err != nil {
			return err
		}

		return e.historyRepo.Append(txCtx, &entity.HistoryEntry{
			RequestID:     current.ID,
			FromStatus:    current.Status,
			ToStatus:      next,
			Action:        cmd.Action,
			ActorID:       cmd.ActorID,
			ApprovalLevel: profile.ApprovalLevel,
			Notes:         notes,
			Timestamp:     now,
		})
	})
	if err != nil {
		e.logger.Error("Transition failed",
			"request_id", current.ID, "action", cmd.Action, "actor_id", cmd.ActorID, "error", err)
		return nil, err
	}

	updated, err := e.requestRepo.GetByID(ctx, current.ID)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Request transitioned",
		"request_id", updated.ID, "action", cmd.Action, "from", current.Status, "to", updated.Status)

	payload := map[string]any{
		event.KeyRequestType: string(updated.Type),
		event.KeyInitiatorID: updated.InitiatorID,
		event.KeyActorID:     cmd.ActorID,
		event.KeyAction:      string(cmd.Action),
		event.KeyFromStatus:  string(current.Status),
		event.KeyToStatus:    string(updated.Status),
		event.KeyLevel:       updated.CurrentApprovalLevel,
	}
	if notes != "" {
		payload[event.KeyNotes] = notes
	}
	if domainStatus != "" {
		payload[event.KeyDomainStatus] = string(domainStatus)
	}
	if step := updated.CurrentStep(); step != nil && !updated.Status.IsTerminal() && step.Status == entity.StepPending {
		payload[event.KeyNextRole] = step.ApproverRole
	}
	e.emit(ctx, event.NewEvent(event.TypeRequestTransitioned, updated.ID, payload))

	return updated, nil
}

func (e *engineImpl) validate(cmd TransitionCommand) (domainwf.Trigger, string, error) {
	const op = "engine.Transition"

	if strings.TrimSpace(cmd.RequestID) == "" {
		return "", "", apperr.Validation(op, "request id is required")
	}
	if strings.TrimSpace(cmd.ActorID) == "" {
		return "", "", apperr.Validation(op, "actor id is required")
	}
	if !cmd.Action.Valid() {
		return "", "", apperr.Validation(op, "unknown action %q", cmd.Action)
	}
	if cmd.ExpectedStatus != "" && !cmd.ExpectedStatus.Valid() {
		return "", "", apperr.Validation(op, "unknown expected status %q", cmd.ExpectedStatus)
	}
	trigger, ok := domainwf.TriggerFor(cmd.Action)
	if !ok {
		return "", "", apperr.Validation(op, "action %q has no transition", cmd.Action)
	}

	notes := strings.TrimSpace(cmd.Notes)
	if cmd.Action == entity.ActionReject {
		reason := strings.TrimSpace(cmd.Reason)
		if reason == "" {
			return "", "", apperr.Validation(op, "a reason is required to reject")
		}
		if notes != "" {
			reason += "\n" + notes
		}
		notes = reason
	}
	return trigger, notes, nil
}

// authorize resolves the actor's profile and checks it against the policy.
// Cancel is reserved to the initiator and not gated by level.
func (e *engineImpl) authorize(ctx context.Context, cmd TransitionCommand, req *entity.Request) (entity.RoleApprovalProfile, error) {
	const op = "engine.authorize"

	if cmd.Action == entity.ActionCancel {
		if cmd.ActorID != req.InitiatorID {
			return entity.RoleApprovalProfile{}, apperr.Forbidden(op, "only the initiator may cancel request %s", req.ID)
		}
		profile, err := e.identity.GetActorRoleProfile(ctx, cmd.ActorID)
		if err != nil {
			// Initiators without a role may still cancel their own request
			if errors.Is(err, apperr.ErrNotFound) {
				return entity.RoleApprovalProfile{ActorID: cmd.ActorID}, nil
			}
			return entity.RoleApprovalProfile{}, fmt.Errorf("failed to resolve actor %s: %w", cmd.ActorID, err)
		}
		return profile, nil
	}

	profile, err := e.identity.GetActorRoleProfile(ctx, cmd.ActorID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return entity.RoleApprovalProfile{}, apperr.Forbidden(op, "actor %s has no role", cmd.ActorID)
		}
		return entity.RoleApprovalProfile{}, fmt.Errorf("failed to resolve actor %s: %w", cmd.ActorID, err)
	}

	action, ok := policy.ForRequest(cmd.Action, req)
	if !ok {
		return entity.RoleApprovalProfile{}, apperr.Forbidden(op, "action %s is not gated by any rule", cmd.Action)
	}
	if d := policy.Evaluate(profile, action); !d.Allowed {
		return entity.RoleApprovalProfile{}, apperr.Forbidden(op, "actor %s may not %s: %s", cmd.ActorID, cmd.Action, d.Reason)
	}
	return profile, nil
}

// Reconcile treats the domain record as the tie-breaker of record. Unmapped
// domain statuses leave the request at its last status.
func (e *engineImpl) Reconcile(ctx context.Context, req *entity.Request) (*entity.Request, error) {
	const op = "engine.Reconcile"

	if req == nil || !req.IsDomainBacked() {
		return req, nil
	}
	adapter, err := e.adapterFor(op, req)
	if err != nil {
		return nil, err
	}

	st, err := adapter.StatusFor(ctx, req.Type, req.LinkedEntity.EntityID)
	if err != nil {
		return nil, apperr.DomainSync(op, err, "cannot read %s %s", req.LinkedEntity.Module, req.LinkedEntity.EntityID)
	}
	if !st.Mapped {
		e.logger.Info("Domain status has no request equivalent",
			"request_id", req.ID, "domain_status", st.Native, "request_status", req.Status)
		return req, nil
	}
	if st.Status == req.Status {
		return req, nil
	}

	now := e.now()
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		update := port.StatusUpdate{
			Status:               st.Status,
			ApprovalSteps:        req.ApprovalSteps,
			CurrentApprovalLevel: req.CurrentApprovalLevel,
			UpdatedAt:            now,
		}
		if err := e.requestRepo.CompareAndSwapStatus(txCtx, req.ID, req.Status, update); err != nil {
			return err
		}
		return e.historyRepo.Append(txCtx, &entity.HistoryEntry{
			RequestID:     req.ID,
			FromStatus:    req.Status,
			ToStatus:      st.Status,
			Action:        entity.ActionReconcile,
			ActorID:       entity.SystemActorID,
			ApprovalLevel: req.CurrentApprovalLevel,
			Notes:         fmt.Sprintf("%s %s is %s", req.LinkedEntity.Module, req.LinkedEntity.EntityID, st.Native),
			Timestamp:     now,
		})
	})
	if err != nil && !errors.Is(err, apperr.ErrStaleState) {
		return nil, err
	}
	// A lost race means another writer already moved the request; reread it
	won := err == nil

	healed, err := e.requestRepo.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if won {
		e.logger.Info("Request reconciled",
			"request_id", req.ID, "from", req.Status, "to", st.Status, "domain_status", st.Native)
		e.emit(ctx, event.NewEvent(event.TypeRequestReconciled, req.ID, map[string]any{
			event.KeyRequestType:  string(req.Type),
			event.KeyInitiatorID:  req.InitiatorID,
			event.KeyActorID:      entity.SystemActorID,
			event.KeyAction:       string(entity.ActionReconcile),
			event.KeyFromStatus:   string(req.Status),
			event.KeyToStatus:     string(st.Status),
			event.KeyDomainStatus: string(st.Native),
		}))
	}
	return healed, nil
}

func (e *engineImpl) ReconcileAll(ctx context.Context, batch int) (int, error) {
	reqs, err := e.requestRepo.ListDomainBacked(ctx, entity.OpenStatuses, batch)
	if err != nil {
		return 0, err
	}

	var (
		healed int
		errs   []error
	)
	for _, req := range reqs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		after, err := e.Reconcile(ctx, req)
		if err != nil {
			e.logger.Error("Reconcile failed", "request_id", req.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if after.Status != req.Status {
			healed++
		}
	}
	return healed, errors.Join(errs...)
}

func (e *engineImpl) AvailableActions(status entity.RequestStatus) []entity.Action {
	return AvailableActions(status)
}

func (e *engineImpl) adapterFor(op string, req *entity.Request) (port.DomainAdapter, error) {
	adapter, ok := e.adapters.ForType(req.Type)
	if !ok {
		return nil, apperr.DomainSync(op, nil, "no domain adapter for %s", req.Type)
	}
	if adapter.Module() != req.LinkedEntity.Module {
		return nil, apperr.DomainSync(op, nil, "request %s links %s but %s is owned by %s",
			req.ID, req.LinkedEntity.Module, req.Type, adapter.Module())
	}
	return adapter, nil
}

func (e *engineImpl) emit(ctx context.Context, evt *event.Event) {
	if e.dispatcher == nil {
		return
	}
	// Fire async to avoid blocking; handler failures never undo a transition
	e.dispatcher.DispatchAsync(ctx, evt)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.kind", string(apperr.KindOf(err))))
	}
	span.End()
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
