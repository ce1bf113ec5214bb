package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/coop-approvals/internal/application/dispatcher"
	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/apperr"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
	"github.com/garyjia/coop-approvals/internal/domain/event"
)

// Mock implementations

type mockRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*entity.Request
	casErr   error
}

func newMockRequestRepo(reqs ...*entity.Request) *mockRequestRepo {
	m := &mockRequestRepo{requests: make(map[string]*entity.Request)}
	for _, r := range reqs {
		m.requests[r.ID] = clone(r)
	}
	return m
}

func clone(r *entity.Request) *entity.Request {
	c := *r
	c.ApprovalSteps = append([]entity.ApprovalStep(nil), r.ApprovalSteps...)
	if r.LinkedEntity != nil {
		le := *r.LinkedEntity
		c.LinkedEntity = &le
	}
	return &c
}

func (m *mockRequestRepo) Create(ctx context.Context, req *entity.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = clone(req)
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id string) (*entity.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, apperr.NotFound("mock.GetByID", "request %s not found", id)
	}
	return clone(r), nil
}

func (m *mockRequestRepo) List(ctx context.Context, q entity.RequestQuery) ([]*entity.Request, int, error) {
	return nil, 0, nil
}

func (m *mockRequestRepo) CompareAndSwapStatus(ctx context.Context, id string, expected entity.RequestStatus, update port.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.casErr != nil {
		return m.casErr
	}
	r, ok := m.requests[id]
	if !ok {
		return apperr.NotFound("mock.CAS", "request %s not found", id)
	}
	if r.Status != expected {
		return apperr.StaleState("mock.CAS", "request %s moved", id)
	}
	r.Status = update.Status
	r.ApprovalSteps = update.ApprovalSteps
	r.CurrentApprovalLevel = update.CurrentApprovalLevel
	r.UpdatedAt = update.UpdatedAt
	r.Version++
	return nil
}

func (m *mockRequestRepo) Delete(ctx context.Context, id string) error { return nil }

func (m *mockRequestRepo) ListDomainBacked(ctx context.Context, statuses []entity.RequestStatus, limit int) ([]*entity.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Request
	for _, r := range m.requests {
		for _, s := range statuses {
			if r.IsDomainBacked() && r.Status == s {
				out = append(out, clone(r))
			}
		}
	}
	return out, nil
}

func (m *mockRequestRepo) CountByStatus(ctx context.Context, f entity.RequestFilter) (map[entity.RequestStatus]int, error) {
	return nil, nil
}

func (m *mockRequestRepo) CountByApprovalLevel(ctx context.Context, f entity.RequestFilter) (map[int]int, error) {
	return nil, nil
}

func (m *mockRequestRepo) status(id string) entity.RequestStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[id].Status
}

type mockHistoryRepo struct {
	mu        sync.Mutex
	entries   []entity.HistoryEntry
	appendErr error
}

func (m *mockHistoryRepo) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	entry.Seq = len(m.entries) + 1
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockHistoryRepo) ListByRequestID(ctx context.Context, id string) ([]entity.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.HistoryEntry
	for _, e := range m.entries {
		if e.RequestID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockHistoryRepo) CountByRequestID(ctx context.Context, id string) (int, error) {
	entries, _ := m.ListByRequestID(ctx, id)
	return len(entries), nil
}

func (m *mockHistoryRepo) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// mockTxManager stages nothing; tests assert on what reached the mocks
type mockTxManager struct{}

func (mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockIdentity map[string]entity.RoleApprovalProfile

func (m mockIdentity) GetActorRoleProfile(ctx context.Context, actorID string) (entity.RoleApprovalProfile, error) {
	p, ok := m[actorID]
	if !ok {
		return entity.RoleApprovalProfile{}, apperr.NotFound("mock.Identity", "actor %s has no role", actorID)
	}
	return p, nil
}

type mockAdapter struct {
	status    port.DomainState
	statusErr error
	canErr    error
	applyErr  error
	applied   []port.TransitionCommand
}

func (m *mockAdapter) Module() entity.Module { return entity.ModuleLoans }
func (m *mockAdapter) RequestTypes() []entity.RequestType {
	return []entity.RequestType{entity.TypeLoanApplication}
}
func (m *mockAdapter) Open(ctx context.Context, t entity.RequestType, c json.RawMessage) (string, error) {
	return "loan-1", nil
}
func (m *mockAdapter) StatusFor(ctx context.Context, t entity.RequestType, id string) (port.DomainState, error) {
	return m.status, m.statusErr
}
func (m *mockAdapter) CanApply(ctx context.Context, t entity.RequestType, cmd port.TransitionCommand) error {
	return m.canErr
}
func (m *mockAdapter) ApplyTransition(ctx context.Context, t entity.RequestType, cmd port.TransitionCommand) (port.TransitionResult, error) {
	if m.applyErr != nil {
		return port.TransitionResult{}, m.applyErr
	}
	m.applied = append(m.applied, cmd)
	native := entity.DomainStatus(cmd.Target)
	if cmd.Target == entity.StatusCompleted {
		native = entity.LoanDisbursed
	}
	m.status = port.DomainState{Native: native, Status: cmd.Target, Mapped: true}
	return port.TransitionResult{DomainStatus: native, RequestStatus: cmd.Target}, nil
}
func (m *mockAdapter) Aliases() map[string]entity.RequestStatus { return nil }

type mockRegistry struct{ adapter port.DomainAdapter }

func (m mockRegistry) ForType(t entity.RequestType) (port.DomainAdapter, bool) {
	if m.adapter == nil || t != entity.TypeLoanApplication {
		return nil, false
	}
	return m.adapter, true
}
func (m mockRegistry) ForModule(mod entity.Module) (port.DomainAdapter, bool) {
	return m.ForType(entity.TypeLoanApplication)
}
func (m mockRegistry) TranslateStatus(t entity.RequestType, raw string) (entity.RequestStatus, []entity.RequestType, bool) {
	return entity.RequestStatus(raw), nil, entity.RequestStatus(raw).Valid()
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, name string, handler dispatcher.Handler) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) Handlers(eventType event.Type) []string { return nil }

func (m *mockDispatcher) Close() error { return nil }

func (m *mockDispatcher) last() *event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

// Helper functions

var allModules = []entity.Module{entity.ModuleLoans, entity.ModuleSavings, entity.ModulePersonalSavings, entity.ModuleAccounts}

var allPermissions = []string{
	entity.PermissionReview, entity.PermissionMarkReviewed, entity.PermissionApprove,
	entity.PermissionComplete, entity.PermissionReject,
}

func profile(actorID string, level int) entity.RoleApprovalProfile {
	perms := make([]entity.Permission, len(allPermissions))
	for i, p := range allPermissions {
		perms[i] = entity.Permission{Name: p}
	}
	return entity.RoleApprovalProfile{
		ActorID: actorID, Role: "ROLE", ApprovalLevel: level, CanApprove: true,
		ModuleAccess: allModules, Permissions: perms,
	}
}

func testRequest(id string, status entity.RequestStatus) *entity.Request {
	return &entity.Request{
		ID:                   id,
		Type:                 entity.TypeBiodataApproval,
		Status:               status,
		InitiatorID:          "member",
		Priority:             entity.PriorityNormal,
		ApprovalSteps:        NewChains(nil, nil).Steps(entity.TypeBiodataApproval),
		CurrentApprovalLevel: 1,
		Version:              1,
	}
}

type fixture struct {
	requests   *mockRequestRepo
	history    *mockHistoryRepo
	adapter    *mockAdapter
	dispatcher *mockDispatcher
	engine     WorkflowEngine
}

func newFixture(reqs ...*entity.Request) *fixture {
	f := &fixture{
		requests:   newMockRequestRepo(reqs...),
		history:    &mockHistoryRepo{},
		adapter:    &mockAdapter{},
		dispatcher: &mockDispatcher{},
	}
	identity := mockIdentity{
		"member":  {ActorID: "member", Role: "MEMBER", ModuleAccess: allModules},
		"sec":     profile("sec", 1),
		"tre":     profile("tre", 2),
		"pres":    profile("pres", 3),
		"admin":   profile("admin", 5),
		"viewer":  {ActorID: "viewer", Role: "VIEWER", ApprovalLevel: 5, CanApprove: false, ModuleAccess: allModules},
		"outside": {ActorID: "outside", Role: "OUTSIDE", ApprovalLevel: 5, CanApprove: true},
	}
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	f.engine = NewEngine(f.requests, f.history, mockTxManager{}, mockRegistry{adapter: f.adapter}, identity,
		WithDispatcher(f.dispatcher), WithClock(clock))
	return f
}

// Tests

func TestBuildRequestStateMachine_Edges(t *testing.T) {
	tests := []struct {
		status  entity.RequestStatus
		actions []entity.Action
	}{
		{entity.StatusPending, []entity.Action{entity.ActionCancel, entity.ActionReject, entity.ActionReview}},
		{entity.StatusInReview, []entity.Action{entity.ActionMarkReviewed, entity.ActionReject}},
		{entity.StatusReviewed, []entity.Action{entity.ActionApprove, entity.ActionReject}},
		{entity.StatusApproved, []entity.Action{entity.ActionComplete}},
		{entity.StatusCompleted, []entity.Action{}},
		{entity.StatusRejected, []entity.Action{}},
		{entity.StatusCancelled, []entity.Action{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.ElementsMatch(t, tt.actions, AvailableActions(tt.status))
		})
	}
}

// Every (status, action) pair succeeds exactly when the edge exists
func TestTransition_Legality(t *testing.T) {
	legal := map[entity.RequestStatus]map[entity.Action]entity.RequestStatus{
		entity.StatusPending: {
			entity.ActionReview: entity.StatusInReview, entity.ActionReject: entity.StatusRejected, entity.ActionCancel: entity.StatusCancelled,
		},
		entity.StatusInReview: {entity.ActionMarkReviewed: entity.StatusReviewed, entity.ActionReject: entity.StatusRejected},
		entity.StatusReviewed: {entity.ActionApprove: entity.StatusApproved, entity.ActionReject: entity.StatusRejected},
		entity.StatusApproved: {entity.ActionComplete: entity.StatusCompleted},
	}

	for _, status := range entity.AllStatuses {
		for _, action := range entity.Actions {
			t.Run(string(status)+"/"+string(action), func(t *testing.T) {
				req := testRequest("req-1", status)
				req.InitiatorID = "admin"
				f := newFixture(req)

				got, err := f.engine.Transition(context.Background(), TransitionCommand{
					RequestID: "req-1", Action: action, ActorID: "admin", Reason: "not eligible",
				})

				want, ok := legal[status][action]
				if !ok {
					assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
					assert.Equal(t, 0, f.history.len())
					assert.Equal(t, status, f.requests.status("req-1"))
					return
				}
				require.NoError(t, err)
				assert.Equal(t, want, got.Status)
				assert.Equal(t, 1, f.history.len())
			})
		}
	}
}

func TestTransition_ChainAdvances(t *testing.T) {
	f := newFixture(testRequest("req-1", entity.StatusPending))
	ctx := context.Background()

	steps := []struct {
		action entity.Action
		actor  string
		level  int
	}{
		{entity.ActionReview, "sec", 2},
		{entity.ActionMarkReviewed, "tre", 3},
		{entity.ActionApprove, "pres", 3},
		{entity.ActionComplete, "tre", 3},
	}
	for i, s := range steps {
		got, err := f.engine.Transition(ctx, TransitionCommand{RequestID: "req-1", Action: s.action, ActorID: s.actor})
		require.NoError(t, err, s.action)
		assert.Equal(t, s.level, got.CurrentApprovalLevel, s.action)
		assert.Equal(t, i+1, f.history.len())
	}

	got, err := f.requests.GetByID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, got.Status)
	for i, actor := range []string{"sec", "tre", "pres"} {
		assert.Equal(t, entity.StepDone, got.ApprovalSteps[i].Status)
		assert.Equal(t, actor, got.ApprovalSteps[i].ActedBy)
		assert.NotNil(t, got.ApprovalSteps[i].ActedAt)
	}
}

func TestTransition_ShortChainKeepsFirstActor(t *testing.T) {
	req := testRequest("req-1", entity.StatusPending)
	req.ApprovalSteps = NewChains([]ChainStep{{Level: 1, Role: "SECRETARY"}}, nil).Steps(req.Type)
	f := newFixture(req)
	ctx := context.Background()

	reviewed, err := f.engine.Transition(ctx, TransitionCommand{RequestID: "req-1", Action: entity.ActionReview, ActorID: "sec"})
	require.NoError(t, err)
	require.NotNil(t, reviewed.ApprovalSteps[0].ActedAt)
	reviewedAt := *reviewed.ApprovalSteps[0].ActedAt

	got, err := f.engine.Transition(ctx, TransitionCommand{RequestID: "req-1", Action: entity.ActionMarkReviewed, ActorID: "tre"})
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentApprovalLevel)
	assert.Equal(t, "sec", got.ApprovalSteps[0].ActedBy)

	got, err = f.engine.Transition(ctx, TransitionCommand{RequestID: "req-1", Action: entity.ActionReject, ActorID: "pres", Reason: "duplicate"})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, got.Status)
	require.Len(t, got.ApprovalSteps, 1)
	assert.Equal(t, entity.StepDone, got.ApprovalSteps[0].Status)
	assert.Equal(t, "sec", got.ApprovalSteps[0].ActedBy)
	assert.Equal(t, reviewedAt, *got.ApprovalSteps[0].ActedAt)

	// every actor is still in the history
	require.Equal(t, 3, f.history.len())
	assert.Equal(t, "pres", f.history.entries[2].ActorID)
}

func TestTransition_RejectFreezesLevel(t *testing.T) {
	req := testRequest("req-1", entity.StatusInReview)
	req.CurrentApprovalLevel = 2
	f := newFixture(req)

	got, err := f.engine.Transition(context.Background(), TransitionCommand{
		RequestID: "req-1", Action: entity.ActionReject, ActorID: "tre", Reason: "incomplete biodata", Notes: "call member",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, got.Status)
	assert.Equal(t, 2, got.CurrentApprovalLevel)
	assert.Equal(t, entity.StepRejected, got.ApprovalSteps[1].Status)
	assert.Equal(t, "incomplete biodata\ncall member", f.history.entries[0].Notes)

	// Rejection is terminal, including for complete
	for _, action := range entity.Actions {
		_, err := f.engine.Transition(context.Background(), TransitionCommand{
			RequestID: "req-1", Action: action, ActorID: "admin", Reason: "again",
		})
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition, action)
	}
	assert.Equal(t, 1, f.history.len())
}

func TestTransition_Validation(t *testing.T) {
	f := newFixture(testRequest("req-1", entity.StatusPending))

	tests := []struct {
		name string
		cmd  TransitionCommand
	}{
		{"missing reason", TransitionCommand{RequestID: "req-1", Action: entity.ActionReject, ActorID: "sec"}},
		{"blank reason", TransitionCommand{RequestID: "req-1", Action: entity.ActionReject, ActorID: "sec", Reason: "  "}},
		{"unknown action", TransitionCommand{RequestID: "req-1", Action: "disburse", ActorID: "sec"}},
		{"reconcile is internal", TransitionCommand{RequestID: "req-1", Action: entity.ActionReconcile, ActorID: "sec"}},
		{"missing actor", TransitionCommand{RequestID: "req-1", Action: entity.ActionReview}},
		{"bad expected status", TransitionCommand{RequestID: "req-1", Action: entity.ActionReview, ActorID: "sec", ExpectedStatus: "DONE"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Transition(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
	assert.Equal(t, 0, f.history.len())
}

func TestTransition_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.engine.Transition(context.Background(), TransitionCommand{RequestID: "nope", Action: entity.ActionReview, ActorID: "sec"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTransition_Forbidden(t *testing.T) {
	tests := []struct {
		name   string
		status entity.RequestStatus
		action entity.Action
		actor  string
	}{
		{"level too low to mark reviewed", entity.StatusInReview, entity.ActionMarkReviewed, "sec"},
		{"level too low to approve", entity.StatusReviewed, entity.ActionApprove, "tre"},
		{"cannot approve flag", entity.StatusPending, entity.ActionReview, "viewer"},
		{"no module access", entity.StatusPending, entity.ActionReview, "outside"},
		{"member without permission", entity.StatusPending, entity.ActionReview, "member"},
		{"unknown actor", entity.StatusPending, entity.ActionReview, "ghost"},
		{"cancel by someone else", entity.StatusPending, entity.ActionCancel, "admin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(testRequest("req-1", tt.status))
			_, err := f.engine.Transition(context.Background(), TransitionCommand{
				RequestID: "req-1", Action: tt.action, ActorID: tt.actor,
			})
			assert.ErrorIs(t, err, apperr.ErrForbidden)
			assert.Equal(t, 0, f.history.len())
		})
	}
}

// Scenario: approve while still IN_REVIEW must pass through REVIEWED first
func TestTransition_CannotSkipStage(t *testing.T) {
	f := newFixture(testRequest("req-1", entity.StatusInReview))
	_, err := f.engine.Transition(context.Background(), TransitionCommand{RequestID: "req-1", Action: entity.ActionApprove, ActorID: "pres"})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

// Scenario: cancellation window closes once review starts
func TestTransition_CancelAfterReview(t *testing.T) {
	f := newFixture(testRequest("req-1", entity.StatusInReview))
	_, err := f.engine.Transition(context.Background(), TransitionCommand{RequestID: "req-1", Action: entity.ActionCancel, ActorID: "member"})
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestTransition_CancelByInitiatorWithoutRole(t *testing.T) {
	req := testRequest("req-1", entity.StatusPending)
	req.InitiatorID = "newcomer"
	f := newFixture(req)

	got, err := f.engine.Transition(context.Background(), TransitionCommand{RequestID: "req-1", Action: entity.ActionCancel, ActorID: "newcomer"})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, got.Status)
	assert.Equal(t, 1, got.CurrentApprovalLevel)
}

type brokenIdentity struct{}

func (brokenIdentity) GetActorRoleProfile(ctx context.Context, actorID string) (entity.RoleApprovalProfile, error) {
	return entity.RoleApprovalProfile{}, errors.New("role store unavailable")
}

func TestTransition_CancelIdentityFailure(t *testing.T) {
	f := newFixture(testRequest("req-1", entity.StatusPending))
	engine := NewEngine(f.requests, f.history, mockTxManager{}, mockRegistry{adapter: f.adapter}, brokenIdentity{})

	_, err := engine.Transition(context.Background(), TransitionCommand{RequestID: "req-1", Action: entity.ActionCancel, ActorID: "member"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role store unavailable")
	assert.NotEqual(t, apperr.KindForbidden, apperr.KindOf(err))

	got, err := f.requests.GetByID(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, got.Status)
	assert.Empty(t, f.history.entries)
}

func TestTransition_ExpectedStatus(t *testing.T) {
	f := newFixture(testRequest("req-1", entity.StatusInReview))
	_, err := f.engine.Transition(context.Background(), TransitionCommand{
		RequestID: "req-1", Action: entity.ActionMarkReviewed, ActorID: "tre", ExpectedStatus: entity.StatusPending,
	})
	assert.ErrorIs(t, err, apperr.ErrStaleState)
	assert.True(t, apperr.Retryable(err))
}

func TestTransition_LostCompareAndSwap(t *testing.T) {
	f := newFixture(testRequest("req-1", entity.StatusPending))
	f.requests.casErr = apperr.StaleState("mock", "moved")

	_, err := f.engine.Transition(context.Background(), TransitionCommand{RequestID: "req-1", Action: entity.ActionReview, ActorID: "sec"})
	assert.ErrorIs(t, err, apperr.ErrStaleState)
	assert.Equal(t, 0, f.history.len())
	assert.Nil(t, f.dispatcher.last())
}

func TestTransition_DomainBacked(t *testing.T) {
	req := testRequest("req-1", entity.StatusApproved)
	req.Type = entity.TypeLoanApplication
	req.LinkedEntity = &entity.LinkedEntity{Module: entity.ModuleLoans, EntityID: "loan-1"}
	req.CurrentApprovalLevel = 3

	t.Run("adapter drives the status", func(t *testing.T) {
		f := newFixture(req)
		f.adapter.status = port.DomainState{Native: entity.DomainApproved, Status: entity.StatusApproved, Mapped: true}

		got, err := f.engine.Transition(context.Background(), TransitionCommand{RequestID: "req-1", Action: entity.ActionComplete, ActorID: "tre"})
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCompleted, got.Status)
		require.Len(t, f.adapter.applied, 1)
		assert.Equal(t, entity.StatusApproved, f.adapter.applied[0].From)
		assert.Equal(t, "loan-1", f.adapter.applied[0].EntityID)

		evt := f.dispatcher.last()
		require.NotNil(t, evt)
		assert.Equal(t, event.TypeRequestTransitioned, evt.Type)
		assert.Equal(t, string(entity.LoanDisbursed), evt.GetPayloadString(event.KeyDomainStatus))
	})

	t.Run("domain refusal leaves request unchanged", func(t *testing.T) {
		f := newFixture(req)
		f.adapter.status = port.DomainState{Native: entity.DomainApproved, Status: entity.StatusApproved, Mapped: true}
		f.adapter.canErr = apperr.DomainSync("mock", nil, "insufficient balance")

		_, err := f.engine.Transition(context.Background(), TransitionCommand{RequestID: "req-1", Action: entity.ActionComplete, ActorID: "tre"})
		assert.ErrorIs(t, err, apperr.ErrDomainSyncFailure)
		assert.False(t, apperr.Retryable(err))
		assert.Equal(t, entity.StatusApproved, f.requests.status("req-1"))
		assert.Equal(t, 0, f.history.len())
	})

	t.Run("apply failure leaves history unchanged", func(t *testing.T) {
		f := newFixture(req)
		f.adapter.status = port.DomainState{Native: entity.DomainApproved, Status: entity.StatusApproved, Mapped: true}
		f.adapter.applyErr = apperr.DomainSync("mock", nil, "ledger offline")

		_, err := f.engine.Transition(context.Background(), TransitionCommand{RequestID: "req-1", Action: entity.ActionComplete, ActorID: "tre"})
		assert.ErrorIs(t, err, apperr.ErrDomainSyncFailure)
		assert.Equal(t, 0, f.history.len())
	})
}

func TestReconcile(t *testing.T) {
	req := testRequest("req-1", entity.StatusApproved)
	req.Type = entity.TypeLoanApplication
	req.LinkedEntity = &entity.LinkedEntity{Module: entity.ModuleLoans, EntityID: "loan-1"}

	t.Run("heals drift", func(t *testing.T) {
		f := newFixture(req)
		f.adapter.status = port.DomainState{Native: entity.LoanDisbursed, Status: entity.StatusCompleted, Mapped: true}

		got, err := f.engine.Reconcile(context.Background(), clone(req))
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCompleted, got.Status)
		require.Equal(t, 1, f.history.len())
		assert.Equal(t, entity.ActionReconcile, f.history.entries[0].Action)
		assert.Equal(t, entity.SystemActorID, f.history.entries[0].ActorID)
		assert.Equal(t, event.TypeRequestReconciled, f.dispatcher.last().Type)
	})

	t.Run("unmapped status leaves request alone", func(t *testing.T) {
		f := newFixture(req)
		f.adapter.status = port.DomainState{Native: entity.LoanDefaulted}

		got, err := f.engine.Reconcile(context.Background(), clone(req))
		require.NoError(t, err)
		assert.Equal(t, entity.StatusApproved, got.Status)
		assert.Equal(t, 0, f.history.len())
	})

	t.Run("in sync is a no-op", func(t *testing.T) {
		f := newFixture(req)
		f.adapter.status = port.DomainState{Native: entity.DomainApproved, Status: entity.StatusApproved, Mapped: true}

		_, err := f.engine.Reconcile(context.Background(), clone(req))
		require.NoError(t, err)
		assert.Equal(t, 0, f.history.len())
	})

	t.Run("unreadable domain record", func(t *testing.T) {
		f := newFixture(req)
		f.adapter.statusErr = apperr.NotFound("mock", "loan gone")

		_, err := f.engine.Reconcile(context.Background(), clone(req))
		assert.ErrorIs(t, err, apperr.ErrDomainSyncFailure)
	})

	t.Run("plain requests are untouched", func(t *testing.T) {
		f := newFixture()
		plain := testRequest("req-2", entity.StatusPending)
		got, err := f.engine.Reconcile(context.Background(), plain)
		require.NoError(t, err)
		assert.Same(t, plain, got)
	})
}

func TestReconcileAll(t *testing.T) {
	drifted := testRequest("req-1", entity.StatusApproved)
	drifted.Type = entity.TypeLoanApplication
	drifted.LinkedEntity = &entity.LinkedEntity{Module: entity.ModuleLoans, EntityID: "loan-1"}

	f := newFixture(drifted, testRequest("req-2", entity.StatusPending))
	f.adapter.status = port.DomainState{Native: entity.LoanDisbursed, Status: entity.StatusCompleted, Mapped: true}

	n, err := f.engine.ReconcileAll(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, entity.StatusCompleted, f.requests.status("req-1"))
}

func TestTransition_EventPayload(t *testing.T) {
	f := newFixture(testRequest("req-1", entity.StatusPending))

	_, err := f.engine.Transition(context.Background(), TransitionCommand{RequestID: "req-1", Action: entity.ActionReview, ActorID: "sec", Notes: "ok"})
	require.NoError(t, err)

	evt := f.dispatcher.last()
	require.NotNil(t, evt)
	assert.Equal(t, "req-1", evt.RequestID)
	assert.Equal(t, "member", evt.GetPayloadString(event.KeyInitiatorID))
	assert.Equal(t, "TREASURER", evt.GetPayloadString(event.KeyNextRole))
	assert.Equal(t, string(entity.StatusInReview), evt.GetPayloadString(event.KeyToStatus))
	assert.Equal(t, int64(2), evt.GetPayloadInt(event.KeyLevel))
}
