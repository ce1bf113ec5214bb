package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/coop-approvals/internal/application/dispatcher"
	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
	"github.com/garyjia/coop-approvals/internal/domain/event"
)

type sentNotification struct {
	To        port.Recipient
	EventType string
	Payload   map[string]any
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (m *mockNotifier) Notify(ctx context.Context, to port.Recipient, eventType string, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentNotification{To: to, EventType: eventType, Payload: payload})
	return m.err
}

func TestNotificationHandler_Recipients(t *testing.T) {
	tests := []struct {
		name string
		evt  *event.Event
		want []port.Recipient
	}{
		{
			name: "created notifies the first approver only",
			evt: event.NewEvent(event.TypeRequestCreated, "req-1", map[string]any{
				event.KeyInitiatorID: "member-1",
				event.KeyActorID:     "member-1",
				event.KeyNextRole:    "SECRETARY",
			}),
			want: []port.Recipient{{Role: "SECRETARY"}},
		},
		{
			name: "transition notifies initiator and next role",
			evt: event.NewEvent(event.TypeRequestTransitioned, "req-1", map[string]any{
				event.KeyInitiatorID: "member-1",
				event.KeyActorID:     "sec",
				event.KeyNextRole:    "TREASURER",
			}),
			want: []port.Recipient{{ActorID: "member-1"}, {Role: "TREASURER"}},
		},
		{
			name: "terminal transition notifies initiator",
			evt: event.NewEvent(event.TypeRequestTransitioned, "req-1", map[string]any{
				event.KeyInitiatorID: "member-1",
				event.KeyActorID:     "tre",
			}),
			want: []port.Recipient{{ActorID: "member-1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &mockNotifier{}
			h := NewNotificationHandler(n, nopLogger{})

			require.NoError(t, h.Handle(context.Background(), tt.evt))

			var got []port.Recipient
			for _, s := range n.sent {
				got = append(got, s.To)
				assert.Equal(t, tt.evt.Type.String(), s.EventType)
				assert.Equal(t, "req-1", s.Payload["request_id"])
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNotificationHandler_FailureIsSwallowed(t *testing.T) {
	n := &mockNotifier{err: errors.New("smtp down")}
	h := NewNotificationHandler(n, nopLogger{})

	evt := event.NewEvent(event.TypeRequestTransitioned, "req-1", map[string]any{
		event.KeyInitiatorID: "member-1",
		event.KeyNextRole:    "PRESIDENT",
	})
	assert.NoError(t, h.Handle(context.Background(), evt))
	assert.Len(t, n.sent, 2)
}

func TestNotificationHandler_Register(t *testing.T) {
	d := dispatcher.NewDispatcher()
	NewNotificationHandler(&mockNotifier{}, nopLogger{}).Register(d)

	assert.Equal(t, []string{"notification"}, d.Handlers(event.TypeRequestTransitioned))
	assert.Empty(t, d.Handlers(event.TypeRequestDeleted))
}

type mockCache struct {
	mu          sync.Mutex
	data        map[string]map[string]int
	invalidated int
	getErr      error
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string]map[string]int)}
}

func (m *mockCache) Get(ctx context.Context, key string) (map[string]int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockCache) Set(ctx context.Context, key string, counts map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = counts
	return nil
}

func (m *mockCache) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]map[string]int)
	m.invalidated++
	return nil
}

type countingRepo struct {
	port.RequestRepository
	calls  int
	counts map[entity.RequestStatus]int
}

func (c *countingRepo) CountByStatus(ctx context.Context, f entity.RequestFilter) (map[entity.RequestStatus]int, error) {
	c.calls++
	out := make(map[entity.RequestStatus]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out, nil
}

func (c *countingRepo) CountByApprovalLevel(ctx context.Context, f entity.RequestFilter) (map[int]int, error) {
	c.calls++
	return map[int]int{1: 2}, nil
}

type noAliases struct{ port.AdapterRegistry }

func (noAliases) TranslateStatus(t entity.RequestType, raw string) (entity.RequestStatus, []entity.RequestType, bool) {
	s := entity.RequestStatus(raw)
	return s, nil, s.Valid()
}

func TestMetricsService_Cache(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{counts: map[entity.RequestStatus]int{entity.StatusPending: 3}}
	cache := newMockCache()
	m := NewMetricsService(repo, noAliases{}, cache, nopLogger{})

	first, err := m.CountsByStatus(ctx, FilterInput{})
	require.NoError(t, err)
	second, err := m.CountsByStatus(ctx, FilterInput{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.calls)

	// a different filter is a different projection
	_, err = m.CountsByStatus(ctx, FilterInput{Type: string(entity.TypeLoanApplication)})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)

	levels, err := m.CountsByApprovalLevel(ctx, FilterInput{})
	require.NoError(t, err)
	assert.Equal(t, LevelCounts{1: 2}, levels)
	levels, err = m.CountsByApprovalLevel(ctx, FilterInput{})
	require.NoError(t, err)
	assert.Equal(t, LevelCounts{1: 2}, levels)
	assert.Equal(t, 3, repo.calls)

	inv := NewMetricsInvalidator(m, nopLogger{})
	require.NoError(t, inv.Handle(ctx, event.NewEvent(event.TypeRequestCreated, "req-1", nil)))
	assert.Equal(t, 1, cache.invalidated)

	_, err = m.CountsByStatus(ctx, FilterInput{})
	require.NoError(t, err)
	assert.Equal(t, 4, repo.calls)
}

func TestMetricsService_CacheErrorFallsBack(t *testing.T) {
	repo := &countingRepo{counts: map[entity.RequestStatus]int{entity.StatusApproved: 1}}
	cache := newMockCache()
	cache.getErr = errors.New("connection refused")
	m := NewMetricsService(repo, noAliases{}, cache, nopLogger{})

	n, err := m.PendingCount(context.Background(), FilterInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetricsService_Refresh(t *testing.T) {
	repo := &countingRepo{counts: map[entity.RequestStatus]int{}}
	cache := newMockCache()
	m := NewMetricsService(repo, noAliases{}, cache, nopLogger{})

	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, 1, cache.invalidated)
	assert.Contains(t, cache.data, statusKeyPrefix+"||")
	assert.Contains(t, cache.data, levelKeyPrefix+"||")
}

func TestMetricsInvalidator_Register(t *testing.T) {
	d := dispatcher.NewDispatcher()
	NewMetricsInvalidator(NewMetricsService(&countingRepo{}, noAliases{}, nil, nopLogger{}), nopLogger{}).Register(d)

	for _, typ := range []event.Type{event.TypeRequestCreated, event.TypeRequestTransitioned, event.TypeRequestReconciled, event.TypeRequestDeleted} {
		assert.Equal(t, []string{"metrics-invalidator"}, d.Handlers(typ))
	}
}
