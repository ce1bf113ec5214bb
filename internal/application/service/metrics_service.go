package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

const (
	statusKeyPrefix = "status:"
	levelKeyPrefix  = "level:"
)

// LevelCounts maps an approval level to the open requests waiting on it
type LevelCounts map[int]int

// MetricsService computes dashboard counts. Results are served through the
// metrics cache when one is configured; the store stays the source of truth.
type MetricsService interface {
	PendingCount(ctx context.Context, in FilterInput) (int, error)
	CountsByStatus(ctx context.Context, in FilterInput) (map[entity.RequestStatus]int, error)
	CountsByApprovalLevel(ctx context.Context, in FilterInput) (LevelCounts, error)
	// Refresh recomputes the unfiltered projections
	Refresh(ctx context.Context) error
	Invalidate(ctx context.Context) error
}

type metricsServiceImpl struct {
	requestRepo port.RequestRepository
	adapters    port.AdapterRegistry
	cache       port.MetricsCache
	logger      port.Logger
}

// NewMetricsService creates a MetricsService. cache may be nil.
func NewMetricsService(requestRepo port.RequestRepository, adapters port.AdapterRegistry, cache port.MetricsCache, logger port.Logger) MetricsService {
	return &metricsServiceImpl{
		requestRepo: requestRepo,
		adapters:    adapters,
		cache:       cache,
		logger:      logger,
	}
}

// PendingCount counts requests still awaiting a decision
func (s *metricsServiceImpl) PendingCount(ctx context.Context, in FilterInput) (int, error) {
	counts, err := s.CountsByStatus(ctx, in)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, st := range entity.OpenStatuses {
		total += counts[st]
	}
	return total, nil
}

func (s *metricsServiceImpl) CountsByStatus(ctx context.Context, in FilterInput) (map[entity.RequestStatus]int, error) {
	filter, err := normalizeFilter("metrics.CountsByStatus", s.adapters, in)
	if err != nil {
		return nil, err
	}

	key := statusKeyPrefix + filterKey(filter)
	if raw, ok := s.cached(ctx, key); ok {
		out := make(map[entity.RequestStatus]int, len(raw))
		for k, v := range raw {
			out[entity.RequestStatus(k)] = v
		}
		return withAllStatuses(out, filter), nil
	}

	counts, err := s.requestRepo.CountByStatus(ctx, filter)
	if err != nil {
		return nil, err
	}
	counts = withAllStatuses(counts, filter)

	raw := make(map[string]int, len(counts))
	for k, v := range counts {
		raw[string(k)] = v
	}
	s.store(ctx, key, raw)
	return counts, nil
}

func (s *metricsServiceImpl) CountsByApprovalLevel(ctx context.Context, in FilterInput) (LevelCounts, error) {
	filter, err := normalizeFilter("metrics.CountsByApprovalLevel", s.adapters, in)
	if err != nil {
		return nil, err
	}

	key := levelKeyPrefix + filterKey(filter)
	if raw, ok := s.cached(ctx, key); ok {
		out := make(LevelCounts, len(raw))
		for k, v := range raw {
			level, err := strconv.Atoi(k)
			if err != nil {
				continue
			}
			out[level] = v
		}
		return out, nil
	}

	counts, err := s.requestRepo.CountByApprovalLevel(ctx, filter)
	if err != nil {
		return nil, err
	}

	raw := make(map[string]int, len(counts))
	for k, v := range counts {
		raw[strconv.Itoa(k)] = v
	}
	s.store(ctx, key, raw)
	return LevelCounts(counts), nil
}

func (s *metricsServiceImpl) Refresh(ctx context.Context) error {
	if err := s.Invalidate(ctx); err != nil {
		return err
	}
	if _, err := s.CountsByStatus(ctx, FilterInput{}); err != nil {
		return err
	}
	_, err := s.CountsByApprovalLevel(ctx, FilterInput{})
	return err
}

func (s *metricsServiceImpl) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

func (s *metricsServiceImpl) cached(ctx context.Context, key string) (map[string]int, bool) {
	if s.cache == nil {
		return nil, false
	}
	counts, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Error("Metrics cache read failed", "key", key, "error", err)
		return nil, false
	}
	return counts, ok
}

func (s *metricsServiceImpl) store(ctx context.Context, key string, counts map[string]int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, counts); err != nil {
		s.logger.Error("Metrics cache write failed", "key", key, "error", err)
	}
}

// withAllStatuses reports zero for every status the filter admits
func withAllStatuses(counts map[entity.RequestStatus]int, filter entity.RequestFilter) map[entity.RequestStatus]int {
	if counts == nil {
		counts = make(map[entity.RequestStatus]int)
	}
	if filter.Status != "" {
		if _, ok := counts[filter.Status]; !ok {
			counts[filter.Status] = 0
		}
		return counts
	}
	for _, st := range entity.AllStatuses {
		if _, ok := counts[st]; !ok {
			counts[st] = 0
		}
	}
	return counts
}

func filterKey(f entity.RequestFilter) string {
	typ := string(f.Type)
	if typ == "" && len(f.Types) > 0 {
		names := make([]string, len(f.Types))
		for i, t := range f.Types {
			names[i] = string(t)
		}
		typ = strings.Join(names, ",")
	}
	return strings.Join([]string{typ, string(f.Status), f.ActorID}, "|")
}
