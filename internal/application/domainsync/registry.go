package domainsync

import (
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

// Registry resolves domain adapters by request type and module
type Registry struct {
	byType   map[entity.RequestType]port.DomainAdapter
	byModule map[entity.Module]port.DomainAdapter
}

// NewRegistry indexes adapters. Two adapters claiming the same request type
// is a wiring error.
func NewRegistry(adapters ...port.DomainAdapter) (*Registry, error) {
	r := &Registry{
		byType:   make(map[entity.RequestType]port.DomainAdapter),
		byModule: make(map[entity.Module]port.DomainAdapter),
	}
	for _, a := range adapters {
		for _, t := range a.RequestTypes() {
			if prev, dup := r.byType[t]; dup {
				return nil, fmt.Errorf("request type %s claimed by %s and %s", t, prev.Module(), a.Module())
			}
			r.byType[t] = a
		}
		r.byModule[a.Module()] = a
	}
	return r, nil
}

func (r *Registry) ForType(t entity.RequestType) (port.DomainAdapter, bool) {
	a, ok := r.byType[t]
	return a, ok
}

func (r *Registry) ForModule(m entity.Module) (port.DomainAdapter, bool) {
	a, ok := r.byModule[m]
	return a, ok
}

// TranslateStatus accepts generic statuses as-is and native aliases of the
// adapter for t. With no type, aliases of every adapter are tried and the
// result is scoped to the request types of the adapters that know the alias.
func (r *Registry) TranslateStatus(t entity.RequestType, raw string) (entity.RequestStatus, []entity.RequestType, bool) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if s := entity.RequestStatus(raw); s.Valid() {
		return s, nil, true
	}

	if t != "" {
		a, ok := r.byType[t]
		if !ok {
			return "", nil, false
		}
		s, ok := a.Aliases()[raw]
		return s, nil, ok
	}

	var (
		status entity.RequestStatus
		types  []entity.RequestType
	)
	for _, a := range r.byModule {
		s, ok := a.Aliases()[raw]
		if !ok {
			continue
		}
		if status != "" && s != status {
			// the same native name means different things in two modules
			return "", nil, false
		}
		status = s
		types = append(types, a.RequestTypes()...)
	}
	if status == "" {
		return "", nil, false
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return status, types, true
}

var _ port.AdapterRegistry = (*Registry)(nil)
