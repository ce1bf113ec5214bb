package service

import (
	"strings"

	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/apperr"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

// FilterInput is a filter as callers send it. Status may be a domain alias
// such as DISBURSED.
type FilterInput struct {
	Type    string `json:"type" form:"type"`
	Status  string `json:"status" form:"status"`
	ActorID string `json:"actorId" form:"actorId"`
}

// normalizeFilter validates the type and translates status aliases before
// anything reaches the store
func normalizeFilter(op string, registry port.AdapterRegistry, in FilterInput) (entity.RequestFilter, error) {
	var f entity.RequestFilter

	if raw := strings.TrimSpace(in.Type); raw != "" {
		t := entity.RequestType(strings.ToUpper(raw))
		if !t.Valid() {
			return f, apperr.Validation(op, "unknown request type %q", in.Type)
		}
		f.Type = t
	}

	if raw := strings.TrimSpace(in.Status); raw != "" {
		s, types, ok := registry.TranslateStatus(f.Type, raw)
		if !ok {
			return f, apperr.Validation(op, "unknown status %q", in.Status)
		}
		f.Status = s
		f.Types = types
	}

	f.ActorID = strings.TrimSpace(in.ActorID)
	return f, nil
}
