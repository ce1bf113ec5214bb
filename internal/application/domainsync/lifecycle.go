// Package domainsync keeps domain records (loans, withdrawals, savings plans,
// member accounts) in step with the requests linked to them. Each adapter
// owns the only write path to its record's status.
package domainsync

import (
	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/apperr"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

// lifecycle describes how one record kind's native statuses map onto request
// statuses. Shared stage names map to themselves; the completion status maps
// to COMPLETED; statuses listed in outOfBand have no request equivalent.
type lifecycle struct {
	kind      string
	completed entity.DomainStatus
	outOfBand []entity.DomainStatus
}

var sharedStages = map[entity.DomainStatus]entity.RequestStatus{
	entity.DomainPending:   entity.StatusPending,
	entity.DomainInReview:  entity.StatusInReview,
	entity.DomainReviewed:  entity.StatusReviewed,
	entity.DomainApproved:  entity.StatusApproved,
	entity.DomainRejected:  entity.StatusRejected,
	entity.DomainCancelled: entity.StatusCancelled,
}

func (l lifecycle) state(native entity.DomainStatus) port.DomainState {
	if native == l.completed {
		return port.DomainState{Native: native, Status: entity.StatusCompleted, Mapped: true}
	}
	if s, ok := sharedStages[native]; ok {
		return port.DomainState{Native: native, Status: s, Mapped: true}
	}
	return port.DomainState{Native: native}
}

func (l lifecycle) isOutOfBand(native entity.DomainStatus) bool {
	for _, s := range l.outOfBand {
		if s == native {
			return true
		}
	}
	return false
}

func (l lifecycle) native(target entity.RequestStatus) (entity.DomainStatus, bool) {
	if target == entity.StatusCompleted {
		return l.completed, true
	}
	for native, s := range sharedStages {
		if s == target {
			return native, true
		}
	}
	return "", false
}

// next checks the record is where the request believes it is and returns the
// native status matching the command's target.
func (l lifecycle) next(op string, current entity.DomainStatus, cmd port.TransitionCommand) (entity.DomainStatus, error) {
	st := l.state(current)
	if !st.Mapped {
		if l.isOutOfBand(current) {
			return "", apperr.DomainSync(op, nil, "%s %s is %s and no longer follows its request", l.kind, cmd.EntityID, current)
		}
		return "", apperr.DomainSync(op, nil, "%s %s has unknown status %q", l.kind, cmd.EntityID, current)
	}
	if st.Status != cmd.From {
		return "", apperr.StaleState(op, "%s %s is %s, request expected %s", l.kind, cmd.EntityID, current, cmd.From)
	}
	target, ok := l.native(cmd.Target)
	if !ok {
		return "", apperr.DomainSync(op, nil, "%s has no status for %s", l.kind, cmd.Target)
	}
	return target, nil
}

func (l lifecycle) result(native entity.DomainStatus) port.TransitionResult {
	return port.TransitionResult{DomainStatus: native, RequestStatus: l.state(native).Status}
}

func (l lifecycle) aliases(into map[string]entity.RequestStatus) {
	into[string(l.completed)] = entity.StatusCompleted
}

// syncErr classifies a failure of the domain half of a transition. Lost
// compare-and-swaps stay StaleState; everything else is DomainSyncFailure.
func syncErr(op string, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	switch apperr.KindOf(err) {
	case apperr.KindStaleState, apperr.KindDomainSyncFailure:
		return err
	}
	return apperr.DomainSync(op, err, format, args...)
}
