package domainsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/apperr"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

var (
	planLifecycle = lifecycle{
		kind:      "savings plan",
		completed: entity.PlanActive,
		outOfBand: []entity.DomainStatus{entity.PlanClosed},
	}
	planWithdrawalLifecycle = lifecycle{
		kind:      "plan withdrawal",
		completed: entity.PlanWithdrawalPaid,
	}
)

// PersonalSavingsAdapter backs plan creation and plan withdrawal requests.
// The two request types drive different records.
type PersonalSavingsAdapter struct {
	repo     port.PersonalSavingsRepository
	tx       port.TransactionManager
	validate *validator.Validate
}

func NewPersonalSavingsAdapter(repo port.PersonalSavingsRepository, tx port.TransactionManager, validate *validator.Validate) *PersonalSavingsAdapter {
	return &PersonalSavingsAdapter{repo: repo, tx: tx, validate: validate}
}

func (a *PersonalSavingsAdapter) Module() entity.Module { return entity.ModulePersonalSavings }

func (a *PersonalSavingsAdapter) RequestTypes() []entity.RequestType {
	return []entity.RequestType{entity.TypePersonalSavingsCreation, entity.TypePersonalSavingsWithdrawal}
}

func (a *PersonalSavingsAdapter) Open(ctx context.Context, t entity.RequestType, content json.RawMessage) (string, error) {
	const op = "personal_savings.Open"
	now := time.Now().UTC()

	switch t {
	case entity.TypePersonalSavingsCreation:
		var c entity.PersonalSavingsPlanContent
		if err := decodeContent(op, a.validate, content, &c); err != nil {
			return "", err
		}
		plan := &entity.PersonalSavingsPlan{
			ID:           uuid.NewString(),
			MemberID:     c.MemberID,
			PlanName:     c.PlanName,
			TargetAmount: c.TargetAmount,
			Status:       entity.DomainPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := a.repo.CreatePlan(ctx, plan); err != nil {
			return "", syncErr(op, err, "failed to open savings plan")
		}
		return plan.ID, nil

	case entity.TypePersonalSavingsWithdrawal:
		var c entity.PersonalSavingsWithdrawalContent
		if err := decodeContent(op, a.validate, content, &c); err != nil {
			return "", err
		}
		if _, err := a.repo.GetPlan(ctx, c.PlanID); err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				return "", apperr.Validation(op, "savings plan %s does not exist", c.PlanID)
			}
			return "", syncErr(op, err, "failed to load savings plan")
		}
		w := &entity.PersonalSavingsWithdrawal{
			ID:        uuid.NewString(),
			PlanID:    c.PlanID,
			Amount:    c.Amount,
			Status:    entity.DomainPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := a.repo.CreateWithdrawal(ctx, w); err != nil {
			return "", syncErr(op, err, "failed to open plan withdrawal")
		}
		return w.ID, nil
	}
	return "", unsupported(op, t)
}

func (a *PersonalSavingsAdapter) StatusFor(ctx context.Context, t entity.RequestType, entityID string) (port.DomainState, error) {
	switch t {
	case entity.TypePersonalSavingsCreation:
		plan, err := a.repo.GetPlan(ctx, entityID)
		if err != nil {
			return port.DomainState{}, err
		}
		return planLifecycle.state(plan.Status), nil
	case entity.TypePersonalSavingsWithdrawal:
		w, err := a.repo.GetWithdrawal(ctx, entityID)
		if err != nil {
			return port.DomainState{}, err
		}
		return planWithdrawalLifecycle.state(w.Status), nil
	}
	return port.DomainState{}, unsupported("personal_savings.StatusFor", t)
}

func (a *PersonalSavingsAdapter) CanApply(ctx context.Context, t entity.RequestType, cmd port.TransitionCommand) error {
	const op = "personal_savings.CanApply"

	switch t {
	case entity.TypePersonalSavingsCreation:
		plan, err := a.repo.GetPlan(ctx, cmd.EntityID)
		if err != nil {
			return syncErr(op, err, "savings plan %s unavailable", cmd.EntityID)
		}
		_, err = planLifecycle.next(op, plan.Status, cmd)
		return err

	case entity.TypePersonalSavingsWithdrawal:
		w, err := a.repo.GetWithdrawal(ctx, cmd.EntityID)
		if err != nil {
			return syncErr(op, err, "plan withdrawal %s unavailable", cmd.EntityID)
		}
		if _, err := planWithdrawalLifecycle.next(op, w.Status, cmd); err != nil {
			return err
		}
		if cmd.Target != entity.StatusCompleted {
			return nil
		}
		plan, err := a.repo.GetPlan(ctx, w.PlanID)
		if err != nil {
			return syncErr(op, err, "savings plan %s unavailable", w.PlanID)
		}
		if plan.Status != entity.PlanActive {
			return apperr.DomainSync(op, nil, "savings plan %s is %s, payouts need an ACTIVE plan", plan.ID, plan.Status)
		}
		if plan.Balance < w.Amount {
			return apperr.DomainSync(op, port.ErrInsufficientFunds, "plan %s balance %d below withdrawal %d", plan.ID, plan.Balance, w.Amount)
		}
		return nil
	}
	return unsupported(op, t)
}

func (a *PersonalSavingsAdapter) ApplyTransition(ctx context.Context, t entity.RequestType, cmd port.TransitionCommand) (port.TransitionResult, error) {
	const op = "personal_savings.ApplyTransition"

	var res port.TransitionResult
	err := a.tx.WithTransaction(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()

		switch t {
		case entity.TypePersonalSavingsCreation:
			plan, err := a.repo.GetPlan(ctx, cmd.EntityID)
			if err != nil {
				return err
			}
			next, err := planLifecycle.next(op, plan.Status, cmd)
			if err != nil {
				return err
			}
			if err := a.repo.UpdatePlanStatus(ctx, plan.ID, plan.Status, next, now); err != nil {
				return err
			}
			res = planLifecycle.result(next)
			return nil

		case entity.TypePersonalSavingsWithdrawal:
			w, err := a.repo.GetWithdrawal(ctx, cmd.EntityID)
			if err != nil {
				return err
			}
			next, err := planWithdrawalLifecycle.next(op, w.Status, cmd)
			if err != nil {
				return err
			}
			if err := a.repo.UpdateWithdrawalStatus(ctx, w.ID, w.Status, next, now); err != nil {
				return err
			}
			if next == entity.PlanWithdrawalPaid {
				if err := a.repo.DebitPlan(ctx, w.PlanID, w.Amount, now); err != nil {
					if errors.Is(err, port.ErrInsufficientFunds) {
						return apperr.DomainSync(op, err, "plan %s cannot cover withdrawal %d", w.PlanID, w.Amount)
					}
					return err
				}
			}
			res = planWithdrawalLifecycle.result(next)
			return nil
		}
		return unsupported(op, t)
	})
	if err != nil {
		return port.TransitionResult{}, syncErr(op, err, "%s %s transition to %s failed", t, cmd.EntityID, cmd.Target)
	}
	return res, nil
}

func (a *PersonalSavingsAdapter) Aliases() map[string]entity.RequestStatus {
	out := make(map[string]entity.RequestStatus)
	planLifecycle.aliases(out)
	planWithdrawalLifecycle.aliases(out)
	return out
}

func unsupported(op string, t entity.RequestType) error {
	return apperr.DomainSync(op, fmt.Errorf("request type %s", t), "unsupported request type")
}

var _ port.DomainAdapter = (*PersonalSavingsAdapter)(nil)
