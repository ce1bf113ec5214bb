package domainsync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/apperr"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

var withdrawalLifecycle = lifecycle{
	kind:      "savings withdrawal",
	completed: entity.WithdrawalProcessed,
}

// SavingsAdapter backs SAVINGS_WITHDRAWAL requests. Completing a withdrawal
// debits the savings account in the same transaction.
type SavingsAdapter struct {
	repo     port.SavingsRepository
	tx       port.TransactionManager
	validate *validator.Validate
}

func NewSavingsAdapter(repo port.SavingsRepository, tx port.TransactionManager, validate *validator.Validate) *SavingsAdapter {
	return &SavingsAdapter{repo: repo, tx: tx, validate: validate}
}

func (a *SavingsAdapter) Module() entity.Module { return entity.ModuleSavings }

func (a *SavingsAdapter) RequestTypes() []entity.RequestType {
	return []entity.RequestType{entity.TypeSavingsWithdrawal}
}

func (a *SavingsAdapter) Open(ctx context.Context, _ entity.RequestType, content json.RawMessage) (string, error) {
	const op = "savings.Open"

	var c entity.SavingsWithdrawalContent
	if err := decodeContent(op, a.validate, content, &c); err != nil {
		return "", err
	}
	if _, err := a.repo.GetAccount(ctx, c.AccountID); err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return "", apperr.Validation(op, "savings account %s does not exist", c.AccountID)
		}
		return "", syncErr(op, err, "failed to load savings account")
	}

	now := time.Now().UTC()
	w := &entity.SavingsWithdrawal{
		ID:        uuid.NewString(),
		AccountID: c.AccountID,
		Amount:    c.Amount,
		Status:    entity.DomainPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.repo.CreateWithdrawal(ctx, w); err != nil {
		return "", syncErr(op, err, "failed to open savings withdrawal")
	}
	return w.ID, nil
}

func (a *SavingsAdapter) StatusFor(ctx context.Context, _ entity.RequestType, entityID string) (port.DomainState, error) {
	w, err := a.repo.GetWithdrawal(ctx, entityID)
	if err != nil {
		return port.DomainState{}, err
	}
	return withdrawalLifecycle.state(w.Status), nil
}

func (a *SavingsAdapter) CanApply(ctx context.Context, _ entity.RequestType, cmd port.TransitionCommand) error {
	const op = "savings.CanApply"

	w, err := a.repo.GetWithdrawal(ctx, cmd.EntityID)
	if err != nil {
		return syncErr(op, err, "savings withdrawal %s unavailable", cmd.EntityID)
	}
	if _, err := withdrawalLifecycle.next(op, w.Status, cmd); err != nil {
		return err
	}
	if cmd.Target != entity.StatusCompleted {
		return nil
	}

	acct, err := a.repo.GetAccount(ctx, w.AccountID)
	if err != nil {
		return syncErr(op, err, "savings account %s unavailable", w.AccountID)
	}
	if acct.Balance < w.Amount {
		return apperr.DomainSync(op, port.ErrInsufficientFunds, "account %s balance %d below withdrawal %d", acct.ID, acct.Balance, w.Amount)
	}
	return nil
}

func (a *SavingsAdapter) ApplyTransition(ctx context.Context, _ entity.RequestType, cmd port.TransitionCommand) (port.TransitionResult, error) {
	const op = "savings.ApplyTransition"

	var res port.TransitionResult
	err := a.tx.WithTransaction(ctx, func(ctx context.Context) error {
		w, err := a.repo.GetWithdrawal(ctx, cmd.EntityID)
		if err != nil {
			return err
		}
		next, err := withdrawalLifecycle.next(op, w.Status, cmd)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := a.repo.UpdateWithdrawalStatus(ctx, w.ID, w.Status, next, now); err != nil {
			return err
		}
		if next == entity.WithdrawalProcessed {
			if err := a.repo.Debit(ctx, w.AccountID, w.Amount, now); err != nil {
				if errors.Is(err, port.ErrInsufficientFunds) {
					return apperr.DomainSync(op, err, "account %s cannot cover withdrawal %d", w.AccountID, w.Amount)
				}
				return err
			}
		}
		res = withdrawalLifecycle.result(next)
		return nil
	})
	if err != nil {
		return port.TransitionResult{}, syncErr(op, err, "savings withdrawal %s transition to %s failed", cmd.EntityID, cmd.Target)
	}
	return res, nil
}

func (a *SavingsAdapter) Aliases() map[string]entity.RequestStatus {
	out := make(map[string]entity.RequestStatus)
	withdrawalLifecycle.aliases(out)
	return out
}

var _ port.DomainAdapter = (*SavingsAdapter)(nil)
