package domainsync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

var accountLifecycle = lifecycle{
	kind:      "member account",
	completed: entity.AccountActive,
	outOfBand: []entity.DomainStatus{entity.AccountSuspended},
}

// AccountAdapter backs ACCOUNT_CREATION requests. Biodata approvals and
// account updates are plain administrative requests and have no record here.
type AccountAdapter struct {
	repo     port.AccountRepository
	tx       port.TransactionManager
	validate *validator.Validate
}

func NewAccountAdapter(repo port.AccountRepository, tx port.TransactionManager, validate *validator.Validate) *AccountAdapter {
	return &AccountAdapter{repo: repo, tx: tx, validate: validate}
}

func (a *AccountAdapter) Module() entity.Module { return entity.ModuleAccounts }

func (a *AccountAdapter) RequestTypes() []entity.RequestType {
	return []entity.RequestType{entity.TypeAccountCreation}
}

func (a *AccountAdapter) Open(ctx context.Context, _ entity.RequestType, content json.RawMessage) (string, error) {
	const op = "accounts.Open"

	var c entity.AccountContent
	if err := decodeContent(op, a.validate, content, &c); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	acct := &entity.MemberAccount{
		ID:        uuid.NewString(),
		MemberID:  c.MemberID,
		FullName:  c.FullName,
		Email:     c.Email,
		Phone:     c.Phone,
		Status:    entity.DomainPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.repo.Create(ctx, acct); err != nil {
		return "", syncErr(op, err, "failed to open member account")
	}
	return acct.ID, nil
}

func (a *AccountAdapter) StatusFor(ctx context.Context, _ entity.RequestType, entityID string) (port.DomainState, error) {
	acct, err := a.repo.GetByID(ctx, entityID)
	if err != nil {
		return port.DomainState{}, err
	}
	return accountLifecycle.state(acct.Status), nil
}

func (a *AccountAdapter) CanApply(ctx context.Context, _ entity.RequestType, cmd port.TransitionCommand) error {
	const op = "accounts.CanApply"
	acct, err := a.repo.GetByID(ctx, cmd.EntityID)
	if err != nil {
		return syncErr(op, err, "member account %s unavailable", cmd.EntityID)
	}
	_, err = accountLifecycle.next(op, acct.Status, cmd)
	return err
}

func (a *AccountAdapter) ApplyTransition(ctx context.Context, _ entity.RequestType, cmd port.TransitionCommand) (port.TransitionResult, error) {
	const op = "accounts.ApplyTransition"

	var res port.TransitionResult
	err := a.tx.WithTransaction(ctx, func(ctx context.Context) error {
		acct, err := a.repo.GetByID(ctx, cmd.EntityID)
		if err != nil {
			return err
		}
		next, err := accountLifecycle.next(op, acct.Status, cmd)
		if err != nil {
			return err
		}
		if err := a.repo.UpdateStatus(ctx, acct.ID, acct.Status, next, time.Now().UTC()); err != nil {
			return err
		}
		res = accountLifecycle.result(next)
		return nil
	})
	if err != nil {
		return port.TransitionResult{}, syncErr(op, err, "member account %s transition to %s failed", cmd.EntityID, cmd.Target)
	}
	return res, nil
}

func (a *AccountAdapter) Aliases() map[string]entity.RequestStatus {
	out := make(map[string]entity.RequestStatus)
	accountLifecycle.aliases(out)
	return out
}

var _ port.DomainAdapter = (*AccountAdapter)(nil)
