package domainsync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/domain/apperr"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
	"github.com/garyjia/coop-approvals/pkg/utils"
)

// Loans add DISBURSED (completion) and DEFAULTED (out of band) to the shared
// stages. A defaulted loan leaves its request at its last status.
var loanLifecycle = lifecycle{
	kind:      "loan",
	completed: entity.LoanDisbursed,
	outOfBand: []entity.DomainStatus{entity.LoanDefaulted},
}

// LoanAdapter backs LOAN_APPLICATION requests
type LoanAdapter struct {
	repo     port.LoanRepository
	tx       port.TransactionManager
	validate *validator.Validate
}

func NewLoanAdapter(repo port.LoanRepository, tx port.TransactionManager, validate *validator.Validate) *LoanAdapter {
	return &LoanAdapter{repo: repo, tx: tx, validate: validate}
}

func (a *LoanAdapter) Module() entity.Module { return entity.ModuleLoans }

func (a *LoanAdapter) RequestTypes() []entity.RequestType {
	return []entity.RequestType{entity.TypeLoanApplication}
}

func (a *LoanAdapter) Open(ctx context.Context, _ entity.RequestType, content json.RawMessage) (string, error) {
	const op = "loans.Open"

	var c entity.LoanContent
	if err := decodeContent(op, a.validate, content, &c); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	loan := &entity.Loan{
		ID:         uuid.NewString(),
		MemberID:   c.MemberID,
		Amount:     c.Amount,
		TermMonths: c.TermMonths,
		Purpose:    c.Purpose,
		Status:     entity.DomainPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.repo.Create(ctx, loan); err != nil {
		return "", syncErr(op, err, "failed to open loan")
	}
	return loan.ID, nil
}

func (a *LoanAdapter) StatusFor(ctx context.Context, _ entity.RequestType, entityID string) (port.DomainState, error) {
	loan, err := a.repo.GetByID(ctx, entityID)
	if err != nil {
		return port.DomainState{}, err
	}
	return loanLifecycle.state(loan.Status), nil
}

func (a *LoanAdapter) CanApply(ctx context.Context, _ entity.RequestType, cmd port.TransitionCommand) error {
	const op = "loans.CanApply"
	loan, err := a.repo.GetByID(ctx, cmd.EntityID)
	if err != nil {
		return syncErr(op, err, "loan %s unavailable", cmd.EntityID)
	}
	_, err = loanLifecycle.next(op, loan.Status, cmd)
	return err
}

func (a *LoanAdapter) ApplyTransition(ctx context.Context, _ entity.RequestType, cmd port.TransitionCommand) (port.TransitionResult, error) {
	const op = "loans.ApplyTransition"

	var res port.TransitionResult
	err := a.tx.WithTransaction(ctx, func(ctx context.Context) error {
		loan, err := a.repo.GetByID(ctx, cmd.EntityID)
		if err != nil {
			return err
		}
		next, err := loanLifecycle.next(op, loan.Status, cmd)
		if err != nil {
			return err
		}
		// UpdateStatus stamps disbursed_at when next is DISBURSED
		if err := a.repo.UpdateStatus(ctx, loan.ID, loan.Status, next, time.Now().UTC()); err != nil {
			return err
		}
		res = loanLifecycle.result(next)
		return nil
	})
	if err != nil {
		return port.TransitionResult{}, syncErr(op, err, "loan %s transition to %s failed", cmd.EntityID, cmd.Target)
	}
	return res, nil
}

func (a *LoanAdapter) Aliases() map[string]entity.RequestStatus {
	out := make(map[string]entity.RequestStatus)
	loanLifecycle.aliases(out)
	return out
}

// decodeContent unmarshals and validates a request payload
func decodeContent(op string, v *validator.Validate, content json.RawMessage, dst any) error {
	if len(content) == 0 {
		return apperr.Validation(op, "content is required")
	}
	if err := json.Unmarshal(content, dst); err != nil {
		return apperr.Validation(op, "content is not valid JSON: %v", err)
	}
	if err := v.Struct(dst); err != nil {
		return apperr.Validation(op, "%s", utils.ValidationMessage(err))
	}
	return nil
}

var _ port.DomainAdapter = (*LoanAdapter)(nil)
