package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

// ErrInsufficientFunds is returned by debit operations that would overdraw
var ErrInsufficientFunds = errors.New("insufficient funds")

// Domain repositories expose a compare-and-swap on the native status. A lost
// race is a StaleState error, an unknown id a NotFound error. When next is the
// module's completion status the completion timestamp is stamped with at.

type LoanRepository interface {
	Create(ctx context.Context, loan *entity.Loan) error
	GetByID(ctx context.Context, id string) (*entity.Loan, error)
	UpdateStatus(ctx context.Context, id string, expected, next entity.DomainStatus, at time.Time) error
}

type SavingsRepository interface {
	CreateAccount(ctx context.Context, acct *entity.SavingsAccount) error
	GetAccount(ctx context.Context, id string) (*entity.SavingsAccount, error)
	// Debit returns ErrInsufficientFunds when balance < amount
	Debit(ctx context.Context, accountID string, amount int64, at time.Time) error

	CreateWithdrawal(ctx context.Context, w *entity.SavingsWithdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*entity.SavingsWithdrawal, error)
	UpdateWithdrawalStatus(ctx context.Context, id string, expected, next entity.DomainStatus, at time.Time) error
}

type PersonalSavingsRepository interface {
	CreatePlan(ctx context.Context, plan *entity.PersonalSavingsPlan) error
	GetPlan(ctx context.Context, id string) (*entity.PersonalSavingsPlan, error)
	UpdatePlanStatus(ctx context.Context, id string, expected, next entity.DomainStatus, at time.Time) error
	// DebitPlan only debits ACTIVE plans; ErrInsufficientFunds otherwise
	DebitPlan(ctx context.Context, planID string, amount int64, at time.Time) error

	CreateWithdrawal(ctx context.Context, w *entity.PersonalSavingsWithdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*entity.PersonalSavingsWithdrawal, error)
	UpdateWithdrawalStatus(ctx context.Context, id string, expected, next entity.DomainStatus, at time.Time) error
}

type AccountRepository interface {
	Create(ctx context.Context, acct *entity.MemberAccount) error
	GetByID(ctx context.Context, id string) (*entity.MemberAccount, error)
	UpdateStatus(ctx context.Context, id string, expected, next entity.DomainStatus, at time.Time) error
}
