package entity

import "time"

// DomainStatus is the native status of a domain record. Each module uses the
// shared stage names plus its own terminal and out-of-band states.
type DomainStatus string

// Shared stage names, identical to the request statuses they map to
const (
	DomainPending   DomainStatus = "PENDING"
	DomainInReview  DomainStatus = "IN_REVIEW"
	DomainReviewed  DomainStatus = "REVIEWED"
	DomainApproved  DomainStatus = "APPROVED"
	DomainRejected  DomainStatus = "REJECTED"
	DomainCancelled DomainStatus = "CANCELLED"
)

// Module specific statuses
const (
	LoanDisbursed DomainStatus = "DISBURSED"
	LoanDefaulted DomainStatus = "DEFAULTED"

	WithdrawalProcessed DomainStatus = "PROCESSED"

	PlanActive DomainStatus = "ACTIVE"
	PlanClosed DomainStatus = "CLOSED"

	PlanWithdrawalPaid DomainStatus = "PAID"

	AccountActive    DomainStatus = "ACTIVE"
	AccountSuspended DomainStatus = "SUSPENDED"
)

// Loan is a member loan
type Loan struct {
	ID          string       `json:"id"`
	MemberID    string       `json:"memberId"`
	Amount      int64        `json:"amount"`
	TermMonths  int          `json:"termMonths"`
	Purpose     string       `json:"purpose"`
	Status      DomainStatus `json:"status"`
	DisbursedAt *time.Time   `json:"disbursedAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// SavingsAccount holds a member's regular savings balance in minor units
type SavingsAccount struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"memberId"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SavingsWithdrawal debits a SavingsAccount once processed
type SavingsWithdrawal struct {
	ID          string       `json:"id"`
	AccountID   string       `json:"accountId"`
	Amount      int64        `json:"amount"`
	Status      DomainStatus `json:"status"`
	ProcessedAt *time.Time   `json:"processedAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// PersonalSavingsPlan is a goal-based savings plan
type PersonalSavingsPlan struct {
	ID           string       `json:"id"`
	MemberID     string       `json:"memberId"`
	PlanName     string       `json:"planName"`
	TargetAmount int64        `json:"targetAmount"`
	Balance      int64        `json:"balance"`
	Status       DomainStatus `json:"status"`
	ActivatedAt  *time.Time   `json:"activatedAt,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// PersonalSavingsWithdrawal pays out of an active plan
type PersonalSavingsWithdrawal struct {
	ID        string       `json:"id"`
	PlanID    string       `json:"planId"`
	Amount    int64        `json:"amount"`
	Status    DomainStatus `json:"status"`
	PaidAt    *time.Time   `json:"paidAt,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// MemberAccount is a member's account and biodata
type MemberAccount struct {
	ID          string       `json:"id"`
	MemberID    string       `json:"memberId"`
	FullName    string       `json:"fullName"`
	Email       string       `json:"email"`
	Phone       string       `json:"phone"`
	Status      DomainStatus `json:"status"`
	ActivatedAt *time.Time   `json:"activatedAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Request content payloads used to open domain records

type LoanContent struct {
	MemberID   string `json:"memberId" validate:"required"`
	Amount     int64  `json:"amount" validate:"gt=0"`
	TermMonths int    `json:"termMonths" validate:"gt=0,max=360"`
	Purpose    string `json:"purpose"`
}

type SavingsWithdrawalContent struct {
	AccountID string `json:"accountId" validate:"required"`
	Amount    int64  `json:"amount" validate:"gt=0"`
}

type PersonalSavingsPlanContent struct {
	MemberID     string `json:"memberId" validate:"required"`
	PlanName     string `json:"planName" validate:"required"`
	TargetAmount int64  `json:"targetAmount" validate:"gte=0"`
}

type PersonalSavingsWithdrawalContent struct {
	PlanID string `json:"planId" validate:"required"`
	Amount int64  `json:"amount" validate:"gt=0"`
}

type AccountContent struct {
	MemberID string `json:"memberId" validate:"required"`
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone"`
}
