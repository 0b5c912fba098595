package model

import (
	"fmt"
	"time"
)

type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusDormant   AccountStatus = "DORMANT"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

// Account is the ledger view of a card account. Balance and the cycle
// accumulators are mutated only by the posting engine; status transitions
// belong to account-maintenance collaborators.
type Account struct {
	ID              int64         `json:"-"`
	AccountID       string        `json:"account_id"`
	Balance         Money         `json:"balance"`
	CreditLimit     Money         `json:"credit_limit"`
	CashCreditLimit Money         `json:"cash_credit_limit"`
	Status          AccountStatus `json:"status"`
	ExpirationDate  time.Time     `json:"expiration_date"`
	OpenDate        time.Time     `json:"open_date"`
	ReissueDate     time.Time     `json:"reissue_date"`
	CycleCredit     Money         `json:"cycle_credit"`
	CycleDebit      Money         `json:"cycle_debit"`
	GroupID         string        `json:"group_id"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Active reports whether the account accepts postings.
func (a *Account) Active() bool {
	return a.Status == AccountStatusActive
}

// Expired reports whether the account expired before the given processing date.
func (a *Account) Expired(asOf time.Time) bool {
	return a.ExpirationDate.Before(asOf)
}

// ValidatePosting decides whether a signed amount may post to the account as
// of the given date. Checks run in order and short-circuit on the first
// failure: credit limit (102), expiration (103), then the active-status
// business rule. The decision is only meaningful against current account
// state, so posting paths call this on the row they hold locked.
func (a *Account) ValidatePosting(amount Money, asOf time.Time) *Rejection {
	projected := a.Balance.Add(amount)
	if projected.GreaterThan(a.CreditLimit) {
		return &Rejection{
			Code:    ReasonOverLimit,
			Message: fmt.Sprintf("posting %s would exceed credit limit %s", amount, a.CreditLimit),
		}
	}

	if a.Expired(asOf) {
		return &Rejection{
			Code:    ReasonExpired,
			Message: fmt.Sprintf("account %s expired %s", a.AccountID, a.ExpirationDate.Format("2006-01-02")),
		}
	}

	if !a.Active() {
		return &Rejection{
			Message:      fmt.Sprintf("account %s is not active (status %s)", a.AccountID, a.Status),
			BusinessRule: true,
		}
	}

	return nil
}

// ApplyTransaction applies a signed transaction amount to the account:
// the balance moves by the amount, and the current-cycle accumulators track
// debits (positive amounts) and credits (negative amounts) separately.
// The transaction's before/after balances are filled as a side effect.
func (a *Account) ApplyTransaction(txn *Transaction) {
	txn.BalanceBefore = a.Balance
	a.Balance = a.Balance.Add(txn.Amount)
	txn.BalanceAfter = a.Balance
	if txn.Amount.IsNegative() {
		a.CycleCredit = a.CycleCredit.Add(txn.Amount.Abs())
	} else {
		a.CycleDebit = a.CycleDebit.Add(txn.Amount)
	}
}

// CardXref maps a card number to exactly one account and customer.
// Read-only from the engine's perspective.
type CardXref struct {
	CardNumber string    `json:"card_number"`
	AccountID  string    `json:"account_id"`
	CustomerID string    `json:"customer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// CategoryBalance is the running total of posted amounts for one
// (account, transaction type, category) key.
type CategoryBalance struct {
	AccountID    string `json:"account_id"`
	TypeCode     string `json:"type_code"`
	CategoryCode string `json:"category_code"`
	Amount       Money  `json:"amount"`
}

// Key renders the composite key, useful for logs.
func (cb *CategoryBalance) Key() string {
	return fmt.Sprintf("%s/%s/%s", cb.AccountID, cb.TypeCode, cb.CategoryCode)
}
