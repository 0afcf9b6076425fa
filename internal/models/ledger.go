package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction type labels stored on ledger entries.
const (
	TransactionTypeDeposit  = "Deposit"
	TransactionTypeWithdraw = "Withdraw"
)

// LedgerEntry is an immutable record of a single balance-changing event.
// Exactly one of DepositAmount/WithdrawAmount is nonzero per entry.
type LedgerEntry struct {
	ID              int             `json:"id" db:"id"`
	Reference       string          `json:"reference" db:"reference"`
	AccountID       string          `json:"account_id" db:"account_id"`
	DepositAmount   decimal.Decimal `json:"deposit_amount" db:"deposit_amount"`
	WithdrawAmount  decimal.Decimal `json:"withdraw" db:"withdraw_amount"`
	TransactionType string          `json:"transaction_type" db:"transaction_type"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// Account holds the running balance for one user. Balance changes only
// through paired LedgerEntry writes inside a single SQL transaction.
type Account struct {
	ID        string          `json:"id" db:"account_id"`
	UserID    int             `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Version   int             `json:"version" db:"version"` // for optimistic locking
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
