package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerbook/backend/internal/middleware"
	"github.com/ledgerbook/backend/internal/models"
)

// LedgerService owns the deposit/withdraw/balance/history operations. Each
// balance change locks the account row, appends one immutable ledger entry
// and writes the new balance inside a single SQL transaction, so the ledger
// can never diverge from the stored balance.
type LedgerService struct {
	db        *sql.DB
	validator *ValidationHelper
}

// DepositRequest represents the deposit request payload
// @Description Deposit request structure
type DepositRequest struct {
	Amount    decimal.Decimal `json:"deposit_amount"`
	Reference string          `json:"reference" validate:"omitempty,uuid4"` // optional idempotency key
}

// WithdrawRequest represents the withdrawal request payload
// @Description Withdrawal request structure
type WithdrawRequest struct {
	Amount    decimal.Decimal `json:"withdraw"`
	Reference string          `json:"reference" validate:"omitempty,uuid4"` // optional idempotency key
}

// HistoryResponse aggregates all ledger entries for an account.
type HistoryResponse struct {
	Transactions     []models.LedgerEntry `json:"transactions"`
	Count            int                  `json:"count"`
	TotalDeposits    decimal.Decimal      `json:"total_deposits"`
	TotalWithdrawals decimal.Decimal      `json:"total_withdrawals"`
	FinalBalance     decimal.Decimal      `json:"final_balance"`
	InitialAmount    int64                `json:"initial_amount"`
	Balance          decimal.Decimal      `json:"balance"`
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// Deposit credits the authenticated user's account
// @Summary Deposit an amount
// @Description Add a strictly positive amount to the account balance and append a ledger entry
// @Tags wallet
// @Accept json
// @Produce json
// @Param request body DepositRequest true "Deposit request"
// @Success 200 {object} map[string]string "Amount deposited successfully"
// @Failure 400 {object} ErrorResponse "Invalid amount"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /wallet/deposit [post]
func (s *LedgerService) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	s.applyRequest(w, r, &req, &req.Amount, &req.Reference, models.TransactionTypeDeposit,
		"Amount deposited successfully")
}

// Withdraw debits the authenticated user's account
// @Summary Withdraw an amount
// @Description Subtract a strictly positive amount from the account balance and append a ledger entry
// @Tags wallet
// @Accept json
// @Produce json
// @Param request body WithdrawRequest true "Withdrawal request"
// @Success 200 {object} map[string]string "Amount withdrawn successfully"
// @Failure 400 {object} ErrorResponse "Invalid amount or insufficient funds"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /wallet/withdraw [post]
func (s *LedgerService) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	s.applyRequest(w, r, &req, &req.Amount, &req.Reference, models.TransactionTypeWithdraw,
		"Amount withdrawn successfully")
}

// applyRequest is the shared deposit/withdraw handler body: decode,
// validate, then run the transactional core.
func (s *LedgerService) applyRequest(w http.ResponseWriter, r *http.Request, req any,
	amount *decimal.Decimal, reference *string, entryType, successMessage string) {

	userID, ok := r.Context().Value(middleware.UserIDKey).(int)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(req); err != nil {
		log.Printf("[LEDGER] Invalid %s request from user %d: %v", entryType, userID, err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if !amount.IsPositive() {
		log.Printf("[LEDGER] Non-positive %s amount from user %d: %s", entryType, userID, amount)
		SendErrorResponse(w, "Amount must be greater than zero", http.StatusBadRequest, nil)
		return
	}

	if *reference == "" {
		*reference = uuid.NewString()
	}

	applied, err := s.applyEntry(userID, *amount, entryType, *reference)
	if err != nil {
		SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !applied {
		log.Printf("[LEDGER] Duplicate reference %s from user %d, entry not repeated", *reference, userID)
		json.NewEncoder(w).Encode(map[string]string{
			"message":   "Transaction already processed",
			"reference": *reference,
		})
		return
	}

	log.Printf("[LEDGER] %s of %s applied for user %d (ref %s)", entryType, amount, userID, *reference)
	json.NewEncoder(w).Encode(map[string]string{
		"message":   successMessage,
		"reference": *reference,
	})
}

// applyEntry runs the atomic unit: duplicate-reference check, row lock,
// ledger insert and balance write all commit or roll back together.
// Returns applied=false when the reference was already processed.
func (s *LedgerService) applyEntry(userID int, amount decimal.Decimal, entryType, reference string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var existingType string
	err = tx.QueryRow("SELECT transaction_type FROM ledger_entries WHERE reference = $1", reference).Scan(&existingType)
	if err == nil {
		return false, nil
	}
	if err != sql.ErrNoRows {
		return false, err
	}

	account, err := s.lockAccount(tx, userID)
	if err == sql.ErrNoRows {
		return false, ErrAccountNotFound
	}
	if err != nil {
		return false, err
	}

	depositAmount, withdrawAmount := amount, decimal.Zero
	newBalance := account.Balance.Add(amount)
	if entryType == models.TransactionTypeWithdraw {
		if amount.GreaterThan(account.Balance) {
			return false, ErrInsufficientFunds
		}
		depositAmount, withdrawAmount = decimal.Zero, amount
		newBalance = account.Balance.Sub(amount)
	}

	if err := s.createLedgerEntry(tx, reference, account.ID, depositAmount, withdrawAmount, entryType); err != nil {
		return false, err
	}

	if err := s.updateAccountBalance(tx, account.ID, newBalance, account.Version); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (s *LedgerService) lockAccount(tx *sql.Tx, userID int) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRow(`
		SELECT account_id, user_id, balance, version, updated_at
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE`, userID).Scan(&account.ID, &account.UserID, &account.Balance, &account.Version, &account.UpdatedAt)

	return &account, err
}

func (s *LedgerService) createLedgerEntry(tx *sql.Tx, reference, accountID string, depositAmount, withdrawAmount decimal.Decimal, entryType string) error {
	_, err := tx.Exec(`
		INSERT INTO ledger_entries (reference, account_id, deposit_amount, withdraw_amount, transaction_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		reference, accountID, depositAmount, withdrawAmount, entryType, time.Now())
	return err
}

func (s *LedgerService) updateAccountBalance(tx *sql.Tx, accountID string, newBalance decimal.Decimal, version int) error {
	result, err := tx.Exec(`
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE account_id = $3 AND version = $4`,
		newBalance, time.Now(), accountID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for account %s", accountID)
	}

	return nil
}

// Balance returns the current stored balance
// @Summary Get account balance
// @Description Pure read of the authenticated user's current balance
// @Tags wallet
// @Produce json
// @Success 200 {object} map[string]string "Current balance"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Router /wallet/balance [get]
func (s *LedgerService) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var balance decimal.Decimal
	err := s.db.QueryRow("SELECT balance FROM accounts WHERE user_id = $1", userID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			SendServiceError(w, ErrAccountNotFound)
		} else {
			log.Printf("[LEDGER] Balance lookup failed for user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]decimal.Decimal{"balance": balance})
}

// History lists all ledger entries with running totals
// @Summary Get transaction history
// @Description All ledger entries for the account in insertion order, with deposit/withdrawal totals and the derived final balance
// @Tags wallet
// @Produce json
// @Success 200 {object} HistoryResponse "Transaction history"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /wallet/history [get]
func (s *LedgerService) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var accountID string
	var balance decimal.Decimal
	var initialAmount int64
	err := s.db.QueryRow(`
		SELECT a.account_id, a.balance, u.initial_amount
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		WHERE u.id = $1`, userID).Scan(&accountID, &balance, &initialAmount)
	if err != nil {
		if err == sql.ErrNoRows {
			SendServiceError(w, ErrAccountNotFound)
		} else {
			log.Printf("[LEDGER] History account lookup failed for user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to fetch history", http.StatusInternalServerError, nil)
		}
		return
	}

	rows, err := s.db.Query(`
		SELECT id, reference, account_id, deposit_amount, withdraw_amount, transaction_type, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY id`, accountID)
	if err != nil {
		log.Printf("[LEDGER] History query failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch history", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	totalDeposits, totalWithdrawals := decimal.Zero, decimal.Zero
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.Reference, &entry.AccountID, &entry.DepositAmount,
			&entry.WithdrawAmount, &entry.TransactionType, &entry.CreatedAt); err != nil {
			log.Printf("[LEDGER] History scan failed for user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to fetch history", http.StatusInternalServerError, nil)
			return
		}
		entries = append(entries, entry)
		totalDeposits = totalDeposits.Add(entry.DepositAmount)
		totalWithdrawals = totalWithdrawals.Add(entry.WithdrawAmount)
	}
	if err := rows.Err(); err != nil {
		log.Printf("[LEDGER] History iteration failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch history", http.StatusInternalServerError, nil)
		return
	}

	// Derived running total; equals the stored balance while every balance
	// write pairs with a ledger entry.
	finalBalance := decimal.NewFromInt(initialAmount).Add(totalDeposits).Sub(totalWithdrawals)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HistoryResponse{
		Transactions:     entries,
		Count:            len(entries),
		TotalDeposits:    totalDeposits,
		TotalWithdrawals: totalWithdrawals,
		FinalBalance:     finalBalance,
		InitialAmount:    initialAmount,
		Balance:          balance,
	})
}
