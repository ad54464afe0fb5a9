package gasbank

import (
	"errors"
	"time"
)

const (
	// Transaction types
	TxTypeDeposit        = "deposit"
	TxTypeDonation       = "donation"        // debit of the donor
	TxTypeDonationCredit = "donation_credit" // credit of the cause payout account
	TxTypePayout         = "payout"          // debit of the donor paid out from custody
	TxTypeRefund         = "refund"          // reversal of a donation

	StatusCompleted = "completed"
)

var (
	ErrAccountNotFound     = errors.New("gas bank account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRecipientRejected   = errors.New("recipient account cannot receive funds")
	ErrInvalidAmount       = errors.New("amount must be positive and fit the ledger")
	ErrBalanceOverflow     = errors.New("balance overflows")
)

// Account is a ledger account keyed by its Neo N3 address.
type Account struct {
	ID        string    `json:"id" db:"id"`
	Address   string    `json:"address" db:"address"`
	Balance   int64     `json:"balance" db:"balance"`
	Reserved  int64     `json:"reserved" db:"reserved"`
	Suspended bool      `json:"suspended" db:"suspended"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Available is the spendable part of the balance.
func (a Account) Available() int64 {
	return a.Balance - a.Reserved
}

// Transaction is a ledger entry. Amount is negative for debits.
type Transaction struct {
	ID           string    `json:"id" db:"id"`
	AccountID    string    `json:"account_id" db:"account_id"`
	TxType       string    `json:"tx_type" db:"tx_type"`
	Amount       int64     `json:"amount" db:"amount"`
	BalanceAfter int64     `json:"balance_after" db:"balance_after"`
	ReferenceID  string    `json:"reference_id" db:"reference_id"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
