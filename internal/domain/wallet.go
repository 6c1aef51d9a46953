package domain

import (
	"fmt"
	"time"
)

// LedgerKind distinguishes wallet entries.
type LedgerKind string

const (
	LedgerCredit LedgerKind = "credit"
	LedgerDebit  LedgerKind = "debit"
)

// LedgerEntry is an append-only record of a single wallet balance change.
type LedgerEntry struct {
	ID           string
	UserID       string
	Kind         LedgerKind
	Amount       int
	BalanceAfter int
	ReferenceID  string
	CreatedAt    time.Time
}

// WalletChange is the before/after snapshot of a wallet credited by an activity.
type WalletChange struct {
	PreviousBalance int
	PointsEarned    int
	NewBalance      int
}

// Credit returns the balance after adding amount.
func Credit(balance, amount int) (int, error) {
	if amount < 0 {
		return balance, fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}
	return balance + amount, nil
}

// Debit returns the balance after removing amount. The balance never goes negative.
func Debit(balance, amount int) (int, error) {
	if amount < 0 {
		return balance, fmt.Errorf("debit amount must be non-negative, got %d", amount)
	}
	if balance < amount {
		return balance, ErrInsufficientPoints
	}
	return balance - amount, nil
}
