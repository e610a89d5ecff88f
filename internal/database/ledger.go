package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// Ledger entry kinds. A run can have at most one entry of each kind.
const (
	EntryDeduct = "deduct"
	EntryRefund = "refund"
	EntryCredit = "credit"
)

// LedgerEntry is one balance movement. Amount is negative for deductions.
type LedgerEntry struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	RunID        *string   `json:"run_id,omitempty"`
	Kind         string    `json:"kind"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

// Balance returns the user's credit balance; users without an account have 0.
func (db *DB) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := db.Pool.QueryRow(ctx, `SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

func (db *DB) HasCredits(ctx context.Context, userID string, amount int64) (bool, error) {
	balance, err := db.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Deduct charges a completed run. It is idempotent per runID: a repeated
// call returns the current balance without charging again.
func (db *DB) Deduct(ctx context.Context, userID string, amount int64, description, runID string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("deduct: negative amount %d", amount)
	}

	var balance int64
	charged := false
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE run_id = $1 AND kind = $2)`,
			runID, EntryDeduct,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return tx.QueryRow(ctx, `SELECT COALESCE((SELECT balance FROM accounts WHERE user_id = $1), 0)`, userID).Scan(&balance)
		}

		err := tx.QueryRow(ctx,
			`UPDATE accounts SET balance = balance - $2, updated_at = now()
			 WHERE user_id = $1 AND balance >= $2
			 RETURNING balance`,
			userID, amount,
		).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInsufficientBalance
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO ledger_entries (user_id, run_id, kind, amount, balance_after, description)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			userID, runID, EntryDeduct, -amount, balance, description,
		); err != nil {
			return err
		}
		charged = true
		return nil
	})

	// A concurrent deduction for the same run won the unique index.
	if isUniqueViolation(err) {
		b, berr := db.Balance(ctx, userID)
		if berr != nil {
			return 0, berr
		}
		return b, nil
	}
	if err != nil {
		return 0, err
	}

	if charged {
		db.log.Info().Str("user_id", userID).Str("run_id", runID).Int64("amount", amount).Int64("balance", balance).Msg("credits deducted")
	}
	return balance, nil
}

// Refund reverses the deduction for runID. Runs without a deduction, or
// already refunded, are left alone.
func (db *DB) Refund(ctx context.Context, runID string) error {
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		var userID string
		var amount int64
		err := tx.QueryRow(ctx,
			`SELECT user_id, -amount FROM ledger_entries WHERE run_id = $1 AND kind = $2`,
			runID, EntryDeduct,
		).Scan(&userID, &amount)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		var balance int64
		if err := tx.QueryRow(ctx,
			`UPDATE accounts SET balance = balance + $2, updated_at = now()
			 WHERE user_id = $1 RETURNING balance`,
			userID, amount,
		).Scan(&balance); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO ledger_entries (user_id, run_id, kind, amount, balance_after, description)
			 VALUES ($1, $2, $3, $4, $5, 'refund')`,
			userID, runID, EntryRefund, amount, balance,
		)
		return err
	})
	if isUniqueViolation(err) {
		return nil
	}
	if err == nil {
		db.log.Info().Str("run_id", runID).Msg("run refunded")
	}
	return err
}

// Credit adds credits to a user's balance, creating the account if needed.
func (db *DB) Credit(ctx context.Context, userID string, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit: amount must be positive, got %d", amount)
	}
	var balance int64
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO accounts (user_id, balance) VALUES ($1, $2)
			 ON CONFLICT (user_id) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance, updated_at = now()
			 RETURNING balance`,
			userID, amount,
		).Scan(&balance); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO ledger_entries (user_id, kind, amount, balance_after, description)
			 VALUES ($1, $2, $3, $4, $5)`,
			userID, EntryCredit, amount, balance, description,
		)
		return err
	})
	return balance, err
}

// LedgerEntries returns a user's most recent entries, newest first.
func (db *DB) LedgerEntries(ctx context.Context, userID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, run_id, kind, amount, balance_after, description, created_at
		 FROM ledger_entries WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []LedgerEntry{}
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.RunID, &e.Kind, &e.Amount, &e.BalanceAfter, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
