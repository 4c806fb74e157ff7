package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"shiporch/internal/wallet"
)

const (
	kindDebit  = "debit"
	kindCredit = "credit"
)

// Wallets is a ledger: every movement is a wallet_transactions row plus a
// balance update in the same transaction.
type Wallets struct {
	base
}

func NewWallets(pool DB) *Wallets {
	return &Wallets{base: newBase(pool)}
}

var _ wallet.Wallet = (*Wallets)(nil)

// Debit fails with wallet.ErrInsufficientFunds rather than driving the
// balance negative.
func (r *Wallets) Debit(ctx context.Context, userID string, amount decimal.Decimal, memo string) (string, error) {
	return r.move(ctx, kindDebit, userID, amount, memo)
}

func (r *Wallets) Credit(ctx context.Context, userID string, amount decimal.Decimal, memo string) (string, error) {
	return r.move(ctx, kindCredit, userID, amount, memo)
}

func (r *Wallets) move(ctx context.Context, kind, userID string, amount decimal.Decimal, memo string) (txnID string, err error) {
	if !validID(userID) {
		return "", fmt.Errorf("%w: %q", ErrBadID, userID)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("wallet %s: amount must be positive, got %s", kind, amount)
	}
	ctx, cancel := r.withTx(ctx)
	defer cancel()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	amt := amount.StringFixed(2)
	if kind == kindDebit {
		tag, err := tx.Exec(ctx, qDebitWallet, userID, amt)
		if err != nil {
			return "", fmt.Errorf("debit %s: %w", userID, err)
		}
		if tag.RowsAffected() == 0 {
			return "", fmt.Errorf("%w: user %s, amount %s", wallet.ErrInsufficientFunds, userID, amt)
		}
	} else {
		if _, err := tx.Exec(ctx, qCreditWallet, userID, amt); err != nil {
			return "", fmt.Errorf("credit %s: %w", userID, err)
		}
	}

	id := uuid.NewString()
	if _, err := tx.Exec(ctx, qInsertWalletTxn, id, userID, kind, amt, memo); err != nil {
		if isUniqueViolation(err) {
			return "", errors.Join(ErrConflict, err)
		}
		return "", fmt.Errorf("insert wallet txn: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}
