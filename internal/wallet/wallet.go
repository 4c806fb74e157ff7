// Package wallet is the contract to the user wallet ledger.
package wallet

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrInsufficientFunds = errors.New("insufficient wallet funds")

// Wallet moves money in and out of a user's wallet. Both calls return the
// ledger transaction ID.
type Wallet interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal, memo string) (string, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal, memo string) (string, error)
}
