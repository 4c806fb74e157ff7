// Package wallettest records wallet calls for tests.
package wallettest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

type Entry struct {
	UserID string
	Amount decimal.Decimal
	Memo   string
}

type Recorder struct {
	mu        sync.Mutex
	Debits    []Entry
	Credits   []Entry
	DebitErr  error
	CreditErr error
}

func (r *Recorder) Debit(_ context.Context, userID string, amount decimal.Decimal, memo string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.DebitErr != nil {
		return "", r.DebitErr
	}
	r.Debits = append(r.Debits, Entry{userID, amount, memo})
	return fmt.Sprintf("dr-%d", len(r.Debits)), nil
}

func (r *Recorder) Credit(_ context.Context, userID string, amount decimal.Decimal, memo string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreditErr != nil {
		return "", r.CreditErr
	}
	r.Credits = append(r.Credits, Entry{userID, amount, memo})
	return fmt.Sprintf("cr-%d", len(r.Credits)), nil
}

func (r *Recorder) CreditCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Credits)
}
