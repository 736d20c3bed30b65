// Package store defines the interface for database implementations of the tracked accounts store.
//
// Accounts are created by an external curation process; the balance processor only reads which addresses are
// tracked and overwrites their balance fields with values read from the ledger.
package store

import (
	"context"
	"errors"
	"math/big"
)

// DB defines the methods required by the balance processor and its status API.
type DB interface {
	// FindTracked returns, in input order, the addresses of the list that are tracked accounts. Addresses are
	// compared lower case.
	FindTracked(ctx context.Context, addresses []string) ([]string, error)
	// UpdateBalances applies u to the account in a single atomic write and returns the account after the write. It
	// returns ErrAddrNotFound when the address is not tracked.
	UpdateBalances(ctx context.Context, u BalanceUpdate) (Account, error)
	// GetAccount returns the stored account or ErrAddrNotFound.
	GetAccount(ctx context.Context, address string) (Account, error)
}

// Errors returned.
var (
	ErrAddrNotFound = errors.New("address was not found in store")
	ErrBadBalance   = errors.New("stored balance is not a base-10 integer")
	ErrNegative     = errors.New("balance cannot be negative")
)

// Account is a tracked account with its cached balances. Balance is nil when it was never reconciled.
type Account struct {
	Address string
	Balance *big.Int
	Tokens  map[string]*big.Int // by token contract address
}

// BalanceUpdate is the write intent for one account. A nil Balance leaves the stored balance untouched and only the
// token contracts present in Tokens are written.
type BalanceUpdate struct {
	Address string
	Balance *big.Int
	Tokens  map[string]*big.Int
}

// Validate checks no balance in the update is negative.
func (u BalanceUpdate) Validate() error {
	if u.Balance != nil && u.Balance.Sign() < 0 {
		return ErrNegative
	}

	for _, v := range u.Tokens {
		if v == nil || v.Sign() < 0 {
			return ErrNegative
		}
	}

	return nil
}

// ParseBalance parses a stored base-10 balance. An empty string is an absent balance.
func ParseBalance(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil //nolint:nilnil // absent balance
	}

	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, ErrBadBalance
	}

	return b, nil
}

// FormatBalance returns the base-10 representation stored for b, empty when absent.
func FormatBalance(b *big.Int) string {
	if b == nil {
		return ""
	}

	return b.String()
}
