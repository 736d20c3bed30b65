// Package memory implements the store interface in process memory. Used by tests and local runs without a database.
package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/tarancss/balproc/lib/store"
	"github.com/tarancss/balproc/lib/util"
)

// Memory holds tracked accounts in a map guarded by a single mutex; every write is atomic per account.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]*account
	writes   int
}

type account struct {
	balance *big.Int
	tokens  map[string]*big.Int
}

// New returns an empty store tracking the given addresses.
func New(addresses ...string) *Memory {
	m := &Memory{accounts: make(map[string]*account)}
	m.Track(addresses...)

	return m
}

// Track adds the addresses as tracked accounts with no balances. Already tracked addresses are left untouched.
func (m *Memory) Track(addresses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range util.NormAddresses(addresses) {
		if _, ok := m.accounts[a]; !ok {
			m.accounts[a] = &account{tokens: make(map[string]*big.Int)}
		}
	}
}

// Writes returns the number of successful UpdateBalances calls.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.writes
}

// FindTracked returns the tracked addresses in the list.
func (m *Memory) FindTracked(ctx context.Context, addresses []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	found := []string{}

	for _, a := range util.NormAddresses(addresses) {
		if _, ok := m.accounts[a]; ok {
			found = append(found, a)
		}
	}

	return found, nil
}

// UpdateBalances merges u into the account.
func (m *Memory) UpdateBalances(ctx context.Context, u store.BalanceUpdate) (store.Account, error) {
	if err := ctx.Err(); err != nil {
		return store.Account{}, err
	}

	if err := u.Validate(); err != nil {
		return store.Account{}, err
	}

	addr := util.NormAddress(u.Address)

	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[addr]
	if !ok {
		return store.Account{}, store.ErrAddrNotFound
	}

	if u.Balance != nil {
		acc.balance = new(big.Int).Set(u.Balance)
	}

	for token, v := range u.Tokens {
		acc.tokens[util.NormAddress(token)] = new(big.Int).Set(v)
	}

	m.writes++

	return acc.snapshot(addr), nil
}

// GetAccount returns a copy of the stored account.
func (m *Memory) GetAccount(ctx context.Context, address string) (store.Account, error) {
	if err := ctx.Err(); err != nil {
		return store.Account{}, err
	}

	addr := util.NormAddress(address)

	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accounts[addr]
	if !ok {
		return store.Account{}, store.ErrAddrNotFound
	}

	return acc.snapshot(addr), nil
}

func (a *account) snapshot(addr string) store.Account {
	out := store.Account{Address: addr, Tokens: make(map[string]*big.Int, len(a.tokens))}
	if a.balance != nil {
		out.Balance = new(big.Int).Set(a.balance)
	}

	for k, v := range a.tokens {
		out.Tokens[k] = new(big.Int).Set(v)
	}

	return out
}
