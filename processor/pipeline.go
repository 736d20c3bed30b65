package processor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tarancss/balproc/lib/block/types"
	"github.com/tarancss/balproc/lib/metrics"
	"github.com/tarancss/balproc/lib/msg"
	"github.com/tarancss/balproc/lib/store"
)

// filter keeps the candidates whose address is tracked, in the same order, with a single store lookup.
func (p *Processor) filter(ctx context.Context, cands []Candidate) ([]Candidate, error) {
	if len(cands) == 0 {
		return nil, nil
	}

	addrs := make([]string, len(cands))
	for i, c := range cands {
		addrs[i] = c.Address
	}

	found, err := p.db.FindTracked(ctx, addrs)
	if err != nil {
		return nil, fmt.Errorf("cannot find tracked addresses: %w", err)
	}

	tracked := make(map[string]struct{}, len(found))
	for _, a := range found {
		tracked[a] = struct{}{}
	}

	out := make([]Candidate, 0, len(found))

	for _, c := range cands {
		if _, ok := tracked[c.Address]; ok {
			out = append(out, c)
		}
	}

	return out, nil
}

// fetch reads the balance and the token balances of every candidate concurrently. Each query waits for a slot of the
// shared semaphore and then runs under its own timeout. A candidate with any failed query is left out of the result;
// the others keep the candidates order.
func (p *Processor) fetch(ctx context.Context, cands []Candidate, log logrus.FieldLogger) []store.BalanceUpdate {
	updates := make([]store.BalanceUpdate, len(cands))
	failed := make([]error, len(cands))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for i, c := range cands {
		updates[i] = store.BalanceUpdate{Address: c.Address, Tokens: make(map[string]*big.Int)}

		wg.Add(1)

		go func(i int, addr string) {
			defer wg.Done()

			bal, err := p.query(ctx, "balance", func(ctx context.Context) (*big.Int, error) {
				return p.ledger.Balance(ctx, addr)
			})

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failed[i] = err
			} else {
				updates[i].Balance = bal
			}
		}(i, c.Address)

		for _, token := range c.TokenList() {
			wg.Add(1)

			go func(i int, addr, token string) {
				defer wg.Done()

				bal, err := p.query(ctx, "token", func(ctx context.Context) (*big.Int, error) {
					return p.ledger.TokenBalance(ctx, token, addr)
				})

				mu.Lock()
				defer mu.Unlock()

				if err != nil {
					failed[i] = fmt.Errorf("token %s: %w", token, err)
				} else {
					updates[i].Tokens[token] = bal
				}
			}(i, c.Address, token)
		}
	}

	wg.Wait()

	out := make([]store.BalanceUpdate, 0, len(updates))

	for i, u := range updates {
		if failed[i] != nil {
			log.WithField("address", u.Address).WithError(failed[i]).Error("Cannot fetch balances, skipping address")

			continue
		}

		out = append(out, u)
	}

	return out
}

// query runs q holding a semaphore slot and under the fetch timeout.
func (p *Processor) query(ctx context.Context, kind string, q func(context.Context) (*big.Int, error)) (*big.Int, error) {
	v, err := func() (*big.Int, error) {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer p.sem.Release(1)

		qctx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
		defer cancel()

		return q(qctx)
	}()

	switch {
	case err != nil:
	case v == nil:
		err = types.ErrBadAmount
	case v.Sign() < 0:
		err = types.ErrNegative
	}

	if err != nil {
		metrics.FetchErrors.WithLabelValues(p.opts.Service, kind).Inc()

		return nil, err
	}

	return v, nil
}

// reconcile writes the updates to the store one at a time, in order. A failed write only drops its account.
func (p *Processor) reconcile(ctx context.Context, updates []store.BalanceUpdate, log logrus.FieldLogger) []store.Account {
	accounts := make([]store.Account, 0, len(updates))

	for _, u := range updates {
		acc, err := p.db.UpdateBalances(ctx, u)
		if err != nil {
			metrics.StoreErrors.WithLabelValues(p.opts.Service).Inc()

			l := log.WithField("address", u.Address).WithError(err)
			if errors.Is(err, store.ErrAddrNotFound) {
				l.Warn("Account no longer tracked")
			} else {
				l.Error("Cannot update balances")
			}

			continue
		}

		metrics.AccountsReconciled.WithLabelValues(p.opts.Service).Inc()

		accounts = append(accounts, acc)
	}

	return accounts
}

// BuildMessages returns one balance message per account with its stored balances and the transaction that triggered
// the update.
func BuildMessages(accounts []store.Account, tx *types.Trans, r *types.Receipt) []msg.BalanceMsg {
	msgs := make([]msg.BalanceMsg, 0, len(accounts))

	for _, acc := range accounts {
		m := msg.BalanceMsg{
			Address: acc.Address,
			Tx:      tx,
			Receipt: r,
			Balance: "0",
			Tokens:  make(map[string]string, len(acc.Tokens)),
		}

		if acc.Balance != nil {
			m.Balance = acc.Balance.String()
		}

		for token, v := range acc.Tokens {
			m.Tokens[token] = v.String()
		}

		msgs = append(msgs, m)
	}

	return msgs
}

// publish sends the messages in order and stops at the first failure.
func (p *Processor) publish(msgs []msg.BalanceMsg, log logrus.FieldLogger) error {
	for _, m := range msgs {
		if err := p.mb.SendBalance(m); err != nil {
			return fmt.Errorf("%w for %s: %v", ErrPublish, m.Address, err) //nolint:errorlint // fatal, not inspected
		}

		metrics.MessagesPublished.WithLabelValues(p.opts.Service).Inc()
		log.WithField("address", m.Address).Debug("Balance message published")
	}

	return nil
}
