// Package postgres implements the store interface for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/lib/pq"

	"github.com/tarancss/balproc/lib/store"
	"github.com/tarancss/balproc/lib/util"
)

// Schema creates the accounts table when missing. Token balances are kept as a JSON object of base-10 strings.
const Schema = `CREATE TABLE IF NOT EXISTS accounts (
	address    TEXT PRIMARY KEY,
	balance    NUMERIC(78, 0),
	erc20token JSONB NOT NULL DEFAULT '{}'::jsonb
)`

const (
	findTracked = `SELECT address FROM accounts WHERE address = ANY($1)`
	// one statement so the read-merge-write of erc20token is atomic per row
	updateBalances = `UPDATE accounts
	SET balance = COALESCE($2::numeric, balance), erc20token = COALESCE(erc20token, '{}'::jsonb) || $3::jsonb
	WHERE address = $1
	RETURNING address, balance::text, erc20token::text`
	getAccount = `SELECT address, balance::text, erc20token::text FROM accounts WHERE address = $1`
)

// Postgres implements a connection to a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// New returns a postgres client connection to the specified database in 'connection' and creates the accounts table
// if needed.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	if _, err = db.Exec(Schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("cannot create accounts table: %w", err)
	}

	return &Postgres{db: db}, nil
}

// ClosePostgres will close any database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

// Ping checks the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// FindTracked returns the tracked addresses of the list in a single query.
func (p *Postgres) FindTracked(ctx context.Context, addresses []string) ([]string, error) {
	addrs := util.NormAddresses(addresses)
	found := []string{}

	if len(addrs) == 0 {
		return found, nil
	}

	rows, err := p.db.QueryContext(ctx, findTracked, pq.Array(addrs))
	if err != nil {
		return nil, fmt.Errorf("error finding tracked addresses: %w", err)
	}
	defer rows.Close()

	tracked := make(map[string]struct{}, len(addrs))

	for rows.Next() {
		var a string
		if err = rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("error scanning address: %w", err)
		}

		tracked[a] = struct{}{}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error finding tracked addresses: %w", err)
	}

	for _, a := range addrs {
		if _, ok := tracked[a]; ok {
			found = append(found, a)
		}
	}

	return found, nil
}

// UpdateBalances sets the balance, when present, and merges the token balances of the update into the stored ones.
func (p *Postgres) UpdateBalances(ctx context.Context, u store.BalanceUpdate) (store.Account, error) {
	if err := u.Validate(); err != nil {
		return store.Account{}, err
	}

	addr := util.NormAddress(u.Address)

	var bal sql.NullString
	if u.Balance != nil {
		bal = sql.NullString{String: u.Balance.String(), Valid: true}
	}

	tokens := make(map[string]string, len(u.Tokens))
	for token, v := range u.Tokens {
		tokens[util.NormAddress(token)] = v.String()
	}

	js, err := json.Marshal(tokens)
	if err != nil {
		return store.Account{}, err
	}

	acc, err := scanAccount(p.db.QueryRowContext(ctx, updateBalances, addr, bal, string(js)))
	if err != nil {
		return store.Account{}, fmt.Errorf("error updating account %s: %w", addr, err)
	}

	return acc, nil
}

// GetAccount returns the account stored for address.
func (p *Postgres) GetAccount(ctx context.Context, address string) (store.Account, error) {
	acc, err := scanAccount(p.db.QueryRowContext(ctx, getAccount, util.NormAddress(address)))
	if err != nil {
		return store.Account{}, fmt.Errorf("error getting account: %w", err)
	}

	return acc, nil
}

func scanAccount(row *sql.Row) (store.Account, error) {
	var (
		acc    store.Account
		bal    sql.NullString
		tokens string
	)

	err := row.Scan(&acc.Address, &bal, &tokens)
	if errors.Is(err, sql.ErrNoRows) {
		return acc, store.ErrAddrNotFound
	}

	if err != nil {
		return acc, err
	}

	if acc.Balance, err = store.ParseBalance(bal.String); err != nil {
		return acc, err
	}

	raw := map[string]string{}
	if err = json.Unmarshal([]byte(tokens), &raw); err != nil {
		return acc, fmt.Errorf("%w: %v", store.ErrBadBalance, err) //nolint:errorlint // keep a single sentinel
	}

	acc.Tokens = make(map[string]*big.Int, len(raw))

	for token, s := range raw {
		v, err := store.ParseBalance(s)
		if err != nil {
			return acc, err
		}

		if v != nil {
			acc.Tokens[token] = v
		}
	}

	return acc, nil
}
