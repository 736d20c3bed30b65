// Package db implements the opening and graceful closing of database connections.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/tarancss/balproc/lib/store"
	"github.com/tarancss/balproc/lib/store/memory"
	"github.com/tarancss/balproc/lib/store/mongo"
	"github.com/tarancss/balproc/lib/store/postgres"
)

// Supported database types.
const (
	MONGODB  string = "mongodb"
	POSTGRES string = "postgresql"
	MEMORY   string = "memory"
)

// ErrUnknownType is returned for a database type that is not supported.
var ErrUnknownType = errors.New("unknown database type")

// Pinger is implemented by stores backed by a server connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New returns a new database connection according to the options (database type). name is the database used by
// MongoDB; the other types take it from the connection string.
func New(options, connection, name string) (store.DB, error) {
	switch options {
	case MONGODB:
		return mongo.New(connection, name)
	case POSTGRES:
		return postgres.New(connection)
	case MEMORY:
		return memory.New(), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownType, options)
}

// Ping checks the database connection when the store has one.
func Ping(ctx context.Context, dh store.DB) error {
	if p, ok := dh.(Pinger); ok {
		return p.Ping(ctx)
	}

	return nil
}

// Close gracefully closes the database connection.
func Close(options string, dh store.DB) error {
	switch options {
	case MONGODB:
		return dh.(*mongo.Mongo).CloseMongo()
	case POSTGRES:
		return dh.(*postgres.Postgres).ClosePostgres()
	}

	return nil
}
