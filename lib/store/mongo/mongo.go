// Package mongo implements the store interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tarancss/balproc/lib/store"
	"github.com/tarancss/balproc/lib/util"
)

// Collection holding the tracked accounts.
const Collection = "accounts"

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c   *mgo.Client
	col *mgo.Collection
}

// MongoAccount is the stored account document. Balances are base-10 strings.
type MongoAccount struct {
	Address string            `json:"address" bson:"address"`
	Balance string            `json:"balance,omitempty" bson:"balance,omitempty"`
	Tokens  map[string]string `json:"erc20token,omitempty" bson:"erc20token,omitempty"`
}

// Account converts a MongoAccount to store.Account type.
func (a MongoAccount) Account() (store.Account, error) {
	acc := store.Account{Address: a.Address, Tokens: make(map[string]*big.Int, len(a.Tokens))}

	var err error
	if acc.Balance, err = store.ParseBalance(a.Balance); err != nil {
		return acc, fmt.Errorf("account %s: %w", a.Address, err)
	}

	for token, s := range a.Tokens {
		v, err := store.ParseBalance(s)
		if err != nil {
			return acc, fmt.Errorf("account %s token %s: %w", a.Address, token, err)
		}

		if v != nil {
			acc.Tokens[token] = v
		}
	}

	return acc, nil
}

// New returns a Mongo client connection to the specified MongoDB database uri.
func New(uri, database string) (*Mongo, error) {
	// get a client
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	// connect client
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if err = c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	return &Mongo{c: c, col: c.Database(database).Collection(Collection)}, nil
}

// CloseMongo will close a database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

// Ping checks the primary is reachable.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.c.Ping(ctx, readpref.Primary())
}

// FindTracked returns the tracked addresses of the list in a single query.
func (m *Mongo) FindTracked(ctx context.Context, addresses []string) ([]string, error) {
	addrs := util.NormAddresses(addresses)
	found := []string{}

	if len(addrs) == 0 {
		return found, nil
	}

	cur, err := m.col.Find(ctx, bson.M{"address": bson.M{"$in": addrs}},
		options.Find().SetProjection(bson.M{"address": 1, "_id": 0}))
	if err != nil {
		return nil, fmt.Errorf("error finding tracked addresses: %w", err)
	}
	defer cur.Close(ctx)

	tracked := make(map[string]struct{}, len(addrs))

	for cur.Next(ctx) {
		var a MongoAccount
		if err = cur.Decode(&a); err != nil {
			return nil, fmt.Errorf("error decoding account: %w", err)
		}

		tracked[util.NormAddress(a.Address)] = struct{}{}
	}

	if err = cur.Err(); err != nil {
		return nil, fmt.Errorf("error finding tracked addresses: %w", err)
	}

	// keep input order
	for _, a := range addrs {
		if _, ok := tracked[a]; ok {
			found = append(found, a)
		}
	}

	return found, nil
}

// UpdateBalances sets the balance and each token balance of the update with a single findOneAndUpdate. Token
// balances not in the update are left untouched.
func (m *Mongo) UpdateBalances(ctx context.Context, u store.BalanceUpdate) (store.Account, error) {
	if err := u.Validate(); err != nil {
		return store.Account{}, err
	}

	addr := util.NormAddress(u.Address)

	set := bson.D{}
	if u.Balance != nil {
		set = append(set, bson.E{Key: "balance", Value: u.Balance.String()})
	}

	for token, v := range u.Tokens {
		set = append(set, bson.E{Key: "erc20token." + util.NormAddress(token), Value: v.String()})
	}

	if len(set) == 0 {
		return m.GetAccount(ctx, addr)
	}

	var ma MongoAccount

	err := m.col.FindOneAndUpdate(ctx,
		bson.M{"address": addr}, // filter
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&ma)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return store.Account{}, store.ErrAddrNotFound
	}

	if err != nil {
		return store.Account{}, fmt.Errorf("error updating account %s: %w", addr, err)
	}

	return ma.Account()
}

// GetAccount returns the account stored for address.
func (m *Mongo) GetAccount(ctx context.Context, address string) (store.Account, error) {
	var ma MongoAccount

	err := m.col.FindOne(ctx, bson.M{"address": util.NormAddress(address)}).Decode(&ma)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return store.Account{}, store.ErrAddrNotFound
	}

	if err != nil {
		return store.Account{}, fmt.Errorf("error getting account: %w", err)
	}

	return ma.Account()
}
