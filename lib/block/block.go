// Package block defines the interface required for the ledger connection.
package block

import (
	"context"
	"math/big"

	"github.com/tarancss/balproc/lib/block/ethereum"
	"github.com/tarancss/balproc/lib/block/types"
	"github.com/tarancss/balproc/lib/config"
)

// Ledger is the interface the balance processor uses to read authoritative state from the network. All addresses are
// hex strings; implementations accept any case.
type Ledger interface {
	Close()
	// GetTransaction returns types.ErrNoTrx when the node does not know the hash.
	GetTransaction(ctx context.Context, hash string) (*types.Trans, error)
	// GetReceipt returns types.ErrNoReceipt while the transaction is pending or unknown.
	GetReceipt(ctx context.Context, hash string) (*types.Receipt, error)
	// Balance returns the native coin balance of address.
	Balance(ctx context.Context, address string) (*big.Int, error)
	// TokenBalance returns the ERC20 balance of address in the token contract.
	TokenBalance(ctx context.Context, token, address string) (*big.Int, error)
}

// Init connects to the ledger node read from the config.
func Init(ctx context.Context, bc config.BlockConfig) (Ledger, error) {
	return ethereum.Init(ctx, bc.Node, bc.Secret)
}
