// Package ethereum implements the ledger interface for ethereum networks.
package ethereum

import (
	"context"
	"fmt"
	"math/big"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/tarancss/balproc/lib/block/types"
)

// ERC20balanceOf is the methodID of balanceOf(address) (keccak-256 of the function name and arguments).
const ERC20balanceOf = "70a08231"

// Ethereum implements a connection to an ethereum-type node.
type Ethereum struct {
	rc *rpc.Client
	c  *ethclient.Client
}

// Init returns a connection to an ethereum node, using secret if necessary for Basic authentication.
func Init(ctx context.Context, node, secret string) (*Ethereum, error) {
	rc, err := rpc.DialContext(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to ethereum node in %s: %w", node, err)
	}

	if secret != "" {
		rc.SetHeader("Authorization", "Basic "+secret)
	}

	return &Ethereum{rc: rc, c: ethclient.NewClient(rc)}, nil
}

// Close ends a connection.
func (e *Ethereum) Close() {
	e.rc.Close()
}

// GetTransaction returns the details of the transaction for the given hash.
func (e *Ethereum) GetTransaction(ctx context.Context, hash string) (*types.Trans, error) {
	var tx *types.Trans

	if err := e.rc.CallContext(ctx, &tx, "eth_getTransactionByHash", hash); err != nil {
		return nil, fmt.Errorf("eth_getTransactionByHash %s: %w", hash, err)
	}

	if tx == nil {
		return nil, types.ErrNoTrx
	}

	return tx, nil
}

// GetReceipt returns the receipt, including event logs, of the transaction for the given hash.
func (e *Ethereum) GetReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	var r *types.Receipt

	if err := e.rc.CallContext(ctx, &r, "eth_getTransactionReceipt", hash); err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt %s: %w", hash, err)
	}

	if r == nil {
		return nil, types.ErrNoReceipt
	}

	return r, nil
}

// Balance returns the ether balance of address at the latest block.
func (e *Ethereum) Balance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %s", types.ErrBadAddress, address)
	}

	bal, err := e.c.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("eth_getBalance %s: %w", address, err)
	}

	return bal, nil
}

// TokenBalance returns the balance of address in the ERC20 token contract at the latest block.
func (e *Ethereum) TokenBalance(ctx context.Context, token, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %s", types.ErrBadAddress, address)
	}

	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("%w: %s", types.ErrBadAddress, token)
	}

	to := common.HexToAddress(token)
	data := append(common.FromHex(ERC20balanceOf), common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32)...)

	res, err := e.c.CallContract(ctx, geth.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s at %s: %w", address, token, err)
	}
	// a non-contract or non-ERC20 address answers with an empty result
	if len(res) != 32 {
		return nil, fmt.Errorf("%w: balanceOf %s at %s returned %d bytes", types.ErrBadAmount, address, token, len(res))
	}

	return new(big.Int).SetBytes(res), nil
}
