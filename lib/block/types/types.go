// Package types common ledger types.
package types

import (
	"errors"
	"strconv"
)

// Trans contains the transaction fields returned by the node for eth_getTransactionByHash. Values are kept in the
// node's hex string form so they can be forwarded untouched to downstream consumers.
type Trans struct {
	Hash     string `json:"hash"`
	Block    string `json:"blockNumber,omitempty"`
	BHash    string `json:"blockHash,omitempty"`
	Index    string `json:"transactionIndex,omitempty"`
	From     string `json:"from"`
	To       string `json:"to"` // empty for contract creation
	Value    string `json:"value"`
	Nonce    string `json:"nonce"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice,omitempty"`
	Input    string `json:"input"`
}

// Log is a single event log entry of a transaction receipt.
type Log struct {
	Address  string   `json:"address"` // emitting contract
	Topics   []string `json:"topics"`
	Data     string   `json:"data"`
	LogIndex string   `json:"logIndex"`
	TxHash   string   `json:"transactionHash,omitempty"`
	Removed  bool     `json:"removed,omitempty"`
}

// Index returns the position of the log within its block. Logs with a malformed index report 0.
func (l Log) Index() uint64 {
	i, err := strconv.ParseUint(l.LogIndex, 0, 64)
	if err != nil {
		return 0
	}

	return i
}

// Receipt contains the fields returned by the node for eth_getTransactionReceipt.
type Receipt struct {
	TxHash          string `json:"transactionHash"`
	Block           string `json:"blockNumber"`
	BHash           string `json:"blockHash"`
	Index           string `json:"transactionIndex"`
	From            string `json:"from"`
	To              string `json:"to"`
	GasUsed         string `json:"gasUsed"`
	CumulativeGas   string `json:"cumulativeGasUsed"`
	ContractAddress string `json:"contractAddress,omitempty"`
	Status          string `json:"status"`
	Logs            []Log  `json:"logs"`
}

// Error codes.
var (
	ErrNoTrx      = errors.New("transaction not found")
	ErrNoReceipt  = errors.New("transaction receipt not found")
	ErrBadAddress = errors.New("malformed address")
	ErrBadAmount  = errors.New("malformed balance returned by node")
	ErrNegative   = errors.New("negative balance returned by node")
)
