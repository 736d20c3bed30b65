package processor

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarancss/balproc/lib/block/types"
	"github.com/tarancss/balproc/lib/msg"
)

const (
	addrA    = "0x1cd434711fbae1f2d9c70001409fd82d71fdccaa"
	addrB    = "0x7762440182222620a7435195208038708d27ee41"
	addrX    = "0x357dd3856d856197c1a000bbab4abcb97dfc92c4"
	tokenC   = "0xa34de7bd2b4270c0b12d5fd7a0c219a4d68d732f"
	tokenD   = "0xd26114cd6ee289accf82350c8d8487fedb8a0c07"
	txHash   = "0xdbd3184b2f947dab243071000df22cf5acc6efdce90a04aaf057521b1ee5bf60"
	topicTr  = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	topicApp = "0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925"
	word1000 = "0x00000000000000000000000000000000000000000000000000000000000003e8"
)

var errLedger = errors.New("ledger unavailable")

func topicOf(addr string) string {
	return "0x000000000000000000000000" + addr[2:]
}

func transferLog(contract, from, to string, idx string) types.Log {
	return types.Log{Address: contract, Topics: []string{topicTr, topicOf(from), topicOf(to)}, Data: word1000, LogIndex: idx}
}

// fakeLedger answers from maps keyed by lower case address. Addresses in block never answer before the context ends.
type fakeLedger struct {
	txs      map[string]*types.Trans
	receipts map[string]*types.Receipt
	balances map[string]*big.Int
	tokens   map[string]*big.Int // token + "/" + address
	block    map[string]bool
	fail     map[string]bool

	calls    int64
	inflight int64
	maxSeen  int64
	delay    time.Duration
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		txs:      map[string]*types.Trans{},
		receipts: map[string]*types.Receipt{},
		balances: map[string]*big.Int{},
		tokens:   map[string]*big.Int{},
		block:    map[string]bool{},
		fail:     map[string]bool{},
	}
}

func (f *fakeLedger) Close() {}

func (f *fakeLedger) GetTransaction(ctx context.Context, hash string) (*types.Trans, error) {
	if tx, ok := f.txs[hash]; ok {
		return tx, nil
	}

	return nil, types.ErrNoTrx
}

func (f *fakeLedger) GetReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}

	return nil, types.ErrNoReceipt
}

func (f *fakeLedger) enter(ctx context.Context, addr string) error {
	atomic.AddInt64(&f.calls, 1)

	n := atomic.AddInt64(&f.inflight, 1)
	defer atomic.AddInt64(&f.inflight, -1)

	for {
		m := atomic.LoadInt64(&f.maxSeen)
		if n <= m || atomic.CompareAndSwapInt64(&f.maxSeen, m, n) {
			break
		}
	}

	if f.block[addr] {
		<-ctx.Done()

		return ctx.Err()
	}

	if f.fail[addr] {
		return errLedger
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	return nil
}

func (f *fakeLedger) Balance(ctx context.Context, address string) (*big.Int, error) {
	address = strings.ToLower(address)
	if err := f.enter(ctx, address); err != nil {
		return nil, err
	}

	if b, ok := f.balances[address]; ok {
		return new(big.Int).Set(b), nil
	}

	return big.NewInt(0), nil
}

func (f *fakeLedger) TokenBalance(ctx context.Context, token, address string) (*big.Int, error) {
	address = strings.ToLower(address)
	if err := f.enter(ctx, address); err != nil {
		return nil, err
	}

	if b, ok := f.tokens[strings.ToLower(token)+"/"+address]; ok {
		return new(big.Int).Set(b), nil
	}

	return big.NewInt(0), nil
}

func (f *fakeLedger) Calls() int64 {
	return atomic.LoadInt64(&f.calls)
}

// fakeBroker records published messages and feeds deliveries from a channel.
type fakeBroker struct {
	mu      sync.Mutex
	sent    []msg.BalanceMsg
	sendErr error

	in   chan msg.Delivery
	errs chan error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{in: make(chan msg.Delivery), errs: make(chan error, 1)}
}

func (b *fakeBroker) Setup() error { return nil }
func (b *fakeBroker) Close() error { return nil }

func (b *fakeBroker) GetNotifications(ctx context.Context) (<-chan msg.Delivery, <-chan error, error) {
	out := make(chan msg.Delivery)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case d := <-b.in:
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, b.errs, nil
}

func (b *fakeBroker) SendBalance(m msg.BalanceMsg) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sendErr != nil {
		return b.sendErr
	}

	b.sent = append(b.sent, m)

	return nil
}

func (b *fakeBroker) Sent() []msg.BalanceMsg {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]msg.BalanceMsg(nil), b.sent...)
}

// delivery returns a delivery with body and a counter of its acknowledgements.
func delivery(body string) (msg.Delivery, *int64) {
	acks := new(int64)

	return msg.Delivery{
		Key:  "test_transaction.1",
		Body: []byte(body),
		Ack: func() error {
			atomic.AddInt64(acks, 1)

			return nil
		},
	}, acks
}
