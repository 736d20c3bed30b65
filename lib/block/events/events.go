// Package events decodes transaction receipt logs against a closed set of known token event schemas.
package events

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"github.com/tarancss/balproc/lib/block/types"
)

// Kind identifies a known event variant. New variants are added here and in Schemas.
type Kind int

// Known event variants.
const (
	Transfer Kind = iota
	Approval
)

func (k Kind) String() string {
	switch k {
	case Transfer:
		return "Transfer"
	case Approval:
		return "Approval"
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// wordSize is the length of an ABI encoded static value.
const wordSize = 32

// Decoding errors.
var (
	ErrTopics = errors.New("topics do not match event schema")
	ErrData   = errors.New("data does not match event schema")
)

// Schema describes the ordered fields of an event variant.
type Schema struct {
	Kind  Kind
	Event abi.Event
}

func newSchema(k Kind, inputs ...abi.Argument) Schema {
	return Schema{Kind: k, Event: abi.NewEvent(k.String(), k.String(), false, inputs)}
}

func arg(name, typ string, indexed bool) abi.Argument {
	t, err := abi.NewType(typ, "", nil)
	if err != nil {
		panic(err)
	}

	return abi.Argument{Name: name, Type: t, Indexed: indexed}
}

// Schemas maps the signature hash (first topic) of each known event to its schema.
var Schemas = func() map[common.Hash]Schema { //nolint:gochecknoglobals // closed set of ERC20 events
	m := make(map[common.Hash]Schema)

	for _, s := range []Schema{
		newSchema(Transfer, arg("from", "address", true), arg("to", "address", true), arg("value", "uint256", false)),
		newSchema(Approval, arg("owner", "address", true), arg("spender", "address", true), arg("value", "uint256", false)),
	} {
		m[s.Event.ID] = s
	}

	return m
}()

// Event is a decoded receipt log.
type Event struct {
	LogIndex uint64
	Kind     Kind
	Contract string                 // emitting contract, lower case
	Fields   map[string]interface{} // common.Address or *big.Int per schema field
}

// Name returns the event name.
func (e Event) Name() string {
	return e.Kind.String()
}

// Parties returns the two accounts involved in the event, lower case: from and to for Transfer, owner and spender
// for Approval.
func (e Event) Parties() (from, to string) {
	switch e.Kind {
	case Transfer:
		return e.address("from"), e.address("to")
	case Approval:
		return e.address("owner"), e.address("spender")
	}

	return "", ""
}

// Value returns the amount carried by the event, nil if absent.
func (e Event) Value() *big.Int {
	v, _ := e.Fields["value"].(*big.Int)

	return v
}

func (e Event) address(field string) string {
	a, ok := e.Fields[field].(common.Address)
	if !ok {
		return ""
	}

	return strings.ToLower(a.Hex())
}

// Decoder walks the logs of one receipt yielding the ones matching a known schema. It is consumed once.
type Decoder struct {
	logs    []types.Log
	schemas map[common.Hash]Schema
	log     logrus.FieldLogger
	i       int
	cur     Event
}

// Decode returns a Decoder over the logs of r. A nil receipt yields no events.
func Decode(r *types.Receipt, schemas map[common.Hash]Schema, log logrus.FieldLogger) *Decoder {
	d := &Decoder{schemas: schemas, log: log}
	if r != nil {
		d.logs = r.Logs
	}

	if d.log == nil {
		d.log = logrus.StandardLogger()
	}

	return d
}

// Next decodes up to the next recognised log and reports whether there was one.
func (d *Decoder) Next() bool {
	for d.i < len(d.logs) {
		l := d.logs[d.i]
		d.i++

		if l.Removed || len(l.Topics) == 0 {
			continue
		}

		s, ok := d.schemas[common.HexToHash(l.Topics[0])]
		if !ok {
			continue
		}

		ev, err := decodeLog(l, s)
		if err != nil {
			d.log.WithFields(logrus.Fields{
				"contract": l.Address,
				"logIndex": l.LogIndex,
				"event":    s.Kind.String(),
			}).WithError(err).Debug("Skipping undecodable log")

			continue
		}

		d.cur = ev

		return true
	}

	return false
}

// Event returns the event decoded by the last call to Next.
func (d *Decoder) Event() Event {
	return d.cur
}

// All drains the decoder.
func (d *Decoder) All() []Event {
	var evs []Event
	for d.Next() {
		evs = append(evs, d.Event())
	}

	return evs
}

func decodeLog(l types.Log, s Schema) (Event, error) {
	indexed := make(abi.Arguments, 0, len(s.Event.Inputs))

	for _, in := range s.Event.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}

	nonIndexed := s.Event.Inputs.NonIndexed()

	if len(l.Topics) != len(indexed)+1 {
		return Event{}, fmt.Errorf("%w: %d topics, want %d", ErrTopics, len(l.Topics), len(indexed)+1)
	}

	data, err := hexutil.Decode(l.Data)
	if err != nil {
		if l.Data != "" && l.Data != "0x" {
			return Event{}, fmt.Errorf("%w: %v", ErrData, err) //nolint:errorlint // hexutil errors are not sentinels
		}

		data = nil
	}

	if len(data) != len(nonIndexed)*wordSize {
		return Event{}, fmt.Errorf("%w: %d bytes, want %d", ErrData, len(data), len(nonIndexed)*wordSize)
	}

	fields := make(map[string]interface{}, len(s.Event.Inputs))

	topics := make([]common.Hash, 0, len(indexed))
	for _, t := range l.Topics[1:] {
		if !isHash(t) {
			return Event{}, fmt.Errorf("%w: %q", ErrTopics, t)
		}

		topics = append(topics, common.HexToHash(t))
	}

	if err = abi.ParseTopicsIntoMap(fields, indexed, topics); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrTopics, err) //nolint:errorlint // keep a single sentinel
	}

	if len(nonIndexed) > 0 {
		if err = nonIndexed.UnpackIntoMap(fields, data); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrData, err) //nolint:errorlint // keep a single sentinel
		}
	}

	return Event{
		LogIndex: l.Index(),
		Kind:     s.Kind,
		Contract: strings.ToLower(l.Address),
		Fields:   fields,
	}, nil
}

func isHash(s string) bool {
	b, err := hexutil.Decode(s)

	return err == nil && len(b) == common.HashLength
}
