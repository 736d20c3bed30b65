package events

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/balproc/lib/block/types"
)

const (
	topicTransfer = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	topicApproval = "0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925"
	topicOther    = "0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1"
	contract      = "0xA34de7bD2B4270C0b12d5fD7A0C219a4D68D732F"
	alice         = "0x1cd434711fbae1f2d9c70001409fd82d71fdccaa"
	bob           = "0x7762440182222620a7435195208038708d27ee41"
	// 1000 as a 32 byte word
	thousand = "0x00000000000000000000000000000000000000000000000000000000000003e8"
)

func topicOf(addr string) string {
	return "0x000000000000000000000000" + addr[2:]
}

func TestSchemas(t *testing.T) {
	require.Len(t, Schemas, 2)

	for id, s := range Schemas {
		switch s.Kind {
		case Transfer:
			assert.Equal(t, topicTransfer, id.Hex())
		case Approval:
			assert.Equal(t, topicApproval, id.Hex())
		default:
			t.Errorf("unexpected kind %v", s.Kind)
		}
	}
}

func TestDecode(t *testing.T) {
	r := &types.Receipt{Logs: []types.Log{
		{Address: contract, Topics: []string{topicTransfer, topicOf(alice), topicOf(bob)}, Data: thousand, LogIndex: "0x0"},
		{Address: contract, Topics: []string{topicOther, topicOf(alice)}, Data: thousand, LogIndex: "0x1"},
		{Address: contract, Topics: []string{topicApproval, topicOf(bob), topicOf(alice)}, Data: thousand, LogIndex: "0x2"},
	}}

	evs := Decode(r, Schemas, nil).All()
	require.Len(t, evs, 2)

	assert.Equal(t, Transfer, evs[0].Kind)
	assert.Equal(t, "Transfer", evs[0].Name())
	assert.Equal(t, uint64(0), evs[0].LogIndex)
	assert.Equal(t, "0xa34de7bd2b4270c0b12d5fd7a0c219a4d68d732f", evs[0].Contract)
	assert.Equal(t, int64(1000), evs[0].Value().Int64())

	from, to := evs[0].Parties()
	assert.Equal(t, alice, from)
	assert.Equal(t, bob, to)

	assert.Equal(t, Approval, evs[1].Kind)
	assert.Equal(t, uint64(2), evs[1].LogIndex)

	owner, spender := evs[1].Parties()
	assert.Equal(t, bob, owner)
	assert.Equal(t, alice, spender)
}

func TestDecodeSkipsMalformed(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	r := &types.Receipt{Logs: []types.Log{
		// token id indexed as a fourth topic, as ERC721 does
		{Address: contract, Topics: []string{topicTransfer, topicOf(alice), topicOf(bob), thousand}, LogIndex: "0x0"},
		// value missing
		{Address: contract, Topics: []string{topicTransfer, topicOf(alice), topicOf(bob)}, Data: "0x", LogIndex: "0x1"},
		// value too long
		{Address: contract, Topics: []string{topicTransfer, topicOf(alice), topicOf(bob)}, Data: thousand + "00", LogIndex: "0x2"},
		// topic too short
		{Address: contract, Topics: []string{topicTransfer, alice, topicOf(bob)}, Data: thousand, LogIndex: "0x3"},
		// removed by a reorg
		{Address: contract, Topics: []string{topicTransfer, topicOf(alice), topicOf(bob)}, Data: thousand, LogIndex: "0x4", Removed: true},
		{Address: contract, Topics: nil, Data: thousand, LogIndex: "0x5"},
		{Address: contract, Topics: []string{topicTransfer, topicOf(bob), topicOf(alice)}, Data: thousand, LogIndex: "0x6"},
	}}

	d := Decode(r, Schemas, log)
	require.True(t, d.Next())
	assert.Equal(t, uint64(6), d.Event().LogIndex)

	from, to := d.Event().Parties()
	assert.Equal(t, bob, from)
	assert.Equal(t, alice, to)

	assert.False(t, d.Next())
	assert.False(t, d.Next())

	// one debug entry per malformed known log
	assert.Len(t, hook.AllEntries(), 4)

	for _, e := range hook.AllEntries() {
		assert.Equal(t, logrus.DebugLevel, e.Level)
	}
}

func TestDecodeEmpty(t *testing.T) {
	assert.False(t, Decode(nil, Schemas, nil).Next())
	assert.Empty(t, Decode(&types.Receipt{}, Schemas, nil).All())
	// no schemas, nothing recognised
	r := &types.Receipt{Logs: []types.Log{
		{Address: contract, Topics: []string{topicTransfer, topicOf(alice), topicOf(bob)}, Data: thousand},
	}}
	assert.Empty(t, Decode(r, nil, nil).All())
}

func TestDecodeOrder(t *testing.T) {
	var logs []types.Log

	for _, idx := range []string{"0x9", "0x2", "0x5"} {
		logs = append(logs, types.Log{
			Address:  contract,
			Topics:   []string{topicTransfer, topicOf(alice), topicOf(bob)},
			Data:     thousand,
			LogIndex: idx,
		})
	}

	evs := Decode(&types.Receipt{Logs: logs}, Schemas, nil).All()
	require.Len(t, evs, 3)
	// receipt order, not log index order
	assert.Equal(t, uint64(9), evs[0].LogIndex)
	assert.Equal(t, uint64(2), evs[1].LogIndex)
	assert.Equal(t, uint64(5), evs[2].LogIndex)
}

func TestParties(t *testing.T) {
	from, to := Event{Kind: Kind(7)}.Parties()
	assert.Empty(t, from)
	assert.Empty(t, to)
	assert.Equal(t, "Kind(7)", Kind(7).String())
	assert.Nil(t, Event{Kind: Transfer}.Value())

	// every indexed address of a known variant is a party
	for _, s := range Schemas {
		var indexed []string

		for _, in := range s.Event.Inputs {
			if in.Indexed {
				indexed = append(indexed, in.Name)
			}
		}

		switch s.Kind {
		case Transfer:
			assert.Equal(t, []string{"from", "to"}, indexed)
		case Approval:
			assert.Equal(t, []string{"owner", "spender"}, indexed)
		}
	}
}
