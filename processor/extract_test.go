package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/balproc/lib/block/types"
)

func TestExtractNoKnownEvents(t *testing.T) {
	tx := &types.Trans{Hash: txHash, From: addrA, To: "0x7762440182222620A7435195208038708D27EE41"}
	r := &types.Receipt{Logs: []types.Log{
		{Address: tokenC, Topics: []string{"0x1c411e9a96e071241c2f21f7726b17ae89e3cab4c78be50e062b03a9fffbbad1"}, Data: word1000},
	}}

	cands := Extract(tx, r, nil)
	require.Len(t, cands, 2)
	assert.Equal(t, addrA, cands[0].Address)
	assert.Equal(t, addrB, cands[1].Address)

	for _, c := range cands {
		assert.Empty(t, c.TokenList())
	}
}

func TestExtractMergesTokens(t *testing.T) {
	tx := &types.Trans{Hash: txHash, From: addrB, To: tokenC}
	r := &types.Receipt{Logs: []types.Log{
		transferLog(tokenC, addrA, addrB, "0x0"),
		transferLog(tokenD, addrX, addrA, "0x1"),
		transferLog(tokenC, addrA, addrX, "0x2"),
		{Address: tokenD, Topics: []string{topicApp, topicOf(addrA), topicOf(addrB)}, Data: word1000, LogIndex: "0x3"},
	}}

	cands := Extract(tx, r, nil)
	require.Len(t, cands, 4)

	// first appearance order, transaction addresses last
	assert.Equal(t, addrA, cands[0].Address)
	assert.Equal(t, addrB, cands[1].Address)
	assert.Equal(t, addrX, cands[2].Address)
	assert.Equal(t, tokenC, cands[3].Address)

	// same address under two contracts: both exactly once
	assert.Equal(t, []string{tokenC, tokenD}, cands[0].TokenList())
	assert.Equal(t, 2, cands[0].Tokens.Cardinality())
	// the transaction sender keeps its event tokens
	assert.Equal(t, []string{tokenC, tokenD}, cands[1].TokenList())
	assert.Equal(t, []string{tokenC, tokenD}, cands[2].TokenList())
	assert.Empty(t, cands[3].TokenList())
}

func TestExtractNoDuplicates(t *testing.T) {
	tx := &types.Trans{Hash: txHash, From: addrA, To: addrA}
	r := &types.Receipt{Logs: []types.Log{
		transferLog(tokenC, addrA, addrA, "0x0"),
		transferLog(tokenC, "0x1CD434711FBAE1F2D9C70001409FD82D71FDCCAA", addrA, "0x1"),
	}}

	cands := Extract(tx, r, nil)
	require.Len(t, cands, 1)
	assert.Equal(t, []string{tokenC}, cands[0].TokenList())
}

func TestExtractMissing(t *testing.T) {
	r := &types.Receipt{Logs: []types.Log{transferLog(tokenC, addrA, addrB, "0x0")}}

	assert.Empty(t, Extract(nil, r, nil))

	// pending transaction: no receipt yet
	cands := Extract(&types.Trans{From: addrA, To: addrB}, nil, nil)
	require.Len(t, cands, 2)
	assert.Equal(t, addrA, cands[0].Address)
	assert.Equal(t, addrB, cands[1].Address)

	// contract creation has no recipient
	cands = Extract(&types.Trans{From: addrA}, nil, nil)
	require.Len(t, cands, 1)
}

func TestTokenListNil(t *testing.T) {
	assert.Nil(t, Candidate{Address: addrA}.TokenList())
}
