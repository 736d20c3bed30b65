package processor

import (
	"sort"

	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"

	"github.com/tarancss/balproc/lib/block/events"
	"github.com/tarancss/balproc/lib/block/types"
	"github.com/tarancss/balproc/lib/util"
)

// Candidate is an address involved in a transaction together with the token contracts it appeared under.
type Candidate struct {
	Address string
	Tokens  mapset.Set // of token contract addresses (string)
}

// TokenList returns the token contracts of the candidate sorted.
func (c Candidate) TokenList() []string {
	if c.Tokens == nil {
		return nil
	}

	ts := make([]string, 0, c.Tokens.Cardinality())
	for _, t := range c.Tokens.ToSlice() {
		ts = append(ts, t.(string)) //nolint:forcetypeassert // only strings are added
	}

	sort.Strings(ts)

	return ts
}

type collector struct {
	idx   map[string]int
	cands []Candidate
}

// add registers addr, merging token into its set. An empty token only registers the address.
func (c *collector) add(addr, token string) {
	if addr = util.NormAddress(addr); addr == "" {
		return
	}

	i, ok := c.idx[addr]
	if !ok {
		c.cands = append(c.cands, Candidate{Address: addr, Tokens: mapset.NewThreadUnsafeSet()})
		i = len(c.cands) - 1
		c.idx[addr] = i
	}

	if token != "" {
		c.cands[i].Tokens.Add(util.NormAddress(token))
	}
}

// Extract returns the de-duplicated addresses involved in the transaction. The parties of every known event in the
// receipt come first, in log order, each annotated with the contract that emitted the event; the transaction sender
// and recipient follow when not already present. A nil receipt contributes no events and a nil transaction yields
// no candidates.
func Extract(tx *types.Trans, r *types.Receipt, log logrus.FieldLogger) []Candidate {
	if tx == nil {
		return nil
	}

	c := collector{idx: make(map[string]int)}

	d := events.Decode(r, events.Schemas, log)
	for d.Next() {
		ev := d.Event()
		from, to := ev.Parties()
		c.add(from, ev.Contract)
		c.add(to, ev.Contract)
	}

	c.add(tx.From, "")
	c.add(tx.To, "")

	return c.cands
}
