package tax

import (
	"fmt"
	"iter"
)

// DeltaGroup is the set of deltas belonging to one logical transaction: the
// acquisition(s) plus the dispositions and fees that economically support
// them. Groups own their members outright; there is no shared adjacency
// structure to keep consistent.
type DeltaGroup struct {
	Ins  []Delta `json:"ins"`
	Outs []Delta `json:"outs"`
}

// Timestamp is the group's anchor: the latest timestamp over all members.
// The In is the anchor event; earlier Outs (like fail gas) fold into its
// cost basis at this time.
func (g *DeltaGroup) Timestamp() int64 {
	var max int64
	for d := range g.All() {
		if d.Timestamp > max {
			max = d.Timestamp
		}
	}
	return max
}

// All iterates over the group's deltas, ins first then outs.
func (g *DeltaGroup) All() iter.Seq[Delta] {
	return func(yield func(Delta) bool) {
		for _, d := range g.Ins {
			if !yield(d) {
				return
			}
		}
		for _, d := range g.Outs {
			if !yield(d) {
				return
			}
		}
	}
}

// validate enforces the group shape invariants: at most two Ins, and a 2-In
// group only for liquidity-management kinds (pool mint/burn/fee-claim),
// where the position token and its underlying leg legitimately arrive
// together.
func (g *DeltaGroup) validate() error {
	if len(g.Ins) > 2 {
		return fmt.Errorf("%w: group with %d ins (identifier %q)", ErrDataIntegrity, len(g.Ins), g.Ins[0].Identifier)
	}
	if len(g.Ins) == 2 {
		for _, d := range g.Ins {
			switch d.Kind {
			case ManageLiquidity, RemoveLiquidity, SwapFees:
			default:
				return fmt.Errorf("%w: 2-in group with non-liquidity kind %s (identifier %q)",
					ErrDataIntegrity, d.Kind, d.Identifier)
			}
		}
	}
	return nil
}

// LinkedDeltas is the full linking result: every input delta in exactly one
// group, groups sorted ascending by anchor timestamp.
type LinkedDeltas []DeltaGroup

// UsedAssets returns the distinct fungible assets in the linked set, in
// first-seen order, skipping synthetic position assets.
func (ld LinkedDeltas) UsedAssets() []string {
	var uas []string
	seen := make(map[string]struct{})
	for i := range ld {
		for d := range ld[i].All() {
			if IsLiquidityPosition(d.Asset) {
				continue
			}
			if _, ok := seen[d.Asset]; !ok {
				seen[d.Asset] = struct{}{}
				uas = append(uas, d.Asset)
			}
		}
	}
	return uas
}

// Validate re-checks the structural invariants of every group. Loading a
// linked file from disk goes through this before replay.
func (ld LinkedDeltas) Validate() error {
	for i := range ld {
		if err := ld[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

// DispositionLinks summarizes how many Outs ended up supported by an In and
// what was left standalone. Informational only, never halts processing.
type DispositionLinks struct {
	Linked   int
	Unlinked int
	// UnlinkedKinds is the set of kinds that appear in standalone groups.
	UnlinkedKinds map[Kind]struct{}
	// UnlinkedQty totals the standalone quantity per asset, excluding the
	// kinds that legitimately stand alone for valuation (repackaging and
	// bank withdrawals).
	UnlinkedQty map[string]Quantity
}

// DispositionLinks computes the link diagnostic over the full set.
func (ld LinkedDeltas) DispositionLinks() DispositionLinks {
	dl := DispositionLinks{
		UnlinkedKinds: make(map[Kind]struct{}),
		UnlinkedQty:   make(map[string]Quantity),
	}
	for i := range ld {
		g := &ld[i]
		for _, out := range g.Outs {
			if len(g.Ins) > 0 {
				dl.Linked++
				continue
			}
			dl.Unlinked++
			dl.UnlinkedKinds[out.Kind] = struct{}{}
			switch out.Kind {
			case UnwrapEth, WrapEth, WithdrawalToBank, WithdrawalFee, ChangeMakerVault:
			default:
				dl.UnlinkedQty[out.Asset] = dl.UnlinkedQty[out.Asset].Add(out.Qty)
			}
		}
	}
	return dl
}
