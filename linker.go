package tax

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Linker partitions an unordered delta set into DeltaGroups: each Out is
// attached to the In group it economically supports, via matching passes
// tried in strict priority order. The first pass that succeeds wins; there
// is no backtracking, and no Out is ever placed twice.
type Linker struct {
	log      *zap.Logger
	matchers map[Host]venueMatcher
}

// NewLinker returns a linker with the built-in venue matchers registered.
// A nil logger silences diagnostics.
func NewLinker(log *zap.Logger) *Linker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Linker{
		log: log,
		matchers: map[Host]venueMatcher{
			Kucoin:         kucoinMatcher{},
			DydxSoloMargin: dydxMatcher{},
		},
	}
}

// terminalKinds are the only kinds allowed to reach pass G and stand alone.
// They are pure losses or transfers with nothing to attach to. Anything
// else stranding there means the input is incomplete or the heuristics
// missed, and the run must abort rather than misclassify.
var terminalKinds = map[Kind]struct{}{
	ApproveGas: {}, BridgeFee: {}, BridgeGas: {},
	CoinbaseCalculationDiscrepancy: {}, CoinbaseDepositGas: {},
	CoinbaseDiscovery: {}, DelegateGas: {}, DepositDiscrepancy: {},
	Erc20TransferFailGas: {}, Loss: {}, MalformedTxGas: {},
	ManageLiquidityFailGas: {}, ManageLiquidityGas: {},
	Payment: {}, PaymentGas: {}, RewardClaimFailGas: {},
	SwapFailGas: {}, WalletToWalletGas: {},
	WithdrawalFee: {}, WithdrawalToBank: {},
}

// passCTargets maps a failure/gas/no-op Out kind to the In kinds its
// transaction could have been, in lookup order. First kind with any
// candidate wins.
func passCTargets(k Kind) []Kind {
	switch k {
	case SwapFailGas, EmptyTransaction, ApproveFailGas, WrapEthFailGas, UnwrapEthFailGas:
		return []Kind{Swap, ManageLiquidity}
	case ManageLiquidityFailGas:
		return []Kind{ManageLiquidity}
	}
	return nil
}

type inRef struct {
	id string
	ts int64
}

type accountKind struct {
	account string
	kind    Kind
}

// linkIndex holds the lookup structures built over the In groups. It is
// exclusively owned by one Link call.
type linkIndex struct {
	groups        map[string]*DeltaGroup
	sortedIDs     []string // group identifiers in lexical order
	byTimestamp   map[int64][]string
	byAccountKind map[accountKind][]inRef
	// tradeMatches indexes custodial-exchange "Match" Ins per venue, in
	// input order.
	tradeMatches map[Host][]inRef
	// marginDeposits indexes margin-venue deposit In groups per account, in
	// input order.
	marginDeposits map[string][]string
}

// venueMatcher is the extension point for per-exchange matching quirks.
// Each custodial or margin venue with bespoke rules implements the same
// two-lookup contract against the shared index.
type venueMatcher interface {
	// FindFee returns the group that should absorb a trade-fee Out, or
	// false when the venue has no fee rule or no candidate.
	FindFee(out Delta, idx *linkIndex) (string, bool)
	// FindCounterLeg returns the group holding the In that an account-level
	// Out (like a margin withdrawal) corresponds to.
	FindCounterLeg(out Delta, idx *linkIndex) (string, bool)
}

// kucoinMatcher attaches Kucoin trade fees to the nearest same-venue trade
// match within progressively widening time windows. Kucoin reports fees on
// their own rows with order ids that never equal the trade's, so time
// proximity is the only usable key.
type kucoinMatcher struct{}

var kucoinFeeWindowsMS = []int64{1000, 5000, 10000, 60000}

func (kucoinMatcher) FindFee(out Delta, idx *linkIndex) (string, bool) {
	for _, tolerance := range kucoinFeeWindowsMS {
		var bestID string
		var bestDiff int64 = -1
		for _, ref := range idx.tradeMatches[Kucoin] {
			diff := ref.ts - out.Timestamp
			if diff < 0 {
				diff = -diff
			}
			if diff > tolerance {
				continue
			}
			if hasTradeFeeOut(idx.groups[ref.id]) {
				continue
			}
			// nearest in time; exact ties break on identifier order to stay
			// deterministic.
			if bestDiff < 0 || diff < bestDiff || (diff == bestDiff && ref.id < bestID) {
				bestID, bestDiff = ref.id, diff
			}
		}
		if bestDiff >= 0 {
			return bestID, true
		}
	}
	return "", false
}

func (kucoinMatcher) FindCounterLeg(Delta, *linkIndex) (string, bool) { return "", false }

func hasTradeFeeOut(g *DeltaGroup) bool {
	for _, d := range g.Outs {
		if d.Kind == TradeFee {
			return true
		}
	}
	return false
}

// dydxMatcher pairs a solo-margin withdrawal with any not-yet-consumed
// deposit In on the same account.
type dydxMatcher struct{}

func (dydxMatcher) FindFee(Delta, *linkIndex) (string, bool) { return "", false }

func (dydxMatcher) FindCounterLeg(out Delta, idx *linkIndex) (string, bool) {
	if out.Kind != DydxWithdraw {
		return "", false
	}
	for _, id := range idx.marginDeposits[out.Account] {
		if _, ok := idx.groups[id]; ok {
			return id, true
		}
	}
	return "", false
}

// linkStats counts placements per pass, for diagnostics only.
type linkStats struct {
	passA, passB, passC, passD, passE, passF, standalone int
}

// Link groups the deltas. Ins-first algorithm:
//
//	step 1: separate Ins and Outs, group Ins by identifier
//	step 2: build indexes on the In groups
//	step 3: place each Out into the best matching In group (passes A-G)
//	step 4: collect, sort by anchor timestamp, validate
func (l *Linker) Link(ds Deltas) (LinkedDeltas, error) {
	for _, d := range ds {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}

	// Step 1: separate Ins and Outs, group Ins by identifier.
	idx := &linkIndex{
		groups:         make(map[string]*DeltaGroup),
		byTimestamp:    make(map[int64][]string),
		byAccountKind:  make(map[accountKind][]inRef),
		tradeMatches:   make(map[Host][]inRef),
		marginDeposits: make(map[string][]string),
	}
	var outs []Delta
	inCount := 0
	for _, d := range ds {
		if d.Direction != In {
			outs = append(outs, d)
			continue
		}
		inCount++
		g, ok := idx.groups[d.Identifier]
		if !ok {
			g = &DeltaGroup{}
			idx.groups[d.Identifier] = g
			idx.sortedIDs = append(idx.sortedIDs, d.Identifier)
		}
		g.Ins = append(g.Ins, d)
	}
	sort.Strings(idx.sortedIDs)
	l.log.Info("linker: grouped ins",
		zap.Int("ins", inCount),
		zap.Int("groups", len(idx.groups)),
		zap.Int("outs", len(outs)))

	// Step 2: build indexes, iterating Ins in input order so that
	// first-encountered tie-breaks are deterministic.
	for _, d := range ds {
		if d.Direction != In {
			continue
		}
		ref := inRef{id: d.Identifier, ts: d.Timestamp}
		idx.byTimestamp[d.Timestamp] = append(idx.byTimestamp[d.Timestamp], d.Identifier)
		key := accountKind{account: d.Account, kind: d.Kind}
		idx.byAccountKind[key] = append(idx.byAccountKind[key], ref)
		if d.Kind == Match && d.Host.IsCustodialExchange() {
			idx.tradeMatches[d.Host] = append(idx.tradeMatches[d.Host], ref)
		}
		if d.Kind == DydxDeposit {
			idx.marginDeposits[d.Account] = append(idx.marginDeposits[d.Account], d.Identifier)
		}
	}

	// Step 3: place each Out.
	var stats linkStats
	var standalone []DeltaGroup
	for _, out := range outs {
		switch {
		case l.passA(out, idx):
			stats.passA++
		case l.passB(out, idx):
			stats.passB++
		case l.passC(out, idx):
			stats.passC++
		case l.passD(out, idx):
			stats.passD++
		case l.passE(out, idx):
			stats.passE++
		case l.passF(out, idx):
			stats.passF++
		default:
			if _, ok := terminalKinds[out.Kind]; !ok {
				return nil, fmt.Errorf("%w: out should have matched an in but ended up stranded: %s %s %s qty %s identifier %q",
					ErrDataIntegrity, out.Kind, out.Host, out.Asset, out.Qty, out.Identifier)
			}
			l.log.Debug("linker: unmatched out",
				zap.String("kind", string(out.Kind)),
				zap.String("host", string(out.Host)),
				zap.String("asset", out.Asset),
				zap.String("qty", out.Qty.String()),
				zap.String("identifier", out.Identifier))
			standalone = append(standalone, DeltaGroup{Outs: []Delta{out}})
			stats.standalone++
		}
	}
	l.log.Info("linker: placed outs",
		zap.Int("passA_exact_identifier", stats.passA),
		zap.Int("passB_identifier_prefix", stats.passB),
		zap.Int("passC_account_kind", stats.passC),
		zap.Int("passD_same_timestamp", stats.passD),
		zap.Int("passE_venue_fee", stats.passE),
		zap.Int("passF_margin_account", stats.passF),
		zap.Int("standalone", stats.standalone))

	// Step 4: collect (group identifier order first, then standalone in
	// input order), sort by anchor timestamp, validate.
	result := make(LinkedDeltas, 0, len(idx.groups)+len(standalone))
	for _, id := range idx.sortedIDs {
		result = append(result, *idx.groups[id])
	}
	result = append(result, standalone...)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp() < result[j].Timestamp()
	})

	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// passA: exact identifier match.
func (l *Linker) passA(out Delta, idx *linkIndex) bool {
	g, ok := idx.groups[out.Identifier]
	if !ok {
		return false
	}
	g.Outs = append(g.Outs, out)
	return true
}

// passB: the Out's identifier is a strict prefix of the lexicographically
// nearest group identifier. Composite keys truncate the correlation id on
// some exports, so the full id of the In is the only superstring candidate
// worth considering.
func (l *Linker) passB(out Delta, idx *linkIndex) bool {
	i := sort.SearchStrings(idx.sortedIDs, out.Identifier)
	if i >= len(idx.sortedIDs) {
		return false
	}
	id := idx.sortedIDs[i]
	if id == out.Identifier || !strings.HasPrefix(id, out.Identifier) {
		return false
	}
	idx.groups[id].Outs = append(idx.groups[id].Outs, out)
	return true
}

// passC: account-based matching for gas/fail/no-op kinds. Find the nearest
// In of a corresponding success kind on the same account, at or after the
// Out's timestamp. Target kinds are tried in order; the first kind with any
// candidate wins.
func (l *Linker) passC(out Delta, idx *linkIndex) bool {
	for _, target := range passCTargets(out.Kind) {
		var bestID string
		var bestDelta int64 = -1
		for _, ref := range idx.byAccountKind[accountKind{account: out.Account, kind: target}] {
			if ref.ts < out.Timestamp {
				continue
			}
			delta := ref.ts - out.Timestamp
			if bestDelta < 0 || delta < bestDelta || (delta == bestDelta && ref.id < bestID) {
				bestID, bestDelta = ref.id, delta
			}
		}
		if bestDelta >= 0 {
			g := idx.groups[bestID]
			g.Outs = append(g.Outs, out)
			return true
		}
	}
	return false
}

// passD: direct miner payments share their swap's exact timestamp but carry
// a bundle hash, not the transaction hash. Attach to any In group at the
// identical timestamp containing a Swap In.
func (l *Linker) passD(out Delta, idx *linkIndex) bool {
	if out.Kind != PayMinerDireclty && out.Kind != PayMinerDirecltyGas {
		return false
	}
	for _, id := range idx.byTimestamp[out.Timestamp] {
		g := idx.groups[id]
		for _, in := range g.Ins {
			if in.Kind == Swap {
				g.Outs = append(g.Outs, out)
				return true
			}
		}
	}
	return false
}

// passE: venue-specific trade-fee matching.
func (l *Linker) passE(out Delta, idx *linkIndex) bool {
	if out.Kind != TradeFee {
		return false
	}
	m, ok := l.matchers[out.Host]
	if !ok {
		return false
	}
	id, ok := m.FindFee(out, idx)
	if !ok {
		return false
	}
	idx.groups[id].Outs = append(idx.groups[id].Outs, out)
	return true
}

// passF: venue-specific account-correlated counter leg (margin withdraw to
// deposit).
func (l *Linker) passF(out Delta, idx *linkIndex) bool {
	m, ok := l.matchers[out.Host]
	if !ok {
		return false
	}
	id, ok := m.FindCounterLeg(out, idx)
	if !ok {
		return false
	}
	idx.groups[id].Outs = append(idx.groups[id].Outs, out)
	return true
}
