package tax

import "errors"

// The package distinguishes two fatal error classes. Both abort a run: the
// only tolerated recovery anywhere is the bounded deficit placeholder in
// Inventory.Apply.
var (
	// ErrDataIntegrity marks invariant violations in the event data itself:
	// an unmatched Out of a non-terminal kind, a direction or kind assertion
	// failure, a negative cost basis, an oversized deficit placeholder.
	ErrDataIntegrity = errors.New("data integrity")

	// ErrLookup marks incomplete input: a missing price bucket or an asset
	// the oracle has never heard of. Prices are never defaulted.
	ErrLookup = errors.New("lookup")
)
