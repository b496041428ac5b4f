// Package tax reconstructs an economic ledger from raw asset-movement
// events ("deltas") and computes cost basis, income, and realized capital
// gains under configurable tax-lot accounting conventions.
//
// The core pipeline:
//   - Linker: groups raw acquisition (In) and disposition (Out) deltas into
//     transaction-level DeltaGroups via a multi-pass heuristic matcher.
//   - Group valuation: pure functions over a DeltaGroup and a price oracle
//     deriving per-delta cost, income, and revenue.
//   - Inventory: replays the chronological group stream against per-asset
//     lot lists, consuming lots FIFO, LIFO, or specific-identification and
//     realizing short/long-term gains. A ConsolidatedInventory variant
//     implements average-cost accounting for jurisdictions without per-lot
//     tracking.
//
// All quantities and monetary amounts are exact decimals. Runs are
// single-threaded batch replays over a fully materialized delta set, in one
// quote currency. Any invariant violation aborts the run: a misclassified
// disposition corrupts tax output, so the package fails loudly instead of
// recovering.
//
// This package serves as the foundational logic for the `taxcalc`
// command-line tool.
package tax
