package tax

import (
	"encoding/json"
	"fmt"
)

// Lot is a tranche of a held asset: a quantity acquired at one moment for
// one all-in cost. Dispositions consume lots and carry away a proportional
// share of the cost.
//
// A lot with negative Qty and zero Cost is a deficit placeholder: units
// were disposed before their acquisition was seen, and the next acquisition
// of the asset must absorb it.
type Lot struct {
	Timestamp  int64    // ms epoch of acquisition
	Qty        Quantity
	Cost       Money
	Host       Host
	Identifier string
}

// remove splits off qty units from the lot, carrying cost pro rata.
// It returns the consumed part and the remainder; the remainder's Qty is
// zero when the lot is exhausted exactly.
func (l Lot) remove(qty Quantity) (consumed, remainder Lot) {
	if qty.GreaterThan(l.Qty) {
		panic(fmt.Sprintf("removing %s from a lot of %s", qty, l.Qty))
	}
	share := l.Cost.Mul(qty).Div(l.Qty)
	consumed = Lot{
		Timestamp:  l.Timestamp,
		Qty:        qty,
		Cost:       share,
		Host:       l.Host,
		Identifier: l.Identifier,
	}
	remainder = Lot{
		Timestamp:  l.Timestamp,
		Qty:        l.Qty.Sub(qty),
		Cost:       l.Cost.Sub(share),
		Host:       l.Host,
		Identifier: l.Identifier,
	}
	return consumed, remainder
}

// IsDeficit reports whether the lot is a deficit placeholder.
func (l Lot) IsDeficit() bool { return l.Qty.IsNegative() }

// Age returns how long the lot has been held as of ts, in milliseconds.
func (l Lot) Age(ts int64) int64 { return ts - l.Timestamp }

// MarshalJSON writes the lot with a stable field order. Host and
// identifier are elided when empty so deficit placeholders stay compact.
func (l Lot) MarshalJSON() ([]byte, error) {
	w := &jsonObjectWriter{}
	w.Append("timestamp", l.Timestamp)
	w.Append("qty", l.Qty)
	w.Append("cost", l.Cost)
	w.Optional("host", string(l.Host))
	w.Optional("identifier", l.Identifier)
	return w.MarshalJSON()
}

func (l *Lot) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp  int64    `json:"timestamp"`
		Qty        Quantity `json:"qty"`
		Cost       Money    `json:"cost"`
		Host       Host     `json:"host"`
		Identifier string   `json:"identifier"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = Lot(raw)
	return nil
}

// newDeficitLot records qty units disposed without a matching holding.
func newDeficitLot(qty Quantity, cur string) Lot {
	return Lot{
		Timestamp: 0,
		Qty:       qty.Neg(),
		Cost:      Money{cur: cur},
	}
}
