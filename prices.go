package tax

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

// Granularity is the bucket width of a price history.
type Granularity string

const (
	M15 Granularity = "M15"
	H1  Granularity = "H1"
	D1  Granularity = "D1"
)

// Seconds returns the bucket width in seconds.
func (g Granularity) Seconds() int64 {
	switch g {
	case M15:
		return 900
	case H1:
		return 3600
	case D1:
		return 86400
	}
	return 0
}

func (g Granularity) truncate(t time.Time) time.Time {
	return t.Truncate(time.Duration(g.Seconds()) * time.Second)
}

// Prices is the price oracle: per asset, a map from RFC3339 bucket start to
// the price in the run's quote currency. Lookups are deterministic and
// idempotent; the linker, valuator and inventory all query the same (asset,
// timestamp) pairs repeatedly and must see identical answers.
type Prices struct {
	Granularity Granularity                           `json:"granularity"`
	Map         map[string]map[string]decimal.Decimal `json:"map"`
}

// Bucket floors a ms timestamp to the oracle's bucket key.
func (p *Prices) Bucket(ms int64) string {
	t := p.Granularity.truncate(time.UnixMilli(ms).UTC())
	return t.Format("2006-01-02T15:04:05Z")
}

// PriceAt returns the price of asset at the bucket containing the ms
// timestamp. Missing data is fatal, never defaulted: a silently zeroed
// price would flow straight into cost basis.
func (p *Prices) PriceAt(asset string, ms int64) (decimal.Decimal, error) {
	history, ok := p.Map[asset]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: no price history for %q", ErrLookup, asset)
	}
	bucket := p.Bucket(ms)
	price, ok := history[bucket]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: no %s price for %q at %s", ErrLookup, p.Granularity, asset, bucket)
	}
	return price, nil
}

// Patch fills missing buckets of every asset in p within [inclStart,
// exclEnd) ms from another price source. Only gaps are filled, existing
// buckets always win.
func (p *Prices) Patch(other *Prices, inclStartMS, exclEndMS int64) {
	var patched, cantPatch int

	var needed []string
	step := p.Granularity.Seconds() * 1000
	for ms := inclStartMS; ms < exclEndMS; ms += step {
		needed = append(needed, p.Bucket(ms))
	}

	for asset := range other.Map {
		if _, ok := p.Map[asset]; !ok {
			p.Map[asset] = make(map[string]decimal.Decimal)
		}
	}

	for asset, history := range p.Map {
		for _, key := range needed {
			if _, ok := history[key]; ok {
				continue
			}
			if price, ok := other.Map[asset][key]; ok {
				log.Printf("patch: %s, %s, %s", asset, key, price)
				history[key] = price
				patched++
			} else {
				log.Printf("can't patch: %s, %s", asset, key)
				cantPatch++
			}
		}
	}
	log.Printf("total patched: %d (unpatchable: %d)", patched, cantPatch)
}

// LoadPricesDir reads one daily price file per asset from dir. Each file is
// a JSON object of RFC3339 day start to price. Assets without a file are
// skipped with a notice; they fail later, at lookup time, only if actually
// needed.
func LoadPricesDir(dir string, assets []string) (*Prices, error) {
	m := make(map[string]map[string]decimal.Decimal)

	for _, asset := range assets {
		path := filepath.Join(dir, asset+".json")
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("skipped: %s", asset)
			continue
		}
		var history map[string]decimal.Decimal
		if err := json.Unmarshal(data, &history); err != nil {
			return nil, fmt.Errorf("cannot parse price file %q: %w", path, err)
		}
		m[asset] = history
	}
	return &Prices{Granularity: D1, Map: m}, nil
}

// Candle is one OHLCV bar, persisted as the array
// [timestampSeconds, open, high, low, close, volume].
type Candle struct {
	Timestamp int64 // seconds epoch
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

func (c *Candle) UnmarshalJSON(data []byte) error {
	var fields [6]json.Number
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	ts, err := fields[0].Int64()
	if err != nil {
		return fmt.Errorf("candle timestamp: %w", err)
	}
	c.Timestamp = ts
	for i, dst := range []*decimal.Decimal{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
		d, err := decimal.NewFromString(fields[i+1].String())
		if err != nil {
			return fmt.Errorf("candle field %d: %w", i+1, err)
		}
		*dst = d
	}
	return nil
}

func (c Candle) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume})
}

// MidPrice is the (high+low)/2 price the oracle stores for a candle.
func (c Candle) MidPrice() decimal.Decimal {
	return c.High.Add(c.Low).Div(decimal.NewFromInt(2))
}

// LoadCandlesDir reads per-asset candle files named {asset}-{quote}.json and
// builds an oracle from their mid prices. The granularity is inferred from
// the smallest spacing between consecutive candles across all files.
func LoadCandlesDir(dir, quoteAsset string, baseAssets []string) (*Prices, error) {
	m := make(map[string]map[string]decimal.Decimal)
	minDiff := int64(-1)

	for _, asset := range baseAssets {
		path := filepath.Join(dir, fmt.Sprintf("%s-%s.json", asset, quoteAsset))
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("skipped: %s", asset)
			continue
		}
		var candles []Candle
		if err := json.Unmarshal(data, &candles); err != nil {
			return nil, fmt.Errorf("cannot parse candle file %q: %w", path, err)
		}

		history := make(map[string]decimal.Decimal, len(candles))
		var lastTS int64
		for _, c := range candles {
			if diff := c.Timestamp - lastTS; minDiff < 0 || diff < minDiff {
				minDiff = diff
			}
			lastTS = c.Timestamp
			bucket := time.Unix(c.Timestamp, 0).UTC().Format("2006-01-02T15:04:05Z")
			history[bucket] = c.MidPrice()
		}
		m[asset] = history
	}

	var granularity Granularity
	switch minDiff {
	case M15.Seconds():
		granularity = M15
	case H1.Seconds():
		granularity = H1
	case D1.Seconds():
		granularity = D1
	default:
		return nil, fmt.Errorf("%w: cannot infer granularity from candle spacing %ds", ErrLookup, minDiff)
	}
	return &Prices{Granularity: granularity, Map: m}, nil
}
