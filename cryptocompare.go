package tax

import (
	"fmt"
	"net/url"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
)

// cryptocompare.com daily OHLC backfill, for plugging holes in the local
// price histories via Prices.Patch.

const cryptoCompareHistoDay = "https://min-api.cryptocompare.com/data/v2/histoday"

/*
	{
	    "Response": "Success",
	    "Data": {
	        "TimeFrom": 1672531200,
	        "TimeTo": 1680307200,
	        "Data": [
	            {
	                "time": 1672531200,
	                "high": 16624.31,
	                "low": 16490.06,
	                "open": 16537.16,
	                "close": 16611.63,
	                "volumefrom": 10288.14,
	                "volumeto": 170365187.51
	            }
	        ]
	    }
	}
*/

// FetchDayPrices pulls one daily close series per base asset, covering
// [inclStartMS, exclEndMS), and returns them as a D1 oracle. The per-day
// price is the OHLC average, not the close: a whole day's bucket serves
// deltas spread across that day, and the average is the less biased
// stand-in.
func FetchDayPrices(quoteAsset string, baseAssets []string, inclStartMS, exclEndMS int64) (*Prices, error) {
	client := cachedClient()
	p := &Prices{Granularity: D1, Map: make(map[string]map[string]decimal.Decimal)}

	days := (exclEndMS - inclStartMS) / 86400000
	if days <= 0 {
		return nil, fmt.Errorf("empty fetch window [%d, %d)", inclStartMS, exclEndMS)
	}

	for _, asset := range baseAssets {
		addr := fmt.Sprintf("%s?fsym=%s&tsym=%s&limit=%d&toTs=%d",
			cryptoCompareHistoDay, url.QueryEscape(asset), url.QueryEscape(quoteAsset), days, exclEndMS/1000)

		var jobj any
		if err := getJSON(client, addr, &jobj); err != nil {
			return nil, fmt.Errorf("error in wget %q: %w", asset, err)
		}
		if status, _ := jsonpath.Get("$.Response", jobj); status != "Success" {
			msg, _ := jsonpath.Get("$.Message", jobj)
			return nil, fmt.Errorf("%w: histoday %q: %v", ErrLookup, asset, msg)
		}
		jval, err := jsonpath.Get("$.Data.Data", jobj)
		if err != nil {
			return nil, fmt.Errorf("error parsing %q: %q %w", asset, "$.Data.Data", err)
		}
		rows, ok := jval.([]any)
		if !ok {
			return nil, fmt.Errorf("error parsing %q: $.Data.Data is %T, not a list", asset, jval)
		}

		history := make(map[string]decimal.Decimal)
		for _, row := range rows {
			ts, err := jfloat(row, "$.time")
			if err != nil {
				return nil, fmt.Errorf("error parsing %q: %w", asset, err)
			}
			ms := int64(ts) * 1000
			if ms < inclStartMS || ms >= exclEndMS {
				continue
			}
			var sum float64
			for _, field := range []string{"$.open", "$.high", "$.low", "$.close"} {
				v, err := jfloat(row, field)
				if err != nil {
					return nil, fmt.Errorf("error parsing %q: %w", asset, err)
				}
				sum += v
			}
			history[p.Bucket(ms)] = decimal.NewFromFloat(sum / 4)
		}
		p.Map[asset] = history
	}
	return p, nil
}

func jfloat(jobj any, path string) (float64, error) {
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return 0, fmt.Errorf("%q %w", path, err)
	}
	// jsonpath is never clear about whether it returns a list of 1 answer
	// or a single answer; keep the first one if any
	if jlist, ok := jval.([]any); ok && len(jlist) > 0 {
		jval = jlist[0]
	}
	val, ok := jval.(float64)
	if !ok {
		return 0, fmt.Errorf("%q is %T, not a number", path, jval)
	}
	return val, nil
}
