// Package listing defines the value objects shared by the ingestion engine:
// observed listing records, persisted listing state, and the change verdicts
// computed between the two.
package listing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags how a listing is offered for sale.
type Kind string

const (
	KindBuyNow  Kind = "buy_now"
	KindAuction Kind = "auction"
	KindUnknown Kind = "unknown"
)

// Verdict classifies one observation against the previously stored state.
type Verdict string

const (
	VerdictNew       Verdict = "new"
	VerdictPriceDrop Verdict = "price_drop"
	VerdictUnchanged Verdict = "unchanged"
)

// Record is a single observation of a listing. Price fields are in the
// reference currency; nil means the value could not be derived.
type Record struct {
	Key      string
	Source   string
	Title    string
	URL      string
	Kind     Kind
	Price    *decimal.Decimal
	Shipping *decimal.Decimal
	Total    *decimal.Decimal
	SeenAt   time.Time
	ThumbURL string
}

// State is the latest-known row per key. Rows are only mutated through the
// store's upsert and never deleted by the engine.
type State struct {
	Key          string
	Source       string
	Title        string
	URL          string
	Kind         Kind
	LastPrice    *decimal.Decimal
	LastShipping *decimal.Decimal
	LastTotal    *decimal.Decimal
	FirstSeen    time.Time
	LastSeen     time.Time
}

// PricePoint is one append-only history entry.
type PricePoint struct {
	SeenAt time.Time
	Price  decimal.Decimal
}

// SumTotal combines item price and shipping cost. A total is never fabricated:
// when both inputs are unknown the total stays unknown rather than zero.
func SumTotal(price, shipping *decimal.Decimal) *decimal.Decimal {
	if price == nil && shipping == nil {
		return nil
	}
	total := decimal.Zero
	if price != nil {
		total = total.Add(*price)
	}
	if shipping != nil {
		total = total.Add(*shipping)
	}
	total = total.Round(2)
	return &total
}

// HistoryPrice selects the value recorded into price history for an
// observation: the total when known, otherwise the bare item price, otherwise
// nothing.
func (r Record) HistoryPrice() *decimal.Decimal {
	if r.Total != nil {
		return r.Total
	}
	return r.Price
}
