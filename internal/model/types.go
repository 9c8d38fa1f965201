package model

import "strings"

// -----------------------------------------------------------------------------
// Catalog Types
// -----------------------------------------------------------------------------

// MarketEntry is the display metadata for one instrument code.
type MarketEntry struct {
	Code        string `json:"code"`         // Primary key (e.g., "KRW-BTC")
	LocalName   string `json:"local_name"`   // Korean display name
	EnglishName string `json:"english_name"` // English display name
}

// Markets maps instrument code to its catalog entry.
// Treat values returned from the catalog as read-only.
type Markets map[string]MarketEntry

// -----------------------------------------------------------------------------
// Price Types
// -----------------------------------------------------------------------------

// PriceRecord is the latest normalized price for one (exchange, instrument) pair.
// Records are replaced wholesale on every update.
type PriceRecord struct {
	Symbol          string  `json:"symbol"`           // Instrument code (e.g., "KRW-BTC")
	BaseCode        string  `json:"base_code"`        // Segment after "-" (e.g., "BTC")
	DisplayName     string  `json:"display_name"`     // Catalog local name, or Symbol when unknown
	Price           float64 `json:"price"`            // Last trade price
	AbsoluteChange  float64 `json:"absolute_change"`  // Signed change vs previous close
	PercentChange   float64 `json:"percent_change"`   // Signed change rate × 100
	FormattedVolume string  `json:"formatted_volume"` // 24h traded amount, bucketed ("1,234억")
	RawVolume       float64 `json:"raw_volume"`       // 24h traded amount
	Timestamp       int64   `json:"timestamp"`        // Exchange timestamp (ms since epoch)
}

// TickerUpdate is a decoded ticker event, independent of any exchange wire format.
type TickerUpdate struct {
	Code              string
	TradePrice        float64
	SignedChangePrice float64
	SignedChangeRate  float64 // Fraction, not percent (0.025 = +2.5%)
	AccTradePrice24h  float64
	Timestamp         int64 // ms since epoch
}

// BaseCode returns the segment after the first "-" of an instrument code.
// Falls back to the code itself when there is no separator or the segment is empty.
func BaseCode(code string) string {
	_, base, ok := strings.Cut(code, "-")
	if !ok || base == "" {
		return code
	}
	if i := strings.IndexByte(base, '-'); i >= 0 {
		base = base[:i]
		if base == "" {
			return code
		}
	}
	return base
}
