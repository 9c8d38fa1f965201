// Package model defines shared data types used across the ticker feed.
//
// Conventions:
//   - Prices and amounts: float64 in the quote currency (KRW for the domestic market)
//   - Percent changes: already multiplied by 100 (2.5 means +2.5%)
//   - Timestamps: int64 milliseconds since Unix epoch, as sent by the exchange
//   - Instrument codes: "QUOTE-BASE" (e.g. "KRW-BTC")
package model
