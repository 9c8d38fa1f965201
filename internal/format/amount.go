// Package format renders exchange amounts for display.
package format

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	hundredMillion = 1e8  // 억
	trillion       = 1e12 // 조

	// MinimumBucket is returned for every amount below one hundred million.
	MinimumBucket = "1억"
)

var printer = message.NewPrinter(language.Korean)

// Amount converts a raw traded amount into a Korean magnitude string.
//
// Amounts below 1억 collapse to MinimumBucket. Amounts of at least 1조 are
// truncated to whole 조, everything else to whole 억, with locale grouping.
func Amount(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < hundredMillion {
		return MinimumBucket
	}

	if amount >= trillion {
		return printer.Sprintf("%d조", int64(math.Floor(amount/trillion)))
	}

	return printer.Sprintf("%d억", int64(math.Floor(amount/hundredMillion)))
}
