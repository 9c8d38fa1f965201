package api

// APIMarket is one element of GET /market/all.
type APIMarket struct {
	Market      string `json:"market"`
	KoreanName  string `json:"korean_name"`
	EnglishName string `json:"english_name"`

	// Present only when requested with isDetails=true.
	MarketWarning string `json:"market_warning,omitempty"`
}

// GetMarketsOptions configures a GetMarkets request.
type GetMarketsOptions struct {
	Details bool // Adds market_warning to each entry
}
