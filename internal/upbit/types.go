package upbit

// TypeTicker is the ty value carried by ticker elements.
const TypeTicker = "ticker"

// FormatSimpleList requests abbreviated field names, delivered as a list.
const FormatSimpleList = "SIMPLE_LIST"

// TickerSimple is a ticker element in SIMPLE_LIST format.
type TickerSimple struct {
	Type               string  `json:"ty"`
	Code               string  `json:"cd"`
	OpeningPrice       float64 `json:"op"`
	HighPrice          float64 `json:"hp"`
	LowPrice           float64 `json:"lp"`
	TradePrice         float64 `json:"tp"`
	PrevClosingPrice   float64 `json:"pcp"`
	Change             string  `json:"c"` // RISE, EVEN, FALL
	ChangePrice        float64 `json:"cp"`
	SignedChangePrice  float64 `json:"scp"`
	ChangeRate         float64 `json:"cr"`
	SignedChangeRate   float64 `json:"scr"`
	TradeVolume        float64 `json:"tv"`
	AccTradeVolume     float64 `json:"atv"`
	AccTradeVolume24h  float64 `json:"atv24h"`
	AccTradePrice      float64 `json:"atp"`
	AccTradePrice24h   float64 `json:"atp24h"`
	TradeDate          string  `json:"tdt"` // yyyyMMdd, UTC
	TradeTime          string  `json:"ttm"` // HHmmss, UTC
	TradeTimestamp     int64   `json:"ttms"`
	AskBid             string  `json:"ab"`
	AccAskVolume       float64 `json:"aav"`
	AccBidVolume       float64 `json:"abv"`
	Highest52WeekPrice float64 `json:"h52wp"`
	Highest52WeekDate  string  `json:"h52wdt"`
	Lowest52WeekPrice  float64 `json:"l52wp"`
	Lowest52WeekDate   string  `json:"l52wdt"`
	TradeStatus        string  `json:"ts,omitempty"` // deprecated
	MarketState        string  `json:"ms"`
	MarketStateForIOS  string  `json:"msfi,omitempty"` // deprecated
	IsTradingSuspended bool    `json:"its"`
	DelistingDate      *string `json:"dd"`
	MarketWarning      string  `json:"mw"`
	Timestamp          int64   `json:"tms"`
	StreamType         string  `json:"st"` // SNAPSHOT or REALTIME
}

// ticketField, typeField and formatField are the three objects of a
// subscription request.
type ticketField struct {
	Ticket string `json:"ticket"`
}

type typeField struct {
	Type  string   `json:"type"`
	Codes []string `json:"codes"`
}

type formatField struct {
	Format string `json:"format"`
}
