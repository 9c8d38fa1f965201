package upbit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/tickerfeed/internal/model"
)

// ErrEmptyFrame is returned by Decode for frames with no content.
var ErrEmptyFrame = errors.New("empty frame")

// Codec implements the ticker subscription and decoding for Upbit.
type Codec struct{}

// NewCodec returns an Upbit codec.
func NewCodec() Codec {
	return Codec{}
}

// SubscribeMessage builds the request
// [{"ticket":...},{"type":"ticker","codes":[...]},{"format":"SIMPLE_LIST"}].
func (Codec) SubscribeMessage(ticket string, codes []string) ([]byte, error) {
	if codes == nil {
		codes = []string{}
	}
	req := []any{
		ticketField{Ticket: ticket},
		typeField{Type: TypeTicker, Codes: codes},
		formatField{Format: FormatSimpleList},
	}
	return json.Marshal(req)
}

// Decode parses a frame holding either a single ticker object or an array of
// them. Elements that are not tickers are skipped.
func (Codec) Decode(frame []byte) ([]model.TickerUpdate, error) {
	tickers, err := ParseTickers(frame)
	if err != nil {
		return nil, err
	}

	updates := make([]model.TickerUpdate, 0, len(tickers))
	for _, t := range tickers {
		if t.Type != TypeTicker || t.Code == "" {
			continue
		}
		updates = append(updates, t.ToUpdate())
	}
	return updates, nil
}

// ParseTickers unmarshals a frame into wire tickers without filtering.
func ParseTickers(frame []byte) ([]TickerSimple, error) {
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 {
		return nil, ErrEmptyFrame
	}

	switch trimmed[0] {
	case '[':
		var list []TickerSimple
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode ticker list: %w", err)
		}
		return list, nil
	case '{':
		var single TickerSimple
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("decode ticker: %w", err)
		}
		return []TickerSimple{single}, nil
	default:
		return nil, fmt.Errorf("decode ticker: unexpected leading byte %q", trimmed[0])
	}
}

// ToUpdate converts the wire ticker to the exchange-neutral update.
func (t TickerSimple) ToUpdate() model.TickerUpdate {
	return model.TickerUpdate{
		Code:              t.Code,
		TradePrice:        t.TradePrice,
		SignedChangePrice: t.SignedChangePrice,
		SignedChangeRate:  t.SignedChangeRate,
		AccTradePrice24h:  t.AccTradePrice24h,
		Timestamp:         t.Timestamp,
	}
}
