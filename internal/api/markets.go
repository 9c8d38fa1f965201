package api

import (
	"context"
	"fmt"
	"net/url"
)

// GetMarkets fetches the full market listing.
func (c *Client) GetMarkets(ctx context.Context, opts GetMarketsOptions) ([]APIMarket, error) {
	query := url.Values{}
	if opts.Details {
		query.Set("isDetails", "true")
	}

	var markets []APIMarket
	if err := c.get(ctx, "/market/all", query, &markets); err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}

	return markets, nil
}

// GetAllMarkets fetches every listed market without details.
func (c *Client) GetAllMarkets(ctx context.Context) ([]APIMarket, error) {
	return c.GetMarkets(ctx, GetMarketsOptions{})
}
