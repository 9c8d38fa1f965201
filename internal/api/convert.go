package api

import (
	"strings"

	"github.com/rickgao/tickerfeed/internal/model"
)

// ToModel converts an API market to a catalog entry.
func (m APIMarket) ToModel() model.MarketEntry {
	return model.MarketEntry{
		Code:        strings.TrimSpace(m.Market),
		LocalName:   m.KoreanName,
		EnglishName: m.EnglishName,
	}
}

// ToMarkets indexes API markets by code. Entries without a code are skipped;
// a repeated code keeps the last entry.
func ToMarkets(list []APIMarket) model.Markets {
	out := make(model.Markets, len(list))
	for _, am := range list {
		entry := am.ToModel()
		if entry.Code == "" {
			continue
		}
		out[entry.Code] = entry
	}
	return out
}
