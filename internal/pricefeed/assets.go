package pricefeed

import "github.com/shopspring/decimal"

// Asset is a tracked symbol with the rate used when the source fails.
type Asset struct {
	Symbol   string
	Name     string
	Fallback decimal.Decimal
}

// DefaultAssets are the assets shown by the portal. Fallbacks are EUR rates.
var DefaultAssets = []Asset{
	{Symbol: "BTC", Name: "Bitcoin", Fallback: decimal.NewFromInt(45000)},
	{Symbol: "ETH", Name: "Ethereum", Fallback: decimal.NewFromInt(3000)},
	{Symbol: "USDT", Name: "Tether", Fallback: decimal.RequireFromString("0.92")},
	{Symbol: "USDC", Name: "USD Coin", Fallback: decimal.RequireFromString("0.91")},
}
