package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
)

// Demo content shown on every client dashboard until real statements exist.

var demoROI = decimal.RequireFromString("18.5")

var depositAddresses = map[string]string{
	"BTC":  "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh",
	"ETH":  "0x742d35Cc74C3c03F62ac4A1c2e7c8A4E8e1B6A7D",
	"USDT": "0x742d35Cc74C3c03F62ac4A1c2e7c8A4E8e1B6A7D",
	"USDC": "0x742d35Cc74C3c03F62ac4A1c2e7c8A4E8e1B6A7D",
}

func pt(label string, value int64) Point {
	return Point{Label: label, Value: decimal.NewFromInt(value)}
}

var performance = map[string][]Point{
	Period7d:  {pt("Mon", 12000), pt("Tue", 12300), pt("Wed", 11800), pt("Thu", 13100), pt("Fri", 13500), pt("Sat", 14200), pt("Sun", 14750)},
	Period30d: {pt("W1", 10500), pt("W2", 11200), pt("W3", 12100), pt("W4", 14750)},
	Period1y:  {pt("Jan", 8000), pt("Mar", 9500), pt("May", 11000), pt("Jul", 10200), pt("Sep", 12800), pt("Nov", 14750)},
}

var demoTransactions = []Transaction{
	{ID: "tx-1", Type: "investment", Amount: decimal.NewFromInt(1000), Description: "Growth pack investment", Status: "completed", CreatedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
	{ID: "tx-2", Type: "roi", Amount: decimal.RequireFromString("125.50"), Description: "Growth pack monthly return", Status: "completed", CreatedAt: time.Date(2024, 1, 14, 9, 15, 0, 0, time.UTC)},
	{ID: "tx-3", Type: "deposit", Amount: decimal.NewFromInt(2000), Description: "SEPA transfer deposit", Status: "completed", CreatedAt: time.Date(2024, 1, 12, 16, 45, 0, 0, time.UTC)},
}

var demoNotices = []Notice{
	{ID: "notif-1", Type: "success", Title: "New return available", Message: "Your Growth pack earned +125.50 EUR this month", CreatedAt: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)},
	{ID: "notif-2", Type: "info", Title: "Security update", Message: "We strengthened the security of our servers", CreatedAt: time.Date(2024, 1, 14, 12, 0, 0, 0, time.UTC)},
}
