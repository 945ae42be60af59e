package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoboost/portal/internal/pricefeed"
)

// Holding is an amount of one crypto asset owned by a client.
type Holding struct {
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

// Position is a holding valued at the latest quote.
type Position struct {
	Holding
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
	Share    decimal.Decimal `json:"share_percent"`
	Fallback bool            `json:"fallback"`
}

// Transaction is an entry of the client history.
type Transaction struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount_eur"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Notice is a dashboard notification.
type Notice struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Point is one sample of the performance chart.
type Point struct {
	Label string          `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// Dashboard is the client home view model.
type Dashboard struct {
	Balance      decimal.Decimal   `json:"balance_eur"`
	Value        decimal.Decimal   `json:"portfolio_value"`
	ROI          decimal.Decimal   `json:"total_roi_percent"`
	Period       string            `json:"period"`
	Performance  []Point           `json:"performance"`
	Positions    []Position        `json:"positions"`
	Transactions []Transaction     `json:"recent_transactions"`
	Notices      []Notice          `json:"notifications"`
	Prices       []pricefeed.Quote `json:"prices"`
	PricesAsOf   *time.Time        `json:"prices_as_of,omitempty"`
}

// Wallet is the client wallet view model.
type Wallet struct {
	Positions        []Position        `json:"balances"`
	Total            decimal.Decimal   `json:"total_eur"`
	DepositAddresses map[string]string `json:"deposit_addresses"`
	DepositReference string            `json:"deposit_reference"`
}
