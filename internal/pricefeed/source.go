package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCoinAPIURL is the public CoinAPI REST endpoint.
const DefaultCoinAPIURL = "https://rest.coinapi.io/v1"

// ErrBadQuote is returned for a response without a usable rate.
var ErrBadQuote = errors.New("bad quote payload")

// Rate is one observation from a quote source.
type Rate struct {
	Value decimal.Decimal
	Time  time.Time
}

// Source fetches the exchange rate of symbol in currency.
type Source interface {
	Rate(ctx context.Context, symbol, currency string) (Rate, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, symbol, currency string) (Rate, error)

func (f SourceFunc) Rate(ctx context.Context, symbol, currency string) (Rate, error) {
	return f(ctx, symbol, currency)
}

// CoinAPI reads exchange rates from the CoinAPI REST interface.
type CoinAPI struct {
	baseURL string
	key     string
	http    *http.Client
}

// NewCoinAPI builds a CoinAPI source. A nil client uses http.DefaultClient;
// per-request deadlines come from the caller's context.
func NewCoinAPI(baseURL, key string, client *http.Client) *CoinAPI {
	if baseURL == "" {
		baseURL = DefaultCoinAPIURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &CoinAPI{baseURL: strings.TrimRight(baseURL, "/"), key: key, http: client}
}

type exchangeRate struct {
	Rate *decimal.Decimal `json:"rate"`
	Time time.Time        `json:"time"`
}

func (c *CoinAPI) Rate(ctx context.Context, symbol, currency string) (Rate, error) {
	endpoint := fmt.Sprintf("%s/exchangerate/%s/%s", c.baseURL, url.PathEscape(symbol), url.PathEscape(currency))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Rate{}, err
	}
	req.Header.Set("X-CoinAPI-Key", c.key)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Rate{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return Rate{}, fmt.Errorf("quote source status %d", resp.StatusCode)
	}

	var payload exchangeRate
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Rate{}, fmt.Errorf("%w: %v", ErrBadQuote, err)
	}
	if payload.Rate == nil || !payload.Rate.IsPositive() {
		return Rate{}, fmt.Errorf("%w: missing rate for %s", ErrBadQuote, symbol)
	}
	return Rate{Value: *payload.Rate, Time: payload.Time}, nil
}
