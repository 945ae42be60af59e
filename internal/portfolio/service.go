// Package portfolio builds the client dashboard and wallet views from stored
// holdings and the latest price snapshot.
package portfolio

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cryptoboost/portal/internal/identity"
	"github.com/cryptoboost/portal/internal/pricefeed"
)

// Chart periods.
const (
	Period7d      = "7d"
	Period30d     = "30d"
	Period1y      = "1y"
	DefaultPeriod = Period30d
)

// ErrUnknownPeriod is returned for a chart period outside 7d, 30d and 1y.
var ErrUnknownPeriod = errors.New("unknown period")

var hundred = decimal.NewFromInt(100)

// Service assembles portfolio views.
type Service struct {
	repo   Repository
	assets []pricefeed.Asset
	now    func() time.Time
}

// NewService builds a portfolio service. assets names the symbols and
// supplies the rate used before the first price refresh.
func NewService(repo Repository, assets []pricefeed.Asset) *Service {
	return &Service{repo: repo, assets: assets, now: time.Now}
}

// Dashboard builds the client home view for id at snapshot.
func (s *Service) Dashboard(ctx context.Context, id identity.Identity, snap pricefeed.Snapshot, period string) (Dashboard, error) {
	if period == "" {
		period = DefaultPeriod
	}
	series, ok := performance[period]
	if !ok {
		return Dashboard{}, ErrUnknownPeriod
	}

	positions, total, err := s.positions(ctx, id.ID, snap)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		Balance:      id.Balance,
		Value:        total,
		ROI:          demoROI,
		Period:       period,
		Performance:  series,
		Positions:    positions,
		Transactions: demoTransactions,
		Notices:      demoNotices,
		Prices:       snap.Quotes,
	}
	if !snap.RefreshedAt.IsZero() {
		at := snap.RefreshedAt
		d.PricesAsOf = &at
	}
	return d, nil
}

// Wallet builds the wallet view for id at snapshot.
func (s *Service) Wallet(ctx context.Context, id identity.Identity, snap pricefeed.Snapshot) (Wallet, error) {
	positions, total, err := s.positions(ctx, id.ID, snap)
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{
		Positions:        positions,
		Total:            total,
		DepositAddresses: depositAddresses,
		DepositReference: depositReference(),
	}, nil
}

func (s *Service) positions(ctx context.Context, ownerID string, snap pricefeed.Snapshot) ([]Position, decimal.Decimal, error) {
	holdings, err := s.repo.Holdings(ctx, ownerID)
	if err != nil {
		return nil, decimal.Zero, err
	}

	positions := make([]Position, 0, len(holdings))
	total := decimal.Zero
	for _, h := range holdings {
		p := Position{Holding: h, Name: h.Symbol}
		if q, ok := snap.Quote(h.Symbol); ok {
			p.Name, p.Price, p.Fallback = q.Name, q.Rate, q.Fallback
		} else if a, ok := s.asset(h.Symbol); ok {
			p.Name, p.Price, p.Fallback = a.Name, a.Fallback, true
		}
		p.Value = h.Amount.Mul(p.Price).Round(2)
		total = total.Add(p.Value)
		positions = append(positions, p)
	}
	if total.IsPositive() {
		for i := range positions {
			positions[i].Share = positions[i].Value.Div(total).Mul(hundred).Round(1)
		}
	}
	return positions, total, nil
}

func (s *Service) asset(symbol string) (pricefeed.Asset, bool) {
	for _, a := range s.assets {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return pricefeed.Asset{}, false
}

func depositReference() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CBST-" + strings.ToUpper(raw[:8])
}
