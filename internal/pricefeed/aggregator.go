// Package pricefeed keeps the latest quote for each tracked asset.
package pricefeed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval = 5 * time.Minute
	DefaultTimeout  = 5 * time.Second
	DefaultCurrency = "EUR"

	changeWindow = 24 * time.Hour
)

// Quote is the published rate of one asset.
type Quote struct {
	ID       string           `json:"id"`
	Symbol   string           `json:"symbol"`
	Name     string           `json:"name"`
	Currency string           `json:"currency"`
	Rate     decimal.Decimal  `json:"price"`
	Change   *decimal.Decimal `json:"change_24h"`
	AsOf     time.Time        `json:"updated_at"`
	Fallback bool             `json:"fallback"`
}

// Snapshot is a complete quote set from a single refresh cycle.
type Snapshot struct {
	Quotes      []Quote   `json:"prices"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// Quote returns the quote for symbol.
func (s Snapshot) Quote(symbol string) (Quote, bool) {
	for _, q := range s.Quotes {
		if q.Symbol == symbol {
			return q, true
		}
	}
	return Quote{}, false
}

type observation struct {
	rate decimal.Decimal
	at   time.Time
}

// Aggregator refreshes quotes from a Source. A refresh never fails as a
// whole: an asset whose fetch fails gets its fallback rate.
type Aggregator struct {
	assets   []Asset
	source   Source
	currency string
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	snapshot atomic.Pointer[Snapshot]
	inFlight atomic.Bool

	// history is touched only by the refresh holding inFlight.
	history map[string][]observation

	subsMu sync.Mutex
	subs   map[int]func(Snapshot)
	nextID int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

func WithCurrency(currency string) Option {
	return func(a *Aggregator) { a.currency = currency }
}

// WithTimeout bounds each fetch. A fetch that times out falls back.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

func WithInterval(d time.Duration) Option {
	return func(a *Aggregator) { a.interval = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

// New builds an aggregator. It panics when assets is empty or source is nil.
func New(source Source, assets []Asset, opts ...Option) *Aggregator {
	if source == nil || len(assets) == 0 {
		panic("pricefeed: aggregator needs a source and at least one asset")
	}
	a := &Aggregator{
		assets:   append([]Asset(nil), assets...),
		source:   source,
		currency: DefaultCurrency,
		timeout:  DefaultTimeout,
		interval: DefaultInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		history:  make(map[string][]observation),
		subs:     make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Snapshot returns the latest complete quote set. ok is false before the
// first refresh completes.
func (a *Aggregator) Snapshot() (Snapshot, bool) {
	s := a.snapshot.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

// Loading reports whether a refresh is in flight or none has completed yet.
func (a *Aggregator) Loading() bool {
	return a.inFlight.Load() || a.snapshot.Load() == nil
}

// Subscribe registers fn to receive every published snapshot.
func (a *Aggregator) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	a.subsMu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	a.subsMu.Unlock()
	return func() {
		a.subsMu.Lock()
		delete(a.subs, id)
		a.subsMu.Unlock()
	}
}

// Refresh fetches every asset concurrently and publishes the combined
// snapshot. It returns false without fetching when a refresh is already in
// flight.
func (a *Aggregator) Refresh(ctx context.Context) bool {
	if !a.inFlight.CompareAndSwap(false, true) {
		a.logger.Debug("price refresh skipped, previous cycle still running")
		return false
	}
	defer a.inFlight.Store(false)

	rates := make([]Rate, len(a.assets))
	failed := make([]bool, len(a.assets))

	var g errgroup.Group
	for i, asset := range a.assets {
		i, asset := i, asset
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			r, err := a.source.Rate(fetchCtx, asset.Symbol, a.currency)
			if err != nil {
				a.logger.Warn("quote fetch failed, using fallback",
					slog.String("symbol", asset.Symbol),
					slog.Any("error", err),
				)
				failed[i] = true
				return nil
			}
			rates[i] = r
			return nil
		})
	}
	_ = g.Wait()

	now := a.now().UTC()
	snap := Snapshot{Quotes: make([]Quote, len(a.assets)), RefreshedAt: now}
	fallbacks := 0
	for i, asset := range a.assets {
		q := Quote{
			ID:       fmt.Sprintf("crypto-%d", i+1),
			Symbol:   asset.Symbol,
			Name:     asset.Name,
			Currency: a.currency,
		}
		if failed[i] {
			q.Rate = asset.Fallback
			q.AsOf = now
			q.Fallback = true
			fallbacks++
		} else {
			q.Rate = rates[i].Value
			q.AsOf = rates[i].Time.UTC()
			if q.AsOf.IsZero() {
				q.AsOf = now
			}
			q.Change = a.observe(asset.Symbol, q.Rate, now)
		}
		snap.Quotes[i] = q
	}

	a.snapshot.Store(&snap)
	a.logger.Info("prices refreshed",
		slog.Int("assets", len(snap.Quotes)),
		slog.Int("fallbacks", fallbacks),
	)
	a.publish(snap)
	return true
}

// observe records a live rate and returns the percent change against the
// oldest live rate retained within the change window.
func (a *Aggregator) observe(symbol string, rate decimal.Decimal, at time.Time) *decimal.Decimal {
	cutoff := at.Add(-changeWindow)
	hist := a.history[symbol]
	start := 0
	for start < len(hist) && hist[start].at.Before(cutoff) {
		start++
	}
	hist = append(hist[start:], observation{rate: rate, at: at})
	a.history[symbol] = hist

	base := hist[0]
	if len(hist) < 2 || base.rate.IsZero() {
		return nil
	}
	change := rate.Sub(base.rate).Div(base.rate).Mul(decimal.NewFromInt(100)).Round(2)
	return &change
}

func (a *Aggregator) publish(s Snapshot) {
	a.subsMu.Lock()
	fns := make([]func(Snapshot), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.subsMu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// Run refreshes once immediately and then every interval until ctx is done.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Refresh(ctx)
		}
	}
}
