package portfolio

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/cryptoboost/portal/internal/identity"
	"github.com/cryptoboost/portal/internal/pricefeed"
)

func testSnapshot() pricefeed.Snapshot {
	return pricefeed.Snapshot{
		RefreshedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Quotes: []pricefeed.Quote{
			{Symbol: "BTC", Name: "Bitcoin", Rate: decimal.NewFromInt(50000)},
			{Symbol: "ETH", Name: "Ethereum", Rate: decimal.NewFromInt(3000), Fallback: true},
		},
	}
}

func TestDashboardValuesHoldingsAtSnapshot(t *testing.T) {
	repo := NewMemoryRepository()
	owner := identity.Identity{ID: "owner-1", Balance: decimal.NewFromInt(5000)}
	repo.Set(owner.ID, []Holding{
		{Symbol: "BTC", Amount: decimal.RequireFromString("0.1")},
		{Symbol: "ETH", Amount: decimal.NewFromInt(1)},
		{Symbol: "USDT", Amount: decimal.NewFromInt(100)},
	})
	svc := NewService(repo, pricefeed.DefaultAssets)

	d, err := svc.Dashboard(context.Background(), owner, testSnapshot(), "")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.Period != DefaultPeriod || len(d.Performance) != 4 {
		t.Fatalf("expected default 30d series, got %s with %d points", d.Period, len(d.Performance))
	}
	// 0.1*50000 + 1*3000 + 100*0.92 (USDT not quoted, asset fallback)
	if want := decimal.RequireFromString("8092"); !d.Value.Equal(want) {
		t.Fatalf("expected value %s, got %s", want, d.Value)
	}
	usdt := d.Positions[2]
	if !usdt.Fallback || usdt.Name != "Tether" {
		t.Fatalf("expected unquoted asset to use fallback, got %+v", usdt)
	}
	if !d.Positions[0].Share.Equal(decimal.RequireFromString("61.8")) {
		t.Fatalf("unexpected BTC share %s", d.Positions[0].Share)
	}
	if d.PricesAsOf == nil || len(d.Prices) != 2 {
		t.Fatalf("expected snapshot prices on dashboard")
	}

	if _, err := svc.Dashboard(context.Background(), owner, testSnapshot(), "2w"); err != ErrUnknownPeriod {
		t.Fatalf("expected ErrUnknownPeriod, got %v", err)
	}
}

func TestWalletUsesDemoHoldings(t *testing.T) {
	svc := NewService(NewMemoryRepository(), pricefeed.DefaultAssets)

	w, err := svc.Wallet(context.Background(), identity.Identity{ID: "someone"}, pricefeed.Snapshot{})
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if len(w.Positions) != len(DemoHoldings) {
		t.Fatalf("expected %d demo balances, got %d", len(DemoHoldings), len(w.Positions))
	}
	if !strings.HasPrefix(w.DepositReference, "CBST-") || len(w.DepositReference) != 13 {
		t.Fatalf("unexpected deposit reference %q", w.DepositReference)
	}
	if w.DepositAddresses["BTC"] == "" {
		t.Fatal("expected a BTC deposit address")
	}
	if !w.Total.IsPositive() {
		t.Fatalf("expected positive total valued at fallbacks, got %s", w.Total)
	}
}

type staticQuotes struct{ snap pricefeed.Snapshot }

func (s staticQuotes) Snapshot() (pricefeed.Snapshot, bool) { return s.snap, true }

func TestHandlerDashboard(t *testing.T) {
	svc := NewService(NewMemoryRepository(), pricefeed.DefaultAssets)
	signedIn := true
	h := NewHandler(svc, staticQuotes{testSnapshot()}, func(*fiber.Ctx) (identity.Identity, bool) {
		return identity.Identity{ID: "c-1", Email: "client@demo.com", Role: identity.RoleClient}, signedIn
	})
	app := fiber.New()
	app.Get("/client/dashboard", h.Dashboard)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/client/dashboard?period=7d", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		View      string `json:"view"`
		Dashboard struct {
			Period      string  `json:"period"`
			Performance []Point `json:"performance"`
		} `json:"dashboard"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.View != "client/dashboard" || payload.Dashboard.Period != "7d" || len(payload.Dashboard.Performance) != 7 {
		t.Fatalf("unexpected payload: %s", body)
	}

	resp, _ = app.Test(httptest.NewRequest(fiber.MethodGet, "/client/dashboard?period=decade", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for unknown period, got %d", resp.StatusCode)
	}

	signedIn = false
	resp, _ = app.Test(httptest.NewRequest(fiber.MethodGet, "/client/dashboard", nil))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", resp.StatusCode)
	}
}
