package portfolio

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// DemoHoldings are shown to every client without stored holdings.
var DemoHoldings = []Holding{
	{Symbol: "BTC", Amount: decimal.RequireFromString("0.1542")},
	{Symbol: "ETH", Amount: decimal.RequireFromString("2.456")},
	{Symbol: "USDT", Amount: decimal.RequireFromString("1250")},
	{Symbol: "USDC", Amount: decimal.RequireFromString("890.5")},
}

// MemoryRepository keeps holdings in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	storage map[string][]Holding
}

// NewMemoryRepository builds an in-memory repository serving DemoHoldings
// for owners without their own entries.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{storage: make(map[string][]Holding)}
}

// Set replaces the holdings of ownerID.
func (r *MemoryRepository) Set(ownerID string, holdings []Holding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[ownerID] = append([]Holding(nil), holdings...)
}

func (r *MemoryRepository) Holdings(_ context.Context, ownerID string) ([]Holding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.storage[ownerID]; ok {
		return append([]Holding(nil), h...), nil
	}
	return append([]Holding(nil), DemoHoldings...), nil
}
