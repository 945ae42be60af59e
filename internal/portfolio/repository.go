package portfolio

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository reads client holdings.
type Repository interface {
	Holdings(ctx context.Context, ownerID string) ([]Holding, error)
}

// PostgresRepository reads holdings from PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Holdings lists the holdings of ownerID ordered by symbol.
func (r *PostgresRepository) Holdings(ctx context.Context, ownerID string) ([]Holding, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT symbol, amount::text FROM wallet_holdings
        WHERE user_id = $1 ORDER BY symbol`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Holding
	for rows.Next() {
		var h Holding
		var amount string
		if err := rows.Scan(&h.Symbol, &amount); err != nil {
			return nil, err
		}
		if h.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("holding %s amount: %w", h.Symbol, err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
