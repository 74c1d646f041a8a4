package storage

import (
	"context"
	"fmt"

	"litchat/internal/models"
)

type CostRepo struct {
	db *DB
}

func NewCostRepo(db *DB) *CostRepo {
	return &CostRepo{db: db}
}

// SaveCostRecord appends one ledger row; records are never updated.
func (r *CostRepo) SaveCostRecord(ctx context.Context, rec models.CostRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO cost_records (session_id, operation, provider, model, prompt_tokens, completion_tokens, cost_usd, created_at)
VALUES (NULLIF($1,''), $2, NULLIF($3,''), NULLIF($4,''), $5, $6, $7, $8)`,
		rec.SessionID, string(rec.Operation), rec.Provider, rec.Model,
		rec.PromptTokens, rec.CompletionTokens, rec.CostUSD, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save cost record: %w", err)
	}
	return nil
}

func (r *CostRepo) SessionCost(ctx context.Context, sessionID string) (float64, error) {
	var total float64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_usd),0) FROM cost_records WHERE session_id=$1`, sessionID).
		Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("session cost: %w", err)
	}
	return total, nil
}
