package access

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Spok95/stock-ledger/internal/domain/stock"
)

// Guard проверяет права пользователя и только затем вызывает журнал.
type Guard struct {
	engine *stock.Engine
	policy Policy
}

func NewGuard(engine *stock.Engine, policy Policy) *Guard {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Guard{engine: engine, policy: policy}
}

func (g *Guard) CommitBatch(ctx context.Context, u User, b stock.Batch) (stock.BatchResult, error) {
	if err := g.policy.Require(u, ActionCommit); err != nil {
		return stock.BatchResult{}, err
	}
	if b.Actor == "" {
		b.Actor = u.Name
	}
	return g.engine.CommitBatch(ctx, b)
}

func (g *Guard) ReverseMovement(ctx context.Context, u User, id string) error {
	if err := g.policy.Require(u, ActionReverse); err != nil {
		return err
	}
	return g.engine.ReverseMovement(ctx, id)
}

func (g *Guard) CorrectMovementQuantity(ctx context.Context, u User, id string, qty decimal.Decimal) error {
	if err := g.policy.Require(u, ActionCorrect); err != nil {
		return err
	}
	return g.engine.CorrectMovementQuantity(ctx, id, qty)
}

func (g *Guard) MergeMaterials(ctx context.Context, u User, req stock.MergeRequest) (stock.MergeResult, error) {
	if err := g.policy.Require(u, ActionMerge); err != nil {
		return stock.MergeResult{}, err
	}
	return g.engine.MergeMaterials(ctx, req)
}

func (g *Guard) CreateMaterial(ctx context.Context, u User, d stock.MaterialDraft) (stock.Material, error) {
	if err := g.policy.Require(u, ActionCatalog); err != nil {
		return stock.Material{}, err
	}
	return g.engine.CreateMaterial(ctx, d)
}

func (g *Guard) DeleteMaterial(ctx context.Context, u User, id string) error {
	if err := g.policy.Require(u, ActionCatalog); err != nil {
		return err
	}
	return g.engine.DeleteMaterial(ctx, id)
}
