// Package portfolio aggregates per-pool read accessors into one view of
// an account. Composition only: nothing here talks to the chain
// directly.
package portfolio

import (
	"context"

	"go.uber.org/zap"

	"vesper/internal/pool"
)

// Position is one pool's slice of the account's holdings.
type Position struct {
	// Assets is the position valued in deposit-asset base units.
	Assets string
	// ClaimableRewards is the accrued reward balance.
	ClaimableRewards string
	// Timelock is the seconds remaining before withdraw unlocks.
	Timelock string
	// Tokens is the pool token balance.
	Tokens string
}

// Aggregator composes the per-pool clients for one account.
type Aggregator struct {
	pools  []*pool.Client
	logger *zap.Logger
}

// New builds an Aggregator over the given pool clients.
func New(pools []*pool.Client, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{pools: pools, logger: logger}
}

// Positions maps pool name to the account's position in it. Pools whose
// reads fail are skipped and logged; the view is best-effort
// informational.
func (a *Aggregator) Positions(ctx context.Context) map[string]Position {
	out := make(map[string]Position, len(a.pools))
	for _, p := range a.pools {
		tokens, err := p.Balance(ctx)
		if err != nil {
			a.logger.Warn("pool balance read failed", zap.String("pool", p.Name()), zap.Error(err))
			continue
		}
		assets, err := p.DepositedBalance(ctx)
		if err != nil {
			a.logger.Warn("deposited balance read failed", zap.String("pool", p.Name()), zap.Error(err))
			continue
		}
		timelock, err := p.WithdrawTimelock(ctx)
		if err != nil {
			timelock = "0"
		}

		out[p.Name()] = Position{
			Assets:           assets,
			ClaimableRewards: p.ClaimableRewards(ctx),
			Timelock:         timelock,
			Tokens:           tokens,
		}
	}
	return out
}

// Balances maps deposit-asset symbol to the account's wallet balance of
// that asset. Duplicate symbols across pools read once.
func (a *Aggregator) Balances(ctx context.Context) map[string]string {
	out := make(map[string]string)
	for _, p := range a.pools {
		symbol := p.Pool().Config.Asset.Symbol
		if _, ok := out[symbol]; ok {
			continue
		}
		balance, err := p.AssetBalance(ctx)
		if err != nil {
			a.logger.Warn("asset balance read failed", zap.String("pool", p.Name()), zap.Error(err))
			continue
		}
		out[symbol] = balance
	}
	return out
}
