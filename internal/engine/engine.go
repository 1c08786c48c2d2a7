// Package engine composes registry and rate-oracle calls into derived
// financial read results. Every operation here is idempotent and
// side-effect-free; "nice-to-have" reads degrade to zero instead of
// failing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vesper/internal/abis"
	"vesper/internal/chain"
	"vesper/internal/meta"
	"vesper/internal/registry"
)

var (
	// ErrNoStrategyFound is returned when a pool's strategy address is
	// the zero address.
	ErrNoStrategyFound = errors.New("no strategy found for pool")
	// ErrNoRewardsContract is returned when a pool's rewards address
	// is the zero address.
	ErrNoRewardsContract = errors.New("pool has no rewards contract")
)

// poolTokenUnit is the fixed 18-decimal precision of pool share tokens.
var poolTokenUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Rater quotes an input amount of path[0] in units of the final path
// element.
type Rater interface {
	Rate(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error)
}

// StrategyInfo describes a pool's active yield strategy.
type StrategyInfo struct {
	Address common.Address
	Name    string
}

// Engine computes derived values over one resolved registry.
type Engine struct {
	reg       *registry.Registry
	rater     Rater
	transport chain.Transport
	logger    *zap.Logger

	erc20ABI    abi.ABI
	strategyABI abi.ABI
	rewardsABI  abi.ABI
}

// New builds an Engine. The rater may be nil when no router resolved;
// reads needing it then fall back to their defaults.
func New(reg *registry.Registry, rater Rater, transport chain.Transport, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	erc20ABI, err := abis.ERC20()
	if err != nil {
		return nil, err
	}
	strategyABI, err := abis.Strategy()
	if err != nil {
		return nil, err
	}
	rewardsABI, err := abis.PoolRewards()
	if err != nil {
		return nil, err
	}
	return &Engine{
		reg:         reg,
		rater:       rater,
		transport:   transport,
		logger:      logger,
		erc20ABI:    erc20ABI,
		strategyABI: strategyABI,
		rewardsABI:  rewardsABI,
	}, nil
}

// TokenValue returns the deposit-asset base units one whole pool token
// redeems for, at the pool token's fixed 18-decimal precision. A pool
// with zero supply bootstraps at one base unit of asset per token unit.
func (e *Engine) TokenValue(ctx context.Context, pool *registry.Pool) (string, error) {
	totalSupply, err := pool.Contract.CallBigInt(ctx, "totalSupply")
	if err != nil {
		return "", err
	}
	if totalSupply.Sign() == 0 {
		return pow10(pool.Config.Asset.Decimals).String(), nil
	}

	totalValue, err := pool.Contract.CallBigInt(ctx, "totalValue")
	if err != nil {
		return "", err
	}

	value := new(big.Int).Mul(totalValue, poolTokenUnit)
	return value.Div(value, totalSupply).String(), nil
}

// ValueLocked returns the pool's total value priced in the reference
// asset's base units.
func (e *Engine) ValueLocked(ctx context.Context, pool *registry.Pool) (string, error) {
	totalValue, err := pool.Contract.CallBigInt(ctx, "totalValue")
	if err != nil {
		return "", err
	}
	if pool.Config.Asset.Symbol == meta.ReferenceAssetSymbol {
		return totalValue.String(), nil
	}
	if e.rater == nil {
		return "", fmt.Errorf("no rate oracle available")
	}

	path, err := e.ratePath(pool)
	if err != nil {
		return "", err
	}

	assetUnit := pow10(pool.Config.Asset.Decimals)
	rate, err := e.rater.Rate(ctx, assetUnit, path)
	if err != nil {
		return "", err
	}

	locked := new(big.Int).Mul(totalValue, rate)
	return locked.Div(locked, assetUnit).String(), nil
}

// InterestEarned returns the interest the pool's strategy has accrued,
// in deposit-asset base units. The read is best-effort: the primary
// strategy query falls back to a lending-position-versus-debt
// computation, and finally to zero.
func (e *Engine) InterestEarned(ctx context.Context, pool *registry.Pool) string {
	value := e.evalFallbacks(ctx, "interest-earned", []fallback{
		{name: "strategy-direct", fn: func(ctx context.Context) (*big.Int, error) {
			strategy, err := e.strategyHandle(ctx, pool)
			if err != nil {
				return nil, err
			}
			return strategy.CallBigInt(ctx, "interestEarned")
		}},
		{name: "lending-position", fn: func(ctx context.Context) (*big.Int, error) {
			return e.interestFromLendingPosition(ctx, pool)
		}},
	})
	return value.String()
}

// interestFromLendingPosition derives interest as the strategy's lending
// receipt balance minus the debt the pool has recorded against it,
// converted back to asset units through the rate oracle.
func (e *Engine) interestFromLendingPosition(ctx context.Context, pool *registry.Pool) (*big.Int, error) {
	strategy, err := e.strategyHandle(ctx, pool)
	if err != nil {
		return nil, err
	}

	receiptToken, err := strategy.CallAddress(ctx, "receiptToken")
	if err != nil {
		return nil, err
	}
	balance, err := registry.NewHandle(receiptToken, e.erc20ABI, e.transport).
		CallBigInt(ctx, "balanceOf", strategy.Address())
	if err != nil {
		return nil, err
	}

	var debt *big.Int
	if pool.Config.Version == meta.VersionV1 {
		debt, err = pool.Contract.CallBigInt(ctx, "totalDebt")
	} else {
		debt, err = pool.Contract.CallBigInt(ctx, "totalDebtOf", strategy.Address())
	}
	if err != nil {
		return nil, err
	}

	diff := new(big.Int).Sub(balance, debt)
	if diff.Sign() <= 0 {
		return new(big.Int), nil
	}
	if e.rater == nil {
		return nil, fmt.Errorf("no rate oracle available")
	}

	assetAddr, err := e.assetAddress(pool)
	if err != nil {
		return nil, err
	}
	return e.rater.Rate(ctx, diff, []common.Address{receiptToken, assetAddr})
}

// CanRebalance reports whether the pool holds an uninvested balance and
// a rebalance would execute. Gas-estimation failure means "cannot
// rebalance", not an error.
func (e *Engine) CanRebalance(ctx context.Context, pool *registry.Pool) bool {
	idle, err := pool.Contract.CallBigInt(ctx, "tokensHere")
	if err != nil {
		e.logger.Warn("uninvested balance read failed",
			zap.String("pool", pool.Config.Name), zap.Error(err))
		return false
	}
	if idle.Sign() == 0 {
		return false
	}

	data, err := pool.Contract.Pack("rebalance")
	if err != nil {
		return false
	}
	to := pool.Contract.Address()
	if _, err := e.transport.EstimateGas(ctx, ethereum.CallMsg{To: &to, Data: data}); err != nil {
		e.logger.Debug("rebalance estimation failed",
			zap.String("pool", pool.Config.Name), zap.Error(err))
		return false
	}
	return true
}

// WithdrawTimelock returns the seconds remaining before the account can
// withdraw. Only the timelocked pool variant makes any call; every
// other pool reports zero immediately.
func (e *Engine) WithdrawTimelock(ctx context.Context, pool *registry.Pool, account common.Address) (string, error) {
	if !pool.Config.Timelocked {
		return "0", nil
	}

	lockPeriod, err := pool.Contract.CallBigInt(ctx, "lockPeriod")
	if err != nil {
		return "", err
	}
	depositedAt, err := pool.Contract.CallBigInt(ctx, "depositTimestamp", account)
	if err != nil {
		return "", err
	}
	if depositedAt.Sign() == 0 {
		return "0", nil
	}

	unlockAt := new(big.Int).Add(depositedAt, lockPeriod)
	remaining := unlockAt.Sub(unlockAt, big.NewInt(time.Now().Unix()))
	if remaining.Sign() <= 0 {
		return "0", nil
	}
	return remaining.String(), nil
}

// ClaimableRewards returns the account's claimable reward balance, or
// "0" when the pool has no rewards contract, the reward token is not
// the expected one, or any underlying call fails.
func (e *Engine) ClaimableRewards(ctx context.Context, pool *registry.Pool, account common.Address) string {
	rewards, err := e.RewardsContract(ctx, pool)
	if err != nil {
		if !errors.Is(err, ErrNoRewardsContract) {
			e.logger.Warn("rewards lookup failed",
				zap.String("pool", pool.Config.Name), zap.Error(err))
		}
		return "0"
	}

	rewardToken, err := rewards.CallAddress(ctx, "rewardToken")
	if err != nil {
		e.logger.Warn("reward token read failed",
			zap.String("pool", pool.Config.Name), zap.Error(err))
		return "0"
	}
	expected, ok := e.reg.Token(meta.RewardTokenSymbol)
	if !ok || rewardToken != expected.Address() {
		return "0"
	}

	claimable, err := rewards.CallBigInt(ctx, "claimable", account)
	if err != nil {
		e.logger.Warn("claimable read failed",
			zap.String("pool", pool.Config.Name), zap.Error(err))
		return "0"
	}
	return claimable.String()
}

// RewardRate returns the rewards contract's distribution rate, or "0"
// when unavailable.
func (e *Engine) RewardRate(ctx context.Context, pool *registry.Pool) string {
	value := e.evalFallbacks(ctx, "reward-rate", []fallback{
		{name: "rewards-contract", fn: func(ctx context.Context) (*big.Int, error) {
			rewards, err := e.RewardsContract(ctx, pool)
			if err != nil {
				return nil, err
			}
			return rewards.CallBigInt(ctx, "rewardRate")
		}},
	})
	return value.String()
}

// RewardsContract resolves the pool's rewards contract handle, or
// ErrNoRewardsContract when the pool declares none.
func (e *Engine) RewardsContract(ctx context.Context, pool *registry.Pool) (*registry.Handle, error) {
	if pool.Config.Version == meta.VersionV1 {
		return nil, fmt.Errorf("%w: %s", ErrNoRewardsContract, pool.Config.Name)
	}
	addr, err := pool.Contract.CallAddress(ctx, "poolRewards")
	if err != nil {
		return nil, err
	}
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s", ErrNoRewardsContract, pool.Config.Name)
	}
	return registry.NewHandle(addr, e.rewardsABI, e.transport), nil
}

// StrategyAddress returns the pool's active strategy address.
func (e *Engine) StrategyAddress(ctx context.Context, pool *registry.Pool) (common.Address, error) {
	strategy, err := e.strategyHandle(ctx, pool)
	if err != nil {
		return common.Address{}, err
	}
	return strategy.Address(), nil
}

// StrategyInfo returns the strategy address and, when the strategy
// exposes one, its declared name.
func (e *Engine) StrategyInfo(ctx context.Context, pool *registry.Pool) (StrategyInfo, error) {
	strategy, err := e.strategyHandle(ctx, pool)
	if err != nil {
		return StrategyInfo{}, err
	}

	info := StrategyInfo{Address: strategy.Address()}
	if name, err := strategy.CallString(ctx, "NAME"); err == nil {
		info.Name = name
	}
	return info, nil
}

// strategyHandle resolves the pool's active strategy per its version:
// v1 asks the controller, v3 asks the pool itself.
func (e *Engine) strategyHandle(ctx context.Context, pool *registry.Pool) (*registry.Handle, error) {
	var addr common.Address
	switch pool.Config.Version {
	case meta.VersionV1:
		controller := e.reg.Controller()
		if controller == nil {
			return nil, fmt.Errorf("%w: no controller resolved", ErrNoStrategyFound)
		}
		a, err := controller.CallAddress(ctx, "strategy", pool.Contract.Address())
		if err != nil {
			return nil, err
		}
		addr = a
	default:
		strategies, err := pool.Contract.CallAddresses(ctx, "getStrategies")
		if err != nil {
			return nil, err
		}
		if len(strategies) > 0 {
			addr = strategies[0]
		}
	}

	if addr == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s", ErrNoStrategyFound, pool.Config.Name)
	}
	return registry.NewHandle(addr, e.strategyABI, e.transport), nil
}

// ratePath builds the oracle path from the pool's asset to the
// reference asset. Native-asset pools price through the wrapped native
// token.
func (e *Engine) ratePath(pool *registry.Pool) ([]common.Address, error) {
	assetAddr, err := e.assetAddress(pool)
	if err != nil {
		return nil, err
	}
	ref, ok := e.reg.Token(meta.ReferenceAssetSymbol)
	if !ok {
		return nil, fmt.Errorf("reference asset %s not resolved", meta.ReferenceAssetSymbol)
	}
	return []common.Address{assetAddr, ref.Address()}, nil
}

func (e *Engine) assetAddress(pool *registry.Pool) (common.Address, error) {
	if !pool.Config.Asset.IsNative() {
		return common.HexToAddress(pool.Config.Asset.Address), nil
	}
	wrapped, ok := e.reg.Token("WETH")
	if !ok {
		return common.Address{}, fmt.Errorf("wrapped native token not resolved")
	}
	return wrapped.Address(), nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
