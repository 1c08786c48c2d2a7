// Package pool is the public operation façade: per-pool read accessors
// and the write operations (deposit, withdraw, claim, rebalance,
// migrate), each executed as one sequenced logical transaction.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"vesper/internal/chain"
	"vesper/internal/engine"
	"vesper/internal/registry"
	"vesper/internal/sequencer"
)

// ErrNoSuccessor is returned when a migration is requested for a pool
// without a configured successor.
var ErrNoSuccessor = errors.New("pool has no successor to migrate into")

// ErrInvalidAmount is returned for write amounts that are not positive
// base-unit integers.
var ErrInvalidAmount = errors.New("invalid amount")

// DefaultDustToleranceBps is the withdraw dust tolerance: a requested
// amount within 0.1% of the full balance sweeps the full balance.
const DefaultDustToleranceBps = 10

// poolTokenDecimals is the fixed precision of pool share tokens.
const poolTokenDecimals = 18

var poolTokenUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(poolTokenDecimals), nil)

// nativeDepositData is the 4-byte selector of the payable deposit().
var nativeDepositData = crypto.Keccak256([]byte("deposit()"))[:4]

// Config holds per-client settings.
type Config struct {
	// Account is the address all operations act for.
	Account common.Address
	// ChainID is the network the permit domain binds to.
	ChainID *big.Int
	// DustToleranceBps overrides DefaultDustToleranceBps when positive.
	DustToleranceBps int64
	Logger           *zap.Logger
}

// Client operates one pool for one account.
type Client struct {
	pool      *registry.Pool
	reg       *registry.Registry
	engine    *engine.Engine
	seq       *sequencer.Sequencer
	transport chain.Transport
	reader    versionReader

	account          common.Address
	chainID          *big.Int
	dustToleranceBps int64
	logger           *zap.Logger
}

// New wires a pool client.
func New(p *registry.Pool, reg *registry.Registry, eng *engine.Engine, seq *sequencer.Sequencer, transport chain.Transport, cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DustToleranceBps <= 0 {
		cfg.DustToleranceBps = DefaultDustToleranceBps
	}
	return &Client{
		pool:             p,
		reg:              reg,
		engine:           eng,
		seq:              seq,
		transport:        transport,
		reader:           readerFor(p.Config.Version),
		account:          cfg.Account,
		chainID:          cfg.ChainID,
		dustToleranceBps: cfg.DustToleranceBps,
		logger:           cfg.Logger.With(zap.String("pool", p.Config.Name)),
	}
}

// Name returns the pool's symbolic name.
func (c *Client) Name() string { return c.pool.Config.Name }

// Pool returns the underlying resolved pool.
func (c *Client) Pool() *registry.Pool { return c.pool }

// TxOption adjusts how a write operation executes.
type TxOption func(*txOptions)

type txOptions struct {
	events        chan<- sequencer.Event
	prefetchNonce bool
}

// WithEvents subscribes a channel to the operation's lifecycle events.
func WithEvents(ch chan<- sequencer.Event) TxOption {
	return func(o *txOptions) { o.events = ch }
}

// WithPrefetchedNonce pre-sequences steps from the account's pending
// nonce instead of waiting for each receipt before sending the next.
func WithPrefetchedNonce() TxOption {
	return func(o *txOptions) { o.prefetchNonce = true }
}

func applyTxOptions(opts []TxOption) txOptions {
	var o txOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// --- read accessors ---

// Balance returns the account's pool token balance.
func (c *Client) Balance(ctx context.Context) (string, error) {
	b, err := c.pool.Contract.CallBigInt(ctx, "balanceOf", c.account)
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// AssetBalance returns the account's deposit-asset balance. Native
// balances need a transport that can read account state; transports
// without it report zero.
func (c *Client) AssetBalance(ctx context.Context) (string, error) {
	if !c.pool.Config.Asset.IsNative() {
		b, err := c.pool.Asset.CallBigInt(ctx, "balanceOf", c.account)
		if err != nil {
			return "", err
		}
		return b.String(), nil
	}

	type balanceReader interface {
		BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	}
	if br, ok := c.transport.(balanceReader); ok {
		b, err := br.BalanceAt(ctx, c.account, nil)
		if err != nil {
			return "", err
		}
		return b.String(), nil
	}
	return "0", nil
}

// DepositedBalance returns the account's position valued in
// deposit-asset base units.
func (c *Client) DepositedBalance(ctx context.Context) (string, error) {
	balance, err := c.pool.Contract.CallBigInt(ctx, "balanceOf", c.account)
	if err != nil {
		return "", err
	}
	if balance.Sign() == 0 {
		return "0", nil
	}

	price, err := c.reader.PricePerShare(ctx, c.pool)
	if err != nil {
		return "", err
	}

	deposited := new(big.Int).Mul(balance, price)
	return deposited.Div(deposited, poolTokenUnit).String(), nil
}

// TokenValue returns the deposit-asset base units one whole pool token
// redeems for.
func (c *Client) TokenValue(ctx context.Context) (string, error) {
	return c.engine.TokenValue(ctx, c.pool)
}

// ValueLocked returns the pool's total value priced in the reference
// asset.
func (c *Client) ValueLocked(ctx context.Context) (string, error) {
	return c.engine.ValueLocked(ctx, c.pool)
}

// InterestEarned returns the strategy's accrued interest, best-effort.
func (c *Client) InterestEarned(ctx context.Context) string {
	return c.engine.InterestEarned(ctx, c.pool)
}

// ClaimableRewards returns the account's claimable rewards,
// best-effort.
func (c *Client) ClaimableRewards(ctx context.Context) string {
	return c.engine.ClaimableRewards(ctx, c.pool, c.account)
}

// WithdrawTimelock returns the seconds remaining before the account may
// withdraw.
func (c *Client) WithdrawTimelock(ctx context.Context) (string, error) {
	return c.engine.WithdrawTimelock(ctx, c.pool, c.account)
}

// CanRebalance reports whether a rebalance would execute.
func (c *Client) CanRebalance(ctx context.Context) bool {
	return c.engine.CanRebalance(ctx, c.pool)
}

// StrategyAddress returns the pool's active strategy address.
func (c *Client) StrategyAddress(ctx context.Context) (common.Address, error) {
	return c.engine.StrategyAddress(ctx, c.pool)
}

// StrategyInfo returns the pool's active strategy details.
func (c *Client) StrategyInfo(ctx context.Context) (engine.StrategyInfo, error) {
	return c.engine.StrategyInfo(ctx, c.pool)
}

func parseAmount(amount string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return v, nil
}
