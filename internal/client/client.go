// Package client wires the registry, derived-value engine, sequencer
// and per-pool façades into one connected client.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vesper/internal/chain"
	"vesper/internal/engine"
	"vesper/internal/meta"
	"vesper/internal/oracle"
	"vesper/internal/pool"
	"vesper/internal/portfolio"
	"vesper/internal/registry"
	"vesper/internal/sequencer"
)

// Config holds client-wide settings.
type Config struct {
	// Account is the address operations act for.
	Account common.Address
	// Stages filters which pool lifecycle stages resolve; empty means
	// all.
	Stages []meta.Stage
	// GasOverestimation multiplies every gas estimate (default 1.5).
	GasOverestimation float64
	// DustToleranceBps is the withdraw dust tolerance in basis points
	// (default 10, i.e. 0.1%).
	DustToleranceBps int64
	// ReceiptPollInterval is the delay between receipt polls.
	ReceiptPollInterval time.Duration
	Logger              *zap.Logger
}

// Client is a connected Vesper client for one account on one network.
type Client struct {
	transport chain.Transport
	reg       *registry.Registry
	engine    *engine.Engine
	seq       *sequencer.Sequencer
	pools     map[string]*pool.Client
	ordered   []*pool.Client
	agg       *portfolio.Aggregator
	logger    *zap.Logger
}

// New resolves the active network through the transport and builds the
// full client. Pool metadata is loaded once here and never reloaded.
func New(ctx context.Context, transport chain.Transport, cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	chainID, err := transport.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return nil, fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}

	reg, err := registry.Resolve(chainID.Uint64(), cfg.Stages, transport, logger)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(reg, oracle.New(reg.SwapRouter()), transport, logger)
	if err != nil {
		return nil, err
	}

	seq := sequencer.New(transport, sequencer.Config{
		GasOverestimation:   cfg.GasOverestimation,
		ReceiptPollInterval: cfg.ReceiptPollInterval,
		Logger:              logger,
	})

	c := &Client{
		transport: transport,
		reg:       reg,
		engine:    eng,
		seq:       seq,
		pools:     make(map[string]*pool.Client),
		logger:    logger,
	}
	for _, p := range reg.Pools() {
		pc := pool.New(p, reg, eng, seq, transport, pool.Config{
			Account:          cfg.Account,
			ChainID:          chainID,
			DustToleranceBps: cfg.DustToleranceBps,
			Logger:           logger,
		})
		c.pools[p.Config.Name] = pc
		c.ordered = append(c.ordered, pc)
	}
	c.agg = portfolio.New(c.ordered, logger)

	return c, nil
}

// Pool returns the client for the named pool.
func (c *Client) Pool(name string) (*pool.Client, bool) {
	p, ok := c.pools[name]
	return p, ok
}

// Pools returns every pool client in resolution order.
func (c *Client) Pools() []*pool.Client { return c.ordered }

// Portfolio returns the account's aggregated view.
func (c *Client) Portfolio() *portfolio.Aggregator { return c.agg }

// NetworkID returns the normalized network id the client resolved.
func (c *Client) NetworkID() uint64 { return c.reg.NetworkID() }
