// Package registry resolves the set of contract handles to operate on
// for the active network.
package registry

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vesper/internal/abis"
	"vesper/internal/chain"
	"vesper/internal/meta"
)

// ErrUnsupportedNetwork is returned when zero pools resolve for the
// active network id.
var ErrUnsupportedNetwork = errors.New("no pools resolve for network")

// Pool couples a pool's metadata with its bound contract handles.
type Pool struct {
	Config   meta.PoolConfig
	Contract *Handle
	// Asset is nil when the deposit asset is the chain's native asset.
	Asset *Handle
}

// Registry holds every handle resolved for one network id. Immutable
// after construction.
type Registry struct {
	networkID         uint64
	controller        *Handle
	collateralManager *Handle
	swapRouter        *Handle
	poolMigrator      *Handle
	pools             []*Pool
	tokens            map[string]*Handle
	tokenDecimals     map[string]int
}

// NormalizeNetworkID remaps the well-known local-testnet id onto the
// public network it forks from, bypassing simulators that misreport
// chain identity.
func NormalizeNetworkID(networkID uint64) uint64 {
	if networkID == meta.NetworkLocalnet {
		return meta.NetworkMainnet
	}
	return networkID
}

// Resolve builds the handle set for networkID, keeping only pools in the
// requested stages (all stages when none are given). Pools without a
// configured address are skipped.
func Resolve(networkID uint64, stages []meta.Stage, transport chain.Transport, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	networkID = NormalizeNetworkID(networkID)

	erc20ABI, err := abis.ERC20()
	if err != nil {
		return nil, err
	}

	wanted := make(map[meta.Stage]struct{}, len(stages))
	for _, s := range stages {
		wanted[s] = struct{}{}
	}

	r := &Registry{
		networkID:     networkID,
		tokens:        make(map[string]*Handle),
		tokenDecimals: make(map[string]int),
	}

	for _, cfg := range meta.Pools() {
		if cfg.NetworkID != networkID {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[cfg.Stage]; !ok {
				continue
			}
		}
		if cfg.Address == "" || !common.IsHexAddress(cfg.Address) {
			logger.Warn("pool has no address on this network, skipping",
				zap.String("pool", cfg.Name),
				zap.Uint64("network_id", networkID))
			continue
		}

		poolABI, err := poolABIFor(cfg.Version)
		if err != nil {
			return nil, err
		}

		pool := &Pool{
			Config:   cfg,
			Contract: NewHandle(common.HexToAddress(cfg.Address), poolABI, transport),
		}
		if !cfg.Asset.IsNative() {
			pool.Asset = NewHandle(common.HexToAddress(cfg.Asset.Address), erc20ABI, transport)
		}
		r.pools = append(r.pools, pool)
	}

	if len(r.pools) == 0 {
		logger.Warn("no pools resolved", zap.Uint64("network_id", networkID))
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedNetwork, networkID)
	}

	for _, cfg := range meta.Controllers() {
		if cfg.NetworkID != networkID {
			continue
		}
		if cfg.Controller != "" {
			controllerABI, err := abis.Controller()
			if err != nil {
				return nil, err
			}
			r.controller = NewHandle(common.HexToAddress(cfg.Controller), controllerABI, transport)
		}
		if cfg.CollateralManager != "" {
			cmABI, err := abis.CollateralManager()
			if err != nil {
				return nil, err
			}
			r.collateralManager = NewHandle(common.HexToAddress(cfg.CollateralManager), cmABI, transport)
		}
		if cfg.SwapRouter != "" {
			routerABI, err := abis.SwapRouter()
			if err != nil {
				return nil, err
			}
			r.swapRouter = NewHandle(common.HexToAddress(cfg.SwapRouter), routerABI, transport)
		}
		if cfg.PoolMigrator != "" {
			migratorABI, err := abis.PoolMigrator()
			if err != nil {
				return nil, err
			}
			r.poolMigrator = NewHandle(common.HexToAddress(cfg.PoolMigrator), migratorABI, transport)
		}
		break
	}

	for _, cfg := range meta.Tokens() {
		if cfg.NetworkID != networkID {
			continue
		}
		r.tokens[cfg.Symbol] = NewHandle(common.HexToAddress(cfg.Address), erc20ABI, transport)
		r.tokenDecimals[cfg.Symbol] = cfg.Decimals
	}

	logger.Info("registry resolved",
		zap.Uint64("network_id", networkID),
		zap.Int("pools", len(r.pools)),
		zap.Int("tokens", len(r.tokens)))

	return r, nil
}

func poolABIFor(version meta.Version) (abi.ABI, error) {
	switch version {
	case meta.VersionV1:
		return abis.PoolV1()
	default:
		return abis.PoolV3()
	}
}

// NetworkID returns the normalized network id the registry was resolved
// for.
func (r *Registry) NetworkID() uint64 { return r.networkID }

// Controller returns the controller handle, or nil when the network has
// none.
func (r *Registry) Controller() *Handle { return r.controller }

// CollateralManager returns the collateral manager handle, or nil.
func (r *Registry) CollateralManager() *Handle { return r.collateralManager }

// SwapRouter returns the swap router handle used for rate lookups, or
// nil.
func (r *Registry) SwapRouter() *Handle { return r.swapRouter }

// PoolMigrator returns the pool migrator handle, or nil.
func (r *Registry) PoolMigrator() *Handle { return r.poolMigrator }

// Pools returns every resolved pool.
func (r *Registry) Pools() []*Pool { return r.pools }

// PoolByName returns the resolved pool with the given symbolic name.
func (r *Registry) PoolByName(name string) (*Pool, bool) {
	for _, p := range r.pools {
		if p.Config.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Token returns the handle for a standalone token by symbol.
func (r *Registry) Token(symbol string) (*Handle, bool) {
	h, ok := r.tokens[symbol]
	return h, ok
}

// TokenDecimals returns the declared decimals for a standalone token.
func (r *Registry) TokenDecimals(symbol string) (int, bool) {
	d, ok := r.tokenDecimals[symbol]
	return d, ok
}
