// Package meta describes the deployed Vesper contracts per network. The
// tables here are the only place deployment addresses live; everything
// else resolves handles through the registry.
package meta

// Stage classifies a pool's lifecycle.
type Stage string

const (
	StageTest    Stage = "test"
	StageAlpha   Stage = "alpha"
	StageBeta    Stage = "beta"
	StageProd    Stage = "prod"
	StageRetired Stage = "retired"
)

// Version selects which pool/strategy interface shape applies.
type Version int

const (
	VersionV1 Version = 1
	VersionV3 Version = 3
)

// Network identifiers. The local testnet id is remapped to mainnet at
// resolve time because simulators forked from mainnet misreport it.
const (
	NetworkMainnet  uint64 = 1
	NetworkPolygon  uint64 = 137
	NetworkLocalnet uint64 = 1337
)

// ReferenceAssetSymbol is the asset all value-locked figures are priced
// against.
const ReferenceAssetSymbol = "USDC"

// RewardTokenSymbol is the protocol reward token.
const RewardTokenSymbol = "VSP"

// Asset describes a pool's deposit asset. An empty Address means the
// chain's native asset.
type Asset struct {
	Symbol   string
	Decimals int
	Address  string
}

// IsNative reports whether the asset is the chain's native asset.
func (a Asset) IsNative() bool { return a.Address == "" }

// PoolConfig describes one deployed pool.
type PoolConfig struct {
	Name      string
	Address   string
	Asset     Asset
	NetworkID uint64
	Stage     Stage
	Version   Version
	// Successor names the pool a retired pool migrates into, if any.
	Successor string
	// Timelocked marks the single pool variant that enforces a
	// withdraw lock.
	Timelocked bool
}

// TokenConfig describes a standalone token deployment.
type TokenConfig struct {
	Symbol    string
	Address   string
	Decimals  int
	NetworkID uint64
}

// ControllerConfig describes the controller and collateral manager for a
// network.
type ControllerConfig struct {
	NetworkID         uint64
	Controller        string
	CollateralManager string
	SwapRouter        string
	PoolMigrator      string
}

// Pools returns every known pool across all networks.
func Pools() []PoolConfig {
	return []PoolConfig{
		{
			Name:      "vETH",
			Address:   "0x103cc17C2B1586e5Cd9BaD308690bCd0BBe54D5e",
			Asset:     Asset{Symbol: "ETH", Decimals: 18},
			NetworkID: NetworkMainnet,
			Stage:     StageProd,
			Version:   VersionV1,
			Successor: "vaETH",
		},
		{
			Name:      "vaETH",
			Address:   "0xd1C117319B3595fbc39b471AB1fd485629eb05F2",
			Asset:     Asset{Symbol: "ETH", Decimals: 18},
			NetworkID: NetworkMainnet,
			Stage:     StageProd,
			Version:   VersionV3,
		},
		{
			Name:      "vWBTC",
			Address:   "0x4B2e76EbBc9f2923d83F5FBDe695D8733db1a17B",
			Asset:     Asset{Symbol: "WBTC", Decimals: 8, Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"},
			NetworkID: NetworkMainnet,
			Stage:     StageRetired,
			Version:   VersionV1,
			Successor: "vaWBTC",
		},
		{
			Name:      "vaWBTC",
			Address:   "0x01e1d41C1159b745298724c5Fd3eAfF3da1C6efD",
			Asset:     Asset{Symbol: "WBTC", Decimals: 8, Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"},
			NetworkID: NetworkMainnet,
			Stage:     StageProd,
			Version:   VersionV3,
		},
		{
			Name:      "vaDAI",
			Address:   "0x0538C8bAc84E95A9dF8aC10Aad17DbE81b9E36ee",
			Asset:     Asset{Symbol: "DAI", Decimals: 18, Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F"},
			NetworkID: NetworkMainnet,
			Stage:     StageProd,
			Version:   VersionV3,
		},
		{
			Name:      "vaUSDC",
			Address:   "0xa8b607Aa09B6A2E306F93e74c282Fb13f6A80452",
			Asset:     Asset{Symbol: "USDC", Decimals: 6, Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"},
			NetworkID: NetworkMainnet,
			Stage:     StageProd,
			Version:   VersionV3,
		},
		{
			Name:       "vVSP",
			Address:    "0xbA4cFE5741b357FA371b506e5db0774aBFeCf8Fc",
			Asset:      Asset{Symbol: "VSP", Decimals: 18, Address: "0x1b40183EFB4Dd766f11bDa7A7c3AD8982e998421"},
			NetworkID:  NetworkMainnet,
			Stage:      StageProd,
			Version:    VersionV3,
			Timelocked: true,
		},
		{
			Name:      "vaUSDC-polygon",
			Address:   "0x24E4cE0B11E9a421b2aF7d6C5b47148c8d4eAB4e",
			Asset:     Asset{Symbol: "USDC", Decimals: 6, Address: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"},
			NetworkID: NetworkPolygon,
			Stage:     StageBeta,
			Version:   VersionV3,
		},
	}
}

// Tokens returns standalone token deployments.
func Tokens() []TokenConfig {
	return []TokenConfig{
		{Symbol: "VSP", Address: "0x1b40183EFB4Dd766f11bDa7A7c3AD8982e998421", Decimals: 18, NetworkID: NetworkMainnet},
		{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, NetworkID: NetworkMainnet},
		{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18, NetworkID: NetworkMainnet},
		{Symbol: "USDC", Address: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", Decimals: 6, NetworkID: NetworkPolygon},
	}
}

// Controllers returns per-network controller deployments.
func Controllers() []ControllerConfig {
	return []ControllerConfig{
		{
			NetworkID:         NetworkMainnet,
			Controller:        "0xa4F1671d3Aee73C05b552d57f2d16d3cfcBd0217",
			CollateralManager: "0xc7931F4C3A3Ea91BD0A67A3c24c61Fb2E316a4fd",
			SwapRouter:        "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
			PoolMigrator:      "0x2fb7421BCd4CA49bA6a072a4832a44c2D8a4F2a0",
		},
		{
			NetworkID:         NetworkPolygon,
			Controller:        "0xC8d077eB0C587bA260aF3b4b454F7f27E2dA39a5",
			CollateralManager: "",
			SwapRouter:        "0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff",
			PoolMigrator:      "",
		},
	}
}
