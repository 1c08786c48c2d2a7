// Package abis holds the contract interfaces the client binds to, parsed
// lazily and cached for the process lifetime.
package abis

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

type lazyABI struct {
	json string
	once sync.Once
	abi  abi.ABI
	err  error
}

func (l *lazyABI) get() (abi.ABI, error) {
	l.once.Do(func() {
		l.abi, l.err = abi.JSON(strings.NewReader(l.json))
	})
	return l.abi, l.err
}

var (
	erc20             = &lazyABI{json: erc20ABIJSON}
	poolV1            = &lazyABI{json: poolV1ABIJSON}
	poolV3            = &lazyABI{json: poolV3ABIJSON}
	controller        = &lazyABI{json: controllerABIJSON}
	strategy          = &lazyABI{json: strategyABIJSON}
	poolRewards       = &lazyABI{json: poolRewardsABIJSON}
	collateralManager = &lazyABI{json: collateralManagerABIJSON}
	swapRouter        = &lazyABI{json: swapRouterABIJSON}
	poolMigrator      = &lazyABI{json: poolMigratorABIJSON}
)

// ERC20 returns the parsed ERC20 ABI, including the permit extensions.
func ERC20() (abi.ABI, error) { return erc20.get() }

// PoolV1 returns the parsed v1 pool ABI.
func PoolV1() (abi.ABI, error) { return poolV1.get() }

// PoolV3 returns the parsed v3 pool ABI.
func PoolV3() (abi.ABI, error) { return poolV3.get() }

// Controller returns the parsed v1 controller ABI.
func Controller() (abi.ABI, error) { return controller.get() }

// Strategy returns the parsed strategy ABI.
func Strategy() (abi.ABI, error) { return strategy.get() }

// PoolRewards returns the parsed pool rewards ABI.
func PoolRewards() (abi.ABI, error) { return poolRewards.get() }

// CollateralManager returns the parsed collateral manager ABI.
func CollateralManager() (abi.ABI, error) { return collateralManager.get() }

// SwapRouter returns the parsed swap router ABI used for rate lookups.
func SwapRouter() (abi.ABI, error) { return swapRouter.get() }

// PoolMigrator returns the parsed pool migrator ABI.
func PoolMigrator() (abi.ABI, error) { return poolMigrator.get() }
