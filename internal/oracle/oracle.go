// Package oracle prices arbitrary assets against each other through a
// swap router's simulated quote.
package oracle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vesper/internal/registry"
)

// RateOracle returns the output amount of a simulated swap along a token
// path. It is a thin wrapper over the router's getAmountsOut view.
type RateOracle struct {
	router *registry.Handle
}

// New creates a rate oracle over the given router handle.
func New(router *registry.Handle) *RateOracle {
	return &RateOracle{router: router}
}

// Rate quotes amountIn of path[0] in units of the final path element.
// A path that starts and ends on the same token is the identity rate.
func (o *RateOracle) Rate(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	if len(path) < 2 || path[0] == path[len(path)-1] {
		return new(big.Int).Set(amountIn), nil
	}
	if o.router == nil {
		return nil, fmt.Errorf("no swap router resolved")
	}

	values, err := o.router.Call(ctx, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("getAmountsOut: return size %d", len(values))
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAmountsOut: unexpected type %T", values[0])
	}
	if len(amounts) == 0 {
		return nil, fmt.Errorf("getAmountsOut: empty amounts")
	}
	return amounts[len(amounts)-1], nil
}
