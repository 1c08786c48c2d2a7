package engine

import (
	"context"
	"math/big"

	"go.uber.org/zap"
)

// fallback is one layer of a best-effort read chain. Layers are
// evaluated in order; each failure is logged and absorbed, never
// propagated.
type fallback struct {
	name string
	fn   func(ctx context.Context) (*big.Int, error)
}

// evalFallbacks returns the first layer's value that resolves, or zero
// when every layer fails.
func (e *Engine) evalFallbacks(ctx context.Context, read string, chain []fallback) *big.Int {
	for _, layer := range chain {
		v, err := layer.fn(ctx)
		if err == nil {
			return v
		}
		e.logger.Warn("fallback layer failed",
			zap.String("read", read),
			zap.String("layer", layer.name),
			zap.Error(err))
	}
	return new(big.Int)
}
