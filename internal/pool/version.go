package pool

import (
	"context"
	"math/big"

	"vesper/internal/meta"
	"vesper/internal/registry"
)

// versionReader hides the read-method differences between pool
// interface generations. The right reader is picked once at client
// construction.
type versionReader interface {
	PricePerShare(ctx context.Context, p *registry.Pool) (*big.Int, error)
}

func readerFor(version meta.Version) versionReader {
	if version == meta.VersionV1 {
		return v1Reader{}
	}
	return v3Reader{}
}

type v1Reader struct{}

func (v1Reader) PricePerShare(ctx context.Context, p *registry.Pool) (*big.Int, error) {
	return p.Contract.CallBigInt(ctx, "getPricePerShare")
}

type v3Reader struct{}

func (v3Reader) PricePerShare(ctx context.Context, p *registry.Pool) (*big.Int, error) {
	return p.Contract.CallBigInt(ctx, "pricePerShare")
}
