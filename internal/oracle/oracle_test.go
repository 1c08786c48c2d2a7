package oracle

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"vesper/internal/abis"
	"vesper/internal/chain/chaintest"
	"vesper/internal/registry"
)

var (
	routerAddr = common.HexToAddress("0x0000000000000000000000000000000000000777")
	tokenA     = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	tokenB     = common.HexToAddress("0x00000000000000000000000000000000000000B2")
)

func TestRateIdentity(t *testing.T) {
	// No router needed when no conversion happens.
	o := New(nil)

	got, err := o.Rate(context.Background(), big.NewInt(42), []common.Address{tokenA})
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if got.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("rate = %s, want identity 42", got)
	}

	got, err = o.Rate(context.Background(), big.NewInt(42), []common.Address{tokenA, tokenB, tokenA})
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if got.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("rate = %s, want identity on a circular path", got)
	}
}

func TestRateQuotesThroughRouter(t *testing.T) {
	fake := chaintest.New(1)
	routerABI, err := abis.SwapRouter()
	if err != nil {
		t.Fatalf("router abi: %v", err)
	}
	fake.Handle(routerAddr, routerABI, "getAmountsOut", []*big.Int{big.NewInt(1000), big.NewInt(2500)})

	o := New(registry.NewHandle(routerAddr, routerABI, fake))
	got, err := o.Rate(context.Background(), big.NewInt(1000), []common.Address{tokenA, tokenB})
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if got.Cmp(big.NewInt(2500)) != 0 {
		t.Fatalf("rate = %s, want last hop amount 2500", got)
	}
}

func TestRateWithoutRouter(t *testing.T) {
	o := New(nil)
	if _, err := o.Rate(context.Background(), big.NewInt(1), []common.Address{tokenA, tokenB}); err == nil {
		t.Fatalf("Rate succeeded without a router")
	}
}
