package permit

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"vesper/internal/abis"
	"vesper/internal/chain"
	"vesper/internal/chain/chaintest"
	"vesper/internal/registry"
)

func TestSplit(t *testing.T) {
	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = byte(i)
	}

	cases := []struct {
		rawV  byte
		wantV uint8
	}{
		{0, 27},
		{1, 28},
		{27, 27},
		{28, 28},
	}
	for _, tc := range cases {
		sig[64] = tc.rawV
		out, err := Split(sig)
		if err != nil {
			t.Fatalf("Split(v=%d): %v", tc.rawV, err)
		}
		if out.V != tc.wantV {
			t.Fatalf("v = %d, want %d", out.V, tc.wantV)
		}
		if !bytes.Equal(out.R[:], sig[0:32]) {
			t.Fatalf("r does not match first 32 bytes")
		}
		if !bytes.Equal(out.S[:], sig[32:64]) {
			t.Fatalf("s does not match second 32 bytes")
		}
	}
}

func TestSplitRejectsWrongLength(t *testing.T) {
	if _, err := Split(make([]byte, 64)); err == nil {
		t.Fatalf("Split accepted 64-byte signature")
	}
	if _, err := Split(nil); err == nil {
		t.Fatalf("Split accepted nil signature")
	}
}

func testInvocation(t *testing.T, fake *chaintest.FakeTransport) (*Invocation, common.Address) {
	t.Helper()

	erc20, err := abis.ERC20()
	if err != nil {
		t.Fatalf("erc20 abi: %v", err)
	}
	migrator, err := abis.PoolMigrator()
	if err != nil {
		t.Fatalf("migrator abi: %v", err)
	}

	tokenAddr := common.HexToAddress("0x0000000000000000000000000000000000000A01")
	targetAddr := common.HexToAddress("0x0000000000000000000000000000000000000B02")
	successor := common.HexToAddress("0x0000000000000000000000000000000000000C03")
	owner := common.HexToAddress("0x0000000000000000000000000000000000000D04")

	fake.Handle(tokenAddr, erc20, "name", "vETH Pool")
	fake.Handle(tokenAddr, erc20, "nonces", big.NewInt(3))

	shares := big.NewInt(1_000_000)
	return &Invocation{
		Transport: fake,
		Token:     registry.NewHandle(tokenAddr, erc20, fake),
		Target:    registry.NewHandle(targetAddr, migrator, fake),
		Method:    "migrateWithPermit",
		Args: func(deadline *big.Int, sig Signature) []interface{} {
			return []interface{}{tokenAddr, successor, shares, deadline, sig.V, sig.R, sig.S}
		},
		Owner:   owner,
		Spender: targetAddr,
		Value:   shares,
		ChainID: big.NewInt(1),
	}, targetAddr
}

func TestCallDataSignsOnceAndReusesRecording(t *testing.T) {
	fake := chaintest.New(1)
	inv, target := testInvocation(t, fake)

	if inv.To() != target {
		t.Fatalf("To = %s, want target %s", inv.To().Hex(), target.Hex())
	}

	first, err := inv.CallData(context.Background())
	if err != nil {
		t.Fatalf("first CallData: %v", err)
	}
	second, err := inv.CallData(context.Background())
	if err != nil {
		t.Fatalf("second CallData: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Fatalf("estimation and send calldata differ")
	}
	if fake.SignCalls != 1 {
		t.Fatalf("sign calls = %d, want 1", fake.SignCalls)
	}
}

func TestCallDataTypedDataShape(t *testing.T) {
	fake := chaintest.New(1)
	var (
		mu     sync.Mutex
		signed apitypes.TypedData
	)
	fake.SignFn = func(_ common.Address, data apitypes.TypedData) ([]byte, error) {
		mu.Lock()
		signed = data
		mu.Unlock()
		sig := make([]byte, 65)
		sig[64] = 27
		return sig, nil
	}

	inv, _ := testInvocation(t, fake)
	if _, err := inv.CallData(context.Background()); err != nil {
		t.Fatalf("CallData: %v", err)
	}

	if signed.PrimaryType != "Permit" {
		t.Fatalf("primary type = %s, want Permit", signed.PrimaryType)
	}
	if signed.Domain.Name != "vETH Pool" {
		t.Fatalf("domain name = %s, want token name", signed.Domain.Name)
	}
	if signed.Domain.Version != "1" {
		t.Fatalf("domain version = %s, want 1", signed.Domain.Version)
	}
	if got := signed.Message["nonce"]; got != "3" {
		t.Fatalf("nonce = %v, want fresh on-chain value 3", got)
	}
	if got := signed.Message["value"]; got != "1000000" {
		t.Fatalf("value = %v, want 1000000", got)
	}
}

func TestCallDataPropagatesNoSigningCapability(t *testing.T) {
	fake := chaintest.New(1)
	fake.SignFn = func(common.Address, apitypes.TypedData) ([]byte, error) {
		return nil, chain.ErrNoSigningCapability
	}

	inv, _ := testInvocation(t, fake)
	_, err := inv.CallData(context.Background())
	if !errors.Is(err, chain.ErrNoSigningCapability) {
		t.Fatalf("err = %v, want ErrNoSigningCapability", err)
	}
}
