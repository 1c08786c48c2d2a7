// Package permit builds EIP-712 permit payloads, delegates signing to
// the transport, and exposes the signed call as a two-phase invocation:
// gas estimation signs and records, the send reuses the recorded
// signature so both phases carry identical calldata.
package permit

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"vesper/internal/chain"
	"vesper/internal/registry"
)

// DefaultDeadline bounds how long a signed permit stays valid.
const DefaultDeadline = 15 * time.Minute

// domainVersion is the EIP-712 domain version every pool token declares.
const domainVersion = "1"

// Signature holds the fixed-width components recovered from a signed
// typed-data payload.
type Signature struct {
	R common.Hash
	S common.Hash
	V uint8
}

// Split decomposes a 65-byte signature into its r, s and v components.
func Split(sig []byte) (Signature, error) {
	if len(sig) != 65 {
		return Signature{}, fmt.Errorf("signature length %d, want 65", len(sig))
	}

	var out Signature
	copy(out.R[:], sig[0:32])
	copy(out.S[:], sig[32:64])
	out.V = sig[64]
	// Some signers return the recovery id unshifted.
	if out.V < 27 {
		out.V += 27
	}
	return out, nil
}

// Invocation is a permit-authorized method call. The first CallData
// build fetches a fresh nonce, signs the permit and records the result;
// every later build reuses the recorded calldata. Never re-signs.
type Invocation struct {
	Transport chain.Transport
	// Token is the pool token granting the allowance; its name and a
	// fresh nonce go into the typed data.
	Token *registry.Handle
	// Target is the contract consuming the permit.
	Target *registry.Handle
	// Method and Args produce the final call once the signature and
	// deadline are known.
	Method string
	Args   func(deadline *big.Int, sig Signature) []interface{}

	Owner   common.Address
	Spender common.Address
	Value   *big.Int
	ChainID *big.Int
	// Deadline overrides DefaultDeadline when positive.
	Deadline time.Duration

	mu       sync.Mutex
	recorded []byte
}

// To returns the target contract address.
func (inv *Invocation) To() common.Address { return inv.Target.Address() }

// CallData builds the permit-signed calldata, signing on the first call
// and reusing the recorded signature afterwards.
func (inv *Invocation) CallData(ctx context.Context) ([]byte, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.recorded != nil {
		return inv.recorded, nil
	}

	tokenName, err := inv.Token.CallString(ctx, "name")
	if err != nil {
		return nil, fmt.Errorf("fetch token name: %w", err)
	}
	nonce, err := inv.Token.CallBigInt(ctx, "nonces", inv.Owner)
	if err != nil {
		return nil, fmt.Errorf("fetch permit nonce: %w", err)
	}

	lifetime := inv.Deadline
	if lifetime <= 0 {
		lifetime = DefaultDeadline
	}
	deadline := big.NewInt(time.Now().Add(lifetime).Unix())

	payload := typedData(tokenName, inv.ChainID, inv.Token.Address(), inv.Owner, inv.Spender, inv.Value, nonce, deadline)
	raw, err := inv.Transport.SignTypedData(ctx, inv.Owner, payload)
	if err != nil {
		return nil, err
	}
	sig, err := Split(raw)
	if err != nil {
		return nil, err
	}

	data, err := inv.Target.Pack(inv.Method, inv.Args(deadline, sig)...)
	if err != nil {
		return nil, err
	}

	inv.recorded = data
	return data, nil
}

func typedData(tokenName string, chainID *big.Int, verifying, owner, spender common.Address, value, nonce, deadline *big.Int) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Permit": []apitypes.Type{
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              tokenName,
			Version:           domainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: verifying.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    owner.Hex(),
			"spender":  spender.Hex(),
			"value":    value.String(),
			"nonce":    nonce.String(),
			"deadline": deadline.String(),
		},
	}
}
