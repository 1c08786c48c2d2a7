package registry

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"vesper/internal/chain"
)

// Handle is a bound reference to a deployed contract, scoped to one
// network. Handles are read-only and freely shared across concurrent
// operations.
type Handle struct {
	address   common.Address
	abi       abi.ABI
	transport chain.Transport
}

// NewHandle binds an address and interface to a transport.
func NewHandle(address common.Address, contractABI abi.ABI, transport chain.Transport) *Handle {
	return &Handle{address: address, abi: contractABI, transport: transport}
}

// Address returns the bound contract address.
func (h *Handle) Address() common.Address { return h.address }

// ABI returns the bound contract interface.
func (h *Handle) ABI() abi.ABI { return h.abi }

// Pack encodes a method invocation into calldata.
func (h *Handle) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := h.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// Call performs a view call and returns the unpacked outputs.
func (h *Handle) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := h.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	to := h.address
	resp, err := h.transport.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := h.abi.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// CallBigInt performs a view call returning a single uint256.
func (h *Handle) CallBigInt(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	values, err := h.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s: return size %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected type %T", method, values[0])
	}
	return v, nil
}

// CallAddress performs a view call returning a single address.
func (h *Handle) CallAddress(ctx context.Context, method string, args ...interface{}) (common.Address, error) {
	values, err := h.Call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("%s: return size %d", method, len(values))
	}
	v, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: unexpected type %T", method, values[0])
	}
	return v, nil
}

// CallAddresses performs a view call returning an address slice.
func (h *Handle) CallAddresses(ctx context.Context, method string, args ...interface{}) ([]common.Address, error) {
	values, err := h.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s: return size %d", method, len(values))
	}
	v, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected type %T", method, values[0])
	}
	return v, nil
}

// CallString performs a view call returning a single string.
func (h *Handle) CallString(ctx context.Context, method string, args ...interface{}) (string, error) {
	values, err := h.Call(ctx, method, args...)
	if err != nil {
		return "", err
	}
	if len(values) != 1 {
		return "", fmt.Errorf("%s: return size %d", method, len(values))
	}
	v, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("%s: unexpected type %T", method, values[0])
	}
	return v, nil
}
