package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrNoSigningCapability is returned when the connected node cannot sign
// typed data, e.g. a plain node with no managed keys. Terminal for
// permit-based flows.
var ErrNoSigningCapability = errors.New("transport has no typed-data signing capability")

// SendRequest describes a transaction to be submitted through the node's
// managed account.
type SendRequest struct {
	From     common.Address
	To       *common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
	Nonce    *uint64
}

// Transport is the minimal RPC surface the orchestration core depends on.
// Anything satisfying these primitives can back the client; tests use
// in-memory fakes.
type Transport interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, req SendRequest) (common.Hash, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SignTypedData(ctx context.Context, account common.Address, data apitypes.TypedData) ([]byte, error)
}
