// Package chaintest provides an in-memory Transport for tests.
package chaintest

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"vesper/internal/chain"
)

type viewKey struct {
	to       common.Address
	selector [4]byte
}

// FakeTransport is an in-memory chain.Transport. View methods are
// answered by registered handlers; sends succeed immediately with a
// synthetic receipt unless hooks override them.
type FakeTransport struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	GasPriceWei  *big.Int
	NonceValue   uint64

	// EstimateGasFn overrides gas estimation; nil estimates 100000.
	EstimateGasFn func(msg ethereum.CallMsg) (uint64, error)
	// SignFn overrides typed-data signing; nil returns a fixed
	// 65-byte signature.
	SignFn func(account common.Address, data apitypes.TypedData) ([]byte, error)
	// OnReceipt mutates the synthetic receipt before it is stored,
	// e.g. to attach logs or fail the transaction.
	OnReceipt func(req chain.SendRequest, receipt *types.Receipt)

	// Sent records every submitted request in order.
	Sent []chain.SendRequest
	// SignCalls counts typed-data signing requests.
	SignCalls int

	views    map[viewKey]func(data []byte) ([]byte, error)
	receipts map[common.Hash]*types.Receipt
	txs      map[common.Hash]*types.Transaction
}

var _ chain.Transport = (*FakeTransport)(nil)

// New creates a fake transport for the given chain id.
func New(chainID uint64) *FakeTransport {
	return &FakeTransport{
		ChainIDValue: new(big.Int).SetUint64(chainID),
		GasPriceWei:  big.NewInt(1),
		views:        make(map[viewKey]func([]byte) ([]byte, error)),
		receipts:     make(map[common.Hash]*types.Receipt),
		txs:          make(map[common.Hash]*types.Transaction),
	}
}

// Handle answers a view method on a contract with fixed outputs.
func (f *FakeTransport) Handle(to common.Address, contractABI abi.ABI, method string, outputs ...interface{}) {
	f.HandleFunc(to, contractABI, method, func([]byte) ([]byte, error) {
		m, ok := contractABI.Methods[method]
		if !ok {
			return nil, fmt.Errorf("unknown method %s", method)
		}
		return m.Outputs.Pack(outputs...)
	})
}

// HandleErr makes a view method fail.
func (f *FakeTransport) HandleErr(to common.Address, contractABI abi.ABI, method string, err error) {
	f.HandleFunc(to, contractABI, method, func([]byte) ([]byte, error) { return nil, err })
}

// HandleFunc answers a view method with a custom handler receiving the
// full calldata.
func (f *FakeTransport) HandleFunc(to common.Address, contractABI abi.ABI, method string, fn func(data []byte) ([]byte, error)) {
	m, ok := contractABI.Methods[method]
	if !ok {
		panic(fmt.Sprintf("chaintest: unknown method %s", method))
	}
	var key viewKey
	key.to = to
	copy(key.selector[:], m.ID[:4])

	f.mu.Lock()
	f.views[key] = fn
	f.mu.Unlock()
}

// ChainID implements chain.Transport.
func (f *FakeTransport) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.ChainIDValue), nil
}

// CallContract implements chain.Transport by dispatching to registered
// view handlers.
func (f *FakeTransport) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("malformed call")
	}
	var key viewKey
	key.to = *msg.To
	copy(key.selector[:], msg.Data[:4])

	f.mu.Lock()
	fn, ok := f.views[key]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no handler for %s %x", msg.To.Hex(), msg.Data[:4])
	}
	return fn(msg.Data)
}

// EstimateGas implements chain.Transport.
func (f *FakeTransport) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	if f.EstimateGasFn != nil {
		return f.EstimateGasFn(msg)
	}
	return 100000, nil
}

// SendTransaction implements chain.Transport: the transaction is
// recorded and mined immediately.
func (f *FakeTransport) SendTransaction(_ context.Context, req chain.SendRequest) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Sent = append(f.Sent, req)

	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], uint64(len(f.Sent)))
	hash := crypto.Keccak256Hash(bytes.Join([][]byte{req.Data, seq[:]}, nil))

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    f.NonceValue,
		To:       req.To,
		Value:    value,
		Gas:      req.Gas,
		GasPrice: new(big.Int).Set(f.GasPriceWei),
		Data:     req.Data,
	})

	receipt := &types.Receipt{
		Status:  types.ReceiptStatusSuccessful,
		TxHash:  hash,
		GasUsed: 21000,
	}
	if f.OnReceipt != nil {
		f.OnReceipt(req, receipt)
	}

	f.txs[hash] = tx
	f.receipts[hash] = receipt
	return hash, nil
}

// TransactionByHash implements chain.Transport.
func (f *FakeTransport) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

// TransactionReceipt implements chain.Transport.
func (f *FakeTransport) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// SuggestGasPrice implements chain.Transport.
func (f *FakeTransport) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.GasPriceWei), nil
}

// PendingNonceAt implements chain.Transport.
func (f *FakeTransport) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.NonceValue, nil
}

// SignTypedData implements chain.Transport.
func (f *FakeTransport) SignTypedData(_ context.Context, account common.Address, data apitypes.TypedData) ([]byte, error) {
	f.mu.Lock()
	f.SignCalls++
	f.mu.Unlock()

	if f.SignFn != nil {
		return f.SignFn(account, data)
	}
	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = byte(i + 1)
	}
	sig[64] = 27
	return sig, nil
}
