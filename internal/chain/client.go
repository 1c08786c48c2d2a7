package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// methodNotFound is the JSON-RPC error code for an unknown method.
const methodNotFound = -32601

// Client wraps go-ethereum RPC and implements Transport against a live
// node. Sends and typed-data signing go through the node's managed
// accounts, so the raw rpc.Client is kept alongside the ethclient.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

var _ Transport = (*Client)(nil)

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// CallContract performs an eth_call for a contract view method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// EstimateGas estimates the gas required by the given invocation.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.ethClient.EstimateGas(ctx, msg)
}

// SendTransaction submits a transaction through the node's managed
// account and returns its hash.
func (c *Client) SendTransaction(ctx context.Context, req SendRequest) (common.Hash, error) {
	args := map[string]interface{}{
		"from": req.From,
	}
	if req.To != nil {
		args["to"] = *req.To
	}
	if len(req.Data) > 0 {
		args["data"] = hexutil.Bytes(req.Data)
	}
	if req.Value != nil && req.Value.Sign() > 0 {
		args["value"] = (*hexutil.Big)(req.Value)
	}
	if req.Gas > 0 {
		args["gas"] = hexutil.Uint64(req.Gas)
	}
	if req.GasPrice != nil {
		args["gasPrice"] = (*hexutil.Big)(req.GasPrice)
	}
	if req.Nonce != nil {
		args["nonce"] = hexutil.Uint64(*req.Nonce)
	}

	var hash common.Hash
	if err := c.rpcClient.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	return hash, nil
}

// TransactionByHash returns the transaction for the given hash.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	return c.ethClient.TransactionByHash(ctx, hash)
}

// TransactionReceipt returns the receipt for a mined transaction, or
// ethereum.NotFound while it is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return c.ethClient.TransactionReceipt(ctx, hash)
}

// SuggestGasPrice returns the node's suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.ethClient.SuggestGasPrice(ctx)
}

// PendingNonceAt returns the pending-state nonce for the account.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.ethClient.PendingNonceAt(ctx, account)
}

// SignTypedData asks the node to sign an EIP-712 payload with the keys it
// manages for account. Nodes without managed keys report the method as
// unknown, which maps to ErrNoSigningCapability.
func (c *Client) SignTypedData(ctx context.Context, account common.Address, data apitypes.TypedData) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal typed data: %w", err)
	}

	var sig hexutil.Bytes
	if err := c.rpcClient.CallContext(ctx, &sig, "eth_signTypedData_v4", account, json.RawMessage(payload)); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == methodNotFound {
			return nil, fmt.Errorf("%w: %v", ErrNoSigningCapability, err)
		}
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	return sig, nil
}
