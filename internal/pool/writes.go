package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"vesper/internal/permit"
	"vesper/internal/sequencer"
)

const basisPoints = 10000

// Deposit moves amount (deposit-asset base units) into the pool. An
// approval step is prepended only when the asset is not native and the
// current allowance does not cover the amount.
func (c *Client) Deposit(ctx context.Context, amount string, opts ...TxOption) (*sequencer.Result, error) {
	value, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}

	steps, err := c.buildDepositSteps(ctx, value, false)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, steps, executeSpec{
		sent:             amount,
		receivedDecimals: poolTokenDecimals,
		extract:          extractTransferTo(c.account),
	}, opts)
}

// ApproveAndDeposit always issues the approval before depositing,
// regardless of the current allowance. Native-asset pools have no
// approval to make and deposit directly.
func (c *Client) ApproveAndDeposit(ctx context.Context, amount string, opts ...TxOption) (*sequencer.Result, error) {
	value, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}

	steps, err := c.buildDepositSteps(ctx, value, true)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, steps, executeSpec{
		sent:             amount,
		receivedDecimals: poolTokenDecimals,
		extract:          extractTransferTo(c.account),
	}, opts)
}

func (c *Client) buildDepositSteps(ctx context.Context, amount *big.Int, forceApprove bool) ([]sequencer.Step, error) {
	poolAddr := c.pool.Contract.Address()

	if c.pool.Config.Asset.IsNative() {
		return []sequencer.Step{{
			Label:      "deposit",
			Invocation: sequencer.CallInvocation{Target: poolAddr, Data: nativeDepositData},
			Value:      amount,
		}}, nil
	}

	var steps []sequencer.Step
	needsApproval := forceApprove
	if !needsApproval {
		allowance, err := c.pool.Asset.CallBigInt(ctx, "allowance", c.account, poolAddr)
		if err != nil {
			return nil, err
		}
		needsApproval = allowance.Cmp(amount) < 0
	}
	if needsApproval {
		data, err := c.pool.Asset.Pack("approve", poolAddr, amount)
		if err != nil {
			return nil, err
		}
		steps = append(steps, sequencer.Step{
			Label:      "approve",
			Invocation: sequencer.CallInvocation{Target: c.pool.Asset.Address(), Data: data},
		})
	}

	data, err := c.pool.Contract.Pack("deposit", amount)
	if err != nil {
		return nil, err
	}
	return append(steps, sequencer.Step{
		Label:      "deposit",
		Invocation: sequencer.CallInvocation{Target: poolAddr, Data: data},
	}), nil
}

// Withdraw redeems enough pool tokens to pay out amount (deposit-asset
// base units). A request within the dust tolerance of the account's
// full position is rounded up to the full token balance so no
// unspendable dust remains.
func (c *Client) Withdraw(ctx context.Context, amount string, opts ...TxOption) (*sequencer.Result, error) {
	value, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}

	price, err := c.reader.PricePerShare(ctx, c.pool)
	if err != nil {
		return nil, err
	}
	if price.Sign() == 0 {
		return nil, fmt.Errorf("pool reports zero price per share")
	}

	shares := new(big.Int).Mul(value, poolTokenUnit)
	shares.Div(shares, price)

	balance, err := c.pool.Contract.CallBigInt(ctx, "balanceOf", c.account)
	if err != nil {
		return nil, err
	}

	threshold := new(big.Int).Mul(balance, big.NewInt(basisPoints-c.dustToleranceBps))
	threshold.Div(threshold, big.NewInt(basisPoints))
	if shares.Cmp(threshold) >= 0 && shares.Cmp(balance) <= 0 {
		c.logger.Debug("withdraw within dust tolerance, sweeping full balance",
			zap.String("shares", shares.String()),
			zap.String("balance", balance.String()))
		shares.Set(balance)
	}

	data, err := c.pool.Contract.Pack("withdraw", shares)
	if err != nil {
		return nil, err
	}

	steps := []sequencer.Step{{
		Label:      "withdraw",
		Invocation: sequencer.CallInvocation{Target: c.pool.Contract.Address(), Data: data},
	}}
	return c.execute(ctx, steps, executeSpec{
		sent:             amount,
		receivedDecimals: c.pool.Config.Asset.Decimals,
		extract:          extractWithdrawn(c.pool.Contract.Address(), c.account),
	}, opts)
}

// ClaimRewards claims the account's accrued rewards from the pool's
// rewards contract.
func (c *Client) ClaimRewards(ctx context.Context, opts ...TxOption) (*sequencer.Result, error) {
	rewards, err := c.engine.RewardsContract(ctx, c.pool)
	if err != nil {
		return nil, err
	}

	data, err := rewards.Pack("claimReward", c.account)
	if err != nil {
		return nil, err
	}

	steps := []sequencer.Step{{
		Label:      "claim",
		Invocation: sequencer.CallInvocation{Target: rewards.Address(), Data: data},
	}}
	return c.execute(ctx, steps, executeSpec{
		sent:             "0",
		receivedDecimals: poolTokenDecimals,
		extract:          extractRewardPaid(c.account),
	}, opts)
}

// Rebalance reinvests the pool's idle deposit-asset balance into its
// strategy.
func (c *Client) Rebalance(ctx context.Context, opts ...TxOption) (*sequencer.Result, error) {
	data, err := c.pool.Contract.Pack("rebalance")
	if err != nil {
		return nil, err
	}

	steps := []sequencer.Step{{
		Label:      "rebalance",
		Invocation: sequencer.CallInvocation{Target: c.pool.Contract.Address(), Data: data},
	}}
	return c.execute(ctx, steps, executeSpec{sent: "0", receivedDecimals: c.pool.Config.Asset.Decimals}, opts)
}

// Migrate moves amount pool tokens (the full balance when amount is
// empty) into the pool's configured successor. When the migrator's
// allowance is insufficient the move is authorized with a signed
// permit, keeping the operation to a single step.
func (c *Client) Migrate(ctx context.Context, amount string, opts ...TxOption) (*sequencer.Result, error) {
	successorName := c.pool.Config.Successor
	if successorName == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSuccessor, c.pool.Config.Name)
	}
	successor, ok := c.reg.PoolByName(successorName)
	if !ok {
		return nil, fmt.Errorf("%w: successor %s not resolved", ErrNoSuccessor, successorName)
	}
	migrator := c.reg.PoolMigrator()
	if migrator == nil {
		return nil, fmt.Errorf("no pool migrator resolved for network %d", c.reg.NetworkID())
	}

	var shares *big.Int
	if amount == "" {
		balance, err := c.pool.Contract.CallBigInt(ctx, "balanceOf", c.account)
		if err != nil {
			return nil, err
		}
		shares = balance
	} else {
		v, err := parseAmount(amount)
		if err != nil {
			return nil, err
		}
		shares = v
	}

	// Pool tokens implement the ERC20 surface, allowance included.
	allowance, err := c.pool.Contract.CallBigInt(ctx, "allowance", c.account, migrator.Address())
	if err != nil {
		allowance = new(big.Int)
	}

	var steps []sequencer.Step
	if allowance.Cmp(shares) >= 0 {
		data, err := migrator.Pack("migrate", c.pool.Contract.Address(), successor.Contract.Address(), shares)
		if err != nil {
			return nil, err
		}
		steps = []sequencer.Step{{
			Label:      "migrate",
			Invocation: sequencer.CallInvocation{Target: migrator.Address(), Data: data},
		}}
	} else {
		inv := &permit.Invocation{
			Transport: c.transport,
			Token:     c.pool.Contract,
			Target:    migrator,
			Method:    "migrateWithPermit",
			Owner:     c.account,
			Spender:   migrator.Address(),
			Value:     shares,
			ChainID:   c.chainID,
			Args: func(deadline *big.Int, sig permit.Signature) []interface{} {
				return []interface{}{
					c.pool.Contract.Address(),
					successor.Contract.Address(),
					shares,
					deadline,
					sig.V,
					sig.R,
					sig.S,
				}
			},
		}
		steps = []sequencer.Step{{Label: "migrate-with-permit", Invocation: inv}}
	}

	return c.execute(ctx, steps, executeSpec{
		sent:             shares.String(),
		receivedDecimals: poolTokenDecimals,
		extract:          extractTransferTo(c.account),
	}, opts)
}

type executeSpec struct {
	sent             string
	receivedDecimals int
	extract          func(*types.Receipt) (string, bool)
}

func (c *Client) execute(ctx context.Context, steps []sequencer.Step, spec executeSpec, opts []TxOption) (*sequencer.Result, error) {
	o := applyTxOptions(opts)
	c.logger.Info("operation built", zap.Int("steps", len(steps)))

	return c.seq.Execute(ctx, steps, sequencer.Options{
		From:             c.account,
		Sent:             spec.sent,
		ReceivedDecimals: spec.receivedDecimals,
		ExtractReceived:  spec.extract,
		Events:           o.events,
		PrefetchNonce:    o.prefetchNonce,
	})
}
