// Package sequencer executes an ordered list of transaction steps as one
// logical operation and aggregates the per-step outcomes into a single
// result.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"vesper/internal/chain"
)

// ErrEstimationFailed is returned when gas estimation for a required
// step fails. The operation aborts; steps already executed are not
// rolled back.
var ErrEstimationFailed = errors.New("gas estimation failed")

const (
	defaultGasOverestimation  = 1.5
	defaultReceiptPollBackoff = 500 * time.Millisecond
)

// Invocation builds the calldata for one step. CallData may be invoked
// once for gas estimation and once for sending; implementations that do
// work on the first build (permit signing) must return identical
// calldata on the second.
type Invocation interface {
	To() common.Address
	CallData(ctx context.Context) ([]byte, error)
}

// CallInvocation is an Invocation over pre-built calldata.
type CallInvocation struct {
	Target common.Address
	Data   []byte
}

// To returns the invocation target.
func (c CallInvocation) To() common.Address { return c.Target }

// CallData returns the pre-built calldata.
func (c CallInvocation) CallData(context.Context) ([]byte, error) { return c.Data, nil }

// Step is one transaction within an operation. Order in the step list is
// significant.
type Step struct {
	Label      string
	Invocation Invocation
	// Gas is the caller-supplied gas limit; zero means estimate with
	// the overestimation factor applied.
	Gas   uint64
	Value *big.Int
}

// Outcome is the submitted transaction and its receipt for one step.
type Outcome struct {
	Transaction *types.Transaction
	Receipt     *types.Receipt
}

// Result aggregates an operation's outcomes. Raw is ordered oldest
// first.
type Result struct {
	Sent             string
	Received         string
	ReceivedDecimals int
	Fees             string
	Status           bool
	Raw              []Outcome
}

// EventKind enumerates operation lifecycle notifications.
type EventKind string

const (
	EventGasEstimated    EventKind = "gas-estimated"
	EventHashKnown       EventKind = "hash-known"
	EventReceiptReceived EventKind = "receipt-received"
	EventCompleted       EventKind = "completed"
	EventFailed          EventKind = "failed"
)

// Event is a lifecycle notification for one operation.
type Event struct {
	Kind    EventKind
	Step    string
	Gas     uint64
	Hash    common.Hash
	Receipt *types.Receipt
	Result  *Result
	Err     error
}

// Options configures one Execute call.
type Options struct {
	// From is the account submitting every step.
	From common.Address
	// Sent is the caller-declared input amount, copied into the result.
	Sent string
	// ReceivedDecimals is the precision of the received asset.
	ReceivedDecimals int
	// ExtractReceived pulls the received amount out of the last
	// outcome's receipt. The result defaults to "0" when nil or when
	// no amount is found.
	ExtractReceived func(*types.Receipt) (string, bool)
	// Events, when set, receives lifecycle notifications. Failures are
	// additionally surfaced through Execute's returned error.
	Events chan<- Event
	// PrefetchNonce pre-sequences steps from a base pending nonce
	// instead of waiting for each receipt to assign the next. Steps
	// are submitted in declared order under either discipline.
	PrefetchNonce bool
}

// Config holds sequencer-wide settings.
type Config struct {
	// GasOverestimation multiplies every gas estimate, rounded up.
	GasOverestimation float64
	// ReceiptPollInterval is the delay between receipt polls while
	// waiting for inclusion.
	ReceiptPollInterval time.Duration
	Logger              *zap.Logger
}

// Sequencer turns declarative step lists into executed transactions.
type Sequencer struct {
	transport      chain.Transport
	overestimation float64
	pollInterval   time.Duration
	logger         *zap.Logger
}

// New builds a Sequencer. Zero config fields fall back to defaults.
func New(transport chain.Transport, cfg Config) *Sequencer {
	if cfg.GasOverestimation <= 0 {
		cfg.GasOverestimation = defaultGasOverestimation
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = defaultReceiptPollBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Sequencer{
		transport:      transport,
		overestimation: cfg.GasOverestimation,
		pollInterval:   cfg.ReceiptPollInterval,
		logger:         cfg.Logger,
	}
}

// Execute runs the steps in declared order and returns the aggregated
// result. On failure the error is returned and, when an event channel is
// registered, also emitted as a failed event; already-submitted steps
// are not rolled back.
func (s *Sequencer) Execute(ctx context.Context, steps []Step, opts Options) (*Result, error) {
	result, err := s.execute(ctx, steps, opts)
	if err != nil {
		s.emit(ctx, opts, Event{Kind: EventFailed, Err: err})
		return nil, err
	}
	s.emit(ctx, opts, Event{Kind: EventCompleted, Result: result})
	return result, nil
}

func (s *Sequencer) execute(ctx context.Context, steps []Step, opts Options) (*Result, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("no steps to execute")
	}

	var baseNonce uint64
	if opts.PrefetchNonce {
		n, err := s.transport.PendingNonceAt(ctx, opts.From)
		if err != nil {
			return nil, fmt.Errorf("fetch base nonce: %w", err)
		}
		baseNonce = n
	}

	outcomes := make([]Outcome, 0, len(steps))
	for i, step := range steps {
		outcome, err := s.runStep(ctx, step, opts, baseNonce, i)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", step.Label, err)
		}
		outcomes = append(outcomes, outcome)
	}

	return s.buildResult(outcomes, opts), nil
}

func (s *Sequencer) runStep(ctx context.Context, step Step, opts Options, baseNonce uint64, index int) (Outcome, error) {
	to := step.Invocation.To()

	gas := step.Gas
	if gas == 0 {
		data, err := step.Invocation.CallData(ctx)
		if err != nil {
			return Outcome{}, err
		}
		estimated, err := s.transport.EstimateGas(ctx, ethereum.CallMsg{
			From:  opts.From,
			To:    &to,
			Data:  data,
			Value: step.Value,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: %v", ErrEstimationFailed, err)
		}
		gas = overestimate(estimated, s.overestimation)
		s.logger.Debug("gas estimated",
			zap.String("step", step.Label),
			zap.Uint64("estimated", estimated),
			zap.Uint64("limit", gas))
	}
	s.emit(ctx, opts, Event{Kind: EventGasEstimated, Step: step.Label, Gas: gas})

	// Rebuilt for the send; memoizing invocations return the calldata
	// recorded during estimation.
	data, err := step.Invocation.CallData(ctx)
	if err != nil {
		return Outcome{}, err
	}

	req := chain.SendRequest{
		From:  opts.From,
		To:    &to,
		Data:  data,
		Value: step.Value,
		Gas:   gas,
	}
	if opts.PrefetchNonce {
		nonce := baseNonce + uint64(index)
		req.Nonce = &nonce
	}

	hash, err := s.transport.SendTransaction(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	s.logger.Info("transaction submitted", zap.String("step", step.Label), zap.String("hash", hash.Hex()))
	s.emit(ctx, opts, Event{Kind: EventHashKnown, Step: step.Label, Hash: hash})

	receipt, err := s.waitReceipt(ctx, hash)
	if err != nil {
		return Outcome{}, err
	}
	s.emit(ctx, opts, Event{Kind: EventReceiptReceived, Step: step.Label, Hash: hash, Receipt: receipt})

	tx, _, err := s.transport.TransactionByHash(ctx, hash)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch transaction %s: %w", hash.Hex(), err)
	}

	return Outcome{Transaction: tx, Receipt: receipt}, nil
}

// waitReceipt polls until the transaction is included. No built-in
// timeout; cancellation comes from the caller's context.
func (s *Sequencer) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.transport.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("fetch receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sequencer) buildResult(outcomes []Outcome, opts Options) *Result {
	fees := new(big.Int)
	status := true
	for _, o := range outcomes {
		gasUsed := new(big.Int).SetUint64(o.Receipt.GasUsed)
		gasPrice := new(big.Int)
		if o.Transaction != nil && o.Transaction.GasPrice() != nil {
			gasPrice.Set(o.Transaction.GasPrice())
		}
		fees.Add(fees, gasUsed.Mul(gasUsed, gasPrice))
		status = status && o.Receipt.Status == types.ReceiptStatusSuccessful
	}

	received := "0"
	if opts.ExtractReceived != nil {
		last := outcomes[len(outcomes)-1].Receipt
		if v, ok := opts.ExtractReceived(last); ok {
			received = v
		}
	}

	return &Result{
		Sent:             opts.Sent,
		Received:         received,
		ReceivedDecimals: opts.ReceivedDecimals,
		Fees:             fees.String(),
		Status:           status,
		Raw:              outcomes,
	}
}

// emit delivers an event when a listener is registered. Delivery blocks
// until the listener takes it or the context ends.
func (s *Sequencer) emit(ctx context.Context, opts Options, ev Event) {
	if opts.Events == nil {
		return
	}
	select {
	case opts.Events <- ev:
	case <-ctx.Done():
	}
}

func overestimate(gas uint64, factor float64) uint64 {
	return uint64(math.Ceil(float64(gas) * factor))
}
