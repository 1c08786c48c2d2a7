package pool

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"vesper/internal/abis"
	"vesper/internal/chain"
	"vesper/internal/chain/chaintest"
	"vesper/internal/engine"
	"vesper/internal/meta"
	"vesper/internal/registry"
	"vesper/internal/sequencer"
)

var testAccount = common.HexToAddress("0x00000000000000000000000000000000000000AA")

type fixture struct {
	fake   *chaintest.FakeTransport
	reg    *registry.Registry
	erc20  abi.ABI
	poolV1 abi.ABI
	poolV3 abi.ABI
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fake := chaintest.New(meta.NetworkMainnet)
	reg, err := registry.Resolve(meta.NetworkMainnet, nil, fake, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	f := &fixture{fake: fake, reg: reg}
	if f.erc20, err = abis.ERC20(); err != nil {
		t.Fatalf("erc20 abi: %v", err)
	}
	if f.poolV1, err = abis.PoolV1(); err != nil {
		t.Fatalf("pool v1 abi: %v", err)
	}
	if f.poolV3, err = abis.PoolV3(); err != nil {
		t.Fatalf("pool v3 abi: %v", err)
	}
	return f
}

func (f *fixture) client(t *testing.T, name string) *Client {
	t.Helper()

	p, ok := f.reg.PoolByName(name)
	if !ok {
		t.Fatalf("pool %s not resolved", name)
	}
	eng, err := engine.New(f.reg, nil, f.fake, nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	seq := sequencer.New(f.fake, sequencer.Config{ReceiptPollInterval: time.Millisecond})

	return New(p, f.reg, eng, seq, f.fake, Config{
		Account: testAccount,
		ChainID: big.NewInt(int64(meta.NetworkMainnet)),
	})
}

func selector(a abi.ABI, method string) []byte {
	return a.Methods[method].ID[:4]
}

func TestDepositSkipsApprovalWhenAllowanceCovers(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "vaUSDC")
	assetAddr := c.Pool().Asset.Address()

	f.fake.Handle(assetAddr, f.erc20, "allowance", big.NewInt(2_000_000))

	result, err := c.Deposit(context.Background(), "1000000")
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if len(f.fake.Sent) != 1 {
		t.Fatalf("sent = %d transactions, want 1 when allowance covers", len(f.fake.Sent))
	}
	if *f.fake.Sent[0].To != c.Pool().Contract.Address() {
		t.Fatalf("tx target = %s, want pool", f.fake.Sent[0].To.Hex())
	}
	if result.Sent != "1000000" {
		t.Fatalf("sent = %s, want 1000000", result.Sent)
	}
	if len(result.Raw) != 1 {
		t.Fatalf("raw outcomes = %d, want 1", len(result.Raw))
	}
}

func TestDepositPrependsApprovalWhenAllowanceShort(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "vaUSDC")
	assetAddr := c.Pool().Asset.Address()

	f.fake.Handle(assetAddr, f.erc20, "allowance", big.NewInt(0))

	result, err := c.Deposit(context.Background(), "1000000")
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if len(f.fake.Sent) != 2 {
		t.Fatalf("sent = %d transactions, want approve then deposit", len(f.fake.Sent))
	}
	if *f.fake.Sent[0].To != assetAddr {
		t.Fatalf("first tx target = %s, want asset", f.fake.Sent[0].To.Hex())
	}
	if !bytes.Equal(f.fake.Sent[0].Data[:4], selector(f.erc20, "approve")) {
		t.Fatalf("first tx is not an approve")
	}
	if !bytes.Equal(f.fake.Sent[1].Data[:4], selector(f.poolV3, "deposit")) {
		t.Fatalf("second tx is not a deposit")
	}
	if len(result.Raw) != 2 {
		t.Fatalf("raw outcomes = %d, want 2", len(result.Raw))
	}
}

func TestApproveAndDepositAlwaysApproves(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "vaUSDC")

	// Allowance already covers; the forced variant approves anyway and
	// never reads it.
	if _, err := c.ApproveAndDeposit(context.Background(), "1000000"); err != nil {
		t.Fatalf("ApproveAndDeposit: %v", err)
	}
	if len(f.fake.Sent) != 2 {
		t.Fatalf("sent = %d transactions, want 2", len(f.fake.Sent))
	}
}

func TestNativeDepositIsSingleValueBearingStep(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "vETH")

	result, err := c.Deposit(context.Background(), "1000")
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if len(f.fake.Sent) != 1 {
		t.Fatalf("sent = %d transactions, want 1 for a native deposit", len(f.fake.Sent))
	}
	req := f.fake.Sent[0]
	if *req.To != c.Pool().Contract.Address() {
		t.Fatalf("tx target = %s, want pool", req.To.Hex())
	}
	if !bytes.Equal(req.Data, nativeDepositData) {
		t.Fatalf("calldata = %x, want bare deposit() selector", req.Data)
	}
	if req.Value == nil || req.Value.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("value = %v, want 1000", req.Value)
	}
	if len(result.Raw) != 1 {
		t.Fatalf("raw outcomes = %d, want 1", len(result.Raw))
	}
}

func TestDepositRejectsInvalidAmount(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "vaUSDC")

	for _, amount := range []string{"abc", "-1", "1.5", ""} {
		if _, err := c.Deposit(context.Background(), amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("Deposit(%q): err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func withdrawnShares(t *testing.T, a abi.ABI, data []byte) *big.Int {
	t.Helper()
	if !bytes.Equal(data[:4], selector(a, "withdraw")) {
		t.Fatalf("calldata is not a withdraw")
	}
	args, err := a.Methods["withdraw"].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack withdraw: %v", err)
	}
	return args[0].(*big.Int)
}

func TestWithdrawSweepsFullBalanceWithinDustTolerance(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "vaUSDC")
	poolAddr := c.Pool().Contract.Address()

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	f.fake.Handle(poolAddr, f.poolV3, "pricePerShare", unit)
	f.fake.Handle(poolAddr, f.poolV3, "balanceOf", big.NewInt(10000))

	// 99.95% of the position rounds up to the whole balance.
	if _, err := c.Withdraw(context.Background(), "9995"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got := withdrawnShares(t, f.poolV3, f.fake.Sent[0].Data); got.Cmp(big.NewInt(10000)) != 0 {
		t.Fatalf("shares = %s, want full balance 10000", got)
	}
}

func TestWithdrawOutsideDustToleranceKeepsRequest(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "vaUSDC")
	poolAddr := c.Pool().Contract.Address()

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	f.fake.Handle(poolAddr, f.poolV3, "pricePerShare", unit)
	f.fake.Handle(poolAddr, f.poolV3, "balanceOf", big.NewInt(10000))

	if _, err := c.Withdraw(context.Background(), "9000"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got := withdrawnShares(t, f.poolV3, f.fake.Sent[0].Data); got.Cmp(big.NewInt(9000)) != 0 {
		t.Fatalf("shares = %s, want requested 9000", got)
	}
}

func TestWithdrawRejectsZeroPrice(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "vaUSDC")
	f.fake.Handle(c.Pool().Contract.Address(), f.poolV3, "pricePerShare", big.NewInt(0))

	if _, err := c.Withdraw(context.Background(), "100"); err == nil {
		t.Fatalf("Withdraw accepted a zero price per share")
	}
}

func TestMigrateWithoutAllowanceIsSinglePermitStep(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "vETH")
	poolAddr := c.Pool().Contract.Address()
	migrator := f.reg.PoolMigrator()

	f.fake.Handle(poolAddr, f.poolV1, "balanceOf", big.NewInt(500))
	f.fake.Handle(poolAddr, f.poolV1, "allowance", big.NewInt(0))
	f.fake.Handle(poolAddr, f.poolV1, "name", "vETH Pool")
	f.fake.Handle(poolAddr, f.poolV1, "nonces", big.NewInt(1))

	migratorABI, err := abis.PoolMigrator()
	if err != nil {
		t.Fatalf("migrator abi: %v", err)
	}

	result, err := c.Migrate(context.Background(), "")
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// The permit rides inside the migration call, so one transaction
	// moves the whole position.
	if len(f.fake.Sent) != 1 {
		t.Fatalf("sent = %d transactions, want 1", len(f.fake.Sent))
	}
	req := f.fake.Sent[0]
	if *req.To != migrator.Address() {
		t.Fatalf("tx target = %s, want migrator", req.To.Hex())
	}
	if !bytes.Equal(req.Data[:4], selector(migratorABI, "migrateWithPermit")) {
		t.Fatalf("calldata is not migrateWithPermit")
	}
	if f.fake.SignCalls != 1 {
		t.Fatalf("sign calls = %d, want exactly 1 across estimate and send", f.fake.SignCalls)
	}
	if result.Sent != "500" {
		t.Fatalf("sent = %s, want full balance 500", result.Sent)
	}
}

func TestMigrateWithAllowanceSkipsPermit(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "vETH")
	poolAddr := c.Pool().Contract.Address()

	f.fake.Handle(poolAddr, f.poolV1, "allowance", big.NewInt(500))

	migratorABI, err := abis.PoolMigrator()
	if err != nil {
		t.Fatalf("migrator abi: %v", err)
	}

	if _, err := c.Migrate(context.Background(), "500"); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(f.fake.Sent) != 1 {
		t.Fatalf("sent = %d transactions, want 1", len(f.fake.Sent))
	}
	if !bytes.Equal(f.fake.Sent[0].Data[:4], selector(migratorABI, "migrate")) {
		t.Fatalf("calldata is not a plain migrate")
	}
	if f.fake.SignCalls != 0 {
		t.Fatalf("sign calls = %d, want 0 with sufficient allowance", f.fake.SignCalls)
	}
}

func TestMigrateRequiresSuccessor(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "vaETH")

	if _, err := c.Migrate(context.Background(), "100"); !errors.Is(err, ErrNoSuccessor) {
		t.Fatalf("err = %v, want ErrNoSuccessor", err)
	}
}

func TestClaimRewardsRequiresRewardsContract(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "vETH")

	if _, err := c.ClaimRewards(context.Background()); !errors.Is(err, engine.ErrNoRewardsContract) {
		t.Fatalf("err = %v, want ErrNoRewardsContract", err)
	}
}

func TestClaimRewardsExtractsPaidAmount(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "vaUSDC")
	rewardsAddr := common.HexToAddress("0x0000000000000000000000000000000000001234")

	f.fake.Handle(c.Pool().Contract.Address(), f.poolV3, "poolRewards", rewardsAddr)
	f.fake.OnReceipt = func(req chain.SendRequest, receipt *types.Receipt) {
		receipt.Logs = []*types.Log{{
			Address: rewardsAddr,
			Topics:  []common.Hash{rewardPaidTopic, common.BytesToHash(testAccount.Bytes())},
			Data:    common.BigToHash(big.NewInt(4321)).Bytes(),
		}}
	}

	result, err := c.ClaimRewards(context.Background())
	if err != nil {
		t.Fatalf("ClaimRewards: %v", err)
	}
	if *f.fake.Sent[0].To != rewardsAddr {
		t.Fatalf("tx target = %s, want rewards contract", f.fake.Sent[0].To.Hex())
	}
	if result.Received != "4321" {
		t.Fatalf("received = %s, want 4321", result.Received)
	}
}

func TestDepositedBalance(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "vaUSDC")
	poolAddr := c.Pool().Contract.Address()

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	balance := new(big.Int).Mul(big.NewInt(2), unit) // 2 pool tokens
	price := big.NewInt(1_500_000)                   // 1.5 USDC per token

	f.fake.Handle(poolAddr, f.poolV3, "balanceOf", balance)
	f.fake.Handle(poolAddr, f.poolV3, "pricePerShare", price)

	got, err := c.DepositedBalance(context.Background())
	if err != nil {
		t.Fatalf("DepositedBalance: %v", err)
	}
	if got != "3000000" {
		t.Fatalf("deposited = %s, want 3000000", got)
	}
}
