package pool

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	eventAccount = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	eventPool    = common.HexToAddress("0x00000000000000000000000000000000000000BB")
	eventOther   = common.HexToAddress("0x00000000000000000000000000000000000000CC")
)

func transferLog(from, to common.Address, value int64) *types.Log {
	return &types.Log{
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.BigToHash(big.NewInt(value)).Bytes(),
	}
}

func TestExtractTransferToPicksLastMatch(t *testing.T) {
	receipt := &types.Receipt{Logs: []*types.Log{
		transferLog(eventPool, eventAccount, 100),
		transferLog(eventAccount, eventOther, 50),
		transferLog(eventPool, eventAccount, 200),
	}}

	got, ok := extractTransferTo(eventAccount)(receipt)
	if !ok {
		t.Fatalf("no transfer found")
	}
	if got != "200" {
		t.Fatalf("amount = %s, want the last inbound transfer 200", got)
	}
}

func TestExtractTransferToIgnoresOtherRecipients(t *testing.T) {
	receipt := &types.Receipt{Logs: []*types.Log{
		transferLog(eventPool, eventOther, 100),
	}}

	if _, ok := extractTransferTo(eventAccount)(receipt); ok {
		t.Fatalf("matched a transfer to another account")
	}
}

func TestExtractWithdrawnPrefersWithdrawEvent(t *testing.T) {
	data := make([]byte, 64)
	copy(data[:32], common.BigToHash(big.NewInt(999)).Bytes())  // shares
	copy(data[32:], common.BigToHash(big.NewInt(1234)).Bytes()) // amount

	receipt := &types.Receipt{Logs: []*types.Log{
		transferLog(eventPool, eventAccount, 100),
		{
			Address: eventPool,
			Topics:  []common.Hash{withdrawTopic, common.BytesToHash(eventAccount.Bytes())},
			Data:    data,
		},
	}}

	got, ok := extractWithdrawn(eventPool, eventAccount)(receipt)
	if !ok {
		t.Fatalf("no withdrawal found")
	}
	if got != "1234" {
		t.Fatalf("amount = %s, want 1234 from the Withdraw event", got)
	}
}

func TestExtractWithdrawnFallsBackToTransfer(t *testing.T) {
	receipt := &types.Receipt{Logs: []*types.Log{
		transferLog(eventPool, eventAccount, 777),
	}}

	got, ok := extractWithdrawn(eventPool, eventAccount)(receipt)
	if !ok {
		t.Fatalf("no withdrawal found")
	}
	if got != "777" {
		t.Fatalf("amount = %s, want 777 from the Transfer fallback", got)
	}
}

func TestExtractRewardPaid(t *testing.T) {
	receipt := &types.Receipt{Logs: []*types.Log{
		{
			Topics: []common.Hash{rewardPaidTopic, common.BytesToHash(eventAccount.Bytes())},
			Data:   common.BigToHash(big.NewInt(55)).Bytes(),
		},
	}}

	got, ok := extractRewardPaid(eventAccount)(receipt)
	if !ok {
		t.Fatalf("no reward payment found")
	}
	if got != "55" {
		t.Fatalf("amount = %s, want 55", got)
	}

	if _, ok := extractRewardPaid(eventOther)(receipt); ok {
		t.Fatalf("matched a payment to another account")
	}
}
