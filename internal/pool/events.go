package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	transferTopic   = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	withdrawTopic   = crypto.Keccak256Hash([]byte("Withdraw(address,uint256,uint256)"))
	rewardPaidTopic = crypto.Keccak256Hash([]byte("RewardPaid(address,uint256)"))
)

// extractTransferTo returns the value of the last ERC20 Transfer into
// account found in the receipt.
func extractTransferTo(account common.Address) func(*types.Receipt) (string, bool) {
	padded := common.BytesToHash(account.Bytes())
	return func(receipt *types.Receipt) (string, bool) {
		for i := len(receipt.Logs) - 1; i >= 0; i-- {
			log := receipt.Logs[i]
			if len(log.Topics) != 3 || log.Topics[0] != transferTopic {
				continue
			}
			if log.Topics[2] != padded || len(log.Data) < 32 {
				continue
			}
			return new(big.Int).SetBytes(log.Data[:32]).String(), true
		}
		return "", false
	}
}

// extractRewardPaid returns the reward amount paid to account.
func extractRewardPaid(account common.Address) func(*types.Receipt) (string, bool) {
	padded := common.BytesToHash(account.Bytes())
	return func(receipt *types.Receipt) (string, bool) {
		for _, log := range receipt.Logs {
			if len(log.Topics) != 2 || log.Topics[0] != rewardPaidTopic || log.Topics[1] != padded {
				continue
			}
			if len(log.Data) < 32 {
				continue
			}
			return new(big.Int).SetBytes(log.Data[:32]).String(), true
		}
		return "", false
	}
}

// extractWithdrawn returns the asset amount from the pool's Withdraw
// event, falling back to a Transfer into account. Native-asset pools
// emit no Transfer, so the Withdraw event is primary.
func extractWithdrawn(poolAddress, account common.Address) func(*types.Receipt) (string, bool) {
	transfer := extractTransferTo(account)
	return func(receipt *types.Receipt) (string, bool) {
		for _, log := range receipt.Logs {
			if log.Address != poolAddress || len(log.Topics) == 0 || log.Topics[0] != withdrawTopic {
				continue
			}
			// Data carries (shares, amount).
			if len(log.Data) >= 64 {
				return new(big.Int).SetBytes(log.Data[32:64]).String(), true
			}
		}
		return transfer(receipt)
	}
}
