package blockchain

import (
	"errors"
	"math/big"

	"github.com/dynamiccoin/dmcd/pkg/core/types"
)

// ErrSupplyIndeterminate is returned when a chain's money supply is unknown
// because some block on it has an unknown reward.
var ErrSupplyIndeterminate = errors.New("chain supply is indeterminate")

// AccumulateSupply adds reward to the parent's cumulative supply. The result
// is nil when either input is unknown, so an indeterminate block poisons the
// supply of every block built on top of it.
func AccumulateSupply(parent *big.Int, reward *types.Coin) *big.Int {
	if parent == nil || reward == nil {
		return nil
	}
	return new(big.Int).Add(parent, big.NewInt(int64(*reward)))
}

// SupplyCoin converts a cumulative supply to a Coin amount.
func SupplyCoin(supply *big.Int) (types.Coin, error) {
	if supply == nil {
		return 0, ErrSupplyIndeterminate
	}
	if !supply.IsInt64() {
		return 0, types.ErrOverflow
	}
	return types.Coin(supply.Int64()), nil
}
