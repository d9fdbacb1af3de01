package consensus

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/wire"
)

var (
	ErrInvalidTarget = errors.New("block target out of range")
	ErrHighHash      = errors.New("block hash above target")
)

// CalcWork returns the work a header with compact target bits represents:
// 2^256 / (target+1), the expected number of hashes needed to find it. A
// non-positive target yields zero work.
func CalcWork(bits uint32) *big.Int {
	return blockchain.CalcWork(bits)
}

// CheckProofOfWork checks that the header hash is at or below the target it
// claims, and that the target lies within (0, powLimit].
func CheckProofOfWork(header *wire.BlockHeader, powLimit *big.Int) error {
	target := blockchain.CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		return fmt.Errorf("%w: target %064x is not positive", ErrInvalidTarget, target)
	}
	if target.Cmp(powLimit) > 0 {
		return fmt.Errorf("%w: target %064x is above the limit %064x", ErrInvalidTarget, target, powLimit)
	}
	hash := header.BlockHash()
	if blockchain.HashToBig(&hash).Cmp(target) > 0 {
		return fmt.Errorf("%w: hash %s, target %064x", ErrHighHash, hash, target)
	}
	return nil
}
