package consensus

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/wire"
)

// ErrNonceSpaceExhausted is returned when no nonce satisfies the target.
var ErrNonceSpaceExhausted = errors.New("no nonce satisfies the target")

// checkEvery is how many nonces are tried between context checks.
const checkEvery = 1 << 12

// SolveHeader searches for a nonce that makes the header meet its own
// target, starting from the current nonce. It is meant for test and
// development networks with trivial targets.
func SolveHeader(ctx context.Context, header *wire.BlockHeader) error {
	target := blockchain.CompactToBig(header.Bits)
	start := header.Nonce
	for {
		hash := header.BlockHash()
		if blockchain.HashToBig(&hash).Cmp(target) <= 0 {
			return nil
		}
		header.Nonce++
		if header.Nonce == start {
			return ErrNonceSpaceExhausted
		}
		if header.Nonce%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
}
