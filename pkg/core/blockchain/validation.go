package blockchain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/dynamiccoin/dmcd/pkg/config"
	"github.com/dynamiccoin/dmcd/pkg/core/consensus"
)

var (
	ErrOrphanBlock      = errors.New("block parent is unknown")
	ErrDuplicateBlock   = errors.New("block already known")
	ErrInvalidPrevHash  = errors.New("block previous hash does not match parent")
	ErrTimestampTooFar  = errors.New("block timestamp is too far in the future")
	ErrInvalidPoW       = errors.New("block does not satisfy its proof of work")
	ErrGenesisMismatch  = errors.New("genesis block does not match network")
	ErrHeightOutOfRange = errors.New("block height out of range")
)

// MaxFutureBlockTime is how far ahead of local time a block's timestamp can be.
const MaxFutureBlockTime = 2 * time.Hour

// CheckHeaderContext performs the header checks that need the parent record
// and network parameters. Difficulty retargeting is not checked; the header
// only has to meet the target it claims.
func CheckHeaderContext(header *wire.BlockHeader, parent *ChainRecord, params *config.NetworkParams, now time.Time) error {
	if parent != nil {
		if header.PrevBlock != parent.Hash() {
			return ErrInvalidPrevHash
		}
		if parent.Height == math.MaxInt32 {
			return ErrHeightOutOfRange
		}
	}
	if err := consensus.CheckProofOfWork(header, params.PowLimit()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPoW, err)
	}
	if header.Timestamp.After(now.Add(MaxFutureBlockTime)) {
		return fmt.Errorf("%w: %s", ErrTimestampTooFar, header.Timestamp.UTC())
	}
	return nil
}
