package blockchain

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/wire"
	"github.com/dynamiccoin/dmcd/pkg/core/consensus"
	"github.com/dynamiccoin/dmcd/pkg/core/types"
)

// ChainRecord is the accounting state carried forward by one block: the
// cumulative work and money supply of the chain ending at it, its height and
// the subsidy it paid. Records are immutable once built.
type ChainRecord struct {
	Header    wire.BlockHeader
	ChainWork *big.Int
	Height    int32

	// Reward is nil when the block's subsidy could not be determined, for
	// example when only its header is known.
	Reward *types.Coin

	// ChainSupply is nil as soon as any block on the chain has a nil Reward,
	// and stays nil for every descendant.
	ChainSupply *big.Int
}

// NewGenesisRecord returns the record of a chain's first block.
func NewGenesisRecord(header wire.BlockHeader, reward *types.Coin) *ChainRecord {
	return &ChainRecord{
		Header:      header,
		ChainWork:   consensus.CalcWork(header.Bits),
		Height:      0,
		Reward:      copyCoin(reward),
		ChainSupply: AccumulateSupply(big.NewInt(0), reward),
	}
}

// Build returns the record of a child block extending r. The header is
// expected to have been validated by the caller.
func (r *ChainRecord) Build(header wire.BlockHeader, reward *types.Coin) *ChainRecord {
	work := new(big.Int).Add(r.ChainWork, consensus.CalcWork(header.Bits))
	return &ChainRecord{
		Header:      header,
		ChainWork:   work,
		Height:      r.Height + 1,
		Reward:      copyCoin(reward),
		ChainSupply: AccumulateSupply(r.ChainSupply, reward),
	}
}

// Hash returns the hash of the record's block.
func (r *ChainRecord) Hash() types.Hash {
	return r.Header.BlockHash()
}

// MoreWorkThan reports whether r has strictly more cumulative work than o.
// Ties are left to the caller.
func (r *ChainRecord) MoreWorkThan(o *ChainRecord) bool {
	return r.ChainWork.Cmp(o.ChainWork) > 0
}

// Equal compares header, chain work and height. Reward and supply are not
// part of a record's identity.
func (r *ChainRecord) Equal(o *ChainRecord) bool {
	if r == nil || o == nil {
		return r == o
	}
	return headersEqual(&r.Header, &o.Header) && r.Height == o.Height &&
		r.ChainWork.Cmp(o.ChainWork) == 0
}

// headersEqual compares the consensus fields. Timestamps are compared as
// instants since decoded headers carry a different location than built ones.
func headersEqual(a, b *wire.BlockHeader) bool {
	return a.Version == b.Version && a.PrevBlock == b.PrevBlock &&
		a.MerkleRoot == b.MerkleRoot && a.Timestamp.Equal(b.Timestamp) &&
		a.Bits == b.Bits && a.Nonce == b.Nonce
}

// Prev looks up the parent record through get.
func (r *ChainRecord) Prev(get func(types.Hash) (*ChainRecord, error)) (*ChainRecord, error) {
	return get(r.Header.PrevBlock)
}

// HasReward reports whether the block's subsidy is known.
func (r *ChainRecord) HasReward() bool { return r.Reward != nil }

func (r *ChainRecord) String() string {
	reward, supply := "unknown", "unknown"
	if r.Reward != nil {
		reward = r.Reward.String()
	}
	if r.ChainSupply != nil {
		supply = r.ChainSupply.String()
	}
	return fmt.Sprintf("block %s height=%d work=%s reward=%s supply=%s",
		r.Hash(), r.Height, r.ChainWork, reward, supply)
}

func copyCoin(c *types.Coin) *types.Coin {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}
