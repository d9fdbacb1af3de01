package types

import (
	"time"

	"github.com/btcsuite/btcd/wire"
)

// HeaderSize is the serialized size of a block header.
const HeaderSize = wire.MaxBlockHeaderPayload

// Block is what the reward rules need to know about a full block: its header,
// the total value its coinbase pays out, and the fees collected by its other
// transactions.
type Block struct {
	Header   wire.BlockHeader
	Coinbase Coin
	Fees     Coin
}

// Hash returns the block identity hash.
func (b *Block) Hash() Hash {
	return b.Header.BlockHash()
}

// Time returns the header timestamp.
func (b *Block) Time() time.Time {
	return b.Header.Timestamp
}
