package blockchain

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/dynamiccoin/dmcd/pkg/core/consensus"
	"github.com/dynamiccoin/dmcd/pkg/core/types"
)

const (
	easyBits   = 0x207fffff // work 2
	harderBits = 0x1f7fffff // work 512
)

// newHeader returns a solved header on top of prev.
func newHeader(t testing.TB, prev types.Hash, ts int64, bits uint32) wire.BlockHeader {
	t.Helper()
	h := wire.BlockHeader{
		Version:   1,
		PrevBlock: prev,
		Timestamp: time.Unix(ts, 0),
		Bits:      bits,
	}
	if err := consensus.SolveHeader(context.Background(), &h); err != nil {
		t.Fatalf("could not solve header with bits %#x: %v", bits, err)
	}
	return h
}

func coin(n int64) *types.Coin {
	c := types.Coin(n) * types.OneCoin
	return &c
}

type rewardFunc func(ctx context.Context, header *wire.BlockHeader, height int32, coinbase, fees types.Coin) error

func (f rewardFunc) ValidateBlockReward(ctx context.Context, header *wire.BlockHeader, height int32, coinbase, fees types.Coin) error {
	return f(ctx, header, height, coinbase, fees)
}

var acceptAll = rewardFunc(func(context.Context, *wire.BlockHeader, int32, types.Coin, types.Coin) error {
	return nil
})
