package reward

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/dynamiccoin/dmcd/pkg/config"
	"github.com/dynamiccoin/dmcd/pkg/core/blockchain"
	"github.com/dynamiccoin/dmcd/pkg/core/types"
	"github.com/dynamiccoin/dmcd/pkg/oracle"
)

var (
	legacyTime   = time.Unix(1440000000, 0)
	adaptiveTime = time.Unix(1469916001, 0)
)

type memChain struct {
	records map[types.Hash]*blockchain.ChainRecord
	head    *blockchain.ChainRecord
}

func newMemChain() *memChain {
	return &memChain{records: make(map[types.Hash]*blockchain.ChainRecord)}
}

func (c *memChain) add(rec *blockchain.ChainRecord) *blockchain.ChainRecord {
	c.records[rec.Hash()] = rec
	c.head = rec
	return rec
}

func (c *memChain) Get(hash types.Hash) (*blockchain.ChainRecord, error) {
	rec, ok := c.records[hash]
	if !ok {
		return nil, blockchain.ErrRecordNotFound
	}
	return rec, nil
}

func (c *memChain) Head() (*blockchain.ChainRecord, error) {
	if c.head == nil {
		return nil, blockchain.ErrRecordNotFound
	}
	return c.head, nil
}

type fixedPrice struct {
	price types.Fiat
	err   error
}

func (p fixedPrice) PriceAt(_ context.Context, ts int64) (oracle.Quote, error) {
	if p.err != nil {
		return oracle.Quote{}, p.err
	}
	return oracle.Quote{Time: ts, Price: p.price}, nil
}

func coins(n int64) types.Coin { return types.Coin(n) * types.OneCoin }

// parentWith stores a record paying reward and returns a child header on it.
func parentWith(c *memChain, reward *types.Coin, supply *big.Int) *wire.BlockHeader {
	parent := c.add(&blockchain.ChainRecord{
		Header:      wire.BlockHeader{Version: 1, Timestamp: adaptiveTime, Nonce: uint32(len(c.records))},
		ChainWork:   big.NewInt(100),
		Height:      200000,
		Reward:      reward,
		ChainSupply: supply,
	})
	return &wire.BlockHeader{Version: 1, PrevBlock: parent.Hash(), Timestamp: adaptiveTime.Add(time.Minute)}
}

func TestLegacyRewardMainNet(t *testing.T) {
	e := New(config.MainNetParams(), newMemChain(), fixedPrice{})
	tests := []struct {
		height int32
		want   types.Coin
	}{
		{-2147483648, coins(1)},
		{-1, coins(1)},
		{0, coins(65535)},
		{50, coins(65535)},
		{128000, coins(65535)},
		{128001, coins(65535)},
		{128010, coins(65526)},
		{193535, coins(1)},
		{193536, coins(1)},
		{1000000, coins(1)},
	}
	for _, tt := range tests {
		if got := e.LegacyReward(tt.height); got != tt.want {
			t.Errorf("LegacyReward(%d) = %s, want %s", tt.height, got, tt.want)
		}
	}
}

func TestLegacyRewardOtherNetworks(t *testing.T) {
	for _, params := range []*config.NetworkParams{config.TestNetParams(), config.UnitTestParams()} {
		e := New(params, newMemChain(), fixedPrice{})
		for _, h := range []int32{0, 128001, 500000} {
			if got := e.LegacyReward(h); got != coins(1024) {
				t.Errorf("%s: LegacyReward(%d) = %s, want 1024", params.Name, h, got)
			}
		}
	}
}

func TestExpectedRewardDecreasingZone(t *testing.T) {
	params := config.MainNetParams()
	height := params.GenesisZoneHeight + 10
	params.DecreasingZoneHeight = height + 500

	e := New(params, newMemChain(), fixedPrice{})
	got, err := e.ExpectedReward(context.Background(), &wire.BlockHeader{Timestamp: legacyTime}, height)
	if err != nil {
		t.Fatal(err)
	}
	if got != coins(500) {
		t.Errorf("ExpectedReward = %s, want 500", got)
	}
}

func TestLegacyEndToEnd(t *testing.T) {
	params := config.MainNetParams()
	e := New(params, newMemChain(), fixedPrice{err: errors.New("oracle must not be used")})
	header := &wire.BlockHeader{Timestamp: legacyTime}
	fees := 3 * types.OneCoin / 2

	got, err := e.ExpectedReward(context.Background(), header, 50)
	if err != nil || got != params.GenesisReward {
		t.Fatalf("ExpectedReward(50) = %s, %v, want %s", got, err, params.GenesisReward)
	}
	if err := e.ValidateBlockReward(context.Background(), header, 50, params.GenesisReward+fees, fees); err != nil {
		t.Errorf("ValidateBlockReward failed: %v", err)
	}
	if err := e.ValidateBlockReward(context.Background(), header, 50, params.GenesisReward+fees-1, fees); !errors.Is(err, ErrRewardMismatch) {
		t.Errorf("underpaying coinbase error = %v, want ErrRewardMismatch", err)
	}
	if err := e.ValidateBlockReward(context.Background(), header, 200000, params.GenesisReward, 0); !errors.Is(err, ErrRewardMismatch) {
		t.Errorf("genesis reward after the zones error = %v, want ErrRewardMismatch", err)
	}
}

func TestTargetPrice(t *testing.T) {
	e := New(config.MainNetParams(), newMemChain(), fixedPrice{})
	tests := []struct {
		prev types.Coin
		want types.Fiat
	}{
		{0, 1010},
		{coins(1), 1010},
		{coins(5), 1050},
		{coins(100), 2000},
		{coins(65535), 655350 + 1000},
		{coins(1000000), 10001000},
		{coins(1) + 1, 1010},
	}
	for _, tt := range tests {
		got, err := e.TargetPrice(tt.prev)
		if err != nil {
			t.Fatalf("TargetPrice(%s) failed: %v", tt.prev, err)
		}
		if got != tt.want {
			t.Errorf("TargetPrice(%s) = %s, want %s", tt.prev, got, tt.want)
		}
	}
}

func TestAdaptiveStep(t *testing.T) {
	params := config.MainNetParams()
	tests := []struct {
		name  string
		prev  types.Coin
		price types.Fiat
		want  types.Coin
	}{
		{"below target", coins(100), 1500, coins(99)},
		{"at target", coins(100), 2000, coins(100)},
		{"above target", coins(100), 2001, coins(101)},
		{"clamped at min", params.MinReward, 1, params.MinReward},
		{"clamped at max", params.MaxReward, 1 << 40, params.MaxReward},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMemChain()
			prev := tt.prev
			header := parentWith(c, &prev, big.NewInt(0))
			e := New(params, c, fixedPrice{price: tt.price})

			got, err := e.ExpectedReward(context.Background(), header, 200001)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ExpectedReward = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAdaptiveWithoutParent(t *testing.T) {
	params := config.MainNetParams()
	e := New(params, newMemChain(), fixedPrice{price: types.OneFiat})
	header := &wire.BlockHeader{PrevBlock: types.Hash{0x42}, Timestamp: adaptiveTime}

	got, err := e.ExpectedReward(context.Background(), header, 1)
	if err != nil {
		t.Fatal(err)
	}
	if want := params.GenesisReward - types.OneCoin; got != want {
		t.Errorf("ExpectedReward = %s, want %s", got, want)
	}
}

func TestAdaptiveIndeterminateParent(t *testing.T) {
	c := newMemChain()
	header := parentWith(c, nil, nil)
	e := New(config.MainNetParams(), c, fixedPrice{price: types.OneFiat})

	if _, err := e.ExpectedReward(context.Background(), header, 1); !errors.Is(err, ErrIndeterminateReward) {
		t.Errorf("ExpectedReward error = %v, want ErrIndeterminateReward", err)
	}
	if err := e.ValidateBlockReward(context.Background(), header, 1, coins(1), 0); !errors.Is(err, ErrIndeterminateReward) {
		t.Errorf("ValidateBlockReward error = %v, want ErrIndeterminateReward", err)
	}
}

func TestAdaptiveOracleFailure(t *testing.T) {
	c := newMemChain()
	prev := coins(100)
	header := parentWith(c, &prev, big.NewInt(0))
	e := New(config.MainNetParams(), c, fixedPrice{err: oracle.ErrUnavailable})

	if _, err := e.ExpectedReward(context.Background(), header, 1); !errors.Is(err, oracle.ErrUnavailable) {
		t.Errorf("ExpectedReward error = %v, want oracle.ErrUnavailable", err)
	}
}

func TestValidateCoinbase(t *testing.T) {
	e := New(config.MainNetParams(), newMemChain(), fixedPrice{})
	header := &wire.BlockHeader{Timestamp: legacyTime}
	tests := []struct {
		name     string
		coinbase types.Coin
		fees     types.Coin
	}{
		{"zero coinbase", 0, 0},
		{"negative coinbase", -1, 0},
		{"below fees", coins(1), coins(2)},
		{"equal to fees", coins(2), coins(2)},
		// Would add up to the exact schedule reward if negative fees counted.
		{"negative fees", coins(65535) - 1, -1},
	}
	for _, tt := range tests {
		err := e.ValidateBlockReward(context.Background(), header, 50, tt.coinbase, tt.fees)
		if !errors.Is(err, ErrInvalidCoinbase) {
			t.Errorf("%s: error = %v, want ErrInvalidCoinbase", tt.name, err)
		}
	}
}

func TestValidateAdaptive(t *testing.T) {
	params := config.MainNetParams()
	tests := []struct {
		name   string
		prev   types.Coin
		reward types.Coin
		ok     bool
	}{
		{"unchanged", coins(100), coins(100), true},
		{"one down", coins(100), coins(99), true},
		{"one up", coins(100), coins(101), true},
		{"two up", coins(100), coins(102), false},
		{"half step", coins(100), coins(100) + types.OneCoin/2, false},
		{"below min", params.MinReward, params.MinReward - types.OneCoin/2, false},
		{"step below min", params.MinReward, 0, false},
		{"above max", params.MaxReward, params.MaxReward + types.OneCoin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMemChain()
			prev := tt.prev
			header := parentWith(c, &prev, big.NewInt(0))
			// The price is irrelevant: only the step and the bounds are checked.
			e := New(params, c, fixedPrice{err: errors.New("not consulted")})

			fees := types.OneCoin
			err := e.ValidateBlockReward(context.Background(), header, 1, tt.reward+fees, fees)
			if tt.ok && err != nil {
				t.Errorf("ValidateBlockReward failed: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrRewardMismatch) && !errors.Is(err, ErrInvalidCoinbase) {
				t.Errorf("ValidateBlockReward error = %v, want a reward error", err)
			}
		})
	}
}

func TestChainQueries(t *testing.T) {
	c := newMemChain()
	e := New(config.MainNetParams(), c, fixedPrice{price: 2 * types.OneFiat})

	if _, err := e.TotalSupply(); !errors.Is(err, blockchain.ErrRecordNotFound) {
		t.Errorf("TotalSupply on empty chain error = %v, want ErrRecordNotFound", err)
	}

	reward := coins(100)
	parentWith(c, &reward, big.NewInt(int64(coins(1000))))
	ctx := context.Background()

	supply, err := e.TotalSupply()
	if err != nil || supply != coins(1000) {
		t.Errorf("TotalSupply = %s, %v, want 1000", supply, err)
	}
	current, err := e.CurrentReward()
	if err != nil || current != coins(100) {
		t.Errorf("CurrentReward = %s, %v, want 100", current, err)
	}
	price, err := e.CurrentPrice(ctx)
	if err != nil || price.Price != 2*types.OneFiat || price.Time != adaptiveTime.Unix() {
		t.Errorf("CurrentPrice = %+v, %v", price, err)
	}
	target, err := e.CurrentTargetPrice()
	if err != nil || target != 2*types.OneFiat {
		t.Errorf("CurrentTargetPrice = %s, %v, want 2", target, err)
	}
	mcap, err := e.MarketCap(ctx)
	if err != nil || mcap != 2000*types.OneFiat {
		t.Errorf("MarketCap = %s, %v, want 2000", mcap, err)
	}

	parentWith(c, nil, nil)
	if _, err := e.TotalSupply(); !errors.Is(err, blockchain.ErrSupplyIndeterminate) {
		t.Errorf("TotalSupply error = %v, want ErrSupplyIndeterminate", err)
	}
	if _, err := e.CurrentReward(); !errors.Is(err, ErrIndeterminateReward) {
		t.Errorf("CurrentReward error = %v, want ErrIndeterminateReward", err)
	}
}
