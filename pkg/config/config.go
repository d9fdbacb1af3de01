package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/dynamiccoin/dmcd/pkg/core/types"
)

// Net identifies a network.
type Net string

const (
	MainNet     Net = "main"
	TestNet     Net = "test"
	UnitTestNet Net = "unittest"
)

// PriceWindow is a fixed USD price for block times in [Start, End), used for
// the era before a live price feed existed.
type PriceWindow struct {
	Start int64
	End   int64
	Price types.Fiat
}

// NetworkParams holds the consensus parameters of one network. Values are
// built fresh by the constructors below and are never shared mutable state.
type NetworkParams struct {
	Net         Net
	Name        string
	DefaultPort uint16

	// Genesis identity. Building the genesis block itself is not this
	// package's job; a zero GenesisHash accepts any genesis header.
	GenesisHash  types.Hash
	GenesisTime  time.Time
	PowLimitBits uint32

	// Reward policy.
	GenesisReward  types.Coin
	MinReward      types.Coin
	MaxReward      types.Coin
	TailReward     types.Coin // mainnet legacy reward after the decreasing zone
	FlatReward     types.Coin // legacy reward on every other network
	MinTargetPrice types.Fiat

	// Blocks with a timestamp after LiveFeedSwitchTime use the price-driven reward.
	LiveFeedSwitchTime time.Time

	GenesisZoneHeight    int32
	DecreasingZoneHeight int32

	PriceWindows []PriceWindow
}

// PowLimit returns the easiest target allowed on the network.
func (p *NetworkParams) PowLimit() *big.Int {
	return blockchain.CompactToBig(p.PowLimitBits)
}

// IsAdaptive reports whether a block stamped t falls into the price-driven reward regime.
func (p *NetworkParams) IsAdaptive(t time.Time) bool {
	return t.Unix() > p.LiveFeedSwitchTime.Unix()
}

const (
	block0Time      = 1438828878
	block128002Time = 1440898409
	block193536Time = 1441880383

	mainGenesisZone = 128000
	genesisCoins    = 65535
)

func bootstrapWindows(switchTime int64) []PriceWindow {
	return []PriceWindow{
		{Start: block0Time, End: block128002Time, Price: mustFiat(656, 35)},
		{Start: block128002Time, End: block193536Time, Price: mustFiat(0, 10)},
		{Start: block193536Time, End: switchTime, Price: mustFiat(0, 10)},
	}
}

// MainNetParams returns the parameters of the production network.
func MainNetParams() *NetworkParams {
	switchTime := time.Unix(1469916000, 0)
	return &NetworkParams{
		Net:                  MainNet,
		Name:                 "mainnet",
		DefaultPort:          7333,
		GenesisHash:          mustHash("000000152106c2bd4678859ad548da538e2ca0a3ea15dc7c44b0c8bdd8eb5060"),
		GenesisTime:          time.Unix(block0Time, 0),
		PowLimitBits:         0x1e00ffff,
		GenesisReward:        genesisCoins * types.OneCoin,
		MinReward:            types.OneCoin,
		MaxReward:            1_000_000 * types.OneCoin,
		TailReward:           types.OneCoin,
		FlatReward:           1024 * types.OneCoin,
		MinTargetPrice:       mustFiat(1, 1),
		LiveFeedSwitchTime:   switchTime,
		GenesisZoneHeight:    mainGenesisZone,
		DecreasingZoneHeight: mainGenesisZone + 1 + genesisCoins,
		PriceWindows:         bootstrapWindows(switchTime.Unix()),
	}
}

// TestNetParams returns the parameters of the public test network.
func TestNetParams() *NetworkParams {
	p := MainNetParams()
	p.Net = TestNet
	p.Name = "testnet"
	p.DefaultPort = 17333
	p.GenesisHash = mustHash("000000c71f7f1f6bb21f4b834b3cdb22bf7bc289b093ad2136b0c2b5f9d3bc80")
	p.GenesisTime = time.Unix(1429025142, 0)
	return p
}

// UnitTestParams returns parameters for tests: trivial proof of work, a one
// coin genesis reward and no fixed genesis hash.
func UnitTestParams() *NetworkParams {
	p := MainNetParams()
	p.Net = UnitTestNet
	p.Name = "unittest"
	p.DefaultPort = 17333
	p.GenesisHash = types.ZeroHash
	p.PowLimitBits = 0x207fffff
	p.GenesisReward = types.OneCoin
	return p
}

// ParamsForNetwork looks up network parameters by name.
func ParamsForNetwork(name string) (*NetworkParams, error) {
	switch name {
	case "main", "mainnet":
		return MainNetParams(), nil
	case "test", "testnet":
		return TestNetParams(), nil
	case "unittest":
		return UnitTestParams(), nil
	}
	return nil, fmt.Errorf("unknown network %q", name)
}

func mustFiat(whole, cents int64) types.Fiat {
	f, err := types.FiatValueOf(whole, cents)
	if err != nil {
		panic(err)
	}
	return f
}

func mustHash(s string) types.Hash {
	h, err := types.HashFromHex(s)
	if err != nil {
		panic(err)
	}
	return h
}
