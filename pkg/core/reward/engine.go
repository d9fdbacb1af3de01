// Package reward decides how much a block may pay its miner.
//
// Up to the live feed switch time the subsidy follows a fixed height
// schedule. After it, every block moves the previous reward by at most one
// coin toward the value that keeps the market price near a target that
// itself rises with the reward.
package reward

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/log"

	"github.com/dynamiccoin/dmcd/pkg/config"
	"github.com/dynamiccoin/dmcd/pkg/core/blockchain"
	"github.com/dynamiccoin/dmcd/pkg/core/types"
	"github.com/dynamiccoin/dmcd/pkg/oracle"
)

var (
	ErrInvalidCoinbase     = errors.New("coinbase pays nothing beyond fees")
	ErrRewardMismatch      = errors.New("coinbase pays wrong reward")
	ErrIndeterminateReward = errors.New("previous block reward is unknown")
)

// ChainReader is read access to stored chain records.
type ChainReader interface {
	Get(hash types.Hash) (*blockchain.ChainRecord, error)
	Head() (*blockchain.ChainRecord, error)
}

// PriceSource gives the USD price of DMC at a block time.
type PriceSource interface {
	PriceAt(ctx context.Context, ts int64) (oracle.Quote, error)
}

// targetRate values one DMC of reward at one cent of target price.
var targetRate = types.ExchangeRate{Coin: types.OneCoin, Fiat: types.Cent}

// Engine computes and checks block rewards. It keeps no state of its own;
// every answer is derived from the chain and the price source.
type Engine struct {
	params *config.NetworkParams
	chain  ChainReader
	prices PriceSource
	log    log.Logger
}

func New(params *config.NetworkParams, chain ChainReader, prices PriceSource) *Engine {
	return &Engine{
		params: params,
		chain:  chain,
		prices: prices,
		log:    log.New("module", "reward"),
	}
}

// ExpectedReward returns the subsidy a block with this header at this height
// should pay.
func (e *Engine) ExpectedReward(ctx context.Context, header *wire.BlockHeader, height int32) (types.Coin, error) {
	if !e.params.IsAdaptive(header.Timestamp) {
		return e.LegacyReward(height), nil
	}
	prev, err := e.previousReward(header)
	if err != nil {
		return 0, err
	}
	quote, err := e.prices.PriceAt(ctx, header.Timestamp.Unix())
	if err != nil {
		return 0, err
	}
	target, err := e.TargetPrice(prev)
	if err != nil {
		return 0, err
	}
	reward := e.step(prev, quote.Price, target)
	e.log.Debug("Adaptive reward", "block", header.BlockHash(), "height", height,
		"price", quote.Price, "stale", quote.Stale, "target", target, "prev", prev, "reward", reward)
	return reward, nil
}

// LegacyReward is the height schedule used before the live price feed.
func (e *Engine) LegacyReward(height int32) types.Coin {
	p := e.params
	if p.Net != config.MainNet {
		return p.FlatReward
	}
	switch {
	case height < 0:
		return p.TailReward
	case height <= p.GenesisZoneHeight:
		return p.GenesisReward
	case height < p.DecreasingZoneHeight:
		return types.Coin(p.DecreasingZoneHeight-height) * types.OneCoin
	default:
		return p.TailReward
	}
}

// TargetPrice is the price the adaptive rule steers toward after a block
// that paid prev: one USD plus one cent per coin of reward, never below the
// network minimum.
func (e *Engine) TargetPrice(prev types.Coin) (types.Fiat, error) {
	extra, err := targetRate.ToFiat(prev)
	if err != nil {
		return 0, err
	}
	target, err := types.OneFiat.Add(extra)
	if err != nil {
		return 0, err
	}
	return max(target, e.params.MinTargetPrice), nil
}

func (e *Engine) step(prev types.Coin, price, target types.Fiat) types.Coin {
	reward := prev
	switch price.Cmp(target) {
	case -1:
		reward = prev.SaturatingSub(types.OneCoin)
	case 1:
		reward = prev.SaturatingAdd(types.OneCoin)
	}
	return types.ClampCoin(reward, e.params.MinReward, e.params.MaxReward)
}

// previousReward is the reward of the header's parent, or the genesis reward
// when the parent is not stored.
func (e *Engine) previousReward(header *wire.BlockHeader) (types.Coin, error) {
	parent, err := e.chain.Get(header.PrevBlock)
	if errors.Is(err, blockchain.ErrRecordNotFound) {
		return e.params.GenesisReward, nil
	}
	if err != nil {
		return 0, err
	}
	if !parent.HasReward() {
		return 0, fmt.Errorf("%w: %s at height %d", ErrIndeterminateReward, parent.Hash(), parent.Height)
	}
	return *parent.Reward, nil
}

// ValidateBlockReward checks the coinbase of a block at height. After the
// switch time only the one coin step and the reward bounds are enforced; the
// oracle price itself is not re-checked.
func (e *Engine) ValidateBlockReward(ctx context.Context, header *wire.BlockHeader, height int32, coinbase, fees types.Coin) error {
	if coinbase <= 0 || fees < 0 || coinbase < fees {
		return fmt.Errorf("%w: coinbase %s, fees %s", ErrInvalidCoinbase, coinbase, fees)
	}
	reward, err := coinbase.Sub(fees)
	if err != nil || reward <= 0 {
		return fmt.Errorf("%w: coinbase %s, fees %s", ErrInvalidCoinbase, coinbase, fees)
	}

	if e.params.IsAdaptive(header.Timestamp) {
		prev, err := e.previousReward(header)
		if err != nil {
			return err
		}
		if !withinStep(reward, prev) || reward < e.params.MinReward || reward > e.params.MaxReward {
			return fmt.Errorf("%w: reward %s after %s, bounds [%s, %s]",
				ErrRewardMismatch, reward, prev, e.params.MinReward, e.params.MaxReward)
		}
		return nil
	}

	if expected := e.LegacyReward(height); reward != expected {
		return fmt.Errorf("%w: reward %s, want %s (fees %s)", ErrRewardMismatch, reward, expected, fees)
	}
	return nil
}

func withinStep(reward, prev types.Coin) bool {
	diff, err := reward.Sub(prev)
	if err != nil {
		return false
	}
	return diff == 0 || diff == types.OneCoin || diff == -types.OneCoin
}

// TotalSupply is the cumulative supply at the chain head.
func (e *Engine) TotalSupply() (types.Coin, error) {
	head, err := e.chain.Head()
	if err != nil {
		return 0, err
	}
	return blockchain.SupplyCoin(head.ChainSupply)
}

// MarketCap values the total supply at the current price.
func (e *Engine) MarketCap(ctx context.Context) (types.Fiat, error) {
	supply, err := e.TotalSupply()
	if err != nil {
		return 0, err
	}
	price, err := e.CurrentPrice(ctx)
	if err != nil {
		return 0, err
	}
	rate, err := types.NewFiatPerCoin(price.Price)
	if err != nil {
		return 0, err
	}
	return rate.ToFiat(supply)
}

// CurrentReward is the reward paid by the head block.
func (e *Engine) CurrentReward() (types.Coin, error) {
	head, err := e.chain.Head()
	if err != nil {
		return 0, err
	}
	if !head.HasReward() {
		return 0, fmt.Errorf("%w: %s", ErrIndeterminateReward, head.Hash())
	}
	return *head.Reward, nil
}

// CurrentPrice is the price at the head block's time.
func (e *Engine) CurrentPrice(ctx context.Context) (oracle.Quote, error) {
	head, err := e.chain.Head()
	if err != nil {
		return oracle.Quote{}, err
	}
	return e.prices.PriceAt(ctx, head.Header.Timestamp.Unix())
}

// CurrentTargetPrice is the target the next block steers toward.
func (e *Engine) CurrentTargetPrice() (types.Fiat, error) {
	reward, err := e.CurrentReward()
	if err != nil {
		return 0, err
	}
	return e.TargetPrice(reward)
}
