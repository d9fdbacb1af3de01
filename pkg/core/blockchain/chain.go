package blockchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/log"

	"github.com/dynamiccoin/dmcd/pkg/config"
	"github.com/dynamiccoin/dmcd/pkg/core/types"
)

var (
	ErrChainAlreadyInitialized = errors.New("chain is already initialized")
	ErrChainNotInitialized     = errors.New("chain has no genesis")
)

// RewardValidator decides whether a block pays an acceptable subsidy.
type RewardValidator interface {
	ValidateBlockReward(ctx context.Context, header *wire.BlockHeader, height int32, coinbase, fees types.Coin) error
}

// CheckpointChecker rejects blocks that conflict with a trusted block at the
// same height.
type CheckpointChecker interface {
	Check(hash types.Hash, height int32) error
}

// Chain accepts blocks on top of a ChainStore and tracks the best tip. It
// does no networking; blocks are handed to it one at a time by the caller.
type Chain struct {
	params  *config.NetworkParams
	store   ChainStore
	rewards RewardValidator
	checks  CheckpointChecker // may be nil
	log     log.Logger
	now     func() time.Time

	mu   sync.Mutex // serializes store writes and head switches
	head *ChainRecord
}

// NewChain opens a chain over store, resuming from its persisted head if any.
func NewChain(params *config.NetworkParams, store ChainStore, rewards RewardValidator) (*Chain, error) {
	c := &Chain{
		params:  params,
		store:   store,
		rewards: rewards,
		log:     log.New("chain", params.Name),
		now:     time.Now,
	}
	head, err := store.Head()
	switch {
	case err == nil:
		c.head = head
		c.log.Debug("Loaded chain head", "hash", head.Hash(), "height", head.Height)
	case errors.Is(err, ErrRecordNotFound):
	default:
		return nil, err
	}
	return c, nil
}

// SetCheckpoints makes the chain refuse blocks that conflict with cp. It must
// be called before blocks are accepted.
func (c *Chain) SetCheckpoints(cp CheckpointChecker) {
	c.checks = cp
}

// InitGenesis stores the genesis record. The header hash must match the
// network's genesis hash unless the network leaves it unset.
func (c *Chain) InitGenesis(header wire.BlockHeader) (*ChainRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.head != nil {
		return nil, ErrChainAlreadyInitialized
	}
	hash := header.BlockHash()
	if c.params.GenesisHash != types.ZeroHash && hash != c.params.GenesisHash {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrGenesisMismatch, hash, c.params.GenesisHash)
	}
	reward := c.params.GenesisReward
	rec := NewGenesisRecord(header, &reward)
	if err := c.setHead(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// InitFromCheckpoint starts an empty chain from a trusted record instead of
// the genesis block.
func (c *Chain) InitFromCheckpoint(rec *ChainRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.head != nil {
		return ErrChainAlreadyInitialized
	}
	return c.setHead(rec)
}

// AcceptBlock validates a full block against its parent and stores its
// record. The head moves only if the new chain has strictly more work.
func (c *Chain) AcceptBlock(ctx context.Context, b *types.Block) (*ChainRecord, error) {
	parent, err := c.parentOf(&b.Header)
	if err != nil {
		return nil, err
	}
	if err := CheckHeaderContext(&b.Header, parent, c.params, c.now()); err != nil {
		return nil, err
	}
	// Reward validation may wait on the price feed; no lock is held here.
	if err := c.rewards.ValidateBlockReward(ctx, &b.Header, parent.Height+1, b.Coinbase, b.Fees); err != nil {
		return nil, err
	}
	reward, err := b.Coinbase.Sub(b.Fees)
	if err != nil {
		return nil, err
	}
	rec := parent.Build(b.Header, &reward)
	return rec, c.connect(rec)
}

// AcceptHeader extends the chain with a header alone. Its reward, and from
// then on the chain supply, is unknown.
func (c *Chain) AcceptHeader(header wire.BlockHeader) (*ChainRecord, error) {
	parent, err := c.parentOf(&header)
	if err != nil {
		return nil, err
	}
	if err := CheckHeaderContext(&header, parent, c.params, c.now()); err != nil {
		return nil, err
	}
	rec := parent.Build(header, nil)
	return rec, c.connect(rec)
}

func (c *Chain) parentOf(header *wire.BlockHeader) (*ChainRecord, error) {
	hash := header.BlockHash()
	if _, err := c.store.Get(hash); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateBlock, hash)
	} else if !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}
	parent, err := c.store.Get(header.PrevBlock)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrphanBlock, header.PrevBlock)
	}
	if err != nil {
		return nil, err
	}
	if c.checks != nil {
		if err := c.checks.Check(hash, parent.Height+1); err != nil {
			return nil, err
		}
	}
	return parent, nil
}

func (c *Chain) connect(rec *ChainRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.head == nil {
		return ErrChainNotInitialized
	}
	if !rec.MoreWorkThan(c.head) {
		c.log.Debug("Stored side chain block", "hash", rec.Hash(), "height", rec.Height, "work", rec.ChainWork)
		return c.store.Put(rec)
	}
	if rec.Header.PrevBlock != c.head.Hash() {
		c.log.Info("Chain reorganisation", "from", c.head.Hash(), "to", rec.Hash(), "height", rec.Height)
	}
	if err := c.setHead(rec); err != nil {
		return err
	}
	c.log.Debug("New chain head", "hash", rec.Hash(), "height", rec.Height, "work", rec.ChainWork)
	return nil
}

func (c *Chain) setHead(rec *ChainRecord) error {
	if err := c.store.Put(rec); err != nil {
		return err
	}
	if err := c.store.SetHead(rec.Hash()); err != nil {
		return err
	}
	c.head = rec
	return nil
}

// Head returns the best tip.
func (c *Chain) Head() (*ChainRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.head == nil {
		return nil, ErrRecordNotFound
	}
	return c.head, nil
}

// Get returns the record of any stored block.
func (c *Chain) Get(hash types.Hash) (*ChainRecord, error) {
	return c.store.Get(hash)
}

// Params returns the network parameters the chain validates against.
func (c *Chain) Params() *config.NetworkParams {
	return c.params
}
