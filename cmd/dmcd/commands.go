package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/urfave/cli/v2"

	"github.com/dynamiccoin/dmcd/pkg/core/checkpoint"
	"github.com/dynamiccoin/dmcd/pkg/core/reward"
	"github.com/dynamiccoin/dmcd/pkg/core/types"
	"github.com/dynamiccoin/dmcd/pkg/oracle"
	"github.com/dynamiccoin/dmcd/pkg/rpc"
)

var (
	httpAddrFlag = &cli.StringFlag{
		Name:  "http.addr",
		Usage: "HTTP API listen address",
	}
	heightFlag = &cli.IntFlag{
		Name:  "height",
		Usage: "block height (default: head height + 1)",
	}
	timeFlag = &cli.Int64Flag{
		Name:  "time",
		Usage: "block unix time (default: now)",
	}
	prevFlag = &cli.StringFlag{
		Name:  "prev",
		Usage: "parent block hash (default: chain head)",
	}
	priceFlag = &cli.StringFlag{
		Name:  "price",
		Usage: "USD price of one DMC to use instead of asking the price feed",
	}
	coinbaseFlag = &cli.StringFlag{
		Name:  "coinbase",
		Usage: "coinbase output in DMC; when set, the block reward is validated",
	}
	feesFlag = &cli.StringFlag{
		Name:  "fees",
		Usage: "transaction fees in DMC collected by the coinbase",
		Value: "0",
	}
	intervalFlag = &cli.IntFlag{
		Name:  "interval",
		Usage: "keep one checkpoint every this many blocks",
		Value: 2016,
	}
	outFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "output file (default: stdout)",
	}
)

var commandServe = &cli.Command{
	Name:  "serve",
	Usage: "serve the read-only HTTP API",
	Flags: []cli.Flag{httpAddrFlag},
	Action: func(ctx *cli.Context) error {
		return withNode(ctx, func(n *node) error {
			addr := n.cfg.HTTP.Addr
			if ctx.IsSet(httpAddrFlag.Name) {
				addr = ctx.String(httpAddrFlag.Name)
			}
			sigctx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rpc.NewServer(n.params, n.chain, n.engine).Serve(sigctx, addr)
		})
	},
}

var commandReward = &cli.Command{
	Name:  "reward",
	Usage: "print the expected reward of a block",
	Flags: []cli.Flag{heightFlag, timeFlag, prevFlag, priceFlag, coinbaseFlag, feesFlag},
	Action: func(ctx *cli.Context) error {
		return withNode(ctx, func(n *node) error {
			header := wire.BlockHeader{Timestamp: time.Now()}
			if ctx.IsSet(timeFlag.Name) {
				header.Timestamp = time.Unix(ctx.Int64(timeFlag.Name), 0)
			}
			height := int32(ctx.Int(heightFlag.Name))
			if ctx.IsSet(prevFlag.Name) {
				prev, err := types.HashFromHex(ctx.String(prevFlag.Name))
				if err != nil {
					return err
				}
				header.PrevBlock = prev
			} else if head, err := n.chain.Head(); err == nil {
				header.PrevBlock = head.Hash()
				if !ctx.IsSet(heightFlag.Name) {
					height = head.Height + 1
				}
			}

			engine := n.engine
			if ctx.IsSet(priceFlag.Name) {
				price, err := types.ParseFiat(ctx.String(priceFlag.Name))
				if err != nil {
					return fmt.Errorf("--%s: %w", priceFlag.Name, err)
				}
				engine = reward.New(n.params, n.store, fixedPrice(price))
			}

			rctx, cancel := context.WithTimeout(ctx.Context, time.Minute)
			defer cancel()
			r, err := engine.ExpectedReward(rctx, &header, height)
			if err != nil {
				return err
			}
			regime := "legacy"
			if n.params.IsAdaptive(header.Timestamp) {
				regime = "adaptive"
			}
			fmt.Printf("height %d, time %d (%s): %s DMC\n", height, header.Timestamp.Unix(), regime, r)

			if !ctx.IsSet(coinbaseFlag.Name) {
				return nil
			}
			coinbase, fees, err := parseCoinbase(ctx)
			if err != nil {
				return err
			}
			if err := engine.ValidateBlockReward(rctx, &header, height, coinbase, fees); err != nil {
				return err
			}
			fmt.Printf("coinbase %s DMC with fees %s DMC is valid\n", coinbase, fees)
			return nil
		})
	},
}

// fixedPrice quotes the same price for every block time.
type fixedPrice types.Fiat

func (p fixedPrice) PriceAt(_ context.Context, ts int64) (oracle.Quote, error) {
	return oracle.Quote{Time: ts, Price: types.Fiat(p)}, nil
}

func parseCoinbase(ctx *cli.Context) (coinbase, fees types.Coin, err error) {
	if coinbase, err = types.ParseCoin(ctx.String(coinbaseFlag.Name)); err != nil {
		return 0, 0, fmt.Errorf("--%s: %w", coinbaseFlag.Name, err)
	}
	if fees, err = types.ParseCoin(ctx.String(feesFlag.Name)); err != nil {
		return 0, 0, fmt.Errorf("--%s: %w", feesFlag.Name, err)
	}
	return coinbase, fees, nil
}

var commandCheckpoint = &cli.Command{
	Name:  "checkpoint",
	Usage: "manage checkpoint files",
	Subcommands: []*cli.Command{
		{
			Name:   "export",
			Usage:  "write checkpoints of the current chain",
			Flags:  []cli.Flag{intervalFlag, outFlag},
			Action: exportCheckpoints,
		},
		{
			Name:      "inspect",
			Usage:     "print the contents of a checkpoint file",
			ArgsUsage: "<file>",
			Action:    inspectCheckpoints,
		},
		{
			Name:      "import",
			Usage:     "start an empty chain from a checkpoint file",
			ArgsUsage: "<file>",
			Action:    importCheckpoints,
		},
	},
}

func exportCheckpoints(ctx *cli.Context) error {
	return withNode(ctx, func(n *node) error {
		head, err := n.chain.Head()
		if err != nil {
			return err
		}
		records, err := checkpoint.Collect(n.chain.Get, head, int32(ctx.Int(intervalFlag.Name)))
		if err != nil {
			return err
		}
		out := os.Stdout
		if path := ctx.String(outFlag.Name); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return checkpoint.Write(out, records)
	})
}

func loadCheckpoints(ctx *cli.Context) (*checkpoint.Manager, error) {
	if ctx.NArg() != 1 {
		return nil, fmt.Errorf("expected one checkpoint file")
	}
	return readCheckpoints(ctx.Args().First())
}

func readCheckpoints(path string) (*checkpoint.Manager, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := checkpoint.Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func inspectCheckpoints(ctx *cli.Context) error {
	m, err := loadCheckpoints(ctx)
	if err != nil {
		return err
	}
	records := m.Records()
	fmt.Printf("%d checkpoints, data hash %s\n", len(records), m.DataHash())
	for _, rec := range records {
		fmt.Printf("%8d %s %s\n", rec.Height, rec.Hash(), rec.Header.Timestamp.UTC().Format(time.RFC3339))
	}
	return nil
}

func importCheckpoints(ctx *cli.Context) error {
	m, err := loadCheckpoints(ctx)
	if err != nil {
		return err
	}
	return withNode(ctx, func(n *node) error {
		rec := m.Before(time.Now())
		if err := n.chain.InitFromCheckpoint(rec); err != nil {
			return err
		}
		fmt.Printf("chain starts at height %d, block %s\n", rec.Height, rec.Hash())
		return nil
	})
}
