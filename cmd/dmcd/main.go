// Command dmcd serves DynamicCoin reward and supply data from a local chain
// record store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/dynamiccoin/dmcd/pkg/config"
	"github.com/dynamiccoin/dmcd/pkg/core/blockchain"
	"github.com/dynamiccoin/dmcd/pkg/core/checkpoint"
	"github.com/dynamiccoin/dmcd/pkg/core/reward"
	"github.com/dynamiccoin/dmcd/pkg/oracle"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	networkFlag = &cli.StringFlag{
		Name:  "network",
		Usage: "network to use (mainnet, testnet, unittest)",
	}
	datadirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "data directory for the chain record store",
	}
	dbEngineFlag = &cli.StringFlag{
		Name:  "db.engine",
		Usage: "chain record store engine (badger, bolt)",
	}
	checkpointsFlag = &cli.StringFlag{
		Name:  "checkpoints",
		Usage: "checkpoint file that accepted blocks must agree with",
	}
	oracleURLFlag = &cli.StringFlag{
		Name:  "oracle.url",
		Usage: "JSON-RPC endpoint of the live price feed",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "log level: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 3,
	}
)

func main() {
	app := &cli.App{
		Name:  "dmcd",
		Usage: "DynamicCoin reward and chain accounting node",
		Flags: []cli.Flag{
			configFlag,
			networkFlag,
			datadirFlag,
			dbEngineFlag,
			checkpointsFlag,
			oracleURLFlag,
			verbosityFlag,
		},
		Before: func(ctx *cli.Context) error {
			setupLogging(ctx.Int(verbosityFlag.Name))
			return nil
		},
		Commands: []*cli.Command{
			commandServe,
			commandReward,
			commandCheckpoint,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(verbosity int) {
	usecolor := (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
	output := io.Writer(os.Stderr)
	if usecolor {
		output = colorable.NewColorable(os.Stderr)
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(output, log.FromLegacyLevel(verbosity), usecolor)))
}

// loadConfig reads the config file, if any, and applies command line overrides.
func loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg := config.DefaultConfig()
	if path := ctx.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if ctx.IsSet(networkFlag.Name) {
		cfg.Network = ctx.String(networkFlag.Name)
	}
	if ctx.IsSet(datadirFlag.Name) {
		cfg.DataDir = ctx.String(datadirFlag.Name)
	}
	if ctx.IsSet(dbEngineFlag.Name) {
		cfg.Store.Engine = ctx.String(dbEngineFlag.Name)
	}
	if ctx.IsSet(checkpointsFlag.Name) {
		cfg.Checkpoints = ctx.String(checkpointsFlag.Name)
	}
	if ctx.IsSet(oracleURLFlag.Name) {
		cfg.Oracle.URL = ctx.String(oracleURLFlag.Name)
	}
	return cfg, cfg.Validate()
}

// node bundles the components every command works on.
type node struct {
	cfg    config.Config
	params *config.NetworkParams
	store  blockchain.ChainStore
	feed   *oracle.RPCFeed
	engine *reward.Engine
	chain  *blockchain.Chain
}

func openNode(ctx context.Context, cfg config.Config) (*node, error) {
	params, err := config.ParamsForNetwork(cfg.Network)
	if err != nil {
		return nil, err
	}
	store, err := blockchain.OpenStore(cfg.Store.Engine, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Engine, err)
	}
	feed, err := oracle.DialFeed(ctx, cfg.Oracle.URL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("price feed: %w", err)
	}
	engine := reward.New(params, store, oracle.New(params, feed, cfg.Oracle))
	chain, err := blockchain.NewChain(params, store, engine)
	if err == nil && cfg.Checkpoints != "" {
		var cp *checkpoint.Manager
		if cp, err = readCheckpoints(cfg.Checkpoints); err == nil {
			chain.SetCheckpoints(cp)
			log.Info("Loaded checkpoints", "file", cfg.Checkpoints, "count", len(cp.Records()), "hash", cp.DataHash())
		}
	}
	if err != nil {
		feed.Close()
		store.Close()
		return nil, err
	}
	log.Info("Opened chain", "network", params.Name, "datadir", cfg.DataDir, "engine", cfg.Store.Engine)
	return &node{cfg: cfg, params: params, store: store, feed: feed, engine: engine, chain: chain}, nil
}

func (n *node) Close() {
	n.feed.Close()
	if err := n.store.Close(); err != nil {
		log.Error("Failed to close store", "err", err)
	}
}

func withNode(ctx *cli.Context, fn func(n *node) error) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	n, err := openNode(ctx.Context, cfg)
	if err != nil {
		return err
	}
	defer n.Close()
	return fn(n)
}
