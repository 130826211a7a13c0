package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"bmnode/internal/bootstrap"
	"bmnode/internal/config"
	"bmnode/internal/console"
	"bmnode/internal/crypto/ecies"
	"bmnode/internal/discovery"
	"bmnode/internal/logging"
	"bmnode/internal/metrics"
	"bmnode/internal/netx"
	"bmnode/internal/p2p"
	"bmnode/internal/paths"
	"bmnode/internal/storage"
	"bmnode/internal/storage/boltstore"
	"bmnode/internal/storage/memstore"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "TOML configuration file",
	}
	nameFlag = &cli.StringFlag{
		Name:  "name",
		Usage: "node name used in logs",
		Value: "bm-node",
	}
	dataDirFlag = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "directory for the object store",
		EnvVars: []string{paths.EnvDataDir},
	}
	listenFlag = &cli.StringFlag{
		Name:  "listen",
		Usage: "listen address (host:port)",
	}
	modeFlag = &cli.StringFlag{
		Name:  "mode",
		Usage: "admission mode: passive or active",
	}
	bootstrapFlag = &cli.StringSliceFlag{
		Name:  "bootstrap",
		Usage: "node to dial in active mode (host:port, repeatable)",
	}
	memoryFlag = &cli.BoolFlag{
		Name:  "memory",
		Usage: "keep objects in memory instead of the data directory",
	}
	keyFlag = &cli.StringSliceFlag{
		Name:  "key",
		Usage: "hex private key to receive messages for (repeatable)",
	}
	lanFlag = &cli.BoolFlag{
		Name:  "lan",
		Usage: "answer and use LAN discovery",
	}
	metricsFlag = &cli.StringFlag{
		Name:  "metrics",
		Usage: "serve Prometheus metrics on this address",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "log per-connection detail",
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "trace, debug, info, warn or error",
		EnvVars: []string{logging.EnvLogLevel},
	}
	consoleFlag = &cli.BoolFlag{
		Name:  "console",
		Usage: "read commands from stdin",
		Value: true,
	}

	nodeFlags = []cli.Flag{
		configFlag, nameFlag, dataDirFlag, listenFlag, modeFlag, bootstrapFlag, memoryFlag,
		keyFlag, lanFlag, metricsFlag, debugFlag, logLevelFlag, consoleFlag,
	}

	runCommand = &cli.Command{
		Name:   "run",
		Usage:  "Run the node (default)",
		Flags:  nodeFlags,
		Action: runNode,
	}
)

// loadConfig reads the config file if one is given and applies flags
// on top of it.
func loadConfig(ctx *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := ctx.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if ctx.IsSet(dataDirFlag.Name) {
		cfg.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(listenFlag.Name) {
		cfg.Listen = ctx.String(listenFlag.Name)
	}
	if ctx.IsSet(modeFlag.Name) {
		cfg.Mode = config.Mode(ctx.String(modeFlag.Name))
	}
	if ctx.IsSet(bootstrapFlag.Name) {
		cfg.Bootstrap = ctx.StringSlice(bootstrapFlag.Name)
	}
	if ctx.Bool(memoryFlag.Name) {
		cfg.Storage = config.StorageMemory
	}
	cfg.Keys = append(cfg.Keys, ctx.StringSlice(keyFlag.Name)...)
	if ctx.IsSet(metricsFlag.Name) {
		cfg.MetricsAddr = ctx.String(metricsFlag.Name)
	}
	if ctx.IsSet(debugFlag.Name) {
		cfg.Debug = ctx.Bool(debugFlag.Name)
	}
	if ctx.IsSet(logLevelFlag.Name) {
		cfg.LogLevel = ctx.String(logLevelFlag.Name)
	}
	if cfg.Debug && !ctx.IsSet(logLevelFlag.Name) {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}

func openStore(cfg config.Config) (storage.Store, error) {
	if cfg.Storage == config.StorageMemory {
		return memstore.New(cfg.StorageOptions())
	}
	if _, err := paths.EnsureDir(cfg.DataDir); err != nil {
		return nil, err
	}
	return boltstore.Open(cfg.DBPath(), cfg.StorageOptions())
}

func parseKeys(hexKeys []string) ([]*btcec.PrivateKey, error) {
	keys := make([]*btcec.PrivateKey, 0, len(hexKeys))
	for i, s := range hexKeys {
		k, err := ecies.ParsePrivateKeyHex(s)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func runNode(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	logger := logging.New("bm-node", logging.Options{Level: cfg.LogLevel})

	keys, err := parseKeys(cfg.Keys)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var lan *discovery.LANConfig
	var sources []bootstrap.PeerSource
	if ctx.Bool(lanFlag.Name) {
		lc := discovery.DefaultLANConfig()
		if lc.Magic, err = cfg.MagicBytes(); err != nil {
			return err
		}
		lc.Streams = cfg.StreamSet()
		lan = &lc
		sources = append(sources, bootstrap.LANSource{Cfg: lc})
	}

	n, err := p2p.NewNode(p2p.NodeConfig{
		Name:    ctx.String(nameFlag.Name),
		Config:  cfg,
		Network: netx.NewTCPNetwork(),
		Store:   st,
		Logger:  logger,
		Keys:    keys,
		Sources: sources,
	})
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(sigCtx, cfg.MetricsAddr); err != nil {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	app := console.New(console.Options{
		Node:   n,
		Store:  st,
		Keys:   keys,
		Logger: logger,
		LAN:    lan,
	})
	if err := app.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	defer app.StopAll()

	if ctx.Bool(consoleFlag.Name) {
		return app.Run(sigCtx)
	}
	return headless(sigCtx, n, logger)
}

// headless logs deliveries until the context ends.
func headless(ctx context.Context, n *p2p.Node, logger zerolog.Logger) error {
	logger.Info().Str("addr", string(n.ListenAddr())).Msg("running without console")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-n.Incoming():
			logger.Info().
				Str("command", d.Command).
				Str("vector", d.Vector.String()).
				Int("bytes", len(d.Plaintext)).
				Msg("delivery")
		case <-n.Events():
		}
	}
}
