package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	cli "github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"eth_stats_api/internal/adapter/consensus"
	"eth_stats_api/internal/adapter/execution"
	"eth_stats_api/internal/adapter/store"
	"eth_stats_api/internal/usecase"
	"eth_stats_api/pkg/config"
	"eth_stats_api/pkg/logger"
	"eth_stats_api/pkg/metrics"
)

type app struct {
	cfg      *config.Config
	collect  *usecase.CollectUseCase
	stats    *usecase.StatsUseCase
	closeFns []func()
}

// bootstrap loads config, installs the global logger and wires every component.
func bootstrap(c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	log, err := logger.Init(cfg.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, "init logger")
	}
	zap.ReplaceGlobals(log)
	metrics.Register()

	a := &app{cfg: cfg}
	a.closeFns = append(a.closeFns, func() {
		if err := log.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "error syncing logger: %v\n", err)
		}
	})

	if len(cfg.Stats.ValidatorIDs) == 0 {
		zap.L().Warn("no validators configured, snapshots will be empty")
	}

	epochCache, err := consensus.NewEpochRewardsCache(
		cfg.Cache.EpochRewards.MaxEntries,
		cfg.Cache.EpochRewards.TTL,
	)
	if err != nil {
		a.close()
		return nil, errors.Wrap(err, "init epoch rewards cache")
	}
	consClient, err := consensus.NewConsensusClient(
		cfg.Ethereum.BeaconHTTP,
		cfg.Retry.Beacon.MaxRetries,
		cfg.Retry.Beacon.Backoff,
		cfg.Retry.Beacon.Timeout,
		epochCache,
	)
	if err != nil {
		a.close()
		return nil, errors.Wrap(err, "init consensus client")
	}

	ethHTTP, err := ethclient.Dial(cfg.Ethereum.RPCHTTP)
	if err != nil {
		a.close()
		return nil, errors.Wrap(err, "dial ethclient")
	}
	a.closeFns = append(a.closeFns, ethHTTP.Close)
	execClient := execution.NewExecutionClient(
		ethHTTP,
		cfg.Retry.Execution.MaxRetries,
		cfg.Retry.Execution.Backoff,
	)

	snapshots, err := store.OpenSnapshotStore(cfg.Stats.DBPath)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closeFns = append(a.closeFns, func() {
		if err := snapshots.Close(); err != nil {
			zap.L().Error("close snapshot store", zap.Error(err))
		}
	})

	recordCache, err := store.NewRecordCache(cfg.Cache.Stats.MaxEntries, cfg.Cache.Stats.TTL)
	if err != nil {
		a.close()
		return nil, errors.Wrap(err, "init stats cache")
	}

	a.collect = usecase.NewCollectUseCase(consClient, execClient, snapshots, usecase.CollectOptions{
		ValidatorIDs:    cfg.Stats.ValidatorIDs,
		LookbackEpochs:  cfg.Stats.LookbackEpochs,
		MaxWindowEpochs: cfg.Stats.MaxWindowEpochs,
	})
	a.stats = usecase.NewStatsUseCase(cfg.Stats.Name, snapshots, recordCache)
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
}
