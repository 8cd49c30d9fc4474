package main

import (
	stderrors "errors"

	cli "github.com/urfave/cli/v2"
	"go.uber.org/zap"

	apierr "eth_stats_api/internal/errors"
)

var CollectCommand = &cli.Command{
	Name:   "collect",
	Usage:  "collect the next window of finalized epochs once and exit",
	Action: collectOnce,
}

func collectOnce(c *cli.Context) error {
	a, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer a.close()

	snap, err := a.collect.Execute(c.Context)
	if stderrors.Is(err, apierr.ErrNothingToCollect) {
		zap.L().Info("nothing to collect")
		return nil
	}
	if err != nil {
		return err
	}

	record, err := a.stats.Execute(c.Context)
	if err != nil {
		return err
	}
	zap.L().Info("ethereum stats",
		zap.Uint64("to_epoch", snap.ToEpoch),
		zap.String("staked", record.Staked),
		zap.String("apr", record.APR),
		zap.String("apr_30days", record.APR30Days),
		zap.String("apr_365days", record.APR365Days),
	)
	return nil
}
