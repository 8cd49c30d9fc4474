package main

import (
	"context"
	stdhttp "net/http"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v2"
	"go.uber.org/zap"

	httpPkg "eth_stats_api/pkg/http"
)

var ServeCommand = &cli.Command{
	Name:   "serve",
	Usage:  "run the collector loop and the stats HTTP API",
	Action: serve,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "no-collect",
			Usage: "serve stored snapshots without collecting new ones",
		},
	},
}

func serve(c *cli.Context) error {
	a, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collectorDone := make(chan struct{})
	if c.Bool("no-collect") {
		close(collectorDone)
	} else {
		go func() {
			defer close(collectorDone)
			a.collect.Run(ctx, a.cfg.Stats.CollectInterval)
		}()
	}

	srv := &stdhttp.Server{
		Addr:    a.cfg.Server.Address,
		Handler: httpPkg.NewRouter(a.stats),
	}
	serverErr := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("address", a.cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		zap.L().Error("listen error", zap.Error(err))
		stop()
	}

	zap.L().Info("shutting down…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("shutdown error", zap.Error(err))
	}
	<-collectorDone
	zap.L().Info("server stopped")
	return nil
}
