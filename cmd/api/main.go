package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v2"
)

const cliName = "eth_stats_api"

func main() {
	app := &cli.App{
		Name:      cliName,
		Usage:     "collects and serves staking statistics for a set of Ethereum validators",
		UsageText: "eth_stats_api [global options] command [command options]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the JSON config file; environment variables override it",
				Value:   "config.json",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Commands: []*cli.Command{
			ServeCommand,
			CollectCommand,
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
