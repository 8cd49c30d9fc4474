package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Address string
	}
	Log struct {
		Level string
	}
	Stats struct {
		Name            string
		ValidatorIDs    []string      `mapstructure:"VALIDATOR_IDS"`
		DBPath          string        `mapstructure:"DB_PATH"`
		CollectInterval time.Duration `mapstructure:"COLLECT_INTERVAL"`
		LookbackEpochs  uint64        `mapstructure:"LOOKBACK_EPOCHS"`
		MaxWindowEpochs uint64        `mapstructure:"MAX_WINDOW_EPOCHS"`
	}
	Ethereum struct {
		BeaconHTTP string
		RPCHTTP    string
	}
	Cache struct {
		EpochRewards struct {
			MaxEntries int           `mapstructure:"CACHE_EPOCH_REWARDS_MAX_ENTRIES"`
			TTL        time.Duration `mapstructure:"CACHE_EPOCH_REWARDS_TTL"`
		}
		Stats struct {
			MaxEntries int           `mapstructure:"CACHE_STATS_MAX_ENTRIES"`
			TTL        time.Duration `mapstructure:"CACHE_STATS_TTL"`
		}
	}
	Retry struct {
		Beacon struct {
			Timeout    time.Duration `mapstructure:"BEACON_TIMEOUT"`
			MaxRetries int           `mapstructure:"BEACON_MAX_RETRIES"`
			Backoff    time.Duration `mapstructure:"BEACON_BACKOFF"`
		}
		Execution struct {
			MaxRetries int           `mapstructure:"EXEC_MAX_RETRIES"`
			Backoff    time.Duration `mapstructure:"EXEC_BACKOFF"`
		}
	}
}

// Load reads path (missing file is fine) and overlays the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()

	v.SetDefault("SERVER_ADDRESS", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STATS_NAME", "ethereum")
	v.SetDefault("VALIDATOR_IDS", []string{})
	v.SetDefault("DB_PATH", "data/snapshots")
	v.SetDefault("COLLECT_INTERVAL", "6m24s")
	v.SetDefault("LOOKBACK_EPOCHS", 225)
	v.SetDefault("MAX_WINDOW_EPOCHS", 225)
	v.SetDefault("BEACON_RPC_HTTP", "http://localhost:5052")
	v.SetDefault("ETH_RPC_HTTP", "http://localhost:8545")
	v.SetDefault("CACHE_EPOCH_REWARDS_MAX_ENTRIES", 1024)
	v.SetDefault("CACHE_EPOCH_REWARDS_TTL", "60m")
	v.SetDefault("CACHE_STATS_MAX_ENTRIES", 16)
	v.SetDefault("CACHE_STATS_TTL", "1m")
	v.SetDefault("BEACON_TIMEOUT", "10s")
	v.SetDefault("BEACON_MAX_RETRIES", 3)
	v.SetDefault("BEACON_BACKOFF", "100ms")
	v.SetDefault("EXEC_MAX_RETRIES", 3)
	v.SetDefault("EXEC_BACKOFF", "100ms")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	cfg.Server.Address = v.GetString("SERVER_ADDRESS")
	cfg.Log.Level = v.GetString("LOG_LEVEL")

	cfg.Stats.Name = v.GetString("STATS_NAME")
	cfg.Stats.ValidatorIDs = splitIDs(v.GetStringSlice("VALIDATOR_IDS"))
	cfg.Stats.DBPath = v.GetString("DB_PATH")
	cfg.Stats.CollectInterval = v.GetDuration("COLLECT_INTERVAL")
	cfg.Stats.LookbackEpochs = v.GetUint64("LOOKBACK_EPOCHS")
	cfg.Stats.MaxWindowEpochs = v.GetUint64("MAX_WINDOW_EPOCHS")

	cfg.Ethereum.BeaconHTTP = v.GetString("BEACON_RPC_HTTP")
	cfg.Ethereum.RPCHTTP = v.GetString("ETH_RPC_HTTP")

	cfg.Cache.EpochRewards.MaxEntries = v.GetInt("CACHE_EPOCH_REWARDS_MAX_ENTRIES")
	cfg.Cache.EpochRewards.TTL = v.GetDuration("CACHE_EPOCH_REWARDS_TTL")
	cfg.Cache.Stats.MaxEntries = v.GetInt("CACHE_STATS_MAX_ENTRIES")
	cfg.Cache.Stats.TTL = v.GetDuration("CACHE_STATS_TTL")

	cfg.Retry.Beacon.Timeout = v.GetDuration("BEACON_TIMEOUT")
	cfg.Retry.Beacon.MaxRetries = v.GetInt("BEACON_MAX_RETRIES")
	cfg.Retry.Beacon.Backoff = v.GetDuration("BEACON_BACKOFF")
	cfg.Retry.Execution.MaxRetries = v.GetInt("EXEC_MAX_RETRIES")
	cfg.Retry.Execution.Backoff = v.GetDuration("EXEC_BACKOFF")

	if cfg.Server.Address == "" {
		return nil, fmt.Errorf("SERVER_ADDRESS must not be empty")
	}
	if cfg.Stats.Name == "" {
		return nil, fmt.Errorf("STATS_NAME must not be empty")
	}
	if cfg.Stats.DBPath == "" {
		return nil, fmt.Errorf("DB_PATH must not be empty")
	}
	if cfg.Ethereum.BeaconHTTP == "" {
		return nil, fmt.Errorf("BEACON_RPC_HTTP must not be empty")
	}
	if cfg.Ethereum.RPCHTTP == "" {
		return nil, fmt.Errorf("ETH_RPC_HTTP must not be empty")
	}
	if cfg.Stats.CollectInterval <= 0 {
		return nil, fmt.Errorf("COLLECT_INTERVAL must be positive")
	}
	if cfg.Stats.LookbackEpochs < 1 {
		return nil, fmt.Errorf("LOOKBACK_EPOCHS must be ≥ 1")
	}
	if cfg.Stats.MaxWindowEpochs < 1 {
		return nil, fmt.Errorf("MAX_WINDOW_EPOCHS must be ≥ 1")
	}
	if cfg.Retry.Beacon.MaxRetries < 1 {
		return nil, fmt.Errorf("BEACON_MAX_RETRIES must be ≥ 1")
	}
	if cfg.Retry.Execution.MaxRetries < 1 {
		return nil, fmt.Errorf("EXEC_MAX_RETRIES must be ≥ 1")
	}

	return cfg, nil
}

// splitIDs accepts both list values and comma separated env strings.
func splitIDs(raw []string) []string {
	ids := []string{}
	for _, item := range raw {
		for _, id := range strings.Split(item, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
