package port

import "eth_stats_api/internal/domain"

type EpochRewardsCache interface {
	Add(epoch uint64, rewards domain.EpochRewards)
	Get(epoch uint64) (domain.EpochRewards, bool)
}

type StatsCache interface {
	Add(toEpoch uint64, record domain.Ethereum)
	Get(toEpoch uint64) (domain.Ethereum, bool)
}
