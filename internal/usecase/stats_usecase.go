package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"eth_stats_api/internal/domain"
	apierr "eth_stats_api/internal/errors"
	"eth_stats_api/internal/port"
)

type StatsUseCase struct {
	name  string
	store port.SnapshotStore
	cache port.StatsCache
	now   func() time.Time
}

func NewStatsUseCase(
	name string,
	store port.SnapshotStore,
	cache port.StatsCache,
) *StatsUseCase {
	return &StatsUseCase{name: name, store: store, cache: cache, now: time.Now}
}

// WithClock replaces the wall clock used for the trailing APR windows.
func (uc *StatsUseCase) WithClock(now func() time.Time) *StatsUseCase {
	uc.now = now
	return uc
}

// Execute assembles the Ethereum record from the stored snapshots.
func (uc *StatsUseCase) Execute(ctx context.Context) (domain.Ethereum, error) {
	latest, found, err := uc.store.Latest()
	if err != nil {
		return domain.Ethereum{}, err
	}
	if !found {
		return domain.Ethereum{}, apierr.ErrNoData
	}

	if v, ok := uc.cache.Get(latest.ToEpoch); ok {
		return v, nil
	}

	all, err := uc.store.All()
	if err != nil {
		return domain.Ethereum{}, err
	}

	now := uc.now()
	last30, err := uc.store.Since(now.AddDate(0, 0, -30))
	if err != nil {
		return domain.Ethereum{}, err
	}
	last365, err := uc.store.Since(now.AddDate(0, 0, -365))
	if err != nil {
		return domain.Ethereum{}, err
	}

	record := domain.Ethereum{
		Name:             uc.name,
		Staked:           GweiToETH(int64(latest.StakedGwei)),
		ActiveValidators: latest.ActiveValidators,
		Validators:       latest.Validators,
		APR:              APR([]domain.Snapshot{latest}),
		APR30Days:        APR(last30),
		APR365Days:       APR(last365),
	}

	var consensusGwei int64
	executionWei := decimal.Zero
	for _, s := range all {
		record.ProducedBlocks += s.ProducedBlocks
		record.MissedBlocks += s.MissedBlocks
		consensusGwei += s.ConsensusRewardsGwei
		executionWei = executionWei.Add(parseWei(s.ExecutionRewardsWei))
	}
	record.ConsensusRewards = GweiToETH(consensusGwei)
	record.ExecutedRewards = WeiToETH(executionWei.BigInt())

	uc.cache.Add(latest.ToEpoch, record)
	return record, nil
}

// Snapshots returns up to limit stored windows, newest first.
func (uc *StatsUseCase) Snapshots(ctx context.Context, limit int) ([]domain.Snapshot, error) {
	return uc.store.List(limit)
}
