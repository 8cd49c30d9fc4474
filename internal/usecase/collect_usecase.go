package usecase

import (
	"context"
	stderrors "errors"
	"math/big"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"eth_stats_api/internal/domain"
	apierr "eth_stats_api/internal/errors"
	"eth_stats_api/internal/port"
	"eth_stats_api/pkg/metrics"
)

type CollectOptions struct {
	// ValidatorIDs are indices or pubkeys accepted by the beacon validators endpoint.
	ValidatorIDs    []string
	LookbackEpochs  uint64
	MaxWindowEpochs uint64
}

const EpochsPerSyncCommitteePeriod = 256

// CollectUseCase is not safe for concurrent use.
type CollectUseCase struct {
	beacon    port.BeaconClient
	execution port.ExecutionRewardClient
	store     port.SnapshotStore
	opts      CollectOptions
	now       func() time.Time

	genesis time.Time
	// sync committee of the most recently queried period
	syncPeriod    uint64
	syncCommittee []uint64
	syncLoaded    bool
}

func NewCollectUseCase(
	beacon port.BeaconClient,
	execution port.ExecutionRewardClient,
	store port.SnapshotStore,
	opts CollectOptions,
) *CollectUseCase {
	if opts.LookbackEpochs == 0 {
		opts.LookbackEpochs = 1
	}
	if opts.MaxWindowEpochs == 0 {
		opts.MaxWindowEpochs = opts.LookbackEpochs
	}
	return &CollectUseCase{
		beacon:    beacon,
		execution: execution,
		store:     store,
		opts:      opts,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock used to stamp snapshots.
func (uc *CollectUseCase) WithClock(now func() time.Time) *CollectUseCase {
	uc.now = now
	return uc
}

// Execute collects the next window of finalized epochs and persists it.
func (uc *CollectUseCase) Execute(ctx context.Context) (domain.Snapshot, error) {
	finalized, err := uc.beacon.FinalizedEpoch(ctx)
	if err != nil {
		return domain.Snapshot{}, errors.Wrap(err, "fetch finalized epoch")
	}

	last, found, err := uc.store.Latest()
	if err != nil {
		return domain.Snapshot{}, errors.Wrap(err, "load latest snapshot")
	}

	var from uint64
	if found {
		from = last.ToEpoch + 1
	} else if finalized+1 > uc.opts.LookbackEpochs {
		from = finalized + 1 - uc.opts.LookbackEpochs
	}
	if from > finalized {
		return domain.Snapshot{}, apierr.ErrNothingToCollect
	}
	to := finalized
	if to-from+1 > uc.opts.MaxWindowEpochs {
		to = from + uc.opts.MaxWindowEpochs - 1
	}

	genesis, err := uc.genesisTime(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap := domain.Snapshot{
		FromEpoch:    from,
		ToEpoch:      to,
		EpochEndTime: genesis.Add(time.Duration(to+1) * SlotsPerEpoch * SecondsPerSlot * time.Second),
	}

	endSlot := (to+1)*SlotsPerEpoch - 1
	states, err := uc.beacon.Validators(ctx, endSlot, uc.opts.ValidatorIDs)
	if err != nil {
		return domain.Snapshot{}, errors.Wrapf(err, "fetch validators at slot %d", endSlot)
	}

	tracked := make(map[uint64]struct{}, len(states))
	indices := make([]uint64, 0, len(states))
	for _, v := range states {
		snap.StakedGwei += v.BalanceGwei
		snap.Validators++
		if v.IsActive() {
			snap.ActiveValidators++
		}
		tracked[v.Index] = struct{}{}
		indices = append(indices, v.Index)
	}

	executionWei := new(big.Int)
	for epoch := from; epoch <= to && len(indices) > 0; epoch++ {
		rewards, err := uc.beacon.AttestationRewards(ctx, epoch, indices)
		if err != nil {
			return domain.Snapshot{}, errors.Wrapf(err, "fetch attestation rewards for epoch %d", epoch)
		}
		snap.ConsensusRewardsGwei += rewards.RewardsGwei

		syncRewards, err := uc.syncCommitteeRewards(ctx, epoch, tracked)
		if err != nil {
			return domain.Snapshot{}, err
		}
		snap.ConsensusRewardsGwei += syncRewards

		duties, err := uc.beacon.ProposerDuties(ctx, epoch)
		if err != nil {
			return domain.Snapshot{}, errors.Wrapf(err, "fetch proposer duties for epoch %d", epoch)
		}
		for _, duty := range duties {
			if _, ok := tracked[duty.ValidatorIndex]; !ok {
				continue
			}
			if err := uc.collectProposal(ctx, duty, &snap, executionWei); err != nil {
				return domain.Snapshot{}, err
			}
		}
	}

	snap.ExecutionRewardsWei = executionWei.String()
	snap.CollectedAt = uc.now().UTC()

	if err := uc.store.Put(snap); err != nil {
		return domain.Snapshot{}, err
	}
	metrics.LastCollectedEpoch.Set(float64(snap.ToEpoch))

	zap.L().Info("collected staking window",
		zap.Uint64("from_epoch", snap.FromEpoch),
		zap.Uint64("to_epoch", snap.ToEpoch),
		zap.Int64("validators", snap.Validators),
		zap.Int64("produced_blocks", snap.ProducedBlocks),
		zap.Int64("missed_blocks", snap.MissedBlocks),
	)
	return snap, nil
}

func (uc *CollectUseCase) genesisTime(ctx context.Context) (time.Time, error) {
	if !uc.genesis.IsZero() {
		return uc.genesis, nil
	}
	genesis, err := uc.beacon.GenesisTime(ctx)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "fetch genesis time")
	}
	uc.genesis = genesis.UTC()
	return uc.genesis, nil
}

// syncCommitteeRewards sums the sync committee rewards of the tracked members
// over every slot of epoch.
func (uc *CollectUseCase) syncCommitteeRewards(ctx context.Context, epoch uint64, tracked map[uint64]struct{}) (int64, error) {
	period := epoch / EpochsPerSyncCommitteePeriod
	if !uc.syncLoaded || uc.syncPeriod != period {
		committee, err := uc.beacon.SyncCommittee(ctx, epoch)
		if err != nil {
			return 0, errors.Wrapf(err, "fetch sync committee for epoch %d", epoch)
		}
		uc.syncPeriod, uc.syncCommittee, uc.syncLoaded = period, committee, true
	}

	// the committee can list a validator more than once; request each index once
	var members []uint64
	seen := make(map[uint64]struct{})
	for _, idx := range uc.syncCommittee {
		if _, ok := tracked[idx]; !ok {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		members = append(members, idx)
	}
	if len(members) == 0 {
		return 0, nil
	}

	var total int64
	first := epoch * SlotsPerEpoch
	for slot := first; slot < first+SlotsPerEpoch; slot++ {
		reward, err := uc.beacon.SyncCommitteeRewardsGwei(ctx, slot, members)
		if err != nil {
			return 0, errors.Wrapf(err, "fetch sync committee rewards at slot %d", slot)
		}
		total += reward
	}
	return total, nil
}

func (uc *CollectUseCase) collectProposal(ctx context.Context, duty domain.ProposerDuty, snap *domain.Snapshot, executionWei *big.Int) error {
	block, produced, err := uc.beacon.ProducedBlock(ctx, duty.Slot)
	if err != nil {
		return errors.Wrapf(err, "fetch block at slot %d", duty.Slot)
	}
	if !produced {
		snap.MissedBlocks++
		zap.L().Debug("missed proposal", zap.Uint64("slot", duty.Slot), zap.Uint64("validator", duty.ValidatorIndex))
		return nil
	}
	snap.ProducedBlocks++

	reward, err := uc.beacon.BlockRewardGwei(ctx, duty.Slot)
	if err != nil {
		return errors.Wrapf(err, "fetch block reward at slot %d", duty.Slot)
	}
	snap.ConsensusRewardsGwei += reward

	if block.BlockNumber == 0 {
		return nil
	}
	execReward, err := uc.execution.GetExecutionReward(ctx, block.BlockNumber, block.FeeRecipient)
	if err != nil {
		return errors.Wrapf(err, "fetch execution reward of block %d", block.BlockNumber)
	}
	executionWei.Add(executionWei, execReward)
	return nil
}

// Run collects on every tick until ctx is cancelled. Failures are logged and
// retried on the next tick.
func (uc *CollectUseCase) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		uc.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (uc *CollectUseCase) runOnce(ctx context.Context) {
	start := time.Now()
	_, err := uc.Execute(ctx)
	metrics.CollectionDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.Collections.WithLabelValues("ok").Inc()
	case stderrors.Is(err, apierr.ErrNothingToCollect):
		metrics.Collections.WithLabelValues("empty").Inc()
		zap.L().Debug("no new finalized epochs")
	case ctx.Err() != nil:
	default:
		metrics.Collections.WithLabelValues("error").Inc()
		zap.L().Error("collection failed", zap.Error(err))
	}
}
