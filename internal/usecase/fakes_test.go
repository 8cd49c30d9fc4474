package usecase_test

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"eth_stats_api/internal/domain"
	"eth_stats_api/internal/usecase"
)

type memStore struct {
	mu    sync.Mutex
	snaps map[uint64]domain.Snapshot
	err   error
}

func newMemStore(snaps ...domain.Snapshot) *memStore {
	s := &memStore{snaps: make(map[uint64]domain.Snapshot)}
	for _, snap := range snaps {
		s.snaps[snap.ToEpoch] = snap
	}
	return s
}

func (s *memStore) Put(snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.snaps[snap.ToEpoch] = snap
	return nil
}

func (s *memStore) All() ([]domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Snapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToEpoch < out[j].ToEpoch })
	return out, nil
}

func (s *memStore) Latest() (domain.Snapshot, bool, error) {
	all, err := s.All()
	if err != nil || len(all) == 0 {
		return domain.Snapshot{}, false, err
	}
	return all[len(all)-1], true, nil
}

func (s *memStore) List(limit int) ([]domain.Snapshot, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	out := []domain.Snapshot{}
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (s *memStore) Since(t time.Time) ([]domain.Snapshot, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	out := []domain.Snapshot{}
	for _, snap := range all {
		if !snap.EpochEndTime.Before(t) {
			out = append(out, snap)
		}
	}
	return out, nil
}

type dummyStatsCache struct {
	store map[uint64]domain.Ethereum
}

func newDummyStatsCache() *dummyStatsCache {
	return &dummyStatsCache{store: make(map[uint64]domain.Ethereum)}
}

func (c *dummyStatsCache) Get(epoch uint64) (domain.Ethereum, bool) {
	v, ok := c.store[epoch]
	return v, ok
}

func (c *dummyStatsCache) Add(epoch uint64, v domain.Ethereum) { c.store[epoch] = v }

type fakeBeacon struct {
	genesis        time.Time
	genesisCalls   int
	finalized      uint64
	finalizedErr   error
	validators     []domain.ValidatorState
	validatorSlots []uint64
	duties         map[uint64][]domain.ProposerDuty
	blocks         map[uint64]domain.ProducedBlock
	blockReward    int64
	epochReward    int64
	rewardEpochs   []uint64

	// sync committee keyed by period
	syncCommittees map[uint64][]uint64
	syncEpochs     []uint64
	syncReward     int64
	syncSlots      []uint64
	syncMembers    [][]uint64
}

func (f *fakeBeacon) GenesisTime(ctx context.Context) (time.Time, error) {
	f.genesisCalls++
	return f.genesis, nil
}

func (f *fakeBeacon) SyncCommittee(ctx context.Context, epoch uint64) ([]uint64, error) {
	f.syncEpochs = append(f.syncEpochs, epoch)
	return f.syncCommittees[epoch/usecase.EpochsPerSyncCommitteePeriod], nil
}

func (f *fakeBeacon) SyncCommitteeRewardsGwei(ctx context.Context, slot uint64, indices []uint64) (int64, error) {
	f.syncSlots = append(f.syncSlots, slot)
	f.syncMembers = append(f.syncMembers, indices)
	return f.syncReward, nil
}

func (f *fakeBeacon) FinalizedEpoch(ctx context.Context) (uint64, error) {
	return f.finalized, f.finalizedErr
}

func (f *fakeBeacon) Validators(ctx context.Context, slot uint64, ids []string) ([]domain.ValidatorState, error) {
	f.validatorSlots = append(f.validatorSlots, slot)
	return f.validators, nil
}

func (f *fakeBeacon) ProposerDuties(ctx context.Context, epoch uint64) ([]domain.ProposerDuty, error) {
	return f.duties[epoch], nil
}

func (f *fakeBeacon) ProducedBlock(ctx context.Context, slot uint64) (domain.ProducedBlock, bool, error) {
	b, ok := f.blocks[slot]
	return b, ok, nil
}

func (f *fakeBeacon) BlockRewardGwei(ctx context.Context, slot uint64) (int64, error) {
	return f.blockReward, nil
}

func (f *fakeBeacon) AttestationRewards(ctx context.Context, epoch uint64, indices []uint64) (domain.EpochRewards, error) {
	f.rewardEpochs = append(f.rewardEpochs, epoch)
	return domain.EpochRewards{Epoch: epoch, RewardsGwei: f.epochReward}, nil
}

type fakeExecution struct {
	reward *big.Int
	blocks []uint64
}

func (f *fakeExecution) GetExecutionReward(ctx context.Context, blockNumber uint64, feeRecipient string) (*big.Int, error) {
	f.blocks = append(f.blocks, blockNumber)
	return new(big.Int).Set(f.reward), nil
}
