package port

import (
	"context"
	"math/big"
	"time"

	"eth_stats_api/internal/domain"
)

type BeaconClient interface {
	GenesisTime(ctx context.Context) (time.Time, error)
	FinalizedEpoch(ctx context.Context) (uint64, error)
	Validators(ctx context.Context, slot uint64, ids []string) ([]domain.ValidatorState, error)
	ProposerDuties(ctx context.Context, epoch uint64) ([]domain.ProposerDuty, error)
	// ProducedBlock returns false when the slot has no canonical block.
	ProducedBlock(ctx context.Context, slot uint64) (domain.ProducedBlock, bool, error)
	BlockRewardGwei(ctx context.Context, slot uint64) (int64, error)
	AttestationRewards(ctx context.Context, epoch uint64, indices []uint64) (domain.EpochRewards, error)
	// SyncCommittee returns the committee members for the period containing epoch.
	SyncCommittee(ctx context.Context, epoch uint64) ([]uint64, error)
	// SyncCommitteeRewardsGwei returns zero for slots without a block.
	SyncCommitteeRewardsGwei(ctx context.Context, slot uint64, indices []uint64) (int64, error)
}

type ExecutionRewardClient interface {
	GetExecutionReward(ctx context.Context, blockNumber uint64, feeRecipient string) (*big.Int, error)
}
