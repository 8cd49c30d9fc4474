package domain

import "time"

// ValidatorState is the beacon view of one tracked validator.
type ValidatorState struct {
	Index            uint64 `json:"index"`
	Pubkey           string `json:"pubkey"`
	Status           string `json:"status"`
	BalanceGwei      uint64 `json:"balance_gwei"`
	EffectiveBalance uint64 `json:"effective_balance_gwei"`
}

// IsActive reports whether the validator is currently attesting.
func (v ValidatorState) IsActive() bool {
	switch v.Status {
	case "active_ongoing", "active_exiting", "active_slashed":
		return true
	}
	return false
}

type ProposerDuty struct {
	Slot           uint64 `json:"slot"`
	ValidatorIndex uint64 `json:"validator_index"`
}

// ProducedBlock links a proposed beacon block to its execution payload.
type ProducedBlock struct {
	Slot         uint64 `json:"slot"`
	BlockNumber  uint64 `json:"block_number"`
	FeeRecipient string `json:"fee_recipient"`
}

type EpochRewards struct {
	Epoch       uint64 `json:"epoch"`
	RewardsGwei int64  `json:"rewards_gwei"`
}

// Snapshot aggregates one collection window over [FromEpoch, ToEpoch].
// EpochEndTime is the chain time at which ToEpoch ended; CollectedAt is only
// when the collector ran and can lag far behind during a backfill.
type Snapshot struct {
	FromEpoch            uint64    `json:"from_epoch"`
	ToEpoch              uint64    `json:"to_epoch"`
	EpochEndTime         time.Time `json:"epoch_end_time"`
	CollectedAt          time.Time `json:"collected_at"`
	StakedGwei           uint64    `json:"staked_gwei"`
	ActiveValidators     int64     `json:"active_validators"`
	Validators           int64     `json:"validators"`
	ProducedBlocks       int64     `json:"produced_blocks"`
	MissedBlocks         int64     `json:"missed_blocks"`
	ConsensusRewardsGwei int64     `json:"consensus_rewards_gwei"`
	ExecutionRewardsWei  string    `json:"execution_rewards_wei"`
}

func (s Snapshot) Epochs() uint64 {
	if s.ToEpoch < s.FromEpoch {
		return 0
	}
	return s.ToEpoch - s.FromEpoch + 1
}
