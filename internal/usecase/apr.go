package usecase

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"eth_stats_api/internal/domain"
)

const (
	SecondsPerSlot = 12
	SlotsPerEpoch  = 32

	aprPlaces = 2
)

var (
	year    = decimal.NewFromInt(int64(365 * 24 * time.Hour / time.Second))
	hundred = decimal.NewFromInt(100)
)

func epochDuration() decimal.Decimal {
	return decimal.NewFromInt(SlotsPerEpoch * SecondsPerSlot)
}

// GweiToETH renders a gwei amount as an exact ETH decimal string.
func GweiToETH(gwei int64) string {
	return decimal.New(gwei, -9).String()
}

// WeiToETH renders a wei amount as an exact ETH decimal string.
func WeiToETH(wei *big.Int) string {
	return decimal.NewFromBigInt(wei, -18).String()
}

// parseWei reads a stored wei amount, treating malformed values as zero.
func parseWei(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// snapshotRewardsGwei is the combined consensus and execution reward of a window.
func snapshotRewardsGwei(s domain.Snapshot) decimal.Decimal {
	exec := parseWei(s.ExecutionRewardsWei).Shift(-9)
	return decimal.NewFromInt(s.ConsensusRewardsGwei).Add(exec)
}

// APR annualizes the rewards of the given windows against their
// epoch-weighted stake and returns a percentage with two decimals.
func APR(snapshots []domain.Snapshot) string {
	var (
		rewards     = decimal.Zero
		stakeEpochs = decimal.Zero
	)
	for _, s := range snapshots {
		epochs := s.Epochs()
		if epochs == 0 {
			continue
		}
		rewards = rewards.Add(snapshotRewardsGwei(s))
		stakeEpochs = stakeEpochs.Add(
			decimal.NewFromInt(int64(s.StakedGwei)).Mul(decimal.NewFromInt(int64(epochs))),
		)
	}
	if stakeEpochs.IsZero() {
		return decimal.Zero.StringFixed(aprPlaces)
	}

	// rewards / (stakeEpochs / epochs) * year / (epochs * epochDuration)
	return rewards.
		Mul(year).
		Mul(hundred).
		Div(stakeEpochs.Mul(epochDuration())).
		StringFixed(aprPlaces)
}
