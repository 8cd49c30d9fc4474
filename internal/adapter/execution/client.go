package execution

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"eth_stats_api/internal/errors"
	"eth_stats_api/internal/port"
	"eth_stats_api/internal/retry"
)

type ExecutionClient struct {
	ethClient  *ethclient.Client
	maxRetries int
	backoff    time.Duration
}

func NewExecutionClient(
	ethHTTP *ethclient.Client,
	retryMaxRetries int,
	retryBackoff time.Duration,
) *ExecutionClient {
	return &ExecutionClient{
		ethClient:  ethHTTP,
		maxRetries: retryMaxRetries,
		backoff:    retryBackoff,
	}
}

var _ port.ExecutionRewardClient = (*ExecutionClient)(nil)

// GetExecutionReward returns the wei credited to the fee recipient by the
// given block. An empty feeRecipient falls back to the header coinbase.
// Negative deltas (the recipient spent funds in the same block) count as zero.
func (ec *ExecutionClient) GetExecutionReward(ctx context.Context, blockNumber uint64, feeRecipient string) (*big.Int, error) {
	if blockNumber == 0 {
		return new(big.Int), nil
	}

	var head uint64
	if err := retry.Do(ctx, ec.maxRetries, ec.backoff, func() error {
		var err error
		head, err = ec.ethClient.BlockNumber(ctx)
		return err
	}); err != nil {
		zap.L().Error("failed to fetch execution head", zap.Error(err))
		return nil, err
	}
	if blockNumber > head {
		return nil, errors.ErrSlotInFuture
	}

	var header *types.Header
	if err := retry.Do(ctx, ec.maxRetries, ec.backoff, func() error {
		var err error
		header, err = ec.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
		return err
	}); err != nil {
		zap.L().Error("header not found", zap.Uint64("block", blockNumber), zap.Error(err))
		return nil, errors.ErrSlotNotFound
	}

	addr := header.Coinbase
	if feeRecipient != "" {
		addr = common.HexToAddress(feeRecipient)
	}

	var before *big.Int
	if err := retry.Do(ctx, ec.maxRetries, ec.backoff, func() error {
		var err error
		before, err = ec.ethClient.BalanceAt(ctx, addr, new(big.Int).SetUint64(blockNumber-1))
		return err
	}); err != nil {
		zap.L().Error("failed to get balance before block", zap.Uint64("block", blockNumber), zap.Error(err))
		return nil, err
	}

	var after *big.Int
	if err := retry.Do(ctx, ec.maxRetries, ec.backoff, func() error {
		var err error
		after, err = ec.ethClient.BalanceAt(ctx, addr, new(big.Int).SetUint64(blockNumber))
		return err
	}); err != nil {
		zap.L().Error("failed to get balance after block", zap.Uint64("block", blockNumber), zap.Error(err))
		return nil, err
	}

	reward := new(big.Int).Sub(after, before)
	if reward.Sign() < 0 {
		return new(big.Int), nil
	}
	return reward, nil
}
