package consensus

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"eth_stats_api/internal/domain"
	apierr "eth_stats_api/internal/errors"
	"eth_stats_api/internal/port"
	"eth_stats_api/internal/retry"
	"eth_stats_api/pkg/metrics"
)

const (
	SlotsPerEpoch = 32

	// larger validator sets go in a POST body to stay clear of URL length limits
	maxQueryIDs = 64

	genesisPath              = "/eth/v1/beacon/genesis"
	finalizedHeaderPath      = "/eth/v1/beacon/headers/finalized"
	validatorsQueryPath      = "/eth/v1/beacon/states/%d/validators?id=%s"
	validatorsPath           = "/eth/v1/beacon/states/%d/validators"
	proposerDutiesPath       = "/eth/v1/validator/duties/proposer/%d"
	blockPath                = "/eth/v2/beacon/blocks/%d"
	blockRewardsPath         = "/eth/v1/beacon/rewards/blocks/%d"
	attestationRewardsPath   = "/eth/v1/beacon/rewards/attestations/%d"
	syncCommitteesPath       = "/eth/v1/beacon/states/%d/sync_committees?epoch=%d"
	syncCommitteeRewardsPath = "/eth/v1/beacon/rewards/sync_committee/%d"
)

type ConsensusClient struct {
	httpClient *http.Client
	endpoint   string
	maxRetries int
	backoff    time.Duration
	cache      port.EpochRewardsCache
}

func NewConsensusClient(
	httpEndpoint string,
	maxRetries int,
	backoff time.Duration,
	requestTimeout time.Duration,
	cache port.EpochRewardsCache,
) (*ConsensusClient, error) {
	if httpEndpoint == "" {
		return nil, errors.New("beacon endpoint must not be empty")
	}
	return &ConsensusClient{
		httpClient: &http.Client{Timeout: requestTimeout},
		endpoint:   strings.TrimRight(httpEndpoint, "/"),
		maxRetries: maxRetries,
		backoff:    backoff,
		cache:      cache,
	}, nil
}

var _ port.BeaconClient = (*ConsensusClient)(nil)

func (cc *ConsensusClient) GenesisTime(ctx context.Context) (time.Time, error) {
	var out struct {
		Data struct {
			GenesisTime string `json:"genesis_time"`
		} `json:"data"`
	}
	if err := cc.getJSON(ctx, "genesis", cc.endpoint+genesisPath, &out); err != nil {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(out.Data.GenesisTime, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parse genesis time")
	}
	return time.Unix(secs, 0).UTC(), nil
}

func (cc *ConsensusClient) FinalizedEpoch(ctx context.Context) (uint64, error) {
	var out struct {
		Data struct {
			Header struct {
				Message struct {
					Slot string `json:"slot"`
				} `json:"message"`
			} `json:"header"`
		} `json:"data"`
	}
	if err := cc.getJSON(ctx, "finalized_header", cc.endpoint+finalizedHeaderPath, &out); err != nil {
		return 0, err
	}
	slot, err := strconv.ParseUint(out.Data.Header.Message.Slot, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse finalized slot")
	}
	return slot / SlotsPerEpoch, nil
}

func (cc *ConsensusClient) Validators(ctx context.Context, slot uint64, ids []string) ([]domain.ValidatorState, error) {
	if len(ids) == 0 {
		return []domain.ValidatorState{}, nil
	}
	var out struct {
		Data []struct {
			Index     string `json:"index"`
			Balance   string `json:"balance"`
			Status    string `json:"status"`
			Validator struct {
				Pubkey           string `json:"pubkey"`
				EffectiveBalance string `json:"effective_balance"`
			} `json:"validator"`
		} `json:"data"`
	}
	if len(ids) <= maxQueryIDs {
		url := fmt.Sprintf(cc.endpoint+validatorsQueryPath, slot, strings.Join(ids, ","))
		if err := cc.getJSON(ctx, "validators", url, &out); err != nil {
			return nil, err
		}
	} else {
		payload, err := json.Marshal(map[string][]string{"ids": ids})
		if err != nil {
			return nil, err
		}
		if err := cc.postJSON(ctx, "validators", fmt.Sprintf(cc.endpoint+validatorsPath, slot), payload, &out); err != nil {
			return nil, err
		}
	}

	states := make([]domain.ValidatorState, 0, len(out.Data))
	for _, v := range out.Data {
		index, err := strconv.ParseUint(v.Index, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse validator index %q", v.Index)
		}
		balance, err := strconv.ParseUint(v.Balance, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse balance of validator %d", index)
		}
		effective, err := strconv.ParseUint(v.Validator.EffectiveBalance, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse effective balance of validator %d", index)
		}
		states = append(states, domain.ValidatorState{
			Index:            index,
			Pubkey:           v.Validator.Pubkey,
			Status:           v.Status,
			BalanceGwei:      balance,
			EffectiveBalance: effective,
		})
	}
	return states, nil
}

func (cc *ConsensusClient) ProposerDuties(ctx context.Context, epoch uint64) ([]domain.ProposerDuty, error) {
	var out struct {
		Data []struct {
			ValidatorIndex string `json:"validator_index"`
			Slot           string `json:"slot"`
		} `json:"data"`
	}
	if err := cc.getJSON(ctx, "proposer_duties", fmt.Sprintf(cc.endpoint+proposerDutiesPath, epoch), &out); err != nil {
		return nil, err
	}

	duties := make([]domain.ProposerDuty, 0, len(out.Data))
	for _, d := range out.Data {
		slot, err := strconv.ParseUint(d.Slot, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse duty slot %q", d.Slot)
		}
		index, err := strconv.ParseUint(d.ValidatorIndex, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse duty validator index %q", d.ValidatorIndex)
		}
		duties = append(duties, domain.ProposerDuty{Slot: slot, ValidatorIndex: index})
	}
	return duties, nil
}

func (cc *ConsensusClient) ProducedBlock(ctx context.Context, slot uint64) (domain.ProducedBlock, bool, error) {
	body, status, err := cc.do(ctx, "block", http.MethodGet, fmt.Sprintf(cc.endpoint+blockPath, slot), nil)
	if err != nil {
		return domain.ProducedBlock{}, false, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.ProducedBlock{}, false, nil
	default:
		zap.L().Error("unexpected status block", zap.Uint64("slot", slot), zap.Int("code", status))
		return domain.ProducedBlock{}, false, fmt.Errorf("block returned %d", status)
	}

	var out struct {
		Data struct {
			Message struct {
				Body struct {
					ExecutionPayload *struct {
						BlockNumber  string `json:"block_number"`
						FeeRecipient string `json:"fee_recipient"`
					} `json:"execution_payload"`
				} `json:"body"`
			} `json:"message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		zap.L().Error("decoding block failed", zap.Uint64("slot", slot), zap.Error(err))
		return domain.ProducedBlock{}, false, err
	}

	produced := domain.ProducedBlock{Slot: slot}
	// pre-merge blocks carry no execution payload
	if payload := out.Data.Message.Body.ExecutionPayload; payload != nil {
		number, err := strconv.ParseUint(payload.BlockNumber, 10, 64)
		if err != nil {
			return domain.ProducedBlock{}, false, errors.Wrapf(err, "parse block number of slot %d", slot)
		}
		produced.BlockNumber = number
		produced.FeeRecipient = payload.FeeRecipient
	}
	return produced, true, nil
}

func (cc *ConsensusClient) BlockRewardGwei(ctx context.Context, slot uint64) (int64, error) {
	var out struct {
		Data struct {
			Total string `json:"total"`
		} `json:"data"`
	}
	if err := cc.getJSON(ctx, "block_rewards", fmt.Sprintf(cc.endpoint+blockRewardsPath, slot), &out); err != nil {
		return 0, err
	}
	total, err := strconv.ParseInt(out.Data.Total, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse block reward of slot %d", slot)
	}
	return total, nil
}

func (cc *ConsensusClient) AttestationRewards(ctx context.Context, epoch uint64, indices []uint64) (domain.EpochRewards, error) {
	if cc.cache != nil {
		if v, ok := cc.cache.Get(epoch); ok {
			return v, nil
		}
	}

	payload, err := json.Marshal(formatIndices(indices))
	if err != nil {
		return domain.EpochRewards{}, err
	}

	body, status, err := cc.do(ctx, "attestation_rewards", http.MethodPost, fmt.Sprintf(cc.endpoint+attestationRewardsPath, epoch), payload)
	if err != nil {
		return domain.EpochRewards{}, err
	}
	if err := statusError(status); err != nil {
		zap.L().Error("attestation rewards error", zap.Uint64("epoch", epoch), zap.Int("code", status))
		return domain.EpochRewards{}, err
	}

	var out struct {
		Data struct {
			TotalRewards []struct {
				ValidatorIndex string `json:"validator_index"`
				Head           string `json:"head"`
				Target         string `json:"target"`
				Source         string `json:"source"`
				Inactivity     string `json:"inactivity"`
			} `json:"total_rewards"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		zap.L().Error("decoding attestation rewards failed", zap.Uint64("epoch", epoch), zap.Error(err))
		return domain.EpochRewards{}, err
	}

	rewards := domain.EpochRewards{Epoch: epoch}
	for _, r := range out.Data.TotalRewards {
		for _, component := range []string{r.Head, r.Target, r.Source, r.Inactivity} {
			if component == "" {
				continue
			}
			v, err := strconv.ParseInt(component, 10, 64)
			if err != nil {
				return domain.EpochRewards{}, errors.Wrapf(err, "parse attestation reward of validator %s", r.ValidatorIndex)
			}
			rewards.RewardsGwei += v
		}
	}

	if cc.cache != nil {
		cc.cache.Add(epoch, rewards)
	}
	return rewards, nil
}

func (cc *ConsensusClient) SyncCommittee(ctx context.Context, epoch uint64) ([]uint64, error) {
	url := fmt.Sprintf(cc.endpoint+syncCommitteesPath, epoch*SlotsPerEpoch, epoch)
	body, status, err := cc.do(ctx, "sync_committees", http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusBadRequest:
		if strings.Contains(string(body), "not activated for Altair") {
			return nil, nil
		}
		return nil, apierr.ErrBeaconRejected
	case http.StatusNotFound:
		return nil, apierr.ErrSlotNotFound
	default:
		zap.L().Error("unexpected status sync_committees", zap.Int("code", status))
		return nil, fmt.Errorf("unexpected status %d", status)
	}

	var out struct {
		Data struct {
			Validators []string `json:"validators"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		zap.L().Error("decoding sync_committees failed", zap.Error(err))
		return nil, err
	}

	members := make([]uint64, 0, len(out.Data.Validators))
	for _, raw := range out.Data.Validators {
		idx, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse sync committee member %q", raw)
		}
		members = append(members, idx)
	}
	return members, nil
}

func (cc *ConsensusClient) SyncCommitteeRewardsGwei(ctx context.Context, slot uint64, indices []uint64) (int64, error) {
	if len(indices) == 0 {
		return 0, nil
	}
	payload, err := json.Marshal(formatIndices(indices))
	if err != nil {
		return 0, err
	}

	body, status, err := cc.do(ctx, "sync_committee_rewards", http.MethodPost, fmt.Sprintf(cc.endpoint+syncCommitteeRewardsPath, slot), payload)
	if err != nil {
		return 0, err
	}
	if status == http.StatusNotFound {
		// no block, so no sync aggregate to reward
		return 0, nil
	}
	if err := statusError(status); err != nil {
		zap.L().Error("sync committee rewards error", zap.Uint64("slot", slot), zap.Int("code", status))
		return 0, err
	}

	var out struct {
		Data []struct {
			ValidatorIndex string `json:"validator_index"`
			Reward         string `json:"reward"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		zap.L().Error("decoding sync committee rewards failed", zap.Uint64("slot", slot), zap.Error(err))
		return 0, err
	}

	var total int64
	for _, r := range out.Data {
		v, err := strconv.ParseInt(r.Reward, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "parse sync reward of validator %s", r.ValidatorIndex)
		}
		total += v
	}
	return total, nil
}

func formatIndices(indices []uint64) []string {
	ids := make([]string, len(indices))
	for i, idx := range indices {
		ids[i] = strconv.FormatUint(idx, 10)
	}
	return ids
}

func (cc *ConsensusClient) postJSON(ctx context.Context, endpoint, url string, payload []byte, v interface{}) error {
	body, status, err := cc.do(ctx, endpoint, http.MethodPost, url, payload)
	if err != nil {
		return err
	}
	return decodeResponse(endpoint, body, status, v)
}

func (cc *ConsensusClient) getJSON(ctx context.Context, endpoint, url string, v interface{}) error {
	body, status, err := cc.do(ctx, endpoint, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return decodeResponse(endpoint, body, status, v)
}

func decodeResponse(endpoint string, body []byte, status int, v interface{}) error {
	if err := statusError(status); err != nil {
		zap.L().Error("unexpected beacon status", zap.String("endpoint", endpoint), zap.Int("code", status))
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		zap.L().Error("decoding beacon response failed", zap.String("endpoint", endpoint), zap.Error(err))
		return errors.Wrapf(err, "decode %s", endpoint)
	}
	return nil
}

func statusError(status int) error {
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return apierr.ErrSlotNotFound
	case http.StatusBadRequest:
		return apierr.ErrBeaconRejected
	default:
		return fmt.Errorf("unexpected status %d", status)
	}
}

func (cc *ConsensusClient) do(ctx context.Context, endpoint, method, url string, payload []byte) ([]byte, int, error) {
	var body []byte
	var status int
	err := retry.Do(ctx, cc.maxRetries, cc.backoff, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := cc.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ = io.ReadAll(resp.Body)
		status = resp.StatusCode
		if status >= 500 || status == http.StatusTooManyRequests {
			return fmt.Errorf("transient status %d", status)
		}
		return nil
	})
	if err != nil {
		metrics.BeaconRequestFailures.WithLabelValues(endpoint).Inc()
		if stderrors.Is(err, context.DeadlineExceeded) {
			zap.L().Warn("beacon request timed out", zap.String("endpoint", endpoint))
			return nil, 0, apierr.ErrRequestTimeout
		}
		return nil, 0, err
	}
	return body, status, nil
}
