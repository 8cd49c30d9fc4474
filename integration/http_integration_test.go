package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eth_stats_api/internal/adapter/consensus"
	"eth_stats_api/internal/adapter/execution"
	"eth_stats_api/internal/adapter/store"
	"eth_stats_api/internal/domain"
	apierr "eth_stats_api/internal/errors"
	"eth_stats_api/internal/usecase"
	httpPkg "eth_stats_api/pkg/http"
)

func encode(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// mockNode answers both beacon REST calls and execution JSON-RPC. Validator 1
// proposes slot 64 (execution block 0x64), misses slot 65 and sits in the sync
// committee during epoch 2, which ends now in chain time.
func mockNode() *httptest.Server {
	mux := http.NewServeMux()

	genesis := time.Now().Add(-3 * 384 * time.Second).Unix()
	mux.HandleFunc("/eth/v1/beacon/genesis", func(w http.ResponseWriter, r *http.Request) {
		encode(w, map[string]interface{}{
			"data": map[string]string{"genesis_time": strconv.FormatInt(genesis, 10)},
		})
	})

	mux.HandleFunc("/eth/v1/beacon/headers/finalized", func(w http.ResponseWriter, r *http.Request) {
		encode(w, map[string]interface{}{
			"data": map[string]interface{}{
				"header": map[string]interface{}{"message": map[string]string{"slot": "70"}},
			},
		})
	})

	mux.HandleFunc("/eth/v1/beacon/states/95/validators", func(w http.ResponseWriter, r *http.Request) {
		var data []map[string]interface{}
		for _, id := range strings.Split(r.URL.Query().Get("id"), ",") {
			data = append(data, map[string]interface{}{
				"index": id, "balance": "32000000000", "status": "active_ongoing",
				"validator": map[string]string{"pubkey": "0x" + id, "effective_balance": "32000000000"},
			})
		}
		encode(w, map[string]interface{}{"data": data})
	})

	mux.HandleFunc("/eth/v1/beacon/rewards/attestations/2", func(w http.ResponseWriter, r *http.Request) {
		encode(w, map[string]interface{}{
			"data": map[string]interface{}{
				"total_rewards": []map[string]string{
					{"validator_index": "1", "head": "300", "target": "500", "source": "200", "inactivity": "0"},
				},
			},
		})
	})

	mux.HandleFunc("/eth/v1/beacon/states/64/sync_committees", func(w http.ResponseWriter, r *http.Request) {
		encode(w, map[string]interface{}{
			"data": map[string]interface{}{"validators": []string{"5", "1", "9"}},
		})
	})

	mux.HandleFunc("/eth/v1/beacon/rewards/sync_committee/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/65") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		encode(w, map[string]interface{}{
			"data": []map[string]string{{"validator_index": "1", "reward": "16"}},
		})
	})

	mux.HandleFunc("/eth/v1/validator/duties/proposer/2", func(w http.ResponseWriter, r *http.Request) {
		encode(w, map[string]interface{}{
			"data": []map[string]string{
				{"pubkey": "0x1", "validator_index": "1", "slot": "64"},
				{"pubkey": "0x1", "validator_index": "1", "slot": "65"},
				{"pubkey": "0x9", "validator_index": "9", "slot": "66"},
			},
		})
	})

	mux.HandleFunc("/eth/v2/beacon/blocks/64", func(w http.ResponseWriter, r *http.Request) {
		encode(w, map[string]interface{}{
			"data": map[string]interface{}{
				"message": map[string]interface{}{
					"body": map[string]interface{}{
						"execution_payload": map[string]string{
							"block_number":  "100",
							"fee_recipient": "0xbb7b8287f3f0a933474a79eae42cbca977791171",
						},
					},
				},
			},
		})
	})
	mux.HandleFunc("/eth/v2/beacon/blocks/65", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"code":404,"message":"block not found"}`)
	})

	mux.HandleFunc("/eth/v1/beacon/rewards/blocks/64", func(w http.ResponseWriter, r *http.Request) {
		encode(w, map[string]interface{}{"data": map[string]string{"proposer_index": "1", "total": "20000"}})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string        `json:"method"`
			ID     int           `json:"id"`
			Params []interface{} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var result interface{}
		switch req.Method {
		case "eth_blockNumber":
			result = "0x64"
		case "eth_getBalance":
			if req.Params[1].(string) == "0x63" {
				result = "0xde0b6b3a7640000"
			} else {
				result = "0xe92596fd6290000"
			}
		case "eth_getBlockByNumber":
			result = map[string]interface{}{
				"difficulty":       "0x0",
				"extraData":        "0x",
				"gasLimit":         "0x1c9c380",
				"gasUsed":          "0x0",
				"hash":             "0xdfe2e70d6c116a541101cecbb256d7402d62125f6ddc9b607d49edc989825c64",
				"logsBloom":        "0x" + strings.Repeat("0", 512),
				"miner":            "0xbb7b8287f3f0a933474a79eae42cbca977791171",
				"mixHash":          "0x5bb43c0772e58084b221c8e0c859a45950c103c712c5b8f11d9566ee078a4501",
				"nonce":            "0x0000000000000000",
				"number":           req.Params[0],
				"parentHash":       "0xdb10afd3efa45327eb284c83cc925bd9bd7966aea53067c1eebe0724d124ec1e",
				"receiptsRoot":     "0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421",
				"sha3Uncles":       "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
				"stateRoot":        "0x90c25f6d7fddeb31a6cc5668a6bba77adbadec705eb7aa5a51265c2d1e3bb7ac",
				"timestamp":        "0x55ba43eb",
				"transactions":     []interface{}{},
				"transactionsRoot": "0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421",
				"uncles":           []interface{}{},
				"baseFeePerGas":    "0x0",
			}
		}
		encode(w, map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": result})
	})

	return httptest.NewServer(mux)
}

type pipeline struct {
	collect *usecase.CollectUseCase
	router  http.Handler
}

func newPipeline(t *testing.T, nodeURL string) pipeline {
	t.Helper()
	zap.ReplaceGlobals(zap.NewNop())

	epochCache, err := consensus.NewEpochRewardsCache(16, time.Minute)
	require.NoError(t, err)
	consClient, err := consensus.NewConsensusClient(nodeURL, 2, 10*time.Millisecond, 5*time.Second, epochCache)
	require.NoError(t, err)

	ethHTTP, err := ethclient.Dial(nodeURL)
	require.NoError(t, err)
	t.Cleanup(ethHTTP.Close)
	execClient := execution.NewExecutionClient(ethHTTP, 2, 10*time.Millisecond)

	snapshots, err := store.OpenSnapshotStore(filepath.Join(t.TempDir(), "snapshots"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = snapshots.Close() })

	recordCache, err := store.NewRecordCache(4, time.Minute)
	require.NoError(t, err)

	collect := usecase.NewCollectUseCase(consClient, execClient, snapshots, usecase.CollectOptions{
		ValidatorIDs:   []string{"1"},
		LookbackEpochs: 1,
	})
	stats := usecase.NewStatsUseCase("operator-a", snapshots, recordCache)

	return pipeline{collect: collect, router: httpPkg.NewRouter(stats)}
}

func TestIntegration_CollectAndServe(t *testing.T) {
	node := mockNode()
	defer node.Close()
	p := newPipeline(t, node.URL)

	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, httptest.NewRequest("GET", "/ethereum", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	snap, err := p.collect.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.FromEpoch)
	assert.Equal(t, uint64(2), snap.ToEpoch)
	assert.WithinDuration(t, time.Now(), snap.EpochEndTime, time.Minute)

	_, err = p.collect.Execute(context.Background())
	assert.Equal(t, apierr.ErrNothingToCollect, err)

	rec = httptest.NewRecorder()
	p.router.ServeHTTP(rec, httptest.NewRequest("GET", "/ethereum", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := domain.DecodeEthereum(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "operator-a", got.Name)
	assert.Equal(t, "32", got.Staked)
	assert.Equal(t, int64(1), got.ActiveValidators)
	assert.Equal(t, int64(1), got.Validators)
	assert.Equal(t, int64(1), got.ProducedBlocks)
	assert.Equal(t, int64(1), got.MissedBlocks)
	// attestations 1000, block 20000, sync committee 31 slots of 16
	assert.Equal(t, "0.000021496", got.ConsensusRewards)
	assert.Equal(t, "0.05", got.ExecutedRewards)
	assert.NotEqual(t, "0.00", got.APR)
	assert.Equal(t, got.APR, got.APR30Days)
	assert.Equal(t, got.APR, got.APR365Days)

	rec = httptest.NewRecorder()
	p.router.ServeHTTP(rec, httptest.NewRequest("GET", "/ethereum/snapshots", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var snaps []domain.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, "50000000000000000", snaps[0].ExecutionRewardsWei)
}

func TestIntegration_BeaconUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	node := httptest.NewServer(mux)
	defer node.Close()

	p := newPipeline(t, node.URL)

	_, err := p.collect.Execute(context.Background())
	require.Error(t, err)

	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, httptest.NewRequest("GET", "/ethereum", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
