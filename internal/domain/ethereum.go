package domain

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	apierr "eth_stats_api/internal/errors"
)

// Ethereum is the staking statistics record served to consumers. Amounts and
// APR figures are decimal strings so no precision is lost on the wire.
type Ethereum struct {
	Name             string `json:"name"`
	Staked           string `json:"staked"`
	ActiveValidators int64  `json:"active_validators"`
	Validators       int64  `json:"validators"`
	ProducedBlocks   int64  `json:"produced_blocks"`
	MissedBlocks     int64  `json:"missed_blocks"`
	ConsensusRewards string `json:"consensus_rewards"`
	ExecutedRewards  string `json:"executed_rewards"`
	APR              string `json:"apr"`
	APR30Days        string `json:"apr_30days"`
	APR365Days       string `json:"apr_365days"`
}

type fieldKind int

const (
	textField fieldKind = iota
	countField
)

var ethereumShape = map[string]fieldKind{
	"name":              textField,
	"staked":            textField,
	"active_validators": countField,
	"validators":        countField,
	"produced_blocks":   countField,
	"missed_blocks":     countField,
	"consensus_rewards": textField,
	"executed_rewards":  textField,
	"apr":               textField,
	"apr_30days":        textField,
	"apr_365days":       textField,
}

// DecodeEthereum decodes data only if it carries exactly the eleven record
// fields with their declared JSON types.
func DecodeEthereum(data []byte) (Ethereum, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Ethereum{}, errors.Wrap(apierr.ErrShapeMismatch, err.Error())
	}

	for key := range raw {
		if _, ok := ethereumShape[key]; !ok {
			return Ethereum{}, errors.Wrapf(apierr.ErrShapeMismatch, "unknown field %q", key)
		}
	}
	for key, kind := range ethereumShape {
		value, ok := raw[key]
		if !ok {
			return Ethereum{}, errors.Wrapf(apierr.ErrShapeMismatch, "missing field %q", key)
		}
		if !matchesKind(value, kind) {
			return Ethereum{}, errors.Wrapf(apierr.ErrShapeMismatch, "field %q has the wrong type", key)
		}
	}

	var out Ethereum
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return Ethereum{}, errors.Wrap(apierr.ErrShapeMismatch, err.Error())
	}
	return out, nil
}

func matchesKind(value json.RawMessage, kind fieldKind) bool {
	trimmed := bytes.TrimSpace(value)
	if bytes.Equal(trimmed, []byte("null")) {
		return false
	}
	switch kind {
	case textField:
		var s string
		return json.Unmarshal(trimmed, &s) == nil
	case countField:
		var n int64
		return json.Unmarshal(trimmed, &n) == nil
	}
	return false
}
