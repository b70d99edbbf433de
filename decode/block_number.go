package decode

import (
	"encoding/json"
	"fmt"
	"strings"

	cosmosmath "cosmossdk.io/math"
)

// These block tags are special strings used to reference blocks in JSON-RPC
// see https://ethereum.org/en/developers/docs/apis/json-rpc/#default-block
const (
	BlockTagLatest    = "latest"
	BlockTagPending   = "pending"
	BlockTagEarliest  = "earliest"
	BlockTagFinalized = "finalized"
	BlockTagSafe      = "safe"
)

// ParseBlockNumber parses a block number encoded either as a 0x prefixed
// hex quantity or as a decimal string
func ParseBlockNumber(encoded string) (uint64, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return 0, fmt.Errorf("unable to parse empty block number")
	}

	number, valid := cosmosmath.NewIntFromString(encoded)
	if !valid {
		return 0, fmt.Errorf("unable to parse block number %s to integer", encoded)
	}

	if number.IsNegative() || !number.BigInt().IsUint64() {
		return 0, fmt.Errorf("block number %s out of range", encoded)
	}

	return number.Uint64(), nil
}

// ParseBlockNumberResult parses a block number found in an upstream result,
// where nodes encode it either as a JSON number or as a string
func ParseBlockNumberResult(raw json.RawMessage) (uint64, error) {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		return ParseBlockNumber(encoded)
	}

	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return 0, fmt.Errorf("error %w decoding block number %s", err, string(raw))
	}

	return ParseBlockNumber(number.String())
}
