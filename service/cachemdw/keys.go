package cachemdw

import (
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/kava-labs/kava-rpc-gateway/service/callmdw"
)

type CacheItemType int

const (
	CacheItemTypeQuery CacheItemType = iota + 1
)

func (t CacheItemType) String() string {
	switch t {
	case CacheItemTypeQuery:
		return "query"
	default:
		return "unknown"
	}
}

func BuildCacheKey(cacheItemType CacheItemType, parts []string) string {
	fullParts := append(
		[]string{
			cacheItemType.String(),
		},
		parts...,
	)

	return strings.Join(fullParts, ":")
}

// GetQueryKey calculates cache key for request.
// Params are compacted before hashing so insignificant whitespace
// does not produce distinct keys for the same request.
func GetQueryKey(
	cachePrefix string,
	req callmdw.CallRequest,
) (string, error) {
	params := req.Params
	if params == nil {
		params = []json.RawMessage{}
	}

	serializedParams, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	data := make([]byte, 0, len(req.Method)+len(serializedParams))
	data = append(data, []byte(req.Method)...)
	data = append(data, serializedParams...)

	hashedReq := crypto.Keccak256Hash(data)

	parts := []string{
		cachePrefix,
		req.Method,
		hashedReq.Hex(),
	}

	return BuildCacheKey(CacheItemTypeQuery, parts), nil
}
