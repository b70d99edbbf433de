package cachemdw_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kava-labs/kava-rpc-gateway/service/callmdw"
	"github.com/kava-labs/kava-rpc-gateway/service/cachemdw"
)

func TestUnitTestBuildCacheKey(t *testing.T) {
	for _, tc := range []struct {
		desc             string
		cacheItemType    cachemdw.CacheItemType
		parts            []string
		expectedCacheKey string
	}{
		{
			desc:             "query item",
			cacheItemType:    cachemdw.CacheItemTypeQuery,
			parts:            []string{"1", "2", "3"},
			expectedCacheKey: "query:1:2:3",
		},
		{
			desc:             "unknown item",
			cacheItemType:    cachemdw.CacheItemType(0),
			parts:            []string{"1"},
			expectedCacheKey: "unknown:1",
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			cacheKey := cachemdw.BuildCacheKey(tc.cacheItemType, tc.parts)
			require.Equal(t, tc.expectedCacheKey, cacheKey)
		})
	}
}

func TestUnitTestGetQueryKey(t *testing.T) {
	for _, tc := range []struct {
		desc             string
		cachePrefix      string
		req              callmdw.CallRequest
		expectedCacheKey string
	}{
		{
			desc:        "positional params",
			cachePrefix: "chain1",
			req: callmdw.CallRequest{
				Method: "eth_getBalance",
				Params: []json.RawMessage{json.RawMessage(`"0xabc"`), json.RawMessage(`"0x1"`)},
			},
			expectedCacheKey: "query:chain1:eth_getBalance:0xa6dbdd6ef574f44b7bb2c6fdbd00b8737ed441fd752bf1451405e89e179279cc",
		},
		{
			desc:        "whitespace in params is not significant",
			cachePrefix: "chain1",
			req: callmdw.CallRequest{
				Method: "eth_getBalance",
				Params: []json.RawMessage{json.RawMessage(` "0xabc" `), json.RawMessage("\"0x1\"\n")},
			},
			expectedCacheKey: "query:chain1:eth_getBalance:0xa6dbdd6ef574f44b7bb2c6fdbd00b8737ed441fd752bf1451405e89e179279cc",
		},
		{
			desc:             "missing params hash like an empty list",
			cachePrefix:      "chain1",
			req:              callmdw.CallRequest{Method: "chain_getHeader"},
			expectedCacheKey: "query:chain1:chain_getHeader:0x264b80ed69e8f4e11a95c867c0ec5269dc5da003e7c4ee0937e22f370da183e1",
		},
		{
			desc:        "object params",
			cachePrefix: "chain1",
			req: callmdw.CallRequest{
				Method: "eth_getBalance",
				Params: []json.RawMessage{json.RawMessage(`"0xabc"`), json.RawMessage(`{ "a": 1 }`)},
			},
			expectedCacheKey: "query:chain1:eth_getBalance:0x4cf472001924caef32d60c441f9c118ef1b1a498b0183bec1b349111d3eff647",
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			cacheKey, err := cachemdw.GetQueryKey(tc.cachePrefix, tc.req)
			require.NoError(t, err)
			require.Equal(t, tc.expectedCacheKey, cacheKey)
		})
	}
}

func TestUnitTestGetQueryKeyDistinguishesRequests(t *testing.T) {
	base := callmdw.CallRequest{Method: "eth_getBalance", Params: []json.RawMessage{json.RawMessage(`"0xabc"`)}}

	baseKey, err := cachemdw.GetQueryKey("chain1", base)
	require.NoError(t, err)

	for _, other := range []callmdw.CallRequest{
		{Method: "eth_getCode", Params: base.Params},
		base.WithParams([]json.RawMessage{json.RawMessage(`"0xabd"`)}),
		base.WithParams([]json.RawMessage{json.RawMessage(`"0xabc"`), json.RawMessage(`null`)}),
	} {
		otherKey, err := cachemdw.GetQueryKey("chain1", other)
		require.NoError(t, err)
		require.NotEqual(t, baseKey, otherKey)
	}
}
