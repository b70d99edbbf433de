// package injectmdw provides the stage inserting the current block hash
// or number into the params of a call before it continues down the chain
package injectmdw

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kava-labs/kava-rpc-gateway/chainstate"
	"github.com/kava-labs/kava-rpc-gateway/logging"
	"github.com/kava-labs/kava-rpc-gateway/service/callmdw"
	"github.com/kava-labs/kava-rpc-gateway/service/middleware"
)

// Kind names the block identifier a stage injects
type Kind string

const (
	BlockHash   Kind = "block_hash"
	BlockNumber Kind = "block_number"
)

// ParseKind returns the kind named by s
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case BlockHash, BlockNumber:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("undefined injection kind %q", s)
	}
}

// InjectMiddleware inserts the current block identifier of Kind
// at Index of the request params
type InjectMiddleware struct {
	kind   Kind
	index  int
	api    chainstate.API
	flavor chainstate.Flavor
	*logging.ServiceLogger
}

var _ callmdw.Middleware = (*InjectMiddleware)(nil)

// New returns a stage injecting kind at index, resolved through api and encoded for flavor
func New(kind Kind, index int, api chainstate.API, flavor chainstate.Flavor, logger *logging.ServiceLogger) (*InjectMiddleware, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if index < 0 {
		return nil, fmt.Errorf("invalid injection index %d, must not be negative", index)
	}

	return &InjectMiddleware{
		kind:          kind,
		index:         index,
		api:           api,
		flavor:        flavor,
		ServiceLogger: logger,
	}, nil
}

// Handle implements middleware.Middleware
func (m *InjectMiddleware) Handle(ctx context.Context, req callmdw.CallRequest, next callmdw.Next) (json.RawMessage, error) {
	value, err := m.resolve(ctx)
	if err != nil {
		m.Logger.Debug().
			Str("method", req.Method).
			Str("kind", string(m.kind)).
			Err(err).
			Msg("error resolving value to inject")

		return nil, middleware.WrapError(middleware.ResolutionFailure, err, "error resolving current %s", m.kind)
	}

	return next(ctx, req.WithParams(Insert(req.Params, m.index, value)))
}

func (m *InjectMiddleware) resolve(ctx context.Context) (json.RawMessage, error) {
	if m.kind == BlockHash {
		hash, err := m.api.CurrentBlockHash(ctx)
		if err != nil {
			return nil, err
		}
		return m.flavor.EncodeBlockHash(hash), nil
	}

	number, err := m.api.CurrentBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	return m.flavor.EncodeBlockNumber(number), nil
}

// Insert returns a new list with value at index, later params shifted right.
// A list shorter than index is padded with null up to index.
func Insert(params []json.RawMessage, index int, value json.RawMessage) []json.RawMessage {
	size := len(params) + 1
	if index >= size {
		size = index + 1
	}

	inserted := make([]json.RawMessage, 0, size)

	if index <= len(params) {
		inserted = append(inserted, params[:index]...)
		inserted = append(inserted, value)
		return append(inserted, params[index:]...)
	}

	inserted = append(inserted, params...)
	for len(inserted) < index {
		inserted = append(inserted, json.RawMessage("null"))
	}
	return append(inserted, value)
}
