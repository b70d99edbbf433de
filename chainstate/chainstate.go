// package chainstate resolves the current head of the chain served by the
// upstream node, for use by stages that inject block identifiers into requests
package chainstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/kava-labs/kava-rpc-gateway/decode"
	"github.com/kava-labs/kava-rpc-gateway/logging"
)

// Flavor selects the node api used to look up the chain head
// and how block identifiers are encoded for that node
type Flavor string

const (
	// FlavorSubstrate uses chain_getBlockHash and chain_getHeader,
	// block numbers are encoded as JSON numbers
	FlavorSubstrate Flavor = "substrate"
	// FlavorEVM uses eth_getBlockByNumber("latest"),
	// block numbers are encoded as hex quantities
	FlavorEVM Flavor = "evm"
)

var (
	ErrUnknownFlavor = errors.New("unknown chain state flavor")
	ErrNoHead        = errors.New("upstream returned no chain head")
)

// ParseFlavor returns the flavor named by s
func ParseFlavor(s string) (Flavor, error) {
	switch Flavor(s) {
	case FlavorSubstrate, FlavorEVM:
		return Flavor(s), nil
	default:
		return "", fmt.Errorf("%w %q, supported values are %s and %s", ErrUnknownFlavor, s, FlavorSubstrate, FlavorEVM)
	}
}

// EncodeBlockNumber encodes number the way nodes of this flavor expect it as a param
func (f Flavor) EncodeBlockNumber(number uint64) json.RawMessage {
	if f == FlavorEVM {
		return quote(hexutil.EncodeUint64(number))
	}
	return json.RawMessage(fmt.Sprintf("%d", number))
}

// EncodeBlockHash encodes hash as a 0x prefixed JSON string
func (f Flavor) EncodeBlockHash(hash common.Hash) json.RawMessage {
	return quote(hash.Hex())
}

func quote(s string) json.RawMessage {
	return json.RawMessage(`"` + s + `"`)
}

// Caller sends a single JSON-RPC call to the upstream node
type Caller interface {
	Call(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error)
}

// API answers questions about the current head of the chain
type API interface {
	CurrentBlockHash(ctx context.Context) (common.Hash, error)
	CurrentBlockNumber(ctx context.Context) (uint64, error)
}

// Client implements API by querying the upstream node on every call
type Client struct {
	flavor   Flavor
	upstream Caller
	logger   *logging.ServiceLogger
}

// New returns a chain state client for the given flavor
func New(flavor Flavor, upstream Caller, logger *logging.ServiceLogger) *Client {
	return &Client{
		flavor:   flavor,
		upstream: upstream,
		logger:   logger,
	}
}

// Flavor returns the flavor the client was created with
func (c *Client) Flavor() Flavor {
	return c.flavor
}

// blockHead is the subset of a substrate header or an evm block
// the client cares about
type blockHead struct {
	Hash   *common.Hash    `json:"hash"`
	Number json.RawMessage `json:"number"`
}

// CurrentBlockHash implements API
func (c *Client) CurrentBlockHash(ctx context.Context) (common.Hash, error) {
	if c.flavor == FlavorEVM {
		head, err := c.latestEVMBlock(ctx)
		if err != nil {
			return common.Hash{}, err
		}
		if head.Hash == nil {
			return common.Hash{}, fmt.Errorf("%w: latest block has no hash", ErrNoHead)
		}
		return *head.Hash, nil
	}

	result, err := c.upstream.Call(ctx, "chain_getBlockHash", []json.RawMessage{})
	if err != nil {
		return common.Hash{}, err
	}

	var hash *common.Hash
	if err := json.Unmarshal(result, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("error %w decoding block hash %s", err, string(result))
	}
	if hash == nil {
		return common.Hash{}, ErrNoHead
	}

	c.logger.Trace().Str("hash", hash.Hex()).Msg("resolved current block hash")

	return *hash, nil
}

// CurrentBlockNumber implements API
func (c *Client) CurrentBlockNumber(ctx context.Context) (uint64, error) {
	var head blockHead
	var err error

	if c.flavor == FlavorEVM {
		head, err = c.latestEVMBlock(ctx)
	} else {
		head, err = c.decodeHead(c.upstream.Call(ctx, "chain_getHeader", []json.RawMessage{}))
	}
	if err != nil {
		return 0, err
	}

	if len(head.Number) == 0 {
		return 0, fmt.Errorf("%w: head has no number", ErrNoHead)
	}

	number, err := decode.ParseBlockNumberResult(head.Number)
	if err != nil {
		return 0, err
	}

	c.logger.Trace().Uint64("number", number).Msg("resolved current block number")

	return number, nil
}

func (c *Client) latestEVMBlock(ctx context.Context) (blockHead, error) {
	return c.decodeHead(c.upstream.Call(ctx, "eth_getBlockByNumber", []json.RawMessage{
		quote(decode.BlockTagLatest),
		json.RawMessage("false"),
	}))
}

func (c *Client) decodeHead(result json.RawMessage, err error) (blockHead, error) {
	if err != nil {
		return blockHead{}, err
	}

	var head *blockHead
	if err := json.Unmarshal(result, &head); err != nil {
		return blockHead{}, fmt.Errorf("error %w decoding chain head %s", err, string(result))
	}
	if head == nil {
		return blockHead{}, ErrNoHead
	}

	return *head, nil
}
