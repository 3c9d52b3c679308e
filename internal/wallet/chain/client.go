// Package chain wraps the chain RPC node behind a failover client used for
// nonce reads, network detection and generic pass-through requests.
package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// endpoint is a single RPC node, dialled lazily and re-dialled on failure.
type endpoint struct {
	url string
	rpc *rpc.Client
	eth *ethclient.Client
}

// Client is a chain RPC client with failover across multiple node URLs.
type Client struct {
	mu        sync.Mutex
	endpoints []*endpoint
	current   int

	chainIDMu sync.RWMutex
	chainID   *big.Int
}

// NewClient creates a client over the given node URLs. Endpoints that cannot
// be reached are retried on use; at least one URL must be provided.
func NewClient(urls []string) (*Client, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one RPC URL is required")
	}

	endpoints := make([]*endpoint, 0, len(urls))
	for _, url := range urls {
		ep := &endpoint{url: url}
		if err := ep.dial(); err != nil {
			log.Warn().
				Str("url", url).
				Err(err).
				Msg("Failed to connect to RPC node, will retry on use")
		}
		endpoints = append(endpoints, ep)
	}

	return &Client{endpoints: endpoints}, nil
}

func (e *endpoint) dial() error {
	client, err := rpc.Dial(e.url)
	if err != nil {
		return errors.Wrapf(err, "failed to dial %s", e.url)
	}

	e.rpc = client
	e.eth = ethclient.NewClient(client)
	return nil
}

// Close closes all endpoint connections.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ep := range c.endpoints {
		if ep.rpc != nil {
			ep.rpc.Close()
			ep.rpc = nil
			ep.eth = nil
		}
	}
}

// getEndpoint returns the current endpoint, moving to the next one when the
// current endpoint cannot be (re)dialled.
func (c *Client) getEndpoint() (*endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < len(c.endpoints); i++ {
		idx := (c.current + i) % len(c.endpoints)
		ep := c.endpoints[idx]

		if ep.rpc == nil {
			if err := ep.dial(); err != nil {
				log.Warn().
					Str("url", ep.url).
					Err(err).
					Msg("RPC node unavailable, trying next endpoint")
				continue
			}
		}

		c.current = idx
		return ep, nil
	}

	return nil, errors.New("all RPC endpoints are unavailable")
}

// markFailed drops the endpoint's connection so the next call re-dials it.
func (c *Client) markFailed(failed *endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if failed.rpc != nil {
		failed.rpc.Close()
		failed.rpc = nil
		failed.eth = nil
	}
	c.current = (c.current + 1) % len(c.endpoints)
}

// ChainID detects the network id once and serves it from cache afterwards.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.chainIDMu.RLock()
	cached := c.chainID
	c.chainIDMu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	ep, err := c.getEndpoint()
	if err != nil {
		return nil, err
	}

	chainID, err := ep.eth.ChainID(ctx)
	if err != nil {
		c.markFailed(ep)
		return nil, errors.Wrap(err, "failed to detect network")
	}

	c.chainIDMu.Lock()
	c.chainID = chainID
	c.chainIDMu.Unlock()

	return chainID, nil
}

// CallContract executes a read-only contract call.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	ep, err := c.getEndpoint()
	if err != nil {
		return nil, err
	}

	result, err := ep.eth.CallContract(ctx, msg, nil)
	if err != nil {
		c.markFailed(ep)
		return nil, errors.Wrap(err, "failed to call contract")
	}

	return result, nil
}

// CodeAt returns the contract code at the given address, or empty bytes for
// an address with no deployed code.
func (c *Client) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	ep, err := c.getEndpoint()
	if err != nil {
		return nil, err
	}

	code, err := ep.eth.CodeAt(ctx, address, nil)
	if err != nil {
		c.markFailed(ep)
		return nil, errors.Wrap(err, "failed to get code")
	}

	return code, nil
}

// Send forwards a raw RPC request verbatim and decodes the result into result.
func (c *Client) Send(ctx context.Context, result any, method string, params ...any) error {
	ep, err := c.getEndpoint()
	if err != nil {
		return err
	}

	if err := ep.rpc.CallContext(ctx, result, method, params...); err != nil {
		c.markFailed(ep)
		return errors.Wrapf(err, "rpc call %s failed", method)
	}

	return nil
}
