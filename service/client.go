package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kava-labs/kava-rpc-gateway/logging"
)

// GatewayClient provides a client for the http status endpoints of a
// running gateway, JSON-RPC calls go through any JSON-RPC client
type GatewayClient struct {
	*http.Client
	config GatewayClientConfig
}

// GatewayClientConfig wraps values used to
// create a new GatewayClient
type GatewayClientConfig struct {
	GatewayHostname string
	Timeout         time.Duration
	// Logger, if set, receives every response body at debug level
	Logger *logging.ServiceLogger
}

// NewGatewayClient creates a new GatewayClient
// using the provided config, returning the client and error (if any)
func NewGatewayClient(config GatewayClientConfig) (*GatewayClient, error) {
	if config.GatewayHostname == "" {
		return nil, fmt.Errorf("gateway hostname must not be empty")
	}

	return &GatewayClient{
		Client: &http.Client{Timeout: config.Timeout},
		config: config,
	}, nil
}

// GetMethodsStatus calls `MethodsStatusPath` to
// get the chain of every method exposed by the gateway
func (c *GatewayClient) GetMethodsStatus(ctx context.Context) (MethodsStatusResponse, error) {
	var response MethodsStatusResponse

	err := c.get(ctx, MethodsStatusPath, &response)

	return response, err
}

// Healthcheck calls `HealthcheckPath`, returning a *RequestError
// carrying the status code when the gateway is unhealthy
func (c *GatewayClient) Healthcheck(ctx context.Context) error {
	return c.get(ctx, HealthcheckPath, nil)
}

// RequestError provides additional details about the failed request.
type RequestError struct {
	message    string
	URL        string
	StatusCode int
}

// Error implements the error interface for RequestError.
func (err *RequestError) Error() string {
	return err.message
}

// get makes an http GET request to path decoding the
// JSON response to result if non-nil, returning error (if any)
func (c *GatewayClient) get(ctx context.Context, path string, result interface{}) error {
	url := c.config.GatewayHostname + path

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &RequestError{URL: url, message: err.Error()}
	}

	response, err := c.Do(request)
	if err != nil {
		return &RequestError{URL: url, message: err.Error()}
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return &RequestError{URL: url, message: err.Error()}
	}

	if c.config.Logger != nil {
		c.config.Logger.Debug().
			Str("url", url).
			Int("status", response.StatusCode).
			Bytes("body", body).
			Msg("gateway response")
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &RequestError{
			StatusCode: response.StatusCode,
			URL:        url,
			message:    fmt.Sprintf("request to %s error server http error %d: %s", url, response.StatusCode, bytes.TrimSpace(body)),
		}
	}

	// If no result is expected, don't attempt to decode a potentially
	// empty response body and avoid incurring EOF errors
	if result == nil {
		return nil
	}

	if err := json.Unmarshal(body, result); err != nil {
		return &RequestError{URL: url, message: err.Error()}
	}
	return nil
}
