package faucet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var ErrExternalService = errors.New("faucet service failure")

// Funding is the faucet's answer to a successful request.
type Funding struct {
	ExplorerURL string `json:"explorerUrl"`
	TxHash      string `json:"txHash,omitempty"`
}

// Service requests test tokens for an address.
type Service interface {
	RequestFunds(ctx context.Context, address common.Address) (Funding, error)
}

// ServiceError carries the message the faucet returned.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Is(target error) bool {
	return target == ErrExternalService
}

// Client calls an HTTP faucet: POST {"address": "0x..."} -> {"explorerUrl": "..."}.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) RequestFunds(ctx context.Context, address common.Address) (Funding, error) {
	body, err := json.Marshal(map[string]string{"address": address.Hex()})
	if err != nil {
		return Funding{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Funding{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Funding{}, fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Funding{}, fmt.Errorf("%w: read response: %v", ErrExternalService, err)
	}

	if resp.StatusCode >= 400 {
		return Funding{}, &ServiceError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}

	var out Funding
	if err := json.Unmarshal(raw, &out); err != nil {
		return Funding{}, fmt.Errorf("%w: decode response: %v", ErrExternalService, err)
	}
	return out, nil
}

func errorMessage(status int, raw []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) <= 200 {
		return text
	}
	return fmt.Sprintf("faucet returned HTTP %d", status)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, address common.Address) (Funding, error)

func (f ServiceFunc) RequestFunds(ctx context.Context, address common.Address) (Funding, error) {
	return f(ctx, address)
}

// Unavailable is the Service used when no faucet URL is configured.
var Unavailable Service = ServiceFunc(func(context.Context, common.Address) (Funding, error) {
	return Funding{}, &ServiceError{StatusCode: http.StatusServiceUnavailable, Message: "Faucet is not configured"}
})
