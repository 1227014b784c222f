package resolver

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

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/dto"
)

const (
	StatusPath      = "/api/device/status"
	maxResponseSize = 64 << 10
)

var (
	// ErrUnreachable covers transport failures, timeouts and 5xx replies.
	ErrUnreachable = errors.New("entitlement server unreachable")
	// ErrMalformedResponse means the server answered with something that is
	// not a status reply. Treated like ErrUnreachable by the resolver.
	ErrMalformedResponse = errors.New("malformed status response")
	// ErrRejected is a 4xx reply. It is never retried and never falls back
	// to the cached verdict.
	ErrRejected = errors.New("status request rejected")
)

// Transport performs one status protocol exchange.
type Transport interface {
	Status(ctx context.Context, fp string) (*dto.DeviceStatusResponse, error)
}

// HTTPTransport speaks the status protocol over HTTP.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport targets baseURL + StatusPath. timeout bounds each request
// on top of whatever deadline the caller's context carries.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		endpoint: strings.TrimRight(baseURL, "/") + StatusPath,
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Endpoint() string { return t.endpoint }

func (t *HTTPTransport) Status(ctx context.Context, fp string) (*dto.DeviceStatusResponse, error) {
	body, err := json.Marshal(dto.DeviceStatusRequest{DeviceHash: fp})
	if err != nil {
		return nil, fmt.Errorf("encode status request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: rate limited", ErrUnreachable)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrRejected, resp.StatusCode, errorMessage(data))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrUnreachable, resp.StatusCode, errorMessage(data))
	}

	var out dto.DeviceStatusResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.ServerTime.IsZero() || out.Reason == "" {
		return nil, fmt.Errorf("%w: missing server_time or reason", ErrMalformedResponse)
	}
	return &out, nil
}

func errorMessage(data []byte) string {
	var e dto.ErrorResponse
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return e.Error
	}
	if len(data) > 200 {
		data = data[:200]
	}
	return strings.TrimSpace(string(data))
}
