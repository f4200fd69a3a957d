package stallion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cartline/shipping/pkg/carrier"
)

// HTTPAPIClient is the production implementation of APIClient.
//
// The carrier configuration is resolved through the provider on every
// request, so a settings change takes effect within the provider's cache
// TTL without a restart.
type HTTPAPIClient struct {
	provider   *carrier.Provider
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	Provider *carrier.Provider
	Timeout  time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPAPIClient{
		provider: cfg.Provider,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetRates fetches shipping rates. POST /rates
func (c *HTTPAPIClient) GetRates(ctx context.Context, req *RateRequest) (*RateResponse, error) {
	body, err := c.do(ctx, http.MethodPost, "/rates", req)
	if err != nil {
		return nil, err
	}

	var result RateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, carrier.NewError(carrier.KindRemote, "malformed rates response").WithCause(err)
	}
	return &result, nil
}

// CreateShipment creates a shipment and purchases a label. POST /shipments
func (c *HTTPAPIClient) CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error) {
	body, err := c.do(ctx, http.MethodPost, "/shipments", req)
	if err != nil {
		return nil, err
	}
	return decodeShipment(body)
}

// GetShipment retrieves a shipment by tracking number or shipment id.
func (c *HTTPAPIClient) GetShipment(ctx context.Context, id string) (*ShipmentResponse, error) {
	body, err := c.do(ctx, http.MethodGet, "/shipments/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return decodeShipment(body)
}

// CancelShipment voids a shipment. DELETE /shipments/{id}
func (c *HTTPAPIClient) CancelShipment(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/shipments/"+url.PathEscape(id), nil)
	return err
}

// GetPostageTypes lists available postage types. GET /postage-types
func (c *HTTPAPIClient) GetPostageTypes(ctx context.Context) (*PostageTypesResponse, error) {
	body, err := c.do(ctx, http.MethodGet, "/postage-types", nil)
	if err != nil {
		return nil, err
	}

	// The listing is passed through verbatim.
	return &PostageTypesResponse{PostageTypes: json.RawMessage(body)}, nil
}

func decodeShipment(body []byte) (*ShipmentResponse, error) {
	var result ShipmentResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, carrier.NewError(carrier.KindRemote, "malformed shipment response").WithCause(err)
	}
	result.Raw = json.RawMessage(body)
	return &result, nil
}

// do performs one authenticated request and returns the response body, or a
// classified carrier error. A missing credential fails fast before any
// network I/O.
func (c *HTTPAPIClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	cfg := c.provider.Resolve(ctx)
	if cfg.APIKey == "" {
		return nil, carrier.NewError(carrier.KindNotConfigured,
			"carrier API key not configured; set the settings record or the static credentials")
	}

	var bodyReader io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, carrier.NewError(carrier.KindValidation, "failed to marshal request body").WithCause(err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(cfg.BaseURL, "/")+path, bodyReader)
	if err != nil {
		return nil, carrier.NewError(carrier.KindValidation, "failed to create request").WithCause(err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("User-Agent", "cartline-shipbridge/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// No response received: transport failure, distinguishable from a
		// remote rejection so callers can decide to retry.
		return nil, carrier.NewError(carrier.KindUnreachable, "no response from carrier").WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, carrier.NewError(carrier.KindUnreachable, "failed reading carrier response").WithCause(err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	return nil, classify(resp.StatusCode, body)
}

// classify maps a non-2xx carrier response onto the error taxonomy.
func classify(status int, body []byte) *carrier.Error {
	message := remoteMessage(body)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return carrier.NewError(carrier.KindUnauthenticated,
			"carrier rejected the credentials; check the configured API key and deployment mode").
			WithStatus(status).WithRemote(body)
	case status == http.StatusBadRequest:
		if message == "" {
			message = "bad request - check address and package details"
		}
		return carrier.NewError(carrier.KindInvalidRequest, message).
			WithStatus(status).WithRemote(body)
	default:
		if message == "" {
			message = fmt.Sprintf("carrier returned HTTP %d", status)
		}
		return carrier.NewError(carrier.KindRemote, message).
			WithStatus(status).WithRemote(body)
	}
}

func remoteMessage(body []byte) string {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	return ""
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
