package homeassistant

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	statesEndpoint = "/api/states/"
	apiEndpoint    = "/api/"

	// Entity state bodies are small; anything larger is not a state object.
	maxBodySize = 1 << 20

	DefaultTimeout = 10 * time.Second
)

// Client reads entity states from the Home Assistant REST API.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient validates the base URL and token and returns a Client whose
// requests are all bounded by timeout. tlsConfig may be nil.
func NewClient(baseURL string, token string, timeout time.Duration, tlsConfig *tls.Config) (*Client, error) {
	normalized, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errors.New("access token must not be empty")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		baseURL: normalized,
		token:   token,
		timeout: timeout,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}, nil
}

// NormalizeBaseURL checks that raw is an absolute http(s) URL and strips any
// trailing slash. A path prefix is kept for installs behind a reverse proxy.
func NormalizeBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("base URL must not be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("base URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base URL %q has no host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return "", fmt.Errorf("base URL %q must not contain credentials, a query or a fragment", raw)
	}

	return strings.TrimRight(u.String(), "/"), nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchState performs a single GET /api/states/{entityID}. Failures are
// returned as *RequestError.
func (c *Client) FetchState(ctx context.Context, entityID string) (*EntityState, error) {
	if entityID == "" {
		return nil, errors.New("entity id must not be empty")
	}

	body, err := c.get(ctx, statesEndpoint+url.PathEscape(entityID))
	if err != nil {
		return nil, err
	}

	var resp stateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, decodeError(fmt.Errorf("unable to parse JSON response: %w", err))
	}
	if resp.State == nil {
		return nil, decodeError(errors.New("response has no state field"))
	}

	return &EntityState{
		EntityID:    resp.EntityID,
		State:       *resp.State,
		Attributes:  resp.Attributes,
		LastChanged: resp.LastChanged,
		LastUpdated: resp.LastUpdated,
	}, nil
}

// Ping checks that the API is reachable and the token is accepted.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, apiEndpoint)
	return err
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err, strings.HasPrefix(c.baseURL, "https://"))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(err, strings.HasPrefix(c.baseURL, "https://"))
	}

	return body, nil
}
