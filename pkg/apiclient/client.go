// Package apiclient provides the action-protocol client used by
// rangectl. It speaks to either listener: bearer tokens against the
// public one, a client certificate against the private one.
package apiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rangelabs/rangecloud/internal/cli/health"
	"github.com/rangelabs/rangecloud/pkg/models"
)

// Config selects the server and the credentials to present.
type Config struct {
	// BaseURL is the listener root, e.g. https://cloud.example.com:8443.
	BaseURL string

	// Executor is the user actions run as. Left empty, the server
	// treats the caller as guest.
	Executor string

	// Token is a single-shot bearer token for the public listener.
	Token string

	// ClientCert and ClientKey enable mutual TLS against the private
	// listener.
	ClientCert string
	ClientKey  string

	// CACert pins the server certificate chain.
	CACert string

	// Insecure skips server certificate verification.
	Insecure bool

	Timeout time.Duration
}

// Client posts action messages to one listener.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a client from the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.Insecure, //nolint:gosec
	}

	if cfg.CACert != "" {
		caPEM, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate %q: %w", cfg.CACert, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no usable certificates in %q", cfg.CACert)
		}
		tlsCfg.RootCAs = pool
	}

	if cfg.ClientCert != "" || cfg.ClientKey != "" {
		pair, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client key pair: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{pair}
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		},
	}, nil
}

// Resolve posts one action and returns the server's reply message. The
// reply may itself carry an error type; Call converts those to errors.
func (c *Client) Resolve(ctx context.Context, action models.Action) (models.Action, error) {
	if action.Executor == "" {
		action.Executor = c.cfg.Executor
	}

	raw, err := json.Marshal(action)
	if err != nil {
		return models.Action{}, fmt.Errorf("failed to marshal action: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/api/v1/actions", bytes.NewReader(raw))
	if err != nil {
		return models.Action{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Action{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Action{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr APIError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			apiErr.StatusCode = resp.StatusCode
			return models.Action{}, &apiErr
		}
		return models.Action{}, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	var reply models.Action
	if err := json.Unmarshal(respBody, &reply); err != nil {
		return models.Action{}, fmt.Errorf("failed to parse reply: %w", err)
	}
	return reply, nil
}

// Call resolves an action and converts an error reply into an
// *ActionError. On success the reply payload is returned.
func (c *Client) Call(ctx context.Context, action models.Action) (models.Action, error) {
	reply, err := c.Resolve(ctx, action)
	if err != nil {
		return models.Action{}, err
	}
	if reply.IsError() {
		return models.Action{}, &ActionError{Type: reply.ErrorType, Message: reply.Data}
	}
	return reply, nil
}

// call resolves an action and decodes the reply payload into result
// when result is non-nil.
func (c *Client) call(ctx context.Context, action models.Action, result any) error {
	reply, err := c.Call(ctx, action)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(reply.Data), result); err != nil {
		return fmt.Errorf("failed to parse %s reply: %w", action.Name, err)
	}
	return nil
}

// Health probes the listener's health endpoint.
func (c *Client) Health(ctx context.Context) (health.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return health.Response{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return health.Response{}, fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return health.Response{}, &APIError{StatusCode: resp.StatusCode, Message: "server not healthy"}
	}

	var body health.Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return health.Response{}, fmt.Errorf("failed to parse health response: %w", err)
	}
	return body, nil
}
