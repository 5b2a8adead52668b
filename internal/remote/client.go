// Package remote fetches entity collections from the field-sales backend.
//
// One authenticated HTTP call per entity kind. Failures are classified so the
// sync orchestrator can tell an auth problem (fatal for the whole cycle) from
// a transient per-kind failure (network error, timeout, 5xx).
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/fieldaxis/fieldsync/internal/model"
)

// ErrUnauthorized marks an authentication failure (401/403). The orchestrator
// aborts the whole cycle on this error.
var ErrUnauthorized = errors.New("remote: unauthorized")

// TokenSource provides the bearer credential for API calls.
// Secure storage of the credential is the application's concern, not ours.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource wrapping a fixed credential.
type StaticToken string

func (s StaticToken) Token() (string, error) {
	if s == "" {
		return "", fmt.Errorf("no API token configured")
	}
	return string(s), nil
}

// Client performs the per-kind fetch calls.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a fetch client.
//
// timeout bounds each fetch call end to end; a timeout surfaces as an
// ordinary per-kind fetch error. If logger is nil a no-op logger is used.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// envelope is the backend's standard list response.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

// FetchRecords retrieves all records of one kind.
//
// Returns ErrUnauthorized (wrapped) on 401/403. Every other failure -
// transport error, timeout, non-2xx status, malformed body - is a plain
// error the caller treats as isolated to this kind.
func (c *Client) FetchRecords(ctx context.Context, kind model.Kind) ([]model.Record, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	endpoint, err := url.JoinPath(c.baseURL, "api", "v1", string(kind))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s failed: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: server returned %d", ErrUnauthorized, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s failed: server returned %d", kind, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s failed reading body: %w", kind, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("fetch %s returned malformed response: %w", kind, err)
	}
	if !env.Success {
		return nil, fmt.Errorf("fetch %s rejected by server: %s", kind, env.Message)
	}

	records, err := decodeRecords(kind, env.Data)
	if err != nil {
		return nil, fmt.Errorf("fetch %s returned malformed data: %w", kind, err)
	}

	c.logger.Debug("fetched records",
		zap.String("kind", string(kind)),
		zap.Int("count", len(records)),
		zap.Duration("elapsed", time.Since(start)))

	return records, nil
}

// decodeRecords unmarshals the data array into the kind's concrete type.
func decodeRecords(kind model.Kind, data json.RawMessage) ([]model.Record, error) {
	if len(data) == 0 {
		return nil, nil
	}

	switch kind {
	case model.KindLeads:
		var leads []*model.Lead
		if err := json.Unmarshal(data, &leads); err != nil {
			return nil, err
		}
		records := make([]model.Record, len(leads))
		for i, l := range leads {
			records[i] = l
		}
		return records, nil

	case model.KindCustomers:
		var customers []*model.Customer
		if err := json.Unmarshal(data, &customers); err != nil {
			return nil, err
		}
		records := make([]model.Record, len(customers))
		for i, c := range customers {
			records[i] = c
		}
		return records, nil

	case model.KindQuotations:
		var quotations []*model.Quotation
		if err := json.Unmarshal(data, &quotations); err != nil {
			return nil, err
		}
		records := make([]model.Record, len(quotations))
		for i, q := range quotations {
			records[i] = q
		}
		return records, nil
	}

	return nil, fmt.Errorf("unknown entity kind: %q", kind)
}

// Probe is a synchronous connectivity check. It must return quickly; the
// orchestrator calls it before taking the sync lock.
type Probe func() bool

// DialProbe returns a Probe that attempts a TCP dial to the API host with a
// short timeout. Good enough to distinguish "radio off" from "server slow".
func DialProbe(baseURL string, timeout time.Duration) Probe {
	return func() bool {
		u, err := url.Parse(baseURL)
		if err != nil {
			return false
		}
		host := u.Host
		if u.Port() == "" {
			switch u.Scheme {
			case "https":
				host = net.JoinHostPort(u.Hostname(), "443")
			default:
				host = net.JoinHostPort(u.Hostname(), "80")
			}
		}
		conn, err := net.DialTimeout("tcp", host, timeout)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}
