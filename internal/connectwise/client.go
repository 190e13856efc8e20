// Package connectwise wraps the ConnectWise Manage REST API list endpoints
// with authentication, pagination and retry.
package connectwise

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	apiBasePath = "/v4_6_release/apis/3.0"

	// DefaultPageSize is the ConnectWise maximum page size.
	DefaultPageSize = 1000

	// DefaultIDBatchSize keeps "id in (...)" conditions under the request
	// size ceiling.
	DefaultIDBatchSize = 50

	defaultTimeout     = 120 * time.Second
	defaultMaxAttempts = 5

	retryInitialInterval = 2 * time.Second
)

// Credentials is the ConnectWise Manage credential bundle.
type Credentials struct {
	ServerURL  string
	CompanyID  string
	ClientID   string
	PublicKey  string
	PrivateKey string
}

// Validate reports every missing field at once so a misconfigured deployment
// fails with the full list instead of one field per restart.
func (c Credentials) Validate() error {
	missing := make([]string, 0, 5)
	if strings.TrimSpace(c.ServerURL) == "" {
		missing = append(missing, "server url")
	}
	if strings.TrimSpace(c.CompanyID) == "" {
		missing = append(missing, "company id")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		missing = append(missing, "client id")
	}
	if strings.TrimSpace(c.PublicKey) == "" {
		missing = append(missing, "public key")
	}
	if strings.TrimSpace(c.PrivateKey) == "" {
		missing = append(missing, "private key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// Client is a stateful ConnectWise API client. It owns one HTTP transport
// for its lifetime; callers release it with Close.
type Client struct {
	baseURL     string
	clientID    string
	authHeader  string
	maxAttempts int
	client      *http.Client
	log         *zap.Logger

	// retryInterval is shortened in tests.
	retryInterval time.Duration
}

// NewClient validates the credential bundle and builds a client.
func NewClient(creds Credentials, maxAttempts int, log *zap.Logger) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}

	token := creds.CompanyID + "+" + creds.PublicKey + ":" + creds.PrivateKey
	return &Client{
		baseURL:       strings.TrimRight(creds.ServerURL, "/") + apiBasePath,
		clientID:      creds.ClientID,
		authHeader:    "Basic " + base64.StdEncoding.EncodeToString([]byte(token)),
		maxAttempts:   maxAttempts,
		client:        &http.Client{Timeout: defaultTimeout},
		log:           log.Named("connectwise"),
		retryInterval: retryInitialInterval,
	}, nil
}

// List pages through a resource until an empty page and returns every record.
// A fields projection keeps payloads small when only a few attributes matter.
func (c *Client) List(ctx context.Context, resource, conditions, fields string, pageSize int) ([]gjson.Result, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var records []gjson.Result
	for page := 1; ; page++ {
		pageRecords, err := c.fetchPage(ctx, resource, conditions, fields, page, pageSize)
		if err != nil {
			return nil, err
		}
		if len(pageRecords) == 0 {
			break
		}
		records = append(records, pageRecords...)
	}
	return records, nil
}

// ListByIDs fetches records by identifier in fixed-size batches so the
// generated "id in (...)" condition stays under the request size limit.
func (c *Client) ListByIDs(ctx context.Context, resource string, ids []int64, fields string, batchSize int) ([]gjson.Result, error) {
	if batchSize <= 0 {
		batchSize = DefaultIDBatchSize
	}

	var records []gjson.Result
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		parts := make([]string, len(batch))
		for i, id := range batch {
			parts[i] = strconv.FormatInt(id, 10)
		}
		conditions := "id in (" + strings.Join(parts, ",") + ")"

		batchRecords, err := c.List(ctx, resource, conditions, fields, DefaultPageSize)
		if err != nil {
			return nil, err
		}
		records = append(records, batchRecords...)
	}
	return records, nil
}

// Close releases the client's idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

func (c *Client) fetchPage(ctx context.Context, resource, conditions, fields string, page, pageSize int) ([]gjson.Result, error) {
	values := url.Values{}
	values.Set("page", strconv.Itoa(page))
	values.Set("pageSize", strconv.Itoa(pageSize))
	if conditions != "" {
		values.Set("conditions", conditions)
	}
	if fields != "" {
		values.Set("fields", fields)
	}
	endpoint := c.baseURL + "/" + strings.TrimLeft(resource, "/") + "?" + values.Encode()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	var body []byte
	operation := func() error {
		var opErr error
		body, opErr = c.doRequest(ctx, endpoint)
		return opErr
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn("page fetch failed, retrying",
			zap.String("resource", resource),
			zap.Int("page", page),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)), ctx),
		notify,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s page %d: %w", ErrRequestFailed, resource, page, err)
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: list %s page %d: unexpected payload shape", ErrRequestFailed, resource, page)
	}
	return parsed.Array(), nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("clientId", c.clientID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}
