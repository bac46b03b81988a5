// Package dealer reads entity signals and marketing spend from the dealer
// data API.
package dealer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/dealerai/backend/internal/contracts"
	"github.com/wonny/dealerai/backend/pkg/config"
	"github.com/wonny/dealerai/backend/pkg/httputil"
	"github.com/wonny/dealerai/backend/pkg/logger"
	"github.com/wonny/dealerai/backend/pkg/redis"
)

// periodLayout 기간 파라미터 형식
const periodLayout = "2006-01-02"

// Client implements contracts.SignalSource and contracts.SpendLedger
// ⭐ SSOT: 딜러 데이터 API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

var (
	_ contracts.SignalSource = (*Client)(nil)
	_ contracts.SpendLedger  = (*Client)(nil)
)

// NewClient creates a new dealer API client
func NewClient(httpClient *httputil.Client, baseURL string, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// NewFromConfig builds the HTTP client (rate limit, auth header, shared
// redis limiter) and the dealer client on top of it
func NewFromConfig(cfg config.SignalsConfig, limiter *redis.RateLimiter, log *logger.Logger) *Client {
	hc := httputil.New("dealer-signals", cfg.Timeout, log).
		WithRate(cfg.RequestsPerSec, cfg.Burst).
		WithHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		hc = hc.WithHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	if limiter != nil && cfg.RequestsPerSec > 0 {
		hc = hc.WithRateLimiter(limiter, redis.RateLimitConfig{
			Key:    "dealer-signals",
			Limit:  int(cfg.RequestsPerSec),
			Window: time.Second,
		})
	}
	return NewClient(hc, cfg.BaseURL, log)
}

type snapshotsResponse struct {
	Entities []contracts.EntitySnapshot `json:"entities"`
}

type spendResponse struct {
	Channels []contracts.SpendChannel `json:"channels"`
}

// FetchSnapshots returns the entity snapshots of a tenant period
func (c *Client) FetchSnapshots(ctx context.Context, tenant string, period time.Time) ([]contracts.EntitySnapshot, error) {
	var resp snapshotsResponse
	if err := c.get(ctx, tenant, "signals", period, &resp); err != nil {
		return nil, err
	}

	for i := range resp.Entities {
		if resp.Entities[i].Source == "" {
			resp.Entities[i].Source = "api"
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"tenant":   tenant,
		"period":   period.Format(periodLayout),
		"entities": len(resp.Entities),
	}).Debug("Fetched entity snapshots")

	return resp.Entities, nil
}

// FetchSpend returns per-channel spend of a tenant period
func (c *Client) FetchSpend(ctx context.Context, tenant string, period time.Time) ([]contracts.SpendChannel, error) {
	var resp spendResponse
	if err := c.get(ctx, tenant, "spend", period, &resp); err != nil {
		return nil, err
	}

	for _, ch := range resp.Channels {
		if ch.Name == "" {
			return nil, contracts.ValidationError{Field: "channels.name", Message: "required"}
		}
		if ch.Spend < 0 || ch.Results < 0 || ch.Revenue < 0 {
			return nil, contracts.ValidationError{Field: "channels." + ch.Name, Message: "negative amounts"}
		}
	}
	return resp.Channels, nil
}

func (c *Client) get(ctx context.Context, tenant, resource string, period time.Time, dest interface{}) error {
	if tenant == "" {
		return contracts.ValidationError{Field: "tenant", Message: "required"}
	}

	params := url.Values{}
	params.Set("period", period.UTC().Format(periodLayout))
	fullURL := fmt.Sprintf("%s/v1/tenants/%s/%s?%s", c.baseURL, url.PathEscape(tenant), resource, params.Encode())

	err := c.httpClient.GetJSON(ctx, fullURL, dest)
	var statusErr *httputil.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s for %s: %w", resource, tenant, contracts.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("fetch %s: %w", resource, err)
	}
	return nil
}
