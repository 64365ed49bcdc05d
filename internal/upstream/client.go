// Package upstream talks to the external catalog, booking and calendar
// services over HTTP+JSON.
package upstream

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

	"bookfront/internal/config"
	"bookfront/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const maxErrorBody = 64 << 10

// Client is the shared HTTP transport: API-key headers, optional Redis cache
// for GET endpoints, retries for GETs only.
type Client struct {
	service    string
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client
	retry      RetryPolicy
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client for one upstream service. service names the
// service in logs and metrics.
func NewClient(service, baseURL string, cfg config.UpstreamConfig, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		apiExtra:   cfg.APIExtra,
		httpClient: &http.Client{Timeout: timeout},
		retry:      DefaultRetryPolicy(cfg.MaxRetries),
		logger:     logger,
	}
}

// UseRedisCache configures optional Redis caching for GET endpoints.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

func (c *Client) SetRetryPolicy(p RetryPolicy) {
	c.retry = p
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("upstream cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("upstream cache write failed")
	}
}

func (c *Client) dropCache(ctx context.Context, pattern string) {
	if c.redis == nil {
		return
	}
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		_ = c.redis.Del(ctx, iter.Val()).Err()
	}
}

// getJSON is retried per the client's RetryPolicy.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	return c.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		c.addHeaders(req)
		return c.do(req, out)
	})
}

// postJSON is never retried: a write may have been applied even when the
// reply was lost.
func (c *Client) postJSON(ctx context.Context, endpoint string, body, out any, headers map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(c.service, "error", time.Since(start))
		c.logger.Warn().Err(err).Str("service", c.service).Str("method", req.Method).
			Str("path", req.URL.Path).Msg("upstream request failed")
		return err
	}
	defer resp.Body.Close()
	metrics.ObserveUpstream(c.service, fmt.Sprintf("%dxx", resp.StatusCode/100), time.Since(start))

	if resp.StatusCode >= 300 {
		herr := decodeHTTPError(resp)
		c.logger.Warn().Int("status", resp.StatusCode).Str("service", c.service).Str("method", req.Method).
			Str("path", req.URL.Path).Str("code", herr.Code).Msg("upstream returned error")
		return herr
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.service, err)
	}
	return nil
}

func decodeHTTPError(resp *http.Response) *HTTPError {
	herr := &HTTPError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return herr
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if json.Unmarshal(raw, &body) == nil {
		herr.Code = body.Code
		herr.Message = body.Error
		if herr.Message == "" {
			herr.Message = body.Message
		}
	}
	return herr
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
	req.Header.Set("Accept", "application/json")
}
