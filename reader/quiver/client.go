package quiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"congressflow/config"
	"congressflow/logger"

	"golang.org/x/time/rate"
)

// ErrNoData reports that the provider has no rows for the requested
// entity. A 404 is not a failure and is never retried.
var ErrNoData = errors.New("no data for requested path")

// Client is the rate-limited, retrying HTTP client for the QuiverQuant
// API. A single Client is shared by every fetch worker so the request
// quota is enforced process-wide.
type Client struct {
	config  *config.Config
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
	baseURL string
	token   string
	sleep   func(time.Duration)
}

// NewClient creates a Client from configuration. The connection pool is
// tuned from config and the limiter is sized to the configured quota.
func NewClient(cfg *config.Config) *Client {
	log := logger.GetLogger()

	transport := &http.Transport{
		MaxIdleConns:        cfg.Quiver.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Quiver.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.Quiver.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.Quiver.ConnectionPool.IdleConnTimeout,
		DisableCompression:  false,
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.Quiver.Timeout,
	}

	rl := cfg.Quiver.RateLimit
	requests := rl.Requests
	if requests <= 0 {
		requests = 10
	}
	window := rl.Window
	if window <= 0 {
		window = time.Second
	}
	burst := rl.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(float64(requests)/window.Seconds()), burst)

	client := &Client{
		config:  cfg,
		http:    httpClient,
		limiter: limiter,
		log:     log,
		baseURL: strings.TrimRight(cfg.Quiver.BaseURL, "/"),
		token:   cfg.Quiver.Token,
		sleep:   time.Sleep,
	}

	log.WithComponent("quiver_client").WithFields(logger.Fields{
		"base_url":            client.baseURL,
		"requests_per_window": requests,
		"window":              window.String(),
		"max_attempts":        cfg.Quiver.Retry.MaxAttempts,
	}).Info("quiver client initialized")

	return client
}

// Get fetches the given API path. Transient failures are retried with a
// backoff sleep up to the configured attempt bound; exhausting the bound
// surfaces the last error to the caller, who owns per-entity isolation.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	log := c.log.WithComponent("quiver_client").WithFields(logger.Fields{"path": path})

	retry := c.config.Quiver.Retry
	attempts := retry.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	delay := retry.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}

	reqURL := c.baseURL + "/" + strings.TrimLeft(path, "/")

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		body, retryable, err := c.doOnce(ctx, reqURL)
		if err == nil {
			logger.IncrementFetch(len(body))
			return body, nil
		}
		if !retryable {
			return nil, err
		}

		lastErr = err
		log.WithError(err).WithFields(logger.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("request failed, backing off")

		if attempt == attempts {
			break
		}
		c.sleep(delay)
		if retry.BackoffMultiplier > 1 {
			delay *= time.Duration(retry.BackoffMultiplier)
			if retry.MaxDelay > 0 && delay > retry.MaxDelay {
				delay = retry.MaxDelay
			}
		}
	}

	return nil, fmt.Errorf("giving up on %s after %d attempts: %w", path, attempts, lastErr)
}

// doOnce performs a single authenticated request. The second return value
// reports whether the failure is retryable.
func (c *Client) doOnce(ctx context.Context, reqURL string) ([]byte, bool, error) {
	resp, err := c.send(ctx, reqURL)
	if err != nil {
		return nil, true, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		logger.IncrementNoData()
		c.log.WithComponent("quiver_client").WithFields(logger.Fields{"url": reqURL}).Info("provider returned 404, no data")
		return nil, false, ErrNoData

	case resp.StatusCode == http.StatusUnauthorized:
		// The provider answers some authenticated requests with a 401
		// carrying the real target in Location; the redirect must be
		// replayed with credentials intact. Exactly one replay.
		io.Copy(io.Discard, resp.Body)
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, false, fmt.Errorf("unauthorized response from %s", reqURL)
		}
		redirected, err := url.Parse(location)
		if err != nil {
			return nil, false, fmt.Errorf("unauthorized redirect target invalid: %w", err)
		}
		base, _ := url.Parse(reqURL)
		target := base.ResolveReference(redirected).String()

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, false, fmt.Errorf("rate limiter wait: %w", err)
		}
		replay, err := c.send(ctx, target)
		if err != nil {
			return nil, false, fmt.Errorf("unauthorized redirect replay failed: %w", err)
		}
		defer replay.Body.Close()
		if replay.StatusCode < 200 || replay.StatusCode > 299 {
			io.Copy(io.Discard, replay.Body)
			return nil, false, fmt.Errorf("unauthorized after redirect replay: %s", replay.Status)
		}
		body, err := io.ReadAll(replay.Body)
		if err != nil {
			return nil, true, fmt.Errorf("failed to read redirect response body: %w", err)
		}
		return body, false, nil

	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, fmt.Errorf("failed to read response body: %w", err)
		}
		return body, false, nil

	default:
		io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("unexpected status %s", resp.Status)
	}
}

func (c *Client) send(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.http.Do(req)
}
