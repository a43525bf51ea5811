package utils

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"

	"onedl/internal"
)

// maxBodyBytes caps provider API responses read into memory
const maxBodyBytes = 8 << 20

// RetryConfig defines retry behavior configuration
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterPercent float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		JitterPercent: 0.1,
	}
}

// HTTPClientConfig contains configuration for the HTTP client
type HTTPClientConfig struct {
	Timeout           time.Duration
	ProxyURL          string
	UserAgent         string
	RequestsPerMinute int
	RetryConfig       *RetryConfig
}

// HTTPClient wraps http.Client with request pacing and retries of
// idempotent requests. Non-2xx responses are returned to the caller, which
// knows how to read the provider's error payload.
type HTTPClient struct {
	client      *http.Client
	userAgent   string
	pacer       *rate.Limiter
	retryConfig *RetryConfig
}

// NewHTTPClient creates a new HTTP client with default configuration
func NewHTTPClient() *HTTPClient {
	return NewHTTPClientWithConfig(&HTTPClientConfig{
		Timeout:     30 * time.Second,
		RetryConfig: DefaultRetryConfig(),
	})
}

// NewHTTPClientFromConfig builds the API client shared by all providers
func NewHTTPClientFromConfig(cfg *internal.Config) *HTTPClient {
	retry := DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries + 1

	return NewHTTPClientWithConfig(&HTTPClientConfig{
		Timeout:           time.Duration(cfg.Timeout) * time.Second,
		ProxyURL:          cfg.Proxy,
		UserAgent:         cfg.UserAgent,
		RequestsPerMinute: cfg.APIRequestsPerMinute,
		RetryConfig:       retry,
	})
}

// NewHTTPClientWithConfig creates a new HTTP client with custom configuration
func NewHTTPClientWithConfig(config *HTTPClientConfig) *HTTPClient {
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig()
	}
	if config.RetryConfig.MaxAttempts < 1 {
		config.RetryConfig.MaxAttempts = 1
	}
	if config.UserAgent == "" {
		config.UserAgent = "onedl/1.0"
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if config.ProxyURL != "" {
		if err := configureProxy(transport, config.ProxyURL); err != nil {
			internal.LogWarn("Failed to configure proxy %s: %v", config.ProxyURL, err)
		}
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	var pacer *rate.Limiter
	if config.RequestsPerMinute > 0 {
		pacer = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 5)
	}

	return &HTTPClient{
		client:      client,
		userAgent:   config.UserAgent,
		pacer:       pacer,
		retryConfig: config.RetryConfig,
	}
}

// configureProxy sets up proxy configuration for the transport
func configureProxy(transport *http.Transport, proxyURL string) error {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsedURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	case "socks5":
		var auth *proxy.Auth
		if parsedURL.User != nil {
			password, _ := parsedURL.User.Password()
			auth = &proxy.Auth{User: parsedURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsedURL.Scheme)
	}

	return nil
}

// UserAgent returns the User-Agent sent with every request
func (c *HTTPClient) UserAgent() string {
	return c.userAgent
}

// NewRequest builds a request carrying the client's User-Agent
func (c *HTTPClient) NewRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Get performs a GET request with retry logic
func (c *HTTPClient) Get(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return c.Send(req)
}

// PostForm sends an urlencoded form. POSTs are never retried.
func (c *HTTPClient) PostForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodPost, rawURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return c.Send(req)
}

// FormFile is a file part of a multipart upload
type FormFile struct {
	Field    string
	Filename string
	Data     []byte
}

// PostMultipart sends fields and an optional file as multipart/form-data
func (c *HTTPClient) PostMultipart(ctx context.Context, rawURL string, fields map[string]string, file *FormFile, headers map[string]string) (*http.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", key, err)
		}
	}
	if file != nil {
		fw, err := mw.CreateFormFile(file.Field, file.Filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := fw.Write(file.Data); err != nil {
			return nil, fmt.Errorf("failed to write form file: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	req, err := c.NewRequest(ctx, http.MethodPost, rawURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return c.Send(req)
}

// Send executes req. GET, HEAD and DELETE are retried on transport
// errors, 429 and 5xx; the last response is returned as is. Transport
// failures become TransientNetwork errors.
func (c *HTTPClient) Send(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	internal.GetLogger().LogHTTPRequest(req)

	attempts := 1
	if isIdempotent(req.Method) {
		attempts = c.retryConfig.MaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, c.calculateDelay(attempt)); err != nil {
				return nil, err
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("failed to rewind request body: %w", err)
				}
				req.Body = body
			}
		}

		if c.pacer != nil {
			if err := c.pacer.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, internal.NewRateLimitError(1).WithCause(err)
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = internal.NewTransientNetworkError(req.Method+" "+req.URL.Host, err).WithURL(req.URL.String())
			continue
		}

		internal.GetLogger().LogHTTPResponse(resp)

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if !retryable || attempt == attempts-1 {
			return resp, nil
		}

		if wait := retryAfter(resp); wait > 0 {
			resp.Body.Close()
			if err := sleepContext(ctx, wait); err != nil {
				return nil, err
			}
		} else {
			resp.Body.Close()
		}
		lastErr = internal.NewProviderError(resp.StatusCode, "retryable status", internal.ErrUnexpectedResponse)
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		return true
	}
	return false
}

// retryAfter honors a numeric Retry-After header up to 30s
func retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	if secs > 30 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// calculateDelay calculates the delay for the next retry attempt
func (c *HTTPClient) calculateDelay(attempt int) time.Duration {
	delay := float64(c.retryConfig.BaseDelay) * math.Pow(c.retryConfig.Multiplier, float64(attempt-1))

	jitter := delay * c.retryConfig.JitterPercent * (rand.Float64()*2 - 1)
	delay += jitter

	if delay > float64(c.retryConfig.MaxDelay) {
		delay = float64(c.retryConfig.MaxDelay)
	}
	if delay < 0 {
		delay = float64(c.retryConfig.BaseDelay)
	}

	return time.Duration(delay)
}

// ReadBody reads and closes resp.Body
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, internal.NewTransientNetworkError("reading response body", err)
	}
	return data, nil
}

// ReadJSON decodes resp.Body into out and closes it. Undecodable payloads
// are UnexpectedResponse errors carrying the HTTP status.
func ReadJSON(resp *http.Response, out interface{}) error {
	data, err := ReadBody(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return internal.NewProviderError(resp.StatusCode, fmt.Sprintf("invalid JSON response: %v", err), internal.ErrUnexpectedResponse).
			WithCause(err).
			WithContext("body", truncate(string(data), 200))
	}
	return nil
}

// StatusError maps an HTTP status without a usable error payload to the
// error taxonomy.
func StatusError(provider string, resp *http.Response) *internal.ProviderError {
	code := resp.StatusCode
	var pe *internal.ProviderError
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		pe = internal.NewProviderError(code, "authentication failed", internal.ErrAuthRequired)
	case code == http.StatusNotFound:
		pe = internal.NewProviderError(code, "not found", internal.ErrNotFound)
	case code == http.StatusTooManyRequests:
		pe = internal.NewRateLimitError(int(retryAfter(resp) / time.Second))
	default:
		pe = internal.NewProviderError(code, fmt.Sprintf("unexpected HTTP status %s", resp.Status), internal.ErrUnexpectedResponse)
	}
	return pe.WithProvider(provider)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
