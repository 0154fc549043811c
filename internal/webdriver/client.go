package webdriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/resilience"
)

// Config configures the driver connection.
type Config struct {
	URL            string        // driver base URL, e.g. http://127.0.0.1:9515
	CommandTimeout time.Duration // bound on every single command
	RateLimit      float64       // commands per second, 0 = unlimited
	Retries        int           // transport retries for idempotent commands

	// BreakerThreshold consecutive transport failures stop further session
	// commands for BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultConfig returns a configuration for a driver at url.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		CommandTimeout:   10 * time.Second,
		Retries:          2,
		BreakerThreshold: 3,
		BreakerCooldown:  2 * time.Second,
	}
}

// Client talks to one WebDriver server.
type Client struct {
	cfg     Config
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *logging.Logger
}

// New creates a client for the driver described by cfg.
func New(cfg Config, logger *logging.Logger) *Client {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}

	// The pooled transport tuned by retryablehttp; retry policy itself is
	// resty's, restricted to idempotent commands below.
	pooled := retryablehttp.NewClient()
	pooled.Logger = nil

	r := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTransport(pooled.HTTPClient.Transport).
		SetTimeout(cfg.CommandTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetHeader("User-Agent", "webview-isolation/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(50 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(retryIdempotent)

	c := &Client{
		cfg:     cfg,
		resty:   r,
		limiter: newLimiter(cfg.RateLimit),
		logger:  logging.OrNop(logger).Component("webdriver"),
	}
	c.breaker = resilience.New("webdriver "+cfg.URL, resilience.Settings{
		Threshold: cfg.BreakerThreshold,
		Cooldown:  cfg.BreakerCooldown,
		IsFailure: isTransportFailure,
		OnStateChange: func(name string, from, to resilience.State) {
			c.logger.Warn("driver circuit changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// isTransportFailure reports errors that mean the driver did not answer. A
// protocol error is an answer.
func isTransportFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var wdErr *Error
	return !errors.As(err, &wdErr)
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func retryIdempotent(resp *resty.Response, err error) bool {
	if err == nil || resp == nil || resp.Request == nil {
		return false
	}
	switch resp.Request.Method {
	case http.MethodGet, http.MethodDelete:
		return true
	}
	return false
}

// URL returns the driver base URL.
func (c *Client) URL() string {
	return c.cfg.URL
}

// envelope is the body of every WebDriver response.
type envelope struct {
	Value     json.RawMessage `json:"value"`
	SessionID string          `json:"sessionId,omitempty"`
	Status    *int            `json:"status,omitempty"`
}

type wireError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do sends one command through the breaker.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) (*envelope, error) {
	var env *envelope
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		env, err = c.send(ctx, method, path, body, out)
		return err
	})
	return env, err
}

// send sends one command and decodes its value into out (when non-nil).
func (c *Client) send(ctx context.Context, method, path string, body any, out any) (*envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
	defer cancel()

	req := c.resty.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("webdriver %s %s: %w", method, path, err)
	}

	c.logger.Debug("command",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", time.Since(start)),
	)

	var env envelope
	if raw := resp.Body(); len(raw) > 0 {
		if err := sonic.Unmarshal(raw, &env); err != nil {
			return nil, &Error{
				Status:  resp.StatusCode(),
				Code:    CodeUnknownError,
				Message: fmt.Sprintf("undecodable response to %s %s: %v", method, path, err),
			}
		}
	}

	if wdErr := decodeError(resp.StatusCode(), &env); wdErr != nil {
		return nil, wdErr
	}

	if out != nil && len(env.Value) > 0 {
		if err := sonic.Unmarshal(env.Value, out); err != nil {
			return nil, fmt.Errorf("decode %s %s value: %w", method, path, err)
		}
	}
	return &env, nil
}

func decodeError(status int, env *envelope) *Error {
	legacy := env.Status != nil && *env.Status != 0
	if status < 400 && !legacy {
		return nil
	}

	var we wireError
	if len(env.Value) > 0 {
		_ = sonic.Unmarshal(env.Value, &we)
	}

	code := we.Error
	if code == "" && legacy {
		code = legacyCodes[*env.Status]
	}
	if code == "" {
		code = CodeUnknownError
	}
	return &Error{Status: status, Code: code, Message: we.Message}
}

// Status reports whether the driver is ready to create sessions.
func (c *Client) Status(ctx context.Context) (bool, string, error) {
	var status struct {
		Ready   *bool  `json:"ready"`
		Message string `json:"message"`
	}
	// Readiness polls expect a driver that is not up yet; they bypass the
	// breaker.
	if _, err := c.send(ctx, http.MethodGet, "/status", nil, &status); err != nil {
		return false, "", err
	}
	// Legacy drivers omit ready; answering at all means ready.
	if status.Ready == nil {
		return true, status.Message, nil
	}
	return *status.Ready, status.Message, nil
}

// Capabilities is a W3C capabilities object.
type Capabilities map[string]any

// ElectronCapabilities asks chromedriver to launch the Electron binary with
// args.
func ElectronCapabilities(binary string, args []string) Capabilities {
	opts := map[string]any{}
	if binary != "" {
		opts["binary"] = binary
	}
	if len(args) > 0 {
		opts["args"] = args
	}
	return Capabilities{
		"browserName":        "chrome",
		"goog:chromeOptions": opts,
	}
}

// NewSession creates a session. For Electron this launches the application.
func (c *Client) NewSession(ctx context.Context, caps Capabilities) (*Session, error) {
	body := map[string]any{
		"capabilities":        map[string]any{"alwaysMatch": caps},
		"desiredCapabilities": caps,
	}

	var created struct {
		SessionID    string         `json:"sessionId"`
		Capabilities map[string]any `json:"capabilities"`
	}
	env, err := c.do(ctx, http.MethodPost, "/session", body, &created)
	if err != nil {
		return nil, err
	}

	id := created.SessionID
	if id == "" {
		id = env.SessionID
	}
	if id == "" {
		return nil, &Error{Code: CodeSessionNotCreated, Message: "driver returned no session id"}
	}

	c.logger.Info("session created", zap.String("session", id))
	return &Session{client: c, ID: id, Capabilities: created.Capabilities}, nil
}
