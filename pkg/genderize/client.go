// Package genderize guesses a person's gender from a first name using a
// genderize.io compatible HTTP API.
package genderize

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"

	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

const (
	DefaultEndpoint   = "https://api.genderize.io"
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 5

	// maxResponseSize bounds the body read from the API.
	maxResponseSize = 64 * 1024
)

type Config struct {
	Endpoint       string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Endpoint:       DefaultEndpoint,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// Guess is the inferred gender of a name. Gender is nil when the API has no
// answer; Accuracy is a percentage.
type Guess struct {
	Name     string  `json:"name"`
	Gender   *string `json:"gender"`
	Accuracy *int    `json:"accuracy"`
}

type response struct {
	Name        string   `json:"name"`
	Gender      *string  `json:"gender"`
	Probability *float64 `json:"probability"`
	Count       int      `json:"count"`
}

type Client struct {
	client *http.Client
	config Config
	logger ectologger.Logger
}

func NewClient(cfg Config, logger ectologger.Logger) *Client {
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}

	return &Client{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		logger: logger,
	}
}

// FirstName returns the first word of a full name, which is what the API
// classifies.
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Guess asks the API for the gender of name. Rate limiting and server
// errors are retried with exponential backoff.
func (c *Client) Guess(ctx context.Context, name string) (*Guess, error) {
	ctx, span := tracing.StartSpan(ctx, "genderize.Client.Guess")
	defer span.End()

	first := FirstName(name)
	if first == "" {
		return nil, fmt.Errorf("name is empty")
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialBackoff
	bo.MaxInterval = c.config.MaxBackoff

	var guess *Guess
	op := func() error {
		var err error
		guess, err = c.fetch(ctx, first)
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"name": first,
			"wait": wait.String(),
		}).Warn("Genderize request failed, retrying")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("name", first).Error("Failed to guess gender")
		return nil, err
	}
	return guess, nil
}

func (c *Client) fetch(ctx context.Context, name string) (*Guess, error) {
	params := url.Values{}
	params.Set("name", name)
	if c.config.APIKey != "" {
		params.Set("apikey", c.config.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("genderize returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("genderize returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode genderize response: %w", err))
	}

	guess := &Guess{Name: name, Gender: r.Gender}
	if r.Gender != nil && r.Probability != nil {
		acc := int(math.Round(*r.Probability * 100))
		if acc < 1 {
			acc = 1
		}
		guess.Accuracy = &acc
	}
	return guess, nil
}
