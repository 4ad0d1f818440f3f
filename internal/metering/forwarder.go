// Package metering forwards usage records to a remote billing endpoint.
package metering

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/clinical-decision-support-server/internal/domain"
)

// ErrRejected is returned when the endpoint answers with a non-2xx status.
var ErrRejected = errors.New("usage record rejected")

// Forwarder posts each usage record as JSON. Calls are rate limited and wrapped in a
// circuit breaker so an unavailable billing service fails fast.
type Forwarder struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewForwarder creates a forwarder from the metering configuration
func NewForwarder(config domain.MeteringConfig, logger *logrus.Logger) (*Forwarder, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("metering endpoint is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 50
	}

	settings := gobreaker.Settings{
		Name:        "UsageMetering",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &Forwarder{
		endpoint: config.Endpoint,
		apiKey:   config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimit),
		breaker:   gobreaker.NewCircuitBreaker(settings),
		logger:    logger,
	}, nil
}

// RecordUsage sends one record. It blocks while the rate limiter is exhausted.
func (f *Forwarder) RecordUsage(ctx context.Context, record *domain.UsageRecord) error {
	if record == nil {
		return domain.NewValidationError("record", "usage record is required", nil)
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal usage record: %w", err)
	}

	if err := f.rateLimit.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	_, err = f.breaker.Execute(func() (interface{}, error) {
		return nil, f.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("forwarding usage for tenant %s: %w", record.TenantID, err)
	}

	f.logger.WithFields(logrus.Fields{
		"tenant_id":     record.TenantID,
		"endpoint":      record.Endpoint,
		"compute_units": record.ComputeUnits,
	}).Debug("Usage record forwarded")
	return nil
}

// State exposes the breaker state for health reporting
func (f *Forwarder) State() gobreaker.State {
	return f.breaker.State()
}

func (f *Forwarder) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}
