package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// checkFunc validates a non-transport response.
type checkFunc func(status int, body []byte) error

// poster sends JSON payloads with exponential backoff on retryable failures.
type poster struct {
	client        *http.Client
	maxRetries    int
	retryDelay    time.Duration
	retryMaxDelay time.Duration
	logger        *slog.Logger
}

func newPoster(cfg Config, client *http.Client, logger *slog.Logger) *poster {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &poster{
		client:        client,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		retryMaxDelay: cfg.RetryMaxDelay,
		logger:        logger,
	}
}

func (p *poster) post(ctx context.Context, url string, payload []byte, check checkFunc) error {
	var lastErr error
	delay := p.retryDelay

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrContextCanceled, ctx.Err())
			case <-time.After(delay):
				delay = time.Duration(math.Min(float64(delay*2), float64(p.retryMaxDelay)))
			}
			p.logger.Debug("retrying notification", "attempt", attempt, "max_retries", p.maxRetries, "error", lastErr)
		}

		err := p.do(ctx, url, payload, check)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

func (p *poster) do(ctx context.Context, url string, payload []byte, check checkFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWebhookFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrWebhookFailed, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status=%d", ErrWebhookFailed, resp.StatusCode)
	}
	return check(resp.StatusCode, body)
}

// isRetryable reports whether err is a rate limit or a transport/server failure.
func isRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrWebhookFailed)
}
