package notify

import "errors"

var (
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrRateLimited        = errors.New("notification rate limited")
	ErrInvalidResponse    = errors.New("invalid response from notification endpoint")
	ErrWebhookFailed      = errors.New("webhook request failed")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrContextCanceled    = errors.New("context canceled")
)
