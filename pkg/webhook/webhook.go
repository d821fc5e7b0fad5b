// Package webhook implements retrying HTTP delivery of task events to configured webhook targets,
// matching original_source's webhook.rs retry/backoff/signing contract.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/weightwave/taskcast/pkg/taskcast"
)

// Deliverer implements taskcast.WebhookDeliverer over net/http.
type Deliverer struct {
	client *http.Client
}

// New constructs a Deliverer. A nil client uses http.DefaultClient as the base (per-attempt
// timeouts are still applied via context, since RetryConfig.TimeoutMs can vary per webhook).
func New(client *http.Client) *Deliverer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Deliverer{client: client}
}

// DeliveryFailedError is returned when every retry attempt fails.
type DeliveryFailedError struct {
	Attempts int
	Message  string
}

func (e *DeliveryFailedError) Error() string {
	return fmt.Sprintf("webhook delivery failed after %d attempts: %s", e.Attempts, e.Message)
}

// Deliver sends event to webhook.URL, retrying per webhook.Retry (or DefaultRetryConfig if unset).
// A filter mismatch is a silent no-op, not an error, matching the source's pre-retry-loop filter
// check.
func (d *Deliverer) Deliver(ctx context.Context, webhook taskcast.WebhookConfig, event taskcast.TaskEvent) error {
	if !taskcast.MatchesFilter(event, webhook.Filter) {
		return nil
	}

	retry := taskcast.DefaultRetryConfig()
	if webhook.Retry != nil {
		retry = mergeRetry(retry, *webhook.Retry)
	}

	body, timestamp, err := buildBody(webhook, event)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= retry.Retries; attempt++ {
		if attempt > 0 {
			delay := BackoffMs(retry.Backoff, attempt, retry.InitialDelayMs, retry.MaxDelayMs)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(delay) * time.Millisecond):
			}
		}

		if err := send(ctx, d.client, webhook, body, timestamp, retry.TimeoutMs); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return &DeliveryFailedError{Attempts: retry.Retries + 1, Message: lastErr.Error()}
}

func mergeRetry(base, override taskcast.RetryConfig) taskcast.RetryConfig {
	merged := base
	if override.Retries != 0 {
		merged.Retries = override.Retries
	}
	if override.Backoff != "" {
		merged.Backoff = override.Backoff
	}
	if override.InitialDelayMs != 0 {
		merged.InitialDelayMs = override.InitialDelayMs
	}
	if override.MaxDelayMs != 0 {
		merged.MaxDelayMs = override.MaxDelayMs
	}
	if override.TimeoutMs != 0 {
		merged.TimeoutMs = override.TimeoutMs
	}
	return merged
}

func buildBody(webhook taskcast.WebhookConfig, event taskcast.TaskEvent) ([]byte, int64, error) {
	wrap := true
	if webhook.Wrap != nil {
		wrap = *webhook.Wrap
	}
	var payload any = event
	if wrap {
		payload = taskcast.FilteredEvent{RawIndex: event.Index, Event: event}.ToEnvelope()
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	return b, time.Now().UnixMilli(), nil
}

func send(ctx context.Context, client *http.Client, webhook taskcast.WebhookConfig, body []byte, timestamp int64, timeoutMs int64) error {
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Taskcast-Event", "true")
	req.Header.Set("X-Taskcast-Timestamp", fmt.Sprintf("%d", timestamp))
	if webhook.Secret != "" {
		req.Header.Set("X-Taskcast-Signature", sign(webhook.Secret, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// sign computes the "sha256={hex}" HMAC-SHA256 signature of body using secret.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// BackoffMs returns the delay in milliseconds before a given 1-based retry attempt.
func BackoffMs(strategy taskcast.BackoffStrategy, attempt int, initialMs, maxMs int64) int64 {
	switch strategy {
	case taskcast.BackoffLinear:
		return initialMs * int64(attempt)
	case taskcast.BackoffExponential:
		delay := initialMs
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= maxMs {
				return maxMs
			}
		}
		if delay > maxMs {
			return maxMs
		}
		return delay
	case taskcast.BackoffFixed:
		fallthrough
	default:
		return initialMs
	}
}
