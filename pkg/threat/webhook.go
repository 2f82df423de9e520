package threat

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"
)

const (
	webhookSignatureHeader = "X-Admintrust-Signature"
	webhookTimeout         = 10 * time.Second
	webhookMaxRetries      = 3
	webhookRetryInitial    = 500 * time.Millisecond
	webhookRetryMax        = 5 * time.Second
)

// WebhookSink streams events to a configured webhook URL. Payloads are
// signed with HMAC-SHA256 so the receiver can authenticate the stream.
type WebhookSink struct {
	url    string
	secret []byte
	client *http.Client
}

// NewWebhookSink constructs a webhook sink. An empty secret disables
// payload signing.
func NewWebhookSink(url, secret string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: webhookTimeout},
	}
}

func (w *WebhookSink) Name() string { return "webhook" }

// Stream delivers one event, retrying transient failures with jittered
// exponential backoff.
func (w *WebhookSink) Stream(ctx context.Context, e SecurityEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	var attempt int
	for {
		err = w.post(ctx, body)
		if err == nil {
			return nil
		}
		if attempt >= webhookMaxRetries || !isRetryable(err) {
			return err
		}
		select {
		case <-time.After(backoffWithJitter(webhookRetryInitial, webhookRetryMax, attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
		attempt++
	}
}

func (w *WebhookSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if len(w.secret) > 0 {
		req.Header.Set(webhookSignatureHeader, w.sign(body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return retryableStatusError{status: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (w *WebhookSink) sign(body []byte) string {
	mac := hmac.New(sha256.New, w.secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func backoffWithJitter(initial, max time.Duration, attempt int) time.Duration {
	b := float64(initial) * math.Pow(2, float64(attempt))
	if b > float64(max) {
		b = float64(max)
	}
	j := b / 2
	return time.Duration(j + rand.Float64()*j)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var statusErr retryableStatusError
	return errors.As(err, &statusErr)
}

type retryableStatusError struct {
	status int
}

func (e retryableStatusError) Error() string {
	return http.StatusText(e.status)
}
