// Package alert posts block and failure notifications to a Slack-compatible webhook.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/haukened/phishguard/internal/proxy/domain"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultRate    = 1.0
	DefaultBurst   = 5

	timeLayout = "2006-01-02 15:04:05"
)

var (
	// ErrRateLimited is returned when a notification is dropped by the limiter.
	ErrRateLimited = errors.New("alert: rate limited")
	// ErrStatus is wrapped when the webhook answers with a non-2xx status.
	ErrStatus = errors.New("alert: unexpected status")
)

type Options struct {
	URL string
	// PerSecond is the sustained notification rate; Burst the bucket size.
	PerSecond  float64
	Burst      int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Webhook sends one message per record. Over the rate limit, records are
// dropped rather than queued.
type Webhook struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
}

func New(opts Options) (*Webhook, error) {
	if opts.URL == "" {
		return nil, errors.New("alert: webhook url is required")
	}
	if opts.PerSecond <= 0 {
		opts.PerSecond = DefaultRate
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Webhook{
		url:     opts.URL,
		http:    opts.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(opts.PerSecond), opts.Burst),
	}, nil
}

type message struct {
	Blocks []block `json:"blocks"`
}

type block struct {
	Type   string `json:"type"`
	Text   *text  `json:"text,omitempty"`
	Fields []text `json:"fields,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(label, value string) text {
	return text{Type: "mrkdwn", Text: fmt.Sprintf("*%s*\n%s", label, value)}
}

func buildMessage(r domain.LogRecord) message {
	title := ":rotating_light: Access blocked"
	label := "Reason"
	if r.Outcome == domain.OutcomeError {
		title = ":warning: Forwarding failed"
		label = "Error"
	}
	reason := r.FirstReason()
	if reason == "" {
		reason = "unknown"
	}
	dest := r.Host
	if r.Port > 0 {
		dest = fmt.Sprintf("%s:%d", r.Host, r.Port)
	}
	return message{Blocks: []block{
		{Type: "header", Text: &text{Type: "plain_text", Text: title}},
		{Type: "section", Fields: []text{
			mrkdwn("Time", r.Time.Format(timeLayout)),
			mrkdwn(label, reason),
		}},
		{Type: "section", Fields: []text{
			mrkdwn("Source", r.ClientAddr),
			mrkdwn("Destination", dest),
		}},
	}}
}

// Notify posts r to the webhook.
func (w *Webhook) Notify(ctx context.Context, r domain.LogRecord) error {
	if !w.limiter.Allow() {
		return ErrRateLimited
	}
	body, err := json.Marshal(buildMessage(r))
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	return nil
}
