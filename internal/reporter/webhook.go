package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"ciq/pipeline-engine/pkg/logger"
	"ciq/pipeline-engine/pkg/types"
)

// WebhookReporterType identifies the webhook reporter.
const WebhookReporterType = "webhook"

const (
	defaultWebhookTimeoutSec = 10
	defaultWebhookRetries    = 3
	webhookRetryBackoff      = 500 * time.Millisecond
)

// WebhookReporter POSTs each run summary as JSON to a URL.
type WebhookReporter struct {
	client  *fasthttp.Client
	url     string
	timeout time.Duration
	retries int
	headers map[string]string
}

// NewWebhookReporter creates an unconfigured webhook reporter.
func NewWebhookReporter() *WebhookReporter {
	return &WebhookReporter{
		client: &fasthttp.Client{
			MaxConnsPerHost:     64,
			ReadTimeout:         30 * time.Second,
			WriteTimeout:        30 * time.Second,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

// Name returns the reporter type name.
func (r *WebhookReporter) Name() string {
	return WebhookReporterType
}

// Init applies the reporter config. Required key: url.
// Optional keys: timeout_seconds, retries, headers.
func (r *WebhookReporter) Init(_ context.Context, config map[string]any) error {
	r.url = configString(config, "url", "")
	if r.url == "" {
		return fmt.Errorf("webhook reporter requires a url")
	}

	r.timeout = time.Duration(configInt(config, "timeout_seconds", defaultWebhookTimeoutSec)) * time.Second
	r.retries = configInt(config, "retries", defaultWebhookRetries)

	if raw, ok := config["headers"].(map[string]any); ok {
		r.headers = make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				r.headers[k] = s
			}
		}
	}
	return nil
}

// Report delivers the summary, retrying transient failures.
func (r *WebhookReporter) Report(ctx context.Context, summary *types.RunSummary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(webhookRetryBackoff * time.Duration(attempt)):
			}
		}

		if lastErr = r.post(body); lastErr == nil {
			return nil
		}
		logger.Warn("webhook delivery failed",
			zap.String("url", r.url),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", r.retries+1, lastErr)
}

func (r *WebhookReporter) post(body []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	req.SetBody(body)

	if err := r.client.DoTimeout(req, resp, r.timeout); err != nil {
		return err
	}
	if code := resp.StatusCode(); code >= 300 {
		return fmt.Errorf("unexpected status %d %s", code, fasthttp.StatusMessage(code))
	}
	return nil
}

// Flush is a no-op; deliveries are synchronous.
func (r *WebhookReporter) Flush(context.Context) error {
	return nil
}

// Close shuts down idle connections.
func (r *WebhookReporter) Close(context.Context) error {
	r.client.CloseIdleConnections()
	return nil
}
