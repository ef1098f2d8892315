package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/osvaldoandrade/comfyq/internal/metrics"
	"github.com/osvaldoandrade/comfyq/internal/tracing"
	"github.com/osvaldoandrade/comfyq/pkg/domain"
)

const (
	HeaderTimestamp = "X-ComfyQ-Timestamp"
	HeaderSignature = "X-ComfyQ-Signature"
)

// CompletionWebhook notifies a caller-supplied URL when an async invocation ends.
type CompletionWebhook interface {
	Deliver(ctx context.Context, inv domain.Invocation) error
}

type completionWebhook struct {
	logger *slog.Logger
	secret string
	client *http.Client
}

// NewCompletionWebhook posts once per invocation; there are no retries. When
// secret is set the body is signed with HMAC-SHA256 over "<timestamp>.<body>".
func NewCompletionWebhook(logger *slog.Logger, secret string, timeout time.Duration) CompletionWebhook {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &completionWebhook{logger: logger, secret: secret, client: &http.Client{Timeout: timeout}}
}

func (s *completionWebhook) Deliver(ctx context.Context, inv domain.Invocation) error {
	if strings.TrimSpace(inv.Webhook) == "" {
		return nil
	}
	payload := inv.Payload()
	payload["completedAt"] = inv.UpdatedAt
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	if err := s.post(ctx, inv.Webhook, body); err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues(inv.Tool, "failure").Inc()
		s.logger.Warn("completion webhook failed", "invocation_id", inv.ID, "url", inv.Webhook, "err", err)
		return err
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues(inv.Tool, "success").Inc()
	return nil
}

func (s *completionWebhook) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectHeaders(ctx, req.Header)
	s.addSignature(req, body, time.Now())

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (s *completionWebhook) addSignature(req *http.Request, body []byte, now time.Time) {
	if strings.TrimSpace(s.secret) == "" {
		return
	}
	ts := now.UTC().Unix()
	req.Header.Set(HeaderTimestamp, fmt.Sprintf("%d", ts))
	req.Header.Set(HeaderSignature, Sign(s.secret, ts, body))
}

// Sign returns the hex HMAC-SHA256 of "<ts>.<body>" under secret.
func Sign(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
