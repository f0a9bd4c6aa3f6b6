package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"hedge_go/internal/domain"
)

// LogNotifier writes operator messages to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With(slog.String("module", "notify"))}
}

func (n *LogNotifier) Notify(_ context.Context, account, message string) error {
	n.logger.Info("Operator notification", slog.String("account", account), slog.String("message", message))
	return nil
}

// webhookPayload is the JSON body posted to the webhook URL.
type webhookPayload struct {
	Account   string    `json:"account"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// WebhookNotifier posts operator messages to an HTTP endpoint, for example
// a chat bot relay.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	now        func() time.Time
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, account, message string) error {
	body, err := json.Marshal(webhookPayload{Account: account, Text: message, Timestamp: n.now().UTC()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError("notify", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Multi fans a message out to several notifiers and joins their errors.
type Multi []domain.Notifier

func (m Multi) Notify(ctx context.Context, account, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, account, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
