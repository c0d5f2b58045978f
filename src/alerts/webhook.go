package alerts

import (
	"fmt"
	"time"

	"market-sentinel/src/logger"
	"market-sentinel/src/models"

	"github.com/go-resty/resty/v2"
)

// -----------------------------------------------------------------------------

// WebhookChannel posts {"text": ...} to a chat-style webhook. Without a URL it
// only logs what it would have sent.
type WebhookChannel struct {
	URL    string
	Logger *logger.Logger
	client *resty.Client
}

func NewWebhookChannel(url string, timeout time.Duration, log *logger.Logger) *WebhookChannel {
	if log == nil {
		log = logger.NewLogger("WebhookChannel")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookChannel{
		URL:    url,
		Logger: log,
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

func (w *WebhookChannel) Name() string { return "webhook" }

// Enabled reports whether a destination is configured.
func (w *WebhookChannel) Enabled() bool { return w.URL != "" }

// -----------------------------------------------------------------------------

func (w *WebhookChannel) Send(signal models.MSignal) error {
	text := fmt.Sprintf("*%s* %s", signal.Kind, signal.String())

	if !w.Enabled() {
		w.Logger.Info("[webhook stub] would send: %s", text)
		return nil
	}

	resp, err := w.client.R().
		SetBody(map[string]string{"text": text}).
		Post(w.URL)
	if err != nil {
		return fmt.Errorf("webhook post failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %d", resp.StatusCode())
	}
	return nil
}
