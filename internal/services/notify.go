package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/lingopair/backend/internal/config"
	"github.com/lingopair/backend/pkg/logger"
)

// Notifier announces newly available review work. Fire-and-forget: the state
// machine never depends on delivery.
type Notifier interface {
	NewWorkAvailable(languageCode string)
}

// WebhookNotifier POSTs a small JSON event to a configured endpoint, from
// which the surrounding application fans out push notifications to
// verifiers. A missing URL disables it.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(cfg config.NotifyConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *WebhookNotifier) NewWorkAvailable(languageCode string) {
	if n.url == "" {
		return
	}

	go func() {
		payload, err := json.Marshal(map[string]string{
			"event":         "review_work_available",
			"language_code": languageCode,
		})
		if err != nil {
			return
		}

		resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(payload))
		if err != nil {
			logger.Warnf("[Notify] new-work webhook failed: %v", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			logger.Warnf("[Notify] new-work webhook returned %d", resp.StatusCode)
		}
	}()
}
