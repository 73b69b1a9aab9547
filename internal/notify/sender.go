package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/propertyline/triage/internal/models"
)

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, recipient, message string) (models.DeliveryStatus, error)
}

// HTTPSender posts messages to an SMS gateway at {BaseURL}/messages.
type HTTPSender struct {
	BaseURL string
	From    string
	APIKey  string
	Client  *http.Client
}

type smsRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type smsResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (h HTTPSender) Send(ctx context.Context, recipient, message string) (models.DeliveryStatus, error) {
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 10 * time.Second}
	}
	b, _ := json.Marshal(smsRequest{From: h.From, To: recipient, Body: message})
	url := strings.TrimRight(h.BaseURL, "/") + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return models.DeliveryFailed, err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(h.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return models.DeliveryFailed, fmt.Errorf("%w: %v", models.ErrNotificationDelivery, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.DeliveryFailed, fmt.Errorf("%w: sms gateway %s", models.ErrNotificationDelivery, resp.Status)
	}

	var r smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.DeliverySent, nil
	}
	switch models.DeliveryStatus(strings.ToLower(r.Status)) {
	case models.DeliveryDelivered:
		return models.DeliveryDelivered, nil
	case models.DeliveryFailed:
		return models.DeliveryFailed, fmt.Errorf("%w: gateway reported failure for %s", models.ErrNotificationDelivery, r.ID)
	default:
		return models.DeliverySent, nil
	}
}

type SentMessage struct {
	Recipient string
	Message   string
	At        time.Time
}

// LogSender records messages in memory and logs them instead of sending.
// Recipients listed in FailFor are reported as failed deliveries.
type LogSender struct {
	Logger  zerolog.Logger
	FailFor map[string]bool

	mu   sync.Mutex
	sent []SentMessage
}

func (l *LogSender) Send(_ context.Context, recipient, message string) (models.DeliveryStatus, error) {
	l.mu.Lock()
	l.sent = append(l.sent, SentMessage{Recipient: recipient, Message: message, At: time.Now().UTC()})
	fail := l.FailFor[recipient]
	l.mu.Unlock()

	if fail {
		l.Logger.Warn().Str("to", recipient).Msg("sms delivery failed")
		return models.DeliveryFailed, fmt.Errorf("%w: %s", models.ErrNotificationDelivery, recipient)
	}
	l.Logger.Info().Str("to", recipient).Str("body", message).Msg("sms sent")
	return models.DeliverySent, nil
}

func (l *LogSender) Sent() []SentMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]SentMessage(nil), l.sent...)
}
