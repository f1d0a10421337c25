package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Templates rendered and delivered by the hosted notification service.
const (
	TemplateReceiptUploaded  = "receipt_uploaded"
	TemplatePaymentConfirmed = "payment_confirmed"
	TemplateUSDTSent         = "usdt_sent"
)

// Client sends templated messages fire-and-forget. Delivery failures are
// logged, never propagated: a lost email must not roll back an order
// transition.
type Client struct {
	baseURL string
	key     string
	client  *http.Client
}

func NewClient(baseURL, key string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Send(ctx context.Context, template, to string, data map[string]string) {
	if c.baseURL == "" || to == "" {
		return
	}
	if err := c.send(ctx, template, to, data); err != nil {
		zap.L().Warn("notification send failed",
			zap.String("template", template),
			zap.String("to", to),
			zap.Error(err))
	}
}

func (c *Client) send(ctx context.Context, template, to string, data map[string]string) error {
	payload, err := json.Marshal(map[string]any{
		"template": template,
		"to":       to,
		"data":     data,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("notify http status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("notify http status %d", resp.StatusCode)
	}
	return nil
}
