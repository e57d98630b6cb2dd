package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/BrandonDHaskell/Portunus/edge/internal/portunus/types"
)

// Webhook POSTs each record as JSON.
type Webhook struct {
	client *resty.Client
	url    string
	device string
}

func NewWebhook(url, device string) *Webhook {
	c := resty.New().
		SetTimeout(DefaultTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json")
	return &Webhook{client: c, url: url, device: device}
}

func (w *Webhook) Notify(ctx context.Context, rec types.Record) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(NewMessage(w.device, rec)).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook post: status %d", resp.StatusCode())
	}
	return nil
}
