package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"backbeat/internal/config"
	"backbeat/internal/domain"
	"backbeat/internal/engine"
)

const (
	defaultDispatchSpec    = "@every 5s"
	defaultDispatchTimeout = 5 * time.Second
	defaultDispatchBatch   = 100
)

// notificationDispatcher delivers queued notifications to the configured
// webhook URLs. A notification is marked delivered only after every
// matching hook accepted it, so a flaky endpoint causes redelivery rather
// than loss.
type notificationDispatcher struct {
	engine   engine.Engine
	webhooks []config.WebhookConfig
	client   *http.Client
	cron     *cron.Cron
}

// StartNotificationDispatcher begins background webhook delivery. Returns a
// stop function; a nil-op stop is returned when no webhooks are configured.
func StartNotificationDispatcher(e engine.Engine) func() {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return func() {}
	}
	d := &notificationDispatcher{
		engine:   e,
		webhooks: e.Config.Webhooks,
		client:   &http.Client{Timeout: defaultDispatchTimeout},
		cron:     cron.New(),
	}
	if _, err := d.cron.AddFunc(defaultDispatchSpec, d.dispatchPending); err != nil {
		e.Log.Error().Err(err).Msg("notification dispatcher not started")
		return func() {}
	}
	d.cron.Start()
	return func() {
		ctx := d.cron.Stop()
		<-ctx.Done()
	}
}

func (d *notificationDispatcher) dispatchPending() {
	ctx := context.Background()
	pending, err := d.engine.Repo.ListUndelivered(ctx, defaultDispatchBatch)
	if err != nil {
		d.engine.Log.Error().Err(err).Msg("fetch undelivered notifications failed")
		return
	}
	for _, n := range pending {
		if !d.deliver(ctx, n) {
			// Preserve delivery order per recipient; retry next tick.
			return
		}
		if err := d.engine.Repo.MarkDelivered(ctx, n.ID); err != nil {
			d.engine.Log.Error().Err(err).Str("notification_id", n.ID).Msg("mark delivered failed")
			return
		}
	}
}

func (d *notificationDispatcher) deliver(ctx context.Context, n domain.Notification) bool {
	delivered := true
	for _, hook := range d.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		if !kindMatches(hook.Kinds, n.Kind) {
			continue
		}
		if err := d.post(ctx, hook, n); err != nil {
			d.engine.Log.Warn().Err(err).Str("url", hook.URL).Str("notification_id", n.ID).
				Msg("webhook delivery failed")
			delivered = false
		}
	}
	return delivered
}

func (d *notificationDispatcher) post(ctx context.Context, hook config.WebhookConfig, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	timeout := defaultDispatchTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Backbeat-Kind", n.Kind)
	req.Header.Set("X-Backbeat-Delivery", n.ID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Backbeat-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func kindMatches(kinds []string, kind string) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if strings.TrimSpace(k) == kind {
			return true
		}
	}
	return false
}
