// Package discord delivers notifications to Discord webhooks.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"bluebird/internal/domain"
)

type Config struct {
	URL         string
	Username    string
	AvatarURL   string
	AccentColor int
	Timeout     time.Duration
}

// Webhook posts component messages to one webhook URL. The limiter may be
// shared between webhooks so bursts across accounts stay paced.
type Webhook struct {
	httpClient  *http.Client
	url         string
	username    string
	avatarURL   string
	accentColor int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

func New(cfg Config, limiter *rate.Limiter, logger *slog.Logger) (*Webhook, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook url %q: %w", cfg.URL, domain.ErrInvalidConfig)
	}

	// Components v2 messages from webhooks need with_components.
	q := u.Query()
	q.Set("with_components", "true")
	u.RawQuery = q.Encode()

	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Webhook{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		url:         u.String(),
		username:    cfg.Username,
		avatarURL:   cfg.AvatarURL,
		accentColor: cfg.AccentColor,
		limiter:     limiter,
		logger:      logger.With("sink", "discord"),
	}, nil
}

func (w *Webhook) Name() string {
	return "discord"
}

func (w *Webhook) Send(ctx context.Context, n *domain.Notification) error {
	body, err := json.Marshal(w.Build(n))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status: %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	w.logger.Debug("executed webhook", "post_id", n.Post.ID, "status", resp.StatusCode)

	return nil
}
