// Package notifier fans commit notifications out to subscribers over
// email and webhooks. Delivery is best-effort and at-most-once per
// (commit, subscription); a failed delivery is logged and dropped, never
// retried and never allowed to fail the commit.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/offenes-grundbuch/registry/internal/database"
	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/pkg/ulid"
	"github.com/offenes-grundbuch/registry/internal/repository"
)

// dedupeTTL bounds the idempotency window. A commit id never repeats, so
// the keys only need to outlive the delivery burst.
const dedupeTTL = 24 * time.Hour

// Mailer sends one plain-text notification mail.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Delivery is the webhook payload posted for one touched document key.
type Delivery struct {
	ServerURL   string `json:"server_url"`
	Amtsgericht string `json:"amtsgericht"`
	Bezirk      string `json:"bezirk"`
	Blatt       int    `json:"blatt"`
	Target      string `json:"target"`
	Reference   string `json:"reference,omitempty"`
	CommitID    string `json:"commit_id"`
}

// Notifier delivers commit notifications.
type Notifier struct {
	subs      repository.SubscriptionRepository
	redis     *database.Redis
	mailer    Mailer
	httpc     *http.Client
	serverURL string
	logger    *slog.Logger
}

// New creates a notifier. redis and mailer may be nil: without redis the
// at-most-once barrier is skipped, without a mailer email subscriptions
// are logged and dropped.
func New(subs repository.SubscriptionRepository, redis *database.Redis, mailer Mailer, serverURL string, logger *slog.Logger) *Notifier {
	return &Notifier{
		subs:      subs,
		redis:     redis,
		mailer:    mailer,
		httpc:     &http.Client{Timeout: 15 * time.Second},
		serverURL: strings.TrimRight(serverURL, "/"),
		logger:    logger,
	}
}

// NotifyCommit delivers notifications for every subscription matching a
// key the commit touched.
func (n *Notifier) NotifyCommit(ctx context.Context, commitID string, keys []models.DocumentKey) {
	for _, key := range keys {
		subs, err := n.subs.ListByKey(ctx, key)
		if err != nil {
			n.logger.Error("subscription lookup failed", "key", key.String(), "error", err)
			continue
		}
		for _, sub := range subs {
			n.deliver(ctx, commitID, key, sub)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, commitID string, key models.DocumentKey, sub *models.Subscription) {
	if !n.claim(ctx, commitID, sub.ID) {
		return
	}

	deliveryID := ulid.New()
	log := n.logger.With(
		"delivery_id", deliveryID,
		"commit", commitID,
		"key", key.String(),
		"kind", string(sub.Kind),
	)

	var err error
	switch sub.Kind {
	case models.SubscriptionWebhook:
		err = n.postWebhook(ctx, commitID, key, sub)
	case models.SubscriptionEmail:
		err = n.sendMail(ctx, commitID, key, sub)
	default:
		err = fmt.Errorf("unknown subscription kind %q", sub.Kind)
	}

	if err != nil {
		log.Warn("notification delivery failed", "error", err)
		return
	}
	log.Info("notification delivered")
}

// claim takes the at-most-once barrier for (commit, subscription). When
// redis is absent every claim succeeds and duplicates are possible after
// a crash mid-fanout.
func (n *Notifier) claim(ctx context.Context, commitID string, subID int64) bool {
	if n.redis == nil {
		return true
	}
	key := fmt.Sprintf("notify:%s:%d", commitID, subID)
	ok, err := n.redis.SetNX(ctx, key, 1, dedupeTTL)
	if err != nil {
		n.logger.Warn("notification dedupe unavailable, delivering anyway", "error", err)
		return true
	}
	return ok
}

func (n *Notifier) postWebhook(ctx context.Context, commitID string, key models.DocumentKey, sub *models.Subscription) error {
	payload := Delivery{
		ServerURL:   n.serverURL,
		Amtsgericht: key.Amtsgericht,
		Bezirk:      key.Bezirk,
		Blatt:       key.Blatt,
		Target:      sub.Target,
		CommitID:    commitID,
	}
	if sub.Reference != nil {
		payload.Reference = *sub.Reference
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) sendMail(ctx context.Context, commitID string, key models.DocumentKey, sub *models.Subscription) error {
	if n.mailer == nil {
		return fmt.Errorf("no mail transport configured")
	}

	subject := fmt.Sprintf("Änderung am Grundbuchblatt %s", key.String())

	var b strings.Builder
	fmt.Fprintf(&b, "Das Grundbuchblatt %s wurde geändert.\n\n", key.String())
	if sub.Reference != nil && *sub.Reference != "" {
		fmt.Fprintf(&b, "Aktenzeichen: %s\n", *sub.Reference)
	}
	fmt.Fprintf(&b, "Commit: %s\n", commitID)
	fmt.Fprintf(&b, "Abruf: %s/download/doc/%s/%s/%d\n", n.serverURL, key.Amtsgericht, key.Bezirk, key.Blatt)

	return n.mailer.Send(ctx, sub.Target, subject, b.String())
}
