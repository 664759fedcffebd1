package notifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offenes-grundbuch/registry/internal/models"
	"github.com/offenes-grundbuch/registry/internal/repository"
)

type fakeSubRepo struct {
	subs []*models.Subscription
}

var _ repository.SubscriptionRepository = (*fakeSubRepo)(nil)

func (f *fakeSubRepo) Create(ctx context.Context, sub *models.Subscription) error { return nil }

func (f *fakeSubRepo) Delete(ctx context.Context, kind models.SubscriptionKind, target string, key models.DocumentKey) error {
	return nil
}

func (f *fakeSubRepo) ListByKey(ctx context.Context, key models.DocumentKey) ([]*models.Subscription, error) {
	var out []*models.Subscription
	for _, s := range f.subs {
		if s.Amtsgericht == key.Amtsgericht && s.Bezirk == key.Bezirk && s.Blatt == key.Blatt {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubRepo) List(ctx context.Context) ([]*models.Subscription, error) {
	return f.subs, nil
}

type recordingMailer struct {
	mu       sync.Mutex
	to       []string
	subjects []string
	bodies   []string
	err      error
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.to = append(m.to, to)
	m.subjects = append(m.subjects, subject)
	m.bodies = append(m.bodies, body)
	return m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyCommitPostsWebhook(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Delivery
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var d Delivery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&d))
		mu.Lock()
		received = append(received, d)
		mu.Unlock()
	}))
	defer srv.Close()

	ref := "AZ 12/34"
	subs := &fakeSubRepo{subs: []*models.Subscription{{
		ID: 1, Kind: models.SubscriptionWebhook, Target: srv.URL,
		Amtsgericht: "Prenzlau", Bezirk: "Seelübbe", Blatt: 42, Reference: &ref,
	}}}

	n := New(subs, nil, nil, "https://grundbuch.example.org/", discardLogger())
	n.NotifyCommit(context.Background(), "abc123", []models.DocumentKey{
		{Amtsgericht: "Prenzlau", Bezirk: "Seelübbe", Blatt: 42},
	})

	require.Len(t, received, 1)
	assert.Equal(t, Delivery{
		ServerURL:   "https://grundbuch.example.org",
		Amtsgericht: "Prenzlau",
		Bezirk:      "Seelübbe",
		Blatt:       42,
		Target:      srv.URL,
		Reference:   "AZ 12/34",
		CommitID:    "abc123",
	}, received[0])
}

func TestNotifyCommitSendsMail(t *testing.T) {
	subs := &fakeSubRepo{subs: []*models.Subscription{{
		ID: 1, Kind: models.SubscriptionEmail, Target: "u@example.org",
		Amtsgericht: "Prenzlau", Bezirk: "Seelübbe", Blatt: 7,
	}}}
	mailer := &recordingMailer{}

	n := New(subs, nil, mailer, "https://grundbuch.example.org", discardLogger())
	n.NotifyCommit(context.Background(), "abc123", []models.DocumentKey{
		{Amtsgericht: "Prenzlau", Bezirk: "Seelübbe", Blatt: 7},
	})

	require.Len(t, mailer.to, 1)
	assert.Equal(t, "u@example.org", mailer.to[0])
	assert.Contains(t, mailer.subjects[0], "Prenzlau/Seelübbe/7")
	assert.Contains(t, mailer.bodies[0], "abc123")
	assert.Contains(t, mailer.bodies[0], "/download/doc/Prenzlau/Seelübbe/7")
}

func TestNotifyCommitSkipsUnmatchedKeys(t *testing.T) {
	subs := &fakeSubRepo{subs: []*models.Subscription{{
		ID: 1, Kind: models.SubscriptionEmail, Target: "u@example.org",
		Amtsgericht: "Prenzlau", Bezirk: "Seelübbe", Blatt: 7,
	}}}
	mailer := &recordingMailer{}

	n := New(subs, nil, mailer, "https://grundbuch.example.org", discardLogger())
	n.NotifyCommit(context.Background(), "abc123", []models.DocumentKey{
		{Amtsgericht: "Prenzlau", Bezirk: "Seelübbe", Blatt: 8},
	})

	assert.Empty(t, mailer.to)
}

func TestDeliveryFailureDoesNotPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	subs := &fakeSubRepo{subs: []*models.Subscription{
		{ID: 1, Kind: models.SubscriptionWebhook, Target: srv.URL,
			Amtsgericht: "Prenzlau", Bezirk: "Seelübbe", Blatt: 1},
		{ID: 2, Kind: models.SubscriptionEmail, Target: "u@example.org",
			Amtsgericht: "Prenzlau", Bezirk: "Seelübbe", Blatt: 1},
	}}
	mailer := &recordingMailer{}

	// The failing webhook must not keep the mail from going out.
	n := New(subs, nil, mailer, "https://grundbuch.example.org", discardLogger())
	n.NotifyCommit(context.Background(), "abc123", []models.DocumentKey{
		{Amtsgericht: "Prenzlau", Bezirk: "Seelübbe", Blatt: 1},
	})

	assert.Len(t, mailer.to, 1)
}

func TestEmailWithoutMailerIsDropped(t *testing.T) {
	subs := &fakeSubRepo{subs: []*models.Subscription{{
		ID: 1, Kind: models.SubscriptionEmail, Target: "u@example.org",
		Amtsgericht: "Prenzlau", Bezirk: "Seelübbe", Blatt: 1,
	}}}

	n := New(subs, nil, nil, "https://grundbuch.example.org", discardLogger())
	n.NotifyCommit(context.Background(), "abc123", []models.DocumentKey{
		{Amtsgericht: "Prenzlau", Bezirk: "Seelübbe", Blatt: 1},
	})
}
