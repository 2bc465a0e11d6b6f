package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/cadence/internal/campaign"
)

type recordingNotifier struct {
	channel string
	sent    []campaign.RenderedPayload
	err     error
}

func (r *recordingNotifier) Send(_ context.Context, _ campaign.Subject, _ campaign.StageDefinition, payload campaign.RenderedPayload) error {
	r.sent = append(r.sent, payload)
	return r.err
}

func (r *recordingNotifier) SupportsChannel(channel string) bool {
	return channel == r.channel
}

func testSubject() campaign.Subject {
	return campaign.Subject{
		ID:           uuid.New(),
		CampaignType: "quote_follow_up",
		CustomerName: "Dana",
		Email:        "dana@example.com",
	}
}

func testStage() campaign.StageDefinition {
	return campaign.StageDefinition{Index: 0, Name: "day1"}
}

func TestMultiNotifier_RoutesByChannel(t *testing.T) {
	email := &recordingNotifier{channel: ChannelEmail}
	sms := &recordingNotifier{channel: ChannelSMS}
	multi := NewMultiNotifier(zap.NewNop(), email, sms)

	err := multi.Send(context.Background(), testSubject(), testStage(), campaign.RenderedPayload{
		Channel: ChannelSMS,
		To:      "+16125550199",
		Body:    "reminder",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sms.sent) != 1 {
		t.Errorf("sms notifier received %d payloads, want 1", len(sms.sent))
	}
	if len(email.sent) != 0 {
		t.Errorf("email notifier received %d payloads, want 0", len(email.sent))
	}
}

func TestMultiNotifier_UnknownChannelIsPermanent(t *testing.T) {
	multi := NewMultiNotifier(zap.NewNop(), &recordingNotifier{channel: ChannelEmail})

	err := multi.Send(context.Background(), testSubject(), testStage(), campaign.RenderedPayload{Channel: "carrier_pigeon"})
	if err == nil || !campaign.IsPermanent(err) {
		t.Fatalf("expected permanent error for unroutable channel, got %v", err)
	}
}

func TestMultiNotifier_PropagatesDeliveryError(t *testing.T) {
	cause := campaign.Transient(errors.New("throttled"))
	multi := NewMultiNotifier(zap.NewNop(), &recordingNotifier{channel: ChannelEmail, err: cause})

	err := multi.Send(context.Background(), testSubject(), testStage(), campaign.RenderedPayload{Channel: ChannelEmail})
	if !errors.Is(err, cause) {
		t.Fatalf("expected underlying error, got %v", err)
	}
	if campaign.IsPermanent(err) {
		t.Error("transient error misclassified as permanent")
	}
}

func TestMultiNotifier_SupportsChannel(t *testing.T) {
	multi := NewMultiNotifier(zap.NewNop(),
		&recordingNotifier{channel: ChannelEmail},
		&recordingNotifier{channel: ChannelSMS},
	)

	if !multi.SupportsChannel(ChannelEmail) || !multi.SupportsChannel(ChannelSMS) {
		t.Error("expected email and sms to be routable")
	}
	if multi.SupportsChannel(ChannelQueue) {
		t.Error("queue should not be routable without a queue notifier")
	}
}

func TestWebhookNotifier_DeliversPayload(t *testing.T) {
	var received webhookBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Cadence-Stage") == "" {
			t.Error("missing X-Cadence-Stage header")
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("bad body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(zap.NewNop(), WebhookConfig{URL: server.URL})
	err := n.Send(context.Background(), testSubject(), testStage(), campaign.RenderedPayload{
		Channel: ChannelWebhook,
		To:      "dana@example.com",
		Body:    "stage event",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.Stage != "day1" {
		t.Errorf("stage = %s, want day1", received.Stage)
	}
	if received.CampaignType != "quote_follow_up" {
		t.Errorf("campaign_type = %s", received.CampaignType)
	}
}

func TestWebhookNotifier_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWebhookNotifier(zap.NewNop(), WebhookConfig{URL: server.URL})
	err := n.Send(context.Background(), testSubject(), testStage(), campaign.RenderedPayload{Channel: ChannelWebhook})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if campaign.IsPermanent(err) {
		t.Error("5xx should be transient, not permanent")
	}
}

func TestWebhookNotifier_MissingURLIsPermanent(t *testing.T) {
	n := NewWebhookNotifier(zap.NewNop(), WebhookConfig{})
	err := n.Send(context.Background(), testSubject(), testStage(), campaign.RenderedPayload{Channel: ChannelWebhook})
	if err == nil || !campaign.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestLogNotifier_AcceptsAllChannels(t *testing.T) {
	n := NewLogNotifier(zap.NewNop())
	for _, ch := range []string{ChannelEmail, ChannelSMS, ChannelWebhook, ChannelQueue} {
		if !n.SupportsChannel(ch) {
			t.Errorf("log notifier should support %s", ch)
		}
	}
	if err := n.Send(context.Background(), testSubject(), testStage(), campaign.RenderedPayload{Channel: ChannelEmail}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
