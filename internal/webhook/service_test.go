// ABOUTME: Tests for webhook verification and routing.
// ABOUTME: Signatures are computed with real HMAC so tampering is detectable.

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"log/slog"
	"net/http"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextd/agentgate/internal/events"
	"github.com/contextd/agentgate/internal/rules"
)

const testSecret = "webhook-test-secret"

func newTestService(t *testing.T) (*Service, *events.Bus) {
	t.Helper()
	engine, err := rules.NewEngine(rules.Default(), slog.Default())
	require.NoError(t, err)
	bus := events.NewBus(slog.Default())
	svc := NewService(engine, bus, Secrets{
		Cline:         testSecret,
		GitHubCopilot: testSecret,
		AmazonQ:       testSecret,
	}, slog.Default())
	return svc, bus
}

func copilotHeaders(body []byte, eventType string) http.Header {
	h := http.Header{}
	h.Set("X-Hub-Signature-256", Sign([]byte(testSecret), body))
	h.Set("X-GitHub-Event", eventType)
	return h
}

func TestProcess_ValidSignature(t *testing.T) {
	svc, bus := newTestService(t)
	ch, cancel := bus.Subscribe(events.KindUsageReported)
	defer cancel()

	body := []byte(`{"completions": 42, "acceptance_rate": 0.31}`)
	result, err := svc.Process(context.Background(), "github-copilot", copilotHeaders(body, "copilot_usage"), body)
	require.NoError(t, err)
	assert.Equal(t, "processed", result.Status)
	assert.Equal(t, "copilot_usage", result.Type)

	ev := <-ch
	assert.Equal(t, events.KindUsageReported, ev.Kind)
	assert.Equal(t, "github-copilot", ev.AgentType)
	assert.Equal(t, float64(42), ev.Payload["completions"])
}

func TestProcess_TamperedPayload(t *testing.T) {
	svc, _ := newTestService(t)

	body := []byte(`{"completions": 42}`)
	headers := copilotHeaders(body, "copilot_usage")

	// Flip one byte after signing.
	tampered := append([]byte(nil), body...)
	tampered[2] ^= 0x01

	_, err := svc.Process(context.Background(), "github-copilot", headers, tampered)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSignatureInvalid))
}

func TestProcess_SHA1Prefix(t *testing.T) {
	svc, _ := newTestService(t)

	body := []byte(`{"event_type": "cline_task_complete", "task_id": "t-1"}`)
	mac := hmac.New(sha1.New, []byte(testSecret))
	mac.Write(body)

	h := http.Header{}
	h.Set("X-Cline-Signature", "sha1="+hex.EncodeToString(mac.Sum(nil)))
	h.Set("X-Cline-Event", "cline_task_complete")

	result, err := svc.Process(context.Background(), "cline", h, body)
	require.NoError(t, err)
	assert.Equal(t, "processed", result.Status)
}

func TestProcess_MissingSignature(t *testing.T) {
	svc, _ := newTestService(t)

	body := []byte(`{"completions": 42}`)
	h := http.Header{}
	h.Set("X-GitHub-Event", "copilot_usage")

	_, err := svc.Process(context.Background(), "github-copilot", h, body)
	require.Error(t, err)
	// The default policy requires a signature, so the rule gate fires first.
	assert.True(t, errors.Is(err, ErrPayloadRejected))
}

func TestProcess_UnknownEventType(t *testing.T) {
	svc, bus := newTestService(t)
	ch, cancel := bus.Subscribe(events.KindWebhookReceived)
	defer cancel()

	body := []byte(`{"what": "is this"}`)
	result, err := svc.Process(context.Background(), "github-copilot", copilotHeaders(body, "unrecognized_event"), body)
	require.NoError(t, err)
	assert.Equal(t, "ignored", result.Status)
	assert.Equal(t, "unrecognized_event", result.Type)

	// Ignored deliveries do not emit events.
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event published: %v", ev.Kind)
	default:
	}
}

func TestProcess_UnknownAgentType(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Process(context.Background(), "jetbrains-ai", http.Header{}, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAgentType))
}

func TestProcess_EventTypeFromBodyField(t *testing.T) {
	svc, _ := newTestService(t)

	body := []byte(`{"event_type": "q_security_scan", "findings": []}`)
	h := http.Header{}
	h.Set("X-Amz-Signature", Sign([]byte(testSecret), body))

	result, err := svc.Process(context.Background(), "amazon-q", h, body)
	require.NoError(t, err)
	assert.Equal(t, "q_security_scan", result.Type)
}

func TestProcess_MalformedJSON(t *testing.T) {
	svc, _ := newTestService(t)

	body := []byte(`{not json`)
	h := http.Header{}
	h.Set("X-Hub-Signature-256", Sign([]byte(testSecret), body))
	h.Set("X-GitHub-Event", "copilot_usage")

	_, err := svc.Process(context.Background(), "github-copilot", h, body)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPayloadRejected))
}

func TestProcess_RateLimit(t *testing.T) {
	svc, _ := newTestService(t)

	body := []byte(`{"completions": 1}`)
	headers := copilotHeaders(body, "copilot_usage")

	// Default policy allows 30 webhooks per minute.
	for i := 0; i < 30; i++ {
		_, err := svc.Process(context.Background(), "github-copilot", headers, body)
		require.NoError(t, err, "delivery %d should pass", i+1)
	}

	_, err := svc.Process(context.Background(), "github-copilot", headers, body)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rules.ErrRateLimited))
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("s3cret")
	body := []byte("payload bytes")

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, verifySignature(secret, body, Sign(secret, body)))
	})

	t.Run("wrong secret", func(t *testing.T) {
		err := verifySignature([]byte("other"), body, Sign(secret, body))
		assert.True(t, errors.Is(err, ErrSignatureInvalid))
	})

	t.Run("not hex", func(t *testing.T) {
		err := verifySignature(secret, body, "sha256=zzzz")
		assert.True(t, errors.Is(err, ErrSignatureInvalid))
	})

	t.Run("empty", func(t *testing.T) {
		err := verifySignature(secret, body, "")
		assert.True(t, errors.Is(err, ErrSignatureInvalid))
	})
}
