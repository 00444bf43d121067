package external

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

// newSendGridForTest builds a client pointed at the test server with retries
// enabled but no real sleeping.
func newSendGridForTest(t *testing.T, serverURL string) *SendGridClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"sendgrid-test-"+t.Name(),
		RetryPolicy{MaxRetries: 2, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond},
		"Daiyet-Dispatch/1.0",
		WithSleepFunc(func(time.Duration) {}),
	)
	return NewSendGridClientWithBase(base, SendGridClientConfig{
		APIKey:  "SG.test-key",
		BaseURL: serverURL,
		Logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
}

func sampleInput() types.SendInput {
	return types.SendInput{
		To:          "ada@example.com",
		From:        types.SenderIdentity{Address: "hello@daiyet.app", Name: "Daiyet"},
		Subject:     "Reminder: your consultation starts in 30 minutes",
		BodyText:    "Hi Ada,\n\nSee you soon.",
		ReferenceID: "email:em-1",
	}
}

func TestSendGridSend_Success_ReturnsMessageID(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("failed to decode request payload: %v", err)
		}
		w.Header().Set("X-Message-Id", "sg-msg-abc123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newSendGridForTest(t, server.URL)

	msgID, err := client.Send(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msgID != "sg-msg-abc123" {
		t.Errorf("expected message ID sg-msg-abc123, got %q", msgID)
	}
	if gotPath != "/v3/mail/send" {
		t.Errorf("expected path /v3/mail/send, got %q", gotPath)
	}
	if gotAuth != "Bearer SG.test-key" {
		t.Errorf("expected bearer API key, got %q", gotAuth)
	}

	if gotPayload["subject"] != "Reminder: your consultation starts in 30 minutes" {
		t.Errorf("unexpected subject: %v", gotPayload["subject"])
	}
	from, _ := gotPayload["from"].(map[string]any)
	if from["email"] != "hello@daiyet.app" || from["name"] != "Daiyet" {
		t.Errorf("unexpected from block: %v", gotPayload["from"])
	}
	customArgs, _ := gotPayload["custom_args"].(map[string]any)
	if customArgs["reference_id"] != "email:em-1" {
		t.Errorf("expected reference_id in custom_args, got %v", gotPayload["custom_args"])
	}
	content, _ := gotPayload["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("expected one content block, got %v", gotPayload["content"])
	}
	block, _ := content[0].(map[string]any)
	if block["type"] != "text/plain" {
		t.Errorf("expected text/plain content, got %v", block["type"])
	}
}

func TestSendGridSend_Forbidden_MapsToEmailBlocked(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":[{"message":"recipient address is on the suppression list"}]}`))
	}))
	defer server.Close()

	client := newSendGridForTest(t, server.URL)

	_, err := client.Send(context.Background(), sampleInput())
	if err == nil {
		t.Fatal("expected an error for 403")
	}

	appErr, ok := err.(*types.AppError)
	if !ok {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeEmailBlocked {
		t.Errorf("expected code %q, got %q", types.ErrCodeEmailBlocked, appErr.Code)
	}
	if !strings.Contains(appErr.Message, "suppression list") {
		t.Errorf("expected SendGrid message surfaced, got %q", appErr.Message)
	}
	// 4xx is not retryable at the transport level.
	if requests != 1 {
		t.Errorf("expected exactly 1 request for 403, got %d", requests)
	}
}

func TestSendGridSend_BadRequest_MapsToProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"the from email does not match a verified Sender Identity","field":"from"}]}`))
	}))
	defer server.Close()

	client := newSendGridForTest(t, server.URL)

	_, err := client.Send(context.Background(), sampleInput())
	if err == nil {
		t.Fatal("expected an error for 400")
	}

	appErr, ok := err.(*types.AppError)
	if !ok {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamEmailProvider {
		t.Errorf("expected code %q, got %q", types.ErrCodeUpstreamEmailProvider, appErr.Code)
	}
	if !strings.Contains(appErr.Message, "verified Sender Identity") {
		t.Errorf("expected SendGrid message surfaced, got %q", appErr.Message)
	}
}

func TestSendGridSend_ServerError_RetriesThenFails(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newSendGridForTest(t, server.URL)

	_, err := client.Send(context.Background(), sampleInput())
	if err == nil {
		t.Fatal("expected an error for persistent 500s")
	}

	appErr, ok := err.(*types.AppError)
	if !ok {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected code %q, got %q", types.ErrCodeUpstreamUnavailable, appErr.Code)
	}
	// Initial attempt plus MaxRetries.
	if requests != 3 {
		t.Errorf("expected 3 requests (1 + 2 retries), got %d", requests)
	}
}

func TestSendGridSend_ServerError_RecoversOnRetry(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		// The retried request must carry the replayed body.
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("retried request had no body: %v", err)
		}
		w.Header().Set("X-Message-Id", "sg-msg-retried")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newSendGridForTest(t, server.URL)

	msgID, err := client.Send(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("Send should succeed on retry: %v", err)
	}
	if msgID != "sg-msg-retried" {
		t.Errorf("expected message ID from retried request, got %q", msgID)
	}
	if requests != 2 {
		t.Errorf("expected 2 requests, got %d", requests)
	}
}

func TestSendGridSend_RateLimited_MapsToRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newSendGridForTest(t, server.URL)

	_, err := client.Send(context.Background(), sampleInput())
	if err == nil {
		t.Fatal("expected an error for persistent 429s")
	}

	appErr, ok := err.(*types.AppError)
	if !ok {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("expected code %q, got %q", types.ErrCodeUpstreamRateLimited, appErr.Code)
	}
}
