package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/posgate/internal/http/dto"
	"github.com/dropDatabas3/posgate/internal/webhook"
)

const sigKey = "whsec-test"

type collector struct {
	mu  sync.Mutex
	ids []string
}

func (c *collector) Process(_ context.Context, ev webhook.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, ev.EventID)
	return nil
}

func (c *collector) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func newController(t *testing.T, notificationURL string) (*Controller, *collector) {
	t.Helper()
	auth, err := webhook.NewAuthenticator(webhook.Secure, sigKey, nil)
	require.NoError(t, err)
	col := &collector{}
	d := webhook.NewDispatcher(col, webhook.DispatcherOptions{Workers: 1, QueueSize: 8})
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	rcv := &webhook.Receiver{Auth: auth, Dedupe: webhook.NewDeduper(100, 50), Dispatcher: d}
	return NewController(rcv, notificationURL), col
}

func post(c *Controller, target string, body []byte, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set(SignatureHeader, sig)
	rec := httptest.NewRecorder()
	c.Receive(rec, req)
	return rec
}

func TestReceive_SignedWithConfiguredURL(t *testing.T) {
	const notify = "https://hooks.posgate.test/v1/webhooks/square"
	c, col := newController(t, notify)
	body := []byte(`{"event_id":"e1","type":"order.created","merchant_id":"M1"}`)

	rec := post(c, "/v1/webhooks/square", body, webhook.SignBase64([]byte(sigKey), notify, body))
	require.Equal(t, http.StatusOK, rec.Code)
	var ack dto.WebhookAckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, dto.WebhookAckResponse{Received: true, EventID: "e1"}, ack)

	rec = post(c, "/v1/webhooks/square", body, webhook.SignBase64([]byte(sigKey), notify, body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.True(t, ack.Duplicate)

	require.Eventually(t, func() bool { return len(col.seen()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestReceive_RejectsBadSignatureAndPayload(t *testing.T) {
	const notify = "https://hooks.posgate.test/v1/webhooks/square"
	c, col := newController(t, notify)
	body := []byte(`{"event_id":"e2","type":"order.created"}`)

	// firmado contra otra URL
	rec := post(c, "/v1/webhooks/square", body, webhook.SignBase64([]byte(sigKey), "https://evil.test/hook", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_SIGNATURE")

	rec = post(c, "/v1/webhooks/square", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := []byte(`{"type":"order.created"}`)
	rec = post(c, "/v1/webhooks/square", bad, webhook.SignBase64([]byte(sigKey), notify, bad))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "MALFORMED_PAYLOAD")

	assert.Empty(t, col.seen())
}

func TestReceive_QueueFullAsksForRedelivery(t *testing.T) {
	const notify = "https://hooks.posgate.test/v1/webhooks/square"
	auth, err := webhook.NewAuthenticator(webhook.Secure, sigKey, nil)
	require.NoError(t, err)
	block := make(chan struct{})
	col := &collector{}
	d := webhook.NewDispatcher(webhook.ProcessorFunc(func(ctx context.Context, ev webhook.Event) error {
		<-block
		return col.Process(ctx, ev)
	}), webhook.DispatcherOptions{Workers: 1, QueueSize: 1})
	c := NewController(&webhook.Receiver{Auth: auth, Dedupe: webhook.NewDeduper(100, 50), Dispatcher: d}, notify)

	send := func(id string) *httptest.ResponseRecorder {
		body := []byte(`{"event_id":"` + id + `","type":"order.created"}`)
		return post(c, "/v1/webhooks/square", body, webhook.SignBase64([]byte(sigKey), notify, body))
	}

	require.Equal(t, http.StatusOK, send("e1").Code)
	// e1 en el worker, e2 en la cola
	require.Eventually(t, func() bool {
		return send("e2").Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)

	rec := send("e3")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "WEBHOOK_UNAVAILABLE")

	close(block)
	require.Eventually(t, func() bool { return len(col.seen()) == 2 }, time.Second, 5*time.Millisecond)

	rec = send("e3")
	require.Equal(t, http.StatusOK, rec.Code)
	var ack dto.WebhookAckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.False(t, ack.Duplicate)

	require.NoError(t, d.Close(context.Background()))
	assert.ElementsMatch(t, []string{"e1", "e2", "e3"}, col.seen())
}

func TestReceive_BodyTooLarge(t *testing.T) {
	c, _ := newController(t, "https://hooks.posgate.test/x")
	rec := post(c, "/v1/webhooks/square", bytes.Repeat([]byte("a"), MaxBody+1), "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCanonicalURL(t *testing.T) {
	c := &Controller{}

	req := httptest.NewRequest(http.MethodPost, "http://api.internal:8080/v1/webhooks/square?x=1", nil)
	assert.Equal(t, "http://api.internal:8080/v1/webhooks/square?x=1", c.canonicalURL(req))

	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "hooks.posgate.test")
	assert.Equal(t, "https://hooks.posgate.test/v1/webhooks/square?x=1", c.canonicalURL(req))

	c.notificationURL = "https://fixed.test/hook"
	assert.Equal(t, "https://fixed.test/hook", c.canonicalURL(req))
}
