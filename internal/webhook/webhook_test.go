package webhook

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testSecret = "whsec-test"
	testURL    = "https://pos.example/v1/webhooks/square"
)

func secureAuth(t *testing.T) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(Secure, testSecret, zap.NewNop())
	require.NoError(t, err)
	return a
}

func TestVerify_ValidSignature(t *testing.T) {
	a := secureAuth(t)
	body := []byte(`{"event_id":"evt_1","type":"order.created"}`)
	sig := SignBase64([]byte(testSecret), testURL, body)
	require.True(t, a.Verify(body, sig, testURL))
}

func TestVerify_AnyBitFlipFails(t *testing.T) {
	a := secureAuth(t)
	body := []byte(`{"event_id":"evt_1","type":"order.created"}`)
	sig := SignBase64([]byte(testSecret), testURL, body)

	for i := range body {
		for bit := 0; bit < 8; bit++ {
			mut := append([]byte(nil), body...)
			mut[i] ^= 1 << bit
			require.False(t, a.Verify(mut, sig, testURL), "body byte %d bit %d", i, bit)
		}
	}

	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	for i := range raw {
		mut := append([]byte(nil), raw...)
		mut[i] ^= 0x80
		require.False(t, a.Verify(body, base64.StdEncoding.EncodeToString(mut), testURL), "sig byte %d", i)
	}
}

func TestVerify_MalformedSignatureIsFalse(t *testing.T) {
	a := secureAuth(t)
	body := []byte(`{}`)
	sig := SignBase64([]byte(testSecret), testURL, body)
	for _, s := range []string{"", "%%%", "c2hvcnQ=", sig[:len(sig)-4]} {
		require.False(t, a.Verify(body, s, testURL), s)
	}
	require.False(t, a.Verify(body, sig, testURL+"/other"))
	require.False(t, a.Verify(body, SignBase64([]byte("wrong"), testURL, body), testURL))
}

func TestNewAuthenticator_ModeValidation(t *testing.T) {
	_, err := NewAuthenticator(Secure, "", zap.NewNop())
	require.ErrorIs(t, err, ErrMissingSecret)
	_, err = NewAuthenticator(InsecureExplicit, "s", zap.NewNop())
	require.ErrorIs(t, err, ErrUnexpectedSecret)

	m, err := ParseMode("insecure_explicit")
	require.NoError(t, err)
	require.Equal(t, InsecureExplicit, m)
	_, err = ParseMode("off")
	require.Error(t, err)
}

func TestInsecureMode_WarnsLoudly(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	a, err := NewAuthenticator(InsecureExplicit, "", zap.New(core))
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len(), "startup warning")

	require.True(t, a.Verify([]byte("anything"), "", testURL))
	require.True(t, a.Verify([]byte("again"), "junk", testURL))
	require.Equal(t, 3, logs.Len())
	require.Equal(t, 2, logs.FilterMessage("webhook_signature_bypassed").Len())
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"event_id":" evt_9 ","type":"order.updated","merchant_id":"m","data":{"x":1}}`))
	require.NoError(t, err)
	require.Equal(t, "evt_9", ev.EventID)
	require.JSONEq(t, `{"x":1}`, string(ev.Data))

	for _, in := range []string{`not json`, `{}`, `{"event_id":""}`, `[]`} {
		_, err := ParseEvent([]byte(in))
		require.ErrorIs(t, err, ErrMalformedPayload, in)
	}
}

func TestDeduper_OncePerID(t *testing.T) {
	d := NewDeduper(0, 0)
	require.True(t, d.ShouldProcess("evt_1"))
	require.False(t, d.ShouldProcess("evt_1"))
	require.True(t, d.ShouldProcess("evt_2"))
	require.Equal(t, 2, d.Len())
}

func TestDeduper_EvictsOldestHalfByInsertion(t *testing.T) {
	d := NewDeduper(1000, 500)
	for i := 0; i < 1000; i++ {
		require.True(t, d.ShouldProcess(fmt.Sprintf("e%d", i)))
	}
	require.Equal(t, 1000, d.Len())
	// re-ver un id viejo no lo refresca (no es LRU)
	require.False(t, d.ShouldProcess("e0"))

	require.True(t, d.ShouldProcess("e1000"))
	require.Equal(t, 501, d.Len())

	for i := 500; i <= 1000; i++ {
		require.False(t, d.ShouldProcess(fmt.Sprintf("e%d", i)), "retained id %d", i)
	}
	for i := 0; i < 10; i++ {
		require.True(t, d.ShouldProcess(fmt.Sprintf("e%d", i)), "evicted id %d", i)
	}
	require.Equal(t, 511, d.Len())
}

func TestDeduper_Concurrent(t *testing.T) {
	d := NewDeduper(0, 0)
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.ShouldProcess("same") {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins)
}

func TestDispatcher_ProcessesAndSurvivesFailures(t *testing.T) {
	var mu sync.Mutex
	var got []string
	proc := ProcessorFunc(func(ctx context.Context, ev Event) error {
		if ev.EventID == "panic" {
			panic("boom")
		}
		mu.Lock()
		got = append(got, ev.EventID)
		mu.Unlock()
		if ev.EventID == "fail" {
			return errors.New("downstream")
		}
		return nil
	})
	d := NewDispatcher(proc, DispatcherOptions{Workers: 2, Logger: zap.NewNop()})
	for _, id := range []string{"a", "panic", "fail", "b"} {
		require.NoError(t, d.Submit(Event{EventID: id}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	require.ElementsMatch(t, []string{"a", "fail", "b"}, got)

	require.ErrorIs(t, d.Submit(Event{EventID: "late"}), ErrDispatcherClosed)
	require.NoError(t, d.Close(ctx))
}

func TestDispatcher_QueueFull(t *testing.T) {
	block := make(chan struct{})
	proc := ProcessorFunc(func(ctx context.Context, ev Event) error {
		<-block
		return nil
	})
	d := NewDispatcher(proc, DispatcherOptions{Workers: 1, QueueSize: 1, Logger: zap.NewNop()})
	require.NoError(t, d.Submit(Event{EventID: "1"}))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, d.Submit(Event{EventID: "2"}))
	require.ErrorIs(t, d.Submit(Event{EventID: "3"}), ErrQueueFull)
	close(block)
	require.NoError(t, d.Close(context.Background()))
}

type fakeRemover struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeRemover) Remove(ctx context.Context, platform, merchantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, platform+"/"+merchantID)
	return nil
}

func TestRevocationProcessor(t *testing.T) {
	rm := &fakeRemover{}
	var next int32
	p := RevocationProcessor{Platform: "square", Vault: rm, Next: ProcessorFunc(func(context.Context, Event) error {
		atomic.AddInt32(&next, 1)
		return nil
	})}

	require.NoError(t, p.Process(context.Background(), Event{EventID: "1", Type: "order.created", MerchantID: "m"}))
	require.NoError(t, p.Process(context.Background(), Event{EventID: "2", Type: EventTypeAuthorizationRevoked, MerchantID: "m"}))
	require.Equal(t, []string{"square/m"}, rm.removed)
	require.EqualValues(t, 2, next)
}

func TestReceiver_DuplicateDeliveryDispatchedOnce(t *testing.T) {
	var dispatched int32
	d := NewDispatcher(ProcessorFunc(func(ctx context.Context, ev Event) error {
		atomic.AddInt32(&dispatched, 1)
		return nil
	}), DispatcherOptions{Logger: zap.NewNop()})
	r := &Receiver{Auth: secureAuth(t), Dedupe: NewDeduper(0, 0), Dispatcher: d}

	body := []byte(`{"event_id":"evt_1","type":"order.created","merchant_id":"merchant_x"}`)
	sig := SignBase64([]byte(testSecret), testURL, body)

	out1, err := r.Receive(context.Background(), body, sig, testURL)
	require.NoError(t, err)
	require.False(t, out1.Duplicate)
	out2, err := r.Receive(context.Background(), body, sig, testURL)
	require.NoError(t, err)
	require.True(t, out2.Duplicate)
	require.Equal(t, "evt_1", out2.EventID)

	require.NoError(t, d.Close(context.Background()))
	require.EqualValues(t, 1, atomic.LoadInt32(&dispatched))
}

func TestReceiver_QueueFullIsRetryable(t *testing.T) {
	block := make(chan struct{})
	var mu sync.Mutex
	var processed []string
	d := NewDispatcher(ProcessorFunc(func(ctx context.Context, ev Event) error {
		<-block
		mu.Lock()
		processed = append(processed, ev.EventID)
		mu.Unlock()
		return nil
	}), DispatcherOptions{Workers: 1, QueueSize: 1, Logger: zap.NewNop()})
	r := &Receiver{Auth: secureAuth(t), Dedupe: NewDeduper(0, 0), Dispatcher: d}

	deliver := func(id string) (*Outcome, error) {
		body := []byte(`{"event_id":"` + id + `","type":"order.created"}`)
		return r.Receive(context.Background(), body, SignBase64([]byte(testSecret), testURL, body), testURL)
	}

	_, err := deliver("a")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	_, err = deliver("b")
	require.NoError(t, err)

	// worker ocupado y cola llena
	_, err = deliver("c")
	require.ErrorIs(t, err, ErrDispatchUnavailable)
	require.ErrorIs(t, err, ErrQueueFull)
	require.Equal(t, 2, r.Dedupe.Len())

	close(block)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(processed) == 2
	}, time.Second, time.Millisecond)

	out, err := deliver("c")
	require.NoError(t, err)
	require.False(t, out.Duplicate)

	require.NoError(t, d.Close(context.Background()))
	require.ElementsMatch(t, []string{"a", "b", "c"}, processed)
}

func TestReceiver_ClosedDispatcherIsRetryable(t *testing.T) {
	d := NewDispatcher(LoggingProcessor{}, DispatcherOptions{Logger: zap.NewNop()})
	require.NoError(t, d.Close(context.Background()))
	r := &Receiver{Auth: secureAuth(t), Dedupe: NewDeduper(0, 0), Dispatcher: d}

	body := []byte(`{"event_id":"evt_shutdown","type":"order.created"}`)
	_, err := r.Receive(context.Background(), body, SignBase64([]byte(testSecret), testURL, body), testURL)
	require.ErrorIs(t, err, ErrDispatchUnavailable)
	require.ErrorIs(t, err, ErrDispatcherClosed)
	require.Zero(t, r.Dedupe.Len())
}

func TestDeduper_Forget(t *testing.T) {
	d := NewDeduper(10, 5)
	require.True(t, d.ShouldProcess("x"))
	require.True(t, d.ShouldProcess("y"))
	d.Forget("x")
	d.Forget("missing")
	require.Equal(t, 1, d.Len())
	require.True(t, d.ShouldProcess("x"))
	require.False(t, d.ShouldProcess("y"))
}

func TestReceiver_RejectsBeforeParsing(t *testing.T) {
	d := NewDispatcher(LoggingProcessor{}, DispatcherOptions{Logger: zap.NewNop()})
	defer d.Close(context.Background())
	r := &Receiver{Auth: secureAuth(t), Dedupe: NewDeduper(0, 0), Dispatcher: d}

	_, err := r.Receive(context.Background(), []byte(`not json`), "bad", testURL)
	require.ErrorIs(t, err, ErrInvalidSignature)

	body := []byte(`not json`)
	_, err = r.Receive(context.Background(), body, SignBase64([]byte(testSecret), testURL, body), testURL)
	require.ErrorIs(t, err, ErrMalformedPayload)
	require.Zero(t, r.Dedupe.Len())
}
