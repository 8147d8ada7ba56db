package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Overland-East-Bay/class-booking-api/internal/domain"
)

type recordingDeliverer struct {
	mu       sync.Mutex
	events   []domain.Event
	failures int
	got      chan struct{}
}

func (d *recordingDeliverer) Deliver(ctx context.Context, e domain.Event) error {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return errors.New("mailer unavailable")
	}
	d.events = append(d.events, e)
	d.got <- struct{}{}
	return nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func startRouter(t *testing.T, d Deliverer) Backend {
	t.Helper()
	logger := NewLogger(quietLogger())
	backend := NewInProcess(logger)

	router, err := NewRouter(RouterDeps{Subscriber: backend.Subscriber, Deliverer: d, Logger: logger})
	if err != nil {
		t.Fatalf("NewRouter err=%v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = router.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = backend.Close()
	})

	select {
	case <-router.Running():
	case <-time.After(5 * time.Second):
		t.Fatalf("router did not start")
	}
	return backend
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for delivery")
	}
}

func header() domain.EventHeader {
	return domain.EventHeader{
		BookingID:  "b1",
		MemberID:   "m1",
		SessionID:  "s1",
		OccurredAt: time.Date(2030, 1, 5, 9, 0, 0, 0, time.UTC),
	}
}

func TestSink_DeliversEventsThroughRouter(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{got: make(chan struct{}, 8)}
	backend := startRouter(t, d)
	sink := NewSink(backend.Publisher)

	sent := []domain.Event{
		domain.AddedToWaitlist{EventHeader: header(), Position: 2},
		domain.BookingCancelled{EventHeader: header(), PreviousStatus: domain.BookingStatusConfirmed, CreditRefunded: true},
	}
	for _, e := range sent {
		if err := sink.Emit(context.Background(), e); err != nil {
			t.Fatalf("Emit(%s) err=%v", e.EventName(), err)
		}
		waitFor(t, d.got)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.events) != len(sent) {
		t.Fatalf("delivered=%d, want %d", len(d.events), len(sent))
	}
	for i, e := range d.events {
		if !sameEvent(e, sent[i]) {
			t.Fatalf("delivered[%d]=%#v, want %#v", i, e, sent[i])
		}
	}
}

func TestRouter_RetriesFailedDelivery(t *testing.T) {
	t.Parallel()

	d := &recordingDeliverer{got: make(chan struct{}, 1), failures: 2}
	backend := startRouter(t, d)

	if err := NewSink(backend.Publisher).Emit(context.Background(), domain.PromotedFromWaitlist{EventHeader: header()}); err != nil {
		t.Fatalf("Emit err=%v", err)
	}
	waitFor(t, d.got)

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.events) != 1 || d.failures != 0 {
		t.Fatalf("events=%d failures left=%d", len(d.events), d.failures)
	}
}

func TestCodec_RoundTripsEveryTopic(t *testing.T) {
	t.Parallel()

	events := []domain.Event{
		domain.BookingConfirmed{EventHeader: header()},
		domain.AddedToWaitlist{EventHeader: header(), Position: 1},
		domain.BookingCancelled{EventHeader: header(), PreviousStatus: domain.BookingStatusWaitlisted},
		domain.PromotedFromWaitlist{EventHeader: header()},
		domain.SkippedInsufficientCredits{EventHeader: header()},
	}
	if len(events) != len(Topics) {
		t.Fatalf("topics=%v", Topics)
	}
	for _, e := range events {
		msg, err := encode(e)
		if err != nil {
			t.Fatalf("encode err=%v", err)
		}
		if msg.Metadata.Get("type") != e.EventName() || msg.Metadata.Get("booking_id") != "b1" {
			t.Fatalf("metadata=%v", msg.Metadata)
		}
		got, err := decode(msg)
		if err != nil {
			t.Fatalf("decode err=%v", err)
		}
		if !sameEvent(got, e) {
			t.Fatalf("decoded=%#v, want %#v", got, e)
		}
	}

	msg, _ := encode(domain.BookingConfirmed{EventHeader: header()})
	msg.Metadata.Set("type", "Unknown")
	if _, err := decode(msg); err == nil {
		t.Fatalf("decode of unknown type should fail")
	}
}

func sameEvent(a, b domain.Event) bool {
	if a.EventName() != b.EventName() {
		return false
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return bytes.Equal(ja, jb)
}
