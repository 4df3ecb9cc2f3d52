package authevents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rxportal/rxcore/internal/audit"
	"github.com/rxportal/rxcore/internal/auth"
	"github.com/rxportal/rxcore/internal/infrastructure/mqtt"
)

var testAt = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func loginEvent() auth.Event {
	return auth.Event{
		Type:    auth.EventLoginSucceeded,
		Outcome: auth.OutcomeSuccess,
		UserID:  "usr-1",
		Email:   "dr@test.com",
		Role:    auth.RoleDoctor,
		At:      testAt,
	}
}

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic, payload, qos, retained})
	return f.err
}

type fakeWriter struct {
	calls [][4]string
}

func (f *fakeWriter) WriteAuthEvent(event, outcome, role string, at time.Time) {
	f.calls = append(f.calls, [4]string{event, outcome, role, at.Format(time.RFC3339)})
}

type fakeRecorder struct {
	entries []*audit.Entry
}

func (f *fakeRecorder) Record(e *audit.Entry) {
	f.entries = append(f.entries, e)
}

type sinkFunc func(context.Context, auth.Event)

func (f sinkFunc) Emit(ctx context.Context, e auth.Event) { f(ctx, e) }

func TestMQTTSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub, mqtt.NewTopics("rxcore"), 1, nil)

	sink.Emit(context.Background(), loginEvent())

	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.topic != "rxcore/events/auth/login_succeeded" || msg.qos != 1 || msg.retained {
		t.Errorf("message = %s qos=%d retained=%v", msg.topic, msg.qos, msg.retained)
	}

	var got map[string]any
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got["type"] != "login_succeeded" || got["userId"] != "usr-1" || got["role"] != "doctor" {
		t.Errorf("payload = %v", got)
	}
}

func TestMQTTSink_PublishErrorIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: mqtt.ErrNotConnected}
	sink := NewMQTTSink(pub, mqtt.NewTopics("rxcore"), 1, nil)

	sink.Emit(context.Background(), loginEvent())

	if len(pub.msgs) != 1 {
		t.Errorf("publish attempts = %d, want 1", len(pub.msgs))
	}
}

func TestInfluxSink(t *testing.T) {
	w := &fakeWriter{}
	NewInfluxSink(w).Emit(context.Background(), loginEvent())

	want := [4]string{"login_succeeded", "success", "doctor", "2026-03-01T09:30:00Z"}
	if len(w.calls) != 1 || w.calls[0] != want {
		t.Errorf("calls = %v, want [%v]", w.calls, want)
	}
}

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	if err != nil {
		t.Fatalf("NewPrometheusSink() error = %v", err)
	}

	ctx := context.Background()
	sink.Emit(ctx, loginEvent())
	sink.Emit(ctx, loginEvent())
	sink.Emit(ctx, auth.Event{Type: auth.EventLoginFailed, Outcome: auth.OutcomeFailure})

	if got := testutil.ToFloat64(sink.total.WithLabelValues("login_succeeded", "success")); got != 2 {
		t.Errorf("login_succeeded = %v, want 2", got)
	}

	expected := `
# HELP rxcore_auth_events_total Authentication events by type and outcome.
# TYPE rxcore_auth_events_total counter
rxcore_auth_events_total{event="login_failed",outcome="failure"} 1
rxcore_auth_events_total{event="login_succeeded",outcome="success"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "rxcore_auth_events_total"); err != nil {
		t.Error(err)
	}

	if _, err := NewPrometheusSink(reg); err == nil {
		t.Error("registering the counter twice should fail")
	}
}

func TestAuditSink(t *testing.T) {
	rec := &fakeRecorder{}
	sink := NewAuditSink(rec)
	ctx := context.Background()

	sink.Emit(ctx, loginEvent())
	sink.Emit(ctx, auth.Event{
		Type:    auth.EventLoginFailed,
		Outcome: auth.OutcomeFailure,
		Email:   "nobody@test.com",
		Reason:  "unknown_email",
		At:      testAt,
	})
	sink.Emit(ctx, auth.Event{Type: auth.EventPasswordChanged, Outcome: auth.OutcomeSuccess, UserID: "usr-2", At: testAt})
	sink.Emit(ctx, auth.Event{Type: "something_else"})

	if len(rec.entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(rec.entries))
	}

	login := rec.entries[0]
	if login.Action != audit.ActionLogin || login.EntityType != audit.EntitySession || login.UserID != "usr-1" {
		t.Errorf("login entry = %+v", login)
	}
	if login.Source != audit.SourceAuth || !login.CreatedAt.Equal(testAt) {
		t.Errorf("login source/time = %s/%v", login.Source, login.CreatedAt)
	}
	if _, ok := login.Details["email"]; ok {
		t.Error("email should only be recorded when no user is known")
	}

	failed := rec.entries[1]
	if failed.Action != audit.ActionLoginFailed || failed.Details["email"] != "nobody@test.com" || failed.Details["reason"] != "unknown_email" {
		t.Errorf("failed entry = %+v", failed)
	}

	pw := rec.entries[2]
	if pw.EntityType != audit.EntityUser || pw.EntityID != "usr-2" {
		t.Errorf("password entry = %+v", pw)
	}
}

func TestFanout(t *testing.T) {
	var got []string
	record := func(name string) auth.EventSink {
		return sinkFunc(func(_ context.Context, e auth.Event) {
			got = append(got, name+":"+string(e.Type))
		})
	}
	panicky := sinkFunc(func(context.Context, auth.Event) { panic(errors.New("boom")) })

	f := NewFanout(nil, record("a"), nil, panicky, record("b"))
	if f.Len() != 3 {
		t.Errorf("Len() = %d, want 3", f.Len())
	}

	f.Emit(context.Background(), loginEvent())

	if strings.Join(got, ",") != "a:login_succeeded,b:login_succeeded" {
		t.Errorf("delivered = %v", got)
	}
}

func TestAsync(t *testing.T) {
	pub := &fakePublisher{}
	a := NewAsync("mqtt", NewMQTTSink(pub, mqtt.NewTopics("rxcore"), 1, nil), 2, nil)

	for range 5 {
		a.Emit(context.Background(), loginEvent())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Run(ctx)

	if len(pub.msgs) != 2 {
		t.Errorf("delivered = %d, want 2 (queue size)", len(pub.msgs))
	}
}
