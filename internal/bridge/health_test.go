package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/displaybus/monitord/internal/ddc"
)

// fakePublisher records published health messages.
type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMsg
	connected bool
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMsg{topic: topic, payload: payload, retained: retained})
	return nil
}

func (f *fakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePublisher) last(t *testing.T) HealthMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		t.Fatal("no health message published")
	}
	var msg HealthMessage
	if err := json.Unmarshal(f.published[len(f.published)-1].payload, &msg); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	return msg
}

// fakeStats provides fixed fleet figures.
type fakeStats struct {
	count int
	stats ddc.Stats
}

func (f *fakeStats) Count() int       { return f.count }
func (f *fakeStats) Stats() ddc.Stats { return f.stats }

func newTestReporter(pub *fakePublisher, fl HealthStatsSource) *HealthReporter {
	return NewHealthReporter(HealthReporterConfig{
		Version:   "test",
		Interval:  time.Hour,
		Publisher: pub,
		Fleet:     fl,
	})
}

func TestPublishNowHealthy(t *testing.T) {
	pub := &fakePublisher{connected: true}
	fl := &fakeStats{count: 2, stats: ddc.Stats{Writes: 10, Reads: 4}}
	h := newTestReporter(pub, fl)

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msg := pub.last(t)
	if msg.Status != HealthHealthy {
		t.Errorf("status = %s, want healthy", msg.Status)
	}
	if msg.DevicesManaged != 2 {
		t.Errorf("devices = %d, want 2", msg.DevicesManaged)
	}
	if msg.Statistics == nil || msg.Statistics.Writes != 10 {
		t.Errorf("statistics = %+v", msg.Statistics)
	}

	pub.mu.Lock()
	m := pub.published[len(pub.published)-1]
	pub.mu.Unlock()
	if m.topic != "monitord/health" || !m.retained {
		t.Errorf("published to %s retained=%v, want retained monitord/health", m.topic, m.retained)
	}
}

func TestPublishNowDegradedWhenDisconnected(t *testing.T) {
	pub := &fakePublisher{connected: false}
	h := newTestReporter(pub, &fakeStats{})

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msg := pub.last(t)
	if msg.Status != HealthDegraded {
		t.Errorf("status = %s, want degraded", msg.Status)
	}
	if msg.Reason == "" {
		t.Error("degraded status should carry a reason")
	}
}

func TestEmptyFleetStillHealthy(t *testing.T) {
	pub := &fakePublisher{connected: true}
	h := newTestReporter(pub, &fakeStats{count: 0})

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msg := pub.last(t)
	if msg.Status != HealthHealthy {
		t.Errorf("status = %s, want healthy with zero devices", msg.Status)
	}
	if msg.DevicesManaged != 0 {
		t.Errorf("devices = %d, want 0", msg.DevicesManaged)
	}
}

func TestPublishStarting(t *testing.T) {
	pub := &fakePublisher{connected: true}
	h := newTestReporter(pub, &fakeStats{})

	if err := h.PublishStarting(); err != nil {
		t.Fatalf("PublishStarting() error = %v", err)
	}

	if msg := pub.last(t); msg.Status != HealthStarting {
		t.Errorf("status = %s, want starting", msg.Status)
	}
}

func TestStopPublishesStopping(t *testing.T) {
	pub := &fakePublisher{connected: true}
	h := newTestReporter(pub, &fakeStats{})

	h.Start(context.Background())
	h.Stop()

	if msg := pub.last(t); msg.Status != HealthStopping {
		t.Errorf("status = %s, want stopping", msg.Status)
	}

	// Second Stop is a no-op
	h.Stop()
}

func TestLWT(t *testing.T) {
	h := newTestReporter(&fakePublisher{}, &fakeStats{})

	if topic := h.GetLWTTopic(); topic != "monitord/health" {
		t.Errorf("LWT topic = %q", topic)
	}

	payload, err := h.GetLWTPayload()
	if err != nil {
		t.Fatalf("GetLWTPayload() error = %v", err)
	}

	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal LWT: %v", err)
	}
	if msg.Status != HealthOffline {
		t.Errorf("LWT status = %s, want offline", msg.Status)
	}
}
