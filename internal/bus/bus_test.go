package bus

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestBus_PublishReachesSubscribers(t *testing.T) {
	b := New()

	var got atomic.Int32
	b.Subscribe(TopicPairingChanged, func(evt Event) {
		if evt.Topic != TopicPairingChanged {
			t.Errorf("topic = %q, want %q", evt.Topic, TopicPairingChanged)
		}
		got.Add(1)
	})
	b.Subscribe(TopicPairingChanged, func(Event) { got.Add(1) })

	b.Publish(TopicPairingChanged, nil)

	if n := got.Load(); n != 2 {
		t.Errorf("handlers called %d times, want 2", n)
	}
}

func TestBus_TopicsAreIsolated(t *testing.T) {
	b := New()

	var got atomic.Int32
	b.Subscribe(TopicAuthChanged, func(Event) { got.Add(1) })

	b.Publish(TopicJobsUpdated, nil)

	if n := got.Load(); n != 0 {
		t.Errorf("handler called %d times for unrelated topic, want 0", n)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()

	var got atomic.Int32
	id := b.Subscribe(TopicJobsUpdated, func(Event) { got.Add(1) })
	b.Unsubscribe(TopicJobsUpdated, id)

	b.Publish(TopicJobsUpdated, nil)

	if n := got.Load(); n != 0 {
		t.Errorf("handler called %d times after unsubscribe, want 0", n)
	}
}

func TestDedupeCache_SeenWithinTTL(t *testing.T) {
	d := NewDedupeCache(time.Minute, 100)

	if d.Seen("job-1") {
		t.Error("first Seen returned true")
	}
	if !d.Seen("job-1") {
		t.Error("second Seen returned false within TTL")
	}
	if d.Seen("job-2") {
		t.Error("unrelated key reported as seen")
	}
}

func TestDedupeCache_Expiry(t *testing.T) {
	d := NewDedupeCache(10*time.Millisecond, 100)

	d.Seen("job-1")
	time.Sleep(25 * time.Millisecond)

	if d.Seen("job-1") {
		t.Error("expired key still reported as seen")
	}
}

func TestDedupeCache_EvictsOverMaxSize(t *testing.T) {
	d := NewDedupeCache(time.Hour, 2)

	d.Seen("a")
	d.Seen("b")
	d.Seen("c") // evicts oldest

	if len(d.entries) > 2 {
		t.Errorf("cache size = %d, want <= 2", len(d.entries))
	}
}
