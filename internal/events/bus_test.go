package events

import (
	"encoding/json"
	"testing"
	"time"
)

// ── Publish/Subscribe ─────────────────────────────────────────────────

func TestBusPublishSubscribe(t *testing.T) {
	t.Run("subscriber_receives_published_event", func(t *testing.T) {
		b := NewBus(16)
		ch, cancel := b.Subscribe(Filter{})
		defer cancel()

		b.Publish("run-1", "u1", "transcript", map[string]string{"msg": "hello"})

		select {
		case evt := <-ch:
			if evt.Type != "transcript" || evt.RunID != "run-1" || evt.UserID != "u1" {
				t.Errorf("event = %+v", evt)
			}
			if evt.ID == "" {
				t.Error("expected non-empty event ID")
			}
			var payload map[string]string
			if err := json.Unmarshal(evt.Data, &payload); err != nil {
				t.Fatalf("Data is not valid JSON: %v", err)
			}
			if payload["msg"] != "hello" {
				t.Errorf("payload msg = %q, want hello", payload["msg"])
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("filtered_by_run", func(t *testing.T) {
		b := NewBus(16)
		ch, cancel := b.Subscribe(Filter{RunID: "run-2"})
		defer cancel()

		b.Publish("run-1", "u1", "phase", "x")

		select {
		case evt := <-ch:
			t.Fatalf("should not receive event, got %+v", evt)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("filtered_by_user_and_type", func(t *testing.T) {
		f := Filter{UserID: "u1", Types: []string{"turn", "complete"}}
		cases := []struct {
			e    Event
			want bool
		}{
			{Event{UserID: "u1", Type: "turn"}, true},
			{Event{UserID: "u1", Type: "phase"}, false},
			{Event{UserID: "u2", Type: "turn"}, false},
		}
		for _, c := range cases {
			if got := f.matches(c.e); got != c.want {
				t.Errorf("matches(%+v) = %v, want %v", c.e, got, c.want)
			}
		}
	})

	t.Run("cancel_stops_delivery", func(t *testing.T) {
		b := NewBus(16)
		ch, cancel := b.Subscribe(Filter{})
		cancel()
		if b.SubscriberCount() != 0 {
			t.Errorf("SubscriberCount = %d after cancel", b.SubscriberCount())
		}

		b.Publish("run-1", "u1", "phase", "x")

		select {
		case <-ch:
			t.Fatal("should not receive event after cancel")
		case <-time.After(50 * time.Millisecond):
		}
	})
}

// ── Replay ────────────────────────────────────────────────────────────

func TestBusReplaySince(t *testing.T) {
	b := NewBus(4)
	for i := 0; i < 3; i++ {
		b.Publish("run-1", "u1", "turn", i)
	}
	b.Publish("run-2", "u1", "turn", 99)

	all := b.ReplaySince("", Filter{RunID: "run-1"})
	if len(all) != 3 {
		t.Fatalf("replay all = %d events, want 3", len(all))
	}

	after := b.ReplaySince(all[0].ID, Filter{RunID: "run-1"})
	if len(after) != 2 || string(after[0].Data) != "1" {
		t.Errorf("replay after first = %+v", after)
	}

	t.Run("ring_wraps", func(t *testing.T) {
		b.Publish("run-1", "u1", "turn", 3)
		got := b.ReplaySince("", Filter{RunID: "run-1"})
		if len(got) != 3 || string(got[0].Data) != "1" {
			t.Errorf("after wrap = %d events, first %s", len(got), got[0].Data)
		}
		if evicted := b.ReplaySince(all[0].ID, Filter{}); len(evicted) != 0 {
			t.Errorf("replay from evicted id = %d events, want 0", len(evicted))
		}
	})
}
