package memory

import (
	"context"
	"testing"
)

type refreshed struct {
	RunID string `json:"runId"`
}

func (refreshed) EventType() string { return "refresh.completed" }

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "release-events", refreshed{RunID: "run-1"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "other", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "release-events" || msgs[1].Topic != "other" {
		t.Fatalf("topics not recorded correctly: %+v", msgs)
	}
	if string(msgs[0].Data) != `{"runId":"run-1"}` {
		t.Fatalf("unexpected encoded payload %s", msgs[0].Data)
	}
	if msgs[0].Attributes["event_type"] != "refresh.completed" {
		t.Fatalf("expected event_type attribute, got %v", msgs[0].Attributes)
	}
	if len(msgs[1].Attributes) != 0 {
		t.Fatalf("untyped payload should carry no attributes, got %v", msgs[1].Attributes)
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	if _, err := New().Publish(context.Background(), "t", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
	if got := len(New().Messages()); got != 0 {
		t.Fatalf("expected no messages, got %d", got)
	}
}
