package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestHub() *Hub {
	return NewHub(zerolog.Nop())
}

func newTestClient(recipientID string, buffer int) *Client {
	return &Client{
		ID:          uuid.New().String(),
		RecipientID: recipientID,
		Send:        make(chan []byte, buffer),
	}
}

func TestHub_PublishDeliversToRecipientRoom(t *testing.T) {
	hub := newTestHub()
	recipient := uuid.New().String()
	other := uuid.New().String()

	subscriber := newTestClient(recipient, 4)
	bystander := newTestClient(other, 4)
	hub.Register(subscriber)
	hub.Register(bystander)

	ev := Event{
		Type:        TypeClaimTransition,
		RecipientID: recipient,
		Payload:     json.RawMessage(`{"claim_id":"c1","status":"under_review"}`),
		Timestamp:   time.Now(),
	}
	if err := hub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case data := <-subscriber.Send:
		var got Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal delivered event: %v", err)
		}
		if got.Type != TypeClaimTransition || got.RecipientID != recipient {
			t.Errorf("delivered event %+v", got)
		}
	default:
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-bystander.Send:
		t.Fatal("bystander received event addressed to another identity")
	default:
	}
}

func TestHub_PublishWithoutSubscribersIsNoError(t *testing.T) {
	hub := newTestHub()
	ev := Event{Type: TypeConsentGranted, RecipientID: uuid.New().String(), Timestamp: time.Now()}
	if err := hub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish to empty room should not fail: %v", err)
	}
}

func TestHub_PublishSkipsFullBuffers(t *testing.T) {
	hub := newTestHub()
	recipient := uuid.New().String()
	subscriber := newTestClient(recipient, 1)
	hub.Register(subscriber)

	ev := Event{Type: TypeClaimCreated, RecipientID: recipient, Timestamp: time.Now()}
	for i := 0; i < 5; i++ {
		if err := hub.Publish(context.Background(), ev); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	// Only the buffered event survives; the rest were dropped, not blocked on.
	if got := len(subscriber.Send); got != 1 {
		t.Errorf("expected 1 buffered event, got %d", got)
	}
}

func TestHub_UnregisterClosesSendAndEmptiesRoom(t *testing.T) {
	hub := newTestHub()
	recipient := uuid.New().String()
	subscriber := newTestClient(recipient, 1)
	hub.Register(subscriber)

	if hub.RoomCount(recipient) != 1 || hub.ClientCount() != 1 {
		t.Fatal("expected one registered client")
	}

	hub.Unregister(subscriber)

	if hub.RoomCount(recipient) != 0 || hub.ClientCount() != 0 {
		t.Error("expected empty hub after unregister")
	}
	if _, open := <-subscriber.Send; open {
		t.Error("expected Send channel to be closed")
	}

	// Double unregister is a no-op.
	hub.Unregister(subscriber)
}

func TestHub_EachPublishIsOwnEvent(t *testing.T) {
	hub := newTestHub()
	recipient := uuid.New().String()
	subscriber := newTestClient(recipient, 8)
	hub.Register(subscriber)

	for _, status := range []string{"submitted", "under_review", "approved"} {
		payload, _ := json.Marshal(map[string]string{"status": status})
		ev := Event{Type: TypeClaimTransition, RecipientID: recipient, Payload: payload, Timestamp: time.Now()}
		if err := hub.Publish(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}

	// Rapid successive transitions must never be coalesced by the publisher.
	if got := len(subscriber.Send); got != 3 {
		t.Errorf("expected 3 delivered events, got %d", got)
	}
}
