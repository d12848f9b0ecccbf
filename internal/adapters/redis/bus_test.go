package redisad_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	redisad "staybook/internal/adapters/redis"
	"staybook/internal/domain"
)

func TestBus_PublishReachesSubscriber(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := redisad.NewBus(redisad.NewClient(mr.Addr(), "", 0))
	ctx := context.Background()

	stream, err := bus.Subscribe(ctx, domain.CollectionHotels)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	snap := domain.Snapshot{
		"h1": json.RawMessage(`{"name":"Protea","price":1450,"imageUrl":"https://img/p.jpg"}`),
	}
	if err := bus.Publish(ctx, domain.CollectionHotels, snap); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-stream.Snapshots():
		if len(got) != 1 {
			t.Fatalf("unexpected snapshot: %+v", got)
		}
		if _, ok := got["h1"]; !ok {
			t.Fatalf("missing document in snapshot: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no snapshot delivered")
	}
}

func TestBus_CollectionsAreIsolated(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := redisad.NewBus(redisad.NewClient(mr.Addr(), "", 0))
	ctx := context.Background()

	stream, err := bus.Subscribe(ctx, domain.CollectionBookings)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	if err := bus.Publish(ctx, domain.CollectionHotels, domain.Snapshot{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-stream.Snapshots():
		t.Fatalf("snapshot leaked across collections: %+v", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBus_CloseUnblocksEvenWithoutConsumer(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := redisad.NewBus(redisad.NewClient(mr.Addr(), "", 0))
	ctx := context.Background()

	stream, err := bus.Subscribe(ctx, domain.CollectionHotels)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Nobody reads Snapshots(); the pump must still shut down on Close.
	for i := 0; i < 3; i++ {
		_ = bus.Publish(ctx, domain.CollectionHotels, domain.Snapshot{})
	}

	done := make(chan error, 1)
	go func() { done <- stream.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Close blocked")
	}

	// Closing twice is a no-op.
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestBus_MalformedPayloadDropped(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisad.NewClient(mr.Addr(), "", 0)
	bus := redisad.NewBus(client)
	ctx := context.Background()

	stream, err := bus.Subscribe(ctx, domain.CollectionHotels)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	if err := client.Publish(ctx, "snapshot:hotels", "{not json").Err(); err != nil {
		t.Fatalf("raw publish: %v", err)
	}
	if err := bus.Publish(ctx, domain.CollectionHotels, domain.Snapshot{"h1": json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-stream.Snapshots():
		// The bad message is skipped; the next good one arrives intact.
		if _, ok := got["h1"]; !ok {
			t.Fatalf("expected the well-formed snapshot, got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no snapshot delivered")
	}
}
