package redisad

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"staybook/internal/adapters/observability"
	"staybook/internal/domain"
)

// Bus fans collection snapshots out over redis pub/sub, one channel per
// collection. Delivery is at-most-once per subscriber; the document store
// remains the source of truth.
type Bus struct{ c *redis.Client }

func NewBus(c *redis.Client) *Bus { return &Bus{c: c} }

func channelFor(collection string) string { return "snapshot:" + collection }

func (b *Bus) Publish(ctx context.Context, collection string, snap domain.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return b.c.Publish(ctx, channelFor(collection), payload).Err()
}

func (b *Bus) Subscribe(ctx context.Context, collection string) (domain.SnapshotStream, error) {
	ps := b.c.Subscribe(ctx, channelFor(collection))
	// Confirm the subscription before handing the stream out, so a publish
	// issued right after Subscribe returns is not silently lost.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	s := &busStream{ps: ps, out: make(chan domain.Snapshot), done: make(chan struct{})}
	observability.ActiveSubscriptions.Inc()
	go s.pump(ps.Channel())
	return s, nil
}

type busStream struct {
	ps   *redis.PubSub
	out  chan domain.Snapshot
	done chan struct{}
	once sync.Once
	err  error
}

func (s *busStream) Snapshots() <-chan domain.Snapshot { return s.out }

// Close unsubscribes and unblocks the pump even when the consumer has already
// stopped reading, so Close is safe on every exit path.
func (s *busStream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
		observability.ActiveSubscriptions.Dec()
	})
	return s.err
}

func (s *busStream) pump(in <-chan *redis.Message) {
	defer close(s.out)
	for msg := range in {
		var snap domain.Snapshot
		if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
			log.Warn().Err(err).Str("channel", msg.Channel).Msg("malformed snapshot payload dropped")
			continue
		}
		select {
		case s.out <- snap:
		case <-s.done:
			return
		}
	}
}
