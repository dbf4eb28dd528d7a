package job

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultQueueKey = "flock:jobs"

// Broker is the durable task queue between the request tier and the
// worker pool.
type Broker interface {
	Enqueue(ctx context.Context, payload []byte) error
	// Dequeue blocks up to timeout; a nil payload with nil error means
	// the wait expired without work.
	Dequeue(ctx context.Context, timeout time.Duration) ([]byte, error)
	Healthy(ctx context.Context) error
	Close() error
}

type redisBroker struct {
	client *redis.Client
	key    string
}

func NewRedisBroker(queueURL string) (Broker, error) {
	opts, err := redis.ParseURL(queueURL)
	if err != nil {
		return nil, err
	}
	return &redisBroker{
		client: redis.NewClient(opts),
		key:    defaultQueueKey,
	}, nil
}

func (b *redisBroker) Enqueue(ctx context.Context, payload []byte) error {
	return b.client.LPush(ctx, b.key, payload).Err()
}

func (b *redisBroker) Dequeue(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := b.client.BRPop(ctx, timeout, b.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPOP returns [key, value]
	if len(res) != 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}

func (b *redisBroker) Healthy(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *redisBroker) Close() error {
	return b.client.Close()
}
