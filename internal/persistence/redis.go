package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reduxgo/redux/pkg/api"
)

// RedisPersistor is a Persistor backed by Redis. It uses a simple key
// structure:
//
//	<prefix>snapshot  => gob-encoded state
//	<prefix>saved_at  => RFC3339 timestamp of the last persist
type RedisPersistor[S any] struct {
	client *redis.Client
	prefix string
}

var _ api.Persistor[int] = (*RedisPersistor[int])(nil)

// NewRedisPersistor creates a RedisPersistor. prefix is optional but
// recommended (e.g. "myapp:"); it defaults to "redux:".
func NewRedisPersistor[S any](client *redis.Client, prefix string) *RedisPersistor[S] {
	if prefix == "" {
		prefix = "redux:"
	}
	return &RedisPersistor[S]{client: client, prefix: prefix}
}

func (p *RedisPersistor[S]) keySnapshot() string { return p.prefix + "snapshot" }

func (p *RedisPersistor[S]) keySavedAt() string { return p.prefix + "saved_at" }

func (p *RedisPersistor[S]) ReadState(ctx context.Context) (S, bool, error) {
	var zero S
	data, err := p.client.Get(ctx, p.keySnapshot()).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	state, err := decodeState[S](data)
	if err != nil {
		return zero, false, err
	}
	return state, true, nil
}

func (p *RedisPersistor[S]) PersistState(ctx context.Context, state S) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	pipe := p.client.TxPipeline()
	pipe.Set(ctx, p.keySnapshot(), data, 0)
	pipe.Set(ctx, p.keySavedAt(), time.Now().UTC().Format(time.RFC3339Nano), 0)
	_, err = pipe.Exec(ctx)
	return err
}

func (p *RedisPersistor[S]) DeleteState(ctx context.Context) error {
	return p.client.Del(ctx, p.keySnapshot(), p.keySavedAt()).Err()
}
