package readstate

import (
	"context"
	"errors"
	"fmt"

	"github.com/adamavenir/streamsync/internal/types"
	"github.com/redis/go-redis/v9"
)

const redisMaxRetries = 8

// Redis stores read state in Redis so several clients of the same user share it.
type Redis struct {
	client *redis.Client
	ctx    context.Context
	prefix string
}

// NewRedis connects to addr and verifies the server answers.
func NewRedis(addr, password string, db int) (*Redis, error) {
	r := &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ctx:    context.Background(),
		prefix: "streamsync:readstate:",
	}
	if err := r.client.Ping(r.ctx).Err(); err != nil {
		_ = r.client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return r, nil
}

func (r *Redis) key(conversationID string) string {
	return r.prefix + conversationID
}

func (r *Redis) get(conversationID string) (types.ReadState, error) {
	data, err := r.client.Get(r.ctx, r.key(conversationID)).Bytes()
	if err == redis.Nil {
		return types.ReadState{ConversationID: conversationID}, nil
	}
	if err != nil {
		return types.ReadState{}, err
	}
	return decodeState(conversationID, data)
}

// update applies fn under WATCH so concurrent writers never lose an increment
// or lower the watermark.
func (r *Redis) update(conversationID string, fn mutation) (types.ReadState, bool, error) {
	key := r.key(conversationID)
	var (
		result  types.ReadState
		changed bool
	)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(r.ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		state, err := decodeState(conversationID, data)
		if err != nil {
			return err
		}
		changed = fn(&state)
		result = state
		if !changed {
			return nil
		}
		encoded, err := encodeState(state)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(r.ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(r.ctx, key, encoded, 0)
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := r.client.Watch(r.ctx, txf, key)
		if err == nil {
			return result, changed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return types.ReadState{}, false, err
	}
	return types.ReadState{}, false, fmt.Errorf("redis read state %s: too much contention", conversationID)
}

func (r *Redis) LastRead(conversationID string) (int64, bool, error) {
	state, err := r.get(conversationID)
	if err != nil {
		return 0, false, err
	}
	return state.LastReadID, state.HasLastRead, nil
}

func (r *Redis) SetLastRead(conversationID string, id int64) (bool, error) {
	_, changed, err := r.update(conversationID, advanceLastRead(id))
	return changed, err
}

func (r *Redis) UnreadCount(conversationID string) (int, error) {
	state, err := r.get(conversationID)
	if err != nil {
		return 0, err
	}
	return state.UnreadCount, nil
}

func (r *Redis) SetUnreadCount(conversationID string, count int) error {
	_, _, err := r.update(conversationID, setUnread(count))
	return err
}

func (r *Redis) IncrementUnreadCount(conversationID string) (int, error) {
	state, _, err := r.update(conversationID, incrementUnread)
	if err != nil {
		return 0, err
	}
	return state.UnreadCount, nil
}

func (r *Redis) ClearUnreadCount(conversationID string) error {
	return r.SetUnreadCount(conversationID, 0)
}

// Delete removes a conversation's record.
func (r *Redis) Delete(conversationID string) error {
	return r.client.Del(r.ctx, r.key(conversationID)).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
