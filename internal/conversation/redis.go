package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hurricanerix/vizzy/internal/logging"
)

const (
	// DefaultKeyPrefix namespaces state keys in Redis.
	DefaultKeyPrefix = "vizzy:turn:"

	// maxTxRetries bounds optimistic retries when a WATCHed key changes.
	maxTxRetries = 10
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	// IdleTTL is refreshed on every update; Redis expires idle users.
	IdleTTL time.Duration
	Logger  *logging.Logger
}

// RedisStore keeps UserTurnState as JSON values in Redis.
//
// Update uses WATCH/MULTI so concurrent updates for the same user are
// serialized optimistically: if the key changes between the read and the
// write, the transaction is retried and fn runs again on fresh state.
// Update callbacks must therefore be free of side effects outside the
// state they are given.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	idleTTL time.Duration
	logger  *logging.Logger
}

// NewRedisStore creates a store connected to opts.Addr. It does not dial;
// call Ping to check connectivity.
func NewRedisStore(opts RedisOptions) *RedisStore {
	return NewRedisStoreWithClient(redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), opts)
}

// NewRedisStoreWithClient wraps an existing client. The store takes
// ownership and closes it in Close.
func NewRedisStoreWithClient(client *redis.Client, opts RedisOptions) *RedisStore {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &RedisStore{
		client:  client,
		prefix:  opts.KeyPrefix,
		idleTTL: opts.IdleTTL,
		logger:  opts.Logger,
	}
}

// Ping checks that Redis is reachable.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get returns the user's state.
func (r *RedisStore) Get(ctx context.Context, userID string) (UserTurnState, bool, error) {
	if userID == "" {
		return UserTurnState{}, false, ErrEmptyUserID
	}

	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return UserTurnState{}, false, nil
	}
	if err != nil {
		return UserTurnState{}, false, fmt.Errorf("redis get: %w", err)
	}

	var st UserTurnState
	if err := json.Unmarshal(data, &st); err != nil {
		return UserTurnState{}, false, fmt.Errorf("decode state: %w", err)
	}
	return st, true, nil
}

// Update reads, mutates and writes the user's state in one optimistic
// transaction and refreshes its TTL.
func (r *RedisStore) Update(ctx context.Context, userID string, fn UpdateFunc) (UserTurnState, error) {
	if userID == "" {
		return UserTurnState{}, ErrEmptyUserID
	}

	key := r.key(userID)
	var committed UserTurnState

	txf := func(tx *redis.Tx) error {
		st := UserTurnState{UserID: userID}

		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("redis get: %w", err)
		default:
			if err := json.Unmarshal(data, &st); err != nil {
				return fmt.Errorf("decode state: %w", err)
			}
		}

		if err := fn(&st); err != nil {
			return err
		}
		st.UserID = userID

		out, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode state: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, r.idleTTL)
			return nil
		})
		if err != nil {
			return err
		}
		committed = st
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return committed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Debug("state update for %s conflicted, retrying (%d/%d)", userID, i+1, maxTxRetries)
			continue
		}
		return UserTurnState{}, err
	}
	return UserTurnState{}, fmt.Errorf("%w: user %s", ErrConflict, userID)
}

// Delete removes the user's state.
func (r *RedisStore) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(userID string) string {
	return r.prefix + userID
}
