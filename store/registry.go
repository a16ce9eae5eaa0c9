package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytevault/uploads/apperror"
	"github.com/bytevault/uploads/models"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "upload:session:"
	chunksKeyPrefix  = "upload:chunks:"
	guardKeyPrefix   = "upload:completing:"
)

// RedisSessionRegistry stores session metadata as JSON strings and the
// received-chunk set as a native Redis set, both under the session TTL.
type RedisSessionRegistry struct {
	client     *redis.Client
	sessionTTL time.Duration
}

func NewRedisSessionRegistry(client *redis.Client, sessionTTL time.Duration) *RedisSessionRegistry {
	return &RedisSessionRegistry{
		client:     client,
		sessionTTL: sessionTTL,
	}
}

func (r *RedisSessionRegistry) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisSessionRegistry) Name() string {
	return "SessionRegistry[redis]"
}

func (r *RedisSessionRegistry) CreateSession(ctx context.Context, session models.UploadSession, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, sessionKeyPrefix+session.SessionID, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session %s already exists", session.SessionID)
	}
	return nil
}

func (r *RedisSessionRegistry) GetSession(ctx context.Context, sessionID string) (*models.UploadSession, error) {
	payload, err := r.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session models.UploadSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// SetStatus rewrites the session record with the new status, keeping the
// remaining TTL so expiry still counts from creation.
func (r *RedisSessionRegistry) SetStatus(ctx context.Context, sessionID string, status models.SessionStatus) error {
	session, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Status = status

	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, sessionKeyPrefix+sessionID, payload, redis.KeepTTL).Err()
}

func (r *RedisSessionRegistry) DeleteSession(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, sessionKeyPrefix+sessionID).Err()
}

// AddReceivedChunk adds the index to the session's set. SADD is atomic and
// idempotent, which is exactly the contract chunk receipt needs. The set key
// picks up the session TTL on first insert, so the index bookkeeping never
// expires before the session record it belongs to.
func (r *RedisSessionRegistry) AddReceivedChunk(ctx context.Context, sessionID string, index int) error {
	key := chunksKeyPrefix + sessionID

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, index)
	pipe.ExpireNX(ctx, key, r.sessionTTL)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("add received chunk: %w", err)
	}
	return nil
}

func (r *RedisSessionRegistry) ReceivedChunks(ctx context.Context, sessionID string) ([]int, error) {
	members, err := r.client.SMembers(ctx, chunksKeyPrefix+sessionID).Result()
	if err != nil {
		return nil, fmt.Errorf("received chunks: %w", err)
	}

	indices := make([]int, 0, len(members))
	for _, m := range members {
		i, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("corrupt chunk index %q: %w", m, err)
		}
		indices = append(indices, i)
	}
	return indices, nil
}

func (r *RedisSessionRegistry) DeleteReceivedChunks(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, chunksKeyPrefix+sessionID).Err()
}

// BeginCompletion takes the per-session completion lock via SETNX. The lock
// carries its own TTL so a crashed completer cannot wedge the session
// forever.
func (r *RedisSessionRegistry) BeginCompletion(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, guardKeyPrefix+sessionID, time.Now().UnixNano(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("begin completion: %w", err)
	}
	return ok, nil
}

func (r *RedisSessionRegistry) EndCompletion(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, guardKeyPrefix+sessionID).Err()
}
