package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/redis/go-redis/v9"

	"github.com/speechscroll/prompterd/internal/domain"
	"github.com/speechscroll/prompterd/internal/secure"
	"github.com/speechscroll/prompterd/internal/utils"
)

// RedisStore persists scripts and archived session audio in Redis,
// encrypted at rest. Audio entries expire, scripts do not.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	crypter *secure.Crypter
}

func NewRedisStore(connStr string, encryptionKey string) (*RedisStore, error) {
	opt, err := redis.ParseURL(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	goapp.Log.Info().Str("redis", opt.Addr).Int("db", opt.DB).Send()
	rdb := redis.NewClient(opt)

	crypter, err := secure.NewCrypter(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("create crypter: %w", err)
	}

	return &RedisStore{
		client:  rdb,
		ttl:     time.Hour * 6,
		crypter: crypter,
	}, nil
}

func (r *RedisStore) keyScript(userID string) string {
	return fmt.Sprintf("script:%s", userID)
}

func (r *RedisStore) keyAudio(id string) string {
	return fmt.Sprintf("audio:%s", id)
}

// SaveScript stores the reference script for a user as encrypted JSON.
func (r *RedisStore) SaveScript(ctx context.Context, userID string, script *domain.Script) error {
	data, err := json.Marshal(script)
	if err != nil {
		return err
	}
	encrypted, err := r.crypter.Encrypt(data)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}
	return r.client.Set(ctx, r.keyScript(userID), encrypted, 0).Err()
}

// GetScript returns the stored script or an empty one if none exists.
func (r *RedisStore) GetScript(ctx context.Context, userID string) (*domain.Script, error) {
	bs, err := r.client.Get(ctx, r.keyScript(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return &domain.Script{}, nil
		}
		return nil, fmt.Errorf("get script: %w", err)
	}
	decrypted, err := r.crypter.Decrypt(bs)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	var s domain.Script
	if err := json.Unmarshal(decrypted, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveAudio assembles PCM frames into an encrypted WAV with a TTL.
func (r *RedisStore) SaveAudio(ctx context.Context, id string, chunks [][]byte) error {
	defer utils.MeasureTime("saveAudio", time.Now())
	goapp.Log.Trace().Str("id", id).Msg("save audio")

	data, err := buildWAV(chunks)
	if err != nil {
		return fmt.Errorf("to wav: %w", err)
	}
	encrypted, err := r.crypter.Encrypt(data)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}
	return r.client.Set(ctx, r.keyAudio(id), encrypted, r.ttl).Err()
}

// GetAudio returns an archived WAV by ID.
func (r *RedisStore) GetAudio(ctx context.Context, id string) ([]byte, error) {
	goapp.Log.Trace().Str("id", id).Msg("get audio")
	b, err := r.client.Get(ctx, r.keyAudio(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("not found")
		}
		return nil, err
	}
	decrypted, err := r.crypter.Decrypt(b)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return decrypted, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
