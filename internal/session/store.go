package session

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store — опциональное Redis-хранилище сессионного слоя:
//   - single-flight замок обновления: из нескольких вкладок, одновременно
//     поймавших истёкший access-токен, обновляет пару только одна;
//   - отметки logout-all: сессии, выпущенные до отметки, считаются отозванными.
//
// В Redis не хранится ни один токен в открытом виде — только sha256-хэши.
type Store interface {
	// TryRefreshLock — попытка захватить замок обновления по refresh-токену.
	TryRefreshLock(ctx context.Context, refreshToken string) (bool, error)
	// MarkLoggedOutAll ставит отметку «все сессии пользователя отозваны в at».
	MarkLoggedOutAll(ctx context.Context, userID string, at time.Time, ttl time.Duration) error
	// LoggedOutAllAt возвращает момент отметки и признак её наличия.
	LoggedOutAllAt(ctx context.Context, userID string) (time.Time, bool, error)
	// Close закрывает клиент Redis.
	Close() error
}

// refreshLockTTL — окно, в котором дубль-обновления с тем же refresh-токеном
// считаются гонкой вкладок. Должно с запасом покрывать таймаут обмена.
const refreshLockTTL = 15 * time.Second

type redisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore создаёт хранилище из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "bff:".
func NewRedisStore(redisURL, prefix string) (Store, error) {
	if prefix == "" {
		prefix = "bff:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &redisStore{rdb: rdb, prefix: prefix}, nil
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (s *redisStore) TryRefreshLock(ctx context.Context, refreshToken string) (bool, error) {
	key := s.prefix + "rl:" + hashKey(refreshToken)
	return s.rdb.SetNX(ctx, key, "1", refreshLockTTL).Result()
}

func (s *redisStore) MarkLoggedOutAll(ctx context.Context, userID string, at time.Time, ttl time.Duration) error {
	key := s.prefix + "rev:" + hashKey(userID)
	return s.rdb.Set(ctx, key, strconv.FormatInt(at.Unix(), 10), ttl).Err()
}

func (s *redisStore) LoggedOutAllAt(ctx context.Context, userID string) (time.Time, bool, error) {
	key := s.prefix + "rev:" + hashKey(userID)

	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	unix, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}

	return time.Unix(unix, 0).UTC(), true, nil
}

func (s *redisStore) Close() error { return s.rdb.Close() }
