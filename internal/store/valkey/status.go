package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/maraichr/nightcrawler/pkg/models"
)

// Each entry is a hash: "owner" holds the token of the job that acquired it,
// "status" the JSON snapshot. The scripts keep check-and-write atomic.
const fieldStatus = "status"

// KEYS[1] entry; ARGV[1] owner, ARGV[2] status, ARGV[3] ttl seconds (0 = none).
var acquireScript = valkey.NewLuaScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'owner', ARGV[1], 'status', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('EXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// Same arguments as acquireScript. Writes only while ARGV[1] owns the entry.
var updateScript = valkey.NewLuaScript(`
if redis.call('HGET', KEYS[1], 'owner') ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('EXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// KEYS[1] entry; ARGV[1] owner.
var releaseScript = valkey.NewLuaScript(`
if redis.call('HGET', KEYS[1], 'owner') == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// StatusStore keeps queue statuses under prefix+key. When ttl is positive
// every write (re)arms the expiry, so an entry left behind by a crashed worker
// disappears on its own. Writes and deletes are conditional on the owner
// token, so a job whose entry expired cannot touch its successor's.
type StatusStore struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
}

func NewStatusStore(client valkey.Client, prefix string, ttl time.Duration) *StatusStore {
	return &StatusStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *StatusStore) TryAcquire(ctx context.Context, key, owner string, status models.QueueStatus) (bool, error) {
	data, err := json.Marshal(status)
	if err != nil {
		return false, fmt.Errorf("marshal queue status: %w", err)
	}

	n, err := acquireScript.Exec(ctx, s.client,
		[]string{s.prefix + key},
		[]string{owner, string(data), s.ttlArg()}).AsInt64()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", key, err)
	}
	return n == 1, nil
}

func (s *StatusStore) Update(ctx context.Context, key, owner string, status models.QueueStatus) (bool, error) {
	data, err := json.Marshal(status)
	if err != nil {
		return false, fmt.Errorf("marshal queue status: %w", err)
	}

	n, err := updateScript.Exec(ctx, s.client,
		[]string{s.prefix + key},
		[]string{owner, string(data), s.ttlArg()}).AsInt64()
	if err != nil {
		return false, fmt.Errorf("update %s: %w", key, err)
	}
	return n == 1, nil
}

func (s *StatusStore) Get(ctx context.Context, key string) (models.QueueStatus, bool, error) {
	data, err := s.client.Do(ctx, s.client.B().Hget().Key(s.prefix+key).Field(fieldStatus).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return models.QueueStatus{}, false, nil
		}
		return models.QueueStatus{}, false, fmt.Errorf("get %s: %w", key, err)
	}

	var status models.QueueStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return models.QueueStatus{}, false, fmt.Errorf("unmarshal queue status %s: %w", key, err)
	}
	return status, true, nil
}

func (s *StatusStore) Release(ctx context.Context, key, owner string) error {
	err := releaseScript.Exec(ctx, s.client, []string{s.prefix + key}, []string{owner}).Error()
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// Ping checks that Valkey answers.
func (s *StatusStore) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

func (s *StatusStore) ttlArg() string {
	if s.ttl <= 0 {
		return "0"
	}
	return strconv.FormatInt(ttlSeconds(s.ttl), 10)
}

func ttlSeconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
