package presence

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/support-chat/internal/domain"
)

const (
	// UsersKey maps username -> role for every online identity.
	UsersKey = "online_users"
	// ConnectionsKey maps username -> number of live connections.
	ConnectionsKey = "online_connections"
)

// removeScript decrements the connection count and drops both hash fields
// once it reaches zero. Returns 1 when the identity went offline.
var removeScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[2], ARGV[1], -1)
if n <= 0 then
  redis.call('HDEL', KEYS[2], ARGV[1])
  redis.call('HDEL', KEYS[1], ARGV[1])
  return 1
end
return 0
`)

// RedisRegistry stores presence in Redis hashes shared by every server process.
type RedisRegistry struct {
	client redis.UniversalClient
}

// NewRedisRegistry builds a registry on top of client.
func NewRedisRegistry(client redis.UniversalClient) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Set(ctx context.Context, username string, role domain.Role) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, UsersKey, username, string(role))
		pipe.HIncrBy(ctx, ConnectionsKey, username, 1)
		return nil
	})
	return err
}

func (r *RedisRegistry) Remove(ctx context.Context, username string) (bool, error) {
	gone, err := removeScript.Run(ctx, r.client, []string{UsersKey, ConnectionsKey}, username).Int()
	if err != nil {
		return false, err
	}
	return gone == 1, nil
}

func (r *RedisRegistry) Exists(ctx context.Context, username string) (bool, error) {
	return r.client.HExists(ctx, UsersKey, username).Result()
}

func (r *RedisRegistry) Snapshot(ctx context.Context) ([]Entry, error) {
	raw, err := r.client.HGetAll(ctx, UsersKey).Result()
	if err != nil {
		return nil, err
	}
	result := make([]Entry, 0, len(raw))
	for name, role := range raw {
		result = append(result, Entry{Username: name, Role: domain.Role(role)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}
