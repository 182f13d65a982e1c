package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// OnlineKey is the Redis set holding ids of users with a live connection.
const OnlineKey = "presence:online"

// Mirror publishes the registry's online set to Redis so that processes
// without the registry (the API) can answer presence queries. It is a
// read model only; the registry stays authoritative for routing.
type Mirror struct {
	rdb     *redis.Client
	timeout time.Duration
}

func NewMirror(rdb *redis.Client) *Mirror {
	return &Mirror{rdb: rdb, timeout: 2 * time.Second}
}

func (m *Mirror) Online(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.rdb.SAdd(ctx, OnlineKey, userID).Err()
}

func (m *Mirror) Offline(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.rdb.SRem(ctx, OnlineKey, userID).Err()
}

// Status reports, for each user, whether the mirror lists them online.
func (m *Mirror) Status(ctx context.Context, userIDs ...string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	members := make([]interface{}, len(userIDs))
	for i, id := range userIDs {
		members[i] = id
	}
	flags, err := m.rdb.SMIsMember(ctx, OnlineKey, members...).Result()
	if err != nil {
		return nil, err
	}
	for i, id := range userIDs {
		out[id] = flags[i]
	}
	return out, nil
}

// Members lists every user the mirror considers online.
func (m *Mirror) Members(ctx context.Context) ([]string, error) {
	return m.rdb.SMembers(ctx, OnlineKey).Result()
}
