package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/accessguard"
)

// RedisGroupStore keeps group records as JSON blobs (key: grp:{id})
// plus a per-user set of group ids (key: grpmem:{userID}) so
// GroupsForUser is a single SMEMBERS.
type RedisGroupStore struct {
	client    *redis.Client
	groupFmt  string // e.g. "grp:%s"
	memberFmt string // e.g. "grpmem:%s"
	indexKey  string // set of all group ids
}

func NewRedisGroupStore(client *redis.Client) *RedisGroupStore {
	return &RedisGroupStore{
		client:    client,
		groupFmt:  "grp:%s",
		memberFmt: "grpmem:%s",
		indexKey:  "grp:index",
	}
}

func (r *RedisGroupStore) groupKey(id string) string {
	return fmt.Sprintf(r.groupFmt, id)
}

func (r *RedisGroupStore) memberKey(userID string) string {
	return fmt.Sprintf(r.memberFmt, userID)
}

func (r *RedisGroupStore) CreateGroup(ctx context.Context, g *accessguard.UserGroup) error {
	ids, err := r.client.SMembers(ctx, r.indexKey).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		existing, err := r.GetGroup(ctx, id)
		if err != nil {
			continue
		}
		if existing.Name == g.Name {
			return &accessguard.ValidationError{Field: "name", Reason: fmt.Sprintf("group name %s already exists", g.Name)}
		}
	}
	return r.writeGroup(ctx, g, nil)
}

func (r *RedisGroupStore) UpdateGroup(ctx context.Context, g *accessguard.UserGroup) error {
	prev, err := r.GetGroup(ctx, g.ID)
	if err != nil {
		return err
	}
	return r.writeGroup(ctx, g, prev.UserIDs)
}

// writeGroup stores the blob and reconciles the per-user membership
// sets against the previous user list.
func (r *RedisGroupStore) writeGroup(ctx context.Context, g *accessguard.UserGroup, prevUsers []string) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.groupKey(g.ID), raw, 0).Err(); err != nil {
		return err
	}
	if err := r.client.SAdd(ctx, r.indexKey, g.ID).Err(); err != nil {
		return err
	}
	current := make(map[string]bool, len(g.UserIDs))
	for _, u := range g.UserIDs {
		current[u] = true
		if err := r.client.SAdd(ctx, r.memberKey(u), g.ID).Err(); err != nil {
			return err
		}
	}
	for _, u := range prevUsers {
		if current[u] {
			continue
		}
		if err := r.client.SRem(ctx, r.memberKey(u), g.ID).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisGroupStore) DeleteGroup(ctx context.Context, id string) error {
	g, err := r.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	for _, u := range g.UserIDs {
		if err := r.client.SRem(ctx, r.memberKey(u), id).Err(); err != nil {
			return err
		}
	}
	if err := r.client.SRem(ctx, r.indexKey, id).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, r.groupKey(id)).Err()
}

func (r *RedisGroupStore) GetGroup(ctx context.Context, id string) (*accessguard.UserGroup, error) {
	raw, err := r.client.Get(ctx, r.groupKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("group not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	var g accessguard.UserGroup
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *RedisGroupStore) ListGroups(ctx context.Context) ([]*accessguard.UserGroup, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*accessguard.UserGroup, 0, len(ids))
	for _, id := range ids {
		g, err := r.GetGroup(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (r *RedisGroupStore) GroupsForUser(ctx context.Context, userID string) ([]string, error) {
	res, err := r.client.SMembers(ctx, r.memberKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	return res, nil
}
