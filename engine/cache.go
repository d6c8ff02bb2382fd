package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	velox "github.com/zenstackhq/zenstack-v3-sub005"
	"github.com/zenstackhq/zenstack-v3-sub005/exec"
	"github.com/zenstackhq/zenstack-v3-sub005/planner"
)

// UseCache wires an opt-in read-aside cache onto every read call (FindMany,
// FindUnique, FindFirst, Count and their variants). ttl of 0 means cached
// entries never expire on their own; the Cache implementation's Delete and
// DeletePrefix remain the caller's tool for explicit invalidation after a
// write.
func (c *Client) UseCache(cache velox.Cache, ttl time.Duration) {
	c.cache = cache
	c.cacheTTL = ttl
}

// cacheKey renders a velox.CacheKey from a read call's shape. Where,
// Select, Include and Distinct are marshaled through encoding/json, whose
// map output always sorts keys, so two calls with the same arguments in a
// different construction order still collide on the same key.
func cacheKey(model string, op planner.Operation, args planner.Args) velox.CacheKey {
	predicates, _ := json.Marshal(struct {
		Where    map[string]any `json:"where,omitempty"`
		Select   map[string]any `json:"select,omitempty"`
		Include  map[string]any `json:"include,omitempty"`
		Distinct []string       `json:"distinct,omitempty"`
		Cursor   *planner.CursorArgs `json:"cursor,omitempty"`
	}{args.Where, args.Select, args.Include, args.Distinct, args.Cursor})
	orderBy, _ := json.Marshal(args.OrderBy)
	return velox.CacheKey{
		Table:      model,
		Operation:  string(op),
		Predicates: string(predicates),
		OrderBy:    string(orderBy),
		Limit:      args.Take,
		Offset:     args.Skip,
	}
}

// runCached executes a read op through the configured cache, deduping
// concurrent identical misses with a singleflight.Group so a burst of
// requests for the same uncached key runs the query once. With no cache
// configured it is exactly c.run.
func (c *Client) runCached(ctx context.Context, model string, op planner.Operation, args planner.Args) (*exec.Outcome, error) {
	if c.cache == nil {
		return c.run(ctx, model, op, args)
	}

	key := cacheKey(model, op, args).String()
	if raw, err := c.cache.Get(ctx, key); err == nil && raw != nil {
		var out exec.Outcome
		if err := msgpack.Unmarshal(raw, &out); err == nil {
			return &out, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		out, err := c.run(ctx, model, op, args)
		if err != nil {
			return nil, err
		}
		if raw, mErr := msgpack.Marshal(out); mErr == nil {
			_ = c.cache.Set(ctx, key, raw, c.cacheTTL)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*exec.Outcome), nil
}
