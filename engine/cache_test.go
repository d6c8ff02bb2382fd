package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenstackhq/zenstack-v3-sub005/planner"
)

// memCache is a minimal in-memory velox.Cache for exercising the
// read-aside caching path without a real backend.
type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemCache() *memCache { return &memCache{m: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[key], nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

func (c *memCache) DeletePrefix(context.Context, string) error { return nil }

func (c *memCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = map[string][]byte{}
	return nil
}

func TestClientFindManyServesSecondCallFromCache(t *testing.T) {
	s := testSchema(false)
	c, mock := newClient(t, s)
	c.UseCache(newMemCache(), time.Minute)

	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
		AddRow("u1", "a@example.com"))

	ctx := context.Background()
	args := planner.Args{Where: map[string]any{"email": "a@example.com"}}

	out1, err := c.FindMany(ctx, "User", args)
	require.NoError(t, err)
	require.Len(t, out1.Rows, 1)

	// second identical call must not touch the mock driver at all
	out2, err := c.FindMany(ctx, "User", args)
	require.NoError(t, err)
	require.Len(t, out2.Rows, 1)
	assert.Equal(t, "u1", out2.Rows[0][0])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClientFindManyDistinctArgsMissCacheSeparately(t *testing.T) {
	s := testSchema(false)
	c, mock := newClient(t, s)
	c.UseCache(newMemCache(), time.Minute)

	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
		AddRow("u1", "a@example.com"))
	mock.ExpectQuery(".*").WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
		AddRow("u2", "b@example.com"))

	ctx := context.Background()
	_, err := c.FindMany(ctx, "User", planner.Args{Where: map[string]any{"email": "a@example.com"}})
	require.NoError(t, err)
	_, err = c.FindMany(ctx, "User", planner.Args{Where: map[string]any{"email": "b@example.com"}})
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
