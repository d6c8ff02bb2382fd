// Package gen provides the built-in registry of id/default-value generator
// functions a schema field can name in its `@default(...)` attribute:
// cuid(), uuid()/uuidv7(), nanoid(n), ulid(), and now(). The planner's
// create/update path resolves a field's declared generator name through
// this registry when no explicit value was supplied for it.
package gen

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Func produces one generated value. Implementations must be safe for
// concurrent use; concurrent requests planned against one Registry may call
// the same Func at once.
type Func func(ctx context.Context) (any, error)

// Registry maps a schema-declared generator name to its Func.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns a Registry preloaded with the built-in generators.
func NewRegistry() *Registry {
	r := &Registry{funcs: map[string]Func{}}
	r.Register("cuid", CUID)
	r.Register("uuid", UUIDv4)
	r.Register("uuid4", UUIDv4)
	r.Register("uuidv7", UUIDv7)
	r.Register("uuid7", UUIDv7)
	r.Register("ulid", ULID)
	r.Register("now", Now)
	return r
}

// Register adds or replaces the generator named name.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Nanoid registers the parameterized `nanoid(n)` generator for size n, under
// the given name, so the planner can resolve it like any other builtin.
func (r *Registry) Nanoid(name string, n int) {
	r.Register(name, func(ctx context.Context) (any, error) {
		return NanoID(n)
	})
}

// Get resolves name to its Func, reporting ok=false when no generator is
// registered under it.
func (r *Registry) Get(name string) (Func, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// CUID returns a collision-resistant id in the shape of a cuid: a lowercase
// 'c' prefix, a base36-encoded millisecond timestamp, and base36-encoded
// random entropy. No Go cuid library is available in the reference corpus
// (see DESIGN.md), so this reproduces the format directly on crypto/rand.
func CUID(ctx context.Context) (any, error) {
	ts := base36(uint64(time.Now().UnixMilli()))
	entropy, err := randomBase36(16)
	if err != nil {
		return nil, fmt.Errorf("gen: cuid: %w", err)
	}
	return "c" + ts + entropy, nil
}

// UUIDv4 returns a random (version 4) UUID.
func UUIDv4(ctx context.Context) (any, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("gen: uuid: %w", err)
	}
	return id.String(), nil
}

// UUIDv7 returns a time-ordered (version 7) UUID.
func UUIDv7(ctx context.Context) (any, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("gen: uuidv7: %w", err)
	}
	return id.String(), nil
}

// ULID returns a monotonic, lexicographically time-sortable id.
func ULID(ctx context.Context) (any, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return nil, fmt.Errorf("gen: ulid: %w", err)
	}
	return id.String(), nil
}

// Now returns the current time, for `@updatedAt`/`@default(now())` fields.
func Now(ctx context.Context) (any, error) {
	return time.Now(), nil
}

const nanoidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// NanoID returns a random n-character id drawn from the standard nanoid
// alphabet. Not wired to a third-party library: the reference corpus
// carries none, and the algorithm is a direct crypto/rand draw too small
// to justify a dependency (see DESIGN.md).
func NanoID(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("gen: nanoid: size must be positive, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("gen: nanoid: %w", err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = nanoidAlphabet[int(b)%len(nanoidAlphabet)]
	}
	return string(out), nil
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

func base36(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = base36Alphabet[v%36]
		v /= 36
	}
	return string(buf[i:])
}

func randomBase36(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = base36Alphabet[int(b)%len(base36Alphabet)]
	}
	return string(out), nil
}
