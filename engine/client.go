// Package engine hosts the generic Client facade: the untyped (model, args)
// entry point a generated typed client sits on top of. It lives outside the
// root package because it wires together planner, exec, and privacy — and
// planner and exec import the root package for its error types, so the
// facade cannot live there too without an import cycle.
package engine

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	velox "github.com/zenstackhq/zenstack-v3-sub005"
	"github.com/zenstackhq/zenstack-v3-sub005/exec"
	"github.com/zenstackhq/zenstack-v3-sub005/gen"
	"github.com/zenstackhq/zenstack-v3-sub005/planner"
	"github.com/zenstackhq/zenstack-v3-sub005/privacy"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// Op names the CRUD operation behind one Client call, mirroring
// planner.Operation without making every caller of Query/Mutation import
// the planner package.
type Op string

func (o Op) Is(other Op) bool { return o == other }

// Query is implemented by every read call a Plugin or policy rule might
// want to recognize without depending on its concrete argument shape.
type Query interface {
	Model() string
	Op() Op
}

// Mutation is Query's write-side analogue.
type Mutation interface {
	Model() string
	Op() Op
}

type call struct {
	model string
	op    Op
}

func (c call) Model() string { return c.model }
func (c call) Op() Op        { return c.op }

var (
	_ Query    = call{}
	_ Mutation = call{}
)

// Client is the generic, untyped facade a generated typed client would sit
// on top of: every model/operation pair is reached through (model, args)
// rather than per-model generated methods. It wires planner.Plan to
// exec.Executor and resolves each call's auth() value from the request
// context's privacy.Viewer.
type Client struct {
	schema   *schema.Schema
	registry *gen.Registry
	exec     *exec.Executor

	cache    velox.Cache
	cacheTTL time.Duration
	group    singleflight.Group
}

// NewClient builds a Client over an already-built schema, generator
// registry, and Executor (itself already bound to a driver and dialect
// adapter).
func NewClient(s *schema.Schema, registry *gen.Registry, executor *exec.Executor) *Client {
	return &Client{schema: s, registry: registry, exec: executor}
}

// Use registers plugins on the underlying Executor.
func (c *Client) Use(plugins ...exec.Plugin) { c.exec.Use(plugins...) }

// Transaction runs fn with every Client call it makes (via the context
// Transaction passes through) sharing one transaction, committing only if
// fn returns nil.
func (c *Client) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.exec.Transaction(ctx, fn)
}

func (c *Client) run(ctx context.Context, model string, op planner.Operation, args planner.Args) (*exec.Outcome, error) {
	auth := privacy.AuthValue(ctx)
	if args.Adapter == nil {
		args.Adapter = c.exec.Adapter()
	}
	prog, err := planner.Plan(c.schema, c.registry, auth, op, model, args)
	if err != nil {
		return nil, err
	}
	out, err := c.exec.Run(ctx, model, op, auth, prog)
	if err != nil {
		return nil, err
	}
	if op.OrThrow() && len(out.Rows) == 0 {
		return nil, velox.NewNotFoundError(model)
	}
	return out, nil
}

func (c *Client) FindUnique(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.runCached(ctx, model, planner.OpFindUnique, args)
}

func (c *Client) FindUniqueOrThrow(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.runCached(ctx, model, planner.OpFindUniqueOrThrow, args)
}

func (c *Client) FindFirst(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.runCached(ctx, model, planner.OpFindFirst, args)
}

func (c *Client) FindFirstOrThrow(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.runCached(ctx, model, planner.OpFindFirstOrThrow, args)
}

func (c *Client) FindMany(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.runCached(ctx, model, planner.OpFindMany, args)
}

func (c *Client) Count(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.runCached(ctx, model, planner.OpCount, args)
}

func (c *Client) Aggregate(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.run(ctx, model, planner.OpAggregate, args)
}

func (c *Client) GroupBy(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.run(ctx, model, planner.OpGroupBy, args)
}

func (c *Client) Create(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.run(ctx, model, planner.OpCreate, args)
}

func (c *Client) CreateMany(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.run(ctx, model, planner.OpCreateMany, args)
}

func (c *Client) CreateManyAndReturn(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.run(ctx, model, planner.OpCreateManyAndReturn, args)
}

func (c *Client) Update(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.run(ctx, model, planner.OpUpdate, args)
}

func (c *Client) UpdateMany(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.run(ctx, model, planner.OpUpdateMany, args)
}

func (c *Client) UpdateManyAndReturn(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.run(ctx, model, planner.OpUpdateManyAndReturn, args)
}

func (c *Client) Upsert(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.run(ctx, model, planner.OpUpsert, args)
}

func (c *Client) Delete(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.run(ctx, model, planner.OpDelete, args)
}

func (c *Client) DeleteMany(ctx context.Context, model string, args planner.Args) (*exec.Outcome, error) {
	return c.run(ctx, model, planner.OpDeleteMany, args)
}
