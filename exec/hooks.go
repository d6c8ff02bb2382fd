// Package exec runs a planner.Program: it sequences each Step through
// registered plugins, opens and closes transactions as needed, and
// hands compiled SQL to a driver.Driver.
package exec

import (
	"context"

	"github.com/zenstackhq/zenstack-v3-sub005/driver"
	"github.com/zenstackhq/zenstack-v3-sub005/planner"
)

// MutationFilter is the merged outcome of every registered Plugin's
// MutationInterceptionFilter for one request. Fields combine across
// plugins with logical OR: if any plugin asks for a behavior, the
// executor performs it for the whole request.
type MutationFilter struct {
	Intercept                         bool
	UseTransactionForMutation         bool
	LoadBeforeMutationEntities        bool
	LoadAfterMutationEntities         bool
	RunAfterMutationWithinTransaction bool
}

func mergeFilters(fs []MutationFilter) MutationFilter {
	var out MutationFilter
	for _, f := range fs {
		out.Intercept = out.Intercept || f.Intercept
		out.UseTransactionForMutation = out.UseTransactionForMutation || f.UseTransactionForMutation
		out.LoadBeforeMutationEntities = out.LoadBeforeMutationEntities || f.LoadBeforeMutationEntities
		out.LoadAfterMutationEntities = out.LoadAfterMutationEntities || f.LoadAfterMutationEntities
		out.RunAfterMutationWithinTransaction = out.RunAfterMutationWithinTransaction || f.RunAfterMutationWithinTransaction
	}
	return out
}

// EntityMutation is what a Plugin's before/after hooks observe about one
// mutation step: the target model and operation, and whichever row images
// the merged filter asked the executor to load.
type EntityMutation struct {
	Model string
	Op    planner.Operation

	BeforeColumns []string
	Before        []driver.Row

	AfterColumns []string
	After        []driver.Row
}

// Plugin is the hook surface a caller registers on an Executor. A plugin
// that only cares about some mutations returns intercept=false from
// MutationInterceptionFilter for the rest and leaves the before/after
// methods as no-ops.
type Plugin interface {
	// Name identifies the plugin in diagnostics; it does not need to be
	// unique.
	Name() string

	// MutationInterceptionFilter is consulted once per mutating request,
	// before any SQL runs. ok=false excludes this plugin from the merge
	// entirely (equivalent to every MutationFilter field false).
	MutationInterceptionFilter(ctx context.Context, model string, op planner.Operation) (filter MutationFilter, ok bool)

	// BeforeEntityMutation runs after pre-images are loaded (if
	// requested) but before the statement executes. Returning an error
	// aborts the mutation.
	BeforeEntityMutation(ctx context.Context, m EntityMutation) error

	// AfterEntityMutation runs once the statement (and, for a batch, all
	// of its sibling statements) has executed. Its visibility relative to
	// the surrounding transaction is governed by
	// RunAfterMutationWithinTransaction.
	AfterEntityMutation(ctx context.Context, m EntityMutation) error
}

// BasePlugin implements Plugin with every method a no-op, so a concrete
// plugin can embed it and override only the methods it needs — the same
// way CommitFunc/RollbackFunc let a bare function stand in for the full
// Committer/Rollbacker interface.
type BasePlugin struct{ PluginName string }

func (p BasePlugin) Name() string {
	if p.PluginName == "" {
		return "plugin"
	}
	return p.PluginName
}

func (BasePlugin) MutationInterceptionFilter(context.Context, string, planner.Operation) (MutationFilter, bool) {
	return MutationFilter{}, false
}

func (BasePlugin) BeforeEntityMutation(context.Context, EntityMutation) error { return nil }
func (BasePlugin) AfterEntityMutation(context.Context, EntityMutation) error  { return nil }
