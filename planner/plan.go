package planner

import (
	"fmt"

	velox "github.com/zenstackhq/zenstack-v3-sub005"
	"github.com/zenstackhq/zenstack-v3-sub005/ast"
	"github.com/zenstackhq/zenstack-v3-sub005/gen"
	"github.com/zenstackhq/zenstack-v3-sub005/namemap"
	"github.com/zenstackhq/zenstack-v3-sub005/policy"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// Plan compiles one CRUD call into a Program: a rewritten, physically
// named, policy-enforced sequence of Steps ready for the executor.
//
// Every statement Step is rewritten in a fixed order — policy first, then
// name-mapping — so the policy compiler always sees logical model/field
// names (it reads schema.PolicyRule conditions, which are expressed in
// logical terms) and the name-mapping rewriter runs last, closest to the
// wire, translating whatever the policy rewriter added (its own joins and
// subqueries use logical table names too) down to physical identifiers in
// one final pass.
func Plan(s *schema.Schema, registry *gen.Registry, authValue any, op Operation, model string, args Args) (*Program, error) {
	m, err := s.Model(model)
	if err != nil {
		return nil, velox.NewQueryError(model, string(op), err)
	}

	switch op {
	case OpFindUnique, OpFindUniqueOrThrow, OpFindFirst, OpFindFirstOrThrow, OpFindMany:
		return planFind(s, m, op, args, authValue)
	case OpCount:
		sel, err := buildCount(s, m, "t", args)
		if err != nil {
			return nil, velox.NewQueryError(model, string(op), err)
		}
		step, err := finishReadStep(s, m, "t", schema.OpRead, sel, authValue)
		if err != nil {
			return nil, err
		}
		return &Program{Steps: []Step{step}, ResultShape: "count"}, nil
	case OpAggregate:
		sel, err := buildAggregate(s, m, "t", args)
		if err != nil {
			return nil, velox.NewQueryError(model, string(op), err)
		}
		step, err := finishReadStep(s, m, "t", schema.OpRead, sel, authValue)
		if err != nil {
			return nil, err
		}
		return &Program{Steps: []Step{step}, ResultShape: "aggregate"}, nil
	case OpGroupBy:
		sel, err := buildGroupBy(s, m, "t", args)
		if err != nil {
			return nil, velox.NewQueryError(model, string(op), err)
		}
		step, err := finishReadStep(s, m, "t", schema.OpRead, sel, authValue)
		if err != nil {
			return nil, err
		}
		return &Program{Steps: []Step{step}, ResultShape: "groups"}, nil
	case OpCreate:
		return planCreate(s, registry, authValue, m, args)
	case OpCreateMany, OpCreateManyAndReturn:
		return planCreateMany(s, registry, authValue, m, args, op == OpCreateManyAndReturn)
	case OpUpdate:
		return planUpdate(s, registry, authValue, m, args, false)
	case OpUpdateMany, OpUpdateManyAndReturn:
		return planUpdate(s, registry, authValue, m, args, true)
	case OpUpsert:
		return planUpsert(s, registry, authValue, m, args)
	case OpDelete:
		return planDelete(s, authValue, m, args, false)
	case OpDeleteMany:
		return planDelete(s, authValue, m, args, true)
	default:
		return nil, velox.NewInternalError("planner.Plan", fmt.Errorf("unsupported operation %q", op))
	}
}

// rewriteStatement applies policy then name-mapping to one planned
// statement node, in that fixed order.
func rewriteStatement(s *schema.Schema, authValue any, node ast.Node, alias string) (ast.Node, error) {
	rewritten, err := policy.Rewrite(s, authValue, node, policy.RewriteContext{Alias: alias})
	if err != nil {
		return nil, err
	}
	return namemap.Rewrite(s, rewritten)
}

func finishReadStep(s *schema.Schema, m *schema.Model, alias string, polOp schema.Operation, sel *ast.Select, authValue any) (Step, error) {
	rewritten, err := rewriteStatement(s, authValue, sel, alias)
	if err != nil {
		return Step{}, velox.NewQueryError(m.Name, string(polOp), err)
	}
	return stmt(m.Name, OpFindMany, alias, rewritten), nil
}

func planFind(s *schema.Schema, m *schema.Model, op Operation, args Args, authValue any) (*Program, error) {
	switch op {
	case OpFindUnique, OpFindUniqueOrThrow, OpFindFirst, OpFindFirstOrThrow:
		args.Take = 1
	}
	const alias = "t"
	fp, err := buildFind(s, m, alias, args)
	if err != nil {
		return nil, velox.NewQueryError(m.Name, string(op), err)
	}
	rewritten, err := rewriteStatement(s, authValue, fp.Select, alias)
	if err != nil {
		return nil, velox.NewQueryError(m.Name, string(op), err)
	}
	step := stmt(m.Name, op, alias, rewritten)
	shape := "rows"
	if op == OpFindUnique || op == OpFindUniqueOrThrow || op == OpFindFirst || op == OpFindFirstOrThrow {
		shape = "row"
	}
	return &Program{Steps: []Step{step}, ResultShape: shape}, nil
}

// planCreate runs the fully-precomputed nested-create builder, then
// rewrites every resulting statement (policy, then name-mapping) and
// marks the root insert for read-back.
func planCreate(s *schema.Schema, registry *gen.Registry, authValue any, m *schema.Model, args Args) (*Program, error) {
	cc := &createCtx{schema: s, registry: registry, auth: authValue}
	if _, err := cc.buildCreate(m, args.Data, nil); err != nil {
		return nil, velox.NewMutationError(m.Name, "create", err)
	}

	steps, err := rewriteSteps(s, authValue, cc.steps)
	if err != nil {
		return nil, velox.NewMutationError(m.Name, "create", err)
	}
	if len(steps) > 0 {
		last := len(steps) - 1
		if steps[last].Model == m.Name {
			steps[last].RequiresReadBack = true
			steps[last].ReadBackIDColumn = idFieldName(m)
		}
	}
	return &Program{Steps: []Step{txn(steps...)}, ResultShape: "row"}, nil
}

func planCreateMany(s *schema.Schema, registry *gen.Registry, authValue any, m *schema.Model, args Args, andReturn bool) (*Program, error) {
	rows, _ := args.Data["data"].([]any)
	cc := &createCtx{schema: s, registry: registry, auth: authValue}
	for _, r := range rows {
		row, _ := r.(map[string]any)
		if _, err := cc.buildCreate(m, row, nil); err != nil {
			return nil, velox.NewMutationError(m.Name, "createMany", err)
		}
	}
	steps, err := rewriteSteps(s, authValue, cc.steps)
	if err != nil {
		return nil, velox.NewMutationError(m.Name, "createMany", err)
	}
	shape := "count"
	if andReturn {
		shape = "rows"
		for i := range steps {
			if steps[i].Model == m.Name {
				steps[i].RequiresReadBack = true
				steps[i].ReadBackIDColumn = idFieldName(m)
			}
		}
	}
	return &Program{Steps: []Step{txn(steps...)}, ResultShape: shape}, nil
}

// planUpdate plans a single-row or bulk update. many selects updateMany
// semantics (no implicit LIMIT 1, bulk result shape).
func planUpdate(s *schema.Schema, registry *gen.Registry, authValue any, m *schema.Model, args Args, many bool) (*Program, error) {
	const alias = "t"
	uc := &updateCtx{schema: s, registry: registry, auth: authValue, adapter: args.Adapter}
	upd, err := uc.buildUpdate(m, alias, args.Where, args.Data)
	if err != nil {
		return nil, velox.NewMutationError(m.Name, "update", err)
	}
	if !many {
		upd = applyUpdateLimit(args.Adapter, m, alias, upd, 1)
	} else if args.Limit != nil {
		if m.BaseModel != "" || m.IsDelegate {
			return nil, velox.NewMutationError(m.Name, "updateMany", fmt.Errorf("updateMany with an explicit limit is not supported on a polymorphic model"))
		}
		upd = applyUpdateLimit(args.Adapter, m, alias, upd, *args.Limit)
	}

	var steps []Step
	steps = append(steps, uc.steps...)
	steps = append(steps, stmt(m.Name, OpUpdate, alias, upd))

	rewritten, err := rewriteSteps(s, authValue, steps)
	if err != nil {
		return nil, velox.NewMutationError(m.Name, "update", err)
	}
	shape := "row"
	if many {
		shape = "count"
	}
	last := len(rewritten) - 1
	rewritten[last].RequiresReadBack = !many
	rewritten[last].ReadBackIDColumn = idFieldName(m)
	return &Program{Steps: []Step{txn(rewritten...)}, ResultShape: shape}, nil
}

// planUpsert plans update-if-exists-else-create as a transaction: an
// UPDATE limited to 1 row, followed (only if it affected zero rows — a
// runtime decision left to the executor, which inspects the UPDATE's
// affected-row count) by the create branch. Both branches are planned up
// front; the executor chooses which create steps to run.
func planUpsert(s *schema.Schema, registry *gen.Registry, authValue any, m *schema.Model, args Args) (*Program, error) {
	where, _ := args.Data["where"].(map[string]any)
	if where == nil {
		where = args.Where
	}
	updateData, _ := args.Data["update"].(map[string]any)
	createData, _ := args.Data["create"].(map[string]any)

	const alias = "t"
	uc := &updateCtx{schema: s, registry: registry, auth: authValue, adapter: args.Adapter}
	upd, err := uc.buildUpdate(m, alias, where, updateData)
	if err != nil {
		return nil, velox.NewMutationError(m.Name, "upsert", err)
	}
	upd = applyUpdateLimit(args.Adapter, m, alias, upd, 1)
	updSteps, err := rewriteSteps(s, authValue, append(uc.steps, stmt(m.Name, OpUpdate, alias, upd)))
	if err != nil {
		return nil, velox.NewMutationError(m.Name, "upsert", err)
	}
	updSteps[len(updSteps)-1].RequiresReadBack = true
	updSteps[len(updSteps)-1].ReadBackIDColumn = idFieldName(m)

	cc := &createCtx{schema: s, registry: registry, auth: authValue}
	if _, err := cc.buildCreate(m, createData, nil); err != nil {
		return nil, velox.NewMutationError(m.Name, "upsert", err)
	}
	createSteps, err := rewriteSteps(s, authValue, cc.steps)
	if err != nil {
		return nil, velox.NewMutationError(m.Name, "upsert", err)
	}
	if len(createSteps) > 0 {
		last := len(createSteps) - 1
		createSteps[last].RequiresReadBack = true
		createSteps[last].ReadBackIDColumn = idFieldName(m)
	}

	return &Program{
		Steps: []Step{
			txn(updSteps...),
			txn(createSteps...),
		},
		ResultShape: "upsert",
	}, nil
}

// planDelete plans a single-row or bulk delete, cascading first per the
// delete path.
func planDelete(s *schema.Schema, authValue any, m *schema.Model, args Args, many bool) (*Program, error) {
	const alias = "t"
	dc := &deleteCtx{schema: s, adapter: args.Adapter}
	del, err := dc.buildDelete(m, alias, args.Where, many)
	if err != nil {
		return nil, velox.NewMutationError(m.Name, "delete", err)
	}
	if many && args.Limit != nil {
		if m.BaseModel != "" || m.IsDelegate {
			return nil, velox.NewMutationError(m.Name, "deleteMany", fmt.Errorf("deleteMany with an explicit limit is not supported on a polymorphic model"))
		}
		del = applyDeleteLimit(args.Adapter, m, alias, del, *args.Limit)
	}
	var steps []Step
	steps = append(steps, dc.steps...)
	steps = append(steps, stmt(m.Name, OpDelete, alias, del))
	steps = append(steps, dc.postSteps...)

	rewritten, err := rewriteSteps(s, authValue, steps)
	if err != nil {
		return nil, velox.NewMutationError(m.Name, "delete", err)
	}
	shape := "row"
	if many {
		shape = "count"
	}
	return &Program{Steps: []Step{txn(rewritten...)}, ResultShape: shape}, nil
}

// rewriteSteps runs policy-then-name-mapping over every statement Step's
// Node, preserving Step order and metadata.
func rewriteSteps(s *schema.Schema, authValue any, steps []Step) ([]Step, error) {
	out := make([]Step, len(steps))
	for i, st := range steps {
		if st.Kind != StepStatement {
			out[i] = st
			continue
		}
		rewritten, err := rewriteStatement(s, authValue, st.Node, st.PolicyAlias)
		if err != nil {
			return nil, err
		}
		st.Node = rewritten
		out[i] = st
	}
	return out, nil
}
