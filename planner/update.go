package planner

import (
	"fmt"

	"github.com/zenstackhq/zenstack-v3-sub005/ast"
	"github.com/zenstackhq/zenstack-v3-sub005/dialect"
	"github.com/zenstackhq/zenstack-v3-sub005/gen"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// updateCtx mirrors createCtx for the update path: schema/registry/auth
// plus the accumulated Steps for relation sub-operations, which planUpdate
// places before the primary UPDATE.
//
// Relation sub-operations that need this row's own id as a child FK value
// (create/createMany/connect/connectOrCreate/set on a non-owning relation)
// require that id to be known before planning them. No id is read up
// front: this planner supports them only when the filter names the id
// field(s) directly as literals (idsFromFilter below) — relation
// sub-writes on a non-id-filtered update are rejected at plan time with a
// MutationError, documented in DESIGN.md as a limitation that would
// otherwise require threading a runtime SELECT result into a later step.
type updateCtx struct {
	schema   *schema.Schema
	registry *gen.Registry
	auth     any
	steps    []Step

	// adapter reports the target dialect's UPDATE...LIMIT and array-literal
	// support; nil (the zero value most tests construct) falls back to the
	// most conservative behavior everywhere one of those is consulted.
	adapter dialect.Adapter
}

// buildUpdate plans model's update for filter×data.
// alias is the statement's own alias, reused by the policy rewriter later.
func (c *updateCtx) buildUpdate(m *schema.Model, alias string, filter, data map[string]any) (*ast.Update, error) {
	fc := newFilterCompiler(c.schema)
	where, err := fc.CompileWhere(m, alias, filter)
	if err != nil {
		return nil, err
	}
	return c.buildUpdateWhere(m, alias, where, filter, data)
}

// buildUpdateWhere is buildUpdate with the WHERE expression already
// compiled, so the delegate-base cascade below can reuse it verbatim to
// scope a correlated subquery against the leaf row instead of recompiling
// the caller's filter map against a model it may not even apply to.
func (c *updateCtx) buildUpdateWhere(m *schema.Model, alias string, where ast.Node, filter, data map[string]any) (*ast.Update, error) {
	scalars := map[string]any{}
	relations := map[string]any{}
	baseData := map[string]any{}
	for k, v := range data {
		f, ok := m.Fields[k]
		if !ok {
			return nil, fmt.Errorf("planner: unknown field %s.%s in update data", m.Name, k)
		}
		if !f.IsScalar() {
			relations[k] = v
			continue
		}
		// A field inherited from a delegate base physically lives on the
		// base's own table (mirrors buildCreate's delegate-base split) —
		// route it to a separate UPDATE against that table rather than
		// this row's own SET list.
		if f.OriginModel != "" && f.OriginModel != m.Name {
			baseData[k] = v
			continue
		}
		scalars[k] = v
	}

	if len(baseData) > 0 && m.BaseModel != "" {
		if err := c.buildBaseUpdate(m, alias, where, baseData); err != nil {
			return nil, err
		}
	}

	for _, name := range m.FieldOrder {
		f := m.Fields[name]
		if f.IsUpdatedAt {
			if _, has := scalars[name]; !has {
				scalars[name] = nowSentinel{}
			}
		}
	}

	sets, err := c.buildSetList(m, scalars)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		// A relation-only update (no scalar SET) still needs a valid
		// UPDATE statement to drive policy enforcement/read-back through
		// the same pipeline as every other mutation; a no-op
		// self-assignment on the id column is harmless and keeps this
		// path uniform with the scalar case.
		idField := m.Fields[m.IDFields()[0]]
		col := ast.Col(idField.DBColumn)
		sets = []ast.BinaryOp{*ast.Eq(col, col)}
	}

	if len(relations) > 0 {
		parentIDs := idsFromFilter(m, filter)
		relNames := sortedKeys2(relations)
		for _, name := range relNames {
			if err := c.resolveRelationUpdate(m, m.Fields[name], alias, relations[name], parentIDs); err != nil {
				return nil, err
			}
		}
	}

	upd := &ast.Update{
		Table: &ast.Table{Name: m.Name},
		Set:   sets,
	}
	if where != nil {
		upd.Where = &ast.Where{Expr: where}
	}
	return upd, nil
}

// buildBaseUpdate issues data (fields inherited from a delegate base) as a
// separate UPDATE against m.BaseModel's own table, scoped to the same rows
// as m's own update via a correlated EXISTS against the shared id column —
// the base model doesn't share m's field names or alias, so m's
// already-compiled WHERE is reused as an opaque correlated condition
// rather than recompiled against the base schema.
func (c *updateCtx) buildBaseUpdate(m *schema.Model, alias string, where ast.Node, data map[string]any) error {
	base, err := c.schema.Model(m.BaseModel)
	if err != nil {
		return err
	}
	baseAlias := alias + "_base"
	scopeSel := &ast.Select{
		Columns: []ast.Selection{{Expr: ast.Lit(1)}},
		From:    &ast.From{Table: ast.AliasOf(&ast.Table{Name: m.Name}, alias)},
	}
	cond := ast.Eq(ast.QCol(alias, idColumn(m)), ast.QCol(baseAlias, idColumn(base)))
	scopeSel.Where = &ast.Where{Expr: ast.And(cond, where)}

	sub := &updateCtx{schema: c.schema, registry: c.registry, auth: c.auth, adapter: c.adapter}
	baseUpd, err := sub.buildUpdateWhere(base, baseAlias, ast.Exists(scopeSel), nil, data)
	if err != nil {
		return err
	}
	c.steps = append(c.steps, sub.steps...)
	c.steps = append(c.steps, stmt(base.Name, OpUpdateMany, baseAlias, baseUpd))
	return nil
}

// idsFromFilter extracts literal id-field values directly named in filter,
// returning nil if the filter doesn't pin down every id field this way.
func idsFromFilter(m *schema.Model, filter map[string]any) map[string]any {
	out := map[string]any{}
	for _, idf := range m.IDFields() {
		v, ok := filter[idf]
		if !ok {
			return nil
		}
		if _, isMap := v.(map[string]any); isMap {
			return nil
		}
		out[idf] = v
	}
	return out
}

// nowSentinel marks a SET assignment that should render as the dialect's
// current-timestamp function rather than a bound literal.
type nowSentinel struct{}

// buildSetList compiles each scalar assignment, recognizing the `{set}`,
// numeric `{increment|decrement|multiply|divide}`, and array
// `{set|push}` forms.
func (c *updateCtx) buildSetList(m *schema.Model, scalars map[string]any) ([]ast.BinaryOp, error) {
	var sets []ast.BinaryOp
	names := sortedKeys2(scalars)
	for _, name := range names {
		f, ok := m.Fields[name]
		if !ok {
			return nil, fmt.Errorf("planner: unknown field %s.%s in update set", m.Name, name)
		}
		col := ast.Col(f.DBColumn)
		v := scalars[name]

		if _, ok := v.(nowSentinel); ok {
			sets = append(sets, *ast.Eq(col, &ast.Function{Name: "CURRENT_TIMESTAMP"}))
			continue
		}

		opMap, isMap := v.(map[string]any)
		if !isMap {
			sets = append(sets, *ast.Eq(col, ast.Lit(v)))
			continue
		}
		applied := false
		for op, val := range opMap {
			var expr ast.Node
			switch op {
			case "set":
				expr = ast.Lit(val)
			case "increment":
				expr = &ast.BinaryOp{Op: "+", Left: col, Right: ast.Lit(val)}
			case "decrement":
				expr = &ast.BinaryOp{Op: "-", Left: col, Right: ast.Lit(val)}
			case "multiply":
				expr = &ast.BinaryOp{Op: "*", Left: col, Right: ast.Lit(val)}
			case "divide":
				expr = &ast.BinaryOp{Op: "/", Left: col, Right: ast.Lit(val)}
			case "push":
				if c.adapter == nil || !c.adapter.SupportsArrays() {
					return nil, fmt.Errorf("planner: array push on %s.%s requires a dialect with native array support", m.Name, name)
				}
				expr = &ast.BinaryOp{Op: "||", Left: col, Right: arrayLiteral(val)}
			default:
				return nil, fmt.Errorf("planner: unsupported scalar update operator %q on %s.%s", op, m.Name, name)
			}
			sets = append(sets, *ast.Eq(col, expr))
			applied = true
		}
		if !applied {
			sets = append(sets, *ast.Eq(col, ast.Lit(v)))
		}
	}
	return sets, nil
}

// arrayLiteral renders v (a scalar or slice) as the dialect's array literal,
// resolved at compile time by the bound Adapter rather than hardcoded here —
// Postgres renders `ARRAY[...]`, a dialect without array support never
// reaches this point (buildSetList's push case rejects it first).
func arrayLiteral(v any) ast.Node {
	list, ok := v.([]any)
	if !ok {
		list = []any{v}
	}
	vals := make([]ast.Node, len(list))
	for i, e := range list {
		vals[i] = ast.Lit(e)
	}
	return &ast.DialectCall{Func: ast.DialectArrayLiteral, Args: vals}
}

// resolveRelationUpdate dispatches one relation key of an update payload
// (nested relation writes): create, createMany, connect, connectOrCreate,
// disconnect, set, update, updateMany, upsert, delete, deleteMany.
func (c *updateCtx) resolveRelationUpdate(m *schema.Model, f *schema.Field, parentAlias string, payload any, parentIDs map[string]any) error {
	ops, ok := payload.(map[string]any)
	if !ok {
		return fmt.Errorf("planner: relation payload for %s.%s must be an object", m.Name, f.Name)
	}
	rel := f.Relation
	target, err := c.schema.Model(rel.Model)
	if err != nil {
		return err
	}

	cc := &createCtx{schema: c.schema, registry: c.registry, auth: c.auth}

	opNames := sortedKeys2(ops)
	needsParentID := false
	for _, op := range opNames {
		switch op {
		case "create", "createMany", "connect", "connectOrCreate", "set", "upsert":
			needsParentID = true
		}
	}
	if needsParentID && parentIDs == nil && !rel.IsOwning() {
		return fmt.Errorf("planner: %s.%s relation write requires the row id, but the update filter does not name it directly", m.Name, f.Name)
	}

	for _, op := range opNames {
		val := ops[op]
		switch op {
		case "disconnect":
			if err := c.disconnect(m, f, target, val); err != nil {
				return err
			}
		case "delete":
			filter, _ := val.(map[string]any)
			if err := c.deleteRelated(target, filter, false); err != nil {
				return err
			}
		case "deleteMany":
			filter, _ := val.(map[string]any)
			if err := c.deleteRelated(target, filter, true); err != nil {
				return err
			}
		case "update":
			if err := c.updateRelated(f, target, val); err != nil {
				return err
			}
		case "updateMany":
			um, _ := val.(map[string]any)
			where, _ := um["where"].(map[string]any)
			data, _ := um["data"].(map[string]any)
			if err := c.updateManyRelated(f, target, where, data); err != nil {
				return err
			}
		case "set":
			setList, _ := val.([]any)
			childFK := fkFromParentIDs(m, f, target, parentIDs)
			for _, item := range setList {
				filter, _ := item.(map[string]any)
				if err := cc.connectChild(target, f, childFK, filter); err != nil {
					return err
				}
			}
			c.steps = append(c.steps, cc.steps...)
			cc.steps = nil
		case "upsert":
			up, _ := val.(map[string]any)
			where, _ := up["where"].(map[string]any)
			updateData, _ := up["update"].(map[string]any)
			createData, _ := up["create"].(map[string]any)
			if err := cc.resolveNonOwnedRelation(m, f, map[string]any{
				"connectOrCreate": map[string]any{"where": where, "create": createData},
			}, parentIDs); err != nil {
				return err
			}
			c.steps = append(c.steps, cc.steps...)
			cc.steps = nil
			if err := c.updateRelated(f, target, map[string]any{"where": where, "data": updateData}); err != nil {
				return err
			}
		default:
			if err := cc.resolveNonOwnedRelation(m, f, map[string]any{op: val}, parentIDs); err != nil {
				return err
			}
			c.steps = append(c.steps, cc.steps...)
			cc.steps = nil
		}
	}
	return nil
}

func (c *updateCtx) disconnect(m *schema.Model, f *schema.Field, target *schema.Model, filterOrTrue any) error {
	if f.Relation.ManyToMany {
		return fmt.Errorf("planner: many-to-many disconnect requires parent id context, not yet supported without a bare-id filter")
	}
	oppField, ok := target.Fields[f.Relation.Opposite]
	if !ok {
		return fmt.Errorf("planner: relation %s.%s has no opposite", m.Name, f.Name)
	}
	var sets []ast.BinaryOp
	for _, fk := range oppField.Relation.Fields {
		tf := target.Fields[fk]
		sets = append(sets, *ast.Eq(ast.Col(tf.DBColumn), ast.Raw("NULL")))
	}
	filter, _ := filterOrTrue.(map[string]any)
	fc := newFilterCompiler(c.schema)
	const alias = "dc"
	where, err := fc.CompileWhere(target, alias, filter)
	if err != nil {
		return err
	}
	upd := &ast.Update{Table: &ast.Table{Name: target.Name}, Set: sets, Where: &ast.Where{Expr: where}}
	c.steps = append(c.steps, stmt(target.Name, OpUpdate, alias, upd))
	return nil
}

func (c *updateCtx) deleteRelated(target *schema.Model, filter map[string]any, many bool) error {
	fc := newFilterCompiler(c.schema)
	const alias = "dl"
	where, err := fc.CompileWhere(target, alias, filter)
	if err != nil {
		return err
	}
	del := &ast.Delete{Table: &ast.Table{Name: target.Name}, Where: &ast.Where{Expr: where}}
	if !many {
		del = applyDeleteLimit(c.adapter, target, alias, del, 1)
	}
	c.steps = append(c.steps, stmt(target.Name, OpDelete, alias, del))
	return nil
}

func (c *updateCtx) updateRelated(f *schema.Field, target *schema.Model, val any) error {
	u, ok := val.(map[string]any)
	if !ok {
		return fmt.Errorf("planner: update payload for %s must be an object", f.Name)
	}
	where, _ := u["where"].(map[string]any)
	data, _ := u["data"].(map[string]any)
	if data == nil {
		data = u
	}
	sub := &updateCtx{schema: c.schema, registry: c.registry, auth: c.auth, adapter: c.adapter}
	upd, err := sub.buildUpdate(target, "u_"+f.Name, where, data)
	if err != nil {
		return err
	}
	upd = applyUpdateLimit(c.adapter, target, "u_"+f.Name, upd, 1)
	c.steps = append(c.steps, sub.steps...)
	c.steps = append(c.steps, stmt(target.Name, OpUpdate, "u_"+f.Name, upd))
	return nil
}

func (c *updateCtx) updateManyRelated(f *schema.Field, target *schema.Model, where, data map[string]any) error {
	sub := &updateCtx{schema: c.schema, registry: c.registry, auth: c.auth, adapter: c.adapter}
	upd, err := sub.buildUpdate(target, "um_"+f.Name, where, data)
	if err != nil {
		return err
	}
	c.steps = append(c.steps, sub.steps...)
	c.steps = append(c.steps, stmt(target.Name, OpUpdateMany, "um_"+f.Name, upd))
	return nil
}

// applyUpdateLimit bounds upd to at most n rows, using the adapter's native
// UPDATE...LIMIT when the dialect supports it and falling back to the
// id-subselect rewrite otherwise. A nil adapter takes the conservative
// (rewrite) path, matching the other capability checks in this package.
func applyUpdateLimit(adapter dialect.Adapter, m *schema.Model, alias string, upd *ast.Update, n int) *ast.Update {
	if adapter != nil && adapter.SupportsUpdateWithLimit() {
		limit := n
		out := *upd
		out.Limit = &limit
		return &out
	}
	return rewriteUpdateManyLimit(m, alias, upd, n)
}

// rewriteUpdateManyLimit converts `UPDATE ... LIMIT n` into the id-subselect
// form (`WHERE id IN (SELECT id FROM m WHERE ... LIMIT n)`) for dialects
// without native UPDATE...LIMIT support.
func rewriteUpdateManyLimit(m *schema.Model, alias string, upd *ast.Update, limit int) *ast.Update {
	idField := m.Fields[m.IDFields()[0]]
	inner := &ast.Select{
		Columns: []ast.Selection{{Expr: ast.QCol(alias, idField.DBColumn)}},
		From:    &ast.From{Table: ast.AliasOf(&ast.Table{Name: m.Name}, alias)},
		Limit:   &limit,
	}
	if upd.Where != nil {
		inner.Where = upd.Where
	}
	out := *upd
	out.Where = &ast.Where{Expr: ast.In(ast.Col(idField.DBColumn), &ast.Parens{Expr: inner})}
	out.Limit = nil
	return &out
}
