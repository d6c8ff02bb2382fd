package planner

import (
	"github.com/zenstackhq/zenstack-v3-sub005/ast"
	"github.com/zenstackhq/zenstack-v3-sub005/dialect"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// deleteCtx mirrors createCtx/updateCtx: the accumulated Steps for the
// delete path's cascade chain, which runs before the row itself is removed.
type deleteCtx struct {
	schema *schema.Schema
	steps  []Step

	// postSteps run after the primary delete statement, unlike steps: the
	// upward delegate-base cascade deletes a row that the primary delete's
	// own row is still an FK into, so it can only run once that row is gone.
	postSteps []Step

	// adapter reports the target dialect's DELETE...LIMIT support; nil (the
	// zero value most tests construct) falls back to the id-subselect rewrite.
	adapter dialect.Adapter
}

// buildDelete plans model's delete for filter. many
// selects between `delete` (single row, LIMIT 1) and `deleteMany`.
//
// A row that sits atop a delegate hierarchy (other concrete models'
// BaseModel points at it) cascades the delete downward first: any concrete
// subtype whose relation to its base declares onDelete: Cascade has its own
// row removed before the shared base row. Rows a *subtype* owns via
// ordinary (non-delegate) relations cascade the same way, driven purely by
// each relation's OnDelete action rather than by delegate-ness.
func (c *deleteCtx) buildDelete(m *schema.Model, alias string, filter map[string]any, many bool) (*ast.Delete, error) {
	return c.buildDeleteCascading(m, alias, filter, many, true)
}

// buildDeleteCascading is buildDelete with control over whether m's own
// upward delegate-base cascade runs. The base->leaf downward cascade in
// cascade() below recurses into this model's own subtypes specifically
// because they share m's id with m as their BaseModel — recursing upward
// from there would just re-delete m, which the caller already handles, so
// that recursive call passes cascadeUpward=false.
func (c *deleteCtx) buildDeleteCascading(m *schema.Model, alias string, filter map[string]any, many bool, cascadeUpward bool) (*ast.Delete, error) {
	fc := newFilterCompiler(c.schema)
	where, err := fc.CompileWhere(m, alias, filter)
	if err != nil {
		return nil, err
	}

	if err := c.cascade(m, alias, where, cascadeUpward); err != nil {
		return nil, err
	}

	del := &ast.Delete{Table: &ast.Table{Name: m.Name}}
	if where != nil {
		del.Where = &ast.Where{Expr: where}
	}
	if !many {
		del = applyDeleteLimit(c.adapter, m, alias, del, 1)
	}
	return del, nil
}

// applyDeleteLimit bounds del to at most n rows, using the adapter's native
// DELETE...LIMIT when supported and falling back to the id-subselect rewrite
// otherwise. A nil adapter takes the conservative (rewrite) path.
func applyDeleteLimit(adapter dialect.Adapter, m *schema.Model, alias string, del *ast.Delete, n int) *ast.Delete {
	if adapter != nil && adapter.SupportsDeleteWithLimit() {
		limit := n
		out := *del
		out.Limit = &limit
		return &out
	}
	return rewriteDeleteLimit(m, alias, del, n)
}

// cascade emits deletes for every relation field of m whose OnDelete is
// Cascade, scoped to the same row set the primary delete targets (matched
// by a correlated subquery over where, since the child rows don't carry m's
// WHERE columns directly).
func (c *deleteCtx) cascade(m *schema.Model, alias string, where ast.Node, cascadeUpward bool) error {
	for _, name := range m.RelationFields() {
		f := m.Fields[name]
		rel := f.Relation
		if rel == nil || rel.IsOwning() || rel.ManyToMany {
			// Cascading from the owning side would delete the parent the
			// FK points at, which is backwards for a child-row delete;
			// many-to-many cascade only removes join rows, handled by the
			// FK's own ON DELETE CASCADE at the DDL level, outside this
			// engine's planned statements.
			continue
		}
		target, err := c.schema.Model(rel.Model)
		if err != nil {
			return err
		}
		// OnDelete is declared on the owning side (the opposite field
		// here); m's own relation descriptor doesn't carry it.
		oppField, ok := target.Fields[rel.Opposite]
		if !ok || oppField.Relation == nil || oppField.Relation.OnDelete != schema.ActionCascade {
			continue
		}
		subAlias := name + "_casc"
		scopeSel := &ast.Select{
			Columns: []ast.Selection{{Expr: ast.Lit(1)}},
			From:    &ast.From{Table: ast.AliasOf(&ast.Table{Name: m.Name}, alias)},
		}
		if where != nil {
			scopeSel.Where = &ast.Where{Expr: where}
		}
		joinCond, err := buildJoinCondition(m, alias, f, target, subAlias)
		if err != nil {
			return err
		}
		scopeSel.Where = &ast.Where{Expr: ast.And(optionalExpr(scopeSel.Where), joinCond)}

		sub := &deleteCtx{schema: c.schema, adapter: c.adapter}
		childDel, err := sub.buildDelete(target, subAlias, nil, true)
		if err != nil {
			return err
		}
		childDel.Where = &ast.Where{Expr: ast.Exists(scopeSel)}
		c.steps = append(c.steps, sub.steps...)
		c.steps = append(c.steps, stmt(target.Name, OpDeleteMany, subAlias, childDel))
		c.steps = append(c.steps, sub.postSteps...)
	}

	// Delegate base row: any concrete subtype's rows referencing m as their
	// BaseModel must go first, since they physically share m's id and the
	// base row can't be removed out from under them.
	for _, subName := range c.schema.SortedModelNames() {
		sub := c.schema.Models[subName]
		if sub.BaseModel != m.Name {
			continue
		}
		subAlias := subName + "_base"
		scopeSel := &ast.Select{
			Columns: []ast.Selection{{Expr: ast.Lit(1)}},
			From:    &ast.From{Table: ast.AliasOf(&ast.Table{Name: m.Name}, alias)},
		}
		if where != nil {
			scopeSel.Where = &ast.Where{Expr: where}
		}
		idCol := idColumn(m)
		subIDCol := idColumn(sub)
		scopeSel.Where = &ast.Where{Expr: ast.And(optionalExpr(scopeSel.Where), ast.Eq(ast.QCol(alias, idCol), ast.QCol(subAlias, subIDCol)))}

		subCtx := &deleteCtx{schema: c.schema, adapter: c.adapter}
		subDel, err := subCtx.buildDeleteCascading(sub, subAlias, nil, true, false)
		if err != nil {
			return err
		}
		subDel.Where = &ast.Where{Expr: ast.Exists(scopeSel)}
		c.steps = append(c.steps, subCtx.steps...)
		c.steps = append(c.steps, stmt(sub.Name, OpDeleteMany, subAlias, subDel))
	}

	// Delegate base row upward: m's own id is only an FK into its base
	// table, so the base row must be removed too, but only after m's own
	// row is gone — appended as a post-step rather than folded into
	// c.steps alongside the downward cascade above, whose steps all run
	// before the primary delete. Suppressed when recursing from the
	// downward loop above, which already handles deleting this exact base.
	if cascadeUpward && m.BaseModel != "" {
		base, err := c.schema.Model(m.BaseModel)
		if err != nil {
			return err
		}
		baseAlias := alias + "_up"
		idCol := idColumn(m)
		baseIDCol := idColumn(base)
		scopeSel := &ast.Select{
			Columns: []ast.Selection{{Expr: ast.Lit(1)}},
			From:    &ast.From{Table: ast.AliasOf(&ast.Table{Name: m.Name}, alias)},
		}
		if where != nil {
			scopeSel.Where = &ast.Where{Expr: where}
		}
		scopeSel.Where = &ast.Where{Expr: ast.And(optionalExpr(scopeSel.Where), ast.Eq(ast.QCol(alias, idCol), ast.QCol(baseAlias, baseIDCol)))}

		baseCtx := &deleteCtx{schema: c.schema, adapter: c.adapter}
		baseDel, err := baseCtx.buildDelete(base, baseAlias, nil, true)
		if err != nil {
			return err
		}
		baseDel.Where = &ast.Where{Expr: ast.Exists(scopeSel)}
		c.postSteps = append(c.postSteps, baseCtx.steps...)
		c.postSteps = append(c.postSteps, stmt(base.Name, OpDeleteMany, baseAlias, baseDel))
		c.postSteps = append(c.postSteps, baseCtx.postSteps...)
	}

	return nil
}

// rewriteDeleteLimit converts `DELETE ... LIMIT n` into the id-subselect
// form for dialects without native DELETE...LIMIT support, mirroring
// rewriteUpdateManyLimit.
func rewriteDeleteLimit(m *schema.Model, alias string, del *ast.Delete, limit int) *ast.Delete {
	idField := m.Fields[m.IDFields()[0]]
	inner := &ast.Select{
		Columns: []ast.Selection{{Expr: ast.QCol(alias, idField.DBColumn)}},
		From:    &ast.From{Table: ast.AliasOf(&ast.Table{Name: m.Name}, alias)},
		Limit:   &limit,
	}
	if del.Where != nil {
		inner.Where = del.Where
	}
	out := *del
	out.Where = &ast.Where{Expr: ast.In(ast.Col(idField.DBColumn), &ast.Parens{Expr: inner})}
	out.Limit = nil
	return &out
}
