package planner

import (
	"context"
	"fmt"
	"sort"

	"github.com/zenstackhq/zenstack-v3-sub005/ast"
	"github.com/zenstackhq/zenstack-v3-sub005/gen"
	"github.com/zenstackhq/zenstack-v3-sub005/schema"
)

// createCtx carries the state threaded through one recursive create call
// tree: the schema, the generator registry for defaults, the caller's auth
// value (for `auth()`-member defaults), and the accumulated list of Steps
// built so far (in dependency order: a child row's insert precedes its
// parent's when the parent references the child's generated id).
type createCtx struct {
	schema   *schema.Schema
	registry *gen.Registry
	auth     any
	steps    []Step
}

// buildCreate plans model's create for the given data payload
// create path). It returns the generated/assigned id values for the row
// (so a caller one level up can use them as FK literals) and appends every
// Step needed — in execution order — to c.steps.
//
// parentFK, when non-nil, supplies FK column values this row must carry
// because it is being created from the non-owning side of a relation (the
// parent already exists and owns this row's foreign key).
func (c *createCtx) buildCreate(m *schema.Model, data map[string]any, parentFK map[string]any) (map[string]any, error) {
	if m.IsDelegate {
		return nil, fmt.Errorf("planner: cannot create %s directly, it is a delegate base", m.Name)
	}

	scalars := map[string]any{}
	relations := map[string]any{}
	for k, v := range data {
		f, ok := m.Fields[k]
		if !ok {
			return nil, fmt.Errorf("planner: unknown field %s.%s in create data", m.Name, k)
		}
		if f.IsScalar() {
			scalars[k] = v
		} else {
			relations[k] = v
		}
	}

	// Resolve owned (to-one, this-side-owns-FK) relations before building
	// this row's insert, since their ids become this row's FK values.
	ownedNames := sortedKeys2(relations)
	for _, name := range ownedNames {
		f := m.Fields[name]
		if f.Relation == nil || f.Relation.ManyToMany || !f.Relation.IsOwning() {
			continue
		}
		fk, err := c.resolveOwnedRelation(m, f, relations[name])
		if err != nil {
			return nil, err
		}
		for k, v := range fk {
			scalars[k] = v
		}
		delete(relations, name)
	}

	for k, v := range parentFK {
		scalars[k] = v
	}

	// Delegate base: insert the base row first, then copy its id columns
	// onto this row (they're the same physical id values, an
	// "id columns are shared across the hierarchy" invariant).
	if m.BaseModel != "" {
		base, err := c.schema.Model(m.BaseModel)
		if err != nil {
			return nil, err
		}
		baseScalars := map[string]any{}
		for k, v := range scalars {
			if f, ok := base.Fields[k]; ok && f.OriginModel == "" || (ok && f.OriginModel == base.Name) {
				baseScalars[k] = v
			}
		}
		if base.DiscriminatorField != "" {
			baseScalars[base.DiscriminatorField] = m.Name
		}
		baseIDs, err := c.buildCreate(base, baseScalars, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range baseIDs {
			scalars[k] = v
		}
	}

	if err := c.fillDefaults(m, scalars); err != nil {
		return nil, err
	}

	columns, values, err := insertTuple(m, scalars)
	if err != nil {
		return nil, err
	}

	ins := &ast.Insert{
		Table:   &ast.Table{Name: m.Name},
		Columns: columns,
		Values:  []ast.ValueList{{Values: values}},
	}
	c.steps = append(c.steps, stmt(m.Name, OpCreate, m.Name, ins))

	ids := map[string]any{}
	for _, idf := range m.IDFields() {
		ids[idf] = scalars[idf]
	}

	// Non-owned relations: this row now exists, so its id can FK the
	// child side (to-many/inverse-to-one) or join-table rows.
	nonOwnedNames := sortedKeys2(relations)
	for _, name := range nonOwnedNames {
		if err := c.resolveNonOwnedRelation(m, m.Fields[name], relations[name], ids); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

// resolveOwnedRelation handles create/connect/connectOrCreate on the owning
// side of a to-one relation, returning the FK column values to merge into
// the parent row's scalars.
func (c *createCtx) resolveOwnedRelation(m *schema.Model, f *schema.Field, payload any) (map[string]any, error) {
	ops, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("planner: relation payload for %s.%s must be an object", m.Name, f.Name)
	}
	rel := f.Relation
	target, err := c.schema.Model(rel.Model)
	if err != nil {
		return nil, err
	}

	if createData, ok := ops["create"].(map[string]any); ok {
		childIDs, err := c.buildCreate(target, createData, nil)
		if err != nil {
			return nil, err
		}
		return fkFromTargetIDs(rel, childIDs), nil
	}

	if connectData, ok := ops["connect"].(map[string]any); ok {
		return c.resolveConnect(rel, target, connectData)
	}

	if coc, ok := ops["connectOrCreate"].(map[string]any); ok {
		where, _ := coc["where"].(map[string]any)
		createData, _ := coc["create"].(map[string]any)
		return c.resolveConnectOrCreate(rel, target, where, createData)
	}

	return nil, fmt.Errorf("planner: unsupported relation operation on %s.%s", m.Name, f.Name)
}

// resolveConnect returns FK values for connecting to an existing target
// row: direct literals when the payload already names every referenced PK
// field, otherwise a scalar subquery selecting them by the supplied filter.
func (c *createCtx) resolveConnect(rel *schema.Relation, target *schema.Model, filter map[string]any) (map[string]any, error) {
	direct := map[string]any{}
	complete := true
	for _, ref := range rel.References {
		v, ok := filter[ref]
		if !ok {
			complete = false
			break
		}
		direct[ref] = v
	}
	if complete {
		out := map[string]any{}
		for i, lf := range rel.Fields {
			out[lf] = direct[rel.References[i]]
		}
		return out, nil
	}

	fc := newFilterCompiler(c.schema)
	const alias = "cn"
	where, err := fc.CompileWhere(target, alias, filter)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for i, lf := range rel.Fields {
		refField := target.Fields[rel.References[i]]
		sub := &ast.Select{
			Columns: []ast.Selection{{Expr: ast.QCol(alias, refField.DBColumn)}},
			From:    &ast.From{Table: ast.AliasOf(&ast.Table{Name: target.Name}, alias)},
			Where:   &ast.Where{Expr: where},
			Limit:   intPtr(1),
		}
		out[lf] = &ast.Parens{Expr: sub}
	}
	return out, nil
}

// resolveConnectOrCreate inserts (ON CONFLICT DO NOTHING) the create-branch
// row up front, then connects via a subquery over the where filter — valid
// whichever branch actually produced the row, since both land under the
// same unique key.
func (c *createCtx) resolveConnectOrCreate(rel *schema.Relation, target *schema.Model, where, createData map[string]any) (map[string]any, error) {
	scalars := map[string]any{}
	for k, v := range createData {
		if f, ok := target.Fields[k]; ok && f.IsScalar() {
			scalars[k] = v
		}
	}
	for k, v := range where {
		if _, ok := target.Fields[k]; ok {
			scalars[k] = v
		}
	}
	if err := c.fillDefaults(target, scalars); err != nil {
		return nil, err
	}
	columns, values, err := insertTuple(target, scalars)
	if err != nil {
		return nil, err
	}
	uniqueCols := make([]string, 0, len(where))
	for k := range where {
		if f, ok := target.Fields[k]; ok {
			uniqueCols = append(uniqueCols, f.DBColumn)
		}
	}
	sort.Strings(uniqueCols)
	ins := &ast.Insert{
		Table:      &ast.Table{Name: target.Name},
		Columns:    columns,
		Values:     []ast.ValueList{{Values: values}},
		OnConflict: &ast.OnConflict{Columns: uniqueCols, DoNothing: true},
	}
	c.steps = append(c.steps, stmt(target.Name, OpCreate, target.Name, ins))

	return c.resolveConnect(rel, target, where)
}

// resolveNonOwnedRelation handles the child side of a to-many/inverse
// to-one relation, and many-to-many, once the parent row's ids are known.
func (c *createCtx) resolveNonOwnedRelation(m *schema.Model, f *schema.Field, payload any, parentIDs map[string]any) error {
	ops, ok := payload.(map[string]any)
	if !ok {
		return fmt.Errorf("planner: relation payload for %s.%s must be an object", m.Name, f.Name)
	}
	rel := f.Relation
	target, err := c.schema.Model(rel.Model)
	if err != nil {
		return err
	}

	if rel.ManyToMany {
		return c.resolveManyToMany(m, f, ops, parentIDs)
	}

	childFK := fkFromParentIDs(m, f, target, parentIDs)

	if createData, ok := ops["create"].(map[string]any); ok {
		_, err := c.buildCreate(target, createData, childFK)
		return err
	}
	if many, ok := ops["createMany"].(map[string]any); ok {
		rows, _ := many["data"].([]any)
		for _, r := range rows {
			row, _ := r.(map[string]any)
			if _, err := c.buildCreate(target, row, childFK); err != nil {
				return err
			}
		}
		return nil
	}
	if connectData, ok := ops["connect"].(map[string]any); ok {
		return c.connectChild(target, f, childFK, connectData)
	}
	if coc, ok := ops["connectOrCreate"].(map[string]any); ok {
		where, _ := coc["where"].(map[string]any)
		createData, _ := coc["create"].(map[string]any)
		merged := map[string]any{}
		for k, v := range createData {
			merged[k] = v
		}
		for k, v := range childFK {
			merged[k] = v
		}
		if _, err := c.buildCreate(target, merged, nil); err == nil {
			return nil
		}
		return c.connectChild(target, f, childFK, where)
	}
	return fmt.Errorf("planner: unsupported relation operation on %s.%s", m.Name, f.Name)
}

func (c *createCtx) connectChild(target *schema.Model, f *schema.Field, childFK map[string]any, filter map[string]any) error {
	fc := newFilterCompiler(c.schema)
	const alias = "t"
	where, err := fc.CompileWhere(target, alias, filter)
	if err != nil {
		return err
	}
	var sets []ast.BinaryOp
	names := sortedKeys2(childFK)
	for _, k := range names {
		tf, ok := target.Fields[k]
		if !ok {
			return fmt.Errorf("planner: unknown FK field %s.%s", target.Name, k)
		}
		sets = append(sets, *ast.Eq(ast.Col(tf.DBColumn), ast.Lit(childFK[k])))
	}
	upd := &ast.Update{
		Table: &ast.Table{Name: target.Name},
		Set:   sets,
		Where: &ast.Where{Expr: where},
	}
	c.steps = append(c.steps, stmt(target.Name, OpUpdate, alias, upd))
	return nil
}

func (c *createCtx) resolveManyToMany(m *schema.Model, f *schema.Field, ops map[string]any, parentIDs map[string]any) error {
	rel := f.Relation
	target, err := c.schema.Model(rel.Model)
	if err != nil {
		return err
	}
	parentID := parentIDs[m.IDFields()[0]]

	link := func(targetID any) {
		aVal, bVal := orderedJoinPair(m.Name, parentID, target.Name, targetID)
		ins := &ast.Insert{
			Table:      &ast.Table{Name: rel.JoinTable},
			Columns:    []string{"A", "B"},
			Values:     []ast.ValueList{{Values: []ast.Node{ast.Lit(aVal), ast.Lit(bVal)}}},
			OnConflict: &ast.OnConflict{DoNothing: true},
		}
		c.steps = append(c.steps, stmt(rel.JoinTable, OpCreate, "", ins))
	}

	if createData, ok := ops["create"].(map[string]any); ok {
		ids, err := c.buildCreate(target, createData, nil)
		if err != nil {
			return err
		}
		link(ids[target.IDFields()[0]])
	}
	if many, ok := ops["createMany"].(map[string]any); ok {
		rows, _ := many["data"].([]any)
		for _, r := range rows {
			row, _ := r.(map[string]any)
			ids, err := c.buildCreate(target, row, nil)
			if err != nil {
				return err
			}
			link(ids[target.IDFields()[0]])
		}
	}
	if connectList, ok := ops["connect"].([]any); ok {
		for _, item := range connectList {
			filter, _ := item.(map[string]any)
			fk, err := c.resolveConnect(&schema.Relation{Fields: []string{"__m2m"}, References: target.IDFields()}, target, filter)
			if err != nil {
				return err
			}
			link(fk["__m2m"])
		}
	}
	return nil
}

// orderedJoinPair assigns the join table's A/B columns by (model name,
// field name) ordering, the canonical column order for implicit many-to-many join tables.
func orderedJoinPair(modelA string, idA any, modelB string, idB any) (a, b any) {
	if modelA <= modelB {
		return idA, idB
	}
	return idB, idA
}

func fkFromTargetIDs(rel *schema.Relation, targetIDs map[string]any) map[string]any {
	out := map[string]any{}
	for i, lf := range rel.Fields {
		out[lf] = targetIDs[rel.References[i]]
	}
	return out
}

// fkFromParentIDs builds the child row's FK field->value map for the
// non-owning side of relField, reading the parent's id values.
func fkFromParentIDs(parent *schema.Model, relField *schema.Field, target *schema.Model, parentIDs map[string]any) map[string]any {
	oppField, ok := target.Fields[relField.Relation.Opposite]
	if !ok || oppField.Relation == nil {
		return nil
	}
	oppRel := oppField.Relation
	out := map[string]any{}
	for i, fk := range oppRel.Fields {
		out[fk] = parentIDs[oppRel.References[i]]
	}
	return out
}

// fillDefaults populates scalars not already set:
// generator defaults, now() for @updatedAt, literal defaults, and
// auth()-member defaults.
func (c *createCtx) fillDefaults(m *schema.Model, scalars map[string]any) error {
	for _, name := range m.FieldOrder {
		f := m.Fields[name]
		if !f.IsScalar() || f.Computed {
			continue
		}
		if _, has := scalars[name]; has {
			continue
		}
		if f.IsUpdatedAt {
			v, err := gen.Now(context.Background())
			if err != nil {
				return err
			}
			scalars[name] = v
			continue
		}
		d := f.Default
		if d == nil {
			continue
		}
		switch {
		case d.Generator != "":
			fn, ok := c.registry.Get(d.Generator)
			if !ok {
				return fmt.Errorf("planner: unknown generator %q for %s.%s", d.Generator, m.Name, name)
			}
			v, err := fn(context.Background())
			if err != nil {
				return fmt.Errorf("planner: generator %q for %s.%s: %w", d.Generator, m.Name, name, err)
			}
			scalars[name] = v
		case d.AuthMember != "":
			scalars[name] = gen.ResolveAuthDefault(c.auth, d.AuthMember)
		case d.HasLiteral:
			scalars[name] = d.Literal
		}
	}
	return nil
}

// insertTuple renders scalars into an INSERT's physical column/value lists,
// in the model's declared field order for determinism.
func insertTuple(m *schema.Model, scalars map[string]any) ([]string, []ast.Node, error) {
	var columns []string
	var values []ast.Node
	for _, name := range m.FieldOrder {
		f := m.Fields[name]
		if !f.IsScalar() || f.Computed {
			continue
		}
		v, ok := scalars[name]
		if !ok {
			continue
		}
		columns = append(columns, f.DBColumn)
		if node, isNode := v.(ast.Node); isNode {
			values = append(values, node)
		} else {
			values = append(values, ast.Lit(v))
		}
	}
	return columns, values, nil
}

func sortedKeys2(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
