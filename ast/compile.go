package ast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zenstackhq/zenstack-v3-sub005/dialect"
)

// Compiler renders an immutable Node into a dialect-specific, parameterized
// SQL string, implementing the `compile(ast) -> {sql, params}` contract.
type Compiler interface {
	Compile(n Node) (sql string, params []any, err error)
}

// compiler is the default, dialect-aware implementation. No external SQL
// string builder exists in the reference corpus to delegate to (the
// teacher's dialect/sql package only ships a bare database/sql wrapper,
// not a statement renderer), so this module owns rendering end to end.
type compiler struct {
	adapter dialect.Adapter
	params  []any
}

// NewCompiler returns a Compiler bound to the given dialect adapter.
func NewCompiler(adapter dialect.Adapter) Compiler {
	return &compiler{adapter: adapter}
}

func (c *compiler) Compile(n Node) (string, []any, error) {
	cc := &compiler{adapter: c.adapter}
	var sb strings.Builder
	if err := cc.write(&sb, n); err != nil {
		return "", nil, err
	}
	return sb.String(), cc.params, nil
}

func (c *compiler) bind(v any) string {
	c.params = append(c.params, v)
	return c.adapter.Placeholder(len(c.params))
}

func (c *compiler) write(sb *strings.Builder, n Node) error {
	if n == nil {
		return nil
	}
	switch t := n.(type) {
	case *Select:
		return c.writeSelect(sb, t)
	case *Insert:
		return c.writeInsert(sb, t)
	case *Update:
		return c.writeUpdate(sb, t)
	case *Delete:
		return c.writeDelete(sb, t)
	case *From:
		sb.WriteString("FROM ")
		return c.write(sb, t.Table)
	case *Join:
		sb.WriteString(string(t.Kind))
		sb.WriteByte(' ')
		if err := c.write(sb, t.Target); err != nil {
			return err
		}
		if t.On != nil {
			sb.WriteString(" ON ")
			if err := c.write(sb, t.On); err != nil {
				return err
			}
		}
		return nil
	case *Where:
		return c.write(sb, t.Expr)
	case *Table:
		if t.Schema != "" {
			sb.WriteString(c.adapter.Quote(t.Schema))
			sb.WriteByte('.')
		}
		sb.WriteString(c.adapter.Quote(t.Name))
		return nil
	case *Column:
		if t.Qualifier != "" {
			sb.WriteString(c.adapter.Quote(t.Qualifier))
			sb.WriteByte('.')
		}
		sb.WriteString(c.adapter.Quote(t.Name))
		return nil
	case *Reference:
		sb.WriteString(c.adapter.Quote(t.Name))
		return nil
	case *Alias:
		if needsParens(t.Expr) {
			sb.WriteByte('(')
			if err := c.write(sb, t.Expr); err != nil {
				return err
			}
			sb.WriteByte(')')
		} else if err := c.write(sb, t.Expr); err != nil {
			return err
		}
		if t.As != "" {
			sb.WriteString(" AS ")
			sb.WriteString(c.adapter.Quote(t.As))
		}
		return nil
	case *Value:
		if t.Param {
			sb.WriteString(c.bind(t.Val))
		} else {
			fmt.Fprintf(sb, "%v", t.Val)
		}
		return nil
	case *ValueList:
		sb.WriteByte('(')
		for i, v := range t.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := c.write(sb, v); err != nil {
				return err
			}
		}
		sb.WriteByte(')')
		return nil
	case *BinaryOp:
		if err := c.write(sb, t.Left); err != nil {
			return err
		}
		sb.WriteByte(' ')
		sb.WriteString(t.Op)
		sb.WriteByte(' ')
		return c.write(sb, t.Right)
	case *Function:
		sb.WriteString(t.Name)
		sb.WriteByte('(')
		if t.Star {
			sb.WriteByte('*')
		}
		for i, a := range t.Args {
			if i > 0 || t.Star {
				sb.WriteString(", ")
			}
			if err := c.write(sb, a); err != nil {
				return err
			}
		}
		sb.WriteByte(')')
		return nil
	case *Parens:
		sb.WriteByte('(')
		if err := c.write(sb, t.Expr); err != nil {
			return err
		}
		sb.WriteByte(')')
		return nil
	case *DialectCall:
		return c.writeDialectCall(sb, t)
	case *Case:
		sb.WriteString("CASE WHEN ")
		if err := c.write(sb, t.Cond); err != nil {
			return err
		}
		sb.WriteString(" THEN ")
		if err := c.write(sb, t.Then); err != nil {
			return err
		}
		sb.WriteString(" ELSE ")
		if err := c.write(sb, t.Else); err != nil {
			return err
		}
		sb.WriteString(" END")
		return nil
	default:
		return fmt.Errorf("ast: compile: unsupported node %T", n)
	}
}

// writeDialectCall renders each arg to its own fragment (sharing this
// compiler's params, so bound values still get positionally-correct
// placeholders), then splices in whatever the bound Adapter method returns.
func (c *compiler) writeDialectCall(sb *strings.Builder, t *DialectCall) error {
	frags := make([]string, len(t.Args))
	for i, a := range t.Args {
		var argSb strings.Builder
		if err := c.write(&argSb, a); err != nil {
			return err
		}
		frags[i] = argSb.String()
	}
	switch t.Func {
	case DialectJSONObject:
		sb.WriteString(c.adapter.BuildJSONObject(frags))
	case DialectJSONAgg:
		if len(frags) != 1 {
			return fmt.Errorf("ast: compile: DialectJSONAgg takes exactly one arg, got %d", len(frags))
		}
		sb.WriteString(c.adapter.BuildJSONAgg(frags[0]))
	case DialectArrayLiteral:
		sb.WriteString(c.adapter.BuildArrayLiteral(frags))
	default:
		return fmt.Errorf("ast: compile: unknown dialect call %q", t.Func)
	}
	return nil
}

func needsParens(n Node) bool {
	switch n.(type) {
	case *Select:
		return true
	default:
		return false
	}
}

func (c *compiler) writeSelect(sb *strings.Builder, s *Select) error {
	if len(s.With) > 0 {
		sb.WriteString("WITH ")
		for i, cte := range s.With {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(c.adapter.Quote(cte.Name))
			sb.WriteString(" AS (")
			if err := c.writeSelect(sb, cte.Query); err != nil {
				return err
			}
			sb.WriteByte(')')
		}
		sb.WriteByte(' ')
	}

	sb.WriteString("SELECT ")
	if s.Distinct {
		sb.WriteString("DISTINCT ")
	}
	if len(s.DistinctOn) > 0 {
		sb.WriteString("DISTINCT ON (")
		for i, e := range s.DistinctOn {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := c.write(sb, e); err != nil {
				return err
			}
		}
		sb.WriteString(") ")
	}
	if err := c.writeSelections(sb, s.Columns); err != nil {
		return err
	}

	if s.From != nil {
		sb.WriteByte(' ')
		if err := c.write(sb, s.From); err != nil {
			return err
		}
	}
	for _, j := range s.Joins {
		sb.WriteByte(' ')
		if err := c.write(sb, &j); err != nil {
			return err
		}
	}
	if s.Where != nil && s.Where.Expr != nil {
		sb.WriteString(" WHERE ")
		if err := c.write(sb, s.Where.Expr); err != nil {
			return err
		}
	}
	if len(s.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		for i, g := range s.GroupBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := c.write(sb, g); err != nil {
				return err
			}
		}
	}
	if s.Having != nil && s.Having.Expr != nil {
		sb.WriteString(" HAVING ")
		if err := c.write(sb, s.Having.Expr); err != nil {
			return err
		}
	}
	if len(s.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := c.write(sb, o.Expr); err != nil {
				return err
			}
			if o.Desc {
				sb.WriteString(" DESC")
			} else {
				sb.WriteString(" ASC")
			}
			switch o.Nulls {
			case "first":
				sb.WriteString(" NULLS FIRST")
			case "last":
				sb.WriteString(" NULLS LAST")
			}
		}
	}
	if s.Limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(*s.Limit))
	}
	if s.Offset != nil {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(*s.Offset))
	}
	return nil
}

func (c *compiler) writeSelections(sb *strings.Builder, cols []Selection) error {
	if len(cols) == 0 {
		sb.WriteByte('*')
		return nil
	}
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		if err := c.write(sb, col.Expr); err != nil {
			return err
		}
		if col.As != "" {
			sb.WriteString(" AS ")
			sb.WriteString(c.adapter.Quote(col.As))
		}
	}
	return nil
}

func (c *compiler) writeInsert(sb *strings.Builder, ins *Insert) error {
	sb.WriteString("INSERT INTO ")
	if err := c.write(sb, ins.Table); err != nil {
		return err
	}
	sb.WriteString(" (")
	for i, col := range ins.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.adapter.Quote(col))
	}
	sb.WriteString(") VALUES ")
	for i, vl := range ins.Values {
		if i > 0 {
			sb.WriteString(", ")
		}
		if err := c.write(sb, &vl); err != nil {
			return err
		}
	}
	if ins.OnConflict != nil {
		sb.WriteString(" ")
		if err := c.writeOnConflict(sb, ins.OnConflict); err != nil {
			return err
		}
	}
	return c.writeReturning(sb, ins.Returning)
}

func (c *compiler) writeOnConflict(sb *strings.Builder, oc *OnConflict) error {
	sb.WriteString("ON CONFLICT")
	if len(oc.Columns) > 0 {
		sb.WriteString(" (")
		for i, col := range oc.Columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(c.adapter.Quote(col))
		}
		sb.WriteByte(')')
	}
	if oc.DoNothing {
		sb.WriteString(" DO NOTHING")
		return nil
	}
	sb.WriteString(" DO UPDATE SET ")
	for i, set := range oc.DoUpdate {
		if i > 0 {
			sb.WriteString(", ")
		}
		if err := c.write(sb, &set); err != nil {
			return err
		}
	}
	if oc.Where != nil && oc.Where.Expr != nil {
		sb.WriteString(" WHERE ")
		if err := c.write(sb, oc.Where.Expr); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) writeUpdate(sb *strings.Builder, u *Update) error {
	sb.WriteString("UPDATE ")
	if err := c.write(sb, u.Table); err != nil {
		return err
	}
	sb.WriteString(" SET ")
	for i, set := range u.Set {
		if i > 0 {
			sb.WriteString(", ")
		}
		if err := c.write(sb, &set); err != nil {
			return err
		}
	}
	if u.From != nil {
		sb.WriteByte(' ')
		if err := c.write(sb, u.From); err != nil {
			return err
		}
	}
	if u.Where != nil && u.Where.Expr != nil {
		sb.WriteString(" WHERE ")
		if err := c.write(sb, u.Where.Expr); err != nil {
			return err
		}
	}
	if u.Limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(*u.Limit))
	}
	return c.writeReturning(sb, u.Returning)
}

func (c *compiler) writeDelete(sb *strings.Builder, d *Delete) error {
	sb.WriteString("DELETE FROM ")
	if err := c.write(sb, d.Table); err != nil {
		return err
	}
	if len(d.Using) > 0 {
		sb.WriteString(" USING ")
		for i, u := range d.Using {
			if i > 0 {
				sb.WriteString(", ")
			}
			if err := c.write(sb, u); err != nil {
				return err
			}
		}
	}
	if d.Where != nil && d.Where.Expr != nil {
		sb.WriteString(" WHERE ")
		if err := c.write(sb, d.Where.Expr); err != nil {
			return err
		}
	}
	if d.Limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(*d.Limit))
	}
	return c.writeReturning(sb, d.Returning)
}

func (c *compiler) writeReturning(sb *strings.Builder, r *Returning) error {
	if r == nil {
		return nil
	}
	sb.WriteString(" RETURNING ")
	return c.writeSelections(sb, r.Columns)
}
