package grant

import (
	"fmt"
	"strings"
)

// Op is a comparison operator usable in a Comparison predicate.
type Op string

const (
	OpEq      Op = "="
	OpNeq     Op = "!="
	OpGT      Op = ">"
	OpGTE     Op = ">="
	OpLT      Op = "<"
	OpLTE     Op = "<="
	OpLike    Op = "LIKE"
	OpIn      Op = "IN"
	OpNotIn   Op = "NOT IN"
	OpBetween Op = "BETWEEN"
)

// Predicate is an immutable node in a WHERE-clause AST. Unlike the
// teacher's flat whereClause/cond linked list (which can only chain
// AND/OR left-to-right), Predicate is a tree: And/Or/Not compose
// sub-predicates directly, so e.g. `(a OR b) AND c` is representable
// without ad-hoc parenthesization tracking.
type Predicate interface {
	// render appends this predicate's SQL (with `?` placeholders, later
	// rebound per-dialect) to sb and returns the bind arguments in
	// left-to-right order.
	render(sb *strings.Builder) []any
}

// Comparison is `column op value` (or `column IN (...)` / `column BETWEEN
// lo AND hi`).
type Comparison struct {
	Column string
	Op     Op
	Value  any // []any for OpIn/OpNotIn, [2]any for OpBetween
}

func (c Comparison) render(sb *strings.Builder) []any {
	switch c.Op {
	case OpIn, OpNotIn:
		values, _ := c.Value.([]any)
		placeholders := make([]string, len(values))
		for i := range placeholders {
			placeholders[i] = "?"
		}
		fmt.Fprintf(sb, "%s %s (%s)", c.Column, c.Op, strings.Join(placeholders, ", "))
		return values
	case OpBetween:
		bounds, _ := c.Value.([2]any)
		fmt.Fprintf(sb, "%s BETWEEN ? AND ?", c.Column)
		return []any{bounds[0], bounds[1]}
	default:
		fmt.Fprintf(sb, "%s %s ?", c.Column, c.Op)
		return []any{c.Value}
	}
}

// And is a conjunction of two or more predicates. It is rendered without
// enclosing parentheses, since AND binds tighter than OR; Or and Not
// parenthesize themselves.
type And []Predicate

func (a And) render(sb *strings.Builder) []any {
	var args []any
	for i, p := range a {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		args = append(args, p.render(sb)...)
	}
	return args
}

// Or is a disjunction of two or more predicates, parenthesized.
type Or []Predicate

func (o Or) render(sb *strings.Builder) []any { return renderJoined(sb, "OR", o) }

func renderJoined(sb *strings.Builder, joiner string, preds []Predicate) []any {
	if len(preds) == 0 {
		return nil
	}
	if len(preds) == 1 {
		return preds[0].render(sb)
	}

	sb.WriteByte('(')
	var args []any
	for i, p := range preds {
		if i > 0 {
			sb.WriteByte(' ')
			sb.WriteString(joiner)
			sb.WriteByte(' ')
		}
		args = append(args, p.render(sb)...)
	}
	sb.WriteByte(')')
	return args
}

// Not negates a predicate.
type Not struct{ Predicate Predicate }

func (n Not) render(sb *strings.Builder) []any {
	sb.WriteString("NOT (")
	args := n.Predicate.render(sb)
	sb.WriteByte(')')
	return args
}

// Raw embeds a hand-written SQL fragment with its bind args verbatim, the
// escape hatch for anything the AST can't express.
type Raw struct {
	SQL  string
	Args []any
}

func (r Raw) render(sb *strings.Builder) []any {
	sb.WriteString(r.SQL)
	return r.Args
}

// Exists renders `EXISTS (subquery)`.
type Exists struct {
	Subquery string
	Args     []any
}

func (e Exists) render(sb *strings.Builder) []any {
	fmt.Fprintf(sb, "EXISTS (%s)", e.Subquery)
	return e.Args
}

// NotExists renders `NOT EXISTS (subquery)`.
type NotExists struct {
	Subquery string
	Args     []any
}

func (n NotExists) render(sb *strings.Builder) []any {
	fmt.Fprintf(sb, "NOT EXISTS (%s)", n.Subquery)
	return n.Args
}

// RenderPredicate renders p to a `?`-placeholder SQL string plus its bind
// arguments in order; callers rebind the placeholders to a specific
// dialect with rebindDialect.
func RenderPredicate(p Predicate) (string, []any) {
	var sb strings.Builder
	args := p.render(&sb)
	return sb.String(), args
}
