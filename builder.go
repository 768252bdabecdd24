package grant

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Select sets the columns to fetch. Column names are validated to prevent
// SQL injection; invalid entries are silently dropped rather than aborting
// the whole call, matching ScalarQuery's Table/Select behavior.
func (m *Model[T]) Select(columns ...string) *Model[T] {
	for _, col := range columns {
		if err := ValidateColumnName(col); err != nil {
			continue
		}
		m.columns = append(m.columns, col)
	}
	return m
}

// Where adds an AND condition. It accepts several forms:
//
//	Where("status", "active")            -> (status = ?)
//	Where("age", ">", 18)                -> age > ?
//	Where("age > ?", 18)                 -> raw condition, args forwarded as-is
//	Where(map[string]any{"status": "x"})  -> (status = ?) per key
//	Where(&User{Status: "active"})        -> (status = ?) per non-zero field
//	Where(func(q *Model[T]) { ... })      -> (nested AND/OR group)
func (m *Model[T]) Where(query any, args ...any) *Model[T] {
	return m.addWhere("AND", query, args...)
}

// OrWhere adds an OR condition. See Where for the accepted forms.
func (m *Model[T]) OrWhere(query any, args ...any) *Model[T] {
	return m.addWhere("OR", query, args...)
}

// AndWhere is an explicit alias for Where.
func (m *Model[T]) AndWhere(query any, args ...any) *Model[T] {
	return m.addWhere("AND", query, args...)
}

func (m *Model[T]) addWhere(typ string, query any, args ...any) *Model[T] {
	switch v := query.(type) {
	case map[string]any:
		for k, val := range v {
			if err := ValidateColumnName(k); err != nil {
				continue
			}
			m.wheres = append(m.wheres, typ+" ("+k+" = ?)")
			m.args = append(m.args, val)
		}
		return m
	case func(*Model[T]):
		return m.addWhereGroup(typ, v)
	case string:
		return m.addWhereString(typ, v, args...)
	default:
		if attrs, ok := nonZeroColumnValues(query); ok {
			for k, val := range attrs {
				m.wheres = append(m.wheres, typ+" ("+k+" = ?)")
				m.args = append(m.args, val)
			}
		}
		return m
	}
}

// addWhereGroup builds a parenthesized group from a nested callback and
// folds it into a single wheres entry, so "Where(A).Where(func(q){ q.Where(B).OrWhere(C) })"
// renders as "... AND A ... AND (B OR C)".
func (m *Model[T]) addWhereGroup(typ string, fn func(*Model[T])) *Model[T] {
	scratch := &Model[T]{wheres: make([]string, 0, 2), args: make([]any, 0, 2)}
	fn(scratch)
	if len(scratch.wheres) == 0 {
		return m
	}

	sb := GetStringBuilder()
	sb.WriteString("(")
	for i, w := range scratch.wheres {
		cond := w
		if i == 0 {
			cond = strings.TrimPrefix(cond, "AND ")
			cond = strings.TrimPrefix(cond, "OR ")
		}
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(cond)
	}
	sb.WriteString(")")
	group := sb.String()
	PutStringBuilder(sb)

	m.wheres = append(m.wheres, typ+" "+group)
	m.args = append(m.args, scratch.args...)
	return m
}

func (m *Model[T]) addWhereString(typ, queryStr string, args ...any) *Model[T] {
	switch len(args) {
	case 0:
		m.wheres = append(m.wheres, typ+" "+queryStr)
	case 1:
		if err := ValidateColumnName(queryStr); err != nil {
			// Not a bare column name: treat as a raw fragment carrying its
			// own placeholder.
			m.wheres = append(m.wheres, typ+" "+queryStr)
			m.args = append(m.args, args[0])
			return m
		}
		m.wheres = append(m.wheres, typ+" ("+queryStr+" = ?)")
		m.args = append(m.args, args[0])
	case 2:
		if op, ok := args[0].(string); ok {
			if err := ValidateColumnName(queryStr); err != nil {
				return m
			}
			m.wheres = append(m.wheres, typ+" "+queryStr+" "+op+" ?")
			m.args = append(m.args, args[1])
			return m
		}
		m.wheres = append(m.wheres, typ+" "+queryStr)
		m.args = append(m.args, args...)
	default:
		m.wheres = append(m.wheres, typ+" "+queryStr)
		m.args = append(m.args, args...)
	}
	return m
}

// nonZeroColumnValues reflects entity (a struct or struct pointer) into a
// map of non-zero column values, the shape a struct-literal Where() call
// filters conditions down to.
func nonZeroColumnValues(entity any) (map[string]any, bool) {
	val := reflect.ValueOf(entity)
	if val.Kind() == reflect.Pointer {
		if val.IsNil() {
			return nil, false
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil, false
	}

	info := ParseModelType(val.Type())
	attrs := make(map[string]any, len(info.Fields))
	for _, field := range info.Fields {
		fv := val.FieldByIndex(field.Index)
		if fv.IsZero() {
			continue
		}
		attrs[field.Column] = fv.Interface()
	}
	return attrs, true
}

// WhereIn adds a "column IN (...)" condition. An empty values slice adds an
// always-false condition instead of generating invalid SQL ("IN ()").
func (m *Model[T]) WhereIn(column string, values []any) *Model[T] {
	if err := ValidateColumnName(column); err != nil {
		return m
	}
	if len(values) == 0 {
		m.wheres = append(m.wheres, "AND 1=0")
		return m
	}

	sb := GetStringBuilder()
	sb.WriteString(column)
	sb.WriteString(" IN (")
	for i := range values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('?')
	}
	sb.WriteByte(')')
	m.wheres = append(m.wheres, "AND "+sb.String())
	PutStringBuilder(sb)
	m.args = append(m.args, values...)
	return m
}

// WhereNull adds a "column IS NULL" condition.
func (m *Model[T]) WhereNull(column string) *Model[T] {
	if err := ValidateColumnName(column); err != nil {
		return m
	}
	m.wheres = append(m.wheres, "AND "+column+" IS NULL")
	return m
}

// OrWhereNull adds an "OR column IS NULL" condition.
func (m *Model[T]) OrWhereNull(column string) *Model[T] {
	if err := ValidateColumnName(column); err != nil {
		return m
	}
	m.wheres = append(m.wheres, "OR "+column+" IS NULL")
	return m
}

// WhereNotNull adds a "column IS NOT NULL" condition.
func (m *Model[T]) WhereNotNull(column string) *Model[T] {
	if err := ValidateColumnName(column); err != nil {
		return m
	}
	m.wheres = append(m.wheres, "AND "+column+" IS NOT NULL")
	return m
}

// OrWhereNotNull adds an "OR column IS NOT NULL" condition.
func (m *Model[T]) OrWhereNotNull(column string) *Model[T] {
	if err := ValidateColumnName(column); err != nil {
		return m
	}
	m.wheres = append(m.wheres, "OR "+column+" IS NOT NULL")
	return m
}

// OrderBy adds an ORDER BY clause. An invalid direction defaults to ASC.
func (m *Model[T]) OrderBy(column, direction string) *Model[T] {
	if err := ValidateColumnName(column); err != nil {
		return m
	}
	dir := strings.ToUpper(strings.TrimSpace(direction))
	if dir != "ASC" && dir != "DESC" {
		dir = "ASC"
	}
	m.orderBys = append(m.orderBys, column+" "+dir)
	return m
}

// Latest orders by column (default "created_at") descending.
func (m *Model[T]) Latest(column ...string) *Model[T] {
	col := "created_at"
	if len(column) > 0 && column[0] != "" {
		col = column[0]
	}
	return m.OrderBy(col, "DESC")
}

// Oldest orders by column (default "created_at") ascending.
func (m *Model[T]) Oldest(column ...string) *Model[T] {
	col := "created_at"
	if len(column) > 0 && column[0] != "" {
		col = column[0]
	}
	return m.OrderBy(col, "ASC")
}

// GroupBy adds plain GROUP BY columns.
func (m *Model[T]) GroupBy(columns ...string) *Model[T] {
	for _, col := range columns {
		if err := ValidateColumnName(col); err != nil {
			continue
		}
		m.groupBys = append(m.groupBys, col)
	}
	return m
}

// GroupByRollup adds "GROUP BY ROLLUP (...)", producing subtotal rows for
// each prefix of columns plus a grand total.
func (m *Model[T]) GroupByRollup(columns ...string) *Model[T] {
	m.groupBys = append(m.groupBys, "ROLLUP ("+strings.Join(columns, ", ")+")")
	return m
}

// GroupByCube adds "GROUP BY CUBE (...)", producing subtotals for every
// combination of columns.
func (m *Model[T]) GroupByCube(columns ...string) *Model[T] {
	m.groupBys = append(m.groupBys, "CUBE ("+strings.Join(columns, ", ")+")")
	return m
}

// GroupByGroupingSets adds "GROUP BY GROUPING SETS ((...), (...), ())",
// one set of columns to group by per entry (an empty slice means the grand
// total row).
func (m *Model[T]) GroupByGroupingSets(sets ...[]string) *Model[T] {
	parts := make([]string, len(sets))
	for i, set := range sets {
		parts[i] = "(" + strings.Join(set, ", ") + ")"
	}
	m.groupBys = append(m.groupBys, "GROUPING SETS ("+strings.Join(parts, ", ")+")")
	return m
}

// Having adds a HAVING clause. A single arg with no "?" in query has one
// appended automatically, so Having("COUNT(*) >", 5) and
// Having("COUNT(*) > ?", 5) are equivalent.
func (m *Model[T]) Having(query string, args ...any) *Model[T] {
	if err := ValidateRawQuery(query); err != nil {
		return m
	}
	if len(args) > 0 && !strings.Contains(query, "?") {
		query = strings.TrimSpace(query) + " ?"
	}
	m.havings = append(m.havings, query)
	m.args = append(m.args, args...)
	return m
}

// Limit sets the LIMIT clause.
func (m *Model[T]) Limit(n int) *Model[T] {
	m.limit = n
	return m
}

// Offset sets the OFFSET clause.
func (m *Model[T]) Offset(n int) *Model[T] {
	m.offset = n
	return m
}

// Distinct adds DISTINCT to the SELECT clause.
func (m *Model[T]) Distinct() *Model[T] {
	m.distinct = true
	return m
}

// DistinctOn sets PostgreSQL's "DISTINCT ON (...)" with the given columns.
func (m *Model[T]) DistinctOn(columns ...string) *Model[T] {
	m.distinctOn = append(m.distinctOn, columns...)
	return m
}

// DistinctBy is shorthand for DistinctOn with a single column.
func (m *Model[T]) DistinctBy(column string) *Model[T] {
	m.distinctOn = []string{column}
	return m
}

// Raw replaces the whole query with a literal SQL string and its args,
// bypassing the builder entirely. buildSelectQuery short-circuits to it.
func (m *Model[T]) Raw(query string, args ...any) *Model[T] {
	m.rawQuery = query
	m.rawArgs = args
	return m
}

// sqlBuilder is implemented by *Model[X] for any X; it lets WithCTE and
// buildWithClause embed a sub-query without depending on its type parameter.
type sqlBuilder interface {
	buildSelectQuery() (string, []any)
}

// WithCTE adds a Common Table Expression. query may be a raw SQL string or
// another *Model[X] query (its own args are folded into the outer query's
// arg list, positioned where the CTE text appears).
func (m *Model[T]) WithCTE(name string, query any, args ...any) *Model[T] {
	m.ctes = append(m.ctes, CTE{Name: name, Query: query, Args: args})
	return m
}

// Lock appends a row-locking clause ("FOR UPDATE", "FOR SHARE", ...).
func (m *Model[T]) Lock(mode string) *Model[T] {
	m.lockMode = mode
	return m
}

// Omit excludes columns from Create/Save/Update statements.
func (m *Model[T]) Omit(columns ...string) *Model[T] {
	if m.omitColumns == nil {
		m.omitColumns = make(map[string]bool, len(columns))
	}
	for _, col := range columns {
		m.omitColumns[col] = true
	}
	return m
}

// With marks relations for eager loading; Get loads them via loadRelations
// once the base query returns. Dotted names ("Posts.Comments") eager-load
// nested relations.
func (m *Model[T]) With(relations ...string) *Model[T] {
	m.relations = append(m.relations, relations...)
	return m
}

// WithCallback eager-loads relation with an extra constraint applied to its
// query (e.g. restricting which children are loaded).
func (m *Model[T]) WithCallback(relation string, cb any) *Model[T] {
	m.relations = append(m.relations, relation)
	if m.relationCallbacks == nil {
		m.relationCallbacks = make(map[string]any)
	}
	m.relationCallbacks[relation] = cb
	return m
}

// WithMorph eager-loads a polymorphic relation, dispatching each row's
// related type (keyed by stored discriminator value) to the relation names
// given in typeMap.
func (m *Model[T]) WithMorph(relation string, typeMap map[string][]string) *Model[T] {
	m.relations = append(m.relations, relation)
	if m.morphRelations == nil {
		m.morphRelations = make(map[string]map[string][]string)
	}
	m.morphRelations[relation] = typeMap
	return m
}

// Scope applies fn to the model, letting reusable query fragments
// (composable "active users", "verified accounts", etc.) be chained like
// any other builder call.
func (m *Model[T]) Scope(fn func(*Model[T]) *Model[T]) *Model[T] {
	return fn(m)
}

// UsePrimary forces this query to run against the primary database even
// when a resolver would otherwise route it to a replica.
func (m *Model[T]) UsePrimary() *Model[T] {
	m.forcePrimary = true
	m.forceReplica = -1
	return m
}

// UseReplica forces this query to run against the replica at idx.
func (m *Model[T]) UseReplica(idx int) *Model[T] {
	m.forcePrimary = false
	m.forceReplica = idx
	return m
}

// GetWheres returns the accumulated WHERE fragments, mostly for inspection
// and testing.
func (m *Model[T]) GetWheres() []string {
	return m.wheres
}

// GetArgs returns the accumulated bound arguments, mostly for inspection
// and testing.
func (m *Model[T]) GetArgs() []any {
	return m.args
}

// Print returns the query this model would run and its bound args, without
// executing it or rebinding "?" to the dialect's placeholder syntax -
// useful for logging and debugging the builder's output directly.
func (m *Model[T]) Print() (string, []any) {
	return m.buildSelectQuery()
}

// Chunk iterates the result set size rows at a time, calling fn for each
// chunk, so processing a large table doesn't require loading it all into
// memory at once. It stops at the first chunk smaller than size or the
// first error fn returns.
func (m *Model[T]) Chunk(ctx context.Context, size int, fn func([]*T) error) error {
	if size <= 0 {
		return fmt.Errorf("grant: Chunk size must be positive, got %d", size)
	}

	offset := 0
	for {
		q := m.Clone()
		q.limit = size
		q.offset = offset

		results, err := q.Get(ctx)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return nil
		}
		if err := fn(results); err != nil {
			return err
		}
		if len(results) < size {
			return nil
		}
		offset += size
	}
}

// PaginationResult holds a page of results alongside the metadata needed to
// render pager controls.
type PaginationResult[T any] struct {
	Data        []*T
	Total       int64
	PerPage     int
	CurrentPage int
	LastPage    int
}

// Paginate returns page (1-indexed) of perPage results, along with the
// total row count and last page number computed from a COUNT(*) query.
func (m *Model[T]) Paginate(ctx context.Context, page, perPage int) (*PaginationResult[T], error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}

	total, err := m.Clone().Count(ctx)
	if err != nil {
		return nil, err
	}

	q := m.Clone()
	q.limit = perPage
	q.offset = (page - 1) * perPage
	data, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}

	lastPage := 0
	if total > 0 {
		lastPage = int(math.Ceil(float64(total) / float64(perPage)))
	}

	return &PaginationResult[T]{
		Data:        data,
		Total:       total,
		PerPage:     perPage,
		CurrentPage: page,
		LastPage:    lastPage,
	}, nil
}

// SimplePaginate behaves like Paginate but skips the COUNT(*) query,
// reporting Total and LastPage as -1. Suited to "load more" UIs that never
// need to know the total row count.
func (m *Model[T]) SimplePaginate(ctx context.Context, page, perPage int) (*PaginationResult[T], error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}

	q := m.Clone()
	q.limit = perPage
	q.offset = (page - 1) * perPage
	data, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}

	return &PaginationResult[T]{
		Data:        data,
		Total:       -1,
		PerPage:     perPage,
		CurrentPage: page,
		LastPage:    -1,
	}, nil
}

// WhereHas adds a correlated "EXISTS (...)" condition requiring the named
// relation to have at least one matching row. constraint may be nil or a
// func(*Model[Related]) that narrows the related query (Related is the
// relation's own related type, not necessarily T). An unknown relation name
// or an unsupported relation kind (MorphTo, BelongsToMany) leaves the query
// unchanged.
func (m *Model[T]) WhereHas(relation string, constraint any) *Model[T] {
	idx, ok := m.modelInfo.RelationMethods[relation]
	if !ok {
		idx, ok = m.modelInfo.RelationMethods[relation+"Relation"]
	}
	if !ok {
		return m
	}

	var t T
	methodVal := reflect.ValueOf(t).Method(idx)
	if methodVal.Type().NumIn() != 0 || methodVal.Type().NumOut() != 1 {
		return m
	}
	relConfig := methodVal.Call(nil)[0].Interface()

	rel, ok := relConfig.(Relation)
	if !ok {
		return m
	}

	var relatedCol, parentCol string
	valConfig := reflect.ValueOf(relConfig)

	switch rel.RelationType() {
	case RelationHasOne, RelationHasMany:
		relatedCol = valConfig.FieldByName("ForeignKey").String()
		if relatedCol == "" {
			relatedCol = foreignKeyFromTable(m.TableName())
		}
		parentCol = valConfig.FieldByName("LocalKey").String()
		if parentCol == "" {
			parentCol = m.modelInfo.PrimaryKey
		}
	case RelationBelongsTo:
		parentCol = valConfig.FieldByName("ForeignKey").String()
		if parentCol == "" {
			parentCol = foreignKeyFromTable(relation)
		}
		relatedCol = valConfig.FieldByName("OwnerKey").String()
	default:
		// MorphTo/BelongsToMany correlation needs a pivot table or dynamic
		// type dispatch that a single EXISTS clause can't express generically.
		return m
	}

	relatedType := reflect.TypeOf(rel.NewRelated()).Elem()
	relatedInfo := ParseModelType(relatedType)
	if relatedCol == "" {
		relatedCol = relatedInfo.PrimaryKey
	}

	table := valConfig.FieldByName("Table").String()
	if table == "" {
		table = relatedInfo.TableName
	}

	sub := rel.NewModel(m.ctx, m.db)
	subVal := reflect.ValueOf(sub)

	if constraint != nil {
		cbVal := reflect.ValueOf(constraint)
		if cbVal.Kind() == reflect.Func && cbVal.Type().NumIn() == 1 && subVal.Type().AssignableTo(cbVal.Type().In(0)) {
			cbVal.Call([]reflect.Value{subVal})
		}
	}

	builder, ok := sub.(sqlBuilder)
	if !ok {
		return m
	}

	selectMethod := subVal.MethodByName("Select")
	if selectMethod.IsValid() {
		selectMethod.CallSlice([]reflect.Value{reflect.ValueOf([]string{"1"})})
	}
	whereMethod := subVal.MethodByName("Where")
	if whereMethod.IsValid() {
		whereMethod.CallSlice([]reflect.Value{
			reflect.ValueOf(any(table + "." + relatedCol + " = " + m.TableName() + "." + parentCol)),
			reflect.ValueOf([]any{}),
		})
	}

	subSQL, subArgs := builder.buildSelectQuery()
	m.wheres = append(m.wheres, "AND EXISTS ("+subSQL+")")
	m.args = append(m.args, subArgs...)
	return m
}

// WhereEncrypted adds an equality condition against an encrypted column by
// encrypting probe with that column's registered deterministic Cipher
// before binding it, so the comparison runs against stored ciphertext
// without ever decrypting rows. Only deterministic attributes support this
// search; a randomized cipher never produces the same ciphertext twice, so
// column must have been declared with encrypts(..., deterministic: true).
func (m *Model[T]) WhereEncrypted(column, probe string) *Model[T] {
	if err := ValidateColumnName(column); err != nil {
		return m
	}
	cipher, ok := m.cipherFor(column)
	if !ok || !cipher.attr.Deterministic {
		m.wheres = append(m.wheres, "AND 1=0")
		return m
	}
	ciphertext, err := cipher.Encrypt(probe)
	if err != nil {
		m.wheres = append(m.wheres, "AND 1=0")
		return m
	}
	m.wheres = append(m.wheres, "AND ("+column+" = ?)")
	m.args = append(m.args, ciphertext)
	return m
}

// WhereFullText adds a PostgreSQL full-text search condition using the
// "english" text search configuration.
func (m *Model[T]) WhereFullText(column, query string) *Model[T] {
	return m.WhereFullTextWithConfig(column, query, "english")
}

// WhereFullTextWithConfig adds a full-text search condition using the given
// text search configuration (e.g. "spanish").
func (m *Model[T]) WhereFullTextWithConfig(column, query, config string) *Model[T] {
	if err := ValidateColumnName(column); err != nil {
		return m
	}
	cond := "(to_tsvector('" + config + "', " + column + ") @@ plainto_tsquery('" + config + "', ?))"
	m.wheres = append(m.wheres, "AND "+cond)
	m.args = append(m.args, query)
	return m
}

// WhereTsVector matches column (expected to already be a tsvector, e.g. a
// generated search_vector column) against a raw to_tsquery expression.
func (m *Model[T]) WhereTsVector(column, query string) *Model[T] {
	if err := ValidateColumnName(column); err != nil {
		return m
	}
	cond := "(" + column + " @@ to_tsquery('english', ?))"
	m.wheres = append(m.wheres, "AND "+cond)
	m.args = append(m.args, query)
	return m
}

// WherePhraseSearch adds a full-text phrase search condition, matching only
// documents containing the words in query adjacent and in order.
func (m *Model[T]) WherePhraseSearch(column, query string) *Model[T] {
	if err := ValidateColumnName(column); err != nil {
		return m
	}
	cond := "(to_tsvector('english', " + column + ") @@ phraseto_tsquery('english', ?))"
	m.wheres = append(m.wheres, "AND "+cond)
	m.args = append(m.args, query)
	return m
}
