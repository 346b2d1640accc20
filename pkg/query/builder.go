package query

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// SortField orders by a projected view name. Descending false means ASC.
type SortField struct {
	Field      string
	Descending bool
}

// ParseSortFields reads "name,-created_at" style input. A leading "-"
// sorts descending. Blank entries are skipped and empty input yields nil.
func ParseSortFields(s string) []SortField {
	if s == "" {
		return nil
	}

	var fields []SortField
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, desc := strings.CutPrefix(part, "-")
		fields = append(fields, SortField{Field: name, Descending: desc})
	}
	return fields
}

// condition is a WHERE fragment whose '?' markers are numbered at render time.
type condition struct {
	clause string
	args   []any
}

// Builder assembles PostgreSQL SELECT statements against a ProjectionMap.
// Nil or empty filter values are ignored so callers can chain optional
// filters without branching.
type Builder struct {
	projection  *ProjectionMap
	conditions  []condition
	sort        []SortField
	defaultSort []SortField
}

// NewBuilder starts a query over projection, ordered by defaultSort unless
// OrderByFields overrides it.
func NewBuilder(projection *ProjectionMap, defaultSort ...SortField) *Builder {
	return &Builder{projection: projection, defaultSort: defaultSort}
}

// OrderByFields replaces the default ordering. Unmapped fields are dropped.
func (b *Builder) OrderByFields(fields []SortField) *Builder {
	b.sort = fields
	return b
}

// WhereEquals matches field = value.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	return b.compare(field, "=", value)
}

// WhereSince matches field >= value.
func (b *Builder) WhereSince(field string, value any) *Builder {
	return b.compare(field, ">=", value)
}

// WhereAfter matches field > value.
func (b *Builder) WhereAfter(field string, value any) *Builder {
	return b.compare(field, ">", value)
}

// WhereContains matches field case-insensitively as a substring.
func (b *Builder) WhereContains(field string, value *string) *Builder {
	if value == nil || *value == "" {
		return b
	}
	return b.where(b.column(field)+" ILIKE ?", "%"+*value+"%")
}

// WhereSearch matches when any of fields contains search.
func (b *Builder) WhereSearch(search *string, fields ...string) *Builder {
	if search == nil || *search == "" || len(fields) == 0 {
		return b
	}

	pattern := "%" + *search + "%"
	clauses := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		clauses[i] = b.column(f) + " ILIKE ?"
		args[i] = pattern
	}
	return b.where("("+strings.Join(clauses, " OR ")+")", args...)
}

// Build renders the full ordered SELECT.
func (b *Builder) Build() (string, []any) {
	where, args := b.renderWhere(1)
	return b.selectFrom() + where + b.orderBy(), args
}

// BuildCount renders SELECT COUNT(*) over the current conditions.
func (b *Builder) BuildCount() (string, []any) {
	where, args := b.renderWhere(1)
	return "SELECT COUNT(*) FROM " + b.projection.From() + where, args
}

// BuildPage renders one 1-based page of the ordered SELECT.
func (b *Builder) BuildPage(page, pageSize int) (string, []any) {
	where, args := b.renderWhere(1)
	offset := max(page-1, 0) * pageSize
	return fmt.Sprintf("%s%s%s LIMIT %d OFFSET %d",
		b.selectFrom(), where, b.orderBy(), pageSize, offset), args
}

// BuildSingle selects the row whose idField equals id, further narrowed by
// any existing conditions. The id is always $1.
func (b *Builder) BuildSingle(idField string, id any) (string, []any) {
	where, args := b.renderWhere(2)
	clause := " WHERE " + b.column(idField) + " = $1"
	if rest, ok := strings.CutPrefix(where, " WHERE "); ok {
		clause += " AND " + rest
	}
	return b.selectFrom() + clause, append([]any{id}, args...)
}

// BuildSingleOrNull selects the first row in sort order, if any.
func (b *Builder) BuildSingleOrNull() (string, []any) {
	where, args := b.renderWhere(1)
	return b.selectFrom() + where + b.orderBy() + " LIMIT 1", args
}

func (b *Builder) compare(field, op string, value any) *Builder {
	if isNil(value) {
		return b
	}
	return b.where(b.column(field)+" "+op+" ?", value)
}

func (b *Builder) where(clause string, args ...any) *Builder {
	b.conditions = append(b.conditions, condition{clause: clause, args: args})
	return b
}

func (b *Builder) selectFrom() string {
	return "SELECT " + b.projection.Columns() + " FROM " + b.projection.From()
}

// orderBy renders the requested sort, falling back to the default when no
// requested field is mapped.
func (b *Builder) orderBy() string {
	parts := b.sortColumns(b.sort)
	if len(parts) == 0 {
		parts = b.sortColumns(b.defaultSort)
	}
	if len(parts) == 0 {
		return ""
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func (b *Builder) sortColumns(fields []SortField) []string {
	var parts []string
	for _, f := range fields {
		col, ok := b.projection.Column(f.Field)
		if !ok {
			continue
		}
		dir := " ASC"
		if f.Descending {
			dir = " DESC"
		}
		parts = append(parts, col+dir)
	}
	return parts
}

// column resolves a field named by code, not by clients. An unmapped name
// is a programming error.
func (b *Builder) column(field string) string {
	col, ok := b.projection.Column(field)
	if !ok {
		panic(fmt.Sprintf("query: unmapped field %q", field))
	}
	return col
}

// renderWhere numbers placeholders from start and joins conditions with AND.
func (b *Builder) renderWhere(start int) (string, []any) {
	if len(b.conditions) == 0 {
		return "", nil
	}

	var sb strings.Builder
	var args []any
	n := start

	sb.WriteString(" WHERE ")
	for i, c := range b.conditions {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		for _, r := range c.clause {
			if r != '?' {
				sb.WriteRune(r)
				continue
			}
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			n++
		}
		args = append(args, c.args...)
	}
	return sb.String(), args
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}
