// Package query builds parameterized PostgreSQL SELECTs from view-name
// projections, so handlers filter and sort by API field names rather than
// raw columns.
package query

import "strings"

// ProjectionMap maps view names to alias-qualified columns over a base
// table and its joins.
type ProjectionMap struct {
	table   string
	alias   string
	current string
	joins   []string
	columns map[string]string
	order   []string
}

// NewProjectionMap starts a projection over schema.table aliased as alias.
func NewProjectionMap(schema, table, alias string) *ProjectionMap {
	return &ProjectionMap{
		table:   schema + "." + table,
		alias:   alias,
		current: alias,
		columns: map[string]string{},
	}
}

// Project exposes column as viewName, qualified by the most recently
// joined alias.
func (p *ProjectionMap) Project(column, viewName string) *ProjectionMap {
	qualified := p.current + "." + column
	p.columns[viewName] = qualified
	p.order = append(p.order, qualified)
	return p
}

// Hidden maps viewName to column for filtering and sorting without adding
// it to the select list.
func (p *ProjectionMap) Hidden(column, viewName string) *ProjectionMap {
	p.columns[viewName] = p.current + "." + column
	return p
}

// Join appends "kind schema.table alias ON on". Later Project calls
// qualify with alias.
func (p *ProjectionMap) Join(schema, table, alias, kind, on string) *ProjectionMap {
	p.joins = append(p.joins, kind+" "+schema+"."+table+" "+alias+" ON "+on)
	p.current = alias
	return p
}

// Alias is the base table alias.
func (p *ProjectionMap) Alias() string { return p.alias }

// Table is "schema.table alias" for the base table.
func (p *ProjectionMap) Table() string { return p.table + " " + p.alias }

// From is the FROM body including joins.
func (p *ProjectionMap) From() string {
	return strings.Join(append([]string{p.Table()}, p.joins...), " ")
}

// Column resolves viewName to its qualified column. Only projected or
// hidden names resolve, so client-supplied names never reach SQL verbatim.
func (p *ProjectionMap) Column(viewName string) (string, bool) {
	col, ok := p.columns[viewName]
	return col, ok
}

// Columns is the comma-separated select list in projection order.
func (p *ProjectionMap) Columns() string {
	return strings.Join(p.order, ", ")
}
