package ingest

import "strings"

// ColumnMap resolves column names to row indexes. Built once from the
// detected header; lookups are case-insensitive on trimmed names.
type ColumnMap struct {
	header []string
	idx    map[string]int
}

// newColumnMap builds a ColumnMap from the raw header row. First occurrence
// wins on duplicate names.
func newColumnMap(header []string) *ColumnMap {
	m := &ColumnMap{
		header: append([]string(nil), header...),
		idx:    make(map[string]int, len(header)),
	}
	for i, col := range header {
		key := normalizeColName(col)
		if _, ok := m.idx[key]; !ok {
			m.idx[key] = i
		}
	}
	return m
}

func normalizeColName(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Header returns the raw header row as observed in the file.
func (m *ColumnMap) Header() []string {
	return m.header
}

// Index returns the index of the named column.
func (m *ColumnMap) Index(name string) (int, bool) {
	i, ok := m.idx[normalizeColName(name)]
	return i, ok
}

// Has reports whether the named column exists.
func (m *ColumnMap) Has(name string) bool {
	_, ok := m.Index(name)
	return ok
}

// Get returns the named cell of row, or "" when the column is absent or the
// row is short.
func (m *ColumnMap) Get(row []string, name string) string {
	i, ok := m.Index(name)
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// FirstWhere returns the first header column whose normalized name satisfies
// pred. Used for vendor-drift fallbacks such as "any column containing both
// AGENT and NAME".
func (m *ColumnMap) FirstWhere(pred func(name string) bool) (string, bool) {
	for _, col := range m.header {
		if pred(normalizeColName(col)) {
			return col, true
		}
	}
	return "", false
}

// Require verifies every named column resolves, returning a
// SchemaMismatchError carrying the observed header on the first miss.
func (m *ColumnMap) Require(names ...string) error {
	for _, name := range names {
		if !m.Has(name) {
			return &SchemaMismatchError{Missing: normalizeColName(name), Observed: m.header}
		}
	}
	return nil
}

// RequireAny verifies at least one of the named columns resolves and returns
// the first that does.
func (m *ColumnMap) RequireAny(names ...string) (string, error) {
	for _, name := range names {
		if m.Has(name) {
			return name, nil
		}
	}
	return "", &SchemaMismatchError{Missing: strings.Join(names, "|"), Observed: m.header}
}
