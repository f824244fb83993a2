package db

import (
	"fmt"
	"strings"
)

// Args collects positional parameters and hands out their placeholders,
// so callers never track $n indexes by hand.
type Args struct {
	values []any
}

// Add appends v and returns its placeholder ("$1", "$2", ...).
func (a *Args) Add(v any) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

func (a *Args) Values() []any { return a.values }

func (a *Args) Len() int { return len(a.values) }

// Where joins conditions with AND. An empty set yields "".
type Where []string

func (w *Where) And(cond string) { *w = append(*w, cond) }

func (w Where) String() string {
	if len(w) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w, " AND ")
}

// SortColumns maps API sort keys to trusted SQL column expressions.
type SortColumns map[string]string

// Sort is a caller-supplied ordering request.
type Sort struct {
	Column    string
	Direction string
}

// OrderBy returns an ORDER BY fragment built only from whitelisted pieces.
// Unknown columns fall back to def; unknown directions fall back to DESC.
func OrderBy(s Sort, allowed SortColumns, def string) string {
	col, ok := allowed[strings.ToLower(strings.TrimSpace(s.Column))]
	if !ok {
		col, ok = allowed[def]
		if !ok {
			col = def
		}
	}
	dir := "DESC"
	if strings.EqualFold(strings.TrimSpace(s.Direction), "asc") {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", col, dir)
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a normalized 1-based page request.
type Page struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Normalize clamps the page into range the same way the list endpoints always have.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

// Limit appends LIMIT/OFFSET placeholders for p.
func (p Page) Limit(args *Args) string {
	n := p.Normalize()
	return fmt.Sprintf(" LIMIT %s OFFSET %s", args.Add(n.PageSize), args.Add(p.Offset()))
}

// Pagination is the response envelope for paged lists.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

func NewPagination(p Page, total int) Pagination {
	n := p.Normalize()
	return Pagination{
		Page:       n.Page,
		PageSize:   n.PageSize,
		TotalCount: total,
		TotalPages: (total + n.PageSize - 1) / n.PageSize,
	}
}
