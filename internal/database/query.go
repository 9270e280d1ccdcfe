package database

import (
	"strings"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListOptions carries the paging, search and ordering parameters accepted by
// every list endpoint.
type ListOptions struct {
	Page     int
	PageSize int
	Search   string
	Ordering string // comma separated API field names, "-" prefix for descending
	Filters  map[string]string
}

// Normalized clamps paging values into range.
func (o ListOptions) Normalized() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}
	o.Search = strings.TrimSpace(o.Search)
	return o
}

func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.PageSize
}

func (o ListOptions) Filter(key string) string {
	if o.Filters == nil {
		return ""
	}
	return strings.TrimSpace(o.Filters[key])
}

// Page is one slice of a list query plus the total row count.
type Page[T any] struct {
	Items []T
	Total int64
}

// ApplyOrdering translates API ordering fields into ORDER BY clauses.
// Fields outside allowed are ignored; fallback applies when nothing matched.
func ApplyOrdering(q *gorm.DB, ordering string, allowed map[string]string, fallback string) *gorm.DB {
	applied := false
	for _, field := range strings.Split(ordering, ",") {
		field = strings.TrimSpace(field)
		desc := strings.HasPrefix(field, "-")
		column, ok := allowed[strings.TrimPrefix(field, "-")]
		if !ok {
			continue
		}
		if desc {
			column += " DESC"
		} else {
			column += " ASC"
		}
		q = q.Order(column)
		applied = true
	}
	if !applied && fallback != "" {
		q = q.Order(fallback)
	}
	return q
}

// Paginate counts the rows matched by q, then loads the requested page into dest.
func Paginate[T any](q *gorm.DB, opts ListOptions) (*Page[T], error) {
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}
	var items []T
	if err := q.Limit(opts.PageSize).Offset(opts.Offset()).Find(&items).Error; err != nil {
		return nil, err
	}
	return &Page[T]{Items: items, Total: total}, nil
}

// LikePattern wraps a search term for a case-insensitive LIKE match.
func LikePattern(term string) string {
	return "%" + strings.ToLower(term) + "%"
}
