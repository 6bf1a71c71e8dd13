// internal/domain/paging/paging.go
package paging

import (
	"net/url"
	"strconv"
)

// Order is the sort direction accepted by list endpoints.
type Order string

const (
	OrderAsc  Order = "ASC"
	OrderDesc Order = "DESC"
)

// Meta describes the page returned by a list endpoint.
type Meta struct {
	Page            int  `json:"page"`
	Limit           int  `json:"limit"`
	ItemCount       int  `json:"itemCount"`
	PageCount       int  `json:"pageCount"`
	HasPreviousPage bool `json:"hasPreviousPage"`
	HasNextPage     bool `json:"hasNextPage"`
}

// Page is one page of T.
type Page[T any] struct {
	Data []T `json:"data"`
	Meta Meta `json:"meta"`
}

// Params are the optional query parameters of list endpoints.
// Zero values are omitted from the query string.
type Params struct {
	Page    int    `validate:"gte=0"`
	Limit   int    `validate:"gte=0,lte=100"`
	Search  string
	OrderBy string
	Order   Order `validate:"omitempty,oneof=ASC DESC"`
}

// Values encodes the params as a query string.
func (p Params) Values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if p.OrderBy != "" {
		v.Set("orderBy", p.OrderBy)
	}
	if p.Order != "" {
		v.Set("order", string(p.Order))
	}
	return v
}
