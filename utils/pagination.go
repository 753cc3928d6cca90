package utils

import (
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const DefaultPage = 1

type PageOptions struct {
	DefaultPageSize int
	MaxPageSize     int
}

var (
	ListPageOptions   = PageOptions{DefaultPageSize: 20, MaxPageSize: 100}
	ExportPageOptions = PageOptions{DefaultPageSize: 1000, MaxPageSize: 1000}
)

// PageParams describes one page request.
type PageParams struct {
	Page      int    `json:"page"`
	PageSize  int    `json:"page_size"`
	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order"` // asc|desc
}

// Normalize clamps the page and size into opt and defaults the sort order.
func (p PageParams) Normalize(opt PageOptions) PageParams {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.PageSize < 1 {
		p.PageSize = opt.DefaultPageSize
	}
	if p.PageSize > opt.MaxPageSize {
		p.PageSize = opt.MaxPageSize
	}
	p.SortOrder = strings.ToLower(strings.TrimSpace(p.SortOrder))
	if p.SortOrder != "asc" && p.SortOrder != "desc" {
		p.SortOrder = "desc"
	}
	return p
}

func (p PageParams) Limit() int  { return p.PageSize }
func (p PageParams) Offset() int { return (p.Page - 1) * p.PageSize }

// OrderClause resolves SortBy against a column whitelist.
func (p PageParams) OrderClause(allowed map[string]string, defaultKey string) string {
	col, ok := allowed[p.SortBy]
	if !ok {
		col = allowed[defaultKey]
	}
	dir := "DESC"
	if p.SortOrder == "asc" {
		dir = "ASC"
	}
	return col + " " + dir
}

// TotalPages returns ceil(total/pageSize), 0 when empty.
func TotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}

// ParsePageParams reads page, page_size (or limit), sort_by and sort_order from the query string.
func ParsePageParams(c *fiber.Ctx, defaultSortBy string, opt PageOptions) PageParams {
	size := strings.TrimSpace(c.Query("page_size"))
	if size == "" {
		size = c.Query("limit")
	}
	p := PageParams{
		Page:      atoiDefault(c.Query("page"), DefaultPage),
		PageSize:  atoiDefault(size, opt.DefaultPageSize),
		SortBy:    strings.TrimSpace(c.Query("sort_by", defaultSortBy)),
		SortOrder: c.Query("sort_order", "desc"),
	}
	return p.Normalize(opt)
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
