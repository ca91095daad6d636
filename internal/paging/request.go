package paging

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/koustreak/filegate/internal/errs"
	"github.com/koustreak/filegate/internal/filestore"
)

// InvalidPageMessage is the caller-facing text for every pagination
// validation failure.
const InvalidPageMessage = "Invalid page number or page size"

// Order selects how a bucket's objects are ordered before slicing pages.
type Order int

const (
	// OrderStore keeps the backend's cursor order.
	OrderStore Order = iota
	// OrderNewest sorts by LastModified descending, then key ascending.
	// It requires walking the whole cursor chain.
	OrderNewest
)

func (o Order) String() string {
	if o == OrderNewest {
		return "newest"
	}
	return "store"
}

// ParseOrder maps the "sort" query value to an Order.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "store":
		return OrderStore, nil
	case "newest", "-modified", "-lastmodified":
		return OrderNewest, nil
	}
	return OrderStore, errs.Invalid("unknown sort %q", s)
}

// PageRequest is a logical page of a bucket listing. The store itself has
// no notion of page numbers.
type PageRequest struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Order    Order `json:"-"`
}

// Validate rejects pages or sizes below 1 and windows whose end offset
// would overflow.
func (r PageRequest) Validate() error {
	if r.Page < 1 || r.PageSize < 1 {
		return errs.New(errs.ErrKindInvalidInput, InvalidPageMessage)
	}
	if r.Page > math.MaxInt/r.PageSize {
		return errs.New(errs.ErrKindInvalidInput, InvalidPageMessage)
	}
	return nil
}

// Offset is the index of the first item of the page.
func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.PageSize
}

// End is one past the index of the last item of the page.
func (r PageRequest) End() int {
	return r.Page * r.PageSize
}

// PageRequestFromQuery parses page, pageSize (or page_size) and sort from
// URL query values. Absent values take the defaults; present values that
// are not integers, are below 1, or exceed the configured maximum page
// size are validation errors.
func PageRequestFromQuery(values url.Values, cfg Config) (PageRequest, error) {
	req := PageRequest{Page: 1, PageSize: cfg.DefaultPageSize}

	if v := values.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, errs.New(errs.ErrKindInvalidInput, InvalidPageMessage)
		}
		req.Page = n
	}

	size := values.Get("pageSize")
	if size == "" {
		size = values.Get("page_size")
	}
	if size != "" {
		n, err := strconv.Atoi(size)
		if err != nil {
			return req, errs.New(errs.ErrKindInvalidInput, InvalidPageMessage)
		}
		req.PageSize = n
	}

	order, err := ParseOrder(values.Get("sort"))
	if err != nil {
		return req, err
	}
	req.Order = order

	if err := req.Validate(); err != nil {
		return req, err
	}
	if cfg.MaxPageSize > 0 && req.PageSize > cfg.MaxPageSize {
		return req, errs.New(errs.ErrKindInvalidInput, InvalidPageMessage)
	}
	return req, nil
}

// PageResult holds one page of objects plus the bucket total.
type PageResult struct {
	Page       int                    `json:"page"`
	PageSize   int                    `json:"pageSize"`
	TotalItems int                    `json:"totalFiles"`
	Items      []filestore.ObjectInfo `json:"files"`
}

// TotalPages is the number of pages of PageSize needed for TotalItems.
func (r *PageResult) TotalPages() int {
	if r.PageSize < 1 {
		return 0
	}
	return (r.TotalItems + r.PageSize - 1) / r.PageSize
}
