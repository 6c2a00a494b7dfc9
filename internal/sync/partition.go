package sync

import (
	"sort"
	"strings"
	"time"

	"github.com/Additional-Code/beacon/internal/order"
)

// Tab selects which lifecycle bucket a view shows.
type Tab string

const (
	TabActive  Tab = "active"
	TabHistory Tab = "history"
)

// Filters narrow a view. Zero values mean "no filter"; all set filters are
// ANDed together.
type Filters struct {
	// Search matches a case-insensitive substring of the customer name or
	// the order id.
	Search string
	// Status requires an exact status match when non-empty.
	Status order.Status
	// Store requires an exact store-name match when non-empty.
	Store string
	// Day requires calendar-day equality (UTC) with the creation time.
	Day time.Time
}

// Equal reports whether two filter sets select the same orders. The
// controller uses it to reset pagination when the filters change.
func (f Filters) Equal(other Filters) bool {
	return f.Search == other.Search &&
		f.Status == other.Status &&
		f.Store == other.Store &&
		f.Day.Equal(other.Day)
}

func (f Filters) match(o order.Order) bool {
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(o.CustomerName), q) &&
			!strings.Contains(strings.ToLower(o.ID), q) {
			return false
		}
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.Store != "" && o.StoreName != f.Store {
		return false
	}
	if !f.Day.IsZero() && !sameDay(o.CreatedAt, f.Day) {
		return false
	}
	return true
}

// View is one presentation-ready page of orders.
type View struct {
	Orders     []order.Order
	Page       int
	PageSize   int
	TotalPages int
	// Total counts the orders matching tab and filters before pagination.
	Total int
}

// inTab applies the bucket predicates. The two conditions are checked
// independently: a terminal order whose archive flag has not landed yet must
// already show in history, and a manually archived pending order must not
// show in active.
func inTab(o order.Order, tab Tab) bool {
	terminal := o.Status.Terminal()
	switch tab {
	case TabHistory:
		return o.IsArchived || terminal
	default:
		return !o.IsArchived && !terminal
	}
}

// Partition derives one view page from the full order set without mutating
// it. Sorting is always by creation time descending; ties break on id so the
// order is stable across refetches. An out-of-range page clamps into range
// rather than returning an empty page.
func Partition(orders []order.Order, tab Tab, f Filters, page, pageSize int) View {
	matched := make([]order.Order, 0, len(orders))
	for _, o := range orders {
		if inTab(o, tab) && f.match(o) {
			matched = append(matched, o)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if pageSize <= 0 {
		pageSize = 10
	}
	total := len(matched)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return View{
		Orders:     matched[start:end],
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		Total:      total,
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
