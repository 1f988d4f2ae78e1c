package odata

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// QueryOptions is the parsed $top/$skip/$count/$select/$orderby/$filter
// set for one request.
type QueryOptions struct {
	Top      *int
	Skip     *int
	Count    bool
	Select   []string
	OrderBy  string
	OrderDir string
	Filter   string
	Clauses  []Clause
}

// ParseQueryOptions reads the $-prefixed options out of q, per §6.2.
func ParseQueryOptions(q url.Values) (QueryOptions, error) {
	var opts QueryOptions

	if raw := q.Get("$top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("odata: $top must be a non-negative integer, got %q", raw)
		}
		opts.Top = &n
	}
	if raw := q.Get("$skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("odata: $skip must be a non-negative integer, got %q", raw)
		}
		opts.Skip = &n
	}
	if raw := q.Get("$count"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, fmt.Errorf("odata: $count must be a boolean, got %q", raw)
		}
		opts.Count = b
	}
	if raw := q.Get("$select"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			opts.Select = append(opts.Select, strings.TrimSpace(f))
		}
	}
	if raw := q.Get("$orderby"); raw != "" {
		fields := strings.Fields(raw)
		opts.OrderBy = fields[0]
		opts.OrderDir = "asc"
		if len(fields) > 1 && strings.EqualFold(fields[1], "desc") {
			opts.OrderDir = "desc"
		}
	}
	if raw := q.Get("$filter"); raw != "" {
		clauses, err := ParseFilter(raw)
		if err != nil {
			return opts, err
		}
		opts.Filter = raw
		opts.Clauses = clauses
	}

	return opts, nil
}

// Apply filters, sorts, paginates, and selects rows in that order,
// returning the final page plus the total match count (pre-pagination,
// used for @odata.count).
func Apply(rows []map[string]interface{}, opts QueryOptions) ([]map[string]interface{}, int) {
	filtered := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		if matchesAll(row, opts.Clauses) {
			filtered = append(filtered, row)
		}
	}

	if opts.OrderBy != "" {
		sort.SliceStable(filtered, func(i, j int) bool {
			vi, _ := lookup(filtered[i], opts.OrderBy)
			vj, _ := lookup(filtered[j], opts.OrderBy)
			less := fmt.Sprintf("%v", vi) < fmt.Sprintf("%v", vj)
			if opts.OrderDir == "desc" {
				return !less
			}
			return less
		})
	}

	total := len(filtered)

	start := 0
	if opts.Skip != nil {
		start = *opts.Skip
	}
	if start > len(filtered) {
		start = len(filtered)
	}
	end := len(filtered)
	if opts.Top != nil && start+*opts.Top < end {
		end = start + *opts.Top
	}
	page := filtered[start:end]

	if len(opts.Select) > 0 {
		page = project(page, opts.Select)
	}

	return page, total
}

func matchesAll(row map[string]interface{}, clauses []Clause) bool {
	for _, c := range clauses {
		if !matches(row, c) {
			return false
		}
	}
	return true
}

// project narrows each row to the $select fields, emitting values under the
// property name the caller asked for.
func project(rows []map[string]interface{}, fields []string) []map[string]interface{} {
	projected := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		narrow := make(map[string]interface{}, len(fields))
		for _, f := range fields {
			if v, ok := lookup(row, f); ok {
				narrow[f] = v
			}
		}
		projected[i] = narrow
	}
	return projected
}
