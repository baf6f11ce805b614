package query

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gorm.io/gorm/clause"

	"github.com/tbourn/flashcard-market/internal/fieldmap"
	"github.com/tbourn/flashcard-market/internal/utils"
)

// Well-known pagination and sort parameter names.
const (
	ParamPage   = "page"
	ParamLimit  = "limit"
	ParamSortBy = "sortBy"
	ParamOrder  = "order"
)

// Plan is a compiled, validated list query. It holds no database handle and
// can be inspected in tests.
type Plan struct {
	Page   int
	Limit  int
	Offset int

	SortColumn string
	Desc       bool

	Joins      []string
	Conditions []clause.Expression
}

// Compile turns raw parameters and code-supplied base conditions into a Plan.
//
// Numeric parameters are parsed permissively: malformed or non-positive page
// falls back to 1, malformed or non-positive limit to DefaultLimit, and limit
// is capped at MaxLimit. The only rejected input is a sortBy outside
// AllowedSortFields, reported as *InvalidSortFieldError.
func (c *ListQueryConfig) Compile(p Params, base ...Condition) (*Plan, error) {
	plan := &Plan{}

	plan.Page = utils.AtoiDefault(strings.TrimSpace(p[ParamPage]), 1)
	if plan.Page < 1 {
		plan.Page = 1
	}
	plan.Limit = utils.AtoiDefault(strings.TrimSpace(p[ParamLimit]), c.DefaultLimit)
	if plan.Limit < 1 {
		plan.Limit = c.DefaultLimit
	}
	if plan.Limit > c.MaxLimit {
		plan.Limit = c.MaxLimit
	}
	plan.Offset = (plan.Page - 1) * plan.Limit

	plan.SortColumn = c.DefaultSort
	if raw := strings.TrimSpace(p[ParamSortBy]); raw != "" {
		col, _ := fieldmap.Column(raw)
		if !slices.Contains(c.AllowedSortFields, col) {
			return nil, &InvalidSortFieldError{Field: raw, Allowed: fieldmap.APINames(c.AllowedSortFields)}
		}
		plan.SortColumn = col
	}

	desc, _ := parseOrder(c.DefaultOrder)
	if d, ok := parseOrder(p[ParamOrder]); ok {
		desc = d
	}
	plan.Desc = desc

	for _, b := range base {
		plan.Conditions = append(plan.Conditions, clause.Eq{
			Column: clause.Column{Table: c.Table, Name: b.Column},
			Value:  b.Value,
		})
	}

	// Iterate filters in a fixed order so compiled plans are comparable.
	names := make([]string, 0, len(c.NamedFilters))
	for name := range c.NamedFilters {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		raw, present := p[name]
		if !present {
			continue
		}
		f := c.NamedFilters[name]
		if expr, ok := filterExpr(clause.Column{Table: c.Table, Name: f.Column}, f.Kind, raw); ok {
			plan.Conditions = append(plan.Conditions, expr)
		}
	}

	for _, jf := range c.JoinFilters {
		raw, present := p[jf.Param]
		if !present {
			continue
		}
		values := parseList(jf.Kind, raw)
		if len(values) == 0 {
			continue
		}
		for _, j := range jf.Joins {
			if !slices.Contains(plan.Joins, j) {
				plan.Joins = append(plan.Joins, j)
			}
		}
		plan.Conditions = append(plan.Conditions, clause.IN{
			Column: clause.Column{Table: jf.Table, Name: jf.Column},
			Values: values,
		})
	}

	return plan, nil
}

// CacheParams returns the parameters that decide the query compiled from p
// in normalized form: clamped page and limit, the resolved sort column and
// direction, and only the filters whose values parse. Inputs that compile to
// the same query map to equal results, and unknown parameters are dropped.
// It fails like Compile on an unknown sort field.
func (c *ListQueryConfig) CacheParams(p Params) (Params, error) {
	plan, err := c.Compile(p)
	if err != nil {
		return nil, err
	}
	order := "asc"
	if plan.Desc {
		order = "desc"
	}
	out := Params{
		ParamPage:   strconv.Itoa(plan.Page),
		ParamLimit:  strconv.Itoa(plan.Limit),
		ParamSortBy: plan.SortColumn,
		ParamOrder:  order,
	}
	for name, f := range c.NamedFilters {
		raw := strings.TrimSpace(p[name])
		if raw == "" {
			continue
		}
		if f.Kind == KindContains {
			out[name] = raw
			continue
		}
		if v, ok := parseValue(f.Kind, raw); ok {
			out[name] = fmt.Sprint(v)
		}
	}
	for _, jf := range c.JoinFilters {
		values := parseList(jf.Kind, p[jf.Param])
		if len(values) == 0 {
			continue
		}
		strs := make([]string, 0, len(values))
		for _, v := range values {
			strs = append(strs, fmt.Sprint(v))
		}
		slices.Sort(strs)
		out[jf.Param] = strings.Join(slices.Compact(strs), ",")
	}
	return out, nil
}

// parseOrder normalizes ASC/DESC (any case). ok is false for anything else.
func parseOrder(s string) (desc bool, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASC":
		return false, true
	case "DESC":
		return true, true
	}
	return false, false
}

// filterExpr builds the where expression for a named filter, or ok=false when
// the raw value does not parse for its kind.
func filterExpr(col clause.Column, kind Kind, raw string) (clause.Expression, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	if kind == KindContains {
		return clause.Expr{
			SQL:  `? LIKE ? ESCAPE '\'`,
			Vars: []any{col, "%" + likeEscaper.Replace(raw) + "%"},
		}, true
	}
	v, ok := parseValue(kind, raw)
	if !ok {
		return nil, false
	}
	return clause.Eq{Column: col, Value: v}, true
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func parseValue(kind Kind, raw string) (any, bool) {
	switch kind {
	case KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, false
		}
		return b, true
	default:
		return raw, true
	}
}

// parseList splits a comma separated value and keeps the entries that parse.
func parseList(kind Kind, raw string) []any {
	parts := strings.Split(raw, ",")
	out := make([]any, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if v, ok := parseValue(kind, part); ok {
			out = append(out, v)
		}
	}
	return out
}
