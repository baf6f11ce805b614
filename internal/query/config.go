// Package query compiles open-ended list request parameters into bounded,
// validated, deterministically ordered paginated GORM queries.
//
// Every listable resource declares one ListQueryConfig at startup. The config
// is closed: filters, joins and sortable columns are fixed in code, so request
// parameters can only select among them and never inject where, order or
// include fragments of their own.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/tbourn/flashcard-market/internal/fieldmap"
)

// Kind tells the compiler how to parse and compare a filter value.
type Kind int

const (
	// KindString compares for equality with the raw value.
	KindString Kind = iota
	// KindInt parses a base-10 integer; unparseable values are ignored.
	KindInt
	// KindBool parses strconv.ParseBool forms; unparseable values are ignored.
	KindBool
	// KindContains matches a literal substring with LIKE; LIKE wildcards in the
	// value are escaped. SQLite compares ASCII letters case-insensitively.
	KindContains
)

// NamedFilter maps one query parameter to one column of the resource table.
type NamedFilter struct {
	Column string
	Kind   Kind
}

// Named builds a NamedFilter whose column is resolved through fieldmap. It
// panics on unknown parameters; configs are built once at startup.
func Named(param string, kind Kind) NamedFilter {
	col, ok := fieldmap.Column(param)
	if !ok {
		panic(fmt.Sprintf("query: no column mapping for filter %q", param))
	}
	return NamedFilter{Column: col, Kind: kind}
}

// JoinFilter filters the resource by a column of a joined table. Param holds
// a comma separated list; a row matches when the joined column equals any of
// the values. Joins are fixed SQL fragments owned by the config.
type JoinFilter struct {
	Param  string
	Joins  []string
	Table  string
	Column string
	Kind   Kind
}

// ListQueryConfig describes how one resource type may be listed.
type ListQueryConfig struct {
	// Resource is a human-readable name used in traces and cache keys.
	Resource string
	// Table is the storage table; all columns are qualified with it.
	Table string
	// PrimaryKey is used for distinct counting and as the order tiebreaker.
	PrimaryKey string

	NamedFilters map[string]NamedFilter
	JoinFilters  []JoinFilter

	// AllowedSortFields lists storage columns accepted in ORDER BY.
	AllowedSortFields []string
	DefaultSort       string
	DefaultOrder      string

	DefaultLimit int
	MaxLimit     int

	// Preloads are the associations loaded for every row.
	Preloads []Preload
}

// Preload names a GORM association and optional conditions on its rows, as
// passed to gorm.DB.Preload.
type Preload struct {
	Assoc string
	Conds []any
}

// Assoc builds a Preload for name restricted by conds.
func Assoc(name string, conds ...any) Preload { return Preload{Assoc: name, Conds: conds} }

// Validate checks the config for programming mistakes.
func (c *ListQueryConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.Table) == "":
		return fmt.Errorf("query: %s: table is required", c.Resource)
	case strings.TrimSpace(c.PrimaryKey) == "":
		return fmt.Errorf("query: %s: primary key is required", c.Resource)
	case c.DefaultLimit < 1:
		return fmt.Errorf("query: %s: default limit must be >= 1", c.Resource)
	case c.MaxLimit < c.DefaultLimit:
		return fmt.Errorf("query: %s: max limit must be >= default limit", c.Resource)
	case !slices.Contains(c.AllowedSortFields, c.DefaultSort):
		return fmt.Errorf("query: %s: default sort %q is not an allowed sort field", c.Resource, c.DefaultSort)
	}
	if _, ok := parseOrder(c.DefaultOrder); !ok {
		return fmt.Errorf("query: %s: default order %q must be ASC or DESC", c.Resource, c.DefaultOrder)
	}
	return nil
}

// MustConfig validates c and panics when it is malformed.
func MustConfig(c ListQueryConfig) *ListQueryConfig {
	if err := c.Validate(); err != nil {
		panic(err)
	}
	return &c
}

// Params carries raw request parameters, one value per name.
type Params map[string]string

// ParamsFromValues keeps the first value of every parameter.
func ParamsFromValues(v url.Values) Params {
	out := make(Params, len(v))
	for k, vs := range v {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

// Clone returns a shallow copy that callers may extend.
func (p Params) Clone() Params {
	out := make(Params, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Condition is a code-supplied equality restriction on the resource table,
// such as hidden = false or user_id = <caller>.
type Condition struct {
	Column string
	Value  any
}

// Eq returns a Condition for column = value.
func Eq(column string, value any) Condition { return Condition{Column: column, Value: value} }

// InvalidSortFieldError reports a sortBy value outside the allow-list.
type InvalidSortFieldError struct {
	Field   string
	Allowed []string
}

// ErrInvalidSortField matches any *InvalidSortFieldError with errors.Is.
var ErrInvalidSortField = errors.New("invalid sort field")

func (e *InvalidSortFieldError) Error() string {
	return fmt.Sprintf("invalid sort field %q (allowed: %s)", e.Field, strings.Join(e.Allowed, ", "))
}

// Is makes errors.Is(err, ErrInvalidSortField) succeed.
func (e *InvalidSortFieldError) Is(target error) bool { return target == ErrInvalidSortField }
