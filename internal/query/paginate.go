package query

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Pagination is the metadata returned with every page.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
	HasMore    bool  `json:"hasMore"`
}

// Page is one page of rows plus its pagination metadata.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// NewPagination derives totals for the given page and limit.
// TotalPages = ceil(total/limit) and HasMore = page < TotalPages.
func NewPagination(total int64, page, limit int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Pagination{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	}
}

// Map converts the items of a page, keeping its metadata.
func Map[T, R any](p *Page[T], fn func(T) R) *Page[R] {
	out := &Page[R]{Items: make([]R, 0, len(p.Items)), Pagination: p.Pagination}
	for _, it := range p.Items {
		out.Items = append(out.Items, fn(it))
	}
	return out
}

// Paginate compiles p against cfg and runs two queries on db: a distinct count
// over the primary key, then the page select. The two queries are not wrapped
// in a transaction; a concurrent write between them can only skew the
// metadata of that one response.
//
// Sort validation happens before db is touched: an invalid sortBy returns
// *InvalidSortFieldError without issuing any query.
func Paginate[T any](ctx context.Context, db *gorm.DB, cfg *ListQueryConfig, p Params, base ...Condition) (*Page[T], error) {
	plan, err := cfg.Compile(p, base...)
	if err != nil {
		return nil, err
	}

	tr := otel.Tracer("query/Paginate")
	ctx, span := tr.Start(ctx, "Paginate",
		trace.WithAttributes(
			attribute.String("resource", cfg.Resource),
			attribute.Int("page", plan.Page),
			attribute.Int("limit", plan.Limit),
			attribute.String("sort", plan.SortColumn),
		),
	)
	defer span.End()

	scoped := func() *gorm.DB {
		q := db.WithContext(ctx).Model(new(T))
		for _, j := range plan.Joins {
			q = q.Joins(j)
		}
		for _, cond := range plan.Conditions {
			q = q.Where(cond)
		}
		return q
	}

	// COUNT(DISTINCT pk) so one-to-many joins do not multiply the total.
	var total int64
	if err := scoped().Distinct(cfg.Table + "." + cfg.PrimaryKey).Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, err
	}

	page := &Page[T]{Items: []T{}, Pagination: NewPagination(total, plan.Page, plan.Limit)}
	if total == 0 || int64(plan.Offset) >= total {
		return page, nil
	}

	q := scoped()
	if len(plan.Joins) > 0 {
		q = q.Distinct(cfg.Table + ".*")
	}
	q = q.Order(clause.OrderByColumn{
		Column: clause.Column{Table: cfg.Table, Name: plan.SortColumn},
		Desc:   plan.Desc,
	})
	if plan.SortColumn != cfg.PrimaryKey {
		q = q.Order(clause.OrderByColumn{
			Column: clause.Column{Table: cfg.Table, Name: cfg.PrimaryKey},
			Desc:   plan.Desc,
		})
	}
	for _, pl := range cfg.Preloads {
		q = q.Preload(pl.Assoc, pl.Conds...)
	}

	if err := q.Limit(plan.Limit).Offset(plan.Offset).Find(&page.Items).Error; err != nil {
		span.RecordError(err)
		return nil, err
	}
	return page, nil
}
