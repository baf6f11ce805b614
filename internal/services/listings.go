package services

import "github.com/tbourn/flashcard-market/internal/query"

// Cache resource names. Every cache key of a resource starts with its name
// followed by ':' so writes can evict them with one prefix.
const (
	resSet          = "Set"
	resCategory     = "Category"
	resTag          = "Tag"
	resLike         = "Like"
	resPurchase     = "Purchase"
	resSubscription = "Subscription"
)

// visibleSet preloads the set of a like or history row only while it is
// published; rows of hidden sets come back with a nil Set.
var visibleSet = query.Assoc("Set", "hidden = ?", false)

// Limits bounds the page size of every listing.
type Limits struct {
	Default int
	Max     int
}

func (l Limits) orDefault() Limits {
	if l.Default < 1 {
		l.Default = 20
	}
	if l.Max < l.Default {
		l.Max = l.Default
	}
	return l
}

// Listings holds one closed query config per listable resource. It is built
// once at startup.
type Listings struct {
	Sets          *query.ListQueryConfig
	Categories    *query.ListQueryConfig
	Tags          *query.ListQueryConfig
	Likes         *query.ListQueryConfig
	Purchases     *query.ListQueryConfig
	Subscriptions *query.ListQueryConfig
	History       *query.ListQueryConfig
}

// NewListings builds the listing configs with the given page limits.
func NewListings(l Limits) *Listings {
	l = l.orDefault()
	return &Listings{
		Sets: query.MustConfig(query.ListQueryConfig{
			Resource:   resSet,
			Table:      "sets",
			PrimaryKey: "id",
			NamedFilters: map[string]query.NamedFilter{
				"educatorId":       query.Named("educatorId", query.KindInt),
				"categoryId":       query.Named("categoryId", query.KindInt),
				"featured":         query.Named("featured", query.KindBool),
				"isSubscriberOnly": query.Named("isSubscriberOnly", query.KindBool),
				"title":            query.Named("title", query.KindContains),
			},
			JoinFilters: []query.JoinFilter{{
				Param: "tag",
				Joins: []string{
					"JOIN set_tags ON set_tags.set_id = sets.id",
					"JOIN tags ON tags.id = set_tags.tag_id",
				},
				Table:  "tags",
				Column: "name",
				Kind:   query.KindString,
			}},
			AllowedSortFields: []string{"created_at", "updated_at", "title", "price", "id"},
			DefaultSort:       "created_at",
			DefaultOrder:      "DESC",
			DefaultLimit:      l.Default,
			MaxLimit:          l.Max,
			Preloads:          []query.Preload{query.Assoc("Category"), query.Assoc("Tags")},
		}),
		Categories: query.MustConfig(query.ListQueryConfig{
			Resource:          resCategory,
			Table:             "categories",
			PrimaryKey:        "id",
			NamedFilters:      map[string]query.NamedFilter{"name": query.Named("name", query.KindContains)},
			AllowedSortFields: []string{"name", "created_at", "id"},
			DefaultSort:       "name",
			DefaultOrder:      "ASC",
			DefaultLimit:      l.Default,
			MaxLimit:          l.Max,
		}),
		Tags: query.MustConfig(query.ListQueryConfig{
			Resource:          resTag,
			Table:             "tags",
			PrimaryKey:        "id",
			NamedFilters:      map[string]query.NamedFilter{"name": query.Named("name", query.KindContains)},
			AllowedSortFields: []string{"name", "created_at", "id"},
			DefaultSort:       "name",
			DefaultOrder:      "ASC",
			DefaultLimit:      l.Default,
			MaxLimit:          l.Max,
		}),
		Likes: query.MustConfig(query.ListQueryConfig{
			Resource:          resLike,
			Table:             "likes",
			PrimaryKey:        "id",
			AllowedSortFields: []string{"created_at", "id"},
			DefaultSort:       "created_at",
			DefaultOrder:      "DESC",
			DefaultLimit:      l.Default,
			MaxLimit:          l.Max,
			Preloads:          []query.Preload{visibleSet},
		}),
		Purchases: query.MustConfig(query.ListQueryConfig{
			Resource:          resPurchase,
			Table:             "purchases",
			PrimaryKey:        "id",
			AllowedSortFields: []string{"date", "amount", "id"},
			DefaultSort:       "date",
			DefaultOrder:      "DESC",
			DefaultLimit:      l.Default,
			MaxLimit:          l.Max,
			Preloads:          []query.Preload{query.Assoc("Set")},
		}),
		Subscriptions: query.MustConfig(query.ListQueryConfig{
			Resource:          resSubscription,
			Table:             "subscriptions",
			PrimaryKey:        "id",
			AllowedSortFields: []string{"date", "id"},
			DefaultSort:       "date",
			DefaultOrder:      "DESC",
			DefaultLimit:      l.Default,
			MaxLimit:          l.Max,
			Preloads:          []query.Preload{query.Assoc("Educator")},
		}),
		History: query.MustConfig(query.ListQueryConfig{
			Resource:          "History",
			Table:             "view_history",
			PrimaryKey:        "id",
			AllowedSortFields: []string{"viewed_at", "id"},
			DefaultSort:       "viewed_at",
			DefaultOrder:      "DESC",
			DefaultLimit:      l.Default,
			MaxLimit:          l.Max,
			Preloads:          []query.Preload{visibleSet},
		}),
	}
}
