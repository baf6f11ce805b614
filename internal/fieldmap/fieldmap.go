// Package fieldmap holds the single translation table between the camelCase
// field names used by the public API (query parameters, JSON bodies) and the
// snake_case column names used by storage.
//
// Both the paginator (sort and filter resolution) and the HTTP layer (error
// messages, request shaping) read from this table so the two never drift.
package fieldmap

import "sort"

var apiToColumn = map[string]string{
	"id":               "id",
	"title":            "title",
	"description":      "description",
	"name":             "name",
	"username":         "username",
	"email":            "email",
	"price":            "price",
	"amount":           "amount",
	"featured":         "featured",
	"hidden":           "hidden",
	"isSubscriberOnly": "is_subscriber_only",
	"educatorId":       "educator_id",
	"categoryId":       "category_id",
	"setId":            "set_id",
	"userId":           "user_id",
	"tagId":            "tag_id",
	"roleId":           "role_id",
	"position":         "position",
	"front":            "front",
	"back":             "back",
	"date":             "date",
	"viewedAt":         "viewed_at",
	"createdAt":        "created_at",
	"updatedAt":        "updated_at",
}

var columnToAPI = invert(apiToColumn)

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// Column returns the storage column for an API field name. Names that are
// already storage columns resolve to themselves. Unknown names are returned
// unchanged with ok=false, so callers enforcing an allow-list still reject them.
func Column(api string) (col string, ok bool) {
	if c, found := apiToColumn[api]; found {
		return c, true
	}
	if _, found := columnToAPI[api]; found {
		return api, true
	}
	return api, false
}

// API returns the camelCase API name for a storage column, or the column
// itself when it has no mapping.
func API(column string) string {
	if a, ok := columnToAPI[column]; ok {
		return a
	}
	return column
}

// APINames returns the API names of the given columns, sorted. Used to list
// accepted values in validation errors.
func APINames(columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, API(c))
	}
	sort.Strings(out)
	return out
}
