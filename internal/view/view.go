// Package view derives the displayed sequence of records from a collection and
// the current filter state. Projection is a pure function of its inputs.
package view

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"list-manager/internal/model"
)

// Filter keeps records whose Field value is one of Values. No values means "any".
type Filter struct {
	Field  string
	Values []string
}

// FilterState is everything the user selected that shapes the visible list.
type FilterState struct {
	Filters []Filter
	Search  string
	SortKey string
	Desc    bool
}

// DefaultState sorts by the schema's default sort with no filters.
func DefaultState(s *model.Schema) FilterState {
	return FilterState{SortKey: s.DefaultSort.Key, Desc: s.DefaultSort.Desc}
}

// Active reports whether any filter or search narrows the list.
func (fs FilterState) Active() bool {
	if strings.TrimSpace(fs.Search) != "" {
		return true
	}
	for _, f := range fs.Filters {
		if len(f.Values) > 0 {
			return true
		}
	}
	return false
}

// With returns a copy of fs with the filter on f.Field replaced by f.
// A filter without values removes the field's filter.
func (fs FilterState) With(f Filter) FilterState {
	out := fs
	out.Filters = make([]Filter, 0, len(fs.Filters)+1)
	for _, existing := range fs.Filters {
		if existing.Field != f.Field {
			out.Filters = append(out.Filters, existing)
		}
	}
	if len(f.Values) > 0 {
		out.Filters = append(out.Filters, f)
	}
	return out
}

// Check reports filter fields and sort keys the schema does not know.
func (fs FilterState) Check(s *model.Schema) error {
	for _, f := range fs.Filters {
		if _, ok := s.Field(f.Field); !ok {
			return fmt.Errorf("unknown filter field %q", f.Field)
		}
	}
	if fs.SortKey != "" && !validSortKey(s, fs.SortKey) {
		return fmt.Errorf("unknown sort key %q", fs.SortKey)
	}
	return nil
}

func validSortKey(s *model.Schema, key string) bool {
	switch key {
	case model.KeyID, model.KeyCreatedAt, model.KeyUpdatedAt:
		return true
	}
	_, ok := s.Field(key)
	return ok
}

// ParseFilter reads "field=a,b" into a Filter. "field=" clears the field.
func ParseFilter(expr string) (Filter, error) {
	name, values, ok := strings.Cut(expr, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Filter{}, fmt.Errorf("filter %q: expected field=value[,value]", expr)
	}
	f := Filter{Field: name}
	for _, v := range strings.Split(values, ",") {
		if v = strings.TrimSpace(v); v != "" {
			f.Values = append(f.Values, v)
		}
	}
	return f, nil
}

// Result is a projected list plus the size of the collection it came from.
type Result struct {
	Items model.Collection
	Total int
}

// NoData reports an empty collection.
func (r Result) NoData() bool { return r.Total == 0 }

// NoMatches reports a non-empty collection that the filters hide entirely.
func (r Result) NoMatches() bool { return r.Total > 0 && len(r.Items) == 0 }

// Project filters, searches and stably sorts c. The same inputs always yield
// the same sequence.
func Project(s *model.Schema, c model.Collection, fs FilterState) Result {
	folder := cases.Fold()
	query := folder.String(strings.TrimSpace(fs.Search))

	items := make(model.Collection, 0, len(c))
	for _, rec := range c {
		if !matchesFilters(s, rec, fs.Filters) {
			continue
		}
		if query != "" && !matchesSearch(s, rec, query, folder) {
			continue
		}
		items = append(items, rec)
	}

	key := fs.SortKey
	desc := fs.Desc
	if key == "" || !validSortKey(s, key) {
		key, desc = s.DefaultSort.Key, s.DefaultSort.Desc
	}
	cmp := newComparator(s, key, desc)
	slices.SortStableFunc(items, cmp)
	return Result{Items: items, Total: len(c)}
}

func matchesFilters(s *model.Schema, rec model.Record, filters []Filter) bool {
	for _, f := range filters {
		if len(f.Values) == 0 {
			continue
		}
		def, ok := s.Field(f.Field)
		if !ok {
			continue
		}
		if !matchesFilter(def, rec, f.Values) {
			return false
		}
	}
	return true
}

func matchesFilter(def model.FieldDef, rec model.Record, values []string) bool {
	switch def.Kind {
	case model.KindTags:
		for _, tag := range rec.Tags(def.Name) {
			if slices.Contains(values, tag) {
				return true
			}
		}
		return false
	case model.KindBool:
		got := strconv.FormatBool(rec.Bool(def.Name))
		for _, v := range values {
			if b, ok := parseBool(v); ok && strconv.FormatBool(b) == got {
				return true
			}
		}
		return false
	default:
		return slices.Contains(values, model.FormatValue(def, rec.Fields[def.Name]))
	}
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "y", "1", "да":
		return true, true
	case "false", "no", "n", "0", "нет":
		return false, true
	}
	return false, false
}

func matchesSearch(s *model.Schema, rec model.Record, query string, folder cases.Caser) bool {
	for _, f := range s.SearchableFields() {
		text := model.FormatValue(f, rec.Fields[f.Name])
		if text == "" {
			continue
		}
		if strings.Contains(folder.String(text), query) {
			return true
		}
	}
	return false
}
