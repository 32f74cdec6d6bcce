package view

import (
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"list-manager/internal/model"
)

// sortValue is one record's sort key. Extractors report missing values
// separately; those sort last in both directions.
type sortValue struct {
	str  string
	num  float64
	rank int
	t    time.Time
}

// newComparator orders by key (reversed when desc), then createdAt newest
// first, then id. The tie-breakers ignore desc.
func newComparator(s *model.Schema, key string, desc bool) func(a, b model.Record) int {
	primary := primaryCompare(s, key)
	return func(a, b model.Record) int {
		if c := primary(a, b, desc); c != 0 {
			return c
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if a.CreatedAt.After(b.CreatedAt) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	}
}

type keyFunc func(rec model.Record) (sortValue, bool)

func primaryCompare(s *model.Schema, key string) func(a, b model.Record, desc bool) int {
	extract, compare := keyExtractor(s, key)
	return func(a, b model.Record, desc bool) int {
		va, okA := extract(a)
		vb, okB := extract(b)
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		}
		c := compare(va, vb)
		if desc {
			c = -c
		}
		return c
	}
}

func keyExtractor(s *model.Schema, key string) (keyFunc, func(a, b sortValue) int) {
	byTime := func(a, b sortValue) int { return a.t.Compare(b.t) }
	switch key {
	case model.KeyCreatedAt:
		return func(r model.Record) (sortValue, bool) { return sortValue{t: r.CreatedAt}, true }, byTime
	case model.KeyUpdatedAt:
		return func(r model.Record) (sortValue, bool) { return sortValue{t: r.UpdatedAt}, true }, byTime
	case model.KeyID:
		return func(r model.Record) (sortValue, bool) { return sortValue{str: r.ID}, true },
			func(a, b sortValue) int { return strings.Compare(a.str, b.str) }
	}

	def, _ := s.Field(key)
	coll := collate.New(language.Make(s.Locale))
	byString := func(a, b sortValue) int { return coll.CompareString(a.str, b.str) }

	switch def.Kind {
	case model.KindNumber:
		return func(r model.Record) (sortValue, bool) {
				n, ok := r.Number(key)
				return sortValue{num: n}, ok
			}, func(a, b sortValue) int {
				switch {
				case a.num < b.num:
					return -1
				case a.num > b.num:
					return 1
				}
				return 0
			}
	case model.KindDate:
		return func(r model.Record) (sortValue, bool) {
			t, ok := r.Date(key)
			return sortValue{t: t}, ok
		}, byTime
	case model.KindBool:
		return func(r model.Record) (sortValue, bool) {
				v, ok := r.Fields[key].(bool)
				rank := 0
				if v {
					rank = 1
				}
				return sortValue{rank: rank}, ok
			}, func(a, b sortValue) int {
				return a.rank - b.rank
			}
	case model.KindEnum:
		return func(r model.Record) (sortValue, bool) {
				v := r.Text(key)
				if v == "" {
					return sortValue{}, false
				}
				rank := 0
				if def.Rank != nil {
					rank = def.Rank.Rank(v)
				} else if !def.Allows(v) {
					rank = 1
				}
				return sortValue{str: v, rank: rank}, true
			}, func(a, b sortValue) int {
				if a.rank != b.rank {
					return a.rank - b.rank
				}
				return byString(a, b)
			}
	case model.KindTags:
		return func(r model.Record) (sortValue, bool) {
			tags := r.Tags(key)
			if len(tags) == 0 {
				return sortValue{}, false
			}
			return sortValue{str: strings.Join(tags, ",")}, true
		}, byString
	default:
		return func(r model.Record) (sortValue, bool) {
			v := r.Text(key)
			return sortValue{str: v}, v != ""
		}, byString
	}
}
