package filter

import (
	"sort"
	"strings"

	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/request"
)

// KeySeparator joins the parts of a hierarchical group key.
const KeySeparator = "/"

// Key is a grouping expression: a single field name.
type Key struct {
	Field Field
}

// ParseKey compiles a group-by expression.
func ParseKey(expr string) (Key, error) {
	name := strings.ToLower(strings.TrimSpace(expr))
	if !validField(name) {
		return Key{}, errors.NewValidationError("unknown field (valid: " + strings.Join(Fields(), ", ") + ")").
			WithField("group-by").WithValue(expr)
	}
	return Key{Field: Field(name)}, nil
}

// ParseKeys compiles each group-by expression.
func ParseKeys(exprs []string) ([]Key, error) {
	keys := make([]Key, 0, len(exprs))
	for _, e := range exprs {
		k, err := ParseKey(e)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Group is a set of requests sharing a group key.
type Group struct {
	Key      string
	Parts    []string
	Requests []request.Request
}

// GroupBy partitions reqs by keys, the first key being the primary one.
// Groups are ordered by key and requests within a group by id. With no
// keys every request lands in a single group with an empty key.
func GroupBy(reqs []request.Request, keys []Key) []Group {
	index := map[string]int{}
	var groups []Group
	for _, r := range reqs {
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = Value(r, k.Field)
		}
		key := strings.Join(parts, KeySeparator)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key, Parts: parts})
		}
		groups[i].Requests = append(groups[i].Requests, r)
	}

	sort.Slice(groups, func(a, b int) bool { return lessParts(groups[a].Parts, groups[b].Parts) })
	for i := range groups {
		request.SortByID(groups[i].Requests)
	}
	return groups
}

func lessParts(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
