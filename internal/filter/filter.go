package filter

import (
	"slices"
	"strconv"
	"strings"

	"github.com/Iron-Ham/stagectl/internal/request"
)

// Default predicate expressions applied when the caller supplies none.
const (
	ExcludeRoleAndDevelChanges = "not (type = add_role or type = change_devel)"
	ExcludeIgnored             = "ignored = false"
)

// Defaults returns the predicates used when no filter is given.
func Defaults() []Predicate {
	return []Predicate{MustParse(ExcludeRoleAndDevelChanges), MustParse(ExcludeIgnored)}
}

// ParseAll compiles each expression.
func ParseAll(exprs []string) ([]Predicate, error) {
	preds := make([]Predicate, 0, len(exprs))
	for _, e := range exprs {
		p, err := Parse(e)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// Filter returns the requests matching every predicate, ordered by id.
func Filter(reqs []request.Request, preds ...Predicate) []request.Request {
	var out []request.Request
	for _, r := range reqs {
		if matchAll(r, preds) {
			out = append(out, r)
		}
	}
	request.SortByID(out)
	return out
}

func matchAll(r request.Request, preds []Predicate) bool {
	for _, p := range preds {
		if !p.Match(r) {
			return false
		}
	}
	return true
}

// requestSet matches requests named by id or by target package.
type requestSet struct {
	ids      map[int64]bool
	packages map[string]bool
	args     []string
}

// Requests returns a predicate selecting requests by id or package name.
func Requests(args []string) Predicate {
	s := requestSet{ids: map[int64]bool{}, packages: map[string]bool{}, args: slices.Clone(args)}
	for _, a := range args {
		if id, err := strconv.ParseInt(a, 10, 64); err == nil {
			s.ids[id] = true
		} else {
			s.packages[a] = true
		}
	}
	return s
}

func (s requestSet) Match(r request.Request) bool {
	return s.ids[r.ID] || s.packages[r.Package()]
}

func (s requestSet) String() string {
	return "requests(" + strings.Join(s.args, ", ") + ")"
}
