// Package filter evaluates predicate and grouping expressions over
// enriched requests.
//
// Predicates compare a request field with a value:
//
//	devel_project = "devel:languages:perl"
//	package ^= yast-
//	devel_project $= ":Head"
//	ring ~ "1-*" and not ignored
//	id != 1234567
//
// Supported operators are = != < <= > >= ^= (prefix) $= (suffix) and ~ (glob). Terms
// combine with and, or, not and parentheses. A bare field name tests the
// field for a true or non-empty value.
package filter

import (
	"sort"
	"strconv"

	"github.com/Iron-Ham/stagectl/internal/request"
)

// Field is a request attribute addressable from expressions.
type Field string

const (
	FieldID            Field = "id"
	FieldType          Field = "type"
	FieldState         Field = "state"
	FieldProject       Field = "project"
	FieldPackage       Field = "package"
	FieldSourceProject Field = "source_project"
	FieldSourcePackage Field = "source_package"
	FieldDevelProject  Field = "devel_project"
	FieldDevelPackage  Field = "devel_package"
	FieldRing          Field = "ring"
	FieldIgnored       Field = "ignored"
	FieldStaging       Field = "staging"
)

var fields = map[Field]func(request.Request) string{
	FieldID:            func(r request.Request) string { return strconv.FormatInt(r.ID, 10) },
	FieldType:          func(r request.Request) string { return string(r.Type()) },
	FieldState:         func(r request.Request) string { return string(r.State) },
	FieldProject:       func(r request.Request) string { return r.Project() },
	FieldPackage:       func(r request.Request) string { return r.Package() },
	FieldSourceProject: func(r request.Request) string { return r.Primary().Source.Project },
	FieldSourcePackage: func(r request.Request) string { return r.Primary().Source.Package },
	FieldDevelProject:  func(r request.Request) string { return r.DevelProject },
	FieldDevelPackage:  func(r request.Request) string { return r.DevelPackage },
	FieldRing:          func(r request.Request) string { return r.Ring },
	FieldIgnored:       func(r request.Request) string { return strconv.FormatBool(r.Ignored) },
	FieldStaging:       func(r request.Request) string { return r.Staging },
}

// Fields lists every addressable field name, sorted.
func Fields() []string {
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// Value returns the string form of field for r.
func Value(r request.Request, field Field) string {
	if get, ok := fields[field]; ok {
		return get(r)
	}
	return ""
}

func validField(name string) bool {
	_, ok := fields[Field(name)]
	return ok
}

// numeric fields compare as integers.
func numeric(f Field) bool { return f == FieldID }
