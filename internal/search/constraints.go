package search

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/kensaku/internal/models"
)

// Constraint names handled by every source handler.
const (
	ConstraintUser        = "user"
	ConstraintUserContent = "user_content"
	ConstraintContent     = "content"
	ConstraintNode        = "node"
	ConstraintDate        = "date"
	ConstraintTitleOnly   = "title_only"
)

// MetadataConstraint matches records whose metadata contains any of the encoded values.
type MetadataConstraint struct {
	Key    string
	Values []string
}

// ProcessedConstraint holds the alternative representations of one constraint.
// Engines that encode facets in text prefer Metadata; Query is a relational predicate.
type ProcessedConstraint struct {
	Metadata *MetadataConstraint
	Query    *models.Predicate
}

// Empty reports whether neither representation is set.
func (p *ProcessedConstraint) Empty() bool {
	return p == nil || (p.Metadata == nil && p.Query == nil)
}

// ProcessedConstraints maps constraint names to their processed form.
type ProcessedConstraints map[string]ProcessedConstraint

// Names returns the constraint names sorted, for deterministic rendering.
func (pc ProcessedConstraints) Names() []string {
	names := make([]string, 0, len(pc))
	for name := range pc {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy.
func (c Constraints) Clone() Constraints {
	out := make(Constraints, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// PopBool removes name and reports whether its value was truthy.
func (c Constraints) PopBool(name string) bool {
	v, ok := c[name]
	if !ok {
		return false
	}
	delete(c, name)
	return Truthy(v)
}

// Truthy treats false, zero, "", "0", nil, and empty lists as false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != "" && x != "0"
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	}
	vals := ConstraintValues(v)
	return len(vals) > 0
}

// ConstraintValues normalizes a scalar or list into a list of values.
func ConstraintValues(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out
	case int:
		return []any{int64(x)}
	default:
		return []any{x}
	}
}

// ValueStrings formats values for metadata encoding.
func ValueStrings(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case string:
			out[i] = x
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			out[i] = fmt.Sprint(x)
		}
	}
	return out
}

// IntValue coerces a value to an integer; unparsable input yields 0.
func IntValue(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int64:
		return x
	case float64:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func isEmptyList(v any) bool {
	switch x := v.(type) {
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case []int:
		return len(x) == 0
	case []int64:
		return len(x) == 0
	}
	return false
}

var nonDigits = regexp.MustCompile(`\D`)

// SplitIDs splits on any non-digit character and drops empty segments.
func SplitIDs(v any) []string {
	var out []string
	for _, s := range ValueStrings(ConstraintValues(v)) {
		for _, part := range nonDigits.Split(s, -1) {
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// MetadataAndQuery builds a constraint usable both as metadata and as an index-table equality.
func MetadataAndQuery(key, field string, value any) *ProcessedConstraint {
	values := ConstraintValues(value)
	return &ProcessedConstraint{
		Metadata: &MetadataConstraint{Key: key, Values: ValueStrings(values)},
		Query: &models.Predicate{
			Table:    models.IndexTable,
			Field:    field,
			Operator: models.OpEqual,
			Values:   values,
		},
	}
}

// ProcessConstraints normalizes constraints. Unknown names go to typeHandler when present;
// empty lists are skipped.
func (b *Base) ProcessConstraints(constraints Constraints, typeHandler TypeHandler) ProcessedConstraints {
	out := make(ProcessedConstraints, len(constraints))
	for name, value := range constraints {
		if isEmptyList(value) {
			continue
		}
		var pc *ProcessedConstraint
		switch name {
		case ConstraintUser:
			pc = MetadataAndQuery(MetadataUser, "user_id", value)
		case ConstraintUserContent:
			if _, ok := constraints[ConstraintUser]; ok {
				pc = MetadataAndQuery(MetadataContent, "content_type", value)
			}
		case ConstraintContent:
			pc = MetadataAndQuery(MetadataContent, "content_type", value)
		case ConstraintNode:
			if ids := SplitIDs(value); len(ids) > 0 {
				pc = &ProcessedConstraint{Metadata: &MetadataConstraint{Key: ConstraintNode, Values: ids}}
			}
		case ConstraintDate:
			pc = &ProcessedConstraint{Query: &models.Predicate{
				Table:    models.IndexTable,
				Field:    "item_date",
				Operator: models.OpGreater,
				Values:   []any{IntValue(value)},
			}}
		default:
			if typeHandler != nil {
				pc = typeHandler.ProcessConstraint(b.self, name, value, constraints)
			}
		}
		if !pc.Empty() {
			out[name] = *pc
		}
	}
	return out
}
