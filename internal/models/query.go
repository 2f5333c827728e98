package models

import "fmt"

// Comparison operators accepted in predicates.
const (
	OpEqual        = "="
	OpNotEqual     = "!="
	OpGreater      = ">"
	OpGreaterEqual = ">="
	OpLess         = "<"
	OpLessEqual    = "<="
)

// Predicate is a relational condition on a column of the index table or of a joined table.
// Values holds one element for a scalar comparison; more than one turns = into IN and != into NOT IN.
type Predicate struct {
	Table    string `json:"table"`
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Values   []any  `json:"values"`
}

// IsList reports whether the predicate compares against a list of values.
func (p Predicate) IsList() bool {
	return len(p.Values) > 1
}

// Validate checks the operator and its arity.
func (p Predicate) Validate() error {
	if len(p.Values) == 0 {
		return fmt.Errorf("predicate on %s.%s has no values", p.Table, p.Field)
	}
	switch p.Operator {
	case OpEqual, OpNotEqual:
		return nil
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
		if p.IsList() {
			return fmt.Errorf("operator %s on %s.%s does not accept a list", p.Operator, p.Table, p.Field)
		}
		return nil
	default:
		return fmt.Errorf("unknown operator %q", p.Operator)
	}
}

// Sort directions for OrderPart.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// OrderPart is one ORDER BY component.
type OrderPart struct {
	Table     string `json:"table"`
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// Descending reports whether the part sorts high to low.
func (o OrderPart) Descending() bool {
	return o.Direction == SortDesc
}

// Join describes how a joined table relates to an already present table:
// Table.Key = RelationshipTable.RelationshipField.
type Join struct {
	Table             string `json:"table"`
	Key               string `json:"key"`
	RelationshipTable string `json:"relationship_table"`
	RelationshipField string `json:"relationship_field"`
}
