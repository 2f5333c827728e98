package models

import "testing"

func TestPredicate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		pred    Predicate
		wantErr bool
	}{
		{"scalar equal", Predicate{Table: IndexTable, Field: "user_id", Operator: OpEqual, Values: []any{int64(5)}}, false},
		{"list equal", Predicate{Table: IndexTable, Field: "content_type", Operator: OpEqual, Values: []any{"post", "thread"}}, false},
		{"list not equal", Predicate{Table: IndexTable, Field: "user_id", Operator: OpNotEqual, Values: []any{1, 2}}, false},
		{"greater scalar", Predicate{Table: IndexTable, Field: "item_date", Operator: OpGreater, Values: []any{100}}, false},
		{"greater list", Predicate{Table: IndexTable, Field: "item_date", Operator: OpGreater, Values: []any{1, 2}}, true},
		{"no values", Predicate{Table: IndexTable, Field: "user_id", Operator: OpEqual}, true},
		{"unknown operator", Predicate{Table: IndexTable, Field: "user_id", Operator: "LIKE", Values: []any{"x"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pred.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestContentKey(t *testing.T) {
	rec := &IndexRecord{ContentType: "profile_post", ContentID: 42}
	if got := rec.Key(); got != "profile_post:42" {
		t.Errorf("Key() = %q", got)
	}
}
