package importer

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Shape is the JSON shape a legacy export field must have.
type Shape int

const (
	// ShapeScalar is a string, number, or boolean.
	ShapeScalar Shape = iota
	// ShapeList is an array of scalars.
	ShapeList
)

func (s Shape) String() string {
	if s == ShapeList {
		return "list"
	}
	return "scalar"
}

// Field describes one expected field of an export row.
type Field struct {
	Name     string
	Shape    Shape
	Required bool
}

// FieldError reports a missing or mis-shaped field.
type FieldError struct {
	Field string
	Want  Shape
	Got   gjson.Type
}

func (e *FieldError) Error() string {
	if e.Got == gjson.Null {
		return fmt.Sprintf("field %q: missing %s", e.Field, e.Want)
	}
	return fmt.Sprintf("field %q: want %s, got %s", e.Field, e.Want, e.Got)
}

// decode returns the field value after checking its shape. Optional missing fields return
// the zero Result.
func decode(row gjson.Result, f Field) (gjson.Result, error) {
	v := row.Get(f.Name)
	if !v.Exists() || v.Type == gjson.Null {
		if f.Required {
			return gjson.Result{}, &FieldError{Field: f.Name, Want: f.Shape, Got: gjson.Null}
		}
		return gjson.Result{}, nil
	}
	switch f.Shape {
	case ShapeScalar:
		switch v.Type {
		case gjson.String, gjson.Number, gjson.True, gjson.False:
			return v, nil
		}
	case ShapeList:
		if v.IsArray() {
			for _, el := range v.Array() {
				if el.IsArray() || el.IsObject() {
					return gjson.Result{}, &FieldError{Field: f.Name, Want: f.Shape, Got: el.Type}
				}
			}
			return v, nil
		}
	}
	return gjson.Result{}, &FieldError{Field: f.Name, Want: f.Shape, Got: v.Type}
}

// row decodes fields of one export line on demand, keeping the first error.
type row struct {
	data gjson.Result
	err  error
}

func (r *row) intField(name string, required bool) int64 {
	v := r.field(Field{Name: name, Shape: ShapeScalar, Required: required})
	return v.Int()
}

func (r *row) stringField(name string, required bool) string {
	v := r.field(Field{Name: name, Shape: ShapeScalar, Required: required})
	return v.String()
}

func (r *row) listField(name string) []string {
	v := r.field(Field{Name: name, Shape: ShapeList})
	if !v.Exists() {
		return nil
	}
	items := v.Array()
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.String())
	}
	return out
}

func (r *row) field(f Field) gjson.Result {
	if r.err != nil {
		return gjson.Result{}
	}
	v, err := decode(r.data, f)
	if err != nil {
		r.err = err
	}
	return v
}
