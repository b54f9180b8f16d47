package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldType is the declared type of a field or aggregate formula.
type FieldType string

const (
	FieldFloat    FieldType = "Float"
	FieldInt      FieldType = "Int"
	FieldCurrency FieldType = "Currency"
	FieldPercent  FieldType = "Percent"
	FieldSelect   FieldType = "Select"
	FieldData     FieldType = "Data"
	FieldText     FieldType = "Text"
	FieldCheck    FieldType = "Check"
)

// IsNumeric reports whether values of this type are numbers.
func (t FieldType) IsNumeric() bool {
	switch t {
	case FieldFloat, FieldInt, FieldCurrency, FieldPercent:
		return true
	}
	return false
}

// Coerce converts v to the representation of type t.
// Int truncates toward zero; Float, Currency and Percent stay floating point.
// Null and empty text become the zero value of the type.
func (t FieldType) Coerce(v Value) (Value, error) {
	switch t {
	case FieldInt:
		f, err := numberOf(v)
		if err != nil {
			return Value{}, fmt.Errorf("invalid value %q for field type %s: %w", v.String(), t, err)
		}
		return Int(int64(math.Trunc(f))), nil
	case FieldFloat, FieldCurrency, FieldPercent, "":
		f, err := numberOf(v)
		if err != nil {
			return Value{}, fmt.Errorf("invalid value %q for field type %s: %w", v.String(), t, err)
		}
		return Float(f), nil
	case FieldCheck:
		if v.Kind() == KindText {
			s := strings.ToLower(strings.TrimSpace(v.String()))
			return Bool(s == "true" || s == "1" || s == "yes"), nil
		}
		return Bool(v.Truthy()), nil
	case FieldSelect, FieldData, FieldText:
		return Text(v.String()), nil
	default:
		return Value{}, fmt.Errorf("unknown field type %q", t)
	}
}

func numberOf(v Value) (float64, error) {
	if f, ok := v.Number(); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("non-finite number")
		}
		return f, nil
	}
	if v.IsNull() {
		return 0, nil
	}
	s := strings.TrimSpace(v.String())
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// FieldDefinition describes one item field of a scope type.
type FieldDefinition struct {
	// Name is the identifier used in formulas (variables['name']). Unique per scope type.
	Name string `json:"field_name" validate:"required"`

	// Label is the display name. Falls back to Name.
	Label string `json:"label,omitempty"`

	// Type is the declared value type.
	Type FieldType `json:"field_type" validate:"required,oneof=Float Int Currency Percent Select Data Text Check"`

	// AutoCalculate marks the field as derived from Formula.
	AutoCalculate bool `json:"auto_calculate,omitempty"`

	// Formula is the calculation formula, present iff AutoCalculate.
	Formula string `json:"calculation_formula,omitempty" validate:"required_if=AutoCalculate true"`

	// DefaultValue is the textual default, converted per Type.
	DefaultValue string `json:"default_value,omitempty"`

	// Mandatory fields must hold a non-empty value on saved items.
	Mandatory bool `json:"mandatory,omitempty"`

	// InBill marks the field as visible to billing.
	InBill bool `json:"in_bill,omitempty"`
}

// DisplayName returns the label, or the name when no label is set.
func (f FieldDefinition) DisplayName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// Calculated reports whether the field carries a formula to evaluate.
func (f FieldDefinition) Calculated() bool {
	return f.AutoCalculate && strings.TrimSpace(f.Formula) != ""
}

// Default returns the typed default value of the field.
func (f FieldDefinition) Default() (Value, error) {
	return f.Type.Coerce(Text(f.DefaultValue))
}

// AggregateFormula is a scope-level formula over the whole item collection.
type AggregateFormula struct {
	// Name is the key of the result in the scope totals (doc_totals['name']).
	Name string `json:"field_name" validate:"required"`

	// Label is the display name. Falls back to Name.
	Label string `json:"label,omitempty"`

	// Type is the declared result type. Empty means Float.
	Type FieldType `json:"field_type,omitempty" validate:"omitempty,oneof=Float Int Currency Percent"`

	// Formula is the aggregate expression.
	Formula string `json:"formula" validate:"required"`

	// InBill marks the total as part of bill rollups.
	InBill bool `json:"in_bill,omitempty"`
}

// DisplayName returns the label, or the name when no label is set.
func (a AggregateFormula) DisplayName() string {
	if a.Label != "" {
		return a.Label
	}
	return a.Name
}

// ConstantDefinition declares a document-level constant with its default.
type ConstantDefinition struct {
	Name   string  `json:"constant_name" validate:"required"`
	Label  string  `json:"label,omitempty"`
	Value  float64 `json:"value"`
	InBill bool    `json:"in_bill,omitempty"`
}

// ScopeType is the field registry of one kind of scope.
type ScopeType struct {
	// Name identifies the scope type (e.g., "Aluminium", "Glazing").
	Name string `json:"name" validate:"required"`

	// Fields are the item fields in registry order.
	Fields []FieldDefinition `json:"scope_fields" validate:"dive"`

	// Formulas are the aggregate formulas in evaluation order.
	Formulas []AggregateFormula `json:"calculation_formulas" validate:"dive"`

	// Constants are the constants items and aggregates may read.
	Constants []ConstantDefinition `json:"constants,omitempty" validate:"dive"`

	// UpdatedAt is the Unix timestamp of the last change.
	UpdatedAt int64 `json:"updated_at,omitempty"`
}

// Field looks up a field definition by name.
func (st *ScopeType) Field(name string) (FieldDefinition, bool) {
	for _, f := range st.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// ResolveConstants merges record-level constant values over the declared defaults.
func (st *ScopeType) ResolveConstants(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(st.Constants)+len(values))
	for _, c := range st.Constants {
		out[c.Name] = c.Value
	}
	for k, v := range values {
		out[k] = v
	}
	return out
}

// ItemRecord is one row of a scope.
type ItemRecord struct {
	// RowID identifies the row across edits.
	RowID string `json:"row_id"`

	// ItemName is the display name of the row.
	ItemName string `json:"item_name"`

	// Variables holds the row's field values keyed by field name.
	Variables Values `json:"data"`
}

// Clone returns a deep copy of the item.
func (it ItemRecord) Clone() ItemRecord {
	it.Variables = it.Variables.Clone()
	return it
}

// ScopeRecord is one scope with its items and computed totals.
type ScopeRecord struct {
	// ID is the unique identifier for the scope (UUID format).
	ID string `json:"id"`

	// Name is the human-readable name.
	Name string `json:"name"`

	// ScopeType selects the field registry.
	ScopeType string `json:"scope_type"`

	// Items are the ordered item rows.
	Items []ItemRecord `json:"items"`

	// Constants holds record-level constant values.
	Constants map[string]float64 `json:"constants,omitempty"`

	// Totals is the doc_totals map of the last successful calculation.
	// Empty until a calculation has completed.
	Totals map[string]float64 `json:"totals,omitempty"`

	// CreatedAt is the Unix timestamp when the scope was created.
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the Unix timestamp of the last save.
	UpdatedAt int64 `json:"updated_at"`
}

// CustomFunction is a stored user-authored function definition.
type CustomFunction struct {
	// Name is the identifier used as custom.<name>(...) in formulas.
	Name string `json:"function_name"`

	// Parameters are the ordered parameter names.
	Parameters []string `json:"parameters"`

	// Body is the statement text. It must assign result.
	Body string `json:"function_code"`

	// Disabled functions are not loaded.
	Disabled bool `json:"disabled,omitempty"`

	// UpdatedAt is the Unix timestamp of the last change.
	UpdatedAt int64 `json:"updated_at,omitempty"`
}
