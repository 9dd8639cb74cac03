package vectorstore

import (
	"encoding/json"
	"time"
)

// FieldType tells the backends where a filtered field lives.
type FieldType int

const (
	// MetadataField addresses a key inside the document metadata. This is the default.
	MetadataField FieldType = iota
	// DocumentField addresses a top-level document attribute ("id" or "content").
	DocumentField
)

// FilterCondition is implemented by every pre-filter condition. Each backend
// converts conditions to its native predicate language.
type FilterCondition interface {
	// IsFilterCondition is a marker method to ensure type safety
	IsFilterCondition()
}

// FilterSet supports Must (AND), Should (OR), and MustNot (NOT) clauses.
// A *FilterSet is itself a FilterCondition, so sets nest.
//
// Example:
//
//	filters := &FilterSet{
//	    Must: &ConditionSet{
//	        Conditions: []FilterCondition{
//	            &MatchCondition{Field: "source", Value: "handbook.pdf"},
//	        },
//	    },
//	}
type FilterSet struct {
	// Must: All conditions must match (AND)
	Must *ConditionSet `json:"must,omitempty"`
	// Should: At least one condition must match (OR)
	Should *ConditionSet `json:"should,omitempty"`
	// MustNot: None of the conditions should match (NOT)
	MustNot *ConditionSet `json:"mustNot,omitempty"`
}

func (fs *FilterSet) IsFilterCondition() {}

// IsEmpty reports whether the set has no conditions at all.
func (fs *FilterSet) IsEmpty() bool {
	return fs == nil || (fs.Must.len() == 0 && fs.Should.len() == 0 && fs.MustNot.len() == 0)
}

// ConditionSet holds a group of conditions for a single clause.
type ConditionSet struct {
	Conditions []FilterCondition `json:"conditions,omitempty"`
}

func (cs *ConditionSet) len() int {
	if cs == nil {
		return 0
	}
	return len(cs.Conditions)
}

// ── Match Conditions ─────────────────────────────────────────────────────────

// MatchCondition represents an exact match filter (field = value).
type MatchCondition struct {
	Field     string    `json:"field"`
	Value     any       `json:"equalTo"`
	FieldType FieldType `json:"-"`
}

func (c *MatchCondition) IsFilterCondition() {}

// NotMatchCondition represents an inequality filter (field != value).
type NotMatchCondition struct {
	Field     string    `json:"field"`
	Value     any       `json:"notEqualTo"`
	FieldType FieldType `json:"-"`
}

func (c *NotMatchCondition) IsFilterCondition() {}

// MatchAnyCondition matches if value is one of the given values (IN operator).
type MatchAnyCondition struct {
	Field     string    `json:"field"`
	Values    []any     `json:"anyOf"`
	FieldType FieldType `json:"-"`
}

func (c *MatchAnyCondition) IsFilterCondition() {}

// MatchExceptCondition matches if value is NOT one of the given values (NOT IN).
type MatchExceptCondition struct {
	Field     string    `json:"field"`
	Values    []any     `json:"noneOf"`
	FieldType FieldType `json:"-"`
}

func (c *MatchExceptCondition) IsFilterCondition() {}

// LikeCondition matches a SQL LIKE pattern: % is any run of characters,
// _ is exactly one character.
type LikeCondition struct {
	Field     string    `json:"field"`
	Pattern   string    `json:"like"`
	FieldType FieldType `json:"-"`
}

func (c *LikeCondition) IsFilterCondition() {}

// ExistsCondition matches documents where the metadata key is present (or absent).
type ExistsCondition struct {
	Field     string    `json:"field"`
	Exists    bool      `json:"exists"`
	FieldType FieldType `json:"-"`
}

func (c *ExistsCondition) IsFilterCondition() {}

// ── Range Types ──────────────────────────────────────────────────────────────

// NumericRange defines bounds for numeric filtering.
type NumericRange struct {
	Gt  *float64 `json:"greaterThan,omitempty"`          // GreaterThan (exclusive)
	Gte *float64 `json:"greaterThanOrEqualTo,omitempty"` // GreaterThanOrEqualTo (inclusive)
	Lt  *float64 `json:"lessThan,omitempty"`             // LessThan (exclusive)
	Lte *float64 `json:"lessThanOrEqualTo,omitempty"`    // LessThanOrEqualTo (inclusive)
}

// TimeRange defines bounds for time filtering.
type TimeRange struct {
	Gt  *time.Time `json:"after,omitempty"`      // After (exclusive)
	Gte *time.Time `json:"atOrAfter,omitempty"`  // AtOrAfter (inclusive)
	Lt  *time.Time `json:"before,omitempty"`     // Before (exclusive)
	Lte *time.Time `json:"atOrBefore,omitempty"` // AtOrBefore (inclusive)
}

// TextRange defines lexical bounds for string filtering.
type TextRange struct {
	Gt  *string `json:"textGreaterThan,omitempty"`
	Gte *string `json:"textGreaterThanOrEqualTo,omitempty"`
	Lt  *string `json:"textLessThan,omitempty"`
	Lte *string `json:"textLessThanOrEqualTo,omitempty"`
}

// ── Range Conditions ─────────────────────────────────────────────────────────

// NumericRangeCondition filters by numeric range.
type NumericRangeCondition struct {
	Field     string       `json:"field"`
	Range     NumericRange `json:"-"`
	FieldType FieldType    `json:"-"`
}

func (c *NumericRangeCondition) IsFilterCondition() {}

type numericRangeJSON struct {
	Field                string   `json:"field"`
	GreaterThan          *float64 `json:"greaterThan,omitempty"`
	GreaterThanOrEqualTo *float64 `json:"greaterThanOrEqualTo,omitempty"`
	LessThan             *float64 `json:"lessThan,omitempty"`
	LessThanOrEqualTo    *float64 `json:"lessThanOrEqualTo,omitempty"`
}

func (c *NumericRangeCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(numericRangeJSON{
		Field:                c.Field,
		GreaterThan:          c.Range.Gt,
		GreaterThanOrEqualTo: c.Range.Gte,
		LessThan:             c.Range.Lt,
		LessThanOrEqualTo:    c.Range.Lte,
	})
}

func (c *NumericRangeCondition) UnmarshalJSON(data []byte) error {
	var alias numericRangeJSON
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	c.Field = alias.Field
	c.Range = NumericRange{
		Gt:  alias.GreaterThan,
		Gte: alias.GreaterThanOrEqualTo,
		Lt:  alias.LessThan,
		Lte: alias.LessThanOrEqualTo,
	}
	return nil
}

// TimeRangeCondition filters by datetime range.
type TimeRangeCondition struct {
	Field     string    `json:"field"`
	Range     TimeRange `json:"-"`
	FieldType FieldType `json:"-"`
}

func (c *TimeRangeCondition) IsFilterCondition() {}

type timeRangeJSON struct {
	Field      string     `json:"field"`
	After      *time.Time `json:"after,omitempty"`
	AtOrAfter  *time.Time `json:"atOrAfter,omitempty"`
	Before     *time.Time `json:"before,omitempty"`
	AtOrBefore *time.Time `json:"atOrBefore,omitempty"`
}

func (c *TimeRangeCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeRangeJSON{
		Field:      c.Field,
		After:      c.Range.Gt,
		AtOrAfter:  c.Range.Gte,
		Before:     c.Range.Lt,
		AtOrBefore: c.Range.Lte,
	})
}

func (c *TimeRangeCondition) UnmarshalJSON(data []byte) error {
	var alias timeRangeJSON
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	c.Field = alias.Field
	c.Range = TimeRange{
		Gt:  alias.After,
		Gte: alias.AtOrAfter,
		Lt:  alias.Before,
		Lte: alias.AtOrBefore,
	}
	return nil
}

// TextRangeCondition filters by lexical string range.
type TextRangeCondition struct {
	Field     string    `json:"field"`
	Range     TextRange `json:"-"`
	FieldType FieldType `json:"-"`
}

func (c *TextRangeCondition) IsFilterCondition() {}

type textRangeJSON struct {
	Field string `json:"field"`
	TextRange
}

func (c *TextRangeCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(textRangeJSON{Field: c.Field, TextRange: c.Range})
}

func (c *TextRangeCondition) UnmarshalJSON(data []byte) error {
	var alias textRangeJSON
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	c.Field = alias.Field
	c.Range = alias.TextRange
	return nil
}

// ── Null/Empty Conditions ────────────────────────────────────────────────────

// IsNullCondition checks if a field is present with a JSON null value.
type IsNullCondition struct {
	Field     string    `json:"field"`
	IsNull    bool      `json:"isNull"`
	FieldType FieldType `json:"-"`
}

func (c *IsNullCondition) IsFilterCondition() {}

// IsEmptyCondition checks if a field is missing, null, "" or [].
type IsEmptyCondition struct {
	Field     string    `json:"field"`
	IsEmpty   bool      `json:"isEmpty"`
	FieldType FieldType `json:"-"`
}

func (c *IsEmptyCondition) IsFilterCondition() {}
