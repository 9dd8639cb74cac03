package vectorstore

import (
	"encoding/json"
	"fmt"
)

// ── FilterSet Constructors ───────────────────────────────────────────────────

// NewFilterSet creates a FilterSet with the given clauses.
// Use with Must(), Should(), and MustNot() helpers.
//
// Example:
//
//	vectorstore.NewFilterSet(
//	    vectorstore.Must(vectorstore.NewMatch("source", "handbook.pdf")),
//	    vectorstore.Should(vectorstore.NewMatch("lang", "en"), vectorstore.NewMatch("lang", "de")),
//	)
func NewFilterSet(clauses ...func(*FilterSet)) *FilterSet {
	fs := &FilterSet{}
	for _, clause := range clauses {
		clause(fs)
	}
	return fs
}

// Must creates a Must clause (AND logic) with the given conditions.
func Must(conditions ...FilterCondition) func(*FilterSet) {
	return func(fs *FilterSet) {
		fs.Must = &ConditionSet{Conditions: conditions}
	}
}

// Should creates a Should clause (OR logic) with the given conditions.
func Should(conditions ...FilterCondition) func(*FilterSet) {
	return func(fs *FilterSet) {
		fs.Should = &ConditionSet{Conditions: conditions}
	}
}

// MustNot creates a MustNot clause (NOT logic) with the given conditions.
func MustNot(conditions ...FilterCondition) func(*FilterSet) {
	return func(fs *FilterSet) {
		fs.MustNot = &ConditionSet{Conditions: conditions}
	}
}

// ── Condition Constructors ───────────────────────────────────────────────────

// NewMatch creates an equality condition on a metadata field.
func NewMatch(field string, value any) *MatchCondition {
	return &MatchCondition{Field: field, Value: value}
}

// NewNotMatch creates an inequality condition on a metadata field.
func NewNotMatch(field string, value any) *NotMatchCondition {
	return &NotMatchCondition{Field: field, Value: value}
}

// NewMatchAny creates an IN condition on a metadata field.
// It panics if values mix strings, numbers and booleans.
func NewMatchAny(field string, values ...any) *MatchAnyCondition {
	mustBeHomogeneous(values)
	return &MatchAnyCondition{Field: field, Values: values}
}

// NewMatchExcept creates a NOT IN condition on a metadata field.
// It panics if values mix strings, numbers and booleans.
func NewMatchExcept(field string, values ...any) *MatchExceptCondition {
	mustBeHomogeneous(values)
	return &MatchExceptCondition{Field: field, Values: values}
}

// NewIDMatchAny restricts results to the given document ids.
func NewIDMatchAny(ids ...string) *MatchAnyCondition {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return &MatchAnyCondition{Field: IDKey, Values: values, FieldType: DocumentField}
}

// NewLike creates a LIKE condition on a metadata field.
func NewLike(field, pattern string) *LikeCondition {
	return &LikeCondition{Field: field, Pattern: pattern}
}

// NewExists creates a key presence condition on a metadata field.
func NewExists(field string, exists bool) *ExistsCondition {
	return &ExistsCondition{Field: field, Exists: exists}
}

// NewNumericRange creates a numeric range condition on a metadata field.
func NewNumericRange(field string, r NumericRange) *NumericRangeCondition {
	return &NumericRangeCondition{Field: field, Range: r}
}

// NewTimeRange creates a time range condition on a metadata field.
func NewTimeRange(field string, r TimeRange) *TimeRangeCondition {
	return &TimeRangeCondition{Field: field, Range: r}
}

// NewTextRange creates a lexical range condition on a metadata field.
func NewTextRange(field string, r TextRange) *TextRangeCondition {
	return &TextRangeCondition{Field: field, Range: r}
}

// NewIsNull creates an IS NULL condition on a metadata field.
func NewIsNull(field string) *IsNullCondition {
	return &IsNullCondition{Field: field, IsNull: true}
}

// NewIsEmpty creates an IS EMPTY condition on a metadata field.
func NewIsEmpty(field string) *IsEmptyCondition {
	return &IsEmptyCondition{Field: field, IsEmpty: true}
}

// Float returns a pointer to v, for building ranges inline.
func Float(v float64) *float64 { return &v }

// ── JSON Serialization ───────────────────────────────────────────────────────

// MarshalJSON implements custom JSON marshaling for ConditionSet.
// This is needed because FilterCondition is an interface.
func (cs *ConditionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(cs.Conditions)
}

// UnmarshalJSON detects each condition's type from its JSON keys.
func (cs *ConditionSet) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	cs.Conditions = make([]FilterCondition, 0, len(raw))

	for _, r := range raw {
		cond, err := parseCondition(r)
		if err != nil {
			return err
		}
		cs.Conditions = append(cs.Conditions, cond)
	}

	return nil
}

// parseCondition detects and parses a single FilterCondition from JSON:
//   - "must", "should", "mustNot" → nested FilterSet
//   - "equalTo" → MatchCondition, "notEqualTo" → NotMatchCondition
//   - "anyOf" → MatchAnyCondition, "noneOf" → MatchExceptCondition
//   - "like" → LikeCondition, "exists" → ExistsCondition
//   - "isNull" → IsNullCondition, "isEmpty" → IsEmptyCondition
//   - "greaterThan", "lessThan", etc. → NumericRangeCondition
//   - "after", "before", etc. → TimeRangeCondition
//   - "textGreaterThan", etc. → TextRangeCondition
func parseCondition(data []byte) (FilterCondition, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	var target FilterCondition
	switch {
	case hasKey(fields, "must"), hasKey(fields, "should"), hasKey(fields, "mustNot"):
		target = &FilterSet{}
	case hasKey(fields, "equalTo"):
		target = &MatchCondition{}
	case hasKey(fields, "notEqualTo"):
		target = &NotMatchCondition{}
	case hasKey(fields, "anyOf"):
		target = &MatchAnyCondition{}
	case hasKey(fields, "noneOf"):
		target = &MatchExceptCondition{}
	case hasKey(fields, "like"):
		target = &LikeCondition{}
	case hasKey(fields, "exists"):
		target = &ExistsCondition{}
	case hasKey(fields, "isNull"):
		target = &IsNullCondition{}
	case hasKey(fields, "isEmpty"):
		target = &IsEmptyCondition{}
	case hasKey(fields, "greaterThan"), hasKey(fields, "greaterThanOrEqualTo"),
		hasKey(fields, "lessThan"), hasKey(fields, "lessThanOrEqualTo"):
		target = &NumericRangeCondition{}
	case hasKey(fields, "after"), hasKey(fields, "atOrAfter"),
		hasKey(fields, "before"), hasKey(fields, "atOrBefore"):
		target = &TimeRangeCondition{}
	case hasKey(fields, "textGreaterThan"), hasKey(fields, "textGreaterThanOrEqualTo"),
		hasKey(fields, "textLessThan"), hasKey(fields, "textLessThanOrEqualTo"):
		target = &TextRangeCondition{}
	default:
		return nil, fmt.Errorf("%w: unknown filter condition type: %s", ErrInvalidFilter, string(data))
	}

	if err := json.Unmarshal(data, target); err != nil {
		return nil, err
	}
	return target, nil
}

// hasKey checks if a JSON object contains a specific key.
func hasKey(m map[string]json.RawMessage, key string) bool {
	_, ok := m[key]
	return ok
}

func mustBeHomogeneous(values []any) {
	if err := checkHomogeneousTypes(values); err != nil {
		panic(err.Error())
	}
}

// checkHomogeneousTypes ensures all values belong to the same type category.
func checkHomogeneousTypes(values []any) error {
	if len(values) == 0 {
		return nil
	}

	expectedType := getType(values[0])
	if expectedType == "" {
		return fmt.Errorf("%w: unsupported value type: %T", ErrInvalidFilter, values[0])
	}

	for i, v := range values[1:] {
		actualType := getType(v)
		if actualType == "" {
			return fmt.Errorf("%w: unsupported value type at index %d: %T", ErrInvalidFilter, i+1, v)
		}
		if actualType != expectedType {
			return fmt.Errorf("%w: mixed types not allowed in list: expected %s but got %s at index %d", ErrInvalidFilter, expectedType, actualType, i+1)
		}
	}
	return nil
}

func getType(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case int, int32, int64, float32, float64, json.Number:
		return "numeric"
	case bool:
		return "boolean"
	}
	return ""
}
