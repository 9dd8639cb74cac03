package vectorstore

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Filter dictionary operators.
const (
	OpEq      = "$eq"
	OpNe      = "$ne"
	OpLt      = "$lt"
	OpLte     = "$lte"
	OpGt      = "$gt"
	OpGte     = "$gte"
	OpIn      = "$in"
	OpNin     = "$nin"
	OpLike    = "$like"
	OpBetween = "$between"
	OpExists  = "$exists"
	OpAnd     = "$and"
	OpOr      = "$or"
)

var supportedOperators = map[string]struct{}{
	OpEq: {}, OpNe: {}, OpLt: {}, OpLte: {}, OpGt: {}, OpGte: {},
	OpIn: {}, OpNin: {}, OpLike: {}, OpBetween: {}, OpExists: {},
}

// fieldNamePattern allows identifiers and dotted paths into nested metadata.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidFieldName reports whether name can be used as a filter field.
func ValidFieldName(name string) bool {
	return fieldNamePattern.MatchString(name)
}

// ParseFilter converts a LangChain style filter dictionary into a FilterSet.
//
// Grammar:
//
//	{"source": "a.pdf"}                              equality
//	{"page": {"$gte": 3}}                            operator on a field
//	{"source": "a.pdf", "page": {"$lt": 10}}         implicit AND
//	{"$or": [{"lang": "en"}, {"lang": "de"}]}        explicit AND / OR
//	{"year": {"$between": [2019, 2021]}}             inclusive range
//
// All errors wrap ErrInvalidFilter.
func ParseFilter(filter map[string]any) (*FilterSet, error) {
	cond, err := parseFilterMap(filter)
	if err != nil {
		return nil, err
	}
	if fs, ok := cond.(*FilterSet); ok {
		return fs, nil
	}
	return NewFilterSet(Must(cond)), nil
}

// ParseFilterJSON parses a JSON encoded filter dictionary.
func ParseFilterJSON(data []byte) (*FilterSet, error) {
	var m map[string]any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return ParseFilter(m)
}

// ResolveFilter accepts the values callers pass through
// vectorstores.WithFilters: nil, *FilterSet, FilterSet, a single
// FilterCondition, a filter dictionary or its JSON encoding.
func ResolveFilter(filter any) (*FilterSet, error) {
	switch f := filter.(type) {
	case nil:
		return nil, nil
	case *FilterSet:
		if f.IsEmpty() {
			return nil, nil
		}
		return f, nil
	case FilterSet:
		if f.IsEmpty() {
			return nil, nil
		}
		return &f, nil
	case FilterCondition:
		return NewFilterSet(Must(f)), nil
	case map[string]any:
		if len(f) == 0 {
			return nil, nil
		}
		return ParseFilter(f)
	case string:
		if strings.TrimSpace(f) == "" {
			return nil, nil
		}
		return ParseFilterJSON([]byte(f))
	case []byte:
		return ParseFilterJSON(f)
	}
	return nil, fmt.Errorf("%w: unsupported filter type %T", ErrInvalidFilter, filter)
}

func parseFilterMap(m map[string]any) (FilterCondition, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: filter must not be empty", ErrInvalidFilter)
	}

	if len(m) == 1 {
		for key, value := range m {
			if !strings.HasPrefix(key, "$") {
				return parseFieldFilter(key, value)
			}
			return parseLogical(strings.ToLower(key), value)
		}
	}

	keys := make([]string, 0, len(m))
	for key := range m {
		if strings.HasPrefix(key, "$") {
			return nil, fmt.Errorf("%w: operator %s cannot be combined with other keys", ErrInvalidFilter, key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	conditions := make([]FilterCondition, 0, len(keys))
	for _, key := range keys {
		cond, err := parseFieldFilter(key, m[key])
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}
	return NewFilterSet(Must(conditions...)), nil
}

func parseLogical(op string, value any) (FilterCondition, error) {
	if op != OpAnd && op != OpOr {
		return nil, fmt.Errorf("%w: expected $and or $or at the top level, got %s", ErrInvalidFilter, op)
	}

	items, ok := toMapList(value)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects a list of filters, got %T", ErrInvalidFilter, op, value)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s expects at least one filter", ErrInvalidFilter, op)
	}

	conditions := make([]FilterCondition, 0, len(items))
	for _, item := range items {
		cond, err := parseFilterMap(item)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}

	if op == OpAnd {
		return NewFilterSet(Must(conditions...)), nil
	}
	return NewFilterSet(Should(conditions...)), nil
}

func parseFieldFilter(field string, value any) (FilterCondition, error) {
	if strings.HasPrefix(field, "$") {
		return nil, fmt.Errorf("%w: expected a field but got an operator: %s", ErrInvalidFilter, field)
	}
	if !ValidFieldName(field) {
		return nil, fmt.Errorf("%w: invalid field name %q", ErrInvalidFilter, field)
	}

	op, operand := OpEq, value
	if spec, ok := value.(map[string]any); ok {
		if len(spec) != 1 {
			return nil, fmt.Errorf("%w: field %s expects exactly one operator, got %d", ErrInvalidFilter, field, len(spec))
		}
		for k, v := range spec {
			op, operand = strings.ToLower(k), v
		}
		if _, ok := supportedOperators[op]; !ok {
			return nil, fmt.Errorf("%w: unsupported operator %s", ErrInvalidFilter, op)
		}
	}

	switch op {
	case OpEq:
		if operand == nil {
			return NewIsNull(field), nil
		}
		v, err := scalar(field, op, operand)
		if err != nil {
			return nil, err
		}
		return &MatchCondition{Field: field, Value: v}, nil

	case OpNe:
		v, err := scalar(field, op, operand)
		if err != nil {
			return nil, err
		}
		return &NotMatchCondition{Field: field, Value: v}, nil

	case OpLt, OpLte, OpGt, OpGte:
		return rangeCondition(field, op, operand)

	case OpBetween:
		bounds, ok := operand.([]any)
		if !ok || len(bounds) != 2 {
			return nil, fmt.Errorf("%w: $between on %s expects [low, high]", ErrInvalidFilter, field)
		}
		return betweenCondition(field, bounds[0], bounds[1])

	case OpIn, OpNin:
		values, err := listValues(field, op, operand)
		if err != nil {
			return nil, err
		}
		if op == OpIn {
			return &MatchAnyCondition{Field: field, Values: values}, nil
		}
		return &MatchExceptCondition{Field: field, Values: values}, nil

	case OpLike:
		pattern, ok := operand.(string)
		if !ok {
			return nil, fmt.Errorf("%w: $like on %s expects a string pattern", ErrInvalidFilter, field)
		}
		return NewLike(field, pattern), nil

	case OpExists:
		exists, ok := operand.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: $exists on %s expects a boolean", ErrInvalidFilter, field)
		}
		return NewExists(field, exists), nil
	}

	return nil, fmt.Errorf("%w: unsupported operator %s", ErrInvalidFilter, op)
}

func scalar(field, op string, v any) (any, error) {
	if f, ok := toFloat(v); ok {
		if _, isNumber := v.(json.Number); isNumber {
			return f, nil
		}
		return v, nil
	}
	switch v.(type) {
	case string, bool:
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s on %s does not accept %T", ErrInvalidFilter, op, field, v)
}

func listValues(field, op string, operand any) ([]any, error) {
	raw, ok := operand.([]any)
	if !ok {
		switch l := operand.(type) {
		case []string:
			raw = make([]any, len(l))
			for i, s := range l {
				raw[i] = s
			}
		default:
			return nil, fmt.Errorf("%w: %s on %s expects a list", ErrInvalidFilter, op, field)
		}
	}

	values := make([]any, len(raw))
	for i, v := range raw {
		switch v.(type) {
		case string:
			values[i] = v
		default:
			f, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("%w: %s on %s: unsupported type %T for value %v", ErrInvalidFilter, op, field, v, v)
			}
			values[i] = f
		}
	}
	if err := checkHomogeneousTypes(values); err != nil {
		return nil, err
	}
	return values, nil
}

func rangeCondition(field, op string, operand any) (FilterCondition, error) {
	if f, ok := toFloat(operand); ok {
		r := NumericRange{}
		switch op {
		case OpGt:
			r.Gt = &f
		case OpGte:
			r.Gte = &f
		case OpLt:
			r.Lt = &f
		case OpLte:
			r.Lte = &f
		}
		return NewNumericRange(field, r), nil
	}

	if t, ok := toTime(operand); ok {
		r := TimeRange{}
		switch op {
		case OpGt:
			r.Gt = &t
		case OpGte:
			r.Gte = &t
		case OpLt:
			r.Lt = &t
		case OpLte:
			r.Lte = &t
		}
		return NewTimeRange(field, r), nil
	}

	if s, ok := operand.(string); ok {
		r := TextRange{}
		switch op {
		case OpGt:
			r.Gt = &s
		case OpGte:
			r.Gte = &s
		case OpLt:
			r.Lt = &s
		case OpLte:
			r.Lte = &s
		}
		return NewTextRange(field, r), nil
	}

	return nil, fmt.Errorf("%w: %s on %s expects a number, time or string, got %T", ErrInvalidFilter, op, field, operand)
}

func betweenCondition(field string, low, high any) (FilterCondition, error) {
	lf, lok := toFloat(low)
	hf, hok := toFloat(high)
	if lok && hok {
		return NewNumericRange(field, NumericRange{Gte: &lf, Lte: &hf}), nil
	}

	lt, ltok := toTime(low)
	ht, htok := toTime(high)
	if ltok && htok {
		return NewTimeRange(field, TimeRange{Gte: &lt, Lte: &ht}), nil
	}

	ls, lsok := low.(string)
	hs, hsok := high.(string)
	if lsok && hsok {
		return NewTextRange(field, TextRange{Gte: &ls, Lte: &hs}), nil
	}

	return nil, fmt.Errorf("%w: $between on %s expects two values of the same kind", ErrInvalidFilter, field)
}

func toMapList(v any) ([]map[string]any, bool) {
	switch l := v.(type) {
	case []map[string]any:
		return l, true
	case []any:
		out := make([]map[string]any, 0, len(l))
		for _, item := range l {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}
