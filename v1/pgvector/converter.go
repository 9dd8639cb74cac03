package pgvector

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

// timestampPattern guards the ::timestamptz cast. Strings that do not look
// like an ISO 8601 date or timestamp compare as FALSE instead of failing the
// whole query with invalid_datetime_format.
//
// The pattern has no question marks: gorm would take them for placeholders.
const timestampPattern = `'^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])([T ]\d{2}:\d{2}(:\d{2}(\.\d+){0,1}){0,1}){0,1}(Z|[+-]\d{2}(:{0,1}\d{2}){0,1}){0,1}$'`

// whereBuilder compiles a FilterSet into a SQL predicate over the metadata
// jsonb column. Values are always bound through gorm "?" placeholders;
// field names are validated and quoted as literals.
type whereBuilder struct {
	args []any
}

// buildWhere returns the predicate and its arguments. A nil or empty filter
// yields an empty predicate.
func buildWhere(fs *vectorstore.FilterSet) (string, []any, error) {
	if fs.IsEmpty() {
		return "", nil, nil
	}
	w := &whereBuilder{}
	sql, err := w.set(fs)
	if err != nil {
		return "", nil, err
	}
	return sql, w.args, nil
}

func (w *whereBuilder) set(fs *vectorstore.FilterSet) (string, error) {
	if fs.IsEmpty() {
		return "TRUE", nil
	}

	var clauses []string

	if fs.Must != nil && len(fs.Must.Conditions) > 0 {
		parts, err := w.conditions(fs.Must.Conditions)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, strings.Join(parts, " AND "))
	}
	if fs.Should != nil && len(fs.Should.Conditions) > 0 {
		parts, err := w.conditions(fs.Should.Conditions)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
	}
	if fs.MustNot != nil && len(fs.MustNot.Conditions) > 0 {
		parts, err := w.conditions(fs.MustNot.Conditions)
		if err != nil {
			return "", err
		}
		// A missing field makes a comparison NULL; it must count as "not matched".
		for i, part := range parts {
			parts[i] = "COALESCE(" + part + ", FALSE)"
		}
		clauses = append(clauses, "NOT ("+strings.Join(parts, " OR ")+")")
	}

	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return "(" + strings.Join(clauses, " AND ") + ")", nil
}

func (w *whereBuilder) conditions(conds []vectorstore.FilterCondition) ([]string, error) {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		sql, err := w.condition(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, "("+sql+")")
	}
	return parts, nil
}

func (w *whereBuilder) bind(v any) string {
	w.args = append(w.args, v)
	return "?"
}

func (w *whereBuilder) condition(c vectorstore.FilterCondition) (string, error) {
	switch c := c.(type) {
	case *vectorstore.FilterSet:
		return w.set(c)

	case *vectorstore.MatchCondition:
		if c.FieldType == vectorstore.DocumentField {
			return w.column(c.Field, func(col string) (string, error) { return col + " = " + w.bind(c.Value), nil })
		}
		p, err := metadataPath(c.Field)
		if err != nil {
			return "", err
		}
		value, err := jsonText(c.Value)
		if err != nil {
			return "", err
		}
		return p.json + " = " + w.bind(value) + "::jsonb", nil

	case *vectorstore.NotMatchCondition:
		if c.FieldType == vectorstore.DocumentField {
			return w.column(c.Field, func(col string) (string, error) { return col + " <> " + w.bind(c.Value), nil })
		}
		p, err := metadataPath(c.Field)
		if err != nil {
			return "", err
		}
		value, err := jsonText(c.Value)
		if err != nil {
			return "", err
		}
		return p.json + " IS DISTINCT FROM " + w.bind(value) + "::jsonb", nil

	case *vectorstore.MatchAnyCondition:
		return w.in(c.Field, c.FieldType, c.Values, false)

	case *vectorstore.MatchExceptCondition:
		return w.in(c.Field, c.FieldType, c.Values, true)

	case *vectorstore.LikeCondition:
		if c.FieldType == vectorstore.DocumentField {
			return w.column(c.Field, func(col string) (string, error) { return col + " LIKE " + w.bind(c.Pattern), nil })
		}
		p, err := metadataPath(c.Field)
		if err != nil {
			return "", err
		}
		return p.text + " LIKE " + w.bind(c.Pattern), nil

	case *vectorstore.ExistsCondition:
		p, err := metadataPath(c.Field)
		if err != nil {
			return "", err
		}
		if c.Exists {
			return p.json + " IS NOT NULL", nil
		}
		return p.json + " IS NULL", nil

	case *vectorstore.IsNullCondition:
		p, err := metadataPath(c.Field)
		if err != nil {
			return "", err
		}
		if c.IsNull {
			return "jsonb_typeof(" + p.json + ") = 'null'", nil
		}
		return "COALESCE(jsonb_typeof(" + p.json + ") <> 'null', FALSE)", nil

	case *vectorstore.IsEmptyCondition:
		p, err := metadataPath(c.Field)
		if err != nil {
			return "", err
		}
		empty := p.json + " IS NULL OR " + p.json + ` IN ('null'::jsonb, '""'::jsonb, '[]'::jsonb, '{}'::jsonb)`
		if c.IsEmpty {
			return empty, nil
		}
		return "NOT (" + empty + ")", nil

	case *vectorstore.NumericRangeCondition:
		p, err := metadataPath(c.Field)
		if err != nil {
			return "", err
		}
		bounds := w.bounds("("+p.text+")::numeric", c.Range.Gt, c.Range.Gte, c.Range.Lt, c.Range.Lte)
		if bounds == "" {
			return "", fmt.Errorf("%w: numeric range on %s has no bounds", vectorstore.ErrInvalidFilter, c.Field)
		}
		return "CASE WHEN jsonb_typeof(" + p.json + ") = 'number' THEN " + bounds + " ELSE FALSE END", nil

	case *vectorstore.TimeRangeCondition:
		p, err := metadataPath(c.Field)
		if err != nil {
			return "", err
		}
		bounds := w.bounds("("+p.text+")::timestamptz", c.Range.Gt, c.Range.Gte, c.Range.Lt, c.Range.Lte)
		if bounds == "" {
			return "", fmt.Errorf("%w: time range on %s has no bounds", vectorstore.ErrInvalidFilter, c.Field)
		}
		return "CASE WHEN jsonb_typeof(" + p.json + ") = 'string' AND " + p.text + " ~ " + timestampPattern +
			" THEN " + bounds + " ELSE FALSE END", nil

	case *vectorstore.TextRangeCondition:
		if c.FieldType == vectorstore.DocumentField {
			return w.column(c.Field, func(col string) (string, error) {
				bounds := w.bounds(col, c.Range.Gt, c.Range.Gte, c.Range.Lt, c.Range.Lte)
				if bounds == "" {
					return "", fmt.Errorf("%w: text range on %s has no bounds", vectorstore.ErrInvalidFilter, c.Field)
				}
				return bounds, nil
			})
		}
		p, err := metadataPath(c.Field)
		if err != nil {
			return "", err
		}
		bounds := w.bounds(p.text, c.Range.Gt, c.Range.Gte, c.Range.Lt, c.Range.Lte)
		if bounds == "" {
			return "", fmt.Errorf("%w: text range on %s has no bounds", vectorstore.ErrInvalidFilter, c.Field)
		}
		return "CASE WHEN jsonb_typeof(" + p.json + ") = 'string' THEN " + bounds + " ELSE FALSE END", nil
	}

	return "", fmt.Errorf("%w: unsupported filter condition %T", vectorstore.ErrInvalidFilter, c)
}

// in compiles IN / NOT IN. Empty lists match nothing and everything respectively.
func (w *whereBuilder) in(field string, fieldType vectorstore.FieldType, values []any, negate bool) (string, error) {
	if len(values) == 0 {
		if fieldType == vectorstore.DocumentField {
			if _, err := documentColumn(field); err != nil {
				return "", err
			}
		} else if _, err := metadataPath(field); err != nil {
			return "", err
		}
		if negate {
			return "TRUE", nil
		}
		return "FALSE", nil
	}

	if fieldType == vectorstore.DocumentField {
		return w.column(field, func(col string) (string, error) {
			if negate {
				return col + " NOT IN " + w.bind(values), nil
			}
			return col + " IN " + w.bind(values), nil
		})
	}

	p, err := metadataPath(field)
	if err != nil {
		return "", err
	}
	texts := make([]any, len(values))
	for i, v := range values {
		if texts[i], err = jsonText(v); err != nil {
			return "", err
		}
	}
	if negate {
		return "NOT COALESCE(" + p.json + " IN " + w.bind(texts) + ", FALSE)", nil
	}
	return p.json + " IN " + w.bind(texts), nil
}

// bounds renders the non-nil range bounds on expr joined with AND.
func (w *whereBuilder) bounds(expr string, gt, gte, lt, lte any) string {
	var parts []string
	for _, b := range []struct {
		op    string
		value any
	}{{">", gt}, {">=", gte}, {"<", lt}, {"<=", lte}} {
		if isNil(b.value) {
			continue
		}
		parts = append(parts, expr+" "+b.op+" "+w.bind(deref(b.value)))
	}
	return strings.Join(parts, " AND ")
}

func (w *whereBuilder) column(field string, render func(col string) (string, error)) (string, error) {
	col, err := documentColumn(field)
	if err != nil {
		return "", err
	}
	return render(col)
}

func documentColumn(field string) (string, error) {
	switch field {
	case vectorstore.IDKey:
		return "id", nil
	case "content":
		return "content", nil
	}
	return "", fmt.Errorf("%w: unknown document field %q", vectorstore.ErrInvalidFilter, field)
}

type jsonPath struct {
	// json selects the jsonb value, text selects it as text.
	json, text string
}

// metadataPath returns the accessors for field. Dotted names address nested
// objects: "author.name" becomes metadata #> '{author,name}'.
func metadataPath(field string) (jsonPath, error) {
	if !vectorstore.ValidFieldName(field) {
		return jsonPath{}, fmt.Errorf("%w: invalid field name %q", vectorstore.ErrInvalidFilter, field)
	}
	if !strings.Contains(field, ".") {
		key := pq.QuoteLiteral(field)
		return jsonPath{json: "metadata -> " + key, text: "metadata ->> " + key}, nil
	}
	path := pq.QuoteLiteral("{" + strings.ReplaceAll(field, ".", ",") + "}")
	return jsonPath{json: "metadata #> " + path, text: "metadata #>> " + path}, nil
}

func jsonText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: cannot encode %v: %v", vectorstore.ErrInvalidFilter, v, err)
	}
	return string(b), nil
}

func isNil(v any) bool {
	switch p := v.(type) {
	case nil:
		return true
	case *float64:
		return p == nil
	case *string:
		return p == nil
	case *time.Time:
		return p == nil
	}
	return false
}

func deref(v any) any {
	switch p := v.(type) {
	case *float64:
		return *p
	case *string:
		return *p
	case *time.Time:
		return *p
	}
	return v
}
