package mongovcore

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Aleph-Alpha/vectorstores/v1/vectorstore"
)

// filterBuilder converts a FilterSet into a MongoDB query document. Metadata
// fields are addressed below the configured metadata key.
type filterBuilder struct {
	textKey     string
	metadataKey string
}

func newFilterBuilder(cfg Config) filterBuilder {
	return filterBuilder{textKey: cfg.TextKey, metadataKey: cfg.MetadataKey}
}

// build returns nil for a nil or empty filter.
func (b filterBuilder) build(fs *vectorstore.FilterSet) (bson.D, error) {
	if fs.IsEmpty() {
		return nil, nil
	}
	return b.set(fs)
}

func (b filterBuilder) set(fs *vectorstore.FilterSet) (bson.D, error) {
	if fs.IsEmpty() {
		return bson.D{}, nil
	}

	var clauses bson.A

	if fs.Must != nil && len(fs.Must.Conditions) > 0 {
		docs, err := b.conditions(fs.Must.Conditions)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, docs...)
	}
	if fs.Should != nil && len(fs.Should.Conditions) > 0 {
		docs, err := b.conditions(fs.Should.Conditions)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, bson.D{{Key: "$or", Value: docs}})
	}
	if fs.MustNot != nil && len(fs.MustNot.Conditions) > 0 {
		docs, err := b.conditions(fs.MustNot.Conditions)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, bson.D{{Key: "$nor", Value: docs}})
	}

	if len(clauses) == 1 {
		return clauses[0].(bson.D), nil
	}
	return bson.D{{Key: "$and", Value: clauses}}, nil
}

func (b filterBuilder) conditions(conds []vectorstore.FilterCondition) (bson.A, error) {
	docs := make(bson.A, 0, len(conds))
	for _, c := range conds {
		d, err := b.condition(c)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (b filterBuilder) condition(c vectorstore.FilterCondition) (bson.D, error) {
	switch c := c.(type) {
	case *vectorstore.FilterSet:
		return b.set(c)

	case *vectorstore.MatchCondition:
		return b.field(c.Field, c.FieldType, bson.D{{Key: "$eq", Value: c.Value}})

	case *vectorstore.NotMatchCondition:
		return b.field(c.Field, c.FieldType, bson.D{{Key: "$ne", Value: c.Value}})

	case *vectorstore.MatchAnyCondition:
		return b.field(c.Field, c.FieldType, bson.D{{Key: "$in", Value: values(c.Values)}})

	case *vectorstore.MatchExceptCondition:
		return b.field(c.Field, c.FieldType, bson.D{{Key: "$nin", Value: values(c.Values)}})

	case *vectorstore.LikeCondition:
		return b.field(c.Field, c.FieldType, bson.D{{Key: "$regex", Value: likeToRegex(c.Pattern)}})

	case *vectorstore.ExistsCondition:
		return b.field(c.Field, c.FieldType, bson.D{{Key: "$exists", Value: c.Exists}})

	case *vectorstore.IsNullCondition:
		if c.IsNull {
			return b.field(c.Field, c.FieldType, bson.D{{Key: "$type", Value: "null"}})
		}
		return b.field(c.Field, c.FieldType, bson.D{{Key: "$ne", Value: nil}})

	case *vectorstore.IsEmptyCondition:
		path, err := b.path(c.Field, c.FieldType)
		if err != nil {
			return nil, err
		}
		empty := bson.A{
			bson.D{{Key: path, Value: nil}},
			bson.D{{Key: path, Value: ""}},
			bson.D{{Key: path, Value: bson.D{{Key: "$size", Value: 0}}}},
			bson.D{{Key: path, Value: bson.D{}}},
		}
		if c.IsEmpty {
			return bson.D{{Key: "$or", Value: empty}}, nil
		}
		return bson.D{{Key: "$nor", Value: empty}}, nil

	case *vectorstore.NumericRangeCondition:
		ops := bounds(c.Range.Gt, c.Range.Gte, c.Range.Lt, c.Range.Lte)
		if len(ops) == 0 {
			return nil, fmt.Errorf("%w: numeric range on %s has no bounds", vectorstore.ErrInvalidFilter, c.Field)
		}
		return b.field(c.Field, c.FieldType, ops)

	case *vectorstore.TimeRangeCondition:
		dates := bounds(c.Range.Gt, c.Range.Gte, c.Range.Lt, c.Range.Lte)
		if len(dates) == 0 {
			return nil, fmt.Errorf("%w: time range on %s has no bounds", vectorstore.ErrInvalidFilter, c.Field)
		}
		path, err := b.path(c.Field, c.FieldType)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: path, Value: dates}},
			parsedDateRange(path, dates),
		}}}, nil

	case *vectorstore.TextRangeCondition:
		ops := bounds(c.Range.Gt, c.Range.Gte, c.Range.Lt, c.Range.Lte)
		if len(ops) == 0 {
			return nil, fmt.Errorf("%w: text range on %s has no bounds", vectorstore.ErrInvalidFilter, c.Field)
		}
		return b.field(c.Field, c.FieldType, ops)
	}

	return nil, fmt.Errorf("%w: unsupported filter condition %T", vectorstore.ErrInvalidFilter, c)
}

func (b filterBuilder) field(field string, fieldType vectorstore.FieldType, op bson.D) (bson.D, error) {
	path, err := b.path(field, fieldType)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: path, Value: op}}, nil
}

// path returns the document path of field: "_id", the text key, or
// "<metadataKey>.<field>".
func (b filterBuilder) path(field string, fieldType vectorstore.FieldType) (string, error) {
	if fieldType == vectorstore.DocumentField {
		switch field {
		case vectorstore.IDKey:
			return "_id", nil
		case "content":
			return b.textKey, nil
		}
		return "", fmt.Errorf("%w: unknown document field %q", vectorstore.ErrInvalidFilter, field)
	}
	if !vectorstore.ValidFieldName(field) {
		return "", fmt.Errorf("%w: invalid field name %q", vectorstore.ErrInvalidFilter, field)
	}
	return b.metadataKey + "." + field, nil
}

// values returns a non-nil array so that an empty $in encodes as [].
func values(v []any) bson.A {
	if v == nil {
		return bson.A{}
	}
	return bson.A(v)
}

// bounds renders the non-nil range bounds as comparison operators.
func bounds[T any](gt, gte, lt, lte *T) bson.D {
	var ops bson.D
	for _, b := range []struct {
		op    string
		value *T
	}{{"$gt", gt}, {"$gte", gte}, {"$lt", lt}, {"$lte", lte}} {
		if b.value != nil {
			ops = append(ops, bson.E{Key: b.op, Value: *b.value})
		}
	}
	return ops
}

// parsedDateRange matches string fields that parse as dates within ops.
// Strings are compared as instants, so offsets and fractional seconds are
// honoured; unparseable strings and non-strings never match.
func parsedDateRange(path string, ops bson.D) bson.D {
	field := "$" + path
	parsed := bson.D{{Key: "$dateFromString", Value: bson.D{
		{Key: "dateString", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: field}}, "string"}}},
			field,
			nil,
		}}}},
		{Key: "onError", Value: nil},
		{Key: "onNull", Value: nil},
	}}}

	// null sorts below every date, so it has to be excluded before $lt/$lte.
	checks := bson.A{bson.D{{Key: "$ne", Value: bson.A{"$$parsed", nil}}}}
	for _, op := range ops {
		checks = append(checks, bson.D{{Key: op.Key, Value: bson.A{"$$parsed", op.Value}}})
	}

	return bson.D{{Key: "$expr", Value: bson.D{{Key: "$let", Value: bson.D{
		{Key: "vars", Value: bson.D{{Key: "parsed", Value: parsed}}},
		{Key: "in", Value: bson.D{{Key: "$and", Value: checks}}},
	}}}}}
}

// likeToRegex converts a LIKE pattern into an anchored regular expression.
// % matches any run of characters and _ exactly one.
func likeToRegex(pattern string) primitive.Regex {
	var sb strings.Builder
	sb.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteByte('.')
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteByte('$')
	return primitive.Regex{Pattern: sb.String(), Options: "s"}
}
