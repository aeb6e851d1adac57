// Package query provides the fluent query builder and the expression compiler behind it
package query

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/theory-cloud/tablerecord/internal/expr"
	"github.com/theory-cloud/tablerecord/pkg/core"
	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
	"github.com/theory-cloud/tablerecord/pkg/schema"
)

// Pseudo-fields accepted by Where
const (
	IndexField  = "index_name"
	OffsetField = "offset_key"
)

// Query accumulates predicates and modifiers and recompiles on every change.
// A Query is not safe for concurrent use.
type Query struct {
	predicates        core.PredicateSet
	schema            *schema.Schema
	ops               core.TableOperations
	builderErr        error
	compiled          *Compiled
	compileErr        error
	limit             *int32
	exclusiveStartKey map[string]types.AttributeValue
	indexName         string
	projection        []string
	consistentRead    bool
	scanIndexForward  bool
}

// Page is the result of one terminal call
type Page struct {
	LastEvaluatedKey map[string]types.AttributeValue
	Items            []map[string]types.AttributeValue
	NextCursor       string
	Count            int
	ScannedCount     int
	HasMore          bool
}

// New creates a query against s; ops executes it
func New(s *schema.Schema, ops core.TableOperations) *Query {
	q := &Query{
		schema:           s,
		ops:              ops,
		scanIndexForward: true,
	}
	q.rebuild()
	return q
}

// Errored returns a query whose terminal calls fail with err
func Errored(err error) *Query {
	q := &Query{scanIndexForward: true}
	q.recordBuilderError(err)
	return q
}

// Where sets a predicate. value is a literal (equality) or a Condition such as Gt(100).
// Setting a field again replaces its value. The pseudo-fields IndexField and
// OffsetField select an index and a start-after key.
func (q *Query) Where(field string, value any) *Query {
	switch field {
	case IndexField:
		return q.setIndex(value)
	case OffsetField:
		return q.setOffset(value)
	}
	q.predicates.Set(field, value)
	q.rebuild()
	return q
}

// WhereOp sets a predicate with the operator spelled as a string ("gt", ">=", "between", ...).
// BETWEEN expects a two element slice.
func (q *Query) WhereOp(field, op string, value any) *Query {
	operator, err := core.ParseOperator(op)
	if err != nil {
		q.recordBuilderError(customerrors.NewValidationError(field, err))
		return q
	}
	return q.Where(field, core.Condition{Operator: operator, Operand: value})
}

// WhereAll merges a predicate set; later values win on collision
func (q *Query) WhereAll(predicates *core.PredicateSet) *Query {
	if predicates == nil {
		return q
	}
	predicates.Each(func(field string, value any) {
		q.Where(field, value)
	})
	return q
}

// Index selects a secondary index; "" targets the table again.
// Existing predicates are reclassified against the index key schema.
func (q *Query) Index(name string) *Query {
	q.indexName = name
	q.rebuild()
	return q
}

// Limit caps the number of items evaluated
func (q *Query) Limit(n int) *Query {
	if n <= 0 {
		q.recordBuilderError(customerrors.NewValidationError("limit", fmt.Errorf("%w: %d", customerrors.ErrInvalidLimit, n)))
		return q
	}
	if n > math.MaxInt32 {
		n = math.MaxInt32
	}
	limit := int32(n) //nolint:gosec // bounded above
	q.limit = &limit
	q.rebuild()
	return q
}

// Select sets the projected attributes, replacing any earlier selection
func (q *Query) Select(attributes ...string) *Query {
	q.projection = append([]string(nil), attributes...)
	q.rebuild()
	return q
}

// ConsistentRead sets the read consistency; the default is eventually consistent
func (q *Query) ConsistentRead(enabled bool) *Query {
	q.consistentRead = enabled
	q.rebuild()
	return q
}

// ScanForward sets the sort key order; the default is ascending
func (q *Query) ScanForward(forward bool) *Query {
	q.scanIndexForward = forward
	q.rebuild()
	return q
}

// Descending orders results by descending sort key
func (q *Query) Descending() *Query {
	return q.ScanForward(false)
}

// StartAfter resumes after the given key. Keys may be plain Go values or AttributeValues.
func (q *Query) StartAfter(key map[string]any) *Query {
	if len(key) == 0 {
		q.exclusiveStartKey = nil
		q.rebuild()
		return q
	}

	startKey := make(map[string]types.AttributeValue, len(key))
	for name, value := range key {
		av, err := expr.ConvertToAttributeValue(value)
		if err != nil {
			q.recordBuilderError(customerrors.NewValidationError(name, err))
			return q
		}
		startKey[name] = av
	}
	q.exclusiveStartKey = startKey
	q.rebuild()
	return q
}

// Cursor resumes from a token returned in Page.NextCursor
func (q *Query) Cursor(token string) *Query {
	c, err := DecodeCursor(token)
	if err != nil {
		q.recordBuilderError(customerrors.NewValidationError("cursor", err))
		return q
	}
	if c == nil {
		q.exclusiveStartKey = nil
		q.rebuild()
		return q
	}
	if c.IndexName != q.indexName {
		q.recordBuilderError(customerrors.NewValidationError("cursor",
			fmt.Errorf("cursor was issued for index %q, query targets %q", c.IndexName, q.indexName)))
		return q
	}

	key, err := c.ToAttributeValues()
	if err != nil {
		q.recordBuilderError(customerrors.NewValidationError("cursor", err))
		return q
	}
	q.exclusiveStartKey = key
	q.rebuild()
	return q
}

// ToQuery returns the compiled request without executing it.
// Calling it twice on an unchanged query returns equal requests.
func (q *Query) ToQuery() (*core.CompiledQuery, error) {
	if err := q.checkBuilderError(); err != nil {
		return nil, err
	}
	q.rebuild()
	if q.compileErr != nil {
		return nil, q.compileErr
	}
	return q.compiled.Query.Clone(), nil
}

// Roles reports how each predicate was classified by the latest compilation
func (q *Query) Roles() (map[string]Role, error) {
	if _, err := q.ToQuery(); err != nil {
		return nil, err
	}
	out := make(map[string]Role, len(q.compiled.Roles))
	for field, role := range q.compiled.Roles {
		out[field] = role
	}
	return out, nil
}

// All executes the query and returns exactly one page. When dest is non-nil it
// must be a pointer to a slice; items are unmarshaled into it.
func (q *Query) All(ctx context.Context, dest any) (*Page, error) {
	input, err := q.ToQuery()
	if err != nil {
		return nil, err
	}
	if !q.compiled.HasPartition {
		field := q.partitionField()
		return nil, customerrors.NewValidationError(field,
			fmt.Errorf("%w: query needs an equality condition on %s", customerrors.ErrMissingPartitionKey, field))
	}
	return q.execute(ctx, input, dest)
}

// QueryRaw sends a caller-built request as-is, bypassing the compiler
func (q *Query) QueryRaw(ctx context.Context, raw *core.CompiledQuery, dest any) (*Page, error) {
	if raw == nil {
		return nil, customerrors.NewValidationError("request", errors.New("raw request cannot be nil"))
	}
	return q.execute(ctx, raw, dest)
}

func (q *Query) execute(ctx context.Context, input *core.CompiledQuery, dest any) (*Page, error) {
	if q.ops == nil {
		return nil, errors.New("query has no table operations")
	}

	result, err := q.ops.Query(ctx, input)
	if err != nil {
		return nil, err
	}

	if dest != nil {
		if err := attributevalue.UnmarshalListOfMaps(result.Items, dest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal items: %w", err)
		}
	}

	cursor, err := EncodeCursor(result.LastEvaluatedKey, input.IndexName)
	if err != nil {
		return nil, err
	}

	return &Page{
		Items:            result.Items,
		LastEvaluatedKey: result.LastEvaluatedKey,
		NextCursor:       cursor,
		Count:            int(result.Count),
		ScannedCount:     int(result.ScannedCount),
		HasMore:          len(result.LastEvaluatedKey) > 0,
	}, nil
}

func (q *Query) setIndex(value any) *Query {
	switch v := value.(type) {
	case nil:
		return q.Index("")
	case string:
		return q.Index(v)
	case fmt.Stringer:
		return q.Index(v.String())
	default:
		q.recordBuilderError(customerrors.NewValidationError(IndexField, fmt.Errorf("index name must be a string, got %T", value)))
		return q
	}
}

func (q *Query) setOffset(value any) *Query {
	switch v := value.(type) {
	case nil:
		return q.StartAfter(nil)
	case map[string]any:
		return q.StartAfter(v)
	case map[string]types.AttributeValue:
		key := make(map[string]any, len(v))
		for name, av := range v {
			key[name] = av
		}
		return q.StartAfter(key)
	case string:
		return q.Cursor(v)
	default:
		q.recordBuilderError(customerrors.NewValidationError(OffsetField, fmt.Errorf("offset key must be a map, got %T", value)))
		return q
	}
}

func (q *Query) partitionField() string {
	keys, err := q.schema.ActiveKeySchema(q.indexName)
	if err != nil {
		return ""
	}
	for _, el := range keys {
		if el.KeyType == schema.Hash {
			return el.AttributeName
		}
	}
	return ""
}

// rebuild recompiles from scratch; errors are reported by the terminal call.
func (q *Query) rebuild() {
	q.compiled, q.compileErr = Compile(q.schema, &q.predicates, Options{
		IndexName:         q.indexName,
		Limit:             q.limit,
		Projection:        q.projection,
		ExclusiveStartKey: q.exclusiveStartKey,
		ConsistentRead:    q.consistentRead,
		ScanIndexForward:  q.scanIndexForward,
	})
}

func (q *Query) recordBuilderError(err error) {
	if err != nil && q.builderErr == nil {
		q.builderErr = err
	}
}

func (q *Query) checkBuilderError() error {
	return q.builderErr
}

// Eq matches values equal to v
func Eq(v any) core.Condition { return core.Condition{Operator: core.EQ, Operand: v} }

// Gt matches values greater than v
func Gt(v any) core.Condition { return core.Condition{Operator: core.GT, Operand: v} }

// Gte matches values greater than or equal to v
func Gte(v any) core.Condition { return core.Condition{Operator: core.GTE, Operand: v} }

// Lt matches values less than v
func Lt(v any) core.Condition { return core.Condition{Operator: core.LT, Operand: v} }

// Lte matches values less than or equal to v
func Lte(v any) core.Condition { return core.Condition{Operator: core.LTE, Operand: v} }

// BeginsWith matches string or binary values starting with prefix
func BeginsWith(prefix any) core.Condition {
	return core.Condition{Operator: core.BeginsWith, Operand: prefix}
}

// Between matches values in the inclusive range [lo, hi]
func Between(lo, hi any) core.Condition {
	return core.Condition{Operator: core.Between, Operand: []any{lo, hi}}
}
