package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
)

// WireAttributeDefinitions returns the attribute definitions as SDK values
func (s *Schema) WireAttributeDefinitions() []types.AttributeDefinition {
	out := make([]types.AttributeDefinition, 0, len(s.attributes))
	for _, attr := range s.attributes {
		out = append(out, types.AttributeDefinition{
			AttributeName: aws.String(attr.Name),
			AttributeType: types.ScalarAttributeType(attr.Type),
		})
	}
	return out
}

// WireKeySchema returns the table key schema as SDK values
func (s *Schema) WireKeySchema() []types.KeySchemaElement {
	return wireKeySchema(s.TableKeySchema())
}

// WireLocalIndexes returns the local secondary indexes as SDK values
func (s *Schema) WireLocalIndexes() []types.LocalSecondaryIndex {
	var out []types.LocalSecondaryIndex
	for _, def := range s.IndexesOf(Local) {
		out = append(out, types.LocalSecondaryIndex{
			IndexName:  aws.String(def.Name),
			KeySchema:  wireKeySchema(def.KeySchema),
			Projection: wireProjection(def.Projection),
		})
	}
	return out
}

// WireGlobalIndexes returns the global secondary indexes as SDK values
func (s *Schema) WireGlobalIndexes() []types.GlobalSecondaryIndex {
	var out []types.GlobalSecondaryIndex
	for _, def := range s.IndexesOf(Global) {
		out = append(out, types.GlobalSecondaryIndex{
			IndexName:  aws.String(def.Name),
			KeySchema:  wireKeySchema(def.KeySchema),
			Projection: wireProjection(def.Projection),
		})
	}
	return out
}

// Verify compares the schema against a live table description and reports
// every difference in key schema or index set as one ErrSchemaMismatch.
func (s *Schema) Verify(desc *types.TableDescription) error {
	if desc == nil {
		return customerrors.NewSchemaError("verify", s.tableName, fmt.Errorf("%w: no table description", customerrors.ErrSchemaMismatch))
	}

	var problems []string
	if got, want := describeKeySchema(desc.KeySchema), describeKeySchema(s.WireKeySchema()); got != want {
		problems = append(problems, fmt.Sprintf("table key schema is %s, want %s", got, want))
	}

	live := map[string]string{}
	for _, lsi := range desc.LocalSecondaryIndexes {
		live[aws.ToString(lsi.IndexName)] = "LOCAL " + describeKeySchema(lsi.KeySchema)
	}
	for _, gsi := range desc.GlobalSecondaryIndexes {
		live[aws.ToString(gsi.IndexName)] = "GLOBAL " + describeKeySchema(gsi.KeySchema)
	}

	for _, idx := range s.indexes {
		want := idx.kind.String() + " " + describeKeySchema(wireKeySchema(idx.def.KeySchema))
		got, ok := live[idx.def.Name]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("index %s is missing", idx.def.Name))
		case got != want:
			problems = append(problems, fmt.Sprintf("index %s is %s, want %s", idx.def.Name, got, want))
		}
		delete(live, idx.def.Name)
	}

	extra := make([]string, 0, len(live))
	for name := range live {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		problems = append(problems, fmt.Sprintf("index %s is not declared", name))
	}

	if len(problems) == 0 {
		return nil
	}
	return customerrors.NewSchemaError("verify", s.tableName,
		fmt.Errorf("%w: %s", customerrors.ErrSchemaMismatch, strings.Join(problems, "; ")))
}

func wireKeySchema(elements []KeySchemaElement) []types.KeySchemaElement {
	out := make([]types.KeySchemaElement, 0, len(elements))
	for _, el := range elements {
		out = append(out, types.KeySchemaElement{
			AttributeName: aws.String(el.AttributeName),
			KeyType:       types.KeyType(el.KeyType),
		})
	}
	return out
}

func wireProjection(p Projection) *types.Projection {
	out := &types.Projection{ProjectionType: types.ProjectionType(p.Type)}
	if p.Type == ProjectInclude {
		out.NonKeyAttributes = append([]string(nil), p.NonKeyAttributes...)
	}
	return out
}

func describeKeySchema(elements []types.KeySchemaElement) string {
	var hash, rng string
	for _, el := range elements {
		switch el.KeyType {
		case types.KeyTypeHash:
			hash = aws.ToString(el.AttributeName)
		case types.KeyTypeRange:
			rng = aws.ToString(el.AttributeName)
		}
	}
	if rng == "" {
		return "(" + hash + ")"
	}
	return "(" + hash + ", " + rng + ")"
}
