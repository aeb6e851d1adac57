// Package schema describes the key schema and secondary indexes of a record type.
//
// A Schema is assembled once with a Builder (or parsed from a document) and is
// read-only afterwards, so it can be shared across goroutines.
package schema

import (
	"fmt"

	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
)

// AttributeType is the scalar type of a key attribute
type AttributeType string

// Attribute types allowed for key attributes
const (
	String AttributeType = "S"
	Number AttributeType = "N"
	Binary AttributeType = "B"
)

// KeyType is the role an attribute plays in a key schema
type KeyType string

// Key roles
const (
	Hash  KeyType = "HASH"
	Range KeyType = "RANGE"
)

// IndexKind distinguishes local from global secondary indexes
type IndexKind int

// Index kinds
const (
	Local IndexKind = iota
	Global
)

func (k IndexKind) String() string {
	switch k {
	case Local:
		return "LOCAL"
	case Global:
		return "GLOBAL"
	default:
		return fmt.Sprintf("IndexKind(%d)", int(k))
	}
}

// ProjectionType selects which attributes an index copies
type ProjectionType string

// Projection types
const (
	ProjectAll      ProjectionType = "ALL"
	ProjectKeysOnly ProjectionType = "KEYS_ONLY"
	ProjectInclude  ProjectionType = "INCLUDE"
)

// AttributeDefinition declares the type of a key attribute
type AttributeDefinition struct {
	Name string
	Type AttributeType
}

// KeySchemaElement names an attribute and its key role
type KeySchemaElement struct {
	AttributeName string
	KeyType       KeyType
}

// Projection selects the attributes a secondary index copies
type Projection struct {
	Type             ProjectionType
	NonKeyAttributes []string
}

// IndexDefinition is the wire-facing view of a secondary index.
type IndexDefinition struct {
	Name       string
	KeySchema  []KeySchemaElement
	Projection Projection
}

// HashKey returns the HASH attribute of the index
func (d IndexDefinition) HashKey() string {
	return keyNamed(d.KeySchema, Hash)
}

// RangeKey returns the RANGE attribute of the index, or "" when it has none
func (d IndexDefinition) RangeKey() string {
	return keyNamed(d.KeySchema, Range)
}

type index struct {
	def  IndexDefinition
	kind IndexKind
}

// Schema is the static description of one record type
type Schema struct {
	tableName  string
	attributes []AttributeDefinition
	keySchema  []KeySchemaElement
	indexes    []index
}

// TableName returns the table the record type is stored in
func (s *Schema) TableName() string {
	return s.tableName
}

// TableKeySchema returns the primary key schema, HASH first
func (s *Schema) TableKeySchema() []KeySchemaElement {
	out := make([]KeySchemaElement, 0, len(s.keySchema))
	if h := s.HashKey(); h != "" {
		out = append(out, KeySchemaElement{AttributeName: h, KeyType: Hash})
	}
	if r := s.RangeKey(); r != "" {
		out = append(out, KeySchemaElement{AttributeName: r, KeyType: Range})
	}
	return out
}

// HashKey returns the partition key attribute of the table
func (s *Schema) HashKey() string {
	return keyNamed(s.keySchema, Hash)
}

// RangeKey returns the sort key attribute of the table, or ""
func (s *Schema) RangeKey() string {
	return keyNamed(s.keySchema, Range)
}

// AttributeDefinitions returns every registered key attribute in definition order
func (s *Schema) AttributeDefinitions() []AttributeDefinition {
	return append([]AttributeDefinition(nil), s.attributes...)
}

// AttributeType returns the declared type of a key attribute
func (s *Schema) AttributeType(name string) (AttributeType, bool) {
	for _, attr := range s.attributes {
		if attr.Name == name {
			return attr.Type, true
		}
	}
	return "", false
}

// IndexNamed looks up a secondary index by name
func (s *Schema) IndexNamed(name string) (IndexDefinition, bool) {
	for _, idx := range s.indexes {
		if idx.def.Name == name {
			return cloneIndex(idx.def), true
		}
	}
	return IndexDefinition{}, false
}

// IndexKindOf reports whether the named index is local or global
func (s *Schema) IndexKindOf(name string) (IndexKind, bool) {
	for _, idx := range s.indexes {
		if idx.def.Name == name {
			return idx.kind, true
		}
	}
	return 0, false
}

// IndexesOf returns the indexes of one kind in definition order, without the kind tag
func (s *Schema) IndexesOf(kind IndexKind) []IndexDefinition {
	var out []IndexDefinition
	for _, idx := range s.indexes {
		if idx.kind == kind {
			out = append(out, cloneIndex(idx.def))
		}
	}
	return out
}

// AllIndexes is an alias of IndexesOf
func (s *Schema) AllIndexes(kind IndexKind) []IndexDefinition {
	return s.IndexesOf(kind)
}

// LocalIndexes returns the local secondary indexes
func (s *Schema) LocalIndexes() []IndexDefinition {
	return s.IndexesOf(Local)
}

// GlobalIndexes returns the global secondary indexes
func (s *Schema) GlobalIndexes() []IndexDefinition {
	return s.IndexesOf(Global)
}

// ActiveKeySchema resolves the key schema used for classification: the table's
// when indexName is empty, otherwise the named index's.
func (s *Schema) ActiveKeySchema(indexName string) ([]KeySchemaElement, error) {
	if indexName == "" {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		return s.TableKeySchema(), nil
	}

	def, ok := s.IndexNamed(indexName)
	if !ok {
		return nil, customerrors.NewSchemaError("resolve index", s.tableName,
			fmt.Errorf("%w: %s", customerrors.ErrIndexNotFound, indexName))
	}
	if def.HashKey() == "" {
		return nil, customerrors.NewSchemaError("resolve index", s.tableName,
			fmt.Errorf("%w: index %s has no HASH element", customerrors.ErrIncompleteKeySchema, indexName))
	}
	return def.KeySchema, nil
}

// Validate reports an incomplete primary key schema
func (s *Schema) Validate() error {
	if s.HashKey() == "" {
		return customerrors.NewSchemaError("validate", s.tableName,
			fmt.Errorf("%w: no HASH element", customerrors.ErrIncompleteKeySchema))
	}
	return nil
}

// KeyAttributes lists the primary key attribute names, HASH first
func (s *Schema) KeyAttributes() []string {
	keys := []string{}
	if h := s.HashKey(); h != "" {
		keys = append(keys, h)
	}
	if r := s.RangeKey(); r != "" {
		keys = append(keys, r)
	}
	return keys
}

func keyNamed(elements []KeySchemaElement, role KeyType) string {
	for _, el := range elements {
		if el.KeyType == role {
			return el.AttributeName
		}
	}
	return ""
}

func cloneIndex(def IndexDefinition) IndexDefinition {
	out := IndexDefinition{
		Name:      def.Name,
		KeySchema: append([]KeySchemaElement(nil), def.KeySchema...),
		Projection: Projection{
			Type: def.Projection.Type,
		},
	}
	if len(def.Projection.NonKeyAttributes) > 0 {
		out.Projection.NonKeyAttributes = append([]string(nil), def.Projection.NonKeyAttributes...)
	}
	return out
}
