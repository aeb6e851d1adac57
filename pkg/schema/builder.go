package schema

import (
	"fmt"

	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
)

// GlobalKey names one key attribute of a global secondary index
type GlobalKey struct {
	Name string
	Type AttributeType
}

// GlobalKeys is the independent key pair of a global secondary index
type GlobalKeys struct {
	Range *GlobalKey
	Hash  GlobalKey
}

// Builder accumulates definitions for one record type.
// The first failed definition is kept and returned by Build.
type Builder struct {
	err    error
	schema Schema
}

// NewBuilder starts a schema for the given table
func NewBuilder(tableName string) *Builder {
	return &Builder{schema: Schema{tableName: tableName}}
}

// DefineKey registers a key attribute. The first HASH call is the partition key
// and the first RANGE call is the sort key; calls may come in either order.
func (b *Builder) DefineKey(name string, typ AttributeType, role KeyType) *Builder {
	if b.err != nil {
		return b
	}
	if role != Hash && role != Range {
		b.recordErr("define key", fmt.Errorf("%w: key role %q", customerrors.ErrIncompleteKeySchema, role))
		return b
	}
	if existing := keyNamed(b.schema.keySchema, role); existing != "" {
		if existing != name {
			b.recordErr("define key", fmt.Errorf("%w: %s already defined as %s", customerrors.ErrDuplicateKey, role, existing))
		}
		return b
	}
	if !b.defineAttribute(name, typ) {
		return b
	}
	b.schema.keySchema = append(b.schema.keySchema, KeySchemaElement{AttributeName: name, KeyType: role})
	return b
}

// DefineLocalIndex adds an index that shares the table partition key and sorts on rangeAttr.
func (b *Builder) DefineLocalIndex(name, rangeAttr string, rangeType AttributeType, projection Projection) *Builder {
	if b.err != nil {
		return b
	}
	hash := keyNamed(b.schema.keySchema, Hash)
	if hash == "" {
		b.recordErr("define local index", fmt.Errorf("%w: local index %s needs a table HASH key", customerrors.ErrMissingPartitionKey, name))
		return b
	}
	if !b.checkIndex(name, projection) {
		return b
	}
	if !b.defineAttribute(rangeAttr, rangeType) {
		return b
	}

	b.schema.indexes = append(b.schema.indexes, index{
		kind: Local,
		def: IndexDefinition{
			Name: name,
			KeySchema: []KeySchemaElement{
				{AttributeName: hash, KeyType: Hash},
				{AttributeName: rangeAttr, KeyType: Range},
			},
			Projection: cloneProjection(projection),
		},
	})
	return b
}

// DefineGlobalIndex adds an index with its own partition and optional sort key.
func (b *Builder) DefineGlobalIndex(name string, keys GlobalKeys, projection Projection) *Builder {
	if b.err != nil {
		return b
	}
	if keys.Hash.Name == "" {
		b.recordErr("define global index", fmt.Errorf("%w: global index %s has no HASH key", customerrors.ErrIncompleteKeySchema, name))
		return b
	}
	if !b.checkIndex(name, projection) {
		return b
	}
	if !b.defineAttribute(keys.Hash.Name, keys.Hash.Type) {
		return b
	}

	keySchema := []KeySchemaElement{{AttributeName: keys.Hash.Name, KeyType: Hash}}
	if keys.Range != nil {
		if !b.defineAttribute(keys.Range.Name, keys.Range.Type) {
			return b
		}
		keySchema = append(keySchema, KeySchemaElement{AttributeName: keys.Range.Name, KeyType: Range})
	}

	b.schema.indexes = append(b.schema.indexes, index{
		kind: Global,
		def: IndexDefinition{
			Name:       name,
			KeySchema:  keySchema,
			Projection: cloneProjection(projection),
		},
	})
	return b
}

// Err returns the first definition error, if any
func (b *Builder) Err() error {
	return b.err
}

// Build returns an immutable snapshot of the definitions
func (b *Builder) Build() (*Schema, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := &Schema{
		tableName:  b.schema.tableName,
		attributes: append([]AttributeDefinition(nil), b.schema.attributes...),
		keySchema:  append([]KeySchemaElement(nil), b.schema.keySchema...),
		indexes:    make([]index, 0, len(b.schema.indexes)),
	}
	for _, idx := range b.schema.indexes {
		out.indexes = append(out.indexes, index{kind: idx.kind, def: cloneIndex(idx.def)})
	}
	return out, nil
}

// MustBuild is Build for package-level schema variables; it panics on error.
func (b *Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// defineAttribute registers (name, type) once; the same pair twice is a no-op
// and the same name with another type is an error.
func (b *Builder) defineAttribute(name string, typ AttributeType) bool {
	if name == "" {
		b.recordErr("define attribute", fmt.Errorf("%w: empty attribute name", customerrors.ErrIncompleteKeySchema))
		return false
	}
	switch typ {
	case String, Number, Binary:
	default:
		b.recordErr("define attribute", fmt.Errorf("%w: %q for %s", customerrors.ErrInvalidAttributeType, typ, name))
		return false
	}
	for _, attr := range b.schema.attributes {
		if attr.Name != name {
			continue
		}
		if attr.Type != typ {
			b.recordErr("define attribute", fmt.Errorf("%w: %s is already defined as %s, not %s",
				customerrors.ErrInvalidAttributeType, name, attr.Type, typ))
			return false
		}
		return true
	}
	b.schema.attributes = append(b.schema.attributes, AttributeDefinition{Name: name, Type: typ})
	return true
}

func (b *Builder) checkIndex(name string, projection Projection) bool {
	if name == "" {
		b.recordErr("define index", fmt.Errorf("%w: empty index name", customerrors.ErrIncompleteKeySchema))
		return false
	}
	for _, idx := range b.schema.indexes {
		if idx.def.Name == name {
			b.recordErr("define index", fmt.Errorf("%w: %s", customerrors.ErrDuplicateIndex, name))
			return false
		}
	}

	switch projection.Type {
	case ProjectAll, ProjectKeysOnly:
		if len(projection.NonKeyAttributes) > 0 {
			b.recordErr("define index", fmt.Errorf("%w: %s projection takes no attributes", customerrors.ErrInvalidProjection, projection.Type))
			return false
		}
	case ProjectInclude:
		if len(projection.NonKeyAttributes) == 0 {
			b.recordErr("define index", fmt.Errorf("%w: INCLUDE needs at least one attribute", customerrors.ErrInvalidProjection))
			return false
		}
	default:
		b.recordErr("define index", fmt.Errorf("%w: type %q", customerrors.ErrInvalidProjection, projection.Type))
		return false
	}
	return true
}

func (b *Builder) recordErr(op string, err error) {
	if b.err == nil {
		b.err = customerrors.NewSchemaError(op, b.schema.tableName, err)
	}
}

func cloneProjection(p Projection) Projection {
	out := Projection{Type: p.Type}
	if len(p.NonKeyAttributes) > 0 {
		out.NonKeyAttributes = append([]string(nil), p.NonKeyAttributes...)
	}
	return out
}

// All projects every attribute
func All() Projection { return Projection{Type: ProjectAll} }

// KeysOnly projects only key attributes
func KeysOnly() Projection { return Projection{Type: ProjectKeysOnly} }

// Include projects the key attributes plus the named non-key attributes
func Include(attrs ...string) Projection {
	return Projection{Type: ProjectInclude, NonKeyAttributes: attrs}
}
