package schema

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
)

// Document is the declarative (YAML or JSON) form of a schema.
//
//	table: events
//	keys:
//	  partition: {attribute: id, type: S}
//	  sort: {attribute: ts, type: N}
//	indexes:
//	  - name: by_status
//	    type: GSI
//	    partition: {attribute: status, type: S}
//	    projection: {type: INCLUDE, fields: [title]}
type Document struct {
	Table   string          `yaml:"table" json:"table"`
	Keys    DocumentKeys    `yaml:"keys" json:"keys"`
	Indexes []DocumentIndex `yaml:"indexes" json:"indexes"`
}

// DocumentKeys names the table partition key and optional sort key
type DocumentKeys struct {
	Sort      *DocumentKey `yaml:"sort" json:"sort"`
	Partition DocumentKey  `yaml:"partition" json:"partition"`
}

// DocumentKey is one key attribute; type accepts S, N, B or string, number, binary
type DocumentKey struct {
	Attribute string `yaml:"attribute" json:"attribute"`
	Type      string `yaml:"type" json:"type"`
}

// DocumentIndex declares a local (LSI) or global (GSI) secondary index.
// A local index takes its partition key from the table.
type DocumentIndex struct {
	Sort       *DocumentKey       `yaml:"sort" json:"sort"`
	Name       string             `yaml:"name" json:"name"`
	Type       string             `yaml:"type" json:"type"` // LSI | GSI
	Partition  DocumentKey        `yaml:"partition" json:"partition"`
	Projection DocumentProjection `yaml:"projection" json:"projection"`
}

// DocumentProjection is the index projection; an empty type means ALL
type DocumentProjection struct {
	Type   string   `yaml:"type" json:"type"` // ALL | KEYS_ONLY | INCLUDE
	Fields []string `yaml:"fields" json:"fields"`
}

// ParseDocument decodes a schema document and builds it
func ParseDocument(data []byte) (*Schema, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse schema document: %w", err)
	}
	return doc.Build()
}

// LoadFile reads and parses a schema document from disk
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the caller at start-up
	if err != nil {
		return nil, fmt.Errorf("read schema document: %w", err)
	}
	return ParseDocument(data)
}

// Build turns the document into a Schema using the same rules as Builder
func (d Document) Build() (*Schema, error) {
	if d.Table == "" {
		return nil, customerrors.NewSchemaError("parse document", "", fmt.Errorf("%w: table name is required", customerrors.ErrIncompleteKeySchema))
	}

	b := NewBuilder(d.Table)
	b.DefineKey(d.Keys.Partition.Attribute, attributeTypeOf(d.Keys.Partition.Type), Hash)
	if d.Keys.Sort != nil {
		b.DefineKey(d.Keys.Sort.Attribute, attributeTypeOf(d.Keys.Sort.Type), Range)
	}

	for _, idx := range d.Indexes {
		projection := Projection{
			Type:             ProjectionType(strings.ToUpper(idx.Projection.Type)),
			NonKeyAttributes: idx.Projection.Fields,
		}
		if projection.Type == "" {
			projection.Type = ProjectAll
		}

		switch strings.ToUpper(idx.Type) {
		case "LSI", "LOCAL":
			if idx.Sort == nil {
				return nil, customerrors.NewSchemaError("parse document", d.Table,
					fmt.Errorf("%w: local index %s needs a sort key", customerrors.ErrIncompleteKeySchema, idx.Name))
			}
			if idx.Partition.Attribute != "" && idx.Partition.Attribute != d.Keys.Partition.Attribute {
				return nil, customerrors.NewSchemaError("parse document", d.Table,
					fmt.Errorf("%w: local index %s must use partition key %s", customerrors.ErrDuplicateKey, idx.Name, d.Keys.Partition.Attribute))
			}
			b.DefineLocalIndex(idx.Name, idx.Sort.Attribute, attributeTypeOf(idx.Sort.Type), projection)
		case "GSI", "GLOBAL":
			keys := GlobalKeys{Hash: GlobalKey{Name: idx.Partition.Attribute, Type: attributeTypeOf(idx.Partition.Type)}}
			if idx.Sort != nil {
				keys.Range = &GlobalKey{Name: idx.Sort.Attribute, Type: attributeTypeOf(idx.Sort.Type)}
			}
			b.DefineGlobalIndex(idx.Name, keys, projection)
		default:
			return nil, customerrors.NewSchemaError("parse document", d.Table,
				fmt.Errorf("%w: index %s has type %q, want LSI or GSI", customerrors.ErrIncompleteKeySchema, idx.Name, idx.Type))
		}
	}

	s, err := b.Build()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func attributeTypeOf(raw string) AttributeType {
	switch strings.ToLower(raw) {
	case "s", "string":
		return String
	case "n", "number":
		return Number
	case "b", "binary":
		return Binary
	default:
		return AttributeType(raw)
	}
}
