// Package model maps record types to their schemas
package model

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/theory-cloud/tablerecord/pkg/errors"
	"github.com/theory-cloud/tablerecord/pkg/schema"
)

// Registry maps Go record types to schemas. It is filled at start-up and only
// read afterwards; the lock makes late registration safe anyway.
type Registry struct {
	models map[reflect.Type]*Metadata
	tables map[string]*Metadata
	mu     sync.RWMutex
}

// Metadata is what the registry knows about one record type
type Metadata struct {
	Type   reflect.Type
	Schema *schema.Schema
}

// Name returns the record type name used in error messages
func (m *Metadata) Name() string {
	return m.Type.Name()
}

// NewRegistry creates a new model registry
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[reflect.Type]*Metadata),
		tables: make(map[string]*Metadata),
	}
}

// Register binds the record's type to s. The schema must be valid. Registering
// the same type again with the same schema is a no-op.
func (r *Registry) Register(record any, s *schema.Schema) error {
	modelType, err := structType(record)
	if err != nil {
		return err
	}
	if s == nil {
		return errors.NewSchemaError("register", modelType.Name(), fmt.Errorf("%w: no schema", errors.ErrIncompleteKeySchema))
	}
	if err := s.Validate(); err != nil {
		return errors.NewSchemaError("register", modelType.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.models[modelType]; exists {
		if existing.Schema == s {
			return nil
		}
		return errors.NewSchemaError("register", modelType.Name(),
			fmt.Errorf("%w: already registered against table %s", errors.ErrSchemaMismatch, existing.Schema.TableName()))
	}

	metadata := &Metadata{Type: modelType, Schema: s}
	r.models[modelType] = metadata
	r.tables[s.TableName()] = metadata
	return nil
}

// GetMetadata retrieves metadata for a record or record type
func (r *Registry) GetMetadata(record any) (*Metadata, error) {
	modelType, err := structType(record)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata, exists := r.models[modelType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", errors.ErrModelNotRegistered, modelType.Name())
	}
	return metadata, nil
}

// Lookup returns the schema registered for the record's type
func (r *Registry) Lookup(record any) (*schema.Schema, error) {
	metadata, err := r.GetMetadata(record)
	if err != nil {
		return nil, err
	}
	return metadata.Schema, nil
}

// GetMetadataByTable retrieves metadata by table name
func (r *Registry) GetMetadataByTable(tableName string) (*Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata, exists := r.tables[tableName]
	if !exists {
		return nil, fmt.Errorf("%w: no model for table %s", errors.ErrModelNotRegistered, tableName)
	}
	return metadata, nil
}

// Tables returns the registered table names, sorted
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// structType resolves record to its struct type. Pointers, slices and
// pointers to slices (the usual query destinations) all resolve to the element.
func structType(record any) (reflect.Type, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: record is nil", errors.ErrInvalidRecord)
	}

	t, ok := record.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(record)
	}
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: record must be a struct, got %s", errors.ErrInvalidRecord, t.Kind())
	}
	return t, nil
}
