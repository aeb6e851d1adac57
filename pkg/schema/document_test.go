package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
)

const eventsDocument = `
table: events
keys:
  partition: {attribute: id, type: S}
  sort: {attribute: ts, type: number}
indexes:
  - name: by_kind
    type: LSI
    sort: {attribute: kind, type: S}
    projection: {type: KEYS_ONLY}
  - name: by_status
    type: GSI
    partition: {attribute: status, type: S}
    sort: {attribute: ts, type: N}
    projection: {type: include, fields: [title, owner]}
  - name: by_owner
    type: GSI
    partition: {attribute: owner, type: S}
`

func TestParseDocument(t *testing.T) {
	s, err := ParseDocument([]byte(eventsDocument))
	require.NoError(t, err)

	assert.Equal(t, "events", s.TableName())
	assert.Equal(t, "id", s.HashKey())
	assert.Equal(t, "ts", s.RangeKey())

	lsi, ok := s.IndexNamed("by_kind")
	require.True(t, ok)
	assert.Equal(t, "id", lsi.HashKey())
	assert.Equal(t, "kind", lsi.RangeKey())

	gsi, ok := s.IndexNamed("by_status")
	require.True(t, ok)
	assert.Equal(t, Include("title", "owner"), gsi.Projection)

	owner, ok := s.IndexNamed("by_owner")
	require.True(t, ok)
	assert.Equal(t, ProjectAll, owner.Projection.Type)

	assert.Equal(t, eventsSchema(t).AttributeDefinitions(), s.AttributeDefinitions())
}

func TestParseDocumentJSON(t *testing.T) {
	s, err := ParseDocument([]byte(`{"table":"users","keys":{"partition":{"attribute":"email","type":"S"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "email", s.HashKey())
	assert.Equal(t, "", s.RangeKey())
}

func TestParseDocumentErrors(t *testing.T) {
	tests := []struct {
		wantErr error
		name    string
		doc     string
	}{
		{
			name:    "missing table",
			doc:     "keys:\n  partition: {attribute: id, type: S}\n",
			wantErr: customerrors.ErrIncompleteKeySchema,
		},
		{
			name:    "missing partition key",
			doc:     "table: t\nkeys:\n  sort: {attribute: ts, type: N}\n",
			wantErr: customerrors.ErrIncompleteKeySchema,
		},
		{
			name:    "local index without sort",
			doc:     "table: t\nkeys:\n  partition: {attribute: id, type: S}\nindexes:\n  - name: x\n    type: LSI\n",
			wantErr: customerrors.ErrIncompleteKeySchema,
		},
		{
			name:    "local index with foreign partition",
			doc:     "table: t\nkeys:\n  partition: {attribute: id, type: S}\nindexes:\n  - name: x\n    type: LSI\n    partition: {attribute: other, type: S}\n    sort: {attribute: k, type: S}\n",
			wantErr: customerrors.ErrDuplicateKey,
		},
		{
			name:    "unknown index type",
			doc:     "table: t\nkeys:\n  partition: {attribute: id, type: S}\nindexes:\n  - name: x\n    type: FULLTEXT\n",
			wantErr: customerrors.ErrIncompleteKeySchema,
		},
		{
			name:    "bad attribute type",
			doc:     "table: t\nkeys:\n  partition: {attribute: id, type: BOOL}\n",
			wantErr: customerrors.ErrInvalidAttributeType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, customerrors.IsSchemaError(err))
			assert.True(t, errors.Is(err, tt.wantErr))
		})
	}

	_, err := ParseDocument([]byte("table: t\nunknown_field: 1\n"))
	require.Error(t, err)
	assert.False(t, customerrors.IsSchemaError(err))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	require.NoError(t, os.WriteFile(path, []byte(eventsDocument), 0o600))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "events", s.TableName())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
