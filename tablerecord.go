// Package tablerecord maps Go record types onto DynamoDB tables and compiles
// fluent queries into DynamoDB Query requests.
//
// Import path:
//
//	import "github.com/theory-cloud/tablerecord"
//
// Implementation lives in `internal/recorddb` so the repo root stays minimal.
package tablerecord

import (
	"github.com/theory-cloud/tablerecord/internal/recorddb"
	"github.com/theory-cloud/tablerecord/pkg/interfaces"
	"github.com/theory-cloud/tablerecord/pkg/query"
	"github.com/theory-cloud/tablerecord/pkg/schema"
	"github.com/theory-cloud/tablerecord/pkg/session"
)

type (
	DB          = recorddb.DB
	Option      = recorddb.Option
	TimeToLiver = recorddb.TimeToLiver

	// Re-export types for convenience.
	Config = session.Config
	Query  = query.Query
	Page   = query.Page
	Schema = schema.Schema
)

// Re-export options and helpers for convenience.
var (
	WithLogger = recorddb.WithLogger
	WithNow    = recorddb.WithNow

	DefaultConfig = session.DefaultConfig
	LoadConfig    = session.LoadConfig

	NewSchema  = schema.NewBuilder
	LoadSchema = schema.LoadFile
)

// New creates a DB whose DynamoDB client is built on first use from config
func New(config session.Config, opts ...Option) (*DB, error) {
	return recorddb.New(config, opts...)
}

// NewWithClient creates a DB around an existing DynamoDB client
func NewWithClient(client interfaces.DynamoDBAPI, opts ...Option) *DB {
	return recorddb.NewWithClient(client, opts...)
}
