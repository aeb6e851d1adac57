// Package recorddb binds record types to schemas and runs their lifecycle
// (find, create, save, update, destroy) through Table Operations.
package recorddb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
	"github.com/theory-cloud/tablerecord/pkg/interfaces"
	"github.com/theory-cloud/tablerecord/pkg/model"
	"github.com/theory-cloud/tablerecord/pkg/query"
	"github.com/theory-cloud/tablerecord/pkg/schema"
	"github.com/theory-cloud/tablerecord/pkg/session"
	"github.com/theory-cloud/tablerecord/pkg/table"
)

// Timestamp attributes written on every save
const (
	CreatedAtAttribute = "created_at"
	UpdatedAtAttribute = "updated_at"
)

// TimeToLiver is implemented by records that expire. TimeToLive returns the
// attribute holding the expiry and the expiry time; an empty attribute or a
// zero time skips it.
type TimeToLiver interface {
	TimeToLive(now time.Time) (attribute string, expiresAt time.Time)
}

// DB is the record lifecycle entry point
type DB struct {
	session  *session.Session
	ops      *table.Table
	registry *model.Registry
	validate *validator.Validate
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures a DB
type Option func(*DB)

// WithLogger sets the logger for the DB and its Table Operations
func WithLogger(logger zerolog.Logger) Option {
	return func(db *DB) {
		db.logger = logger
	}
}

// WithNow overrides the clock used for timestamps and expiry
func WithNow(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// New creates a DB whose client is built lazily from cfg
func New(cfg session.Config, opts ...Option) (*DB, error) {
	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	db := newDB(sess.Logger(), opts)
	db.session = sess
	db.ops = table.New(sess, table.WithLogger(db.logger))
	return db, nil
}

// NewWithClient creates a DB around an existing client
func NewWithClient(client interfaces.DynamoDBAPI, opts ...Option) *DB {
	db := newDB(zerolog.Nop(), opts)
	db.ops = table.NewWithClient(client, table.WithLogger(db.logger))
	return db
}

func newDB(logger zerolog.Logger, opts []Option) *DB {
	db := &DB{
		registry: model.NewRegistry(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Session returns the session behind New, or nil for NewWithClient
func (db *DB) Session() *session.Session {
	return db.session
}

// Table returns the Table Operations used by this DB
func (db *DB) Table() *table.Table {
	return db.ops
}

// Register binds the record's type to s
func (db *DB) Register(record any, s *schema.Schema) error {
	return db.registry.Register(record, s)
}

// RegisterFile binds the record's type to the schema document at path
func (db *DB) RegisterFile(record any, path string) error {
	s, err := schema.LoadFile(path)
	if err != nil {
		return err
	}
	return db.registry.Register(record, s)
}

// RegisterValidation adds a custom validator tag used when records are validated
func (db *DB) RegisterValidation(tag string, fn validator.Func) error {
	if err := db.validate.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("failed to register validation %q: %w", tag, err)
	}
	return nil
}

// Schema returns the schema registered for the record's type
func (db *DB) Schema(record any) (*schema.Schema, error) {
	return db.registry.Lookup(record)
}

// Query starts a query against the record's table. An unregistered record
// type makes every terminal call fail.
func (db *DB) Query(record any) *query.Query {
	s, err := db.registry.Lookup(record)
	if err != nil {
		return query.Errored(err)
	}
	return query.New(s, db.ops)
}

// Find loads the item with the given key into dest. A missing item, or a
// missing table, yields an error matching ErrItemNotFound.
func (db *DB) Find(ctx context.Context, dest any, hash any, rng ...any) error {
	metadata, err := db.registry.GetMetadata(dest)
	if err != nil {
		return err
	}

	key, err := keyFromValues(metadata.Schema, hash, rng)
	if err != nil {
		return err
	}

	item, err := db.ops.GetItem(ctx, metadata.Schema.TableName(), key, false)
	if err != nil {
		return customerrors.NewError("find", metadata.Name(), err)
	}
	if err := attributevalue.UnmarshalMap(item, dest); err != nil {
		return customerrors.NewError("find", metadata.Name(), fmt.Errorf("failed to unmarshal item: %w", err))
	}
	return nil
}

// FindOrInitialize behaves like Find, but on a miss fills only the key
// attributes of dest and reports found as false.
func (db *DB) FindOrInitialize(ctx context.Context, dest any, hash any, rng ...any) (found bool, err error) {
	err = db.Find(ctx, dest, hash, rng...)
	if err == nil {
		return true, nil
	}
	if !customerrors.IsNotFound(err) {
		return false, err
	}

	metadata, lookupErr := db.registry.GetMetadata(dest)
	if lookupErr != nil {
		return false, lookupErr
	}
	key, keyErr := keyFromValues(metadata.Schema, hash, rng)
	if keyErr != nil {
		return false, keyErr
	}
	if err := attributevalue.UnmarshalMap(key, dest); err != nil {
		return false, fmt.Errorf("failed to initialize record: %w", err)
	}
	return false, nil
}

// Create validates and timestamps record, then writes it only if no item with
// the same key exists.
func (db *DB) Create(ctx context.Context, record any) error {
	return db.write(ctx, "create", record, nil, true)
}

// Save validates and timestamps record, then writes it, replacing any existing item
func (db *DB) Save(ctx context.Context, record any) error {
	return db.write(ctx, "save", record, nil, false)
}

// Update merges attrs into record and saves it. Attributes without a matching
// record field are still written.
func (db *DB) Update(ctx context.Context, record any, attrs map[string]any) error {
	extra := make(map[string]types.AttributeValue, len(attrs))
	for name, value := range attrs {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return customerrors.NewValidationError(name, err)
		}
		extra[name] = av
	}
	return db.write(ctx, "update", record, extra, false)
}

// Destroy deletes the item identified by the record's key attributes
func (db *DB) Destroy(ctx context.Context, record any) error {
	metadata, err := db.registry.GetMetadata(record)
	if err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return customerrors.NewError("destroy", metadata.Name(), fmt.Errorf("failed to marshal record: %w", err))
	}
	key, err := keyFromItem(metadata.Schema, item)
	if err != nil {
		return err
	}

	if err := db.ops.DeleteItem(ctx, metadata.Schema.TableName(), key); err != nil {
		return customerrors.NewError("destroy", metadata.Name(), err)
	}
	return nil
}

// DescribeTable returns the live description of the record's table
func (db *DB) DescribeTable(ctx context.Context, record any) (*types.TableDescription, error) {
	s, err := db.registry.Lookup(record)
	if err != nil {
		return nil, err
	}
	return db.ops.DescribeTable(ctx, s.TableName())
}

// ListTables returns every table visible to the client
func (db *DB) ListTables(ctx context.Context) ([]string, error) {
	return db.ops.ListTables(ctx)
}

// Verify compares the registered schema of the record's type with the live table
func (db *DB) Verify(ctx context.Context, record any) error {
	s, err := db.registry.Lookup(record)
	if err != nil {
		return err
	}
	desc, err := db.ops.DescribeTable(ctx, s.TableName())
	if err != nil {
		return err
	}
	return s.Verify(desc)
}

func (db *DB) write(ctx context.Context, op string, record any, extra map[string]types.AttributeValue, ifNotExists bool) error {
	metadata, err := db.registry.GetMetadata(record)
	if err != nil {
		return err
	}
	s := metadata.Schema

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return customerrors.NewError(op, metadata.Name(), fmt.Errorf("failed to marshal record: %w", err))
	}
	for name, av := range extra {
		item[name] = av
	}
	if len(extra) > 0 {
		if err := attributevalue.UnmarshalMap(item, record); err != nil {
			return customerrors.NewError(op, metadata.Name(), fmt.Errorf("failed to merge attributes: %w", err))
		}
	}

	if err := db.validateRecord(s, record, item); err != nil {
		return err
	}

	now := db.now().UTC()
	stamp(item, now, ifNotExists)
	if ttl, ok := record.(TimeToLiver); ok {
		if attribute, expiresAt := ttl.TimeToLive(now); attribute != "" && !expiresAt.IsZero() {
			item[attribute] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix(), 10)}
		}
	}

	var putOpts []table.PutOption
	if ifNotExists {
		putOpts = append(putOpts, table.IfNotExists(s.HashKey()))
	}

	db.logger.Debug().
		Str("op", op).
		Str("model", metadata.Name()).
		Str("table", s.TableName()).
		Msg("record write")

	if err := db.ops.PutItem(ctx, s.TableName(), item, putOpts...); err != nil {
		return customerrors.NewError(op, metadata.Name(), err)
	}

	if err := attributevalue.UnmarshalMap(item, record); err != nil {
		return customerrors.NewError(op, metadata.Name(), fmt.Errorf("failed to refresh record: %w", err))
	}
	return nil
}

func (db *DB) validateRecord(s *schema.Schema, record any, item map[string]types.AttributeValue) error {
	if _, err := keyFromItem(s, item); err != nil {
		return err
	}

	if err := db.validate.Struct(record); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return customerrors.NewValidationError("record", fmt.Errorf("%w: %v", customerrors.ErrInvalidRecord, err))
		}
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return customerrors.NewValidationError(fieldErrs[0].Field(), fmt.Errorf("%w: %w", customerrors.ErrInvalidRecord, err))
		}
		return customerrors.NewValidationError("record", fmt.Errorf("%w: %w", customerrors.ErrInvalidRecord, err))
	}
	return nil
}

// stamp sets updated_at, and created_at when creating or when the record has none yet
func stamp(item map[string]types.AttributeValue, now time.Time, creating bool) {
	ts := &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)}
	item[UpdatedAtAttribute] = ts
	if creating || !hasTimestamp(item[CreatedAtAttribute]) {
		item[CreatedAtAttribute] = ts
	}
}

func hasTimestamp(av types.AttributeValue) bool {
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok || s.Value == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339Nano, s.Value)
	return err != nil || !t.IsZero()
}
