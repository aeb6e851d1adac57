// Package table executes single-item calls and compiled queries against DynamoDB
package table

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/theory-cloud/tablerecord/pkg/core"
	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
	"github.com/theory-cloud/tablerecord/pkg/interfaces"
)

// ClientProvider hands out the DynamoDB client; *session.Session implements it
type ClientProvider interface {
	Client(ctx context.Context) (interfaces.DynamoDBAPI, error)
}

type staticProvider struct {
	client interfaces.DynamoDBAPI
}

func (p staticProvider) Client(context.Context) (interfaces.DynamoDBAPI, error) {
	if p.client == nil {
		return nil, errors.New("DynamoDB client is nil")
	}
	return p.client, nil
}

// Table implements core.TableOperations plus single-item and table calls
type Table struct {
	provider ClientProvider
	logger   zerolog.Logger
}

// Option configures a Table
type Option func(*Table)

// WithLogger sets the logger used for per-call debug lines
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Table) {
		t.logger = logger
	}
}

// New creates Table Operations backed by provider
func New(provider ClientProvider, opts ...Option) *Table {
	t := &Table{provider: provider, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewWithClient creates Table Operations around an existing client
func NewWithClient(client interfaces.DynamoDBAPI, opts ...Option) *Table {
	return New(staticProvider{client: client}, opts...)
}

var _ core.TableOperations = (*Table)(nil)

// GetItem reads one item by its full key. A missing item or a missing table
// yields ErrItemNotFound.
func (t *Table) GetItem(ctx context.Context, tableName string, key map[string]types.AttributeValue, consistent bool) (map[string]types.AttributeValue, error) {
	if len(key) == 0 {
		return nil, customerrors.NewValidationError("key", errors.New("key cannot be empty"))
	}
	client, err := t.client(ctx)
	if err != nil {
		return nil, err
	}

	log := t.callLogger("GetItem", tableName)
	start := time.Now()
	output, err := client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(tableName),
		Key:            key,
		ConsistentRead: aws.Bool(consistent),
	})
	log.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("dynamodb call")

	if err != nil {
		if customerrors.IsResourceNotFound(err) {
			return nil, fmt.Errorf("%w: %w", customerrors.ErrItemNotFound, err)
		}
		return nil, fmt.Errorf("failed to execute get item: %w", err)
	}
	if len(output.Item) == 0 {
		return nil, customerrors.ErrItemNotFound
	}
	return output.Item, nil
}

// PutOption adjusts a PutItem call
type PutOption func(*putConfig)

type putConfig struct {
	condition *expression.ConditionBuilder
}

// IfNotExists makes the put fail with ErrConditionFailed when an item with the
// same key already exists
func IfNotExists(hashKey string) PutOption {
	return func(c *putConfig) {
		cond := expression.AttributeNotExists(expression.Name(hashKey))
		c.condition = &cond
	}
}

// PutItem writes item, replacing any existing item with the same key unless IfNotExists is given
func (t *Table) PutItem(ctx context.Context, tableName string, item map[string]types.AttributeValue, opts ...PutOption) error {
	if len(item) == 0 {
		return customerrors.NewValidationError("item", errors.New("item cannot be empty"))
	}

	var cfg putConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      item,
	}
	if cfg.condition != nil {
		expr, err := expression.NewBuilder().WithCondition(*cfg.condition).Build()
		if err != nil {
			return fmt.Errorf("failed to build put condition: %w", err)
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		if values := expr.Values(); len(values) > 0 {
			input.ExpressionAttributeValues = values
		}
	}

	client, err := t.client(ctx)
	if err != nil {
		return err
	}

	log := t.callLogger("PutItem", tableName)
	start := time.Now()
	_, err = client.PutItem(ctx, input)
	log.Debug().Err(err).Bool("conditional", cfg.condition != nil).Dur("elapsed", time.Since(start)).Msg("dynamodb call")

	if err != nil {
		if customerrors.IsConditionFailed(err) {
			return fmt.Errorf("%w: %w", customerrors.ErrConditionFailed, err)
		}
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

// DeleteItem removes the item with the given key; deleting a missing item is not an error
func (t *Table) DeleteItem(ctx context.Context, tableName string, key map[string]types.AttributeValue) error {
	if len(key) == 0 {
		return customerrors.NewValidationError("key", errors.New("key cannot be empty"))
	}
	client, err := t.client(ctx)
	if err != nil {
		return err
	}

	log := t.callLogger("DeleteItem", tableName)
	start := time.Now()
	_, err = client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(tableName),
		Key:       key,
	})
	log.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("dynamodb call")

	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// Query sends one compiled request and returns one page. Store errors are
// returned exactly as the client produced them.
func (t *Table) Query(ctx context.Context, input *core.CompiledQuery) (*core.QueryResult, error) {
	if input == nil {
		return nil, customerrors.NewValidationError("request", errors.New("compiled query cannot be nil"))
	}
	if input.KeyConditionExpression == "" {
		return nil, customerrors.NewValidationError("key_condition_expression",
			fmt.Errorf("%w: query on %s has no key condition", customerrors.ErrMissingPartitionKey, input.TableName))
	}
	client, err := t.client(ctx)
	if err != nil {
		return nil, err
	}

	log := t.callLogger("Query", input.TableName)
	start := time.Now()
	output, err := client.Query(ctx, input.QueryInput())
	if err != nil {
		log.Debug().Err(err).Str("index", input.IndexName).Dur("elapsed", time.Since(start)).Msg("dynamodb call")
		return nil, err
	}
	log.Debug().
		Str("index", input.IndexName).
		Int32("count", output.Count).
		Int32("scanned", output.ScannedCount).
		Bool("has_more", len(output.LastEvaluatedKey) > 0).
		Dur("elapsed", time.Since(start)).
		Msg("dynamodb call")

	return &core.QueryResult{
		Items:            output.Items,
		LastEvaluatedKey: output.LastEvaluatedKey,
		Count:            output.Count,
		ScannedCount:     output.ScannedCount,
	}, nil
}

// DescribeTable returns the live description of tableName
func (t *Table) DescribeTable(ctx context.Context, tableName string) (*types.TableDescription, error) {
	client, err := t.client(ctx)
	if err != nil {
		return nil, err
	}

	log := t.callLogger("DescribeTable", tableName)
	output, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	log.Debug().Err(err).Msg("dynamodb call")
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", tableName, err)
	}
	if output.Table == nil {
		return nil, fmt.Errorf("describe table %s returned no description", tableName)
	}
	return output.Table, nil
}

// ListTables returns every table name, following pagination
func (t *Table) ListTables(ctx context.Context) ([]string, error) {
	client, err := t.client(ctx)
	if err != nil {
		return nil, err
	}

	log := t.callLogger("ListTables", "")
	var names []string
	paginator := dynamodb.NewListTablesPaginator(client, &dynamodb.ListTablesInput{})
	for pages := 0; paginator.HasMorePages(); pages++ {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			log.Debug().Err(err).Int("pages", pages).Msg("dynamodb call")
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
		names = append(names, page.TableNames...)
	}
	log.Debug().Int("tables", len(names)).Msg("dynamodb call")
	return names, nil
}

func (t *Table) client(ctx context.Context) (interfaces.DynamoDBAPI, error) {
	if t.provider == nil {
		return nil, errors.New("table operations have no client provider")
	}
	return t.provider.Client(ctx)
}

func (t *Table) callLogger(op, tableName string) zerolog.Logger {
	return t.logger.With().
		Str("request_id", uuid.NewString()).
		Str("op", op).
		Str("table", tableName).
		Logger()
}
