package recorddb_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/tablerecord/internal/recorddb"
	customerrors "github.com/theory-cloud/tablerecord/pkg/errors"
	"github.com/theory-cloud/tablerecord/pkg/mocks"
	"github.com/theory-cloud/tablerecord/pkg/query"
	"github.com/theory-cloud/tablerecord/pkg/schema"
	"github.com/theory-cloud/tablerecord/pkg/session"
)

type Event struct {
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
	ID        string    `dynamodbav:"id"`
	Kind      string    `dynamodbav:"kind,omitempty" validate:"omitempty,oneof=click view"`
	Status    string    `dynamodbav:"status,omitempty"`
	TS        int64     `dynamodbav:"ts"`
}

type Token struct {
	ID        string `dynamodbav:"id"`
	CreatedAt string `dynamodbav:"created_at,omitempty"`
	UpdatedAt string `dynamodbav:"updated_at,omitempty"`
	ExpiresAt int64  `dynamodbav:"expires_at,omitempty"`
}

func (t *Token) TimeToLive(now time.Time) (string, time.Time) {
	return "expires_at", now.Add(time.Hour)
}

type Unregistered struct {
	ID string `dynamodbav:"id"`
}

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func eventsSchema() *schema.Schema {
	return schema.NewBuilder("events").
		DefineKey("id", schema.String, schema.Hash).
		DefineKey("ts", schema.Number, schema.Range).
		DefineGlobalIndex("by_status", schema.GlobalKeys{Hash: schema.GlobalKey{Name: "status", Type: schema.String}}, schema.KeysOnly()).
		MustBuild()
}

func tokensSchema() *schema.Schema {
	return schema.NewBuilder("tokens").
		DefineKey("id", schema.String, schema.Hash).
		MustBuild()
}

func newDB(t *testing.T) (*recorddb.DB, *mocks.MockDynamoDBClient) {
	t.Helper()
	client := new(mocks.MockDynamoDBClient)
	db := recorddb.NewWithClient(client, recorddb.WithNow(func() time.Time { return fixedNow }))
	require.NoError(t, db.Register(&Event{}, eventsSchema()))
	require.NoError(t, db.Register(&Token{}, tokensSchema()))
	return db, client
}

func capturePut(client *mocks.MockDynamoDBClient, err error) *dynamodb.PutItemInput {
	captured := &dynamodb.PutItemInput{}
	call := client.On("PutItem", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { *captured = *args.Get(1).(*dynamodb.PutItemInput) })
	if err != nil {
		call.Return(nil, err)
	} else {
		call.Return(&dynamodb.PutItemOutput{}, nil)
	}
	return captured
}

func stringAttr(t *testing.T, item map[string]types.AttributeValue, name string) string {
	t.Helper()
	s, ok := item[name].(*types.AttributeValueMemberS)
	require.True(t, ok, "attribute %s is not a string", name)
	return s.Value
}

func TestNew(t *testing.T) {
	db, err := recorddb.New(*session.DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, db.Session())
	assert.NotNil(t, db.Table())

	_, err = recorddb.New(session.Config{})
	assert.True(t, customerrors.IsValidationError(err))

	assert.Nil(t, recorddb.NewWithClient(new(mocks.MockDynamoDBClient)).Session())
}

func TestRegister(t *testing.T) {
	db, _ := newDB(t)

	s, err := db.Schema(Event{})
	require.NoError(t, err)
	assert.Equal(t, "events", s.TableName())

	err = db.Register(&Event{}, tokensSchema())
	assert.True(t, errors.Is(err, customerrors.ErrSchemaMismatch))

	_, err = db.Schema(&Unregistered{})
	assert.True(t, errors.Is(err, customerrors.ErrModelNotRegistered))
}

func TestRegisterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unregistered.yaml")
	doc := "table: things\nkeys:\n  partition: {attribute: id, type: S}\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	db, _ := newDB(t)
	require.NoError(t, db.RegisterFile(&Unregistered{}, path))

	s, err := db.Schema(&Unregistered{})
	require.NoError(t, err)
	assert.Equal(t, "things", s.TableName())
	assert.Equal(t, "id", s.HashKey())

	assert.Error(t, db.RegisterFile(&Unregistered{}, filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestQuery(t *testing.T) {
	db, client := newDB(t)

	compiled, err := db.Query(&Event{}).Where("id", "a").Where("ts", query.Gt(10)).ToQuery()
	require.NoError(t, err)
	assert.Equal(t, "events", compiled.TableName)
	assert.Equal(t, "#n1 = :v1 AND #n2 > :v2", compiled.KeyConditionExpression)

	client.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return aws.ToString(in.TableName) == "events"
	}), mock.Anything).Return(mocks.NewMockQueryOutput([]map[string]types.AttributeValue{{
		"id": &types.AttributeValueMemberS{Value: "a"},
		"ts": &types.AttributeValueMemberN{Value: "11"},
	}}, nil), nil).Once()

	var events []Event
	page, err := db.Query(&Event{}).Where("id", "a").All(context.Background(), &events)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	require.Len(t, events, 1)
	assert.Equal(t, int64(11), events[0].TS)
	client.AssertExpectations(t)
}

func TestQueryUnregisteredRecord(t *testing.T) {
	db, client := newDB(t)

	_, err := db.Query(&Unregistered{}).Where("id", "a").ToQuery()
	assert.True(t, errors.Is(err, customerrors.ErrModelNotRegistered))

	_, err = db.Query(&Unregistered{}).Where("id", "a").All(context.Background(), nil)
	assert.Error(t, err)
	client.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestFind(t *testing.T) {
	db, client := newDB(t)
	client.On("GetItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
		id, _ := in.Key["id"].(*types.AttributeValueMemberS)
		ts, _ := in.Key["ts"].(*types.AttributeValueMemberN)
		return aws.ToString(in.TableName) == "events" && id != nil && id.Value == "a" && ts != nil && ts.Value == "5"
	}), mock.Anything).Return(mocks.NewMockGetItemOutput(map[string]types.AttributeValue{
		"id":     &types.AttributeValueMemberS{Value: "a"},
		"ts":     &types.AttributeValueMemberN{Value: "5"},
		"status": &types.AttributeValueMemberS{Value: "open"},
	}), nil)

	var event Event
	require.NoError(t, db.Find(context.Background(), &event, "a", 5))
	assert.Equal(t, "open", event.Status)
	assert.Equal(t, int64(5), event.TS)
}

func TestFindNotFound(t *testing.T) {
	tests := []struct {
		err    error
		output *dynamodb.GetItemOutput
		name   string
	}{
		{name: "empty item", output: mocks.NewMockGetItemOutput(nil)},
		{name: "missing table", err: &types.ResourceNotFoundException{Message: aws.String("no table")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, client := newDB(t)
			client.On("GetItem", mock.Anything, mock.Anything, mock.Anything).Return(tt.output, tt.err)

			var event Event
			err := db.Find(context.Background(), &event, "a", 5)
			assert.True(t, customerrors.IsNotFound(err))

			var recordErr *customerrors.RecordError
			require.True(t, errors.As(err, &recordErr))
			assert.Equal(t, "find", recordErr.Op)
			assert.Equal(t, "Event", recordErr.Model)
		})
	}
}

func TestFindKeyValidation(t *testing.T) {
	tests := []struct {
		want error
		hash any
		name string
		rng  []any
	}{
		{name: "missing sort key", hash: "a", want: customerrors.ErrInvalidRecord},
		{name: "too many sort keys", hash: "a", rng: []any{1, 2}, want: customerrors.ErrInvalidRecord},
		{name: "nil partition key", hash: nil, rng: []any{1}, want: customerrors.ErrMissingPartitionKey},
		{name: "empty partition key", hash: "", rng: []any{1}, want: customerrors.ErrMissingPartitionKey},
		{name: "partition key of wrong type", hash: 42, rng: []any{1}, want: customerrors.ErrInvalidAttributeType},
		{name: "sort key of wrong type", hash: "a", rng: []any{"late"}, want: customerrors.ErrInvalidAttributeType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, client := newDB(t)

			var event Event
			err := db.Find(context.Background(), &event, tt.hash, tt.rng...)
			assert.True(t, customerrors.IsValidationError(err))
			assert.True(t, errors.Is(err, tt.want))
			client.AssertNotCalled(t, "GetItem", mock.Anything, mock.Anything, mock.Anything)
		})
	}

	db, _ := newDB(t)
	var token Token
	err := db.Find(context.Background(), &token, "a", 1)
	assert.True(t, errors.Is(err, customerrors.ErrInvalidRecord))

	var other Unregistered
	err = db.Find(context.Background(), &other, "a")
	assert.True(t, errors.Is(err, customerrors.ErrModelNotRegistered))
}

func TestFindOrInitialize(t *testing.T) {
	db, client := newDB(t)
	client.On("GetItem", mock.Anything, mock.Anything, mock.Anything).
		Return(mocks.NewMockGetItemOutput(map[string]types.AttributeValue{
			"id":     &types.AttributeValueMemberS{Value: "a"},
			"ts":     &types.AttributeValueMemberN{Value: "5"},
			"status": &types.AttributeValueMemberS{Value: "open"},
		}), nil).Once()
	client.On("GetItem", mock.Anything, mock.Anything, mock.Anything).
		Return(mocks.NewMockGetItemOutput(nil), nil).Once()
	client.On("GetItem", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("network")).Once()

	var found Event
	ok, err := db.FindOrInitialize(context.Background(), &found, "a", 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "open", found.Status)

	var fresh Event
	ok, err = db.FindOrInitialize(context.Background(), &fresh, "b", 6)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Event{ID: "b", TS: 6}, fresh)

	var failed Event
	ok, err = db.FindOrInitialize(context.Background(), &failed, "c", 7)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.False(t, customerrors.IsNotFound(err))
}

func TestCreate(t *testing.T) {
	db, client := newDB(t)
	captured := capturePut(client, nil)

	event := &Event{ID: "a", TS: 1, Kind: "click"}
	require.NoError(t, db.Create(context.Background(), event))

	assert.Equal(t, "events", aws.ToString(captured.TableName))
	require.NotNil(t, captured.ConditionExpression)
	assert.Contains(t, *captured.ConditionExpression, "attribute_not_exists")

	stamp := fixedNow.Format(time.RFC3339)
	assert.Equal(t, stamp, stringAttr(t, captured.Item, "created_at"))
	assert.Equal(t, stamp, stringAttr(t, captured.Item, "updated_at"))
	assert.True(t, event.CreatedAt.Equal(fixedNow))
	assert.True(t, event.UpdatedAt.Equal(fixedNow))
}

func TestCreateConditionFailed(t *testing.T) {
	db, client := newDB(t)
	capturePut(client, &types.ConditionalCheckFailedException{Message: aws.String("exists")})

	err := db.Create(context.Background(), &Event{ID: "a", TS: 1})
	require.Error(t, err)
	assert.True(t, customerrors.IsConditionFailed(err))

	var recordErr *customerrors.RecordError
	require.True(t, errors.As(err, &recordErr))
	assert.Equal(t, "create", recordErr.Op)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		record    any
		want      error
		name      string
		wantField string
	}{
		{name: "missing partition key", record: &Event{TS: 1}, want: customerrors.ErrMissingPartitionKey, wantField: "id"},
		{name: "tag violation", record: &Event{ID: "a", TS: 1, Kind: "hover"}, want: customerrors.ErrInvalidRecord, wantField: "Kind"},
		{name: "unregistered", record: &Unregistered{ID: "a"}, want: customerrors.ErrModelNotRegistered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, client := newDB(t)

			err := db.Create(context.Background(), tt.record)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))
			if tt.wantField != "" {
				var validationErr *customerrors.ValidationError
				require.True(t, errors.As(err, &validationErr))
				assert.Equal(t, tt.wantField, validationErr.Field)
			}
			client.AssertNotCalled(t, "PutItem", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSave(t *testing.T) {
	earlier := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		record      *Event
		name        string
		wantCreated string
	}{
		{name: "keeps created_at", record: &Event{ID: "a", TS: 1, CreatedAt: earlier}, wantCreated: earlier.Format(time.RFC3339)},
		{name: "stamps missing created_at", record: &Event{ID: "a", TS: 1}, wantCreated: fixedNow.Format(time.RFC3339)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, client := newDB(t)
			captured := capturePut(client, nil)

			require.NoError(t, db.Save(context.Background(), tt.record))
			assert.Nil(t, captured.ConditionExpression)
			assert.Equal(t, tt.wantCreated, stringAttr(t, captured.Item, "created_at"))
			assert.Equal(t, fixedNow.Format(time.RFC3339), stringAttr(t, captured.Item, "updated_at"))
			assert.True(t, tt.record.UpdatedAt.Equal(fixedNow))
		})
	}
}

func TestUpdate(t *testing.T) {
	db, client := newDB(t)
	captured := capturePut(client, nil)

	event := &Event{ID: "a", TS: 1, Status: "open"}
	require.NoError(t, db.Update(context.Background(), event, map[string]any{
		"status": "closed",
		"note":   "archived by job",
	}))

	assert.Equal(t, "closed", event.Status)
	assert.Equal(t, "closed", stringAttr(t, captured.Item, "status"))
	assert.Equal(t, "archived by job", stringAttr(t, captured.Item, "note"))

	err := db.Update(context.Background(), event, map[string]any{"kind": "hover"})
	assert.True(t, errors.Is(err, customerrors.ErrInvalidRecord))
	client.AssertNumberOfCalls(t, "PutItem", 1)
}

func TestTimeToLive(t *testing.T) {
	db, client := newDB(t)
	captured := capturePut(client, nil)

	token := &Token{ID: "t1"}
	require.NoError(t, db.Create(context.Background(), token))

	want := strconv.FormatInt(fixedNow.Add(time.Hour).Unix(), 10)
	expires, ok := captured.Item["expires_at"].(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, want, expires.Value)
	assert.Equal(t, fixedNow.Add(time.Hour).Unix(), token.ExpiresAt)
	assert.Equal(t, fixedNow.Format(time.RFC3339), token.CreatedAt)
}

func TestRegisterValidation(t *testing.T) {
	type Slugged struct {
		ID string `dynamodbav:"id" validate:"slug"`
	}

	db, client := newDB(t)
	require.NoError(t, db.Register(&Slugged{}, tokensSchema()))
	require.NoError(t, db.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), " /")
	}))
	capturePut(client, nil)

	require.NoError(t, db.Save(context.Background(), &Slugged{ID: "ok-slug"}))
	err := db.Save(context.Background(), &Slugged{ID: "not a slug"})
	assert.True(t, errors.Is(err, customerrors.ErrInvalidRecord))

	assert.Error(t, db.RegisterValidation("", nil))
}

func TestDestroy(t *testing.T) {
	db, client := newDB(t)
	client.On("DeleteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
		return aws.ToString(in.TableName) == "events" && len(in.Key) == 2
	}), mock.Anything).Return(&dynamodb.DeleteItemOutput{}, nil).Once()

	require.NoError(t, db.Destroy(context.Background(), &Event{ID: "a", TS: 1, Status: "open"}))

	err := db.Destroy(context.Background(), &Event{TS: 1})
	assert.True(t, errors.Is(err, customerrors.ErrMissingPartitionKey))
	client.AssertExpectations(t)
}

func TestVerify(t *testing.T) {
	s := eventsSchema()
	var gsis []types.GlobalSecondaryIndexDescription
	for _, gsi := range s.WireGlobalIndexes() {
		gsis = append(gsis, types.GlobalSecondaryIndexDescription{
			IndexName:  gsi.IndexName,
			KeySchema:  gsi.KeySchema,
			Projection: gsi.Projection,
		})
	}
	matching := &types.TableDescription{
		TableName:              aws.String("events"),
		KeySchema:              s.WireKeySchema(),
		GlobalSecondaryIndexes: gsis,
	}

	db, client := newDB(t)
	client.On("DescribeTable", mock.Anything, mock.Anything, mock.Anything).
		Return(&dynamodb.DescribeTableOutput{Table: matching}, nil).Once()
	client.On("DescribeTable", mock.Anything, mock.Anything, mock.Anything).
		Return(&dynamodb.DescribeTableOutput{Table: &types.TableDescription{KeySchema: s.WireKeySchema()}}, nil).Once()

	require.NoError(t, db.Verify(context.Background(), &Event{}))

	err := db.Verify(context.Background(), &Event{})
	assert.True(t, errors.Is(err, customerrors.ErrSchemaMismatch))
}

func TestTableCalls(t *testing.T) {
	db, client := newDB(t)
	client.On("DescribeTable", mock.Anything, mock.MatchedBy(func(in *dynamodb.DescribeTableInput) bool {
		return aws.ToString(in.TableName) == "tokens"
	}), mock.Anything).Return(mocks.NewMockDescribeTableOutput("tokens", types.TableStatusActive), nil)
	client.On("ListTables", mock.Anything, mock.Anything, mock.Anything).
		Return(mocks.NewMockListTablesOutput("", "events", "tokens"), nil)

	desc, err := db.DescribeTable(context.Background(), &Token{})
	require.NoError(t, err)
	assert.Equal(t, types.TableStatusActive, desc.TableStatus)

	names, err := db.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"events", "tokens"}, names)

	_, err = db.DescribeTable(context.Background(), &Unregistered{})
	assert.True(t, errors.Is(err, customerrors.ErrModelNotRegistered))
}
