package core

import (
	"maps"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// QueryInput converts the request into SDK input, leaving every empty field unset.
func (q *CompiledQuery) QueryInput() *dynamodb.QueryInput {
	input := &dynamodb.QueryInput{
		TableName:        aws.String(q.TableName),
		ConsistentRead:   q.ConsistentRead,
		ScanIndexForward: q.ScanIndexForward,
		Limit:            q.Limit,
	}

	if q.IndexName != "" {
		input.IndexName = aws.String(q.IndexName)
	}
	if q.KeyConditionExpression != "" {
		input.KeyConditionExpression = aws.String(q.KeyConditionExpression)
	}
	if q.FilterExpression != "" {
		input.FilterExpression = aws.String(q.FilterExpression)
	}
	if q.ProjectionExpression != "" {
		input.ProjectionExpression = aws.String(q.ProjectionExpression)
	}
	if len(q.ExpressionAttributeNames) > 0 {
		input.ExpressionAttributeNames = maps.Clone(q.ExpressionAttributeNames)
	}
	if len(q.ExpressionAttributeValues) > 0 {
		input.ExpressionAttributeValues = maps.Clone(q.ExpressionAttributeValues)
	}
	if len(q.ExclusiveStartKey) > 0 {
		input.ExclusiveStartKey = maps.Clone(q.ExclusiveStartKey)
	}
	return input
}

// Clone returns a copy that shares no maps or pointers with q
func (q *CompiledQuery) Clone() *CompiledQuery {
	out := *q
	out.ExpressionAttributeNames = maps.Clone(q.ExpressionAttributeNames)
	out.ExpressionAttributeValues = maps.Clone(q.ExpressionAttributeValues)
	out.ExclusiveStartKey = maps.Clone(q.ExclusiveStartKey)
	if q.ScanIndexForward != nil {
		out.ScanIndexForward = aws.Bool(*q.ScanIndexForward)
	}
	if q.ConsistentRead != nil {
		out.ConsistentRead = aws.Bool(*q.ConsistentRead)
	}
	if q.Limit != nil {
		out.Limit = aws.Int32(*q.Limit)
	}
	return &out
}
