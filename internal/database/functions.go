package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	ErrItemNotFound    = errors.New("dynamodb: item not found")
	ErrConditionFailed = errors.New("dynamodb: condition check failed")
)

// Expr groups the optional expression parts shared by writes and reads.
type Expr struct {
	Condition string
	Filter    string
	Values    map[string]types.AttributeValue
	Names     map[string]string
}

func (e Expr) apply(cond, filter **string, values *map[string]types.AttributeValue, names *map[string]string) {
	if cond != nil && e.Condition != "" {
		*cond = aws.String(e.Condition)
	}
	if filter != nil && e.Filter != "" {
		*filter = aws.String(e.Filter)
	}
	if len(e.Values) > 0 {
		*values = e.Values
	}
	if len(e.Names) > 0 {
		*names = e.Names
	}
}

func S(value string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: value}
}

func N(value int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(value, 10)}
}

func BoolAttr(value bool) types.AttributeValue {
	return &types.AttributeValueMemberBOOL{Value: value}
}

func TimeAttr(value time.Time) types.AttributeValue {
	return S(value.UTC().Format(time.RFC3339Nano))
}

func wrapConditional(err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("%w: %v", ErrConditionFailed, err)
	}
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return fmt.Errorf("%w: %v", ErrConditionFailed, err)
			}
		}
	}
	return err
}

// TransactWrite applies items atomically. A failed condition on any item surfaces as
// ErrConditionFailed.
func (c *DynamoDBClient) TransactWrite(ctx context.Context, items []types.TransactWriteItem) error {
	if _, err := c.svc.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return fmt.Errorf("transact write: %w", wrapConditional(err))
	}
	return nil
}

func (c *DynamoDBClient) PutItem(ctx context.Context, tableName string, item interface{}, expr Expr) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(tableName),
		Item:      av,
	}
	expr.apply(&input.ConditionExpression, nil, &input.ExpressionAttributeValues, &input.ExpressionAttributeNames)

	if _, err := c.svc.PutItem(ctx, input); err != nil {
		return fmt.Errorf("put item %s: %w", tableName, wrapConditional(err))
	}
	return nil
}

func (c *DynamoDBClient) GetItem(ctx context.Context, tableName string, key map[string]types.AttributeValue, out interface{}) error {
	res, err := c.svc.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(tableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("get item %s: %w", tableName, err)
	}
	if res.Item == nil {
		return fmt.Errorf("get item %s: %w", tableName, ErrItemNotFound)
	}

	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}
	return nil
}

func (c *DynamoDBClient) UpdateItem(
	ctx context.Context,
	tableName string,
	key map[string]types.AttributeValue,
	updateExpr string,
	expr Expr,
	out interface{},
) error {
	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(tableName),
		Key:              key,
		UpdateExpression: aws.String(updateExpr),
		ReturnValues:     types.ReturnValueAllNew,
	}
	expr.apply(&input.ConditionExpression, nil, &input.ExpressionAttributeValues, &input.ExpressionAttributeNames)

	res, err := c.svc.UpdateItem(ctx, input)
	if err != nil {
		return fmt.Errorf("update item %s: %w", tableName, wrapConditional(err))
	}

	if out != nil {
		if err := attributevalue.UnmarshalMap(res.Attributes, out); err != nil {
			return fmt.Errorf("unmarshal updated item: %w", err)
		}
	}
	return nil
}

func (c *DynamoDBClient) DeleteItem(ctx context.Context, tableName string, key map[string]types.AttributeValue, expr Expr) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(tableName),
		Key:       key,
	}
	expr.apply(&input.ConditionExpression, nil, &input.ExpressionAttributeValues, &input.ExpressionAttributeNames)

	if _, err := c.svc.DeleteItem(ctx, input); err != nil {
		return fmt.Errorf("delete item %s: %w", tableName, wrapConditional(err))
	}
	return nil
}

// QueryAll runs a key-condition query against an index and follows pagination.
func (c *DynamoDBClient) QueryAll(
	ctx context.Context,
	tableName string,
	indexName string,
	keyCondExpr string,
	expr Expr,
	scanForward bool,
) ([]map[string]types.AttributeValue, error) {
	var allItems []map[string]types.AttributeValue
	var lastEvaluatedKey map[string]types.AttributeValue

	for {
		input := &dynamodb.QueryInput{
			TableName:              aws.String(tableName),
			KeyConditionExpression: aws.String(keyCondExpr),
			ScanIndexForward:       aws.Bool(scanForward),
			ExclusiveStartKey:      lastEvaluatedKey,
		}
		if indexName != "" {
			input.IndexName = aws.String(indexName)
		}
		expr.apply(nil, &input.FilterExpression, &input.ExpressionAttributeValues, &input.ExpressionAttributeNames)

		result, err := c.svc.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query %s[%s]: %w", tableName, indexName, err)
		}

		allItems = append(allItems, result.Items...)

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		lastEvaluatedKey = result.LastEvaluatedKey
	}

	return allItems, nil
}

// ScanAll scans the full table, optionally filtered, following pagination.
func (c *DynamoDBClient) ScanAll(ctx context.Context, tableName string, expr Expr) ([]map[string]types.AttributeValue, error) {
	var allItems []map[string]types.AttributeValue
	var lastEvaluatedKey map[string]types.AttributeValue

	for {
		input := &dynamodb.ScanInput{
			TableName:         aws.String(tableName),
			ExclusiveStartKey: lastEvaluatedKey,
		}
		expr.apply(nil, &input.FilterExpression, &input.ExpressionAttributeValues, &input.ExpressionAttributeNames)

		result, err := c.svc.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", tableName, err)
		}

		allItems = append(allItems, result.Items...)

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		lastEvaluatedKey = result.LastEvaluatedKey
	}
	return allItems, nil
}

// BatchDeleteItems removes keys in chunks of 25, retrying unprocessed writes with a short
// exponential backoff.
func (c *DynamoDBClient) BatchDeleteItems(ctx context.Context, tableName string, keys []map[string]types.AttributeValue) error {
	const batchSize = 25

	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		requests := make([]types.WriteRequest, 0, end-i)
		for _, key := range keys[i:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		}

		if err := c.batchWriteWithRetry(ctx, map[string][]types.WriteRequest{tableName: requests}); err != nil {
			return fmt.Errorf("batch delete %s: %w", tableName, err)
		}
	}
	return nil
}

func (c *DynamoDBClient) batchWriteWithRetry(ctx context.Context, requests map[string][]types.WriteRequest) error {
	const maxRetries = 3
	pending := requests

	for attempt := 0; len(pending) > 0; attempt++ {
		if attempt == maxRetries {
			return fmt.Errorf("%d write requests unprocessed after %d attempts", countRequests(pending), maxRetries)
		}
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := c.svc.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch write (attempt %d): %w", attempt+1, err)
		}
		pending = result.UnprocessedItems
	}
	return nil
}

func countRequests(requests map[string][]types.WriteRequest) int {
	count := 0
	for _, reqs := range requests {
		count += len(reqs)
	}
	return count
}
