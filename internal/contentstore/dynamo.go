package contentstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"edihub/internal/clock"
)

// DynamoAPI is the slice of the DynamoDB client the store needs.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoStore keeps content in a DynamoDB table keyed by "reference".
type DynamoStore struct {
	client DynamoAPI
	table  string
	clock  clock.Clock
}

func NewDynamoStore(client DynamoAPI, table string, clk clock.Clock) *DynamoStore {
	return &DynamoStore{client: client, table: table, clock: clock.OrSystem(clk)}
}

func (s *DynamoStore) PutOnce(ctx context.Context, reference string, content []byte) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"reference":  &types.AttributeValueMemberS{Value: reference},
			"content":    &types.AttributeValueMemberB{Value: content},
			"created_at": &types.AttributeValueMemberS{Value: s.clock.Now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_not_exists(reference)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", ErrConflict, reference)
		}
		return fmt.Errorf("put content %s: %w", reference, err)
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, reference string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"reference": &types.AttributeValueMemberS{Value: reference},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get content %s: %w", reference, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, reference)
	}
	b, ok := out.Item["content"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("content %s: unexpected attribute type", reference)
	}
	return b.Value, nil
}
