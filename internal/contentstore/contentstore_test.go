package contentstore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edihub/internal/clock"
	"edihub/internal/contentstore"
	"edihub/internal/db"
	"edihub/internal/migrate"
)

var now = time.Date(2024, 6, 4, 8, 30, 0, 0, time.UTC)

func TestReferences(t *testing.T) {
	assert.Equal(t, "5790001330552/2024-06-04/m-1", contentstore.MessageReference("5790001330552", now, "m-1"))
	assert.Equal(t, "archive/b-1/Json", contentstore.ArchiveReference("b-1", "Json"))
}

func TestSQLStorePutOnce(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	s := contentstore.NewSQLStore(conn, clock.Fixed(now))
	ctx := context.Background()
	require.NoError(t, s.PutOnce(ctx, "a/b", []byte("first")))

	err = s.PutOnce(ctx, "a/b", []byte("second"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, contentstore.ErrConflict))

	got, err := s.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, contentstore.ErrNotFound))
}

func TestSQLStoreRollbackDiscardsContent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	s := contentstore.NewSQLStore(conn, nil)
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.PutOnceTx(ctx, tx, "r", []byte("x")))
	require.NoError(t, tx.Rollback())

	_, err = s.Get(ctx, "r")
	assert.True(t, errors.Is(err, contentstore.ErrNotFound))
}

type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := in.Item["reference"].(*types.AttributeValueMemberS).Value
	if _, ok := f.items[ref]; ok && aws.ToString(in.ConditionExpression) == "attribute_not_exists(reference)" {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	if f.items == nil {
		f.items = map[string]map[string]types.AttributeValue{}
	}
	f.items[ref] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := in.Key["reference"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[ref]}, nil
}

func TestDynamoStorePutOnce(t *testing.T) {
	fake := &fakeDynamo{}
	s := contentstore.NewDynamoStore(fake, "edihub-content", clock.Fixed(now))
	ctx := context.Background()

	require.NoError(t, s.PutOnce(ctx, "ref-1", []byte("payload")))
	err := s.PutOnce(ctx, "ref-1", []byte("other"))
	assert.True(t, errors.Is(err, contentstore.ErrConflict))

	got, err := s.Get(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	_, err = s.Get(ctx, "nope")
	assert.True(t, errors.Is(err, contentstore.ErrNotFound))
}
