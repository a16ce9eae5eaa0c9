package store

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/bytevault/uploads/models"
	"github.com/bytevault/uploads/retries"
)

var ErrFileNotFound = errors.New("finalized file not found")

// DynamoDbFileStore persists finalized-file records for the metadata
// catalog.
type DynamoDbFileStore struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoDbFileStore(client *dynamodb.Client, tableName string) *DynamoDbFileStore {
	return &DynamoDbFileStore{
		client:    client,
		tableName: tableName,
	}
}

func (s *DynamoDbFileStore) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	return retries.Retry(
		ctx,
		retries.HealthAttempts,
		retries.HealthBaseDelay,
		func() error {
			_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
				TableName: aws.String(s.tableName),
			})
			return err
		},
		retries.IsRetriableDbError,
	)
}

func (s *DynamoDbFileStore) Name() string {
	return "FileStore[files]"
}

func (s *DynamoDbFileStore) Create(ctx context.Context, file models.FinalizedFile) error {
	fileItem, err := attributevalue.MarshalMap(file)
	if err != nil {
		return err
	}

	return retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName: aws.String(s.tableName),
				Item:      fileItem,
			})
			return err
		},
		retries.IsRetriableDbError,
	)
}

func (s *DynamoDbFileStore) Get(ctx context.Context, fileID string) (*models.FinalizedFile, error) {
	var file models.FinalizedFile

	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"file_id": &types.AttributeValueMemberS{Value: fileID},
				},
			})
			if err != nil {
				return err
			}

			if out.Item == nil {
				return ErrFileNotFound
			}

			return attributevalue.UnmarshalMap(out.Item, &file)
		},
		retries.IsRetriableDbError,
	)
	if err != nil {
		return nil, err
	}

	return &file, nil
}

var _ FileStore = (*DynamoDbFileStore)(nil)
