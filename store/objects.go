package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bytevault/uploads/logging"
)

// S3ChunkStore keeps chunk blobs under {owner}/chunks/{session}/{index} and
// final objects under caller-provided keys, all in a single bucket.
type S3ChunkStore struct {
	client     *s3.Client
	bucketName string

	logger logging.Logger
}

func NewS3ChunkStore(client *s3.Client, bucketName string, l logging.Logger) *S3ChunkStore {
	return &S3ChunkStore{
		client:     client,
		bucketName: bucketName,
		logger:     l,
	}
}

func chunkKey(ownerID, sessionID string, index int) string {
	return fmt.Sprintf("%s/chunks/%s/%d", ownerID, sessionID, index)
}

func chunkPrefix(ownerID, sessionID string) string {
	return fmt.Sprintf("%s/chunks/%s/", ownerID, sessionID)
}

func (s *S3ChunkStore) PutChunk(ctx context.Context, ownerID, sessionID string, index int, body io.Reader, size int64) error {
	key := chunkKey(ownerID, sessionID, index)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		s.logger.Error("failed to put chunk", "key", key, "error", err)
		return fmt.Errorf("put chunk %s: %w", key, err)
	}

	s.logger.Debug("chunk stored", "key", key, "size", size)
	return nil
}

func (s *S3ChunkStore) GetChunk(ctx context.Context, ownerID, sessionID string, index int) ([]byte, error) {
	key := chunkKey(ownerID, sessionID, index)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", key, err)
	}
	return data, nil
}

func (s *S3ChunkStore) DeleteChunk(ctx context.Context, ownerID, sessionID string, index int) error {
	key := chunkKey(ownerID, sessionID, index)

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete chunk %s: %w", key, err)
	}
	return nil
}

// DeleteSessionChunks removes every chunk blob belonging to the session,
// page by page.
func (s *S3ChunkStore) DeleteSessionChunks(ctx context.Context, ownerID, sessionID string) error {
	prefix := chunkPrefix(ownerID, sessionID)

	s.logger.Info("deleting session chunks", "prefix", prefix)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(prefix),
	})

	totalDeleted := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list chunks for deletion: %w", err)
		}

		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}

		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucketName),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("delete chunk batch: %w", err)
		}

		totalDeleted += len(objects)
	}

	s.logger.Info("session chunks deleted", "prefix", prefix, "count", totalDeleted)
	return nil
}

func (s *S3ChunkStore) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	_, err := s.client.PutObject(ctx, input)
	if err != nil {
		s.logger.Error("failed to put final object", "key", key, "error", err)
		return fmt.Errorf("put object %s: %w", key, err)
	}

	s.logger.Info("final object committed", "key", key, "size", size)
	return nil
}

func (s *S3ChunkStore) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return false, nil
	}
	return false, fmt.Errorf("head object %s: %w", key, err)
}

func (s *S3ChunkStore) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	presigner := s3.NewPresignClient(s.client)

	presigned, err := presigner.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucketName),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(ttl),
	)
	if err != nil {
		return "", err
	}
	return presigned.URL, nil
}

var _ ChunkStore = (*S3ChunkStore)(nil)
