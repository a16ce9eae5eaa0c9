package queues

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/bytevault/uploads/logging"
	"github.com/bytevault/uploads/models"
)

// Publisher emits upload-completed events for the metadata catalog.
type Publisher interface {
	Publish(ctx context.Context, evt models.UploadCompletedEvent) error
}

type SqsPublisher struct {
	client   *sqs.Client
	queueUrl string
	logger   logging.Logger
}

func NewSqsPublisher(client *sqs.Client, queueUrl string, l logging.Logger) *SqsPublisher {
	return &SqsPublisher{
		client:   client,
		queueUrl: queueUrl,
		logger:   l,
	}
}

func (p *SqsPublisher) Publish(ctx context.Context, evt models.UploadCompletedEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal completion event: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueUrl),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send completion event: %w", err)
	}

	p.logger.Debug("completion event published", "session_id", evt.SessionID, "file_id", evt.File.FileID)
	return nil
}

var _ Publisher = (*SqsPublisher)(nil)
