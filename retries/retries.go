package retries

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 100 * time.Millisecond

	HealthAttempts  = 2
	HealthBaseDelay = 50 * time.Millisecond
)

// Retry runs fn up to attempts times, sleeping baseDelay×attempt between
// tries. It gives up early when the context is done or when isRetriable
// reports the error as permanent.
func Retry(
	ctx context.Context,
	attempts int,
	baseDelay time.Duration,
	fn func() error,
	isRetriable func(error) bool,
) error {
	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		if isRetriable != nil && !isRetriable(err) {
			return err
		}

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay * time.Duration(attempt)):
		}
	}

	return err
}

// IsRetriableDbError reports whether a DynamoDB error is worth retrying.
func IsRetriableDbError(err error) bool {
	var throughput *types.ProvisionedThroughputExceededException
	if errors.As(err, &throughput) {
		return true
	}

	var internal *types.InternalServerError
	if errors.As(err, &internal) {
		return true
	}

	var limit *types.LimitExceededException
	return errors.As(err, &limit)
}

// Always treats every error as transient. Chunk fetches use it: the store
// does not distinguish transient from permanent failures, so the fetch path
// retries everything and surfaces the last error.
func Always(error) bool { return true }
