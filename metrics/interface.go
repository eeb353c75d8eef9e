package metrics

import (
	"context"
	"time"
)

// Collector receives archive measurements. Durations are passed unrounded;
// most store stages finish well under a millisecond.
type Collector interface {
	RecordOperation(ctx context.Context, operation string, status string, took time.Duration)
	RecordStage(ctx context.Context, operation string, stage string, took time.Duration)
	RecordError(ctx context.Context, operation string, errorType string)
	SetStorageCount(ctx context.Context, storageType string, count int64)
}
