package metrics

import (
	"context"
	"time"
)

// NoopCollector discards everything. It is the default when metrics are disabled.
type NoopCollector struct{}

func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (n *NoopCollector) RecordOperation(context.Context, string, string, time.Duration) {}

func (n *NoopCollector) RecordStage(context.Context, string, string, time.Duration) {}

func (n *NoopCollector) RecordError(context.Context, string, string) {}

func (n *NoopCollector) SetStorageCount(context.Context, string, int64) {}
