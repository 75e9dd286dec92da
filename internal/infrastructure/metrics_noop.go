package infrastructure

import (
	"context"
	"time"
)

type NoOpMetrics struct{}

func (n *NoOpMetrics) RecordPublished(_ context.Context, _ string) {
}

func (n *NoOpMetrics) RecordConsumed(_ context.Context, _, _ string) {
}

func (n *NoOpMetrics) RecordProcessingTime(_ context.Context, _ time.Duration) {
}

func (n *NoOpMetrics) RecordConnect(_ context.Context, _ string, _ bool) {
}

func (n *NoOpMetrics) Shutdown(_ context.Context) error {
	return nil
}
