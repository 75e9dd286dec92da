package ports

import (
	"github.com/architeacher/svc-pubsub-harness/internal/domain"
)

type (
	// RecordFactory produces fully populated records for the publisher.
	RecordFactory interface {
		Generate() domain.Record
	}
)
