package adapters

import (
	"sync"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/architeacher/svc-pubsub-harness/internal/domain"
	"github.com/architeacher/svc-pubsub-harness/internal/ports"
)

var _ ports.RecordFactory = (*PersonFactory)(nil)

// PersonFactory generates random people. It is safe for concurrent use.
type PersonFactory struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
}

// NewPersonFactory returns a factory seeded with seed; 0 picks a random seed.
func NewPersonFactory(seed uint64) *PersonFactory {
	return &PersonFactory{
		faker: gofakeit.New(seed),
	}
}

func (f *PersonFactory) Generate() domain.Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	return domain.Record{
		Name:  f.faker.FirstName() + " " + f.faker.LastName(),
		Age:   f.faker.IntRange(domain.MinAge, domain.MaxAge),
		Email: f.faker.Email(),
	}
}
