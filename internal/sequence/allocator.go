package sequence

import (
	"context"
	"fmt"

	"registration-gateway/internal/logger"
	"registration-gateway/internal/storage"
)

// numberWidth is the zero-padded width of emitted race numbers.
const numberWidth = 4

// Allocator issues strictly increasing race numbers from the single shared
// counter row. The store serializes the read-increment-write, so concurrent
// callers never receive overlapping ranges. Gaps can only appear through
// later manual release of a number, never through allocation races.
type Allocator struct {
	store storage.Store
	log   *logger.Logger
}

func NewAllocator(store storage.Store, log *logger.Logger) *Allocator {
	return &Allocator{store: store, log: log}
}

// AllocateNext returns count formatted numbers, strictly increasing within
// the returned slice.
func (a *Allocator) AllocateNext(ctx context.Context, count int) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("allocation count must be positive, got %d", count)
	}

	var first int64
	err := a.store.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		first, err = a.store.NextSequence(txCtx, count)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sequence range: %w", err)
	}

	numbers := make([]string, count)
	for i := range numbers {
		numbers[i] = fmt.Sprintf("%0*d", numberWidth, first+int64(i))
	}

	a.log.LogDatabase("SEQUENCE", "sequence_counter", fmt.Sprintf("Allocated numbers %s-%s", numbers[0], numbers[count-1]))
	return numbers, nil
}
