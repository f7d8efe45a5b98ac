package game

import (
	"context"
	"fmt"
	"time"
)

// PruneIdempotencyKeys forgets request keys claimed more than ttl ago. A
// forgotten key can be reused, so ttl must outlive any client retry window.
func (s *Service) PruneIdempotencyKeys(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, fmt.Errorf("%w: ttl must be positive", ErrInvalidInput)
	}
	n, err := s.store.PruneIdempotencyKeys(ctx, s.now().Add(-ttl))
	if err != nil {
		return 0, s.fail("prune idempotency keys", err)
	}
	if n > 0 {
		s.log.Info("idempotency keys pruned", "count", n, "ttl", ttl.String())
	}
	return n, nil
}
