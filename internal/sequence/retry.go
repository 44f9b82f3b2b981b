package sequence

import (
	"context"
	"errors"

	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
)

// DefaultAttempts bounds WithUniqueRetry when attempts is not positive.
const DefaultAttempts = 3

// WithUniqueRetry runs fn again while it fails with a duplicate error, as
// when a freshly allocated number collides with an existing record.
func WithUniqueRetry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx)
		if err == nil || !errors.Is(err, httpx.ErrDuplicate) {
			return err
		}
	}
	return err
}
