package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tlsforge/acmecore/acmeerr"
)

const (
	pollInitialBackoff = time.Second
	pollMaxBackoff     = 30 * time.Second
)

// RetryAfter wraps a duration a caller's fetch function can return to
// signal PollUntil should wait that long (taken from a server's
// Retry-After header) instead of applying its own backoff for this
// iteration.
type RetryAfter struct {
	After time.Duration
}

func (r *RetryAfter) Error() string {
	return fmt.Sprintf("acme: retry after %s", r.After)
}

// PollUntil repeatedly calls fetch until it reports the want status,
// a terminal error, or ctx is done. Backoff starts at 1s and doubles each
// iteration up to a 30s cap; a fetch that returns a *RetryAfter error
// instead waits exactly that long before the next attempt.
func (e *Engine) PollUntil(ctx context.Context, fetch func() (status string, err error), want string) error {
	backoff := pollInitialBackoff
	for {
		status, err := fetch()
		var retry *RetryAfter
		switch {
		case err != nil && errors.As(err, &retry):
			// fall through to the retry-after wait below
		case err != nil:
			return err
		case status == want:
			return nil
		}

		wait := backoff
		if retry != nil {
			wait = retry.After
		} else {
			backoff *= 2
			if backoff > pollMaxBackoff {
				backoff = pollMaxBackoff
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s", acmeerr.TransportError, ctx.Err())
		case <-timer.C:
		}
	}
}
