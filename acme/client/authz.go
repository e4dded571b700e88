package client

import (
	"golang.org/x/sync/errgroup"

	"github.com/tlsforge/acmecore/acme/resources"
)

// FetchAuthorizations fetches every authorization URL on order concurrently,
// via signed POST-as-GET requests, and returns the results in the order's
// original order. Concurrent signed requests are safe here: Engine.Nonce
// pops the cached nonce under its own lock and falls back to fetching a
// fresh one whenever the cache is empty, so concurrent callers never reuse
// or corrupt a single nonce — at worst a few of them pay for their own
// extra newNonce round trip.
func (e *Engine) FetchAuthorizations(order *resources.Order) ([]*resources.Authorization, error) {
	results := make([]*resources.Authorization, len(order.Authorizations))

	var g errgroup.Group
	for i, url := range order.Authorizations {
		i, url := i, url
		g.Go(func() error {
			authz, err := e.GetAuthorization(url)
			if err != nil {
				return err
			}
			results[i] = authz
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
