// Package resolve implements the coalescing resolver: two symmetric
// single-flight registries — one keyed by OID for the push direction, one
// keyed by CID for the fetch direction — that guarantee at-most-one
// in-flight translation per key and fan the result out to every concurrent
// waiter.
//
// golang.org/x/sync/singleflight already implements exactly this contract:
// Do(key, fn) runs fn at most once per key among concurrent callers and
// delivers the same (value, error) to all of them. fn takes no context of its
// own; it uses whatever context the starting caller's closure captured, so
// cancelling that context fails the shared call and every waiter observes
// the same cancellation error.
package resolve

import (
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/dhappy/git-remote-igis/internal/cache"
	"github.com/dhappy/git-remote-igis/internal/model"
)

// Resolver holds the push-side and fetch-side registries. It is
// process-local: two processes pushing the same repository race at the
// cache layer and at IPFS, not here.
type Resolver struct {
	push  singleflight.Group
	fetch singleflight.Group
}

// New creates an empty Resolver.
func New() *Resolver {
	return &Resolver{}
}

// ResolvePush coalesces concurrent translations of the same OID. If no
// translation of oid is in flight, it starts one by calling fn; otherwise it
// joins the existing in-flight call. Every caller receives the same CID or
// the same error.
func (r *Resolver) ResolvePush(oid model.OID, fn func() (model.CID, error)) (model.CID, error) {
	v, err, _ := r.push.Do(string(oid), func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return "", err
	}
	return v.(model.CID), nil
}

// ResolveFetch coalesces concurrent translations of the same CID. Before
// joining or starting a translation it consults c for a cached cid->oid
// reverse mapping and returns synchronously on a hit.
func (r *Resolver) ResolveFetch(c cache.Cache, cid model.CID, fn func() (model.OID, error)) (model.OID, error) {
	if cached, ok, err := c.Get(cache.CIDKey(string(cid))); err != nil {
		return "", fmt.Errorf("resolve: cache lookup for %s: %w", cid, err)
	} else if ok {
		return model.OID(cached), nil
	}

	v, err, _ := r.fetch.Do(string(cid), func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return "", err
	}
	return v.(model.OID), nil
}
