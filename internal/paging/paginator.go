// Package paging derives page-number listings from a cursor-only object
// store.
//
// Every call re-walks the continuation token chain from the start; no
// cursor or listing state survives a request. Hops are strictly
// sequential because each token comes from the previous response.
package paging

import (
	"context"
	"sort"

	"github.com/koustreak/filegate/internal/errs"
	"github.com/koustreak/filegate/internal/filestore"
	"github.com/koustreak/filegate/internal/logger"
)

// NotFoundMessage is the caller-facing text for a page past the last item.
const NotFoundMessage = "No files found for the requested page"

// Walker performs one cursor walk over a bucket, one hop per Next call.
type Walker struct {
	store  filestore.Store
	bucket string
	opts   filestore.ListOptions
	done   bool
	hops   int
}

// NewWalker starts a walk at the beginning of bucket. batchSize is the
// MaxKeys hint sent with every hop; 0 leaves it to the store.
func NewWalker(store filestore.Store, bucket string, batchSize int) *Walker {
	return &Walker{
		store:  store,
		bucket: bucket,
		opts:   filestore.ListOptions{MaxKeys: batchSize},
	}
}

// Done reports whether the store signalled the end of the chain.
func (w *Walker) Done() bool {
	return w.done
}

// Hops returns the number of List calls made so far.
func (w *Walker) Hops() int {
	return w.hops
}

// Next fetches the next batch. A batch may be empty while the walk is
// not done; only a missing continuation token ends it. Calling Next after
// Done returns nil, nil.
func (w *Walker) Next(ctx context.Context) ([]filestore.ObjectInfo, error) {
	if w.done {
		return nil, nil
	}

	res, err := w.store.List(ctx, w.bucket, w.opts)
	w.hops++
	if err != nil {
		return nil, storeError(err)
	}

	if res.Exhausted() {
		w.done = true
	} else {
		if res.ContinuationToken == w.opts.ContinuationToken {
			return nil, errs.New(errs.ErrKindStoreUnavailable, "store returned a repeating continuation token")
		}
		w.opts.ContinuationToken = res.ContinuationToken
	}
	return res.Objects, nil
}

// Paginator serves logical pages over a Store.
type Paginator struct {
	store     filestore.Store
	batchSize int
}

// New returns a Paginator. batchSize is the per-hop MaxKeys hint.
func New(store filestore.Store, batchSize int) *Paginator {
	return &Paginator{store: store, batchSize: batchSize}
}

// ListAll walks the whole chain and returns every object in cursor order.
func (p *Paginator) ListAll(ctx context.Context, bucket string) ([]filestore.ObjectInfo, error) {
	w := NewWalker(p.store, bucket, p.batchSize)
	var all []filestore.ObjectInfo
	for !w.Done() {
		batch, err := w.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
	logger.FromContext(ctx).Debugf("listed %d objects in %d hops", len(all), w.Hops())
	return all, nil
}

// ListPage returns the requested page together with the bucket total.
//
// The total requires exhausting the chain, so the whole chain is always
// walked; in store order only the page's items are retained. A page past
// the last item yields an errs.ErrKindNotFound error. Any store failure
// aborts the call with no partial page.
func (p *Paginator) ListPage(ctx context.Context, bucket string, req PageRequest) (*PageResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	res := &PageResult{
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    []filestore.ObjectInfo{},
	}

	if req.Order == OrderNewest {
		all, err := p.ListAll(ctx, bucket)
		if err != nil {
			return nil, err
		}
		SortNewest(all)
		res.TotalItems = len(all)
		res.Items = append(res.Items, window(all, req)...)
	} else {
		w := NewWalker(p.store, bucket, p.batchSize)
		seen := 0
		for !w.Done() {
			batch, err := w.Next(ctx)
			if err != nil {
				return nil, err
			}
			res.Items = append(res.Items, windowAt(batch, seen, req)...)
			seen += len(batch)
		}
		res.TotalItems = seen
	}

	if len(res.Items) == 0 {
		return nil, errs.New(errs.ErrKindNotFound, NotFoundMessage)
	}
	return res, nil
}

// Each calls fn for every object of the requested page, in page order,
// and returns how many objects were visited.
//
// In store order the walk stops as soon as the page's last item has been
// visited and fn runs while the walk is still in progress, so callers can
// stream each object before the next hop. OrderNewest walks the whole
// chain first. An error from fn stops the walk and is returned unchanged.
func (p *Paginator) Each(ctx context.Context, bucket string, req PageRequest, fn func(filestore.ObjectInfo) error) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	if req.Order == OrderNewest {
		all, err := p.ListAll(ctx, bucket)
		if err != nil {
			return 0, err
		}
		SortNewest(all)
		visited := 0
		for _, obj := range window(all, req) {
			if err := fn(obj); err != nil {
				return visited, err
			}
			visited++
		}
		return visited, nil
	}

	w := NewWalker(p.store, bucket, p.batchSize)
	seen, visited := 0, 0
	for !w.Done() && seen < req.End() {
		batch, err := w.Next(ctx)
		if err != nil {
			return visited, err
		}
		for _, obj := range windowAt(batch, seen, req) {
			if err := ctx.Err(); err != nil {
				return visited, errs.Wrap(errs.ErrKindTimeout, "page walk cancelled", err)
			}
			if err := fn(obj); err != nil {
				return visited, err
			}
			visited++
		}
		seen += len(batch)
	}
	return visited, nil
}

// SortNewest orders objects by LastModified descending, key ascending.
func SortNewest(objs []filestore.ObjectInfo) {
	sort.SliceStable(objs, func(i, j int) bool {
		a, b := objs[i], objs[j]
		if !a.LastModified.Equal(b.LastModified) {
			return a.LastModified.After(b.LastModified)
		}
		return a.Key < b.Key
	})
}

func window(all []filestore.ObjectInfo, req PageRequest) []filestore.ObjectInfo {
	return windowAt(all, 0, req)
}

// windowAt returns the part of batch that falls inside the page, given
// that batch starts at absolute index base.
func windowAt(batch []filestore.ObjectInfo, base int, req PageRequest) []filestore.ObjectInfo {
	lo := max(req.Offset()-base, 0)
	hi := min(req.End()-base, len(batch))
	if lo >= hi {
		return nil
	}
	return batch[lo:hi]
}

// storeError reports any list failure as store-unavailable while keeping
// timeouts, missing buckets and permission failures distinguishable.
func storeError(err error) error {
	switch errs.KindOf(err) {
	case errs.ErrKindTimeout, errs.ErrKindNotFound, errs.ErrKindPermissionDenied, errs.ErrKindStoreUnavailable:
		return err
	}
	return errs.Wrap(errs.ErrKindStoreUnavailable, "failed to list objects", err)
}
