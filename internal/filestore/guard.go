package filestore

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/koustreak/filegate/internal/errs"
)

// Observer receives one call per completed store operation.
type Observer interface {
	Observe(op string, bytes int64, err error, dur time.Duration)
}

// GuardOptions configures Guard.
type GuardOptions struct {
	// OpTimeout bounds every call except GetObject. Zero disables it.
	OpTimeout time.Duration

	// ReadTimeout bounds a GetObject from open until the handle is closed.
	// Zero disables it.
	ReadTimeout time.Duration

	// Observer is optional.
	Observer Observer
}

// Guard wraps s so that every call carries a deadline and is reported to
// the observer. A call that runs past its deadline fails with
// errs.ErrKindTimeout whatever the backend returned.
func Guard(s Store, opts GuardOptions) Store {
	return &guarded{inner: s, opts: opts}
}

type guarded struct {
	inner Store
	opts  GuardOptions
}

func (g *guarded) Ping(ctx context.Context) error {
	return g.do(ctx, "ping", func(ctx context.Context) (int64, error) {
		return 0, g.inner.Ping(ctx)
	})
}

func (g *guarded) Close() error {
	return g.inner.Close()
}

func (g *guarded) List(ctx context.Context, bucket string, opts ListOptions) (*ListResult, error) {
	var res *ListResult
	err := g.do(ctx, "list", func(ctx context.Context) (int64, error) {
		var err error
		res, err = g.inner.List(ctx, bucket, opts)
		return 0, err
	})
	return res, err
}

func (g *guarded) StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	var info *ObjectInfo
	err := g.do(ctx, "stat", func(ctx context.Context) (int64, error) {
		var err error
		info, err = g.inner.StatObject(ctx, bucket, key)
		return 0, err
	})
	return info, err
}

func (g *guarded) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*ObjectInfo, error) {
	var info *ObjectInfo
	err := g.do(ctx, "put", func(ctx context.Context) (int64, error) {
		var err error
		info, err = g.inner.PutObject(ctx, bucket, key, r, size, contentType)
		return size, err
	})
	return info, err
}

func (g *guarded) PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	var u string
	err := g.do(ctx, "presign", func(ctx context.Context) (int64, error) {
		var err error
		u, err = g.inner.PresignGetURL(ctx, bucket, key, ttl)
		return 0, err
	})
	return u, err
}

func (g *guarded) GetObject(ctx context.Context, bucket, key string) (Object, error) {
	start := time.Now()
	ctx, cancel := withTimeout(ctx, g.opts.ReadTimeout)

	obj, err := g.inner.GetObject(ctx, bucket, key)
	if err != nil {
		err = timeoutAware(ctx, err, "get object timed out")
		cancel()
		g.observe("get", 0, err, time.Since(start))
		return nil, err
	}

	return &guardedObject{
		Object: obj,
		ctx:    ctx,
		cancel: cancel,
		start:  start,
		g:      g,
	}, nil
}

func (g *guarded) do(ctx context.Context, op string, fn func(context.Context) (int64, error)) error {
	start := time.Now()
	ctx, cancel := withTimeout(ctx, g.opts.OpTimeout)
	defer cancel()

	n, err := fn(ctx)
	if err != nil {
		err = timeoutAware(ctx, err, op+" timed out")
		n = 0
	}
	g.observe(op, n, err, time.Since(start))
	return err
}

func (g *guarded) observe(op string, n int64, err error, dur time.Duration) {
	if g.opts.Observer != nil {
		g.opts.Observer.Observe(op, n, err, dur)
	}
}

// guardedObject keeps the read deadline alive until Close.
type guardedObject struct {
	Object
	ctx    context.Context
	cancel context.CancelFunc
	start  time.Time
	read   int64
	err    error
	closed bool
	g      *guarded
}

func (o *guardedObject) Read(p []byte) (int, error) {
	n, err := o.Object.Read(p)
	o.read += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		err = timeoutAware(o.ctx, err, "object read timed out")
		o.err = err
	}
	return n, err
}

func (o *guardedObject) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	err := o.Object.Close()
	o.cancel()
	o.g.observe("get", o.read, o.err, time.Since(o.start))
	return err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// timeoutAware rewrites err as a timeout when ctx hit its deadline and the
// backend reported something less specific.
func timeoutAware(ctx context.Context, err error, msg string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errs.IsTimeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	return err
}
