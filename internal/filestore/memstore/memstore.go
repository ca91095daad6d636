// Package memstore provides an in-memory implementation of filestore.Store.
//
// It reproduces the cursor behaviour of S3-style backends: keys list in
// lexical order, each List call returns at most one batch, and the
// continuation token is an opaque value resuming after the last key seen.
// It backs the "memory" provider for local runs and is the fake used by
// tests across the module, which is why it carries fault injection hooks.
package memstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koustreak/filegate/internal/errs"
	"github.com/koustreak/filegate/internal/filestore"
)

const defaultBatchSize = 1000

// epoch is the LastModified of the first object written; each later write
// is one second newer so ordering by time is deterministic.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type entry struct {
	data        []byte
	contentType string
	modified    time.Time
}

// Store is an in-memory filestore.Store. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*entry
	seq     int

	batchSize int
	emptyHops bool

	listCalls atomic.Int64
	getCalls  atomic.Int64

	hookMu  sync.RWMutex
	listErr func(call int) error
	getHook func(ctx context.Context, key string) error
}

// Option configures a Store.
type Option func(*Store)

// WithBatchSize sets the largest batch a single List call returns.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithEmptyHops makes every batch preceded by a hop that returns no
// objects but a valid continuation token.
func WithEmptyHops() Option {
	return func(s *Store) {
		s.emptyHops = true
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		buckets:   make(map[string]map[string]*entry),
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBucket makes bucket exist even when it holds no objects.
func (s *Store) CreateBucket(bucket string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string]*entry)
	}
}

// Put writes data at key, creating bucket if needed.
func (s *Store) Put(bucket, key string, data []byte, contentType string) filestore.ObjectInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	objs, ok := s.buckets[bucket]
	if !ok {
		objs = make(map[string]*entry)
		s.buckets[bucket] = objs
	}

	e := &entry{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		modified:    epoch.Add(time.Duration(s.seq) * time.Second),
	}
	s.seq++
	objs[key] = e
	return info(key, e)
}

// Delete removes key from bucket. Missing keys are ignored.
func (s *Store) Delete(bucket, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets[bucket], key)
}

// FailList makes every List call for which fn returns non-nil fail with
// that error. Calls are numbered from 1 in the order they arrive.
func (s *Store) FailList(fn func(call int) error) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.listErr = fn
}

// OnGet installs a hook run at the start of every GetObject. A non-nil
// return fails the call.
func (s *Store) OnGet(fn func(ctx context.Context, key string) error) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.getHook = fn
}

// ListCalls returns how many List calls were made.
func (s *Store) ListCalls() int {
	return int(s.listCalls.Load())
}

// GetCalls returns how many GetObject calls were made.
func (s *Store) GetCalls() int {
	return int(s.getCalls.Load())
}

// --- filestore.Store implementation ---

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) List(ctx context.Context, bucket string, opts filestore.ListOptions) (*filestore.ListResult, error) {
	call := int(s.listCalls.Add(1))

	s.hookMu.RLock()
	listErr := s.listErr
	s.hookMu.RUnlock()
	if listErr != nil {
		if err := listErr(call); err != nil {
			return nil, errs.Wrap(errs.ErrKindStoreUnavailable, "failed to list objects", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "failed to list objects", err)
	}

	tok, err := decodeToken(opts.ContinuationToken)
	if err != nil {
		return nil, err
	}

	if s.emptyHops && !tok.data {
		return &filestore.ListResult{
			ContinuationToken: encodeToken(token{data: true, after: tok.after}),
		}, nil
	}

	limit := s.batchSize
	if opts.MaxKeys > 0 && opts.MaxKeys < limit {
		limit = opts.MaxKeys
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	objs, ok := s.buckets[bucket]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "bucket not found")
	}

	keys := make([]string, 0, len(objs))
	for k := range objs {
		if k > tok.after && strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	res := &filestore.ListResult{}
	n := min(limit, len(keys))
	for _, k := range keys[:n] {
		res.Objects = append(res.Objects, info(k, objs[k]))
	}
	if n < len(keys) {
		res.ContinuationToken = encodeToken(token{after: keys[n-1]})
	}
	return res, nil
}

func (s *Store) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	s.getCalls.Add(1)

	s.hookMu.RLock()
	hook := s.getHook
	s.hookMu.RUnlock()
	if hook != nil {
		if err := hook(ctx, key); err != nil {
			return nil, errs.Wrap(errs.ErrKindStoreUnavailable, "failed to get object", err)
		}
	}

	e, err := s.lookup(bucket, key)
	if err != nil {
		return nil, err
	}
	return &object{
		ctx:  ctx,
		r:    bytes.NewReader(e.data),
		info: info(key, e),
	}, nil
}

func (s *Store) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "failed to stat object", err)
	}
	e, err := s.lookup(bucket, key)
	if err != nil {
		return nil, err
	}
	oi := info(key, e)
	return &oi, nil
}

func (s *Store) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*filestore.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindStoreUnavailable, "failed to read upload", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return nil, errs.Invalid("size mismatch: declared %d, read %d", size, len(data))
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "failed to put object", err)
	}
	oi := s.Put(bucket, key, data, contentType)
	return &oi, nil
}

func (s *Store) PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if _, err := s.lookup(bucket, key); err != nil {
		return "", err
	}
	u := url.URL{
		Scheme:   "memory",
		Host:     bucket,
		Path:     "/" + key,
		RawQuery: url.Values{"expires": {fmt.Sprint(int(ttl.Seconds()))}}.Encode(),
	}
	return u.String(), nil
}

func (s *Store) lookup(bucket, key string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objs, ok := s.buckets[bucket]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "bucket not found")
	}
	e, ok := objs[key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "object not found")
	}
	return e, nil
}

func info(key string, e *entry) filestore.ObjectInfo {
	return filestore.ObjectInfo{
		Key:          key,
		Size:         int64(len(e.data)),
		ContentType:  e.contentType,
		ETag:         fmt.Sprintf("%x", len(e.data)),
		LastModified: e.modified,
	}
}

// token is the decoded form of a continuation token. data marks the hop
// that returns objects when empty hops are enabled.
type token struct {
	after string
	data  bool
}

func encodeToken(t token) string {
	prefix := "k:"
	if t.data {
		prefix = "d:"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(prefix + t.after))
}

func decodeToken(s string) (token, error) {
	if s == "" {
		return token{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) < 2 {
		return token{}, errs.Invalid("malformed continuation token")
	}
	return token{after: string(raw[2:]), data: string(raw[:2]) == "d:"}, nil
}

// object honours cancellation of the context it was opened with.
type object struct {
	ctx  context.Context
	r    *bytes.Reader
	info filestore.ObjectInfo
}

func (o *object) Read(p []byte) (int, error) {
	if err := o.ctx.Err(); err != nil {
		return 0, err
	}
	return o.r.Read(p)
}

func (o *object) Close() error {
	return nil
}

func (o *object) Info() *filestore.ObjectInfo {
	return &o.info
}
