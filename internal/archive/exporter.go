// Package archive streams one logical page of a bucket as a zip archive.
//
// Objects are appended strictly one after another: an object's body is
// drained into the archive before the next object is opened, so memory use
// is bounded by the copy buffer whatever the object or page sizes are.
// Nothing is written to the sink until the first object of the page has
// been opened, which lets callers still answer with a clean error status
// for empty pages and early store failures.
package archive

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/koustreak/filegate/internal/errs"
	"github.com/koustreak/filegate/internal/filestore"
	"github.com/koustreak/filegate/internal/logger"
	"github.com/koustreak/filegate/internal/paging"
)

// Outcome labels how an export ended.
type Outcome string

const (
	OutcomeComplete  Outcome = "complete"
	OutcomeTruncated Outcome = "truncated"
	OutcomeFailed    Outcome = "failed"
	OutcomeEmpty     Outcome = "empty"
)

// Observer is told about every finished export.
type Observer interface {
	ObserveExport(outcome Outcome, entries int, bytes int64, dur time.Duration)
}

// Result summarises an export.
type Result struct {
	Entries int
	Bytes   int64
	// Truncated is set when bytes reached the sink but the archive could
	// not be finalized. The sink then holds an incomplete zip.
	Truncated bool
}

// Exporter writes pages of a bucket as zip archives.
type Exporter struct {
	store    filestore.Store
	pages    *paging.Paginator
	level    int
	observer Observer
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithObserver reports every export to o.
func WithObserver(o Observer) Option {
	return func(e *Exporter) {
		e.observer = o
	}
}

// WithLevel overrides the deflate level. The default is
// flate.BestCompression.
func WithLevel(level int) Option {
	return func(e *Exporter) {
		e.level = level
	}
}

// New returns an Exporter reading objects from store and pages from pages.
func New(store filestore.Store, pages *paging.Paginator, opts ...Option) *Exporter {
	e := &Exporter{
		store: store,
		pages: pages,
		level: flate.BestCompression,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExportPage streams the objects of page req of bucket into the writer
// returned by open. Each entry is named after its object key.
//
// open is called at most once, after the first object of the page has been
// opened successfully. If the page is empty ExportPage returns an
// errs.ErrKindNotFound error without calling open. Errors returned while
// open has not been called mean nothing was written. Errors returned after
// it come with Result.Truncated set; they cannot be reported to the
// client any more and are only logged.
func (e *Exporter) ExportPage(ctx context.Context, bucket string, req paging.PageRequest, open func() (io.Writer, error)) (*Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx).With().
		Str("bucket", bucket).
		Int("page", req.Page).
		Int("page_size", req.PageSize).
		Logger()

	var (
		zw   *zip.Writer
		sink io.Writer
		res  = &Result{}
	)

	_, err := e.pages.Each(ctx, bucket, req, func(obj filestore.ObjectInfo) error {
		src, err := e.store.GetObject(ctx, bucket, obj.Key)
		if err != nil {
			if errs.IsNotFound(err) {
				// Listed a moment ago; the store changed under the walk.
				return errs.Wrap(errs.ErrKindStoreUnavailable, "listed object disappeared: "+obj.Key, err)
			}
			return err
		}
		defer src.Close()

		if zw == nil {
			sink, err = open()
			if err != nil {
				return errs.Wrap(errs.ErrKindUnknown, "failed to open archive sink", err)
			}
			zw = zip.NewWriter(sink)
			zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
				return flate.NewWriter(out, e.level)
			})
		}

		n, err := e.appendEntry(zw, obj, src)
		res.Bytes += n
		if err != nil {
			return err
		}
		res.Entries++

		if err := zw.Flush(); err != nil {
			return err
		}
		flush(sink)
		return nil
	})

	switch {
	case err != nil && zw == nil:
		e.observe(OutcomeFailed, res, start)
		return res, err
	case err != nil:
		res.Truncated = true
		log.ErrorWith("archive truncated", err, map[string]any{
			"entries": res.Entries,
			"bytes":   res.Bytes,
		})
		e.observe(OutcomeTruncated, res, start)
		return res, err
	case zw == nil:
		e.observe(OutcomeEmpty, res, start)
		return res, errs.New(errs.ErrKindNotFound, paging.NotFoundMessage)
	}

	if err := zw.Close(); err != nil {
		res.Truncated = true
		log.ErrorWith("archive trailer not written", err, map[string]any{"entries": res.Entries})
		e.observe(OutcomeTruncated, res, start)
		return res, err
	}
	flush(sink)

	log.With().
		Int("entries", res.Entries).
		Int64("bytes", res.Bytes).
		Dur("elapsed", time.Since(start)).
		Logger().
		Info("archive finalized")
	e.observe(OutcomeComplete, res, start)
	return res, nil
}

// appendEntry drains src into a new archive entry and returns the number of
// uncompressed bytes copied.
func (e *Exporter) appendEntry(zw *zip.Writer, obj filestore.ObjectInfo, src io.Reader) (int64, error) {
	hdr := &zip.FileHeader{
		Name:     entryName(obj.Key),
		Method:   zip.Deflate,
		Modified: obj.LastModified,
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, src)
	if err != nil {
		return n, errs.Wrap(errs.KindOf(err), "failed to stream "+obj.Key, err)
	}
	return n, nil
}

func (e *Exporter) observe(outcome Outcome, res *Result, start time.Time) {
	if e.observer != nil {
		e.observer.ObserveExport(outcome, res.Entries, res.Bytes, time.Since(start))
	}
}

// entryName keeps archive paths relative.
func entryName(key string) string {
	name := strings.TrimLeft(key, "/")
	if name == "" {
		return "unnamed"
	}
	return name
}

func flush(w io.Writer) {
	if f, ok := w.(interface{ Flush() }); ok {
		f.Flush()
	}
}
