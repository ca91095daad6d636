// Package convert serves renditions of stored objects, converting them to a
// requested format on the way out.
//
// Every request works in its own scratch directory under the configured
// scratch root. The directory is removed before FetchAndConvert returns,
// whichever way it returns, so concurrent requests for the same key never
// see or delete each other's files.
package convert

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/filegate/internal/errs"
	"github.com/koustreak/filegate/internal/filestore"
	"github.com/koustreak/filegate/internal/logger"
)

// Stage is a step of a conversion request.
type Stage string

const (
	StageFetching    Stage = "fetching"
	StagePassthrough Stage = "passthrough"
	StageConverting  Stage = "converting"
	StageStreaming   Stage = "streaming"
	StageCleanup     Stage = "cleanup"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Outcome labels how a request ended.
type Outcome string

const (
	OutcomePassthrough Outcome = "passthrough"
	OutcomeConverted   Outcome = "converted"
	OutcomeFailed      Outcome = "failed"
)

// Observer is told about every finished request.
type Observer interface {
	ObserveConversion(outcome Outcome, dur time.Duration)
}

// Rendition is the file handed to the consumer. Reader is only valid
// inside the consume callback.
type Rendition struct {
	Reader      io.Reader
	Name        string
	ContentType string
	Size        int64
	Converted   bool
}

// Pipeline fetches objects to scratch files and optionally converts them.
type Pipeline struct {
	store    filestore.Store
	bucket   string
	registry *Registry
	scratch  string
	timeout  time.Duration
	observer Observer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver reports every request to o.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithTimeout bounds each converter invocation.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// NewPipeline returns a Pipeline serving objects of bucket. scratchDir must
// exist.
func NewPipeline(store filestore.Store, bucket string, registry *Registry, scratchDir string, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    store,
		bucket:   bucket,
		registry: registry,
		scratch:  scratchDir,
		timeout:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchAndConvert serves key in the target format. The object is copied to
// a scratch file, converted when its format differs from target, and the
// result is passed to consume as it is read from disk. All scratch files
// are gone when FetchAndConvert returns.
//
// Unsupported conversions fail with errs.ErrKindInvalidInput before the
// object is fetched.
func (p *Pipeline) FetchAndConvert(ctx context.Context, key string, target Format, consume func(*Rendition) error) (err error) {
	start := time.Now()
	reqID := uuid.NewString()
	log := logger.FromContext(ctx).With().
		Str("key", key).
		Str("target", string(target)).
		Str("conversion_id", reqID).
		Logger()

	outcome := OutcomeFailed
	defer func() {
		if err != nil {
			outcome = OutcomeFailed
			log.WarnWith("conversion failed", err, map[string]any{"stage": StageFailed})
		}
		if p.observer != nil {
			p.observer.ObserveConversion(outcome, time.Since(start))
		}
	}()

	if strings.TrimSpace(key) == "" {
		return errs.Invalid("key is required")
	}
	if _, ok := mimeTypes[target]; !ok {
		return errs.Invalid("unsupported typeFile %q", target)
	}

	info, err := p.store.StatObject(ctx, p.bucket, key)
	if err != nil {
		return err
	}
	source, ok := Detect(key, info.ContentType)
	if !ok {
		return errs.Invalid("cannot detect format of %q", key)
	}

	var conv Converter
	if source != target {
		conv, ok = p.registry.Lookup(source, target)
		if !ok {
			return errs.Invalid("cannot convert %s to %s", source, target)
		}
	}

	dir := filepath.Join(p.scratch, reqID)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return errs.Wrap(errs.ErrKindUnknown, "failed to create scratch dir", err)
	}
	defer func() {
		log.Debug(string(StageCleanup))
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.ErrorWith("scratch cleanup failed", rmErr, map[string]any{"dir": dir})
		}
	}()

	stem := scratchStem(key)
	srcPath := filepath.Join(dir, stem+"."+source.Ext())

	log.Debug(string(StageFetching))
	if err := p.fetch(ctx, key, srcPath); err != nil {
		return err
	}

	outPath := srcPath
	if conv == nil {
		log.Debug(string(StagePassthrough))
		outcome = OutcomePassthrough
	} else {
		log.Debug(string(StageConverting))
		outPath = filepath.Join(dir, stem+"."+target.Ext())
		if err := p.convert(ctx, conv, srcPath, outPath); err != nil {
			return err
		}
		outcome = OutcomeConverted
	}

	f, err := os.Open(outPath)
	if err != nil {
		return errs.Wrap(errs.ErrKindConversionFailed, "converted file missing", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return errs.Wrap(errs.ErrKindUnknown, "failed to stat rendition", err)
	}

	log.Debug(string(StageStreaming))
	if err := consume(&Rendition{
		Reader:      &ctxReader{ctx: ctx, r: f},
		Name:        renditionName(key, source, target),
		ContentType: target.MIME(),
		Size:        st.Size(),
		Converted:   conv != nil,
	}); err != nil {
		return err
	}

	log.With().
		Str("stage", string(StageDone)).
		Dur("elapsed", time.Since(start)).
		Logger().
		Info("rendition served")
	return nil
}

func (p *Pipeline) fetch(ctx context.Context, key, dst string) error {
	obj, err := p.store.GetObject(ctx, p.bucket, key)
	if err != nil {
		return err
	}
	defer obj.Close()

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return errs.Wrap(errs.ErrKindUnknown, "failed to create scratch file", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, obj); err != nil {
		return errs.Wrap(errs.KindOf(err), "failed to fetch "+key, err)
	}
	if err := f.Close(); err != nil {
		return errs.Wrap(errs.ErrKindUnknown, "failed to write scratch file", err)
	}
	return nil
}

func (p *Pipeline) convert(ctx context.Context, conv Converter, in, out string) error {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := conv.Convert(cctx, in, out); err != nil {
		if errs.IsConversionFailed(err) || errs.IsInvalidInput(err) {
			return err
		}
		return errs.Wrap(errs.ErrKindConversionFailed, "conversion failed", err)
	}
	if _, err := os.Stat(out); err != nil {
		return errs.Wrap(errs.ErrKindConversionFailed, "converter produced no output", err)
	}
	return nil
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// scratchStem derives a file-system safe stem from an object key.
func scratchStem(key string) string {
	base := path.Base(key)
	base = strings.TrimSuffix(base, path.Ext(base))

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	stem := strings.TrimLeft(b.String(), "-")
	if stem == "" {
		return "object"
	}
	return stem
}

func renditionName(key string, source, target Format) string {
	base := path.Base(key)
	if source == target {
		return base
	}
	return strings.TrimSuffix(base, path.Ext(base)) + "." + target.Ext()
}
