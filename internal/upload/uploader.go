// Package upload validates incoming files and stores them under normalized
// keys.
package upload

import (
	"context"
	"fmt"
	"io"
	"mime"
	"time"

	"github.com/docker/go-units"
	"golang.org/x/sync/errgroup"

	"github.com/koustreak/filegate/internal/errs"
	"github.com/koustreak/filegate/internal/filestore"
	"github.com/koustreak/filegate/internal/logger"
)

// Messages returned to clients.
const (
	InvalidTypeMessage = "Invalid file type"
	SuccessMessage     = "Upload successful"
)

// File is one file of an upload request.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Rejection records a file dropped from a batch.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Result lists what an upload stored, in request order.
type Result struct {
	Files    []filestore.ObjectInfo `json:"files"`
	Rejected []Rejection            `json:"rejected,omitempty"`
}

// Uploader puts files into one bucket.
type Uploader struct {
	store   filestore.Store
	bucket  string
	cfg     Config
	allowed map[string]bool
}

// New returns an Uploader. cfg must have been finalized.
func New(store filestore.Store, bucket string, cfg Config) *Uploader {
	allowed := make(map[string]bool, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[t] = true
	}
	return &Uploader{
		store:   store,
		bucket:  bucket,
		cfg:     cfg,
		allowed: allowed,
	}
}

// Upload stores the acceptable files of a batch concurrently. Files with
// a type outside the allow-list or above the size limit are dropped and
// reported in Result.Rejected. Sending more than the configured maximum
// number of files, or no acceptable file at all, is a validation error.
// Any failed put fails the whole call.
func (u *Uploader) Upload(ctx context.Context, files []File) (*Result, error) {
	if len(files) > u.cfg.MaxFiles {
		return nil, errs.Invalid("Exceeded maximum number of files (%d)", u.cfg.MaxFiles)
	}

	log := logger.FromContext(ctx).With().Str("bucket", u.bucket).Logger()
	res := &Result{}
	var accepted []File
	var keys []string
	taken := make(map[string]bool)

	for _, f := range files {
		if reason := u.check(f); reason != "" {
			log.With().Str("file", f.Name).Str("reason", reason).Logger().Debug("file rejected")
			res.Rejected = append(res.Rejected, Rejection{Name: f.Name, Reason: reason})
			continue
		}
		accepted = append(accepted, f)
		keys = append(keys, dedupe(NormalizeKey(f.Name), taken))
	}
	if len(accepted) == 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, InvalidTypeMessage)
	}

	start := time.Now()
	stored := make([]filestore.ObjectInfo, len(accepted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.Concurrency)
	for i := range accepted {
		g.Go(func() error {
			info, err := u.put(gctx, keys[i], accepted[i])
			if err != nil {
				return err
			}
			stored[i] = *info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.Files = stored

	var total int64
	for _, o := range stored {
		total += o.Size
	}
	log.InfoWith("upload stored", map[string]any{
		"files":    len(stored),
		"rejected": len(res.Rejected),
		"size":     units.HumanSize(float64(total)),
		"elapsed":  time.Since(start).String(),
	})
	return res, nil
}

func (u *Uploader) check(f File) string {
	mt, _, err := mime.ParseMediaType(f.ContentType)
	if err != nil || !u.allowed[mt] {
		return fmt.Sprintf("type %q not allowed", f.ContentType)
	}
	if limit := u.cfg.MaxFileSizeBytes(); limit > 0 && f.Size > limit {
		return fmt.Sprintf("larger than %s", units.HumanSize(float64(limit)))
	}
	return ""
}

func (u *Uploader) put(ctx context.Context, key string, f File) (*filestore.ObjectInfo, error) {
	body, err := f.Open()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read "+f.Name, err)
	}
	defer body.Close()

	info, err := u.store.PutObject(ctx, u.bucket, key, body, f.Size, f.ContentType)
	if err != nil {
		if errs.IsInvalidInput(err) {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrKindStoreUnavailable, "failed to store "+key, err)
	}
	return info, nil
}
