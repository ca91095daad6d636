package filestore

import (
	"io"
	"time"
)

// ObjectInfo describes a single object stored in a bucket. It is an
// immutable snapshot; callers re-fetch it per request.
type ObjectInfo struct {
	// Key is the full object path within the bucket (e.g. "images/photo.jpg").
	Key string `json:"key"`

	// Size is the byte size of the object. -1 if unknown.
	Size int64 `json:"size"`

	// ContentType is the MIME type (e.g. "image/jpeg"). May be empty in
	// list results; StatObject always fills it when the backend knows it.
	ContentType string `json:"contentType,omitempty"`

	// ETag is the object's entity tag / hash, as returned by the backend.
	ETag string `json:"etag,omitempty"`

	// LastModified is when the object was last written.
	LastModified time.Time `json:"lastModified"`
}

// Object is a streaming handle to an object's content.
// The caller MUST call Close() after reading to avoid resource leaks.
type Object interface {
	io.ReadCloser

	// Info returns the metadata for this object.
	Info() *ObjectInfo
}

// ListOptions controls a single cursor hop.
type ListOptions struct {
	// Prefix restricts results to objects whose key starts with this string.
	Prefix string

	// ContinuationToken resumes a previous listing. "" starts from the
	// beginning. Tokens are opaque; only values returned in a ListResult
	// may be passed back.
	ContinuationToken string

	// MaxKeys caps the number of objects in one result. 0 uses the
	// backend default.
	MaxKeys int
}

// ListResult is one hop of a cursor walk.
type ListResult struct {
	// Objects may be empty even when ContinuationToken is set.
	Objects []ObjectInfo

	// ContinuationToken resumes the walk. "" means the chain is exhausted.
	ContinuationToken string
}

// Exhausted reports whether no further hop exists.
func (r *ListResult) Exhausted() bool {
	return r.ContinuationToken == ""
}
