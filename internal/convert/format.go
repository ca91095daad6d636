package convert

import (
	"mime"
	"path"
	"strings"

	"github.com/koustreak/filegate/internal/errs"
)

// Format is a document or image format, named by its canonical extension.
type Format string

const (
	PDF  Format = "pdf"
	DOCX Format = "docx"
	XLSX Format = "xlsx"
	PPTX Format = "pptx"
	ODT  Format = "odt"
	ODS  Format = "ods"
	JPEG Format = "jpeg"
	PNG  Format = "png"
	SVG  Format = "svg"
	CSV  Format = "csv"
	TXT  Format = "txt"
	HTML Format = "html"
)

var mimeTypes = map[Format]string{
	PDF:  "application/pdf",
	DOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	XLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	PPTX: "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	ODT:  "application/vnd.oasis.opendocument.text",
	ODS:  "application/vnd.oasis.opendocument.spreadsheet",
	JPEG: "image/jpeg",
	PNG:  "image/png",
	SVG:  "image/svg+xml",
	CSV:  "text/csv",
	TXT:  "text/plain",
	HTML: "text/html",
}

var aliases = map[string]Format{
	"jpg": JPEG,
	"htm": HTML,
	"text": TXT,
	"image/jpg": JPEG,
}

// MIME returns the content type served for f.
func (f Format) MIME() string {
	if m, ok := mimeTypes[f]; ok {
		return m
	}
	return "application/octet-stream"
}

// Ext returns the file extension for f, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// ParseFormat accepts an extension ("pdf", ".jpg") or a MIME type.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	if s == "" {
		return "", errs.Invalid("typeFile is required")
	}
	if f, ok := aliases[s]; ok {
		return f, nil
	}
	if _, ok := mimeTypes[Format(s)]; ok {
		return Format(s), nil
	}
	if f, ok := fromMIME(s); ok {
		return f, nil
	}
	return "", errs.Invalid("unsupported typeFile %q", s)
}

// Detect infers the format of a stored object from its content type,
// falling back to the key's extension when the content type is missing or
// generic.
func Detect(key, contentType string) (Format, bool) {
	if f, ok := fromMIME(contentType); ok {
		return f, true
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(key), "."))
	if f, ok := aliases[ext]; ok {
		return f, true
	}
	if _, ok := mimeTypes[Format(ext)]; ok {
		return Format(ext), true
	}
	return "", false
}

func fromMIME(contentType string) (Format, bool) {
	if contentType == "" {
		return "", false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	if f, ok := aliases[mt]; ok {
		return f, true
	}
	for f, m := range mimeTypes {
		if m == mt {
			return f, true
		}
	}
	return "", false
}
