package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/filegate/internal/convert"
	"github.com/koustreak/filegate/internal/errs"
	"github.com/koustreak/filegate/internal/filestore"
	"github.com/koustreak/filegate/internal/logger"
	"github.com/koustreak/filegate/internal/paging"
	"github.com/koustreak/filegate/internal/upload"
)

// Fallback messages for server-side failures.
const (
	msgUploadFailed   = "Error uploading files to the store"
	msgListFailed     = "Error listing files from the store"
	msgDownloadFailed = "Error downloading file from the store"
	msgExportFailed   = "Error downloading files from the store"
	msgFileFailed     = "Error serving file"
)

// archiveName is the attachment name of every exported page.
const archiveName = "files.zip"

// multipartMemory is the part of a multipart form kept in memory; larger
// files spill to temporary files removed after the request.
const multipartMemory = 32 << 20

type uploadResponse struct {
	Message  string                 `json:"message"`
	Files    []filestore.ObjectInfo `json:"files"`
	Rejected []upload.Rejection     `json:"rejected,omitempty"`
}

type downloadResponse struct {
	DownloadFile string `json:"downloadFile"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, r, errs.Wrap(errs.ErrKindStoreUnavailable, "store unreachable", err), "store unreachable")
		return
	}
	respondJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxRequestBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(w, http.StatusRequestEntityTooLarge, messageResponse{Message: "Upload too large"})
			return
		}
		respondError(w, r, errs.Invalid("Invalid multipart form"), msgUploadFailed)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		files = append(files, upload.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				f, err := fh.Open()
				if err != nil {
					return nil, err
				}
				return f, nil
			},
		})
	}

	res, err := s.uploader.Upload(r.Context(), files)
	if err != nil {
		respondError(w, r, err, msgUploadFailed)
		return
	}
	respondJSON(w, http.StatusOK, uploadResponse{
		Message:  upload.SuccessMessage,
		Files:    res.Files,
		Rejected: res.Rejected,
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	req, err := paging.PageRequestFromQuery(r.URL.Query(), s.cfg.Pagination)
	if err != nil {
		respondError(w, r, err, msgListFailed)
		return
	}

	page, err := s.pages.ListPage(r.Context(), s.bucket, req)
	if err != nil {
		respondError(w, r, err, msgListFailed)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	key, err := pathParam(r, "fileName")
	if err != nil {
		respondError(w, r, err, msgDownloadFailed)
		return
	}

	if _, err := s.store.StatObject(r.Context(), s.bucket, key); err != nil {
		respondError(w, r, err, msgDownloadFailed)
		return
	}
	u, err := s.store.PresignGetURL(r.Context(), s.bucket, key, s.cfg.Store.PresignTTL)
	if err != nil {
		respondError(w, r, err, msgDownloadFailed)
		return
	}

	if redirect, _ := strconv.ParseBool(r.URL.Query().Get("redirect")); redirect {
		http.Redirect(w, r, u, http.StatusFound)
		return
	}
	respondJSON(w, http.StatusOK, downloadResponse{DownloadFile: u})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	key, err := pathParam(r, "key")
	if err != nil {
		respondError(w, r, err, msgFileFailed)
		return
	}
	target, err := convert.ParseFormat(r.URL.Query().Get("typeFile"))
	if err != nil {
		respondError(w, r, err, msgFileFailed)
		return
	}

	started := false
	err = s.pipeline.FetchAndConvert(r.Context(), key, target, func(rend *convert.Rendition) error {
		h := w.Header()
		h.Set("Content-Type", rend.ContentType)
		h.Set("Content-Length", strconv.FormatInt(rend.Size, 10))
		h.Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": rend.Name}))
		w.WriteHeader(http.StatusOK)
		started = true

		_, err := io.Copy(w, rend.Reader)
		return err
	})
	if err == nil {
		return
	}
	if started {
		logger.FromContext(r.Context()).ErrorWith("rendition stream aborted", err, map[string]any{"key": key})
		return
	}
	respondError(w, r, err, msgFileFailed)
}

func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	req, err := paging.PageRequestFromQuery(r.URL.Query(), s.cfg.Pagination)
	if err != nil {
		respondError(w, r, err, msgExportFailed)
		return
	}

	opened := false
	_, err = s.exporter.ExportPage(r.Context(), s.bucket, req, func() (io.Writer, error) {
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": archiveName}))
		w.WriteHeader(http.StatusOK)
		opened = true
		return w, nil
	})
	if err != nil && !opened {
		respondError(w, r, err, msgExportFailed)
	}
}

// pathParam returns the URL parameter name as an object key. chi matches
// against r.URL.RawPath when it is set (an escaped slash or similar in the
// request), so only then is the value still escaped; otherwise it was
// decoded once already and must be taken verbatim.
func pathParam(r *http.Request, name string) (string, error) {
	v := chi.URLParam(r, name)
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(v)
		if err != nil {
			return "", errs.Invalid("%s is not a valid path segment", name)
		}
		v = unescaped
	}
	if v == "" {
		return "", errs.Invalid("%s is required", name)
	}
	return v, nil
}
