package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/filegate/internal/config"
	"github.com/koustreak/filegate/internal/convert"
	"github.com/koustreak/filegate/internal/filestore"
	"github.com/koustreak/filegate/internal/filestore/memstore"
	"github.com/koustreak/filegate/internal/logger"
	"github.com/koustreak/filegate/internal/metrics"
	"github.com/koustreak/filegate/internal/paging"
)

const bucket = "uploads"

type fixture struct {
	store   *memstore.Store
	handler http.Handler
	scratch string
}

func newFixture(t *testing.T, objects int, opts ...func(*config.Config)) *fixture {
	t.Helper()
	for _, name := range []string{
		config.EnvAddr, config.EnvPort, config.EnvLogLevel, config.EnvLogFormat,
		filestore.EnvProvider, filestore.EnvBucket, filestore.EnvAWSBucket, filestore.EnvBatchSize,
		convert.EnvScratchDir, convert.EnvSofficePath, paging.EnvDefaultPageSize, paging.EnvMaxPageSize,
	} {
		t.Setenv(name, "")
	}

	scratch := t.TempDir()
	cfg := &config.Config{
		Store:   filestore.Config{Provider: filestore.ProviderMemory, Bucket: bucket, BatchSize: 4},
		Convert: convert.Config{ScratchDir: scratch},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	require.NoError(t, cfg.Finalize())

	store := memstore.New(memstore.WithBatchSize(4))
	store.CreateBucket(bucket)
	for i := 0; i < objects; i++ {
		store.Put(bucket, fmt.Sprintf("file-%02d.txt", i), []byte(fmt.Sprintf("body of file %d", i)), "text/plain")
	}

	srv := New(cfg, store, metrics.New(), logger.Nop())
	return &fixture{store: store, handler: srv.Handler(), scratch: scratch}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	return f.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Message
}

func TestListFiles_ThirdPage(t *testing.T) {
	f := newFixture(t, 25)

	rec := f.get(t, "/files?page=3&pageSize=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var page paging.PageResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 10, page.PageSize)
	assert.Equal(t, 25, page.TotalItems)
	require.Len(t, page.Items, 5)
	assert.Equal(t, "file-20.txt", page.Items[0].Key)
	assert.Equal(t, "file-24.txt", page.Items[4].Key)
}

func TestListFiles_Errors(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		status  int
		message string
	}{
		{name: "beyond last page", target: "/files?page=4&pageSize=10", status: http.StatusNotFound, message: paging.NotFoundMessage},
		{name: "zero page", target: "/files?page=0", status: http.StatusBadRequest, message: paging.InvalidPageMessage},
		{name: "not a number", target: "/files?pageSize=ten", status: http.StatusBadRequest, message: paging.InvalidPageMessage},
		{name: "above max", target: "/files?pageSize=5000", status: http.StatusBadRequest, message: paging.InvalidPageMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 25)
			rec := f.get(t, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, message(t, rec))
		})
	}
}

func TestListFiles_StoreFailure(t *testing.T) {
	f := newFixture(t, 25)
	f.store.FailList(func(call int) error {
		if call == 2 {
			return errors.New("connection reset")
		}
		return nil
	})

	rec := f.get(t, "/files?page=1&pageSize=10")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgListFailed, message(t, rec))
}

func TestDownloadAll_RoundTrip(t *testing.T) {
	f := newFixture(t, 12)

	rec := f.get(t, "/download-all?page=2&pageSize=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=files.zip", rec.Header().Get("Content-Disposition"))

	data := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
		rc, err := zf.Open()
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()

		obj, err := f.store.GetObject(context.Background(), bucket, zf.Name)
		require.NoError(t, err)
		want, err := io.ReadAll(obj)
		require.NoError(t, err)
		obj.Close()
		assert.Equal(t, want, got)
	}
	assert.Equal(t, []string{"file-05.txt", "file-06.txt", "file-07.txt", "file-08.txt", "file-09.txt"}, names)
}

func TestDownloadAll_EmptyPage(t *testing.T) {
	f := newFixture(t, 3)

	rec := f.get(t, "/download-all?page=2&pageSize=5")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, paging.NotFoundMessage, message(t, rec))
}

func TestDownloadAll_StoreFailureBeforeStreaming(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{
			name: "list fails",
			setup: func(f *fixture) {
				f.store.FailList(func(int) error { return errors.New("connection reset") })
			},
		},
		{
			name: "object gone after listing",
			setup: func(f *fixture) {
				f.store.OnGet(func(_ context.Context, key string) error {
					f.store.Delete(bucket, key)
					return nil
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 6)
			tt.setup(f)

			rec := f.get(t, "/download-all?page=1&pageSize=5")
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, msgExportFailed, message(t, rec))
		})
	}
}

func TestDownloadAll_InvalidPage(t *testing.T) {
	f := newFixture(t, 3)

	rec := f.get(t, "/download-all?page=-1&pageSize=5")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownload(t *testing.T) {
	f := newFixture(t, 3)

	rec := f.get(t, "/download/file-01.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	var body downloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(body.DownloadFile, "memory://uploads/file-01.txt"))

	rec = f.get(t, "/download/file-01.txt?redirect=true")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, body.DownloadFile, rec.Header().Get("Location"))

	rec = f.get(t, "/download/missing.txt")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFile_Passthrough(t *testing.T) {
	f := newFixture(t, 0)
	f.store.Put(bucket, "report.pdf", []byte("%PDF-1.7 report"), "application/pdf")

	rec := f.get(t, "/file/report.pdf?typeFile=pdf")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `inline; filename=report.pdf`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.7 report", rec.Body.String())

	entries, err := os.ReadDir(f.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFile_KeysAreDecodedOnce(t *testing.T) {
	f := newFixture(t, 0)
	f.store.Put(bucket, "a%41.txt", []byte("literal"), "text/plain")
	f.store.Put(bucket, "aA.txt", []byte("other"), "text/plain")
	f.store.Put(bucket, "100%.txt", []byte("percent"), "text/plain")
	f.store.Put(bucket, "docs/a.txt", []byte("nested"), "text/plain")

	tests := []struct {
		target string
		body   string
	}{
		{target: "/file/a%2541.txt?typeFile=txt", body: "literal"},
		{target: "/file/aA.txt?typeFile=txt", body: "other"},
		{target: "/file/100%25.txt?typeFile=txt", body: "percent"},
		{target: "/file/docs%2Fa.txt?typeFile=txt", body: "nested"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := f.get(t, tt.target)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestDownload_KeysAreDecodedOnce(t *testing.T) {
	f := newFixture(t, 0)
	f.store.Put(bucket, "100%.txt", []byte("percent"), "text/plain")
	f.store.Put(bucket, "a%41.txt", []byte("literal"), "text/plain")

	for _, target := range []string{"/download/100%25.txt", "/download/a%2541.txt"} {
		t.Run(target, func(t *testing.T) {
			rec := f.get(t, target)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var body downloadResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.DownloadFile)
		})
	}

	rec := f.get(t, "/download/aA.txt")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFile_ConverterFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-soffice")
	f := newFixture(t, 0, func(cfg *config.Config) {
		cfg.Convert.SofficePath = missing
	})
	f.store.Put(bucket, "letter.docx", []byte("PK not really a docx"),
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document")

	rec := f.get(t, "/file/letter.docx?typeFile=pdf")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgFileFailed, message(t, rec))

	entries, err := os.ReadDir(f.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFile_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "missing typeFile", target: "/file/report.pdf", status: http.StatusBadRequest},
		{name: "unknown typeFile", target: "/file/report.pdf?typeFile=exe", status: http.StatusBadRequest},
		{name: "unsupported pair", target: "/file/report.pdf?typeFile=csv", status: http.StatusBadRequest},
		{name: "missing key", target: "/file/nope.pdf?typeFile=pdf", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			f.store.Put(bucket, "report.pdf", []byte("%PDF-1.7 report"), "application/pdf")

			rec := f.get(t, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, message(t, rec))

			entries, err := os.ReadDir(f.scratch)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

type part struct {
	name        string
	contentType string
	body        string
}

func multipartRequest(t *testing.T, parts []part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, p.name))
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write([]byte(p.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.do(t, multipartRequest(t, []part{
		{name: "My Report.pdf", contentType: "application/pdf", body: "%PDF report"},
		{name: "virus.exe", contentType: "application/x-msdownload", body: "MZ"},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Upload successful", body.Message)
	require.Len(t, body.Files, 1)
	assert.Equal(t, "My_Report.pdf", body.Files[0].Key)
	require.Len(t, body.Rejected, 1)

	info, err := f.store.StatObject(context.Background(), bucket, "My_Report.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(len("%PDF report")), info.Size)
}

func TestUpload_Rejections(t *testing.T) {
	eleven := make([]part, 11)
	for i := range eleven {
		eleven[i] = part{name: fmt.Sprintf("f%d.pdf", i), contentType: "application/pdf", body: "x"}
	}

	tests := []struct {
		name    string
		parts   []part
		message string
	}{
		{name: "too many files", parts: eleven, message: "Exceeded maximum number of files (10)"},
		{name: "no allowed type", parts: []part{{name: "a.exe", contentType: "application/x-msdownload", body: "MZ"}}, message: "Invalid file type"},
		{name: "no files", parts: nil, message: "Invalid file type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			rec := f.do(t, multipartRequest(t, tt.parts))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.message, message(t, rec))
		})
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	f := newFixture(t, 0)
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")

	rec := f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, 1)

	rec := f.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	f.get(t, "/files")
	rec = f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `filegate_http_requests_total{code="200",method="GET",route="/files"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, 0)

	req := httptest.NewRequest(http.MethodOptions, "/files", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	rec := f.do(t, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
