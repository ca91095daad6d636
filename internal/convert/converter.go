package convert

import (
	"context"
	"sync"
)

// Converter turns the file at inputPath into the file at outputPath.
// Implementations must not touch any other path than outputPath and
// whatever temporary data they keep under its directory.
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string) error
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(ctx context.Context, inputPath, outputPath string) error

func (f ConverterFunc) Convert(ctx context.Context, inputPath, outputPath string) error {
	return f(ctx, inputPath, outputPath)
}

type route struct {
	from, to Format
}

// Registry maps (source, target) format pairs to converters.
type Registry struct {
	mu     sync.RWMutex
	routes map[route]Converter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[route]Converter)}
}

// Register routes from → to through c, replacing any earlier entry.
func (r *Registry) Register(from, to Format, c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[route{from, to}] = c
}

// Lookup returns the converter for from → to.
func (r *Registry) Lookup(from, to Format) (Converter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.routes[route{from, to}]
	return c, ok
}

// DefaultRegistry wires the built-in converters: pdfcpu for raster images
// to PDF, excelize for spreadsheets to CSV, and LibreOffice for the office
// formats.
func DefaultRegistry(office *Soffice) *Registry {
	r := NewRegistry()

	images := ImageToPDF()
	r.Register(JPEG, PDF, images)
	r.Register(PNG, PDF, images)

	r.Register(XLSX, CSV, SheetToCSV())

	for _, from := range []Format{DOCX, XLSX, PPTX, ODT, ODS, TXT, HTML, SVG} {
		r.Register(from, PDF, office)
	}
	for _, to := range []Format{ODT, TXT, HTML} {
		r.Register(DOCX, to, office)
	}
	r.Register(ODT, DOCX, office)
	r.Register(XLSX, ODS, office)
	r.Register(ODS, XLSX, office)
	r.Register(PPTX, PNG, office)

	return r
}
