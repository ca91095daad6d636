package convert

import (
	"context"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/koustreak/filegate/internal/errs"
)

// ImageToPDF returns a converter that places a JPEG or PNG image on a
// single PDF page.
func ImageToPDF() Converter {
	return ConverterFunc(imageToPDF)
}

func imageToPDF(ctx context.Context, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrKindConversionFailed, "conversion cancelled", err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ImportImagesFile([]string{inputPath}, outputPath, pdfcpu.DefaultImportConfig(), conf); err != nil {
		return errs.Wrap(errs.ErrKindConversionFailed, "failed to import image", err)
	}

	f, err := os.Open(outputPath)
	if err != nil {
		return errs.Wrap(errs.ErrKindConversionFailed, "converted pdf missing", err)
	}
	defer f.Close()

	pages, err := api.PageCount(f, conf)
	if err != nil {
		return errs.Wrap(errs.ErrKindConversionFailed, "converted pdf is unreadable", err)
	}
	if pages == 0 {
		return errs.New(errs.ErrKindConversionFailed, "converted pdf has no pages")
	}
	return nil
}
