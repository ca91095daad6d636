package convert

import (
	"context"
	"encoding/csv"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/koustreak/filegate/internal/errs"
)

// SheetToCSV returns a converter writing the first sheet of a workbook as
// CSV. Cancellation is checked between rows.
func SheetToCSV() Converter {
	return ConverterFunc(sheetToCSV)
}

func sheetToCSV(ctx context.Context, inputPath, outputPath string) error {
	f, err := excelize.OpenFile(inputPath)
	if err != nil {
		return errs.Wrap(errs.ErrKindConversionFailed, "failed to open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return errs.New(errs.ErrKindConversionFailed, "workbook has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return errs.Wrap(errs.ErrKindConversionFailed, "failed to read sheet "+sheets[0], err)
	}
	defer rows.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return errs.Wrap(errs.ErrKindConversionFailed, "failed to create csv output", err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.ErrKindConversionFailed, "conversion cancelled", err)
		}
		record, err := rows.Columns()
		if err != nil {
			return errs.Wrap(errs.ErrKindConversionFailed, "failed to read row", err)
		}
		if err := w.Write(record); err != nil {
			return errs.Wrap(errs.ErrKindConversionFailed, "failed to write csv row", err)
		}
	}
	if err := rows.Error(); err != nil {
		return errs.Wrap(errs.ErrKindConversionFailed, "failed to iterate rows", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return errs.Wrap(errs.ErrKindConversionFailed, "failed to flush csv output", err)
	}
	return out.Close()
}
