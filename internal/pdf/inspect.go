// Package pdf reads facts about compiled PDFs.
package pdf

import (
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"arxindle/internal/logger"
	"arxindle/internal/types"
)

// pointsPerInch converts PDF user space units to inches.
const pointsPerInch = 72.0

// Inspect returns page count, first page size and file size of a PDF.
func Inspect(path string) (*types.PDFInfo, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "cannot access PDF", err)
	}
	if fileInfo.IsDir() {
		return nil, types.NewAppErrorWithDetails(types.ErrInternal, "not a PDF file", path, nil)
	}

	pages, err := PageCount(path)
	if err != nil {
		return nil, err
	}

	dims, err := api.PageDimsFile(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to read page dimensions", err)
	}
	if len(dims) == 0 {
		return nil, types.NewAppErrorWithDetails(types.ErrInternal, "PDF has no pages", path, nil)
	}
	if len(dims) != pages {
		logger.Warn("page count mismatch between readers",
			logger.String("file", path),
			logger.Int("pages", pages),
			logger.Int("dims", len(dims)))
	}

	return &types.PDFInfo{
		PageCount: pages,
		WidthIn:   dims[0].Width / pointsPerInch,
		HeightIn:  dims[0].Height / pointsPerInch,
		FileSize:  fileInfo.Size(),
	}, nil
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (count int, err error) {
	// The reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			err = types.NewAppError(types.ErrInternal, "malformed PDF", fmt.Errorf("%v", r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, types.NewAppError(types.ErrInternal, "failed to open PDF", err)
	}
	defer f.Close()

	return r.NumPage(), nil
}
