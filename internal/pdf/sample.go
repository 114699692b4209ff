package pdf

import (
	gopdf "github.com/VantageDataChat/GoPDF2"
)

// Sample renders a PDF of blank pages of the given size in points. It is
// used to probe the rotation tools.
func Sample(pages int, widthPt, heightPt float64) []byte {
	if pages < 1 {
		pages = 1
	}
	doc := gopdf.GoPdf{}
	doc.Start(gopdf.Config{
		Unit:     gopdf.UnitPT,
		PageSize: gopdf.Rect{W: widthPt, H: heightPt},
	})
	for i := 0; i < pages; i++ {
		doc.AddPage()
	}
	return doc.GetBytesPdf()
}
