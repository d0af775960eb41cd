package exportsvc

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
)

// column widths in mm, A4 landscape
var pdfWidths = []float64{32, 44, 28, 32, 20, 12, 14, 18, 14, 21, 21, 21}

func WritePDF(w io.Writer, r Report) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("") // core fonts are cp1252
	pdf.SetTitle(tr(r.Title), false)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AliasNbPages("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(r.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, "Generated "+formatTime(&r.GeneratedAt)+" UTC", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	printHeader := func() {
		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range header {
			pdf.CellFormat(pdfWidths[i], 7, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}
	printHeader()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range r.Rows {
		if pdf.GetY()+6 > pageHeight-bottom-12 {
			pdf.AddPage()
			printHeader()
		}
		for i, value := range record(row) {
			align := "L"
			if i >= 5 && i <= 8 {
				align = "R"
			}
			pdf.CellFormat(pdfWidths[i], 6, tr(fit(value, pdfWidths[i])), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(r.Rows) == 0 {
		pdf.CellFormat(0, 8, "No progress recorded.", "", 1, "L", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return errors.Wrap(err, "writing pdf")
	}
	return nil
}

// fit truncates s to roughly fit a cell of width mm at font size 8.
func fit(s string, width float64) string {
	max := int(width / 1.6)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
