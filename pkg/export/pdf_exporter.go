package export

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions tunes document layout. Landscape suits wide route manifests.
type PDFOptions struct {
	Title     string
	Subtitle  string
	Landscape bool
}

// PDFExporter renders a Dataset as a simple one-table A4 document.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

const (
	portraitWidth  = 190.0
	landscapeWidth = 277.0
)

// Render draws the optional title block and one bordered table with equal
// column widths.
func (e *PDFExporter) Render(data Dataset, opts PDFOptions) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, errors.New("dataset has no headers")
	}

	orientation, tableWidth := "P", portraitWidth
	if opts.Landscape {
		orientation, tableWidth = "L", landscapeWidth
	}

	doc := gofpdf.New(orientation, "mm", "A4", "")
	doc.SetMargins(10, 15, 10)
	doc.AddPage()
	writeTitleBlock(doc, opts)

	colWidth := tableWidth / float64(len(data.Headers))
	doc.SetFont("Arial", "B", 10)
	for _, h := range data.Headers {
		doc.CellFormat(colWidth, 8, h, "1", 0, "C", false, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, h := range data.Headers {
			doc.CellFormat(colWidth, 7, row[h], "1", 0, "", false, 0, "")
		}
		doc.Ln(-1)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTitleBlock(doc *gofpdf.Fpdf, opts PDFOptions) {
	if opts.Title == "" && opts.Subtitle == "" {
		return
	}
	if opts.Title != "" {
		doc.SetFont("Arial", "B", 14)
		doc.CellFormat(0, 10, opts.Title, "", 1, "C", false, 0, "")
	}
	if opts.Subtitle != "" {
		doc.SetFont("Arial", "", 10)
		doc.CellFormat(0, 6, opts.Subtitle, "", 1, "C", false, 0, "")
	}
	doc.Ln(4)
}
