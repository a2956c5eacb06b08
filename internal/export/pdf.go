// Package export renders generated recipes as a downloadable PDF.
package export

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"fridgechef/internal/recipe"
)

// ContentType and FileName describe the exported document.
const (
	ContentType = "application/pdf"
	FileName    = "recipes.pdf"
)

// PDF lays out one section per recipe: a centered "Recipe N" heading, the
// recipe text verbatim, then vertical space. Content streams are left
// uncompressed.
func PDF(recipes []recipe.Recipe) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)

	// Core fonts only cover cp1252.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for i, r := range recipes {
		pdf.CellFormat(0, 10, fmt.Sprintf("Recipe %d", i+1), "", 1, "C", false, 0, "")
		pdf.MultiCell(0, 10, tr(r.Text), "", "L", false)
		pdf.Ln(10)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
