package report

import (
	"fmt"

	"github.com/go-pdf/fpdf"
)

// RenderPDFToFile renders a minimal PDF from the results. It is not a pixel-perfect HTML render
// but provides a cross-platform, CGO-free PDF artifact.
func RenderPDFToFile(r *Results, path string) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("cbcflip report", false)
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "cbcflip report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, "Generated: "+r.GeneratedAt.Format(timeLayout))
	pdf.Ln(8)
	for _, run := range r.Runs {
		pdf.SetFont("Arial", "B", 12)
		pdf.MultiCell(0, 6, fmt.Sprintf("%s [%s]", run.Target, run.State), "", "L", false)
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, fmt.Sprintf("Run %s  cookie=%s  block=%d  layout=%s  requests=%d", run.RunID, run.Cookie, run.BlockSize, run.Layout, run.Requests), "", "L", false)
		if run.Error != "" {
			pdf.MultiCell(0, 5, "Error: "+run.Error, "", "L", false)
		}
		pdf.SetFont("Courier", "", 9)
		for _, p := range run.Positions {
			pdf.MultiCell(0, 4, fmt.Sprintf("byte %3d off %3d  %s -> %s  expected %s  chosen %s  (%d candidates)",
				p.Index, p.Offset, p.Old, p.New, p.Expected, choose(p.Chosen == "", "-", p.Chosen), len(p.Candidates)), "", "L", false)
		}
		if run.FinalToken != "" {
			pdf.MultiCell(0, 4, "final token: "+run.FinalToken, "", "L", false)
		}
		if run.FinalStatus != 0 {
			pdf.MultiCell(0, 4, fmt.Sprintf("final status: %d", run.FinalStatus), "", "L", false)
		}
		pdf.Ln(4)
	}
	return pdf.OutputFileAndClose(path)
}
