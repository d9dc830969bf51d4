package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateContent is what gets printed on an internship certificate.
type CertificateContent struct {
	CertificateNumber string
	VerificationCode  string
	StudentRef        string
	EnterpriseRef     string
	UniversityRef     string
	StartDate         time.Time
	EndDate           time.Time
	OverallScore      string
	Mention           string
	MentionLabel      string
	IssuedAt          time.Time
	VerifyURL         string
}

// PDFExporter renders certificates and tabular reports with gofpdf.
type PDFExporter struct {
	title string
}

// NewPDFExporter constructs a PDF exporter. title heads every certificate.
func NewPDFExporter(title string) *PDFExporter {
	if title == "" {
		title = "Certificate of Internship"
	}
	return &PDFExporter{title: title}
}

// RenderCertificate lays out a landscape A4 certificate.
func (e *PDFExporter) RenderCertificate(content CertificateContent) ([]byte, error) {
	if content.CertificateNumber == "" || content.VerificationCode == "" {
		return nil, fmt.Errorf("certificate number and verification code required")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetCreationDate(content.IssuedAt)
	pdf.SetTitle(content.CertificateNumber, true)
	pdf.AddPage()

	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, 277, 190, "D")

	pdf.SetFont("Helvetica", "B", 26)
	pdf.CellFormat(0, 20, e.title, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 13)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, content.StudentRef, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 13)
	pdf.CellFormat(0, 8, fmt.Sprintf("completed an internship at %s", content.EnterpriseRef), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("from %s to %s", content.StartDate.Format("2006-01-02"), content.EndDate.Format("2006-01-02")), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("under the academic supervision of %s", content.UniversityRef), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 15)
	pdf.CellFormat(0, 10, fmt.Sprintf("Overall score %s / 20  -  Mention %s (%s)", content.OverallScore, content.Mention, content.MentionLabel), "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Certificate number: %s", content.CertificateNumber), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Verification code: %s", content.VerificationCode), "", 1, "L", false, 0, "")
	if content.VerifyURL != "" {
		pdf.CellFormat(0, 6, fmt.Sprintf("Verify at: %s", content.VerifyURL), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued: %s", content.IssuedAt.UTC().Format(time.RFC3339)), "", 1, "L", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderTable creates a portrait PDF with a title and a bordered table.
func (e *PDFExporter) RenderTable(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Helvetica", "B", 9)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
