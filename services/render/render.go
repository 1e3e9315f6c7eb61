// Package rendersvc produces the binary documents handed out by the platform:
// enrollment QR codes, certificates and evaluation instruments.
package rendersvc

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"

	"github.com/eventsoft/eventsoft/core/certificate"
	"github.com/eventsoft/eventsoft/core/enrollment"
	"github.com/eventsoft/eventsoft/core/instrument"
)

const qrSize = 256 // px

type Renderer struct{}

var (
	_ enrollment.QRRenderer = (*Renderer)(nil)
	_ certificate.Renderer  = (*Renderer)(nil)
	_ instrument.Renderer   = (*Renderer)(nil)
)

func New() *Renderer {
	return &Renderer{}
}

func (Renderer) RenderQR(payload string) ([]byte, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, qrSize)
	return png, errors.Wrap(err, "encoding QR code")
}

func (Renderer) RenderCertificate(doc certificate.Document) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	width, _ := pdf.GetPageSize()
	inner := width - 40

	pdf.SetDrawColor(40, 60, 120)
	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, width-20, 190, "D")

	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(inner, 10, tr(doc.Institution), "", 1, "C", false, 0, "")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "B", 28)
	pdf.CellFormat(inner, 14, tr(doc.Title), "", 1, "C", false, 0, "")
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(inner, 12, tr(doc.RecipientName), "", 1, "C", false, 0, "")
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 13)
	pdf.MultiCell(inner, 7, tr(doc.Body), "", "C", false)
	if doc.DateRange != "" {
		pdf.Ln(2)
		pdf.CellFormat(inner, 7, tr(doc.DateRange), "", 1, "C", false, 0, "")
	}

	sigY := 150.0
	if len(doc.Signature) > 0 {
		imgType, err := imageType(doc.Signature)
		if err != nil {
			return nil, err
		}
		opts := fpdf.ImageOptions{ImageType: imgType}
		pdf.RegisterImageOptionsReader("signature", opts, bytes.NewReader(doc.Signature))
		pdf.ImageOptions("signature", width/2-25, sigY-22, 50, 20, false, opts, 0, "")
	}
	pdf.Line(width/2-40, sigY, width/2+40, sigY)
	pdf.SetY(sigY + 2)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(inner, 6, tr(doc.SignerName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(inner, 6, tr(doc.SignerTitle), "", 1, "C", false, 0, "")

	pdf.SetY(185)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(inner, 5, tr("Certificado N.° "+doc.CertificateID), "", 0, "R", false, 0, "")

	return output(pdf)
}

func (Renderer) RenderInstrument(eventName string, inst instrument.Instrument) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	width, _ := pdf.GetPageSize()
	inner := width - 40

	pdf.SetFont("Helvetica", "B", 18)
	pdf.MultiCell(inner, 9, tr(inst.Title), "", "L", false)
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(inner, 6, tr(eventName), "", 1, "L", false, 0, "")
	pdf.CellFormat(inner, 6, fmt.Sprintf("Versión %d - publicada el %s", inst.Version, inst.PublishedAt.Format("2006-01-02")), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	cols := []struct {
		title string
		w     float64
		align string
	}{{"#", 10, "C"}, {"Criterio", inner - 60, "L"}, {"Peso", 25, "R"}, {"Acumulado", 25, "R"}}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(230, 234, 245)
	for _, c := range cols {
		pdf.CellFormat(c.w, 8, tr(c.title), "1", 0, c.align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for i, c := range inst.Criteria {
		row := []string{
			fmt.Sprint(i + 1),
			truncate(c.Description, 80),
			fmt.Sprintf("%.2f", c.Weight),
			fmt.Sprintf("%.2f", c.RunningSum),
		}
		for j, col := range cols {
			pdf.CellFormat(col.w, 7, tr(row[j]), "1", 0, col.align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	return output(pdf)
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Wrap(err, "rendering pdf")
	}
	return buf.Bytes(), nil
}

func imageType(img []byte) (string, error) {
	switch http.DetectContentType(img) {
	case "image/png":
		return "PNG", nil
	case "image/jpeg":
		return "JPG", nil
	default:
		return "", certificate.ErrInvalidSignature
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
