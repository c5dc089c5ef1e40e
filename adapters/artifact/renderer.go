package artifact

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/layer-3/certify/core"
	"github.com/layer-3/certify/ports"
	"github.com/skip2/go-qrcode"
	"golang.org/x/text/encoding/charmap"
)

const (
	// ScanCodeSize is the edge of the QR image in pixels.
	ScanCodeSize = 300

	pageWidth  = 595.0
	pageHeight = 842.0
	scanEdge   = ScanCodeSize / 2.0
	dateLayout = "January 2, 2006"
)

// Renderer implements ports.ArtifactRenderer with go-qrcode and fpdf.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

var _ ports.ArtifactRenderer = (*Renderer)(nil)

// ScanCode encodes the hash as a PNG QR code at the highest recovery level.
func (r *Renderer) ScanCode(hash string) ([]byte, error) {
	if hash == "" {
		return nil, artifactError("encode scan code", errors.New("empty input"))
	}
	q, err := qrcode.New(hash, qrcode.Highest)
	if err != nil {
		return nil, artifactError("encode scan code", err)
	}
	png, err := q.PNG(ScanCodeSize)
	if err != nil {
		return nil, artifactError("encode scan code", err)
	}
	return png, nil
}

// Printable reports whether the core fonts can set every text field of data.
// The core fonts only cover Windows-1252.
func (r *Renderer) Printable(data core.DocumentData) error {
	if _, err := winLatin(data.OwnerName, data.CourseName, data.IssuerName); err != nil {
		return core.Wrap(core.KindValidation, "names must use Latin characters", err)
	}
	return nil
}

// Document lays out a one page A4 certificate.
func (r *Renderer) Document(data core.DocumentData, scanCode []byte) ([]byte, error) {
	if len(scanCode) == 0 {
		return nil, artifactError("render document", errors.New("missing scan code"))
	}
	text, err := winLatin(data.OwnerName, data.CourseName, data.IssuerName)
	if err != nil {
		return nil, artifactError("render document", err)
	}
	ownerName, courseName, issuerName := text[0], text[1], text[2]

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetCreationDate(data.IssuedAt)
	pdf.SetModificationDate(data.IssuedAt)
	pdf.SetTitle("Certificate "+data.Hash, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	centered := func(text string, y float64) {
		pdf.Text((pageWidth-pdf.GetStringWidth(text))/2, y, text)
	}

	pdf.SetTextColor(0, 0, 128)
	pdf.SetFont("Times", "B", 36)
	centered("CERTIFICATE", 100)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Times", "", 14)
	centered("This is to certify that", 180)
	pdf.SetFont("Times", "B", 24)
	centered(ownerName, 220)
	pdf.SetFont("Times", "", 14)
	centered("has successfully completed", 270)
	pdf.SetFont("Times", "B", 20)
	centered(courseName, 310)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(50, 380, "Issued by: "+issuerName)
	pdf.Text(50, 400, "Issue Date: "+data.IssuedAt.Format(dateLayout))

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(77, 77, 77)
	pdf.Text(50, 450, "Certificate Hash:")

	line1, line2 := splitHash(data.Hash)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(128, 128, 128)
	pdf.Text(50, 470, line1)
	pdf.Text(50, 485, line2)

	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("scan", opts, bytes.NewReader(scanCode))
	pdf.ImageOptions("scan", pageWidth-scanEdge-50, 500-scanEdge, scanEdge, scanEdge, false, opts, 0, "")
	pdf.Text(pageWidth-scanEdge-30, 520, "Scan to verify")

	pdf.SetDrawColor(0, 0, 128)
	pdf.SetLineWidth(2)
	pdf.Rect(40, 40, pageWidth-80, pageHeight-80, "D")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, artifactError("render document", err)
	}
	return buf.Bytes(), nil
}

// winLatin encodes fields to Windows-1252 and fails on the first rune the
// code page lacks.
func winLatin(fields ...string) ([]string, error) {
	enc := charmap.Windows1252.NewEncoder()
	out := make([]string, len(fields))
	for i, f := range fields {
		s, err := enc.String(f)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", f, err)
		}
		out[i] = s
	}
	return out, nil
}

func splitHash(hash string) (string, string) {
	if len(hash) <= 32 {
		return hash, ""
	}
	return hash[:32], hash[32:]
}

func artifactError(stage string, err error) error {
	return core.Wrap(core.KindArtifact, core.ErrArtifact.Msg, fmt.Errorf("%s: %w", stage, err))
}
