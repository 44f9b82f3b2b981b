package render

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/go-pdf/fpdf"
)

// A4 portrait in points.
const (
	pageWidth  = 595.28
	pageHeight = 841.89
)

// frame is the printable area of a page.
type frame struct {
	left, right, top, bottom float64
}

func marginFrame(margin float64) frame {
	return frame{left: margin, right: pageWidth - margin, top: margin, bottom: pageHeight - margin}
}

func (f frame) width() float64 {
	return f.right - f.left
}

// TextRun is one line of text as placed on a page.
type TextRun struct {
	Page  int
	X, Y  float64
	Width float64
	Size  float64
	Bold  bool
	Text  string
}

// SectionMark records where a section banner was drawn.
type SectionMark struct {
	Title string
	Page  int
	Y     float64
}

// canvas wraps one fpdf document and records what is drawn on it.
type canvas struct {
	pdf      *fpdf.Fpdf
	frame    frame
	theme    Theme
	logger   *slog.Logger
	assets   *assetSet
	texts    []TextRun
	sections []SectionMark
	warnings []string
}

func newCanvas(title string, created time.Time, fr frame, theme Theme, assets *assetSet, logger *slog.Logger) *canvas {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(fr.left, fr.top, pageWidth-fr.right)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCellMargin(0)
	pdf.SetCatalogSort(true)
	if created.IsZero() {
		created = time.Unix(0, 0)
	}
	created = created.UTC()
	pdf.SetCreationDate(created)
	pdf.SetModificationDate(created)
	pdf.SetTitle(title, true)
	pdf.SetAuthor("MTR Industry", true)
	pdf.SetCreator("mtr-backoffice", true)
	pdf.SetProducer("mtr-backoffice", true)
	pdf.SetLineWidth(1)
	return &canvas{pdf: pdf, frame: fr, theme: theme, logger: logger, assets: assets}
}

func (c *canvas) page() int {
	return c.pdf.PageNo()
}

func (c *canvas) addPage() {
	c.pdf.AddPage()
}

func (c *canvas) setFont(bold bool, size float64) {
	style := ""
	if bold {
		style = "B"
	}
	c.pdf.SetFont("Helvetica", style, size)
}

func (c *canvas) textColor(col Color) {
	c.pdf.SetTextColor(col.R, col.G, col.B)
}

func (c *canvas) fillColor(col Color) {
	c.pdf.SetFillColor(col.R, col.G, col.B)
}

func (c *canvas) drawColor(col Color) {
	c.pdf.SetDrawColor(col.R, col.G, col.B)
}

// textAt draws already encoded text with its top at y. align is one of
// "L", "C" or "R" within width.
func (c *canvas) textAt(raw string, x, y, width, size float64, isBold bool, align string) {
	if align == "" {
		align = "L"
	}
	c.setFont(isBold, size)
	c.pdf.SetXY(x, y)
	c.pdf.CellFormat(width, size, raw, "", 0, align+"T", false, 0, "")
	c.texts = append(c.texts, TextRun{
		Page:  c.page(),
		X:     x,
		Y:     y,
		Width: width,
		Size:  size,
		Bold:  isBold,
		Text:  decode(raw),
	})
}

// text draws UTF-8 text at a fixed size without fitting.
func (c *canvas) text(s string, x, y, width, size float64, isBold bool, align string) {
	if s == "" {
		return
	}
	c.textAt(encode(s), x, y, width, size, isBold, align)
}

func (c *canvas) line(x1, y1, x2, y2 float64) {
	c.pdf.Line(x1, y1, x2, y2)
}

func (c *canvas) strokeRect(x, y, w, h float64) {
	c.pdf.Rect(x, y, w, h, "D")
}

func (c *canvas) fillRect(x, y, w, h float64, col Color) {
	c.fillColor(col)
	c.pdf.Rect(x, y, w, h, "F")
}

func (c *canvas) markSection(title string, y float64) {
	c.sections = append(c.sections, SectionMark{Title: title, Page: c.page(), Y: y})
}

func (c *canvas) warn(msg string, attrs ...any) {
	c.warnings = append(c.warnings, msg)
	if c.logger != nil {
		c.logger.Warn(msg, attrs...)
	}
}

// finish serialises the document.
func (c *canvas) finish(op string) (*Result, error) {
	if err := c.pdf.Error(); err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	var buf bytes.Buffer
	if err := c.pdf.Output(&buf); err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	return &Result{
		PDF:      buf.Bytes(),
		Pages:    c.page(),
		Texts:    c.texts,
		Sections: c.sections,
		Warnings: c.warnings,
	}, nil
}
