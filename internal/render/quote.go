package render

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/mtr-industry/mtr-backoffice/internal/pricing"
)

const (
	quoteMargin = 30
	nbAlias     = "{nb}"

	infoMinY     = 118
	infoBoxH     = 76
	infoGap      = 16
	infoBandH    = 20
	infoRowSize  = 9
	infoRowGap   = 14
	footerOffset = 90
	qrSide       = 70
)

// quoteHeader draws the logo with the company headline beside it and
// returns the logo height.
func (l *layout) quoteHeader(b Branding) float64 {
	left, width := l.frame.left, l.frame.width()
	var logoH float64
	if logo := l.asset("assets/logo_MTR.png", "assets/logo.png"); logo != nil {
		_, logoH = l.placeFit(logo, left, 6, 190, 90, false)
	}

	titleX, titleW := left+208, width-208
	l.textColor(l.theme.Text)
	for i, line := range b.Headline {
		if i > 1 {
			break
		}
		l.fitOneLine(line, titleX, 28+float64(i)*20, titleW, bold(20, 12).aligned("C"))
	}
	for i, line := range b.Taglines {
		if i > 1 {
			break
		}
		l.fitOneLine(line, titleX, 74+float64(i)*15, titleW, regular(11, 8).aligned("C"))
	}
	return logoH
}

// requestNumbers merges the request references of the quote with those
// of its items, first occurrence first.
func requestNumbers(snap QuoteSnapshot) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(n string) {
		n = strings.TrimSpace(n)
		if n == "" {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	for _, n := range snap.RelatedRequestNumbers {
		add(n)
	}
	for _, it := range snap.Items {
		add(it.RequestNumber)
	}
	return out
}

// infoBox draws a titled box whose rows print a bold label followed by
// its value.
func (l *layout) infoBox(title string, x, y, w float64, rows []pair) {
	l.drawColor(l.theme.Border)
	l.pdf.SetLineWidth(1)
	l.strokeRect(x, y, w, infoBoxH)
	l.fillRect(x, y, w, infoBandH, l.theme.Light)
	l.strokeRect(x, y, w, infoBandH)
	l.textColor(l.theme.Text)
	l.text(title, x, y+3, w, 13, true, "C")
	l.markSection(title, y)

	ry := y + 24
	for _, row := range rows {
		raw := encode(row.label)
		l.setFont(true, infoRowSize)
		labelW := l.pdf.GetStringWidth(raw)
		l.textAt(raw, x+8, ry, labelW, infoRowSize, true, "L")
		vx := x + 8 + labelW + 3
		l.fitOneLine(oneLine(row.value), vx, ry, x+w-8-vx, regular(infoRowSize, 7))
		ry += infoRowGap
	}
}

// infoBoxes draws the quote identity box and the client box side by side.
func (l *layout) infoBoxes(snap QuoteSnapshot, y float64) {
	left, width := l.frame.left, l.frame.width()
	leftW := math.Round(width * 0.45)
	rightW := width - leftW - infoGap

	l.infoBox("Devis - Offre de Prix", left, y, leftW, []pair{
		{"NUMERO : ", snap.Number},
		{"Du : ", formatDate(snap.CreatedAt)},
		{"N° DDV : ", strings.Join(requestNumbers(snap), ", ")},
		{"PAGE ", "1 / " + nbAlias},
	})
	l.infoBox("Client", left+leftW+infoGap, y, rightW, []pair{
		{"Code : ", strings.ToUpper(strings.TrimSpace(snap.Client.DisplayName))},
		{"Adresse : ", snap.Client.Address},
		{"Code TVA : ", snap.Client.TaxCode},
		{"Tél. : ", snap.Client.Phone},
	})
}

// footerQR resolves the footer QR code: the scanned asset when present,
// otherwise one generated from the branding target.
func (l *layout) footerQR(b Branding) *imageRef {
	if ref := l.asset("assets/Code_QR_fb.png"); ref != nil {
		return ref
	}
	if b.QRTarget == "" {
		return nil
	}
	return l.qrImage(b.QRTarget, 256)
}

// quoteFooter prints the company lines at the bottom of every page.
func (l *layout) quoteFooter(b Branding, qr *imageRef) {
	left := l.frame.left
	footY := pageHeight - footerOffset
	textW := l.frame.width() - qrSide - 8
	l.textColor(l.theme.Text)

	leftLines := []string{
		"Adresse : " + b.Address,
		"Code TVA : " + b.TaxCode,
		"E-mail : " + b.Email,
		"GSM : " + b.Mobile,
	}
	for i, s := range leftLines {
		w := textW
		if i > 0 {
			w = 290
		}
		l.fitOneLine(s, left, footY+float64(i)*14, w, regular(9, 6.5))
	}

	right := left + 300
	rightW := textW - 300
	l.fitOneLine("TEL : "+b.Phone, right, footY+14, rightW, regular(9, 6.5))
	l.fitOneLine("FAX : "+b.Fax, right, footY+28, rightW, regular(9, 6.5))
	l.text(fmt.Sprintf("Page %d / %s", l.page(), nbAlias), right, footY+42, rightW, 9, false, "L")

	if qr != nil {
		l.placeFit(qr, l.frame.right-qrSide, footY-6, qrSide, qrSide, true)
	}
}

// RenderQuote renders a formal quote with its totals recap.
func (r *Renderer) RenderQuote(ctx context.Context, snap QuoteSnapshot) (*Result, error) {
	const op = "quote"
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	return r.run(op, func() (*Result, error) {
		c := r.newCanvas("Devis "+snap.Number, snap.CreatedAt, marginFrame(quoteMargin), quoteTheme)
		l := &layout{canvas: c}

		totals := pricing.Compute(snap.Lines(), snap.Adjustments)
		if len(totals.UnbucketedRates) > 0 {
			c.warn("vat rate outside recap",
				slog.String("quote", snap.Number),
				slog.String("rates", strings.Join(totals.UnbucketedRates, ",")),
				slog.String("base", money(totals.Unbucketed)))
		}

		qr := l.footerQR(r.branding)
		c.pdf.AliasNbPages(nbAlias)
		c.pdf.SetFooterFunc(func() { l.quoteFooter(r.branding, qr) })
		l.addPage()

		logoH := l.quoteHeader(r.branding)
		infoY := max(infoMinY, 6+logoH+12)
		l.infoBoxes(snap, infoY)

		bodyBottom := pageHeight - footReserved - max(recapHeight(totals), tvaHeight()) - 18
		y := l.itemTable(itemColumns(l.frame.width()), snap.Items, infoY+infoBoxH+18, bodyBottom)
		l.recap(totals, y)
		return c.finish(op)
	})
}
