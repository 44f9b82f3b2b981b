package render

import (
	"context"
	"strconv"
)

const (
	complaintMargin  = 40
	complaintTop     = 30
	complaintRowH    = 18
	complaintLabelW  = 95
	complaintSpacing = 28
)

// complaintBox draws a banner followed by a box of label/value rows and
// returns the y below it. The box keeps its nominal height unless the rows
// need more.
func (l *layout) complaintBox(title string, rows []pair, minH float64, filled bool, y float64) float64 {
	left, width := l.frame.left, l.frame.width()
	h := max(minH, float64(len(rows))*complaintRowH+16)
	y = l.ensureSpace(y, l.theme.BannerH+h)
	y = l.sectionBanner(title, y)

	if filled {
		l.fillRect(left, y, width, h, l.theme.Light)
	}
	l.drawColor(l.theme.Border)
	l.pdf.SetLineWidth(1)
	l.strokeRect(left, y, width, h)

	l.textColor(l.theme.Text)
	ry := y + 8
	for _, row := range rows {
		l.fitOneLine(row.label, left+10, ry, complaintLabelW-4, bold(10, 8))
		l.fitOneLine(oneLine(row.value), left+10+complaintLabelW, ry, width-20-complaintLabelW, regular(10, 7))
		ry += complaintRowH
	}
	return y + h + complaintSpacing
}

func relatedDocumentRows(d RelatedDocument) []pair {
	delivery := Placeholder
	if d.DeliveryDate != nil {
		delivery = formatDate(*d.DeliveryDate)
	}
	quantity := ""
	if d.Quantity != nil {
		quantity = strconv.Itoa(*d.Quantity)
	}
	return []pair{
		{"Type doc :", d.Kind.Label()},
		{"Numéro :", d.Number},
		{"Date livr. :", delivery},
		{"Réf prod. :", d.ProductRef},
		{"Quantité :", quantity},
	}
}

// RenderComplaint renders a client complaint.
func (r *Renderer) RenderComplaint(ctx context.Context, snap ComplaintSnapshot) (*Result, error) {
	const op = "complaint"
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	return r.run(op, func() (*Result, error) {
		c := r.newCanvas("Réclamation "+snap.Number, snap.CreatedAt, marginFrame(complaintMargin), complaintTheme)
		l := &layout{canvas: c}
		l.addPage()

		left, width := l.frame.left, l.frame.width()
		if logo := l.asset("assets/logo_MTR.png", "assets/logo.png"); logo != nil {
			l.placeFit(logo, left, complaintTop, 90, 90, false)
		}
		l.textColor(l.theme.Primary)
		l.text("Réclamation client", left, complaintTop+16, width, 18, true, "C")
		l.textColor(l.theme.Text)
		l.metaLine("Réf : ", Safe(snap.Number), complaintTop+52)
		l.metaLine("Date : ", formatDateTime(snap.CreatedAt), complaintTop+68)

		y := float64(complaintTop + 90)
		y = l.complaintBox("Client", []pair{
			{"Nom :", snap.Client.DisplayName},
			{"Email :", snap.Client.Email},
			{"Tél :", snap.Client.Phone},
			{"Adresse :", snap.Client.Address},
		}, 120, false, y)
		y = l.complaintBox("Commande", relatedDocumentRows(snap.Document), 140, false, y)
		l.complaintBox("Réclamation", []pair{
			{"Nature :", snap.Nature},
			{"Attente :", snap.Expectation},
		}, 56, true, y)
		return c.finish(op)
	})
}
