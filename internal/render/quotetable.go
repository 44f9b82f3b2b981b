package render

import (
	"math"

	"github.com/mtr-industry/mtr-backoffice/internal/pricing"
)

const (
	itemHeaderH  = 22
	itemRowH     = 22
	itemFontSize = 10
	// footReserved is kept free above the page bottom for the footer.
	footReserved = 120
)

// itemColumn is one column of the line-item table.
type itemColumn struct {
	label string
	w     float64
	align string
}

var (
	itemBaseWidths = []float64{78, 242, 64, 42, 60, 60, 46, 40}
	itemLabels     = []string{"Référence", "Libellé", "Quantité", "Unité", "PUHT", "Remise", "PT HT", "TVA"}
	itemAligns     = []string{"L", "L", "R", "C", "R", "R", "R", "R"}
)

// itemColumns scales the base widths to width. Widths are rounded and the
// last column absorbs the rounding remainder.
func itemColumns(width float64) []itemColumn {
	var sum float64
	for _, w := range itemBaseWidths {
		sum += w
	}
	scale := width / sum
	cols := make([]itemColumn, len(itemBaseWidths))
	var acc float64
	for i, base := range itemBaseWidths {
		w := math.Round(base * scale)
		if i == len(itemBaseWidths)-1 {
			w = width - acc
		}
		acc += w
		cols[i] = itemColumn{label: itemLabels[i], w: w, align: itemAligns[i]}
	}
	return cols
}

func itemValues(it LineItem) []string {
	return []string{
		oneLine(it.Reference),
		oneLine(it.Designation),
		pricing.Percent(it.Quantity),
		oneLine(it.Unit),
		pricing.Money(it.UnitPrice),
		pricing.Percent(it.DiscountPct),
		pricing.Money(it.Net()),
		pricing.Percent(it.VATPct),
	}
}

// itemTable draws the line items from y, breaking onto new pages above
// the footer reserve, and extends the column frame down to bodyBottom on
// the last page. It returns the y where the recap starts.
func (l *layout) itemTable(cols []itemColumn, items []LineItem, y, bodyBottom float64) float64 {
	pageLimit := pageHeight - footReserved
	bodyTop := l.itemHeader(cols, y)
	y = bodyTop

	for _, it := range items {
		if y+itemRowH > pageLimit {
			l.itemFrame(cols, bodyTop, y)
			l.addPage()
			bodyTop = l.itemHeader(cols, l.frame.top)
			y = bodyTop
		}
		x := l.frame.left
		for i, v := range itemValues(it) {
			c := cols[i]
			l.fitOneLine(v, x+4, y+5, c.w-8, regular(itemFontSize, 7).aligned(c.align))
			x += c.w
		}
		y += itemRowH
	}

	if y > bodyBottom {
		l.itemFrame(cols, bodyTop, y)
		l.addPage()
		return bodyBottom + 8
	}
	l.itemFrame(cols, bodyTop, max(y, bodyTop+1, bodyBottom))
	return bodyBottom + 8
}

func (l *layout) itemHeader(cols []itemColumn, y float64) float64 {
	left := l.frame.left
	l.drawColor(l.theme.Border)
	l.pdf.SetLineWidth(1)
	l.strokeRect(left, y, l.frame.width(), itemHeaderH)
	l.textColor(l.theme.Text)
	x := left
	for _, c := range cols {
		l.text(c.label, x+4, y+5, c.w-8, itemFontSize, true, c.align)
		x += c.w
		l.line(x, y, x, y+itemHeaderH)
	}
	return y + itemHeaderH
}

// itemFrame outlines the table body and its column separators.
func (l *layout) itemFrame(cols []itemColumn, top, bottom float64) {
	left := l.frame.left
	l.drawColor(l.theme.Border)
	l.strokeRect(left, top, l.frame.width(), max(0, bottom-top))
	x := left
	for _, c := range cols {
		x += c.w
		l.line(x, top, x, bottom)
	}
}
