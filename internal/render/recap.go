package render

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/mtr-industry/mtr-backoffice/internal/pricing"
)

const (
	recapCellH   = 16
	recapW       = 215
	recapLabelW  = 105
	recapValueW  = 110
	tvaHeaderH   = 18
	tvaFontSize  = 9
	tvaFixedColW = 80
)

type recapLine struct {
	label  string
	amount decimal.Decimal
	bold   bool
}

func recapLines(t pricing.Totals) []recapLine {
	lines := []recapLine{
		{label: "MONTANT HT", amount: t.NetAmount},
		{label: "MT REMISE", amount: t.Discount},
		{label: "MT NET HT", amount: t.NetAfterDiscount},
		{label: "M.FODEC", amount: t.Fodec},
		{label: "MTVA", amount: t.VAT},
	}
	if !t.StampDuty.IsZero() {
		lines = append(lines, recapLine{label: "Timbre Fiscal", amount: t.StampDuty})
	}
	return append(lines, recapLine{label: "MTTC", amount: t.GrandTotal, bold: true})
}

func recapHeight(t pricing.Totals) float64 {
	return float64(len(recapLines(t)))*recapCellH + 8
}

func tvaHeight() float64 {
	return tvaHeaderH + 2*recapCellH + 8
}

// levelFiller is the height of the grey block levelling the VAT grid
// with the totals box.
func levelFiller(recapBottom, tvaBottom float64) float64 {
	return max(recapBottom-tvaBottom, 0)
}

// recap draws the totals box on the right and the per-rate VAT grid on
// its left, both starting at y. It returns the height of the filler drawn
// under the grid.
func (l *layout) recap(t pricing.Totals, y float64) float64 {
	left := l.frame.left
	recapX := l.frame.right - recapW

	l.drawColor(l.theme.Border)
	l.pdf.SetLineWidth(1)
	l.textColor(l.theme.Text)
	l.markSection("Récapitulatif", y)

	yRecap := y
	for _, line := range recapLines(t) {
		l.strokeRect(recapX, yRecap, recapLabelW, recapCellH)
		l.strokeRect(recapX+recapLabelW, yRecap, recapValueW, recapCellH)
		l.text(line.label, recapX+6, yRecap+3, recapLabelW-6, itemFontSize, line.bold, "L")
		l.text(money(line.amount), recapX+recapLabelW, yRecap+3, recapValueW-6, itemFontSize, line.bold, "R")
		yRecap += recapCellH
	}

	tvaW := recapX - left - 12
	yTva := l.tvaGrid(t, left, y, tvaW)

	filler := levelFiller(yRecap, yTva)
	if filler > 0 {
		l.fillRect(left, yTva+2, tvaW, filler, l.theme.Muted)
		l.strokeRect(left, yTva+2, tvaW, filler)
	}
	return filler
}

// tvaGrid draws the FODEC column and one column per standard VAT rate and
// returns the y below it.
func (l *layout) tvaGrid(t pricing.Totals, x, y, width float64) float64 {
	rest := width - 2*tvaFixedColW
	rateW := math.Floor((rest - 14) / 4)
	widths := []float64{tvaFixedColW, tvaFixedColW, rateW, rateW, rateW, rest - 3*rateW}
	aligns := []string{"L", "C", "R", "R", "R", "R"}

	headers := []string{"TAUX", "FODEC " + pricing.Percent(t.FodecPct) + "%"}
	base := []string{"BASE", money(t.NetAfterDiscount)}
	vat := []string{"MT", money(t.Fodec)}
	for _, b := range t.Buckets {
		headers = append(headers, decimal.NewFromInt32(b.Rate).String()+" %")
		base = append(base, money(b.Base))
		vat = append(vat, money(b.VAT))
	}

	l.fillRect(x, y, width, tvaHeaderH, l.theme.Light)
	l.strokeRect(x, y, width, tvaHeaderH)
	l.tvaRow(headers, widths, aligns, x, y, tvaHeaderH, true)
	y += tvaHeaderH
	for _, row := range [][]string{base, vat} {
		l.strokeRect(x, y, width, recapCellH)
		l.tvaRow(row, widths, aligns, x, y, recapCellH, false)
		y += recapCellH
	}
	return y
}

func (l *layout) tvaRow(cells []string, widths []float64, aligns []string, x, y, h float64, header bool) {
	for i, cell := range cells {
		w := widths[i]
		l.fitOneLine(cell, x+4, y+3, w-8, textStyle{bold: header || i == 0, maxSize: tvaFontSize, minSize: 7, align: aligns[i]})
		if i < len(cells)-1 {
			l.line(x+w, y, x+w, y+h)
		}
		x += w
	}
}

func money(d decimal.Decimal) string {
	return pricing.Money(pricing.Round3(d))
}
