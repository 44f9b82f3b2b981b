package render

import "math"

// specRow is one table row: a left and a right label/value cell.
type specRow struct {
	left, right pair
}

// tableGeometry sizes a two-column spec table.
type tableGeometry struct {
	rowH        float64
	labelLeftW  float64
	labelRightW float64
	textDY      float64
	maxSize     float64
}

const tablePadX = 6

var (
	defaultTable     = tableGeometry{rowH: 28, labelLeftW: 170, labelRightW: 185, textDY: 6, maxSize: 10.5}
	compressionTable = tableGeometry{rowH: 30, labelLeftW: 180, labelRightW: 200, textDY: 7, maxSize: 11}
)

// pairRows lays fields out two per row. An odd count leaves the last
// right cell blank.
func pairRows(fields []pair) []specRow {
	rows := make([]specRow, 0, (len(fields)+1)/2)
	for i := 0; i < len(fields); i += 2 {
		row := specRow{left: fields[i]}
		if i+1 < len(fields) {
			row.right = fields[i+1]
		}
		rows = append(rows, row)
	}
	return rows
}

// specTable draws the titled two-column table as one unit and returns the
// y below it. The table is never split across pages.
func (l *layout) specTable(title string, rows []specRow, g tableGeometry, y float64) float64 {
	left, right, width := l.frame.left, l.frame.right, l.frame.width()
	halfW := math.Floor(width / 2)
	valueLeftW := halfW - (g.labelLeftW + tablePadX*3)
	valueRightW := halfW - (g.labelRightW + tablePadX*3)
	tableH := float64(len(rows)) * g.rowH

	y = l.ensureSpace(y, l.theme.BannerH+tableH+10)
	y = l.sectionBanner(title, y)
	if len(rows) == 0 {
		return y + 12
	}

	top := y
	l.pdf.SetLineWidth(1)
	labelStyle := bold(g.maxSize, 8)
	valueStyle := regular(g.maxSize, 7.5)
	for i, row := range rows {
		yy := top + float64(i)*g.rowH
		if i%2 == 0 {
			l.fillRect(left, yy, width, g.rowH, l.theme.Light)
		}
		l.drawColor(l.theme.Border)
		l.line(left, yy, right, yy)
		l.line(left+halfW, yy, left+halfW, yy+g.rowH)

		l.textColor(l.theme.Text)
		ty := yy + g.textDY
		l.cell(row.left, left+tablePadX, ty, g.labelLeftW, valueLeftW, labelStyle, valueStyle)
		l.cell(row.right, left+halfW+tablePadX, ty, g.labelRightW, valueRightW, labelStyle, valueStyle)
	}
	l.drawColor(l.theme.Border)
	l.strokeRect(left, top, width, tableH)
	return top + tableH + 12
}

// cell prints one label/value half row. A zero pair is the blank padding
// cell of an odd field list.
func (l *layout) cell(p pair, x, y, labelW, valueW float64, labelStyle, valueStyle textStyle) {
	if p == (pair{}) {
		return
	}
	l.fitOneLine(p.label, x, y, labelW, labelStyle)
	l.fitOneLine(Safe(p.value), x+labelW+tablePadX, y, valueW, valueStyle)
}
