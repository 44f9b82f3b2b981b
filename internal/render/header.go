package render

const (
	safeTop       = 10
	headerShiftUp = 28
	metaFontSize  = 10
	metaLineGap   = 14
)

// headerLayout positions the logo, titles and meta lines of a document.
// The logo lift and the title drop are tuned independently.
type headerLayout struct {
	logo            []string
	logoW, logoH    float64
	logoGap         float64
	logoExtraUp     float64
	title           string
	titleSize       float64
	titleOffsetDown float64
	subtitleSize    float64
	metaLabel       string
	afterMeta       float64
}

var requestHeader = headerLayout{
	logo:            []string{"assets/logo.png"},
	logoW:           210,
	logoH:           100,
	logoGap:         12,
	logoExtraUp:     18,
	title:           "Demande de devis",
	titleSize:       20,
	titleOffsetDown: 36,
	subtitleSize:    22,
	metaLabel:       "N° : ",
	afterMeta:       34,
}

// header draws the document header and returns the y below its closing
// rule. An empty subtitle skips the second title line.
func (l *layout) header(h headerLayout, subtitle, number, date string) float64 {
	left, width := l.frame.left, l.frame.width()
	headerY := max(safeTop, l.frame.top-headerShiftUp)

	if logo := l.asset(h.logo...); logo != nil {
		logoY := max(safeTop-2, headerY-h.logoGap-h.logoExtraUp)
		l.placeFit(logo, left, logoY, h.logoW, h.logoH, false)
	}

	l.textColor(l.theme.Primary)
	titleTop := headerY + h.titleOffsetDown
	l.text(h.title, left, titleTop, width, h.titleSize, true, "C")
	metaTop := titleTop + lineHeight(h.titleSize) + 6
	if subtitle != "" {
		subTop := titleTop + lineHeight(h.titleSize) + 4
		l.text(subtitle, left, subTop, width, h.subtitleSize, true, "C")
		metaTop = subTop + lineHeight(h.subtitleSize) + 6
	}

	l.textColor(l.theme.Text)
	l.metaLine(h.metaLabel, Safe(number), metaTop)
	l.metaLine("Date : ", date, metaTop+metaLineGap)

	l.rule(metaTop + 24)
	return metaTop + h.afterMeta
}

// metaLine prints a bold value anchored to the right margin with its
// regular label just before it.
func (l *layout) metaLine(label, value string, y float64) {
	rawValue := encode(value)
	l.setFont(true, metaFontSize)
	valueW := l.pdf.GetStringWidth(rawValue)
	valueX := l.frame.right - valueW
	l.textAt(rawValue, valueX, y, valueW, metaFontSize, true, "L")

	rawLabel := encode(label)
	l.setFont(false, metaFontSize)
	labelW := l.pdf.GetStringWidth(rawLabel)
	l.textAt(rawLabel, valueX-labelW, y, labelW, metaFontSize, false, "L")
}
