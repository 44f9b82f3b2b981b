package render

import "time"

// layout carries the cursor of a flowing document.
type layout struct {
	*canvas
	y float64
}

// rule draws a full-width separator at y.
func (l *layout) rule(y float64) {
	l.drawColor(l.theme.Border)
	l.pdf.SetLineWidth(1)
	l.line(l.frame.left, y, l.frame.right, y)
}

// sectionBanner draws a filled band with a bold white label and returns
// the y just below it.
func (l *layout) sectionBanner(label string, y float64) float64 {
	w := l.frame.width()
	l.fillRect(l.frame.left, y, w, l.theme.BannerH, l.theme.Primary)
	l.textColor(white)
	l.text(label, l.frame.left+10, y+4, w-20, 11, true, "L")
	l.textColor(l.theme.Text)
	l.markSection(label, y)
	return y + l.theme.BannerH
}

// ensureSpace starts a new page when needed units do not fit below y and
// returns the y to draw at.
func (l *layout) ensureSpace(y, needed float64) float64 {
	if y+needed > l.frame.bottom {
		l.addPage()
		return l.frame.top
	}
	return y
}

// newPage starts a page unconditionally and returns its top.
func (l *layout) newPage() float64 {
	l.addPage()
	return l.frame.top
}

const (
	dateLayout     = "02/01/2006"
	dateTimeLayout = "02/01/2006 15:04"
)

// location is Tunisian time, UTC+1 all year.
var location = time.FixedZone("CET", 3600)

func formatDate(t time.Time) string {
	if t.IsZero() {
		return Placeholder
	}
	return t.In(location).Format(dateLayout)
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return Placeholder
	}
	return t.In(location).Format(dateTimeLayout)
}
