package render

import "math"

const (
	freeTextSize    = 10
	freeTextPadX    = 10
	freeTextMinH    = 56
	freeTextGap     = 10
	freeTextMinRows = 3
)

// textBlock is a titled paragraph block.
type textBlock struct {
	title string
	text  string
}

// freeText draws a titled, bordered, wrapped text block and returns the y
// below it. Blocks taller than a page continue on the next pages under a
// "(suite)" banner.
func (l *layout) freeText(b textBlock, y float64) float64 {
	width := l.frame.width()
	l.setFont(false, freeTextSize)
	lines := l.wrap(b.text, width-2*freeTextPadX)
	lh := lineHeight(freeTextSize)
	title := b.title

	for {
		h := max(freeTextMinH, float64(len(lines))*lh+14)
		need := l.theme.BannerH + h + freeTextGap
		if y+need <= l.frame.bottom {
			return l.drawTextBlock(title, lines, h, y)
		}
		if l.frame.top+need <= l.frame.bottom {
			y = l.newPage()
			continue
		}
		room := l.frame.bottom - y - l.theme.BannerH - freeTextGap - 14
		n := int(math.Floor(room / lh))
		if n < freeTextMinRows {
			y = l.newPage()
			continue
		}
		l.drawTextBlock(title, lines[:n], float64(n)*lh+14, y)
		lines = lines[n:]
		title = b.title + " (suite)"
		y = l.newPage()
	}
}

func (l *layout) drawTextBlock(title string, lines []string, h, y float64) float64 {
	left, width := l.frame.left, l.frame.width()
	y = l.sectionBanner(title, y)
	l.fillRect(left, y, width, h, white)
	l.drawColor(l.theme.Border)
	l.strokeRect(left, y, width, h)

	l.textColor(l.theme.Text)
	lh := lineHeight(freeTextSize)
	for i, line := range lines {
		if line == "" {
			continue
		}
		l.textAt(line, left+freeTextPadX, y+8+float64(i)*lh, width-2*freeTextPadX, freeTextSize, false, "L")
	}
	return y + h + freeTextGap
}

// closingBlocks draws requirement and remark blocks together, starting on
// a fresh page when either is present.
func (l *layout) closingBlocks(blocks []textBlock, y float64) float64 {
	var present []textBlock
	for _, b := range blocks {
		if hasText(b.text) {
			present = append(present, b)
		}
	}
	if len(present) == 0 {
		return y
	}
	y = l.newPage()
	for _, b := range present {
		y = l.freeText(b, y)
	}
	return y
}
