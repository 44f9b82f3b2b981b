package render

import (
	"regexp"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// Placeholder is printed wherever a value is missing.
const Placeholder = "—"

// lineHeightFactor approximates the Helvetica line height for a font size.
const lineHeightFactor = 1.156

var (
	newlineRun = regexp.MustCompile(`\s*\n+\s*`)

	// Runes without a Windows-1252 glyph that still have an obvious
	// readable substitute.
	fallbacks = strings.NewReplacer(
		"\u202f", " ",
		"\u2009", " ",
		"\u2212", "-",
		"\u2010", "-",
		"\u2011", "-",
		"\u2264", "<=",
		"\u2265", ">=",
		"\u2300", "\u00d8",
		"\u2080", "0", "\u2081", "1", "\u2082", "2", "\u2083", "3", "\u2084", "4",
		"\u2085", "5", "\u2086", "6", "\u2087", "7", "\u2088", "8", "\u2089", "9",
		"\r\n", "\n",
		"\r", "\n",
	)
)

// hasText reports whether s carries anything besides whitespace.
func hasText(s string) bool {
	return strings.TrimSpace(s) != ""
}

// Safe returns s trimmed, or the placeholder when it is blank.
func Safe(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Placeholder
	}
	return s
}

// oneLine is Safe with newline runs collapsed to a single space.
func oneLine(s string) string {
	return newlineRun.ReplaceAllString(Safe(s), " ")
}

// encode translates UTF-8 text to the Windows-1252 bytes expected by the
// core PDF fonts. Unmappable runes become '?'.
func encode(s string) string {
	s = fallbacks.Replace(norm.NFC.String(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x80 {
			b.WriteByte(byte(r))
			continue
		}
		if c, ok := charmap.Windows1252.EncodeRune(r); ok {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('?')
	}
	return b.String()
}

// decode maps encoded bytes back to UTF-8 for the layout trace.
func decode(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c < 0x80 {
			b.WriteByte(c)
			continue
		}
		b.WriteRune(charmap.Windows1252.DecodeByte(c))
	}
	return b.String()
}

func lineHeight(size float64) float64 {
	return size * lineHeightFactor
}

// fitOneLine draws text on a single line starting at (x, y), shrinking the
// font by half points from maxSize until it fits maxWidth or reaches
// minSize. Text still too wide at minSize is clipped to the box. It returns
// the font size used.
func (c *canvas) fitOneLine(text string, x, y, maxWidth float64, st textStyle) float64 {
	size := st.maxSize
	if text == "" {
		return size
	}
	raw := encode(text)
	c.setFont(st.bold, size)
	for size > st.minSize && c.pdf.GetStringWidth(raw) > maxWidth {
		size -= 0.5
		if size < st.minSize {
			size = st.minSize
		}
		c.setFont(st.bold, size)
	}
	clipped := c.pdf.GetStringWidth(raw) > maxWidth
	if clipped {
		c.pdf.ClipRect(x, y-1, maxWidth, lineHeight(size)+2, false)
	}
	c.textAt(raw, x, y, maxWidth, size, st.bold, st.align)
	if clipped {
		c.pdf.ClipEnd()
	}
	return size
}

// textStyle configures fitOneLine.
type textStyle struct {
	bold    bool
	maxSize float64
	minSize float64
	align   string
}

func bold(maxSize, minSize float64) textStyle {
	return textStyle{bold: true, maxSize: maxSize, minSize: minSize}
}

func regular(maxSize, minSize float64) textStyle {
	return textStyle{maxSize: maxSize, minSize: minSize}
}

func (s textStyle) aligned(align string) textStyle {
	s.align = align
	return s
}

// wrap splits text into the lines it occupies at the current font and
// width. Explicit newlines are kept.
func (c *canvas) wrap(text string, width float64) []string {
	raw := encode(strings.TrimSpace(text))
	if raw == "" {
		return nil
	}
	parts := c.pdf.SplitLines([]byte(raw), width)
	lines := make([]string, len(parts))
	for i, p := range parts {
		lines[i] = strings.TrimRight(string(p), " ")
	}
	return lines
}
