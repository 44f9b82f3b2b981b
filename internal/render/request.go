package render

import (
	"context"
	"math"
)

const schemaTitle = "Schéma"

// schema draws the illustrations that exist on disk. Nothing is drawn,
// not even the banner, when none does.
func (l *layout) schema(s schemaLayout, y float64) float64 {
	var refs []*imageRef
	for _, candidates := range s.images {
		if ref := l.asset(candidates...); ref != nil {
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return y
	}
	left, width := l.frame.left, l.frame.width()
	need := s.topH + 26
	if len(refs) >= 3 {
		need = s.topH + s.bottomH + 36
	}
	y = l.ensureSpace(y, l.theme.BannerH+need)
	y = l.sectionBanner(schemaTitle, y)

	colW := math.Floor((width - s.gap) / 2)
	switch len(refs) {
	case 1:
		w := min(width, s.singleMaxW)
		l.placeFit(refs[0], left+(width-w)/2, y+8, w, s.topH, true)
		return y + s.topH + s.after
	case 2:
		l.placeFit(refs[0], left, y+8, colW, s.topH, true)
		l.placeFit(refs[1], left+colW+s.gap, y+8, colW, s.topH, true)
		return y + s.topH + s.after
	default:
		l.placeFit(refs[0], left, y+8, colW, s.topH, true)
		l.placeFit(refs[1], left+colW+s.gap, y+8, colW, s.topH, true)
		bottomW := colW
		if s.bottomFrac > 0 {
			bottomW = min(math.Floor(width*s.bottomFrac), s.bottomMaxW)
		}
		l.placeFit(refs[2], left+(width-bottomW)/2, y+8+s.topH+12, bottomW, s.bottomH, true)
		return y + s.topH + s.bottomH + s.after
	}
}

// requestFooter closes the last page with the generation notice.
func (l *layout) requestFooter(notice string, y float64) {
	if notice == "" {
		return
	}
	bottom := l.frame.bottom
	if y > bottom-60 {
		l.newPage()
	}
	l.rule(bottom - 54)
	l.textColor(l.theme.Muted)
	l.text(notice, l.frame.left, bottom-46, l.frame.width(), 8, false, "C")
	l.textColor(l.theme.Text)
}

// specPairs resolves the variant fields against the snapshot values.
func (v variant) specPairs(spec map[string]string) []pair {
	pairs := make([]pair, len(v.fields))
	for i, f := range v.fields {
		pairs[i] = pair{label: f.label, value: oneLine(f.value(spec))}
	}
	return pairs
}

// RenderRequest renders a quote request of any kind.
func (r *Renderer) RenderRequest(ctx context.Context, snap RequestSnapshot) (*Result, error) {
	const op = "request"
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	v, ok := variantFor(snap.Kind)
	if !ok {
		return nil, &Error{Op: op, Err: ErrUnknownKind}
	}

	return r.run("request:"+string(snap.Kind), func() (*Result, error) {
		c := r.newCanvas("Demande de devis "+snap.Number, snap.CreatedAt, marginFrame(40), r.branding.requestTheme())
		l := &layout{canvas: c}
		l.addPage()

		y := l.header(v.header, v.subtitle, snap.Number, formatDateTime(snap.CreatedAt))
		y = l.keyValuePanel("Client", partyPairs(snap.Submitter), y)
		y = l.schema(v.schema, y)
		y = l.specTable(v.tableTitle, pairRows(v.specPairs(snap.Spec)), v.table, y)
		if v.description && hasText(snap.Spec["description"]) {
			y = l.freeText(textBlock{title: "Description de l'article", text: snap.Spec["description"]}, y)
		}
		y = l.closingBlocks([]textBlock{
			{title: "Exigences particulières", text: snap.Requirements},
			{title: "Autres remarques", text: snap.Remarks},
		}, y)
		l.requestFooter(r.branding.FooterNotice, y)
		return c.finish(op)
	})
}
