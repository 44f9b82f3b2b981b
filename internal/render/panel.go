package render

// pair is one label/value row.
type pair struct {
	label, value string
}

const (
	panelRowH   = 18
	panelLabelW = 120
)

// partyPairs lists the printable rows of a party, skipping empty values.
// Company and personal blocks appear when the account kind asks for them
// or when any of their fields is filled.
func partyPairs(p Party) []pair {
	var pairs []pair
	push := func(label, value string) {
		if hasText(value) {
			pairs = append(pairs, pair{label, oneLine(value)})
		}
	}

	push("Nom", p.DisplayName)
	switch p.AccountKind {
	case AccountCompany:
		push("Type de compte", "Société")
	case AccountPersonal:
		push("Type de compte", "Personnel")
	}
	push("Rôle", p.Role)

	corp := CorporateInfo{}
	if p.Corporate != nil {
		corp = *p.Corporate
	}
	if p.AccountKind == AccountCompany || hasText(corp.LegalName) || hasText(corp.TaxID) || hasText(corp.Position) {
		push("Raison sociale", corp.LegalName)
		push("Matricule fiscal", corp.TaxID)
		push("Poste (société)", corp.Position)
	}

	pers := PersonalInfo{}
	if p.Personal != nil {
		pers = *p.Personal
	}
	if p.AccountKind == AccountPersonal || hasText(pers.NationalID) || hasText(pers.Position) {
		push("CIN", pers.NationalID)
		push("Poste (personnel)", pers.Position)
	}

	push("Email", p.Email)
	push("Tél.", p.Phone)
	push("Adresse", p.Address)
	return pairs
}

// keyValuePanel draws a titled bordered box of label/value rows and
// returns the y below it. Rows never wrap; long values shrink.
func (l *layout) keyValuePanel(title string, pairs []pair, y float64) float64 {
	left, width := l.frame.left, l.frame.width()
	if len(pairs) == 0 {
		pairs = []pair{{"Nom", Placeholder}}
	}
	boxH := float64(len(pairs))*panelRowH + 8
	y = l.ensureSpace(y, l.theme.BannerH+boxH+12)
	y = l.sectionBanner(title, y)

	l.drawColor(l.theme.Border)
	l.strokeRect(left, y, width, boxH)

	l.textColor(l.theme.Text)
	cy := y + 6
	for _, p := range pairs {
		l.fitOneLine(p.label, left+8, cy, panelLabelW, bold(10, 8))
		l.fitOneLine(Safe(p.value), left+8+panelLabelW+6, cy, width-(panelLabelW+26), regular(10, 8))
		cy += panelRowH
	}
	return y + boxH + 14
}
