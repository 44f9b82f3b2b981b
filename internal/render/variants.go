package render

import "strings"

// field is one labelled value of a request specification.
type field struct {
	label string
	value func(spec map[string]string) string
}

// key reads the first non-blank of keys.
func key(label string, keys ...string) field {
	return field{label: label, value: func(spec map[string]string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(spec[k]); v != "" {
				return v
			}
		}
		return ""
	}}
}

// joined concatenates the non-blank values of keys, as for a value and
// its unit.
func joined(label string, keys ...string) field {
	return field{label: label, value: func(spec map[string]string) string {
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if v := strings.TrimSpace(spec[k]); v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, " ")
	}}
}

func fixed(label, value string) field {
	return field{label: label, value: func(map[string]string) string { return value }}
}

// schemaLayout places up to three illustrations. With three images the
// first two share the top row and the third is centred below.
type schemaLayout struct {
	images     [][]string
	gap        float64
	topH       float64
	bottomH    float64
	singleMaxW float64
	bottomFrac float64
	bottomMaxW float64
	after      float64
}

// variant configures the assembly of one request kind.
type variant struct {
	subtitle    string
	header      headerLayout
	tableTitle  string
	table       tableGeometry
	fields      []field
	schema      schemaLayout
	description bool
}

var (
	fieldWire      = key("Diamètre du fil (d)", "d")
	fieldFreeLen   = key("Longueur libre (Lo)", "Lo")
	fieldCoils     = key("Nombre total de spires", "nbSpires", "nbSires")
	fieldQuantity  = key("Quantité", "quantite")
	fieldMaterial  = key("Matière", "matiere")
	fieldWinding   = key("Sens d’enroulement", "enroulement")
	fieldOuterDiam = key("Diamètre extérieur (De)", "De", "DE")
)

var variants = map[RequestKind]variant{
	KindCompression: {
		subtitle: "Ressorts de Compression",
		header: func() headerLayout {
			h := requestHeader
			h.logoW, h.logoH = 230, 110
			h.logoGap, h.logoExtraUp = 14, 10
			h.titleOffsetDown = 24
			h.afterMeta = 38
			return h
		}(),
		tableTitle: "Spécifications principales",
		table:      compressionTable,
		fields: []field{
			fieldWire, key("Diamètre extérieur (DE)", "DE", "De"),
			key("Diamètre de l’alésage (H)", "H"), key("Diamètre de guide (S)", "S"),
			key("Diamètre intérieur (DI)", "DI"), fieldFreeLen,
			fieldCoils, key("Pas", "pas"),
			fieldQuantity, fieldMaterial,
			fieldWinding, key("Type d’extrémité du ressort", "extremite"),
		},
		schema: schemaLayout{
			images:     [][]string{{"assets/compression02.png"}, {"assets/compression01.png"}},
			gap:        18,
			topH:       150,
			singleMaxW: 360,
			after:      16,
		},
	},
	KindTraction: {
		subtitle:   "Ressorts de Traction",
		header:     requestHeader,
		tableTitle: "Spécifications principales",
		table:      defaultTable,
		fields: []field{
			fieldWire, fieldOuterDiam,
			fieldFreeLen, fieldCoils,
			fieldQuantity, fieldMaterial,
			fieldWinding, key("Position des anneaux", "positionAnneaux"),
			key("Type d’accrochage", "typeAccrochage"), fixed("Type de ressort", "Ressort de traction"),
		},
		schema: schemaLayout{
			images: [][]string{
				{"assets/traction00.png"},
				{"assets/traction01.png"},
				{"assets/traction02.png"},
			},
			gap:        12,
			topH:       120,
			bottomH:    120,
			singleMaxW: 380,
			bottomFrac: 0.55,
			bottomMaxW: 320,
			after:      18,
		},
	},
	KindTorsion: {
		subtitle:   "Ressort de Torsion",
		header:     requestHeader,
		tableTitle: "Spécifications principales",
		table:      defaultTable,
		fields: []field{
			fieldWire, fieldOuterDiam,
			key("Longueur du corps (Lc)", "Lc"), key("Angle de torsion (°)", "angle"),
			fieldCoils, key("Longueur branche 1 (L1)", "L1"),
			key("Longueur branche 2 (L2)", "L2"), fieldQuantity,
			fieldMaterial, fieldWinding,
			fixed("Type de ressort", "Ressort de torsion"),
		},
		schema: schemaLayout{
			images:     [][]string{{"assets/torsion.png"}},
			gap:        14,
			topH:       170,
			bottomH:    150,
			singleMaxW: 520,
			bottomFrac: 0.62,
			bottomMaxW: 400,
			after:      20,
		},
	},
	KindGrille: {
		subtitle:   "Grille métallique",
		header:     requestHeader,
		tableTitle: "Spécifications principales",
		table:      defaultTable,
		fields: []field{
			key("Longueur (L)", "L"), key("Largeur (l)", "l"),
			key("Tiges longitudinales", "nbLong"), key("Tiges transversales", "nbTrans"),
			key("Espacement longitudinal (pas1)", "pas1"), key("Espacement transversal (pas2)", "pas2"),
			key("Diamètre des tiges (D2)", "D2"), key("Diamètre du cadre (D1)", "D1"),
			fieldQuantity, fieldMaterial,
			key("Finition", "finition"),
		},
		schema: schemaLayout{
			images:     [][]string{{"assets/grille.png"}},
			gap:        12,
			topH:       150,
			singleMaxW: 380,
			after:      18,
		},
	},
	KindFilDresse: {
		subtitle:   "Fil dressé",
		header:     requestHeader,
		tableTitle: "Spécifications",
		table:      defaultTable,
		fields: []field{
			joined("Longueur", "longueurValeur", "longueurUnite"), key("Diamètre", "diametre"),
			joined("Quantité", "quantiteValeur", "quantiteUnite"), fieldMaterial,
		},
		schema: schemaLayout{
			images:     [][]string{{"assets/dresser.png"}},
			gap:        12,
			topH:       120,
			singleMaxW: 360,
			after:      18,
		},
	},
	KindAutre: {
		subtitle:   "Autre Type",
		header:     requestHeader,
		tableTitle: "Spécifications principales",
		table:      defaultTable,
		fields: []field{
			key("Désignation / Référence", "titre", "designation"), key("Dimensions principales", "dimensions", "dim", "dimension"),
			fieldQuantity, fieldMaterial,
			key("Matière (autre)", "matiereAutre"),
		},
		description: true,
	},
}

// variantFor returns the configuration of kind.
func variantFor(kind RequestKind) (variant, bool) {
	v, ok := variants[kind]
	return v, ok
}
