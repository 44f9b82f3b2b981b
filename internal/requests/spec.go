package requests

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/render"
)

// Number is a measurement typed by a client. It decodes from JSON numbers
// and from strings using either '.' or ',' as decimal separator. Blank
// strings decode to zero, which optional fields treat as absent.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*n = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	s = strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	if s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return fmt.Errorf("invalid number %q", s)
	}
	*n = Number(v)
	return nil
}

// CompressionSpec describes a compression spring.
type CompressionSpec struct {
	D           Number `json:"d" validate:"gt=0"`
	DE          Number `json:"DE" validate:"gt=0"`
	H           Number `json:"H,omitempty" validate:"omitempty,gt=0"`
	S           Number `json:"S,omitempty" validate:"omitempty,gt=0"`
	DI          Number `json:"DI" validate:"gt=0"`
	Lo          Number `json:"Lo" validate:"gt=0"`
	NbSpires    Number `json:"nbSpires" validate:"gt=0"`
	Pas         Number `json:"pas,omitempty" validate:"omitempty,gt=0"`
	Quantite    Number `json:"quantite" validate:"gt=0"`
	Matiere     string `json:"matiere" validate:"required,oneof='Fil ressort noir SH' 'Fil ressort noir SM' 'Fil ressort galvanisé' 'Fil ressort inox'"`
	Enroulement string `json:"enroulement,omitempty" validate:"omitempty,oneof='Enroulement gauche' 'Enroulement droite'"`
	Extremite   string `json:"extremite,omitempty" validate:"omitempty,oneof=ERM EL ELM ERNM"`
}

// TractionSpec describes an extension spring.
type TractionSpec struct {
	D               Number `json:"d" validate:"gt=0"`
	De              Number `json:"De" validate:"gt=0"`
	Lo              Number `json:"Lo" validate:"gt=0"`
	NbSpires        Number `json:"nbSpires" validate:"gt=0"`
	Quantite        Number `json:"quantite" validate:"gt=0"`
	Matiere         string `json:"matiere" validate:"required,oneof='Fil ressort noir SH' 'Fil ressort noir SM' 'Fil ressort galvanisé' 'Fil ressort inox'"`
	Enroulement     string `json:"enroulement" validate:"required,oneof='Enroulement gauche' 'Enroulement droite'"`
	PositionAnneaux string `json:"positionAnneaux" validate:"required,oneof=0° 90° 180° 270°"`
	TypeAccrochage  string `json:"typeAccrochage" validate:"required,oneof='Anneau Allemand' 'Double Anneau Allemand' 'Anneau tangent' 'Anneau allongé' 'Boucle Anglaise' 'Anneau tournant' 'Conification avec vis'"`
}

// TorsionSpec describes a torsion spring.
type TorsionSpec struct {
	D           Number `json:"d" validate:"gt=0"`
	De          Number `json:"De" validate:"gt=0"`
	Lc          Number `json:"Lc" validate:"gt=0"`
	Angle       Number `json:"angle" validate:"gt=0"`
	NbSpires    Number `json:"nbSpires" validate:"gt=0"`
	L1          Number `json:"L1" validate:"gt=0"`
	L2          Number `json:"L2" validate:"gt=0"`
	Quantite    Number `json:"quantite" validate:"gt=0"`
	Matiere     string `json:"matiere" validate:"required,oneof='Fil ressort noir SH' 'Fil ressort noir SM' 'Fil ressort galvanisé' 'Fil ressort inox'"`
	Enroulement string `json:"enroulement" validate:"required,oneof='Enroulement gauche' 'Enroulement droite'"`
}

// GrilleSpec describes a welded wire grid.
type GrilleSpec struct {
	L        Number `json:"L" validate:"gt=0"`
	Larg     Number `json:"l" validate:"gt=0"`
	NbLong   Number `json:"nbLong" validate:"gt=0"`
	NbTrans  Number `json:"nbTrans" validate:"gt=0"`
	Pas1     Number `json:"pas1" validate:"gt=0"`
	Pas2     Number `json:"pas2" validate:"gt=0"`
	D2       Number `json:"D2" validate:"gt=0"`
	D1       Number `json:"D1" validate:"gt=0"`
	Quantite Number `json:"quantite" validate:"gt=0"`
	Matiere  string `json:"matiere" validate:"required,oneof='Acier galvanisé' 'Acier Noir'"`
	Finition string `json:"finition" validate:"required,oneof=Peinture Chromage Galvanisation Autre"`
}

// FilSpec describes straightened and cut wire.
type FilSpec struct {
	LongueurValeur Number `json:"longueurValeur" validate:"gt=0"`
	LongueurUnite  string `json:"longueurUnite" validate:"required,oneof=mm m"`
	Diametre       Number `json:"diametre" validate:"gt=0"`
	QuantiteValeur Number `json:"quantiteValeur" validate:"gt=0"`
	QuantiteUnite  string `json:"quantiteUnite" validate:"required,oneof=pieces kg"`
	Matiere        string `json:"matiere" validate:"required,oneof='Acier galvanisé' 'Acier Noir' 'Acier ressort' 'Acier inoxydable'"`
}

// AutreSpec describes any other article.
type AutreSpec struct {
	Titre        string `json:"titre,omitempty"`
	Designation  string `json:"designation" validate:"required,max=200"`
	Dimensions   string `json:"dimensions,omitempty" validate:"max=200"`
	Quantite     Number `json:"quantite" validate:"gte=1"`
	Matiere      string `json:"matiere" validate:"required,max=120"`
	MatiereAutre string `json:"matiereAutre,omitempty" validate:"max=120"`
	Description  string `json:"description,omitempty" validate:"max=4000"`
}

// normalize fills matiere from the free-text material when the client
// picked "Autre", and defaults the legacy title to the designation.
func (s *AutreSpec) normalize() {
	s.Designation = strings.TrimSpace(s.Designation)
	s.Dimensions = strings.TrimSpace(s.Dimensions)
	s.Matiere = strings.TrimSpace(s.Matiere)
	s.MatiereAutre = strings.TrimSpace(s.MatiereAutre)
	s.Description = strings.TrimSpace(s.Description)
	if s.Matiere == "" || strings.EqualFold(s.Matiere, "autre") {
		s.Matiere = s.MatiereAutre
	}
	if strings.TrimSpace(s.Titre) == "" {
		s.Titre = s.Designation
	}
}

type normalizer interface {
	normalize()
}

func newSpec(kind render.RequestKind) (any, error) {
	switch kind {
	case render.KindCompression:
		return &CompressionSpec{}, nil
	case render.KindTraction:
		return &TractionSpec{}, nil
	case render.KindTorsion:
		return &TorsionSpec{}, nil
	case render.KindGrille:
		return &GrilleSpec{}, nil
	case render.KindFilDresse:
		return &FilSpec{}, nil
	case render.KindAutre:
		return &AutreSpec{}, nil
	}
	return nil, fmt.Errorf("requests: kind %q: %w", kind, ErrInvalidKind)
}

// DecodeSpec parses and validates raw as the spec of kind and returns its
// canonical JSON.
func DecodeSpec(v *validator.Validate, kind render.RequestKind, raw []byte) (json.RawMessage, error) {
	spec, err := newSpec(kind)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, spec); err != nil {
		return nil, fmt.Errorf("requests: spec: %w: %v", httpx.ErrValidation, err)
	}
	if n, ok := spec.(normalizer); ok {
		n.normalize()
	}
	if err := v.Struct(spec); err != nil {
		return nil, err
	}
	out, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("requests: spec: %w: %v", httpx.ErrValidation, err)
	}
	return out, nil
}

// SpecValues flattens stored spec JSON into display strings keyed by
// field identifier.
func SpecValues(raw json.RawMessage) map[string]string {
	out := make(map[string]string)
	if len(raw) == 0 {
		return out
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return out
	}
	for k, v := range values {
		switch t := v.(type) {
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case string:
			out[k] = t
		case nil:
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}
