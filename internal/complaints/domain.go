// Package complaints records client complaints about delivered orders.
package complaints

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/render"
)

// MaxFiles bounds the documents joined to one complaint.
const MaxFiles = 10

// ErrTooManyFiles is returned when a complaint carries more than MaxFiles.
var ErrTooManyFiles = fmt.Errorf("too many files: %w", httpx.ErrValidation)

// Date is a calendar day accepting "2006-01-02" or RFC 3339 input.
type Date struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		if string(b) == "null" {
			d.Time = time.Time{}
			return nil
		}
		return err
	}
	return d.parse(s)
}

func (d *Date) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(time.DateOnly))
}

// Order references the commercial document the complaint is about.
type Order struct {
	Kind         render.DocumentKind `json:"typeDoc" validate:"required,oneof=facture bon_livraison bon_commande devis"`
	Number       string              `json:"numero" validate:"required,max=64"`
	DeliveryDate Date                `json:"dateLivraison"`
	ProductRef   string              `json:"referenceProduit,omitempty" validate:"max=120"`
	Quantity     *int                `json:"quantite,omitempty" validate:"omitempty,gte=0"`
}

// Related converts the order reference to its printed form.
func (o Order) Related() render.RelatedDocument {
	rd := render.RelatedDocument{
		Kind:       o.Kind,
		Number:     o.Number,
		ProductRef: o.ProductRef,
		Quantity:   o.Quantity,
	}
	if !o.DeliveryDate.IsZero() {
		t := o.DeliveryDate.Time
		rd.DeliveryDate = &t
	}
	return rd
}

// File is a document joined by the client.
type File struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"filename"`
	ContentType string    `json:"mimetype"`
	Size        int64     `json:"size"`
	Data        []byte    `json:"data,omitempty"`
}

// Complaint is a stored complaint.
type Complaint struct {
	ID             int64      `json:"id"`
	Number         string     `json:"numero"`
	UserID         int64      `json:"userId"`
	Order          Order      `json:"commande"`
	Nature         string     `json:"nature"`
	Expectation    string     `json:"attente"`
	Description    string     `json:"description,omitempty"`
	Files          []File     `json:"piecesJointes"`
	PDFGeneratedAt *time.Time `json:"pdfGeneratedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Snapshot builds the renderer input for c filed by client.
func (c Complaint) Snapshot(client render.Party) render.ComplaintSnapshot {
	return render.ComplaintSnapshot{
		ID:          strconv.FormatInt(c.ID, 10),
		Number:      c.Number,
		CreatedAt:   c.CreatedAt,
		Client:      client,
		Document:    c.Order.Related(),
		Nature:      c.Nature,
		Expectation: c.Expectation,
	}
}

// Input is a complaint submission.
type Input struct {
	Order             Order  `json:"commande"`
	Nature            string `json:"nature" validate:"required,max=200"`
	Expectation       string `json:"attente" validate:"required,max=200"`
	Description       string `json:"description" validate:"max=4000"`
	NatureDetail      string `json:"precisezNature" validate:"max=200"`
	ExpectationDetail string `json:"precisezAttente" validate:"max=200"`
	Files             []File `json:"piecesJointes" validate:"max=10"`
}

var (
	otherChoice       = regexp.MustCompile(`(?i)^(autres?|other)$`)
	natureInText      = regexp.MustCompile(`(?i)Précisez\s+la\s+nature\s*:\s*([^|]+?)\s*(?:\||$)`)
	expectationInText = regexp.MustCompile(`(?i)Précisez\s+votre\s+attente\s*:\s*([^|]+?)\s*(?:\||$)`)
)

// precise replaces an "Autre" choice with the client's own wording, taken
// from the detail field or else from a "Précisez ... :" fragment of the
// description.
func precise(choice, detail, description string, fromText *regexp.Regexp) string {
	choice = strings.TrimSpace(choice)
	if !otherChoice.MatchString(choice) {
		return choice
	}
	if d := strings.TrimSpace(detail); d != "" {
		return d
	}
	if m := fromText.FindStringSubmatch(description); m != nil {
		if t := strings.TrimSpace(m[1]); t != "" {
			return t
		}
	}
	return choice
}

// normalize trims the submission and resolves "Autre" choices.
func (in *Input) normalize() {
	in.Order.Number = strings.ToUpper(strings.TrimSpace(in.Order.Number))
	in.Order.ProductRef = strings.TrimSpace(in.Order.ProductRef)
	in.Order.Kind = render.DocumentKind(strings.TrimSpace(string(in.Order.Kind)))
	in.Description = strings.TrimSpace(in.Description)
	in.Nature = precise(in.Nature, in.NatureDetail, in.Description, natureInText)
	in.Expectation = precise(in.Expectation, in.ExpectationDetail, in.Description, expectationInText)
}
