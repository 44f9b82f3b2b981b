package render

import (
	"time"

	"github.com/mtr-industry/mtr-backoffice/internal/pricing"
)

// AccountKind distinguishes personal accounts from company accounts.
type AccountKind string

const (
	AccountPersonal AccountKind = "personnel"
	AccountCompany  AccountKind = "societe"
)

// Party is the read-only view of a client or submitter printed on documents.
type Party struct {
	DisplayName string
	AccountKind AccountKind
	Role        string
	Email       string
	Phone       string
	Address     string
	TaxCode     string
	Corporate   *CorporateInfo
	Personal    *PersonalInfo
}

// CorporateInfo carries the company fields of a Party.
type CorporateInfo struct {
	LegalName string
	TaxID     string
	Position  string
}

// PersonalInfo carries the private-person fields of a Party.
type PersonalInfo struct {
	NationalID string
	Position   string
}

// RequestKind identifies one of the quote-request product families.
type RequestKind string

const (
	KindCompression RequestKind = "compression"
	KindTraction    RequestKind = "traction"
	KindTorsion     RequestKind = "torsion"
	KindGrille      RequestKind = "grille"
	KindFilDresse   RequestKind = "fil"
	KindAutre       RequestKind = "autre"
)

// RequestKinds lists every supported kind in display order.
var RequestKinds = []RequestKind{KindCompression, KindTraction, KindTorsion, KindGrille, KindFilDresse, KindAutre}

// Valid reports whether k is a known kind.
func (k RequestKind) Valid() bool {
	for _, known := range RequestKinds {
		if k == known {
			return true
		}
	}
	return false
}

// AttachmentMeta describes a client file uploaded with a request.
type AttachmentMeta struct {
	Name        string
	ContentType string
	Size        int64
}

// RequestSnapshot is a quote request ready for rendering. Spec values are
// keyed by field identifier (d, DE, Lo, quantite...); missing keys render
// as placeholders.
type RequestSnapshot struct {
	ID           string
	Number       string
	Kind         RequestKind
	CreatedAt    time.Time
	Submitter    Party
	Spec         map[string]string
	Requirements string
	Remarks      string
	Attachments  []AttachmentMeta
}

// LineItem is one row of a formal quote.
type LineItem struct {
	pricing.Line
	Reference     string
	Designation   string
	Unit          string
	RequestNumber string
}

// QuoteSnapshot is a formal quote ready for rendering.
type QuoteSnapshot struct {
	ID                    string
	Number                string
	CreatedAt             time.Time
	Client                Party
	Items                 []LineItem
	Adjustments           pricing.Adjustments
	RelatedRequestNumbers []string
}

// Lines extracts the pricing lines of the quote.
func (q QuoteSnapshot) Lines() []pricing.Line {
	lines := make([]pricing.Line, len(q.Items))
	for i, item := range q.Items {
		lines[i] = item.Line
	}
	return lines
}

// DocumentKind identifies the commercial document a complaint refers to.
type DocumentKind string

const (
	DocInvoice       DocumentKind = "facture"
	DocDeliveryNote  DocumentKind = "bon_livraison"
	DocPurchaseOrder DocumentKind = "bon_commande"
	DocQuote         DocumentKind = "devis"
)

// Label returns the French label printed on the complaint.
func (k DocumentKind) Label() string {
	switch k {
	case DocInvoice:
		return "Facture"
	case DocDeliveryNote:
		return "Bon de livraison"
	case DocPurchaseOrder:
		return "Bon de commande"
	case DocQuote:
		return "Devis"
	default:
		return string(k)
	}
}

// RelatedDocument is the order reference carried by a complaint.
type RelatedDocument struct {
	Kind         DocumentKind
	Number       string
	DeliveryDate *time.Time
	ProductRef   string
	Quantity     *int
}

// ComplaintSnapshot is a client complaint ready for rendering.
type ComplaintSnapshot struct {
	ID          string
	Number      string
	CreatedAt   time.Time
	Client      Party
	Document    RelatedDocument
	Nature      string
	Expectation string
}
