// Package quotes turns client requests into priced quotes.
package quotes

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/pricing"
	"github.com/mtr-industry/mtr-backoffice/internal/render"
)

var (
	// ErrMixedClients is returned when a quote groups requests of several clients.
	ErrMixedClients = fmt.Errorf("requests belong to different clients: %w", httpx.ErrValidation)
	// ErrUnknownRequestNumber is returned when a line names a request outside the quote.
	ErrUnknownRequestNumber = fmt.Errorf("line request number not part of the quote: %w", httpx.ErrValidation)
	// ErrNonStandardVAT is returned for a VAT rate without a recap bucket.
	ErrNonStandardVAT = fmt.Errorf("vat rate must be one of 0, 7, 13, 19: %w", httpx.ErrValidation)
)

// Line defaults applied when the admin leaves a field out.
var (
	DefaultQuantity = decimal.NewFromInt(1)
	DefaultVATPct   = decimal.NewFromInt(19)
)

// Article is a catalogue entry priced excluding tax.
type Article struct {
	ID          int64           `json:"id"`
	Reference   string          `json:"reference" validate:"required,max=64"`
	Designation string          `json:"designation" validate:"required,max=200"`
	Unit        string          `json:"unite" validate:"max=16"`
	PriceHT     decimal.Decimal `json:"prixHT"`
}

// Client is the customer block frozen into a quote.
type Client struct {
	UserID  int64  `json:"id"`
	Name    string `json:"nom"`
	Email   string `json:"email"`
	Address string `json:"adresse"`
	Phone   string `json:"tel"`
	TaxCode string `json:"codeTVA"`
}

// Party converts the client block to its printed form.
func (c Client) Party() render.Party {
	return render.Party{
		DisplayName: c.Name,
		Email:       c.Email,
		Address:     c.Address,
		Phone:       c.Phone,
		TaxCode:     c.TaxCode,
	}
}

// Item is one quote row.
type Item struct {
	pricing.Line
	Reference     string `json:"reference"`
	Designation   string `json:"designation"`
	Unit          string `json:"unite"`
	RequestNumber string `json:"demandeNumero"`
}

// Quote is a stored formal quote.
type Quote struct {
	ID             int64               `json:"id"`
	Number         string              `json:"numero"`
	UserID         int64               `json:"userId"`
	Client         Client              `json:"client"`
	Items          []Item              `json:"items"`
	Adjustments    pricing.Adjustments `json:"adjustments"`
	RequestNumbers []string            `json:"demandeNumeros"`
	PDFGeneratedAt *time.Time          `json:"pdfGeneratedAt,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// Totals computes the recap of q.
func (q Quote) Totals() pricing.Totals {
	lines := make([]pricing.Line, len(q.Items))
	for i, it := range q.Items {
		lines[i] = it.Line
	}
	return pricing.Compute(lines, q.Adjustments)
}

// Snapshot builds the renderer input for q.
func (q Quote) Snapshot() render.QuoteSnapshot {
	items := make([]render.LineItem, len(q.Items))
	for i, it := range q.Items {
		items[i] = render.LineItem{
			Line:          it.Line,
			Reference:     it.Reference,
			Designation:   it.Designation,
			Unit:          it.Unit,
			RequestNumber: it.RequestNumber,
		}
	}
	return render.QuoteSnapshot{
		ID:                    strconv.FormatInt(q.ID, 10),
		Number:                q.Number,
		CreatedAt:             q.CreatedAt,
		Client:                q.Client.Party(),
		Items:                 items,
		Adjustments:           q.Adjustments,
		RelatedRequestNumbers: q.RequestNumbers,
	}
}

// LineInput is one line of a quote being created.
type LineInput struct {
	RequestNumber string           `json:"requestNumero"`
	RequestID     int64            `json:"requestId" validate:"gte=0"`
	ArticleID     int64            `json:"articleId" validate:"required,gt=0"`
	Quantity      *decimal.Decimal `json:"qty"`
	DiscountPct   *decimal.Decimal `json:"remisePct"`
	VATPct        *decimal.Decimal `json:"tvaPct"`
}

// CreateInput is the admin payload creating a quote.
type CreateInput struct {
	RequestIDs []int64          `json:"requestIds" validate:"required,min=1,max=20,dive,gt=0"`
	Lines      []LineInput      `json:"lines" validate:"required,min=1,max=200,dive"`
	FodecPct   *decimal.Decimal `json:"fodecPct"`
	StampDuty  *decimal.Decimal `json:"timbre"`
	SendEmail  *bool            `json:"sendEmail"`
}

// Created identifies a stored quote.
type Created struct {
	ID         int64  `json:"id"`
	Number     string `json:"numero"`
	GrandTotal string `json:"mttc"`
}

// Lookup answers whether a request already has a quote.
type Lookup struct {
	Exists         bool     `json:"exists"`
	ID             int64    `json:"id,omitempty"`
	Number         string   `json:"numero,omitempty"`
	RequestNumbers []string `json:"demandeNumeros,omitempty"`
	PDF            string   `json:"pdf,omitempty"`
}
