// Package requests handles client quote requests for the six product
// families.
package requests

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/render"
)

// ErrInvalidKind is returned for an unknown product family.
var ErrInvalidKind = fmt.Errorf("unknown request kind: %w", httpx.ErrNotFound)

// ErrTooManyFiles is returned when a request carries more than MaxFiles.
var ErrTooManyFiles = fmt.Errorf("too many files: %w", httpx.ErrValidation)

// MaxFiles bounds the client documents joined to one request.
const MaxFiles = 4

// ParseKind maps a URL slug to a kind. The wire slugs of the straightened
// wire family are accepted as aliases.
func ParseKind(s string) (render.RequestKind, error) {
	switch k := strings.ToLower(strings.TrimSpace(s)); k {
	case "fildresse", "fil-dresse", "fil_dresse":
		return render.KindFilDresse, nil
	default:
		kind := render.RequestKind(k)
		if !kind.Valid() {
			return "", fmt.Errorf("requests: kind %q: %w", s, ErrInvalidKind)
		}
		return kind, nil
	}
}

// File is a document uploaded by the client.
type File struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Data        []byte    `json:"-"`
}

// Request is a stored quote request.
type Request struct {
	ID             int64              `json:"id"`
	Number         string             `json:"numero"`
	Kind           render.RequestKind `json:"kind"`
	UserID         int64              `json:"userId"`
	Spec           json.RawMessage    `json:"spec"`
	Requirements   string             `json:"exigences,omitempty"`
	Remarks        string             `json:"remarques,omitempty"`
	Files          []File             `json:"files"`
	PDFGeneratedAt *time.Time         `json:"pdfGeneratedAt,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// HasPDF reports whether a rendered PDF is stored.
func (r Request) HasPDF() bool {
	return r.PDFGeneratedAt != nil
}

// Snapshot builds the renderer input for r submitted by party.
func (r Request) Snapshot(party render.Party) render.RequestSnapshot {
	attachments := make([]render.AttachmentMeta, len(r.Files))
	for i, f := range r.Files {
		attachments[i] = render.AttachmentMeta{Name: f.Name, ContentType: f.ContentType, Size: f.Size}
	}
	return render.RequestSnapshot{
		ID:           fmt.Sprint(r.ID),
		Number:       r.Number,
		Kind:         r.Kind,
		CreatedAt:    r.CreatedAt,
		Submitter:    party,
		Spec:         SpecValues(r.Spec),
		Requirements: r.Requirements,
		Remarks:      r.Remarks,
		Attachments:  attachments,
	}
}

// Filter narrows the admin listing.
type Filter struct {
	Kind         render.RequestKind
	NumberPrefix string
}

// NumberRef is a request number without a quote yet.
type NumberRef struct {
	Number string             `json:"numero"`
	Kind   render.RequestKind `json:"kind"`
}
