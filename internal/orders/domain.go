// Package orders records client confirmations of quotes.
package orders

import (
	"fmt"
	"time"

	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrNotOwner is returned when a client orders someone else's quote.
	ErrNotOwner = fmt.Errorf("quote belongs to another client: %w", httpx.ErrForbidden)
	// ErrAlreadyCancelled is returned when cancelling twice.
	ErrAlreadyCancelled = fmt.Errorf("order already cancelled: %w", httpx.ErrConflict)
)

// Order is a client's confirmation of a quote.
type Order struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"userId"`
	QuoteID        int64     `json:"quoteId"`
	QuoteNumber    string    `json:"devisNumero"`
	RequestNumbers []string  `json:"demandeNumeros"`
	Status         Status    `json:"status"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PlaceInput is the client payload confirming a quote.
type PlaceInput struct {
	QuoteID int64  `json:"quoteId" validate:"required,gt=0"`
	Note    string `json:"note" validate:"max=2000"`
}
