package users

import (
	"strings"
	"time"

	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/render"
)

// AccountType distinguishes private clients from companies.
type AccountType string

const (
	AccountPersonal AccountType = "personnel"
	AccountCompany  AccountType = "societe"
)

// Personal holds the fields of a private account.
type Personal struct {
	CIN      string `json:"cin,omitempty"`
	Position string `json:"posteActuel,omitempty"`
}

// Company holds the fields of a company account.
type Company struct {
	TaxID    string `json:"matriculeFiscal,omitempty"`
	Name     string `json:"nomSociete,omitempty"`
	Position string `json:"posteActuel,omitempty"`
}

// Profile is a user account as shown on documents and in the back-office.
type Profile struct {
	ID          int64       `json:"id"`
	FirstName   string      `json:"prenom"`
	LastName    string      `json:"nom"`
	Email       string      `json:"email"`
	Phone       string      `json:"numTel"`
	Address     string      `json:"adresse"`
	AccountType AccountType `json:"accountType"`
	Role        auth.Role   `json:"role"`
	Personal    *Personal   `json:"personal,omitempty"`
	Company     *Company    `json:"company,omitempty"`
	IsActive    bool        `json:"isActive"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// DisplayName is "Prénom Nom", falling back to the email.
func (p Profile) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name == "" {
		return p.Email
	}
	return name
}

// Snapshot converts the profile to the party printed on documents.
func (p Profile) Snapshot() render.Party {
	party := render.Party{
		DisplayName: p.DisplayName(),
		AccountKind: render.AccountKind(p.AccountType),
		Role:        string(p.Role),
		Email:       p.Email,
		Phone:       p.Phone,
		Address:     p.Address,
	}
	if p.Company != nil && p.AccountType == AccountCompany {
		party.Corporate = &render.CorporateInfo{
			LegalName: p.Company.Name,
			TaxID:     p.Company.TaxID,
			Position:  p.Company.Position,
		}
		party.TaxCode = p.Company.TaxID
	}
	if p.Personal != nil && p.AccountType == AccountPersonal {
		party.Personal = &render.PersonalInfo{
			NationalID: p.Personal.CIN,
			Position:   p.Personal.Position,
		}
	}
	return party
}
