package render

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Color is an RGB triple.
type Color struct {
	R, G, B int
}

// ParseHex parses "#RRGGBB".
func ParseHex(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("render: invalid colour %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("render: invalid colour %q: %w", s, err)
	}
	return Color{R: int(v >> 16 & 0xff), G: int(v >> 8 & 0xff), B: int(v & 0xff)}, nil
}

func mustHex(s string) Color {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Theme is the colour set of one document family.
type Theme struct {
	Primary Color
	Light   Color
	Border  Color
	Text    Color
	Muted   Color
	BannerH float64
}

var (
	requestTheme = Theme{
		Primary: mustHex("#002147"),
		Light:   mustHex("#F5F7FB"),
		Border:  mustHex("#D5D9E4"),
		Text:    mustHex("#111111"),
		Muted:   mustHex("#666666"),
		BannerH: 22,
	}
	complaintTheme = Theme{
		Primary: mustHex("#003366"),
		Light:   mustHex("#F3F3F8"),
		Border:  mustHex("#C8C8D8"),
		Text:    mustHex("#111111"),
		Muted:   mustHex("#666666"),
		BannerH: 20,
	}
	quoteTheme = Theme{
		Primary: mustHex("#000000"),
		Light:   mustHex("#F3F3F3"),
		Border:  mustHex("#000000"),
		Text:    mustHex("#000000"),
		Muted:   mustHex("#C7C7C7"),
		BannerH: 20,
	}
	white = Color{R: 255, G: 255, B: 255}
)

// Branding holds the company lines printed on quotes. QRTarget is encoded
// in the quote footer when no QR image asset exists.
type Branding struct {
	Headline     []string `yaml:"headline"`
	Taglines     []string `yaml:"taglines"`
	Address      string   `yaml:"address"`
	TaxCode      string   `yaml:"tax_code"`
	Email        string   `yaml:"email"`
	Mobile       string   `yaml:"mobile"`
	Phone        string   `yaml:"phone"`
	Fax          string   `yaml:"fax"`
	QRTarget     string   `yaml:"qr_target"`
	FooterNotice string   `yaml:"footer_notice"`
	PrimaryHex   string   `yaml:"primary"`
}

// DefaultBranding returns the built-in company lines.
func DefaultBranding() Branding {
	return Branding{
		Headline: []string{"FABRICATION TOUT ARTICLE", "EN FIL METALLIQUE"},
		Taglines: []string{
			"Conception et Fabrication des Ressorts",
			"Dressage fils, Cambrage, Cintrage fils et tubes",
		},
		Address:      "ZI  EL  ONS Route de Tunis KM 10 Sakiet Ezzit BP 237 Sfax - Tunisie",
		TaxCode:      "1327477/EAM 000",
		Email:        "mtrsfax@gmail.com",
		Mobile:       "98 333 883 / 98 331 896",
		Phone:        "(216)74 850 999 / 74 863 888",
		Fax:          "(216)74 864 863",
		FooterNotice: "Document généré automatiquement — MTR Industry",
	}
}

// LoadBranding reads a YAML branding file over the defaults. A missing
// file yields the defaults.
func LoadBranding(path string) (Branding, error) {
	b := DefaultBranding()
	if path == "" {
		return b, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return b, fmt.Errorf("render: read branding: %w", err)
	}
	if err := yaml.Unmarshal(data, &b); err != nil {
		return DefaultBranding(), fmt.Errorf("render: parse branding: %w", err)
	}
	if b.PrimaryHex != "" {
		if _, err := ParseHex(b.PrimaryHex); err != nil {
			return DefaultBranding(), err
		}
	}
	return b, nil
}

func (b Branding) requestTheme() Theme {
	t := requestTheme
	if c, err := ParseHex(b.PrimaryHex); err == nil && b.PrimaryHex != "" {
		t.Primary = c
	}
	return t
}
