package documents

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"sort"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/mtr-industry/mtr-backoffice/internal/render"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Brand heads every email.
const Brand = "MTR – Manufacture Tunisienne des Ressorts"

var funcs = map[string]any{"join": strings.Join}

// email pairs the HTML and plain-text bodies of one notification.
type email struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

func mustEmail(name string) email {
	return email{
		html: htmltemplate.Must(htmltemplate.New(name).Funcs(funcs).
			ParseFS(templateFS, "templates/layout.html.tmpl", "templates/"+name+".html.tmpl")),
		text: texttemplate.Must(texttemplate.New(name+".txt.tmpl").Funcs(funcs).
			ParseFS(templateFS, "templates/"+name+".txt.tmpl")),
	}
}

var (
	requestEmail   = mustEmail("request")
	quoteEmail     = mustEmail("quote")
	complaintEmail = mustEmail("complaint")
	orderEmail     = mustEmail("order")
)

// execute renders both bodies.
func (e email) execute(data any) (html, text string, err error) {
	var hb, tb bytes.Buffer
	if err := e.html.ExecuteTemplate(&hb, "layout", data); err != nil {
		return "", "", fmt.Errorf("documents: html body: %w", err)
	}
	if err := e.text.Execute(&tb, data); err != nil {
		return "", "", fmt.Errorf("documents: text body: %w", err)
	}
	return hb.String(), tb.String(), nil
}

// page carries the fields used by the layout.
type page struct {
	Title string
	Brand string
}

func newPage(title string) page {
	return page{Title: title, Brand: Brand}
}

type clientView struct {
	Name        string
	Email       string
	Phone       string
	Address     string
	AccountType string
}

type specLine struct {
	Label string
	Value string
}

type fileLine struct {
	Name string
	Size string
}

type requestView struct {
	page
	Kind         string
	Number       string
	Date         string
	Client       clientView
	Spec         []specLine
	Requirements string
	Remarks      string
	Files        []fileLine
	Skipped      []string
}

type quoteView struct {
	page
	Number         string
	ClientName     string
	RequestNumbers []string
	Total          string
	Lines          int
	Link           string
}

type complaintView struct {
	page
	Number      string
	ClientName  string
	Email       string
	DocKind     string
	DocNumber   string
	Nature      string
	Expectation string
	Description string
}

type orderView struct {
	page
	ClientName     string
	Email          string
	Phone          string
	QuoteNumber    string
	RequestNumbers []string
	Note           string
	Link           string
}

var requestKindLabels = map[render.RequestKind]string{
	render.KindCompression: "Ressort de compression",
	render.KindTraction:    "Ressort de traction",
	render.KindTorsion:     "Ressort de torsion",
	render.KindGrille:      "Grille métallique",
	render.KindFilDresse:   "Fil dressé",
	render.KindAutre:       "Autre type",
}

func requestKindLabel(k render.RequestKind) string {
	if l, ok := requestKindLabels[k]; ok {
		return l
	}
	return string(k)
}

// specLines lists the non-empty spec values sorted by field name.
func specLines(values map[string]string) []specLine {
	out := make([]specLine, 0, len(values))
	for k, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out = append(out, specLine{Label: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

var mailZone = time.FixedZone("Africa/Tunis", 3600)

func mailDate(t time.Time) string {
	return t.In(mailZone).Format("02/01/2006 15:04")
}

// humanSize prints a byte count with a binary unit.
func humanSize(n int64) string {
	units := []string{"B", "KB", "MB", "GB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	if i > 0 && v < 10 {
		return fmt.Sprintf("%.1f %s", v, units[i])
	}
	return fmt.Sprintf("%.0f %s", v, units[i])
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
