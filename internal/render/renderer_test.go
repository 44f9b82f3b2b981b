package render_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr-industry/mtr-backoffice/internal/pricing"
	"github.com/mtr-industry/mtr-backoffice/internal/render"
)

var created = time.Date(2025, 3, 5, 10, 15, 0, 0, time.UTC)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
	errs  []error
}

func (o *recordingObserver) ObserveRender(document string, pages int, elapsed time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, document)
	o.errs = append(o.errs, err)
}

func newRenderer(t *testing.T, root string, opts ...func(*render.Options)) *render.Renderer {
	t.Helper()
	o := render.Options{
		AssetRoot: root,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, fn := range opts {
		fn(&o)
	}
	return render.New(o)
}

func writePNG(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: 33, B: 71, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func submitter() render.Party {
	return render.Party{
		DisplayName: "Société Mécanique du Sud",
		AccountKind: render.AccountCompany,
		Email:       "achats@sms.tn",
		Phone:       "+216 74 000 111",
		Address:     "Route de Gabès km 4, Sfax",
		Corporate:   &render.CorporateInfo{LegalName: "SMS SARL", TaxID: "1234567/A/M/000", Position: "Acheteur"},
	}
}

func tractionSnapshot() render.RequestSnapshot {
	return render.RequestSnapshot{
		ID:        "req-1",
		Number:    "DDV2500012",
		Kind:      render.KindTraction,
		CreatedAt: created,
		Submitter: submitter(),
		Spec: map[string]string{
			"d":               "2.5",
			"De":              "18",
			"Lo":              "60",
			"nbSpires":        "22",
			"quantite":        "500",
			"matiere":         "Acier ressort EN 10270-1",
			"enroulement":     "Droite",
			"positionAnneaux": "0°",
			"typeAccrochage":  "Anneau allemand",
		},
		Requirements: "Tolérance ±0.2 mm sur Lo.\nTraitement: grenaillage.",
		Remarks:      "Livraison sous 3 semaines.",
	}
}

func findText(res *render.Result, text string) (render.TextRun, bool) {
	for _, run := range res.Texts {
		if run.Text == text {
			return run, true
		}
	}
	return render.TextRun{}, false
}

func findSection(res *render.Result, title string) (render.SectionMark, bool) {
	for _, s := range res.Sections {
		if s.Title == title {
			return s, true
		}
	}
	return render.SectionMark{}, false
}

func TestRenderRequestTractionEndToEnd(t *testing.T) {
	obs := &recordingObserver{}
	r := newRenderer(t, t.TempDir(), func(o *render.Options) { o.Observer = obs })

	res, err := r.RenderRequest(context.Background(), tractionSnapshot())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(res.PDF, []byte("%PDF-")))
	assert.GreaterOrEqual(t, res.Pages, 2)

	table, ok := findSection(res, "Spécifications principales")
	require.True(t, ok)
	reqs, ok := findSection(res, "Exigences particulières")
	require.True(t, ok)
	remarks, ok := findSection(res, "Autres remarques")
	require.True(t, ok)
	assert.Greater(t, reqs.Page, table.Page)
	assert.Equal(t, reqs.Page, remarks.Page)
	assert.Greater(t, remarks.Y, reqs.Y)

	_, ok = findText(res, "Ressorts de Traction")
	assert.True(t, ok)
	_, ok = findText(res, "Ressort de traction")
	assert.True(t, ok)
	_, ok = findText(res, "05/03/2025 11:15")
	assert.True(t, ok)

	assert.Equal(t, []string{"request:traction"}, obs.calls)
	assert.NoError(t, obs.errs[0])
}

func TestRenderRequestSectionOrder(t *testing.T) {
	root := t.TempDir()
	writePNG(t, root, "assets/traction00.png")
	r := newRenderer(t, root)

	res, err := r.RenderRequest(context.Background(), tractionSnapshot())
	require.NoError(t, err)

	titles := make([]string, len(res.Sections))
	for i, s := range res.Sections {
		titles[i] = s.Title
	}
	assert.Equal(t, []string{"Client", "Schéma", "Spécifications principales", "Exigences particulières", "Autres remarques"}, titles)
}

func TestRenderRequestWithoutClosingText(t *testing.T) {
	snap := tractionSnapshot()
	snap.Requirements = "  "
	snap.Remarks = ""

	res, err := newRenderer(t, t.TempDir()).RenderRequest(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	_, ok := findSection(res, "Exigences particulières")
	assert.False(t, ok)
}

func TestRenderRequestIsDeterministic(t *testing.T) {
	root := t.TempDir()
	writePNG(t, root, "assets/logo.png")
	writePNG(t, root, "assets/compression01.png")
	r := newRenderer(t, root)

	snap := tractionSnapshot()
	snap.Kind = render.KindCompression
	first, err := r.RenderRequest(context.Background(), snap)
	require.NoError(t, err)
	second, err := r.RenderRequest(context.Background(), snap)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first.PDF, second.PDF))
	assert.Equal(t, first.Texts, second.Texts)
}

func TestRenderRequestPlaceholders(t *testing.T) {
	r := newRenderer(t, t.TempDir())
	for _, kind := range render.RequestKinds {
		t.Run(string(kind), func(t *testing.T) {
			res, err := r.RenderRequest(context.Background(), render.RequestSnapshot{Kind: kind})
			require.NoError(t, err)

			var placeholders int
			for _, run := range res.Texts {
				assert.NotEqual(t, "", run.Text)
				if run.Text == render.Placeholder {
					placeholders++
				}
			}
			// Number, date, client name and at least one specification value.
			assert.GreaterOrEqual(t, placeholders, 4)
		})
	}
}

func TestRenderRequestAllKinds(t *testing.T) {
	r := newRenderer(t, t.TempDir())
	subtitles := map[render.RequestKind]string{
		render.KindCompression: "Ressorts de Compression",
		render.KindTraction:    "Ressorts de Traction",
		render.KindTorsion:     "Ressort de Torsion",
		render.KindGrille:      "Grille métallique",
		render.KindFilDresse:   "Fil dressé",
		render.KindAutre:       "Autre Type",
	}
	for kind, subtitle := range subtitles {
		snap := tractionSnapshot()
		snap.Kind = kind
		res, err := r.RenderRequest(context.Background(), snap)
		require.NoError(t, err, kind)
		_, ok := findText(res, subtitle)
		assert.True(t, ok, kind)
	}
}

func TestRenderRequestAutreDescription(t *testing.T) {
	snap := tractionSnapshot()
	snap.Kind = render.KindAutre
	snap.Spec = map[string]string{"titre": "Crochet S", "description": "Crochet en S\npour suspension."}

	res, err := newRenderer(t, t.TempDir()).RenderRequest(context.Background(), snap)
	require.NoError(t, err)
	desc, ok := findSection(res, "Description de l'article")
	require.True(t, ok)
	table, _ := findSection(res, "Spécifications principales")
	assert.Greater(t, desc.Y, table.Y)
	_, ok = findText(res, "pour suspension.")
	assert.True(t, ok)
}

func TestRenderRequestUnknownKind(t *testing.T) {
	obs := &recordingObserver{}
	r := newRenderer(t, t.TempDir(), func(o *render.Options) { o.Observer = obs })

	_, err := r.RenderRequest(context.Background(), render.RequestSnapshot{Kind: "spirale"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, render.ErrUnknownKind))

	var rerr *render.Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "request", rerr.Op)
	assert.Empty(t, obs.calls)
}

func TestRenderRequestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newRenderer(t, t.TempDir()).RenderRequest(ctx, tractionSnapshot())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderSkipsBrokenAssets(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "assets", "logo.png"), []byte("not an image"), 0o644))

	res, err := newRenderer(t, root).RenderRequest(context.Background(), tractionSnapshot())
	require.NoError(t, err)
	assert.Contains(t, res.Warnings, "asset undecodable")
	assert.False(t, bytes.Contains(res.PDF, []byte("/Subtype /Image")))
}

func TestRenderEmbedsAssets(t *testing.T) {
	root := t.TempDir()
	writePNG(t, root, "assets/logo.png")

	res, err := newRenderer(t, root).RenderRequest(context.Background(), tractionSnapshot())
	require.NoError(t, err)
	assert.True(t, bytes.Contains(res.PDF, []byte("/Subtype /Image")))
}

func TestRenderConcurrently(t *testing.T) {
	r := newRenderer(t, t.TempDir())
	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.RenderRequest(context.Background(), tractionSnapshot())
			if err == nil {
				results[i] = res.PDF
			}
		}(i)
	}
	wg.Wait()
	for _, pdf := range results[1:] {
		assert.Equal(t, results[0], pdf)
	}
	assert.NotEmpty(t, results[0])
}

func quoteItem(ref string, qty, price, discount, vat string) render.LineItem {
	return render.LineItem{
		Line: pricing.Line{
			Quantity:    decimal.RequireFromString(qty),
			UnitPrice:   decimal.RequireFromString(price),
			DiscountPct: decimal.RequireFromString(discount),
			VATPct:      decimal.RequireFromString(vat),
		},
		Reference:     ref,
		Designation:   "Ressort " + ref,
		Unit:          "pc",
		RequestNumber: "DDV2500012",
	}
}

func quoteSnapshot(items ...render.LineItem) render.QuoteSnapshot {
	return render.QuoteSnapshot{
		ID:                    "q-1",
		Number:                "DV2500007",
		CreatedAt:             created,
		Client:                submitter(),
		Items:                 items,
		RelatedRequestNumbers: []string{"DDV2500011"},
	}
}

func TestRenderQuoteRecap(t *testing.T) {
	snap := quoteSnapshot(
		quoteItem("RC-10", "2", "10.000", "0", "19"),
		quoteItem("RT-05", "1", "5.000", "10", "7"),
	)

	res, err := newRenderer(t, t.TempDir()).RenderQuote(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)
	assert.NotContains(t, res.Warnings, "vat rate outside recap")

	for _, want := range []string{"25.000", "0.500", "24.500", "0.245", "4.115", "28.860", "FODEC 1.00%", "4.500", "0.315", "20.000", "3.800"} {
		_, ok := findText(res, want)
		assert.True(t, ok, want)
	}
	_, ok := findText(res, "Timbre Fiscal")
	assert.False(t, ok)
	_, ok = findText(res, "DDV2500011, DDV2500012")
	assert.True(t, ok)
	_, ok = findText(res, "SOCIÉTÉ MÉCANIQUE DU SUD")
	assert.True(t, ok)
	_, ok = findText(res, "05/03/2025")
	assert.True(t, ok)
}

func TestRenderQuoteStampDuty(t *testing.T) {
	snap := quoteSnapshot(quoteItem("RC-10", "1", "100.000", "0", "19"))
	snap.Adjustments.StampDuty = decimal.RequireFromString("1.000")

	res, err := newRenderer(t, t.TempDir()).RenderQuote(context.Background(), snap)
	require.NoError(t, err)
	_, ok := findText(res, "Timbre Fiscal")
	assert.True(t, ok)
	_, ok = findText(res, "121.000")
	assert.True(t, ok)
}

func TestRenderQuoteWarnsOnNonStandardRate(t *testing.T) {
	snap := quoteSnapshot(quoteItem("RC-10", "1", "10.000", "0", "12"))

	res, err := newRenderer(t, t.TempDir()).RenderQuote(context.Background(), snap)
	require.NoError(t, err)
	assert.Contains(t, res.Warnings, "vat rate outside recap")
}

func TestRenderQuotePaginatesItems(t *testing.T) {
	items := make([]render.LineItem, 40)
	for i := range items {
		items[i] = quoteItem("RC", "1", "1.000", "0", "19")
	}

	res, err := newRenderer(t, t.TempDir()).RenderQuote(context.Background(), quoteSnapshot(items...))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)

	var headers []int
	for _, run := range res.Texts {
		if run.Text == "Référence" {
			headers = append(headers, run.Page)
		}
	}
	assert.Equal(t, []int{1, 2}, headers)

	total, ok := findText(res, "MTTC")
	require.True(t, ok)
	assert.Equal(t, 2, total.Page)
}

func TestRenderQuoteMovesRecapBelowLongTable(t *testing.T) {
	items := make([]render.LineItem, 20)
	for i := range items {
		items[i] = quoteItem("RC", "1", "1.000", "0", "7")
	}

	res, err := newRenderer(t, t.TempDir()).RenderQuote(context.Background(), quoteSnapshot(items...))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	recap, ok := findSection(res, "Récapitulatif")
	require.True(t, ok)
	assert.Equal(t, 2, recap.Page)

	footers := 0
	for _, run := range res.Texts {
		if run.Text == "E-mail : mtrsfax@gmail.com" {
			footers++
		}
	}
	assert.Equal(t, 2, footers)
}

func TestRenderQuoteQRCode(t *testing.T) {
	branding := render.DefaultBranding()
	branding.QRTarget = "https://www.facebook.com/mtr.industry"

	withQR, err := newRenderer(t, t.TempDir(), func(o *render.Options) { o.Branding = &branding }).
		RenderQuote(context.Background(), quoteSnapshot(quoteItem("RC", "1", "1.000", "0", "19")))
	require.NoError(t, err)
	assert.True(t, bytes.Contains(withQR.PDF, []byte("/Subtype /Image")))

	without, err := newRenderer(t, t.TempDir()).
		RenderQuote(context.Background(), quoteSnapshot(quoteItem("RC", "1", "1.000", "0", "19")))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(without.PDF, []byte("/Subtype /Image")))
}

func TestRenderComplaint(t *testing.T) {
	delivered := time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC)
	qty := 12
	snap := render.ComplaintSnapshot{
		Number:    "R2500003",
		CreatedAt: created,
		Client:    submitter(),
		Document: render.RelatedDocument{
			Kind:         render.DocDeliveryNote,
			Number:       "BL-2025-118",
			DeliveryDate: &delivered,
			Quantity:     &qty,
		},
		Nature:      "Ressorts déformés à la réception",
		Expectation: "Remplacement du lot",
	}

	res, err := newRenderer(t, t.TempDir()).RenderComplaint(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pages)

	titles := make([]string, len(res.Sections))
	for i, s := range res.Sections {
		titles[i] = s.Title
	}
	assert.Equal(t, []string{"Client", "Commande", "Réclamation"}, titles)

	for _, want := range []string{"Réclamation client", "R2500003", "05/03/2025 11:15", "Bon de livraison", "BL-2025-118", "20/02/2025", "12", "Remplacement du lot"} {
		_, ok := findText(res, want)
		assert.True(t, ok, want)
	}
	// Missing product reference.
	_, ok := findText(res, render.Placeholder)
	assert.True(t, ok)
}

func TestLoadBranding(t *testing.T) {
	b, err := render.LoadBranding(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, render.DefaultBranding(), b)

	path := filepath.Join(t.TempDir(), "branding.yml")
	require.NoError(t, os.WriteFile(path, []byte("email: devis@mtr.tn\nqr_target: https://mtr.tn\nprimary: \"#112233\"\n"), 0o644))
	b, err = render.LoadBranding(path)
	require.NoError(t, err)
	assert.Equal(t, "devis@mtr.tn", b.Email)
	assert.Equal(t, "https://mtr.tn", b.QRTarget)
	assert.Equal(t, render.DefaultBranding().Fax, b.Fax)

	require.NoError(t, os.WriteFile(path, []byte("primary: blue\n"), 0o644))
	_, err = render.LoadBranding(path)
	assert.Error(t, err)
}
