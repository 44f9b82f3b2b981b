package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/complaints"
	jobmetrics "github.com/mtr-industry/mtr-backoffice/internal/jobs"
	"github.com/mtr-industry/mtr-backoffice/internal/mailer"
	"github.com/mtr-industry/mtr-backoffice/internal/orders"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/pricing"
	"github.com/mtr-industry/mtr-backoffice/internal/quotes"
	"github.com/mtr-industry/mtr-backoffice/internal/render"
	"github.com/mtr-industry/mtr-backoffice/internal/requests"
	"github.com/mtr-industry/mtr-backoffice/internal/users"
	"github.com/mtr-industry/mtr-backoffice/jobs"
	_ "github.com/mtr-industry/mtr-backoffice/testing"
)

var created = time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)

type memStore struct {
	mu      sync.Mutex
	pdfs    map[int64][]byte
	known   map[int64]bool
	missing []int64
}

func newMemStore(ids ...int64) *memStore {
	s := &memStore{pdfs: map[int64][]byte{}, known: map[int64]bool{}}
	for _, id := range ids {
		s.known[id] = true
	}
	return s
}

func (s *memStore) StoredPDF(_ context.Context, id int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pdf, ok := s.pdfs[id]
	if !ok {
		return nil, fmt.Errorf("no pdf for %d: %w", id, httpx.ErrNotFound)
	}
	return pdf, nil
}

func (s *memStore) SavePDF(_ context.Context, id int64, pdf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pdfs[id] = pdf
	return nil
}

func (s *memStore) MissingPDF(_ context.Context, limit int) ([]int64, error) {
	return s.missing[:min(limit, len(s.missing))], nil
}

func (s *memStore) check(id int64) error {
	if !s.known[id] {
		return fmt.Errorf("record %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

var amel = users.Profile{
	ID: 7, FirstName: "Amel", LastName: "Trabelsi", Email: "amel@example.tn",
	Phone: "+216 20 000 000", AccountType: users.AccountPersonal, Role: auth.RoleClient,
}

type stubRequests struct {
	*memStore
	files []requests.File
}

func (s *stubRequests) Snapshot(_ context.Context, id int64) (requests.Request, users.Profile, error) {
	if err := s.check(id); err != nil {
		return requests.Request{}, users.Profile{}, err
	}
	return requests.Request{
		ID:           id,
		Number:       "DDV2500001",
		Kind:         render.KindFilDresse,
		UserID:       7,
		Spec:         json.RawMessage(`{"diametre":"4","matiere":"Acier Noir","quantiteValeur":"200"}`),
		Requirements: "Tolérance ±0,1 mm",
		CreatedAt:    created,
	}, amel, nil
}

func (s *stubRequests) Files(_ context.Context, id int64) ([]requests.File, error) {
	return s.files, s.check(id)
}

type stubQuotes struct {
	*memStore
	email string
}

func (s *stubQuotes) Load(_ context.Context, id int64) (quotes.Quote, error) {
	if err := s.check(id); err != nil {
		return quotes.Quote{}, err
	}
	return quotes.Quote{
		ID:     id,
		Number: "DV2500004",
		UserID: 7,
		Client: quotes.Client{UserID: 7, Name: "Amel Trabelsi", Email: s.email},
		Items: []quotes.Item{{
			Line: pricing.Line{
				Quantity:    decimal.NewFromInt(10),
				UnitPrice:   decimal.RequireFromString("12.5"),
				DiscountPct: decimal.Zero,
				VATPct:      decimal.NewFromInt(19),
			},
			Reference:     "RC-4",
			Designation:   "Ressort de compression",
			Unit:          "U",
			RequestNumber: "DDV2500001",
		}},
		RequestNumbers: []string{"DDV2500001"},
		CreatedAt:      created,
	}, nil
}

type stubComplaints struct {
	*memStore
	files []complaints.File
}

func (s *stubComplaints) Snapshot(_ context.Context, id int64) (complaints.Complaint, users.Profile, error) {
	if err := s.check(id); err != nil {
		return complaints.Complaint{}, users.Profile{}, err
	}
	return complaints.Complaint{
		ID:          id,
		Number:      "R2500001",
		UserID:      7,
		Order:       complaints.Order{Kind: render.DocDeliveryNote, Number: "BL-118"},
		Nature:      "Produit non conforme",
		Expectation: "Remplacement",
		CreatedAt:   created,
	}, amel, nil
}

func (s *stubComplaints) Files(_ context.Context, id int64) ([]complaints.File, error) {
	return s.files, s.check(id)
}

type stubOrders map[int64]orders.Order

func (s stubOrders) Load(_ context.Context, id int64) (orders.Order, error) {
	o, ok := s[id]
	if !ok {
		return orders.Order{}, httpx.ErrNotFound
	}
	return o, nil
}

type stubProfiles struct{}

func (stubProfiles) Get(_ context.Context, id int64) (users.Profile, error) {
	if id != 7 {
		return users.Profile{}, httpx.ErrNotFound
	}
	return amel, nil
}

type countingRenderer struct {
	*render.Renderer
	calls atomic.Int32
}

func (c *countingRenderer) RenderRequest(ctx context.Context, snap render.RequestSnapshot) (*render.Result, error) {
	c.calls.Add(1)
	return c.Renderer.RenderRequest(ctx, snap)
}

type sent struct {
	account mailer.Account
	msg     mailer.Message
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeMailer) Send(_ context.Context, account mailer.Account, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{account: account, msg: msg})
	return nil
}

func (f *fakeMailer) Address(account mailer.Account) string {
	return string(account) + "@mtr.tn"
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	return d, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

type recordingEnqueuer struct{ payloads []jobs.RenderPayload }

func (r *recordingEnqueuer) EnqueueRender(_ context.Context, p jobs.RenderPayload) (*asynq.TaskInfo, error) {
	r.payloads = append(r.payloads, p)
	return &asynq.TaskInfo{}, nil
}

type stubCleaner struct{ olderThan time.Duration }

func (s *stubCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return 3, nil
}

type fixture struct {
	service    *Service
	jobs       *Jobs
	requests   *stubRequests
	quotes     *stubQuotes
	complaints *stubComplaints
	orders     stubOrders
	renderer   *countingRenderer
	mail       *fakeMailer
	cache      *memCache
	enqueuer   *recordingEnqueuer
	cleaner    *stubCleaner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		requests:   &stubRequests{memStore: newMemStore(1)},
		quotes:     &stubQuotes{memStore: newMemStore(4), email: "amel@example.tn"},
		complaints: &stubComplaints{memStore: newMemStore(1)},
		orders: stubOrders{
			9:  {ID: 9, UserID: 7, QuoteID: 4, QuoteNumber: "DV2500004", RequestNumbers: []string{"DDV2500001"}, Status: orders.StatusConfirmed, Note: "Livraison Sfax"},
			10: {ID: 10, UserID: 7, QuoteID: 4, QuoteNumber: "DV2500004", Status: orders.StatusCancelled},
		},
		renderer: &countingRenderer{Renderer: render.New(render.Options{AssetRoot: t.TempDir(), Logger: logger})},
		mail:     &fakeMailer{},
		cache:    &memCache{data: map[string][]byte{}},
		enqueuer: &recordingEnqueuer{},
		cleaner:  &stubCleaner{},
	}
	f.service = NewService(Deps{
		Requests:   f.requests,
		Quotes:     f.quotes,
		Complaints: f.complaints,
		Orders:     f.orders,
		Profiles:   stubProfiles{},
		Renderer:   f.renderer,
		Mailer:     f.mail,
		Cache:      f.cache,
		Logger:     logger,
	}, Config{AdminTo: "bureau@mtr.tn", PublicOrigin: "https://mtr.tn/api/"})
	f.jobs = NewJobs(f.service, f.enqueuer, f.cleaner, jobmetrics.NewMetrics(prometheus.NewRegistry()), logger)
	return f
}

func renderTask(t *testing.T, p jobs.RenderPayload) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(p)
	require.NoError(t, err)
	return asynq.NewTask(jobs.TaskRenderDocument, body)
}

func TestRequestPDFRendersOnceForConcurrentCallers(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.service.RequestPDF(context.Background(), 1)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.True(t, bytes.HasPrefix(results[i], []byte("%PDF-")))
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, int32(1), f.renderer.calls.Load())
	assert.Equal(t, results[0], f.requests.pdfs[1])
	assert.Equal(t, results[0], f.cache.data["request:1"])
}

func TestStoredPDFIsServedWithoutRendering(t *testing.T) {
	f := newFixture(t)
	f.requests.pdfs[1] = []byte("%PDF-stored")

	pdf, err := f.service.RequestPDF(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-stored", string(pdf))
	assert.Zero(t, f.renderer.calls.Load())

	_, err = f.service.RequestPDF(context.Background(), 2)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestHandleRenderRequestNotifiesAdmin(t *testing.T) {
	f := newFixture(t)
	f.requests.files = []requests.File{
		{Name: "plan.pdf", ContentType: "application/pdf", Data: []byte("%PDF-plan")},
		{Name: "~$plan.docx", ContentType: "application/octet-stream", Data: []byte("lock")},
		{Name: "vide.txt", ContentType: "text/plain"},
	}

	err := f.jobs.HandleRender(context.Background(), renderTask(t, jobs.RenderPayload{Kind: jobs.DocumentRequest, ID: 1, Notify: true}))
	require.NoError(t, err)

	require.Len(t, f.mail.sent, 1)
	got := f.mail.sent[0]
	assert.Equal(t, mailer.AccountAdmin, got.account)
	assert.Equal(t, []string{"bureau@mtr.tn"}, got.msg.To)
	assert.Equal(t, "amel@example.tn", got.msg.ReplyTo)
	assert.Equal(t, "Amel Trabelsi - DDV2500001", got.msg.Subject)
	require.Len(t, got.msg.Attachments, 2)
	assert.Equal(t, "demande-fil-DDV2500001.pdf", got.msg.Attachments[0].Name)
	assert.Equal(t, f.requests.pdfs[1], got.msg.Attachments[0].Data)
	assert.Equal(t, "plan.pdf", got.msg.Attachments[1].Name)

	assert.Contains(t, got.msg.Text, "Fil dressé")
	assert.Contains(t, got.msg.Text, "- matiere : Acier Noir")
	assert.Contains(t, got.msg.Text, "- plan.pdf (9 B)")
	assert.Contains(t, got.msg.HTML, Brand)
	assert.Contains(t, got.msg.HTML, "Tolérance ±0,1 mm")
}

func TestRequestAttachmentsStayWithinBudget(t *testing.T) {
	f := newFixture(t)
	f.requests.files = []requests.File{
		{Name: "scan.tif", ContentType: "image/tiff", Data: make([]byte, MaxAttachmentBytes)},
		{Name: "croquis.png", ContentType: "image/png", Data: []byte("png")},
	}

	require.NoError(t, f.service.notifyRequest(context.Background(), 1, []byte("%PDF")))
	msg := f.mail.sent[0].msg
	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "croquis.png", msg.Attachments[1].Name)
	assert.Contains(t, msg.Text, "Non joints (taille) : scan.tif")
}

func TestHandleRenderQuoteEmailsClient(t *testing.T) {
	f := newFixture(t)
	err := f.jobs.HandleRender(context.Background(), renderTask(t, jobs.RenderPayload{Kind: jobs.DocumentQuote, ID: 4, Notify: true}))
	require.NoError(t, err)

	require.Len(t, f.mail.sent, 1)
	got := f.mail.sent[0]
	assert.Equal(t, mailer.AccountCommercial, got.account)
	assert.Equal(t, []string{"amel@example.tn"}, got.msg.To)
	assert.Equal(t, "Votre devis DV2500004", got.msg.Subject)
	require.Len(t, got.msg.Attachments, 1)
	assert.Equal(t, "devis-DV2500004.pdf", got.msg.Attachments[0].Name)
	assert.Contains(t, got.msg.Text, "Montant TTC : 150.000 TND")
	assert.Contains(t, got.msg.Text, "Demandes liées : DDV2500001")
	assert.Contains(t, got.msg.HTML, `href="https://mtr.tn/api/quotes/DV2500004/pdf"`)
}

func TestQuoteWithoutEmailIsNotSent(t *testing.T) {
	f := newFixture(t)
	f.quotes.email = "pas-un-email"
	require.NoError(t, f.jobs.HandleRender(context.Background(), renderTask(t, jobs.RenderPayload{Kind: jobs.DocumentQuote, ID: 4, Notify: true})))
	assert.Empty(t, f.mail.sent)
	assert.NotEmpty(t, f.quotes.pdfs[4])
}

func TestHandleRenderComplaintWritesToCommercial(t *testing.T) {
	f := newFixture(t)
	f.complaints.files = []complaints.File{{Name: "photo.jpg", ContentType: "image/jpeg", Data: []byte("jpg")}}

	err := f.jobs.HandleRender(context.Background(), renderTask(t, jobs.RenderPayload{Kind: jobs.DocumentComplaint, ID: 1, Notify: true}))
	require.NoError(t, err)

	got := f.mail.sent[0]
	assert.Equal(t, mailer.AccountCommercial, got.account)
	assert.Equal(t, []string{"commercial@mtr.tn"}, got.msg.To)
	assert.Equal(t, "amel@example.tn", got.msg.ReplyTo)
	assert.Equal(t, "Réclamation R2500001 – Amel Trabelsi", got.msg.Subject)
	require.Len(t, got.msg.Attachments, 2)
	assert.Equal(t, "reclamation-R2500001.pdf", got.msg.Attachments[0].Name)
	assert.Contains(t, got.msg.Text, "Document : Bon de livraison – BL-118")
}

func TestHandleRenderOrderConfirmsToAdmin(t *testing.T) {
	f := newFixture(t)
	err := f.jobs.HandleRender(context.Background(), renderTask(t, jobs.RenderPayload{Kind: jobs.DocumentOrder, ID: 9, Notify: true}))
	require.NoError(t, err)

	got := f.mail.sent[0]
	assert.Equal(t, mailer.AccountAdmin, got.account)
	assert.Equal(t, []string{"bureau@mtr.tn"}, got.msg.To)
	assert.Equal(t, []string{"amel@example.tn"}, got.msg.Cc)
	assert.Equal(t, "amel@example.tn", got.msg.ReplyTo)
	assert.Equal(t, "Commande confirmée – Devis DV2500004", got.msg.Subject)
	require.Len(t, got.msg.Attachments, 1)
	assert.Equal(t, f.quotes.pdfs[4], got.msg.Attachments[0].Data)
	assert.Contains(t, got.msg.Text, "• Note : Livraison Sfax")

	require.NoError(t, f.jobs.HandleRender(context.Background(), renderTask(t, jobs.RenderPayload{Kind: jobs.DocumentOrder, ID: 10, Notify: true})))
	assert.Len(t, f.mail.sent, 1)
}

func TestHandleRenderWithoutNotifyOnlyStores(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.jobs.HandleRender(context.Background(), renderTask(t, jobs.RenderPayload{Kind: jobs.DocumentComplaint, ID: 1})))
	assert.Empty(t, f.mail.sent)
	assert.NotEmpty(t, f.complaints.pdfs[1])
}

func TestHandleRenderRetryReusesStoredPDF(t *testing.T) {
	f := newFixture(t)
	f.mail.err = errors.New("smtp timeout")
	task := renderTask(t, jobs.RenderPayload{Kind: jobs.DocumentRequest, ID: 1, Notify: true})

	err := f.jobs.HandleRender(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	f.mail.err = nil
	require.NoError(t, f.jobs.HandleRender(context.Background(), task))
	assert.Equal(t, int32(1), f.renderer.calls.Load())
}

func TestHandleRenderSkipsRetryForBadInput(t *testing.T) {
	f := newFixture(t)
	cases := map[string]*asynq.Task{
		"garbage":       asynq.NewTask(jobs.TaskRenderDocument, []byte("{")),
		"unknown kind":  renderTask(t, jobs.RenderPayload{Kind: "invoice", ID: 1}),
		"zero id":       renderTask(t, jobs.RenderPayload{Kind: jobs.DocumentQuote}),
		"missing":       renderTask(t, jobs.RenderPayload{Kind: jobs.DocumentQuote, ID: 99}),
		"missing order": renderTask(t, jobs.RenderPayload{Kind: jobs.DocumentOrder, ID: 99, Notify: true}),
	}
	for name, task := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.jobs.HandleRender(context.Background(), task)
			assert.ErrorIs(t, err, asynq.SkipRetry)
		})
	}
}

func TestHandleBackfillQueuesMissingRenders(t *testing.T) {
	f := newFixture(t)
	f.requests.missing = []int64{1, 2, 3}
	f.complaints.missing = []int64{5}

	task, err := jobs.NewRenderBackfillTask(2)
	require.NoError(t, err)
	require.NoError(t, f.jobs.HandleBackfill(context.Background(), task))

	assert.Equal(t, []jobs.RenderPayload{
		{Kind: jobs.DocumentRequest, ID: 1},
		{Kind: jobs.DocumentRequest, ID: 2},
		{Kind: jobs.DocumentComplaint, ID: 5},
	}, f.enqueuer.payloads)
}

func TestHandleSendMail(t *testing.T) {
	f := newFixture(t)
	task, err := jobs.NewSendMailTask(jobs.SendMailPayload{Account: "contact", To: "amel@example.tn", Subject: "Bienvenue", Text: "Bonjour"})
	require.NoError(t, err)
	require.NoError(t, f.jobs.HandleSendMail(context.Background(), task))
	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, mailer.AccountContact, f.mail.sent[0].account)

	bad, err := jobs.NewSendMailTask(jobs.SendMailPayload{Account: "marketing", To: "a@b.tn", Subject: "x"})
	require.NoError(t, err)
	assert.ErrorIs(t, f.jobs.HandleSendMail(context.Background(), bad), asynq.SkipRetry)
}

func TestHandleIdempotencyCleanup(t *testing.T) {
	f := newFixture(t)
	task, err := jobs.NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, f.jobs.HandleIdempotencyCleanup(context.Background(), task))
	assert.Equal(t, 48*time.Hour, f.cleaner.olderThan)
	assert.Len(t, f.jobs.Handlers(), 4)
}

func TestEmailBodiesEscapeClientInput(t *testing.T) {
	html, text, err := complaintEmail.execute(complaintView{
		page:        newPage("Réclamation R1"),
		Number:      "R1",
		ClientName:  "<script>alert(1)</script>",
		Description: "a & b",
	})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.Contains(t, text, "<script>alert(1)</script>")
	assert.True(t, strings.HasPrefix(html, "<!doctype html>"))
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KB", humanSize(1536))
	assert.Equal(t, "15 MB", humanSize(15<<20))
}
