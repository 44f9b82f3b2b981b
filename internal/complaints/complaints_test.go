package complaints

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/auth/authtest"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/render"
	"github.com/mtr-industry/mtr-backoffice/internal/sequence"
	"github.com/mtr-industry/mtr-backoffice/internal/users"
	"github.com/mtr-industry/mtr-backoffice/jobs"
	_ "github.com/mtr-industry/mtr-backoffice/testing"
)

type memRepo struct {
	mu      sync.Mutex
	nextID  int64
	items   map[int64]Complaint
	numbers map[string]bool
	pdfs    map[int64][]byte
}

func newMemRepo() *memRepo {
	return &memRepo{items: map[int64]Complaint{}, numbers: map[string]bool{}, pdfs: map[int64][]byte{}}
}

func (m *memRepo) Insert(_ context.Context, c *Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.numbers[c.Number] {
		return fmt.Errorf("complaints: insert: %w", httpx.ErrDuplicate)
	}
	m.nextID++
	c.ID = m.nextID
	m.numbers[c.Number] = true
	m.items[c.ID] = *c
	return nil
}

func (m *memRepo) Get(_ context.Context, id int64) (Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return Complaint{}, fmt.Errorf("complaints: get %d: %w", id, httpx.ErrNotFound)
	}
	return c, nil
}

func (m *memRepo) Files(ctx context.Context, id int64) ([]File, error) {
	c, err := m.Get(ctx, id)
	return c.Files, err
}

func (m *memRepo) File(ctx context.Context, id int64, fileID uuid.UUID) (File, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return File{}, err
	}
	for _, f := range c.Files {
		if f.ID == fileID {
			return f, nil
		}
	}
	return File{}, httpx.ErrNotFound
}

func (m *memRepo) List(_ context.Context, userID int64, limit, offset int) ([]Complaint, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Complaint
	for _, c := range m.items {
		if userID == 0 || c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	return out[offset:min(total, offset+limit)], total, nil
}

func (m *memRepo) PDF(_ context.Context, id int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pdf, ok := m.pdfs[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	return pdf, nil
}

func (m *memRepo) SavePDF(_ context.Context, id int64, pdf []byte, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return httpx.ErrNotFound
	}
	c.PDFGeneratedAt = &at
	m.items[id] = c
	m.pdfs[id] = pdf
	return nil
}

func (m *memRepo) MissingPDF(_ context.Context, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id := range m.items {
		if _, ok := m.pdfs[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids[:min(limit, len(ids))], nil
}

type stubNumbers struct {
	seq   int64
	dupes int
}

func (s *stubNumbers) Next(_ context.Context, series sequence.Series) (string, error) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if s.dupes > 0 {
		s.dupes--
		return series.Format(ts, 1), nil
	}
	s.seq++
	return series.Format(ts, s.seq), nil
}

type stubDispatcher struct {
	payloads []jobs.RenderPayload
	err      error
}

func (s *stubDispatcher) EnqueueRender(_ context.Context, p jobs.RenderPayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.payloads = append(s.payloads, p)
	return &asynq.TaskInfo{ID: fmt.Sprint(len(s.payloads))}, nil
}

type stubProfiles map[int64]users.Profile

func (s stubProfiles) Get(_ context.Context, id int64) (users.Profile, error) {
	p, ok := s[id]
	if !ok {
		return users.Profile{}, httpx.ErrNotFound
	}
	return p, nil
}

type fixture struct {
	service    *Service
	repo       *memRepo
	numbers    *stubNumbers
	dispatcher *stubDispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{repo: newMemRepo(), numbers: &stubNumbers{}, dispatcher: &stubDispatcher{}}
	profiles := stubProfiles{
		7: {ID: 7, FirstName: "Amel", LastName: "Trabelsi", Email: "amel@example.tn", AccountType: users.AccountPersonal, Role: auth.RoleClient},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = NewService(f.repo, f.numbers, f.dispatcher, profiles, logger)
	f.service.now = func() time.Time { return time.Date(2025, 4, 2, 8, 15, 0, 0, time.UTC) }
	return f
}

func validInput() Input {
	qty := 40
	return Input{
		Order: Order{
			Kind:         render.DocDeliveryNote,
			Number:       " bl-2025-118 ",
			DeliveryDate: Date{time.Date(2025, 3, 28, 0, 0, 0, 0, time.UTC)},
			Quantity:     &qty,
		},
		Nature:      "Produit non conforme",
		Expectation: "Remplacement",
		Description: "Spires déformées sur une partie du lot.",
	}
}

func TestDateAcceptsDayAndTimestamp(t *testing.T) {
	var o Order
	require.NoError(t, json.Unmarshal([]byte(`{"typeDoc":"facture","numero":"F1","dateLivraison":"2025-03-28"}`), &o))
	assert.Equal(t, "2025-03-28", o.DeliveryDate.Format(time.DateOnly))

	require.NoError(t, json.Unmarshal([]byte(`{"dateLivraison":"2025-03-28T10:00:00Z"}`), &o))
	assert.Equal(t, 10, o.DeliveryDate.Hour())

	require.NoError(t, json.Unmarshal([]byte(`{"dateLivraison":null}`), &o))
	assert.True(t, o.DeliveryDate.IsZero())
	assert.Nil(t, o.Related().DeliveryDate)

	assert.Error(t, json.Unmarshal([]byte(`{"dateLivraison":"28/03/2025"}`), &o))

	out, err := json.Marshal(Order{DeliveryDate: Date{time.Date(2025, 3, 28, 0, 0, 0, 0, time.UTC)}})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"dateLivraison":"2025-03-28"`)
}

func TestNormalizeResolvesOtherChoices(t *testing.T) {
	cases := []struct {
		name   string
		in     Input
		nature string
		expect string
	}{
		{
			name:   "plain choices kept",
			in:     Input{Nature: " Retard ", Expectation: "Avoir"},
			nature: "Retard", expect: "Avoir",
		},
		{
			name:   "detail fields win",
			in:     Input{Nature: "Autre", NatureDetail: "Emballage abîmé", Expectation: "other", ExpectationDetail: "Reprise"},
			nature: "Emballage abîmé", expect: "Reprise",
		},
		{
			name: "fragments from description",
			in: Input{
				Nature: "autres", Expectation: "Autre",
				Description: "Précisez la nature : Mauvais diamètre | Précisez votre attente : Nouvelle fabrication",
			},
			nature: "Mauvais diamètre", expect: "Nouvelle fabrication",
		},
		{
			name:   "other without detail",
			in:     Input{Nature: "Autre", Expectation: "Autre"},
			nature: "Autre", expect: "Autre",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := tc.in
			in.normalize()
			assert.Equal(t, tc.nature, in.Nature)
			assert.Equal(t, tc.expect, in.Expectation)
		})
	}
}

func TestCreateStoresComplaintAndQueuesRender(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Files = []File{{Name: "photo.jpg", ContentType: "image/jpeg", Data: []byte("\xff\xd8\xff")}}

	created, err := f.service.Create(context.Background(), 7, in)
	require.NoError(t, err)
	assert.Equal(t, "R2500001", created.Number)

	stored := f.repo.items[created.ID]
	assert.Equal(t, "BL-2025-118", stored.Order.Number)
	assert.Equal(t, int64(7), stored.UserID)
	require.Len(t, stored.Files, 1)
	assert.NotEqual(t, uuid.Nil, stored.Files[0].ID)
	assert.Equal(t, int64(3), stored.Files[0].Size)

	require.Len(t, f.dispatcher.payloads, 1)
	assert.Equal(t, jobs.RenderPayload{Kind: jobs.DocumentComplaint, ID: created.ID, Notify: true}, f.dispatcher.payloads[0])
}

func TestCreateRetriesDuplicateNumberAndSurvivesQueueFailure(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Create(context.Background(), 7, validInput())
	require.NoError(t, err)

	f.numbers.dupes = 1
	f.dispatcher.err = errors.New("redis down")
	created, err := f.service.Create(context.Background(), 7, validInput())
	require.NoError(t, err)
	assert.Equal(t, "R2500002", created.Number)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	cases := map[string]func(*Input){
		"missing nature":  func(in *Input) { in.Nature = " " },
		"missing number":  func(in *Input) { in.Order.Number = "" },
		"unknown doc":     func(in *Input) { in.Order.Kind = "ticket" },
		"negative qty":    func(in *Input) { q := -1; in.Order.Quantity = &q },
		"missing attente": func(in *Input) { in.Expectation = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			in := validInput()
			mutate(&in)
			_, err := f.service.Create(context.Background(), 7, in)
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Empty(t, f.repo.items)
		})
	}

	f := newFixture(t)
	in := validInput()
	in.Files = make([]File, MaxFiles+1)
	_, err := f.service.Create(context.Background(), 7, in)
	require.ErrorIs(t, err, ErrTooManyFiles)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestGetHidesOtherClientsComplaints(t *testing.T) {
	f := newFixture(t)
	created, err := f.service.Create(context.Background(), 7, validInput())
	require.NoError(t, err)

	_, err = f.service.Get(context.Background(), authtest.Client(8), created.ID)
	assert.ErrorIs(t, err, httpx.ErrNotFound)

	c, err := f.service.Get(context.Background(), authtest.Admin, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Number, c.Number)
}

func TestListScopesByRole(t *testing.T) {
	f := newFixture(t)
	for _, uid := range []int64{7, 7, 8} {
		_, err := f.service.Create(context.Background(), uid, validInput())
		require.NoError(t, err)
	}

	mine, err := f.service.List(context.Background(), authtest.Client(7), 1, 20)
	require.NoError(t, err)
	assert.Len(t, mine.Items, 2)
	assert.Equal(t, 2, mine.Pagination.Total)

	all, err := f.service.List(context.Background(), authtest.Admin, 1, 2)
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)
	assert.Equal(t, 3, all.Pagination.Total)
	assert.Equal(t, 2, all.Pagination.TotalPages)

	none, err := f.service.List(context.Background(), authtest.Client(9), 1, 20)
	require.NoError(t, err)
	assert.NotNil(t, none.Items)
}

func TestSnapshotAndPDFLifecycle(t *testing.T) {
	f := newFixture(t)
	created, err := f.service.Create(context.Background(), 7, validInput())
	require.NoError(t, err)

	c, profile, err := f.service.Snapshot(context.Background(), created.ID)
	require.NoError(t, err)
	snap := c.Snapshot(profile.Snapshot())
	assert.Equal(t, "R2500001", snap.Number)
	assert.Equal(t, render.DocDeliveryNote, snap.Document.Kind)
	require.NotNil(t, snap.Document.DeliveryDate)
	assert.Equal(t, 40, *snap.Document.Quantity)
	assert.Equal(t, "amel@example.tn", snap.Client.Email)

	missing, err := f.service.MissingPDF(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{created.ID}, missing)

	require.NoError(t, f.service.SavePDF(context.Background(), created.ID, []byte("%PDF-1.3")))
	pdf, err := f.service.StoredPDF(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3", string(pdf))
	assert.NotNil(t, f.repo.items[created.ID].PDFGeneratedAt)

	_, _, err = f.service.Snapshot(context.Background(), 99)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

type stubPDFs struct{}

func (stubPDFs) ComplaintPDF(_ context.Context, id int64) ([]byte, error) {
	return []byte(fmt.Sprintf("%%PDF-%d", id)), nil
}

func serve(t *testing.T, f *fixture, id auth.Identity, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, f.service, stubPDFs{}, auth.Middleware{Logger: logger}, 1<<20)
	r := chi.NewRouter()
	r.Use(authtest.As(id))
	r.Route("/reclamations", h.MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateJSON(t *testing.T) {
	f := newFixture(t)
	body := `{"commande":{"typeDoc":"facture","numero":"f-889","dateLivraison":"2025-03-20","quantite":12},
"nature":"Autre","precisezNature":"Mauvais traitement de surface","attente":"Avoir",
"piecesJointes":[{"filename":"note.txt","mimetype":"text/plain","data":"Ym9uam91cg=="}]}`
	req := httptest.NewRequest(http.MethodPost, "/reclamations/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := serve(t, f, authtest.Client(7), req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	stored := f.repo.items[1]
	assert.Equal(t, "F-889", stored.Order.Number)
	assert.Equal(t, "Mauvais traitement de surface", stored.Nature)
	require.Len(t, stored.Files, 1)
	assert.Equal(t, "bonjour", string(stored.Files[0].Data))
}

func TestHandlerCreateMultipart(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"commande[typeDoc]":       "bon_livraison",
		"commande[numero]":        "BL-77",
		"commande[dateLivraison]": "2025-03-28",
		"commande[quantite]":      "5",
		"nature":                  "Quantité manquante",
		"attente":                 "autre",
		"attenteAutre":            "Complément de livraison",
	} {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("piecesJointes", "bl.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/reclamations/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(t, f, authtest.Client(7), req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	stored := f.repo.items[1]
	assert.Equal(t, render.DocDeliveryNote, stored.Order.Kind)
	assert.Equal(t, "2025-03-28", stored.Order.DeliveryDate.Format(time.DateOnly))
	require.NotNil(t, stored.Order.Quantity)
	assert.Equal(t, 5, *stored.Order.Quantity)
	assert.Equal(t, "Complément de livraison", stored.Expectation)
	require.Len(t, stored.Files, 1)
	assert.Equal(t, "bl.pdf", stored.Files[0].Name)
}

func TestHandlerCreateRejectsBadQuantity(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("commande[quantite]", "beaucoup"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/reclamations/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := serve(t, f, authtest.Client(7), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerAccess(t *testing.T) {
	f := newFixture(t)
	in := validInput()
	in.Files = []File{{Name: "photo.jpg", ContentType: "image/jpeg", Data: []byte("jpg")}}
	created, err := f.service.Create(context.Background(), 7, in)
	require.NoError(t, err)
	fileID := f.repo.items[created.ID].Files[0].ID

	rec := serve(t, f, auth.Identity{}, httptest.NewRequest(http.MethodGet, "/reclamations/mine", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, f, authtest.Client(8), httptest.NewRequest(http.MethodGet, "/reclamations/1/pdf", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, f, authtest.Client(7), httptest.NewRequest(http.MethodGet, "/reclamations/1/pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1", rec.Body.String())

	rec = serve(t, f, authtest.Client(7), httptest.NewRequest(http.MethodGet, "/reclamations/1/files/"+fileID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpg", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "photo.jpg")

	rec = serve(t, f, authtest.Client(7), httptest.NewRequest(http.MethodGet, "/reclamations/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, f, authtest.Admin, httptest.NewRequest(http.MethodGet, "/reclamations/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Pagination.Total)
}
