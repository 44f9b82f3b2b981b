package users

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/httpx"
	"github.com/mtr-industry/mtr-backoffice/internal/render"
	"github.com/mtr-industry/mtr-backoffice/internal/shared"
)

func TestSnapshotCompany(t *testing.T) {
	p := Profile{
		FirstName:   "Sami",
		LastName:    "Ben Salah",
		Email:       "sami@bensalah.tn",
		Phone:       "+216 98 000 000",
		Address:     "Zone industrielle, Sfax",
		AccountType: AccountCompany,
		Role:        auth.RoleClient,
		Company:     &Company{TaxID: "1234567/A/M/000", Name: "Ben Salah SARL", Position: "Acheteur"},
		Personal:    &Personal{CIN: "0000"},
	}
	party := p.Snapshot()
	assert.Equal(t, "Sami Ben Salah", party.DisplayName)
	assert.Equal(t, render.AccountCompany, party.AccountKind)
	assert.Equal(t, "1234567/A/M/000", party.TaxCode)
	require.NotNil(t, party.Corporate)
	assert.Equal(t, "Ben Salah SARL", party.Corporate.LegalName)
	assert.Nil(t, party.Personal)
}

func TestSnapshotPersonalFallsBackToEmail(t *testing.T) {
	p := Profile{Email: "x@y.tn", AccountType: AccountPersonal, Personal: &Personal{CIN: "08123456"}}
	party := p.Snapshot()
	assert.Equal(t, "x@y.tn", party.DisplayName)
	require.NotNil(t, party.Personal)
	assert.Equal(t, "08123456", party.Personal.NationalID)
	assert.Empty(t, party.TaxCode)
}

type stubRepo struct {
	profiles map[int64]Profile
}

func (s stubRepo) Get(_ context.Context, id int64) (Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("users: get %d: %w", id, httpx.ErrNotFound)
	}
	return p, nil
}

func (s stubRepo) ListClients(_ context.Context, limit, offset int) ([]Profile, int, error) {
	var out []Profile
	for _, p := range s.profiles {
		if p.Role == auth.RoleClient {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func withIdentity(r *http.Request, id auth.Identity) *http.Request {
	sess := &shared.Session{ID: "s"}
	auth.SignIn(sess, id)
	return r.WithContext(shared.ContextWithSession(r.Context(), sess))
}

func newRouter() http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(stubRepo{profiles: map[int64]Profile{
		1: {ID: 1, Email: "admin@mtr.tn", Role: auth.RoleAdmin},
		2: {ID: 2, Email: "client@mtr.tn", Role: auth.RoleClient},
	}})
	r := chi.NewRouter()
	r.Route("/users", NewHandler(logger, svc, auth.Middleware{Logger: logger}).MountRoutes)
	return r
}

func TestMeReturnsProfile(t *testing.T) {
	rr := httptest.NewRecorder()
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/users/me", nil), auth.Identity{UserID: 2, Role: auth.RoleClient})
	newRouter().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var p Profile
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, "client@mtr.tn", p.Email)
}

func TestMeUnknownUser(t *testing.T) {
	rr := httptest.NewRecorder()
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/users/me", nil), auth.Identity{UserID: 9, Role: auth.RoleClient})
	newRouter().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListClientsAdminOnly(t *testing.T) {
	rr := httptest.NewRecorder()
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/users/", nil), auth.Identity{UserID: 2, Role: auth.RoleClient})
	newRouter().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	req = withIdentity(httptest.NewRequest(http.MethodGet, "/users/?perPage=500", nil), auth.Identity{UserID: 1, Role: auth.RoleAdmin})
	newRouter().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var page ClientPage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 100, page.Pagination.PerPage)
	assert.Equal(t, 1, page.Pagination.Total)
}
