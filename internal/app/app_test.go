package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/mailer"
	"github.com/mtr-industry/mtr-backoffice/internal/observability"
	"github.com/mtr-industry/mtr-backoffice/internal/shared"
	"github.com/mtr-industry/mtr-backoffice/jobs"
	_ "github.com/mtr-industry/mtr-backoffice/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("CSRF_SECRET", "c5rf")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 465, cfg.SMTPPort)
	assert.Equal(t, int64(25<<20), cfg.UploadMaxBytes)
	assert.Equal(t, "*/30 * * * *", cfg.RenderBackfillCron)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestMailerConfigSkipsEmptyAccounts(t *testing.T) {
	cfg := Config{
		SMTPHost:           "mail.mtr.tn",
		SMTPPort:           587,
		SMTPAdminUser:      "admin@mtr.tn",
		SMTPAdminPass:      "pw",
		SMTPContactUser:    "contact@mtr.tn",
		SMTPContactPass:    "pw2",
		SMTPTimeout:        5 * time.Second,
		MailAdminTo:        "bureau@mtr.tn",
		PublicOrigin:       "https://mtr.tn",
		AppEnv:             "production",
		RenderBackfillCron: "@hourly",
	}
	mc := cfg.MailerConfig()
	assert.Equal(t, "mail.mtr.tn", mc.Host)
	assert.Equal(t, 587, mc.Port)
	assert.Len(t, mc.Accounts, 2)
	assert.Equal(t, "contact@mtr.tn", mc.Accounts[mailer.AccountContact].User)
	_, ok := mc.Accounts[mailer.AccountCommercial]
	assert.False(t, ok)

	dc := cfg.DocumentsConfig()
	assert.Equal(t, "bureau@mtr.tn", dc.AdminTo)
	assert.True(t, cfg.IsProduction())
}

func TestLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown", slog.String("numero", "DV2500001"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "DV2500001", line["numero"])

	assert.Equal(t, slog.LevelInfo, parseLevel(&Config{LogLevel: "loud"}))
	assert.Equal(t, slog.LevelDebug, parseLevel(&Config{LogLevel: "debug"}))
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestRouter(t *testing.T, db Pinger) (http.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "mtr_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", RateLimit: 1000},
		SessionManager: sessions,
		CSRFManager:    csrf,
		Metrics:        observability.NewMetrics(),
		Guard:          auth.Middleware{Logger: logger},
		Database:       db,
		AuthHandler:    auth.NewHandler(logger, auth.NewService(nil), sessions, csrf),
		JobHandler:     jobs.NewHandler(nil, logger),
	})
	return router, sessions
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t, stubPinger{})
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok"}`, rr.Body.String())
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, rr.Header().Get("Set-Cookie"))
}

func TestHealthzReportsDatabaseOutage(t *testing.T) {
	router, _ := newTestRouter(t, stubPinger{err: errors.New("connection refused")})
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "unavailable")
}

func TestCSRFProtectsUnsafeMethods(t *testing.T) {
	router, sessions := newTestRouter(t, nil)

	rr := serve(router, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{")))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(router, httptest.NewRequest(http.MethodGet, "/auth/csrf", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Token string `json:"csrfToken"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessions.CookieName() {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{"))
	req.AddCookie(cookie)
	req.Header.Set(shared.CSRFHeader, "forged")
	require.Equal(t, http.StatusForbidden, serve(router, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{"))
	req.AddCookie(cookie)
	req.Header.Set(shared.CSRFHeader, body.Token)
	assert.Equal(t, http.StatusBadRequest, serve(router, req).Code)
}

func TestJobsRequireAdmin(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	rr := serve(router, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMetricsAndNotFound(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "mtr_http_requests_total")

	rr = serve(router, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "problem+json")
}

func TestInTestMode(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())
}

func TestBrandingPath(t *testing.T) {
	assert.Equal(t, "/srv/mtr/assets/branding.yml", (&Config{AssetRoot: "/srv/mtr", BrandingFile: "assets/branding.yml"}).brandingPath())
	assert.Equal(t, "/etc/mtr/branding.yml", (&Config{AssetRoot: "/srv/mtr", BrandingFile: "/etc/mtr/branding.yml"}).brandingPath())
	assert.Empty(t, (&Config{AssetRoot: "/srv/mtr"}).brandingPath())
}
