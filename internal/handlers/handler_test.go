package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"anonhost/internal/cache"
	"anonhost/internal/config"
	"anonhost/internal/mailer"
	"anonhost/internal/metrics"
	"anonhost/internal/models"
	"anonhost/internal/services"
	"anonhost/internal/storage"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *captureMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	t      *testing.T
	h      *Handler
	r      *gin.Engine
	db     *gorm.DB
	fs     *storage.FilesystemStore
	mail   *captureMailer
	clock  *testClock
	keySvc *services.APIKeyService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg := config.Config{
		AppEnv:        "test",
		BaseURL:       "http://localhost:8080",
		SessionSecret: "test-secret-12345678901234567890123456789012",
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	clock := &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	fs, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	store := storage.NewAdapter(fs, cache.NewMemo[bool](storage.HealthTTL, nil), cfg.BaseURL+"/uploads", log, m)

	mail := &captureMailer{}
	audit := services.NewAuditService(db, log)
	settings := services.NewSettingsService(db)
	media := services.NewMediaService(db, store, log, audit)
	keys := services.NewAPIKeyService(db, audit)
	upload := services.NewUploadService(store, media, settings, audit, log)
	chunkStore, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	svc := Services{
		Identity:   services.NewIdentityResolver(db, log),
		Auth:       services.NewAuthService(db, mail, audit, log),
		APIKeys:    keys,
		Settings:   settings,
		Profiles:   services.NewProfileService(db, store, log, audit),
		Media:      media,
		Upload:     upload,
		Chunks:     services.NewChunkedUploadService(chunkStore, upload, log),
		Delivery:   services.NewDeliveryService(store, m),
		Shortlinks: services.NewShortlinkService(db, nil, log, m, audit),
		Stats:      services.NewStatsService(db, cache.NewMemo[services.Stats](services.StatsTTL, clock.Now), log, m),
		Admin:      services.NewAdminService(db, mail, audit, log),
		QR:         services.NewQRService(),
		Store:      store,
	}

	h := NewHandler(cfg, log, svc, reg)
	r := h.SetupRouter(nil)

	// Test-only helper to establish a session.
	r.GET("/test/login/:id", func(c *gin.Context) {
		id, _ := strconv.ParseUint(c.Param("id"), 10, 64)
		session := sessions.Default(c)
		session.Set(sessionUserKey, uint(id))
		_ = session.Save()
		c.Status(http.StatusOK)
	})

	return &testEnv{t: t, h: h, r: r, db: db, fs: fs, mail: mail, clock: clock, keySvc: keys}
}

func (e *testEnv) createUser(email string, admin bool) models.User {
	e.t.Helper()
	u := models.User{Email: email, Name: "user", Admin: admin}
	require.NoError(e.t, e.db.Create(&u).Error)
	return u
}

// login returns the session cookie for userID.
func (e *testEnv) login(userID uint) *http.Cookie {
	e.t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test/login/"+strconv.FormatUint(uint64(userID), 10), nil)
	e.r.ServeHTTP(w, req)
	cookies := w.Result().Cookies()
	require.NotEmpty(e.t, cookies)
	return cookies[0]
}

type reqOpt func(*http.Request)

func withCookie(c *http.Cookie) reqOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

func withBearer(key string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+key) }
}

func (e *testEnv) do(method, path string, body io.Reader, contentType string, opts ...reqOpt) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, opt := range opts {
		opt(req)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(method, path string, payload interface{}, opts ...reqOpt) *httptest.ResponseRecorder {
	e.t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(e.t, err)
		body = bytes.NewReader(data)
	}
	return e.do(method, path, body, "application/json", opts...)
}

func (e *testEnv) doMultipart(path string, fields map[string]string, filename string, content []byte, opts ...reqOpt) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.doMultipartField(path, "file", fields, filename, content, opts...)
}

func (e *testEnv) doMultipartField(path, field string, fields map[string]string, filename string, content []byte, opts ...reqOpt) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(e.t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(e.t, err)
		_, err = part.Write(content)
		require.NoError(e.t, err)
	}
	require.NoError(e.t, mw.Close())
	return e.do(http.MethodPost, path, &buf, mw.FormDataContentType(), opts...)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}
