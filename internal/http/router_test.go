package httpapi

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/flashcard-market/internal/cache"
	"github.com/tbourn/flashcard-market/internal/config"
	"github.com/tbourn/flashcard-market/internal/http/middleware"
	"github.com/tbourn/flashcard-market/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		MaxBodyBytes:   1 << 20,
		RateRPS:        1000,
		RateBurst:      1000,
		AuthRateRPS:    1000,
		AuthRateBurst:  1000,
		IdempotencyTTL: time.Hour,
		Auth: config.AuthConfig{
			JWTSecret:  "router-test-secret-0123",
			JWTTTL:     time.Hour,
			JWTIssuer:  "flashcard-market",
			AdminEmail: "root@example.com",
		},
		Page: config.PageConfig{DefaultLimit: 20, MaxLimit: 100},
		OTEL: config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newTestServer(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ccfg := cache.DefaultConfig()
	ccfg.SweepInterval = 0
	c, err := cache.New(ccfg)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(c.Close)

	app, err := NewApp(newTestDB(t), c, cfg)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	app.Users.BcryptCost = 4 // bcrypt.MinCost

	r := gin.New()
	RegisterRoutes(r, app, cfg)
	return r
}

func call(r http.Handler, method, path, token, body string, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func mustJSON(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("json: %v (%d %s)", err, w.Code, w.Body.String())
	}
}

func register(t *testing.T, r http.Handler, name string) (token string, id uint) {
	t.Helper()
	w := call(r, http.MethodPost, "/api/v1/auth/register", "",
		fmt.Sprintf(`{"username":%q,"email":"%s@example.com","password":"correct-horse"}`, name, name))
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", name, w.Code, w.Body.String())
	}
	var res struct {
		Token string `json:"token"`
		User  struct {
			ID uint `json:"id"`
		} `json:"user"`
	}
	mustJSON(t, w, &res)
	return res.Token, res.User.ID
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r := newTestServer(t, testConfig())

	w := call(r, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}

	w = call(r, http.MethodGet, "/ready", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ready") {
		t.Fatalf("GET /ready = %d %s", w.Code, w.Body.String())
	}

	w = call(r, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// API responses carry ACAO: * in the allow-all branch
	w = call(r, http.MethodGet, "/api/v1/sets", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /sets = %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}

	w = call(r, http.MethodGet, "/nope", "", "")
	var er struct {
		Code      string `json:"code"`
		RequestID string `json:"request_id"`
	}
	mustJSON(t, w, &er)
	if w.Code != http.StatusNotFound || er.Code != "not_found" || er.RequestID == "" {
		t.Fatalf("GET /nope = %d %+v", w.Code, er)
	}

	w = call(r, http.MethodDelete, "/api/v1/sets", "", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE /sets expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r := newTestServer(t, cfg)

	w := call(r, http.MethodGet, "/api/v1/tags", "", "", "Origin", "http://example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /tags = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected echoed origin, got %q", got)
	}

	w = call(r, http.MethodGet, "/api/v1/tags", "", "", "Origin", "http://evil.test")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "http://evil.test" {
		t.Fatalf("disallowed origin echoed")
	}
}

func TestRegisterRoutes_AuthBoundaries(t *testing.T) {
	r := newTestServer(t, testConfig())

	// Writes and /me need a caller.
	for _, p := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/sets"},
		{http.MethodGet, "/api/v1/me/purchases"},
		{http.MethodGet, "/api/v1/users/me"},
		{http.MethodPost, "/api/v1/sets/1/purchase"},
	} {
		if w := call(r, p.method, p.path, "", ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s anonymous = %d", p.method, p.path, w.Code)
		}
	}

	// A bad token is rejected even on public reads.
	if w := call(r, http.MethodGet, "/api/v1/sets", "garbage", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token on public read = %d", w.Code)
	}

	// Invalid idempotency key is rejected before the handler.
	tok, _ := register(t, r, "ada")
	w := call(r, http.MethodPost, "/api/v1/sets/1/purchase", tok, "", middleware.HeaderIdempotencyKey, "bad key!")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad idempotency key = %d %s", w.Code, w.Body.String())
	}

	// Authenticated responses are not cacheable.
	w = call(r, http.MethodGet, "/api/v1/users/me", tok, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Cache-Control"), "no-store") {
		t.Fatalf("GET /users/me = %d cache-control=%q", w.Code, w.Header().Get("Cache-Control"))
	}
}

func TestRegisterRoutes_PurchaseFlow(t *testing.T) {
	r := newTestServer(t, testConfig())

	eduTok, eduID := register(t, r, "grace")
	buyerTok, _ := register(t, r, "alan")

	// Educator publishes a premium set with one card.
	w := call(r, http.MethodPost, "/api/v1/sets", eduTok, `{"title":"Go Concurrency","price":"4.99"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create set: %d %s", w.Code, w.Body.String())
	}
	var set struct {
		ID         uint `json:"id"`
		EducatorID uint `json:"educatorId"`
	}
	mustJSON(t, w, &set)
	if set.EducatorID != eduID {
		t.Fatalf("educator = %d, want %d", set.EducatorID, eduID)
	}
	base := fmt.Sprintf("/api/v1/sets/%d", set.ID)

	w = call(r, http.MethodPost, base+"/cards", eduTok, `{"front":"chan","back":"pipe"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add card: %d %s", w.Code, w.Body.String())
	}

	// Metadata is public; content is locked with the price.
	if w = call(r, http.MethodGet, base, "", ""); w.Code != http.StatusOK {
		t.Fatalf("metadata: %d", w.Code)
	}
	w = call(r, http.MethodGet, base+"/content", buyerTok, "")
	var locked struct {
		Locked bool `json:"locked"`
		Access struct {
			Reason string `json:"reason"`
			Price  string `json:"price"`
		} `json:"access"`
	}
	mustJSON(t, w, &locked)
	if w.Code != http.StatusOK || !locked.Locked || locked.Access.Reason != "PREMIUM" || locked.Access.Price != "4.99" {
		t.Fatalf("locked content: %d %s", w.Code, w.Body.String())
	}

	// The educator cannot buy their own set.
	w = call(r, http.MethodPost, base+"/purchase", eduTok, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("own purchase: %d %s", w.Code, w.Body.String())
	}

	// Purchase, then replay with the same key.
	w = call(r, http.MethodPost, base+"/purchase", buyerTok, "", middleware.HeaderIdempotencyKey, "order-42")
	if w.Code != http.StatusCreated {
		t.Fatalf("purchase: %d %s", w.Code, w.Body.String())
	}
	var first struct {
		ID     uint   `json:"id"`
		Amount string `json:"amount"`
	}
	mustJSON(t, w, &first)
	if first.Amount != "4.99" {
		t.Fatalf("amount = %q", first.Amount)
	}

	w = call(r, http.MethodPost, base+"/purchase", buyerTok, "", middleware.HeaderIdempotencyKey, "order-42")
	if w.Code != http.StatusOK || w.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("replay: %d %v %s", w.Code, w.Header(), w.Body.String())
	}
	var again struct {
		ID uint `json:"id"`
	}
	mustJSON(t, w, &again)
	if again.ID != first.ID {
		t.Fatalf("replay returned purchase %d, want %d", again.ID, first.ID)
	}

	// Without the key a second purchase is a conflict.
	if w = call(r, http.MethodPost, base+"/purchase", buyerTok, ""); w.Code != http.StatusConflict {
		t.Fatalf("repeat purchase: %d", w.Code)
	}

	// Content is now unlocked and the view lands in history.
	w = call(r, http.MethodGet, base+"/content", buyerTok, "")
	var open struct {
		Locked bool `json:"locked"`
		Access struct {
			SetType string `json:"setType"`
		} `json:"access"`
		Set struct {
			Cards []struct {
				Front string `json:"front"`
			} `json:"cards"`
		} `json:"set"`
	}
	mustJSON(t, w, &open)
	if open.Locked || open.Access.SetType != "purchased" || len(open.Set.Cards) != 1 || open.Set.Cards[0].Front != "chan" {
		t.Fatalf("unlocked content: %s", w.Body.String())
	}

	var page struct {
		Items []json.RawMessage `json:"items"`
	}
	for _, p := range []string{"/api/v1/me/purchases", "/api/v1/me/history"} {
		w = call(r, http.MethodGet, p, buyerTok, "")
		mustJSON(t, w, &page)
		if w.Code != http.StatusOK || len(page.Items) != 1 {
			t.Fatalf("%s: %d %s", p, w.Code, w.Body.String())
		}
	}
}

func TestRegisterRoutes_AuthEndpointsRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.AuthRateRPS = 0
	cfg.AuthRateBurst = 1
	r := newTestServer(t, cfg)

	login := `{"email":"nobody@example.com","password":"wrong-password"}`
	if w := call(r, http.MethodPost, "/api/v1/auth/login", "", login); w.Code != http.StatusUnauthorized {
		t.Fatalf("first login = %d %s", w.Code, w.Body.String())
	}
	w := call(r, http.MethodPost, "/api/v1/auth/login", "", login)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("second login = %d retry=%q", w.Code, w.Header().Get("Retry-After"))
	}
	// the bucket is shared by register and login
	if w := call(r, http.MethodPost, "/api/v1/auth/register", "", `{}`); w.Code != http.StatusTooManyRequests {
		t.Fatalf("register after exhausted bucket = %d", w.Code)
	}
	if w := call(r, http.MethodGet, "/api/v1/tags", "", ""); w.Code != http.StatusOK {
		t.Fatalf("public reads must not share the auth bucket, got %d", w.Code)
	}
}

func TestRegisterRoutes_GzipWhenAccepted(t *testing.T) {
	r := newTestServer(t, testConfig())

	w := call(r, http.MethodGet, "/api/v1/categories", "", "", "Accept-Encoding", "gzip")
	if w.Code != http.StatusOK || w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip, got %d %q", w.Code, w.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	body, _ := io.ReadAll(zr)
	if !bytes.Contains(body, []byte(`"items"`)) {
		t.Fatalf("decompressed body unexpected: %s", body)
	}
}

func TestLimitBody_MaxBytes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(8))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversize body, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("1234")))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for small body, got %d", w.Code)
	}
}

func TestGroupWithPrefix_And_JoinPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	groupWithPrefix(r, "/").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "root") })
	groupWithPrefix(r, "/v9").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "v9") })

	for path, want := range map[string]string{"/ping": "root", "/v9/ping": "v9"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s = %d %q", path, w.Code, w.Body.String())
		}
	}

	cases := []struct{ base, p, want string }{
		{"/", "/sets/:id/purchase", "/sets/:id/purchase"},
		{"", "/x", "/x"},
		{"/api/v1", "/sets/:id/purchase", "/api/v1/sets/:id/purchase"},
		{"/api/v1/", "/x", "/api/v1/x"},
	}
	for _, tc := range cases {
		if got := joinPath(tc.base, tc.p); got != tc.want {
			t.Fatalf("joinPath(%q, %q) = %q, want %q", tc.base, tc.p, got, tc.want)
		}
	}
}
