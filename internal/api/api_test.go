package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_signage/internal/audit"
	"github.com/friendsincode/heimdall_signage/internal/cache"
	"github.com/friendsincode/heimdall_signage/internal/catalog"
	"github.com/friendsincode/heimdall_signage/internal/clock"
	"github.com/friendsincode/heimdall_signage/internal/devices"
	"github.com/friendsincode/heimdall_signage/internal/events"
	"github.com/friendsincode/heimdall_signage/internal/logbuffer"
	"github.com/friendsincode/heimdall_signage/internal/models"
	"github.com/friendsincode/heimdall_signage/internal/scheduling"
)

var testSecret = []byte("test-signing-key")

func newTestAPI(t *testing.T, at time.Time) (*API, *chi.Mux, *clock.Fixed) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&models.User{}, &models.AuditLog{}, &models.ContentItem{}, &models.Window{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	clk := clock.NewFixed(at)
	bus := events.NewBus()
	registry := devices.Defaults()
	engine := scheduling.New(catalog.New(gdb), clk, registry, bus, zerolog.Nop())
	auditSvc := audit.NewService(gdb, bus, zerolog.Nop())

	a := New(gdb, testSecret, engine, registry, clk, cache.Disabled(zerolog.Nop()), auditSvc, bus, logbuffer.New(100), zerolog.Nop())

	r := chi.NewRouter()
	a.Routes(r)
	return a, r, clk
}

func signup(t *testing.T, r http.Handler, email string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": "password123"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return resp.Token
}

func authedRequest(method, target, token string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestDisplayUnknownDevice(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/display/lobby-9", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown device, got %d", rec.Code)
	}
}

func TestDisplayEmptyCatalog(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/display/tv1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp displayResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Empty {
		t.Fatalf("expected empty display for an empty catalog")
	}
}

func TestContentRequiresAuth(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/content/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestContentCreateAndDisplayFlow(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, r, _ := newTestAPI(t, base)
	token := signup(t, r, "ops@example.com")

	body, _ := json.Marshal(map[string]any{
		"title":          "welcome",
		"kind":           "text",
		"body":           "Welcome!",
		"target_devices": []string{"tv1", "tv2"},
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/content/", token, body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}
	var created contentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if !created.Immediate {
		t.Fatalf("expected windowless item to be immediate")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/display/tv1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("display returned %d", rec.Code)
	}
	var display displayResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &display); err != nil {
		t.Fatalf("decode display: %v", err)
	}
	if display.Empty || display.ItemID != created.ID {
		t.Fatalf("expected tv1 to show the created item, got %+v", display)
	}

	// tv3 was not targeted.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/display/tv3", nil))
	var other displayResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &other); err != nil {
		t.Fatalf("decode display: %v", err)
	}
	if !other.Empty {
		t.Fatalf("expected tv3 to be empty, got %+v", other)
	}
}

func TestContentCreateValidationError(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, r, _ := newTestAPI(t, base)
	token := signup(t, r, "ops@example.com")

	body, _ := json.Marshal(map[string]any{
		"title":          "bad",
		"kind":           "image_quad",
		"image_urls":     []string{"one.png"},
		"target_devices": []string{"tv1"},
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/content/", token, body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestContentGetNotFound(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, r, _ := newTestAPI(t, base)
	token := signup(t, r, "ops@example.com")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/content/no-such-item/", token, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSweepTriggerRequiresAdmin(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, r, _ := newTestAPI(t, base)

	// First signup is admin, second is editor.
	adminToken := signup(t, r, "admin@example.com")
	editorToken := signup(t, r, "editor@example.com")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/sweep", editorToken, nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for editor, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/sweep", adminToken, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, r, _ := newTestAPI(t, base)
	signup(t, r, "ops@example.com")

	body, _ := json.Marshal(map[string]string{"email": "ops@example.com", "password": "wrong-password"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestDashboardSummaryCounts(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, r, _ := newTestAPI(t, base)
	token := signup(t, r, "ops@example.com")

	body, _ := json.Marshal(map[string]any{
		"title":          "notice",
		"kind":           "text",
		"body":           "hello",
		"target_devices": []string{"tv1"},
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/content/", token, body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/dashboard/summary", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("summary returned %d: %s", rec.Code, rec.Body.String())
	}

	var counts map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &counts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if counts["total_items"] != 1 || counts["immediate"] != 1 || counts["known_devices"] != 4 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestDashboardDeviceSummary(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, r, _ := newTestAPI(t, base)
	token := signup(t, r, "ops@example.com")

	start := base.Add(time.Hour).Format(time.RFC3339)
	end := base.Add(2 * time.Hour).Format(time.RFC3339)
	body := []byte(fmt.Sprintf(`{
		"title": "upcoming talk",
		"kind": "embed",
		"body": "<iframe></iframe>",
		"target_devices": ["tv1"],
		"windows": [{"starts_at": %q, "ends_at": %q}]
	}`, start, end))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/content/", token, body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/dashboard/devices/tv1", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Current  *contentResponse  `json:"current"`
		Upcoming []contentResponse `json:"upcoming"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Current != nil {
		t.Fatalf("expected no current content, got %+v", resp.Current)
	}
	if len(resp.Upcoming) != 1 || resp.Upcoming[0].Title != "upcoming talk" {
		t.Fatalf("expected one upcoming item, got %+v", resp.Upcoming)
	}
}
