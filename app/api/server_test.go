package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/rss-digest/app/archive"
	"github.com/lysyi3m/rss-digest/app/database"
	"github.com/lysyi3m/rss-digest/app/feed"
	"github.com/lysyi3m/rss-digest/app/runner"
	"github.com/lysyi3m/rss-digest/app/tasks"
)

const testPassword = "s3cret"

type MockScheduler struct {
	mu       sync.Mutex
	triggers []string
	err      error
}

var _ tasks.TaskSchedulerInterface = (*MockScheduler)(nil)

func (m *MockScheduler) Start()                                     {}
func (m *MockScheduler) Stop()                                      {}
func (m *MockScheduler) EnqueueTask(task tasks.TaskInterface) error { return m.err }
func (m *MockScheduler) SyncFeeds() error                           { return m.err }

func (m *MockScheduler) RunDigest(trigger string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.triggers = append(m.triggers, trigger)
	return nil
}

type testEnv struct {
	router    *gin.Engine
	db        *database.DB
	feeds     *database.FeedStore
	settings  *database.SettingsStore
	archive   *archive.Archive
	scheduler *MockScheduler
}

func newTestEnv(t *testing.T, password string) *testEnv {
	t.Helper()

	db, err := database.Connect(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		db:        db,
		feeds:     database.NewFeedStore(db),
		settings:  database.NewSettingsStore(db),
		archive:   archive.New(filepath.Join(t.TempDir(), "digests")),
		scheduler: &MockScheduler{},
	}

	handler := NewHandler(Deps{
		FeedRepo:      env.feeds,
		ArticleRepo:   database.NewArticleStore(db),
		RecipientRepo: database.NewRecipientStore(db),
		SettingsRepo:  env.settings,
		Archive:       env.archive,
		ConfigCache:   feed.NewConfigCache(""),
		Scheduler:     env.scheduler,
		BaseURL:       "https://digest.example.com",
		Version:       "test",
		FromName:      "Test Digest",
	})
	env.router = NewServer(handler, password)

	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) adminPost(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("admin", testPassword)
	return e.do(req)
}

func (e *testEnv) api(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testPassword)
	return e.do(req)
}

func flashFrom(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == flashCookie {
			v, err := url.QueryUnescape(c.Value)
			if err != nil {
				t.Fatal(err)
			}
			return v
		}
	}
	return ""
}

func TestLatestEmpty(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.get("/")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No digests yet") {
		t.Error("Expected empty state")
	}
}

func TestLatestAndArchive(t *testing.T) {
	env := newTestEnv(t, "")

	name, err := env.archive.Persist("Morning Digest", "<html><body>hello</body></html>", 3)
	if err != nil {
		t.Fatal(err)
	}

	w := env.get("/")
	if !strings.Contains(w.Body.String(), "/digests/"+name) {
		t.Errorf("Expected latest digest frame, got %s", w.Body.String())
	}

	w = env.get("/archive")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Morning Digest") {
		t.Errorf("Expected archive listing, got %d", w.Code)
	}

	w = env.get("/digests/" + name)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "hello") {
		t.Fatalf("Expected digest file, got %d", w.Code)
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("Expected content security policy on archived digest")
	}
}

func TestDigestNotFound(t *testing.T) {
	env := newTestEnv(t, "")

	for _, path := range []string{"/digests/index.json", "/digests/digest-20240101T000000Z.html"} {
		if w := env.get(path); w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestDigestFeed(t *testing.T) {
	env := newTestEnv(t, "")

	name, err := env.archive.Persist("Morning Digest", "<html></html>", 2)
	if err != nil {
		t.Fatal(err)
	}

	w := env.get("/feed.xml")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<rss") {
		t.Error("Expected RSS document")
	}
	if !strings.Contains(body, "https://digest.example.com/digests/"+name) {
		t.Errorf("Expected absolute digest link, got %s", body)
	}
	if w.Header().Get("X-Feed-Items") != "1" {
		t.Errorf("Expected 1 item header, got %q", w.Header().Get("X-Feed-Items"))
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")

	if _, _, err := env.feeds.AddFeed(context.Background(), "https://example.com/feed.xml", ""); err != nil {
		t.Fatal(err)
	}

	w := env.get("/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["feeds"] != float64(1) {
		t.Errorf("Unexpected health body %v", body)
	}
}

func TestAdminDisabledWithoutPassword(t *testing.T) {
	env := newTestEnv(t, "")

	if w := env.get("/admin"); w.Code != http.StatusNotFound {
		t.Errorf("Expected admin to be unmounted, got %d", w.Code)
	}
	if w := env.get("/api/feeds"); w.Code != http.StatusNotFound {
		t.Errorf("Expected API to be unmounted, got %d", w.Code)
	}
}

func TestAdminRequiresBasicAuth(t *testing.T) {
	env := newTestEnv(t, testPassword)

	if w := env.get("/admin"); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.SetBasicAuth("admin", testPassword)
	if w := env.do(req); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestAdminAddFeedAndFlash(t *testing.T) {
	env := newTestEnv(t, testPassword)

	w := env.adminPost("/admin/feeds", url.Values{"url": {"https://example.com/feed.xml"}, "category": {"tech"}})
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/admin" {
		t.Fatalf("Expected redirect to /admin, got %d %q", w.Code, w.Header().Get("Location"))
	}
	if got := flashFrom(t, w); got != "success:Feed added" {
		t.Errorf("Unexpected flash %q", got)
	}

	f, err := env.feeds.GetFeedByURL(context.Background(), "https://example.com/feed.xml")
	if err != nil || f == nil {
		t.Fatalf("Expected stored feed, got %v %v", f, err)
	}
	if f.Category != "tech" {
		t.Errorf("Expected category tech, got %q", f.Category)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.SetBasicAuth("admin", testPassword)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}
	page := env.do(req)
	if !strings.Contains(page.Body.String(), "Feed added") {
		t.Error("Expected flash message on admin page")
	}
	if !strings.Contains(page.Body.String(), "https://example.com/feed.xml") {
		t.Error("Expected feed listed on admin page")
	}

	w = env.adminPost("/admin/feeds", url.Values{"url": {"https://example.com/feed.xml"}})
	if got := flashFrom(t, w); got != "info:Feed already registered" {
		t.Errorf("Unexpected flash for duplicate %q", got)
	}
}

func TestAdminAddFeedRejectsInvalidURL(t *testing.T) {
	env := newTestEnv(t, testPassword)

	w := env.adminPost("/admin/feeds", url.Values{"url": {"ftp://example.com/feed"}})
	if !strings.HasPrefix(flashFrom(t, w), "error:") {
		t.Errorf("Expected error flash, got %q", flashFrom(t, w))
	}

	n, _ := env.feeds.GetFeedCount(context.Background())
	if n != 0 {
		t.Errorf("Expected no feeds stored, got %d", n)
	}
}

func TestAdminToggleAndCategory(t *testing.T) {
	env := newTestEnv(t, testPassword)
	ctx := context.Background()

	id, _, err := env.feeds.AddFeed(ctx, "https://example.com/feed.xml", "")
	if err != nil {
		t.Fatal(err)
	}
	path := "/admin/feeds/" + strconvID(id)

	env.adminPost(path+"/toggle", nil)
	f, _ := env.feeds.GetFeed(ctx, id)
	if f.Enabled {
		t.Error("Expected feed to be disabled")
	}

	env.adminPost(path+"/category", url.Values{"category": {"news"}})
	f, _ = env.feeds.GetFeed(ctx, id)
	if f.Category != "news" {
		t.Errorf("Expected category news, got %q", f.Category)
	}

	env.adminPost(path+"/delete", nil)
	f, _ = env.feeds.GetFeed(ctx, id)
	if f != nil {
		t.Error("Expected feed to be deleted")
	}
}

func TestAdminRecipients(t *testing.T) {
	env := newTestEnv(t, testPassword)
	recipients := database.NewRecipientStore(env.db)
	ctx := context.Background()

	w := env.adminPost("/admin/recipients", url.Values{"recipients": {"a@example.com, b@example.com\nc@example.com"}})
	if got := flashFrom(t, w); got != "success:Recipients updated (3)" {
		t.Errorf("Unexpected flash %q", got)
	}

	w = env.adminPost("/admin/recipients", url.Values{"recipients": {"a@example.com\nnot-an-email"}})
	if !strings.HasPrefix(flashFrom(t, w), "error:") {
		t.Errorf("Expected error flash, got %q", flashFrom(t, w))
	}
	list, _ := recipients.ListRecipients(ctx)
	if len(list) != 3 {
		t.Errorf("Expected invalid replace to leave 3 recipients, got %d", len(list))
	}

	env.adminPost("/admin/recipients/delete", url.Values{"email": {"b@example.com"}})
	env.adminPost("/admin/recipients/add", url.Values{"email": {"d@example.com"}})
	list, _ = recipients.ListRecipients(ctx)
	if len(list) != 3 {
		t.Errorf("Expected 3 recipients after delete and add, got %d", len(list))
	}
}

func TestAdminIntroAndRun(t *testing.T) {
	env := newTestEnv(t, testPassword)

	env.adminPost("/admin/intro", url.Values{"intro": {"  Hello readers  "}})
	intro, _ := env.settings.GetSetting(context.Background(), runner.IntroSettingKey, "")
	if intro != "Hello readers" {
		t.Errorf("Expected trimmed intro, got %q", intro)
	}

	w := env.adminPost("/admin/run", nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("Expected redirect, got %d", w.Code)
	}
	if len(env.scheduler.triggers) != 1 || env.scheduler.triggers[0] != "admin" {
		t.Errorf("Expected admin trigger, got %v", env.scheduler.triggers)
	}
}

func TestAdminViewDigest(t *testing.T) {
	env := newTestEnv(t, testPassword)

	name, _ := env.archive.Persist("Digest", "<html></html>", 1)

	req := httptest.NewRequest(http.MethodGet, "/admin/digests/"+name, nil)
	req.SetBasicAuth("admin", testPassword)
	if w := env.do(req); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/digests/missing.html", nil)
	req.SetBasicAuth("admin", testPassword)
	if w := env.do(req); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestAPIAuth(t *testing.T) {
	env := newTestEnv(t, testPassword)

	if w := env.get("/api/feeds"); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/feeds", nil)
	req.Header.Set("X-API-Key", "wrong")
	if w := env.do(req); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong key, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/feeds", nil)
	req.Header.Set("Authorization", "Bearer "+testPassword)
	if w := env.do(req); w.Code != http.StatusOK {
		t.Errorf("Expected 200 with bearer token, got %d", w.Code)
	}
}

func TestAPIFeeds(t *testing.T) {
	env := newTestEnv(t, testPassword)

	w := env.api(http.MethodPost, "/api/feeds", `{"url":"https://example.com/feed.xml","category":"tech"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created struct {
		Created bool     `json:"created"`
		Feed    feedJSON `json:"feed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if !created.Created || created.Feed.Category != "tech" || !created.Feed.Enabled {
		t.Errorf("Unexpected created feed %+v", created)
	}

	if w := env.api(http.MethodPost, "/api/feeds", `{"url":"https://example.com/feed.xml"}`); w.Code != http.StatusOK {
		t.Errorf("Expected 200 for existing feed, got %d", w.Code)
	}
	if w := env.api(http.MethodPost, "/api/feeds", `{"url":"not a url"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid URL, got %d", w.Code)
	}

	path := "/api/feeds/" + strconvID(created.Feed.ID)
	w = env.api(http.MethodPatch, path, `{"enabled":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var updated feedJSON
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Enabled || updated.Category != "tech" {
		t.Errorf("Expected only enabled to change, got %+v", updated)
	}

	if w := env.api(http.MethodPatch, "/api/feeds/999", `{"enabled":true}`); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown feed, got %d", w.Code)
	}

	if w := env.api(http.MethodDelete, path, ""); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}
	if w := env.api(http.MethodGet, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestAPIRecipients(t *testing.T) {
	env := newTestEnv(t, testPassword)

	if w := env.api(http.MethodPut, "/api/recipients", `{"emails":["a@example.com","bad"]}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid address, got %d", w.Code)
	}
	if w := env.api(http.MethodPut, "/api/recipients", `{"emails":["a@example.com","b@example.com"]}`); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w := env.api(http.MethodPost, "/api/recipients", `{"email":"c@example.com"}`); w.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d", w.Code)
	}
	if w := env.api(http.MethodDelete, "/api/recipients/a@example.com", ""); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}

	w := env.api(http.MethodGet, "/api/recipients", "")
	var body struct {
		Recipients []string `json:"recipients"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Recipients) != 2 {
		t.Errorf("Expected 2 recipients, got %v", body.Recipients)
	}
}

func TestAPIIntroDigestsStatsAndRun(t *testing.T) {
	env := newTestEnv(t, testPassword)

	if w := env.api(http.MethodPut, "/api/intro", `{"intro":"Hi"}`); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w := env.api(http.MethodGet, "/api/intro", ""); !strings.Contains(w.Body.String(), `"Hi"`) {
		t.Errorf("Expected stored intro, got %s", w.Body.String())
	}

	w := env.api(http.MethodGet, "/api/digests", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"digests":[]`) {
		t.Errorf("Expected empty digest list, got %s", w.Body.String())
	}

	if w := env.api(http.MethodGet, "/api/stats", ""); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	if w := env.api(http.MethodPost, "/api/run", ""); w.Code != http.StatusAccepted {
		t.Errorf("Expected 202, got %d", w.Code)
	}
	if len(env.scheduler.triggers) != 1 || env.scheduler.triggers[0] != "api" {
		t.Errorf("Expected api trigger, got %v", env.scheduler.triggers)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, testPassword)

	req := httptest.NewRequest(http.MethodOptions, "/api/feeds", nil)
	w := env.do(req)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}
