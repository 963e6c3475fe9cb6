package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zakhtar8/aamalcalendar/internal/config"
	"github.com/zakhtar8/aamalcalendar/internal/dataset"
	"github.com/zakhtar8/aamalcalendar/internal/prayer"
)

const testDoc = `{
	"meta": {"title": "test", "version": 1},
	"rules": [
		{"id": "ram-month", "month": "Ramadan", "kind": "month_all", "label": "Month of Ramadan"},
		{"id": "ram-night-15", "month": "Ramadan", "kind": "specific", "period": "night", "start_day": 15},
		{"id": "rajab-day-27", "month": "Rajab", "kind": "specific", "period": "day", "start_day": 27}
	]
}`

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Anchors = map[string]config.AnchorConfig{
		"ramadan": {StartDate: "2024-03-11", Length: 30},
	}
	if mutate != nil {
		mutate(cfg)
	}

	ds, err := dataset.Parse([]byte(testDoc))
	if err != nil {
		t.Fatalf("parse dataset: %v", err)
	}

	return NewServer(cfg, "", ds, prayer.Calculator{FajrAngle: cfg.FajrAngle})
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Fatalf("health = %d %q", w.Code, w.Body.String())
	}
}

func TestHandleSchedule(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/schedule", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Events []struct {
			ID     string `json:"id"`
			Title  string `json:"title"`
			AllDay bool   `json:"all_day"`
			Start  string `json:"start"`
			Color  string `json:"color"`
			Hex    string `json:"color_hex"`
		} `json:"events"`
		SkippedRules []string `json:"skipped_rules"`
		Timezone     string   `json:"timezone"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if resp.Timezone != "Asia/Qatar" {
		t.Fatalf("timezone = %q", resp.Timezone)
	}
	// Month-wide event plus the 15th-night marker; the Rajab rule has no
	// anchor and is skipped, not an error.
	if len(resp.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(resp.Events))
	}
	if len(resp.SkippedRules) != 1 || resp.SkippedRules[0] != "rajab-day-27" {
		t.Fatalf("skipped = %v", resp.SkippedRules)
	}

	var sawNight bool
	for _, ev := range resp.Events {
		if ev.ID == "ram-night-15-d15" {
			sawNight = true
			if !strings.HasPrefix(ev.Start, "2024-03-24") {
				t.Fatalf("15th night starts %q, want 2024-03-24", ev.Start)
			}
			if ev.Color != "night" || ev.Hex == "" {
				t.Fatalf("night color mapping wrong: %q / %q", ev.Color, ev.Hex)
			}
		}
	}
	if !sawNight {
		t.Fatal("15th-night event missing")
	}
}

func TestHandleScheduleMonthFilter(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Anchors["rajab"] = config.AnchorConfig{StartDate: "2024-01-13", Length: 30}
	})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/schedule?month=Rajab", nil))

	var resp struct {
		Events []struct {
			Month string `json:"month"`
		} `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 1 {
		t.Fatalf("expected 1 rajab event, got %d", len(resp.Events))
	}
	if resp.Events[0].Month != "rajab" {
		t.Fatalf("month = %q", resp.Events[0].Month)
	}
}

func TestScheduleMatchesAnchorSpellingVariants(t *testing.T) {
	t.Parallel()

	// A config file may spell the month with diacritics; its anchor must
	// still reach the normalized rule months.
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Anchors = map[string]config.AnchorConfig{
			"Ramaḍān": {StartDate: "2024-03-11", Length: 30},
		}
	})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/schedule", nil))

	var resp struct {
		Events       []any    `json:"events"`
		SkippedRules []string `json:"skipped_rules"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 2 {
		t.Fatalf("diacritic anchor spelling matched %d events, want 2 (skipped: %v)",
			len(resp.Events), resp.SkippedRules)
	}
	if len(resp.SkippedRules) != 1 || resp.SkippedRules[0] != "rajab-day-27" {
		t.Fatalf("skipped = %v, want only the unanchored rajab rule", resp.SkippedRules)
	}
}

func TestHandleAnchorsPut(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	body := `{"Sha'ban": {"start_date": "2024-02-11", "length": 29}}`
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/anchors", strings.NewReader(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	var anchors map[string]config.AnchorConfig
	if err := json.Unmarshal(w.Body.Bytes(), &anchors); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := anchors["shaban"]; !ok {
		t.Fatalf("month key not normalized: %v", anchors)
	}

	// The new anchor set replaces the old; ramadan is gone, so its rules skip.
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/schedule", nil))
	var resp struct {
		Events []any `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode schedule: %v", err)
	}
	if len(resp.Events) != 0 {
		t.Fatalf("expected no events after replacing anchors, got %d", len(resp.Events))
	}
}

func TestHandleAnchorsPutRejectsInvalid(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	cases := []string{
		`{"ramadan": {"start_date": "2024-03-11", "length": 28}}`,
		`{"ramadan": {"start_date": "11/03/2024", "length": 30}}`,
		`not json`,
	}
	for _, body := range cases {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/anchors", strings.NewReader(body)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestHandleGeocodeValidation(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/geocode?q=d", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("short query: status = %d, want 400", w.Code)
	}
}

func TestHandleGeocodeProxy(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"display_name": "Doha, Qatar", "lat": "25.28", "lon": "51.53"}]`))
	}))
	defer upstream.Close()

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.GeocodeEndpoint = upstream.URL
	})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/geocode?q=doha", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Doha, Qatar") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestHandleGeocodeUpstreamFailure(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.GeocodeEndpoint = upstream.URL
	})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/geocode?q=doha", nil))

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
}

func TestHandleBoundaries(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/boundaries?date=2024-03-24", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Dawn string `json:"dawn"`
		Dusk string `json:"dusk"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Dawn == "" || resp.Dusk == "" || resp.Dawn >= resp.Dusk {
		t.Fatalf("implausible boundaries: %q .. %q", resp.Dawn, resp.Dusk)
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/boundaries?date=tomorrow", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad date: status = %d", w.Code)
	}
}

func TestHandleExportICS(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export.ics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/calendar") {
		t.Fatalf("content type = %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "BEGIN:VEVENT", "SUMMARY:Month of Ramadan", "END:VCALENDAR"} {
		if !strings.Contains(body, want) {
			t.Errorf("export missing %q", want)
		}
	}
}

func TestBasicAuthProtectsAPI(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("open sesame")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", PasswordHash: hash}
	})
	h := s.Handler()

	// /health stays open.
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health behind auth: %d", w.Code)
	}

	// No credentials: 401 with a challenge.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/schedule", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated: %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("missing WWW-Authenticate challenge")
	}

	// Wrong password.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/schedule", nil)
	req.SetBasicAuth("admin", "wrong")
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", w.Code)
	}

	// Correct credentials.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/schedule", nil)
	req.SetBasicAuth("admin", "open sesame")
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("authenticated: %d", w.Code)
	}
}

func TestAPIPathsNeverServeUI(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown API path: %d, want 404", w.Code)
	}
	if strings.Contains(w.Body.String(), "<html") {
		t.Fatal("API 404 must not return the UI page")
	}
}
