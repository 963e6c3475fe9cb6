package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const nominatimBody = `[
	{"display_name": "Doha, Qatar", "lat": "25.2854", "lon": "51.5310"},
	{"display_name": "Doha Port", "lat": "25.30", "lon": "51.54"},
	{"display_name": "bad entry", "lat": "not-a-number", "lon": "51.0"}
]`

func TestSearchQueryTooShort(t *testing.T) {
	t.Parallel()

	c := NewClient("http://unused.invalid")
	for _, q := range []string{"", " ", "d", "  d  "} {
		if _, err := c.Search(context.Background(), q); !errors.Is(err, ErrQueryTooShort) {
			t.Errorf("query %q: expected ErrQueryTooShort, got %v", q, err)
		}
	}
}

func TestSearchMapsResultsAndCaches(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "doha" {
			t.Errorf("q = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(nominatimBody))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)

	results, err := c.Search(context.Background(), "doha")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 parseable results, got %d", len(results))
	}
	if results[0].DisplayName != "Doha, Qatar" || results[0].Latitude != 25.2854 {
		t.Fatalf("unexpected first result: %+v", results[0])
	}

	// Second lookup is served from cache; case-insensitive key.
	if _, err := c.Search(context.Background(), "DOHA"); err != nil {
		t.Fatalf("cached Search: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 upstream hit, got %d", hits.Load())
	}
}

func TestSearchUpstreamFailure(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	if _, err := c.Search(context.Background(), "doha"); !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestRedactEndpoint(t *testing.T) {
	t.Parallel()

	if got := redactEndpoint("https://geo.example.com/search?key=secret"); got != "https://geo.example.com" {
		t.Fatalf("redactEndpoint = %q", got)
	}
	if got := redactEndpoint("not a url"); got != "(redacted)" {
		t.Fatalf("redactEndpoint fallback = %q", got)
	}
}
