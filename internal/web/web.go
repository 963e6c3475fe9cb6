package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zakhtar8/aamalcalendar/internal/config"
	"github.com/zakhtar8/aamalcalendar/internal/dataset"
	"github.com/zakhtar8/aamalcalendar/internal/geocode"
	"github.com/zakhtar8/aamalcalendar/internal/hijri"
	"github.com/zakhtar8/aamalcalendar/internal/ics"
	appLog "github.com/zakhtar8/aamalcalendar/internal/log"
	"github.com/zakhtar8/aamalcalendar/internal/model"
)

// scheduleCacheTTL bounds how stale a cached /api/schedule response may be.
// Expansion is cheap but runs for every rule of every anchored month, so a
// short TTL keeps the UI snappy without the caller memoizing anything.
const scheduleCacheTTL = 30 * time.Second

// Server provides the HTTP API and the embedded browser UI.
type Server struct {
	cfgPath string
	mux     *http.ServeMux

	// cfgMu guards cfg, which is mutated by the anchors endpoint.
	cfgMu sync.RWMutex
	cfg   *config.Config

	ds         *dataset.Dataset
	boundaries hijri.BoundaryProvider
	geocoder   *geocode.Client

	scheduleMu    sync.RWMutex
	scheduleCache *scheduleCache
}

// embeddedStatic contains the browser UI: a month grid with a detail modal,
// driven entirely by /api/schedule and /api/rules.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a Server. cfgPath may be empty, in which case anchor
// updates apply in memory only and are lost on restart.
func NewServer(cfg *config.Config, cfgPath string, ds *dataset.Dataset, boundaries hijri.BoundaryProvider) *Server {
	s := &Server{
		cfgPath:    cfgPath,
		cfg:        cfg,
		ds:         ds,
		boundaries: boundaries,
		geocoder:   geocode.NewClient(cfg.GeocodeEndpoint),
		mux:        http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the routed handler, wrapped with Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	ba := s.cfg.BasicAuth
	if ba.Username == "" {
		return false
	}
	return ba.PasswordHash != "" || ba.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
// An Argon2id password_hash takes precedence over the plaintext fallback.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	ba := s.cfg.BasicAuth

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health stays open for liveness probes.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, ba.Username) || !passwordOK(ba, p) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Aamal Calendar", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func passwordOK(ba *config.BasicAuthConfig, password string) bool {
	if ba.PasswordHash != "" {
		return VerifyPassword(password, ba.PasswordHash)
	}
	return secureCompare(password, ba.Password)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/schedule", s.handleSchedule)
	s.mux.HandleFunc("/api/rules", s.handleRules)
	s.mux.HandleFunc("/api/anchors", s.handleAnchors)
	s.mux.HandleFunc("/api/boundaries", s.handleBoundaries)
	s.mux.HandleFunc("/api/geocode", s.handleGeocode)
	s.mux.HandleFunc("/export.ics", s.handleExportICS)

	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventDTO is a JSON-friendly view of an expanded event.
type eventDTO struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Sections    []model.Section `json:"sections,omitempty"`
	Month       string          `json:"month"`
	LunarDay    int             `json:"lunar_day,omitempty"`
	AllDay      bool            `json:"all_day"`
	Start       time.Time       `json:"start"`
	End         time.Time       `json:"end"`
	Color       model.ColorTag  `json:"color"`
	ColorHex    string          `json:"color_hex"`
}

// scheduleResponse is the JSON response shape for /api/schedule.
type scheduleResponse struct {
	Events       []eventDTO          `json:"events"`
	SkippedRules []string            `json:"skipped_rules,omitempty"`
	Timezone     string              `json:"timezone"`
	WeekStart    string              `json:"week_start"`
	Colors       config.ColorsConfig `json:"colors"`
	GeneratedAt  time.Time           `json:"generated_at"`
}

type scheduleCache struct {
	result    hijri.ExpandResult
	resp      scheduleResponse
	updatedAt time.Time
}

// Expand runs rule expansion against the current config, via the cache.
func (s *Server) Expand() (hijri.ExpandResult, scheduleResponse) {
	now := time.Now()

	s.scheduleMu.RLock()
	sc := s.scheduleCache
	s.scheduleMu.RUnlock()
	if sc != nil && now.Sub(sc.updatedAt) < scheduleCacheTTL {
		return sc.result, sc.resp
	}

	return s.Refresh()
}

// Refresh recomputes the expanded schedule unconditionally and replaces the
// cache. The cron scheduler calls this so a long-running instance rolls over
// to fresh dawn/dusk instants at day boundaries.
func (s *Server) Refresh() (hijri.ExpandResult, scheduleResponse) {
	s.cfgMu.RLock()
	cfg := s.cfg
	loc := cfg.Loc()
	anchors := cfg.ModelAnchors(loc)
	expandCfg := hijri.ExpandConfig{
		Location:   loc,
		Latitude:   cfg.Location.Latitude,
		Longitude:  cfg.Location.Longitude,
		Boundaries: s.boundaries,
	}
	weekStart := cfg.WeekStart
	colors := cfg.Colors
	s.cfgMu.RUnlock()

	result := hijri.ExpandSchedule(s.ds.Rules, anchors, expandCfg)

	dtos := make([]eventDTO, 0, len(result.Events))
	for _, ev := range result.Events {
		dtos = append(dtos, eventDTO{
			ID:          ev.ID,
			Title:       ev.Title,
			Description: ev.Description,
			Sections:    ev.Sections,
			Month:       ev.Month,
			LunarDay:    ev.LunarDay,
			AllDay:      ev.AllDay,
			Start:       ev.Start,
			End:         ev.End,
			Color:       ev.Color,
			ColorHex:    colors.Hex(ev.Color),
		})
	}

	resp := scheduleResponse{
		Events:       dtos,
		SkippedRules: result.SkippedRules,
		Timezone:     loc.String(),
		WeekStart:    weekStart,
		Colors:       colors,
		GeneratedAt:  time.Now(),
	}

	s.scheduleMu.Lock()
	s.scheduleCache = &scheduleCache{result: result, resp: resp, updatedAt: time.Now()}
	s.scheduleMu.Unlock()

	appLog.Info("schedule expanded", "events", len(result.Events), "skipped_rules", len(result.SkippedRules))
	return result, resp
}

func (s *Server) invalidateSchedule() {
	s.scheduleMu.Lock()
	s.scheduleCache = nil
	s.scheduleMu.Unlock()
}

// handleSchedule returns the expanded event list.
//
// GET /api/schedule[?month=shaban]
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	_, resp := s.Expand()

	if month := r.URL.Query().Get("month"); month != "" {
		key := dataset.NormalizeMonth(month)
		filtered := make([]eventDTO, 0, len(resp.Events))
		for _, ev := range resp.Events {
			if ev.Month == key {
				filtered = append(filtered, ev)
			}
		}
		resp.Events = filtered
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRules exposes the loaded dataset (meta + rules) for the detail modal.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.ds)
}

// handleAnchors reads or replaces the per-month calendar anchors.
//
//	GET /api/anchors            -> {"ramadan": {"start_date":"2024-03-11","length":30}, ...}
//	PUT /api/anchors            <- same shape; keys are normalized server-side
func (s *Server) handleAnchors(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.cfgMu.RLock()
		anchors := s.cfg.Anchors
		s.cfgMu.RUnlock()
		writeJSON(w, http.StatusOK, anchors)

	case http.MethodPut:
		var incoming map[string]config.AnchorConfig
		if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
			writeError(w, http.StatusBadRequest, "invalid anchors payload")
			return
		}

		s.cfgMu.Lock()
		loc := s.cfg.Loc()
		normalized := make(map[string]config.AnchorConfig, len(incoming))
		for month, ac := range incoming {
			key := dataset.NormalizeMonth(month)
			if key == "" {
				s.cfgMu.Unlock()
				writeError(w, http.StatusBadRequest, "empty month name")
				return
			}
			if _, err := ac.Model(loc); err != nil {
				s.cfgMu.Unlock()
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			normalized[key] = ac
		}
		s.cfg.Anchors = normalized
		var saveErr error
		if s.cfgPath != "" {
			saveErr = s.cfg.Save(s.cfgPath)
		}
		s.cfgMu.Unlock()

		if saveErr != nil {
			// The in-memory update already happened; report but don't revert.
			appLog.Error("anchors updated but config save failed", saveErr, "path", s.cfgPath)
		}

		s.invalidateSchedule()
		writeJSON(w, http.StatusOK, normalized)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleBoundaries returns the dawn/dusk instants of one civil date.
//
// GET /api/boundaries?date=2024-03-24
func (s *Server) handleBoundaries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.boundaries == nil {
		writeError(w, http.StatusServiceUnavailable, "day boundaries unavailable")
		return
	}

	s.cfgMu.RLock()
	loc := s.cfg.Loc()
	lat := s.cfg.Location.Latitude
	lon := s.cfg.Location.Longitude
	s.cfgMu.RUnlock()

	date, err := time.ParseInLocation("2006-01-02", r.URL.Query().Get("date"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	dawn, dusk, err := s.boundaries.DayBounds(date, lat, lon)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "no dawn/dusk for this date at this latitude")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Date string    `json:"date"`
		Dawn time.Time `json:"dawn"`
		Dusk time.Time `json:"dusk"`
	}{r.URL.Query().Get("date"), dawn, dusk})
}

// handleGeocode proxies a place-name search to the configured upstream.
//
// GET /api/geocode?q=doha
func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	results, err := s.geocoder.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		if errors.Is(err, geocode.ErrQueryTooShort) {
			writeError(w, http.StatusBadRequest, "query must be at least 2 characters")
			return
		}
		appLog.Error("geocode proxy failed", err)
		writeError(w, http.StatusBadGateway, "geocoding service unavailable")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Results []geocode.Result `json:"results"`
	}{results})
}

// handleExportICS serves the expanded schedule as an iCalendar feed.
func (s *Server) handleExportICS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, _ := s.Expand()

	s.cfgMu.RLock()
	colors := s.cfg.Colors
	s.cfgMu.RUnlock()

	body := ics.Build(result.Events, colors, time.Now())

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="aamal-calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// staticFileServer serves the embedded browser UI from internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// API paths never fall through to the UI; a missing API route is a
		// 404, not an HTML page.
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// StartServer runs the HTTP server until ctx is canceled, then shuts it
// down gracefully.
func StartServer(ctx context.Context, s *Server, listen string) error {
	srv := &http.Server{
		Addr:    listen,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
