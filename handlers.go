package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fcaptcha/clickguard/internal/config"
	"github.com/fcaptcha/clickguard/internal/flagstore"
	"github.com/fcaptcha/clickguard/internal/metrics"
	"github.com/fcaptcha/clickguard/internal/page"
	"github.com/fcaptcha/clickguard/internal/scoring"
	"github.com/fcaptcha/clickguard/internal/signals"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	visitorCookie = "cg_vid"

	visitorCookieMaxAge = 365 * 24 * 60 * 60
)

type server struct {
	cfg     *config.Config
	base    scoring.Options
	backend flagstore.Backend
	pages   *page.Registry
	clock   page.Clock
	nav     page.Navigator
	logger  *logrus.Logger
}

func newServer(cfg *config.Config, backend flagstore.Backend, logger *logrus.Logger) *server {
	return &server{
		cfg:     cfg,
		base:    cfg.BaseOptions(),
		backend: backend,
		pages:   page.NewRegistry(cfg.Pages.MaxPages, cfg.Pages.TTL),
		clock:   page.SystemClock(),
		nav:     logNavigator(logger),
		logger:  logger,
	}
}

// logNavigator records navigations as they come due. The client performs
// them from the destination and delay it gets back from /navigate.
func logNavigator(logger *logrus.Logger) page.Navigator {
	return page.NavigatorFunc(func(url string) {
		logger.WithField("destination", url).Info("navigation due")
	})
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/pages", func(r chi.Router) {
		r.Post("/", s.createPageHandler)
		r.Post("/{id}/events", s.eventHandler)
		r.Post("/{id}/navigate", s.navigateHandler)
		r.Post("/{id}/unload", s.unloadHandler)
	})

	if s.cfg.Server.Debug {
		r.Route("/api/debug", func(r chi.Router) {
			r.Get("/tracking", s.inspectTrackingHandler)
			r.Delete("/tracking", s.resetTrackingHandler)
			r.Get("/pages/{id}", s.inspectPageHandler)
		})
	}

	return r
}

func requestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("request handled")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// visitor returns the visitor id from the cookie, issuing a new one when it
// is missing or malformed.
func (s *server) visitor(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(visitorCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     visitorCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   visitorCookieMaxAge,
		HttpOnly: true,
		Secure:   s.cfg.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *server) jar(visitor string) *flagstore.Jar {
	return flagstore.NewJar(s.backend, visitor, s.logger)
}

// lookup resolves the page in the URL, writing a 404 when it is gone.
func (s *server) lookup(w http.ResponseWriter, r *http.Request) (*page.Page, bool) {
	p, err := s.pages.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "page not found")
		return nil, false
	}
	return p, true
}

// pageError maps page runtime errors. A page closed between lookup and use
// is reported like a missing one.
func pageError(w http.ResponseWriter, err error) {
	if errors.Is(err, page.ErrClosed) || errors.Is(err, page.ErrNotFound) {
		writeError(w, http.StatusNotFound, "page not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

// CreatePageRequest is sent once per page load.
type CreatePageRequest struct {
	UserAgent      string                 `json:"userAgent"`
	ViewportWidth  int                    `json:"viewportWidth"`
	ViewportHeight int                    `json:"viewportHeight"`
	Webdriver      bool                   `json:"webdriver"`
	Attributes     map[string]interface{} `json:"attributes"`
}

type CreatePageResponse struct {
	PageID    string `json:"pageId"`
	VisitorID string `json:"visitorId"`
	Score     int    `json:"score"`
	Blocked   bool   `json:"blocked"`
}

func (s *server) createPageHandler(w http.ResponseWriter, r *http.Request) {
	var req CreatePageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserAgent == "" {
		req.UserAgent = r.Header.Get("User-Agent")
	}

	visitor := s.visitor(w, r)
	opts := config.DecodeAttributes(req.Attributes).Options(s.base)

	p := page.New(page.Config{
		ID:        uuid.NewString(),
		Options:   opts,
		Jar:       s.jar(visitor),
		Navigator: s.nav,
		Clock:     s.clock,
		Logger:    s.logger,
	})
	s.pages.Add(p)

	env := signals.Environment{
		UserAgent:      req.UserAgent,
		ViewportWidth:  req.ViewportWidth,
		ViewportHeight: req.ViewportHeight,
		Webdriver:      req.Webdriver,
	}
	if err := p.Load(env); err != nil {
		pageError(w, err)
		return
	}
	st, err := p.State()
	if err != nil {
		pageError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreatePageResponse{
		PageID:    p.ID(),
		VisitorID: visitor,
		Score:     st.Score,
		Blocked:   st.Blocked,
	})
}

const (
	EventClick     = "click"
	EventAdClick   = "adclick"
	EventMouseMove = "mousemove"
	EventScroll    = "scroll"
)

type EventRequest struct {
	Type string `json:"type"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

type EventResponse struct {
	Score           int  `json:"score"`
	Blocked         bool `json:"blocked"`
	SuppressDefault bool `json:"suppressDefault"`
}

func (s *server) eventHandler(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var (
		resp EventResponse
		err  error
	)
	switch req.Type {
	case EventClick:
		err = p.Click(req.X, req.Y)
	case EventAdClick:
		resp.SuppressDefault, err = p.AdClick(req.X, req.Y)
	case EventMouseMove:
		err = p.MouseMove()
	case EventScroll:
		err = p.Scroll()
	default:
		writeError(w, http.StatusBadRequest, "unknown event type")
		return
	}
	if err != nil {
		pageError(w, err)
		return
	}

	st, err := p.State()
	if err != nil {
		pageError(w, err)
		return
	}
	resp.Score = st.Score
	resp.Blocked = st.Blocked
	writeJSON(w, http.StatusOK, resp)
}

// NavigateRequest asks for a navigation to Target. When X and Y are set the
// navigation was triggered by a click at that position, which is recorded
// before the decision.
type NavigateRequest struct {
	Target string `json:"target"`
	X      *int   `json:"x,omitempty"`
	Y      *int   `json:"y,omitempty"`
}

type NavigateResponse struct {
	Verdict     scoring.Verdict `json:"verdict"`
	Destination string          `json:"destination"`
	DelayMs     int64           `json:"delayMs"`
}

func (s *server) navigateHandler(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Target == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var (
		decision scoring.Decision
		err      error
	)
	if req.X != nil && req.Y != nil {
		decision, err = p.ClickAndNavigate(*req.X, *req.Y, req.Target)
	} else {
		decision, err = p.Navigate(req.Target)
	}
	if err != nil {
		pageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, NavigateResponse{
		Verdict:     decision.Verdict,
		Destination: decision.Destination,
		DelayMs:     decision.Delay.Milliseconds(),
	})
}

type UnloadResponse struct {
	Score      int  `json:"score"`
	BotSuspect bool `json:"botSuspect"`
}

func (s *server) unloadHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := p.Unload(); err != nil {
		pageError(w, err)
		return
	}
	// botSuspect reports the stored flag, which is absent when the write failed
	ts, err := p.Inspect()
	if err != nil {
		pageError(w, err)
		return
	}
	s.pages.Remove(p.ID())

	writeJSON(w, http.StatusOK, UnloadResponse{
		Score:      ts.State.Score,
		BotSuspect: ts.Flags[scoring.FlagBotSuspect] == scoring.FlagSet,
	})
}

func (s *server) inspectTrackingHandler(w http.ResponseWriter, r *http.Request) {
	jar := s.jar(s.visitor(w, r))
	writeJSON(w, http.StatusOK, page.InspectTrackingState(r.Context(), jar))
}

func (s *server) resetTrackingHandler(w http.ResponseWriter, r *http.Request) {
	jar := s.jar(s.visitor(w, r))
	page.ResetTrackingState(r.Context(), jar)
	s.logger.WithField("visitor", jar.Visitor()).Info("tracking state reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *server) inspectPageHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookup(w, r)
	if !ok {
		return
	}
	ts, err := p.Inspect()
	if err != nil {
		pageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}
