package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/config"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/observability"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/session"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/triage"
)

type Server struct {
	cfg          config.Config
	sessions     *session.Manager
	metrics      *observability.Metrics
	logger       *zap.Logger
	analysisMode string
	storeMode    string
	upgrader     websocket.Upgrader
}

// Options carries descriptive values reported by the health endpoints.
type Options struct {
	AnalysisMode string
	StoreMode    string
	Logger       *zap.Logger
}

func New(cfg config.Config, sessions *session.Manager, metrics *observability.Metrics, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:          cfg,
		sessions:     sessions,
		metrics:      metrics,
		logger:       logger,
		analysisMode: opts.AnalysisMode,
		storeMode:    opts.StoreMode,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || strings.EqualFold(allowed, origin) {
						return true
					}
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/v1/chat/sessions", func(r chi.Router) {
		r.Use(BearerAuth(s.cfg.JWTSecret, s.logger))
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleSnapshot)
			r.Post("/messages", s.handleSendMessage)
			r.Post("/complaint/start", s.handleStartComplaint)
			r.Post("/complaint/proceed", s.handleProceed)
			r.Post("/resume", s.handleResume)
			r.Post("/clear", s.handleClear)
			r.Post("/end", s.handleEndSession)
			r.Get("/ws", s.handleSessionWS)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"analysis_mode": s.analysisMode,
		"store_mode":    s.storeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"analysis_mode":   s.analysisMode,
		"store_mode":      s.storeMode,
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type createSessionResponse struct {
	session.CreateResponse
	Snapshot triage.Snapshot `json:"snapshot"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	sess, created := s.sessions.Create(r.Context(), p.Owner, p.Token)
	router, err := s.sessions.Router(sess.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "session_unavailable", err.Error())
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.metrics.ObserveSessionEvent("created", s.sessions.ActiveCount())
	} else {
		s.metrics.ObserveSessionEvent("resumed", s.sessions.ActiveCount())
	}

	respondJSON(w, status, createSessionResponse{
		CreateResponse: session.NewCreateResponse(sess, created, s.cfg.SessionInactivityTimeout),
		Snapshot:       router.Snapshot(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	_, router, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, router.Snapshot())
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	ended, err := s.sessions.End(sess.ID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ObserveSessionEvent("ended", s.sessions.ActiveCount())
	respondJSON(w, http.StatusOK, ended)
}

// ownedSession resolves the {id} path parameter to a session owned by the caller.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return nil, false
	}
	sess, err := s.sessions.Get(id)
	if err != nil || sess.Owner != PrincipalFrom(r.Context()).Owner {
		respondError(w, http.StatusNotFound, "session_not_found", session.ErrNotFound.Error())
		return nil, false
	}
	return sess, true
}

// lookup resolves an active, caller-owned session and its router.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, *triage.Router, bool) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return nil, nil, false
	}
	router, err := s.sessions.Router(sess.ID)
	if err != nil {
		if errors.Is(err, session.ErrEnded) {
			respondError(w, http.StatusGone, "session_ended", err.Error())
		} else {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		}
		return nil, nil, false
	}
	return sess, router, true
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondRouterError maps router guard errors to HTTP statuses.
func respondRouterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, triage.ErrBusy):
		respondError(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, triage.ErrEmptyInput):
		respondError(w, http.StatusBadRequest, "empty_input", err.Error())
	case errors.Is(err, triage.ErrHandedOff):
		respondError(w, http.StatusConflict, "handed_off", err.Error())
	case errors.Is(err, triage.ErrAffordanceUnavailable):
		respondError(w, http.StatusConflict, "action_unavailable", err.Error())
	case errors.Is(err, triage.ErrDiscarded):
		respondError(w, http.StatusConflict, "discarded", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
