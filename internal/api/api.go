// Package api exposes the scan, question-answering, and scan-history
// operations over HTTP.
//
// Routes:
//
//   - POST /v1/scan  — run a scan from captured label text and/or a barcode
//   - POST /v1/ask   — answer a question about a previously stored scan
//   - GET  /v1/scans — list stored scans, newest first
//   - GET  /v1/scans/{id} — fetch one stored scan with its full record
//   - GET  /v1/scans/{id}/answers — the question/answer log for one scan
//   - /healthz, /readyz, /metrics — operational endpoints
//
// All responses are JSON. Scan responses carry both the reconciled record and
// the planned speech sections so a thin client can narrate without any local
// planning logic.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nutrivox/nutrivox/internal/allergen"
	"github.com/nutrivox/nutrivox/internal/ask"
	"github.com/nutrivox/nutrivox/internal/health"
	"github.com/nutrivox/nutrivox/internal/observe"
	"github.com/nutrivox/nutrivox/internal/pipeline"
	"github.com/nutrivox/nutrivox/internal/product"
	"github.com/nutrivox/nutrivox/internal/speech"
	"github.com/nutrivox/nutrivox/internal/voicecmd"
	"github.com/nutrivox/nutrivox/pkg/history"
)

// maxBodyBytes bounds request bodies. Label text from a handful of photos is
// tens of kilobytes; 1 MiB leaves generous headroom.
const maxBodyBytes = 1 << 20

// Server holds the handler dependencies.
type Server struct {
	pipeline *pipeline.Pipeline
	answerer *ask.Answerer
	store    history.Store
	health   *health.Handler
	metrics  *observe.Metrics
	log      *slog.Logger

	controls voicecmd.Controls
	listener Listener
	scanHook func(*product.Record)
	profile  func() allergen.Profile
	prefs    func() speech.Preferences
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithHistory sets the scan history store. Without one, scans are not
// persisted and /v1/ask and /v1/scans return 503.
func WithHistory(store history.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithAnswerer sets the question-answering collaborator.
func WithAnswerer(a *ask.Answerer) Option {
	return func(s *Server) { s.answerer = a }
}

// WithHealth sets the health handler registered at /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithScanHook registers a callback invoked with every successfully
// reconciled record, after persistence. The app uses it to trigger local
// narration.
func WithScanHook(hook func(*product.Record)) Option {
	return func(s *Server) { s.scanHook = hook }
}

// WithDefaultProfile sets the allergen profile used when a scan request
// carries none. The function is called per request so hot-reloaded config
// takes effect immediately.
func WithDefaultProfile(profile func() allergen.Profile) Option {
	return func(s *Server) { s.profile = profile }
}

// WithDefaultPreferences sets the reading preferences used when a scan
// request carries none. Defaults to speech.DefaultPreferences.
func WithDefaultPreferences(prefs func() speech.Preferences) Option {
	return func(s *Server) { s.prefs = prefs }
}

// NewServer creates a Server around the scan pipeline.
func NewServer(p *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{pipeline: p}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Handler returns the full route tree wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/scan", s.handleScan)
	mux.HandleFunc("POST /v1/ask", s.handleAsk)
	mux.HandleFunc("GET /v1/scans", s.handleListScans)
	mux.HandleFunc("GET /v1/scans/{id}", s.handleGetScan)
	mux.HandleFunc("GET /v1/scans/{id}/answers", s.handleListAnswers)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.registerVoice(mux)
	s.health.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

type scanRequest struct {
	Barcode    string           `json:"barcode"`
	TextBlocks []string         `json:"text_blocks"`
	FrontText  string           `json:"front_text"`
	BackText   string           `json:"back_text"`
	Profile    profileJSON      `json:"profile"`
	Prefs      *preferencesJSON `json:"preferences"`
}

type scanResponse struct {
	ScanID   string        `json:"scan_id"`
	Outcome  string        `json:"outcome"`
	Record   recordJSON    `json:"record"`
	Sections []sectionJSON `json:"sections"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !s.decode(w, r, &req) {
		return
	}

	profile := req.Profile.toProfile()
	if profile.IsEmpty() && s.profile != nil {
		profile = s.profile()
	}
	in := pipeline.Input{
		Barcode:    req.Barcode,
		TextBlocks: req.TextBlocks,
		FrontText:  req.FrontText,
		BackText:   req.BackText,
		Profile:    profile,
	}
	rec, err := s.pipeline.Scan(r.Context(), in)
	if err != nil {
		if errors.Is(err, product.ErrNoEvidence) {
			s.writeError(w, http.StatusUnprocessableEntity,
				"no barcode match and no readable text; retake the photos")
			return
		}
		s.log.Error("scan failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}

	prefs := speech.DefaultPreferences()
	if s.prefs != nil {
		prefs = s.prefs()
	}
	if req.Prefs != nil {
		prefs = req.Prefs.toPreferences()
	}
	sections := speech.Plan(rec, prefs)

	outcome := "ok"
	if rec.Name == product.FallbackName {
		outcome = "degraded"
	}
	s.persistScan(r, rec, req.Barcode, outcome)
	if s.scanHook != nil {
		s.scanHook(rec)
	}

	s.writeJSON(w, http.StatusOK, scanResponse{
		ScanID:   rec.ID,
		Outcome:  outcome,
		Record:   toRecordJSON(rec),
		Sections: toSectionJSON(sections),
	})
}

// persistScan stores the finished scan when a history store is configured.
// Persistence failures are logged, never surfaced: the scan already succeeded.
func (s *Server) persistScan(r *http.Request, rec *product.Record, barcode, outcome string) {
	if s.store == nil {
		return
	}
	snapshot, err := json.Marshal(toRecordJSON(rec))
	if err != nil {
		s.log.Error("marshal record snapshot", "error", err, "record_id", rec.ID)
		return
	}
	err = s.store.SaveScan(r.Context(), history.Scan{
		ID:                rec.ID,
		Barcode:           barcode,
		ProductName:       rec.Name,
		DetectedAllergens: rec.DetectedAllergens,
		Outcome:           outcome,
		Record:            snapshot,
		CreatedAt:         rec.CreatedAt,
	})
	if err != nil {
		s.log.Error("persist scan", "error", err, "record_id", rec.ID)
	}
}

type askRequest struct {
	ScanID   string `json:"scan_id"`
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || s.answerer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "question answering is not configured")
		return
	}
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}

	scan, err := s.store.GetScan(r.Context(), req.ScanID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "unknown scan id")
			return
		}
		s.log.Error("load scan", "error", err, "scan_id", req.ScanID)
		s.writeError(w, http.StatusInternalServerError, "load scan failed")
		return
	}

	var stored recordJSON
	if err := json.Unmarshal(scan.Record, &stored); err != nil {
		s.log.Error("decode stored record", "error", err, "scan_id", req.ScanID)
		s.writeError(w, http.StatusInternalServerError, "stored record unreadable")
		return
	}

	answer, err := s.answerer.Answer(r.Context(), req.Question, stored.toRecord())
	if err != nil {
		s.log.Error("answer question", "error", err, "scan_id", req.ScanID)
		s.writeError(w, http.StatusBadGateway, "could not answer the question")
		return
	}

	// Log failures only: the answer already exists.
	saveErr := s.store.SaveAnswer(r.Context(), history.Answer{
		ID:       uuid.NewString(),
		ScanID:   req.ScanID,
		Question: req.Question,
		Answer:   answer,
	})
	if saveErr != nil {
		s.log.Error("persist answer", "error", saveErr, "scan_id", req.ScanID)
	}

	s.writeJSON(w, http.StatusOK, askResponse{Answer: answer})
}

type answerJSON struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleListAnswers(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scan history is not configured")
		return
	}
	id := r.PathValue("id")
	if _, err := s.store.GetScan(r.Context(), id); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "unknown scan id")
			return
		}
		s.log.Error("get scan", "error", err, "scan_id", id)
		s.writeError(w, http.StatusInternalServerError, "get scan failed")
		return
	}

	answers, err := s.store.ListAnswers(r.Context(), id)
	if err != nil {
		s.log.Error("list answers", "error", err, "scan_id", id)
		s.writeError(w, http.StatusInternalServerError, "list answers failed")
		return
	}
	out := make([]answerJSON, len(answers))
	for i, a := range answers {
		out[i] = answerJSON{
			Question:  a.Question,
			Answer:    a.Answer,
			CreatedAt: a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"answers": out})
}

type scanSummaryJSON struct {
	ScanID            string   `json:"scan_id"`
	Barcode           string   `json:"barcode,omitempty"`
	ProductName       string   `json:"product_name"`
	DetectedAllergens []string `json:"detected_allergens,omitempty"`
	Outcome           string   `json:"outcome"`
	CreatedAt         string   `json:"created_at"`
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scan history is not configured")
		return
	}

	opts := history.QueryOpts{
		Barcode:  r.URL.Query().Get("barcode"),
		Allergen: r.URL.Query().Get("allergen"),
		Limit:    50,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = limit
	}

	scans, err := s.store.ListScans(r.Context(), opts)
	if err != nil {
		s.log.Error("list scans", "error", err)
		s.writeError(w, http.StatusInternalServerError, "list scans failed")
		return
	}

	out := make([]scanSummaryJSON, len(scans))
	for i, scan := range scans {
		out[i] = toSummaryJSON(scan)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"scans": out})
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scan history is not configured")
		return
	}
	scan, err := s.store.GetScan(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "unknown scan id")
			return
		}
		s.log.Error("get scan", "error", err)
		s.writeError(w, http.StatusInternalServerError, "get scan failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"scan":   toSummaryJSON(scan),
		"record": json.RawMessage(scan.Record),
	})
}

func toSummaryJSON(scan history.Scan) scanSummaryJSON {
	return scanSummaryJSON{
		ScanID:            scan.ID,
		Barcode:           scan.Barcode,
		ProductName:       scan.ProductName,
		DetectedAllergens: scan.DetectedAllergens,
		Outcome:           scan.Outcome,
		CreatedAt:         scan.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// profileJSON carries the user's allergen profile on the wire. Names that
// match a common allergen become enumerated entries; everything else is a
// custom literal.
type profileJSON struct {
	Allergens []string `json:"allergens"`
}

func (p profileJSON) toProfile() allergen.Profile {
	var out allergen.Profile
	for _, name := range p.Allergens {
		if c, ok := allergen.CommonFromName(name); ok {
			out.Common = append(out.Common, c)
			continue
		}
		out.Custom = append(out.Custom, name)
	}
	return out
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
