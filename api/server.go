package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/boptrack/db"
	"github.com/banshee-data/boptrack/internal/bop"
	"github.com/banshee-data/boptrack/internal/httputil"
	"github.com/banshee-data/boptrack/internal/units"
	"github.com/banshee-data/boptrack/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Session is the estimator session surface the HTTP handlers serve. The root
// service provides the live implementation; tests use a stub.
type Session interface {
	// ID returns the session identifier estimates are recorded under.
	ID() string
	// AddSample ingests one timestamped position sample.
	AddSample(t, x, y float64)
	// BPM returns the current tempo estimate in beats per minute, or
	// false when no estimate is available yet.
	BPM() (float64, bool)
	// SetFrequency overrides the tracked frequency (tap tempo). Returns
	// bop.ErrNoFit when there is no fit to override.
	SetFrequency(hz float64) error
	// Reset clears the sample buffer and the tracked fit.
	Reset()
	// SampleCount reports how many samples are buffered.
	SampleCount() int
}

type Server struct {
	session Session
	db      *db.DB
	units   string
}

func NewServer(session Session, database *db.DB, units string) *Server {
	return &Server{
		session: session,
		db:      database,
		units:   units,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/samples", s.addSample)
	mux.HandleFunc("/bpm", s.showBPM)
	mux.HandleFunc("/frequency", s.setFrequency)
	mux.HandleFunc("/reset", s.resetSession)
	mux.HandleFunc("/estimates", s.listEstimates)
	mux.HandleFunc("/status", s.showStatus)
	return mux
}

func writeStatusOK(w http.ResponseWriter) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

type sampleRequest struct {
	T float64 `json:"t"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (s *Server) addSample(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req sampleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("Invalid sample body: %v", err))
		return
	}

	s.session.AddSample(req.T, req.X, req.Y)
	writeStatusOK(w)
}

// tempoResponse reports the current estimate. Tempo is a pointer so the
// field disappears entirely when no estimate is available.
type tempoResponse struct {
	Available bool     `json:"available"`
	Tempo     *float64 `json:"tempo,omitempty"`
	Units     string   `json:"units,omitempty"`
}

func (s *Server) showBPM(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	target := s.units
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			httputil.BadRequest(w,
				fmt.Sprintf("Invalid 'units' parameter: valid values are %s", units.GetValidUnitsString()))
			return
		}
		target = u
	}

	resp := tempoResponse{}
	if bpm, ok := s.session.BPM(); ok {
		tempo := units.ConvertTempo(bpm, target)
		resp.Available = true
		resp.Tempo = &tempo
		resp.Units = target
	}

	httputil.WriteJSONOK(w, resp)
}

type frequencyRequest struct {
	Hz float64 `json:"hz"`
}

func (s *Server) setFrequency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req frequencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("Invalid frequency body: %v", err))
		return
	}

	if err := s.session.SetFrequency(req.Hz); err != nil {
		if errors.Is(err, bop.ErrNoFit) {
			httputil.PreconditionFailed(w, "No fit to override yet")
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to set frequency: %v", err))
		return
	}

	writeStatusOK(w)
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	s.session.Reset()
	writeStatusOK(w)
}

func (s *Server) listEstimates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 50 // default value
	if l := r.URL.Query().Get("limit"); l != "" {
		parsedLimit, err := strconv.Atoi(l)
		if err != nil || parsedLimit < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsedLimit
	}

	estimates, err := s.db.Estimates(s.session.ID(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve estimates: %v", err))
		return
	}

	// without the EstimateAPI struct the response would expose raw storage
	// field names; convert so the API controls its own output format.
	apiEstimates := make([]db.EstimateAPI, len(estimates))
	for i, e := range estimates {
		apiEstimates[i] = db.EstimateToAPI(e)
	}

	httputil.WriteJSONOK(w, apiEstimates)
}

type statusResponse struct {
	Version   string `json:"version"`
	SessionID string `json:"session_id"`
	Samples   int    `json:"samples"`
	Units     string `json:"units"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	status := statusResponse{
		Version:   version.String(),
		SessionID: s.session.ID(),
		Samples:   s.session.SampleCount(),
		Units:     s.units,
	}

	httputil.WriteJSONOK(w, status)
}
