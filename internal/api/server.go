// Package api serves the schedule queries over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jgoulah/shedcal/internal/schedule"
	"github.com/jgoulah/shedcal/pkg/models"
)

// Engine is the query surface the server exposes.
type Engine interface {
	GetCalendarData(ctx context.Context, calendarName string) (*models.CalendarPayload, error)
	GetCalendarSuburbs(ctx context.Context, calendarName string) ([]string, error)
	GetMachineData(ctx context.Context, lastRecord, recordsToRetrieve int) (*models.MachineData, error)
	GetDataByArea(ctx context.Context, areaName string, lastRecord, recordsToRetrieve int) (*models.MachineData, error)
	GetDataByAreaDateTime(ctx context.Context, areaName string, startDate, endDate time.Time) (*models.MachineData, error)
	GetDistinctAreas(ctx context.Context, areaName string) (*models.MachineDataGrouped, error)
	GetAssetDataByCalendarName(ctx context.Context, calendarName string) (*models.CalendarAsset, error)
}

const routePrefix = "/api/Calendar/"

// Server provides the HTTP API.
type Server struct {
	engine  Engine
	log     zerolog.Logger
	loc     *time.Location
	limiter *rate.Limiter
	mux     *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLocation sets the zone date-only parameters are read in.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithRateLimit limits the whole API to perSec requests per second.
// Zero disables limiting.
func WithRateLimit(perSec int) Option {
	return func(s *Server) {
		if perSec > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
		}
	}
}

// NewServer constructs a new Server.
func NewServer(engine Engine, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		log:    log,
		loc:    time.Local,
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.limiter != nil {
		h = s.rateLimitMiddleware(h)
	}
	return s.logMiddleware(h)
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", "http://"+addr).Msg("starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)

	routes := map[string]http.HandlerFunc{
		"Get":                    s.handleGetCalendar,
		"GetCalendarSuburbs":     s.handleGetCalendarSuburbs,
		"GetMachineFriendlyInfo": s.handleGetMachineFriendlyInfo,
		"GetDataByArea":          s.handleGetDataByArea,
		"GetCertainDayInArea":    s.handleCertainDayInArea,
		"GetDistinctAreas":       s.handleGetDistinctAreas,
		"GetAssetByCalendarName": s.handleGetAssetByCalendarName,
	}
	for name, h := range routes {
		s.mux.Handle(routePrefix+name, getOnly(h))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleGetCalendar(w http.ResponseWriter, r *http.Request) {
	payload, err := s.engine.GetCalendarData(r.Context(), param(r, "calendarName"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	contentType := payload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload.Body)
}

func (s *Server) handleGetCalendarSuburbs(w http.ResponseWriter, r *http.Request) {
	suburbs, err := s.engine.GetCalendarSuburbs(r.Context(), param(r, "calendarName"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suburbs)
}

func (s *Server) handleGetMachineFriendlyInfo(w http.ResponseWriter, r *http.Request) {
	lastRecord, recordsToRetrieve, err := paging(r, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.engine.GetMachineData(r.Context(), lastRecord, recordsToRetrieve)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetDataByArea(w http.ResponseWriter, r *http.Request) {
	lastRecord, recordsToRetrieve, err := paging(r, schedule.MaxRecords)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.engine.GetDataByArea(r.Context(), param(r, "areaName"), lastRecord, recordsToRetrieve)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCertainDayInArea(w http.ResponseWriter, r *http.Request) {
	start, err := s.parseDate(param(r, "startDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "startDate: "+err.Error())
		return
	}
	end, err := s.parseDate(param(r, "endDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "endDate: "+err.Error())
		return
	}
	res, err := s.engine.GetDataByAreaDateTime(r.Context(), param(r, "areaName"), start, end)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetDistinctAreas(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.GetDistinctAreas(r.Context(), param(r, "areaName"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetAssetByCalendarName(w http.ResponseWriter, r *http.Request) {
	asset, err := s.engine.GetAssetDataByCalendarName(r.Context(), param(r, "calendarName"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// paging reads lastRecord and recordsToRetrieve. A missing
// recordsToRetrieve takes defaultCount, and must then lie in [1, 1000].
func paging(r *http.Request, defaultCount int) (int, int, error) {
	lastRecord, err := intParam(r, "lastRecord", 0)
	if err != nil {
		return 0, 0, err
	}
	if lastRecord < 0 {
		return 0, 0, errors.New("lastRecord must not be negative")
	}
	count, err := intParam(r, "recordsToRetrieve", defaultCount)
	if err != nil {
		return 0, 0, err
	}
	if count < 1 || count > schedule.MaxRecords {
		return 0, 0, fmt.Errorf("recordsToRetrieve must be between 1 and %d", schedule.MaxRecords)
	}
	return lastRecord, count, nil
}

// param returns a query parameter, matching its name case-insensitively.
func param(r *http.Request, name string) string {
	q := r.URL.Query()
	if v, ok := q[name]; ok && len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	for k, v := range q {
		if strings.EqualFold(k, name) && len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
	}
	return ""
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := param(r, name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339. Empty yields the zero time.
func (s *Server) parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, v, s.loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", v, s.loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", v)
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("query failed")
	}
	writeError(w, status, err.Error())
}

// StatusFor maps an engine error to an HTTP status.
func StatusFor(err error) int {
	switch schedule.KindOf(err) {
	case schedule.KindNotFound:
		return http.StatusNotFound
	case schedule.KindNotImplemented, schedule.KindInvalidArgument:
		return http.StatusBadRequest
	case schedule.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func getOnly(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
