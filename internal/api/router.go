package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/soaringjerry/storeaudit/internal/metrics"
	"github.com/soaringjerry/storeaudit/internal/middleware"
	"github.com/soaringjerry/storeaudit/internal/services"
	"github.com/soaringjerry/storeaudit/internal/utils"
)

const maxBodyBytes = 5 << 20

// BuildInfo is reported by /health and /version.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Catalog     *services.CatalogService
	Audits      *services.AuditService
	Sessions    *services.SessionManager
	Analytics   *services.AnalyticsService
	Auth        *middleware.Authenticator
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
	CORSOrigins []string
	Build       BuildInfo
}

type Router struct {
	Deps
}

func NewRouter(d Deps) *Router {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Router{Deps: d}
}

// Handler returns the full middleware-wrapped API.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	rt.Register(mux)
	return middleware.Chain(mux,
		middleware.SecureHeaders,
		middleware.NoStore,
		middleware.CORS(rt.CORSOrigins),
		middleware.LocaleMiddleware,
		rt.Auth.WithAuth,
	)
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", rt.handleHealth)
	mux.HandleFunc("GET /version", rt.handleVersion)
	if rt.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(rt.Gatherer))
	}

	// catalog
	rt.route(mux, "GET /api/catalog", rt.handleCatalog)
	rt.route(mux, "POST /api/catalog/categories", rt.handleCreateCategory)
	rt.route(mux, "PUT /api/catalog/categories/{id}", rt.handleUpdateCategory)
	rt.route(mux, "POST /api/catalog/subcategories", rt.handleCreateSubcategory)
	rt.route(mux, "POST /api/catalog/subcategories/{id}/reorder", rt.handleReorder)
	rt.route(mux, "POST /api/catalog/questions", rt.handleAddQuestion)
	rt.route(mux, "PUT /api/catalog/questions/{id}", rt.handleEditQuestion)
	rt.route(mux, "DELETE /api/catalog/questions/{id}", rt.handleDeactivateQuestion)
	rt.route(mux, "POST /api/catalog/questions/{id}/activate", rt.handleActivateQuestion)
	rt.route(mux, "GET /api/catalog/export.csv", rt.handleExportCatalog)
	rt.route(mux, "POST /api/catalog/import.csv", rt.handleImportCatalog)

	// stores
	rt.route(mux, "POST /api/stores", rt.handleCreateStore)
	rt.route(mux, "GET /api/stores", rt.handleListStores)
	rt.route(mux, "GET /api/stores/{id}/summary", rt.handleStoreSummary)

	// audits
	rt.route(mux, "POST /api/audits", rt.handleCreateAudit)
	rt.route(mux, "GET /api/audits", rt.handleListAudits)
	rt.route(mux, "GET /api/audits/{id}", rt.handleGetAudit)
	rt.route(mux, "POST /api/audits/{id}/clone", rt.handleCloneAudit)
	rt.route(mux, "POST /api/audits/{id}/questions", rt.handleAddVariableQuestion)
	rt.route(mux, "DELETE /api/audits/{id}/questions/{qid}", rt.handleRemoveQuestion)
	rt.route(mux, "PUT /api/audits/{id}/responses/{qid}", rt.handleRecordResponse)
	rt.route(mux, "PATCH /api/audits/{id}/responses/{qid}/comment", rt.handleUpdateComment)
	rt.route(mux, "PATCH /api/audits/{id}/responses/{qid}/corrective-action", rt.handleUpdateCorrectiveAction)
	rt.route(mux, "GET /api/audits/{id}/score", rt.handleScore)
	rt.route(mux, "GET /api/audits/{id}/precheck", rt.handlePrecheck)
	rt.route(mux, "PUT /api/audits/{id}/notes", rt.handleSaveNotes)
	rt.route(mux, "POST /api/audits/{id}/finalize", rt.handleFinalize)
	rt.route(mux, "POST /api/audits/{id}/photos", rt.handleAddPhoto)
	rt.route(mux, "GET /api/audits/{id}/photos", rt.handleListPhotos)
	rt.route(mux, "GET /api/audits/{id}/history", rt.handleHistory)
	rt.route(mux, "GET /api/audits/{id}/report.csv", rt.handleReportCSV)
	rt.route(mux, "GET /api/audits/{id}/report.xlsx", rt.handleReportXLSX)
	rt.route(mux, "DELETE /api/audits/{id}/session", rt.handleCloseSession)
}

// route registers an authenticated, instrumented handler.
func (rt *Router) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, rt.instrument(pattern, middleware.RequireAuth(h, rt.unauthorized)))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (rt *Router) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		rt.Metrics.HTTPRequest(route, strconv.Itoa(rec.status))
	})
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"name":    "storeaudit",
		"locale":  locale,
		"msg":     utils.T(locale, "health.ok"),
		"version": rt.Build.Version,
		"commit":  rt.Build.Commit,
	})
}

func (rt *Router) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.Build)
}

func actor(r *http.Request) string {
	a, _ := middleware.ActorFromContext(r.Context())
	return a
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return services.NewValidationError("request body required")
		}
		return services.NewValidationError("invalid json: " + err.Error())
	}
	return nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

var statusByCode = map[services.ErrorCode]int{
	services.ErrorValidation:       http.StatusBadRequest,
	services.ErrorUnauthorized:     http.StatusUnauthorized,
	services.ErrorForbidden:        http.StatusForbidden,
	services.ErrorNotFound:         http.StatusNotFound,
	services.ErrorConflict:         http.StatusConflict,
	services.ErrorNoActiveAudit:    http.StatusConflict,
	services.ErrorSnapshotCreation: http.StatusUnprocessableEntity,
	services.ErrorRemoteIO:         http.StatusServiceUnavailable,
}

// writeError maps service errors to a status and a localized message.
// Remote IO causes are logged, never returned.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	se, ok := services.AsServiceError(err)
	if !ok {
		rt.Logger.Error("unhandled error", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]errorBody{"error": {
			Code:    "internal",
			Message: utils.T(locale, "error.internal"),
		}})
		return
	}
	status, known := statusByCode[se.Code]
	if !known {
		status = http.StatusInternalServerError
	}
	body := errorBody{Code: string(se.Code), Message: utils.T(locale, "error."+string(se.Code))}
	if se.Code != services.ErrorRemoteIO {
		body.Detail = se.Message
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func (rt *Router) unauthorized(w http.ResponseWriter, r *http.Request) {
	rt.writeError(w, r, services.NewUnauthorizedError("bearer token required"))
}
