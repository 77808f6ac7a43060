package availability

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ServiceName is reported by /api/health.
const ServiceName = "availability-test"

const defaultHistoryLimit = 50

// APIHandler serves the monitor's dashboard and JSON endpoints.
type APIHandler struct {
	monitor   *Monitor
	metrics   *Metrics
	dashboard *template.Template
	logger    *zap.Logger
}

// NewAPIHandler creates the handler. metrics may be nil.
func NewAPIHandler(monitor *Monitor, metrics *Metrics, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		monitor:   monitor,
		metrics:   metrics,
		dashboard: template.Must(template.New("dashboard").Funcs(dashboardFuncs).Parse(dashboardHTML)),
		logger:    logger,
	}
}

// RegisterRoutes registers the dashboard, API and metrics routes.
func (h *APIHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Dashboard)
	r.Route("/api", func(r chi.Router) {
		r.Use(allowCORS)
		r.Get("/status", h.GetStatus)
		r.Get("/health", h.GetHealth)
		r.Get("/run-test", h.RunTest)
		r.Get("/history", h.GetHistory)
	})
	r.Handle("/metrics", h.metrics.Handler())
}

// Router returns a chi router with every route registered.
func (h *APIHandler) Router() http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// Dashboard renders the HTML status page.
func (h *APIHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.dashboard.Execute(w, h.monitor.State().Snapshot()); err != nil {
		h.logger.Error("failed to render dashboard", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// GetStatus returns the latest Status.
func (h *APIHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.monitor.State().Snapshot())
}

// GetHealth reports that the monitor itself is up.
func (h *APIHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":    HealthHealthy,
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   ServiceName,
	})
}

// RunTest triggers a run and returns its Status.
func (h *APIHandler) RunTest(w http.ResponseWriter, r *http.Request) {
	status, err := h.monitor.RunOnce(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Test completed",
		"results": status,
	})
}

// GetHistory returns persisted results, newest first.
func (h *APIHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	checks, err := h.monitor.History(r.Context(), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"checks": checks,
		"count":  len(checks),
	})
}

func (h *APIHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (h *APIHandler) respondError(w http.ResponseWriter, status int, err error) {
	h.logger.Error("API error", zap.Error(err), zap.Int("status", status))
	h.respondJSON(w, status, map[string]string{
		"status":  "error",
		"message": err.Error(),
	})
}

func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
