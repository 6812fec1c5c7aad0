package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/toolrank-io/toolrank/internal/config"
	"github.com/toolrank-io/toolrank/internal/core/domain"
	"github.com/toolrank-io/toolrank/internal/core/ports"
	"github.com/toolrank-io/toolrank/internal/observability/metrics"
)

type Router struct {
	cfg     config.Config
	log     *slog.Logger
	metrics *metrics.APIMetrics

	searcher ports.ToolSearcher
	catalog  ports.CatalogIngestor
	tools    ports.ToolReader
	tasks    ports.SyncTaskReader
}

func NewRouter(
	cfg config.Config,
	logger *slog.Logger,
	httpMetrics *metrics.APIMetrics,
	searcher ports.ToolSearcher,
	catalog ports.CatalogIngestor,
	tools ports.ToolReader,
	tasks ports.SyncTaskReader,
) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		cfg:      cfg,
		log:      logger,
		metrics:  httpMetrics,
		searcher: searcher,
		catalog:  catalog,
		tools:    tools,
		tasks:    tasks,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/openapi.yaml", rt.openapiYAML)
	mux.HandleFunc("/v1/search", rt.search)
	mux.HandleFunc("/v1/tools/", rt.toolSubtree)
	mux.HandleFunc("/v1/catalog/import", rt.importCatalog)
	mux.HandleFunc("/v1/tasks/", rt.taskStatus)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxConcurrent, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(rt.log, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openapiYAML(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiSpec)
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query  string         `json:"query"`
		Limit  int            `json:"limit"`
		Params map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = rt.cfg.SearchDefaultLimit
	}

	start := time.Now()
	outcome, err := rt.searcher.Search(r.Context(), domain.SearchRequest{
		Query:   req.Query,
		Limit:   limit,
		Params:  req.Params,
		Timeout: time.Duration(rt.cfg.SearchTimeoutSeconds) * time.Second,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordSearchObservation("search", len(outcome.Results), outcome.Metadata.Degraded, time.Since(start))
		for _, timing := range outcome.Metadata.Timings {
			rt.metrics.RecordSearchStage(timing.Stage, timing.Duration)
		}
		for _, stage := range outcome.Metadata.Skip.SkippedStages {
			rt.metrics.RecordSkippedStage(stage)
		}
		rt.metrics.RecordFusion(outcome.Metadata.MergeStats.Strategy, outcome.Metadata.MergeStats.DuplicatesRemoved)
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) toolSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/tools/")
	if id, ok := strings.CutSuffix(rest, "/datasheet"); ok {
		rt.attachDatasheet(w, r, id)
		return
	}
	rt.getTool(w, r, rest)
}

func (rt *Router) getTool(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tool id is required"})
		return
	}

	tool, err := rt.tools.GetTool(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func (rt *Router) attachDatasheet(w http.ResponseWriter, r *http.Request, toolID string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if toolID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tool id is required"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	record, err := rt.catalog.AttachDatasheet(r.Context(), toolID, fileHeader.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, record)
}

func (rt *Router) importCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	record, err := rt.catalog.ImportCatalog(r.Context(), fileHeader.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, record)
}

func (rt *Router) taskStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task id is required"})
		return
	}

	record, err := rt.tasks.TaskStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
