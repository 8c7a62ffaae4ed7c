package tier1

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cmusatyalab/sinfonia/internal/apierr"
	"github.com/cmusatyalab/sinfonia/internal/dispatch"
	"github.com/cmusatyalab/sinfonia/internal/logging"
	"github.com/cmusatyalab/sinfonia/internal/match"
	"github.com/cmusatyalab/sinfonia/internal/model"
	"github.com/cmusatyalab/sinfonia/internal/recipe"
	"github.com/cmusatyalab/sinfonia/internal/registry"
	"github.com/cmusatyalab/sinfonia/internal/telemetry/metrics"
)

// Server implements the Tier-1 request surface (C9): cloudlet ingest,
// deploy, and recipe lookup.
type Server struct {
	registry   *registry.Registry
	pipeline   *match.Pipeline
	dispatcher *dispatch.Dispatcher
	catalog    recipe.Catalog
	history    *HistoryWriter
	rotate     bool
	now        func() time.Time
	log        logging.Logger

	requests metrics.Counter
}

// NewServer wires a Tier-1 Server. metricsProvider may be nil, in which
// case a no-op provider is used.
func NewServer(reg *registry.Registry, pipeline *match.Pipeline, dispatcher *dispatch.Dispatcher, catalog recipe.Catalog, history *HistoryWriter, rotateOnDeploy bool, log logging.Logger, provider metrics.Provider) *Server {
	if provider == nil {
		provider = metrics.NewNoopProvider()
	}
	s := &Server{
		registry:   reg,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		catalog:    catalog,
		history:    history,
		rotate:     rotateOnDeploy,
		now:        time.Now,
		log:        log,
	}
	s.requests = provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "sinfonia_tier1",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Tier-1 HTTP requests by route and outcome.",
		Labels:    []string{"route", "status"},
	}})
	return s
}

// Handler builds the routed net/http.Handler for the Tier-1 surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/cloudlets/", s.handleIngest)
	mux.HandleFunc("GET /api/v1/cloudlets/", s.handleListCloudlets)
	mux.HandleFunc("POST /api/v1/deploy/{uuid}/{key}", s.handleDeploy)
	mux.HandleFunc("GET /api/v1/recipes/{uuid}", s.handleRecipe)
	return mux
}

type ingestRequest struct {
	UUID      string          `json:"uuid"`
	Endpoint  string          `json:"endpoint"`
	Resources model.Resources `json:"resources"`
	Locations []model.LatLon  `json:"locations"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, "ingest", apierr.BadRequest("malformed request body", err))
		return
	}
	if req.UUID == "" {
		s.writeError(w, r, "ingest", apierr.BadRequest("missing uuid", nil))
		return
	}

	cloudlet := &model.Cloudlet{
		UUID:      req.UUID,
		Endpoint:  req.Endpoint,
		Locations: req.Locations,
		Resources: req.Resources,
	}
	s.registry.Upsert(cloudlet)

	if s.history != nil {
		if err := s.history.Append(s.now().Unix(), cloudlet.Endpoint, cloudlet.Resources); err != nil && s.log != nil {
			s.log.WarnCtx(r.Context(), "carbon history append failed", "error", err.Error())
		}
	}

	s.requests.Inc(1, "ingest", "204")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCloudlets(w http.ResponseWriter, r *http.Request) {
	cloudlets := s.registry.Snapshot()
	summaries := make([]model.Summary, 0, len(cloudlets))
	for _, c := range cloudlets {
		summaries = append(summaries, c.Summary())
	}
	s.requests.Inc(1, "list_cloudlets", "200")
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	uuid := r.PathValue("uuid")
	key := r.PathValue("key")
	if uuid == "" || key == "" {
		s.writeError(w, r, "deploy", apierr.BadRequest("missing uuid or application key", nil))
		return
	}

	recipeRecord, err := s.catalog.FromUUID(uuid)
	if err != nil {
		s.writeError(w, r, "deploy", err)
		return
	}

	results := dispatch.ClampResults(parseResultsParam(r))
	client := model.ClientInfo{ApplicationKey: key, IPAddress: clientIP(r)}

	candidates := make([]*model.Cloudlet, 0, results)
	for c := range s.pipeline.Candidates(client, *recipeRecord, s.registry.Snapshot()) {
		candidates = append(candidates, c)
		if len(candidates) >= results {
			break
		}
	}

	descriptors, err := s.dispatcher.Dispatch(r.Context(), candidates, uuid, key, results)
	if err != nil {
		s.writeError(w, r, "deploy", err)
		return
	}

	if s.history != nil && s.rotate {
		s.history.Rotate(s.now().Unix())
	}

	s.requests.Inc(1, "deploy", "200")
	s.writeJSON(w, http.StatusOK, descriptors)
}

func (s *Server) handleRecipe(w http.ResponseWriter, r *http.Request) {
	uuid := r.PathValue("uuid")
	recipeRecord, err := s.catalog.FromUUID(uuid)
	if err != nil {
		s.writeError(w, r, "recipe", err)
		return
	}
	if recipeRecord.Restricted {
		s.writeError(w, r, "recipe", apierr.Forbidden("recipe is restricted", nil))
		return
	}
	s.requests.Inc(1, "recipe", "200")
	s.writeJSON(w, http.StatusOK, recipeRecord.AsDict())
}

// clientIP extracts the request's source IP, stripping a port if present;
// r.RemoteAddr is host:port for real listeners, but may be a bare IP in
// tests that forge it directly.
func clientIP(r *http.Request) net.IP {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	return net.ParseIP(host)
}

func parseResultsParam(r *http.Request) int {
	v := r.URL.Query().Get("results")
	if v == "" {
		return dispatch.MaxResults
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return dispatch.MaxResults
	}
	return n
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, route string, err error) {
	status := apierr.HTTPStatus(err)
	s.requests.Inc(1, route, strconv.Itoa(status))
	if s.log != nil {
		s.log.WarnCtx(r.Context(), "request failed", "route", route, "status", status, "error", err.Error())
	}
	s.writeJSON(w, status, map[string]string{"error": apierr.Message(err)})
}
