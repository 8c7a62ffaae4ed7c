package tier2

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cmusatyalab/sinfonia/internal/apierr"
	"github.com/cmusatyalab/sinfonia/internal/cluster"
	"github.com/cmusatyalab/sinfonia/internal/logging"
	"github.com/cmusatyalab/sinfonia/internal/model"
	"github.com/cmusatyalab/sinfonia/internal/telemetry/metrics"
)

// Server implements the Tier-2 request surface (C10): deployment
// create/fetch/delete, the current carbon report, and liveness/readiness.
type Server struct {
	cluster  cluster.Adapter
	reporter *Reporter
	log      logging.Logger

	requests metrics.Counter
}

// NewServer wires a Tier-2 Server. provider may be nil, in which case a
// no-op metrics provider is used.
func NewServer(adapter cluster.Adapter, reporter *Reporter, log logging.Logger, provider metrics.Provider) *Server {
	if provider == nil {
		provider = metrics.NewNoopProvider()
	}
	s := &Server{cluster: adapter, reporter: reporter, log: log}
	s.requests = provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
		Namespace: "sinfonia_tier2",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Tier-2 HTTP requests by route and outcome.",
		Labels:    []string{"route", "status"},
	}})
	return s
}

// Handler builds the routed net/http.Handler for the Tier-2 surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/deploy/{uuid}/{key}", s.handleDeployCreate)
	mux.HandleFunc("GET /api/v1/deploy/{uuid}/{key}", s.handleDeployGet)
	mux.HandleFunc("DELETE /api/v1/deploy/{uuid}/{key}", s.handleDeployDelete)
	mux.HandleFunc("GET /api/v1/carbon", s.handleCarbon)
	mux.HandleFunc("POST /api/v1/carbon-trace-timestamp", s.handleSetCarbonTimestamp)
	mux.HandleFunc("GET /api/v1/resu", s.handleResources)
	mux.HandleFunc("GET /api/v1/livez", s.handleLivez)
	mux.HandleFunc("GET /api/v1/readyz", s.handleReadyz)
	return mux
}

func (s *Server) handleDeployCreate(w http.ResponseWriter, r *http.Request) {
	s.handleDeploy(w, r, true)
}

func (s *Server) handleDeployGet(w http.ResponseWriter, r *http.Request) {
	s.handleDeploy(w, r, false)
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request, create bool) {
	uuid := r.PathValue("uuid")
	key := r.PathValue("key")
	route := "deploy_get"
	if create {
		route = "deploy_create"
	}
	if uuid == "" || key == "" {
		s.writeError(w, r, route, apierr.BadRequest("missing uuid or application key", nil))
		return
	}

	dep, err := s.cluster.Get(r.Context(), uuid, key, create)
	if err != nil {
		s.writeError(w, r, route, clusterLookupError(err))
		return
	}
	if dep == nil {
		s.requests.Inc(1, route, "404")
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.requests.Inc(1, route, "200")
	if create {
		// C10/original DeployView.post returns a JSON array — Tier-1's
		// HTTPDeployer decodes into []model.DeploymentDescriptor.
		s.writeJSON(w, http.StatusOK, []model.DeploymentDescriptor{dep.Descriptor()})
		return
	}
	s.writeJSON(w, http.StatusOK, dep.Descriptor())
}

func (s *Server) handleDeployDelete(w http.ResponseWriter, r *http.Request) {
	uuid := r.PathValue("uuid")
	key := r.PathValue("key")
	if uuid == "" || key == "" {
		s.writeError(w, r, "deploy_delete", apierr.BadRequest("missing uuid or application key", nil))
		return
	}
	dep, err := s.cluster.Get(r.Context(), uuid, key, false)
	if err != nil {
		s.writeError(w, r, "deploy_delete", clusterLookupError(err))
		return
	}
	if dep != nil {
		if err := s.cluster.Expire(r.Context(), uuid, key); err != nil {
			s.writeError(w, r, "deploy_delete", clusterLookupError(err))
			return
		}
	}
	s.requests.Inc(1, "deploy_delete", "204")
	w.WriteHeader(http.StatusNoContent)
}

// clusterLookupError classifies a cluster.Adapter failure the way the
// original's DeployView does: a cancelled or timed-out call is the client
// giving up, not an upstream fault, so it maps to 400 rather than 500.
func clusterLookupError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apierr.BadRequest("request cancelled or timed out", err)
	}
	return apierr.Upstream("cluster lookup failed", err)
}

func (s *Server) handleCarbon(w http.ResponseWriter, r *http.Request) {
	if s.reporter == nil {
		s.writeError(w, r, "carbon", apierr.BadRequest("carbon reporting not configured", nil))
		return
	}
	report, err := s.reporter.CurrentCarbonReport(r.Context())
	if err != nil {
		s.writeError(w, r, "carbon", apierr.BadRequest("carbon_trace_timestamp not set", err))
		return
	}
	s.requests.Inc(1, "carbon", "200")
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSetCarbonTimestamp(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("carbon_trace_timestamp")
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ts < 0 {
		s.writeError(w, r, "set_carbon_timestamp", apierr.BadRequest("carbon_trace_timestamp must be a non-negative integer", err))
		return
	}
	if s.reporter != nil {
		s.reporter.SetCarbonTraceTimestamp(ts)
	}
	s.requests.Inc(1, "set_carbon_timestamp", "204")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.cluster.GetResources(r.Context())
	if err != nil {
		s.writeError(w, r, "resu", apierr.Upstream("get resources failed", err))
		return
	}
	s.requests.Inc(1, "resu", "200")
	s.writeJSON(w, http.StatusOK, resources)
}

func (s *Server) handleLivez(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
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
