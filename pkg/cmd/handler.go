package cmd

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/yaml.v3"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/internal/normalizer"
	"github.com/manifoldrouter/manifold/internal/planner"
	"github.com/manifoldrouter/manifold/internal/router"
	"github.com/manifoldrouter/manifold/pkg/gateway"
	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/routererrors"
)

const maxRequestSize = 1 << 20

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "manifold",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "duration of the requests to the query endpoints",
	Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
}, []string{"code", "method"})

// QueryRequest is the body of the query and explain endpoints, in YAML or
// JSON.
type QueryRequest struct {
	QuerySpec `yaml:",inline"`
	Platforms []string `yaml:"platforms"`
	NoCache   bool     `yaml:"no_cache"`
}

// QueryResponse is the body answering a forwarded query.
type QueryResponse struct {
	Records    query.Records `json:"records"`
	Errors     []string      `json:"errors,omitempty"`
	Unresolved []string      `json:"unresolved,omitempty"`
}

// ErrorResponse is the body answering a failed request.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// QueryHandler serves the router over HTTP:
//
//	POST /v1/query                     forward a query
//	POST /v1/explain                   print the plan of a query
//	GET  /v1/platforms                 list the platforms
//	POST /v1/platforms/{name}/enable   forward queries to a platform again
//	POST /v1/platforms/{name}/disable  stop forwarding queries to a platform
//	POST /v1/refresh                   fetch the announcements again
func QueryHandler(r *router.Router) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/query", func(w http.ResponseWriter, req *http.Request) {
		q, opts, err := decodeQuery(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := r.Forward(req.Context(), q, opts...)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		writeJSON(w, http.StatusOK, newQueryResponse(result))
	})

	mux.HandleFunc("POST /v1/explain", func(w http.ResponseWriter, req *http.Request) {
		q, opts, err := decodeQuery(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		explain, err := r.Explain(req.Context(), q, opts...)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, explain)
	})

	mux.HandleFunc("GET /v1/platforms", func(w http.ResponseWriter, req *http.Request) {
		result, err := r.Forward(req.Context(), query.Get(query.LocalNamespace+":platform"))
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		writeJSON(w, http.StatusOK, newQueryResponse(result))
	})

	mux.HandleFunc("POST /v1/platforms/{name}/enable", func(w http.ResponseWriter, req *http.Request) {
		setPlatform(w, req, r.EnablePlatform)
	})
	mux.HandleFunc("POST /v1/platforms/{name}/disable", func(w http.ResponseWriter, req *http.Request) {
		setPlatform(w, req, r.DisablePlatform)
	})

	mux.HandleFunc("POST /v1/refresh", func(w http.ResponseWriter, req *http.Request) {
		if err := r.Refresh(req.Context()); err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return promhttp.InstrumentHandlerDuration(requestDuration, otelhttp.NewHandler(mux, "query"))
}

// MetricsHandler serves the prometheus metrics.
func MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func setPlatform(w http.ResponseWriter, req *http.Request, set func(string) error) {
	if err := set(req.PathValue("name")); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeQuery(req *http.Request) (query.Query, []router.ForwardOption, error) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxRequestSize))
	if err != nil {
		return query.Query{}, nil, err
	}

	var decoded QueryRequest
	if err := yaml.Unmarshal(body, &decoded); err != nil {
		return query.Query{}, nil, err
	}
	if decoded.Action == "" {
		decoded.Action = string(query.ActionGet)
	}
	q, err := decoded.Build()
	if err != nil {
		return query.Query{}, nil, err
	}

	var opts []router.ForwardOption
	if len(decoded.Platforms) > 0 {
		opts = append(opts, router.WithPlatforms(decoded.Platforms...))
	}
	if decoded.NoCache {
		opts = append(opts, router.WithoutResultCache())
	}
	return q, opts, nil
}

func newQueryResponse(result *router.Result) QueryResponse {
	response := QueryResponse{
		Records:    result.Records,
		Unresolved: result.Unresolved,
	}
	if response.Records == nil {
		response.Records = query.Records{}
	}
	for _, err := range result.Errors {
		response.Errors = append(response.Errors, err.Error())
	}
	return response
}

// statusOf returns the HTTP status of a failed query.
func statusOf(err error) int {
	var (
		unknownObject   normalizer.UnknownObjectError
		unknownPlatform router.UnknownPlatformError
		ambiguous       router.AmbiguousWriteError
		unresolvable    planner.UnresolvableQueryError
		gwErr           gateway.Error
	)
	switch {
	case errors.Is(err, router.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.As(err, &unknownObject), errors.As(err, &unknownPlatform):
		return http.StatusNotFound
	case errors.As(err, &ambiguous), errors.Is(err, router.ErrNoPlatform):
		return http.StatusConflict
	case errors.As(err, &unresolvable):
		return http.StatusUnprocessableEntity
	case errors.As(err, &gwErr):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	details := routererrors.Details(err)
	delete(details, "error")
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Details: details})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}
