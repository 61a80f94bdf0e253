package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/weaveworks/common/middleware"

	"github.com/fluxcd/rollout/pkg/api"
	fluxerr "github.com/fluxcd/rollout/pkg/errors"
	transport "github.com/fluxcd/rollout/pkg/http"
	"github.com/fluxcd/rollout/pkg/image"
	fluxmetrics "github.com/fluxcd/rollout/pkg/metrics"
	"github.com/fluxcd/rollout/pkg/publisher"
	"github.com/fluxcd/rollout/pkg/resource"
)

var (
	requestDuration = stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
		Namespace: "rollout",
		Name:      "request_duration_seconds",
		Help:      "Time (in seconds) spent serving HTTP requests.",
		Buckets:   stdprometheus.DefBuckets,
	}, []string{fluxmetrics.LabelMethod, fluxmetrics.LabelRoute, "status_code", "ws"})
)

func init() {
	stdprometheus.MustRegister(requestDuration)
}

// An API server for the daemon
func NewRouter() *mux.Router {
	r := transport.NewAPIRouter()

	// We assume every request that doesn't match a route is a client
	// calling an old or hitherto unsupported API.
	r.NewRoute().Name("NotFound").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport.WriteError(w, r, http.StatusNotFound, transport.MakeAPINotFound(r.URL.Path))
	})

	return r
}

func NewHandler(s api.Server, r *mux.Router) http.Handler {
	handle := HTTPServer{s}

	r.Get(transport.Ping).HandlerFunc(handle.Ping)
	r.Get(transport.Version).HandlerFunc(handle.Version)
	r.Get(transport.Status).HandlerFunc(handle.Status)
	r.Get(transport.Export).HandlerFunc(handle.Export)
	r.Get(transport.History).HandlerFunc(handle.History)
	r.Get(transport.Events).HandlerFunc(handle.Events)
	r.Get(transport.Publish).HandlerFunc(handle.Publish)

	return middleware.Instrument{
		RouteMatcher: r,
		Duration:     requestDuration,
	}.Wrap(r)
}

type HTTPServer struct {
	server api.Server
}

func (s HTTPServer) Ping(w http.ResponseWriter, r *http.Request) {
	if err := s.server.Ping(r.Context()); err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s HTTPServer) Version(w http.ResponseWriter, r *http.Request) {
	version, err := s.server.Version(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, version)
}

func (s HTTPServer) Status(w http.ResponseWriter, r *http.Request) {
	summary, err := s.server.Status(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, summary)
}

func (s HTTPServer) Export(w http.ResponseWriter, r *http.Request) {
	body, err := s.server.Export(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-yaml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s HTTPServer) History(w http.ResponseWriter, r *http.Request) {
	history, err := s.server.History(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, history)
}

func (s HTTPServer) Events(w http.ResponseWriter, r *http.Request) {
	events, err := s.server.Events(r.Context())
	if err != nil {
		transport.ErrorResponse(w, r, err)
		return
	}
	transport.JSONResponse(w, r, events)
}

func (s HTTPServer) Publish(w http.ResponseWriter, r *http.Request) {
	var req api.PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		transport.ErrorResponse(w, r, &fluxerr.Error{
			Type: fluxerr.User,
			Help: "The request body could not be decoded as a publish request: " + err.Error(),
			Err:  err,
		})
		return
	}

	var rev resource.Revision
	var err error
	switch {
	case req.Spec != nil:
		rev, err = s.server.PublishSpec(r.Context(), *req.Spec)
	case req.Image != "":
		var ref image.Ref
		ref, err = image.ParseRef(req.Image)
		if err == nil {
			rev, err = s.server.PublishImage(r.Context(), ref)
		}
	default:
		err = errors.New("publish request names neither an image nor a spec")
	}
	if err != nil {
		transport.ErrorResponse(w, r, userFacing(err))
		return
	}
	transport.JSONResponse(w, r, api.PublishResponse{Revision: rev})
}

// userFacing classifies publish failures the caller can do something
// about; anything else stays a server error.
func userFacing(err error) error {
	cause := errors.Cause(err)
	switch {
	case resource.IsValidation(err),
		cause == publisher.ErrTagRejected,
		cause == publisher.ErrAlreadyCurrent,
		cause == publisher.ErrNoBaseline,
		cause == image.ErrInvalidImageRef:
		return &fluxerr.Error{Type: fluxerr.User, Help: err.Error(), Err: err}
	}
	return err
}
