// Package proxy serves WFS endpoints that check Transaction requests before
// they reach the backend.
package proxy

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/delta10/wfs-proxy/internal/config"
	"github.com/delta10/wfs-proxy/internal/filter"
	"github.com/delta10/wfs-proxy/internal/logs"
	"github.com/delta10/wfs-proxy/internal/metrics"
	"github.com/delta10/wfs-proxy/internal/schema"
	"github.com/delta10/wfs-proxy/internal/wfs"
	"github.com/delta10/wfs-proxy/internal/xmlstream"
)

type Server struct {
	config      *config.Config
	logger      *zap.Logger
	metrics     *metrics.Metrics
	schema      *schema.AppSchema
	jwks        *keyfunc.JWKS
	decoder     *wfs.Decoder
	logBackends map[string]*logs.LogBackend
	constraints map[string]*filter.Filter
}

type Option func(*Server)

// WithSchema restricts transactions to the feature types of s.
func WithSchema(s *schema.AppSchema) Option {
	return func(srv *Server) {
		srv.schema = s
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(srv *Server) {
		srv.metrics = m
	}
}

func WithJWKS(jwks *keyfunc.JWKS) Option {
	return func(srv *Server) {
		srv.jwks = jwks
	}
}

func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		config:      cfg,
		logger:      logger,
		decoder:     wfs.NewDecoder(nil),
		logBackends: map[string]*logs.LogBackend{},
		constraints: map[string]*filter.Filter{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	for slug, backend := range cfg.LogBackends {
		s.logBackends[slug] = logs.NewLogBackend(backend)
	}

	fd := filter.NewDecoder()
	for _, path := range cfg.Paths {
		if path.Constraint == "" {
			continue
		}
		c, err := xmlstream.Open(strings.NewReader(path.Constraint))
		if err != nil {
			return nil, errors.Wrapf(err, "constraint of path %s", path.Path)
		}
		f, err := fd.DecodeFilter(c)
		if err != nil {
			return nil, errors.Wrapf(err, "constraint of path %s", path.Path)
		}
		s.constraints[path.Path] = f
	}

	return s, nil
}

// NewJWKS fetches the key set used to verify bearer tokens and keeps it
// refreshed in the background.
func NewJWKS(url string, logger *zap.Logger) (*keyfunc.JWKS, error) {
	jwks, err := keyfunc.Get(url, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Warn("could not refresh JWKS", zap.String("url", url), zap.Error(err))
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get JWKS from %s", url)
	}
	return jwks, nil
}

// Router registers a handler per configured path and the metrics endpoint.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Handle(s.config.MetricsPath, s.metrics.Handler()).Methods(http.MethodGet)

	for _, configuredPath := range s.config.Paths {
		path := configuredPath
		router.HandleFunc(path.Path, func(w http.ResponseWriter, r *http.Request) {
			s.handle(path, w, r)
		})
	}
	return router
}

// Close stops the background JWKS refresh.
func (s *Server) Close() {
	if s.jwks != nil {
		s.jwks.EndBackground()
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	resp := make(map[string]string)
	resp["message"] = message
	jsonResp, _ := json.Marshal(resp)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(jsonResp)
}
