package proxy

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/delta10/wfs-proxy/internal/config"
	"github.com/delta10/wfs-proxy/internal/utils"
)

// forward sends the request to the path's backend and copies the response.
// A non-nil body replaces the incoming request body.
func (s *Server) forward(path config.Path, w http.ResponseWriter, r *http.Request, body io.Reader, logger *zap.Logger) {
	backend, ok := s.config.Backends[path.Backend.Slug]
	if !ok {
		writeError(w, http.StatusBadRequest, "could not find backend associated with this path: "+path.Backend.Slug)
		return
	}

	backendBaseUrl, err := url.Parse(backend.BaseURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not parse backend URL")
		return
	}

	targetPath, err := backendPath(path.Backend.Path, mux.Vars(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not parse request URL")
		return
	}

	fullBackendURL := backendBaseUrl.JoinPath(targetPath)

	// Copy query parameters to backend
	fullBackendURL.RawQuery = r.URL.Query().Encode()

	backendRequest, err := http.NewRequestWithContext(r.Context(), r.Method, fullBackendURL.String(), body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not construct backend request")
		return
	}
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		backendRequest.Header.Set("Content-Type", contentType)
	}
	backendRequest.Header.Set("X-Forwarded-For", utils.ReadUserIP(r))

	if backend.Auth.Basic.Username != "" && backend.Auth.Basic.Password != "" {
		parsedPassword := utils.EnvSubst(backend.Auth.Basic.Password)
		backendRequest.Header.Set("Authorization", utils.GenerateBasicAuthHeader(backend.Auth.Basic.Username, parsedPassword))
	}

	for headerKey, headerValue := range backend.Auth.Header {
		parsedHeaderValue := utils.EnvSubst(headerValue)
		backendRequest.Header.Set(headerKey, parsedHeaderValue)
	}

	client, err := backendClient(backend)
	if err != nil {
		logger.Error("could not configure backend client", zap.String("backend", path.Backend.Slug), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not configure backend client")
		return
	}

	proxyResp, err := client.Do(backendRequest)
	if err != nil {
		logger.Error("could not fetch backend response", zap.Error(err))
		writeError(w, http.StatusBadGateway, fmt.Sprintf("could not fetch backend response: %s", err))
		return
	}

	defer proxyResp.Body.Close()

	logger.Debug("forwarded request", zap.String("backend", path.Backend.Slug), zap.Int("status", proxyResp.StatusCode))

	utils.DelHopHeaders(proxyResp.Header)
	utils.CopyHeader(w.Header(), proxyResp.Header)
	w.WriteHeader(proxyResp.StatusCode)
	io.Copy(w, proxyResp.Body)
}

// backendPath fills the route variables of the incoming request into the
// backend path template, e.g. /wfs/{workspace}.
func backendPath(template string, vars map[string]string) (string, error) {
	if template == "" {
		return "", nil
	}
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, k, v)
	}
	u, err := mux.NewRouter().NewRoute().Path(template).URLPath(pairs...)
	if err != nil {
		return "", err
	}
	return u.Path, nil
}

func backendClient(backend config.Backend) (*http.Client, error) {
	tlsConfig := &tls.Config{}
	if backend.Auth.TLS.RootCertificates != "" {
		rootCertificates, err := os.ReadFile(backend.Auth.TLS.RootCertificates)
		if err != nil {
			return nil, errors.Wrap(err, "read root certificates")
		}

		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(rootCertificates) {
			return nil, errors.New("could not load root certificates")
		}

		tlsConfig.RootCAs = roots
	}

	if backend.Auth.TLS.Certificate != "" && backend.Auth.TLS.Key != "" {
		cert, err := tls.LoadX509KeyPair(backend.Auth.TLS.Certificate, backend.Auth.TLS.Key)
		if err != nil {
			return nil, errors.Wrap(err, "load TLS keypair")
		}

		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return &http.Client{
		Timeout:   25 * time.Second,
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}, nil
}
